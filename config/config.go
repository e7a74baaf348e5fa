// Package config loads cop1.Options from a YAML file, the one piece of
// configuration surface named in spec section 6 ("Options... all mutable
// at runtime via the corresponding SET_* directive", but also loadable as
// a file at construction time).
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucas-bremond/ccsds/cop1"
)

// FileOptions is the YAML surface for cop1.Options. T1Initial is spelled
// out with a unit suffix ("5s", "200ms") per time.ParseDuration, rather
// than carrying a bare integer nanosecond count.
type FileOptions struct {
	T1Initial         string `yaml:"t1_initial"`
	TransmissionLimit int    `yaml:"transmission_limit"`
	TimeoutType       int    `yaml:"timeout_type"`
	FOPSlidingWindow  int    `yaml:"fop_sliding_window"`
}

// LoadOptions reads and parses a cop1.Options file, rejecting unknown
// fields so a typo'd key surfaces at load time instead of silently
// falling back to a default.
func LoadOptions(path string) (cop1.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cop1.Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fo FileOptions
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fo); err != nil {
		return cop1.Options{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	opts, err := fo.toOptions()
	if err != nil {
		return cop1.Options{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return opts, nil
}

func (fo FileOptions) toOptions() (cop1.Options, error) {
	if fo.TransmissionLimit < 1 {
		return cop1.Options{}, fmt.Errorf("transmission_limit must be >= 1, got %d", fo.TransmissionLimit)
	}
	if fo.TimeoutType != 0 && fo.TimeoutType != 1 {
		return cop1.Options{}, fmt.Errorf("timeout_type must be 0 or 1, got %d", fo.TimeoutType)
	}
	if fo.FOPSlidingWindow < 1 || fo.FOPSlidingWindow > 255 {
		return cop1.Options{}, fmt.Errorf("fop_sliding_window must be 1..255, got %d", fo.FOPSlidingWindow)
	}

	d, err := time.ParseDuration(fo.T1Initial)
	if err != nil {
		return cop1.Options{}, fmt.Errorf("t1_initial: %w", err)
	}

	return cop1.Options{
		T1Initial:         d,
		TransmissionLimit: fo.TransmissionLimit,
		TimeoutType:       fo.TimeoutType,
		FOPSlidingWindow:  fo.FOPSlidingWindow,
	}, nil
}
