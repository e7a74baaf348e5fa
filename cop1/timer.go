package cop1

import (
	"time"

	"go.uber.org/atomic"
)

// fopTimer is the single logical one-shot timer of spec section 3/5: at any
// moment it is either armed with remaining time <= T1 or cancelled. Timer
// delivery is at-least-once-after-deadline, so every arming is tagged with a
// monotonically increasing epoch; a firing is only honoured by the engine if
// its epoch still matches the current one, discarding stale fires from a
// timer that was cancelled or restarted after the underlying time.Timer had
// already queued its callback.
type fopTimer struct {
	epoch   atomic.Uint64
	current *time.Timer
	fire    func(epoch uint64)
}

func newFOPTimer(fire func(epoch uint64)) *fopTimer {
	return &fopTimer{fire: fire}
}

// restart (re)arms the timer for d, invalidating any in-flight firing from a
// previous arming.
func (t *fopTimer) restart(d time.Duration) {
	if t.current != nil {
		t.current.Stop()
	}
	epoch := t.epoch.Add(1)
	t.current = time.AfterFunc(d, func() {
		t.fire(epoch)
	})
}

// cancel disarms the timer. It is idempotent: cancelling an already
// cancelled timer is a no-op, and bumping the epoch ensures any fire already
// in flight is discarded.
func (t *fopTimer) cancel() {
	if t.current != nil {
		t.current.Stop()
		t.current = nil
	}
	t.epoch.Add(1)
}

// valid reports whether epoch matches the current arming, i.e. whether a
// TIMER_EXPIRED stimulus carrying this epoch should be honoured.
func (t *fopTimer) valid(epoch uint64) bool {
	return epoch == t.epoch.Load()
}
