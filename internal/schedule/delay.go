// internal/schedule/delay.go
package schedule

import (
	"math/rand"
	"time"
)

// DelayPolicy computes randomized inter-send gaps. It is pure computation
// over supplied bounds; the bounds themselves are validated at campaign
// creation time.
type DelayPolicy struct {
	rng *rand.Rand
}

// NewDelayPolicy builds a policy around rng. A nil rng gets a time-seeded
// source; tests pass a fixed seed for deterministic gaps.
func NewDelayPolicy(rng *rand.Rand) *DelayPolicy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &DelayPolicy{rng: rng}
}

// NextGap returns a uniformly distributed gap in [min, max] whole seconds.
func (p *DelayPolicy) NextGap(minSeconds, maxSeconds int) time.Duration {
	if maxSeconds <= minSeconds {
		return time.Duration(minSeconds) * time.Second
	}
	gap := minSeconds + p.rng.Intn(maxSeconds-minSeconds+1)
	return time.Duration(gap) * time.Second
}

// ShouldCoolDown reports whether enough messages went out since the last
// cool-down to insert the longer pause. The caller owns the counter and
// resets it to zero when this returns true.
func (p *DelayPolicy) ShouldCoolDown(sentSinceLastPause, pauseAfterMessages int) bool {
	return pauseAfterMessages > 0 && sentSinceLastPause >= pauseAfterMessages
}

// CoolDownGap is the pause inserted instead of the normal gap.
func CoolDownGap(pauseDurationMinutes int) time.Duration {
	return time.Duration(pauseDurationMinutes) * time.Minute
}
