package playback

import "time"

// state is the scheduler's owned mutable state. Every transition goes
// through Scheduler accessor methods under its lock; raw timer handles
// never leave the scheduler.
type state struct {
	groupEnabled     bool
	monologueEnabled bool
	costSaving       bool
	pageVisible      bool
	initialized      bool
	paused           bool
	lastActivity     time.Time
	startTime        time.Time
}

// anyFeatureEnabled reports whether either generator is on.
func (s *state) anyFeatureEnabled() bool {
	return s.groupEnabled || s.monologueEnabled
}

// shouldPause is the cost-control predicate. Pure: reads state and the
// supplied clock value, touches nothing. True when any of:
//   - both features are off (always pauses, regardless of other signals)
//   - initialization has not completed
//   - the page is not visible
//   - the user has been inactive beyond maxInactive (cost saving on)
//   - total enabled runtime exceeds maxRun (cost saving on)
func (s *state) shouldPause(now time.Time, maxInactive, maxRun time.Duration) bool {
	if !s.anyFeatureEnabled() {
		return true
	}
	if !s.initialized {
		return true
	}
	if !s.pageVisible {
		return true
	}
	if s.costSaving {
		if maxInactive > 0 && now.Sub(s.lastActivity) > maxInactive {
			return true
		}
		if maxRun > 0 && !s.startTime.IsZero() && now.Sub(s.startTime) > maxRun {
			return true
		}
	}
	return false
}
