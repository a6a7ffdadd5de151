package playback

import (
	"sync"
	"time"
)

// DefaultUpgradeCooldown is the minimum gap between two upgrade prompts.
const DefaultUpgradeCooldown = 1 * time.Hour

// upgradeLimiter deduplicates quota-exceeded notifications: at most one
// prompt per cooldown window no matter how many cycles hit the limit.
type upgradeLimiter struct {
	notifier Notifier
	cooldown time.Duration
	last     time.Time
	mu       sync.Mutex
	now      func() time.Time
}

func newUpgradeLimiter(notifier Notifier, cooldown time.Duration) *upgradeLimiter {
	if cooldown <= 0 {
		cooldown = DefaultUpgradeCooldown
	}
	return &upgradeLimiter{
		notifier: notifier,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Notify forwards the prompt unless one was already shown within the
// cooldown window. Returns whether the prompt went out.
func (l *upgradeLimiter) Notify(count, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.cooldown {
		return false
	}
	l.last = now

	if l.notifier != nil {
		l.notifier.NotifyUsageLimit(count, limit)
	}
	return true
}
