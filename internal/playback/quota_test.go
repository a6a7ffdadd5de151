package playback

import (
	"testing"
	"time"
)

type countingNotifier struct {
	calls int
	count int
	limit int
}

func (n *countingNotifier) NotifyUsageLimit(count, limit int) {
	n.calls++
	n.count = count
	n.limit = limit
}

func TestUpgradeLimiterDeduplicates(t *testing.T) {
	notifier := &countingNotifier{}
	limiter := newUpgradeLimiter(notifier, time.Hour)

	now := time.Now()
	limiter.now = func() time.Time { return now }

	if !limiter.Notify(5, 5) {
		t.Error("first prompt should go out")
	}
	if limiter.Notify(5, 5) {
		t.Error("second prompt within cooldown should be suppressed")
	}
	if notifier.calls != 1 {
		t.Errorf("notifier calls = %d, want 1", notifier.calls)
	}
	if notifier.count != 5 || notifier.limit != 5 {
		t.Errorf("notified %d/%d, want 5/5", notifier.count, notifier.limit)
	}

	// Past the cooldown the prompt fires again.
	now = now.Add(61 * time.Minute)
	if !limiter.Notify(6, 5) {
		t.Error("prompt after cooldown should go out")
	}
	if notifier.calls != 2 {
		t.Errorf("notifier calls = %d, want 2", notifier.calls)
	}
}

func TestUpgradeLimiterNilNotifier(t *testing.T) {
	limiter := newUpgradeLimiter(nil, time.Minute)

	// Must not panic; dedup accounting still applies.
	if !limiter.Notify(1, 1) {
		t.Error("first call should count as sent")
	}
	if limiter.Notify(1, 1) {
		t.Error("second call should be suppressed")
	}
}

func TestUsageExceeded(t *testing.T) {
	limit := 5

	tests := []struct {
		name  string
		usage Usage
		want  bool
	}{
		{name: "unlimited", usage: Usage{Count: 100, Limit: nil}, want: false},
		{name: "under limit", usage: Usage{Count: 4, Limit: &limit}, want: false},
		{name: "at limit", usage: Usage{Count: 5, Limit: &limit}, want: true},
		{name: "over limit", usage: Usage{Count: 6, Limit: &limit}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.usage.Exceeded(); got != tt.want {
				t.Errorf("Exceeded() = %v, want %v", got, tt.want)
			}
		})
	}
}
