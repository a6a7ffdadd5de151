// Package playback decides when autonomous dialogue is generated and paces
// its on-screen delivery, throttling cost while the tank is idle, hidden,
// or over its runtime budget.
package playback

import (
	"context"
	"time"

	"github.com/tanklab/tanktalk/internal/backend"
	"github.com/tanklab/tanktalk/internal/session"
)

// Dialogue is the send entry point the scheduler generates through.
// Satisfied by session.Manager.
type Dialogue interface {
	Send(ctx context.Context, req session.SendRequest) (*session.SendResult, error)
}

// RosterProvider returns the current tank roster. The scheduler snapshots it
// once per cycle; mid-cycle roster changes are observed next cycle.
type RosterProvider interface {
	Roster(ctx context.Context) ([]backend.Participant, error)
}

// Usage is a daily generation quota reading. A nil Limit means unlimited.
type Usage struct {
	Count int
	Limit *int
}

// Exceeded reports whether the quota is used up.
func (u Usage) Exceeded() bool {
	return u.Limit != nil && u.Count >= *u.Limit
}

// QuotaChecker reads the owner's daily generation usage.
type QuotaChecker interface {
	GetDailyUsage(ctx context.Context, userID string) (Usage, error)
}

// UISink receives one displayed dialogue line. The Display return value
// feeds local statistics only; it never influences control flow.
type UISink interface {
	Display(participant backend.Participant, text string, displayFor time.Duration) bool

	// Clear removes any dialogue currently on screen. Called when group
	// chat is disabled mid-playback.
	Clear()
}

// Notifier surfaces user-facing prompts, currently only the quota-exceeded
// upgrade notice.
type Notifier interface {
	NotifyUsageLimit(count, limit int)
}
