// Package tank provides the standalone adapters between the dialogue core
// and its host: a config-defined roster and log-based display outputs.
// A real deployment replaces these with its store-backed collaborators.
package tank

import (
	"context"
	"log/slog"
	"time"

	"github.com/tanklab/tanktalk/internal/backend"
	"github.com/tanklab/tanktalk/internal/config"
)

// StaticRoster serves a fixed set of fish from configuration. It satisfies
// both the scheduler's roster lookup and the session manager's participant
// directory.
type StaticRoster struct {
	fish []backend.Participant
}

// NewStaticRoster builds a roster from config.
func NewStaticRoster(cfg config.TankConfig) *StaticRoster {
	fish := make([]backend.Participant, 0, len(cfg.Fish))
	for _, f := range cfg.Fish {
		fish = append(fish, backend.Participant{
			ID:          f.ID,
			Name:        f.Name,
			Personality: f.Personality,
			Bio:         f.Bio,
		})
	}
	return &StaticRoster{fish: fish}
}

// Roster returns the full tank roster.
func (r *StaticRoster) Roster(_ context.Context) ([]backend.Participant, error) {
	return append([]backend.Participant(nil), r.fish...), nil
}

// GetParticipantDetails resolves the requested IDs. Unknown IDs are
// silently absent from the result.
func (r *StaticRoster) GetParticipantDetails(_ context.Context, ids []string) ([]backend.Participant, error) {
	byID := make(map[string]backend.Participant, len(r.fish))
	for _, f := range r.fish {
		byID[f.ID] = f
	}

	var out []backend.Participant
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// DefaultLanguages resolves every user to the given language.
type DefaultLanguages struct {
	Language string
}

// GetUserLanguage returns the fixed language.
func (l *DefaultLanguages) GetUserLanguage(_ context.Context, _ string) (string, error) {
	return l.Language, nil
}

// LogSink writes displayed lines to the log. Stand-in for a real UI.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging under the given component name.
func NewLogSink() *LogSink {
	return &LogSink{
		logger: slog.Default().With(slog.String("component", "tank.sink")),
	}
}

// Display logs one dialogue line.
func (s *LogSink) Display(participant backend.Participant, text string, displayFor time.Duration) bool {
	s.logger.Info("Fish says",
		slog.String("fish", participant.Name),
		slog.String("text", text),
		slog.Duration("display_for", displayFor),
	)
	return true
}

// Clear logs the screen wipe.
func (s *LogSink) Clear() {
	s.logger.Info("Cleared displayed dialogue")
}

// LogNotifier logs upgrade prompts instead of showing UI.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier logging under the tank component.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{
		logger: slog.Default().With(slog.String("component", "tank.notifier")),
	}
}

// NotifyUsageLimit logs the quota-exceeded prompt.
func (n *LogNotifier) NotifyUsageLimit(count, limit int) {
	n.logger.Info("Daily dialogue limit reached",
		slog.Int("count", count),
		slog.Int("limit", limit),
	)
}
