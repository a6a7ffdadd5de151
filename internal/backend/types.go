package backend

import "time"

// Default client tunables. Overridable via Config.
const (
	// DefaultRequestTimeout bounds a single HTTP round-trip to the service.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultPollInterval is the delay between job-status polls.
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxPollAttempts caps the polling loop before GenerationTimeout.
	DefaultMaxPollAttempts = 30
)

// Config holds configuration for the dialogue service client.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Participant is one roster entry passed to the service. The roster, not
// prompt text, is the authoritative source of who may speak.
type Participant struct {
	ID          string
	Name        string
	Personality string
	Bio         string
}

// DialogueLine is one attributed utterance from a generation call.
// Immutable once returned; Sequence is 1-based and defines display order
// within its batch.
type DialogueLine struct {
	SpeakerID   string
	SpeakerName string
	Text        string
	Sequence    int
}

// GenerateRequest describes one generation turn.
type GenerateRequest struct {
	Topic        string
	Participants []Participant
	ExternalID   string
	UserMessage  string
	SpeakerName  string
	Language     string
}

// GenerateResult is the normalized outcome of one generation call,
// regardless of whether the service answered synchronously or via a job.
type GenerateResult struct {
	Lines []DialogueLine
}
