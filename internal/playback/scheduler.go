package playback

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanklab/tanktalk/internal/backend"
	"github.com/tanklab/tanktalk/internal/session"
)

// Scheduler tunables. Overridable via Config.
const (
	// DefaultGroupInterval is the cadence of group-chat generation.
	DefaultGroupInterval = 5 * time.Minute

	// DefaultMonologueInterval is the cadence of solo monologues.
	DefaultMonologueInterval = 2 * time.Minute

	// DefaultMessageInterval paces individual lines during playback.
	DefaultMessageInterval = 4 * time.Second

	// DefaultCheckInterval is the cost-control re-evaluation cadence.
	DefaultCheckInterval = 30 * time.Second

	// DefaultMaxInactive pauses generation after this much user idleness.
	DefaultMaxInactive = 10 * time.Minute

	// DefaultMaxRun caps continuous enabled runtime before a pause.
	DefaultMaxRun = 30 * time.Minute

	// DefaultMaxParticipants caps the roster subset per group cycle.
	DefaultMaxParticipants = 4

	// minGroupRoster is the smallest roster a group cycle will run with.
	minGroupRoster = 2
)

// Config holds scheduler configuration.
type Config struct {
	OwnerID           string
	GroupInterval     time.Duration
	MonologueInterval time.Duration
	MessageInterval   time.Duration
	CheckInterval     time.Duration
	MaxInactive       time.Duration
	MaxRun            time.Duration
	MaxParticipants   int
	UpgradeCooldown   time.Duration
	Topics            []string
}

func (c *Config) applyDefaults() {
	if c.GroupInterval <= 0 {
		c.GroupInterval = DefaultGroupInterval
	}
	if c.MonologueInterval <= 0 {
		c.MonologueInterval = DefaultMonologueInterval
	}
	if c.MessageInterval <= 0 {
		c.MessageInterval = DefaultMessageInterval
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.MaxInactive <= 0 {
		c.MaxInactive = DefaultMaxInactive
	}
	if c.MaxRun <= 0 {
		c.MaxRun = DefaultMaxRun
	}
	if c.MaxParticipants <= 0 {
		c.MaxParticipants = DefaultMaxParticipants
	}
	if len(c.Topics) == 0 {
		c.Topics = []string{"life in the tank"}
	}
}

// Stats counts scheduler outcomes since start. Diagnostics only.
type Stats struct {
	Batches         int
	LinesDisplayed  int
	LinesDropped    int
	DisplayFailures int
	CyclesSkipped   int
	CycleFailures   int
}

// Snapshot is a read-only view of the scheduler for diagnostics and UI.
type Snapshot struct {
	IsPlaying        bool
	Paused           bool
	GroupChatEnabled bool
	MonologueEnabled bool
	CurrentTopic     string
	PlaybackCurrent  int
	PlaybackTotal    int
	Stats            Stats
}

// Scheduler drives autonomous dialogue generation and playback. All timers
// live inside; callers interact only through the accessor methods.
type Scheduler struct {
	cfg      Config
	dialogue Dialogue
	roster   RosterProvider
	quota    QuotaChecker
	sink     UISink
	upgrades *upgradeLimiter
	logger   *slog.Logger

	mu              sync.Mutex
	st              state
	ctx             context.Context
	cancel          context.CancelFunc
	groupStop       chan struct{}
	monologueStop   chan struct{}
	drainStop       chan struct{}
	generating      bool
	queue           *Queue
	drainRoster     []backend.Participant
	currentTopic    string
	sessionByRoster map[string]string
	stats           Stats
}

// NewScheduler creates a playback scheduler. quota and notifier may be nil
// (no quota enforcement / no upgrade prompts).
func NewScheduler(cfg Config, dialogue Dialogue, roster RosterProvider, quota QuotaChecker, sink UISink, notifier Notifier) *Scheduler {
	cfg.applyDefaults()

	return &Scheduler{
		cfg:             cfg,
		dialogue:        dialogue,
		roster:          roster,
		quota:           quota,
		sink:            sink,
		upgrades:        newUpgradeLimiter(notifier, cfg.UpgradeCooldown),
		logger:          slog.Default().With(slog.String("component", "playback.scheduler")),
		sessionByRoster: make(map[string]string),
	}
}

// Start completes initialization and launches the cost-control checker, the
// only always-on timer. Features stay off until explicitly enabled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.initialized {
		return nil // Already started
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel

	now := time.Now()
	s.st.initialized = true
	s.st.pageVisible = true
	s.st.costSaving = true
	s.st.paused = true // nothing enabled yet
	s.st.lastActivity = now
	s.st.startTime = now

	go s.runChecker(runCtx)

	return nil
}

// Stop tears down every timer and goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.stopGroupLoopLocked()
	s.stopMonologueLoopLocked()
	s.stopDrainLocked()
	s.st.initialized = false
}

// SetGroupChatEnabled toggles the group-chat generator. Turning it on resets
// the runtime budget; turning it off also stops any in-progress playback and
// clears displayed content.
func (s *Scheduler) SetGroupChatEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.groupEnabled == enabled {
		return
	}
	s.st.groupEnabled = enabled

	if enabled {
		s.st.startTime = time.Now()
		s.recheckPauseLocked()
		if !s.st.paused {
			s.startGroupLoopLocked()
		}
		return
	}

	s.stopGroupLoopLocked()
	s.stopDrainLocked()
	s.queue = nil
	s.drainRoster = nil
	if s.sink != nil {
		s.sink.Clear()
	}
	s.recheckPauseLocked()
}

// SetMonologueEnabled toggles the solo-monologue generator.
func (s *Scheduler) SetMonologueEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.monologueEnabled == enabled {
		return
	}
	s.st.monologueEnabled = enabled

	if enabled {
		s.st.startTime = time.Now()
		s.recheckPauseLocked()
		if !s.st.paused {
			s.startMonologueLoopLocked()
		}
		return
	}

	s.stopMonologueLoopLocked()
	s.recheckPauseLocked()
}

// SetGroupChatInterval changes the group generation cadence, restarting the
// trigger if it is currently installed.
func (s *Scheduler) SetGroupChatInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.GroupInterval = interval
	if s.groupStop != nil {
		s.stopGroupLoopLocked()
		s.startGroupLoopLocked()
	}
}

// SetCostSavingEnabled toggles the inactivity and runtime-budget checks.
// Visibility and feature gating always apply.
func (s *Scheduler) SetCostSavingEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.costSaving = enabled
}

// NotePageVisibility records the host page's visibility. The periodic
// checker applies the consequence.
func (s *Scheduler) NotePageVisibility(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.pageVisible = visible
}

// NoteUserActivity records user interaction for the inactivity check.
func (s *Scheduler) NoteUserActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.lastActivity = time.Now()
}

// TriggerChatNow runs one group-chat cycle immediately, subject to the same
// quota and eligibility checks as the periodic trigger.
func (s *Scheduler) TriggerChatNow() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	s.runGroupCycle(ctx)
}

// Snapshot returns a read-only view of scheduler state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, total := s.queue.Progress()
	return Snapshot{
		IsPlaying:        s.queue != nil && !s.queue.Done(),
		Paused:           s.st.paused,
		GroupChatEnabled: s.st.groupEnabled,
		MonologueEnabled: s.st.monologueEnabled,
		CurrentTopic:     s.currentTopic,
		PlaybackCurrent:  current,
		PlaybackTotal:    total,
		Stats:            s.stats,
	}
}

// Cost-control checker.

func (s *Scheduler) runChecker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.recheckPauseLocked()
			s.mu.Unlock()
		}
	}
}

// recheckPauseLocked applies the shouldPause predicate, tearing down or
// reinstalling feature timers on a transition. Pausing never clears the
// enabled flags; only timers go away.
func (s *Scheduler) recheckPauseLocked() {
	pause := s.st.shouldPause(time.Now(), s.cfg.MaxInactive, s.cfg.MaxRun)
	if pause == s.st.paused {
		return
	}
	s.st.paused = pause

	if pause {
		s.logger.Info("Pausing generation",
			slog.Bool("page_visible", s.st.pageVisible),
			slog.Bool("group_enabled", s.st.groupEnabled),
			slog.Bool("monologue_enabled", s.st.monologueEnabled),
		)
		s.stopGroupLoopLocked()
		s.stopMonologueLoopLocked()
		s.stopDrainLocked()
		return
	}

	s.logger.Info("Resuming generation")
	if s.st.groupEnabled {
		s.startGroupLoopLocked()
	}
	if s.st.monologueEnabled {
		s.startMonologueLoopLocked()
	}
	if s.queue != nil && !s.queue.Done() {
		s.startDrainLocked()
	}
}

// Feature timer plumbing. Each loop is a ticker goroutine with a stop
// channel owned by the scheduler.

func (s *Scheduler) startGroupLoopLocked() {
	if s.groupStop != nil || s.ctx == nil {
		return
	}
	stop := make(chan struct{})
	s.groupStop = stop
	go s.runTriggerLoop(s.ctx, stop, s.cfg.GroupInterval, s.runGroupCycle)
}

func (s *Scheduler) stopGroupLoopLocked() {
	if s.groupStop != nil {
		close(s.groupStop)
		s.groupStop = nil
	}
}

func (s *Scheduler) startMonologueLoopLocked() {
	if s.monologueStop != nil || s.ctx == nil {
		return
	}
	stop := make(chan struct{})
	s.monologueStop = stop
	go s.runTriggerLoop(s.ctx, stop, s.cfg.MonologueInterval, s.runMonologueCycle)
}

func (s *Scheduler) stopMonologueLoopLocked() {
	if s.monologueStop != nil {
		close(s.monologueStop)
		s.monologueStop = nil
	}
}

func (s *Scheduler) runTriggerLoop(ctx context.Context, stop chan struct{}, interval time.Duration, cycle func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

// Group-chat generation cycle.

func (s *Scheduler) runGroupCycle(ctx context.Context) {
	s.mu.Lock()
	if !s.canStartGroupCycleLocked() {
		s.stats.CyclesSkipped++
		s.mu.Unlock()
		return
	}
	s.generating = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.generating = false
		s.mu.Unlock()
	}()

	if !s.checkQuota(ctx) {
		return
	}

	roster, err := s.roster.Roster(ctx)
	if err != nil {
		s.noteCycleFailure(ctx, "roster lookup failed", err, 0)
		return
	}
	if len(roster) < minGroupRoster {
		// Not an error: a lonely tank simply stays quiet this cycle.
		s.mu.Lock()
		s.stats.CyclesSkipped++
		s.mu.Unlock()
		return
	}

	subset := sampleRoster(roster, s.cfg.MaxParticipants)
	topic := s.cfg.Topics[rand.IntN(len(s.cfg.Topics))]
	key := rosterKey(subset)

	s.mu.Lock()
	sessionID := s.sessionByRoster[key]
	s.currentTopic = topic
	s.mu.Unlock()

	result, err := s.dialogue.Send(ctx, session.SendRequest{
		SessionID:      sessionID,
		UserID:         s.cfg.OwnerID,
		ParticipantIDs: participantIDs(subset),
		Topic:          topic,
	})
	if err != nil {
		if session.IsNoValidParticipants(err) {
			s.mu.Lock()
			s.stats.CyclesSkipped++
			s.mu.Unlock()
			return
		}
		if session.IsSessionNotFound(err) {
			// Stale mapping, likely swept. Next cycle starts fresh.
			s.mu.Lock()
			delete(s.sessionByRoster, key)
			s.mu.Unlock()
		}
		s.noteCycleFailure(ctx, "group generation failed", err, len(subset))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionByRoster[key] = result.SessionID
	if !s.st.groupEnabled {
		// Feature switched off while the request was in flight; the
		// disable path already cleared the screen.
		return
	}
	s.queue = NewQueue(result.Lines)
	s.drainRoster = subset
	s.stats.Batches++

	// A response that lands after the checker flipped to paused still keeps
	// its lines; it just waits for resume before any playback timer starts.
	if !s.st.paused {
		s.startDrainLocked()
	}
}

// canStartGroupCycleLocked is the pure half of the cycle decision: no I/O,
// just state. The quota check stays separate because it talks to a store.
func (s *Scheduler) canStartGroupCycleLocked() bool {
	if s.st.paused || !s.st.groupEnabled {
		return false
	}
	// At most one playback in flight. The generating flag covers the window
	// between passing this check and installing the queue, when the generate
	// call is still outstanding.
	if s.generating || s.drainStop != nil || (s.queue != nil && !s.queue.Done()) {
		return false
	}
	return true
}

// checkQuota returns whether generation may proceed. Quota exhaustion is a
// signal, not an error: it emits a rate-limited upgrade prompt and skips.
func (s *Scheduler) checkQuota(ctx context.Context) bool {
	if s.quota == nil {
		return true
	}

	usage, err := s.quota.GetDailyUsage(ctx, s.cfg.OwnerID)
	if err != nil {
		s.noteCycleFailure(ctx, "quota check failed", err, 0)
		return false
	}
	if usage.Exceeded() {
		s.upgrades.Notify(usage.Count, *usage.Limit)
		s.mu.Lock()
		s.stats.CyclesSkipped++
		s.mu.Unlock()
		return false
	}
	return true
}

// Monologue generation cycle: one participant, one line, no queue.

func (s *Scheduler) runMonologueCycle(ctx context.Context) {
	s.mu.Lock()
	if s.st.paused || !s.st.monologueEnabled {
		s.stats.CyclesSkipped++
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if !s.checkQuota(ctx) {
		return
	}

	roster, err := s.roster.Roster(ctx)
	if err != nil {
		s.noteCycleFailure(ctx, "roster lookup failed", err, 0)
		return
	}
	if len(roster) == 0 {
		s.mu.Lock()
		s.stats.CyclesSkipped++
		s.mu.Unlock()
		return
	}

	speaker := roster[rand.IntN(len(roster))]
	topic := s.cfg.Topics[rand.IntN(len(s.cfg.Topics))]
	key := rosterKey([]backend.Participant{speaker})

	s.mu.Lock()
	sessionID := s.sessionByRoster[key]
	s.mu.Unlock()

	result, err := s.dialogue.Send(ctx, session.SendRequest{
		SessionID:      sessionID,
		UserID:         s.cfg.OwnerID,
		ParticipantIDs: []string{speaker.ID},
		SpeakerName:    speaker.Name,
		Topic:          topic,
	})
	if err != nil {
		if session.IsSessionNotFound(err) {
			s.mu.Lock()
			delete(s.sessionByRoster, key)
			s.mu.Unlock()
		}
		if !session.IsNoValidParticipants(err) {
			s.noteCycleFailure(ctx, "monologue generation failed", err, 1)
		}
		return
	}

	s.mu.Lock()
	s.sessionByRoster[key] = result.SessionID
	paused := s.st.paused
	s.mu.Unlock()

	if paused || len(result.Lines) == 0 {
		return
	}

	line := result.Lines[0]
	s.displayLine(line, []backend.Participant{speaker})
}

// Playback drain: one line per MessageInterval until the queue empties.

func (s *Scheduler) startDrainLocked() {
	if s.drainStop != nil || s.ctx == nil {
		return
	}
	stop := make(chan struct{})
	s.drainStop = stop
	go s.runDrain(s.ctx, stop)
}

func (s *Scheduler) stopDrainLocked() {
	if s.drainStop != nil {
		close(s.drainStop)
		s.drainStop = nil
	}
}

func (s *Scheduler) runDrain(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.MessageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if !s.drainOne(stop) {
				return
			}
		}
	}
}

// drainOne displays the next queued line. Returns false once the queue is
// exhausted, which ends this drain and frees the next generation cycle.
func (s *Scheduler) drainOne(stop chan struct{}) bool {
	s.mu.Lock()
	if s.drainStop != stop {
		// Superseded or stopped while waiting on the ticker.
		s.mu.Unlock()
		return false
	}

	line, ok := s.queue.Next()
	if !ok {
		s.drainStop = nil
		s.mu.Unlock()
		return false
	}
	roster := s.drainRoster
	s.mu.Unlock()

	s.displayLine(line, roster)
	return true
}

// displayLine resolves the speaker and hands the line to the UI sink.
// An unresolved speaker drops the line; playback keeps going.
func (s *Scheduler) displayLine(line backend.DialogueLine, roster []backend.Participant) {
	participant, ok := resolveSpeaker(line, roster)
	if !ok {
		s.logger.Warn("Dropping line with unknown speaker",
			slog.String("speaker_id", line.SpeakerID),
			slog.String("speaker_name", line.SpeakerName),
		)
		s.mu.Lock()
		s.stats.LinesDropped++
		s.mu.Unlock()
		return
	}

	displayed := true
	if s.sink != nil {
		displayed = s.sink.Display(participant, line.Text, s.cfg.MessageInterval)
	}

	s.mu.Lock()
	if displayed {
		s.stats.LinesDisplayed++
	} else {
		s.stats.DisplayFailures++
	}
	s.mu.Unlock()
}

func (s *Scheduler) noteCycleFailure(ctx context.Context, msg string, err error, rosterSize int) {
	s.logger.WarnContext(ctx, msg,
		slog.Int("roster_size", rosterSize),
		slog.Any("error", err),
	)
	s.mu.Lock()
	s.stats.CycleFailures++
	s.mu.Unlock()
}

// Helpers.

// sampleRoster returns the roster unchanged when it fits within limit, and a
// uniformly random subset of exactly limit otherwise. The randomization is
// for variety; no fairness guarantee across cycles.
func sampleRoster(roster []backend.Participant, limit int) []backend.Participant {
	if len(roster) <= limit {
		return roster
	}

	shuffled := append([]backend.Participant(nil), roster...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:limit]
}

func participantIDs(roster []backend.Participant) []string {
	ids := make([]string, len(roster))
	for i, p := range roster {
		ids[i] = p.ID
	}
	return ids
}

// rosterKey builds an order-independent identity for a participant subset.
// Sessions are scoped to one fixed roster, so the key indexes the session
// reused across cycles that pick the same subset.
func rosterKey(roster []backend.Participant) string {
	ids := participantIDs(roster)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// resolveSpeaker matches a line to its participant: by ID first, then by
// case-insensitive name.
func resolveSpeaker(line backend.DialogueLine, roster []backend.Participant) (backend.Participant, bool) {
	if line.SpeakerID != "" {
		for _, p := range roster {
			if p.ID == line.SpeakerID {
				return p, true
			}
		}
	}
	if line.SpeakerName != "" {
		for _, p := range roster {
			if strings.EqualFold(p.Name, line.SpeakerName) {
				return p, true
			}
		}
	}
	return backend.Participant{}, false
}
