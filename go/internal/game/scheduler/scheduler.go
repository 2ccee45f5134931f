package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/events"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/outcome"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/settlement"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// RoundStore defines what the scheduler needs from the round store.
// CreateRound must fail with apperr.ErrAlreadyActive when the mode already has an active round,
// and UpdateRoundStatus with apperr.ErrStatusConflict when the current status is not from.
type RoundStore interface {
	CreateRound(ctx context.Context, req store.CreateRoundRequest) (*models.Round, error)
	GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error)
	FindActiveByMode(ctx context.Context, mode string) (*models.Round, error)
	UpdateRoundStatus(ctx context.Context, id uuid.UUID, from, to models.RoundStatus) (*models.Round, error)
	SetRoundOutcome(ctx context.Context, id uuid.UUID, outcome string) error
}

// WagerReader defines what the scheduler needs from the wager store.
type WagerReader interface {
	FindWagersByRound(ctx context.Context, roundID uuid.UUID) ([]models.Wager, error)
}

// SettingsReader exposes operator settings per mode.
type SettingsReader interface {
	GetModeSettings(ctx context.Context, mode string) (models.ModeSettings, error)
}

// OutcomeSelector picks the winning option of a round.
type OutcomeSelector interface {
	Select(ctx context.Context, mode models.Mode, wagers []models.Wager) (string, []outcome.Liability, error)
}

// Settler applies an outcome to a round's wagers.
type Settler interface {
	Settle(ctx context.Context, round models.Round, mode models.Mode, outcome string, wagers []models.Wager) settlement.Report
}

// Dependencies groups the collaborators of a Scheduler.
type Dependencies struct {
	Rounds   RoundStore
	Wagers   WagerReader
	Settings SettingsReader
	Selector OutcomeSelector
	Settler  Settler
	Events   events.Sink
}

// Config tunes the scheduler.
type Config struct {
	Workers    int
	RetryDelay time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		RetryDelay: 5 * time.Second,
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// Scheduler owns the round lifecycle of every mode. It is the only writer of round status.
//
// Each mode cycles RUNNING -> SETTLING -> COMPLETED, and a new round opens after the
// mode's intermission. Close and reopen deadlines are one-shot timers that enqueue a job
// for the worker pool when they fire.
type Scheduler struct {
	deps       Dependencies
	modes      map[string]models.Mode
	modeOrder  []string
	clock      Clock
	cfg        Config
	instanceID string

	// gates serialize round creation and status transitions per mode. Wager acceptance
	// holds the read side so a close cannot read the wager set mid-bet.
	gates map[string]*sync.RWMutex

	workCh chan job

	activeTimers   map[job]*armedTimer
	activeTimersMu sync.Mutex

	lifecycleMu sync.Mutex
	runCtx      context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// New creates a Scheduler for the given modes.
func New(modes []models.Mode, deps Dependencies, cfg Config, opts ...Option) (*Scheduler, error) {
	if deps.Rounds == nil || deps.Wagers == nil || deps.Selector == nil || deps.Settler == nil {
		return nil, errors.New("scheduler requires round, wager, selector and settler dependencies")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}

	s := &Scheduler{
		deps:         deps,
		modes:        make(map[string]models.Mode, len(modes)),
		clock:        clockwork.NewRealClock(),
		cfg:          cfg,
		instanceID:   uuid.New().String()[:8],
		gates:        make(map[string]*sync.RWMutex, len(modes)),
		workCh:       make(chan job, cfg.Workers*2),
		activeTimers: make(map[job]*armedTimer),
	}
	for _, m := range modes {
		if _, dup := s.modes[m.ID]; dup {
			return nil, fmt.Errorf("duplicate mode %q", m.ID)
		}
		s.modes[m.ID] = m
		s.modeOrder = append(s.modeOrder, m.ID)
		s.gates[m.ID] = &sync.RWMutex{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Modes returns the configured modes in configuration order.
func (s *Scheduler) Modes() []models.Mode {
	out := make([]models.Mode, 0, len(s.modeOrder))
	for _, id := range s.modeOrder {
		out = append(out, s.modes[id])
	}
	return out
}

// Mode looks up a configured mode.
func (s *Scheduler) Mode(id string) (models.Mode, bool) {
	m, ok := s.modes[id]
	return m, ok
}

// Now returns the scheduler clock's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Start launches the worker pool and resumes or opens a round for every mode.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	if s.started {
		s.lifecycleMu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(ctx)
	runCtx := s.runCtx
	s.lifecycleMu.Unlock()

	log.Info().
		Str("instance", s.instanceID).
		Int("workers", s.cfg.Workers).
		Int("modes", len(s.modeOrder)).
		Msg("round scheduler started")

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx, i)
	}

	for _, id := range s.modeOrder {
		s.recoverMode(runCtx, s.modes[id])
	}
	return nil
}

// Shutdown cancels every pending timer and waits for in-flight jobs to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.lifecycleMu.Lock()
	if !s.started || s.cancel == nil {
		s.lifecycleMu.Unlock()
		return nil
	}
	s.cancel()
	s.lifecycleMu.Unlock()

	s.cancelAllTimers()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Str("instance", s.instanceID).Msg("round scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// recoverMode re-arms the close timer of a mode's active round, or schedules the first open.
func (s *Scheduler) recoverMode(ctx context.Context, mode models.Mode) {
	active, err := s.deps.Rounds.FindActiveByMode(ctx, mode.ID)
	switch {
	case errors.Is(err, apperr.ErrRoundNotFound):
		s.schedule(ctx, job{kind: jobOpen, mode: mode.ID}, mode.StartDelay)
	case err != nil:
		log.Error().
			Err(err).
			Str("mode", mode.ID).
			Msg("failed to look up active round, retrying")
		s.schedule(ctx, job{kind: jobOpen, mode: mode.ID}, s.cfg.RetryDelay)
	default:
		if err := s.resume(ctx, mode, *active); err != nil {
			log.Error().
				Err(err).
				Str("mode", mode.ID).
				Str("round_id", active.ID.String()).
				Msg("failed to resume active round, retrying")
			s.schedule(ctx, job{kind: jobOpen, mode: mode.ID}, s.cfg.RetryDelay)
		}
	}
}

// resume arms the close timer of an active round that has none, promoting a waiting round first.
func (s *Scheduler) resume(ctx context.Context, mode models.Mode, round models.Round) error {
	if s.hasTimer(job{kind: jobClose, mode: mode.ID, roundID: round.ID}) {
		return nil
	}

	if round.Status == models.RoundStatusWaiting {
		promoted, err := s.transition(ctx, mode.ID, round.ID, models.RoundStatusWaiting, models.RoundStatusRunning)
		if err != nil {
			return fmt.Errorf("failed to promote waiting round: %w", err)
		}
		round = *promoted
		s.emit(ctx, events.RoundOpened, round, nil)
	}

	remaining := round.ClosesAt.Sub(s.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	s.schedule(ctx, job{kind: jobClose, mode: mode.ID, roundID: round.ID}, remaining)

	log.Info().
		Str("mode", mode.ID).
		Str("round_id", round.ID.String()).
		Str("code", round.Code).
		Dur("remaining", remaining).
		Msg("resumed active round")
	return nil
}

// OpenRound creates a running round for mode and arms its close timer.
// It fails with apperr.ErrAlreadyActive if the mode already has an active round.
func (s *Scheduler) OpenRound(ctx context.Context, modeID string) (*models.Round, error) {
	mode, ok := s.modes[modeID]
	if !ok {
		return nil, apperr.ErrUnknownMode
	}

	round, err := s.createRound(ctx, mode)
	if err != nil {
		return round, err
	}

	s.cancelTimer(job{kind: jobOpen, mode: mode.ID})

	log.Info().
		Str("instance", s.instanceID).
		Str("mode", mode.ID).
		Str("round_id", round.ID.String()).
		Str("code", round.Code).
		Time("closes_at", round.ClosesAt).
		Msg("round opened")

	s.emit(ctx, events.RoundOpened, *round, nil)
	return round, nil
}

// createRound inserts the running round and arms its close timer while holding the mode gate.
func (s *Scheduler) createRound(ctx context.Context, mode models.Mode) (*models.Round, error) {
	gate := s.gates[mode.ID]
	gate.Lock()
	defer gate.Unlock()

	active, err := s.deps.Rounds.FindActiveByMode(ctx, mode.ID)
	if err == nil {
		return active, apperr.Wrap(apperr.CodeAlreadyActive, "a round is already active for this mode", fmt.Errorf("round %s", active.Code))
	}
	if !errors.Is(err, apperr.ErrRoundNotFound) {
		return nil, apperr.Storage("failed to find active round", err)
	}

	now := s.clock.Now()
	round, err := s.deps.Rounds.CreateRound(ctx, store.CreateRoundRequest{
		Mode:       mode.ID,
		CodePrefix: mode.CodePrefix,
		Status:     models.RoundStatusRunning,
		StartedAt:  now,
		ClosesAt:   now.Add(mode.RoundDuration),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyActive) {
			return nil, err
		}
		return nil, apperr.Storage("failed to create round", err)
	}

	// Armed only once the round is fully open.
	s.schedule(s.timerContext(ctx), job{kind: jobClose, mode: mode.ID, roundID: round.ID}, mode.RoundDuration)
	return round, nil
}

// transition moves a round between statuses under the mode gate.
func (s *Scheduler) transition(ctx context.Context, modeID string, roundID uuid.UUID, from, to models.RoundStatus) (*models.Round, error) {
	gate := s.gates[modeID]
	gate.Lock()
	defer gate.Unlock()
	return s.deps.Rounds.UpdateRoundStatus(ctx, roundID, from, to)
}

// CloseRound settles a running round, early when called by an operator. A nil outcome lets
// the mode settings or the outcome selector decide. The next round is scheduled after the
// mode's intermission even if settlement fails.
func (s *Scheduler) CloseRound(ctx context.Context, roundID uuid.UUID, forced *string) (*models.Round, error) {
	round, _, err := s.closeRound(ctx, roundID, forced)
	return round, err
}

func (s *Scheduler) closeRound(ctx context.Context, roundID uuid.UUID, forced *string) (*models.Round, bool, error) {
	round, err := s.deps.Rounds.GetRound(ctx, roundID)
	if err != nil {
		if errors.Is(err, apperr.ErrRoundNotFound) {
			return nil, false, err
		}
		return nil, false, apperr.Storage("failed to load round", err)
	}
	mode, ok := s.modes[round.Mode]
	if !ok {
		return nil, false, apperr.ErrUnknownMode
	}
	if forced != nil && !mode.HasOption(*forced) {
		return nil, false, apperr.ErrUnknownOption
	}

	settling, err := s.transition(ctx, mode.ID, roundID, models.RoundStatusRunning, models.RoundStatusSettling)
	if err != nil {
		if errors.Is(err, apperr.ErrStatusConflict) {
			return nil, false, apperr.ErrNotRunning
		}
		return nil, false, apperr.Storage("failed to mark round settling", err)
	}

	s.cancelTimer(job{kind: jobClose, mode: mode.ID, roundID: roundID})
	defer s.schedule(s.timerContext(ctx), job{kind: jobOpen, mode: mode.ID}, mode.Intermission)
	s.emit(ctx, events.RoundSettling, *settling, nil)

	// The round is ours now; finish it even if the caller goes away.
	completed, err := s.settle(context.WithoutCancel(ctx), mode, *settling, forced)
	if err != nil {
		log.Error().
			Err(err).
			Str("mode", mode.ID).
			Str("round_id", roundID.String()).
			Str("code", settling.Code).
			Msg("round left in settling")
		return nil, true, err
	}
	return completed, true, nil
}

func (s *Scheduler) settle(ctx context.Context, mode models.Mode, round models.Round, forced *string) (*models.Round, error) {
	wagers, err := s.deps.Wagers.FindWagersByRound(ctx, round.ID)
	if err != nil {
		return nil, apperr.Storage("failed to load wagers", err)
	}

	result, source, err := s.decide(ctx, mode, wagers, forced)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Rounds.SetRoundOutcome(ctx, round.ID, result); err != nil {
		return nil, apperr.Storage("failed to record outcome", err)
	}
	round.Outcome = &result

	report := s.deps.Settler.Settle(ctx, round, mode, result, wagers)

	completed, err := s.deps.Rounds.UpdateRoundStatus(ctx, round.ID, models.RoundStatusSettling, models.RoundStatusCompleted)
	if err != nil {
		return nil, apperr.Storage("failed to complete round", err)
	}

	log.Info().
		Str("instance", s.instanceID).
		Str("mode", mode.ID).
		Str("round_id", round.ID.String()).
		Str("code", round.Code).
		Str("outcome", result).
		Str("source", source).
		Int("wagers", len(wagers)).
		Msg("round closed")

	s.emit(ctx, events.RoundClosed, *completed, summarize(report))
	return completed, nil
}

// decide returns the outcome and where it came from.
func (s *Scheduler) decide(ctx context.Context, mode models.Mode, wagers []models.Wager, forced *string) (string, string, error) {
	if forced != nil {
		return *forced, "override", nil
	}

	if s.deps.Settings != nil {
		settings, err := s.deps.Settings.GetModeSettings(ctx, mode.ID)
		if err != nil {
			log.Warn().Err(err).Str("mode", mode.ID).Msg("failed to read mode settings, selecting automatically")
		} else if manual, ok := settings.ManualOutcomeFor(); ok {
			if mode.HasOption(manual) {
				return manual, "manual", nil
			}
			log.Warn().Str("mode", mode.ID).Str("manual_outcome", manual).Msg("manual outcome is not a mode option, ignoring")
		}
	}

	result, _, err := s.deps.Selector.Select(ctx, mode, wagers)
	if err != nil {
		return "", "", fmt.Errorf("failed to select outcome: %w", err)
	}
	return result, "selector", nil
}

// WithRunningRound runs fn while the round is guaranteed to stay RUNNING.
// It fails with apperr.ErrNotRunning otherwise.
func (s *Scheduler) WithRunningRound(ctx context.Context, roundID uuid.UUID, fn func(round models.Round, mode models.Mode) error) error {
	round, err := s.deps.Rounds.GetRound(ctx, roundID)
	if err != nil {
		if errors.Is(err, apperr.ErrRoundNotFound) {
			return apperr.ErrNotRunning
		}
		return apperr.Storage("failed to load round", err)
	}
	mode, ok := s.modes[round.Mode]
	if !ok {
		return apperr.ErrUnknownMode
	}

	gate := s.gates[mode.ID]
	gate.RLock()
	defer gate.RUnlock()

	round, err = s.deps.Rounds.GetRound(ctx, roundID)
	if err != nil {
		return apperr.Storage("failed to load round", err)
	}
	if round.Status != models.RoundStatusRunning {
		return apperr.ErrNotRunning
	}
	return fn(*round, mode)
}

func (s *Scheduler) emit(ctx context.Context, typ events.Type, round models.Round, summary *events.SettlementSummary) {
	if s.deps.Events == nil {
		return
	}
	evt := events.RoundEvent{
		ID:         uuid.New(),
		Type:       typ,
		Round:      events.NewRoundState(round, s.clock.Now()),
		Settlement: summary,
		OccurredAt: s.clock.Now(),
	}
	if err := s.deps.Events.HandleRoundEvent(ctx, evt); err != nil {
		log.Error().
			Err(err).
			Str("event_type", string(typ)).
			Str("round_id", round.ID.String()).
			Msg("failed to emit round event")
	}
}

func summarize(report settlement.Report) *events.SettlementSummary {
	summary := &events.SettlementSummary{
		Outcome:     report.Outcome,
		Won:         len(report.Won),
		Lost:        report.Lost,
		Unsettled:   len(report.Unsettled),
		TotalStake:  report.TotalStake.String(),
		TotalPayout: report.TotalPayout.String(),
		Winners:     make([]events.Winner, 0, len(report.Won)),
	}
	for _, w := range report.Won {
		summary.Winners = append(summary.Winners, events.Winner{
			WagerID:   w.ID,
			AccountID: w.AccountID,
			Option:    w.Option,
			Stake:     w.Stake.String(),
			Payout:    w.Payout.String(),
		})
	}
	return summary
}
