package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/events"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/outcome"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/scheduler"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/settlement"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store/memory"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func blackWhite() models.Mode {
	return models.Mode{
		ID:            "blackWhite",
		CodePrefix:    "BW",
		Options:       []string{"Black", "White"},
		Multiplier:    decimal.RequireFromString("1.9"),
		RoundDuration: 15 * time.Minute,
		Intermission:  30 * time.Second,
	}
}

type recordingSink struct {
	mu  sync.Mutex
	got []events.RoundEvent
}

func (r *recordingSink) HandleRoundEvent(_ context.Context, e events.RoundEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return nil
}

func (r *recordingSink) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.got))
	for i, e := range r.got {
		out[i] = e.Type
	}
	return out
}

// flakyWagers fails every wager lookup while failing is set.
type flakyWagers struct {
	*memory.Store
	mu      sync.Mutex
	failing bool
}

func (f *flakyWagers) FindWagersByRound(ctx context.Context, roundID uuid.UUID) ([]models.Wager, error) {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return nil, errors.New("connection refused")
	}
	return f.Store.FindWagersByRound(ctx, roundID)
}

type harness struct {
	sched *scheduler.Scheduler
	store *memory.Store
	clock *clockwork.FakeClock
	sink  *recordingSink
}

func newHarness(t *testing.T, wagers scheduler.WagerReader, st *memory.Store, fc *clockwork.FakeClock) *harness {
	t.Helper()
	sink := &recordingSink{}
	sched, err := scheduler.New(
		[]models.Mode{blackWhite()},
		scheduler.Dependencies{
			Rounds:   st,
			Wagers:   wagers,
			Settings: st,
			Selector: outcome.NewSelector(st, outcome.WithSeed(1)),
			Settler:  settlement.NewEngine(st, st),
			Events:   sink,
		},
		scheduler.Config{Workers: 2, RetryDelay: time.Second},
		scheduler.WithClock(fc),
	)
	require.NoError(t, err)
	return &harness{sched: sched, store: st, clock: fc, sink: sink}
}

func defaultHarness(t *testing.T) *harness {
	fc := clockwork.NewFakeClockAt(t0)
	st := memory.NewWithClock(fc)
	return newHarness(t, st, st, fc)
}

func (h *harness) start(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(func() {
		_ = h.sched.Shutdown(context.Background())
		cancel()
	})
	require.NoError(t, h.sched.Start(ctx))
	return ctx
}

func (h *harness) active(t *testing.T, ctx context.Context) models.Round {
	t.Helper()
	r, err := h.store.FindActiveByMode(ctx, "blackWhite")
	require.NoError(t, err)
	return *r
}

func TestRoundCycle(t *testing.T) {
	h := defaultHarness(t)
	ctx := h.start(t)

	// close timer of the first round
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	first := h.active(t, ctx)
	assert.Equal(t, models.RoundStatusRunning, first.Status)
	assert.Equal(t, "BW0001", first.Code)
	assert.Equal(t, t0.Add(15*time.Minute), first.ClosesAt)

	h.clock.Advance(15 * time.Minute)
	// reopen timer, armed once the close finished
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	closed, err := h.store.GetRound(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCompleted, closed.Status)
	require.NotNil(t, closed.Outcome)
	assert.Contains(t, []string{"Black", "White"}, *closed.Outcome)

	_, err = h.store.FindActiveByMode(ctx, "blackWhite")
	assert.ErrorIs(t, err, apperr.ErrRoundNotFound)

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	second := h.active(t, ctx)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "BW0002", second.Code)
	assert.Equal(t, t0.Add(15*time.Minute+30*time.Second), second.StartedAt)

	assert.Eventually(t, func() bool {
		return len(h.sink.types()) == 4
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []events.Type{events.RoundOpened, events.RoundSettling, events.RoundClosed, events.RoundOpened}, h.sink.types())
}

func TestCloseRoundEarlySettlesAndCancelsTimer(t *testing.T) {
	h := defaultHarness(t)
	ctx := h.start(t)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	round := h.active(t, ctx)

	alice := h.store.PutAccount(models.Account{Username: "alice", Balance: decimal.Zero})
	bob := h.store.PutAccount(models.Account{Username: "bob", Balance: decimal.Zero})
	_, err := h.store.CreateWager(ctx, models.Wager{AccountID: alice.ID, RoundID: round.ID, Mode: round.Mode, Option: "Black", Stake: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = h.store.CreateWager(ctx, models.Wager{AccountID: bob.ID, RoundID: round.ID, Mode: round.Mode, Option: "White", Stake: decimal.NewFromInt(30)})
	require.NoError(t, err)

	closed, err := h.sched.CloseRound(ctx, round.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, closed.Outcome)
	assert.Equal(t, "White", *closed.Outcome)
	assert.Equal(t, models.RoundStatusCompleted, closed.Status)

	bobBalance, err := h.store.GetBalance(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(57).Equal(bobBalance), "bob balance %s", bobBalance)

	_, err = h.sched.CloseRound(ctx, round.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrNotRunning)

	// Passing the original deadline must not close anything twice.
	h.clock.Advance(15 * time.Minute)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	next := h.active(t, ctx)
	assert.Equal(t, "BW0002", next.Code)

	bobBalance, err = h.store.GetBalance(ctx, bob.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(57).Equal(bobBalance))
}

func TestCloseRoundWithForcedOutcome(t *testing.T) {
	h := defaultHarness(t)
	ctx := h.start(t)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	round := h.active(t, ctx)

	bad := "Purple"
	_, err := h.sched.CloseRound(ctx, round.ID, &bad)
	assert.ErrorIs(t, err, apperr.ErrUnknownOption)
	assert.Equal(t, models.RoundStatusRunning, h.active(t, ctx).Status)

	black := "Black"
	closed, err := h.sched.CloseRound(ctx, round.ID, &black)
	require.NoError(t, err)
	assert.Equal(t, "Black", *closed.Outcome)
}

func TestManualResultMode(t *testing.T) {
	h := defaultHarness(t)
	manual := "Black"
	_, err := h.store.UpsertModeSettings(context.Background(), models.ModeSettings{
		Mode:          "blackWhite",
		ResultMode:    models.ResultModeManual,
		ManualOutcome: &manual,
	})
	require.NoError(t, err)

	ctx := h.start(t)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	round := h.active(t, ctx)

	// White has no wagers and would win automatically.
	acct := h.store.PutAccount(models.Account{Username: "carol"})
	_, err = h.store.CreateWager(ctx, models.Wager{AccountID: acct.ID, RoundID: round.ID, Mode: round.Mode, Option: "Black", Stake: decimal.NewFromInt(5)})
	require.NoError(t, err)

	h.clock.Advance(15 * time.Minute)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	closed, err := h.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, "Black", *closed.Outcome)
}

func TestOpenRoundRejectsSecondActiveRound(t *testing.T) {
	h := defaultHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		opened    int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.sched.OpenRound(ctx, "blackWhite")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, apperr.ErrAlreadyActive):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, 19, conflicts)

	active, err := h.store.ListRoundsByStatus(ctx, models.RoundStatusWaiting, models.RoundStatusRunning)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestOpenRoundUnknownMode(t *testing.T) {
	h := defaultHarness(t)
	_, err := h.sched.OpenRound(context.Background(), "roulette")
	assert.ErrorIs(t, err, apperr.ErrUnknownMode)
}

func TestWithRunningRoundRejectsClosedRound(t *testing.T) {
	h := defaultHarness(t)
	ctx := h.start(t)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	round := h.active(t, ctx)

	called := false
	err := h.sched.WithRunningRound(ctx, round.ID, func(r models.Round, m models.Mode) error {
		called = true
		assert.Equal(t, round.ID, r.ID)
		assert.Equal(t, "blackWhite", m.ID)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	_, err = h.sched.CloseRound(ctx, round.ID, nil)
	require.NoError(t, err)

	called = false
	err = h.sched.WithRunningRound(ctx, round.ID, func(models.Round, models.Mode) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrNotRunning)
	assert.False(t, called)

	err = h.sched.WithRunningRound(ctx, uuid.New(), func(models.Round, models.Mode) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrNotRunning)
}

func TestStartClosesOverdueRound(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	st := memory.NewWithClock(fc)
	stale, err := st.CreateRound(context.Background(), store.CreateRoundRequest{
		Mode:       "blackWhite",
		CodePrefix: "BW",
		Status:     models.RoundStatusRunning,
		StartedAt:  t0.Add(-20 * time.Minute),
		ClosesAt:   t0.Add(-5 * time.Minute),
	})
	require.NoError(t, err)

	h := newHarness(t, st, st, fc)
	ctx := h.start(t)

	// reopen timer after the overdue round was closed
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	closed, err := st.GetRound(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCompleted, closed.Status)

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, "BW0002", h.active(t, ctx).Code)
}

func TestStartResumesRunningRound(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	st := memory.NewWithClock(fc)
	running, err := st.CreateRound(context.Background(), store.CreateRoundRequest{
		Mode:       "blackWhite",
		CodePrefix: "BW",
		Status:     models.RoundStatusRunning,
		StartedAt:  t0.Add(-5 * time.Minute),
		ClosesAt:   t0.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	h := newHarness(t, st, st, fc)
	ctx := h.start(t)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	h.clock.Advance(9 * time.Minute)
	assert.Equal(t, running.ID, h.active(t, ctx).ID)

	h.clock.Advance(time.Minute)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	closed, err := st.GetRound(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCompleted, closed.Status)
}

func TestCycleSurvivesSettlementFailure(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	st := memory.NewWithClock(fc)
	wagers := &flakyWagers{Store: st, failing: true}
	h := newHarness(t, wagers, st, fc)
	ctx := h.start(t)

	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	first := h.active(t, ctx)

	h.clock.Advance(15 * time.Minute)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	stuck, err := st.GetRound(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusSettling, stuck.Status)

	// Clients see the round leave RUNNING even though it never completed.
	assert.Equal(t, []events.Type{events.RoundOpened, events.RoundSettling}, h.sink.types())
	h.sink.mu.Lock()
	last := h.sink.got[len(h.sink.got)-1]
	h.sink.mu.Unlock()
	assert.Equal(t, string(models.RoundStatusSettling), last.Round.Status)
	assert.Equal(t, first.ID.String(), last.Round.ID)

	wagers.mu.Lock()
	wagers.failing = false
	wagers.mu.Unlock()

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, "BW0002", h.active(t, ctx).Code)
}

func TestShutdownCancelsTimers(t *testing.T) {
	h := defaultHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.sched.Start(ctx))
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	require.NoError(t, h.sched.Shutdown(ctx))

	round := h.active(t, ctx)
	h.clock.Advance(time.Hour)
	// Nothing is left to close the round.
	time.Sleep(20 * time.Millisecond)
	again, err := h.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusRunning, again.Status)
}

// panickySettler crashes on its first call and delegates afterwards.
type panickySettler struct {
	next  scheduler.Settler
	mu    sync.Mutex
	calls int
}

func (p *panickySettler) Settle(ctx context.Context, round models.Round, mode models.Mode, result string, wagers []models.Wager) settlement.Report {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()
	if first {
		var byAccount map[uuid.UUID]int
		byAccount[round.ID]++
	}
	return p.next.Settle(ctx, round, mode, result, wagers)
}

func TestCycleSurvivesPanicDuringClose(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	st := memory.NewWithClock(fc)
	settler := &panickySettler{next: settlement.NewEngine(st, st)}
	sched, err := scheduler.New(
		[]models.Mode{blackWhite()},
		scheduler.Dependencies{
			Rounds:   st,
			Wagers:   st,
			Settings: st,
			Selector: outcome.NewSelector(st, outcome.WithSeed(1)),
			Settler:  settler,
		},
		scheduler.Config{Workers: 2, RetryDelay: time.Second},
		scheduler.WithClock(fc),
	)
	require.NoError(t, err)
	h := &harness{sched: sched, store: st, clock: fc, sink: &recordingSink{}}
	ctx := h.start(t)

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	first := h.active(t, ctx)

	fc.Advance(15 * time.Minute)
	// reopen timer and the retried close
	require.NoError(t, fc.BlockUntilContext(ctx, 2))

	stuck, err := st.GetRound(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusSettling, stuck.Status)

	fc.Advance(30 * time.Second)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	second := h.active(t, ctx)
	assert.Equal(t, "BW0002", second.Code)

	fc.Advance(15 * time.Minute)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	closed, err := st.GetRound(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusCompleted, closed.Status)
}
