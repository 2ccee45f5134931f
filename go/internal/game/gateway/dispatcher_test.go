package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/accounts"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/gateway"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/outcome"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/scheduler"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/settlement"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store/memory"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu        sync.Mutex
	accountID uuid.UUID
	bound     bool
}

func (s *fakeSession) AccountID() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID, s.bound
}

func (s *fakeSession) Bind(accountID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountID = accountID
	s.bound = true
}

func authedSession(id uuid.UUID) *fakeSession {
	return &fakeSession{accountID: id, bound: true}
}

type fixture struct {
	store      *memory.Store
	sched      *scheduler.Scheduler
	dispatcher *gateway.Dispatcher
	round      *models.Round
	alice      models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	st := memory.NewWithClock(fc)

	sched, err := scheduler.New(
		[]models.Mode{{
			ID:            "blackWhite",
			CodePrefix:    "BW",
			Options:       []string{"Black", "White"},
			Multiplier:    decimal.RequireFromString("1.9"),
			RoundDuration: 15 * time.Minute,
			Intermission:  30 * time.Second,
		}},
		scheduler.Dependencies{
			Rounds:   st,
			Wagers:   st,
			Settings: st,
			Selector: outcome.NewSelector(st, outcome.WithSeed(7)),
			Settler:  settlement.NewEngine(st, st),
		},
		scheduler.DefaultConfig(),
		scheduler.WithClock(fc),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	round, err := sched.OpenRound(ctx, "blackWhite")
	require.NoError(t, err)

	hash, err := accounts.HashPassword("s3cret")
	require.NoError(t, err)
	alice := st.PutAccount(models.Account{
		Username:     "alice",
		PasswordHash: hash,
		Balance:      decimal.NewFromInt(100),
	})

	placer := gateway.NewBetPlacer(sched, st, st)
	return &fixture{
		store:      st,
		sched:      sched,
		dispatcher: gateway.NewDispatcher(accounts.NewApp(st), placer),
		round:      round,
		alice:      alice,
	}
}

func (f *fixture) bet(t *testing.T, sess gateway.Session, amount, color string) gateway.ServerMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"type":     "BET",
		"gameId":   f.round.ID.String(),
		"amount":   json.Number(amount),
		"color":    color,
		"gameMode": "blackWhite",
	})
	require.NoError(t, err)
	return f.dispatcher.Dispatch(context.Background(), sess, raw)
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	b, err := f.store.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestDispatchRejectsBadMessages(t *testing.T) {
	f := newFixture(t)
	sess := &fakeSession{}

	reply := f.dispatcher.Dispatch(context.Background(), sess, []byte(`{not json`))
	assert.Equal(t, gateway.MessageError, reply.Type)
	assert.Equal(t, "Invalid message format", reply.Message)
	assert.Equal(t, apperr.CodeInvalidMessage, reply.Code)

	reply = f.dispatcher.Dispatch(context.Background(), sess, []byte(`{"type":"DANCE"}`))
	assert.Equal(t, gateway.MessageError, reply.Type)
	assert.Equal(t, "Unknown message type", reply.Message)
	assert.Equal(t, apperr.CodeUnknownMessage, reply.Code)
}

func TestAuth(t *testing.T) {
	f := newFixture(t)

	t.Run("wrong password does not bind", func(t *testing.T) {
		sess := &fakeSession{}
		reply := f.dispatcher.Dispatch(context.Background(), sess, []byte(`{"type":"AUTH","username":"alice","password":"nope"}`))
		assert.Equal(t, gateway.MessageAuthFailed, reply.Type)
		assert.Equal(t, "Invalid credentials", reply.Message)
		_, bound := sess.AccountID()
		assert.False(t, bound)
	})

	t.Run("success binds and hides the hash", func(t *testing.T) {
		sess := &fakeSession{}
		reply := f.dispatcher.Dispatch(context.Background(), sess, []byte(`{"type":"AUTH","username":"alice","password":"s3cret"}`))
		require.Equal(t, gateway.MessageAuthSuccess, reply.Type)
		require.NotNil(t, reply.Account)
		assert.Equal(t, f.alice.ID, reply.Account.ID)

		id, bound := sess.AccountID()
		assert.True(t, bound)
		assert.Equal(t, f.alice.ID, id)

		data, err := json.Marshal(reply)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "$2a$")
	})
}

func TestBetRequiresAuth(t *testing.T) {
	f := newFixture(t)
	reply := f.bet(t, &fakeSession{}, "10", "Black")
	assert.Equal(t, gateway.MessageBetFailed, reply.Type)
	assert.Equal(t, apperr.CodeNotAuthenticated, reply.Code)
}

func TestBetPlaced(t *testing.T) {
	f := newFixture(t)
	reply := f.bet(t, authedSession(f.alice.ID), "40", "White")

	require.Equal(t, gateway.MessageBetPlaced, reply.Type, reply.Message)
	require.NotNil(t, reply.Wager)
	assert.Equal(t, models.WagerStatusPending, reply.Wager.Status)
	assert.Equal(t, "White", reply.Wager.Option)
	assert.True(t, decimal.NewFromInt(60).Equal(*reply.Balance))
	assert.True(t, decimal.NewFromInt(60).Equal(f.balance(t, f.alice.ID)))

	wagers, err := f.store.FindWagersByRound(context.Background(), f.round.ID)
	require.NoError(t, err)
	assert.Len(t, wagers, 1)

	entries, err := f.store.LedgerEntries(context.Background(), f.alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerEntryStake, entries[0].Kind)
}

func TestBetValidation(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		color  string
		mode   string
		code   apperr.Code
	}{
		{name: "unknown option", amount: "10", color: "Green", mode: "blackWhite", code: apperr.CodeUnknownOption},
		{name: "insufficient funds", amount: "100.01", color: "Black", mode: "blackWhite", code: apperr.CodeInsufficientFunds},
		{name: "zero amount", amount: "0", color: "Black", mode: "blackWhite", code: apperr.CodeInvalidAmount},
		{name: "negative amount", amount: "-5", color: "Black", mode: "blackWhite", code: apperr.CodeInvalidAmount},
		{name: "mode mismatch", amount: "10", color: "Black", mode: "tenColors", code: apperr.CodeModeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			raw, err := json.Marshal(map[string]any{
				"type":     "BET",
				"gameId":   f.round.ID.String(),
				"amount":   json.Number(tt.amount),
				"color":    tt.color,
				"gameMode": tt.mode,
			})
			require.NoError(t, err)

			reply := f.dispatcher.Dispatch(context.Background(), authedSession(f.alice.ID), raw)
			assert.Equal(t, gateway.MessageBetFailed, reply.Type)
			assert.Equal(t, tt.code, reply.Code)

			assert.True(t, decimal.NewFromInt(100).Equal(f.balance(t, f.alice.ID)))
			wagers, err := f.store.FindWagersByRound(context.Background(), f.round.ID)
			require.NoError(t, err)
			assert.Empty(t, wagers)
		})
	}
}

func TestBetOnClosedRoundCreatesNoWager(t *testing.T) {
	f := newFixture(t)
	_, err := f.sched.CloseRound(context.Background(), f.round.ID, nil)
	require.NoError(t, err)

	reply := f.bet(t, authedSession(f.alice.ID), "10", "Black")
	assert.Equal(t, gateway.MessageBetFailed, reply.Type)
	assert.Equal(t, apperr.CodeNotRunning, reply.Code)
	assert.Equal(t, "Game is not currently running", reply.Message)

	wagers, err := f.store.FindWagersByRound(context.Background(), f.round.ID)
	require.NoError(t, err)
	assert.Empty(t, wagers)
	assert.True(t, decimal.NewFromInt(100).Equal(f.balance(t, f.alice.ID)))
}

func TestBetOnUnknownRound(t *testing.T) {
	f := newFixture(t)
	raw := []byte(`{"type":"BET","gameId":"` + uuid.NewString() + `","amount":5,"color":"Black","gameMode":"blackWhite"}`)
	reply := f.dispatcher.Dispatch(context.Background(), authedSession(f.alice.ID), raw)
	assert.Equal(t, apperr.CodeNotRunning, reply.Code)

	reply = f.dispatcher.Dispatch(context.Background(), authedSession(f.alice.ID), []byte(`{"type":"BET","gameId":"BW0001","amount":5,"color":"Black"}`))
	assert.Equal(t, apperr.CodeNotRunning, reply.Code)
}

func TestConcurrentBetsAcceptOnlyWhatFits(t *testing.T) {
	f := newFixture(t)
	sess := authedSession(f.alice.ID)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := f.bet(t, sess, "30", "Black")
			mu.Lock()
			defer mu.Unlock()
			switch reply.Code {
			case "":
				placed++
			case apperr.CodeInsufficientFunds:
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, placed)
	assert.Equal(t, 7, rejected)
	assert.True(t, decimal.NewFromInt(10).Equal(f.balance(t, f.alice.ID)))

	wagers, err := f.store.FindWagersByRound(context.Background(), f.round.ID)
	require.NoError(t, err)
	assert.Len(t, wagers, 3)
}

type brokenWagers struct{}

func (brokenWagers) CreateWager(context.Context, models.Wager) (*models.Wager, error) {
	return nil, errors.New("disk full")
}

func TestBetRefundsWhenWagerInsertFails(t *testing.T) {
	f := newFixture(t)
	placer := gateway.NewBetPlacer(f.sched, f.store, brokenWagers{})

	_, balance, err := placer.Place(context.Background(), f.alice.ID, gateway.BetRequest{
		GameID:   f.round.ID.String(),
		Amount:   decimal.NewFromInt(25),
		Color:    "Black",
		GameMode: "blackWhite",
	})
	assert.ErrorIs(t, err, apperr.New(apperr.CodeStorage, ""))
	assert.True(t, decimal.NewFromInt(100).Equal(balance))
	assert.True(t, decimal.NewFromInt(100).Equal(f.balance(t, f.alice.ID)))

	entries, err := f.store.LedgerEntries(context.Background(), f.alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.LedgerEntryStake, entries[0].Kind)
	assert.Equal(t, models.LedgerEntryRefund, entries[1].Kind)

	d := gateway.NewDispatcher(accounts.NewApp(f.store), placer)
	reply := d.Dispatch(context.Background(), authedSession(f.alice.ID), []byte(`{"type":"BET","gameId":"`+f.round.ID.String()+`","amount":5,"color":"Black"}`))
	assert.Equal(t, gateway.MessageBetFailed, reply.Type)
	assert.Equal(t, "Error placing bet", reply.Message)
}

type brokenAuth struct{}

func (brokenAuth) Authenticate(context.Context, string, string) (*models.Account, error) {
	var sessions map[string]int
	sessions["alice"]++
	return nil, nil
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	f := newFixture(t)
	d := gateway.NewDispatcher(brokenAuth{}, gateway.NewBetPlacer(f.sched, f.store, f.store))
	sess := &fakeSession{}

	reply := d.Dispatch(context.Background(), sess, []byte(`{"type":"AUTH","username":"alice","password":"s3cret"}`))
	assert.Equal(t, gateway.MessageError, reply.Type)
	assert.Equal(t, "Internal error", reply.Message)
	assert.Equal(t, apperr.CodeUnknown, reply.Code)

	// The same dispatcher keeps serving.
	reply = d.Dispatch(context.Background(), sess, []byte(`{"type":"DANCE"}`))
	assert.Equal(t, gateway.MessageError, reply.Type)
	assert.Equal(t, apperr.CodeUnknownMessage, reply.Code)
}
