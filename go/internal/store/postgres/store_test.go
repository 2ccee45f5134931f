package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStore connects to TEST_DATABASE_URL and migrates a throwaway schema.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	schema := fmt.Sprintf("test_%s", uuid.New().String()[:8])
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	st := postgres.New(pool)
	require.NoError(t, st.Migrate(ctx))
	return st
}

func createRound(t *testing.T, st *postgres.Store, mode string) *models.Round {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	r, err := st.CreateRound(context.Background(), store.CreateRoundRequest{
		Mode:       mode,
		CodePrefix: "BW",
		Status:     models.RoundStatusRunning,
		StartedAt:  now,
		ClosesAt:   now.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	return r
}

func TestRoundLifecycle(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	first := createRound(t, st, "blackWhite")
	assert.Equal(t, "BW0001", first.Code)

	_, err := st.CreateRound(ctx, store.CreateRoundRequest{Mode: "blackWhite", CodePrefix: "BW", Status: models.RoundStatusRunning, StartedAt: time.Now(), ClosesAt: time.Now()})
	assert.ErrorIs(t, err, apperr.ErrAlreadyActive)

	active, err := st.FindActiveByMode(ctx, "blackWhite")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	_, err = st.UpdateRoundStatus(ctx, first.ID, models.RoundStatusSettling, models.RoundStatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrStatusConflict)

	_, err = st.UpdateRoundStatus(ctx, first.ID, models.RoundStatusRunning, models.RoundStatusSettling)
	require.NoError(t, err)
	require.NoError(t, st.SetRoundOutcome(ctx, first.ID, "White"))
	done, err := st.UpdateRoundStatus(ctx, first.ID, models.RoundStatusSettling, models.RoundStatusCompleted)
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "White", *done.Outcome)

	_, err = st.FindActiveByMode(ctx, "blackWhite")
	assert.ErrorIs(t, err, apperr.ErrRoundNotFound)

	second := createRound(t, st, "blackWhite")
	assert.Equal(t, "BW0002", second.Code)

	last, err := st.LastCompletedByMode(ctx)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, first.ID, last[0].ID)

	_, err = st.GetRound(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrRoundNotFound)
}

func TestLedgerAndSettlement(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertMaster(ctx, models.MasterUser{Code: "M1", Username: "master", Percentage: decimal.NewFromInt(10)}))
	acct, err := st.UpsertAccount(ctx, models.Account{
		Username:     "alice",
		PasswordHash: "hash",
		MasterCode:   "M1",
		Balance:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	rate, err := st.RateForAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(rate))

	round := createRound(t, st, "blackWhite")

	// ten concurrent debits of 30 against 100: only three fit
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wagerID := uuid.New()
			if _, err := st.DebitIfSufficient(ctx, acct.ID, decimal.NewFromInt(30), wagerID); err != nil {
				assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
				return
			}
			_, err := st.CreateWager(ctx, models.Wager{ID: wagerID, AccountID: acct.ID, RoundID: round.ID, Mode: "blackWhite", Option: "Black", Stake: decimal.NewFromInt(30)})
			assert.NoError(t, err)
			mu.Lock()
			accepted++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, accepted)

	balance, err := st.GetBalance(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(balance), "balance %s", balance)

	wagers, err := st.FindWagersByRound(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, wagers, 3)

	require.NoError(t, st.UpdateWagerSettlement(ctx, wagers[0].ID, models.WagerStatusWon, decimal.NewFromInt(57)))
	assert.ErrorIs(t, st.UpdateWagerSettlement(ctx, wagers[0].ID, models.WagerStatusLost, decimal.Zero), apperr.ErrAlreadySettled)
	assert.ErrorIs(t, st.UpdateWagerSettlement(ctx, uuid.New(), models.WagerStatusLost, decimal.Zero), apperr.ErrWagerNotFound)

	balance, err = st.Credit(ctx, acct.ID, decimal.NewFromInt(57), models.LedgerEntryPayout, wagers[0].ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(67).Equal(balance))

	_, err = st.Credit(ctx, uuid.New(), decimal.NewFromInt(1), models.LedgerEntryPayout, uuid.Nil)
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)

	require.NoError(t, st.FlagWagerForReconciliation(ctx, wagers[1].ID, "credit payout: timeout"))
	flagged, err := st.ListWagersNeedingReconciliation(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "credit payout: timeout", flagged[0].ReconcileReason)

	entries, err := st.LedgerEntries(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestModeSettings(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	settings, err := st.GetModeSettings(ctx, "blackWhite")
	require.NoError(t, err)
	assert.Equal(t, models.ResultModeAutomatic, settings.ResultMode)

	black := "Black"
	saved, err := st.UpsertModeSettings(ctx, models.ModeSettings{Mode: "blackWhite", ResultMode: models.ResultModeManual, ManualOutcome: &black})
	require.NoError(t, err)
	assert.Equal(t, models.ResultModeManual, saved.ResultMode)

	settings, err = st.GetModeSettings(ctx, "blackWhite")
	require.NoError(t, err)
	outcome, ok := settings.ManualOutcomeFor()
	assert.True(t, ok)
	assert.Equal(t, "Black", outcome)
}
