package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const wagerColumns = `id, account_id, round_id, mode, option, stake, status, payout,
	needs_reconciliation, reconcile_reason, created_at, settled_at`

func scanWager(row pgx.Row) (*models.Wager, error) {
	var w models.Wager
	err := row.Scan(
		&w.ID,
		&w.AccountID,
		&w.RoundID,
		&w.Mode,
		&w.Option,
		&w.Stake,
		&w.Status,
		&w.Payout,
		&w.NeedsReconciliation,
		&w.ReconcileReason,
		&w.CreatedAt,
		&w.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func collectWagers(rows pgx.Rows) ([]models.Wager, error) {
	defer rows.Close()
	var out []models.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// CreateWager inserts a pending wager. The caller may supply the id so ledger entries can
// reference it before the insert.
func (s *Store) CreateWager(ctx context.Context, w models.Wager) (*models.Wager, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	created, err := scanWager(s.db.QueryRow(ctx, `
		INSERT INTO wagers (id, account_id, round_id, mode, option, stake, status, payout)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', 0)
		RETURNING `+wagerColumns,
		w.ID, w.AccountID, w.RoundID, w.Mode, w.Option, w.Stake,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create wager: %w", err)
	}
	return created, nil
}

func (s *Store) FindWagersByRound(ctx context.Context, roundID uuid.UUID) ([]models.Wager, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+wagerColumns+` FROM wagers
		WHERE round_id = $1
		ORDER BY created_at, id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to find wagers: %w", err)
	}
	return collectWagers(rows)
}

// UpdateWagerSettlement settles a pending wager. It fails with apperr.ErrAlreadySettled
// for a wager that is no longer pending.
func (s *Store) UpdateWagerSettlement(ctx context.Context, id uuid.UUID, status models.WagerStatus, payout decimal.Decimal) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE wagers SET status = $2, payout = $3, settled_at = now()
		WHERE id = $1 AND status = 'PENDING'`, id, status, payout)
	if err != nil {
		return fmt.Errorf("failed to settle wager: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.wagerMissOrSettled(ctx, id)
	}
	return nil
}

func (s *Store) FlagWagerForReconciliation(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE wagers SET needs_reconciliation = TRUE, reconcile_reason = $2
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to flag wager: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrWagerNotFound
	}
	return nil
}

func (s *Store) ListWagersNeedingReconciliation(ctx context.Context) ([]models.Wager, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+wagerColumns+` FROM wagers
		WHERE needs_reconciliation
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled wagers: %w", err)
	}
	return collectWagers(rows)
}

func (s *Store) wagerMissOrSettled(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wagers WHERE id = $1)`, id).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to look up wager: %w", err)
	}
	if !exists {
		return apperr.ErrWagerNotFound
	}
	return apperr.ErrAlreadySettled
}
