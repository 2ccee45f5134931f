package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/sqlutil"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const roundColumns = `id, mode, seq, code, status, started_at, closes_at, outcome, created_at, completed_at`

func scanRound(row pgx.Row) (*models.Round, error) {
	var r models.Round
	err := row.Scan(
		&r.ID,
		&r.Mode,
		&r.Seq,
		&r.Code,
		&r.Status,
		&r.StartedAt,
		&r.ClosesAt,
		&r.Outcome,
		&r.CreatedAt,
		&r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRounds(rows pgx.Rows) ([]models.Round, error) {
	defer rows.Close()
	var out []models.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CreateRound inserts a round with the next code of its mode. It fails with
// apperr.ErrAlreadyActive when the partial unique index on active rounds rejects it.
func (s *Store) CreateRound(ctx context.Context, req store.CreateRoundRequest) (*models.Round, error) {
	var round *models.Round
	err := sqlutil.Run(ctx, s.db, func(tx pgx.Tx) error {
		var seq int
		err := tx.QueryRow(ctx, `
			INSERT INTO round_sequences (mode, last_seq) VALUES ($1, 1)
			ON CONFLICT (mode) DO UPDATE SET last_seq = round_sequences.last_seq + 1
			RETURNING last_seq`, req.Mode).Scan(&seq)
		if err != nil {
			return fmt.Errorf("failed to allocate round sequence: %w", err)
		}

		round, err = scanRound(tx.QueryRow(ctx, `
			INSERT INTO rounds (id, mode, seq, code, status, started_at, closes_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+roundColumns,
			uuid.New(), req.Mode, seq, store.RoundCode(req.CodePrefix, seq), req.Status, req.StartedAt, req.ClosesAt,
		))
		return err
	})
	if err != nil {
		if sqlutil.IsUniqueViolation(err) {
			return nil, apperr.ErrAlreadyActive
		}
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	return round, nil
}

func (s *Store) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	r, err := scanRound(s.db.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return r, nil
}

func (s *Store) FindActiveByMode(ctx context.Context, mode string) (*models.Round, error) {
	r, err := scanRound(s.db.QueryRow(ctx, `
		SELECT `+roundColumns+` FROM rounds
		WHERE mode = $1 AND status IN ('WAITING', 'RUNNING')`, mode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active round: %w", err)
	}
	return r, nil
}

// UpdateRoundStatus moves a round from one status to another. It fails with
// apperr.ErrStatusConflict when the round is not in from.
func (s *Store) UpdateRoundStatus(ctx context.Context, id uuid.UUID, from, to models.RoundStatus) (*models.Round, error) {
	r, err := scanRound(s.db.QueryRow(ctx, `
		UPDATE rounds
		SET status = $3,
		    completed_at = CASE WHEN $3 = 'COMPLETED' THEN now() ELSE completed_at END
		WHERE id = $1 AND status = $2
		RETURNING `+roundColumns, id, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetRound(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperr.ErrStatusConflict
	}
	if err != nil {
		if sqlutil.IsUniqueViolation(err) {
			return nil, apperr.ErrAlreadyActive
		}
		return nil, fmt.Errorf("failed to update round status: %w", err)
	}
	return r, nil
}

func (s *Store) SetRoundOutcome(ctx context.Context, id uuid.UUID, outcome string) error {
	tag, err := s.db.Exec(ctx, `UPDATE rounds SET outcome = $2 WHERE id = $1 AND status = 'SETTLING'`, id, outcome)
	if err != nil {
		return fmt.Errorf("failed to set round outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetRound(ctx, id); err != nil {
			return err
		}
		return apperr.ErrStatusConflict
	}
	return nil
}

func (s *Store) ListRoundsByStatus(ctx context.Context, statuses ...models.RoundStatus) ([]models.Round, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+roundColumns+` FROM rounds
		WHERE status = ANY($1)
		ORDER BY mode, seq`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds (%s): %w", strings.Join(names, ","), err)
	}
	return collectRounds(rows)
}

func (s *Store) LastCompletedByMode(ctx context.Context) ([]models.Round, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (mode) `+roundColumns+` FROM rounds
		WHERE status = 'COMPLETED'
		ORDER BY mode, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list last completed rounds: %w", err)
	}
	return collectRounds(rows)
}
