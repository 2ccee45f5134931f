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

const accountColumns = `id, username, password_hash, code, master_code, balance, status, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.PasswordHash,
		&a.Code,
		&a.MasterCode,
		&a.Balance,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return a, nil
}

// UpsertAccount inserts an account or updates it by username. The balance is only
// written on insert.
func (s *Store) UpsertAccount(ctx context.Context, a models.Account) (*models.Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.AccountStatusActive
	}
	out, err := scanAccount(s.db.QueryRow(ctx, `
		INSERT INTO accounts (id, username, password_hash, code, master_code, balance, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			code = EXCLUDED.code,
			master_code = EXCLUDED.master_code,
			status = EXCLUDED.status,
			updated_at = now()
		RETURNING `+accountColumns,
		a.ID, a.Username, a.PasswordHash, a.Code, a.MasterCode, a.Balance, a.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return out, nil
}

// UpsertMaster inserts or updates a referring master and its commission percentage.
func (s *Store) UpsertMaster(ctx context.Context, m models.MasterUser) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO master_users (code, username, percentage)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET
			username = EXCLUDED.username,
			percentage = EXCLUDED.percentage`,
		m.Code, m.Username, m.Percentage)
	if err != nil {
		return fmt.Errorf("failed to upsert master: %w", err)
	}
	return nil
}

// RateForAccount returns the commission percentage of the account's master, zero when
// it has none.
func (s *Store) RateForAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var rate decimal.NullDecimal
	err := s.db.QueryRow(ctx, `
		SELECT m.percentage
		FROM accounts a
		LEFT JOIN master_users m ON m.code = a.master_code
		WHERE a.id = $1`, accountID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, apperr.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to look up commission rate: %w", err)
	}
	if !rate.Valid {
		return decimal.Zero, nil
	}
	return rate.Decimal, nil
}
