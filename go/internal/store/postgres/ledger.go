package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/sqlutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func (s *Store) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, apperr.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// DebitIfSufficient decrements the balance only if it covers amount at the moment of the
// update. The row lock taken by the UPDATE serializes concurrent debits and credits.
func (s *Store) DebitIfSufficient(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, wagerID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := sqlutil.Run(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE accounts SET balance = balance - $2, updated_at = now()
			WHERE id = $1 AND balance >= $2
			RETURNING balance`, accountID, amount).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			current, getErr := s.balanceIn(ctx, tx, accountID)
			if getErr != nil {
				return getErr
			}
			balance = current
			return apperr.ErrInsufficientFunds
		}
		if err != nil {
			return fmt.Errorf("failed to debit: %w", err)
		}
		return insertEntry(ctx, tx, accountID, amount.Neg(), models.LedgerEntryStake, wagerID)
	})
	return balance, err
}

// Credit adds amount to the balance and records why.
func (s *Store) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind models.LedgerEntryKind, wagerID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := sqlutil.Run(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE accounts SET balance = balance + $2, updated_at = now()
			WHERE id = $1
			RETURNING balance`, accountID, amount).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to credit: %w", err)
		}
		return insertEntry(ctx, tx, accountID, amount, kind, wagerID)
	})
	return balance, err
}

// LedgerEntries returns the audit trail for an account, oldest first.
func (s *Store) LedgerEntries(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, amount, kind, wager_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var (
			e       models.LedgerEntry
			wagerID uuid.NullUUID
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &e.Kind, &wagerID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.WagerID = sqlutil.FromNullUUID(wagerID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) balanceIn(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, apperr.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, kind models.LedgerEntryKind, wagerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, amount, kind, wager_id)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), accountID, amount, kind, sqlutil.NonNilUUID(wagerID))
	if err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return nil
}
