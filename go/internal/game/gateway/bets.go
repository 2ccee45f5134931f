package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// RoundGuard runs fn only while the round stays RUNNING. The scheduler implements it.
type RoundGuard interface {
	WithRunningRound(ctx context.Context, roundID uuid.UUID, fn func(round models.Round, mode models.Mode) error) error
}

// Ledger moves stakes in and out of account balances.
// DebitIfSufficient must check and decrement in one step.
type Ledger interface {
	DebitIfSufficient(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, wagerID uuid.UUID) (decimal.Decimal, error)
	Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind models.LedgerEntryKind, wagerID uuid.UUID) (decimal.Decimal, error)
}

// WagerWriter records accepted wagers.
type WagerWriter interface {
	CreateWager(ctx context.Context, w models.Wager) (*models.Wager, error)
}

// BetPlacer validates a bet and records it against a running round.
type BetPlacer struct {
	rounds RoundGuard
	ledger Ledger
	wagers WagerWriter
}

// NewBetPlacer creates a BetPlacer.
func NewBetPlacer(rounds RoundGuard, ledger Ledger, wagers WagerWriter) *BetPlacer {
	return &BetPlacer{
		rounds: rounds,
		ledger: ledger,
		wagers: wagers,
	}
}

// Place debits the stake and creates a pending wager. Every failure before the debit
// leaves state untouched; a failed wager insert refunds the stake.
func (p *BetPlacer) Place(ctx context.Context, accountID uuid.UUID, req BetRequest) (*models.Wager, decimal.Decimal, error) {
	roundID, err := uuid.Parse(strings.TrimSpace(req.GameID))
	if err != nil {
		return nil, decimal.Zero, apperr.ErrNotRunning
	}
	if !req.Amount.IsPositive() {
		return nil, decimal.Zero, apperr.ErrInvalidAmount
	}

	var (
		wager   *models.Wager
		balance decimal.Decimal
	)
	err = p.rounds.WithRunningRound(ctx, roundID, func(round models.Round, mode models.Mode) error {
		if req.GameMode != "" && req.GameMode != mode.ID {
			return apperr.ErrModeMismatch
		}
		if !mode.HasOption(req.Color) {
			return apperr.ErrUnknownOption
		}

		wagerID := uuid.New()
		debited, err := p.ledger.DebitIfSufficient(ctx, accountID, req.Amount, wagerID)
		if err != nil {
			if errors.Is(err, apperr.ErrInsufficientFunds) || errors.Is(err, apperr.ErrAccountNotFound) {
				return err
			}
			return apperr.Storage("failed to debit stake", err)
		}

		balance = debited

		created, err := p.wagers.CreateWager(ctx, models.Wager{
			ID:        wagerID,
			AccountID: accountID,
			RoundID:   round.ID,
			Mode:      mode.ID,
			Option:    req.Color,
			Stake:     req.Amount,
		})
		if err != nil {
			balance = p.refund(ctx, accountID, req.Amount, wagerID, balance)
			return apperr.Storage("failed to record wager", err)
		}
		wager = created
		return nil
	})
	if err != nil {
		return nil, balance, err
	}

	log.Info().
		Str("wager_id", wager.ID.String()).
		Str("account_id", accountID.String()).
		Str("round_id", roundID.String()).
		Str("option", wager.Option).
		Str("stake", wager.Stake.String()).
		Msg("wager accepted")
	return wager, balance, nil
}

func (p *BetPlacer) refund(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, wagerID uuid.UUID, balance decimal.Decimal) decimal.Decimal {
	refunded, err := p.ledger.Credit(ctx, accountID, amount, models.LedgerEntryRefund, wagerID)
	if err != nil {
		log.Error().
			Err(fmt.Errorf("failed to refund stake: %w", err)).
			Str("account_id", accountID.String()).
			Str("wager_id", wagerID.String()).
			Str("amount", amount.String()).
			Msg("stake debited without a wager, needs reconciliation")
		return balance
	}
	return refunded
}
