package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// WagerStore defines what settlement needs from the wager store.
// UpdateWagerSettlement must fail with apperr.ErrAlreadySettled unless the wager is still pending.
type WagerStore interface {
	UpdateWagerSettlement(ctx context.Context, id uuid.UUID, status models.WagerStatus, payout decimal.Decimal) error
	FlagWagerForReconciliation(ctx context.Context, id uuid.UUID, reason string) error
}

// Ledger defines what settlement needs from the account ledger.
type Ledger interface {
	Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind models.LedgerEntryKind, wagerID uuid.UUID) (decimal.Decimal, error)
}

// Report summarizes one settlement pass.
type Report struct {
	RoundID     uuid.UUID       `json:"round_id"`
	Outcome     string          `json:"outcome"`
	Won         []models.Wager  `json:"won"`
	Lost        int             `json:"lost"`
	Skipped     int             `json:"skipped"`
	Unsettled   []uuid.UUID     `json:"unsettled"`
	TotalStake  decimal.Decimal `json:"total_stake"`
	TotalPayout decimal.Decimal `json:"total_payout"`
}

// Engine applies an outcome to a round's wagers.
type Engine struct {
	wagers WagerStore
	ledger Ledger
}

// NewEngine creates a new settlement Engine
func NewEngine(wagers WagerStore, ledger Ledger) *Engine {
	return &Engine{
		wagers: wagers,
		ledger: ledger,
	}
}

// Settle marks each pending wager won or lost and credits winners with stake*multiplier.
// A wager that cannot be settled is flagged for reconciliation and the rest continue.
func (e *Engine) Settle(ctx context.Context, round models.Round, mode models.Mode, outcome string, wagers []models.Wager) Report {
	report := Report{
		RoundID:     round.ID,
		Outcome:     outcome,
		TotalStake:  decimal.Zero,
		TotalPayout: decimal.Zero,
	}

	for _, w := range wagers {
		if w.Status != models.WagerStatusPending {
			report.Skipped++
			continue
		}
		report.TotalStake = report.TotalStake.Add(w.Stake)

		if w.Option != outcome {
			err := e.wagers.UpdateWagerSettlement(ctx, w.ID, models.WagerStatusLost, decimal.Zero)
			switch {
			case errors.Is(err, apperr.ErrAlreadySettled):
				report.Skipped++
			case err != nil:
				e.flag(ctx, &report, w, fmt.Sprintf("mark lost: %v", err))
			default:
				report.Lost++
			}
			continue
		}

		// The wager is marked won before the credit. A failed credit leaves it WON and flagged.
		payout := mode.Payout(w.Stake)
		err := e.wagers.UpdateWagerSettlement(ctx, w.ID, models.WagerStatusWon, payout)
		if errors.Is(err, apperr.ErrAlreadySettled) {
			report.Skipped++
			continue
		}
		if err != nil {
			e.flag(ctx, &report, w, fmt.Sprintf("mark won: %v", err))
			continue
		}

		if _, err := e.ledger.Credit(ctx, w.AccountID, payout, models.LedgerEntryPayout, w.ID); err != nil {
			e.flag(ctx, &report, w, fmt.Sprintf("credit payout %s: %v", payout.String(), err))
			continue
		}

		w.Status = models.WagerStatusWon
		w.Payout = payout
		report.Won = append(report.Won, w)
		report.TotalPayout = report.TotalPayout.Add(payout)
	}

	log.Info().
		Str("round_id", round.ID.String()).
		Str("mode", mode.ID).
		Str("outcome", outcome).
		Int("won", len(report.Won)).
		Int("lost", report.Lost).
		Int("skipped", report.Skipped).
		Int("unsettled", len(report.Unsettled)).
		Str("total_stake", report.TotalStake.String()).
		Str("total_payout", report.TotalPayout.String()).
		Msg("round settled")

	return report
}

func (e *Engine) flag(ctx context.Context, report *Report, w models.Wager, reason string) {
	report.Unsettled = append(report.Unsettled, w.ID)

	log.Error().
		Str("wager_id", w.ID.String()).
		Str("account_id", w.AccountID.String()).
		Str("round_id", w.RoundID.String()).
		Str("reason", reason).
		Msg("wager left unsettled")

	if err := e.wagers.FlagWagerForReconciliation(ctx, w.ID, reason); err != nil {
		log.Error().
			Err(err).
			Str("wager_id", w.ID.String()).
			Msg("failed to flag wager for reconciliation")
	}
}
