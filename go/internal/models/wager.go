package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WagerStatus defines the settlement status of a wager.
type WagerStatus string

const (
	WagerStatusPending WagerStatus = "PENDING"
	WagerStatusWon     WagerStatus = "WON"
	WagerStatusLost    WagerStatus = "LOST"
)

// Wager is a single account's stake on one option within one round.
type Wager struct {
	ID                  uuid.UUID       `json:"id"`
	AccountID           uuid.UUID       `json:"account_id"`
	RoundID             uuid.UUID       `json:"round_id"`
	Mode                string          `json:"mode"`
	Option              string          `json:"option"`
	Stake               decimal.Decimal `json:"stake"`
	Status              WagerStatus     `json:"status"`
	Payout              decimal.Decimal `json:"payout"`
	NeedsReconciliation bool            `json:"needs_reconciliation"`
	ReconcileReason     string          `json:"reconcile_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	SettledAt           *time.Time      `json:"settled_at,omitempty"`
}
