package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus defines whether an account may play.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
)

// Account is a player account with its ledger balance.
type Account struct {
	ID           uuid.UUID       `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Code         string          `json:"code"`
	MasterCode   string          `json:"master_code"`
	Balance      decimal.Decimal `json:"balance"`
	Status       AccountStatus   `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// MasterUser is the referring party an account's commission is attributed to.
type MasterUser struct {
	Code       string          `json:"code"`
	Username   string          `json:"username"`
	Percentage decimal.Decimal `json:"percentage"`
}

// LedgerEntryKind defines why a balance moved.
type LedgerEntryKind string

const (
	LedgerEntryStake  LedgerEntryKind = "STAKE"
	LedgerEntryPayout LedgerEntryKind = "PAYOUT"
	LedgerEntryRefund LedgerEntryKind = "REFUND"
)

// LedgerEntry records one signed balance movement.
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      LedgerEntryKind `json:"kind"`
	WagerID   *uuid.UUID      `json:"wager_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
