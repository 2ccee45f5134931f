package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode is a named game variant. Modes are loaded once at startup and never mutated.
type Mode struct {
	ID            string          `json:"id"`
	CodePrefix    string          `json:"code_prefix"`
	Options       []string        `json:"options"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	RoundDuration time.Duration   `json:"round_duration"`
	Intermission  time.Duration   `json:"intermission"`
	StartDelay    time.Duration   `json:"start_delay"`
}

// HasOption reports whether option belongs to the mode's option set.
func (m Mode) HasOption(option string) bool {
	for _, o := range m.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Payout is the amount credited for a winning stake.
func (m Mode) Payout(stake decimal.Decimal) decimal.Decimal {
	return stake.Mul(m.Multiplier)
}
