package events

import (
	"context"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Type names a round lifecycle event. It doubles as the bus subject suffix.
type Type string

const (
	RoundOpened   Type = "round.opened"
	RoundSettling Type = "round.settling"
	RoundClosed   Type = "round.closed"
)

// RoundState is the public view of a round sent to every client.
type RoundState struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Mode         string     `json:"mode"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	ClosesAt     time.Time  `json:"closes_at"`
	CountdownSec int        `json:"countdown_sec"`
	Outcome      *string    `json:"outcome,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewRoundState builds the public view of r as of now.
func NewRoundState(r models.Round, now time.Time) RoundState {
	return RoundState{
		ID:           r.ID.String(),
		Code:         r.Code,
		Mode:         r.Mode,
		Status:       string(r.Status),
		StartedAt:    r.StartedAt,
		ClosesAt:     r.ClosesAt,
		CountdownSec: r.Countdown(now),
		Outcome:      r.Outcome,
		CompletedAt:  r.CompletedAt,
	}
}

// Winner is one credited wager in a settlement summary.
type Winner struct {
	WagerID   uuid.UUID `json:"wager_id"`
	AccountID uuid.UUID `json:"account_id"`
	Option    string    `json:"option"`
	Stake     string    `json:"stake"`
	Payout    string    `json:"payout"`
}

// SettlementSummary is attached to RoundClosed events.
type SettlementSummary struct {
	Outcome     string   `json:"outcome"`
	Won         int      `json:"won"`
	Lost        int      `json:"lost"`
	Unsettled   int      `json:"unsettled"`
	TotalStake  string   `json:"total_stake"`
	TotalPayout string   `json:"total_payout"`
	Winners     []Winner `json:"winners"`
}

// RoundEvent is emitted by the scheduler on every round state change.
type RoundEvent struct {
	ID         uuid.UUID          `json:"id"`
	Type       Type               `json:"type"`
	Round      RoundState         `json:"round"`
	Settlement *SettlementSummary `json:"settlement,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// Sink receives round events. Implementations must not block for long.
type Sink interface {
	HandleRoundEvent(ctx context.Context, event RoundEvent) error
}

// Fanout delivers each event to every sink. A failing sink is logged and skipped.
type Fanout []Sink

// HandleRoundEvent implements Sink.
func (f Fanout) HandleRoundEvent(ctx context.Context, event RoundEvent) error {
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.HandleRoundEvent(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", string(event.Type)).
				Str("round_id", event.Round.ID).
				Msg("round event sink failed")
		}
	}
	return nil
}
