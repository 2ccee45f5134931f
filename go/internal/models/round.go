package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// RoundStatus defines where a round is in its lifecycle.
type RoundStatus string

const (
	RoundStatusWaiting   RoundStatus = "WAITING"
	RoundStatusRunning   RoundStatus = "RUNNING"
	RoundStatusSettling  RoundStatus = "SETTLING"
	RoundStatusCompleted RoundStatus = "COMPLETED"
)

// Active reports whether the status counts toward the one-active-round-per-mode limit.
func (s RoundStatus) Active() bool {
	return s == RoundStatusWaiting || s == RoundStatusRunning
}

// Round is one timed instance of play for a mode.
type Round struct {
	ID          uuid.UUID   `json:"id"`
	Code        string      `json:"code"`
	Seq         int         `json:"seq"`
	Mode        string      `json:"mode"`
	Status      RoundStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	ClosesAt    time.Time   `json:"closes_at"`
	Outcome     *string     `json:"outcome,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Countdown returns whole seconds left until close, rounded up. Zero unless running.
func (r Round) Countdown(now time.Time) int {
	if r.Status != RoundStatusRunning {
		return 0
	}
	left := r.ClosesAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
