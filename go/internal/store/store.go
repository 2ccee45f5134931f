// Package store holds request types shared by the store backends.
package store

import (
	"fmt"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
)

// CreateRoundRequest describes a round to create. The backend assigns ID, Seq and Code.
type CreateRoundRequest struct {
	Mode       string
	CodePrefix string
	Status     models.RoundStatus
	StartedAt  time.Time
	ClosesAt   time.Time
}

// RoundCode formats the display code for the seq-th round of a mode, e.g. BW0007.
func RoundCode(prefix string, seq int) string {
	return fmt.Sprintf("%s%04d", prefix, seq)
}
