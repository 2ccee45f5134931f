package gateway

import (
	"context"
	"fmt"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/events"
)

// HandleRoundEvent implements events.Sink. Every connection gets the new round state;
// the owners of winning wagers also get a BET_WON each.
func (cm *ConnectionManager) HandleRoundEvent(_ context.Context, event events.RoundEvent) error {
	cm.Broadcast(gameState(event.Round))

	if event.Type != events.RoundClosed || event.Settlement == nil {
		return nil
	}
	for _, w := range event.Settlement.Winners {
		winner := w
		cm.SendToAccount(w.AccountID, ServerMessage{
			Type:    MessageBetWon,
			Message: fmt.Sprintf("Congratulations! You won %s credits.", w.Payout),
			Winner:  &winner,
		})
	}
	return nil
}
