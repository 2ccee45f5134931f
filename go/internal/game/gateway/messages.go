package gateway

import (
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/events"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/shopspring/decimal"
)

// MessageType identifies a wire message.
type MessageType string

// Client → server message types
const (
	MessageAuth MessageType = "AUTH"
	MessageBet  MessageType = "BET"
)

// Server → client message types
const (
	MessageAuthSuccess MessageType = "AUTH_SUCCESS"
	MessageAuthFailed  MessageType = "AUTH_FAILED"
	MessageBetPlaced   MessageType = "BET_PLACED"
	MessageBetWon      MessageType = "BET_WON"
	MessageBetFailed   MessageType = "BET_FAILED"
	MessageGameState   MessageType = "GAME_STATE"
	MessageError       MessageType = "ERROR"
)

// envelope is decoded first to pick the handler for the rest of the message.
type envelope struct {
	Type MessageType `json:"type"`
}

// AuthRequest is the AUTH payload.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BetRequest is the BET payload. GameID is the round id.
type BetRequest struct {
	GameID   string          `json:"gameId"`
	Amount   decimal.Decimal `json:"amount"`
	Color    string          `json:"color"`
	GameMode string          `json:"gameMode"`
}

// ServerMessage is every message the server sends. Only the fields of its type are set.
type ServerMessage struct {
	Type    MessageType        `json:"type"`
	Message string             `json:"message,omitempty"`
	Code    apperr.Code        `json:"code,omitempty"`
	Account *models.Account    `json:"account,omitempty"`
	Wager   *models.Wager      `json:"wager,omitempty"`
	Balance *decimal.Decimal   `json:"balance,omitempty"`
	Round   *events.RoundState `json:"round,omitempty"`
	Winner  *events.Winner     `json:"winner,omitempty"`
}

func failure(typ MessageType, err error, fallback string) ServerMessage {
	return ServerMessage{
		Type:    typ,
		Message: apperr.MessageOf(err, fallback),
		Code:    apperr.CodeOf(err),
	}
}

func gameState(state events.RoundState) ServerMessage {
	return ServerMessage{Type: MessageGameState, Round: &state}
}
