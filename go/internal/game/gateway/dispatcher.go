package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Authenticator verifies AUTH credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.Account, error)
}

// Session is the per-connection state a handler may read or bind.
type Session interface {
	AccountID() (uuid.UUID, bool)
	Bind(accountID uuid.UUID)
}

type handlerFunc func(ctx context.Context, sess Session, raw []byte) ServerMessage

// Dispatcher routes inbound messages by type. Every inbound message gets exactly one reply.
type Dispatcher struct {
	auth     Authenticator
	bets     *BetPlacer
	handlers map[MessageType]handlerFunc
}

// NewDispatcher creates a Dispatcher for AUTH and BET.
func NewDispatcher(auth Authenticator, bets *BetPlacer) *Dispatcher {
	d := &Dispatcher{
		auth: auth,
		bets: bets,
	}
	d.handlers = map[MessageType]handlerFunc{
		MessageAuth: d.handleAuth,
		MessageBet:  d.handleBet,
	}
	return d
}

// Dispatch decodes raw and runs the handler for its type. A panicking handler is logged
// and answered with an ERROR so the connection stays up.
func (d *Dispatcher) Dispatch(ctx context.Context, sess Session, raw []byte) (reply ServerMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("message", raw).
				Msg("message handler panicked")
			reply = failure(MessageError, fmt.Errorf("handler panic: %v", r), "Internal error")
		}
	}()

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return failure(MessageError, apperr.ErrInvalidMessage, "")
	}
	handler, ok := d.handlers[env.Type]
	if !ok {
		return failure(MessageError, apperr.ErrUnknownMessage, "")
	}
	return handler(ctx, sess, raw)
}

func (d *Dispatcher) handleAuth(ctx context.Context, sess Session, raw []byte) ServerMessage {
	var req AuthRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return failure(MessageError, apperr.ErrInvalidMessage, "")
	}

	account, err := d.auth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindPersistence {
			log.Error().Err(err).Str("username", req.Username).Msg("authentication failed")
		}
		return failure(MessageAuthFailed, err, "Authentication error")
	}

	sess.Bind(account.ID)
	return ServerMessage{Type: MessageAuthSuccess, Account: account}
}

func (d *Dispatcher) handleBet(ctx context.Context, sess Session, raw []byte) ServerMessage {
	accountID, ok := sess.AccountID()
	if !ok {
		return failure(MessageBetFailed, apperr.ErrNotAuthenticated, "")
	}

	var req BetRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return failure(MessageError, apperr.ErrInvalidMessage, "")
	}

	wager, balance, err := d.bets.Place(ctx, accountID, req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindPersistence {
			log.Error().
				Err(err).
				Str("account_id", accountID.String()).
				Str("game_id", req.GameID).
				Msg("bet failed")
		}
		return failure(MessageBetFailed, err, "Error placing bet")
	}
	return ServerMessage{Type: MessageBetPlaced, Wager: wager, Balance: &balance}
}
