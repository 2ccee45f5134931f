// Package override lets operators force-close a round from the database with
// NOTIFY <channel>, '{"round_id":"...","outcome":"..."}'.
package override

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL          string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel        string
	PingInterval         time.Duration
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:        "round_overrides",
		PingInterval:         90 * time.Second,
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
	}
}

// RoundCloser is the scheduler entry point both override paths go through.
type RoundCloser interface {
	CloseRound(ctx context.Context, roundID uuid.UUID, forced *string) (*models.Round, error)
}

// notificationSource is the part of pq.Listener the loop uses.
type notificationSource interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Request is the NOTIFY payload.
type Request struct {
	RoundID string  `json:"round_id"`
	Outcome *string `json:"outcome,omitempty"`
}

// ParseRequest decodes a NOTIFY payload. An empty outcome means the round settles normally.
func ParseRequest(payload string) (uuid.UUID, *string, error) {
	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid override payload: %w", err)
	}
	id, err := uuid.Parse(strings.TrimSpace(req.RoundID))
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid round id in override payload: %w", err)
	}
	if req.Outcome != nil {
		outcome := strings.TrimSpace(*req.Outcome)
		if outcome == "" {
			return id, nil, nil
		}
		return id, &outcome, nil
	}
	return id, nil, nil
}

type Listener struct {
	source notificationSource
	rounds RoundCloser
	cfg    ListenerConfig
}

func NewListener(rounds RoundCloser, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnectInterval,
		cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("override listener event")
			}
			if ev == pq.ListenerEventReconnected {
				log.Info().Str("channel", cfg.NotifyChannel).Msg("override listener reconnected")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for round overrides")

	return newListener(l, rounds, cfg), nil
}

func newListener(source notificationSource, rounds RoundCloser, cfg ListenerConfig) *Listener {
	return &Listener{source: source, rounds: rounds, cfg: cfg}
}

// Start handles notifications until ctx is done. Overrides are handled one at a time.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("override listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	notes := l.source.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("override listener shutting down")
			return l.Stop()
		case note := <-notes:
			if note == nil {
				// connection lost; pq reconnects on its own
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Str("payload", note.Extra).Msg("failed to handle round override")
			}
		case <-pingTicker.C:
			if err := l.source.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping override listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.source.Close()
}

func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	roundID, outcome, err := ParseRequest(extra)
	if err != nil {
		return err
	}

	round, err := l.rounds.CloseRound(ctx, roundID, outcome)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			log.Warn().
				Err(err).
				Str("round_id", roundID.String()).
				Msg("round override rejected")
			return nil
		}
		return fmt.Errorf("failed to close round %s: %w", roundID, err)
	}

	event := log.Info().
		Str("round_id", round.ID.String()).
		Str("code", round.Code).
		Str("mode", round.Mode)
	if round.Outcome != nil {
		event = event.Str("outcome", *round.Outcome)
	}
	event.Msg("round closed by override")
	return nil
}
