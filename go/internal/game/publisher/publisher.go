// Package publisher forwards round events to a NATS JetStream stream so other
// services can follow the game without holding a websocket.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	clientName    = "mindgame-round-publisher"
	reconnectWait = 2 * time.Second
)

// Config describes the round event stream.
type Config struct {
	URL            string
	Stream         string
	SubjectPrefix  string
	Retention      time.Duration
	DedupeWindow   time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Stream:         "GAME_EVENTS",
		SubjectPrefix:  "game.events",
		Retention:      7 * 24 * time.Hour,
		DedupeWindow:   2 * time.Hour,
		PublishTimeout: 5 * time.Second,
	}
}

// msgPublisher is the part of jetstream.JetStream used per event.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// streamManager is the part of jetstream.JetStream used at startup.
type streamManager interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// Publisher implements events.Sink on top of JetStream.
type Publisher struct {
	nc  *nats.Conn
	js  msgPublisher
	cfg Config
}

var _ events.Sink = (*Publisher)(nil)

// New connects to NATS and makes sure the round stream exists with cfg's limits.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("event bus disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("event bus reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if err := setupStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, err
	}

	return &Publisher{nc: nc, js: js, cfg: cfg}, nil
}

func setupStream(ctx context.Context, sm streamManager, cfg Config) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Round lifecycle events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      cfg.Retention,
		Duplicates:  cfg.DedupeWindow,
	}
	if _, err := sm.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("set up stream %s: %w", cfg.Stream, err)
	}

	log.Info().
		Str("stream", cfg.Stream).
		Strs("subjects", sc.Subjects).
		Dur("retention", cfg.Retention).
		Msg("round event stream ready")
	return nil
}

// Subject returns the subject an event is published on, e.g. game.events.round.closed.
func (p *Publisher) Subject(typ events.Type) string {
	return p.cfg.SubjectPrefix + "." + string(typ)
}

// HandleRoundEvent publishes the event. The event id is the JetStream message id so
// a retried publish inside the dedupe window is stored once.
func (p *Publisher) HandleRoundEvent(ctx context.Context, event events.RoundEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if p.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
	}

	msg := nats.NewMsg(p.Subject(event.Type))
	msg.Data = data
	msg.Header.Set("Event-Type", string(event.Type))
	msg.Header.Set("Round-ID", event.Round.ID)
	msg.Header.Set("Mode", event.Round.Mode)

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.cfg.Stream),
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", event.ID.String()).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published round event")
	return nil
}

// Connected reports whether the NATS connection is up.
func (p *Publisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
