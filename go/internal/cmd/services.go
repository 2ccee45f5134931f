package main

import (
	"context"
	"fmt"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/accounts"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/config"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/admin"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/events"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/gateway"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/outcome"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/override"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/publisher"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/scheduler"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/settlement"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Scheduler *scheduler.Scheduler
	Gateway   *gateway.Service
	Admin     *admin.Handler
	Publisher *publisher.Publisher
	Overrides *override.Listener
}

func setupServices(ctx context.Context, cfg *config.Config, b *backend) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Selector/Settlement → Scheduler → Gateway/Admin
	st := b.store
	services := &Services{}

	var selectorOpts []outcome.SelectorOption
	if cfg.RNGSeed != nil {
		selectorOpts = append(selectorOpts, outcome.WithSeed(*cfg.RNGSeed))
	}
	selector := outcome.NewSelector(st, selectorOpts...)

	// Sinks are appended once the gateway exists; the scheduler only emits after Start.
	sinks := &events.Fanout{}

	sched, err := scheduler.New(cfg.Modes, scheduler.Dependencies{
		Rounds:   st,
		Wagers:   st,
		Settings: st,
		Selector: selector,
		Settler:  settlement.NewEngine(st, st),
		Events:   sinks,
	}, scheduler.Config{
		Workers:    cfg.SchedulerWorkers,
		RetryDelay: cfg.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	services.Scheduler = sched

	// Gateway
	dispatcher := gateway.NewDispatcher(accounts.NewApp(st), gateway.NewBetPlacer(sched, st, st))
	state := gateway.NewRoundStateProvider(st, sched)
	services.Gateway = gateway.NewService(gateway.DefaultConfig(), dispatcher, state)
	*sinks = append(*sinks, services.Gateway.Events())

	// Event publishing
	if cfg.NatsURL != "" {
		pubCfg := publisher.DefaultConfig()
		pubCfg.URL = cfg.NatsURL
		pub, err := publisher.New(ctx, pubCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		services.Publisher = pub
		*sinks = append(*sinks, pub)
	}

	// Admin
	if cfg.AdminToken != "" {
		services.Admin = admin.NewHandler(admin.Dependencies{
			Rounds:      sched,
			RoundReader: st,
			Wagers:      st,
			Settings:    st,
			Ledger:      st,
			Exposure:    selector,
		}, cfg.AdminToken)
	} else {
		log.Warn().Msg("ADMIN_TOKEN not set, admin API disabled")
	}

	// Database overrides
	if b.dsn != "" && cfg.OverrideChannel != "" {
		lcfg := override.DefaultListenerConfig()
		lcfg.DatabaseURL = b.dsn
		lcfg.NotifyChannel = cfg.OverrideChannel
		listener, err := override.NewListener(sched, lcfg)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("failed to create override listener: %w", err)
		}
		services.Overrides = listener
	}

	return services, nil
}

// Close releases external connections. Listener shutdown happens in its own Start loop.
func (s *Services) Close() {
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}
}
