package main

import (
	"context"
	"fmt"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/accounts"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/config"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/dbconfig"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/admin"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/gateway"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/outcome"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/scheduler"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/settlement"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store/memory"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// gameStore is everything the server needs from a store backend.
type gameStore interface {
	scheduler.RoundStore
	scheduler.WagerReader
	scheduler.SettingsReader
	outcome.CommissionLookup
	settlement.WagerStore
	settlement.Ledger
	gateway.Ledger
	gateway.WagerWriter
	gateway.RoundReader
	accounts.AccountsRepository
	accounts.Seeder
	admin.WagerReader
	admin.SettingsStore
	admin.LedgerReader
}

type backend struct {
	store gameStore
	pool  *pgxpool.Pool
	dsn   string
}

// Ping reports whether the store is reachable. The memory store always is.
func (b *backend) Ping(ctx context.Context) error {
	if b.pool == nil {
		return nil
	}
	return b.pool.Ping(ctx)
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func setupDatabase(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.Store == config.StoreMemory {
		st := memory.New()
		if cfg.SeedFile != "" {
			if err := seedMemory(ctx, st, cfg.SeedFile); err != nil {
				return nil, err
			}
		}
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return &backend{store: st}, nil
	}

	dbCfg := dbconfig.NewConfigFromEnv()
	pool, err := dbCfg.NewPool(ctx)
	if err != nil {
		return nil, err
	}

	st := postgres.New(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &backend{store: st, pool: pool, dsn: dbCfg.DSN()}, nil
}

func seedMemory(ctx context.Context, st *memory.Store, path string) error {
	file, err := accounts.LoadSeedFile(path)
	if err != nil {
		return err
	}
	result, err := accounts.Seed(ctx, st, file)
	if err != nil {
		return err
	}
	log.Info().
		Int("masters", result.Masters).
		Int("accounts", result.Accounts).
		Int("skipped", result.Errors).
		Msg("seeded memory store")
	return nil
}
