package main

import (
	"context"
	"fmt"
	"os"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/accounts"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/dbconfig"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store/postgres"
	"github.com/joho/godotenv"
)

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	path := "config/accounts.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load accounts.json
	file, err := accounts.LoadSeedFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 2) Connect to DB
	pool, err := dbconfig.NewConfigFromEnv().NewPool(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := postgres.New(pool)
	if err := st.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate error: %v\n", err)
		os.Exit(1)
	}

	// 3) Seed masters and accounts
	result, err := accounts.Seed(ctx, st, file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf(
		"Accounts seed: masters=%d accounts=%d skipped=%d\n",
		result.Masters, result.Accounts, result.Errors,
	)
}
