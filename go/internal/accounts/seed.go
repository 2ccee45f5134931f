package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/shopspring/decimal"
)

// Seeder is the write side of the account store used for seeding.
type Seeder interface {
	UpsertMaster(ctx context.Context, m models.MasterUser) error
	UpsertAccount(ctx context.Context, a models.Account) (*models.Account, error)
}

type SeedMaster struct {
	Code       string          `json:"code"`
	Username   string          `json:"username"`
	Percentage decimal.Decimal `json:"percentage"`
}

type SeedAccount struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	Code     string          `json:"code"`
	Master   string          `json:"master"`
	Balance  decimal.Decimal `json:"balance"`
	Inactive bool            `json:"inactive,omitempty"`
}

// SeedFile is the JSON layout read by LoadSeedFile.
type SeedFile struct {
	Masters  []SeedMaster  `json:"masters"`
	Accounts []SeedAccount `json:"accounts"`
}

type SeedResult struct {
	Masters  int
	Accounts int
	Errors   int
}

func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var file SeedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &file, nil
}

// Seed upserts masters first so accounts can reference them. Bad entries are counted
// and skipped.
func Seed(ctx context.Context, store Seeder, file *SeedFile) (SeedResult, error) {
	var result SeedResult

	for _, m := range file.Masters {
		if strings.TrimSpace(m.Code) == "" {
			result.Errors++
			continue
		}
		err := store.UpsertMaster(ctx, models.MasterUser{
			Code:       m.Code,
			Username:   m.Username,
			Percentage: m.Percentage,
		})
		if err != nil {
			return result, fmt.Errorf("failed to seed master %s: %w", m.Code, err)
		}
		result.Masters++
	}

	for _, a := range file.Accounts {
		username := strings.TrimSpace(a.Username)
		if username == "" || a.Balance.IsNegative() {
			result.Errors++
			continue
		}
		hash, err := HashPassword(a.Password)
		if err != nil {
			result.Errors++
			continue
		}
		status := models.AccountStatusActive
		if a.Inactive {
			status = models.AccountStatusInactive
		}
		_, err = store.UpsertAccount(ctx, models.Account{
			Username:     username,
			PasswordHash: hash,
			Code:         a.Code,
			MasterCode:   a.Master,
			Balance:      a.Balance,
			Status:       status,
		})
		if err != nil {
			return result, fmt.Errorf("failed to seed account %s: %w", username, err)
		}
		result.Accounts++
	}
	return result, nil
}
