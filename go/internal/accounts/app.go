// Package accounts authenticates players against the account store.
package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// AccountsRepository defines what the app layer needs from the account store
type AccountsRepository interface {
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
}

// App handles account business logic
type App struct {
	repo AccountsRepository
}

// NewApp creates a new accounts App
func NewApp(repo AccountsRepository) *App {
	return &App{
		repo: repo,
	}
}

// Authenticate checks username and password and returns the account.
// Unknown usernames and wrong passwords both fail with apperr.ErrInvalidCredentials.
func (a *App) Authenticate(ctx context.Context, username, password string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.ErrInvalidCredentials
	}

	account, err := a.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrAccountNotFound) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, apperr.Storage("failed to load account", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		log.Debug().Str("username", username).Msg("password mismatch")
		return nil, apperr.ErrInvalidCredentials
	}

	if account.Status != models.AccountStatusActive {
		return nil, apperr.ErrAccountInactive
	}

	log.Info().
		Str("account_id", account.ID.String()).
		Str("username", account.Username).
		Msg("account authenticated")
	return account, nil
}

// HashPassword returns the bcrypt hash stored for an account.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
