package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("failed to place bet: %w", apperr.Wrap(apperr.CodeInsufficientFunds, "short", errors.New("balance 5")))

	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	assert.NotErrorIs(t, err, apperr.ErrNotRunning)
	assert.Equal(t, apperr.CodeInsufficientFunds, apperr.CodeOf(err))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"validation", apperr.ErrUnknownOption, apperr.KindValidation},
		{"conflict", fmt.Errorf("open: %w", apperr.ErrAlreadyActive), apperr.KindConflict},
		{"storage", apperr.Storage("db down", errors.New("dial tcp")), apperr.KindPersistence},
		{"plain error", errors.New("boom"), apperr.KindPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperr.KindOf(tt.err))
		})
	}
}

func TestMessageOfHidesStorageDetail(t *testing.T) {
	assert.Equal(t, "Insufficient funds", apperr.MessageOf(apperr.ErrInsufficientFunds, "Error placing bet"))
	assert.Equal(t, "Error placing bet", apperr.MessageOf(apperr.Storage("insert wager", errors.New("conn reset")), "Error placing bet"))
	assert.Equal(t, "Error placing bet", apperr.MessageOf(errors.New("boom"), "Error placing bet"))
}
