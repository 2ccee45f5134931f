package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/events"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	got []events.RoundEvent
	err error
}

func (r *recordingSink) HandleRoundEvent(_ context.Context, e events.RoundEvent) error {
	r.got = append(r.got, e)
	return r.err
}

func TestFanoutContinuesPastFailingSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("bus down")}
	healthy := &recordingSink{}
	fan := events.Fanout{failing, nil, healthy}

	evt := events.RoundEvent{ID: uuid.New(), Type: events.RoundOpened}
	assert.NoError(t, fan.HandleRoundEvent(context.Background(), evt))
	assert.Len(t, failing.got, 1)
	assert.Len(t, healthy.got, 1)
}

func TestNewRoundStateCountdown(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := models.Round{
		ID:        uuid.New(),
		Code:      "BW0003",
		Mode:      "blackWhite",
		Status:    models.RoundStatusRunning,
		StartedAt: now.Add(-time.Minute),
		ClosesAt:  now.Add(90*time.Second + 200*time.Millisecond),
	}

	state := events.NewRoundState(r, now)
	assert.Equal(t, 91, state.CountdownSec)
	assert.Equal(t, "RUNNING", state.Status)
	assert.Equal(t, "BW0003", state.Code)

	r.Status = models.RoundStatusCompleted
	assert.Zero(t, events.NewRoundState(r, now).CountdownSec)
}
