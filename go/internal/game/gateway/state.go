package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/events"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StateProvider interface defines methods for retrieving public round state
type StateProvider interface {
	ActiveRounds(ctx context.Context) ([]events.RoundState, error)
	LastResults(ctx context.Context) ([]events.RoundState, error)
	RoundState(ctx context.Context, id uuid.UUID) (*events.RoundState, error)
}

// RoundReader is the read side of the round store.
type RoundReader interface {
	GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error)
	ListRoundsByStatus(ctx context.Context, statuses ...models.RoundStatus) ([]models.Round, error)
	LastCompletedByMode(ctx context.Context) ([]models.Round, error)
}

// Clock reports the current time for countdowns.
type Clock interface {
	Now() time.Time
}

// RoundStateProvider implements StateProvider on top of the round store.
type RoundStateProvider struct {
	rounds RoundReader
	clock  Clock
}

// NewRoundStateProvider creates a new round state provider
func NewRoundStateProvider(rounds RoundReader, clock Clock) *RoundStateProvider {
	return &RoundStateProvider{
		rounds: rounds,
		clock:  clock,
	}
}

// ActiveRounds returns the waiting or running round of every mode.
func (p *RoundStateProvider) ActiveRounds(ctx context.Context) ([]events.RoundState, error) {
	rounds, err := p.rounds.ListRoundsByStatus(ctx, models.RoundStatusWaiting, models.RoundStatusRunning)
	if err != nil {
		return nil, apperr.Storage("failed to list active rounds", err)
	}
	return p.states(rounds), nil
}

// LastResults returns the latest completed round of every mode.
func (p *RoundStateProvider) LastResults(ctx context.Context) ([]events.RoundState, error) {
	rounds, err := p.rounds.LastCompletedByMode(ctx)
	if err != nil {
		return nil, apperr.Storage("failed to list last results", err)
	}
	return p.states(rounds), nil
}

// RoundState returns the public state of one round.
func (p *RoundStateProvider) RoundState(ctx context.Context, id uuid.UUID) (*events.RoundState, error) {
	round, err := p.rounds.GetRound(ctx, id)
	if err != nil {
		return nil, err
	}
	state := events.NewRoundState(*round, p.clock.Now())
	return &state, nil
}

func (p *RoundStateProvider) states(rounds []models.Round) []events.RoundState {
	now := p.clock.Now()
	out := make([]events.RoundState, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, events.NewRoundState(r, now))
	}
	return out
}

// StateHandler handles HTTP requests for round state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetActiveRounds handles GET /api/rounds/active
func (h *StateHandler) HandleGetActiveRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.stateProvider.ActiveRounds(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get active rounds")
		http.Error(w, "Failed to get active rounds", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

// HandleGetLastResults handles GET /api/rounds/last-results
func (h *StateHandler) HandleGetLastResults(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.stateProvider.LastResults(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get last results")
		http.Error(w, "Failed to get last results", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

// HandleGetRound handles GET /api/rounds/{id}
func (h *StateHandler) HandleGetRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid round ID format", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.RoundState(r.Context(), roundID)
	if err != nil {
		if errors.Is(err, apperr.ErrRoundNotFound) {
			http.Error(w, "Round not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("failed to get round state")
		http.Error(w, "Failed to get round state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rounds/active", h.HandleGetActiveRounds)
	mux.HandleFunc("GET /api/rounds/last-results", h.HandleGetLastResults)
	mux.HandleFunc("GET /api/rounds/{id}", h.HandleGetRound)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
