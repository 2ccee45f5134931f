// Package admin serves the operator API: early close with an optional forced
// outcome, per-mode result settings, round exposure and reconciliation lists.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/game/outcome"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Rounds is the scheduler surface the admin API drives.
type Rounds interface {
	CloseRound(ctx context.Context, roundID uuid.UUID, forced *string) (*models.Round, error)
	Mode(id string) (models.Mode, bool)
}

type RoundReader interface {
	GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error)
	ListRoundsByStatus(ctx context.Context, statuses ...models.RoundStatus) ([]models.Round, error)
}

type WagerReader interface {
	FindWagersByRound(ctx context.Context, roundID uuid.UUID) ([]models.Wager, error)
	ListWagersNeedingReconciliation(ctx context.Context) ([]models.Wager, error)
}

type SettingsStore interface {
	GetModeSettings(ctx context.Context, mode string) (models.ModeSettings, error)
	UpsertModeSettings(ctx context.Context, settings models.ModeSettings) (models.ModeSettings, error)
}

type LedgerReader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	LedgerEntries(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error)
}

// Exposure computes per-option liabilities without choosing an outcome.
type Exposure interface {
	Liabilities(ctx context.Context, mode models.Mode, wagers []models.Wager) []outcome.Liability
}

type Dependencies struct {
	Rounds      Rounds
	RoundReader RoundReader
	Wagers      WagerReader
	Settings    SettingsStore
	Ledger      LedgerReader
	Exposure    Exposure
}

type Handler struct {
	deps  Dependencies
	token string
}

func NewHandler(deps Dependencies, token string) *Handler {
	return &Handler{deps: deps, token: token}
}

// RegisterRoutes registers the admin routes behind bearer-token auth.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/admin/rounds/{id}/close", h.authorize(h.HandleCloseRound))
	mux.Handle("GET /api/admin/rounds/{id}/exposure", h.authorize(h.HandleRoundExposure))
	mux.Handle("GET /api/admin/rounds/settling", h.authorize(h.HandleSettlingRounds))
	mux.Handle("GET /api/admin/settings/{mode}", h.authorize(h.HandleGetSettings))
	mux.Handle("PUT /api/admin/settings/{mode}", h.authorize(h.HandlePutSettings))
	mux.Handle("GET /api/admin/wagers/unsettled", h.authorize(h.HandleUnsettledWagers))
	mux.Handle("GET /api/admin/accounts/{id}", h.authorize(h.HandleGetAccount))
	mux.Handle("GET /api/admin/accounts/{id}/ledger", h.authorize(h.HandleAccountLedger))
}

func (h *Handler) authorize(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || h.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid admin token")
			return
		}
		next(w, r)
	})
}

type closeRequest struct {
	Outcome *string `json:"outcome,omitempty"`
}

// HandleCloseRound handles POST /api/admin/rounds/{id}/close
func (h *Handler) HandleCloseRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req closeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, string(apperr.CodeInvalidMessage), "invalid request body")
			return
		}
	}
	if req.Outcome != nil && strings.TrimSpace(*req.Outcome) == "" {
		req.Outcome = nil
	}

	round, err := h.deps.Rounds.CloseRound(r.Context(), roundID, req.Outcome)
	if err != nil {
		writeAppError(w, err, "failed to close round")
		return
	}

	log.Info().
		Str("round_id", round.ID.String()).
		Str("code", round.Code).
		Str("mode", round.Mode).
		Bool("forced", req.Outcome != nil).
		Msg("round closed by admin")
	writeJSON(w, http.StatusOK, round)
}

type exposureResponse struct {
	Round       models.Round        `json:"round"`
	Wagers      int                 `json:"wagers"`
	Liabilities []outcome.Liability `json:"liabilities"`
}

// HandleRoundExposure handles GET /api/admin/rounds/{id}/exposure
func (h *Handler) HandleRoundExposure(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	round, err := h.deps.RoundReader.GetRound(ctx, roundID)
	if err != nil {
		writeAppError(w, err, "failed to load round")
		return
	}
	mode, ok := h.deps.Rounds.Mode(round.Mode)
	if !ok {
		writeAppError(w, apperr.ErrUnknownMode, "")
		return
	}
	wagers, err := h.deps.Wagers.FindWagersByRound(ctx, roundID)
	if err != nil {
		writeAppError(w, apperr.Storage("failed to load wagers", err), "")
		return
	}

	writeJSON(w, http.StatusOK, exposureResponse{
		Round:       *round,
		Wagers:      len(wagers),
		Liabilities: h.deps.Exposure.Liabilities(ctx, mode, wagers),
	})
}

// HandleSettlingRounds handles GET /api/admin/rounds/settling
func (h *Handler) HandleSettlingRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.deps.RoundReader.ListRoundsByStatus(r.Context(), models.RoundStatusSettling)
	if err != nil {
		writeAppError(w, apperr.Storage("failed to list settling rounds", err), "")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rounds))
}

// HandleGetSettings handles GET /api/admin/settings/{mode}
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.pathMode(w, r)
	if !ok {
		return
	}
	settings, err := h.deps.Settings.GetModeSettings(r.Context(), mode.ID)
	if err != nil {
		writeAppError(w, apperr.Storage("failed to load settings", err), "")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	ResultMode    models.ResultMode `json:"result_mode"`
	ManualOutcome *string           `json:"manual_outcome,omitempty"`
}

// HandlePutSettings handles PUT /api/admin/settings/{mode}
func (h *Handler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.pathMode(w, r)
	if !ok {
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.CodeInvalidMessage), "invalid request body")
		return
	}
	req.ResultMode = models.ResultMode(strings.ToUpper(string(req.ResultMode)))
	if req.ResultMode != models.ResultModeAutomatic && req.ResultMode != models.ResultModeManual {
		writeError(w, http.StatusBadRequest, string(apperr.CodeInvalidMessage), "result_mode must be AUTOMATIC or MANUAL")
		return
	}
	if req.ManualOutcome != nil {
		if *req.ManualOutcome == "" {
			req.ManualOutcome = nil
		} else if !mode.HasOption(*req.ManualOutcome) {
			writeAppError(w, apperr.ErrUnknownOption, "")
			return
		}
	}

	saved, err := h.deps.Settings.UpsertModeSettings(r.Context(), models.ModeSettings{
		Mode:          mode.ID,
		ResultMode:    req.ResultMode,
		ManualOutcome: req.ManualOutcome,
	})
	if err != nil {
		writeAppError(w, apperr.Storage("failed to save settings", err), "")
		return
	}

	log.Info().
		Str("mode", mode.ID).
		Str("result_mode", string(saved.ResultMode)).
		Msg("mode settings updated")
	writeJSON(w, http.StatusOK, saved)
}

// HandleUnsettledWagers handles GET /api/admin/wagers/unsettled
func (h *Handler) HandleUnsettledWagers(w http.ResponseWriter, r *http.Request) {
	wagers, err := h.deps.Wagers.ListWagersNeedingReconciliation(r.Context())
	if err != nil {
		writeAppError(w, apperr.Storage("failed to list unsettled wagers", err), "")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(wagers))
}

// HandleGetAccount handles GET /api/admin/accounts/{id}
func (h *Handler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.deps.Ledger.GetAccount(r.Context(), accountID)
	if err != nil {
		writeAppError(w, err, "failed to load account")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type ledgerResponse struct {
	AccountID uuid.UUID            `json:"account_id"`
	Balance   decimal.Decimal      `json:"balance"`
	Entries   []models.LedgerEntry `json:"entries"`
}

// HandleAccountLedger handles GET /api/admin/accounts/{id}/ledger
func (h *Handler) HandleAccountLedger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	balance, err := h.deps.Ledger.GetBalance(ctx, accountID)
	if err != nil {
		writeAppError(w, err, "failed to load balance")
		return
	}
	entries, err := h.deps.Ledger.LedgerEntries(ctx, accountID)
	if err != nil {
		writeAppError(w, err, "failed to load ledger")
		return
	}
	writeJSON(w, http.StatusOK, ledgerResponse{AccountID: accountID, Balance: balance, Entries: nonNil(entries)})
}

func (h *Handler) pathMode(w http.ResponseWriter, r *http.Request) (models.Mode, bool) {
	mode, ok := h.deps.Rounds.Mode(r.PathValue("mode"))
	if !ok {
		writeAppError(w, apperr.ErrUnknownMode, "")
	}
	return mode, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.CodeInvalidMessage), "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeAppError(w http.ResponseWriter, err error, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrRoundNotFound), errors.Is(err, apperr.ErrAccountNotFound), errors.Is(err, apperr.ErrUnknownMode):
		status = http.StatusNotFound
	case apperr.KindOf(err) == apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindOf(err) == apperr.KindConflict:
		status = http.StatusConflict
	default:
		log.Error().Err(err).Msg("admin request failed")
	}
	if fallback == "" {
		fallback = "internal error"
	}
	writeError(w, status, string(apperr.CodeOf(err)), apperr.MessageOf(err, fallback))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
