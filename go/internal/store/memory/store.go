// Package memory is an in-process implementation of the round, wager, ledger,
// account, commission and settings stores. All state sits behind one mutex, which
// also serializes every balance mutation.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

var errDuplicate = errors.New("duplicate id")

type Store struct {
	mu    sync.Mutex
	clock clockwork.Clock

	rounds   map[uuid.UUID]*models.Round
	roundSeq map[string]int
	wagers   map[uuid.UUID]*models.Wager
	accounts map[uuid.UUID]*models.Account
	masters  map[string]models.MasterUser
	entries  []models.LedgerEntry
	settings map[string]models.ModeSettings
}

// New creates an empty store that timestamps with the real clock.
func New() *Store {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock creates an empty store that timestamps with clock.
func NewWithClock(clock clockwork.Clock) *Store {
	return &Store{
		clock:    clock,
		rounds:   make(map[uuid.UUID]*models.Round),
		roundSeq: make(map[string]int),
		wagers:   make(map[uuid.UUID]*models.Wager),
		accounts: make(map[uuid.UUID]*models.Account),
		masters:  make(map[string]models.MasterUser),
		settings: make(map[string]models.ModeSettings),
	}
}

// ---- rounds ----

func (s *Store) CreateRound(ctx context.Context, req store.CreateRoundRequest) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rounds {
		if r.Mode == req.Mode && r.Status.Active() {
			return nil, apperr.ErrAlreadyActive
		}
	}

	s.roundSeq[req.Mode]++
	seq := s.roundSeq[req.Mode]
	r := &models.Round{
		ID:        uuid.New(),
		Seq:       seq,
		Code:      store.RoundCode(req.CodePrefix, seq),
		Mode:      req.Mode,
		Status:    req.Status,
		StartedAt: req.StartedAt,
		ClosesAt:  req.ClosesAt,
		CreatedAt: s.clock.Now(),
	}
	s.rounds[r.ID] = r
	out := *r
	return &out, nil
}

func (s *Store) GetRound(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[id]
	if !ok {
		return nil, apperr.ErrRoundNotFound
	}
	out := *r
	return &out, nil
}

func (s *Store) FindActiveByMode(ctx context.Context, mode string) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rounds {
		if r.Mode == mode && r.Status.Active() {
			out := *r
			return &out, nil
		}
	}
	return nil, apperr.ErrRoundNotFound
}

func (s *Store) UpdateRoundStatus(ctx context.Context, id uuid.UUID, from, to models.RoundStatus) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[id]
	if !ok {
		return nil, apperr.ErrRoundNotFound
	}
	if r.Status != from {
		return nil, apperr.ErrStatusConflict
	}
	r.Status = to
	if to == models.RoundStatusCompleted {
		now := s.clock.Now()
		r.CompletedAt = &now
	}
	out := *r
	return &out, nil
}

func (s *Store) SetRoundOutcome(ctx context.Context, id uuid.UUID, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[id]
	if !ok {
		return apperr.ErrRoundNotFound
	}
	if r.Status != models.RoundStatusSettling {
		return apperr.ErrStatusConflict
	}
	r.Outcome = &outcome
	return nil
}

func (s *Store) ListRoundsByStatus(ctx context.Context, statuses ...models.RoundStatus) ([]models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[models.RoundStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []models.Round
	for _, r := range s.rounds {
		if want[r.Status] {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mode != out[j].Mode {
			return out[i].Mode < out[j].Mode
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *Store) LastCompletedByMode(ctx context.Context) ([]models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]*models.Round)
	for _, r := range s.rounds {
		if r.Status != models.RoundStatusCompleted {
			continue
		}
		if cur, ok := latest[r.Mode]; !ok || r.Seq > cur.Seq {
			latest[r.Mode] = r
		}
	}
	out := make([]models.Round, 0, len(latest))
	for _, r := range latest {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mode < out[j].Mode })
	return out, nil
}

// ---- wagers ----

func (s *Store) CreateWager(ctx context.Context, w models.Wager) (*models.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if _, exists := s.wagers[w.ID]; exists {
		return nil, apperr.Storage("create wager", errDuplicate)
	}
	w.Status = models.WagerStatusPending
	w.Payout = decimal.Zero
	w.CreatedAt = s.clock.Now()
	s.wagers[w.ID] = &w
	out := w
	return &out, nil
}

func (s *Store) FindWagersByRound(ctx context.Context, roundID uuid.UUID) ([]models.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Wager
	for _, w := range s.wagers {
		if w.RoundID == roundID {
			out = append(out, *w)
		}
	}
	sortWagers(out)
	return out, nil
}

func (s *Store) UpdateWagerSettlement(ctx context.Context, id uuid.UUID, status models.WagerStatus, payout decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wagers[id]
	if !ok {
		return apperr.ErrWagerNotFound
	}
	if w.Status != models.WagerStatusPending {
		return apperr.ErrAlreadySettled
	}
	now := s.clock.Now()
	w.Status = status
	w.Payout = payout
	w.SettledAt = &now
	return nil
}

func (s *Store) FlagWagerForReconciliation(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wagers[id]
	if !ok {
		return apperr.ErrWagerNotFound
	}
	w.NeedsReconciliation = true
	w.ReconcileReason = reason
	return nil
}

func (s *Store) ListWagersNeedingReconciliation(ctx context.Context) ([]models.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Wager
	for _, w := range s.wagers {
		if w.NeedsReconciliation {
			out = append(out, *w)
		}
	}
	sortWagers(out)
	return out, nil
}

// ---- ledger ----

func (s *Store) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return decimal.Zero, apperr.ErrAccountNotFound
	}
	return a.Balance, nil
}

func (s *Store) DebitIfSufficient(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, wagerID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return decimal.Zero, apperr.ErrAccountNotFound
	}
	if a.Balance.LessThan(amount) {
		return a.Balance, apperr.ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	a.UpdatedAt = s.clock.Now()
	s.appendEntry(accountID, amount.Neg(), models.LedgerEntryStake, wagerID)
	return a.Balance, nil
}

func (s *Store) Credit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, kind models.LedgerEntryKind, wagerID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return decimal.Zero, apperr.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = s.clock.Now()
	s.appendEntry(accountID, amount, kind, wagerID)
	return a.Balance, nil
}

func (s *Store) appendEntry(accountID uuid.UUID, amount decimal.Decimal, kind models.LedgerEntryKind, wagerID uuid.UUID) {
	entry := models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    amount,
		Kind:      kind,
		CreatedAt: s.clock.Now(),
	}
	if wagerID != uuid.Nil {
		id := wagerID
		entry.WagerID = &id
	}
	s.entries = append(s.entries, entry)
}

// LedgerEntries returns the audit trail for an account, oldest first.
func (s *Store) LedgerEntries(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, apperr.ErrAccountNotFound
	}
	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---- accounts & commission ----

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(a models.Account) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.AccountStatusActive
	}
	now := s.clock.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.accounts[a.ID] = &a
	return a
}

// PutMaster inserts or replaces a referring master user.
func (s *Store) PutMaster(m models.MasterUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masters[m.Code] = m
}

// UpsertAccount inserts an account or updates it by username. The balance is only
// written on insert.
func (s *Store) UpsertAccount(ctx context.Context, a models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Status == "" {
		a.Status = models.AccountStatusActive
	}
	now := s.clock.Now()
	for _, existing := range s.accounts {
		if existing.Username != a.Username {
			continue
		}
		existing.PasswordHash = a.PasswordHash
		existing.Code = a.Code
		existing.MasterCode = a.MasterCode
		existing.Status = a.Status
		existing.UpdatedAt = now
		out := *existing
		return &out, nil
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	s.accounts[a.ID] = &a
	out := a
	return &out, nil
}

func (s *Store) UpsertMaster(ctx context.Context, m models.MasterUser) error {
	s.PutMaster(m)
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, apperr.ErrAccountNotFound
	}
	out := *a
	return &out, nil
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Username == username {
			out := *a
			return &out, nil
		}
	}
	return nil, apperr.ErrAccountNotFound
}

func (s *Store) RateForAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return decimal.Zero, apperr.ErrAccountNotFound
	}
	m, ok := s.masters[a.MasterCode]
	if !ok {
		return decimal.Zero, nil
	}
	return m.Percentage, nil
}

// ---- settings ----

func (s *Store) GetModeSettings(ctx context.Context, mode string) (models.ModeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.settings[mode]; ok {
		return st, nil
	}
	return models.ModeSettings{Mode: mode, ResultMode: models.ResultModeAutomatic}, nil
}

func (s *Store) UpsertModeSettings(ctx context.Context, settings models.ModeSettings) (models.ModeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = s.clock.Now()
	s.settings[settings.Mode] = settings
	return settings, nil
}

func sortWagers(ws []models.Wager) {
	sort.Slice(ws, func(i, j int) bool {
		if !ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].CreatedAt.Before(ws[j].CreatedAt)
		}
		return ws[i].ID.String() < ws[j].ID.String()
	})
}

