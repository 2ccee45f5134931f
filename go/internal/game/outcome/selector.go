package outcome

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CommissionLookup resolves the commission percentage attributed to an account's referrer.
// A zero rate means no commission.
type CommissionLookup interface {
	RateForAccount(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
}

// Liability is the house exposure if Option were the outcome.
type Liability struct {
	Option     string          `json:"option"`
	Wagers     int             `json:"wagers"`
	Stake      decimal.Decimal `json:"stake"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
}

// Selector picks the option with the smallest net liability.
type Selector struct {
	commissions CommissionLookup

	mu  sync.Mutex
	rng *rand.Rand
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithRand sets the source used to break ties.
func WithRand(rng *rand.Rand) SelectorOption {
	return func(s *Selector) {
		s.rng = rng
	}
}

// WithSeed seeds the tie-break source.
func WithSeed(seed int64) SelectorOption {
	return WithRand(rand.New(rand.NewSource(seed)))
}

// NewSelector constructs a Selector with its own seed unless one is supplied.
func NewSelector(commissions CommissionLookup, opts ...SelectorOption) *Selector {
	s := &Selector{
		commissions: commissions,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Liabilities returns one entry per mode option, in option order.
func (s *Selector) Liabilities(ctx context.Context, mode models.Mode, wagers []models.Wager) []Liability {
	return ComputeLiabilities(mode, wagers, s.rates(ctx, wagers))
}

// Select returns the winning option for a round along with the liabilities it was chosen from.
func (s *Selector) Select(ctx context.Context, mode models.Mode, wagers []models.Wager) (string, []Liability, error) {
	if len(mode.Options) == 0 {
		return "", nil, fmt.Errorf("mode %s has no options", mode.ID)
	}

	liabilities := s.Liabilities(ctx, mode, wagers)

	s.mu.Lock()
	winner := Pick(liabilities, s.rng)
	s.mu.Unlock()

	return winner, liabilities, nil
}

// rates looks up each distinct account once. A failed lookup counts as no commission.
func (s *Selector) rates(ctx context.Context, wagers []models.Wager) map[uuid.UUID]decimal.Decimal {
	rates := make(map[uuid.UUID]decimal.Decimal)
	if s.commissions == nil {
		return rates
	}
	for _, w := range wagers {
		if _, seen := rates[w.AccountID]; seen {
			continue
		}
		rate, err := s.commissions.RateForAccount(ctx, w.AccountID)
		if err != nil {
			log.Warn().
				Err(err).
				Str("account_id", w.AccountID.String()).
				Msg("commission lookup failed, using zero rate")
			rate = decimal.Zero
		}
		rates[w.AccountID] = rate
	}
	return rates
}

// ComputeLiabilities aggregates wagers per option:
// net = sum(stake)*multiplier - sum(stake*rate/100).
// Wagers on options outside the mode are ignored.
func ComputeLiabilities(mode models.Mode, wagers []models.Wager, rates map[uuid.UUID]decimal.Decimal) []Liability {
	index := make(map[string]int, len(mode.Options))
	out := make([]Liability, len(mode.Options))
	for i, option := range mode.Options {
		index[option] = i
		out[i] = Liability{
			Option:     option,
			Stake:      decimal.Zero,
			Gross:      decimal.Zero,
			Commission: decimal.Zero,
			Net:        decimal.Zero,
		}
	}

	for _, w := range wagers {
		i, ok := index[w.Option]
		if !ok {
			log.Warn().
				Str("wager_id", w.ID.String()).
				Str("option", w.Option).
				Str("mode", mode.ID).
				Msg("wager on unknown option ignored")
			continue
		}
		out[i].Wagers++
		out[i].Stake = out[i].Stake.Add(w.Stake)
		if rate, ok := rates[w.AccountID]; ok && !rate.IsZero() {
			out[i].Commission = out[i].Commission.Add(w.Stake.Mul(rate).Div(hundred))
		}
	}

	for i := range out {
		out[i].Gross = out[i].Stake.Mul(mode.Multiplier)
		out[i].Net = out[i].Gross.Sub(out[i].Commission)
	}
	return out
}

// Lowest returns the options sharing the minimal net liability, in input order.
func Lowest(liabilities []Liability) []string {
	var (
		tied  []string
		floor decimal.Decimal
	)
	for i, l := range liabilities {
		switch {
		case i == 0 || l.Net.LessThan(floor):
			floor = l.Net
			tied = append(tied[:0], l.Option)
		case l.Net.Equal(floor):
			tied = append(tied, l.Option)
		}
	}
	return tied
}

// Pick returns the argmin option, choosing uniformly among ties with rng.
func Pick(liabilities []Liability, rng *rand.Rand) string {
	tied := Lowest(liabilities)
	switch len(tied) {
	case 0:
		return ""
	case 1:
		return tied[0]
	default:
		return tied[rng.Intn(len(tied))]
	}
}
