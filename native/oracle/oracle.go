package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// PriceScale is the fixed-point scale used for all quoted prices: a quote of
// 1_000_000 means one whole collateral unit is worth exactly one stable unit.
const PriceScale = 1_000_000

// PriceQuote captures a price for a single asset along with the observation
// timestamp reported by the upstream feed and the feed identifier.
type PriceQuote struct {
	Value     *big.Int
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Value != nil {
		clone.Value = new(big.Int).Set(q.Value)
	}
	return clone
}

// Source resolves the current price for an asset symbol.
type Source interface {
	GetPrice(asset string) (PriceQuote, error)
}

// ErrNoFreshQuote indicates that no registered feed produced a quote within
// the configured freshness window.
var ErrNoFreshQuote = errors.New("oracle: no fresh quote available")

// Manual provides an in-memory oracle implementation used for tests and
// manual overrides during incident response.
type Manual struct {
	mu     sync.RWMutex
	quotes map[string]PriceQuote
}

// NewManual constructs an empty manual oracle instance.
func NewManual() *Manual {
	return &Manual{quotes: make(map[string]PriceQuote)}
}

// Set stores the provided price for the asset.
func (m *Manual) Set(asset string, value *big.Int, ts time.Time) {
	if m == nil || value == nil || value.Sign() <= 0 {
		return
	}
	key := normaliseSymbol(asset)
	if key == "" {
		return
	}
	m.mu.Lock()
	m.quotes[key] = PriceQuote{Value: new(big.Int).Set(value), Timestamp: ts, Source: "manual"}
	m.mu.Unlock()
}

// GetPrice retrieves the stored price for the asset.
func (m *Manual) GetPrice(asset string) (PriceQuote, error) {
	if m == nil {
		return PriceQuote{}, fmt.Errorf("manual oracle not configured")
	}
	key := normaliseSymbol(asset)
	m.mu.RLock()
	stored, ok := m.quotes[key]
	m.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("manual oracle: quote for %s not found", asset)
	}
	return stored.Clone(), nil
}

// Aggregator consults a list of registered sources in priority order until a
// fresh quote is obtained.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]Source
	maxAge   time.Duration
}

// NewAggregator constructs a new aggregator with the provided priority and
// freshness window.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	return &Aggregator{
		priority: append([]string{}, priority...),
		sources:  make(map[string]Source),
		maxAge:   maxAge,
	}
}

// Register adds or replaces a source under the supplied identifier.
// Identifiers are stored in lowercase so lookups remain consistent regardless
// of configuration casing.
func (a *Aggregator) Register(name string, source Source) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources[trimmed] = source
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// GetPrice fetches a price from the configured sources respecting the
// priority ordering and the freshness window.
func (a *Aggregator) GetPrice(asset string) (PriceQuote, error) {
	if a == nil {
		return PriceQuote{}, fmt.Errorf("oracle aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	a.mu.RUnlock()

	symbol := normaliseSymbol(asset)
	if symbol == "" {
		return PriceQuote{}, fmt.Errorf("oracle: asset symbol required")
	}

	var lastErr error
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	for _, name := range priority {
		a.mu.RLock()
		source := a.sources[name]
		a.mu.RUnlock()
		if source == nil {
			continue
		}
		quote, err := source.GetPrice(symbol)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Value == nil || quote.Value.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle %s returned invalid price", name)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = name
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return PriceQuote{}, lastErr
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
