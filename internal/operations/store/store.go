// Package store holds the in-memory view of tracked positions, keyed by
// (symbol, origin). All mutation is serialized behind one mutex; readers
// only ever see fully committed copies.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"MarginTradeBot/internal/models"
)

// ErrZeroQuantity rejects upserts that would leave a qty-0 entry in the
// store; positions are removed, never zeroed.
var ErrZeroQuantity = errors.New("store: position quantity must be positive")

type key struct {
	symbol string
	origin models.Origin
}

// Drift is a disagreement between the cached and freshly fetched
// authoritative quantity or entry price for one symbol.
type Drift struct {
	Symbol  string
	OldQty  float64
	NewQty  float64
	OldSide models.Side
	NewSide models.Side
}

// SyncReport summarizes one authoritative replace of the exchange segment.
type SyncReport struct {
	Added   []string
	Removed []string
	Drifts  []Drift
}

type Store struct {
	mu        sync.RWMutex
	positions map[key]models.Position
	now       func() time.Time
}

func New() *Store {
	return &Store{
		positions: make(map[key]models.Position),
		now:       time.Now,
	}
}

// Upsert inserts or replaces the entry for (symbol, origin). Origins are
// never merged: a simulated entry and an exchange entry for the same
// symbol coexist as distinct records.
func (s *Store) Upsert(p models.Position) error {
	if p.Quantity <= 0 {
		return ErrZeroQuantity
	}
	p.Symbol = models.NormalizeSymbol(p.Symbol)
	if p.LastUpdated.IsZero() {
		p.LastUpdated = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[key{p.Symbol, p.Origin}] = p
	return nil
}

// Get returns the tracked position for symbol, preferring the exchange
// origin when both exist.
func (s *Store) Get(symbol string) (models.Position, bool) {
	symbol = models.NormalizeSymbol(symbol)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.positions[key{symbol, models.OriginExchange}]; ok {
		return p, true
	}
	p, ok := s.positions[key{symbol, models.OriginSimulated}]
	return p, ok
}

// GetByOrigin returns the entry for an exact (symbol, origin) pair.
func (s *Store) GetByOrigin(symbol string, origin models.Origin) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[key{models.NormalizeSymbol(symbol), origin}]
	return p, ok
}

// Remove deletes the entry for (symbol, origin). Removing a missing entry
// is a no-op.
func (s *Store) Remove(symbol string, origin models.Origin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, key{models.NormalizeSymbol(symbol), origin})
}

// ListOpen returns copies of all non-pending positions, ordered by symbol
// for stable iteration.
func (s *Store) ListOpen() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if p.Status == models.StatusOpen {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// List returns copies of every entry regardless of status.
func (s *Store) List() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol == out[j].Symbol {
			return out[i].Origin < out[j].Origin
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Len reports the number of tracked entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// SyncExchange atomically replaces the exchange-origin segment with the
// authoritative list. Exchange entries for symbols absent from the list
// are evicted, except pending entries whose order has not settled into a
// position row yet; exit parameters of surviving entries are preserved
// so reconciliation does not clobber TP/SL/trailing state. Simulated
// entries are never touched.
func (s *Store) SyncExchange(authoritative []models.Position) SyncReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report SyncReport
	seen := make(map[string]struct{}, len(authoritative))

	for _, p := range authoritative {
		if p.Quantity <= 0 {
			continue
		}
		p.Symbol = models.NormalizeSymbol(p.Symbol)
		p.Origin = models.OriginExchange
		if p.LastUpdated.IsZero() {
			p.LastUpdated = s.now()
		}
		seen[p.Symbol] = struct{}{}

		k := key{p.Symbol, models.OriginExchange}
		if prev, ok := s.positions[k]; ok {
			if prev.Quantity != p.Quantity || prev.Side != p.Side {
				report.Drifts = append(report.Drifts, Drift{
					Symbol:  p.Symbol,
					OldQty:  prev.Quantity,
					NewQty:  p.Quantity,
					OldSide: prev.Side,
					NewSide: p.Side,
				})
			}
			p.TakeProfitPrice = prev.TakeProfitPrice
			p.StopLossPrice = prev.StopLossPrice
			p.TrailingActive = prev.TrailingActive
			p.TrailingPercent = prev.TrailingPercent
			p.TrailingActivation = prev.TrailingActivation
		} else {
			report.Added = append(report.Added, p.Symbol)
		}
		s.positions[k] = p
	}

	for k, p := range s.positions {
		if k.origin != models.OriginExchange {
			continue
		}
		// A pending entry's order may not have produced an exchange
		// position row yet; leave it for pending resolution.
		if p.Status == models.StatusPending {
			continue
		}
		if _, ok := seen[k.symbol]; !ok {
			report.Removed = append(report.Removed, k.symbol)
			delete(s.positions, k)
		}
	}

	sort.Strings(report.Added)
	sort.Strings(report.Removed)
	return report
}

// EvictStale removes entries whose LastUpdated is older than ttl,
// returning the evicted symbols.
func (s *Store) EvictStale(ttl time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	var evicted []string
	for k, p := range s.positions {
		if p.LastUpdated.Before(cutoff) {
			evicted = append(evicted, k.symbol)
			delete(s.positions, k)
		}
	}
	sort.Strings(evicted)
	return evicted
}
