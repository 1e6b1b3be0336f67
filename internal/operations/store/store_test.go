package store

import (
	"testing"
	"time"

	"MarginTradeBot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPosition(symbol string, origin models.Origin, qty float64) models.Position {
	return models.Position{
		Symbol:     symbol,
		Side:       models.SideLong,
		Quantity:   qty,
		EntryPrice: 100,
		Origin:     origin,
		Status:     models.StatusOpen,
	}
}

func TestUpsert_OnePerSymbolAndOrigin(t *testing.T) {
	s := New()
	require.NoError(t, s.Upsert(openPosition("BTCUSDT", models.OriginExchange, 1)))
	require.NoError(t, s.Upsert(openPosition("BTCUSDT", models.OriginExchange, 2)))
	require.NoError(t, s.Upsert(openPosition("BTCUSDT", models.OriginSimulated, 3)))

	// Same (symbol, origin) replaces; different origin coexists.
	assert.Equal(t, 2, s.Len())

	p, ok := s.GetByOrigin("BTCUSDT", models.OriginExchange)
	require.True(t, ok)
	assert.Equal(t, 2.0, p.Quantity)
}

func TestUpsert_RejectsZeroQuantity(t *testing.T) {
	s := New()
	err := s.Upsert(openPosition("BTCUSDT", models.OriginExchange, 0))
	assert.ErrorIs(t, err, ErrZeroQuantity)
	assert.Zero(t, s.Len())
}

func TestGet_PrefersExchangeOrigin(t *testing.T) {
	s := New()
	require.NoError(t, s.Upsert(openPosition("ethusdt", models.OriginSimulated, 5)))
	require.NoError(t, s.Upsert(openPosition("ETHUSDT", models.OriginExchange, 7)))

	p, ok := s.Get("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, models.OriginExchange, p.Origin)
	assert.Equal(t, 7.0, p.Quantity)
}

func TestSyncExchange_EvictsAbsentSymbols(t *testing.T) {
	s := New()
	require.NoError(t, s.Upsert(openPosition("BTCUSDT", models.OriginExchange, 1)))
	require.NoError(t, s.Upsert(openPosition("ETHUSDT", models.OriginExchange, 2)))
	require.NoError(t, s.Upsert(openPosition("SOLUSDT", models.OriginSimulated, 3)))

	report := s.SyncExchange([]models.Position{openPosition("BTCUSDT", models.OriginExchange, 1)})

	assert.Equal(t, []string{"ETHUSDT"}, report.Removed)
	_, ok := s.GetByOrigin("ETHUSDT", models.OriginExchange)
	assert.False(t, ok)

	// Simulated entries survive authoritative replaces untouched.
	_, ok = s.GetByOrigin("SOLUSDT", models.OriginSimulated)
	assert.True(t, ok)
}

func TestSyncExchange_SparesPendingEntries(t *testing.T) {
	s := New()
	pending := openPosition("BTCUSDT", models.OriginExchange, 0.01)
	pending.Status = models.StatusPending
	pending.OrderID = 42
	require.NoError(t, s.Upsert(pending))

	report := s.SyncExchange(nil)

	// A freshly placed order has no exchange position row yet; the
	// authoritative list must not evict it out from under pending
	// resolution.
	assert.Empty(t, report.Removed)
	got, ok := s.GetByOrigin("BTCUSDT", models.OriginExchange)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(42), got.OrderID)
}

func TestSyncExchange_ReportsDrift(t *testing.T) {
	s := New()
	require.NoError(t, s.Upsert(openPosition("BTCUSDT", models.OriginExchange, 1)))

	report := s.SyncExchange([]models.Position{openPosition("BTCUSDT", models.OriginExchange, 1.5)})

	require.Len(t, report.Drifts, 1)
	assert.Equal(t, 1.0, report.Drifts[0].OldQty)
	assert.Equal(t, 1.5, report.Drifts[0].NewQty)

	p, _ := s.GetByOrigin("BTCUSDT", models.OriginExchange)
	assert.Equal(t, 1.5, p.Quantity, "fresh quantity overwrites the cache")
}

func TestSyncExchange_PreservesExitParameters(t *testing.T) {
	s := New()
	p := openPosition("BTCUSDT", models.OriginExchange, 1)
	p.TakeProfitPrice = 110
	p.StopLossPrice = 95
	p.TrailingActive = true
	p.TrailingPercent = 0.5
	require.NoError(t, s.Upsert(p))

	s.SyncExchange([]models.Position{openPosition("BTCUSDT", models.OriginExchange, 1)})

	got, _ := s.GetByOrigin("BTCUSDT", models.OriginExchange)
	assert.Equal(t, 110.0, got.TakeProfitPrice)
	assert.Equal(t, 95.0, got.StopLossPrice)
	assert.True(t, got.TrailingActive)
}

func TestSyncExchange_SkipsZeroQuantityRows(t *testing.T) {
	s := New()
	report := s.SyncExchange([]models.Position{openPosition("BTCUSDT", models.OriginExchange, 0)})
	assert.Empty(t, report.Added)
	assert.Zero(t, s.Len())
}

func TestEvictStale(t *testing.T) {
	s := New()
	now := time.Now()
	s.now = func() time.Time { return now }

	fresh := openPosition("BTCUSDT", models.OriginExchange, 1)
	fresh.LastUpdated = now.Add(-10 * time.Minute)
	stale := openPosition("ETHUSDT", models.OriginExchange, 1)
	stale.LastUpdated = now.Add(-2 * time.Hour)
	require.NoError(t, s.Upsert(fresh))
	require.NoError(t, s.Upsert(stale))

	evicted := s.EvictStale(time.Hour)

	assert.Equal(t, []string{"ETHUSDT"}, evicted)
	assert.Equal(t, 1, s.Len())
}

func TestListOpen_SkipsPending(t *testing.T) {
	s := New()
	open := openPosition("BTCUSDT", models.OriginExchange, 1)
	pending := openPosition("ETHUSDT", models.OriginExchange, 1)
	pending.Status = models.StatusPending
	require.NoError(t, s.Upsert(open))
	require.NoError(t, s.Upsert(pending))

	list := s.ListOpen()
	require.Len(t, list, 1)
	assert.Equal(t, "BTCUSDT", list[0].Symbol)
}
