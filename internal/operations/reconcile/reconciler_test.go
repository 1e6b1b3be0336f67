package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarginTradeBot/internal/models"
	"MarginTradeBot/internal/operations/store"
	"MarginTradeBot/internal/services/notify"
)

type fakeSource struct {
	rows []models.ExchangePosition
	err  error
}

func (f *fakeSource) Positions(context.Context) ([]models.ExchangePosition, error) {
	return f.rows, f.err
}

type captureNotifier struct {
	events []notify.Event
}

func (c *captureNotifier) Notify(e notify.Event) { c.events = append(c.events, e) }

func TestRunOnce_AdoptsNegativeAmountAsShort(t *testing.T) {
	src := &fakeSource{rows: []models.ExchangePosition{
		{Symbol: "ETHUSDT", SignedAmount: -2.0, EntryPrice: 3000, MarkPrice: 2990, Leverage: 10},
	}}
	st := store.New()
	r := New(src, st, nil, 20*time.Second)

	r.RunOnce(context.Background())

	pos, ok := st.GetByOrigin("ETHUSDT", models.OriginExchange)
	require.True(t, ok)
	assert.Equal(t, models.SideShort, pos.Side)
	assert.Equal(t, 2.0, pos.Quantity)
	assert.Equal(t, 3000.0, pos.EntryPrice)
	assert.Equal(t, models.StatusOpen, pos.Status)
}

func TestRunOnce_FetchFailureLeavesCacheUntouched(t *testing.T) {
	st := store.New()
	require.NoError(t, st.Upsert(models.Position{
		Symbol:     "BTCUSDT",
		Side:       models.SideLong,
		Quantity:   0.5,
		EntryPrice: 50000,
		Origin:     models.OriginExchange,
		Status:     models.StatusOpen,
	}))

	src := &fakeSource{err: errors.New("dial tcp: i/o timeout")}
	New(src, st, nil, 20*time.Second).RunOnce(context.Background())

	pos, ok := st.GetByOrigin("BTCUSDT", models.OriginExchange)
	require.True(t, ok, "a failed fetch must not look like a flat account")
	assert.Equal(t, 0.5, pos.Quantity)
}

func TestRunOnce_NotifiesDrift(t *testing.T) {
	st := store.New()
	require.NoError(t, st.Upsert(models.Position{
		Symbol:     "BTCUSDT",
		Side:       models.SideLong,
		Quantity:   0.5,
		EntryPrice: 50000,
		Origin:     models.OriginExchange,
		Status:     models.StatusOpen,
	}))

	src := &fakeSource{rows: []models.ExchangePosition{
		{Symbol: "BTCUSDT", SignedAmount: 0.3, EntryPrice: 50000},
	}}
	n := &captureNotifier{}
	New(src, st, n, 20*time.Second).RunOnce(context.Background())

	require.Len(t, n.events, 1)
	assert.Equal(t, notify.EventDrift, n.events[0].Type)

	pos, _ := st.GetByOrigin("BTCUSDT", models.OriginExchange)
	assert.Equal(t, 0.3, pos.Quantity, "exchange quantity wins on drift")
}

func TestRunOnce_SparesSimulatedPositions(t *testing.T) {
	st := store.New()
	require.NoError(t, st.Upsert(models.Position{
		Symbol:   "SOLUSDT",
		Side:     models.SideLong,
		Quantity: 10,
		Origin:   models.OriginSimulated,
		Status:   models.StatusOpen,
	}))

	New(&fakeSource{}, st, nil, 20*time.Second).RunOnce(context.Background())

	_, ok := st.GetByOrigin("SOLUSDT", models.OriginSimulated)
	assert.True(t, ok)
}

func TestRunOnce_SkipsZeroAmountRows(t *testing.T) {
	src := &fakeSource{rows: []models.ExchangePosition{
		{Symbol: "BTCUSDT", SignedAmount: 0},
	}}
	st := store.New()
	New(src, st, nil, 20*time.Second).RunOnce(context.Background())
	assert.Zero(t, st.Len())
}
