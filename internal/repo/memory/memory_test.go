package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-agent/internal/types"
)

func openPosition(id, symbol string) *types.Position {
	return &types.Position{
		ID:       id,
		Account:  "AB1234",
		Symbol:   symbol,
		Qty:      10,
		AvgPrice: 2500,
		OpenedAt: time.Now(),
	}
}

func TestSaveAndFindOpenPosition(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.SavePosition(ctx, openPosition("p1", "RELIANCE")))

	got, err := r.FindOpenByInstrument(ctx, "AB1234", "RELIANCE")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ID)

	got, err = r.FindOpenByInstrument(ctx, "AB1234", "TCS")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.FindOpenByInstrument(ctx, "XY9999", "RELIANCE")
	require.NoError(t, err)
	assert.Nil(t, got, "positions are scoped per account")
}

func TestClosedPositionsAreArchivedNotOpen(t *testing.T) {
	r := New()
	ctx := context.Background()

	p := openPosition("p1", "RELIANCE")
	closed := time.Now()
	p.Qty = 0
	p.ClosedAt = &closed
	require.NoError(t, r.SavePosition(ctx, p))

	open, err := r.FindOpenByInstrument(ctx, "AB1234", "RELIANCE")
	require.NoError(t, err)
	assert.Nil(t, open)

	// The record survives for history lookups.
	hist, err := r.FindBySymbol(ctx, "AB1234", "RELIANCE")
	require.NoError(t, err)
	require.NotNil(t, hist)
	assert.Equal(t, "p1", hist.ID)
}

func TestFindBySymbolPrefersOpenRecord(t *testing.T) {
	r := New()
	ctx := context.Background()

	old := openPosition("p1", "RELIANCE")
	old.OpenedAt = time.Now().Add(-48 * time.Hour)
	closed := time.Now().Add(-24 * time.Hour)
	old.Qty = 0
	old.ClosedAt = &closed
	require.NoError(t, r.SavePosition(ctx, old))
	require.NoError(t, r.SavePosition(ctx, openPosition("p2", "RELIANCE")))

	got, err := r.FindBySymbol(ctx, "AB1234", "RELIANCE")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p2", got.ID)
}

func TestListOpenSkipsClosed(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.SavePosition(ctx, openPosition("p1", "RELIANCE")))
	require.NoError(t, r.SavePosition(ctx, openPosition("p2", "TCS")))
	closed := openPosition("p3", "INFY")
	now := time.Now()
	closed.Qty = 0
	closed.ClosedAt = &now
	require.NoError(t, r.SavePosition(ctx, closed))

	open, err := r.ListOpen(ctx, "AB1234")
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestPositionReadsNeverAliasStore(t *testing.T) {
	r := New()
	ctx := context.Background()

	p := openPosition("p1", "RELIANCE")
	p.ReentryPrices = []float64{2450}
	require.NoError(t, r.SavePosition(ctx, p))

	// Mutating the caller's record after save must not leak in.
	p.Qty = 999
	p.ReentryPrices[0] = 1

	got, err := r.FindOpenByInstrument(ctx, "AB1234", "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Qty)
	assert.Equal(t, 2450.0, got.ReentryPrices[0])

	// Mutating a read result must not leak back either.
	got.Qty = 1
	again, err := r.FindOpenByInstrument(ctx, "AB1234", "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 10, again.Qty)
}

func TestFindPendingByAccountExcludesTerminal(t *testing.T) {
	r := New()
	ctx := context.Background()

	save := func(id string, status types.OrderStatus) {
		require.NoError(t, r.SaveOrder(ctx, &types.Order{
			BrokerID: id, Account: "AB1234", Symbol: "RELIANCE",
			Side: types.SideBuy, Kind: types.KindMarket, Status: status, Qty: 1,
		}))
	}
	save("o1", types.StatusPending)
	save("o2", types.StatusOpen)
	save("o3", types.StatusExecuted)
	save("o4", types.StatusCancelled)
	save("o5", types.StatusRejected)

	pending, err := r.FindPendingByAccount(ctx, "AB1234")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, o := range pending {
		assert.False(t, o.Status.Terminal(), o.BrokerID)
	}
}

func TestFindOpenSellByInstrument(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.SaveOrder(ctx, &types.Order{
		BrokerID: "buy", Account: "AB1234", Symbol: "RELIANCE",
		Side: types.SideBuy, Kind: types.KindMarket, Status: types.StatusOpen, Qty: 10,
	}))
	require.NoError(t, r.SaveOrder(ctx, &types.Order{
		BrokerID: "done-sell", Account: "AB1234", Symbol: "RELIANCE",
		Side: types.SideSell, Kind: types.KindLimit, Status: types.StatusExecuted, Qty: 10,
	}))

	got, err := r.FindOpenSellByInstrument(ctx, "AB1234", "RELIANCE")
	require.NoError(t, err)
	assert.Nil(t, got, "buys and terminal sells are not resting exits")

	require.NoError(t, r.SaveOrder(ctx, &types.Order{
		BrokerID: "live-sell", Account: "AB1234", Symbol: "RELIANCE",
		Side: types.SideSell, Kind: types.KindLimit, Status: types.StatusOpen, Qty: 10, Price: 2625,
	}))

	got, err = r.FindOpenSellByInstrument(ctx, "AB1234", "RELIANCE")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "live-sell", got.BrokerID)
}

func TestOrderMetaIsDeepCopied(t *testing.T) {
	r := New()
	ctx := context.Background()

	rsi := 27.5
	require.NoError(t, r.SaveOrder(ctx, &types.Order{
		BrokerID: "o1", Account: "AB1234", Symbol: "RELIANCE",
		Side: types.SideBuy, Kind: types.KindMarket, Status: types.StatusPending, Qty: 1,
		Meta: types.OrderMeta{EntryRSI: &rsi},
	}))

	rsi = 99
	got, err := r.FindOrder(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got.Meta.EntryRSI)
	assert.Equal(t, 27.5, *got.Meta.EntryRSI)
}
