package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/repo/memory"
	"trade-agent/internal/resilience"
	"trade-agent/internal/types"
)

type stubGuard struct{}

func (stubGuard) Get(ctx context.Context, account string) (types.SessionToken, error) {
	return types.SessionToken{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}
func (stubGuard) Invalidate(account string) {}

type fakeBroker struct {
	mu           sync.Mutex
	placeCalls   atomic.Int64
	placeErr     error
	cancelResult types.CancelResult
	cancelErr    error
	cancelDelay  time.Duration
	statuses     map[string]types.OrderStatus
	nextID       int
}

func (f *fakeBroker) Login(ctx context.Context, account string) (types.SessionToken, error) {
	return types.SessionToken{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, tok types.SessionToken, req types.OrderReq) (string, error) {
	f.placeCalls.Add(1)
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("ORD-%d", f.nextID), nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, tok types.SessionToken, id string) (types.CancelResult, error) {
	if f.cancelDelay > 0 {
		time.Sleep(f.cancelDelay)
	}
	if f.cancelErr != nil {
		return "", f.cancelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelResult != "" {
		return f.cancelResult, nil
	}
	return types.CancelOK, nil
}

func (f *fakeBroker) OrderStatus(ctx context.Context, tok types.SessionToken, id string) (types.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.statuses[id]; ok {
		return st, nil
	}
	return types.StatusOpen, nil
}

func (f *fakeBroker) Margins(ctx context.Context, tok types.SessionToken) (types.Margins, error) {
	return types.Margins{AvailableCash: 100000}, nil
}

func (f *fakeBroker) HistoricalCandles(ctx context.Context, tok types.SessionToken, symbol, interval string, from, to time.Time) ([]types.Candle, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBroker) LTP(ctx context.Context, tok types.SessionToken, symbol string) (float64, error) {
	return 100, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(ctx context.Context, event, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func testCoordinator(t *testing.T, brk *fakeBroker) (*Coordinator, *memory.Repo, *recordingNotifier) {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	guard := stubGuard{}
	policy := resilience.Policy{
		BaseDelay:   time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    5 * time.Millisecond,
		MaxAttempts: 2,
		Retryable:   types.IsTransient,
	}
	exec := resilience.NewExecutor("AB1234", policy, resilience.DefaultBreakerSettings(), guard)
	repo := memory.New()
	notifier := &recordingNotifier{}
	return NewCoordinator(brk, exec, repo, notifier), repo, notifier
}

func restingLimitSell(t *testing.T, repo *memory.Repo, id string) *types.Order {
	t.Helper()
	o := &types.Order{
		BrokerID: id,
		Account:  "AB1234",
		Symbol:   "RELIANCE",
		Side:     types.SideSell,
		Kind:     types.KindLimit,
		Validity: types.ValidityDay,
		Status:   types.StatusOpen,
		Qty:      5,
		Price:    2600,
		Entry:    types.EntryFresh,
		PlacedAt: time.Now(),
	}
	require.NoError(t, repo.SaveOrder(context.Background(), o))
	return o
}

func TestPlacePersistsPendingOrder(t *testing.T) {
	brk := &fakeBroker{}
	c, repo, _ := testCoordinator(t, brk)

	rsi := 27.4
	order, err := c.Place(context.Background(), types.OrderReq{
		Account:  "AB1234",
		Symbol:   "RELIANCE",
		Side:     types.SideBuy,
		Kind:     types.KindMarket,
		Validity: types.ValidityDay,
		Qty:      5,
	}, types.EntryFresh, types.OrderMeta{EntryRSI: &rsi})
	require.NoError(t, err)

	assert.Equal(t, types.StatusPending, order.Status)

	stored, err := repo.FindOrder(context.Background(), order.BrokerID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	v, ok := stored.Meta.Resolve()
	require.True(t, ok)
	assert.Equal(t, 27.4, v)
}

func TestCancelAlreadyExecutedMarksFilled(t *testing.T) {
	brk := &fakeBroker{cancelResult: types.CancelAlreadyExecuted}
	c, repo, _ := testCoordinator(t, brk)
	o := restingLimitSell(t, repo, "ORD-SELL")

	res, err := c.Cancel(context.Background(), o.BrokerID)
	require.NoError(t, err)
	assert.Equal(t, types.CancelAlreadyExecuted, res)

	stored, _ := repo.FindOrder(context.Background(), o.BrokerID)
	assert.Equal(t, types.StatusExecuted, stored.Status)
}

func TestConvertReplacesLimitWithMarket(t *testing.T) {
	brk := &fakeBroker{}
	c, repo, _ := testCoordinator(t, brk)
	o := restingLimitSell(t, repo, "ORD-SELL")

	outcome, replacement, err := c.ConvertToMarketExit(context.Background(), o.BrokerID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ConvertReplaced, outcome)
	require.NotNil(t, replacement)
	assert.Equal(t, types.KindMarket, replacement.Kind)
	assert.Equal(t, types.SideSell, replacement.Side)
	assert.Equal(t, o.Qty, replacement.Qty)

	original, _ := repo.FindOrder(context.Background(), o.BrokerID)
	assert.Equal(t, types.StatusCancelled, original.Status)
}

func TestConvertAlreadyExecutedPlacesNoReplacement(t *testing.T) {
	brk := &fakeBroker{cancelResult: types.CancelAlreadyExecuted}
	c, repo, _ := testCoordinator(t, brk)
	o := restingLimitSell(t, repo, "ORD-SELL")

	outcome, _, err := c.ConvertToMarketExit(context.Background(), o.BrokerID)
	require.NoError(t, err, "a fill winning the race is a success, not an error")
	assert.Equal(t, interfaces.ConvertAlreadyExecuted, outcome)
	assert.EqualValues(t, 0, brk.placeCalls.Load(),
		"no market replacement after the limit filled")

	stored, _ := repo.FindOrder(context.Background(), o.BrokerID)
	assert.Equal(t, types.StatusExecuted, stored.Status)
}

func TestConvertTerminalOrderIsNoop(t *testing.T) {
	brk := &fakeBroker{}
	c, repo, _ := testCoordinator(t, brk)
	o := restingLimitSell(t, repo, "ORD-SELL")
	o.Status = types.StatusCancelled
	require.NoError(t, repo.SaveOrder(context.Background(), o))

	outcome, _, err := c.ConvertToMarketExit(context.Background(), o.BrokerID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ConvertNoop, outcome)
	assert.EqualValues(t, 0, brk.placeCalls.Load())
}

func TestConvertCancelFailureLeavesOrderResting(t *testing.T) {
	brk := &fakeBroker{cancelErr: types.Rejected("cancel_order", errors.New("exchange closed"))}
	c, repo, _ := testCoordinator(t, brk)
	o := restingLimitSell(t, repo, "ORD-SELL")

	_, _, err := c.ConvertToMarketExit(context.Background(), o.BrokerID)
	require.Error(t, err)

	stored, _ := repo.FindOrder(context.Background(), o.BrokerID)
	assert.Equal(t, types.StatusOpen, stored.Status,
		"a failed cancel leaves the resting limit order untouched")
}

func TestConvertDanglingExitEscalates(t *testing.T) {
	brk := &fakeBroker{placeErr: types.Rejected("place_order", errors.New("margin exhausted"))}
	c, repo, notifier := testCoordinator(t, brk)
	o := restingLimitSell(t, repo, "ORD-SELL")

	_, _, err := c.ConvertToMarketExit(context.Background(), o.BrokerID)
	require.Error(t, err)

	var dangling *types.DanglingExitError
	require.ErrorAs(t, err, &dangling)
	assert.Equal(t, "RELIANCE", dangling.Symbol)
	assert.Equal(t, o.BrokerID, dangling.OrderID)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.events, "escalation")
}

func TestConcurrentConvertsPlaceOneReplacement(t *testing.T) {
	brk := &fakeBroker{cancelDelay: 10 * time.Millisecond}
	c, repo, _ := testCoordinator(t, brk)
	o := restingLimitSell(t, repo, "ORD-SELL")

	const racers = 8
	outcomes := make(chan interfaces.ConvertOutcome, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, _, err := c.ConvertToMarketExit(context.Background(), o.BrokerID)
			if err == nil {
				outcomes <- outcome
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	replaced := 0
	for outcome := range outcomes {
		if outcome == interfaces.ConvertReplaced {
			replaced++
		}
	}
	assert.Equal(t, 1, replaced, "exactly one racer may replace the order")
	assert.EqualValues(t, 1, brk.placeCalls.Load())
}

func TestPollStatusDropsIllegalTransition(t *testing.T) {
	brk := &fakeBroker{statuses: map[string]types.OrderStatus{"ORD-SELL": types.StatusExecuted}}
	c, repo, _ := testCoordinator(t, brk)
	o := restingLimitSell(t, repo, "ORD-SELL")

	st, err := c.PollStatus(context.Background(), o.BrokerID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, st)

	// A stale poll result must not resurrect a terminal record.
	brk.mu.Lock()
	brk.statuses["ORD-SELL"] = types.StatusOpen
	brk.mu.Unlock()

	_, err = c.PollStatus(context.Background(), o.BrokerID)
	require.NoError(t, err)

	stored, _ := repo.FindOrder(context.Background(), o.BrokerID)
	assert.Equal(t, types.StatusExecuted, stored.Status)
}
