package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-agent/internal/types"
)

type fakeBroker struct {
	logins  atomic.Int64
	failAll bool
	expiry  time.Duration
	delay   time.Duration
}

func (f *fakeBroker) Login(ctx context.Context, account string) (types.SessionToken, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.logins.Add(1)
	if f.failAll {
		return types.SessionToken{}, errors.New("invalid credentials")
	}
	now := time.Now()
	return types.SessionToken{
		Value:     "tok",
		IssuedAt:  now,
		ExpiresAt: now.Add(f.expiry),
	}, nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, tok types.SessionToken, req types.OrderReq) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeBroker) CancelOrder(ctx context.Context, tok types.SessionToken, id string) (types.CancelResult, error) {
	return "", errors.New("not implemented")
}
func (f *fakeBroker) OrderStatus(ctx context.Context, tok types.SessionToken, id string) (types.OrderStatus, error) {
	return "", errors.New("not implemented")
}
func (f *fakeBroker) Margins(ctx context.Context, tok types.SessionToken) (types.Margins, error) {
	return types.Margins{}, errors.New("not implemented")
}
func (f *fakeBroker) HistoricalCandles(ctx context.Context, tok types.SessionToken, symbol, interval string, from, to time.Time) ([]types.Candle, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeBroker) LTP(ctx context.Context, tok types.SessionToken, symbol string) (float64, error) {
	return 0, errors.New("not implemented")
}

func TestGetCachesToken(t *testing.T) {
	brk := &fakeBroker{expiry: time.Hour}
	g := NewGuard(brk, 10*time.Minute)

	tok1, err := g.Get(context.Background(), "AB1234")
	require.NoError(t, err)
	tok2, err := g.Get(context.Background(), "AB1234")
	require.NoError(t, err)

	assert.Equal(t, tok1, tok2)
	assert.EqualValues(t, 1, brk.logins.Load())
}

func TestConcurrentGetSingleLogin(t *testing.T) {
	brk := &fakeBroker{expiry: time.Hour, delay: 20 * time.Millisecond}
	g := NewGuard(brk, 10*time.Minute)

	const callers = 25
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := g.Get(context.Background(), "AB1234")
			assert.NoError(t, err)
			assert.NotEmpty(t, tok.Value)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, brk.logins.Load(),
		"concurrent demand for one account must share a single login")
}

func TestExpiredTokenRenews(t *testing.T) {
	// Tokens expire immediately relative to the safety margin, so every
	// demand forces a renewal.
	brk := &fakeBroker{expiry: time.Minute}
	g := NewGuard(brk, 10*time.Minute)

	_, err := g.Get(context.Background(), "AB1234")
	require.NoError(t, err)
	_, err = g.Get(context.Background(), "AB1234")
	require.NoError(t, err)

	assert.EqualValues(t, 2, brk.logins.Load())
}

func TestInvalidateForcesRenewal(t *testing.T) {
	brk := &fakeBroker{expiry: time.Hour}
	g := NewGuard(brk, 10*time.Minute)

	_, err := g.Get(context.Background(), "AB1234")
	require.NoError(t, err)

	g.Invalidate("AB1234")

	_, err = g.Get(context.Background(), "AB1234")
	require.NoError(t, err)
	assert.EqualValues(t, 2, brk.logins.Load())
}

func TestRenewalFailureIsAuthenticationError(t *testing.T) {
	brk := &fakeBroker{failAll: true}
	g := NewGuard(brk, 10*time.Minute)

	_, err := g.Get(context.Background(), "AB1234")
	require.Error(t, err)

	var authErr *types.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "AB1234", authErr.Account)
}

func TestAccountsDoNotShareTokens(t *testing.T) {
	brk := &fakeBroker{expiry: time.Hour}
	g := NewGuard(brk, 10*time.Minute)

	_, err := g.Get(context.Background(), "AB1234")
	require.NoError(t, err)
	_, err = g.Get(context.Background(), "CD5678")
	require.NoError(t, err)

	assert.EqualValues(t, 2, brk.logins.Load())
}
