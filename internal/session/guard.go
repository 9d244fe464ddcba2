// Package session owns the authenticated broker session, one per account.
// All tasks share the token through the guard; renewal is serialized per
// account so a genuine expiry triggers exactly one network login no matter
// how many tasks observe it concurrently.
package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
	"trade-agent/internal/metrics"
	"trade-agent/internal/types"
)

type Guard struct {
	broker interfaces.Broker
	// margin keeps a safety window before the expiry estimate so calls in
	// flight do not straddle it
	margin time.Duration

	mu     sync.RWMutex
	tokens map[string]types.SessionToken

	renewals singleflight.Group

	// injectable clock for tests
	now func() time.Time
}

var _ interfaces.SessionGuard = (*Guard)(nil)

func NewGuard(broker interfaces.Broker, renewMargin time.Duration) *Guard {
	return &Guard{
		broker: broker,
		margin: renewMargin,
		tokens: make(map[string]types.SessionToken),
		now:    time.Now,
	}
}

// Get returns a usable session token for the account, renewing if the held
// token is expired or about to expire. Concurrent callers for one account
// share a single renewal; callers for unrelated accounts never contend.
// Renewal failure returns *types.AuthenticationError and is not retried here.
func (g *Guard) Get(ctx context.Context, account string) (types.SessionToken, error) {
	if tok, ok := g.cached(account); ok {
		return tok, nil
	}

	v, err, shared := g.renewals.Do(account, func() (any, error) {
		// A renewal that completed while we queued may already have
		// refreshed the token.
		if tok, ok := g.cached(account); ok {
			return tok, nil
		}
		tok, err := g.renew(ctx, account)
		if err != nil {
			return nil, err
		}
		return tok, nil
	})
	if err != nil {
		return types.SessionToken{}, err
	}

	tok := v.(types.SessionToken)
	if shared {
		logger.Debug(ctx, "Session renewal shared with concurrent caller", "account", account)
	}
	return tok, nil
}

// Invalidate marks the current token unusable. Called by the executor when
// it observes an authentication failure from the broker.
func (g *Guard) Invalidate(account string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tokens, account)
}

func (g *Guard) cached(account string) (types.SessionToken, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tok, ok := g.tokens[account]
	if !ok || !tok.Usable(g.now(), g.margin) {
		return types.SessionToken{}, false
	}
	return tok, true
}

func (g *Guard) renew(ctx context.Context, account string) (types.SessionToken, error) {
	logger.Info(ctx, "Renewing broker session", "account", account)

	tok, err := g.broker.Login(ctx, account)
	if err != nil {
		metrics.SessionRenewals.WithLabelValues("error").Inc()
		logger.ErrorWithErr(ctx, "Session renewal failed", err, "account", account)
		return types.SessionToken{}, &types.AuthenticationError{Account: account, Err: err}
	}
	metrics.SessionRenewals.WithLabelValues("ok").Inc()

	g.mu.Lock()
	g.tokens[account] = tok
	g.mu.Unlock()

	logger.Info(ctx, "Session renewed", "account", account, "expires_at", tok.ExpiresAt)
	return tok, nil
}
