package kite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
	"go.uber.org/zap"
)

// tickerFeed streams realtime last-traded prices over the Kite websocket.
// It only ever feeds the current-period side of the exit evaluation; the
// REST LTP endpoint remains the fallback when the feed is down.
type tickerFeed struct {
	apiKey string
	mapper *instrumentMapper
	logger *zap.Logger

	ticker *kiteticker.Ticker

	mu      sync.RWMutex
	prices  map[string]float64
	symbols []string

	started bool
}

func newTickerFeed(apiKey string, mapper *instrumentMapper) *tickerFeed {
	logger, _ := zap.NewProduction()
	return &tickerFeed{
		apiKey: apiKey,
		mapper: mapper,
		logger: logger.Named("kite-ticker"),
		prices: make(map[string]float64),
	}
}

func (tf *tickerFeed) start(ctx context.Context, accessToken string) error {
	tf.mu.Lock()
	defer tf.mu.Unlock()

	if tf.started {
		return nil
	}

	tf.ticker = kiteticker.New(tf.apiKey, accessToken)
	tf.ticker.OnConnect(tf.onConnect)
	tf.ticker.OnError(tf.onError)
	tf.ticker.OnClose(tf.onClose)
	tf.ticker.OnReconnect(tf.onReconnect)
	tf.ticker.OnNoReconnect(tf.onNoReconnect)
	tf.ticker.OnTick(tf.onTick)

	go tf.ticker.Serve()

	tf.started = true
	return nil
}

func (tf *tickerFeed) stop() {
	tf.mu.Lock()
	defer tf.mu.Unlock()

	if tf.ticker != nil {
		tf.ticker.Stop()
	}
	tf.started = false
}

// subscribe records the universe and pushes the subscription if the
// websocket is already up. onConnect replays it after every (re)connect,
// so calling this before the connection settles is fine.
func (tf *tickerFeed) subscribe(symbols []string) error {
	tf.mu.Lock()
	tf.symbols = append([]string(nil), symbols...)
	ready := tf.started && tf.ticker != nil
	tf.mu.Unlock()

	if !ready {
		return nil
	}
	return tf.sendSubscription()
}

func (tf *tickerFeed) sendSubscription() error {
	tf.mu.RLock()
	symbols := tf.symbols
	tf.mu.RUnlock()

	if len(symbols) == 0 {
		return nil
	}

	tokens := make([]uint32, 0, len(symbols))
	for _, symbol := range symbols {
		token, ok := tf.mapper.getToken(symbol)
		if !ok {
			tf.logger.Warn("No instrument token for symbol, skipping subscription",
				zap.String("symbol", symbol))
			continue
		}
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("no subscribable instruments")
	}

	if err := tf.ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := tf.ticker.SetMode(kiteticker.ModeLTP, tokens); err != nil {
		return fmt.Errorf("set ticker mode: %w", err)
	}
	return nil
}

func (tf *tickerFeed) lastPrice(symbol string) (float64, bool) {
	tf.mu.RLock()
	defer tf.mu.RUnlock()
	p, ok := tf.prices[symbol]
	return p, ok && p > 0
}

func (tf *tickerFeed) logStartFailure(err error) {
	tf.logger.Warn("Realtime feed unavailable, falling back to REST quotes", zap.Error(err))
}

func (tf *tickerFeed) onConnect() {
	tf.logger.Info("Websocket connected")
	if err := tf.sendSubscription(); err != nil {
		tf.logger.Warn("Subscription after connect failed", zap.Error(err))
	}
}

func (tf *tickerFeed) onError(err error) {
	tf.logger.Error("Websocket error", zap.Error(err))
}

func (tf *tickerFeed) onClose(code int, reason string) {
	tf.logger.Warn("Websocket closed", zap.Int("code", code), zap.String("reason", reason))
}

func (tf *tickerFeed) onReconnect(attempt int, delay time.Duration) {
	tf.logger.Info("Websocket reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay))
}

func (tf *tickerFeed) onNoReconnect(attempt int) {
	tf.logger.Warn("Websocket gave up reconnecting", zap.Int("attempts", attempt))
}

func (tf *tickerFeed) onTick(tick models.Tick) {
	symbol := tf.mapper.getSymbol(tick.InstrumentToken)
	if symbol == "" {
		return
	}

	tf.mu.Lock()
	tf.prices[symbol] = tick.LastPrice
	tf.mu.Unlock()
}
