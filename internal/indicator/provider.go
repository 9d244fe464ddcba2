// Package indicator computes the RSI oscillator series from broker candle
// data and caches the previous-period value at session start. The
// previous-period value is authoritative for exit decisions; the realtime
// value is a provisional figure built from the live price.
package indicator

import (
	"context"
	"time"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
	"trade-agent/internal/resilience"
	"trade-agent/internal/ta"
	"trade-agent/internal/types"
)

type Provider struct {
	broker   interfaces.Broker
	exec     *resilience.Executor
	cache    Cache
	period   int
	interval string
	lookback int

	now func() time.Time
}

var _ interfaces.IndicatorSource = (*Provider)(nil)

func NewProvider(broker interfaces.Broker, exec *resilience.Executor, cache Cache, period int, interval string, lookback int) *Provider {
	return &Provider{
		broker:   broker,
		exec:     exec,
		cache:    cache,
		period:   period,
		interval: interval,
		lookback: lookback,
		now:      time.Now,
	}
}

// Series returns the oscillator series for the instrument, one point per
// completed candle. An empty candle response surfaces as ErrNoData.
func (p *Provider) Series(ctx context.Context, symbol string, period, lookback int) ([]types.IndicatorPoint, error) {
	if period <= 0 {
		period = p.period
	}
	if lookback <= 0 {
		lookback = p.lookback
	}

	to := p.now()
	from := to.AddDate(0, 0, -lookback)

	candles, err := resilience.Call(ctx, p.exec, "historical",
		func(ctx context.Context, tok types.SessionToken) ([]types.Candle, error) {
			return p.broker.HistoricalCandles(ctx, tok, symbol, p.interval, from, to)
		})
	if err != nil {
		return nil, err
	}
	if len(candles) < period+1 {
		return nil, types.ErrNoData
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	values := ta.RSISeries(closes, period)
	points := make([]types.IndicatorPoint, len(values))
	for i, v := range values {
		points[i] = types.IndicatorPoint{Ts: candles[period+i].Ts, Value: v}
	}
	return points, nil
}

// SnapshotPrevious computes and caches the prior completed session's value
// for each symbol. Run once at session warmup; failures are logged per
// symbol, not fatal, so one bad instrument does not lose the rest.
func (p *Provider) SnapshotPrevious(ctx context.Context, symbols []string) {
	for _, symbol := range symbols {
		series, err := p.Series(ctx, symbol, p.period, p.lookback)
		if err != nil {
			logger.Warn(ctx, "Could not snapshot previous-period indicator",
				"symbol", symbol, "error", err)
			continue
		}

		prev := series[len(series)-1].Value
		// During market hours the last daily candle is the forming one;
		// the previous completed session is one back.
		if len(series) >= 2 && p.sessionOpen() {
			prev = series[len(series)-2].Value
		}

		if err := p.cache.Put(ctx, symbol, prev); err != nil {
			logger.Warn(ctx, "Could not cache previous-period indicator",
				"symbol", symbol, "error", err)
			continue
		}
		logger.Info(ctx, "Previous-period indicator cached", "symbol", symbol, "value", prev)
	}
}

// PreviousPeriod returns the cached prior-session value.
func (p *Provider) PreviousPeriod(ctx context.Context, symbol string) (float64, bool) {
	return p.cache.Get(ctx, symbol)
}

// Current computes a provisional realtime value: the historical closes with
// the live price standing in for today's close.
func (p *Provider) Current(ctx context.Context, symbol string) (float64, error) {
	to := p.now()
	from := to.AddDate(0, 0, -p.lookback)

	candles, err := resilience.Call(ctx, p.exec, "historical",
		func(ctx context.Context, tok types.SessionToken) ([]types.Candle, error) {
			return p.broker.HistoricalCandles(ctx, tok, symbol, p.interval, from, to)
		})
	if err != nil {
		return 0, err
	}
	if len(candles) < p.period+1 {
		return 0, types.ErrNoData
	}

	ltp, err := resilience.Call(ctx, p.exec, "ltp",
		func(ctx context.Context, tok types.SessionToken) (float64, error) {
			return p.broker.LTP(ctx, tok, symbol)
		})
	if err != nil {
		return 0, err
	}

	closes := make([]float64, 0, len(candles)+1)
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	closes = append(closes, ltp)

	return ta.RSI(closes, p.period), nil
}

// sessionOpen reports whether the NSE session is in progress, 09:15 through
// 15:30 IST on weekdays.
func (p *Provider) sessionOpen() bool {
	ist := time.FixedZone("IST", 19800)
	n := p.now().In(ist)
	if n.Weekday() == time.Saturday || n.Weekday() == time.Sunday {
		return false
	}
	mins := n.Hour()*60 + n.Minute()
	return mins >= 9*60+15 && mins <= 15*60+30
}
