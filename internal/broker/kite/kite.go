// Package kite implements the broker transport against Zerodha Kite
// Connect. Failures are classified into the transient / authentication /
// rejected taxonomy before they leave this package, so the retry policy
// never has to inspect wire-level errors.
package kite

import (
	"context"
	"fmt"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/types"
)

type Params struct {
	APIKey       string
	APISecret    string
	RequestToken string
	// AccessToken short-circuits GenerateSession when a token was issued
	// out of band (the usual daily flow).
	AccessToken string
	Exchange    string
	// ExpiryTime is the HH:MM IST wall-clock time at which Kite retires
	// access tokens the next morning.
	ExpiryTime string
	Realtime   bool
}

type Kite struct {
	p      Params
	kc     *kiteconnect.Client
	mapper *instrumentMapper
	ticker *tickerFeed
}

var _ interfaces.Broker = (*Kite)(nil)

func New(p Params) *Kite {
	k := &Kite{
		p:      p,
		kc:     kiteconnect.New(p.APIKey),
		mapper: newInstrumentMapper(),
	}
	if p.Realtime {
		k.ticker = newTickerFeed(p.APIKey, k.mapper)
	}
	return k
}

// Login exchanges the configured credentials for a session token. Kite
// access tokens survive until the next morning's expiry cut-off, so the
// estimate is the next occurrence of ExpiryTime in IST.
func (k *Kite) Login(ctx context.Context, account string) (types.SessionToken, error) {
	now := time.Now()

	accessToken := k.p.AccessToken
	if accessToken == "" {
		if k.p.RequestToken == "" || k.p.APISecret == "" {
			return types.SessionToken{}, types.AuthFailure("login",
				fmt.Errorf("no access token and no request token/secret configured for account %s", account))
		}
		sess, err := k.kc.GenerateSession(k.p.RequestToken, k.p.APISecret)
		if err != nil {
			return types.SessionToken{}, classify("login", err)
		}
		accessToken = sess.AccessToken
	}

	k.kc.SetAccessToken(accessToken)

	tok := types.SessionToken{
		Value:     accessToken,
		IssuedAt:  now,
		ExpiresAt: nextExpiry(now, k.p.ExpiryTime),
	}

	if k.ticker != nil {
		if err := k.ticker.start(ctx, accessToken); err != nil {
			// Realtime feed is an optimization; REST LTP still works.
			k.ticker.logStartFailure(err)
		}
	}

	return tok, nil
}

func (k *Kite) PlaceOrder(ctx context.Context, tok types.SessionToken, req types.OrderReq) (string, error) {
	k.kc.SetAccessToken(tok.Value)

	params := kiteconnect.OrderParams{
		Exchange:        k.p.Exchange,
		Tradingsymbol:   req.Symbol,
		Product:         kiteconnect.ProductCNC,
		OrderType:       orderType(req.Kind),
		TransactionType: string(req.Side),
		Validity:        kiteconnect.ValidityDay,
		Quantity:        req.Qty,
		Tag:             req.Tag,
	}
	if req.Kind == types.KindLimit {
		params.Price = req.Price
	}

	resp, err := k.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return "", classify("place_order", err)
	}
	return resp.OrderID, nil
}

func (k *Kite) CancelOrder(ctx context.Context, tok types.SessionToken, brokerOrderID string) (types.CancelResult, error) {
	k.kc.SetAccessToken(tok.Value)

	_, err := k.kc.CancelOrder(kiteconnect.VarietyRegular, brokerOrderID, nil)
	if err != nil {
		switch cancelOutcome(err) {
		case types.CancelAlreadyExecuted:
			return types.CancelAlreadyExecuted, nil
		case types.CancelNotFound:
			return types.CancelNotFound, nil
		}
		return "", classify("cancel_order", err)
	}
	return types.CancelOK, nil
}

func (k *Kite) OrderStatus(ctx context.Context, tok types.SessionToken, brokerOrderID string) (types.OrderStatus, error) {
	k.kc.SetAccessToken(tok.Value)

	history, err := k.kc.GetOrderHistory(brokerOrderID)
	if err != nil {
		return "", classify("order_status", err)
	}
	if len(history) == 0 {
		return "", types.Rejected("order_status", fmt.Errorf("no history for order %s", brokerOrderID))
	}
	return mapStatus(history[len(history)-1].Status), nil
}

func (k *Kite) Margins(ctx context.Context, tok types.SessionToken) (types.Margins, error) {
	k.kc.SetAccessToken(tok.Value)

	m, err := k.kc.GetUserMargins()
	if err != nil {
		return types.Margins{}, classify("margins", err)
	}

	cash := m.Equity.Available.LiveBalance
	if cash == 0 {
		cash = m.Equity.Available.Cash
	}
	return types.Margins{AvailableCash: cash}, nil
}

func (k *Kite) HistoricalCandles(ctx context.Context, tok types.SessionToken, symbol, interval string, from, to time.Time) ([]types.Candle, error) {
	k.kc.SetAccessToken(tok.Value)

	token, ok := k.mapper.getToken(symbol)
	if !ok {
		return nil, types.Rejected("historical", fmt.Errorf("unknown instrument %s", symbol))
	}

	data, err := k.kc.GetHistoricalData(int(token), interval, from, to, false, false)
	if err != nil {
		return nil, classify("historical", err)
	}

	candles := make([]types.Candle, 0, len(data))
	for _, h := range data {
		candles = append(candles, types.Candle{
			Ts:    h.Date.Unix(),
			Open:  h.Open,
			High:  h.High,
			Low:   h.Low,
			Close: h.Close,
			Vol:   float64(h.Volume),
		})
	}
	return candles, nil
}

func (k *Kite) LTP(ctx context.Context, tok types.SessionToken, symbol string) (float64, error) {
	if k.ticker != nil {
		if price, ok := k.ticker.lastPrice(symbol); ok {
			return price, nil
		}
	}

	k.kc.SetAccessToken(tok.Value)

	instrument := k.p.Exchange + ":" + symbol
	quotes, err := k.kc.GetLTP(instrument)
	if err != nil {
		return 0, classify("ltp", err)
	}
	q, ok := quotes[instrument]
	if !ok {
		return 0, types.Transient("ltp", fmt.Errorf("no quote for %s", instrument))
	}
	return q.LastPrice, nil
}

// Subscribe registers the trading universe with the realtime feed.
func (k *Kite) Subscribe(symbols []string) error {
	if k.ticker == nil {
		return nil
	}
	return k.ticker.subscribe(symbols)
}

// Stop shuts the realtime feed down.
func (k *Kite) Stop() {
	if k.ticker != nil {
		k.ticker.stop()
	}
}

func orderType(kind types.OrderKind) string {
	if kind == types.KindMarket {
		return kiteconnect.OrderTypeMarket
	}
	return kiteconnect.OrderTypeLimit
}

func mapStatus(s string) types.OrderStatus {
	switch s {
	case "COMPLETE":
		return types.StatusExecuted
	case "OPEN", "TRIGGER PENDING":
		return types.StatusOpen
	case "CANCELLED":
		return types.StatusCancelled
	case "REJECTED":
		return types.StatusRejected
	default:
		// PUT ORDER REQ RECEIVED, VALIDATION PENDING, OPEN PENDING ...
		return types.StatusPending
	}
}

// nextExpiry returns the next occurrence of the HH:MM IST cut-off after now.
func nextExpiry(now time.Time, hhmm string) time.Time {
	ist := time.FixedZone("IST", 19800)
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		t, _ = time.Parse("15:04", "07:30")
	}
	n := now.In(ist)
	exp := time.Date(n.Year(), n.Month(), n.Day(), t.Hour(), t.Minute(), 0, 0, ist)
	if !exp.After(n) {
		exp = exp.AddDate(0, 0, 1)
	}
	return exp
}
