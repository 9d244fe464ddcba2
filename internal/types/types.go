package types

import "time"

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderKind string

const (
	KindLimit  OrderKind = "LIMIT"
	KindMarket OrderKind = "MARKET"
)

type Validity string

const (
	ValidityDay Validity = "DAY"
	ValidityIOC Validity = "IOC"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusOpen      OrderStatus = "OPEN"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled || s == StatusRejected
}

// CanTransition reports whether moving from s to next respects the
// monotone PENDING -> OPEN -> {EXECUTED, CANCELLED, REJECTED} machine.
// Observation may skip OPEN entirely: a market order can fill between two
// polls, so PENDING admits every terminal state directly.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusOpen || next.Terminal()
	case StatusOpen:
		return next.Terminal()
	default:
		return false
	}
}

type EntryType string

const (
	EntryFresh   EntryType = "FRESH"
	EntryReentry EntryType = "REENTRY"
)

// OrderMeta carries the indicator snapshot captured when an order is placed.
// Fields are write-once: set at placement time and never mutated after.
// Readers resolve the entry indicator with first-non-nil precedence:
// EntryRSI, then AlternateRSI, then RawSnapshot.
type OrderMeta struct {
	EntryRSI     *float64 `json:"entry_rsi,omitempty"`
	AlternateRSI *float64 `json:"alternate_rsi,omitempty"`
	RawSnapshot  *float64 `json:"raw_snapshot,omitempty"`
	Reentry      bool     `json:"reentry,omitempty"`
}

// Resolve returns the entry indicator under the documented precedence.
// ok is false when no field was recorded.
func (m OrderMeta) Resolve() (value float64, ok bool) {
	switch {
	case m.EntryRSI != nil:
		return *m.EntryRSI, true
	case m.AlternateRSI != nil:
		return *m.AlternateRSI, true
	case m.RawSnapshot != nil:
		return *m.RawSnapshot, true
	}
	return 0, false
}

type Order struct {
	BrokerID  string
	Account   string
	Symbol    string
	Side      OrderSide
	Kind      OrderKind
	Validity  Validity
	Status    OrderStatus
	Qty       int
	Price     float64 // 0 for market orders
	Entry     EntryType
	Meta      OrderMeta
	PlacedAt  time.Time
	UpdatedAt time.Time
}

// Position is one holding in one instrument for one account. Quantity never
// goes negative; ClosedAt is set exactly when quantity reaches zero. Records
// are archived, never deleted.
type Position struct {
	ID            string
	Account       string
	Symbol        string
	Qty           int
	AvgPrice      float64
	EntryRSI      float64
	EntryRSISet   bool
	InitialPrice  float64
	OpenedAt      time.Time
	ClosedAt      *time.Time
	ReentryCount  int
	ReentryPrices []float64
	LastReentry   float64
}

func (p *Position) IsOpen() bool {
	return p.Qty > 0 && p.ClosedAt == nil
}

// SessionToken is the credential artifact for all broker calls of one
// account. Owned exclusively by the session guard.
type SessionToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Usable reports whether the token is still good at demand time, keeping a
// safety margin so calls in flight do not straddle the expiry.
func (t SessionToken) Usable(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Add(margin).Before(t.ExpiresAt)
}

type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// IndicatorPoint is one sample of the oscillator series.
type IndicatorPoint struct {
	Ts    int64
	Value float64
}

// Margins is the subset of the broker funds record the sizing rule needs.
type Margins struct {
	AvailableCash float64
}

// OrderReq is the broker-facing order instruction.
type OrderReq struct {
	Account  string
	Symbol   string
	Side     OrderSide
	Kind     OrderKind
	Validity Validity
	Qty      int
	Price    float64
	Tag      string
}

// CancelResult distinguishes the three broker outcomes of a cancel attempt.
type CancelResult string

const (
	CancelOK              CancelResult = "CANCELLED"
	CancelAlreadyExecuted CancelResult = "ALREADY_EXECUTED"
	CancelNotFound        CancelResult = "NOT_FOUND"
)
