package kite

import "sync"

// instrumentMapper keeps the bidirectional symbol/instrument-token mapping
// the historical and websocket APIs need.
type instrumentMapper struct {
	mu            sync.RWMutex
	symbolToToken map[string]uint32
	tokenToSymbol map[uint32]string
}

// NSE equity instrument tokens for the supported universe.
var nseTokens = map[string]uint32{
	"RELIANCE":   738561,
	"TCS":        2953217,
	"INFY":       408065,
	"HDFCBANK":   341249,
	"ICICIBANK":  1270529,
	"SBIN":       779521,
	"ITC":        424961,
	"WIPRO":      969473,
	"HCLTECH":    1850625,
	"TATAMOTORS": 884737,
}

func newInstrumentMapper() *instrumentMapper {
	m := &instrumentMapper{
		symbolToToken: make(map[string]uint32, len(nseTokens)),
		tokenToSymbol: make(map[uint32]string, len(nseTokens)),
	}
	for sym, tok := range nseTokens {
		m.symbolToToken[sym] = tok
		m.tokenToSymbol[tok] = sym
	}
	return m
}

func (m *instrumentMapper) getToken(symbol string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.symbolToToken[symbol]
	return tok, ok
}

func (m *instrumentMapper) getSymbol(token uint32) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokenToSymbol[token]
}
