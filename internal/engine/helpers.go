package engine

import (
	"fmt"

	"trade-agent/internal/types"
)

func describePosition(p *types.Position) string {
	state := "open"
	if !p.IsOpen() {
		state = "closed"
	}
	return fmt.Sprintf("%s qty=%d avg=%.2f entry_rsi=%.1f reentries=%d (%s)",
		p.Symbol, p.Qty, p.AvgPrice, p.EntryRSI, p.ReentryCount, state)
}
