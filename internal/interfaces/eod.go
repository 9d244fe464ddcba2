package interfaces

import "time"

// EodSummarizer aggregates the day's trade log into a CSV report.
type EodSummarizer interface {
	// SummarizeDay aggregates trades for the given date and writes the CSV.
	// Returns the written path, or "" when no trades exist for the date.
	SummarizeDay(t time.Time) (csvPath string, err error)

	// SummarizeToday is SummarizeDay for the current exchange-local date.
	SummarizeToday() (csvPath string, err error)
}
