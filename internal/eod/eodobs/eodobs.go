package eodobs

import (
	"context"
	"time"

	"trade-agent/internal/interfaces"
	"trade-agent/internal/logger"
	"trade-agent/internal/trace"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{
		summarizer: summarizer,
	}
}

func (oes *observableEodSummarizer) SummarizeDay(t time.Time) (string, error) {
	ctx := context.Background()
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeDay")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting EOD summary generation",
		"date", t.Format("2006-01-02"),
	)

	csvPath, err := oes.summarizer.SummarizeDay(t)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "EOD summary generation failed", err,
			"date", t.Format("2006-01-02"),
		)
		return "", err
	}

	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No trades found for EOD summary",
			"date", t.Format("2006-01-02"),
		)
		return "", nil
	}

	logger.InfoSkip(ctx, 1, "EOD summary generated",
		"date", t.Format("2006-01-02"),
		"csv_path", csvPath,
	)

	return csvPath, nil
}

func (oes *observableEodSummarizer) SummarizeToday() (string, error) {
	ctx := context.Background()
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeToday")
	defer span.End()

	csvPath, err := oes.summarizer.SummarizeToday()
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Today's EOD summary generation failed", err)
		return "", err
	}
	return csvPath, nil
}
