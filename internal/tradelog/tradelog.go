package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var mu sync.Mutex

// Entry records one executed trade.
type Entry struct {
	Time, Symbol, Side, OrderID, Reason string
	Qty                                 int
	Price                               float64
	EntryRSI                            float64
	Reentry                             bool
	Extra                               map[string]any `json:"extra,omitempty"`
}

// EventEntry records an order lifecycle event (convert outcome, dangling
// exit, rejection) for audit.
type EventEntry struct {
	Time, Symbol, OrderID, Event, Detail string
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func istNow() time.Time {
	return time.Now().In(time.FixedZone("IST", 19800))
}

func dailyFilepath(t time.Time) string {
	d := t.Format("2006-01-02")
	return filepath.Join(logDir(), d+".txt")
}

func eventsFilepath(t time.Time) string {
	d := t.Format("2006-01-02")
	return filepath.Join(logDir(), "events", d+".txt")
}

func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	now := istNow()
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendJSON(dailyFilepath(now), e)
}

func AppendEvent(e EventEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := istNow()
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendJSON(eventsFilepath(now), e)
}

func appendJSON(p string, v any) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips log files older than retentionDays.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}

		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()

		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
