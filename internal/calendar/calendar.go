// Package calendar tracks exchange trading holidays so the scheduler can
// skip market-bound tasks on closed days. The holiday list is scraped from
// the exchange's published holiday page; a fetch failure degrades to
// weekend-only skipping rather than blocking the schedule.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"trade-agent/internal/logger"
)

var ist = time.FixedZone("IST", 19800)

type Calendar struct {
	url     string
	timeout time.Duration

	mu       sync.RWMutex
	holidays map[string]string // "2006-01-02" -> description
	fetched  time.Time
}

func New(url string) *Calendar {
	return &Calendar{
		url:      url,
		timeout:  15 * time.Second,
		holidays: map[string]string{},
	}
}

// IsTradingDay reports whether the exchange trades on the given day.
// Weekends are always closed; weekdays are closed when listed as holidays.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(ist)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, holiday := c.holidays[t.Format("2006-01-02")]
	return !holiday
}

// Holiday returns the published description for a holiday date.
func (c *Calendar) Holiday(t time.Time) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	desc, ok := c.holidays[t.In(ist).Format("2006-01-02")]
	return desc, ok
}

// Refresh scrapes the holiday page and replaces the in-memory list. Safe to
// run on a schedule; an empty scrape result keeps the previous list.
func (c *Calendar) Refresh(ctx context.Context) error {
	found := map[string]string{}

	col := colly.NewCollector(
		colly.MaxDepth(1),
		colly.Async(false),
	)
	col.SetRequestTimeout(c.timeout)

	col.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	col.OnHTML("table", func(e *colly.HTMLElement) {
		parseHolidayTable(e.DOM, found)
	})

	col.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Holiday page fetch failed", err, "url", r.Request.URL.String())
	})

	if err := col.Visit(c.url); err != nil {
		return fmt.Errorf("visit %s: %w", c.url, err)
	}
	col.Wait()

	if len(found) == 0 {
		logger.Warn(ctx, "Holiday scrape returned no rows, keeping previous list", "url", c.url)
		return fmt.Errorf("no holiday rows parsed from %s", c.url)
	}

	c.mu.Lock()
	c.holidays = found
	c.fetched = time.Now()
	c.mu.Unlock()

	logger.Info(ctx, "Holiday calendar refreshed", "holidays", len(found))
	return nil
}

// parseHolidayTable walks a holiday table's rows looking for a date cell
// and a description cell. The exchange publishes dates as "02-Jan-2026";
// rows without a parseable date are skipped.
func parseHolidayTable(table *goquery.Selection, out map[string]string) {
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		var date time.Time
		var dateIdx int
		ok := false
		cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
			if d, err := parseHolidayDate(strings.TrimSpace(cell.Text())); err == nil {
				date, dateIdx, ok = d, i, true
				return false
			}
			return true
		})
		if !ok {
			return
		}

		desc := ""
		cells.Each(func(i int, cell *goquery.Selection) {
			if i == dateIdx {
				return
			}
			t := strings.TrimSpace(cell.Text())
			if desc == "" && t != "" && !isOrdinal(t) {
				desc = t
			}
		})

		out[date.Format("2006-01-02")] = desc
	})
}

func parseHolidayDate(s string) (time.Time, error) {
	for _, layout := range []string{"02-Jan-2006", "2-Jan-2006", "02 Jan 2006", "January 2, 2006", "02-01-2006"} {
		if t, err := time.ParseInLocation(layout, s, ist); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// isOrdinal filters out serial-number cells like "1" or "12".
func isOrdinal(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
