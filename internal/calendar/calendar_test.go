package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holidayPage = `<html><body>
<table>
  <tr><th>Sr. No.</th><th>Date</th><th>Day</th><th>Description</th></tr>
  <tr><td>1</td><td>26-Jan-2026</td><td>Monday</td><td>Republic Day</td></tr>
  <tr><td>2</td><td>14-Apr-2026</td><td>Tuesday</td><td>Dr. Ambedkar Jayanti</td></tr>
  <tr><td>3</td><td>not a date</td><td></td><td>garbage row</td></tr>
</table>
</body></html>`

func parsePage(t *testing.T, html string) map[string]string {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	out := map[string]string{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		parseHolidayTable(table, out)
	})
	return out
}

func TestParseHolidayTable(t *testing.T) {
	out := parsePage(t, holidayPage)

	require.Len(t, out, 2, "header and garbage rows are skipped")
	assert.Equal(t, "Republic Day", out["2026-01-26"])
	assert.Equal(t, "Dr. Ambedkar Jayanti", out["2026-04-14"])
}

func TestParseHolidayTableDateFormats(t *testing.T) {
	page := `<table>
	  <tr><td>1</td><td>2-Oct-2026</td><td>Gandhi Jayanti</td></tr>
	  <tr><td>2</td><td>25-12-2026</td><td>Christmas</td></tr>
	</table>`
	out := parsePage(t, page)

	assert.Equal(t, "Gandhi Jayanti", out["2026-10-02"])
	assert.Equal(t, "Christmas", out["2026-12-25"])
}

func TestParseHolidayTableDescriptionSkipsSerials(t *testing.T) {
	// The serial cell sits after the date; it must not become the description.
	page := `<table><tr><td>26-Jan-2026</td><td>7</td><td>Republic Day</td></tr></table>`
	out := parsePage(t, page)
	assert.Equal(t, "Republic Day", out["2026-01-26"])
}

func TestIsTradingDay(t *testing.T) {
	c := New("")
	c.holidays = map[string]string{"2026-01-26": "Republic Day"}

	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 10, 0, 0, 0, ist)
	}
	assert.False(t, c.IsTradingDay(day(2026, time.January, 26)), "listed holiday")
	assert.False(t, c.IsTradingDay(day(2026, time.January, 24)), "Saturday")
	assert.False(t, c.IsTradingDay(day(2026, time.January, 25)), "Sunday")
	assert.True(t, c.IsTradingDay(day(2026, time.January, 27)))

	desc, ok := c.Holiday(day(2026, time.January, 26))
	assert.True(t, ok)
	assert.Equal(t, "Republic Day", desc)
}

func TestRefreshReplacesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(holidayPage))
	}))
	defer srv.Close()

	c := New(srv.URL)
	require.NoError(t, c.Refresh(context.Background()))

	assert.False(t, c.IsTradingDay(time.Date(2026, time.January, 26, 10, 0, 0, 0, ist)))
	assert.True(t, c.IsTradingDay(time.Date(2026, time.January, 27, 10, 0, 0, 0, ist)))
}

func TestRefreshKeepsListOnEmptyScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.holidays = map[string]string{"2026-01-26": "Republic Day"}

	assert.Error(t, c.Refresh(context.Background()))
	assert.False(t, c.IsTradingDay(time.Date(2026, time.January, 26, 10, 0, 0, 0, ist)),
		"previous list survives a failed scrape")
}
