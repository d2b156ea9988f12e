// Package collyfetcher implements fetcher.TableFetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"ipowatch/internal/fetcher"
)

// The bulletin tables repeat the column captions in their first two
// rows; data rows start after them.
const headerRows = 2

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher retrieves listing pages with a Colly collector and extracts
// the schedule table with goquery. The site serves EUC-KR, so the base
// collector converts bodies to UTF-8 before parsing.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	)
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// FetchTable performs a single GET and returns the text of every data
// row in the table whose summary attribute equals caption. A page
// without that table, or with nothing after the header rows, returns an
// empty result and no error.
func (f *Fetcher) FetchTable(ctx context.Context, url, caption string) ([][]string, error) {
	body, err := f.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseTable(body, caption)
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		body     []byte
		fetchErr *fetcher.NetworkError
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = &fetcher.NetworkError{URL: url, StatusCode: status, Err: err}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, &fetcher.NetworkError{URL: url, Err: err}
		}
		return body, nil
	}
}

func parseTable(body []byte, caption string) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var table *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.AttrOr("summary", "") == caption {
			table = s
			return false
		}
		return true
	})
	if table == nil {
		return nil, nil
	}

	rows := table.Find("tr")
	if rows.Length() <= headerRows {
		return nil, nil
	}

	var out [][]string
	rows.Slice(headerRows, rows.Length()).Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, cellText(td))
		})
		out = append(out, cells)
	})
	return out, nil
}

// cellText collapses the cell's text to single-space separated words;
// the markup pads cells with newlines and non-breaking layout spaces.
func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
