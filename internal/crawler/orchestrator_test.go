package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipowatch/internal/clock"
	"ipowatch/internal/fetcher"
	"ipowatch/internal/progress"
	"ipowatch/internal/schedule"
)

// today for every orchestrator test.
var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string][][]string
	errs    map[string]error
	calls   []string
	onFetch func(url string)
}

func (f *fakeFetcher) FetchTable(_ context.Context, url, _ string) ([][]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.pages[url], nil
}

func (f *fakeFetcher) fetchCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, url := range f.calls {
		if strings.HasPrefix(url, prefix) {
			n++
		}
	}
	return n
}

type fakeSession struct {
	inserted []schedule.Record
	seen     map[string]bool
	err      error
}

func (s *fakeSession) Insert(_ context.Context, rec schedule.Record) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	key := fmt.Sprintf("%s|%s|%s|%s|%s",
		rec.StockName, rec.Status,
		deref(rec.SubStart), deref(rec.DemandStart), deref(rec.ListingDate))
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.inserted = append(s.inserted, rec)
	return true, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) kinds() []progress.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Kind, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.Kind
	}
	return out
}

func testCategories(maxPages int) map[schedule.Category]schedule.CategoryConfig {
	return map[schedule.Category]schedule.CategoryConfig{
		schedule.CategorySubscription: {
			BaseURL:      "sub?page=",
			TableCaption: "공모주 청약일정",
			MaxPages:     maxPages,
			Source:       "subscription-schedule",
			Status:       schedule.StatusSubscription,
		},
		schedule.CategoryBookbuilding: {
			BaseURL:      "book?page=",
			TableCaption: "수요예측일정",
			MaxPages:     maxPages,
			Source:       "bookbuilding-schedule",
			Status:       schedule.StatusBookbuilding,
		},
		schedule.CategoryListing: {
			BaseURL:      "list?page=",
			TableCaption: "신규상장종목",
			MaxPages:     maxPages,
			Source:       "new-listings",
			Status:       schedule.StatusListing,
		},
	}
}

func newTestOrchestrator(t *testing.T, f *fakeFetcher, emitter progress.Emitter, maxPages int) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Fetcher:    f,
		Clock:      clock.Fixed{T: testNow},
		Emitter:    emitter,
		Categories: testCategories(maxPages),
	})
	require.NoError(t, err)
	return o
}

func subRow(name, window, price, broker string) []string {
	return []string{name, window, price, "", "", broker}
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	// Window is ahead of testNow so the retention filter keeps it.
	acme := subRow("ACME Corp", "2025.03.10~03.15", "25,000원", "한국투자증권")

	f := &fakeFetcher{pages: map[string][][]string{
		"sub?page=1": {
			acme,
			acme, // repeated row, must dedup
			subRow("지난공모", "2025.01.10~01.15", "10,000", "NH투자증권"),
			{"광고행"}, // too narrow, parse skip
		},
		"book?page=1": {
			{"메디테크", "2025.03.05~03.06", "18,000~22,000", "22,000", "85.2%", "미래에셋증권"},
		},
		"list?page=1": {
			{"바이오젠", "2025.03.20", "코스닥", "신규상장", "15,000"},
		},
	}}
	sess := &fakeSession{}
	emitter := &captureEmitter{}
	o := newTestOrchestrator(t, f, emitter, 5)

	summary, err := o.Run(context.Background(), uuid.New(), sess)
	require.NoError(t, err)

	assert.False(t, summary.Canceled)
	assert.Equal(t, 3, summary.Inserted)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Categories, 3)

	require.Len(t, sess.inserted, 3)
	first := sess.inserted[0]
	assert.Equal(t, "ACME Corp", first.StockName)
	assert.Equal(t, schedule.StatusSubscription, first.Status)
	assert.Equal(t, "subscription-schedule", first.Source)
	require.NotNil(t, first.SubStart)
	assert.Equal(t, "2025-03-10", *first.SubStart)
	require.NotNil(t, first.LeadManager)
	assert.Equal(t, "한국투자증권", *first.LeadManager)
	require.NotNil(t, first.Brokers)
	assert.Equal(t, "한국투자증권", *first.Brokers)
	require.True(t, first.OfferPrice.Valid)
	assert.Equal(t, "25000", first.OfferPrice.Decimal.String())

	assert.Equal(t, schedule.StatusBookbuilding, sess.inserted[1].Status)
	assert.Equal(t, schedule.StatusListing, sess.inserted[2].Status)

	kinds := emitter.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, progress.KindRunStart, kinds[0])
	assert.Contains(t, kinds, progress.KindPageDone)
	assert.Contains(t, kinds, progress.KindCategoryDone)
}

func TestRunStopsAtEmptyPage(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string][][]string{
		"sub?page=1": {subRow("ACME Corp", "2025.03.10~03.15", "25,000", "한국투자증권")},
		// page 2 missing: board exhausted
	}}
	o := newTestOrchestrator(t, f, nil, 5)

	summary, err := o.Run(context.Background(), uuid.New(), &fakeSession{})
	require.NoError(t, err)
	assert.Equal(t, 2, f.fetchCount("sub?page="), "fetch stops after the first empty page")
	assert.Equal(t, 1, summary.Categories[0].Pages)
}

func TestRunRespectsPageCeiling(t *testing.T) {
	t.Parallel()

	pages := map[string][][]string{}
	for page := 1; page <= 10; page++ {
		pages[fmt.Sprintf("sub?page=%d", page)] = [][]string{
			subRow(fmt.Sprintf("종목%d", page), "2025.03.10~03.15", "25,000", "증권사"),
		}
	}
	f := &fakeFetcher{pages: pages}
	o := newTestOrchestrator(t, f, nil, 2)

	summary, err := o.Run(context.Background(), uuid.New(), &fakeSession{})
	require.NoError(t, err)
	assert.Equal(t, 2, f.fetchCount("sub?page="), "pagination must stop at the ceiling")
	assert.Equal(t, 2, summary.Categories[0].Pages)
}

func TestRunCancellationAtPageBoundary(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pages := map[string][][]string{}
	for page := 1; page <= 5; page++ {
		pages[fmt.Sprintf("sub?page=%d", page)] = [][]string{
			subRow(fmt.Sprintf("종목%d", page), "2025.03.10~03.15", "25,000", "증권사"),
		}
	}
	f := &fakeFetcher{pages: pages}
	f.onFetch = func(url string) {
		if url == "sub?page=2" {
			cancel()
		}
	}
	sess := &fakeSession{}
	o := newTestOrchestrator(t, f, nil, 5)

	summary, err := o.Run(ctx, uuid.New(), sess)
	require.NoError(t, err)

	assert.True(t, summary.Canceled)
	assert.Equal(t, 2, f.fetchCount("sub?page="), "page 3 must never be fetched")
	assert.Len(t, sess.inserted, 2, "pages finished before the cancel are kept")
	require.Len(t, summary.Categories, 1, "later categories are skipped")
}

func TestRunNetworkErrorIsolatesCategory(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		pages: map[string][][]string{
			"book?page=1": {
				{"메디테크", "2025.03.05~03.06", "18,000~22,000", "22,000", "85.2%", "미래에셋증권"},
			},
		},
		errs: map[string]error{
			"sub?page=1": &fetcher.NetworkError{URL: "sub?page=1", StatusCode: 503, Err: errors.New("unavailable")},
		},
	}
	sess := &fakeSession{}
	o := newTestOrchestrator(t, f, nil, 5)

	summary, err := o.Run(context.Background(), uuid.New(), sess)
	require.NoError(t, err, "a failing category must not fail the run")

	require.Len(t, summary.Categories, 3)
	assert.NotEmpty(t, summary.Categories[0].Err)
	assert.Equal(t, 1, summary.Categories[1].Inserted)
	assert.Len(t, sess.inserted, 1)
}

func TestRunStorageErrorAbortsRun(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string][][]string{
		"sub?page=1": {subRow("ACME Corp", "2025.03.10~03.15", "25,000", "증권사")},
	}}
	sess := &fakeSession{err: errors.New("connection reset")}
	o := newTestOrchestrator(t, f, nil, 5)

	_, err := o.Run(context.Background(), uuid.New(), sess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 0, f.fetchCount("book?page="), "storage errors end the run")
}

func TestRunRetentionKeepsTodayRecords(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[string][][]string{
		// window ends today: keep
		"sub?page=1": {subRow("오늘마감", "2025.02.27~03.01", "25,000", "증권사")},
	}}
	sess := &fakeSession{}
	o := newTestOrchestrator(t, f, nil, 1)

	summary, err := o.Run(context.Background(), uuid.New(), sess)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 0, summary.Skipped)
}
