// Package crawler walks the bulletin site's paginated category boards,
// normalizes their rows into schedule records, and writes them through
// a store session.
package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ipowatch/internal/clock"
	"ipowatch/internal/fetcher"
	"ipowatch/internal/progress"
	"ipowatch/internal/schedule"
)

// Inserter is the write surface the crawl needs from a store session.
type Inserter interface {
	Insert(ctx context.Context, rec schedule.Record) (bool, error)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Fetcher fetcher.TableFetcher
	Clock   clock.Clock
	Emitter progress.Emitter
	Logger  *zap.Logger
	// Categories defaults to schedule.Categories().
	Categories map[schedule.Category]schedule.CategoryConfig
}

// CategoryResult reports what one category crawl did.
type CategoryResult struct {
	Category   schedule.Category `json:"category"`
	Pages      int               `json:"pages"`
	Rows       int               `json:"rows"`
	Inserted   int               `json:"inserted"`
	Duplicates int               `json:"duplicates"`
	Skipped    int               `json:"skipped"`
	Err        string            `json:"error,omitempty"`
}

// Summary aggregates a full crawl run.
type Summary struct {
	RunID      uuid.UUID        `json:"run_id"`
	Categories []CategoryResult `json:"categories"`
	Inserted   int              `json:"inserted"`
	Duplicates int              `json:"duplicates"`
	Skipped    int              `json:"skipped"`
	Canceled   bool             `json:"canceled"`
}

// Orchestrator runs the three category crawls in a fixed order against
// a single store session. It never commits; the caller owns the
// session and commits exactly once when Run returns, whatever the
// outcome.
type Orchestrator struct {
	fetcher    fetcher.TableFetcher
	clock      clock.Clock
	emitter    progress.Emitter
	logger     *zap.Logger
	categories map[schedule.Category]schedule.CategoryConfig
}

// New builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Clock == nil {
		return nil, errors.New("clock is required")
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = progress.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	categories := cfg.Categories
	if categories == nil {
		categories = schedule.Categories()
	}
	return &Orchestrator{
		fetcher:    cfg.Fetcher,
		clock:      cfg.Clock,
		emitter:    emitter,
		logger:     logger,
		categories: categories,
	}, nil
}

// Run crawls every configured category. A category that fails with a
// NetworkError is recorded and the remaining categories still run;
// cancellation and storage errors end the run. The returned error is
// non-nil only for storage failures.
func (o *Orchestrator) Run(ctx context.Context, runID uuid.UUID, sess Inserter) (Summary, error) {
	summary := Summary{RunID: runID}
	today := o.clock.Now().Format("2006-01-02")

	o.emit(progress.Event{RunID: runID, Kind: progress.KindRunStart})

	for _, category := range schedule.RunOrder() {
		cfg, ok := o.categories[category]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			summary.Canceled = true
			break
		}

		o.emit(progress.Event{RunID: runID, Kind: progress.KindCategoryStart, Category: category})
		res, err := o.crawlCategory(ctx, runID, category, cfg, today, sess)
		summary.Categories = append(summary.Categories, res)
		summary.Inserted += res.Inserted
		summary.Duplicates += res.Duplicates
		summary.Skipped += res.Skipped
		o.emit(progress.Event{
			RunID:      runID,
			Kind:       progress.KindCategoryDone,
			Category:   category,
			Inserted:   res.Inserted,
			Duplicates: res.Duplicates,
			Skipped:    res.Skipped,
			Err:        res.Err,
		})

		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			summary.Canceled = true
			return summary, nil
		case isNetworkError(err):
			// One unreachable board must not starve the others.
			o.logger.Warn("category crawl failed",
				zap.String("category", string(category)),
				zap.Error(err),
			)
		default:
			return summary, fmt.Errorf("crawl %s: %w", category, err)
		}
	}
	return summary, nil
}

// crawlCategory walks pages 1..MaxPages until the board runs out of
// rows. Cancellation is honored at page boundaries only, so a page is
// never half processed.
func (o *Orchestrator) crawlCategory(
	ctx context.Context,
	runID uuid.UUID,
	category schedule.Category,
	cfg schedule.CategoryConfig,
	today string,
	sess Inserter,
) (CategoryResult, error) {
	res := CategoryResult{Category: category}
	parse := parserFor(category)

	for page := 1; page <= cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		url := fmt.Sprintf("%s%d", cfg.BaseURL, page)
		rows, err := o.fetcher.FetchTable(ctx, url, cfg.TableCaption)
		if err != nil {
			res.Err = err.Error()
			return res, err
		}
		if len(rows) == 0 {
			// The board paginates past its content; an empty table
			// means we walked off the end.
			return res, nil
		}

		res.Pages++
		pageStats := progress.Event{
			RunID:    runID,
			Kind:     progress.KindPageDone,
			Category: category,
			Page:     page,
			Rows:     len(rows),
		}
		for _, cells := range rows {
			res.Rows++
			rec, ok := parse(cells)
			if !ok {
				continue
			}
			rec.Status = cfg.Status
			rec.Source = cfg.Source

			if retention := rec.RetentionDate(); retention != "" && retention < today {
				res.Skipped++
				pageStats.Skipped++
				continue
			}

			inserted, err := sess.Insert(ctx, rec)
			if err != nil {
				res.Err = err.Error()
				return res, err
			}
			if inserted {
				res.Inserted++
				pageStats.Inserted++
			} else {
				res.Duplicates++
				pageStats.Duplicates++
			}
		}
		o.emit(pageStats)
	}
	return res, nil
}

func (o *Orchestrator) emit(evt progress.Event) {
	evt.TS = o.clock.Now()
	o.emitter.Emit(evt)
}

func isNetworkError(err error) bool {
	var nerr *fetcher.NetworkError
	return errors.As(err, &nerr)
}
