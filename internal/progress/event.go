// Package progress defines the event stream emitted while a crawl run
// executes and the hub that fans it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ipowatch/internal/schedule"
)

// Kind denotes the milestone an Event represents.
type Kind string

// Supported progress kinds.
const (
	KindRunStart      Kind = "RUN_START"
	KindCategoryStart Kind = "CATEGORY_START"
	KindPageDone      Kind = "PAGE_DONE"
	KindCategoryDone  Kind = "CATEGORY_DONE"
	KindRunDone       Kind = "RUN_DONE"
	KindRunError      Kind = "RUN_ERROR"
	KindRunCanceled   Kind = "RUN_CANCELED"
)

// Event captures a single milestone of a crawl run.
type Event struct {
	// RunID identifies the crawl run the event belongs to.
	RunID uuid.UUID
	// TS is the timestamp recorded by the emitter.
	TS time.Time
	// Kind is the milestone that occurred.
	Kind Kind
	// Category scopes category and page events; empty on run events.
	Category schedule.Category
	// Page is the 1-based page number for PAGE_DONE events.
	Page int
	// Rows counts table rows seen on the page.
	Rows int
	// Inserted counts records written to the store.
	Inserted int
	// Duplicates counts records suppressed by the dedup check.
	Duplicates int
	// Skipped counts past-dated rows dropped by the retention filter.
	Skipped int
	// Err carries error text for RUN_ERROR and failed CATEGORY_DONE events.
	Err string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindRunStart, KindRunDone, KindRunError, KindRunCanceled:
	case KindCategoryStart, KindCategoryDone:
		if e.Category == "" {
			return errors.New("category events require a category")
		}
	case KindPageDone:
		if e.Category == "" {
			return errors.New("page events require a category")
		}
		if e.Page < 1 {
			return errors.New("page events require a page number")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}
