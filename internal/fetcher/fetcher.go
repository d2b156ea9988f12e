// Package fetcher defines the contract for retrieving one listing page
// and extracting its schedule table rows.
package fetcher

import (
	"context"
	"fmt"
)

// TableFetcher retrieves a single listing page and returns the text of
// its data rows. Implementations look for the table labelled with the
// given caption; a page without that table (or with only header rows)
// yields an empty slice and no error. The crawler treats that as the
// end of pagination, not a failure.
type TableFetcher interface {
	FetchTable(ctx context.Context, url, caption string) ([][]string, error)
}

// NetworkError reports a failed page retrieval: a transport error or a
// non-success HTTP status. It aborts parsing of that page and ends the
// crawl for the category that requested it.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
