package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ipowatch/internal/schedule"
)

// Session is the write-side handle for one crawl run. All inserts land
// in a single transaction; nothing is visible to readers until Commit.
// The duplicate check runs inside the transaction, so a record repeated
// within the same run is suppressed too.
type Session struct {
	tx pgx.Tx
}

// Begin opens a crawl session.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin crawl session: %w", err)
	}
	return &Session{tx: tx}, nil
}

const dedupSQL = `
SELECT EXISTS (
	SELECT 1 FROM ipo_schedules
	WHERE stock_name = $1
	  AND status = $2
	  AND COALESCE(sub_start, '') = $3
	  AND COALESCE(demand_start, '') = $4
	  AND COALESCE(listing_date, '') = $5
)`

const insertSQL = `
INSERT INTO ipo_schedules (
	stock_name, status, lead_manager, brokers, offer_price,
	sub_start, sub_end, listing_date, demand_start, demand_end,
	refund_date, source
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

// Insert stores one record unless an identical schedule is already
// present. Identity is (stock_name, status, sub_start, demand_start,
// listing_date) with NULL dates treated as empty strings. It reports
// whether a row was written.
func (c *Session) Insert(ctx context.Context, rec schedule.Record) (bool, error) {
	var exists bool
	err := c.tx.QueryRow(ctx, dedupSQL,
		rec.StockName,
		string(rec.Status),
		deref(rec.SubStart),
		deref(rec.DemandStart),
		deref(rec.ListingDate),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		return false, nil
	}

	_, err = c.tx.Exec(ctx, insertSQL,
		rec.StockName,
		string(rec.Status),
		rec.LeadManager,
		rec.Brokers,
		rec.OfferPrice,
		rec.SubStart,
		rec.SubEnd,
		rec.ListingDate,
		rec.DemandStart,
		rec.DemandEnd,
		rec.RefundDate,
		rec.Source,
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return true, nil
}

// Commit publishes everything inserted during the session.
func (c *Session) Commit(ctx context.Context) error {
	if err := c.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit crawl session: %w", err)
	}
	return nil
}

// Rollback discards the session. Safe to defer after Commit.
func (c *Session) Rollback(ctx context.Context) error {
	if err := c.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback crawl session: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
