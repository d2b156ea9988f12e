// Package store persists IPO schedule records in Postgres.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ipowatch/internal/schedule"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// PgxPool is the subset of pgxpool.Pool the store uses. pgxmock
// satisfies it for tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store reads and writes the ipo_schedules table. Reads run on the
// pool's auto-commit connections; writes go through a Session so one
// crawl run commits exactly once.
type Store struct {
	pool PgxPool
}

// New connects a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool PgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ipo_schedules (
	id BIGSERIAL PRIMARY KEY,
	stock_name TEXT NOT NULL,
	status TEXT NOT NULL,
	lead_manager TEXT,
	brokers TEXT,
	offer_price NUMERIC,
	sub_start TEXT,
	sub_end TEXT,
	listing_date TEXT,
	demand_start TEXT,
	demand_end TEXT,
	refund_date TEXT,
	source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const dedupIndexSQL = `
CREATE INDEX IF NOT EXISTS ipo_schedules_dedup_idx
ON ipo_schedules (stock_name, status, COALESCE(sub_start, ''), COALESCE(demand_start, ''), COALESCE(listing_date, ''))`

// EnsureSchema creates the ipo_schedules table and its dedup index if
// they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create ipo_schedules: %w", err)
	}
	if _, err := s.pool.Exec(ctx, dedupIndexSQL); err != nil {
		return fmt.Errorf("create dedup index: %w", err)
	}
	return nil
}

const recordColumns = `id, stock_name, status, lead_manager, brokers, offer_price,
	sub_start, sub_end, listing_date, demand_start, demand_end, refund_date,
	source, created_at`

const governingDateExpr = `COALESCE(sub_start, demand_start, listing_date, '')`

// UpcomingSchedules returns records whose governing date is today or
// later, ordered by governing date then stock name. The broker filter
// is a case-sensitive substring match against the brokers column;
// empty matches all.
func (s *Store) UpcomingSchedules(ctx context.Context, today, broker string) ([]schedule.Record, error) {
	query := fmt.Sprintf(`
SELECT %s FROM ipo_schedules
WHERE %s >= $1`, recordColumns, governingDateExpr)
	args := []any{today}
	if broker != "" {
		query += ` AND brokers LIKE '%' || $2 || '%'`
		args = append(args, broker)
	}
	query += fmt.Sprintf(` ORDER BY %s, stock_name`, governingDateExpr)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query upcoming schedules: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AllRecords returns every stored record in insertion order.
func (s *Store) AllRecords(ctx context.Context) ([]schedule.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM ipo_schedules ORDER BY id`, recordColumns)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// brokerKeywords marks a split-out cell entry as an actual securities
// firm. The brokers column sometimes carries filler like "주관사미정".
var brokerKeywords = []string{"증권", "투자", "스팩"}

func isBrokerName(name string) bool {
	for _, kw := range brokerKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// Brokers returns the distinct broker names appearing on upcoming
// records, sorted. The brokers column holds comma-separated lists, so
// the split happens here rather than in SQL; entries without a broker
// keyword are dropped.
func (s *Store) Brokers(ctx context.Context, today string) ([]string, error) {
	query := fmt.Sprintf(`
SELECT DISTINCT brokers FROM ipo_schedules
WHERE brokers IS NOT NULL AND %s >= $1`, governingDateExpr)
	rows, err := s.pool.Query(ctx, query, today)
	if err != nil {
		return nil, fmt.Errorf("query brokers: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var list string
		if err := rows.Scan(&list); err != nil {
			return nil, fmt.Errorf("scan brokers: %w", err)
		}
		for _, name := range strings.Split(list, ",") {
			name = strings.TrimSpace(name)
			if name != "" && isBrokerName(name) {
				seen[name] = struct{}{}
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read brokers: %w", err)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func scanRecords(rows pgx.Rows) ([]schedule.Record, error) {
	var out []schedule.Record
	for rows.Next() {
		var (
			r      schedule.Record
			status string
		)
		err := rows.Scan(
			&r.ID,
			&r.StockName,
			&status,
			&r.LeadManager,
			&r.Brokers,
			&r.OfferPrice,
			&r.SubStart,
			&r.SubEnd,
			&r.ListingDate,
			&r.DemandStart,
			&r.DemandEnd,
			&r.RefundDate,
			&r.Source,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Status = schedule.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return out, nil
}
