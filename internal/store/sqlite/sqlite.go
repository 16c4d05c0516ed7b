// Package sqlite is a single-file Repository for one-shop installs and tests.
// All access goes through one connection, so a transaction holds the whole
// database and batches never interleave.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"celustock/backend/internal/store"
)

// timeLayout has fixed-width fractions so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sql.DB
}

// Open opens a SQLite database, configures pragmas and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS stores (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    address    TEXT NOT NULL DEFAULT '',
    phone      TEXT NOT NULL DEFAULT '',
    active     INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    brand      TEXT NOT NULL DEFAULT '',
    color      TEXT NOT NULL DEFAULT '',
    specs      TEXT NOT NULL DEFAULT '',
    cost_price TEXT NOT NULL,
    profit_bob TEXT NOT NULL,
    active     INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS units (
    scan_code  TEXT PRIMARY KEY,
    product_id TEXT NOT NULL REFERENCES products(id),
    store_id   TEXT NOT NULL REFERENCES stores(id),
    sold       INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    sold_at    TEXT
);

CREATE INDEX IF NOT EXISTS idx_units_store_product ON units(store_id, product_id, sold);

CREATE TABLE IF NOT EXISTS employees (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    full_name     TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('admin', 'sales')),
    store_id      TEXT NOT NULL REFERENCES stores(id),
    active        INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transfers (
    id                   TEXT PRIMARY KEY,
    origin_store_id      TEXT NOT NULL REFERENCES stores(id),
    destination_store_id TEXT NOT NULL REFERENCES stores(id),
    employee_id          TEXT NOT NULL,
    note                 TEXT NOT NULL DEFAULT '',
    created_at           TEXT NOT NULL,
    CHECK (origin_store_id <> destination_store_id)
);

CREATE TABLE IF NOT EXISTS transfer_items (
    transfer_id TEXT NOT NULL REFERENCES transfers(id),
    position    INTEGER NOT NULL,
    scan_code   TEXT NOT NULL REFERENCES units(scan_code),
    product_id  TEXT NOT NULL REFERENCES products(id),
    PRIMARY KEY (transfer_id, position)
);

CREATE INDEX IF NOT EXISTS idx_transfer_items_scan_code ON transfer_items(scan_code);

CREATE TABLE IF NOT EXISTS sales (
    id               TEXT PRIMARY KEY,
    store_id         TEXT NOT NULL REFERENCES stores(id),
    employee_id      TEXT NOT NULL,
    payment_method   TEXT NOT NULL,
    customer_name    TEXT NOT NULL DEFAULT '',
    customer_phone   TEXT NOT NULL DEFAULT '',
    exchange_rate    TEXT NOT NULL,
    total_bob        TEXT NOT NULL,
    total_overridden INTEGER NOT NULL DEFAULT 0,
    item_count       INTEGER NOT NULL,
    created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sales_store_created ON sales(store_id, created_at);

CREATE TABLE IF NOT EXISTS sale_items (
    sale_id        TEXT NOT NULL REFERENCES sales(id),
    position       INTEGER NOT NULL,
    scan_code      TEXT NOT NULL UNIQUE REFERENCES units(scan_code),
    product_id     TEXT NOT NULL REFERENCES products(id),
    unit_price_bob TEXT NOT NULL,
    profit_bob     TEXT NOT NULL,
    device_codes   TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (sale_id, position)
);

CREATE TABLE IF NOT EXISTS exchange_rates (
    id         TEXT PRIMARY KEY,
    rate       TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS suppliers (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    phone      TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS purchase_orders (
    id          TEXT PRIMARY KEY,
    store_id    TEXT NOT NULL REFERENCES stores(id),
    supplier_id TEXT NOT NULL REFERENCES suppliers(id),
    status      TEXT NOT NULL CHECK (status IN ('draft', 'received')),
    created_by  TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    received_by TEXT NOT NULL DEFAULT '',
    received_at TEXT
);

CREATE TABLE IF NOT EXISTS purchase_order_items (
    id                INTEGER PRIMARY KEY,
    purchase_order_id TEXT NOT NULL REFERENCES purchase_orders(id),
    product_id        TEXT NOT NULL REFERENCES products(id),
    qty               INTEGER NOT NULL CHECK (qty > 0),
    unit_cost         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
    id          TEXT PRIMARY KEY,
    store_id    TEXT NOT NULL DEFAULT '',
    actor_id    TEXT NOT NULL,
    actor_role  TEXT NOT NULL,
    action      TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_store_created ON audit_logs(store_id, created_at);
`

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// classify maps SQLite result codes onto the store error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrTransient, err)
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", store.ErrNotFound, err)
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%w: %v", store.ErrValidation, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", store.ErrTransient, err)
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseNullTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTime(raw.String)
	return &t
}

func nullTimeText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// inClause returns "?,?,?" for n values and the values as driver args.
func inClause(values []string) (string, []any) {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}

func encodeDeviceCodes(codes []string) (string, error) {
	if len(codes) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeDeviceCodes(raw string) []string {
	codes := make([]string, 0, 2)
	if raw == "" {
		return codes
	}
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return []string{}
	}
	return codes
}

func rangeClause(column string, from time.Time, to time.Time, args []any) (string, []any) {
	clause := ""
	if !from.IsZero() {
		clause += " AND " + column + " >= ?"
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		clause += " AND " + column + " < ?"
		args = append(args, formatTime(to))
	}
	return clause, args
}
