package postgres

import (
	"context"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS stores (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    address    TEXT NOT NULL DEFAULT '',
    phone      TEXT NOT NULL DEFAULT '',
    active     BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS products (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    brand      TEXT NOT NULL DEFAULT '',
    color      TEXT NOT NULL DEFAULT '',
    specs      TEXT NOT NULL DEFAULT '',
    cost_price NUMERIC(14,2) NOT NULL CHECK (cost_price >= 0),
    profit_bob NUMERIC(14,2) NOT NULL CHECK (profit_bob >= 0),
    active     BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS units (
    scan_code  TEXT PRIMARY KEY,
    product_id TEXT NOT NULL REFERENCES products(id),
    store_id   TEXT NOT NULL REFERENCES stores(id),
    sold       BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    sold_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_units_store_product_available
    ON units(store_id, product_id) WHERE sold = false;

CREATE TABLE IF NOT EXISTS employees (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    full_name     TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('admin', 'sales')),
    store_id      TEXT NOT NULL REFERENCES stores(id),
    active        BOOLEAN NOT NULL DEFAULT true,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transfers (
    id                   TEXT PRIMARY KEY,
    origin_store_id      TEXT NOT NULL REFERENCES stores(id),
    destination_store_id TEXT NOT NULL REFERENCES stores(id),
    employee_id          TEXT NOT NULL,
    note                 TEXT NOT NULL DEFAULT '',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
    CHECK (origin_store_id <> destination_store_id)
);

CREATE TABLE IF NOT EXISTS transfer_items (
    transfer_id TEXT NOT NULL REFERENCES transfers(id),
    position    INTEGER NOT NULL,
    scan_code   TEXT NOT NULL REFERENCES units(scan_code),
    product_id  TEXT NOT NULL REFERENCES products(id),
    PRIMARY KEY (transfer_id, position)
);

CREATE TABLE IF NOT EXISTS sales (
    id               TEXT PRIMARY KEY,
    store_id         TEXT NOT NULL REFERENCES stores(id),
    employee_id      TEXT NOT NULL,
    payment_method   TEXT NOT NULL,
    customer_name    TEXT,
    customer_phone   TEXT,
    exchange_rate    NUMERIC(14,4) NOT NULL,
    total_bob        NUMERIC(14,2) NOT NULL,
    total_overridden BOOLEAN NOT NULL DEFAULT false,
    item_count       INTEGER NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sales_store_created ON sales(store_id, created_at);

CREATE TABLE IF NOT EXISTS sale_items (
    sale_id        TEXT NOT NULL REFERENCES sales(id),
    position       INTEGER NOT NULL,
    scan_code      TEXT NOT NULL UNIQUE REFERENCES units(scan_code),
    product_id     TEXT NOT NULL REFERENCES products(id),
    unit_price_bob NUMERIC(14,2) NOT NULL,
    profit_bob     NUMERIC(14,2) NOT NULL,
    device_codes   TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (sale_id, position)
);

CREATE TABLE IF NOT EXISTS exchange_rates (
    id         TEXT PRIMARY KEY,
    rate       NUMERIC(14,4) NOT NULL CHECK (rate > 0),
    created_by TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS suppliers (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    phone      TEXT,
    email      TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS purchase_orders (
    id          TEXT PRIMARY KEY,
    store_id    TEXT NOT NULL REFERENCES stores(id),
    supplier_id TEXT NOT NULL REFERENCES suppliers(id),
    status      TEXT NOT NULL CHECK (status IN ('draft', 'received')),
    created_by  TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    received_by TEXT,
    received_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS purchase_order_items (
    id                BIGSERIAL PRIMARY KEY,
    purchase_order_id TEXT NOT NULL REFERENCES purchase_orders(id),
    product_id        TEXT NOT NULL REFERENCES products(id),
    qty               INTEGER NOT NULL CHECK (qty > 0),
    unit_cost         NUMERIC(14,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
    id          TEXT PRIMARY KEY,
    store_id    TEXT,
    actor_id    TEXT NOT NULL,
    actor_role  TEXT NOT NULL,
    action      TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_store_created ON audit_logs(store_id, created_at);
`

// migrations are applied in order after the schema. Each one must be idempotent.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_transfer_items_scan_code ON transfer_items(scan_code)`,
}

// Migrate creates the schema when DB_AUTO_MIGRATE is enabled.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running schema: %w", err)
	}
	for i, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
