package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasirkoperasi/backend/internal/store/sqlstore"
)

func New(ctx context.Context, databaseURL string) (*sqlstore.Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s, err := sqlstore.Open(ctx, db, Dialect())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Dialect runs every atomic group serializable; a serialization failure
// surfaces as an aborted group that callers may retry.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:              "postgres",
		Schema:            schema,
		Numbered:          true,
		Isolation:         sql.LevelSerializable,
		ReadOnlyTx:        true,
		IsUniqueViolation: isUniqueViolation,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		sale_price_cents BIGINT NOT NULL,
		stock INTEGER NOT NULL CHECK (stock >= 0),
		latest_batch_id TEXT NOT NULL DEFAULT '',
		barcode TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (name, category)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_batches (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		category TEXT NOT NULL,
		qty_received INTEGER NOT NULL CHECK (qty_received > 0),
		qty_remaining INTEGER NOT NULL CHECK (qty_remaining >= 0 AND qty_remaining <= qty_received),
		unit_cost_cents BIGINT NOT NULL,
		sale_price_cents BIGINT NOT NULL,
		margin_percent NUMERIC(12,2) NOT NULL DEFAULT 0,
		barcode TEXT NOT NULL DEFAULT '',
		received_on TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_batches_product_fifo
		ON stock_batches(product_id, received_on, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_batches_product_name
		ON stock_batches(product_name)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		sale_date TEXT NOT NULL,
		subtotal_cents BIGINT NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL,
		cash_received_cents BIGINT NOT NULL DEFAULT 0,
		change_cents BIGINT NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date)`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
		sale_id TEXT NOT NULL REFERENCES sales(id),
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		qty INTEGER NOT NULL CHECK (qty > 0),
		unit_price_cents BIGINT NOT NULL,
		line_total_cents BIGINT NOT NULL,
		allocations JSONB NOT NULL DEFAULT '[]'::jsonb,
		PRIMARY KEY (sale_id, line_no)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_lines_product ON sale_lines(product_id)`,
	flowTable("cash_flows"),
	`CREATE INDEX IF NOT EXISTS idx_cash_flows_date ON cash_flows(flow_date)`,
	`CREATE INDEX IF NOT EXISTS idx_cash_flows_type ON cash_flows(flow_type)`,
	flowTable("transfer_flows"),
	`CREATE INDEX IF NOT EXISTS idx_transfer_flows_date ON transfer_flows(flow_date)`,
	`CREATE INDEX IF NOT EXISTS idx_transfer_flows_type ON transfer_flows(flow_type)`,
	`CREATE TABLE IF NOT EXISTS monthly_balances (
		month TEXT PRIMARY KEY,
		cash_cents BIGINT NOT NULL,
		transfer_cents BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

func flowTable(name string) string {
	return `CREATE TABLE IF NOT EXISTS ` + name + ` (
		id TEXT PRIMARY KEY,
		flow_type TEXT NOT NULL CHECK (flow_type IN ('income', 'expense')),
		amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
		description TEXT NOT NULL,
		flow_date TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		details JSONB
	)`
}
