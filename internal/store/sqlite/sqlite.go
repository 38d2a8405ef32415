/*
Package sqlite opens the local embedded ledger database.

The store is single-writer: the pool is capped at one connection, so every
RunAtomic group is serialized and reads outside a group never observe a
half-applied one. WAL journaling keeps a crash mid-group from leaving partial
writes on disk.

USAGE:

	repo, err := sqlite.Open(ctx, "./kasirkoperasi.db")
	if err != nil {
		log.Fatal(err)
	}
	defer repo.Close()

Use ":memory:" for tests.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"kasirkoperasi/backend/internal/store/sqlstore"
)

func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := sqlstore.Open(ctx, db, Dialect())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:              "sqlite",
		Schema:            schema,
		IsUniqueViolation: isUniqueViolation,
	}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		sale_price_cents INTEGER NOT NULL,
		stock INTEGER NOT NULL CHECK (stock >= 0),
		latest_batch_id TEXT NOT NULL DEFAULT '',
		barcode TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (name, category)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_batches (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		category TEXT NOT NULL,
		qty_received INTEGER NOT NULL CHECK (qty_received > 0),
		qty_remaining INTEGER NOT NULL CHECK (qty_remaining >= 0 AND qty_remaining <= qty_received),
		unit_cost_cents INTEGER NOT NULL,
		sale_price_cents INTEGER NOT NULL,
		margin_percent TEXT NOT NULL DEFAULT '0',
		barcode TEXT NOT NULL DEFAULT '',
		received_on TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_batches_product_fifo
		ON stock_batches(product_id, received_on, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_batches_product_name
		ON stock_batches(product_name)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		sale_date TEXT NOT NULL,
		subtotal_cents INTEGER NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL,
		cash_received_cents INTEGER NOT NULL DEFAULT 0,
		change_cents INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date)`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
		sale_id TEXT NOT NULL REFERENCES sales(id),
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		qty INTEGER NOT NULL CHECK (qty > 0),
		unit_price_cents INTEGER NOT NULL,
		line_total_cents INTEGER NOT NULL,
		allocations TEXT NOT NULL DEFAULT '[]',
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
		cash_cents INTEGER NOT NULL,
		transfer_cents INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

func flowTable(name string) string {
	return `CREATE TABLE IF NOT EXISTS ` + name + ` (
		id TEXT PRIMARY KEY,
		flow_type TEXT NOT NULL CHECK (flow_type IN ('income', 'expense')),
		amount_cents INTEGER NOT NULL CHECK (amount_cents > 0),
		description TEXT NOT NULL,
		flow_date TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		details TEXT
	)`
}
