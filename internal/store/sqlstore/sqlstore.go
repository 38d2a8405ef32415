// Package sqlstore implements store.Repository on database/sql. The sqlite
// and postgres packages supply a Dialect and open the connection.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
)

type Dialect struct {
	Name string
	// Schema statements run in order on Open. They must be idempotent.
	Schema []string
	// Numbered switches "?" placeholders to "$1", "$2", ...
	Numbered          bool
	Isolation         sql.IsolationLevel
	ReadOnlyTx        bool
	IsUniqueViolation func(err error) bool
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	*queries
	db *sql.DB
}

// Open migrates the schema and wraps db.
func Open(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s migrate: %w", dialect.Name, err)
		}
	}
	return &Store{queries: &queries{db: db, dialect: dialect}, db: db}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RunAtomic(ctx context.Context, mode store.Mode, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: s.dialect.Isolation,
		ReadOnly:  mode == store.ReadOnly && s.dialect.ReadOnlyTx,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&queries{db: tx, dialect: s.dialect}); err != nil {
		return err
	}
	return tx.Commit()
}

type queries struct {
	db      dbtx
	dialect Dialect
}

func (q *queries) rebind(query string) string {
	if !q.dialect.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.db.ExecContext(ctx, q.rebind(query), args...)
	if err != nil && q.dialect.IsUniqueViolation != nil && q.dialect.IsUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return res, err
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

func mustAffect(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// dateRange renders an inclusive, optionally open, ISO date filter.
func dateRange(column string, fromDate string, toDate string) (string, []any) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if fromDate != "" {
		clauses = append(clauses, column+" >= ?")
		args = append(args, fromDate)
	}
	if toDate != "" {
		clauses = append(clauses, column+" <= ?")
		args = append(args, toDate)
	}
	if len(clauses) == 0 {
		return "1=1", args
	}
	return strings.Join(clauses, " AND "), args
}

const batchColumns = `id, product_id, product_name, category, qty_received, qty_remaining,
	unit_cost_cents, sale_price_cents, margin_percent, barcode, received_on, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (domain.StockBatch, error) {
	var b domain.StockBatch
	err := row.Scan(&b.ID, &b.ProductID, &b.ProductName, &b.Category, &b.QtyReceived, &b.QtyRemaining,
		&b.UnitCostCents, &b.SalePriceCents, &b.MarginPercent, &b.Barcode, &b.ReceivedOn, &b.CreatedAt)
	b.CreatedAt = b.CreatedAt.UTC()
	return b, err
}

func (q *queries) GetBatch(ctx context.Context, id string) (*domain.StockBatch, error) {
	batch, err := scanBatch(q.queryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (q *queries) ListBatches(ctx context.Context) ([]domain.StockBatch, error) {
	return q.listBatches(ctx, `SELECT `+batchColumns+` FROM stock_batches
		ORDER BY received_on ASC, created_at ASC, id ASC`)
}

func (q *queries) ListBatchesByProduct(ctx context.Context, productID string) ([]domain.StockBatch, error) {
	return q.listBatches(ctx, `SELECT `+batchColumns+` FROM stock_batches
		WHERE product_id = ?
		ORDER BY received_on ASC, created_at ASC, id ASC`, productID)
}

func (q *queries) listBatches(ctx context.Context, query string, args ...any) ([]domain.StockBatch, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.StockBatch, 0, 32)
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (q *queries) InsertBatch(ctx context.Context, b domain.StockBatch) error {
	if b.ID == "" || b.ProductID == "" {
		return store.ErrInvalid
	}
	_, err := q.exec(ctx, `
		INSERT INTO stock_batches (`+batchColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, b.ID, b.ProductID, b.ProductName, b.Category, b.QtyReceived, b.QtyRemaining,
		b.UnitCostCents, b.SalePriceCents, b.MarginPercent.StringFixed(2), b.Barcode, b.ReceivedOn, b.CreatedAt.UTC())
	return err
}

func (q *queries) UpdateBatch(ctx context.Context, b domain.StockBatch) error {
	res, err := q.exec(ctx, `
		UPDATE stock_batches
		SET product_name = ?, category = ?, qty_received = ?, qty_remaining = ?,
			unit_cost_cents = ?, sale_price_cents = ?, margin_percent = ?, barcode = ?
		WHERE id = ?
	`, b.ProductName, b.Category, b.QtyReceived, b.QtyRemaining,
		b.UnitCostCents, b.SalePriceCents, b.MarginPercent.StringFixed(2), b.Barcode, b.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (q *queries) DeleteBatch(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `DELETE FROM stock_batches WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

const productColumns = `id, name, category, sale_price_cents, stock, latest_batch_id, barcode, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.SalePriceCents, &p.Stock, &p.LatestBatchID, &p.Barcode, &p.UpdatedAt)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (q *queries) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return q.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
}

func (q *queries) FindProduct(ctx context.Context, name string, category string) (*domain.Product, error) {
	return q.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE name = ? AND category = ?`, name, category)
}

func (q *queries) getProduct(ctx context.Context, query string, args ...any) (*domain.Product, error) {
	product, err := scanProduct(q.queryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (q *queries) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := q.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (q *queries) InsertProduct(ctx context.Context, p domain.Product) error {
	if p.ID == "" {
		return store.ErrInvalid
	}
	_, err := q.exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?,?,?,?,?,?,?,?)
	`, p.ID, p.Name, p.Category, p.SalePriceCents, p.Stock, p.LatestBatchID, p.Barcode, p.UpdatedAt.UTC())
	return err
}

func (q *queries) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := q.exec(ctx, `
		UPDATE products
		SET name = ?, category = ?, sale_price_cents = ?, stock = ?, latest_batch_id = ?, barcode = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.Category, p.SalePriceCents, p.Stock, p.LatestBatchID, p.Barcode, p.UpdatedAt.UTC(), p.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

const saleColumns = `id, sale_date, subtotal_cents, payment_method, status, cash_received_cents, change_cents, created_by, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var s domain.Sale
	err := row.Scan(&s.ID, &s.Date, &s.SubtotalCents, &s.PaymentMethod, &s.Status,
		&s.CashReceivedCents, &s.ChangeCents, &s.CreatedBy, &s.CreatedAt)
	s.CreatedAt = s.CreatedAt.UTC()
	return s, err
}

func (q *queries) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(q.queryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lines, err := q.listSaleLines(ctx, `WHERE l.sale_id = ?`, id)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines[sale.ID]
	return &sale, nil
}

func (q *queries) ListSales(ctx context.Context, fromDate string, toDate string) ([]domain.Sale, error) {
	where, args := dateRange("sale_date", fromDate, toDate)
	rows, err := q.query(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+where+`
		ORDER BY sale_date ASC, created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return sales, nil
	}

	lineWhere, lineArgs := dateRange("s.sale_date", fromDate, toDate)
	lines, err := q.listSaleLines(ctx, `JOIN sales s ON s.id = l.sale_id WHERE `+lineWhere, lineArgs...)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Lines = lines[sales[i].ID]
	}
	return sales, nil
}

func (q *queries) listSaleLines(ctx context.Context, filter string, args ...any) (map[string][]domain.SaleLine, error) {
	rows, err := q.query(ctx, `
		SELECT l.sale_id, l.line_no, l.product_id, l.product_name, l.qty, l.unit_price_cents, l.line_total_cents, l.allocations
		FROM sale_lines l `+filter+`
		ORDER BY l.sale_id, l.line_no
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.SaleLine)
	for rows.Next() {
		var (
			line        domain.SaleLine
			allocations []byte
		)
		if err := rows.Scan(&line.SaleID, &line.LineNo, &line.ProductID, &line.ProductName, &line.Qty,
			&line.UnitPriceCents, &line.LineTotalCents, &allocations); err != nil {
			return nil, err
		}
		if len(allocations) > 0 {
			if err := json.Unmarshal(allocations, &line.Allocations); err != nil {
				return nil, fmt.Errorf("decode allocations for sale %s line %d: %w", line.SaleID, line.LineNo, err)
			}
		}
		out[line.SaleID] = append(out[line.SaleID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *queries) InsertSale(ctx context.Context, s domain.Sale) error {
	if s.ID == "" {
		return store.ErrInvalid
	}
	_, err := q.exec(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, s.ID, s.Date, s.SubtotalCents, s.PaymentMethod, s.Status, s.CashReceivedCents, s.ChangeCents, s.CreatedBy, s.CreatedAt.UTC())
	if err != nil {
		return err
	}

	for _, line := range s.Lines {
		allocations, err := json.Marshal(line.Allocations)
		if err != nil {
			return err
		}
		_, err = q.exec(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, product_name, qty, unit_price_cents, line_total_cents, allocations)
			VALUES (?,?,?,?,?,?,?,?)
		`, s.ID, line.LineNo, line.ProductID, line.ProductName, line.Qty, line.UnitPriceCents, line.LineTotalCents, string(allocations))
		if err != nil {
			return err
		}
	}
	return nil
}

func flowTable(method string) (string, error) {
	switch method {
	case domain.PaymentMethodCash:
		return "cash_flows", nil
	case domain.PaymentMethodTransfer:
		return "transfer_flows", nil
	default:
		return "", store.ErrInvalid
	}
}

const flowColumns = `id, flow_type, amount_cents, description, flow_date, transaction_id, payment_method, created_at, details`

func (q *queries) ListFlows(ctx context.Context, method string) ([]domain.FlowEntry, error) {
	return q.ListFlowsInRange(ctx, method, "", "")
}

func (q *queries) ListFlowsInRange(ctx context.Context, method string, fromDate string, toDate string) ([]domain.FlowEntry, error) {
	table, err := flowTable(method)
	if err != nil {
		return nil, err
	}
	where, args := dateRange("flow_date", fromDate, toDate)
	rows, err := q.query(ctx, `SELECT `+flowColumns+` FROM `+table+` WHERE `+where+`
		ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.FlowEntry, 0, 64)
	for rows.Next() {
		var (
			e       domain.FlowEntry
			details sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.AmountCents, &e.Description, &e.Date, &e.TransactionID,
			&e.PaymentMethod, &e.Timestamp, &details); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		if details.Valid && details.String != "" {
			e.Details = &domain.FlowDetails{}
			if err := json.Unmarshal([]byte(details.String), e.Details); err != nil {
				return nil, fmt.Errorf("decode details for flow %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (q *queries) InsertFlow(ctx context.Context, e domain.FlowEntry) error {
	table, err := flowTable(e.PaymentMethod)
	if err != nil {
		return err
	}
	if e.ID == "" {
		return store.ErrInvalid
	}

	var details any
	if e.Details != nil {
		payload, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = string(payload)
	}

	_, err = q.exec(ctx, `
		INSERT INTO `+table+` (`+flowColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, e.ID, e.Type, e.AmountCents, e.Description, e.Date, e.TransactionID, e.PaymentMethod, e.Timestamp.UTC(), details)
	return err
}

func (q *queries) GetMonthlyBalance(ctx context.Context, month string) (*domain.MonthlyBalance, error) {
	var mb domain.MonthlyBalance
	err := q.queryRow(ctx, `
		SELECT month, cash_cents, transfer_cents, updated_at FROM monthly_balances WHERE month = ?
	`, month).Scan(&mb.Month, &mb.CashCents, &mb.TransferCents, &mb.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	mb.UpdatedAt = mb.UpdatedAt.UTC()
	return &mb, nil
}

func (q *queries) ListMonthlyBalances(ctx context.Context) ([]domain.MonthlyBalance, error) {
	rows, err := q.query(ctx, `SELECT month, cash_cents, transfer_cents, updated_at FROM monthly_balances ORDER BY month ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make([]domain.MonthlyBalance, 0, 24)
	for rows.Next() {
		var mb domain.MonthlyBalance
		if err := rows.Scan(&mb.Month, &mb.CashCents, &mb.TransferCents, &mb.UpdatedAt); err != nil {
			return nil, err
		}
		mb.UpdatedAt = mb.UpdatedAt.UTC()
		balances = append(balances, mb)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return balances, nil
}

func (q *queries) PutMonthlyBalance(ctx context.Context, mb domain.MonthlyBalance) error {
	if mb.Month == "" {
		return store.ErrInvalid
	}
	_, err := q.exec(ctx, `
		INSERT INTO monthly_balances (month, cash_cents, transfer_cents, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT (month) DO UPDATE SET
			cash_cents = excluded.cash_cents,
			transfer_cents = excluded.transfer_cents,
			updated_at = excluded.updated_at
	`, mb.Month, mb.CashCents, mb.TransferCents, mb.UpdatedAt.UTC())
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt.UTC(), time.Now().UTC())
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.query(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalid
	}

	res, err := s.exec(ctx, `
		UPDATE app_users
		SET password = ?, updated_at = ?
		WHERE username = ?
	`, password, time.Now().UTC(), username)
	if err != nil {
		return err
	}
	return mustAffect(res)
}
