package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
)

var errReadOnly = errors.New("write inside read-only atomic group")

// Store keeps every table in process memory. RunAtomic works on a private
// copy of the tables and swaps it in only when the body succeeds.
type Store struct {
	mu              sync.RWMutex
	data            *tables
	usersByUsername map[string]domain.UserAccount
}

type tables struct {
	batches       map[string]domain.StockBatch
	products      map[string]domain.Product
	sales         map[string]domain.Sale
	cashFlows     []domain.FlowEntry
	transferFlows []domain.FlowEntry
	monthly       map[string]domain.MonthlyBalance
}

func New() *Store {
	return &Store{
		data: &tables{
			batches:  make(map[string]domain.StockBatch),
			products: make(map[string]domain.Product),
			sales:    make(map[string]domain.Sale),
			monthly:  make(map[string]domain.MonthlyBalance),
		},
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) RunAtomic(ctx context.Context, mode store.Mode, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if mode == store.ReadOnly {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return fn(&txView{tables: s.data, readOnly: true})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	if err := fn(&txView{tables: working}); err != nil {
		return err
	}
	s.data = working
	return nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*domain.StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetBatch(ctx, id)
}

func (s *Store) ListBatches(ctx context.Context) ([]domain.StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListBatches(ctx)
}

func (s *Store) ListBatchesByProduct(ctx context.Context, productID string) ([]domain.StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListBatchesByProduct(ctx, productID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetProduct(ctx, id)
}

func (s *Store) FindProduct(ctx context.Context, name string, category string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.FindProduct(ctx, name, category)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListProducts(ctx)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetSale(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, fromDate string, toDate string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListSales(ctx, fromDate, toDate)
}

func (s *Store) ListFlows(ctx context.Context, method string) ([]domain.FlowEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListFlows(ctx, method)
}

func (s *Store) ListFlowsInRange(ctx context.Context, method string, fromDate string, toDate string) ([]domain.FlowEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListFlowsInRange(ctx, method, fromDate, toDate)
}

func (s *Store) GetMonthlyBalance(ctx context.Context, month string) (*domain.MonthlyBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetMonthlyBalance(ctx, month)
}

func (s *Store) ListMonthlyBalances(ctx context.Context) ([]domain.MonthlyBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListMonthlyBalances(ctx)
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// txView routes a RunAtomic body to one tables value without locking; the
// caller already holds the store lock.
type txView struct {
	*tables
	readOnly bool
}

func (v *txView) writable() error {
	if v.readOnly {
		return errReadOnly
	}
	return nil
}

func (v *txView) InsertBatch(ctx context.Context, batch domain.StockBatch) error {
	if err := v.writable(); err != nil {
		return err
	}
	return v.tables.insertBatch(batch)
}

func (v *txView) UpdateBatch(ctx context.Context, batch domain.StockBatch) error {
	if err := v.writable(); err != nil {
		return err
	}
	return v.tables.updateBatch(batch)
}

func (v *txView) DeleteBatch(ctx context.Context, id string) error {
	if err := v.writable(); err != nil {
		return err
	}
	if _, ok := v.batches[id]; !ok {
		return store.ErrNotFound
	}
	delete(v.batches, id)
	return nil
}

func (v *txView) InsertProduct(ctx context.Context, product domain.Product) error {
	if err := v.writable(); err != nil {
		return err
	}
	return v.tables.insertProduct(product)
}

func (v *txView) UpdateProduct(ctx context.Context, product domain.Product) error {
	if err := v.writable(); err != nil {
		return err
	}
	return v.tables.updateProduct(product)
}

func (v *txView) InsertSale(ctx context.Context, sale domain.Sale) error {
	if err := v.writable(); err != nil {
		return err
	}
	if sale.ID == "" {
		return store.ErrInvalid
	}
	if _, exists := v.sales[sale.ID]; exists {
		return store.ErrConflict
	}
	v.sales[sale.ID] = cloneSale(sale)
	return nil
}

func (v *txView) InsertFlow(ctx context.Context, entry domain.FlowEntry) error {
	if err := v.writable(); err != nil {
		return err
	}
	if entry.ID == "" {
		return store.ErrInvalid
	}
	entry = cloneFlow(entry)
	switch entry.PaymentMethod {
	case domain.PaymentMethodCash:
		v.cashFlows = append(v.cashFlows, entry)
	case domain.PaymentMethodTransfer:
		v.transferFlows = append(v.transferFlows, entry)
	default:
		return store.ErrInvalid
	}
	return nil
}

func (v *txView) PutMonthlyBalance(ctx context.Context, balance domain.MonthlyBalance) error {
	if err := v.writable(); err != nil {
		return err
	}
	if balance.Month == "" {
		return store.ErrInvalid
	}
	v.monthly[balance.Month] = balance
	return nil
}

func (t *tables) clone() *tables {
	out := &tables{
		batches:       make(map[string]domain.StockBatch, len(t.batches)),
		products:      make(map[string]domain.Product, len(t.products)),
		sales:         make(map[string]domain.Sale, len(t.sales)),
		cashFlows:     slices.Clone(t.cashFlows),
		transferFlows: slices.Clone(t.transferFlows),
		monthly:       make(map[string]domain.MonthlyBalance, len(t.monthly)),
	}
	for id, batch := range t.batches {
		out.batches[id] = batch
	}
	for id, product := range t.products {
		out.products[id] = product
	}
	// sales and flow entries are never mutated once inserted, sharing them is safe
	for id, sale := range t.sales {
		out.sales[id] = sale
	}
	for month, balance := range t.monthly {
		out.monthly[month] = balance
	}
	return out
}

func (t *tables) insertBatch(batch domain.StockBatch) error {
	if batch.ID == "" || batch.ProductID == "" {
		return store.ErrInvalid
	}
	if _, exists := t.batches[batch.ID]; exists {
		return store.ErrConflict
	}
	t.batches[batch.ID] = batch
	return nil
}

func (t *tables) updateBatch(batch domain.StockBatch) error {
	if _, ok := t.batches[batch.ID]; !ok {
		return store.ErrNotFound
	}
	t.batches[batch.ID] = batch
	return nil
}

func (t *tables) insertProduct(product domain.Product) error {
	if product.ID == "" {
		return store.ErrInvalid
	}
	if _, exists := t.products[product.ID]; exists {
		return store.ErrConflict
	}
	if _, err := t.FindProduct(context.Background(), product.Name, product.Category); err == nil {
		return store.ErrConflict
	}
	t.products[product.ID] = product
	return nil
}

func (t *tables) updateProduct(product domain.Product) error {
	if _, ok := t.products[product.ID]; !ok {
		return store.ErrNotFound
	}
	for id, other := range t.products {
		if id != product.ID && other.Name == product.Name && other.Category == product.Category {
			return store.ErrConflict
		}
	}
	t.products[product.ID] = product
	return nil
}

func (t *tables) GetBatch(_ context.Context, id string) (*domain.StockBatch, error) {
	batch, ok := t.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &batch, nil
}

func (t *tables) ListBatches(_ context.Context) ([]domain.StockBatch, error) {
	batches := make([]domain.StockBatch, 0, len(t.batches))
	for _, batch := range t.batches {
		batches = append(batches, batch)
	}
	slices.SortFunc(batches, compareBatches)
	return batches, nil
}

func (t *tables) ListBatchesByProduct(_ context.Context, productID string) ([]domain.StockBatch, error) {
	batches := make([]domain.StockBatch, 0, 4)
	for _, batch := range t.batches {
		if batch.ProductID == productID {
			batches = append(batches, batch)
		}
	}
	slices.SortFunc(batches, compareBatches)
	return batches, nil
}

func (t *tables) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	product, ok := t.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (t *tables) FindProduct(_ context.Context, name string, category string) (*domain.Product, error) {
	for _, product := range t.products {
		if product.Name == name && product.Category == category {
			found := product
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tables) ListProducts(_ context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(t.products))
	for _, product := range t.products {
		products = append(products, product)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := strings.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (t *tables) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := t.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale = cloneSale(sale)
	return &sale, nil
}

func (t *tables) ListSales(_ context.Context, fromDate string, toDate string) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, 16)
	for _, sale := range t.sales {
		if inRange(sale.Date, fromDate, toDate) {
			sales = append(sales, cloneSale(sale))
		}
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sales, nil
}

func (t *tables) ListFlows(ctx context.Context, method string) ([]domain.FlowEntry, error) {
	return t.ListFlowsInRange(ctx, method, "", "")
}

func (t *tables) ListFlowsInRange(_ context.Context, method string, fromDate string, toDate string) ([]domain.FlowEntry, error) {
	var source []domain.FlowEntry
	switch method {
	case domain.PaymentMethodCash:
		source = t.cashFlows
	case domain.PaymentMethodTransfer:
		source = t.transferFlows
	default:
		return nil, store.ErrInvalid
	}

	entries := make([]domain.FlowEntry, 0, len(source))
	for _, entry := range source {
		if inRange(entry.Date, fromDate, toDate) {
			entries = append(entries, cloneFlow(entry))
		}
	}
	slices.SortStableFunc(entries, func(a, b domain.FlowEntry) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return entries, nil
}

func (t *tables) GetMonthlyBalance(_ context.Context, month string) (*domain.MonthlyBalance, error) {
	balance, ok := t.monthly[month]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &balance, nil
}

func (t *tables) ListMonthlyBalances(_ context.Context) ([]domain.MonthlyBalance, error) {
	balances := make([]domain.MonthlyBalance, 0, len(t.monthly))
	for _, balance := range t.monthly {
		balances = append(balances, balance)
	}
	slices.SortFunc(balances, func(a, b domain.MonthlyBalance) int {
		return strings.Compare(a.Month, b.Month)
	})
	return balances, nil
}

func compareBatches(a, b domain.StockBatch) int {
	if c := strings.Compare(a.ReceivedOn, b.ReceivedOn); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func inRange(date string, fromDate string, toDate string) bool {
	if fromDate != "" && date < fromDate {
		return false
	}
	if toDate != "" && date > toDate {
		return false
	}
	return true
}

func cloneSale(sale domain.Sale) domain.Sale {
	lines := make([]domain.SaleLine, len(sale.Lines))
	for i, line := range sale.Lines {
		line.Allocations = slices.Clone(line.Allocations)
		lines[i] = line
	}
	sale.Lines = lines
	return sale
}

func cloneFlow(entry domain.FlowEntry) domain.FlowEntry {
	if entry.Details != nil {
		details := *entry.Details
		entry.Details = &details
	}
	return entry
}
