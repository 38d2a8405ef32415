package store

import (
	"context"
	"errors"

	"kasirkoperasi/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid record")
)

type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadOnly {
		return "read-only"
	}
	return "read-write"
}

// Reader lists every lookup the ledgers need. Date bounds are inclusive ISO
// days; an empty bound is open.
type Reader interface {
	GetBatch(ctx context.Context, id string) (*domain.StockBatch, error)
	ListBatches(ctx context.Context) ([]domain.StockBatch, error)
	// ListBatchesByProduct returns the product's batches oldest intake first.
	ListBatchesByProduct(ctx context.Context, productID string) ([]domain.StockBatch, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	FindProduct(ctx context.Context, name string, category string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, fromDate string, toDate string) ([]domain.Sale, error)
	ListFlows(ctx context.Context, method string) ([]domain.FlowEntry, error)
	ListFlowsInRange(ctx context.Context, method string, fromDate string, toDate string) ([]domain.FlowEntry, error)
	GetMonthlyBalance(ctx context.Context, month string) (*domain.MonthlyBalance, error)
	ListMonthlyBalances(ctx context.Context) ([]domain.MonthlyBalance, error)
}

type Writer interface {
	InsertBatch(ctx context.Context, batch domain.StockBatch) error
	UpdateBatch(ctx context.Context, batch domain.StockBatch) error
	DeleteBatch(ctx context.Context, id string) error
	InsertProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	// InsertSale writes the header and all of its lines.
	InsertSale(ctx context.Context, sale domain.Sale) error
	// InsertFlow writes to the cash or transfer table by entry.PaymentMethod.
	InsertFlow(ctx context.Context, entry domain.FlowEntry) error
	PutMonthlyBalance(ctx context.Context, balance domain.MonthlyBalance) error
}

// Tx is the view handed to a RunAtomic body. Nothing written through it is
// visible outside unless the body returns nil.
type Tx interface {
	Reader
	Writer
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	Reader
	UserStore
	RunAtomic(ctx context.Context, mode Mode, fn func(tx Tx) error) error
	Close() error
}
