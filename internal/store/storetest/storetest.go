// Package storetest holds the behaviour every store.Repository must share.
// Each backend's tests call Run with a constructor for a fresh repository.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
	"kasirkoperasi/backend/internal/xid"
)

// Run exercises repo through its public contract. Records are keyed by
// generated IDs so the suite can run against a shared database.
func Run(t *testing.T, open func(t *testing.T) store.Repository) {
	t.Run("BatchesFollowIntakeOrder", func(t *testing.T) { testBatchesFollowIntakeOrder(t, open(t)) })
	t.Run("ProductKeyIsUnique", func(t *testing.T) { testProductKeyIsUnique(t, open(t)) })
	t.Run("RollbackDiscardsWrites", func(t *testing.T) { testRollbackDiscardsWrites(t, open(t)) })
	t.Run("FlowsSplitByMethod", func(t *testing.T) { testFlowsSplitByMethod(t, open(t)) })
	t.Run("SaleKeepsLinesAndAllocations", func(t *testing.T) { testSaleKeepsLinesAndAllocations(t, open(t)) })
	t.Run("MonthlyBalanceUpsert", func(t *testing.T) { testMonthlyBalanceUpsert(t, open(t)) })
	t.Run("MissingRecords", func(t *testing.T) { testMissingRecords(t, open(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
}

func stamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func write(t *testing.T, repo store.Repository, fn func(tx store.Tx) error) {
	t.Helper()
	require.NoError(t, repo.RunAtomic(context.Background(), store.ReadWrite, fn))
}

func newProduct(name string) domain.Product {
	return domain.Product{
		ID:             xid.New("prd"),
		Name:           name,
		Category:       "sembako",
		SalePriceCents: 3000,
		UpdatedAt:      stamp(),
	}
}

func newBatch(product domain.Product, receivedOn string, qty int) domain.StockBatch {
	return domain.StockBatch{
		ID:             xid.New("batch"),
		ProductID:      product.ID,
		ProductName:    product.Name,
		Category:       product.Category,
		QtyReceived:    qty,
		QtyRemaining:   qty,
		UnitCostCents:  2000,
		SalePriceCents: 3000,
		MarginPercent:  decimal.RequireFromString("50.00"),
		Barcode:        xid.Barcode(),
		ReceivedOn:     receivedOn,
		CreatedAt:      stamp(),
	}
}

func testBatchesFollowIntakeOrder(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := newProduct(xid.New("Gula"))
	newer := newBatch(product, "2026-03-05", 10)
	older := newBatch(product, "2026-03-01", 5)
	product.Stock = 15
	product.LatestBatchID = older.ID

	write(t, repo, func(tx store.Tx) error {
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		if err := tx.InsertBatch(ctx, newer); err != nil {
			return err
		}
		return tx.InsertBatch(ctx, older)
	})

	batches, err := repo.ListBatchesByProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, older.ID, batches[0].ID)
	assert.Equal(t, newer.ID, batches[1].ID)

	got, err := repo.GetBatch(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, got.MarginPercent.Equal(older.MarginPercent), "margin %s", got.MarginPercent)
	assert.Equal(t, older.Barcode, got.Barcode)
	assert.True(t, got.CreatedAt.Equal(older.CreatedAt))

	got.QtyRemaining = 2
	write(t, repo, func(tx store.Tx) error { return tx.UpdateBatch(ctx, *got) })
	updated, err := repo.GetBatch(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.QtyRemaining)

	write(t, repo, func(tx store.Tx) error { return tx.DeleteBatch(ctx, newer.ID) })
	_, err = repo.GetBatch(ctx, newer.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testProductKeyIsUnique(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	first := newProduct(xid.New("Minyak"))
	write(t, repo, func(tx store.Tx) error { return tx.InsertProduct(ctx, first) })

	found, err := repo.FindProduct(ctx, first.Name, first.Category)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	clash := newProduct(first.Name)
	err = repo.RunAtomic(ctx, store.ReadWrite, func(tx store.Tx) error { return tx.InsertProduct(ctx, clash) })
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = repo.FindProduct(ctx, first.Name, "minuman")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRollbackDiscardsWrites(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	product := newProduct(xid.New("Kopi"))
	boom := errors.New("boom")

	err := repo.RunAtomic(ctx, store.ReadWrite, func(tx store.Tx) error {
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		if _, err := tx.GetProduct(ctx, product.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFlowsSplitByMethod(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	at := stamp()
	cashIn := domain.FlowEntry{
		ID:            xid.New("cf"),
		Type:          domain.FlowTypeIncome,
		AmountCents:   100_000,
		Description:   "modal awal",
		Date:          "2026-03-01",
		PaymentMethod: domain.PaymentMethodCash,
		Timestamp:     at,
		Details:       &domain.FlowDetails{Kind: domain.FlowKindManual},
	}
	cashOut := domain.FlowEntry{
		ID:            xid.New("cf"),
		Type:          domain.FlowTypeExpense,
		AmountCents:   40_000,
		Description:   "stock received",
		Date:          "2026-03-05",
		PaymentMethod: domain.PaymentMethodCash,
		Timestamp:     at.Add(time.Second),
		Details: &domain.FlowDetails{
			Kind:          domain.FlowKindStockReceived,
			BatchID:       "batch-1",
			Qty:           20,
			UnitCostCents: 2000,
		},
	}
	transferIn := domain.FlowEntry{
		ID:            xid.New("tf"),
		Type:          domain.FlowTypeIncome,
		AmountCents:   25_000,
		Description:   "sale",
		Date:          "2026-03-05",
		TransactionID: "TRX-1",
		PaymentMethod: domain.PaymentMethodTransfer,
		Timestamp:     at,
	}
	write(t, repo, func(tx store.Tx) error {
		for _, entry := range []domain.FlowEntry{cashIn, cashOut, transferIn} {
			if err := tx.InsertFlow(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})

	cash, err := repo.ListFlowsInRange(ctx, domain.PaymentMethodCash, "2026-03-01", "2026-03-05")
	require.NoError(t, err)
	cash = onlyIDs(cash, cashIn.ID, cashOut.ID)
	require.Len(t, cash, 2)
	assert.Equal(t, cashIn.ID, cash[0].ID)
	require.NotNil(t, cash[1].Details)
	assert.Equal(t, *cashOut.Details, *cash[1].Details)
	assert.True(t, cash[1].Timestamp.Equal(cashOut.Timestamp))

	later, err := repo.ListFlowsInRange(ctx, domain.PaymentMethodCash, "2026-03-02", "")
	require.NoError(t, err)
	assert.Len(t, onlyIDs(later, cashIn.ID, cashOut.ID), 1)

	transfers, err := repo.ListFlows(ctx, domain.PaymentMethodTransfer)
	require.NoError(t, err)
	transfers = onlyIDs(transfers, transferIn.ID, cashIn.ID)
	require.Len(t, transfers, 1)
	assert.Equal(t, "TRX-1", transfers[0].TransactionID)
	assert.Nil(t, transfers[0].Details)

	bad := cashIn
	bad.ID = xid.New("cf")
	bad.PaymentMethod = "qris"
	err = repo.RunAtomic(ctx, store.ReadWrite, func(tx store.Tx) error { return tx.InsertFlow(ctx, bad) })
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func onlyIDs(entries []domain.FlowEntry, ids ...string) []domain.FlowEntry {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := make([]domain.FlowEntry, 0, len(ids))
	for _, entry := range entries {
		if keep[entry.ID] {
			out = append(out, entry)
		}
	}
	return out
}

func testSaleKeepsLinesAndAllocations(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	sale := domain.Sale{
		ID:                xid.New("TRX"),
		Date:              "2026-03-07",
		SubtotalCents:     9000,
		PaymentMethod:     domain.PaymentMethodCash,
		Status:            domain.SaleStatusCompleted,
		CashReceivedCents: 10_000,
		ChangeCents:       1000,
		CreatedBy:         "kasir1",
		CreatedAt:         stamp(),
	}
	sale.Lines = []domain.SaleLine{
		{
			SaleID: sale.ID, LineNo: 1, ProductID: "prd-1", ProductName: "Gula", Qty: 3,
			UnitPriceCents: 3000, LineTotalCents: 9000,
			Allocations: []domain.BatchAllocation{
				{BatchID: "batch-a", Qty: 1, UnitCostCents: 1900},
				{BatchID: "batch-b", Qty: 2, UnitCostCents: 2000},
			},
		},
	}
	write(t, repo, func(tx store.Tx) error { return tx.InsertSale(ctx, sale) })

	got, err := repo.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, sale.Lines[0].Allocations, got.Lines[0].Allocations)
	assert.Equal(t, int64(5900), got.Lines[0].CostCents())
	assert.Equal(t, "kasir1", got.CreatedBy)

	sales, err := repo.ListSales(ctx, "2026-03-07", "2026-03-07")
	require.NoError(t, err)
	var listed *domain.Sale
	for i := range sales {
		if sales[i].ID == sale.ID {
			listed = &sales[i]
		}
	}
	require.NotNil(t, listed)
	assert.Len(t, listed.Lines, 1)

	err = repo.RunAtomic(ctx, store.ReadWrite, func(tx store.Tx) error { return tx.InsertSale(ctx, sale) })
	assert.ErrorIs(t, err, store.ErrConflict)
}

func testMonthlyBalanceUpsert(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	month := "2026-03"
	write(t, repo, func(tx store.Tx) error {
		return tx.PutMonthlyBalance(ctx, domain.MonthlyBalance{Month: month, CashCents: 100, TransferCents: 50, UpdatedAt: stamp()})
	})
	write(t, repo, func(tx store.Tx) error {
		return tx.PutMonthlyBalance(ctx, domain.MonthlyBalance{Month: month, CashCents: -20, TransferCents: 75, UpdatedAt: stamp()})
	})

	got, err := repo.GetMonthlyBalance(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, int64(-20), got.CashCents)
	assert.Equal(t, int64(75), got.TransferCents)

	all, err := repo.ListMonthlyBalances(ctx)
	require.NoError(t, err)
	count := 0
	for _, row := range all {
		if row.Month == month {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func testMissingRecords(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	missing := xid.New("missing")

	_, err := repo.GetBatch(ctx, missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.GetProduct(ctx, missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.GetSale(ctx, missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.GetMonthlyBalance(ctx, "1999-01")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = repo.RunAtomic(ctx, store.ReadWrite, func(tx store.Tx) error { return tx.DeleteBatch(ctx, missing) })
	assert.ErrorIs(t, err, store.ErrNotFound)
	err = repo.RunAtomic(ctx, store.ReadWrite, func(tx store.Tx) error {
		return tx.UpdateProduct(ctx, domain.Product{ID: missing, Name: "x", Category: "y", UpdatedAt: stamp()})
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUsers(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	username := xid.New("kasir")

	require.NoError(t, repo.CreateUser(ctx, domain.UserAccount{Username: username, Password: "hash-1", Role: "cashier", Active: true}))
	assert.ErrorIs(t, repo.CreateUser(ctx, domain.UserAccount{Username: username, Password: "hash-2"}), store.ErrConflict)
	assert.ErrorIs(t, repo.CreateUser(ctx, domain.UserAccount{Username: " ", Password: "x"}), store.ErrInvalid)

	require.NoError(t, repo.UpdateUserPassword(ctx, username, "hash-3"))
	assert.ErrorIs(t, repo.UpdateUserPassword(ctx, xid.New("ghost"), "x"), store.ErrNotFound)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == username {
			found = &users[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "hash-3", found.Password)
	assert.True(t, found.Active)
}
