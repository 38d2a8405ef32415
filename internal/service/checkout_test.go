package service

import (
	"context"
	"errors"
	"testing"

	"kasirkoperasi/backend/internal/domain"
)

func TestProcessTransactionCashSale(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{Username: "kasir1", Role: "cashier"})
	addCapital(t, svc, 1_000_000, "2026-03-01")
	stock := intake(t, svc, "Gula 1kg", 100, 2000, 3000, "2026-03-02")
	before := cashBalance(t, svc)

	sale, err := svc.ProcessTransaction(ctx, domain.SaleRequest{
		ID:                "TRX-0001",
		PaymentMethod:     "cash",
		CashReceivedCents: 100_000,
		Lines: []domain.SaleLineRequest{
			{ProductID: stock.Product.ID, Qty: 30, UnitPriceCents: 3000},
		},
	})
	if err != nil {
		t.Fatalf("process transaction failed: %v", err)
	}

	if sale.SubtotalCents != 90_000 || sale.ChangeCents != 10_000 {
		t.Fatalf("unexpected totals subtotal=%d change=%d", sale.SubtotalCents, sale.ChangeCents)
	}
	if sale.CreatedBy != "kasir1" || sale.Date != "2026-03-20" {
		t.Fatalf("unexpected sale metadata %+v", sale)
	}
	if got := cashBalance(t, svc) - before; got != 90_000 {
		t.Fatalf("expected net cash +90000, got %d", got)
	}
	if got := mustProduct(t, svc, stock.Product.ID).Stock; got != 70 {
		t.Fatalf("expected stock 70, got %d", got)
	}
	if len(sale.Lines) != 1 || sale.Lines[0].CostCents() != 60_000 || sale.Lines[0].ProductName != "Gula 1kg" {
		t.Fatalf("unexpected sale line %+v", sale.Lines)
	}

	flows, err := svc.ListFlows(ctx, "cash")
	if err != nil {
		t.Fatalf("list flows failed: %v", err)
	}
	if len(flows) < 2 {
		t.Fatalf("expected sale flows, got %d entries", len(flows))
	}
	change, income := flows[0], flows[1]
	if change.Type != domain.FlowTypeExpense || change.AmountCents != 10_000 || change.TransactionID != "TRX-0001" {
		t.Fatalf("expected change expense first, got %+v", change)
	}
	if income.Type != domain.FlowTypeIncome || income.AmountCents != 100_000 || income.TransactionID != "TRX-0001" {
		t.Fatalf("expected tendered income next, got %+v", income)
	}
	if !change.Timestamp.After(income.Timestamp) {
		t.Fatalf("expected change to be stamped after income")
	}

	stored, err := svc.GetTransaction(ctx, "TRX-0001")
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if len(stored.Lines) != 1 || len(stored.Lines[0].Allocations) != 1 || stored.Lines[0].Allocations[0].BatchID != stock.Batch.ID {
		t.Fatalf("expected allocations to be stored, got %+v", stored.Lines)
	}
	assertStockConsistent(t, svc)
}

func TestProcessTransactionTransferBooksSubtotal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addCapital(t, svc, 100_000, "2026-03-01")
	stock := intake(t, svc, "Kopi Sachet", 20, 1500, 2000, "2026-03-02")

	_, err := svc.ProcessTransaction(ctx, domain.SaleRequest{
		ID:            "TRX-0002",
		PaymentMethod: "transfer",
		SubtotalCents: 10_000,
		Lines:         []domain.SaleLineRequest{{ProductID: stock.Product.ID, Qty: 5, UnitPriceCents: 2000}},
	})
	if err != nil {
		t.Fatalf("transfer sale failed: %v", err)
	}

	transfer, err := svc.TransferBalance(ctx)
	if err != nil {
		t.Fatalf("transfer balance failed: %v", err)
	}
	if transfer != 10_000 {
		t.Fatalf("expected transfer balance 10000, got %d", transfer)
	}
	if got := cashBalance(t, svc); got != 70_000 {
		t.Fatalf("expected cash untouched at 70000, got %d", got)
	}
}

func TestProcessTransactionOversellLeavesNothingBehind(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addCapital(t, svc, 1_000_000, "2026-03-01")
	plenty := intake(t, svc, "Beras 5kg", 10, 60000, 70000, "2026-03-02")
	scarce := intake(t, svc, "Minyak 1L", 2, 15000, 18000, "2026-03-02")
	flowsBefore, _ := svc.ListFlows(ctx, "")

	_, err := svc.ProcessTransaction(ctx, domain.SaleRequest{
		ID:                "TRX-0003",
		CashReceivedCents: 1_000_000,
		Lines: []domain.SaleLineRequest{
			{ProductID: plenty.Product.ID, Qty: 3, UnitPriceCents: 70000},
			{ProductID: scarce.Product.ID, Qty: 5, UnitPriceCents: 18000},
		},
	})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if stockErr.ProductID != scarce.Product.ID || stockErr.Available != 2 || stockErr.Requested != 5 {
		t.Fatalf("unexpected stock error %+v", stockErr)
	}

	if got := mustProduct(t, svc, plenty.Product.ID).Stock; got != 10 {
		t.Fatalf("expected first line untouched, stock %d", got)
	}
	if _, err := svc.GetTransaction(ctx, "TRX-0003"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no stored sale, got %v", err)
	}
	flowsAfter, _ := svc.ListFlows(ctx, "")
	if len(flowsAfter) != len(flowsBefore) {
		t.Fatalf("expected no new flows, had %d now %d", len(flowsBefore), len(flowsAfter))
	}
	assertStockConsistent(t, svc)
}

func TestProcessTransactionSumsRepeatedProductLines(t *testing.T) {
	svc, _ := newTestService(t)
	addCapital(t, svc, 1_000_000, "2026-03-01")
	stock := intake(t, svc, "Telur 1kg", 4, 26000, 29000, "2026-03-02")

	_, err := svc.ProcessTransaction(context.Background(), domain.SaleRequest{
		ID:                "TRX-0004",
		CashReceivedCents: 500_000,
		Lines: []domain.SaleLineRequest{
			{ProductID: stock.Product.ID, Qty: 3, UnitPriceCents: 29000},
			{ProductID: stock.Product.ID, Qty: 3, UnitPriceCents: 29000},
		},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock across lines, got %v", err)
	}
	if got := mustProduct(t, svc, stock.Product.ID).Stock; got != 4 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestProcessTransactionRejectsDuplicateID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addCapital(t, svc, 1_000_000, "2026-03-01")
	stock := intake(t, svc, "Roti Tawar", 10, 12000, 15000, "2026-03-02")

	req := domain.SaleRequest{
		ID:                "TRX-0005",
		CashReceivedCents: 15_000,
		Lines:             []domain.SaleLineRequest{{ProductID: stock.Product.ID, Qty: 1, UnitPriceCents: 15000}},
	}
	if _, err := svc.ProcessTransaction(ctx, req); err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	if _, err := svc.ProcessTransaction(ctx, req); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected duplicate id to be rejected, got %v", err)
	}
	if got := mustProduct(t, svc, stock.Product.ID).Stock; got != 9 {
		t.Fatalf("expected one unit sold, stock %d", got)
	}
}

func TestProcessTransactionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	line := domain.SaleLineRequest{ProductID: "prd-1", Qty: 1, UnitPriceCents: 1000}

	cases := map[string]domain.SaleRequest{
		"missing id":       {CashReceivedCents: 1000, Lines: []domain.SaleLineRequest{line}},
		"no lines":         {ID: "T1", CashReceivedCents: 1000},
		"bad method":       {ID: "T1", PaymentMethod: "card", Lines: []domain.SaleLineRequest{line}},
		"short cash":       {ID: "T1", CashReceivedCents: 999, Lines: []domain.SaleLineRequest{line}},
		"subtotal differs": {ID: "T1", SubtotalCents: 2000, CashReceivedCents: 2000, Lines: []domain.SaleLineRequest{line}},
		"zero qty":         {ID: "T1", CashReceivedCents: 1000, Lines: []domain.SaleLineRequest{{ProductID: "prd-1", UnitPriceCents: 1000}}},
		"bad date":         {ID: "T1", Date: "2026-02-30", CashReceivedCents: 1000, Lines: []domain.SaleLineRequest{line}},
	}
	for name, req := range cases {
		if _, err := svc.ProcessTransaction(context.Background(), req); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	_, err := svc.ProcessTransaction(context.Background(), domain.SaleRequest{
		ID:                "T2",
		CashReceivedCents: 1000,
		Lines:             []domain.SaleLineRequest{line},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unknown product to be not found, got %v", err)
	}
}

func TestListTransactionsByDate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addCapital(t, svc, 1_000_000, "2026-03-01")
	stock := intake(t, svc, "Sabun Batang", 10, 4000, 5000, "2026-03-02")

	for _, sale := range []struct{ id, date string }{{"TRX-A", "2026-03-05"}, {"TRX-B", "2026-03-10"}} {
		_, err := svc.ProcessTransaction(ctx, domain.SaleRequest{
			ID:                sale.id,
			Date:              sale.date,
			CashReceivedCents: 5000,
			Lines:             []domain.SaleLineRequest{{ProductID: stock.Product.ID, Qty: 1, UnitPriceCents: 5000}},
		})
		if err != nil {
			t.Fatalf("sale %s failed: %v", sale.id, err)
		}
	}

	sales, err := svc.ListTransactions(ctx, "2026-03-06", "2026-03-31")
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if len(sales) != 1 || sales[0].ID != "TRX-B" {
		t.Fatalf("expected only TRX-B, got %+v", sales)
	}
	if _, err := svc.ListTransactions(ctx, "06-03-2026", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for bad from date, got %v", err)
	}
}
