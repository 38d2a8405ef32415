package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
)

// ProcessTransaction completes a sale in one atomic group: stock leaves the
// batches FIFO, the sale is recorded and its money is booked. Either all of
// it commits or none of it does.
func (s *Service) ProcessTransaction(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return domain.Sale{}, invalid("id", "required")
	}
	method, err := normalizeMethod(req.PaymentMethod)
	if err != nil {
		return domain.Sale{}, err
	}
	date, err := s.resolveDate("date", req.Date)
	if err != nil {
		return domain.Sale{}, err
	}
	if len(req.Lines) == 0 {
		return domain.Sale{}, invalid("lines", "at least one line is required")
	}

	now := s.now()
	sale := domain.Sale{
		ID:            id,
		Date:          date,
		PaymentMethod: method,
		Status:        domain.SaleStatusCompleted,
		CreatedBy:     actorName(ctx),
		CreatedAt:     now,
		Lines:         make([]domain.SaleLine, 0, len(req.Lines)),
	}

	for i, line := range req.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return domain.Sale{}, invalid(field+".product_id", "required")
		}
		if line.Qty <= 0 {
			return domain.Sale{}, invalid(field+".qty", "must be greater than zero")
		}
		if line.UnitPriceCents <= 0 {
			return domain.Sale{}, invalid(field+".unit_price_cents", "must be greater than zero")
		}
		total := line.UnitPriceCents * int64(line.Qty)
		sale.SubtotalCents += total
		sale.Lines = append(sale.Lines, domain.SaleLine{
			SaleID:         id,
			LineNo:         i + 1,
			ProductID:      productID,
			Qty:            line.Qty,
			UnitPriceCents: line.UnitPriceCents,
			LineTotalCents: total,
		})
	}
	if req.SubtotalCents != 0 && req.SubtotalCents != sale.SubtotalCents {
		return domain.Sale{}, invalid("subtotal_cents", "%d does not match line total %d", req.SubtotalCents, sale.SubtotalCents)
	}

	if method == domain.PaymentMethodCash {
		if req.CashReceivedCents < sale.SubtotalCents {
			return domain.Sale{}, invalid("cash_received_cents", "%d is less than subtotal %d", req.CashReceivedCents, sale.SubtotalCents)
		}
		sale.CashReceivedCents = req.CashReceivedCents
		sale.ChangeCents = req.CashReceivedCents - sale.SubtotalCents
	}

	err = s.atomic(ctx, "process transaction", store.ReadWrite, func(tx store.Tx) error {
		if _, err := tx.GetSale(ctx, id); err == nil {
			return invalid("id", "transaction %s already exists", id)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		// Every line is checked against the aggregate before any batch moves.
		products := make(map[string]*domain.Product, len(sale.Lines))
		requested := make(map[string]int, len(sale.Lines))
		for _, line := range sale.Lines {
			if _, ok := products[line.ProductID]; !ok {
				product, err := s.loadProduct(ctx, tx, line.ProductID)
				if err != nil {
					return err
				}
				products[line.ProductID] = product
			}
			requested[line.ProductID] += line.Qty
		}
		for productID, qty := range requested {
			product := products[productID]
			if qty > product.Stock {
				return &InsufficientStockError{
					ProductID: product.ID,
					Product:   product.Name,
					Available: product.Stock,
					Requested: qty,
				}
			}
		}

		for i := range sale.Lines {
			line := &sale.Lines[i]
			product := products[line.ProductID]
			line.ProductName = product.Name
			allocations, err := s.consumeFIFO(ctx, tx, product, line.Qty)
			if err != nil {
				return err
			}
			line.Allocations = allocations
		}

		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		for _, entry := range s.saleFlows(sale, now) {
			if err := tx.InsertFlow(ctx, entry); err != nil {
				return err
			}
		}
		_, err := s.recomputeMonthTx(ctx, tx, domain.MonthOf(date))
		return err
	})
	if err != nil {
		return domain.Sale{}, err
	}

	log.Printf("[service] sale id=%s method=%s subtotal=%d change=%d lines=%d by=%s",
		sale.ID, sale.PaymentMethod, sale.SubtotalCents, sale.ChangeCents, len(sale.Lines), sale.CreatedBy)
	return sale, nil
}

// saleFlows books a cash sale as the tendered amount in and the change out,
// the change stamped after the income. A transfer sale books its subtotal.
func (s *Service) saleFlows(sale domain.Sale, at time.Time) []domain.FlowEntry {
	if sale.PaymentMethod == domain.PaymentMethodTransfer {
		income := s.newFlow(domain.PaymentMethodTransfer, domain.FlowTypeIncome, sale.SubtotalCents, sale.Date, at)
		income.Description = "sale " + sale.ID
		income.TransactionID = sale.ID
		income.Details = &domain.FlowDetails{Kind: domain.FlowKindSale}
		return []domain.FlowEntry{income}
	}

	income := s.newFlow(domain.PaymentMethodCash, domain.FlowTypeIncome, sale.CashReceivedCents, sale.Date, at)
	income.Description = "sale " + sale.ID
	income.TransactionID = sale.ID
	income.Details = &domain.FlowDetails{Kind: domain.FlowKindSale}
	if sale.ChangeCents == 0 {
		return []domain.FlowEntry{income}
	}

	change := s.newFlow(domain.PaymentMethodCash, domain.FlowTypeExpense, sale.ChangeCents, sale.Date, at.Add(time.Millisecond))
	change.Description = "change for sale " + sale.ID
	change.TransactionID = sale.ID
	change.Details = &domain.FlowDetails{Kind: domain.FlowKindChange}
	return []domain.FlowEntry{income, change}
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, &NotFoundError{Kind: "transaction", ID: id}
		}
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListTransactions(ctx context.Context, fromDate string, toDate string) ([]domain.Sale, error) {
	for field, value := range map[string]string{"from": fromDate, "to": toDate} {
		if value == "" {
			continue
		}
		if _, err := domain.ParseDate(value); err != nil {
			return nil, invalid(field, "%v", err)
		}
	}
	return s.repo.ListSales(ctx, fromDate, toDate)
}
