package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
	"kasirkoperasi/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

// marginPercent is (price - cost) / cost * 100, rounded to two places.
func marginPercent(costCents int64, priceCents int64) decimal.Decimal {
	if costCents <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(priceCents - costCents).
		Mul(hundred).
		Div(decimal.NewFromInt(costCents)).
		Round(2)
}

func priceFromMargin(costCents int64, margin decimal.Decimal) int64 {
	return decimal.NewFromInt(costCents).
		Mul(hundred.Add(margin)).
		Div(hundred).
		Round(0).
		IntPart()
}

func normalizeMethod(method string) (string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	switch method {
	case "":
		return domain.PaymentMethodCash, nil
	case domain.PaymentMethodCash, domain.PaymentMethodTransfer:
		return method, nil
	default:
		return "", invalid("payment_method", "must be %q or %q", domain.PaymentMethodCash, domain.PaymentMethodTransfer)
	}
}

func (s *Service) ListStockBatches(ctx context.Context) ([]domain.StockBatch, error) {
	return s.repo.ListBatches(ctx)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, &NotFoundError{Kind: "product", ID: id}
		}
		return domain.Product{}, err
	}
	return *product, nil
}

// AddIncomingStock records a new batch, folds it into the product aggregate
// and books its purchase as an expense, all in one atomic group. Calls are
// not idempotent: a repeated payload creates a second batch.
func (s *Service) AddIncomingStock(ctx context.Context, req domain.StockIntakeRequest) (domain.StockIntakeResult, error) {
	req.ProductName = strings.TrimSpace(req.ProductName)
	req.Category = strings.TrimSpace(req.Category)
	req.Barcode = strings.TrimSpace(req.Barcode)

	if req.ProductName == "" {
		return domain.StockIntakeResult{}, invalid("product_name", "required")
	}
	if req.Category == "" {
		return domain.StockIntakeResult{}, invalid("category", "required")
	}
	if req.Qty <= 0 {
		return domain.StockIntakeResult{}, invalid("qty", "must be greater than zero")
	}
	if req.UnitCostCents <= 0 {
		return domain.StockIntakeResult{}, invalid("unit_cost_cents", "must be greater than zero")
	}
	if req.SalePriceCents == 0 && req.MarginPercent != nil {
		req.SalePriceCents = priceFromMargin(req.UnitCostCents, *req.MarginPercent)
	}
	if req.SalePriceCents <= 0 {
		return domain.StockIntakeResult{}, invalid("sale_price_cents", "must be greater than zero")
	}
	margin := marginPercent(req.UnitCostCents, req.SalePriceCents)
	if req.MarginPercent != nil {
		margin = req.MarginPercent.Round(2)
	}
	generatedBarcode := req.Barcode == ""
	if generatedBarcode {
		req.Barcode = xid.Barcode()
	}
	method, err := normalizeMethod(req.PaymentMethod)
	if err != nil {
		return domain.StockIntakeResult{}, err
	}
	date, err := s.resolveDate("received_on", req.ReceivedOn)
	if err != nil {
		return domain.StockIntakeResult{}, err
	}

	now := s.now()
	total := req.UnitCostCents * int64(req.Qty)
	batch := domain.StockBatch{
		ID:             xid.New("batch"),
		ProductName:    req.ProductName,
		Category:       req.Category,
		QtyReceived:    req.Qty,
		QtyRemaining:   req.Qty,
		UnitCostCents:  req.UnitCostCents,
		SalePriceCents: req.SalePriceCents,
		MarginPercent:  margin,
		Barcode:        req.Barcode,
		ReceivedOn:     date,
		CreatedAt:      now,
	}

	var result domain.StockIntakeResult
	err = s.atomic(ctx, "stock intake", store.ReadWrite, func(tx store.Tx) error {
		if method == domain.PaymentMethodCash && !req.OverrideFundsCheck {
			if err := s.requireCash(ctx, tx, total); err != nil {
				return err
			}
		}

		product, err := tx.FindProduct(ctx, req.ProductName, req.Category)
		switch {
		case errors.Is(err, store.ErrNotFound):
			product = &domain.Product{
				ID:             xid.New("prd"),
				Name:           req.ProductName,
				Category:       req.Category,
				SalePriceCents: req.SalePriceCents,
				Stock:          req.Qty,
				LatestBatchID:  batch.ID,
				Barcode:        req.Barcode,
				UpdatedAt:      now,
			}
			if err := tx.InsertProduct(ctx, *product); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			product.Stock += req.Qty
			product.SalePriceCents = req.SalePriceCents
			product.LatestBatchID = batch.ID
			// A generated code never replaces the one already on the shelf.
			if generatedBarcode && product.Barcode != "" {
				batch.Barcode = product.Barcode
			} else {
				product.Barcode = req.Barcode
			}
			product.UpdatedAt = now
			if err := tx.UpdateProduct(ctx, *product); err != nil {
				return err
			}
		}

		batch.ProductID = product.ID
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return err
		}

		expense := s.newFlow(method, domain.FlowTypeExpense, total, date, now)
		expense.Description = fmt.Sprintf("stock received: %s x%d", batch.ProductName, batch.QtyReceived)
		expense.Details = &domain.FlowDetails{
			Kind:          domain.FlowKindStockReceived,
			BatchID:       batch.ID,
			ProductID:     product.ID,
			ProductName:   product.Name,
			Qty:           batch.QtyReceived,
			UnitCostCents: batch.UnitCostCents,
		}
		if err := tx.InsertFlow(ctx, expense); err != nil {
			return err
		}
		if _, err := s.recomputeMonthTx(ctx, tx, domain.MonthOf(date)); err != nil {
			return err
		}

		result = domain.StockIntakeResult{Batch: batch, Product: *product, Expense: &expense}
		return nil
	})
	if err != nil {
		return domain.StockIntakeResult{}, err
	}

	log.Printf("[service] stock intake batch=%s product=%s qty=%d cost=%d method=%s override=%t by=%s",
		batch.ID, batch.ProductID, batch.QtyReceived, total, method, req.OverrideFundsCheck, actorName(ctx))
	return result, nil
}

// Restock adds units to an existing batch. An expense is booked only when
// units are added; new cost and price apply to the batch going forward.
func (s *Service) Restock(ctx context.Context, batchID string, req domain.RestockRequest) (domain.StockIntakeResult, error) {
	if req.AdditionalQty < 0 {
		return domain.StockIntakeResult{}, invalid("additional_qty", "must not be negative")
	}
	if req.UnitCostCents != nil && *req.UnitCostCents <= 0 {
		return domain.StockIntakeResult{}, invalid("unit_cost_cents", "must be greater than zero")
	}
	if req.SalePriceCents != nil && *req.SalePriceCents <= 0 {
		return domain.StockIntakeResult{}, invalid("sale_price_cents", "must be greater than zero")
	}
	if req.AdditionalQty == 0 && req.UnitCostCents == nil && req.SalePriceCents == nil {
		return domain.StockIntakeResult{}, invalid("", "restock changes nothing")
	}
	method, err := normalizeMethod(req.PaymentMethod)
	if err != nil {
		return domain.StockIntakeResult{}, err
	}
	date, err := s.resolveDate("date", req.Date)
	if err != nil {
		return domain.StockIntakeResult{}, err
	}

	now := s.now()
	var result domain.StockIntakeResult
	err = s.atomic(ctx, "restock", store.ReadWrite, func(tx store.Tx) error {
		batch, err := s.loadBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		product, err := s.loadProduct(ctx, tx, batch.ProductID)
		if err != nil {
			return err
		}

		if req.UnitCostCents != nil {
			batch.UnitCostCents = *req.UnitCostCents
		}
		if req.SalePriceCents != nil {
			batch.SalePriceCents = *req.SalePriceCents
		}
		batch.MarginPercent = marginPercent(batch.UnitCostCents, batch.SalePriceCents)

		total := batch.UnitCostCents * int64(req.AdditionalQty)
		if req.AdditionalQty > 0 && method == domain.PaymentMethodCash && !req.OverrideFundsCheck {
			if err := s.requireCash(ctx, tx, total); err != nil {
				return err
			}
		}

		batch.QtyReceived += req.AdditionalQty
		batch.QtyRemaining += req.AdditionalQty
		if err := tx.UpdateBatch(ctx, *batch); err != nil {
			return err
		}

		product.Stock += req.AdditionalQty
		if product.LatestBatchID == batch.ID {
			product.SalePriceCents = batch.SalePriceCents
		}
		product.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, *product); err != nil {
			return err
		}

		result = domain.StockIntakeResult{Batch: *batch, Product: *product}
		if req.AdditionalQty == 0 {
			return nil
		}

		expense := s.newFlow(method, domain.FlowTypeExpense, total, date, now)
		expense.Description = fmt.Sprintf("restock: %s x%d", batch.ProductName, req.AdditionalQty)
		expense.Details = &domain.FlowDetails{
			Kind:          domain.FlowKindRestock,
			BatchID:       batch.ID,
			ProductID:     product.ID,
			ProductName:   product.Name,
			Qty:           req.AdditionalQty,
			UnitCostCents: batch.UnitCostCents,
		}
		if err := tx.InsertFlow(ctx, expense); err != nil {
			return err
		}
		if _, err := s.recomputeMonthTx(ctx, tx, domain.MonthOf(date)); err != nil {
			return err
		}
		result.Expense = &expense
		return nil
	})
	if err != nil {
		return domain.StockIntakeResult{}, err
	}

	log.Printf("[service] restock batch=%s qty=+%d by=%s", batchID, req.AdditionalQty, actorName(ctx))
	return result, nil
}

// DeleteBatch removes a batch and takes its unsold units out of the product
// aggregate. With refund set, the unsold units' cost is booked back as cash
// income dated today.
func (s *Service) DeleteBatch(ctx context.Context, batchID string, refund bool) error {
	now := s.now()
	today := s.today()

	err := s.atomic(ctx, "delete batch", store.ReadWrite, func(tx store.Tx) error {
		batch, err := s.loadBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		product, err := s.loadProduct(ctx, tx, batch.ProductID)
		if err != nil {
			return err
		}
		if product.Stock < batch.QtyRemaining {
			return &InconsistencyError{
				ProductID: product.ID,
				BatchID:   batch.ID,
				Reason:    fmt.Sprintf("product stock %d is below batch remaining %d", product.Stock, batch.QtyRemaining),
			}
		}

		if err := tx.DeleteBatch(ctx, batch.ID); err != nil {
			return err
		}

		product.Stock -= batch.QtyRemaining
		if product.LatestBatchID == batch.ID {
			siblings, err := tx.ListBatchesByProduct(ctx, product.ID)
			if err != nil {
				return err
			}
			product.LatestBatchID = ""
			if len(siblings) > 0 {
				product.LatestBatchID = siblings[len(siblings)-1].ID
			}
		}
		product.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, *product); err != nil {
			return err
		}

		if !refund || batch.QtyRemaining == 0 {
			return nil
		}
		income := s.newFlow(domain.PaymentMethodCash, domain.FlowTypeIncome, batch.UnitCostCents*int64(batch.QtyRemaining), today, now)
		income.Description = fmt.Sprintf("stock returned: %s x%d", batch.ProductName, batch.QtyRemaining)
		income.Details = &domain.FlowDetails{
			Kind:          domain.FlowKindStockReturned,
			BatchID:       batch.ID,
			ProductID:     product.ID,
			ProductName:   product.Name,
			Qty:           batch.QtyRemaining,
			UnitCostCents: batch.UnitCostCents,
		}
		if err := tx.InsertFlow(ctx, income); err != nil {
			return err
		}
		_, err = s.recomputeMonthTx(ctx, tx, domain.MonthOf(today))
		return err
	})
	if err != nil {
		return err
	}

	log.Printf("[service] delete batch=%s refund=%t by=%s", batchID, refund, actorName(ctx))
	return nil
}

// UpdateProductPricing changes price, margin and optionally the product name
// of a batch. Quantities and cost are left alone. A rename applies to the
// product and every batch of it so the (name, category) key stays whole.
func (s *Service) UpdateProductPricing(ctx context.Context, batchID string, req domain.PricingUpdateRequest) (domain.StockBatch, error) {
	if req.SalePriceCents <= 0 {
		return domain.StockBatch{}, invalid("sale_price_cents", "must be greater than zero")
	}
	var newName string
	if req.ProductName != nil {
		newName = strings.TrimSpace(*req.ProductName)
		if newName == "" {
			return domain.StockBatch{}, invalid("product_name", "must not be empty")
		}
	}

	now := s.now()
	var updated domain.StockBatch
	err := s.atomic(ctx, "update pricing", store.ReadWrite, func(tx store.Tx) error {
		batch, err := s.loadBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		product, err := s.loadProduct(ctx, tx, batch.ProductID)
		if err != nil {
			return err
		}

		batch.SalePriceCents = req.SalePriceCents
		batch.MarginPercent = marginPercent(batch.UnitCostCents, req.SalePriceCents)
		if req.MarginPercent != nil {
			batch.MarginPercent = req.MarginPercent.Round(2)
		}

		if newName != "" && newName != product.Name {
			clash, err := tx.FindProduct(ctx, newName, product.Category)
			if err == nil && clash.ID != product.ID {
				return invalid("product_name", "%s already exists in %s", newName, product.Category)
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}

			siblings, err := tx.ListBatchesByProduct(ctx, product.ID)
			if err != nil {
				return err
			}
			for _, sibling := range siblings {
				if sibling.ID == batch.ID {
					continue
				}
				sibling.ProductName = newName
				if err := tx.UpdateBatch(ctx, sibling); err != nil {
					return err
				}
			}
			product.Name = newName
			batch.ProductName = newName
		}

		if err := tx.UpdateBatch(ctx, *batch); err != nil {
			return err
		}
		if product.LatestBatchID == batch.ID {
			product.SalePriceCents = batch.SalePriceCents
		}
		product.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, *product); err != nil {
			return err
		}

		updated = *batch
		return nil
	})
	if err != nil {
		return domain.StockBatch{}, err
	}

	log.Printf("[service] pricing batch=%s price=%d margin=%s by=%s", batchID, updated.SalePriceCents, updated.MarginPercent, actorName(ctx))
	return updated, nil
}

// ConsumeStockForSale takes units out FIFO without booking any ledger line,
// for spoilage or internal use.
func (s *Service) ConsumeStockForSale(ctx context.Context, productID string, qty int) ([]domain.BatchAllocation, error) {
	if qty <= 0 {
		return nil, invalid("qty", "must be greater than zero")
	}

	var allocations []domain.BatchAllocation
	err := s.atomic(ctx, "consume stock", store.ReadWrite, func(tx store.Tx) error {
		product, err := s.loadProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		allocations, err = s.consumeFIFO(ctx, tx, product, qty)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[service] consume product=%s qty=%d by=%s", productID, qty, actorName(ctx))
	return allocations, nil
}

// consumeFIFO drains the product's batches oldest intake first. Nothing is
// written unless the batches can cover qty. product is updated in place.
func (s *Service) consumeFIFO(ctx context.Context, tx store.Tx, product *domain.Product, qty int) ([]domain.BatchAllocation, error) {
	batches, err := tx.ListBatchesByProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	available := 0
	for _, batch := range batches {
		available += batch.QtyRemaining
	}
	if available < qty || product.Stock < qty {
		return nil, &InsufficientStockError{
			ProductID: product.ID,
			Product:   product.Name,
			Available: min(available, product.Stock),
			Requested: qty,
		}
	}

	allocations := make([]domain.BatchAllocation, 0, 2)
	left := qty
	for _, batch := range batches {
		if left == 0 {
			break
		}
		if batch.QtyRemaining == 0 {
			continue
		}
		take := min(batch.QtyRemaining, left)
		batch.QtyRemaining -= take
		left -= take
		if err := tx.UpdateBatch(ctx, batch); err != nil {
			return nil, err
		}
		allocations = append(allocations, domain.BatchAllocation{
			BatchID:       batch.ID,
			Qty:           take,
			UnitCostCents: batch.UnitCostCents,
		})
	}

	product.Stock -= qty
	product.UpdatedAt = s.now()
	if err := tx.UpdateProduct(ctx, *product); err != nil {
		return nil, err
	}
	return allocations, nil
}

// VerifyStockConsistency lists every product whose aggregate stock differs
// from the sum of its batches' remaining units.
func (s *Service) VerifyStockConsistency(ctx context.Context) ([]domain.StockMismatch, error) {
	mismatches := make([]domain.StockMismatch, 0)
	err := s.atomic(ctx, "verify stock", store.ReadOnly, func(tx store.Tx) error {
		products, err := tx.ListProducts(ctx)
		if err != nil {
			return err
		}
		batches, err := tx.ListBatches(ctx)
		if err != nil {
			return err
		}

		remaining := make(map[string]int, len(products))
		for _, batch := range batches {
			remaining[batch.ProductID] += batch.QtyRemaining
		}
		for _, product := range products {
			if product.Stock != remaining[product.ID] {
				mismatches = append(mismatches, domain.StockMismatch{
					ProductID:      product.ID,
					ProductName:    product.Name,
					Category:       product.Category,
					ProductStock:   product.Stock,
					BatchRemaining: remaining[product.ID],
				})
			}
		}
		return nil
	})
	return mismatches, err
}

func (s *Service) loadBatch(ctx context.Context, tx store.Tx, id string) (*domain.StockBatch, error) {
	batch, err := tx.GetBatch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Kind: "batch", ID: id}
	}
	return batch, err
}

func (s *Service) loadProduct(ctx context.Context, tx store.Tx, id string) (*domain.Product, error) {
	product, err := tx.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Kind: "product", ID: id}
	}
	return product, err
}
