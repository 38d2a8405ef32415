package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodTransfer = "transfer"
)

const (
	FlowTypeIncome  = "income"
	FlowTypeExpense = "expense"
)

const (
	SaleStatusCompleted = "completed"
)

// Flow detail kinds attached to ledger lines created by the engine.
const (
	FlowKindStockReceived = "stock_received"
	FlowKindRestock       = "restock"
	FlowKindStockReturned = "stock_returned"
	FlowKindSale          = "sale"
	FlowKindChange        = "change"
	FlowKindManual        = "manual"
)

type StockBatch struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Category       string          `json:"category"`
	QtyReceived    int             `json:"qty_received"`
	QtyRemaining   int             `json:"qty_remaining"`
	UnitCostCents  int64           `json:"unit_cost_cents"`
	SalePriceCents int64           `json:"sale_price_cents"`
	MarginPercent  decimal.Decimal `json:"margin_percent"`
	Barcode        string          `json:"barcode"`
	ReceivedOn     string          `json:"received_on"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Product is the per (name, category) aggregate over stock batches.
type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	SalePriceCents int64     `json:"sale_price_cents"`
	Stock          int       `json:"stock"`
	LatestBatchID  string    `json:"latest_batch_id"`
	Barcode        string    `json:"barcode"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type FlowDetails struct {
	Kind          string `json:"kind"`
	BatchID       string `json:"batch_id,omitempty"`
	ProductID     string `json:"product_id,omitempty"`
	ProductName   string `json:"product_name,omitempty"`
	Qty           int    `json:"qty,omitempty"`
	UnitCostCents int64  `json:"unit_cost_cents,omitempty"`
}

// FlowEntry is one line of the cash or transfer ledger. The payment method
// decides which table it lives in.
type FlowEntry struct {
	ID            string       `json:"id"`
	Type          string       `json:"type"`
	AmountCents   int64        `json:"amount_cents"`
	Description   string       `json:"description"`
	Date          string       `json:"date"`
	TransactionID string       `json:"transaction_id,omitempty"`
	PaymentMethod string       `json:"payment_method"`
	Timestamp     time.Time    `json:"timestamp"`
	Details       *FlowDetails `json:"details,omitempty"`
}

// Signed returns the amount as it moves the balance.
func (e FlowEntry) Signed() int64 {
	if e.Type == FlowTypeExpense {
		return -e.AmountCents
	}
	return e.AmountCents
}

type MonthlyBalance struct {
	Month         string    `json:"month"`
	CashCents     int64     `json:"cash_cents"`
	TransferCents int64     `json:"transfer_cents"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type BatchAllocation struct {
	BatchID       string `json:"batch_id"`
	Qty           int    `json:"qty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type SaleLine struct {
	SaleID         string            `json:"sale_id"`
	LineNo         int               `json:"line_no"`
	ProductID      string            `json:"product_id"`
	ProductName    string            `json:"product_name"`
	Qty            int               `json:"qty"`
	UnitPriceCents int64             `json:"unit_price_cents"`
	LineTotalCents int64             `json:"line_total_cents"`
	Allocations    []BatchAllocation `json:"allocations"`
}

// CostCents is the FIFO cost of goods sold for the line.
func (l SaleLine) CostCents() int64 {
	var total int64
	for _, a := range l.Allocations {
		total += int64(a.Qty) * a.UnitCostCents
	}
	return total
}

type Sale struct {
	ID                string     `json:"id"`
	Date              string     `json:"date"`
	SubtotalCents     int64      `json:"subtotal_cents"`
	PaymentMethod     string     `json:"payment_method"`
	Status            string     `json:"status"`
	CashReceivedCents int64      `json:"cash_received_cents"`
	ChangeCents       int64      `json:"change_cents"`
	CreatedBy         string     `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	Lines             []SaleLine `json:"lines"`
}

type StockIntakeRequest struct {
	ProductName        string           `json:"product_name"`
	Category           string           `json:"category"`
	Qty                int              `json:"qty"`
	UnitCostCents      int64            `json:"unit_cost_cents"`
	SalePriceCents     int64            `json:"sale_price_cents"`
	MarginPercent      *decimal.Decimal `json:"margin_percent,omitempty"`
	ReceivedOn         string           `json:"received_on"`
	Barcode            string           `json:"barcode"`
	PaymentMethod      string           `json:"payment_method"`
	OverrideFundsCheck bool             `json:"override_funds_check"`
	ManagerPIN         string           `json:"manager_pin,omitempty"`
}

type RestockRequest struct {
	AdditionalQty      int    `json:"additional_qty"`
	UnitCostCents      *int64 `json:"unit_cost_cents,omitempty"`
	SalePriceCents     *int64 `json:"sale_price_cents,omitempty"`
	Date               string `json:"date"`
	PaymentMethod      string `json:"payment_method"`
	OverrideFundsCheck bool   `json:"override_funds_check"`
	ManagerPIN         string `json:"manager_pin,omitempty"`
}

type PricingUpdateRequest struct {
	ProductName    *string          `json:"product_name,omitempty"`
	SalePriceCents int64            `json:"sale_price_cents"`
	MarginPercent  *decimal.Decimal `json:"margin_percent,omitempty"`
}

type StockIntakeResult struct {
	Batch   StockBatch `json:"batch"`
	Product Product    `json:"product"`
	Expense *FlowEntry `json:"expense,omitempty"`
}

type StockMismatch struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Category       string `json:"category"`
	ProductStock   int    `json:"product_stock"`
	BatchRemaining int    `json:"batch_remaining"`
}

type FlowEntryRequest struct {
	Type          string       `json:"type"`
	AmountCents   int64        `json:"amount_cents"`
	Description   string       `json:"description"`
	Date          string       `json:"date"`
	PaymentMethod string       `json:"payment_method"`
	TransactionID string       `json:"transaction_id,omitempty"`
	Details       *FlowDetails `json:"details,omitempty"`
}

type SaleLineRequest struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type SaleRequest struct {
	ID                string            `json:"id"`
	Date              string            `json:"date"`
	PaymentMethod     string            `json:"payment_method"`
	SubtotalCents     int64             `json:"subtotal_cents"`
	CashReceivedCents int64             `json:"cash_received_cents"`
	Lines             []SaleLineRequest `json:"lines"`
}

type DailyFlow struct {
	Date         string `json:"date"`
	IncomeCents  int64  `json:"income_cents"`
	ExpenseCents int64  `json:"expense_cents"`
	BalanceCents int64  `json:"balance_cents"`
}

type SummaryEntry struct {
	FlowEntry
	SaleTotalCents *int64 `json:"sale_total_cents,omitempty"`
	SaleItemCount  int    `json:"sale_item_count,omitempty"`
}

type MethodTotals struct {
	OpeningCents int64 `json:"opening_cents"`
	IncomeCents  int64 `json:"income_cents"`
	ExpenseCents int64 `json:"expense_cents"`
	ClosingCents int64 `json:"closing_cents"`
}

type CashFlowSummary struct {
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Month     string         `json:"month"`
	FullMonth bool           `json:"full_month"`
	Cash      MethodTotals   `json:"cash"`
	Transfer  MethodTotals   `json:"transfer"`
	CashDays  []DailyFlow    `json:"cash_days"`
	TransDays []DailyFlow    `json:"transfer_days"`
	Entries   []SummaryEntry `json:"entries"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
