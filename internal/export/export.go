// Package export renders ledger reports as xlsx workbooks.
package export

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"kasirkoperasi/backend/internal/domain"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetSummary = "Summary"
	sheetDaily   = "Daily"
	sheetEntries = "Entries"
	sheetStock   = "Stock"
)

// money turns cents into a currency value so spreadsheets can total it.
func money(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

// sheetWriter keeps the first error so a report can be written row by row.
type sheetWriter struct {
	f           *excelize.File
	sheet       string
	headerStyle int
	err         error
}

func (w *sheetWriter) row(r int, values ...any) {
	for i, v := range values {
		if w.err != nil {
			return
		}
		cell, err := excelize.CoordinatesToCellName(i+1, r)
		if err != nil {
			w.err = err
			return
		}
		w.err = w.f.SetCellValue(w.sheet, cell, v)
	}
}

func (w *sheetWriter) header(headers ...string) {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	w.row(1, values...)
	if w.err != nil {
		return
	}

	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		w.err = err
		return
	}
	if w.err = w.f.SetCellStyle(w.sheet, "A1", last, w.headerStyle); w.err != nil {
		return
	}
	if w.err = w.f.AutoFilter(w.sheet, "A1:"+last, []excelize.AutoFilterOptions{}); w.err != nil {
		return
	}
	w.err = w.f.SetPanes(w.sheet, &excelize.Panes{Freeze: true, Split: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func newWorkbook(first string, others ...string) (*excelize.File, int, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", first); err != nil {
		return nil, 0, err
	}
	for _, name := range others {
		if _, err := f.NewSheet(name); err != nil {
			return nil, 0, err
		}
	}
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, 0, err
	}
	return f, style, nil
}

// CashFlowWorkbook writes a summary as three sheets: the per-method totals,
// the daily series of both ledgers side by side, and every entry.
func CashFlowWorkbook(summary domain.CashFlowSummary) (*bytes.Buffer, error) {
	f, style, err := newWorkbook(sheetSummary, sheetDaily, sheetEntries)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	totals := &sheetWriter{f: f, sheet: sheetSummary, headerStyle: style}
	totals.header("Method", "Opening", "Income", "Expense", "Closing")
	for i, m := range []struct {
		name   string
		totals domain.MethodTotals
	}{
		{domain.PaymentMethodCash, summary.Cash},
		{domain.PaymentMethodTransfer, summary.Transfer},
	} {
		totals.row(i+2, m.name, money(m.totals.OpeningCents), money(m.totals.IncomeCents),
			money(m.totals.ExpenseCents), money(m.totals.ClosingCents))
	}
	totals.row(5, "Period", fmt.Sprintf("%s to %s", summary.StartDate, summary.EndDate))
	if totals.err != nil {
		return nil, totals.err
	}

	daily := &sheetWriter{f: f, sheet: sheetDaily, headerStyle: style}
	daily.header("Date", "Cash Income", "Cash Expense", "Cash Balance",
		"Transfer Income", "Transfer Expense", "Transfer Balance")
	for i, day := range summary.CashDays {
		row := []any{day.Date, money(day.IncomeCents), money(day.ExpenseCents), money(day.BalanceCents)}
		if i < len(summary.TransDays) {
			t := summary.TransDays[i]
			row = append(row, money(t.IncomeCents), money(t.ExpenseCents), money(t.BalanceCents))
		}
		daily.row(i+2, row...)
	}
	if daily.err != nil {
		return nil, daily.err
	}

	entries := &sheetWriter{f: f, sheet: sheetEntries, headerStyle: style}
	entries.header("ID", "Date", "Method", "Type", "Amount", "Description", "Transaction", "Sale Total", "Items")
	for i, e := range summary.Entries {
		var saleTotal any
		if e.SaleTotalCents != nil {
			saleTotal = money(*e.SaleTotalCents)
		}
		entries.row(i+2, e.ID, e.Date, e.PaymentMethod, e.Type, money(e.AmountCents),
			e.Description, e.TransactionID, saleTotal, e.SaleItemCount)
	}
	if entries.err != nil {
		return nil, entries.err
	}
	if err := f.SetColWidth(sheetEntries, "F", "F", 40); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	return f.WriteToBuffer()
}

// StockWorkbook lists every batch with its remaining units and their value
// at cost.
func StockWorkbook(batches []domain.StockBatch) (*bytes.Buffer, error) {
	f, style, err := newWorkbook(sheetStock)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	w := &sheetWriter{f: f, sheet: sheetStock, headerStyle: style}
	w.header("Batch", "Product", "Category", "Barcode", "Received On", "Qty Received",
		"Qty Remaining", "Unit Cost", "Sale Price", "Margin %", "Remaining Value")

	var remainingValue int64
	for i, b := range batches {
		value := b.UnitCostCents * int64(b.QtyRemaining)
		remainingValue += value
		w.row(i+2, b.ID, b.ProductName, b.Category, b.Barcode, b.ReceivedOn, b.QtyReceived,
			b.QtyRemaining, money(b.UnitCostCents), money(b.SalePriceCents),
			b.MarginPercent.InexactFloat64(), money(value))
	}
	totalRow := len(batches) + 3
	w.row(totalRow, "TOTAL", "", "", "", "", "", "", "", "", "", money(remainingValue))
	if w.err != nil {
		return nil, w.err
	}
	if err := f.SetColWidth(sheetStock, "B", "B", 32); err != nil {
		return nil, err
	}

	return f.WriteToBuffer()
}
