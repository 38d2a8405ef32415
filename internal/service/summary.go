package service

import (
	"context"
	"errors"
	"log"
	"slices"
	"time"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
)

const maxSummaryDays = 366

// CashFlowSummary reports both ledgers over [startDate, endDate]: opening and
// closing balances, a per-day series covering every day in range, and every
// entry newest first with linked sales attached. It does not write unless
// CloseMonthOnSummary is set and the range is exactly one calendar month.
func (s *Service) CashFlowSummary(ctx context.Context, startDate string, endDate string) (domain.CashFlowSummary, error) {
	start, err := domain.ParseDate(startDate)
	if err != nil {
		return domain.CashFlowSummary{}, invalid("start_date", "%v", err)
	}
	end, err := domain.ParseDate(endDate)
	if err != nil {
		return domain.CashFlowSummary{}, invalid("end_date", "%v", err)
	}
	if end.Before(start) {
		return domain.CashFlowSummary{}, invalid("end_date", "must not be before start_date")
	}
	if end.Sub(start) > maxSummaryDays*24*time.Hour {
		return domain.CashFlowSummary{}, invalid("end_date", "range is limited to %d days", maxSummaryDays)
	}
	startDate, endDate = domain.FormatDate(start), domain.FormatDate(end)

	key := "cashflow:" + startDate + ":" + endDate
	if cached, ok, err := s.summaries.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: summary cache get failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	if s.opts.CloseMonthOnSummary && isFullMonth(startDate, endDate) {
		if _, err := s.RecomputeMonth(ctx, domain.MonthOf(startDate)); err != nil {
			return domain.CashFlowSummary{}, err
		}
	}

	// The version is read before the build so a write committed in between
	// keeps this result out of the cache.
	version, versionErr := s.summaries.Version(ctx)
	if versionErr != nil {
		log.Printf("[service] WARN: summary cache version failed: %v", versionErr)
	}

	var summary domain.CashFlowSummary
	err = s.atomic(ctx, "cash flow summary", store.ReadOnly, func(tx store.Tx) error {
		var err error
		summary, err = buildSummary(ctx, tx, start, end)
		return err
	})
	if err != nil {
		return domain.CashFlowSummary{}, err
	}

	if versionErr == nil {
		if err := s.summaries.Set(ctx, version, key, &summary, s.opts.SummaryTTL); err != nil {
			log.Printf("[service] WARN: summary cache set failed: %v", err)
		}
	}
	return summary, nil
}

func isFullMonth(startDate string, endDate string) bool {
	monthStart, monthEnd, err := domain.MonthBounds(domain.MonthOf(startDate))
	return err == nil && startDate == monthStart && endDate == monthEnd
}

func buildSummary(ctx context.Context, tx store.Tx, start time.Time, end time.Time) (domain.CashFlowSummary, error) {
	startDate, endDate := domain.FormatDate(start), domain.FormatDate(end)
	month := domain.MonthOf(startDate)
	monthStart, monthEnd, err := domain.MonthBounds(month)
	if err != nil {
		return domain.CashFlowSummary{}, err
	}

	summary := domain.CashFlowSummary{
		StartDate: startDate,
		EndDate:   endDate,
		Month:     month,
		FullMonth: startDate == monthStart && endDate == monthEnd,
	}

	openCash, openTransfer, err := openingBalance(ctx, tx, month)
	if err != nil {
		return domain.CashFlowSummary{}, err
	}
	if startDate > monthStart {
		before, err := dayBefore(startDate)
		if err != nil {
			return domain.CashFlowSummary{}, err
		}
		cashNet, err := netInRange(ctx, tx, domain.PaymentMethodCash, monthStart, before)
		if err != nil {
			return domain.CashFlowSummary{}, err
		}
		transferNet, err := netInRange(ctx, tx, domain.PaymentMethodTransfer, monthStart, before)
		if err != nil {
			return domain.CashFlowSummary{}, err
		}
		openCash += cashNet
		openTransfer += transferNet
	}

	cashEntries, err := tx.ListFlowsInRange(ctx, domain.PaymentMethodCash, startDate, endDate)
	if err != nil {
		return domain.CashFlowSummary{}, err
	}
	transferEntries, err := tx.ListFlowsInRange(ctx, domain.PaymentMethodTransfer, startDate, endDate)
	if err != nil {
		return domain.CashFlowSummary{}, err
	}

	summary.Cash, summary.CashDays = dailySeries(start, end, openCash, cashEntries)
	summary.Transfer, summary.TransDays = dailySeries(start, end, openTransfer, transferEntries)

	sales, err := tx.ListSales(ctx, startDate, endDate)
	if err != nil {
		return domain.CashFlowSummary{}, err
	}
	salesByID := make(map[string]domain.Sale, len(sales))
	for _, sale := range sales {
		salesByID[sale.ID] = sale
	}

	entries := make([]domain.SummaryEntry, 0, len(cashEntries)+len(transferEntries))
	for _, entry := range slices.Concat(cashEntries, transferEntries) {
		item := domain.SummaryEntry{FlowEntry: entry}
		if entry.TransactionID != "" && entry.Type == domain.FlowTypeIncome {
			sale, ok := salesByID[entry.TransactionID]
			if !ok {
				found, err := tx.GetSale(ctx, entry.TransactionID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return domain.CashFlowSummary{}, err
				}
				if found != nil {
					sale, ok = *found, true
					salesByID[sale.ID] = sale
				}
			}
			if ok {
				total := sale.SubtotalCents
				item.SaleTotalCents = &total
				for _, line := range sale.Lines {
					item.SaleItemCount += line.Qty
				}
			}
		}
		entries = append(entries, item)
	}
	slices.SortStableFunc(entries, func(a, b domain.SummaryEntry) int {
		return newestFirst(a.FlowEntry, b.FlowEntry)
	})
	summary.Entries = entries
	return summary, nil
}

// dailySeries emits one row per calendar day with the running balance
// carried across days that have no entries.
func dailySeries(start time.Time, end time.Time, opening int64, entries []domain.FlowEntry) (domain.MethodTotals, []domain.DailyFlow) {
	byDate := make(map[string][]domain.FlowEntry)
	for _, entry := range entries {
		byDate[entry.Date] = append(byDate[entry.Date], entry)
	}

	totals := domain.MethodTotals{OpeningCents: opening}
	running := opening
	days := make([]domain.DailyFlow, 0, int(end.Sub(start).Hours()/24)+1)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := domain.FormatDate(day)
		row := domain.DailyFlow{Date: date}
		for _, entry := range byDate[date] {
			if entry.Type == domain.FlowTypeExpense {
				row.ExpenseCents += entry.AmountCents
			} else {
				row.IncomeCents += entry.AmountCents
			}
		}
		running += row.IncomeCents - row.ExpenseCents
		row.BalanceCents = running
		totals.IncomeCents += row.IncomeCents
		totals.ExpenseCents += row.ExpenseCents
		days = append(days, row)
	}
	totals.ClosingCents = running
	return totals, days
}
