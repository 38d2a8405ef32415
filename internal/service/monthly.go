package service

import (
	"context"
	"errors"
	"log"
	"time"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
)

// RecomputeMonth rebuilds the stored closing balance for month from the flow
// tables, then carries the change into every later stored month.
func (s *Service) RecomputeMonth(ctx context.Context, month string) (domain.MonthlyBalance, error) {
	if _, err := domain.ParseMonth(month); err != nil {
		return domain.MonthlyBalance{}, invalid("month", "%v", err)
	}

	var row domain.MonthlyBalance
	err := s.atomic(ctx, "recompute month", store.ReadWrite, func(tx store.Tx) error {
		var err error
		row, err = s.recomputeMonthTx(ctx, tx, month)
		return err
	})
	if err != nil {
		return domain.MonthlyBalance{}, err
	}
	return row, nil
}

// CloseMonth persists the closing balance of a month that has fully elapsed.
func (s *Service) CloseMonth(ctx context.Context, month string) (domain.MonthlyBalance, error) {
	_, last, err := domain.MonthBounds(month)
	if err != nil {
		return domain.MonthlyBalance{}, invalid("month", "%v", err)
	}
	if last >= s.today() {
		return domain.MonthlyBalance{}, invalid("month", "%s has not ended yet", month)
	}

	row, err := s.RecomputeMonth(ctx, month)
	if err != nil {
		return domain.MonthlyBalance{}, err
	}
	log.Printf("[service] closed month=%s cash=%d transfer=%d by=%s", month, row.CashCents, row.TransferCents, actorName(ctx))
	return row, nil
}

func (s *Service) recomputeMonthTx(ctx context.Context, tx store.Tx, month string) (domain.MonthlyBalance, error) {
	row, err := s.putMonth(ctx, tx, month)
	if err != nil {
		return domain.MonthlyBalance{}, err
	}

	stored, err := tx.ListMonthlyBalances(ctx)
	if err != nil {
		return domain.MonthlyBalance{}, err
	}
	for _, later := range stored {
		if later.Month <= month {
			continue
		}
		if _, err := s.putMonth(ctx, tx, later.Month); err != nil {
			return domain.MonthlyBalance{}, err
		}
	}
	return row, nil
}

// putMonth writes the computed row only when it differs from the stored
// one, so repeating a recompute leaves the row untouched.
func (s *Service) putMonth(ctx context.Context, tx store.Tx, month string) (domain.MonthlyBalance, error) {
	cash, transfer, err := closingBalance(ctx, tx, month)
	if err != nil {
		return domain.MonthlyBalance{}, err
	}

	existing, err := tx.GetMonthlyBalance(ctx, month)
	switch {
	case err == nil:
		if existing.CashCents == cash && existing.TransferCents == transfer {
			return *existing, nil
		}
	case !errors.Is(err, store.ErrNotFound):
		return domain.MonthlyBalance{}, err
	}

	row := domain.MonthlyBalance{
		Month:         month,
		CashCents:     cash,
		TransferCents: transfer,
		UpdatedAt:     s.now(),
	}
	if err := tx.PutMonthlyBalance(ctx, row); err != nil {
		return domain.MonthlyBalance{}, err
	}
	return row, nil
}

// closingBalance is the opening balance plus the month's net flow, per
// payment method.
func closingBalance(ctx context.Context, r store.Reader, month string) (int64, int64, error) {
	cash, transfer, err := openingBalance(ctx, r, month)
	if err != nil {
		return 0, 0, err
	}
	first, last, err := domain.MonthBounds(month)
	if err != nil {
		return 0, 0, err
	}

	cashNet, err := netInRange(ctx, r, domain.PaymentMethodCash, first, last)
	if err != nil {
		return 0, 0, err
	}
	transferNet, err := netInRange(ctx, r, domain.PaymentMethodTransfer, first, last)
	if err != nil {
		return 0, 0, err
	}
	return cash + cashNet, transfer + transferNet, nil
}

// openingBalance takes the previous month's stored row. Without one it sums
// every entry dated before the month, which is zero on an empty ledger.
func openingBalance(ctx context.Context, r store.Reader, month string) (int64, int64, error) {
	prev, err := domain.PrevMonth(month)
	if err != nil {
		return 0, 0, err
	}
	row, err := r.GetMonthlyBalance(ctx, prev)
	if err == nil {
		return row.CashCents, row.TransferCents, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, 0, err
	}

	first, _, err := domain.MonthBounds(month)
	if err != nil {
		return 0, 0, err
	}
	before, err := dayBefore(first)
	if err != nil {
		return 0, 0, err
	}
	cash, err := netInRange(ctx, r, domain.PaymentMethodCash, "", before)
	if err != nil {
		return 0, 0, err
	}
	transfer, err := netInRange(ctx, r, domain.PaymentMethodTransfer, "", before)
	if err != nil {
		return 0, 0, err
	}
	return cash, transfer, nil
}

func netInRange(ctx context.Context, r store.Reader, method string, fromDate string, toDate string) (int64, error) {
	entries, err := r.ListFlowsInRange(ctx, method, fromDate, toDate)
	if err != nil {
		return 0, err
	}
	return sumFlows(entries), nil
}

func dayBefore(date string) (string, error) {
	t, err := domain.ParseDate(date)
	if err != nil {
		return "", err
	}
	return domain.FormatDate(t.Add(-24 * time.Hour)), nil
}
