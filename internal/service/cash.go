package service

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"time"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
	"kasirkoperasi/backend/internal/xid"
)

func (s *Service) newFlow(method string, flowType string, amount int64, date string, at time.Time) domain.FlowEntry {
	prefix := "cf"
	if method == domain.PaymentMethodTransfer {
		prefix = "tf"
	}
	return domain.FlowEntry{
		ID:            xid.New(prefix),
		Type:          flowType,
		AmountCents:   amount,
		Date:          date,
		PaymentMethod: method,
		Timestamp:     at,
	}
}

func sumFlows(entries []domain.FlowEntry) int64 {
	var total int64
	for _, entry := range entries {
		total += entry.Signed()
	}
	return total
}

func balanceOf(ctx context.Context, r store.Reader, method string) (int64, error) {
	entries, err := r.ListFlows(ctx, method)
	if err != nil {
		return 0, err
	}
	return sumFlows(entries), nil
}

// CashBalance is all-time cash income minus expense.
func (s *Service) CashBalance(ctx context.Context) (int64, error) {
	return balanceOf(ctx, s.repo, domain.PaymentMethodCash)
}

func (s *Service) TransferBalance(ctx context.Context) (int64, error) {
	return balanceOf(ctx, s.repo, domain.PaymentMethodTransfer)
}

// CheckCashAvailability reports whether the cash drawer covers amount. It is
// a gate for cash-funded purchases; the ledger itself accepts negative
// balances so corrective entries are never blocked.
func (s *Service) CheckCashAvailability(ctx context.Context, amount int64) (bool, error) {
	if amount <= 0 {
		return false, invalid("amount", "must be greater than zero")
	}
	balance, err := s.CashBalance(ctx)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

func (s *Service) requireCash(ctx context.Context, tx store.Tx, amount int64) error {
	balance, err := balanceOf(ctx, tx, domain.PaymentMethodCash)
	if err != nil {
		return err
	}
	if balance < amount {
		return &InsufficientFundsError{AvailableCents: balance, RequestedCents: amount}
	}
	return nil
}

// AddCashFlow is the write path for manual ledger lines such as initial
// capital or ad-hoc expenses.
func (s *Service) AddCashFlow(ctx context.Context, req domain.FlowEntryRequest) (domain.FlowEntry, error) {
	flowType := strings.ToLower(strings.TrimSpace(req.Type))
	if flowType != domain.FlowTypeIncome && flowType != domain.FlowTypeExpense {
		return domain.FlowEntry{}, invalid("type", "must be %q or %q", domain.FlowTypeIncome, domain.FlowTypeExpense)
	}
	if req.AmountCents <= 0 {
		return domain.FlowEntry{}, invalid("amount_cents", "must be greater than zero")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.FlowEntry{}, invalid("description", "required")
	}
	method, err := normalizeMethod(req.PaymentMethod)
	if err != nil {
		return domain.FlowEntry{}, err
	}
	date, err := s.resolveDate("date", req.Date)
	if err != nil {
		return domain.FlowEntry{}, err
	}

	entry := s.newFlow(method, flowType, req.AmountCents, date, s.now())
	entry.Description = description
	entry.TransactionID = strings.TrimSpace(req.TransactionID)
	entry.Details = req.Details
	if entry.Details == nil {
		entry.Details = &domain.FlowDetails{Kind: domain.FlowKindManual}
	}

	err = s.atomic(ctx, "add cash flow", store.ReadWrite, func(tx store.Tx) error {
		if err := tx.InsertFlow(ctx, entry); err != nil {
			return err
		}
		_, err := s.recomputeMonthTx(ctx, tx, domain.MonthOf(date))
		return err
	})
	if err != nil {
		return domain.FlowEntry{}, err
	}

	log.Printf("[service] flow %s %s %d on %s by=%s", entry.PaymentMethod, entry.Type, entry.AmountCents, entry.Date, actorName(ctx))
	return entry, nil
}

// ListFlows returns one ledger, or both when method is empty, newest first.
func (s *Service) ListFlows(ctx context.Context, method string) ([]domain.FlowEntry, error) {
	methods := []string{domain.PaymentMethodCash, domain.PaymentMethodTransfer}
	if method != "" {
		normalized, err := normalizeMethod(method)
		if err != nil {
			return nil, err
		}
		methods = []string{normalized}
	}

	all := make([]domain.FlowEntry, 0, 64)
	for _, m := range methods {
		entries, err := s.repo.ListFlows(ctx, m)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	slices.SortStableFunc(all, newestFirst)
	return all, nil
}

func newestFirst(a, b domain.FlowEntry) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(b.ID, a.ID)
}

// LastMonthBalance returns the stored closing balance of the month before
// (year, month), or a zero row when none was recorded.
func (s *Service) LastMonthBalance(ctx context.Context, year int, month time.Month) (domain.MonthlyBalance, error) {
	if month < time.January || month > time.December {
		return domain.MonthlyBalance{}, invalid("month", "must be between 1 and 12")
	}
	prev, err := domain.PrevMonth(domain.MonthKey(year, month))
	if err != nil {
		return domain.MonthlyBalance{}, invalid("month", "%v", err)
	}

	balance, err := s.repo.GetMonthlyBalance(ctx, prev)
	if errors.Is(err, store.ErrNotFound) {
		return domain.MonthlyBalance{Month: prev}, nil
	}
	if err != nil {
		return domain.MonthlyBalance{}, err
	}
	return *balance, nil
}
