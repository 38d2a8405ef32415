package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kasirkoperasi/backend/internal/cache"
	"kasirkoperasi/backend/internal/domain"
)

// seedTwoMonths leaves February with 100000 cash and March with a 20000 cash
// purchase on the 5th and a 50000 transfer income on the 10th.
func seedTwoMonths(t *testing.T, svc *Service) {
	t.Helper()
	addCapital(t, svc, 100_000, "2026-02-10")
	intake(t, svc, "Gula 1kg", 20, 1000, 1500, "2026-03-05")
	_, err := svc.AddCashFlow(context.Background(), domain.FlowEntryRequest{
		Type:          "income",
		AmountCents:   50_000,
		Description:   "setoran anggota",
		Date:          "2026-03-10",
		PaymentMethod: "transfer",
	})
	if err != nil {
		t.Fatalf("transfer income failed: %v", err)
	}
}

func TestCashFlowSummaryFullMonth(t *testing.T) {
	svc, _ := newTestService(t)
	seedTwoMonths(t, svc)

	summary, err := svc.CashFlowSummary(context.Background(), "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !summary.FullMonth || summary.Month != "2026-03" {
		t.Fatalf("expected full March, got month=%s full=%t", summary.Month, summary.FullMonth)
	}

	want := domain.MethodTotals{OpeningCents: 100_000, ExpenseCents: 20_000, ClosingCents: 80_000}
	if summary.Cash != want {
		t.Fatalf("unexpected cash totals %+v", summary.Cash)
	}
	wantTransfer := domain.MethodTotals{IncomeCents: 50_000, ClosingCents: 50_000}
	if summary.Transfer != wantTransfer {
		t.Fatalf("unexpected transfer totals %+v", summary.Transfer)
	}

	if len(summary.CashDays) != 31 || len(summary.TransDays) != 31 {
		t.Fatalf("expected 31 days per ledger, got %d and %d", len(summary.CashDays), len(summary.TransDays))
	}
	if day := summary.CashDays[3]; day.Date != "2026-03-04" || day.BalanceCents != 100_000 {
		t.Fatalf("expected carried balance before purchase, got %+v", day)
	}
	if day := summary.CashDays[4]; day.ExpenseCents != 20_000 || day.BalanceCents != 80_000 {
		t.Fatalf("expected purchase on the 5th, got %+v", day)
	}
	if last := summary.CashDays[30]; last.Date != "2026-03-31" || last.BalanceCents != 80_000 {
		t.Fatalf("expected closing carried to month end, got %+v", last)
	}

	if len(summary.Entries) != 2 || summary.Entries[0].PaymentMethod != domain.PaymentMethodTransfer {
		t.Fatalf("expected two entries newest first, got %+v", summary.Entries)
	}
}

func TestCashFlowSummaryMidMonthOpening(t *testing.T) {
	svc, _ := newTestService(t)
	seedTwoMonths(t, svc)

	summary, err := svc.CashFlowSummary(context.Background(), "2026-03-06", "2026-03-31")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.FullMonth {
		t.Fatalf("expected partial range")
	}
	if summary.Cash.OpeningCents != 80_000 || summary.Cash.ExpenseCents != 0 {
		t.Fatalf("expected opening to include days before start, got %+v", summary.Cash)
	}
	if len(summary.Entries) != 1 {
		t.Fatalf("expected only the transfer entry in range, got %d", len(summary.Entries))
	}
}

func TestCashFlowSummaryDoesNotWriteByDefault(t *testing.T) {
	svc, repo := newTestService(t)
	seedTwoMonths(t, svc)

	summary, err := svc.CashFlowSummary(context.Background(), "2026-04-01", "2026-04-30")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.Cash.OpeningCents != 80_000 || summary.Transfer.OpeningCents != 50_000 {
		t.Fatalf("expected April to open with March closing, got %+v %+v", summary.Cash, summary.Transfer)
	}
	if _, err := repo.GetMonthlyBalance(context.Background(), "2026-04"); err == nil {
		t.Fatalf("expected summary to leave April unstored")
	}
}

func TestCashFlowSummaryClosesMonthWhenConfigured(t *testing.T) {
	svc, repo := newTestService(t, func(o *Options) { o.CloseMonthOnSummary = true })
	seedTwoMonths(t, svc)

	if _, err := svc.CashFlowSummary(context.Background(), "2026-04-01", "2026-04-30"); err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	row, err := repo.GetMonthlyBalance(context.Background(), "2026-04")
	if err != nil {
		t.Fatalf("expected April row: %v", err)
	}
	if row.CashCents != 80_000 || row.TransferCents != 50_000 {
		t.Fatalf("unexpected April row %+v", row)
	}
}

func TestCashFlowSummaryValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := [][2]string{
		{"2026-03-10", "2026-03-01"},
		{"2026-03-01", "2027-03-10"},
		{"", "2026-03-01"},
		{"2026-03-01", "31-03-2026"},
	}
	for _, c := range cases {
		if _, err := svc.CashFlowSummary(context.Background(), c[0], c[1]); !errors.Is(err, ErrValidation) {
			t.Fatalf("%v: expected validation error, got %v", c, err)
		}
	}
}

func TestCashFlowSummaryCacheInvalidatedByWrites(t *testing.T) {
	repoSvc, _ := newTestService(t)
	svc := New(repoSvc.repo, cache.NewMemorySummaryCache(), repoSvc.opts)
	ctx := context.Background()
	addCapital(t, svc, 100_000, "2026-03-01")

	first, err := svc.CashFlowSummary(ctx, "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	addCapital(t, svc, 25_000, "2026-03-02")
	second, err := svc.CashFlowSummary(ctx, "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if second.Cash.ClosingCents != first.Cash.ClosingCents+25_000 {
		t.Fatalf("expected fresh summary after write, got %d then %d", first.Cash.ClosingCents, second.Cash.ClosingCents)
	}
}

// writeBeforeSet commits a ledger write after a summary has been built and
// before it reaches the cache.
type writeBeforeSet struct {
	*cache.MemorySummaryCache
	write func()
}

func (c *writeBeforeSet) Set(ctx context.Context, version string, key string, value *domain.CashFlowSummary, ttl time.Duration) error {
	if write := c.write; write != nil {
		c.write = nil
		write()
	}
	return c.MemorySummaryCache.Set(ctx, version, key, value, ttl)
}

func TestCashFlowSummaryNotCachedAcrossConcurrentWrite(t *testing.T) {
	repoSvc, _ := newTestService(t)
	summaries := &writeBeforeSet{MemorySummaryCache: cache.NewMemorySummaryCache()}
	svc := New(repoSvc.repo, summaries, repoSvc.opts)
	ctx := context.Background()
	addCapital(t, svc, 1000, "2026-03-01")

	summaries.write = func() { addCapital(t, svc, 500, "2026-03-02") }
	first, err := svc.CashFlowSummary(ctx, "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if first.Cash.ClosingCents != 1000 {
		t.Fatalf("expected the first summary to be built before the write, got %d", first.Cash.ClosingCents)
	}

	second, err := svc.CashFlowSummary(ctx, "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if balance := cashBalance(t, svc); second.Cash.ClosingCents != balance || balance != 1500 {
		t.Fatalf("expected closing to match balance 1500, got closing=%d balance=%d", second.Cash.ClosingCents, balance)
	}
}

func TestCashFlowSummaryCachedWhenClosingMonth(t *testing.T) {
	repoSvc, repo := newTestService(t, func(o *Options) { o.CloseMonthOnSummary = true })
	summaries := cache.NewMemorySummaryCache()
	svc := New(repoSvc.repo, summaries, repoSvc.opts)
	addCapital(t, svc, 1000, "2026-03-01")

	if _, err := svc.CashFlowSummary(context.Background(), "2026-03-01", "2026-03-31"); err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if _, ok, _ := summaries.Get(context.Background(), "cashflow:2026-03-01:2026-03-31"); !ok {
		t.Fatalf("expected the closed month summary to be cached")
	}
	if _, err := repo.GetMonthlyBalance(context.Background(), "2026-03"); err != nil {
		t.Fatalf("expected March row: %v", err)
	}
}

func TestCashFlowSummaryEnrichesSaleIncome(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addCapital(t, svc, 100_000, "2026-03-01")
	stock := intake(t, svc, "Kopi Sachet", 20, 1500, 2000, "2026-03-02")

	_, err := svc.ProcessTransaction(ctx, domain.SaleRequest{
		ID:                "TRX-0100",
		Date:              "2026-03-03",
		CashReceivedCents: 20_000,
		Lines: []domain.SaleLineRequest{
			{ProductID: stock.Product.ID, Qty: 2, UnitPriceCents: 2000},
			{ProductID: stock.Product.ID, Qty: 3, UnitPriceCents: 2000},
		},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	summary, err := svc.CashFlowSummary(ctx, "2026-03-03", "2026-03-03")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	var enriched, plain int
	for _, entry := range summary.Entries {
		if entry.SaleTotalCents != nil {
			enriched++
			if *entry.SaleTotalCents != 10_000 || entry.SaleItemCount != 5 || entry.Type != domain.FlowTypeIncome {
				t.Fatalf("unexpected enrichment %+v", entry)
			}
		} else {
			plain++
		}
	}
	if enriched != 1 || plain != 1 {
		t.Fatalf("expected income enriched and change left plain, got %d/%d", enriched, plain)
	}
	if summary.Cash.IncomeCents != 20_000 || summary.Cash.ExpenseCents != 10_000 {
		t.Fatalf("expected totals from ledger amounts, got %+v", summary.Cash)
	}
}

func TestRecomputeMonthIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedTwoMonths(t, svc)

	first, err := svc.RecomputeMonth(ctx, "2026-03")
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	second, err := svc.RecomputeMonth(ctx, "2026-03")
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical rows, got %+v and %+v", first, second)
	}
	if first.CashCents != 80_000 || first.TransferCents != 50_000 {
		t.Fatalf("unexpected March row %+v", first)
	}
	if _, err := svc.RecomputeMonth(ctx, "2026-13"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBackdatedEntryCascadesToLaterMonths(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	addCapital(t, svc, 100_000, "2026-03-10")

	_, err := svc.AddCashFlow(ctx, domain.FlowEntryRequest{
		Type:        "expense",
		AmountCents: 30_000,
		Description: "sewa kios januari",
		Date:        "2026-01-15",
	})
	if err != nil {
		t.Fatalf("backdated expense failed: %v", err)
	}

	jan, err := repo.GetMonthlyBalance(ctx, "2026-01")
	if err != nil || jan.CashCents != -30_000 {
		t.Fatalf("expected January row at -30000, got %+v err=%v", jan, err)
	}
	mar, err := repo.GetMonthlyBalance(ctx, "2026-03")
	if err != nil || mar.CashCents != 70_000 {
		t.Fatalf("expected March row to absorb the backdated entry, got %+v err=%v", mar, err)
	}
}

func TestCloseMonthRequiresElapsedMonth(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addCapital(t, svc, 100_000, "2026-02-10")

	if _, err := svc.CloseMonth(ctx, "2026-03"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected current month to be rejected, got %v", err)
	}
	row, err := svc.CloseMonth(ctx, "2026-02")
	if err != nil {
		t.Fatalf("close month failed: %v", err)
	}
	if row.Month != "2026-02" || row.CashCents != 100_000 {
		t.Fatalf("unexpected February row %+v", row)
	}
}
