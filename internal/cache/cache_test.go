package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirkoperasi/backend/internal/domain"
)

func sampleSummary() *domain.CashFlowSummary {
	saleTotal := int64(50_000)
	return &domain.CashFlowSummary{
		StartDate: "2026-03-01",
		EndDate:   "2026-03-31",
		Month:     "2026-03",
		FullMonth: true,
		Cash:      domain.MethodTotals{OpeningCents: 100_000, IncomeCents: 50_000, ClosingCents: 150_000},
		CashDays:  []domain.DailyFlow{{Date: "2026-03-01", IncomeCents: 50_000, BalanceCents: 150_000}},
		Entries: []domain.SummaryEntry{{
			FlowEntry:      domain.FlowEntry{ID: "cf-1", AmountCents: 50_000, Description: "sale TRX-1"},
			SaleTotalCents: &saleTotal,
		}},
	}
}

func currentVersion(t *testing.T, c SummaryCache) string {
	t.Helper()
	version, err := c.Version(context.Background())
	require.NoError(t, err)
	return version
}

func exerciseCache(t *testing.T, c SummaryCache) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "cashflow:2026-03-01:2026-03-31")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, currentVersion(t, c), "cashflow:2026-03-01:2026-03-31", sampleSummary(), time.Minute))
	got, ok, err := c.Get(ctx, "cashflow:2026-03-01:2026-03-31")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(150_000), got.Cash.ClosingCents)
	assert.True(t, got.FullMonth)

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.Get(ctx, "cashflow:2026-03-01:2026-03-31")
	require.NoError(t, err)
	assert.False(t, ok)

	// A value computed before an invalidation must not become readable.
	stale := currentVersion(t, c)
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.Set(ctx, stale, "cashflow:2026-03-01:2026-03-31", sampleSummary(), time.Minute))
	_, ok, err = c.Get(ctx, "cashflow:2026-03-01:2026-03-31")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopSummaryCacheNeverHits(t *testing.T) {
	c := NoopSummaryCache{}
	require.NoError(t, c.Set(context.Background(), currentVersion(t, c), "k", sampleSummary(), time.Minute))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySummaryCache(t *testing.T) {
	exerciseCache(t, NewMemorySummaryCache())
}

func TestMemorySummaryCacheExpires(t *testing.T) {
	now := time.Date(2026, 3, 20, 3, 0, 0, 0, time.UTC)
	c := NewMemorySummaryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), currentVersion(t, c), "k", sampleSummary(), time.Minute))
	now = now.Add(2 * time.Minute)

	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySummaryCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySummaryCache()
	require.NoError(t, c.Set(ctx, currentVersion(t, c), "k", sampleSummary(), time.Minute))

	first, _, _ := c.Get(ctx, "k")
	first.Cash.ClosingCents = 0
	first.CashDays[0].BalanceCents = 0
	first.Entries[0].Description = "edited"
	*first.Entries[0].SaleTotalCents = 1

	second, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(150_000), second.Cash.ClosingCents)
	assert.Equal(t, int64(150_000), second.CashDays[0].BalanceCents)
	assert.Equal(t, "sale TRX-1", second.Entries[0].Description)
	assert.Equal(t, int64(50_000), *second.Entries[0].SaleTotalCents)
}

func TestMemorySummaryCacheKeepsItsOwnCopyOnSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySummaryCache()
	value := sampleSummary()
	require.NoError(t, c.Set(ctx, currentVersion(t, c), "k", value, time.Minute))

	value.Entries[0].AmountCents = 0
	value.CashDays[0].IncomeCents = 0

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(50_000), got.Entries[0].AmountCents)
	assert.Equal(t, int64(50_000), got.CashDays[0].IncomeCents)
}

func TestRedisSummaryCacheIntegration(t *testing.T) {
	addr := os.Getenv("KASIRKOPERASI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KASIRKOPERASI_TEST_REDIS_ADDR not set")
	}

	c := NewRedisSummaryCache(addr, os.Getenv("KASIRKOPERASI_TEST_REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()))

	// Start from a fresh generation so entries from earlier runs are unreachable.
	require.NoError(t, c.Invalidate(context.Background()))
	exerciseCache(t, c)
}
