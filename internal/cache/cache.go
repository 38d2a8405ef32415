package cache

import (
	"context"
	"slices"
	"time"

	"kasirkoperasi/backend/internal/domain"
)

// SummaryCache holds computed cash-flow summaries. Invalidate drops every
// entry; it runs after each committed ledger write.
//
// Version returns a token that changes on every Invalidate. Callers read it
// before computing a value and pass it to Set, which stores nothing once the
// cache has been invalidated since.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*domain.CashFlowSummary, bool, error)
	Version(ctx context.Context) (string, error)
	Set(ctx context.Context, version string, key string, value *domain.CashFlowSummary, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.CashFlowSummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Version(_ context.Context) (string, error) {
	return "", nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ string, _ *domain.CashFlowSummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context) error {
	return nil
}

// cloneSummary copies the slices too, so cached values never alias what
// callers hold.
func cloneSummary(s domain.CashFlowSummary) domain.CashFlowSummary {
	s.CashDays = slices.Clone(s.CashDays)
	s.TransDays = slices.Clone(s.TransDays)
	s.Entries = slices.Clone(s.Entries)
	for i := range s.Entries {
		if total := s.Entries[i].SaleTotalCents; total != nil {
			v := *total
			s.Entries[i].SaleTotalCents = &v
		}
		if details := s.Entries[i].Details; details != nil {
			d := *details
			s.Entries[i].Details = &d
		}
	}
	return s
}
