package service

import (
	"context"
	"log"
	"time"

	"kasirkoperasi/backend/internal/cache"
	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// Location decides which calendar day "today" is.
	Location *time.Location
	// SummaryTTL bounds how long a cash-flow summary may be served from cache.
	SummaryTTL time.Duration
	// CloseMonthOnSummary persists the closing balance whenever a summary
	// covers exactly one full calendar month.
	CloseMonthOnSummary bool
	Now                 func() time.Time
}

type Service struct {
	repo      store.Repository
	summaries cache.SummaryCache
	opts      Options
}

func New(repo store.Repository, summaries cache.SummaryCache, opts Options) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:      repo,
		summaries: summaries,
		opts:      opts,
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *Service) today() string {
	return domain.FormatDate(s.opts.Now().In(s.opts.Location))
}

// resolveDate defaults an empty date to today and validates the rest.
func (s *Service) resolveDate(field string, value string) (string, error) {
	if value == "" {
		return s.today(), nil
	}
	t, err := domain.ParseDate(value)
	if err != nil {
		return "", invalid(field, "%v", err)
	}
	return domain.FormatDate(t), nil
}

// atomic runs fn as one all-or-nothing group. Ledger errors pass through
// unchanged; anything else from the store becomes a TransactionAbortedError.
func (s *Service) atomic(ctx context.Context, op string, mode store.Mode, fn func(tx store.Tx) error) error {
	err := s.repo.RunAtomic(ctx, mode, fn)
	if err == nil {
		if mode == store.ReadWrite {
			s.invalidateSummaries(ctx)
		}
		return nil
	}
	if isDomainError(err) {
		return err
	}
	log.Printf("[service] WARN: %s rolled back: %v", op, err)
	return &TransactionAbortedError{Op: op, Cause: err}
}

func (s *Service) invalidateSummaries(ctx context.Context) {
	if err := s.summaries.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: failed to invalidate summary cache: %v", err)
	}
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}
