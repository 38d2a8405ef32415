package memory

import (
	"context"
	"testing"

	"kasirkoperasi/backend/internal/domain"
	"kasirkoperasi/backend/internal/store"
	"kasirkoperasi/backend/internal/store/storetest"
)

func TestRepositoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		return New()
	})
}

func TestReadOnlyGroupRejectsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.RunAtomic(ctx, store.ReadOnly, func(tx store.Tx) error {
		return tx.InsertProduct(ctx, domain.Product{ID: "prd-1", Name: "Gula", Category: "sembako"})
	})
	if err == nil {
		t.Fatalf("expected write inside read-only group to fail")
	}
	if _, err := s.GetProduct(ctx, "prd-1"); err == nil {
		t.Fatalf("expected product to be absent")
	}
}

func TestCanceledContextSkipsGroup(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunAtomic(ctx, store.ReadWrite, func(tx store.Tx) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Fatalf("expected canceled context to stop the group, err=%v called=%t", err, called)
	}
}

func TestWritesAreIsolatedUntilCommit(t *testing.T) {
	s := New()
	ctx := context.Background()
	product := domain.Product{ID: "prd-1", Name: "Gula", Category: "sembako", Stock: 5}
	if err := s.RunAtomic(ctx, store.ReadWrite, func(tx store.Tx) error {
		return tx.InsertProduct(ctx, product)
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	err := s.RunAtomic(ctx, store.ReadWrite, func(tx store.Tx) error {
		product.Stock = 0
		if err := tx.UpdateProduct(ctx, product); err != nil {
			return err
		}
		got, err := tx.GetProduct(ctx, product.ID)
		if err != nil {
			return err
		}
		if got.Stock != 0 {
			t.Errorf("expected tx to see its own write, got %d", got.Stock)
		}
		return store.ErrConflict
	})
	if err != store.ErrConflict {
		t.Fatalf("expected body error back, got %v", err)
	}

	got, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Stock != 5 {
		t.Fatalf("expected rolled back stock 5, got %d", got.Stock)
	}
}
