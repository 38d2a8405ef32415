package main

import (
	"context"
	"path/filepath"
	"testing"

	"kasirkoperasi/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "123456"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidatePINStrengthRejectsSequences(t *testing.T) {
	for _, pin := range []string{"234567", "876543", "7777777"} {
		if err := validatePINStrength(pin); err == nil {
			t.Fatalf("expected %s to be rejected", pin)
		}
	}
}

func TestOpenRepositoryByDriver(t *testing.T) {
	ctx := context.Background()

	repo, err := openRepository(ctx, config.Config{StoreDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	repo, err = openRepository(ctx, config.Config{StoreDriver: config.DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	_ = repo.Close()

	if _, err := openRepository(ctx, config.Config{StoreDriver: config.DriverPostgres}); err == nil {
		t.Fatalf("expected postgres without DATABASE_URL to fail")
	}
	if _, err := openRepository(ctx, config.Config{StoreDriver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
