package db

import (
	"context"
	"errors"
	"testing"

	"chlumarket/internal/config"
)

func TestNewStoreWithoutDSN(t *testing.T) {
	store, err := NewStore(config.Config{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if store.DB != nil {
		t.Fatalf("expected no db handle")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	dir := NewVendorDirectory(store.DB)
	if err := dir.Start(context.Background()); !errors.Is(err, errDBUnavailable) {
		t.Fatalf("expected errDBUnavailable, got %v", err)
	}
	if _, err := dir.GetVendorIDs(context.Background()); !errors.Is(err, errDBUnavailable) {
		t.Fatalf("expected errDBUnavailable, got %v", err)
	}
}
