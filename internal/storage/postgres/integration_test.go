package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/platform/migrations"
	"github.com/nftbay/marketplace/internal/storage"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	ctx := context.Background()
	asset := market.AssetID{Contract: "0xintegration", TokenID: 42}
	t.Cleanup(func() {
		_, _ = db.Exec("DELETE FROM marketplace_listings WHERE contract = $1", "0xintegration")
		_, _ = db.Exec("DELETE FROM marketplace_proceeds WHERE seller = $1", "0xint-seller")
	})

	if err := store.PutListing(ctx, asset, market.Listing{Seller: "0xint-seller", Price: 10}); err != nil {
		t.Fatalf("put listing: %v", err)
	}
	listing, err := store.GetListing(ctx, asset)
	if err != nil || listing.Price != 10 {
		t.Fatalf("get listing: %+v %v", listing, err)
	}

	if _, err := store.AddProceeds(ctx, "0xint-seller", 10); err != nil {
		t.Fatalf("add proceeds: %v", err)
	}
	balance, err := store.TakeProceeds(ctx, "0xint-seller")
	if err != nil || balance != 10 {
		t.Fatalf("take proceeds: %d %v", balance, err)
	}

	if err := store.DeleteListing(ctx, asset); err != nil {
		t.Fatalf("delete listing: %v", err)
	}
	if _, err := store.GetListing(ctx, asset); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
