// Package postgres implements the marketplace stores backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/storage"
)

// Store implements the storage interfaces over a PostgreSQL database.
type Store struct {
	db *sqlx.DB
}

var _ storage.ListingStore = (*Store)(nil)
var _ storage.ProceedsStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database at dsn and verifies the connection.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

type listingRow struct {
	Contract string `db:"contract"`
	TokenID  int64  `db:"token_id"`
	Seller   string `db:"seller"`
	Price    int64  `db:"price"`
}

func (r listingRow) item() market.ListedItem {
	return market.ListedItem{
		Asset:   market.AssetID{Contract: market.Address(r.Contract), TokenID: uint64(r.TokenID)},
		Listing: market.Listing{Seller: market.Address(r.Seller), Price: uint64(r.Price)},
	}
}

// --- ListingStore -----------------------------------------------------------

func (s *Store) GetListing(ctx context.Context, asset market.AssetID) (market.Listing, error) {
	var row listingRow
	err := s.db.GetContext(ctx, &row, `
		SELECT contract, token_id, seller, price
		FROM marketplace_listings
		WHERE contract = $1 AND token_id = $2
	`, string(asset.Contract), int64(asset.TokenID))
	if errors.Is(err, sql.ErrNoRows) {
		return market.Listing{}, fmt.Errorf("listing %s: %w", asset, storage.ErrNotFound)
	}
	if err != nil {
		return market.Listing{}, err
	}
	return row.item().Listing, nil
}

func (s *Store) PutListing(ctx context.Context, asset market.AssetID, listing market.Listing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marketplace_listings (contract, token_id, seller, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (contract, token_id)
		DO UPDATE SET seller = EXCLUDED.seller, price = EXCLUDED.price, updated_at = NOW()
	`, string(asset.Contract), int64(asset.TokenID), string(listing.Seller), int64(listing.Price))
	return err
}

func (s *Store) DeleteListing(ctx context.Context, asset market.AssetID) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM marketplace_listings WHERE contract = $1 AND token_id = $2
	`, string(asset.Contract), int64(asset.TokenID))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("listing %s: %w", asset, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListListings(ctx context.Context) ([]market.ListedItem, error) {
	var rows []listingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT contract, token_id, seller, price
		FROM marketplace_listings
		ORDER BY created_at, contract, token_id
	`)
	if err != nil {
		return nil, err
	}
	result := make([]market.ListedItem, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.item())
	}
	return result, nil
}

// --- ProceedsStore ----------------------------------------------------------

func (s *Store) Proceeds(ctx context.Context, seller market.Address) (uint64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		SELECT balance FROM marketplace_proceeds WHERE seller = $1
	`, string(seller))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

func (s *Store) AddProceeds(ctx context.Context, seller market.Address, amount uint64) (uint64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		INSERT INTO marketplace_proceeds (seller, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (seller)
		DO UPDATE SET balance = marketplace_proceeds.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`, string(seller), int64(amount))
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

func (s *Store) SubProceeds(ctx context.Context, seller market.Address, amount uint64) (uint64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		UPDATE marketplace_proceeds
		SET balance = balance - $2, updated_at = NOW()
		WHERE seller = $1 AND balance >= $2
		RETURNING balance
	`, string(seller), int64(amount))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("proceeds for %s: debit %d exceeds balance", seller, amount)
	}
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

func (s *Store) TakeProceeds(ctx context.Context, seller market.Address) (uint64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.GetContext(ctx, &balance, `
		SELECT balance FROM marketplace_proceeds WHERE seller = $1 FOR UPDATE
	`, string(seller))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, tx.Commit()
	}
	if err != nil {
		return 0, err
	}
	if balance > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE marketplace_proceeds SET balance = 0, updated_at = NOW() WHERE seller = $1
		`, string(seller)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uint64(balance), nil
}
