// Package storage defines the persistence interfaces the marketplace engine
// depends on. Implementations live in the memory, postgres and rediscache
// subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/nftbay/marketplace/internal/domain/market"
)

// ErrNotFound is returned when a listing or proceeds record does not exist.
// For proceeds an absent record is equivalent to a zero balance and store
// implementations return 0 rather than this error.
var ErrNotFound = errors.New("storage: not found")

// ListingStore persists active listings keyed by asset identity. Absence of a
// record means the asset is not listed.
type ListingStore interface {
	GetListing(ctx context.Context, asset market.AssetID) (market.Listing, error)
	PutListing(ctx context.Context, asset market.AssetID, listing market.Listing) error
	DeleteListing(ctx context.Context, asset market.AssetID) error
	ListListings(ctx context.Context) ([]market.ListedItem, error)
}

// ProceedsStore persists withdrawable sale proceeds per seller. A seller with
// no record has a zero balance.
type ProceedsStore interface {
	Proceeds(ctx context.Context, seller market.Address) (uint64, error)
	// AddProceeds credits the seller and returns the new balance.
	AddProceeds(ctx context.Context, seller market.Address, amount uint64) (uint64, error)
	// SubProceeds debits the seller and returns the new balance. It fails if
	// the balance would go negative.
	SubProceeds(ctx context.Context, seller market.Address, amount uint64) (uint64, error)
	// TakeProceeds zeroes the seller's balance and returns the prior amount.
	TakeProceeds(ctx context.Context, seller market.Address) (uint64, error)
}
