// Package chain defines the capability interfaces through which the
// marketplace reaches the asset contract and moves currency. The engine only
// ever depends on these interfaces; concrete clients live in subpackages.
package chain

import (
	"context"

	"github.com/nftbay/marketplace/internal/domain/market"
)

// AssetProvider exposes the asset contract the marketplace trades against:
// ownership lookup, operator approval lookup and ownership transfer.
type AssetProvider interface {
	// OwnerOf returns the current owner of the asset. It fails if the asset
	// does not exist.
	OwnerOf(ctx context.Context, asset market.AssetID) (market.Address, error)

	// ApprovedOperator returns the single operator currently approved to move
	// the asset. The zero address means no operator is approved.
	ApprovedOperator(ctx context.Context, asset market.AssetID) (market.Address, error)

	// Transfer moves the asset from its current owner to the recipient. It is
	// atomic from the caller's perspective: it either fully succeeds or fails
	// with no ownership change.
	Transfer(ctx context.Context, asset market.AssetID, from, to market.Address) error
}

// PaymentSender pushes currency to a recipient. Used for proceeds payouts.
type PaymentSender interface {
	SendPayment(ctx context.Context, to market.Address, amount uint64) error
}
