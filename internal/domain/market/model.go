// Package market defines the core marketplace domain types: asset identities,
// listings, seller proceeds and the events emitted by the trading engine.
package market

import (
	"fmt"
	"strings"
)

// Address identifies a participant or an asset contract. Addresses are opaque
// to the engine beyond equality; they are normalised to lower case so that the
// same identity written with different casing compares equal.
type Address string

// Normalize returns the canonical form of the address.
func Normalize(a Address) Address {
	return Address(strings.ToLower(strings.TrimSpace(string(a))))
}

// AssetID is the composite key identifying one sellable unit: the asset
// contract plus the token identifier within that contract.
type AssetID struct {
	Contract Address `json:"contract"`
	TokenID  uint64  `json:"token_id"`
}

func (id AssetID) String() string {
	return fmt.Sprintf("%s/%d", id.Contract, id.TokenID)
}

// Listing is an active sale offer for one asset. A listing is active iff it is
// present in the listing store; its price is always strictly positive.
type Listing struct {
	Seller Address `json:"seller"`
	Price  uint64  `json:"price"`
}

// ListedItem pairs an asset identity with its listing, for enumeration.
type ListedItem struct {
	Asset   AssetID `json:"asset"`
	Listing Listing `json:"listing"`
}
