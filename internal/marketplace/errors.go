package marketplace

import "errors"

// Engine errors, one per violated precondition. Callers distinguish them with
// errors.Is; ErrTransferFailed additionally wraps the underlying chain error.
var (
	ErrPriceMustBePositive = errors.New("price must be above zero")
	ErrAlreadyListed       = errors.New("asset already listed")
	ErrNotListed           = errors.New("asset not listed")
	ErrNotOwner            = errors.New("caller is not the asset owner")
	ErrNotApproved         = errors.New("marketplace not approved for asset")
	ErrPriceNotMet         = errors.New("payment below listing price")
	ErrNoProceeds          = errors.New("no proceeds to withdraw")
	ErrTransferFailed      = errors.New("transfer failed")
)
