package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/storage"
)

// Guard predicates. Each check is side-effect free: it only reads the listing
// store and queries the asset provider, and fails the enclosing operation with
// the matching taxonomy error.

func (s *Service) requireOwner(ctx context.Context, asset market.AssetID, caller market.Address) error {
	owner, err := s.provider.OwnerOf(ctx, asset)
	if err != nil {
		return fmt.Errorf("owner lookup for %s: %w", asset, err)
	}
	if market.Normalize(owner) != market.Normalize(caller) {
		return fmt.Errorf("asset %s owned by %s: %w", asset, owner, ErrNotOwner)
	}
	return nil
}

func (s *Service) requireApprovedOperator(ctx context.Context, asset market.AssetID) error {
	approved, err := s.provider.ApprovedOperator(ctx, asset)
	if err != nil {
		return fmt.Errorf("approval lookup for %s: %w", asset, err)
	}
	if market.Normalize(approved) != market.Normalize(s.operator) {
		return fmt.Errorf("asset %s: %w", asset, ErrNotApproved)
	}
	return nil
}

func (s *Service) requireNotListed(ctx context.Context, asset market.AssetID) error {
	_, err := s.listings.GetListing(ctx, asset)
	if err == nil {
		return fmt.Errorf("asset %s: %w", asset, ErrAlreadyListed)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("listing lookup for %s: %w", asset, err)
}

func (s *Service) requireListed(ctx context.Context, asset market.AssetID) (market.Listing, error) {
	listing, err := s.listings.GetListing(ctx, asset)
	if err == nil {
		return listing, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return market.Listing{}, fmt.Errorf("asset %s: %w", asset, ErrNotListed)
	}
	return market.Listing{}, fmt.Errorf("listing lookup for %s: %w", asset, err)
}
