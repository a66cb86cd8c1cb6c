// Package marketplace implements the listing-and-escrow engine: sellers list
// assets they own, buyers purchase them atomically against the posted price,
// and sellers withdraw accumulated proceeds under a pull-payment discipline.
package marketplace

import (
	"context"
	"fmt"
	"sync"

	"github.com/nftbay/marketplace/internal/chain"
	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/storage"
	"github.com/nftbay/marketplace/pkg/logger"
)

// Service is the marketplace engine. It exclusively owns the listing and
// proceeds stores; the asset provider is only read from or asked to transfer.
//
// Mutating operations are serialized by a single mutex and follow an
// effects-before-interactions discipline: all local state is committed to its
// final value before any external call, and compensated back on external
// failure. Read-only operations bypass the mutex, so a nested read issued
// while an external call is in flight observes the already-updated state.
type Service struct {
	mu       sync.Mutex
	listings storage.ListingStore
	proceeds storage.ProceedsStore
	provider chain.AssetProvider
	payments chain.PaymentSender
	operator market.Address
	emitter  Emitter
	log      *logger.Logger
}

// New creates the engine. operator is the marketplace's own identity on the
// asset contract; sellers must approve it before listing so that a later buy
// can be fulfilled by transfer.
func New(listings storage.ListingStore, proceeds storage.ProceedsStore, provider chain.AssetProvider, payments chain.PaymentSender, operator market.Address, emitter Emitter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("marketplace")
	}
	if emitter == nil {
		emitter = NewLogEmitter(log)
	}
	return &Service{
		listings: listings,
		proceeds: proceeds,
		provider: provider,
		payments: payments,
		operator: market.Normalize(operator),
		emitter:  emitter,
		log:      log,
	}
}

// ListItem puts an asset up for sale at the given price, in the smallest
// currency unit. The caller must own the asset and must have approved the
// marketplace operator on the asset contract.
func (s *Service) ListItem(ctx context.Context, asset market.AssetID, price uint64, caller market.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	caller = market.Normalize(caller)
	if price == 0 {
		return fmt.Errorf("list %s: %w", asset, ErrPriceMustBePositive)
	}
	if err := s.requireNotListed(ctx, asset); err != nil {
		return err
	}
	if err := s.requireOwner(ctx, asset, caller); err != nil {
		return err
	}
	if err := s.requireApprovedOperator(ctx, asset); err != nil {
		return err
	}

	if err := s.listings.PutListing(ctx, asset, market.Listing{Seller: caller, Price: price}); err != nil {
		return fmt.Errorf("store listing %s: %w", asset, err)
	}

	s.emitter.Emit(ctx, market.NewItemListed(caller, asset, price))
	return nil
}

// CancelListing withdraws an active listing. Ownership is re-checked at cancel
// time rather than trusted from listing time.
func (s *Service) CancelListing(ctx context.Context, asset market.AssetID, caller market.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	caller = market.Normalize(caller)
	if _, err := s.requireListed(ctx, asset); err != nil {
		return err
	}
	if err := s.requireOwner(ctx, asset, caller); err != nil {
		return err
	}

	if err := s.listings.DeleteListing(ctx, asset); err != nil {
		return fmt.Errorf("remove listing %s: %w", asset, err)
	}

	s.emitter.Emit(ctx, market.NewItemCanceled(caller, asset))
	return nil
}

// UpdateListing changes the price of an active listing in place. A zero price
// is rejected rather than treated as an implicit cancel, preserving the
// invariant that every active listing has a strictly positive price.
func (s *Service) UpdateListing(ctx context.Context, asset market.AssetID, newPrice uint64, caller market.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	caller = market.Normalize(caller)
	if newPrice == 0 {
		return fmt.Errorf("update %s: %w", asset, ErrPriceMustBePositive)
	}
	listing, err := s.requireListed(ctx, asset)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, asset, caller); err != nil {
		return err
	}

	listing.Price = newPrice
	if err := s.listings.PutListing(ctx, asset, listing); err != nil {
		return fmt.Errorf("store listing %s: %w", asset, err)
	}

	// A price change is announced as a re-listing.
	s.emitter.Emit(ctx, market.NewItemListed(listing.Seller, asset, newPrice))
	return nil
}

// BuyItem purchases a listed asset. The payment must meet the posted price;
// overpayment is accepted and credited to the seller in full. The listing is
// removed and the proceeds credited before the asset transfer is attempted,
// and both are restored if the transfer fails.
func (s *Service) BuyItem(ctx context.Context, asset market.AssetID, payment uint64, buyer market.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buyer = market.Normalize(buyer)
	listing, err := s.requireListed(ctx, asset)
	if err != nil {
		return err
	}
	if payment < listing.Price {
		return fmt.Errorf("buy %s: payment %d below price %d: %w", asset, payment, listing.Price, ErrPriceNotMet)
	}

	if err := s.listings.DeleteListing(ctx, asset); err != nil {
		return fmt.Errorf("remove listing %s: %w", asset, err)
	}
	if _, err := s.proceeds.AddProceeds(ctx, listing.Seller, payment); err != nil {
		if restoreErr := s.listings.PutListing(ctx, asset, listing); restoreErr != nil {
			s.log.WithError(restoreErr).Errorf("restore listing %s after failed credit", asset)
		}
		return fmt.Errorf("credit proceeds for %s: %w", listing.Seller, err)
	}

	if err := s.provider.Transfer(ctx, asset, listing.Seller, buyer); err != nil {
		if _, rollbackErr := s.proceeds.SubProceeds(ctx, listing.Seller, payment); rollbackErr != nil {
			s.log.WithError(rollbackErr).Errorf("roll back proceeds for %s after failed transfer", listing.Seller)
		}
		if restoreErr := s.listings.PutListing(ctx, asset, listing); restoreErr != nil {
			s.log.WithError(restoreErr).Errorf("restore listing %s after failed transfer", asset)
		}
		return fmt.Errorf("buy %s: %w: %w", asset, ErrTransferFailed, err)
	}

	s.emitter.Emit(ctx, market.NewItemBought(buyer, asset, listing.Price))
	return nil
}

// Withdraw pays out the caller's accumulated proceeds. The balance is zeroed
// before the currency transfer and restored if the payout fails, so earnings
// are never silently destroyed.
func (s *Service) Withdraw(ctx context.Context, caller market.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	caller = market.Normalize(caller)
	balance, err := s.proceeds.Proceeds(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("proceeds lookup for %s: %w", caller, err)
	}
	if balance == 0 {
		return 0, fmt.Errorf("withdraw for %s: %w", caller, ErrNoProceeds)
	}

	if _, err := s.proceeds.TakeProceeds(ctx, caller); err != nil {
		return 0, fmt.Errorf("zero proceeds for %s: %w", caller, err)
	}

	if err := s.payments.SendPayment(ctx, caller, balance); err != nil {
		if _, restoreErr := s.proceeds.AddProceeds(ctx, caller, balance); restoreErr != nil {
			s.log.WithError(restoreErr).Errorf("restore proceeds for %s after failed payout", caller)
		}
		return 0, fmt.Errorf("withdraw for %s: %w: %w", caller, ErrTransferFailed, err)
	}

	s.log.Infof("paid out %d to %s", balance, caller)
	return balance, nil
}

// GetListing returns the active listing for the asset, or ErrNotListed.
func (s *Service) GetListing(ctx context.Context, asset market.AssetID) (market.Listing, error) {
	return s.requireListed(ctx, asset)
}

// Listings enumerates all active listings.
func (s *Service) Listings(ctx context.Context) ([]market.ListedItem, error) {
	return s.listings.ListListings(ctx)
}

// Proceeds returns the caller's withdrawable balance.
func (s *Service) Proceeds(ctx context.Context, seller market.Address) (uint64, error) {
	return s.proceeds.Proceeds(ctx, market.Normalize(seller))
}
