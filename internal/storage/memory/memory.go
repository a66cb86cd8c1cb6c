package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu       sync.RWMutex
	listings map[market.AssetID]market.Listing
	proceeds map[market.Address]uint64
}

var _ storage.ListingStore = (*Store)(nil)
var _ storage.ProceedsStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		listings: make(map[market.AssetID]market.Listing),
		proceeds: make(map[market.Address]uint64),
	}
}

// ListingStore implementation -------------------------------------------------

func (s *Store) GetListing(_ context.Context, asset market.AssetID) (market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.listings[asset]
	if !ok {
		return market.Listing{}, fmt.Errorf("listing %s: %w", asset, storage.ErrNotFound)
	}
	return listing, nil
}

func (s *Store) PutListing(_ context.Context, asset market.AssetID, listing market.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listings[asset] = listing
	return nil
}

func (s *Store) DeleteListing(_ context.Context, asset market.AssetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[asset]; !ok {
		return fmt.Errorf("listing %s: %w", asset, storage.ErrNotFound)
	}
	delete(s.listings, asset)
	return nil
}

func (s *Store) ListListings(_ context.Context) ([]market.ListedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]market.ListedItem, 0, len(s.listings))
	for asset, listing := range s.listings {
		result = append(result, market.ListedItem{Asset: asset, Listing: listing})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Asset.Contract != result[j].Asset.Contract {
			return result[i].Asset.Contract < result[j].Asset.Contract
		}
		return result[i].Asset.TokenID < result[j].Asset.TokenID
	})
	return result, nil
}

// ProceedsStore implementation ------------------------------------------------

func (s *Store) Proceeds(_ context.Context, seller market.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.proceeds[seller], nil
}

func (s *Store) AddProceeds(_ context.Context, seller market.Address, amount uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.proceeds[seller] += amount
	return s.proceeds[seller], nil
}

func (s *Store) SubProceeds(_ context.Context, seller market.Address, amount uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.proceeds[seller]
	if amount > balance {
		return balance, fmt.Errorf("proceeds for %s: debit %d exceeds balance %d", seller, amount, balance)
	}
	balance -= amount
	if balance == 0 {
		delete(s.proceeds, seller)
	} else {
		s.proceeds[seller] = balance
	}
	return balance, nil
}

func (s *Store) TakeProceeds(_ context.Context, seller market.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.proceeds[seller]
	delete(s.proceeds, seller)
	return balance, nil
}
