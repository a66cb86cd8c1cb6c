// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/nftbay/marketplace/internal/domain/market"
)

// MockAssetProvider is a test implementation of chain.AssetProvider backed by
// in-memory ownership and approval tables.
type MockAssetProvider struct {
	mu        sync.RWMutex
	owners    map[market.AssetID]market.Address
	approvals map[market.AssetID]market.Address

	// TransferErr, when set, makes every Transfer fail with this error.
	TransferErr error
	// OnTransfer, when set, runs before a transfer is applied. Tests use it to
	// observe engine state while the external call is in flight.
	OnTransfer func(ctx context.Context, asset market.AssetID, from, to market.Address)
}

// NewMockAssetProvider creates an empty provider.
func NewMockAssetProvider() *MockAssetProvider {
	return &MockAssetProvider{
		owners:    make(map[market.AssetID]market.Address),
		approvals: make(map[market.AssetID]market.Address),
	}
}

// Mint records initial ownership of an asset.
func (m *MockAssetProvider) Mint(asset market.AssetID, owner market.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[asset] = market.Normalize(owner)
}

// Approve records the approved operator for an asset.
func (m *MockAssetProvider) Approve(asset market.AssetID, operator market.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[asset] = market.Normalize(operator)
}

// OwnerOf returns the recorded owner of the asset.
func (m *MockAssetProvider) OwnerOf(_ context.Context, asset market.AssetID) (market.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.owners[asset]
	if !ok {
		return "", fmt.Errorf("asset %s does not exist", asset)
	}
	return owner, nil
}

// ApprovedOperator returns the recorded operator, or the empty address.
func (m *MockAssetProvider) ApprovedOperator(_ context.Context, asset market.AssetID) (market.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.owners[asset]; !ok {
		return "", fmt.Errorf("asset %s does not exist", asset)
	}
	return m.approvals[asset], nil
}

// Transfer moves ownership, honouring TransferErr and OnTransfer.
func (m *MockAssetProvider) Transfer(ctx context.Context, asset market.AssetID, from, to market.Address) error {
	if m.OnTransfer != nil {
		m.OnTransfer(ctx, asset, from, to)
	}
	if m.TransferErr != nil {
		return m.TransferErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[asset]
	if !ok {
		return fmt.Errorf("asset %s does not exist", asset)
	}
	if owner != market.Normalize(from) {
		return fmt.Errorf("asset %s not owned by %s", asset, from)
	}
	m.owners[asset] = market.Normalize(to)
	delete(m.approvals, asset)
	return nil
}

// MockPaymentSender records payouts and optionally fails them.
type MockPaymentSender struct {
	mu       sync.Mutex
	payments map[market.Address]uint64

	// SendErr, when set, makes every SendPayment fail with this error.
	SendErr error
}

// NewMockPaymentSender creates an empty sender.
func NewMockPaymentSender() *MockPaymentSender {
	return &MockPaymentSender{payments: make(map[market.Address]uint64)}
}

// SendPayment records the payout unless SendErr is set.
func (m *MockPaymentSender) SendPayment(_ context.Context, to market.Address, amount uint64) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[market.Normalize(to)] += amount
	return nil
}

// Paid returns the total amount sent to the recipient.
func (m *MockPaymentSender) Paid(to market.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[market.Normalize(to)]
}

// EventRecorder collects emitted marketplace events.
type EventRecorder struct {
	mu     sync.Mutex
	events []market.Event
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Emit appends the event.
func (r *EventRecorder) Emit(_ context.Context, event market.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []market.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]market.Event(nil), r.events...)
}
