package market

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the marketplace engine.
const (
	EventItemListed   = "item_listed"
	EventItemCanceled = "item_canceled"
	EventItemBought   = "item_bought"
)

// Event is the envelope every marketplace notification is wrapped in before it
// reaches observers (log, metrics, websocket feed).
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Asset     AssetID   `json:"asset"`
	Seller    Address   `json:"seller,omitempty"`
	Buyer     Address   `json:"buyer,omitempty"`
	Price     uint64    `json:"price,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(eventType string, asset AssetID) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Asset:     asset,
		Timestamp: time.Now().UTC(),
	}
}

// NewItemListed builds the notification for a new or re-priced listing.
func NewItemListed(seller Address, asset AssetID, price uint64) Event {
	ev := newEvent(EventItemListed, asset)
	ev.Seller = seller
	ev.Price = price
	return ev
}

// NewItemCanceled builds the notification for a withdrawn listing.
func NewItemCanceled(seller Address, asset AssetID) Event {
	ev := newEvent(EventItemCanceled, asset)
	ev.Seller = seller
	return ev
}

// NewItemBought builds the notification for a completed sale.
func NewItemBought(buyer Address, asset AssetID, price uint64) Event {
	ev := newEvent(EventItemBought, asset)
	ev.Buyer = buyer
	ev.Price = price
	return ev
}
