// Package audit periodically sweeps active listings for ownership drift: an
// asset whose on-chain owner no longer matches the listed seller can never be
// bought, because ownership is re-checked at purchase time. The auditor only
// reports drift; it never cancels listings on the seller's behalf.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nftbay/marketplace/internal/chain"
	"github.com/nftbay/marketplace/internal/storage"
	"github.com/nftbay/marketplace/pkg/logger"
)

const sweepTimeout = time.Minute

// Reporter receives the stale-listing count after each sweep.
type Reporter interface {
	SetStaleListings(n int)
}

// Auditor compares active listings against on-chain ownership on a schedule.
type Auditor struct {
	listings storage.ListingStore
	provider chain.AssetProvider
	reporter Reporter
	log      *logger.Logger
	cron     *cron.Cron
}

// New creates an auditor. reporter may be nil.
func New(listings storage.ListingStore, provider chain.AssetProvider, reporter Reporter, log *logger.Logger) *Auditor {
	if log == nil {
		log = logger.NewDefault("audit")
	}
	return &Auditor{
		listings: listings,
		provider: provider,
		reporter: reporter,
		log:      log,
	}
}

// Start schedules sweeps with the given cron expression.
func (a *Auditor) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := a.Sweep(ctx); err != nil {
			a.log.WithError(err).Warn("listing sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	c.Start()
	a.cron = c
	a.log.Infof("listing auditor scheduled: %s", schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (a *Auditor) Stop() {
	if a.cron == nil {
		return
	}
	<-a.cron.Stop().Done()
}

// Sweep checks every active listing once and returns the number of stale
// entries found.
func (a *Auditor) Sweep(ctx context.Context) (int, error) {
	items, err := a.listings.ListListings(ctx)
	if err != nil {
		return 0, fmt.Errorf("enumerate listings: %w", err)
	}

	stale := 0
	for _, item := range items {
		owner, err := a.provider.OwnerOf(ctx, item.Asset)
		if err != nil {
			a.log.WithError(err).Warnf("owner lookup failed for %s", item.Asset)
			stale++
			continue
		}
		if owner != item.Listing.Seller {
			a.log.Warnf("listing %s is stale: listed by %s, owned by %s", item.Asset, item.Listing.Seller, owner)
			stale++
		}
	}

	if a.reporter != nil {
		a.reporter.SetStaleListings(stale)
	}
	a.log.Infof("swept %d listings, %d stale", len(items), stale)
	return stale, nil
}
