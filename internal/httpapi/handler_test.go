package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/marketplace"
	"github.com/nftbay/marketplace/internal/middleware"
	"github.com/nftbay/marketplace/internal/storage/memory"
	"github.com/nftbay/marketplace/pkg/testutil"
)

const (
	operator = market.Address("0x000000000000000000000000000000000000feed")
	seller   = market.Address("0x00000000000000000000000000000000000a11ce")
	buyer    = market.Address("0x0000000000000000000000000000000000000b0b")
	contract = market.Address("0x00000000000000000000000000000000deadbeef")
)

type fixture struct {
	handler  http.Handler
	provider *testutil.MockAssetProvider
	payments *testutil.MockPaymentSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	provider := testutil.NewMockAssetProvider()
	payments := testutil.NewMockPaymentSender()
	engine := marketplace.New(store, store, provider, payments, operator, nil, nil)
	return &fixture{
		handler:  NewHandler(engine, nil, nil),
		provider: provider,
		payments: payments,
	}
}

func (f *fixture) mintApproved(tokenID uint64, owner market.Address) market.AssetID {
	asset := market.AssetID{Contract: contract, TokenID: tokenID}
	f.provider.Mint(asset, owner)
	f.provider.Approve(asset, operator)
	return asset
}

// do issues a request as the given caller; an empty caller means anonymous.
func (f *fixture) do(t *testing.T, caller market.Address, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req = req.WithContext(middleware.WithCaller(req.Context(), caller))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func listingPath(asset market.AssetID) string {
	return fmt.Sprintf("/listings/%s/%d", asset.Contract, asset.TokenID)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndGetListing(t *testing.T) {
	f := newFixture(t)
	asset := f.mintApproved(1, seller)

	rec := f.do(t, seller, http.MethodPost, "/listings", map[string]interface{}{
		"contract": string(asset.Contract),
		"token_id": asset.TokenID,
		"price":    1000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, "", http.MethodGet, listingPath(asset), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var item market.ListedItem
	decodeBody(t, rec, &item)
	assert.Equal(t, asset, item.Asset)
	assert.Equal(t, seller, item.Listing.Seller)
	assert.Equal(t, uint64(1000), item.Listing.Price)
}

func TestListingsEnumeration(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "", http.MethodGet, "/listings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	first := f.mintApproved(1, seller)
	second := f.mintApproved(2, seller)
	for _, asset := range []market.AssetID{first, second} {
		rec := f.do(t, seller, http.MethodPost, "/listings", map[string]interface{}{
			"contract": string(asset.Contract),
			"token_id": asset.TokenID,
			"price":    500,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = f.do(t, "", http.MethodGet, "/listings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []market.ListedItem
	decodeBody(t, rec, &items)
	assert.Len(t, items, 2)
}

func TestCreateListingRequiresAuth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "", http.MethodPost, "/listings", map[string]interface{}{
		"contract": string(contract),
		"token_id": 1,
		"price":    1000,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorCodes(t *testing.T) {
	f := newFixture(t)
	asset := f.mintApproved(1, seller)

	// Zero price.
	rec := f.do(t, seller, http.MethodPost, "/listings", map[string]interface{}{
		"contract": string(asset.Contract),
		"token_id": asset.TokenID,
		"price":    0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "price_must_be_positive")

	// Listing by a non-owner.
	rec = f.do(t, buyer, http.MethodPost, "/listings", map[string]interface{}{
		"contract": string(asset.Contract),
		"token_id": asset.TokenID,
		"price":    1000,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_owner")

	// Unknown listing.
	rec = f.do(t, "", http.MethodGet, listingPath(market.AssetID{Contract: contract, TokenID: 42}), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_listed")

	// Double listing.
	list := func() *httptest.ResponseRecorder {
		return f.do(t, seller, http.MethodPost, "/listings", map[string]interface{}{
			"contract": string(asset.Contract),
			"token_id": asset.TokenID,
			"price":    1000,
		})
	}
	require.Equal(t, http.StatusCreated, list().Code)
	rec = list()
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already_listed")

	// Underpayment.
	rec = f.do(t, buyer, http.MethodPost, listingPath(asset)+"/purchase", map[string]interface{}{
		"payment": 999,
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "price_not_met")
}

func TestUpdateListing(t *testing.T) {
	f := newFixture(t)
	asset := f.mintApproved(1, seller)
	require.Equal(t, http.StatusCreated, f.do(t, seller, http.MethodPost, "/listings", map[string]interface{}{
		"contract": string(asset.Contract), "token_id": asset.TokenID, "price": 1000,
	}).Code)

	rec := f.do(t, seller, http.MethodPatch, listingPath(asset), map[string]interface{}{"price": 2500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, "", http.MethodGet, listingPath(asset), nil)
	var item market.ListedItem
	decodeBody(t, rec, &item)
	assert.Equal(t, uint64(2500), item.Listing.Price)

	// A zero price is rejected, not treated as cancel.
	rec = f.do(t, seller, http.MethodPatch, listingPath(asset), map[string]interface{}{"price": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)
	asset := f.mintApproved(1, seller)
	require.Equal(t, http.StatusCreated, f.do(t, seller, http.MethodPost, "/listings", map[string]interface{}{
		"contract": string(asset.Contract), "token_id": asset.TokenID, "price": 1000,
	}).Code)

	rec := f.do(t, seller, http.MethodDelete, listingPath(asset), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, "", http.MethodGet, listingPath(asset), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPurchaseProceedsAndWithdraw(t *testing.T) {
	f := newFixture(t)
	asset := f.mintApproved(1, seller)
	require.Equal(t, http.StatusCreated, f.do(t, seller, http.MethodPost, "/listings", map[string]interface{}{
		"contract": string(asset.Contract), "token_id": asset.TokenID, "price": 1000,
	}).Code)

	rec := f.do(t, buyer, http.MethodPost, listingPath(asset)+"/purchase", map[string]interface{}{
		"payment": 1200,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Overpayment is credited in full.
	rec = f.do(t, seller, http.MethodGet, "/proceeds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance struct {
		Balance uint64 `json:"balance"`
	}
	decodeBody(t, rec, &balance)
	assert.Equal(t, uint64(1200), balance.Balance)

	rec = f.do(t, seller, http.MethodPost, "/withdrawals", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var payout struct {
		Amount uint64 `json:"amount"`
	}
	decodeBody(t, rec, &payout)
	assert.Equal(t, uint64(1200), payout.Amount)
	assert.Equal(t, uint64(1200), f.payments.Paid(seller))

	// Nothing left to withdraw.
	rec = f.do(t, seller, http.MethodPost, "/withdrawals", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_proceeds")
}

func TestPurchaseTransferFailureSurfacesAsBadGateway(t *testing.T) {
	f := newFixture(t)
	asset := f.mintApproved(1, seller)
	require.Equal(t, http.StatusCreated, f.do(t, seller, http.MethodPost, "/listings", map[string]interface{}{
		"contract": string(asset.Contract), "token_id": asset.TokenID, "price": 1000,
	}).Code)

	f.provider.TransferErr = fmt.Errorf("rpc unavailable")
	rec := f.do(t, buyer, http.MethodPost, listingPath(asset)+"/purchase", map[string]interface{}{
		"payment": 1000,
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "transfer_failed")

	// The listing survives the failed purchase.
	rec = f.do(t, "", http.MethodGet, listingPath(asset), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownBodyFieldRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, seller, http.MethodPost, "/listings", map[string]interface{}{
		"contract": string(contract),
		"token_id": 1,
		"price":    100,
		"bogus":    true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
