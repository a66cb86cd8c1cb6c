// Package httpapi exposes the marketplace engine over a REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/internal/marketplace"
	"github.com/nftbay/marketplace/internal/metrics"
	"github.com/nftbay/marketplace/internal/middleware"
	"github.com/nftbay/marketplace/pkg/logger"
)

// handler bundles the HTTP endpoints over the trading engine.
type handler struct {
	engine  *marketplace.Service
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewHandler returns a router exposing the marketplace REST API. metrics may
// be nil.
func NewHandler(engine *marketplace.Service, m *metrics.Metrics, log *logger.Logger) *mux.Router {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{engine: engine, metrics: m, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/listings", h.listListings).Methods(http.MethodGet)
	r.HandleFunc("/listings", h.createListing).Methods(http.MethodPost)
	r.HandleFunc("/listings/{contract}/{tokenID:[0-9]+}", h.getListing).Methods(http.MethodGet)
	r.HandleFunc("/listings/{contract}/{tokenID:[0-9]+}", h.updateListing).Methods(http.MethodPatch)
	r.HandleFunc("/listings/{contract}/{tokenID:[0-9]+}", h.cancelListing).Methods(http.MethodDelete)
	r.HandleFunc("/listings/{contract}/{tokenID:[0-9]+}/purchase", h.purchase).Methods(http.MethodPost)
	r.HandleFunc("/proceeds", h.proceeds).Methods(http.MethodGet)
	r.HandleFunc("/withdrawals", h.withdraw).Methods(http.MethodPost)
	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listListings(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.Listings(r.Context())
	if err != nil {
		h.writeEngineError(w, "list", err)
		return
	}
	if items == nil {
		items = []market.ListedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) getListing(w http.ResponseWriter, r *http.Request) {
	asset, ok := assetFromRequest(w, r)
	if !ok {
		return
	}
	listing, err := h.engine.GetListing(r.Context(), asset)
	if err != nil {
		h.writeEngineError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, market.ListedItem{Asset: asset, Listing: listing})
}

func (h *handler) createListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var payload struct {
		Contract string `json:"contract"`
		TokenID  uint64 `json:"token_id"`
		Price    uint64 `json:"price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if payload.Contract == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("contract is required"))
		return
	}

	asset := market.AssetID{Contract: market.Normalize(market.Address(payload.Contract)), TokenID: payload.TokenID}
	if err := h.engine.ListItem(r.Context(), asset, payload.Price, caller); err != nil {
		h.writeEngineError(w, "list", err)
		return
	}
	writeJSON(w, http.StatusCreated, market.ListedItem{
		Asset:   asset,
		Listing: market.Listing{Seller: caller, Price: payload.Price},
	})
}

func (h *handler) updateListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	asset, ok := assetFromRequest(w, r)
	if !ok {
		return
	}

	var payload struct {
		Price uint64 `json:"price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if err := h.engine.UpdateListing(r.Context(), asset, payload.Price, caller); err != nil {
		h.writeEngineError(w, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, market.ListedItem{
		Asset:   asset,
		Listing: market.Listing{Seller: caller, Price: payload.Price},
	})
}

func (h *handler) cancelListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	asset, ok := assetFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.engine.CancelListing(r.Context(), asset, caller); err != nil {
		h.writeEngineError(w, "cancel", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) purchase(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	asset, ok := assetFromRequest(w, r)
	if !ok {
		return
	}

	var payload struct {
		Payment uint64 `json:"payment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if err := h.engine.BuyItem(r.Context(), asset, payload.Payment, caller); err != nil {
		h.writeEngineError(w, "buy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset": asset,
		"buyer": caller,
	})
}

func (h *handler) proceeds(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	balance, err := h.engine.Proceeds(r.Context(), caller)
	if err != nil {
		h.writeEngineError(w, "proceeds", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"seller":  caller,
		"balance": balance,
	})
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	amount, err := h.engine.Withdraw(r.Context(), caller)
	if err != nil {
		h.writeEngineError(w, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"seller": caller,
		"amount": amount,
	})
}

// engineErrorStatus maps engine sentinels to an HTTP status and a stable
// machine-readable code clients can branch on.
func engineErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, marketplace.ErrPriceMustBePositive):
		return http.StatusBadRequest, "price_must_be_positive"
	case errors.Is(err, marketplace.ErrAlreadyListed):
		return http.StatusConflict, "already_listed"
	case errors.Is(err, marketplace.ErrNotListed):
		return http.StatusNotFound, "not_listed"
	case errors.Is(err, marketplace.ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, marketplace.ErrNotApproved):
		return http.StatusConflict, "not_approved"
	case errors.Is(err, marketplace.ErrPriceNotMet):
		return http.StatusPaymentRequired, "price_not_met"
	case errors.Is(err, marketplace.ErrNoProceeds):
		return http.StatusConflict, "no_proceeds"
	case errors.Is(err, marketplace.ErrTransferFailed):
		return http.StatusBadGateway, "transfer_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *handler) writeEngineError(w http.ResponseWriter, operation string, err error) {
	status, code := engineErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Errorf("%s failed", operation)
	}
	if h.metrics != nil {
		h.metrics.RecordOperationError(operation, code)
	}
	writeError(w, status, code, err)
}

func requireCaller(w http.ResponseWriter, r *http.Request) (market.Address, bool) {
	caller, ok := middleware.Caller(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", errors.New("authentication required"))
		return "", false
	}
	return caller, true
}

func assetFromRequest(w http.ResponseWriter, r *http.Request) (market.AssetID, bool) {
	vars := mux.Vars(r)
	tokenID, err := strconv.ParseUint(vars["tokenID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return market.AssetID{}, false
	}
	return market.AssetID{
		Contract: market.Normalize(market.Address(vars["contract"])),
		TokenID:  tokenID,
	}, true
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "error": err.Error()})
}
