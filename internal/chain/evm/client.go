// Package evm implements the chain capability interfaces against an
// ERC-721-compatible contract over JSON-RPC. Ownership and approval reads use
// eth_call; transfers and payouts are sent from the marketplace operator
// account and confirmed by polling for the transaction receipt.
package evm

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/crypto/sha3"
	"golang.org/x/time/rate"

	"github.com/nftbay/marketplace/internal/chain"
	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/pkg/logger"
)

// Method selectors, derived from the canonical signatures at start-up.
var (
	selOwnerOf      = selector("ownerOf(uint256)")
	selGetApproved  = selector("getApproved(uint256)")
	selTransferFrom = selector("transferFrom(address,address,uint256)")
)

func selector(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return hex.EncodeToString(h.Sum(nil)[:4])
}

// Config configures the client.
type Config struct {
	// Endpoint is the JSON-RPC HTTP endpoint.
	Endpoint string
	// Operator is the account transfers and payouts are sent from. It must be
	// the operator sellers approve on the asset contract.
	Operator market.Address
	// RequestsPerSecond throttles outbound RPC calls; 0 means 10 rps.
	RequestsPerSecond float64
	// ConfirmTimeout bounds receipt polling for a sent transaction.
	ConfirmTimeout time.Duration
	// PollInterval is the delay between receipt polls.
	PollInterval time.Duration
	// HTTPTimeout bounds a single RPC round trip.
	HTTPTimeout time.Duration
}

// Client talks to the asset contract and moves currency via JSON-RPC.
type Client struct {
	httpClient     *http.Client
	endpoint       string
	operator       market.Address
	limiter        *rate.Limiter
	confirmTimeout time.Duration
	pollInterval   time.Duration
	log            *logger.Logger
	requestID      atomic.Int64
}

var _ chain.AssetProvider = (*Client)(nil)
var _ chain.PaymentSender = (*Client)(nil)

// NewClient creates a client for the configured endpoint.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("evm: endpoint is required")
	}
	if market.Normalize(cfg.Operator) == "" {
		return nil, fmt.Errorf("evm: operator address is required")
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("evm-client")
	}
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		endpoint:       cfg.Endpoint,
		operator:       market.Normalize(cfg.Operator),
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		log:            log,
	}, nil
}

// OwnerOf returns the current owner of the asset.
func (c *Client) OwnerOf(ctx context.Context, asset market.AssetID) (market.Address, error) {
	data := "0x" + selOwnerOf + encodeUint64(asset.TokenID)
	result, err := c.call(ctx, "eth_call", map[string]string{
		"to":   string(asset.Contract),
		"data": data,
	}, "latest")
	if err != nil {
		return "", fmt.Errorf("ownerOf %s: %w", asset, err)
	}
	owner, err := decodeAddressWord(result.String())
	if err != nil {
		return "", fmt.Errorf("ownerOf %s: %w", asset, err)
	}
	if owner == zeroAddress {
		return "", fmt.Errorf("ownerOf %s: asset does not exist", asset)
	}
	return owner, nil
}

// ApprovedOperator returns the approved operator, or the empty address when
// nobody is approved.
func (c *Client) ApprovedOperator(ctx context.Context, asset market.AssetID) (market.Address, error) {
	data := "0x" + selGetApproved + encodeUint64(asset.TokenID)
	result, err := c.call(ctx, "eth_call", map[string]string{
		"to":   string(asset.Contract),
		"data": data,
	}, "latest")
	if err != nil {
		return "", fmt.Errorf("getApproved %s: %w", asset, err)
	}
	approved, err := decodeAddressWord(result.String())
	if err != nil {
		return "", fmt.Errorf("getApproved %s: %w", asset, err)
	}
	if approved == zeroAddress {
		return "", nil
	}
	return approved, nil
}

// Transfer moves the asset from seller to buyer via transferFrom, sent from
// the operator account, and waits for the transaction to be confirmed.
func (c *Client) Transfer(ctx context.Context, asset market.AssetID, from, to market.Address) error {
	data := "0x" + selTransferFrom + encodeAddress(from) + encodeAddress(to) + encodeUint64(asset.TokenID)
	txHash, err := c.sendTransaction(ctx, map[string]string{
		"from": string(c.operator),
		"to":   string(asset.Contract),
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("transfer %s: %w", asset, err)
	}
	if err := c.waitConfirmed(ctx, txHash); err != nil {
		return fmt.Errorf("transfer %s: %w", asset, err)
	}
	c.log.Infof("transferred %s from %s to %s (tx %s)", asset, from, to, txHash)
	return nil
}

// SendPayment pushes value from the operator account to the recipient.
func (c *Client) SendPayment(ctx context.Context, to market.Address, amount uint64) error {
	txHash, err := c.sendTransaction(ctx, map[string]string{
		"from":  string(c.operator),
		"to":    string(to),
		"value": fmt.Sprintf("0x%x", amount),
	})
	if err != nil {
		return fmt.Errorf("payment to %s: %w", to, err)
	}
	if err := c.waitConfirmed(ctx, txHash); err != nil {
		return fmt.Errorf("payment to %s: %w", to, err)
	}
	c.log.Infof("paid %d to %s (tx %s)", amount, to, txHash)
	return nil
}

func (c *Client) sendTransaction(ctx context.Context, tx map[string]string) (string, error) {
	result, err := c.call(ctx, "eth_sendTransaction", tx)
	if err != nil {
		return "", err
	}
	txHash := result.String()
	if txHash == "" {
		return "", fmt.Errorf("node returned no transaction hash")
	}
	return txHash, nil
}

func (c *Client) waitConfirmed(ctx context.Context, txHash string) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.call(ctx, "eth_getTransactionReceipt", txHash)
		if err != nil {
			return err
		}
		if receipt.Type != gjson.Null {
			status := receipt.Get("status").String()
			if status != "0x1" {
				return fmt.Errorf("transaction %s reverted (status %s)", txHash, status)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not confirmed: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// call performs one throttled JSON-RPC round trip and returns the result.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.requestID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return gjson.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("rpc %s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("rpc %s: status %d", method, resp.StatusCode)
	}

	if rpcErr := gjson.GetBytes(body, "error"); rpcErr.Exists() {
		return gjson.Result{}, fmt.Errorf("rpc %s: %s", method, rpcErr.Get("message").String())
	}
	return gjson.GetBytes(body, "result"), nil
}

const zeroAddress = market.Address("0x0000000000000000000000000000000000000000")

// encodeUint64 ABI-encodes the value as one 32-byte word.
func encodeUint64(v uint64) string {
	return fmt.Sprintf("%064x", v)
}

// encodeAddress ABI-encodes the address as one left-padded 32-byte word.
func encodeAddress(a market.Address) string {
	hexPart := strings.TrimPrefix(string(market.Normalize(a)), "0x")
	if len(hexPart) >= 64 {
		return hexPart[:64]
	}
	return strings.Repeat("0", 64-len(hexPart)) + hexPart
}

// decodeAddressWord extracts an address from a 32-byte eth_call return word.
func decodeAddressWord(word string) (market.Address, error) {
	hexPart := strings.TrimPrefix(word, "0x")
	if len(hexPart) < 64 {
		return "", fmt.Errorf("short return data %q", word)
	}
	return market.Normalize(market.Address("0x" + hexPart[24:64])), nil
}
