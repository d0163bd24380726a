// Package wallet holds the external signer capability and the single
// active session that every other component keys off.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/savegress/medledger/pkg/models"
)

// TxRequest is a prepared contract call for the signer to sign and send.
// The core never constructs signatures itself.
type TxRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Data string `json:"data"`
}

// Signer is the external signer capability. Implementations hold the
// keys; the core only ever sees addresses and transaction hashes.
type Signer interface {
	// ActiveAccount returns the currently selected account, or
	// ErrSignerUnavailable if no account is exposed.
	ActiveAccount(ctx context.Context) (string, error)
	// RequestConnection asks the holder to connect an account. Fails
	// with ErrUserRejected if the holder declines.
	RequestConnection(ctx context.Context) (string, error)
	// SignAndSend signs the call and submits it, returning the
	// transaction hash.
	SignAndSend(ctx context.Context, tx TxRequest) (string, error)
}

// Error code a wallet RPC returns when the holder rejects a request
const rpcCodeUserRejected = 4001

// RPCSigner talks to a node or wallet bridge that manages accounts
// (eth_accounts / eth_requestAccounts / eth_sendTransaction).
type RPCSigner struct {
	rpcURL     string
	httpClient *http.Client
}

// NewRPCSigner creates a signer backed by a wallet JSON-RPC endpoint
func NewRPCSigner(rpcURL string) *RPCSigner {
	return &RPCSigner{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom HTTP client
func (s *RPCSigner) WithHTTPClient(client *http.Client) *RPCSigner {
	s.httpClient = client
	return s
}

// ActiveAccount returns the first account the wallet exposes
func (s *RPCSigner) ActiveAccount(ctx context.Context) (string, error) {
	accounts, err := s.accounts(ctx, "eth_accounts")
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", models.ErrSignerUnavailable
	}
	return accounts[0], nil
}

// RequestConnection prompts the wallet to connect an account
func (s *RPCSigner) RequestConnection(ctx context.Context) (string, error) {
	accounts, err := s.accounts(ctx, "eth_requestAccounts")
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", models.ErrSignerUnavailable
	}
	return accounts[0], nil
}

// SignAndSend submits the call through the wallet and returns the hash
func (s *RPCSigner) SignAndSend(ctx context.Context, tx TxRequest) (string, error) {
	var hash string
	if err := s.call(ctx, "eth_sendTransaction", []interface{}{tx}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

func (s *RPCSigner) accounts(ctx context.Context, method string) ([]string, error) {
	var accounts []string
	if err := s.call(ctx, method, []interface{}{}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *RPCSigner) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrSignerUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", models.ErrSignerUnavailable, err)
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("%w: decode response: %v", models.ErrSignerUnavailable, err)
	}

	if rpcResp.Error != nil {
		if rpcResp.Error.Code == rpcCodeUserRejected {
			return fmt.Errorf("%w: %s", models.ErrUserRejected, rpcResp.Error.Message)
		}
		return fmt.Errorf("signer rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
