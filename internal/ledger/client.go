// Package ledger is the typed read/write façade over the medical-record
// contract's call surface. Reads go straight to the node via eth_call;
// writes are encoded here and handed to the session's signer.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/savegress/medledger/internal/wallet"
	"github.com/savegress/medledger/pkg/models"
)

// Contract function selectors and event topics
var (
	ownerSelector                = computeSelector("owner()")
	isProviderAuthorizedSelector = computeSelector("isProviderAuthorized(address)")
	getMedicalRecordsSelector    = computeSelector("getMedicalRecords(string)")
	addMedicalRecordSelector     = computeSelector("addMedicalRecord(string,string,string,string,string)")
	authorizeProviderSelector    = computeSelector("authorizeProvider(address)")
	revokeProviderSelector       = computeSelector("revokeProvider(address)")

	// RecordAddedTopic identifies the event the contract emits for each
	// appended record.
	RecordAddedTopic = computeEventTopic("RecordAdded(string,uint256)")
)

// Selector for the standard revert payload Error(string)
const revertErrorSelector = "0x08c379a0"

// Client talks to one medical-record contract on one node
type Client struct {
	rpcURL     string
	contract   string
	httpClient *http.Client
}

// New creates a client for the contract at contractAddress
func New(rpcURL, contractAddress string) *Client {
	return &Client{
		rpcURL:   rpcURL,
		contract: contractAddress,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient sets a custom HTTP client
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// ContractAddress returns the contract this client is bound to
func (c *Client) ContractAddress() string {
	return c.contract
}

// ============================================================================
// READS
// ============================================================================

// Owner returns the ledger's designated owner address
func (c *Client) Owner(ctx context.Context) (string, error) {
	result, err := c.ethCall(ctx, ownerSelector)
	if err != nil {
		return "", err
	}
	return decodeAddress(result)
}

// IsProviderAuthorized reports whether address is an authorized provider.
// A false result is a valid answer, not an error.
func (c *Client) IsProviderAuthorized(ctx context.Context, address string) (bool, error) {
	result, err := c.ethCall(ctx, encodeAddressArg(isProviderAuthorizedSelector, address))
	if err != nil {
		return false, err
	}
	return decodeBool(result)
}

// GetMedicalRecords returns the patient's records, oldest first. A
// patient with no records yields an empty slice.
func (c *Client) GetMedicalRecords(ctx context.Context, patientID string) ([]models.MedicalRecord, error) {
	result, err := c.ethCall(ctx, encodeStringArgs(getMedicalRecordsSelector, patientID))
	if err != nil {
		return nil, err
	}
	return decodeRecords(result)
}

// ============================================================================
// WRITES
// ============================================================================

// AddMedicalRecord submits a record append through the session's signer
// and returns the transaction hash. Authorization is enforced at the
// ledger boundary, not here.
func (c *Client) AddMedicalRecord(ctx context.Context, session *wallet.Session, fields *models.RecordFields) (string, error) {
	data := encodeStringArgs(addMedicalRecordSelector,
		fields.PatientID, fields.PatientName, fields.Diagnosis, fields.Treatment, fields.Medication)
	return c.send(ctx, session, data)
}

// AuthorizeProvider submits a provider authorization
func (c *Client) AuthorizeProvider(ctx context.Context, session *wallet.Session, address string) (string, error) {
	return c.send(ctx, session, encodeAddressArg(authorizeProviderSelector, address))
}

// RevokeProvider submits a provider revocation
func (c *Client) RevokeProvider(ctx context.Context, session *wallet.Session, address string) (string, error) {
	return c.send(ctx, session, encodeAddressArg(revokeProviderSelector, address))
}

func (c *Client) send(ctx context.Context, session *wallet.Session, data string) (string, error) {
	if session == nil || !session.Active() {
		return "", models.ErrSignerUnavailable
	}
	return session.Signer().SignAndSend(ctx, wallet.TxRequest{
		From: session.Account(),
		To:   c.contract,
		Data: data,
	})
}

// ============================================================================
// CONFIRMATION
// ============================================================================

// Log is one event log entry from a transaction receipt
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// Receipt is the outcome the ledger reports for a mined transaction
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      bool
	Logs        []Log
}

type rawReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"`
	Logs            []Log  `json:"logs"`
}

// TransactionReceipt fetches the receipt for hash, or nil if the
// transaction has not been mined yet.
func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var raw *rawReceipt
	if err := rpcCall(ctx, c.httpClient, c.rpcURL, "eth_getTransactionReceipt", []interface{}{hash}, &raw); err != nil {
		var rpcErr *rpcError
		if asRPCError(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %v", models.ErrLedgerUnreachable, err)
		}
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	return &Receipt{
		TxHash:      raw.TransactionHash,
		BlockNumber: parseHexUint(raw.BlockNumber),
		Status:      parseHexUint(raw.Status) == 1,
		Logs:        raw.Logs,
	}, nil
}

// WaitForReceipt polls for the receipt until the context expires.
// Context expiry is classified ErrConfirmationTimeout: the transaction
// is out of our hands and its true outcome stays unresolved.
func (c *Client) WaitForReceipt(ctx context.Context, hash string, pollInterval time.Duration) (*Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", models.ErrConfirmationTimeout, hash)
			}
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", models.ErrConfirmationTimeout, hash)
		case <-ticker.C:
		}
	}
}

// RevertReason replays a failed transaction's call via eth_call at its
// block and decodes the standard Error(string) payload. Returns the
// empty string when no reason can be recovered.
func (c *Client) RevertReason(ctx context.Context, hash string) string {
	var tx struct {
		From        string `json:"from"`
		To          string `json:"to"`
		Input       string `json:"input"`
		BlockNumber string `json:"blockNumber"`
	}
	if err := rpcCall(ctx, c.httpClient, c.rpcURL, "eth_getTransactionByHash", []interface{}{hash}, &tx); err != nil {
		return ""
	}
	if tx.To == "" {
		return ""
	}

	block := "latest"
	if tx.BlockNumber != "" {
		block = tx.BlockNumber
	}

	var result string
	err := rpcCall(ctx, c.httpClient, c.rpcURL, "eth_call", []interface{}{
		map[string]string{"from": tx.From, "to": tx.To, "data": tx.Input},
		block,
	}, &result)
	if err == nil {
		return ""
	}

	var rpcErr *rpcError
	if asRPCError(err, &rpcErr) {
		if reason := decodeRevertReason(rpcErr.Data); reason != "" {
			return reason
		}
		return rpcErr.Message
	}
	return ""
}

// decodeRevertReason extracts the string from an Error(string) payload
func decodeRevertReason(data string) string {
	if !strings.HasPrefix(data, revertErrorSelector) {
		return ""
	}
	body, err := resultBytes("0x" + strings.TrimPrefix(data, revertErrorSelector))
	if err != nil || len(body) < wordSize*2 {
		return ""
	}
	offset, err := wordInt(body, 0)
	if err != nil {
		return ""
	}
	reason, err := decodeStringAt(body, offset)
	if err != nil {
		return ""
	}
	return reason
}

// RecordIDFromReceipt extracts the ledger-assigned record id from the
// RecordAdded event, if the receipt carries one.
func RecordIDFromReceipt(receipt *Receipt) *int64 {
	if receipt == nil {
		return nil
	}
	for _, entry := range receipt.Logs {
		if len(entry.Topics) == 0 || !strings.EqualFold(entry.Topics[0], RecordAddedTopic) {
			continue
		}
		data, err := resultBytes(entry.Data)
		if err != nil || len(data) < wordSize {
			continue
		}
		n, err := word(data, 0)
		if err != nil {
			continue
		}
		id := n.Int64()
		return &id
	}
	return nil
}

func (c *Client) ethCall(ctx context.Context, data string) (string, error) {
	var result string
	err := rpcCall(ctx, c.httpClient, c.rpcURL, "eth_call", []interface{}{
		map[string]string{"to": c.contract, "data": data},
		"latest",
	}, &result)
	if err != nil {
		var rpcErr *rpcError
		if asRPCError(err, &rpcErr) {
			return "", fmt.Errorf("%w: %s", models.ErrLedgerUnreachable, rpcErr.Message)
		}
		return "", err
	}
	return result, nil
}

func parseHexUint(s string) uint64 {
	n := new(big.Int)
	n.SetString(strings.TrimPrefix(s, "0x"), 16)
	return n.Uint64()
}

func asRPCError(err error, target **rpcError) bool {
	return errors.As(err, target)
}
