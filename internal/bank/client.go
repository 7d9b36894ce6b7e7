package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultlink/vaultlink/internal/game"
	"github.com/vaultlink/vaultlink/internal/money"
)

// codeInsufficientFunds is the error code the bank API uses to mark a
// business rejection; everything else is treated as a transport failure.
const codeInsufficientFunds = "insufficient_funds"

// Client talks to the remote bank API. It implements Ledger and Loans.
// Retries and backoff are owned by the hosting transport layer, not here.
type Client struct {
	baseURL  string
	serverID string
	apiKey   string
	http     *http.Client

	mu    sync.Mutex
	token string
}

// NewClient constructs a bank API client for a registered game server.
func NewClient(baseURL, serverID, apiKey string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		serverID: serverID,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

type transactionRequest struct {
	Amount     string `json:"amount"`
	Reason     string `json:"reason"`
	ClientTxID string `json:"client_tx_id,omitempty"`
}

type loanRequest struct {
	Lender      string    `json:"lender"`
	Borrower    string    `json:"borrower"`
	RepayAmount string    `json:"repay_amount"`
	DueDate     time.Time `json:"due_date"`
	Collateral  string    `json:"collateral"`
}

type loanResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *Client) Balance(ctx context.Context, account game.PlayerID) (money.Amount, error) {
	var resp balanceResponse
	path := fmt.Sprintf("/api/v1/accounts/%s/balance", url.PathEscape(string(account)))
	if err := c.call(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return money.Zero(), err
	}
	return parseBalance(resp.Balance)
}

func (c *Client) Deposit(ctx context.Context, tx Transaction) (money.Amount, error) {
	return c.post(ctx, "deposit", tx)
}

func (c *Client) Withdraw(ctx context.Context, tx Transaction) (money.Amount, error) {
	return c.post(ctx, "withdraw", tx)
}

func (c *Client) post(ctx context.Context, op string, tx Transaction) (money.Amount, error) {
	idemKey := tx.ClientTxID
	if idemKey == "" {
		idemKey = uuid.NewString()
	}
	req := transactionRequest{Amount: tx.Amount.String(), Reason: tx.Reason, ClientTxID: tx.ClientTxID}
	path := fmt.Sprintf("/api/v1/accounts/%s/%s", url.PathEscape(string(tx.Account)), op)
	var resp balanceResponse
	if err := c.call(ctx, http.MethodPost, path, idemKey, req, &resp); err != nil {
		return money.Zero(), err
	}
	return parseBalance(resp.Balance)
}

func (c *Client) CreateLoan(ctx context.Context, contract Contract) (Record, error) {
	req := loanRequest{
		Lender:      string(contract.Lender),
		Borrower:    string(contract.Borrower),
		RepayAmount: contract.RepayAmount.String(),
		DueDate:     contract.DueDate,
		Collateral:  contract.Collateral,
	}
	var resp loanResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/loans", uuid.NewString(), req, &resp); err != nil {
		return Record{}, err
	}
	return Record{ID: resp.ID, CreatedAt: resp.CreatedAt}, nil
}

// call performs one authenticated request, refreshing the bearer token once
// if the bank rejects the cached one.
func (c *Client) call(ctx context.Context, method, path, idemKey string, body, out any) error {
	status, err := c.do(ctx, method, path, idemKey, body, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.dropToken()
		status, err = c.do(ctx, method, path, idemKey, body, out)
		if err != nil {
			return err
		}
	}
	if status == http.StatusUnauthorized {
		return Transportf("bank rejected credentials")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, idemKey string, body, out any) (int, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return 0, err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, Transportf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, Transportf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, nil
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, Transportf("read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Code == codeInsufficientFunds {
			return resp.StatusCode, ErrInsufficientFunds
		}
		return resp.StatusCode, Transportf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return 0, Transportf("decode response: %v", err)
		}
	}
	return resp.StatusCode, nil
}

// bearer returns the cached token, authenticating first when needed.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	raw, err := json.Marshal(map[string]string{"server_id": c.serverID, "api_key": c.apiKey})
	if err != nil {
		return "", fmt.Errorf("encode auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/token", bytes.NewReader(raw))
	if err != nil {
		return "", Transportf("build auth request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", Transportf("auth: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", Transportf("auth: status %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Token == "" {
		return "", Transportf("auth: bad token response")
	}
	c.token = body.Token
	return c.token, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func parseBalance(raw string) (money.Amount, error) {
	amount, err := money.Parse(raw)
	if err != nil {
		return money.Zero(), Transportf("bad balance %q: %v", raw, err)
	}
	return amount, nil
}
