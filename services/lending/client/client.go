package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakelend/core/types"
	"stakelend/crypto"
	"stakelend/services/lending/server"
)

const defaultTimeout = 15 * time.Second

// Client provides a thin wrapper around the lending service HTTP API.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lending api: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("lending api: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Receipt is a committed transaction. Result holds the operation specific
// view and can be decoded with DecodeResult.
type Receipt struct {
	TxHash string          `json:"txHash"`
	Type   string          `json:"type"`
	Sender crypto.Address  `json:"sender"`
	Nonce  uint64          `json:"nonce"`
	Result json.RawMessage `json:"result,omitempty"`
}

// DecodeResult unmarshals the receipt result into dst.
func (r *Receipt) DecodeResult(dst interface{}) error {
	if len(r.Result) == 0 {
		return errors.New("lending api: receipt has no result")
	}
	return json.Unmarshal(r.Result, dst)
}

// New constructs a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("lending api: base url required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("lending api: parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("lending api: unsupported scheme %q", parsed.Scheme)
	}
	c := &Client{
		base: parsed,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit posts a signed transaction.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, errors.New("lending api: nil transaction")
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	var receipt Receipt
	if err := c.do(ctx, http.MethodPost, "/v1/tx", nil, body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// SignAndSubmit fetches the signer's next nonce, signs the payload and
// submits it.
func (c *Client) SignAndSubmit(ctx context.Context, key *crypto.PrivateKey, txType types.TxType, payload interface{}) (*Receipt, error) {
	if key == nil {
		return nil, errors.New("lending api: signing key required")
	}
	balance, err := c.Balance(ctx, key.PubKey().Address())
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	tx, err := types.NewTransaction(txType, balance.Nonce, payload)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(key); err != nil {
		return nil, err
	}
	return c.Submit(ctx, tx)
}

// Protocol returns the protocol parameters and totals.
func (c *Client) Protocol(ctx context.Context) (*server.ProtocolView, error) {
	var view server.ProtocolView
	if err := c.do(ctx, http.MethodGet, "/v1/protocol", nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Account returns the lending account of addr.
func (c *Client) Account(ctx context.Context, addr crypto.Address) (*server.AccountView, error) {
	var view server.AccountView
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+addr.String(), nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Loans lists every loan taken by borrower.
func (c *Client) Loans(ctx context.Context, borrower crypto.Address) ([]server.LoanView, error) {
	var views []server.LoanView
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+borrower.String()+"/loans", nil, nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// Loan returns a single loan.
func (c *Client) Loan(ctx context.Context, borrower crypto.Address, index uint64) (*server.LoanView, error) {
	var view server.LoanView
	path := "/v1/loans/" + borrower.String() + "/" + strconv.FormatUint(index, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Balance returns the stable asset balance and next nonce of addr.
func (c *Client) Balance(ctx context.Context, addr crypto.Address) (*server.BalanceView, error) {
	var view server.BalanceView
	if err := c.do(ctx, http.MethodGet, "/v1/balances/"+addr.String(), nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// History returns the newest indexed activity of addr. A non-positive limit
// uses the server default.
func (c *Client) History(ctx context.Context, addr crypto.Address, limit int) ([]server.ActivityView, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var views []server.ActivityView
	if err := c.do(ctx, http.MethodGet, "/v1/history/"+addr.String(), query, nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	endpoint := *c.base
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lending api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload server.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Message
		}
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("lending api: decode response: %w", err)
	}
	return nil
}
