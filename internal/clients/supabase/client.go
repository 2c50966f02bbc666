// Package supabase provides a client for the hosted backend: GoTrue
// password-grant auth plus PostgREST resource collections. Every request
// carries the static project API key; data requests additionally carry the
// signed-in user's bearer token.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jtarrant/folio/internal/common"
	"github.com/jtarrant/folio/internal/interfaces"
	"github.com/jtarrant/folio/internal/models"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements the BackendClient and AuthClient interfaces.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter

	mu      sync.RWMutex
	session *models.Session
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new backend client for the given project URL and API key.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetSession installs the bearer credentials used on subsequent calls.
func (c *Client) SetSession(session *models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

func (c *Client) currentSession() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// APIError represents a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// IsAuthError returns true for 401 responses, which force a re-login: the
// client never refreshes tokens automatically.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// DecodeError represents a response whose JSON did not match the expected
// shape. The raw payload is kept for diagnosis and logged, never silently
// defaulted.
type DecodeError struct {
	Endpoint string
	Payload  []byte
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to parse response from %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// do performs a rate-limited request against a full endpoint path, decoding
// the JSON response into result when result is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s := c.currentSession(); s != nil && s.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	} else {
		// Anonymous calls (sign-in, sign-up) authenticate with the API key.
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("Backend API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(payload),
			Endpoint:   path,
		}
	}

	if result == nil {
		return nil
	}

	if err := json.Unmarshal(payload, result); err != nil {
		derr := &DecodeError{Endpoint: path, Payload: payload, Err: err}
		c.logger.Error().Str("path", path).Str("payload", string(payload)).Err(err).Msg("Response decode failed")
		return derr
	}

	return nil
}

// list fetches all rows of a table, ordered when order is non-empty.
func (c *Client) list(ctx context.Context, table, order string, result any) error {
	query := url.Values{}
	query.Set("select", "*")
	if order != "" {
		query.Set("order", order)
	}
	return c.do(ctx, http.MethodGet, "/rest/v1/"+table, query, nil, result)
}

// insert creates one row in a table. The backend echoes nothing back; rows
// are created with client-generated ids.
func (c *Client) insert(ctx context.Context, table string, row any) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/"+table, nil, row, nil)
}

// ListStocks retrieves the user's instrument records.
func (c *Client) ListStocks(ctx context.Context) ([]models.Stock, error) {
	var out []models.Stock
	if err := c.list(ctx, "stocks", "symbol.asc", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCashAccounts retrieves all cash accounts, archived ones included.
func (c *Client) ListCashAccounts(ctx context.Context) ([]models.CashAccount, error) {
	var out []models.CashAccount
	if err := c.list(ctx, "cash_accounts", "created_at.asc", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTransactionGroups retrieves all transaction groups.
func (c *Client) ListTransactionGroups(ctx context.Context) ([]models.TransactionGroup, error) {
	var out []models.TransactionGroup
	if err := c.list(ctx, "transaction_groups", "occurred_at.desc", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCashTransactions retrieves all cash ledger legs.
func (c *Client) ListCashTransactions(ctx context.Context) ([]models.CashTransaction, error) {
	var out []models.CashTransaction
	if err := c.list(ctx, "cash_transactions", "occurred_at.desc", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListStockTransactions retrieves all stock ledger legs.
func (c *Client) ListStockTransactions(ctx context.Context) ([]models.StockTransaction, error) {
	var out []models.StockTransaction
	if err := c.list(ctx, "stock_transactions", "trade_date.desc", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPositions retrieves the server-materialized positions.
func (c *Client) ListPositions(ctx context.Context) ([]models.Position, error) {
	var out []models.Position
	if err := c.list(ctx, "portfolio_positions", "symbol.asc", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCurrencyRates retrieves all currency rate rows, both directions and
// all observation dates; resolution happens client-side in the fx package.
func (c *Client) ListCurrencyRates(ctx context.Context) ([]models.CurrencyRate, error) {
	var out []models.CurrencyRate
	if err := c.list(ctx, "currency_rates", "as_of_date.desc", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPricePoints retrieves historical prices for one stock.
func (c *Client) ListPricePoints(ctx context.Context, stockID string) ([]models.PricePoint, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("stock_id", "eq."+stockID)
	query.Set("order", "price_date.asc")

	var out []models.PricePoint
	if err := c.do(ctx, http.MethodGet, "/rest/v1/price_points", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSettings retrieves the per-user portfolio settings row, or nil when the
// user has none yet.
func (c *Client) GetSettings(ctx context.Context) (*models.PortfolioSettings, error) {
	var out []models.PortfolioSettings
	if err := c.list(ctx, "portfolio_settings", "", &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// ListSnapshots returns one page of portfolio snapshots, newest first.
func (c *Client) ListSnapshots(ctx context.Context, opts interfaces.SnapshotQuery) ([]models.PortfolioSnapshot, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("order", "snapshot_date.desc")
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if !opts.Since.IsZero() {
		query.Set("snapshot_date", "gte."+opts.Since.Format("2006-01-02"))
	}

	var out []models.PortfolioSnapshot
	if err := c.do(ctx, http.MethodGet, "/rest/v1/portfolio_snapshots", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTransactionGroup creates the parent group row. It must complete
// before any leg referencing the group is submitted.
func (c *Client) CreateTransactionGroup(ctx context.Context, group *models.TransactionGroup) error {
	return c.insert(ctx, "transaction_groups", group)
}

// CreateCashTransaction creates one cash ledger leg.
func (c *Client) CreateCashTransaction(ctx context.Context, leg *models.CashTransaction) error {
	return c.insert(ctx, "cash_transactions", leg)
}

// CreateStockTransaction creates one stock ledger leg.
func (c *Client) CreateStockTransaction(ctx context.Context, leg *models.StockTransaction) error {
	return c.insert(ctx, "stock_transactions", leg)
}

// DeleteTransactionGroup removes a group row. Used only by the orphan
// reconciliation sweep; settled ledger data is never deleted by the client.
func (c *Client) DeleteTransactionGroup(ctx context.Context, groupID string) error {
	query := url.Values{}
	query.Set("id", "eq."+groupID)
	return c.do(ctx, http.MethodDelete, "/rest/v1/transaction_groups", query, nil, nil)
}

// CountGroupLegs returns how many cash and stock legs reference a group.
func (c *Client) CountGroupLegs(ctx context.Context, groupID string) (int, error) {
	count := 0
	for _, table := range []string{"cash_transactions", "stock_transactions"} {
		query := url.Values{}
		query.Set("select", "id")
		query.Set("group_id", "eq."+groupID)

		var rows []struct {
			ID string `json:"id"`
		}
		if err := c.do(ctx, http.MethodGet, "/rest/v1/"+table, query, nil, &rows); err != nil {
			return 0, err
		}
		count += len(rows)
	}
	return count, nil
}

// Ensure Client implements both client interfaces.
var (
	_ interfaces.BackendClient = (*Client)(nil)
	_ interfaces.AuthClient    = (*Client)(nil)
)
