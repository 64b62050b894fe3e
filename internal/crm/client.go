// Package crm provides the Salesforce REST client used by the order sync.
// It exposes the bulk account scan, the point queries used for matching, and
// record create/update calls. Failures are classified into RejectionError,
// TransportError and unclassified errors so callers can apply their retry policy.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/straye-as/order-sync/internal/config"
	"github.com/straye-as/order-sync/internal/retry"
	"go.uber.org/zap"
)

const (
	// DefaultAPIVersion is used when no API version is configured
	DefaultAPIVersion = "v59.0"

	// DefaultRequestTimeout is the default per-request timeout
	DefaultRequestTimeout = 30 * time.Second

	// maxResponseSize bounds every response body read (10MB)
	maxResponseSize = 10 * 1024 * 1024
)

// Client is a Salesforce REST API client.
// It authenticates lazily and re-authenticates once when a session expires.
type Client struct {
	http       *http.Client
	auth       Authenticator
	apiVersion string
	logger     *zap.Logger

	mu      sync.Mutex
	session *Session
}

// NewClient creates a CRM client from configuration. It does not contact the CRM;
// call Connect to authenticate eagerly.
func NewClient(cfg *config.CRMConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("crm config is required")
	}

	auth, err := NewAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeoutDuration()
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return NewClientWithAuth(auth, cfg.APIVersion, &http.Client{Timeout: timeout}, logger), nil
}

// NewClientWithAuth creates a client with an explicit authenticator and HTTP client
func NewClientWithAuth(auth Authenticator, apiVersion string, httpClient *http.Client, logger *zap.Logger) *Client {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &Client{
		http:       httpClient,
		auth:       auth,
		apiVersion: apiVersion,
		logger:     logger,
	}
}

// Connect authenticates and stores a new session
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrClientNotInitialized
	}
	_, err := c.refreshSession(ctx)
	return err
}

// ConnectWithRetry authenticates through policy. Attempts stop once ctx is cancelled;
// a sleep already started completes first.
func (c *Client) ConnectWithRetry(ctx context.Context, policy *retry.Policy) error {
	if policy == nil {
		return c.Connect(ctx)
	}
	return policy.Do(ctx, "crm.connect", func(attemptCtx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.Connect(attemptCtx)
	})
}

// Close ends the client session. The REST session is left to expire on the CRM side.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.logger.Info("CRM session ended")
}

func (c *Client) currentSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		return s, nil
	}
	return c.refreshSession(ctx)
}

func (c *Client) refreshSession(ctx context.Context) (*Session, error) {
	c.logger.Info("Connecting to CRM")
	s, err := c.auth.Authenticate(ctx, c.http)
	if err != nil {
		c.logger.Error("CRM authentication failed", zap.Error(err))
		return nil, fmt.Errorf("crm authentication failed: %w", err)
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	c.logger.Info("Successfully connected to CRM", zap.String("instance_url", s.InstanceURL))
	return s, nil
}

// do sends a request to the instance and decodes a JSON response into out (if non-nil).
// path is either a path relative to the versioned data API ("sobjects/Account")
// or an absolute path starting with "/services/".
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c == nil {
		return ErrClientNotInitialized
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	session, err := c.currentSession(ctx)
	if err != nil {
		return err
	}

	status, respBody, err := c.send(ctx, session, method, path, payload)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		c.logger.Info("CRM session expired, re-authenticating")
		session, err = c.refreshSession(ctx)
		if err != nil {
			return err
		}
		status, respBody, err = c.send(ctx, session, method, path, payload)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return classifyResponse(status, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode crm response: %w", err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, session *Session, method, path string, payload []byte) (int, []byte, error) {
	endpoint := c.resolve(session, path)

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("CRM request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, &TransportError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Debug("CRM request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return resp.StatusCode, respBody, nil
}

func (c *Client) resolve(session *Session, path string) string {
	if strings.HasPrefix(path, "/services/") {
		return session.InstanceURL + path
	}
	return session.InstanceURL + "/services/data/" + c.apiVersion + "/" + strings.TrimLeft(path, "/")
}

type queryResponse struct {
	TotalSize      int               `json:"totalSize"`
	Done           bool              `json:"done"`
	NextRecordsURL string            `json:"nextRecordsUrl"`
	Records        []json.RawMessage `json:"records"`
}

// Query runs a SOQL query and follows pagination until every record is read
func (c *Client) Query(ctx context.Context, soql string) ([]json.RawMessage, error) {
	var records []json.RawMessage

	var page queryResponse
	if err := c.do(ctx, http.MethodGet, "query?q="+url.QueryEscape(soql), nil, &page); err != nil {
		return nil, err
	}
	records = append(records, page.Records...)

	for !page.Done && page.NextRecordsURL != "" {
		next := page.NextRecordsURL
		page = queryResponse{}
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
	}

	return records, nil
}

func queryInto[T any](ctx context.Context, c *Client, soql string) ([]T, error) {
	raw, err := c.Query(ctx, soql)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Client) firstID(ctx context.Context, soql string) (string, error) {
	rows, err := queryInto[recordID](ctx, c, soql)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].ID, nil
}

// QueryAccounts returns every non-deleted account with its customer identity fields
func (c *Client) QueryAccounts(ctx context.Context) ([]Account, error) {
	return queryInto[Account](ctx, c, accountScanQuery)
}

// FindAccount looks up one account by customer number and division number.
// It returns nil when no account matches.
func (c *Client) FindAccount(ctx context.Context, customerNumber, divisionNumber string) (*Account, error) {
	rows, err := queryInto[Account](ctx, c, accountByCustomerQuery(customerNumber, divisionNumber))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// FindOrderByInvoice returns the id of the sales order with the invoice number, or ""
func (c *Client) FindOrderByInvoice(ctx context.Context, invoiceNumber string) (string, error) {
	return c.firstID(ctx, orderByInvoiceQuery(invoiceNumber))
}

// FindOrderByNumber returns the id of the sales order with the order number, or ""
func (c *Client) FindOrderByNumber(ctx context.Context, orderNumber string) (string, error) {
	return c.firstID(ctx, orderByNumberQuery(orderNumber))
}

// FindLineItem returns the id of the order item with the parent order and product code, or ""
func (c *Client) FindLineItem(ctx context.Context, parentID, productCode string) (string, error) {
	return c.firstID(ctx, lineItemQuery(parentID, productCode))
}

type createResponse struct {
	ID      string        `json:"id"`
	Success bool          `json:"success"`
	Errors  []ErrorDetail `json:"errors"`
}

// Create inserts a record and returns its id
func (c *Client) Create(ctx context.Context, objectType string, fields Fields) (string, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "sobjects/"+objectType+"/", fields, &resp); err != nil {
		return "", err
	}
	if len(resp.Errors) > 0 {
		return "", &RejectionError{StatusCode: http.StatusOK, Details: resp.Errors}
	}
	if resp.ID == "" {
		return "", errors.New("crm create returned no id")
	}
	return resp.ID, nil
}

// Update patches the given fields of an existing record
func (c *Client) Update(ctx context.Context, objectType, id string, fields Fields) error {
	return c.do(ctx, http.MethodPatch, "sobjects/"+objectType+"/"+url.PathEscape(id), fields, nil)
}
