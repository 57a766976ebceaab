package clickhouse

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

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrClickHouseResponse = errors.New("clickhouse error")
	ErrEmptyQuery         = errors.New("query is empty")
	// ErrUnavailable marks transport failures and gateway errors, which are retried
	ErrUnavailable = errors.New("clickhouse unavailable")
)

// clickhouseResponse represents the JSON response from ClickHouse HTTP interface.
type clickhouseResponse struct {
	Data []map[string]any `json:"data"`
	Meta []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"meta"`
	Rows     int `json:"rows"`
	RowsRead int `json:"rows_read"` //nolint:tagliatelle // ClickHouse API uses snake_case
}

// ClientInterface defines the methods for interacting with ClickHouse
type ClientInterface interface {
	// Query executes a SELECT and returns its rows as column maps
	Query(ctx context.Context, query string) ([]map[string]any, error)
	// Execute runs a query and returns the raw response body
	Execute(ctx context.Context, query string) ([]byte, error)
	// Start initializes the client
	Start() error
	// Stop closes the client
	Stop() error
}

// client implements the ClientInterface using HTTP
type client struct {
	log          logrus.FieldLogger
	httpClient   *http.Client
	endpoint     string
	username     string
	password     string
	debug        bool
	queryTimeout time.Duration
	maxRetries   uint64
	retryBackoff time.Duration
}

// NewClient creates a new HTTP-based ClickHouse client
func NewClient(logger logrus.FieldLogger, cfg *Config) (ClientInterface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.SetDefaults()

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     cfg.KeepAlive,
		DisableKeepAlives:   false,
	}

	return &client{
		log:          logger.WithField("component", "clickhouse-http"),
		httpClient:   &http.Client{Transport: transport},
		endpoint:     buildEndpoint(cfg),
		username:     cfg.Username,
		password:     cfg.Password,
		debug:        cfg.Debug,
		queryTimeout: cfg.QueryTimeout,
		maxRetries:   uint64(cfg.MaxRetries), //nolint:gosec // validated non-negative
		retryBackoff: cfg.RetryBackoff,
	}, nil
}

func buildEndpoint(cfg *Config) string {
	u, _ := url.Parse(strings.TrimRight(cfg.URL, "/"))

	q := u.Query()
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}

	// 64 bit integers come back as JSON numbers instead of strings
	q.Set("output_format_json_quote_64bit_integers", "0")

	if cfg.MaxResultRows > 0 {
		q.Set("max_result_rows", strconv.FormatUint(cfg.MaxResultRows, 10))
		q.Set("result_overflow_mode", "throw")
	}

	u.RawQuery = q.Encode()

	return u.String()
}

func (c *client) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.Execute(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	c.log.Info("Connected to ClickHouse HTTP interface")

	return nil
}

func (c *client) Stop() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}

	c.log.Info("Closed ClickHouse HTTP client")

	return nil
}

// Query runs query with FORMAT JSON. Numbers are decoded as json.Number so
// large integers and decimals keep their exact text.
func (c *client) Query(ctx context.Context, query string) ([]map[string]any, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	if trimmed == "" {
		return nil, ErrEmptyQuery
	}

	resp, err := c.executeWithRetry(ctx, trimmed+" FORMAT JSON")
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	var result clickhouseResponse

	dec := json.NewDecoder(bytes.NewReader(resp))
	dec.UseNumber()

	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Data == nil {
		return []map[string]any{}, nil
	}

	return result.Data, nil
}

func (c *client) Execute(ctx context.Context, query string) ([]byte, error) {
	body, err := c.executeWithRetry(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	return body, nil
}

// executeWithRetry retries ErrUnavailable failures with exponential backoff.
// Query errors reported by the server are returned immediately.
func (c *client) executeWithRetry(ctx context.Context, query string) ([]byte, error) {
	if c.maxRetries == 0 {
		return c.executeHTTPRequest(ctx, query, c.getTimeout(ctx))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBackoff
	bo.MaxElapsedTime = 0

	var body []byte

	operation := func() error {
		var err error

		body, err = c.executeHTTPRequest(ctx, query, c.getTimeout(ctx))
		if err != nil && (!errors.Is(err, ErrUnavailable) || ctx.Err() != nil) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		c.log.WithError(err).WithField("retry_in", wait).Warn("ClickHouse request failed, retrying")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx), notify); err != nil {
		return nil, err
	}

	return body, nil
}

func (c *client) executeHTTPRequest(ctx context.Context, query string, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "text/plain")

	if c.username != "" {
		req.Header.Set("X-ClickHouse-User", c.username)
		req.Header.Set("X-ClickHouse-Key", c.password)
	}

	if c.debug {
		logQuery := query
		if len(query) > 1000 {
			logQuery = query[:1000] + "... (truncated)"
		}

		c.log.WithField("query", logQuery).Debug("Executing ClickHouse query")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", ErrUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w (status %d): %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Exception string `json:"exception"`
		}

		if jsonErr := json.Unmarshal(body, &errorResp); jsonErr == nil && errorResp.Exception != "" {
			return nil, fmt.Errorf("%w (status %d): %s", ErrClickHouseResponse, resp.StatusCode, errorResp.Exception)
		}

		return nil, fmt.Errorf("%w (status %d): %s", ErrClickHouseResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if c.debug && len(body) < 1000 {
		c.log.WithField("response", string(body)).Debug("ClickHouse response")
	}

	return body, nil
}

func (c *client) getTimeout(ctx context.Context) time.Duration {
	// Check if context already has a deadline
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}

	return c.queryTimeout
}
