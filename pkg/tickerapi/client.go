// Package tickerapi is a Go client for the stock-data backend REST API:
// tracked symbols, historical data, downloads, CSV import and technical
// analysis.
package tickerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when a request exceeds the client timeout.
var ErrTimeout = errors.New("request timeout")

// APIError is a failure reported by the backend, either as a non-2xx reply
// or as a 2xx reply whose status is "error".
type APIError struct {
	StatusCode int
	Status     Status
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a new backend API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListTickers returns the configured symbols.
func (c *Client) ListTickers(ctx context.Context) (*TickerConfig, error) {
	var out TickerConfig
	if err := c.do(ctx, http.MethodGet, "/api/tickers", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TickersStatus returns the data status of every configured symbol.
func (c *Client) TickersStatus(ctx context.Context) ([]TickerStatus, error) {
	var out []TickerStatus
	if err := c.do(ctx, http.MethodGet, "/api/tickers/status", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TickerDetails returns metadata for one symbol.
func (c *Client) TickerDetails(ctx context.Context, symbol string) (*Details, error) {
	var out Details
	if err := c.do(ctx, http.MethodGet, "/api/ticker/"+url.PathEscape(symbol)+"/details", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DataOptions select the slice of history to fetch.
type DataOptions struct {
	Limit   int
	Version string
}

// TickerData returns historical bars for one symbol. Limit defaults to 20
// and Version to "adjusted".
func (c *Client) TickerData(ctx context.Context, symbol string, opts DataOptions) (*DataResponse, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Version == "" {
		opts.Version = "adjusted"
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.Limit))
	q.Set("version", opts.Version)

	var out DataResponse
	path := "/api/ticker/" + url.PathEscape(symbol) + "/data?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddTicker starts tracking symbol.
func (c *Client) AddTicker(ctx context.Context, symbol string) (*Result, error) {
	body, err := json.Marshal(map[string]string{"ticker": strings.ToUpper(strings.TrimSpace(symbol))})
	if err != nil {
		return nil, fmt.Errorf("marshal add request: %w", err)
	}
	var out Result
	if err := c.do(ctx, http.MethodPost, "/api/tickers", bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveTicker stops tracking symbol and deletes its data.
func (c *Client) RemoveTicker(ctx context.Context, symbol string) (*Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodDelete, "/api/tickers/"+url.PathEscape(symbol), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadTicker refreshes the stored data of one symbol.
func (c *Client) DownloadTicker(ctx context.Context, symbol string) (*Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodGet, "/api/download/"+url.PathEscape(symbol), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadAll refreshes every configured symbol.
func (c *Client) DownloadAll(ctx context.Context) (*Result, error) {
	var out Result
	if err := c.do(ctx, http.MethodGet, "/api/download/all", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestConnection checks the backend's upstream connectivity.
func (c *Client) TestConnection(ctx context.Context) (*ConnectionResult, error) {
	var out ConnectionResult
	if err := c.do(ctx, http.MethodGet, "/api/test/connection", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadOptions are the flags sent with a CSV upload.
type UploadOptions struct {
	DownloadData    bool
	ReplaceExisting bool
}

// UploadCSV sends a CSV file as multipart form field csvFile.
func (c *Client) UploadCSV(ctx context.Context, filename string, r io.Reader, opts UploadOptions) (*Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("csvFile", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("copy csv: %w", err)
	}
	if err := mw.WriteField("downloadData", strconv.FormatBool(opts.DownloadData)); err != nil {
		return nil, err
	}
	if err := mw.WriteField("replaceExisting", strconv.FormatBool(opts.ReplaceExisting)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var out Result
	if err := c.do(ctx, http.MethodPost, "/api/upload/csv", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns the dashboard statistics block as loosely typed JSON.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Activities returns the backend activity feed.
func (c *Client) Activities(ctx context.Context) ([]Activity, error) {
	var out []Activity
	if err := c.do(ctx, http.MethodGet, "/api/activities", nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Levels returns support and resistance levels for all symbols.
func (c *Client) Levels(ctx context.Context) ([]Level, error) {
	var out struct {
		Levels []Level `json:"levels"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/technical-analysis/levels", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Levels, nil
}

// Zones returns supply and demand zones for all symbols.
func (c *Client) Zones(ctx context.Context) ([]Zone, error) {
	var out struct {
		Zones []Zone `json:"zones"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/technical-analysis/zones", nil, "", &out); err != nil {
		return nil, err
	}
	return out.Zones, nil
}

type enveloped interface {
	envelope() *Response
}

// do issues one request bounded by the client timeout and decodes the JSON
// reply into out.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if e, ok := out.(enveloped); ok {
		if env := e.envelope(); env.Status == StatusError {
			return &APIError{StatusCode: resp.StatusCode, Status: env.Status, Message: env.Message}
		}
	}
	return nil
}

func newAPIError(code int, body []byte) *APIError {
	e := &APIError{
		StatusCode: code,
		Status:     StatusError,
		Message:    fmt.Sprintf("HTTP error! status: %d", code),
	}
	var env Response
	if json.Unmarshal(body, &env) == nil {
		if env.Message != "" {
			e.Message = env.Message
		}
		if env.Status != "" {
			e.Status = env.Status
		}
	}
	return e
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
