package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"gitlab.com/nunet/nosana-node-monitor/internal/config"
	"gitlab.com/nunet/nosana-node-monitor/internal/jsonx"
)

const (
	addressPlaceholder = "{address}"
	maxBodyBytes       = 8 << 20
	userAgent          = "nosana-node-monitor/1.0"
)

var tracer = otel.Tracer("gitlab.com/nunet/nosana-node-monitor/upstream")

// Client fetches the raw documents a cycle is built from. Every call is
// bounded by the request timeout and by the caller's context.
type Client struct {
	http           *http.Client
	endpoints      config.Endpoints
	rpcURL         string
	requestTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithRPCURL sets the JSON-RPC endpoint used for account data.
func WithRPCURL(u string) Option {
	return func(cl *Client) {
		cl.rpcURL = u
	}
}

func NewClient(endpoints config.Endpoints, requestTimeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoints:      endpoints,
		requestTimeout: requestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchInfo returns the node-info document. The body must be a JSON object.
func (c *Client) FetchInfo(ctx context.Context, address string) Result[[]byte] {
	return c.getJSON(ctx, SourceInfo, expandAddress(c.endpoints.Info, address), jsonparser.Object)
}

// FetchSpecs returns the node-specs document. The body must be a JSON object.
func (c *Client) FetchSpecs(ctx context.Context, address string) Result[[]byte] {
	return c.getJSON(ctx, SourceSpecs, expandAddress(c.endpoints.Specs, address), jsonparser.Object)
}

// FetchMarkets returns the market directory, either a bare array or an object wrapping one.
func (c *Client) FetchMarkets(ctx context.Context) Result[[]byte] {
	return c.getJSON(ctx, SourceMarkets, c.endpoints.Markets, jsonparser.Array, jsonparser.Object)
}

// FetchJobs returns the most recent jobs run by address, newest first.
func (c *Client) FetchJobs(ctx context.Context, address string, limit int) Result[[]byte] {
	u, err := jobsURL(c.endpoints.Jobs, address, limit)
	if err != nil {
		return Fail[[]byte](&FetchError{Source: SourceJobs, URL: c.endpoints.Jobs, Err: err})
	}
	return c.getJSON(ctx, SourceJobs, u, jsonparser.Object, jsonparser.Array)
}

// FetchAccountData calls getAccountInfo for account and returns the raw
// `data` value of the response, usually a [base64, "base64"] pair.
func (c *Client) FetchAccountData(ctx context.Context, account string) Result[[]byte] {
	if c.rpcURL == "" {
		return Fail[[]byte](&FetchError{Source: SourceAccount, Err: fmt.Errorf("no rpc url configured")})
	}
	payload, err := jsonx.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "getAccountInfo",
		"params":  []interface{}{account, map[string]string{"encoding": "base64"}},
	})
	if err != nil {
		return Fail[[]byte](&FetchError{Source: SourceAccount, URL: c.rpcURL, Err: err})
	}

	body, status, err := c.do(ctx, SourceAccount, http.MethodPost, c.rpcURL, payload)
	if err != nil {
		return Fail[[]byte](&FetchError{Source: SourceAccount, URL: c.rpcURL, StatusCode: status, Err: err})
	}
	if msg, err := jsonparser.GetString(body, "error", "message"); err == nil {
		return Fail[[]byte](&FetchError{Source: SourceAccount, URL: c.rpcURL, StatusCode: status, Err: fmt.Errorf("rpc error: %s", msg)})
	}
	data, dataType, _, err := jsonparser.Get(body, "result", "value", "data")
	if err != nil || dataType == jsonparser.Null {
		return Fail[[]byte](&FetchError{Source: SourceAccount, URL: c.rpcURL, StatusCode: status, Err: fmt.Errorf("account %s has no data", account)})
	}
	if dataType == jsonparser.String {
		// keep the quotes so callers see the same JSON value the RPC returned
		data = []byte(strconv.Quote(string(data)))
	}
	return Ok(data)
}

func (c *Client) getJSON(ctx context.Context, source Source, u string, kinds ...jsonparser.ValueType) Result[[]byte] {
	body, status, err := c.do(ctx, source, http.MethodGet, u, nil)
	if err != nil {
		return Fail[[]byte](&FetchError{Source: source, URL: u, StatusCode: status, Err: err})
	}
	if !jsonx.Valid(body) {
		return Fail[[]byte](&FetchError{Source: source, URL: u, StatusCode: status, Err: fmt.Errorf("malformed json body")})
	}
	_, dataType, _, err := jsonparser.Get(body)
	if err != nil {
		return Fail[[]byte](&FetchError{Source: source, URL: u, StatusCode: status, Err: err})
	}
	for _, kind := range kinds {
		if dataType == kind {
			return Ok(body)
		}
	}
	return Fail[[]byte](&FetchError{
		Source:     source,
		URL:        u,
		StatusCode: status,
		Err:        fmt.Errorf("%w: got %s", ErrUnexpectedShape, dataType),
	})
}

func (c *Client) do(ctx context.Context, source Source, method, u string, payload []byte) ([]byte, int, error) {
	ctx, span := tracer.Start(ctx, "upstream."+string(source))
	defer span.End()
	span.SetAttributes(attribute.String("http.url", u), attribute.String("http.method", method))

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "building request")
		return nil, 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, 0, err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		span.RecordError(err)
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("unexpected HTTP status: %s", resp.Status)
		span.SetStatus(codes.Error, err.Error())
		zlog.Ctx(ctx).Debug("non-2xx upstream response")
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func expandAddress(tmpl, address string) string {
	return strings.ReplaceAll(tmpl, addressPlaceholder, url.PathEscape(address))
}

// jobsURL builds the job-history request. Templates without query parameters
// get node, limit and offset appended.
func jobsURL(tmpl, address string, limit int) (string, error) {
	u, err := url.Parse(expandAddress(tmpl, address))
	if err != nil {
		return "", fmt.Errorf("invalid jobs endpoint: %w", err)
	}
	q := u.Query()
	if q.Get("node") == "" {
		q.Set("node", address)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
