package km24

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"km24vejviser/internal/cache/disk"
	"km24vejviser/internal/logger"
)

const (
	DefaultBaseURL     = "https://km24.dk/api"
	DefaultTimeout     = 30 * time.Second
	DefaultMinInterval = 100 * time.Millisecond

	maxErrorBody = 512
)

// Store is the on-disk endpoint cache the client reads through.
type Store interface {
	Get(ctx context.Context, endpoint string) (disk.Entry, bool)
	Set(ctx context.Context, endpoint string, data json.RawMessage) error
	Clear(ctx context.Context) (int, error)
	List() ([]disk.FileInfo, error)
}

type Options struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MinInterval time.Duration
	Store       Store
	HTTPClient  *http.Client
	Logger      *logger.Logger
}

// Client is a cached, rate-limited read client over the KM24 REST API.
// Every call returns a Response; transport failures never surface as panics
// or bare errors.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	store   Store
	http    *http.Client
	limiter *rate.Limiter
	flight  singleflight.Group
	log     *logger.Logger
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  strings.TrimSpace(opts.APIKey),
		timeout: opts.Timeout,
		store:   opts.Store,
		http:    opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		log:     opts.Logger.With("component", "km24"),
	}
}

func (c *Client) Configured() bool { return c.apiKey != "" }

func (c *Client) BaseURL() string { return c.baseURL }

// Get fetches endpoint (a path like "/modules/basic"), serving from the disk
// cache unless forceRefresh is set. Concurrent identical requests share one
// network call.
func (c *Client) Get(ctx context.Context, endpoint string, forceRefresh bool) Response {
	if !c.Configured() {
		return fail(ErrNoAPIKey)
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	if !forceRefresh && c.store != nil {
		if ent, ok := c.store.Get(ctx, endpoint); ok {
			c.log.Debug("km24 cache hit", "endpoint", endpoint, "age", ent.Age.String())
			return Response{Success: true, Data: ent.Data, Cached: true, CacheAge: ent.Age}
		}
	}

	key := endpoint
	if forceRefresh {
		key = "refresh:" + endpoint
	}
	v, _, _ := c.flight.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, endpoint), nil
	})
	return v.(Response)
}

func (c *Client) fetch(ctx context.Context, endpoint string) Response {
	if err := c.limiter.Wait(ctx); err != nil {
		return failf(ErrConnection, "rate limiter: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return failf(ErrConnection, "build request: %v", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		res := c.classifyTransport(reqCtx, err)
		c.log.Warn("km24 request failed", "endpoint", endpoint, "error", res.Error)
		return res
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.classifyTransport(reqCtx, err)
	}
	c.log.Debug("km24 response", "endpoint", endpoint, "status", resp.StatusCode, "elapsed", time.Since(start).String())

	switch {
	case resp.StatusCode == http.StatusOK:
		if !json.Valid(body) {
			return failf(ErrMalformed, "%s", endpoint)
		}
		data := json.RawMessage(body)
		if c.store != nil {
			if err := c.store.Set(ctx, endpoint, data); err != nil {
				c.log.Warn("km24 cache write failed", "endpoint", endpoint, "error", err)
			}
		}
		return ok(data)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fail(ErrAuth)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed:
		return failf(ErrNotFound, "API error %d: %s", resp.StatusCode, endpoint)
	default:
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return failf(ErrStatus, "API error %d: %s", resp.StatusCode, snippet)
	}
}

func (c *Client) classifyTransport(ctx context.Context, err error) Response {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &nerr) && nerr.Timeout()) {
		return failf(ErrTimeout, "no answer within %s", c.timeout)
	}
	return failf(ErrConnection, "%v", err)
}

func (c *Client) ModulesBasic(ctx context.Context, forceRefresh bool) Response {
	return c.Get(ctx, "/modules/basic", forceRefresh)
}

func (c *Client) ModuleDetails(ctx context.Context, moduleID int, forceRefresh bool) Response {
	return c.Get(ctx, fmt.Sprintf("/modules/basic/%d", moduleID), forceRefresh)
}

func (c *Client) Municipalities(ctx context.Context, forceRefresh bool) Response {
	return c.Get(ctx, "/municipalities", forceRefresh)
}

func (c *Client) BranchCodes(ctx context.Context, forceRefresh bool) Response {
	return c.Get(ctx, "/branch-codes/detailed", forceRefresh)
}

func (c *Client) Regions(ctx context.Context, forceRefresh bool) Response {
	return c.Get(ctx, "/regions", forceRefresh)
}

func (c *Client) CourtDistricts(ctx context.Context, forceRefresh bool) Response {
	return c.Get(ctx, "/court-districts", forceRefresh)
}

func (c *Client) GenericValues(ctx context.Context, partID int, forceRefresh bool) Response {
	return c.Get(ctx, fmt.Sprintf("/generic-values/%d", partID), forceRefresh)
}

func (c *Client) WebSources(ctx context.Context, moduleID int, forceRefresh bool) Response {
	return c.Get(ctx, fmt.Sprintf("/web-sources/categories/%d", moduleID), forceRefresh)
}

func (c *Client) SearchExamples(ctx context.Context, slug string, forceRefresh bool) Response {
	return c.Get(ctx, "/modules/"+slug+"/search-examples", forceRefresh)
}

// FilterOptions and FilterOptionsForModule name endpoints the platform does
// not serve. They fail without touching the network.
func (c *Client) FilterOptions(_ context.Context, slug, filterType string) Response {
	return failf(ErrUndocumented, "modules/%s/filters/%s", slug, filterType)
}

func (c *Client) FilterOptionsForModule(_ context.Context, moduleID int) Response {
	return failf(ErrUndocumented, "modules/%d/filter-options", moduleID)
}

type HealthStatus struct {
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	ModulesCount int       `json:"modules_count,omitempty"`
	Cached       bool      `json:"cached,omitempty"`
	CacheAge     string    `json:"cache_age,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Health probes the module list. A configured client with a failing API
// reports status "error"; a missing key reports "not_configured".
func (c *Client) Health(ctx context.Context) HealthStatus {
	now := time.Now()
	if !c.Configured() {
		return HealthStatus{Status: "not_configured", Message: ErrNoAPIKey.Error(), Timestamp: now}
	}
	res := c.ModulesBasic(ctx, false)
	if !res.Success {
		return HealthStatus{Status: "error", Error: res.Error, Timestamp: now}
	}
	var items []json.RawMessage
	if err := res.Items(&items); err != nil {
		return HealthStatus{Status: "error", Error: err.Error(), Timestamp: now}
	}
	h := HealthStatus{Status: "healthy", ModulesCount: len(items), Cached: res.Cached, Timestamp: now}
	if res.Cached {
		h.CacheAge = res.CacheAge.Round(time.Second).String()
	}
	return h
}

type ClearResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Removed   int       `json:"removed"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Client) ClearCache(ctx context.Context) ClearResult {
	now := time.Now()
	if c.store == nil {
		return ClearResult{Success: true, Message: "Cache cleared - 0 files removed", Timestamp: now}
	}
	n, err := c.store.Clear(ctx)
	if err != nil {
		c.log.Error("km24 cache clear failed", "error", err)
		return ClearResult{Success: false, Error: err.Error(), Removed: n, Timestamp: now}
	}
	c.log.Info("km24 cache cleared", "removed", n)
	return ClearResult{Success: true, Message: fmt.Sprintf("Cache cleared - %d files removed", n), Removed: n, Timestamp: now}
}

func (c *Client) CacheInfo() ([]disk.FileInfo, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.List()
}
