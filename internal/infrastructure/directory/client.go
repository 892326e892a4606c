package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"

	"wphunter/internal/domain"
	"wphunter/internal/scanner"
)

// namespace settings for the two directory listings.
type namespace struct {
	name   string
	action string
}

var (
	pluginsNamespace = namespace{name: "plugins", action: "query_plugins"}
	themesNamespace  = namespace{name: "themes", action: "query_themes"}
)

// Client fetches listing pages from a WordPress.org-style info API.
// Transient failures are retried with exponential backoff before the page
// is given up on.
type Client struct {
	baseURL    string
	ns         namespace
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
}

var _ scanner.Source = (*Client)(nil)

// Option tweaks a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMaxRetries bounds transient-retry attempts per page.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewPluginsClient fetches from the plugin directory namespace.
func NewPluginsClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	return newClient(baseURL, pluginsNamespace, logger, opts...)
}

// NewThemesClient fetches from the theme directory namespace.
func NewThemesClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	return newClient(baseURL, themesNamespace, logger, opts...)
}

func newClient(baseURL string, ns namespace, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		ns:         ns,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the namespace inside the registry.
func (c *Client) Name() string {
	return c.ns.name
}

// FetchPage issues one request for the given page and returns its records.
// An empty page is a valid result signaling end-of-results. Failures after
// retry exhaustion surface as *TransientError; schema violations as
// *FatalError and are never retried.
func (c *Client) FetchPage(ctx context.Context, req scanner.Request) ([]domain.ListingRecord, error) {
	var records []domain.ListingRecord

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	attempts := 0
	operation := func() error {
		attempts++
		page, err := c.fetchOnce(ctx, req)
		if err != nil {
			var transient *TransientError
			if errors.As(err, &transient) && attempts <= c.maxRetries {
				return err
			}
			return backoff.Permanent(err)
		}
		records = page
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if c.logger != nil {
			c.logger.Warn("retrying directory page",
				"namespace", c.ns.name, "page", req.Page, "wait", wait, "error", err)
		}
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) fetchOnce(ctx context.Context, req scanner.Request) ([]domain.ListingRecord, error) {
	pageURL, err := c.buildPageURL(req)
	if err != nil {
		return nil, &FatalError{Page: req.Page, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FatalError{Page: req.Page, Err: err}
	}
	httpReq.Header.Set("User-Agent", "wphunter/1.0")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &TransientError{Page: req.Page, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransientError{Page: req.Page, Err: fmt.Errorf("status %s", resp.Status)}
	default:
		return nil, &FatalError{Page: req.Page, Err: fmt.Errorf("status %s", resp.Status)}
	}

	var payload listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &FatalError{Page: req.Page, Err: err}
	}

	wire := payload.Plugins
	if c.ns.name == themesNamespace.name {
		wire = payload.Themes
	}

	records := make([]domain.ListingRecord, 0, len(wire))
	for _, w := range wire {
		if w.Slug == "" {
			return nil, &FatalError{Page: req.Page, Err: fmt.Errorf("record without slug")}
		}
		records = append(records, w.toDomain())
	}
	return records, nil
}

func (c *Client) buildPageURL(req scanner.Request) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid directory url %s: %w", c.baseURL, err)
	}

	query := parsed.Query()
	query.Set("action", c.ns.action)
	query.Set("request[browse]", req.Sort)
	query.Set("request[page]", strconv.Itoa(req.Page))
	query.Set("request[per_page]", strconv.Itoa(req.PerPage))
	for _, field := range []string{
		"slug", "name", "author", "active_installs", "last_updated",
		"tags", "short_description", "sections", "tested", "download_link",
	} {
		query.Set(fmt.Sprintf("request[fields][%s]", field), "1")
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
