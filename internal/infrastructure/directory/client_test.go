package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"wphunter/internal/scanner"
)

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	c := NewPluginsClient("https://api.wordpress.org/plugins/info/1.2/", nil)
	u, err := c.buildPageURL(scanner.Request{Page: 3, PerPage: 100, Sort: "updated"})
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	q := req.URL.Query()
	if q.Get("action") != "query_plugins" {
		t.Fatalf("expected query_plugins action, got %s", q.Get("action"))
	}
	if q.Get("request[browse]") != "updated" {
		t.Fatalf("expected browse=updated, got %s", q.Get("request[browse]"))
	}
	if q.Get("request[page]") != "3" {
		t.Fatalf("expected page=3, got %s", q.Get("request[page]"))
	}
	if q.Get("request[fields][active_installs]") != "1" {
		t.Fatal("expected active_installs field to be requested")
	}
}

func TestFetchPageParsesRecords(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"info": {"page": 1, "pages": 10, "results": 2},
			"plugins": [
				{
					"slug": "shop-kit",
					"name": "Shop <em>Kit</em>",
					"author": "<a href=\"https://example.com\">Acme Co</a>",
					"active_installs": 40000,
					"last_updated": "2025-11-02 9:30am GMT",
					"tags": {"ecommerce": "eCommerce", "payments": "Payments"},
					"short_description": "Sell things.",
					"sections": {"changelog": "<h4>2.1</h4><p>Fixed XSS</p>"},
					"tested": "6.4.2",
					"download_link": "https://downloads.example.org/shop-kit.zip"
				},
				{
					"slug": "tiny-widget",
					"name": "Tiny Widget",
					"author": {"display_name": "solo-dev"},
					"last_updated": "2020-01-15",
					"tags": ["widget"],
					"short_description": "A widget.",
					"tested": "5.2",
					"download_link": "https://downloads.example.org/tiny-widget.zip"
				}
			]
		}`)
	}))
	defer server.Close()

	c := NewPluginsClient(server.URL, nil, WithHTTPClient(server.Client()))
	records, err := c.FetchPage(context.Background(), scanner.Request{Page: 1, PerPage: 2, Sort: "updated"})
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.Slug != "shop-kit" {
		t.Fatalf("unexpected slug: %s", first.Slug)
	}
	if first.Name != "Shop Kit" {
		t.Fatalf("markup not stripped from name: %q", first.Name)
	}
	if first.Author != "Acme Co" {
		t.Fatalf("markup not stripped from author: %q", first.Author)
	}
	if first.ActiveInstalls != 40000 {
		t.Fatalf("unexpected installs: %d", first.ActiveInstalls)
	}
	if len(first.Tags) != 2 || first.Tags[0] != "Payments" {
		t.Fatalf("tags object not normalized: %v", first.Tags)
	}
	if first.Changelog == "" {
		t.Fatal("expected changelog pulled from sections")
	}
	want := time.Date(2025, time.November, 2, 9, 30, 0, 0, time.UTC)
	if !first.LastUpdated.Equal(want) {
		t.Fatalf("unexpected last_updated: %v", first.LastUpdated)
	}

	second := records[1]
	if second.Author != "solo-dev" {
		t.Fatalf("author object not handled: %q", second.Author)
	}
	if second.ActiveInstalls != 0 {
		t.Fatalf("missing installs must default to 0, got %d", second.ActiveInstalls)
	}
	if second.LastUpdated.IsZero() {
		t.Fatal("date-only last_updated should parse")
	}
}

func TestFetchPageEmptyIsNotAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"info": {"page": 99, "pages": 10, "results": 0}, "plugins": []}`)
	}))
	defer server.Close()

	c := NewPluginsClient(server.URL, nil, WithHTTPClient(server.Client()))
	records, err := c.FetchPage(context.Background(), scanner.Request{Page: 99, PerPage: 100, Sort: "new"})
	if err != nil {
		t.Fatalf("empty page must not error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestFetchPageRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"info": {"page": 1, "pages": 1, "results": 1}, "plugins": [{"slug": "x", "name": "X"}]}`)
	}))
	defer server.Close()

	c := NewPluginsClient(server.URL, nil, WithHTTPClient(server.Client()), WithMaxRetries(5))
	records, err := c.FetchPage(context.Background(), scanner.Request{Page: 1, PerPage: 1, Sort: "popular"})
	if err != nil {
		t.Fatalf("expected retries to succeed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetchPageExhaustedRetriesSurfaceTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewPluginsClient(server.URL, nil, WithHTTPClient(server.Client()), WithMaxRetries(1))
	_, err := c.FetchPage(context.Background(), scanner.Request{Page: 1, PerPage: 1, Sort: "new"})
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
}

func TestFetchPageMalformedBodyIsFatal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `<html>not json</html>`)
	}))
	defer server.Close()

	c := NewPluginsClient(server.URL, nil, WithHTTPClient(server.Client()), WithMaxRetries(5))
	_, err := c.FetchPage(context.Background(), scanner.Request{Page: 1, PerPage: 1, Sort: "new"})
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected FatalError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("fatal errors must not be retried, got %d attempts", calls.Load())
	}
}

func TestThemesNamespace(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "query_themes" {
			t.Errorf("expected query_themes action, got %s", got)
		}
		fmt.Fprint(w, `{"info": {"page": 1, "pages": 1, "results": 1}, "themes": [{"slug": "darkly", "name": "Darkly"}]}`)
	}))
	defer server.Close()

	c := NewThemesClient(server.URL, nil, WithHTTPClient(server.Client()))
	if c.Name() != "themes" {
		t.Fatalf("unexpected namespace name: %s", c.Name())
	}
	records, err := c.FetchPage(context.Background(), scanner.Request{Page: 1, PerPage: 1, Sort: "popular"})
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
	if len(records) != 1 || records[0].Slug != "darkly" {
		t.Fatalf("unexpected records: %+v", records)
	}
}
