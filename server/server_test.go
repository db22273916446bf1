package server

import (
	"encoding/json"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemainjector/fetch"
	"schemainjector/injector"
	"schemainjector/metrics"
)

func productPage(data string) string {
	return `<html><head><title>Shop</title></head><body><h1>Widget</h1>` +
		`<div class="lb_prod_single_add_to_cart" filter_data="` + html.EscapeString(data) + `"></div>` +
		`</body></html>`
}

func newTestServer(t *testing.T, upstream string) (*Server, *metrics.Metrics) {
	t.Helper()

	f, err := fetch.New(fetch.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)

	m := metrics.New()
	s := New(Options{
		UpstreamBaseURL: upstream,
		Injector: injector.New(injector.Options{
			Now: func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) },
		}),
		Fetcher: f,
		Metrics: m,
	})
	return s, m
}

func jsonLD(t *testing.T, body string) []map[string]any {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)

	var out []map[string]any
	doc.Find(`head script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var obj map[string]any
		require.NoError(t, json.Unmarshal([]byte(s.Text()), &obj))
		out = append(out, obj)
	})
	return out
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/product/widget/", "/about/":
			w.Header().Set("Content-Type", "text/html; charset=UTF-8")
			io.WriteString(w, productPage(`{"id":"42","variants":[{"priceRec":"25.00"}]}`))
		case "/product/broken/":
			w.Header().Set("Content-Type", "text/html; charset=UTF-8")
			io.WriteString(w, productPage(`{"variants":`))
		case "/product/feed.json":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"ok":true}`)
		default:
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, "<html><body>not found</body></html>")
		}
	}))
	t.Cleanup(upstream.Close)
	return upstream
}

func TestProxy(t *testing.T) {
	upstream := newUpstream(t)
	s, m := newTestServer(t, upstream.URL)
	h := s.Handler()

	t.Run("product page gets schema", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://shop.example/product/widget/?ref=home", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=UTF-8", rec.Header().Get("Content-Type"))

		scripts := jsonLD(t, rec.Body.String())
		require.Len(t, scripts, 1)
		offers := scripts[0]["offers"].(map[string]any)
		assert.Equal(t, "https://shop.example/product/widget/?ref=home", offers["url"])
		assert.Equal(t, "25.00", offers["price"])
		assert.Equal(t, "2027-10-19", offers["priceValidUntil"])
		assert.Equal(t, "42", scripts[0]["sku"])
	})

	t.Run("non product path passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, jsonLD(t, rec.Body.String()))
	})

	t.Run("malformed data serves original page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/product/broken/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, productPage(`{"variants":`), rec.Body.String())
	})

	t.Run("non html product response is skipped", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/product/feed.json", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"ok":true}`, rec.Body.String())
	})

	t.Run("upstream status is relayed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/product/missing/", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, jsonLD(t, rec.Body.String()))
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	exposition := rec.Body.String()
	assert.Contains(t, exposition, `schemainjector_injections_total{outcome="injected"} 1`)
	assert.Contains(t, exposition, `schemainjector_injections_total{outcome="failed"} 1`)
	assert.Contains(t, exposition, `schemainjector_injections_total{outcome="skipped"} 2`)
	assert.Contains(t, exposition, `schemainjector_upstream_fetches_total{mode="http",result="ok"} 5`)
}

func TestProxyUpstreamDown(t *testing.T) {
	s, _ := newTestServer(t, "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/product/widget/", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProxyWithoutUpstream(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/product/widget/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInjectEndpoint(t *testing.T) {
	s, _ := newTestServer(t, "")
	h := s.Handler()

	t.Run("injects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/inject?url=https://shop.example/product/widget/",
			strings.NewReader(productPage(`{"brand_name":"Acme"}`)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "injected", rec.Header().Get("X-Schema-Outcome"))
		scripts := jsonLD(t, rec.Body.String())
		require.Len(t, scripts, 1)
		assert.Equal(t, "Acme", scripts[0]["brand"].(map[string]any)["name"])
	})

	t.Run("no container", func(t *testing.T) {
		page := "<html><head></head><body></body></html>"
		req := httptest.NewRequest(http.MethodPost, "/inject?url=https://shop.example/product/x/", strings.NewReader(page))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no_container", rec.Header().Get("X-Schema-Outcome"))
		assert.Equal(t, page, rec.Body.String())
	})

	t.Run("url is required", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inject", strings.NewReader("<html></html>")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSchemaEndpoint(t *testing.T) {
	s, _ := newTestServer(t, "")
	h := s.Handler()

	t.Run("returns json-ld", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/schema?url=https://shop.example/product/widget/",
			strings.NewReader(productPage(`{"strainType":"Sativa","variants":[{"priceMed":"30"}]}`)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/ld+json", rec.Header().Get("Content-Type"))

		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "Widget", got["name"])
		assert.Equal(t, "30", got["offers"].(map[string]any)["price"])
		assert.Len(t, got["additionalProperty"], 1)
	})

	t.Run("no container", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/schema?url=https://shop.example/", strings.NewReader("<html></html>"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/schema?url=https://shop.example/product/x/",
			strings.NewReader(productPage(`nope`)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	s, m := newTestServer(t, "")
	m.ObserveInjection("injected")
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "schemainjector_injections_total")
}

func TestPublicURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/product/a/?x=1", nil)
	req.Host = "shop.example"
	assert.Equal(t, "http://shop.example/product/a/?x=1", publicURL(req))

	req.URL.Scheme = "https"
	assert.Equal(t, "https://shop.example/product/a/?x=1", publicURL(req))
}
