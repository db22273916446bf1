// Package fetch retrieves storefront pages from the upstream site
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"schemainjector/cache"
)

const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
)

// maxBodySize caps decoded page bodies
const maxBodySize = 16 << 20

var errUncacheable = errors.New("page not cacheable")

// ErrBodyTooLarge is returned when a decoded page exceeds the size cap
var ErrBodyTooLarge = errors.New("response body too large")

// Page is an upstream response with its body already decoded
type Page struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// Renderer produces the rendered HTML of a page, e.g. a browser pool
type Renderer interface {
	FetchURL(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// Options configures a Fetcher
type Options struct {
	Mode      string
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
	Renderer  Renderer
	Cache     *cache.Cache
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

// Fetcher loads pages over plain HTTP or through a Renderer
type Fetcher struct {
	mode      string
	timeout   time.Duration
	userAgent string
	client    *http.Client
	renderer  Renderer
	cache     *cache.Cache
	cacheTTL  time.Duration
	log       *zap.Logger
}

// New creates a fetcher
func New(opts Options) (*Fetcher, error) {
	if opts.Mode == "" {
		opts.Mode = ModeHTTP
	}
	if opts.Mode != ModeHTTP && opts.Mode != ModeBrowser {
		return nil, fmt.Errorf("unknown fetch mode: %s", opts.Mode)
	}
	if opts.Mode == ModeBrowser && opts.Renderer == nil {
		return nil, errors.New("browser fetch mode needs a renderer")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Fetcher{
		mode:      opts.Mode,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		client:    opts.Client,
		renderer:  opts.Renderer,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		log:       opts.Logger.Named("fetch"),
	}, nil
}

// Mode returns the configured fetch mode
func (f *Fetcher) Mode() string {
	return f.mode
}

// Fetch loads url. Successful HTML pages are cached when a cache is set.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	page, err := cache.Memoize(ctx, f.cache, "page:"+f.mode+":"+url, f.cacheTTL, func() (*Page, error) {
		p, err := f.fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		if p.StatusCode != http.StatusOK {
			return p, errUncacheable
		}
		return p, nil
	})
	if errors.Is(err, errUncacheable) {
		return page, nil
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) (*Page, error) {
	start := time.Now()
	defer func() {
		f.log.Debug("fetched upstream page", zap.String("url", url), zap.Duration("took", time.Since(start)))
	}()

	if f.mode == ModeBrowser {
		body, err := f.renderer.FetchURL(ctx, url, f.timeout)
		if err != nil {
			return nil, err
		}
		return &Page{URL: url, StatusCode: http.StatusOK, ContentType: "text/html; charset=utf-8", Body: body}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Page{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
	}, nil
}

// decodeBody undoes the response Content-Encoding
func decodeBody(encoding string, body io.Reader) ([]byte, error) {
	var reader io.Reader
	switch encoding {
	case "gzip":
		gzipReader, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	case "deflate":
		flateReader := flate.NewReader(body)
		defer flateReader.Close()
		reader = flateReader
	case "br":
		reader = brotli.NewReader(body)
	case "zstd":
		zstdReader, err := zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zstdReader.Close()
		reader = zstdReader
	case "", "identity":
		reader = body
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", encoding)
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, maxBodySize)
	}
	return data, nil
}
