// Package server exposes the injector over HTTP, either as a proxy in
// front of the storefront or as a one-shot transform endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"schemainjector/fetch"
	"schemainjector/injector"
	"schemainjector/metrics"
)

const maxRequestBody = 16 << 20

// Fetcher loads upstream pages
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
	Mode() string
}

// Options wires the server dependencies
type Options struct {
	Addr            string
	UpstreamBaseURL string
	ShutdownTimeout time.Duration
	Injector        *injector.Injector
	Fetcher         Fetcher
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
}

// Server serves the proxy and transform endpoints
type Server struct {
	addr            string
	upstream        string
	shutdownTimeout time.Duration
	injector        *injector.Injector
	fetcher         Fetcher
	metrics         *metrics.Metrics
	log             *zap.Logger
}

// New creates a server
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		addr:            opts.Addr,
		upstream:        strings.TrimRight(opts.UpstreamBaseURL, "/"),
		shutdownTimeout: opts.ShutdownTimeout,
		injector:        opts.Injector,
		fetcher:         opts.Fetcher,
		metrics:         opts.Metrics,
		log:             opts.Logger.Named("server"),
	}
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/inject", s.handleInject).Methods(http.MethodPost)
	router.HandleFunc("/schema", s.handleSchema).Methods(http.MethodPost)
	router.PathPrefix("/").HandlerFunc(s.handleProxy).Methods(http.MethodGet, http.MethodHead)

	var h http.Handler = router
	h = handlers.CompressHandler(h)
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = handlers.ProxyHeaders(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}))(h)
	return h
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server is running", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.log.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProxy fetches the upstream page and injects the schema into
// product pages before relaying it
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if s.upstream == "" || s.fetcher == nil {
		http.Error(w, "No upstream configured", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	page, err := s.fetcher.Fetch(r.Context(), s.upstream+r.URL.RequestURI())
	s.metrics.ObserveFetch(s.fetcher.Mode(), err, time.Since(start))
	if err != nil {
		s.log.Error("upstream fetch failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "Error fetching upstream page", http.StatusBadGateway)
		return
	}

	body := page.Body
	if s.injector.ShouldProcess(r.URL.Path) {
		outcome := injector.OutcomeSkipped
		if injector.IsContentEntry(page.StatusCode, page.ContentType) {
			body, outcome, _ = s.injector.Process(page.Body, publicURL(r))
		}
		s.metrics.ObserveInjection(outcome.String())
	}

	if page.ContentType != "" {
		w.Header().Set("Content-Type", page.ContentType)
	}
	w.WriteHeader(page.StatusCode)
	if r.Method != http.MethodHead {
		io.WriteString(w, body)
	}
}

// handleInject transforms an HTML document posted in the body
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	pageURL, body, ok := s.readDocument(w, r)
	if !ok {
		return
	}

	out, outcome, _ := s.injector.Process(body, pageURL)
	s.metrics.ObserveInjection(outcome.String())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Schema-Outcome", outcome.String())
	io.WriteString(w, out)
}

// handleSchema returns only the JSON-LD object for a posted document
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	pageURL, body, ok := s.readDocument(w, r)
	if !ok {
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		http.Error(w, "Invalid HTML body", http.StatusBadRequest)
		return
	}

	product, err := s.injector.Extract(doc, pageURL)
	if err != nil {
		s.log.Warn("schema error", zap.String("url", pageURL), zap.Error(err))
		http.Error(w, "Error building schema: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if product == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", injector.ScriptType)
	json.NewEncoder(w).Encode(product)
}

func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		http.Error(w, "url query parameter is required", http.StatusBadRequest)
		return "", "", false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return "", "", false
	}

	return pageURL, string(body), true
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.log.Info("request",
		zap.String("method", p.Request.Method),
		zap.String("path", p.URL.Path),
		zap.Int("status", p.StatusCode),
		zap.Int("size", p.Size),
		zap.Duration("took", time.Since(p.TimeStamp)),
	)
}

// publicURL rebuilds the address the visitor requested
func publicURL(r *http.Request) string {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type recoveryLogger struct {
	log *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("panic recovered", zap.String("panic", fmt.Sprint(v...)))
}
