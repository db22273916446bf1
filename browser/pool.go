// Package browser provides headless Chrome rendering for storefront pages
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrClosed is returned after Shutdown
var ErrClosed = errors.New("browser pool is shut down")

// Pool manages a fixed set of browser tabs for reuse
type Pool struct {
	size        int
	userAgent   string
	log         *zap.Logger
	contexts    chan context.Context
	cancelFuncs map[context.Context]context.CancelFunc
	initOnce    sync.Once
	initErr     error
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	closed      bool
}

// New creates a pool of size tabs. Chrome is started on first use.
func New(size int, userAgent string, log *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		size:        size,
		userAgent:   userAgent,
		log:         log.Named("browser"),
		contexts:    make(chan context.Context, size),
		cancelFuncs: make(map[context.Context]context.CancelFunc),
	}
}

func (pool *Pool) initialize() error {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1920, 1080),
	)
	if pool.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(pool.userAgent))
	}

	pool.allocCtx, pool.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)

	for i := 0; i < pool.size; i++ {
		ctx, cancel := chromedp.NewContext(pool.allocCtx)

		if err := chromedp.Run(ctx, chromedp.Navigate("about:blank")); err != nil {
			cancel()
			pool.log.Warn("failed to start browser tab", zap.Error(err))
			continue
		}

		pool.contexts <- ctx
		pool.cancelFuncs[ctx] = cancel
	}

	if len(pool.cancelFuncs) == 0 {
		pool.allocCancel()
		return errors.New("no browser tab could be started")
	}

	pool.log.Info("browser pool initialized", zap.Int("tabs", len(pool.cancelFuncs)))
	return nil
}

// Get takes a tab from the pool, waiting until one is free or ctx ends.
// The returned func puts the tab back.
func (pool *Pool) Get(ctx context.Context) (context.Context, func(), error) {
	pool.mu.Lock()
	closed := pool.closed
	pool.mu.Unlock()
	if closed {
		return nil, nil, ErrClosed
	}

	pool.initOnce.Do(func() {
		pool.initErr = pool.initialize()
	})
	if pool.initErr != nil {
		return nil, nil, fmt.Errorf("failed to start browser: %w", pool.initErr)
	}

	select {
	case tab := <-pool.contexts:
		release := func() {
			// Clear state before the next page uses this tab
			refreshCtx, cancel := context.WithTimeout(tab, 3*time.Second)
			defer cancel()
			_ = chromedp.Run(refreshCtx,
				network.ClearBrowserCookies(),
				chromedp.Navigate("about:blank"),
			)

			pool.mu.Lock()
			defer pool.mu.Unlock()
			if pool.closed {
				return
			}
			pool.contexts <- tab
		}
		return tab, release, nil
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("timeout getting browser context from pool: %w", ctx.Err())
	}
}

// FetchURL renders url and returns the page's outer HTML
func (pool *Pool) FetchURL(ctx context.Context, url string, timeout time.Duration) (string, error) {
	tab, release, err := pool.Get(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	timeoutCtx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()

	// stop early if the caller gives up
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var htmlContent string
	err = chromedp.Run(timeoutCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL content: %w", err)
	}

	return htmlContent, nil
}

// Shutdown closes all tabs and the browser
func (pool *Pool) Shutdown() {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pool.closed {
		return
	}
	pool.closed = true

	for ctx, cancel := range pool.cancelFuncs {
		cancel()
		delete(pool.cancelFuncs, ctx)
	}
	if pool.allocCancel != nil {
		pool.allocCancel()
	}
	for len(pool.contexts) > 0 {
		<-pool.contexts
	}

	pool.log.Info("browser pool shut down")
}
