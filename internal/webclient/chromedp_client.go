package webclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/cgscrape/internal/logging"
)

// ChromedpClient renders pages in a headless Chrome tab. The returned body is
// the DOM after scripts ran, not the bytes the server sent.
type ChromedpClient struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	idleAfter   time.Duration
	logger      logging.Logger
}

// NewChromedpClient prepares a browser allocator. Chrome itself is started
// lazily on the first request.
func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromedpClient, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	componentLogger := logger.With(logging.Field{Key: "backend", Value: string(ClientChromedp)})

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.ShowBrowser {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	componentLogger.Debug("created chromedp webclient",
		logging.Field{Key: "timeout", Value: cfg.timeout().String()},
		logging.Field{Key: "idle_after", Value: cfg.idleAfter().String()})

	return &ChromedpClient{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		timeout:     cfg.timeout(),
		idleAfter:   cfg.idleAfter(),
		logger:      componentLogger,
	}, nil
}

// idleWatcher closes done once no request has been in flight for idleAfter.
// Requests are keyed by ID because a redirect sends RequestWillBeSent again
// under the same ID but finishes only once.
type idleWatcher struct {
	idleAfter time.Duration
	done      chan struct{}

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	timer    *time.Timer
	once     sync.Once
}

func newIdleWatcher(idleAfter time.Duration) *idleWatcher {
	return &idleWatcher{
		idleAfter: idleAfter,
		done:      make(chan struct{}),
		inflight:  make(map[network.RequestID]struct{}),
	}
}

func (w *idleWatcher) handle(ev any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		w.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		w.finish(e.RequestID)
	case *network.EventLoadingFailed:
		w.finish(e.RequestID)
	}
}

// finish must be called with mu held.
func (w *idleWatcher) finish(id network.RequestID) {
	delete(w.inflight, id)
	if len(w.inflight) > 0 {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.idleAfter, func() {
		w.mu.Lock()
		idle := len(w.inflight) == 0
		w.mu.Unlock()
		if idle {
			w.once.Do(func() { close(w.done) })
		}
	})
}

// waitNetworkIdle closes the returned channel once no requests have been in
// flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	w := newIdleWatcher(idleAfter)
	chromedp.ListenTarget(ctx, w.handle)
	return w.done
}

func (c *ChromedpClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	method := strings.ToUpper(req.Method)
	if method != "" && method != http.MethodGet {
		return nil, fmt.Errorf("chromedp: method %s not supported", method)
	}

	tabCtx, cancelTab := chromedp.NewContext(c.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()

	// Caller cancellation tears the tab down.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	c.logger.Debug("navigating", logging.Field{Key: "url", Value: req.URL})

	idle := waitNetworkIdle(tabCtx, c.idleAfter)

	navResp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(req.URL))
	if err != nil {
		c.logger.Warn("chromedp navigation failed",
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("chromedp navigate: %w", err)
	}

	select {
	case <-idle:
	case <-time.After(c.timeout / 2):
		c.logger.Debug("network never went idle, capturing anyway", logging.Field{Key: "url", Value: req.URL})
	case <-tabCtx.Done():
		return nil, fmt.Errorf("chromedp wait: %w", tabCtx.Err())
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("chromedp outer html: %w", err)
	}

	resp := &Response{
		Request:    req,
		Headers:    http.Header{},
		Body:       []byte(html),
		StatusCode: http.StatusOK,
		FetchedAt:  time.Now(),
	}
	if navResp != nil {
		resp.StatusCode = int(navResp.Status)
		for k, v := range navResp.Headers {
			for _, line := range strings.Split(fmt.Sprint(v), "\n") {
				resp.Headers.Add(k, line)
			}
		}
	}
	// The DOM is serialized as UTF-8 whatever the server declared.
	resp.Headers.Set("Content-Type", "text/html; charset=utf-8")

	return resp, nil
}

// Get is a convenience method for simple GET requests
func (c *ChromedpClient) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

func (c *ChromedpClient) Close() error {
	c.logger.Debug("closing chromedp webclient")
	c.allocCancel()
	return nil
}
