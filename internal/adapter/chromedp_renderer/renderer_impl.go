package chromedp_renderer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
	"github.com/user/photo-resolver/pkg/htmldoc"
	"github.com/user/photo-resolver/pkg/metrics"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36",
}

// ChromedpRenderer opens one headless browser per session so each session
// can egress through its own proxy. At most maxSessions are open at once.
type ChromedpRenderer struct {
	headless bool
	slots    chan struct{}
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[*chromedpSession]struct{}
	closed   bool
}

// NewChromedpRenderer creates a new renderer implementation using chromedp.
func NewChromedpRenderer(maxSessions int, headless bool, logger *zap.Logger) *ChromedpRenderer {
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &ChromedpRenderer{
		headless: headless,
		slots:    make(chan struct{}, maxSessions),
		logger:   logger,
		sessions: make(map[*chromedpSession]struct{}),
	}
}

func (r *ChromedpRenderer) allocatorOptions(proxy *entity.ProxyCredential) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgents[rand.IntN(len(userAgents))]),
	)
	if proxy != nil {
		opts = append(opts, chromedp.ProxyServer("http://"+proxy.Addr()))
	}
	return opts
}

// OpenSession waits for a free slot, then starts a browser routed through proxy.
func (r *ChromedpRenderer) OpenSession(ctx context.Context, proxy *entity.ProxyCredential) (repository.Session, error) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.slots
		return nil, repository.ErrRendererClosed
	}
	// The browser outlives individual calls; Close or Shutdown ends it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), r.allocatorOptions(proxy)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := &chromedpSession{
		renderer: r,
		tabCtx:   tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
	metrics.RendererSessionsOpen.Inc()

	// Abandon startup if the caller gives up first.
	stop := context.AfterFunc(ctx, s.cancel)
	err := s.start(proxy)
	stop()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

// Shutdown closes every open session and rejects new ones.
func (r *ChromedpRenderer) Shutdown() {
	r.mu.Lock()
	r.closed = true
	open := make([]*chromedpSession, 0, len(r.sessions))
	for s := range r.sessions {
		open = append(open, s)
	}
	r.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}
	r.logger.Info("renderer shut down", zap.Int("sessions_closed", len(open)))
}

func (r *ChromedpRenderer) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *ChromedpRenderer) release(s *chromedpSession) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
	<-r.slots
	metrics.RendererSessionsOpen.Dec()
}

type chromedpSession struct {
	renderer *ChromedpRenderer
	tabCtx   context.Context
	cancel   func()

	mu        sync.Mutex
	doc       *htmldoc.Document
	closeOnce sync.Once
}

// start launches the browser. With credentials it also answers proxy auth
// challenges through the Fetch domain.
func (s *chromedpSession) start(proxy *entity.ProxyCredential) error {
	if proxy == nil || proxy.Username == "" {
		return chromedp.Run(s.tabCtx)
	}

	chromedp.ListenTarget(s.tabCtx, func(ev any) {
		switch ev := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				_ = chromedp.Run(s.tabCtx, fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: proxy.Username,
					Password: proxy.Password,
				}))
			}()
		case *fetch.EventRequestPaused:
			go func() {
				_ = chromedp.Run(s.tabCtx, fetch.ContinueRequest(ev.RequestID))
			}()
		}
	})
	return chromedp.Run(s.tabCtx, fetch.Enable().WithHandleAuthRequests(true))
}

// runContext derives a chromedp context from the tab that also ends with ctx.
func (s *chromedpSession) runContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.tabCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.tabCtx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) (*repository.NavigationResponse, error) {
	runCtx, cancel := s.runContext(ctx, 0)
	defer cancel()

	s.invalidate()
	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, s.fail(err)
	}
	out := &repository.NavigationResponse{URL: url}
	if resp != nil {
		out.Status = int(resp.Status)
		out.URL = resp.URL
	}
	return out, nil
}

func (s *chromedpSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := s.runContext(ctx, timeout)
	defer cancel()

	defer s.invalidate()
	err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %q not visible after %s", repository.ErrRenderTimeout, selector, timeout)
	}
	return s.fail(err)
}

func (s *chromedpSession) ReadText(ctx context.Context, selector string) (string, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	if v, ok := doc.Text(selector); ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", repository.ErrElementNotFound, selector)
}

func (s *chromedpSession) ReadAttribute(ctx context.Context, selector, attr string) (string, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	if v, ok := doc.Attr(selector, attr); ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s[%s]", repository.ErrElementNotFound, selector, attr)
}

func (s *chromedpSession) ReadAllMatching(ctx context.Context, selector, attr string) ([]string, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return doc.AllAttr(selector, attr), nil
}

// snapshot serializes the live DOM once and serves reads from it until the
// next navigation or wait.
func (s *chromedpSession) snapshot(ctx context.Context) (*htmldoc.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		return s.doc, nil
	}

	runCtx, cancel := s.runContext(ctx, 0)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read dom: %w", s.fail(err))
	}
	doc, err := htmldoc.Parse(html)
	if err != nil {
		return nil, fmt.Errorf("parse dom: %w", err)
	}
	s.doc = doc
	return doc, nil
}

// fail marks errors caused by Shutdown tearing the browser down mid-call.
func (s *chromedpSession) fail(err error) error {
	if err == nil || !s.renderer.isClosed() {
		return err
	}
	return fmt.Errorf("%w: %w", repository.ErrRendererClosed, err)
}

func (s *chromedpSession) invalidate() {
	s.mu.Lock()
	s.doc = nil
	s.mu.Unlock()
}

// Close shuts the browser down and frees the session slot. Safe to call repeatedly.
func (s *chromedpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(s.tabCtx, 5*time.Second)
		err = chromedp.Cancel(closeCtx)
		cancel()
		s.cancel()
		s.renderer.release(s)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}
