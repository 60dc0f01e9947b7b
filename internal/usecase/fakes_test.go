package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/photo-resolver/internal/adapter/memory"
	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
	"github.com/user/photo-resolver/pkg/htmldoc"
)

const (
	testDomain    = "smartpdvstore.com"
	testTitle     = "h1.mantine-Title-root"
	testImage     = "img.mantine-Image-root"
	testNoResults = "Nenhum resultado encontrado"
)

func testExtractor() *Extractor {
	return NewExtractor(ExtractorConfig{
		TitleSelector:   testTitle,
		ImageSelector:   testImage,
		NoResultsPhrase: testNoResults,
	})
}

func productHTML(name, src string) string {
	return `<html><head><title>Loja</title></head><body>` +
		`<h1 class="mantine-Title-root">` + name + `</h1>` +
		`<img class="mantine-Image-root" src="` + src + `">` +
		`</body></html>`
}

const noResultsHTML = `<html><body><p>Nenhum resultado encontrado</p></body></html>`

// fakePage scripts what one attempt sees.
type fakePage struct {
	status  int
	navErr  error
	html    string
	timeout bool // WaitFor never sees the marker
	// htmlAfterWait replaces the document once WaitFor returns.
	htmlAfterWait string
}

// fakeRenderer serves pages by attempt number (1-based) per URL.
type fakeRenderer struct {
	mu      sync.Mutex
	script  func(url string, attempt int) fakePage
	visits  map[string]int
	opens   []time.Time
	proxies []entity.ProxyCredential
	openErr error
	// onClose runs as each session closes.
	onClose func()

	open   atomic.Int32
	closed atomic.Int32
}

func newFakeRenderer(script func(url string, attempt int) fakePage) *fakeRenderer {
	return &fakeRenderer{script: script, visits: make(map[string]int)}
}

func (r *fakeRenderer) OpenSession(_ context.Context, proxy *entity.ProxyCredential) (repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens = append(r.opens, time.Now())
	if proxy != nil {
		r.proxies = append(r.proxies, *proxy)
	}
	if r.openErr != nil {
		return nil, r.openErr
	}
	r.open.Add(1)
	return &fakeSession{renderer: r}, nil
}

func (r *fakeRenderer) Opens() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.opens...)
}

func (r *fakeRenderer) Visits(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visits[url]
}

type fakeSession struct {
	renderer *fakeRenderer
	page     fakePage
	doc      *htmldoc.Document
	closed   bool
}

func (s *fakeSession) Navigate(_ context.Context, url string) (*repository.NavigationResponse, error) {
	s.renderer.mu.Lock()
	s.renderer.visits[url]++
	attempt := s.renderer.visits[url]
	s.renderer.mu.Unlock()

	s.page = s.renderer.script(url, attempt)
	if s.page.navErr != nil {
		return nil, s.page.navErr
	}
	doc, err := htmldoc.Parse(s.page.html)
	if err != nil {
		return nil, err
	}
	s.doc = doc
	status := s.page.status
	if status == 0 {
		status = 200
	}
	return &repository.NavigationResponse{Status: status, URL: url}, nil
}

func (s *fakeSession) WaitFor(ctx context.Context, _ string, timeout time.Duration) error {
	defer func() {
		if s.page.htmlAfterWait != "" {
			if doc, err := htmldoc.Parse(s.page.htmlAfterWait); err == nil {
				s.doc = doc
			}
		}
	}()
	if !s.page.timeout {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return repository.ErrRenderTimeout
	}
}

func (s *fakeSession) ReadText(_ context.Context, selector string) (string, error) {
	if v, ok := s.doc.Text(selector); ok {
		return v, nil
	}
	return "", repository.ErrElementNotFound
}

func (s *fakeSession) ReadAttribute(_ context.Context, selector, attr string) (string, error) {
	if v, ok := s.doc.Attr(selector, attr); ok {
		return v, nil
	}
	return "", repository.ErrElementNotFound
}

func (s *fakeSession) ReadAllMatching(_ context.Context, selector, attr string) ([]string, error) {
	return s.doc.AllAttr(selector, attr), nil
}

func (s *fakeSession) Close() error {
	if !s.closed {
		s.closed = true
		s.renderer.closed.Add(1)
		if s.renderer.onClose != nil {
			s.renderer.onClose()
		}
	}
	return nil
}

// htmlSession is a session over a fixed document, for extractor tests.
func htmlSession(html string) *fakeSession {
	r := newFakeRenderer(func(string, int) fakePage { return fakePage{html: html} })
	s := &fakeSession{renderer: r}
	if _, err := s.Navigate(context.Background(), "https://acme."+testDomain+"/produto/X1"); err != nil {
		panic(err)
	}
	return s
}

// fakePool is a ProxySource that counts calls.
type fakePool struct {
	err    error
	ensure atomic.Int32
	picks  atomic.Int32
}

func (p *fakePool) EnsureFresh(context.Context) error {
	p.ensure.Add(1)
	return p.err
}

func (p *fakePool) Pick() (entity.ProxyCredential, error) {
	p.picks.Add(1)
	if p.err != nil {
		return entity.ProxyCredential{}, p.err
	}
	return entity.ProxyCredential{Host: "10.0.0.1", Port: 8080, Username: "u", Password: "p"}, nil
}

// fakeSource serves credentials in fixed-size pages.
type fakeSource struct {
	mu       sync.Mutex
	creds    []entity.ProxyCredential
	pageSize int
	err      error
	calls    int
	block    chan struct{}
}

func (s *fakeSource) ListCredentials(ctx context.Context, page int) (*repository.CredentialPage, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	start := (page - 1) * s.pageSize
	if start >= len(s.creds) {
		return &repository.CredentialPage{}, nil
	}
	end := min(start+s.pageSize, len(s.creds))
	return &repository.CredentialPage{
		Credentials: s.creds[start:end],
		HasNext:     end < len(s.creds),
	}, nil
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeFailures records failure log writes.
type fakeFailures struct {
	mu      sync.Mutex
	saved   []entity.FailedResolution
	deleted []string
}

func (f *fakeFailures) SaveOrUpdate(_ context.Context, failure *entity.FailedResolution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *failure)
	return nil
}

func (f *fakeFailures) Get(_ context.Context, store, reference string) (*entity.FailedResolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].Store == store && f.saved[i].Reference == reference {
			rec := f.saved[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (f *fakeFailures) Delete(_ context.Context, store, reference string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, store+"/"+reference)
	kept := f.saved[:0]
	for _, rec := range f.saved {
		if rec.Store != store || rec.Reference != reference {
			kept = append(kept, rec)
		}
	}
	f.saved = kept
	return nil
}

// brokenCache fails every call.
type brokenCache struct{}

var errBrokenCache = errors.New("connection refused")

func (brokenCache) Get(context.Context, string, string) (*entity.CacheEntry, error) {
	return nil, errBrokenCache
}
func (brokenCache) Put(context.Context, *entity.CacheEntry) error { return errBrokenCache }
func (brokenCache) Ping(context.Context) error                    { return errBrokenCache }

// strictCache refuses writes on a done context, like the network-backed caches.
type strictCache struct{ *memory.CacheRepoImpl }

func (c strictCache) Put(ctx context.Context, entry *entity.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.CacheRepoImpl.Put(ctx, entry)
}

func productURL(ref string) string {
	return "https://acme." + testDomain + "/produto/" + ref
}

func refFromURL(url string) string {
	return url[strings.LastIndex(url, "/")+1:]
}
