package websnap

import (
	"context"
	"sync"
)

// Compile-time checks that the fakes satisfy the engine contract.
var (
	_ browserEngine = (*fakeEngine)(nil)
	_ browserHandle = (*fakeBrowser)(nil)
	_ PageHandle    = (*fakePage)(nil)
)

// fakeEngine records launches and hands out fake browsers.
type fakeEngine struct {
	mu        sync.Mutex
	launchErr error
	browsers  []*fakeBrowser
}

func (e *fakeEngine) Launch(_ context.Context) (browserHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.launchErr != nil {
		return nil, e.launchErr
	}
	b := &fakeBrowser{connected: true, pid: 1000 + len(e.browsers)}
	e.browsers = append(e.browsers, b)
	return b, nil
}

func (e *fakeEngine) launchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.browsers)
}

func (e *fakeEngine) browser(i int) *fakeBrowser {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.browsers[i]
}

// fakeBrowser is one fake renderer process.
type fakeBrowser struct {
	mu            sync.Mutex
	connected     bool
	closed        bool
	pid           int
	newContextErr error
	onDisconnect  func()
	pages         []*fakePage

	// pageNavigateErr is copied onto every newly created page.
	pageNavigateErr error
}

func (b *fakeBrowser) NewContext(_ context.Context, opts ContextOptions) (PageHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.newContextErr != nil {
		return nil, b.newContextErr
	}
	p := &fakePage{userAgent: opts.UserAgent, contentHeight: 1000, navigateErr: b.pageNavigateErr}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected && !b.closed
}

func (b *fakeBrowser) OnDisconnect(fn func()) {
	b.mu.Lock()
	b.onDisconnect = fn
	b.mu.Unlock()
}

func (b *fakeBrowser) PID() int { return b.pid }

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// disconnect simulates the process dropping its control connection.
func (b *fakeBrowser) disconnect() {
	b.mu.Lock()
	b.connected = false
	fn := b.onDisconnect
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// fakePage records every call made against a leased context.
type fakePage struct {
	mu sync.Mutex

	userAgent     string
	viewportW     int
	viewportH     int
	scale         float64
	mobile        bool
	headers       map[string]string
	cookies       []Cookie
	navigatedURL  string
	setHTML       string
	wait          WaitPolicy
	contentHeight float64
	closed        bool

	navigateErr   error
	setContentErr error
	screenshotErr error
	pdfErr        error
	lastPDFSpec   PDFRenderSpec
	lastShot      ScreenshotOptions
}

func (p *fakePage) SetViewport(w, h int, scale float64, mobile bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewportW, p.viewportH, p.scale, p.mobile = w, h, scale, mobile
	return nil
}

func (p *fakePage) SetUserAgent(ua string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userAgent = ua
	return nil
}

func (p *fakePage) SetExtraHeaders(headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.headers = headers
	return nil
}

func (p *fakePage) SetCookies(cookies []Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = cookies
	return nil
}

func (p *fakePage) Navigate(_ context.Context, url string, wait WaitPolicy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.navigatedURL = url
	p.wait = wait
	return nil
}

func (p *fakePage) SetContent(_ context.Context, html string, wait WaitPolicy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setContentErr != nil {
		return p.setContentErr
	}
	p.setHTML = html
	p.wait = wait
	return nil
}

func (p *fakePage) Screenshot(opts ScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.screenshotErr != nil {
		return nil, p.screenshotErr
	}
	p.lastShot = opts
	return []byte("fake-image"), nil
}

func (p *fakePage) PDF(spec PDFRenderSpec) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pdfErr != nil {
		return nil, p.pdfErr
	}
	p.lastPDFSpec = spec
	return []byte("%PDF-fake"), nil
}

func (p *fakePage) ContentHeight() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contentHeight, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
