package websnap

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// browserEngine launches renderer processes. The production engine
// drives headless Chrome via go-rod; tests substitute fakes so pool and
// pipeline behavior is verifiable without a browser.
type browserEngine interface {
	Launch(ctx context.Context) (browserHandle, error)
}

// browserHandle is one renderer process.
type browserHandle interface {
	// NewContext carves an isolated execution context (own cookies and
	// storage) out of the process and returns its blank page.
	NewContext(ctx context.Context, opts ContextOptions) (PageHandle, error)
	// Connected reports whether the process still answers.
	Connected() bool
	// OnDisconnect registers a callback fired once when the process
	// connection drops.
	OnDisconnect(fn func())
	// PID returns the process id, for last-resort cleanup.
	PID() int
	Close() error
}

// PageHandle is the page of one leased execution context.
type PageHandle interface {
	SetViewport(width, height int, scale float64, mobile bool) error
	SetUserAgent(ua string) error
	SetExtraHeaders(headers map[string]string) error
	SetCookies(cookies []Cookie) error
	Navigate(ctx context.Context, url string, wait WaitPolicy) error
	SetContent(ctx context.Context, html string, wait WaitPolicy) error
	Screenshot(opts ScreenshotOptions) ([]byte, error)
	PDF(spec PDFRenderSpec) ([]byte, error)
	// ContentHeight returns the rendered document height in pixels.
	ContentHeight() (float64, error)
	Close() error
}

// ContextOptions carries per-lease context configuration merged with the
// engine's anti-detection defaults.
type ContextOptions struct {
	UserAgent string // empty = engine default
}

// PDFRenderSpec is the engine-level print request, dimensions in inches.
type PDFRenderSpec struct {
	WidthIn         float64
	HeightIn        float64
	MarginTopIn     float64
	MarginBottomIn  float64
	MarginLeftIn    float64
	MarginRightIn   float64
	HeaderTemplate  string
	FooterTemplate  string
	PageRanges      string
	Scale           float64
	PrintBackground bool
}

// EngineConfig configures the Chrome launch.
type EngineConfig struct {
	// Bin is the browser executable path. Empty lets rod resolve or
	// download one; WEBSNAP_BROWSER_BIN overrides for containerized
	// deployments.
	Bin string
	// NoSandbox is required in CI and most containers.
	NoSandbox bool
	// Flags are extra key=value switches passed to the browser.
	Flags map[string]string
}

// EngineConfigFromEnv mirrors the environment handling used for
// containerized deployments: an explicit binary implies no sandbox.
func EngineConfigFromEnv() EngineConfig {
	cfg := EngineConfig{Bin: os.Getenv("WEBSNAP_BROWSER_BIN")}
	if os.Getenv("CI") == "true" || cfg.Bin != "" {
		cfg.NoSandbox = true
	}
	return cfg
}

// defaultUserAgent is the anti-detection default applied to every
// context unless the caller overrides it.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// stealthInit masks the most common headless tells before any page
// script runs.
const stealthInit = `() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	window.chrome = window.chrome || { runtime: {} };
}`

// rodEngine implements browserEngine with go-rod.
type rodEngine struct {
	cfg EngineConfig
}

func newRodEngine(cfg EngineConfig) *rodEngine {
	return &rodEngine{cfg: cfg}
}

// Launch starts a headless browser process and connects to it.
func (e *rodEngine) Launch(ctx context.Context) (browserHandle, error) {
	l := launcher.New().Headless(true)
	if e.cfg.Bin != "" {
		l = l.Bin(e.cfg.Bin)
	}
	if e.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	l = l.Set("disable-blink-features", "AutomationControlled")
	for k, v := range e.cfg.Flags {
		l = l.Set(flags.Flag(k), v)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}

	browser := rod.New().Context(ctx).ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}

	return &rodBrowser{browser: browser, launcher: l}, nil
}

// rodBrowser wraps one launched Chrome process.
type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewContext creates an incognito browser context and opens its page.
func (b *rodBrowser) NewContext(ctx context.Context, opts ContextOptions) (PageHandle, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextCreate, err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: incognito.BrowserContextID}.Call(b.browser)
		return nil, fmt.Errorf("%w: %v", ErrContextCreate, err)
	}
	page = page.Context(ctx)

	if _, err := page.EvalOnNewDocument(stealthInit); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("%w: %v", ErrContextCreate, err)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("%w: %v", ErrContextCreate, err)
	}

	return &rodPage{page: page, incognito: incognito, root: b.browser}, nil
}

// Connected probes the process with a cheap version call.
func (b *rodBrowser) Connected() bool {
	_, err := proto.BrowserGetVersion{}.Call(b.browser)
	return err == nil
}

// OnDisconnect fires fn when the event stream closes, which happens
// exactly when the CDP connection drops.
func (b *rodBrowser) OnDisconnect(fn func()) {
	go func() {
		for range b.browser.Event() {
		}
		fn()
	}()
}

func (b *rodBrowser) PID() int {
	return b.launcher.PID()
}

// Close disconnects and kills the launched process tree.
func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	return err
}

// rodPage wraps the page of one incognito context.
type rodPage struct {
	page      *rod.Page
	incognito *rod.Browser
	root      *rod.Browser
}

func (p *rodPage) SetViewport(width, height int, scale float64, mobile bool) error {
	if scale <= 0 {
		scale = 1.0
	}
	return p.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: scale,
		Mobile:            mobile,
	})
}

func (p *rodPage) SetUserAgent(ua string) error {
	return p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
}

func (p *rodPage) SetExtraHeaders(headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		pairs = append(pairs, k, v)
	}
	_, err := p.page.SetExtraHeaders(pairs)
	return err
}

func (p *rodPage) SetCookies(cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return p.page.SetCookies(params)
}

// Navigate loads url and blocks until the requested wait condition.
func (p *rodPage) Navigate(ctx context.Context, url string, wait WaitPolicy) error {
	page := p.page.Context(ctx).Timeout(wait.Timeout)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return waitUntil(page, wait.Until)
}

// SetContent replaces the document markup and waits like Navigate.
func (p *rodPage) SetContent(ctx context.Context, html string, wait WaitPolicy) error {
	page := p.page.Context(ctx).Timeout(wait.Timeout)
	if err := page.SetDocumentContent(html); err != nil {
		return err
	}
	return waitUntil(page, wait.Until)
}

// waitUntil blocks for the requested load-completion condition. The
// page passed in already carries the timeout context.
func waitUntil(page *rod.Page, until string) error {
	switch until {
	case WaitDOMReady:
		return page.WaitDOMStable(300*time.Millisecond, 0)
	case WaitNetworkIdle:
		if err := page.WaitLoad(); err != nil {
			return err
		}
		page.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
		return nil
	default:
		return page.WaitLoad()
	}
}

func (p *rodPage) Screenshot(opts ScreenshotOptions) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if opts.Format == ImageJPEG {
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		if opts.Quality > 0 {
			q := opts.Quality
			req.Quality = &q
		}
	}
	return p.page.Screenshot(opts.FullPage, req)
}

func (p *rodPage) PDF(spec PDFRenderSpec) ([]byte, error) {
	req := &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(spec.WidthIn),
		PaperHeight:     floatPtr(spec.HeightIn),
		MarginTop:       floatPtr(spec.MarginTopIn),
		MarginBottom:    floatPtr(spec.MarginBottomIn),
		MarginLeft:      floatPtr(spec.MarginLeftIn),
		MarginRight:     floatPtr(spec.MarginRightIn),
		PageRanges:      spec.PageRanges,
		PrintBackground: spec.PrintBackground,
	}
	if spec.Scale > 0 {
		req.Scale = floatPtr(spec.Scale)
	}
	if spec.HeaderTemplate != "" || spec.FooterTemplate != "" {
		req.DisplayHeaderFooter = true
		req.HeaderTemplate = orEmptySpan(spec.HeaderTemplate)
		req.FooterTemplate = orEmptySpan(spec.FooterTemplate)
	}

	reader, err := p.page.PDF(req)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

// ContentHeight reads the rendered document height for page estimation.
func (p *rodPage) ContentHeight() (float64, error) {
	res, err := p.page.Eval(`() => document.documentElement.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}

// Close closes the page, then disposes its browser context.
func (p *rodPage) Close() error {
	err := p.page.Close()
	disposeErr := proto.TargetDisposeBrowserContext{
		BrowserContextID: p.incognito.BrowserContextID,
	}.Call(p.root)
	if err != nil {
		return err
	}
	return disposeErr
}

// orEmptySpan substitutes Chrome's required non-empty template.
func orEmptySpan(tpl string) string {
	if tpl == "" {
		return "<span></span>"
	}
	return tpl
}

// floatPtr returns a pointer to a float64 value.
func floatPtr(v float64) *float64 {
	return &v
}
