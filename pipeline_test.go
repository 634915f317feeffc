package websnap

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// newTestPipeline wires a pipeline to a fake engine and a stub resolver
// that answers public addresses for every hostname.
func newTestPipeline(t *testing.T) (*Pipeline, *fakeEngine) {
	t.Helper()
	pool, engine := newTestPool(t, fastPoolConfig())
	validator := &SSRFValidator{lookupIP: func(_ context.Context, _ string) ([]net.IPAddr, error) {
		return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
	}}
	return NewPipeline(pool, withValidator(validator)), engine
}

func TestPipelineGeneratePDFFromURL(t *testing.T) {
	t.Parallel()

	pipe, engine := newTestPipeline(t)

	result, err := pipe.Generate(context.Background(), GenerationRequest{
		Source: SourceURL,
		URL:    "https://example.com/report",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(result.Data) == 0 || result.FileSize != len(result.Data) {
		t.Errorf("result = %+v, want pdf bytes with matching size", result)
	}
	if result.Pages < 1 {
		t.Errorf("Pages = %d, want >= 1", result.Pages)
	}
	if result.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", result.Duration)
	}

	page := engine.browser(0).pages[0]
	if page.navigatedURL != "https://example.com/report" {
		t.Errorf("navigated to %q", page.navigatedURL)
	}
	if page.viewportW != 1280 || page.viewportH != 800 {
		t.Errorf("viewport = %dx%d, want default 1280x800", page.viewportW, page.viewportH)
	}
	if !page.isClosed() {
		t.Error("page not closed after generation")
	}
}

func TestPipelineGenerateScreenshot(t *testing.T) {
	t.Parallel()

	pipe, engine := newTestPipeline(t)

	result, err := pipe.Generate(context.Background(), GenerationRequest{
		Source:     SourceURL,
		URL:        "https://example.com",
		Artifact:   ArtifactScreenshot,
		Screenshot: &ScreenshotOptions{Format: ImageJPEG, Quality: 80, FullPage: true},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Pages != 0 {
		t.Errorf("Pages = %d, want 0 for screenshot", result.Pages)
	}

	shot := engine.browser(0).pages[0].lastShot
	if shot.Format != ImageJPEG || shot.Quality != 80 || !shot.FullPage {
		t.Errorf("screenshot options = %+v", shot)
	}
}

func TestPipelineSanitizesHTMLSource(t *testing.T) {
	t.Parallel()

	pipe, engine := newTestPipeline(t)

	_, err := pipe.Generate(context.Background(), GenerationRequest{
		Source: SourceHTML,
		HTML:   `<h1>Report</h1><script>fetch("http://169.254.169.254/")</script>`,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	injected := engine.browser(0).pages[0].setHTML
	if strings.Contains(injected, "<script") || strings.Contains(injected, "169.254.169.254") {
		t.Errorf("unsanitized markup reached the engine: %q", injected)
	}
	if !strings.Contains(injected, "<h1>Report</h1>") {
		t.Errorf("benign markup lost: %q", injected)
	}
}

func TestPipelineSanitizesPDFTemplates(t *testing.T) {
	t.Parallel()

	pipe, engine := newTestPipeline(t)

	_, err := pipe.Generate(context.Background(), GenerationRequest{
		Source: SourceHTML,
		HTML:   "<p>x</p>",
		PDF: &PDFOptions{
			HeaderTemplate: `<script>steal()</script><span class="title"></span>`,
			FooterTemplate: `<span class="pageNumber"></span>`,
		},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	spec := engine.browser(0).pages[0].lastPDFSpec
	if strings.Contains(spec.HeaderTemplate, "script") {
		t.Errorf("header template not sanitized: %q", spec.HeaderTemplate)
	}
	if !strings.Contains(spec.FooterTemplate, "pageNumber") {
		t.Errorf("footer placeholder lost: %q", spec.FooterTemplate)
	}
}

func TestPipelinePDFSpecDimensions(t *testing.T) {
	t.Parallel()

	pipe, engine := newTestPipeline(t)

	_, err := pipe.Generate(context.Background(), GenerationRequest{
		Source: SourceHTML,
		HTML:   "<p>x</p>",
		PDF: &PDFOptions{
			Format:    FormatLetter,
			Landscape: true,
			Margins:   &Margins{Top: "1in", Bottom: "1in"},
		},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	spec := engine.browser(0).pages[0].lastPDFSpec
	if spec.WidthIn != 11.0 || spec.HeightIn != 8.5 {
		t.Errorf("letter landscape = %vx%v in, want 11x8.5", spec.WidthIn, spec.HeightIn)
	}
	if spec.MarginTopIn != 1.0 || spec.MarginBottomIn != 1.0 || spec.MarginLeftIn != 0 {
		t.Errorf("margins = %+v", spec)
	}
}

func TestPipelineRejectsInvalidRequestWithoutAcquiring(t *testing.T) {
	t.Parallel()

	pipe, engine := newTestPipeline(t)

	_, err := pipe.Generate(context.Background(), GenerationRequest{Source: "carrier-pigeon"})
	if !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("Generate() error = %v, want ErrInvalidOptions", err)
	}
	if engine.launchCount() != 0 {
		t.Errorf("launches = %d, invalid request consumed pool resources", engine.launchCount())
	}
}

func TestPipelineBlocksSSRFBeforeAcquiring(t *testing.T) {
	t.Parallel()

	pipe, engine := newTestPipeline(t)

	_, err := pipe.Generate(context.Background(), GenerationRequest{
		Source: SourceURL,
		URL:    "http://169.254.169.254/latest/meta-data/",
	})
	if !errors.Is(err, ErrSSRFBlocked) {
		t.Fatalf("Generate() error = %v, want ErrSSRFBlocked", err)
	}
	if engine.launchCount() != 0 {
		t.Errorf("launches = %d, blocked URL consumed pool resources", engine.launchCount())
	}
}

func TestPipelineBlocksDNSRebinding(t *testing.T) {
	t.Parallel()

	pool, _ := newTestPool(t, fastPoolConfig())
	validator := &SSRFValidator{lookupIP: func(_ context.Context, _ string) ([]net.IPAddr, error) {
		return []net.IPAddr{{IP: net.ParseIP("10.0.0.8")}}, nil
	}}
	pipe := NewPipeline(pool, withValidator(validator))

	_, err := pipe.Generate(context.Background(), GenerationRequest{
		Source: SourceURL,
		URL:    "https://rebind.example.com",
	})
	if !errors.Is(err, ErrSSRFBlocked) {
		t.Errorf("Generate() error = %v, want ErrSSRFBlocked", err)
	}
}

func TestPipelineReleasesLeaseOnFailure(t *testing.T) {
	t.Parallel()

	cfg := fastPoolConfig()
	cfg.MaxBrowsers = 1
	cfg.MaxContextsPerBrowser = 1
	pool, engine := newTestPool(t, cfg)
	validator := &SSRFValidator{lookupIP: func(_ context.Context, _ string) ([]net.IPAddr, error) {
		return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
	}}
	pipe := NewPipeline(pool, withValidator(validator))
	ctx := context.Background()

	// Seed a browser, then make navigation fail on the next context.
	if _, err := pipe.Generate(ctx, GenerationRequest{Source: SourceHTML, HTML: "<p>x</p>"}); err != nil {
		t.Fatalf("seed generate: %v", err)
	}
	engine.browser(0).mu.Lock()
	engine.browser(0).pageNavigateErr = errors.New("net::ERR_CONNECTION_REFUSED")
	engine.browser(0).mu.Unlock()

	_, err := pipe.Generate(ctx, GenerationRequest{Source: SourceURL, URL: "https://down.example.com"})
	if !errors.Is(err, ErrNavigation) {
		t.Fatalf("Generate() error = %v, want ErrNavigation", err)
	}

	// The failed render must have released its lease: with capacity 1,
	// another render still goes through.
	if _, err := pipe.Generate(ctx, GenerationRequest{Source: SourceHTML, HTML: "<p>y</p>"}); err != nil {
		t.Errorf("generate after failure error = %v, lease leaked", err)
	}
}

func TestPipelineExhaustionPassthrough(t *testing.T) {
	t.Parallel()

	cfg := fastPoolConfig()
	cfg.MaxBrowsers = 1
	cfg.MaxContextsPerBrowser = 1
	pool, _ := newTestPool(t, cfg)
	pipe := NewPipeline(pool)
	ctx := context.Background()

	// Occupy the only slot directly on the pool.
	if _, _, err := pool.AcquireContext(ctx, ContextOptions{}); err != nil {
		t.Fatalf("AcquireContext() error = %v", err)
	}

	_, err := pipe.Generate(ctx, GenerationRequest{Source: SourceHTML, HTML: "<p>x</p>"})
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Generate() error = %v, want ErrPoolExhausted", err)
	}
}

func TestPipelineAppliesRequestConfiguration(t *testing.T) {
	t.Parallel()

	pipe, engine := newTestPipeline(t)

	_, err := pipe.Generate(context.Background(), GenerationRequest{
		Source:    SourceURL,
		URL:       "https://example.com",
		Viewport:  &Viewport{Width: "8.5in", Height: "11in", Scale: 2.0, Mobile: true},
		Wait:      &WaitPolicy{Until: WaitNetworkIdle, Timeout: 10 * time.Second},
		Headers:   map[string]string{"Authorization": "Bearer tok"},
		Cookies:   []Cookie{{Name: "session", Value: "abc", Domain: "example.com"}},
		UserAgent: "custom-agent/1.0",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	page := engine.browser(0).pages[0]
	if page.viewportW != 816 || page.viewportH != 1056 || page.scale != 2.0 || !page.mobile {
		t.Errorf("viewport = %d x %d scale %v mobile %v", page.viewportW, page.viewportH, page.scale, page.mobile)
	}
	if page.headers["Authorization"] != "Bearer tok" {
		t.Errorf("headers = %v", page.headers)
	}
	if len(page.cookies) != 1 || page.cookies[0].Name != "session" {
		t.Errorf("cookies = %v", page.cookies)
	}
	if page.wait.Until != WaitNetworkIdle {
		t.Errorf("wait = %+v", page.wait)
	}
	if page.userAgent != "custom-agent/1.0" {
		t.Errorf("user agent = %q", page.userAgent)
	}
}
