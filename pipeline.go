package websnap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Pipeline turns a generation request into artifact bytes. It owns the
// request lifecycle: validate, acquire a context lease, configure the
// page, load content, render, release. The lease is released on every
// path, including panics inside the engine.
type Pipeline struct {
	pool      *BrowserPool
	validator *SSRFValidator
	sanitizer *Sanitizer
	logger    *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the structured logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// withValidator substitutes the SSRF validator (used by tests).
func withValidator(v *SSRFValidator) PipelineOption {
	return func(p *Pipeline) {
		p.validator = v
	}
}

// NewPipeline creates a pipeline on top of an existing pool. The pool
// is shared, not owned: closing the pipeline's pool is the caller's
// responsibility.
func NewPipeline(pool *BrowserPool, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		pool:      pool,
		validator: NewSSRFValidator(),
		sanitizer: NewSanitizer(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate renders one request and returns the artifact bytes.
// Validation runs before any pool resource is touched, so malformed
// requests never consume a context slot.
func (p *Pipeline) Generate(ctx context.Context, req GenerationRequest) (result *GenerationResult, err error) {
	start := time.Now()
	req = req.normalized()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Source == SourceURL {
		if err := p.validator.ValidateURL(req.URL); err != nil {
			return nil, err
		}
	}

	leaseID, page, err := p.pool.AcquireContext(ctx, ContextOptions{UserAgent: req.UserAgent})
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := p.pool.ReleaseContext(leaseID); releaseErr != nil {
			p.logger.Warn("lease release failed",
				zap.String("lease_id", leaseID), zap.Error(releaseErr))
		}
		if r := recover(); r != nil {
			p.logger.Error("render panicked",
				zap.String("lease_id", leaseID), zap.Any("panic", r))
			result = nil
			err = fmt.Errorf("%w: panic: %v", ErrGeneration, r)
		}
	}()

	if err := p.configurePage(page, req); err != nil {
		return nil, err
	}
	if err := p.loadContent(ctx, page, req); err != nil {
		return nil, err
	}
	if req.Wait.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(req.Wait.Delay):
		}
	}

	var data []byte
	pages := 0
	switch req.Artifact {
	case ArtifactScreenshot:
		data, err = p.renderScreenshot(page, req)
	default:
		data, pages, err = p.renderPDF(page, req)
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	p.logger.Info("artifact generated",
		zap.String("source", req.Source),
		zap.String("artifact", req.Artifact),
		zap.Int("bytes", len(data)),
		zap.Int("pages", pages),
		zap.Duration("duration", elapsed))

	return &GenerationResult{
		Data:     data,
		FileSize: len(data),
		Pages:    pages,
		Duration: elapsed,
	}, nil
}

// configurePage applies viewport, headers, and cookies to the leased
// page. The request is already validated, so length parse failures here
// indicate an engine problem, not user error.
func (p *Pipeline) configurePage(page PageHandle, req GenerationRequest) error {
	width, err := ParseLength(req.Viewport.Width)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageConfiguration, err)
	}
	height, err := ParseLength(req.Viewport.Height)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageConfiguration, err)
	}
	if err := page.SetViewport(width, height, req.Viewport.Scale, req.Viewport.Mobile); err != nil {
		return fmt.Errorf("%w: viewport: %v", ErrPageConfiguration, err)
	}

	if err := page.SetExtraHeaders(req.Headers); err != nil {
		return fmt.Errorf("%w: headers: %v", ErrPageConfiguration, err)
	}
	if err := page.SetCookies(req.Cookies); err != nil {
		return fmt.Errorf("%w: cookies: %v", ErrPageConfiguration, err)
	}
	return nil
}

// loadContent navigates to the URL or injects sanitized markup. The
// DNS-resolving SSRF check runs here, immediately before navigation,
// because resolution at admission time proves nothing about resolution
// now.
func (p *Pipeline) loadContent(ctx context.Context, page PageHandle, req GenerationRequest) error {
	switch req.Source {
	case SourceURL:
		if err := p.validator.ValidateURLWithDNS(ctx, req.URL); err != nil {
			return err
		}
		if err := page.Navigate(ctx, req.URL, *req.Wait); err != nil {
			return fmt.Errorf("%w: %v", ErrNavigation, err)
		}
	case SourceHTML:
		clean := p.sanitizer.SanitizeHTML(req.HTML)
		if err := page.SetContent(ctx, clean, *req.Wait); err != nil {
			return fmt.Errorf("%w: %v", ErrNavigation, err)
		}
	}
	return nil
}
