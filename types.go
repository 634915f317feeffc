package websnap

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Source kind constants.
const (
	SourceURL  = "url"
	SourceHTML = "html"
)

// Artifact kind constants.
const (
	ArtifactPDF        = "pdf"
	ArtifactScreenshot = "screenshot"
)

// Wait condition constants.
const (
	WaitLoad        = "load"
	WaitDOMReady    = "domcontentloaded"
	WaitNetworkIdle = "networkidle"
)

// Image format constants for screenshots.
const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

// Wait timeout bounds.
const (
	MinWaitTimeout = 1 * time.Second
	MaxWaitTimeout = 60 * time.Second
)

// Render scale bounds.
const (
	MinScale = 0.1
	MaxScale = 2.0
)

// Default viewport dimensions.
const (
	DefaultViewportWidth  = "1280px"
	DefaultViewportHeight = "800px"
)

// defaultWaitTimeout is used when the request does not specify one.
const defaultWaitTimeout = 30 * time.Second

// WaitPolicy describes the load-completion condition for a page.
type WaitPolicy struct {
	Until   string        // "load", "domcontentloaded", "networkidle"
	Timeout time.Duration // bounded to [MinWaitTimeout, MaxWaitTimeout]
	Delay   time.Duration // optional post-load settle delay
}

// DefaultWaitPolicy returns the wait policy applied when none is given.
func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{Until: WaitLoad, Timeout: defaultWaitTimeout}
}

// Validate checks the wait condition and timeout bounds.
func (w WaitPolicy) Validate() error {
	switch w.Until {
	case WaitLoad, WaitDOMReady, WaitNetworkIdle:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidWaitUntil, w.Until)
	}
	if w.Timeout < MinWaitTimeout || w.Timeout > MaxWaitTimeout {
		return fmt.Errorf("%w: timeout %s (must be between %s and %s)",
			ErrInvalidOptions, w.Timeout, MinWaitTimeout, MaxWaitTimeout)
	}
	if w.Delay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidOptions)
	}
	return nil
}

// Viewport configures page dimensions. Width and Height accept length
// strings with units ("1280px", "8.5in", "21cm", "210mm"); bare numbers
// are pixels.
type Viewport struct {
	Width  string
	Height string
	Scale  float64 // device scale factor, 0 = 1.0
	Mobile bool
}

// Cookie is set on the page before navigation.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Margins configures PDF page margins as length strings. Empty fields
// default to zero.
type Margins struct {
	Top    string
	Bottom string
	Left   string
	Right  string
}

// PDFOptions configures PDF rendering.
type PDFOptions struct {
	Format          string // named paper format, default "a4"
	Landscape       bool
	Margins         *Margins
	HeaderTemplate  string // sanitized before use
	FooterTemplate  string // sanitized before use
	PageRanges      string // e.g. "1-3,5"
	Scale           float64
	PrintBackground bool
}

// ScreenshotOptions configures image capture.
type ScreenshotOptions struct {
	Format   string // "png" (default) or "jpeg"
	Quality  int    // jpeg only, 0-100 (0 = engine default)
	FullPage bool
}

// GenerationRequest describes one render job.
type GenerationRequest struct {
	Source   string // SourceURL or SourceHTML
	URL      string // required for SourceURL
	HTML     string // required for SourceHTML
	Artifact string // ArtifactPDF (default) or ArtifactScreenshot

	Viewport  *Viewport
	Wait      *WaitPolicy
	Headers   map[string]string
	Cookies   []Cookie
	UserAgent string

	PDF        *PDFOptions
	Screenshot *ScreenshotOptions
}

// GenerationResult is the produced artifact.
type GenerationResult struct {
	Data     []byte
	FileSize int
	Pages    int // estimated page count, PDF only (0 for screenshots)
	Duration time.Duration
}

// normalized returns a copy of the request with defaults applied.
// The original request is never mutated.
func (r GenerationRequest) normalized() GenerationRequest {
	if r.Artifact == "" {
		r.Artifact = ArtifactPDF
	}
	if r.Wait == nil {
		w := DefaultWaitPolicy()
		r.Wait = &w
	} else {
		w := *r.Wait
		if w.Until == "" {
			w.Until = WaitLoad
		}
		if w.Timeout == 0 {
			w.Timeout = defaultWaitTimeout
		}
		r.Wait = &w
	}
	if r.Viewport == nil {
		r.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	} else {
		v := *r.Viewport
		if v.Width == "" {
			v.Width = DefaultViewportWidth
		}
		if v.Height == "" {
			v.Height = DefaultViewportHeight
		}
		r.Viewport = &v
	}
	if r.Artifact == ArtifactPDF {
		var p PDFOptions
		if r.PDF != nil {
			p = *r.PDF
		}
		if p.Format == "" {
			p.Format = FormatA4
		}
		if p.Scale == 0 {
			p.Scale = 1.0
		}
		r.PDF = &p
	}
	if r.Artifact == ArtifactScreenshot {
		var s ScreenshotOptions
		if r.Screenshot != nil {
			s = *r.Screenshot
		}
		if s.Format == "" {
			s.Format = ImagePNG
		}
		r.Screenshot = &s
	}
	return r
}

// Validate checks structural validity. It runs before any pool resource
// is acquired; SSRF validation is layered on top by the pipeline.
// Expects a normalized request.
func (r GenerationRequest) Validate() error {
	switch r.Source {
	case SourceURL:
		if r.URL == "" {
			return fmt.Errorf("%w: url is required for url source", ErrInvalidOptions)
		}
		u, err := url.Parse(r.URL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidURL, r.URL)
		}
	case SourceHTML:
		if strings.TrimSpace(r.HTML) == "" {
			return fmt.Errorf("%w: html is required for html source", ErrInvalidOptions)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalidOptions, r.Source)
	}

	switch r.Artifact {
	case ArtifactPDF, ArtifactScreenshot:
	default:
		return fmt.Errorf("%w: unknown artifact kind %q", ErrInvalidOptions, r.Artifact)
	}

	if err := r.Wait.Validate(); err != nil {
		return err
	}

	if _, err := ParseLength(r.Viewport.Width); err != nil {
		return fmt.Errorf("%w: viewport width: %v", ErrInvalidOptions, err)
	}
	if _, err := ParseLength(r.Viewport.Height); err != nil {
		return fmt.Errorf("%w: viewport height: %v", ErrInvalidOptions, err)
	}
	if r.Viewport.Scale != 0 && (r.Viewport.Scale < MinScale || r.Viewport.Scale > MaxScale) {
		return fmt.Errorf("%w: viewport scale %.2f (must be between %.1f and %.1f)",
			ErrInvalidOptions, r.Viewport.Scale, MinScale, MaxScale)
	}

	if r.Artifact == ArtifactPDF {
		if err := r.PDF.validate(); err != nil {
			return err
		}
	}
	if r.Artifact == ArtifactScreenshot {
		if err := r.Screenshot.validate(); err != nil {
			return err
		}
	}
	return nil
}

// validate checks PDF options. Expects normalized options.
func (p *PDFOptions) validate() error {
	if _, ok := lookupPaperFormat(p.Format); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPaperFormat, p.Format)
	}
	if p.Scale < MinScale || p.Scale > MaxScale {
		return fmt.Errorf("%w: scale %.2f (must be between %.1f and %.1f)",
			ErrInvalidOptions, p.Scale, MinScale, MaxScale)
	}
	if p.Margins != nil {
		for _, m := range []string{p.Margins.Top, p.Margins.Bottom, p.Margins.Left, p.Margins.Right} {
			if m == "" {
				continue
			}
			if _, err := ParseLength(m); err != nil {
				return fmt.Errorf("%w: margin: %v", ErrInvalidOptions, err)
			}
		}
	}
	return nil
}

// validate checks screenshot options. Expects normalized options.
func (s *ScreenshotOptions) validate() error {
	switch s.Format {
	case ImagePNG, ImageJPEG:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidImageFormat, s.Format)
	}
	if s.Quality < 0 || s.Quality > 100 {
		return fmt.Errorf("%w: quality %d (must be between 0 and 100)", ErrInvalidOptions, s.Quality)
	}
	return nil
}
