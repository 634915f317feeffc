package main

import (
	"errors"
	"fmt"
	"time"

	websnap "github.com/alnah/go-websnap"
	"github.com/alnah/go-websnap/internal/config"
	"github.com/alnah/go-websnap/internal/fileutil"
)

// Sentinel errors for parameter resolution.
var (
	ErrNoInput        = errors.New("no input specified")
	ErrInvalidHeader  = errors.New("invalid header flag")
	ErrInvalidTimeout = errors.New("invalid duration flag")
)

// renderParams is the merged result of config file and flags, the
// single source the batch runner reads. Flags win over config, config
// wins over library defaults.
type renderParams struct {
	artifact  string
	outputDir string
	output    string
	workers   int

	pool websnap.PoolConfig
	base websnap.GenerationRequest
}

// resolveParams merges cfg and flags into concrete render parameters.
func resolveParams(cfg *config.Config, f *cliFlags) (*renderParams, error) {
	p := &renderParams{
		artifact:  firstNonEmpty(f.render.artifact, cfg.Render.Artifact, websnap.ArtifactPDF),
		outputDir: cfg.Output.DefaultDir,
		output:    f.output,
		workers:   f.workers,
	}

	p.pool = websnap.PoolConfig{
		MaxBrowsers:           firstNonZero(f.pool.maxBrowsers, cfg.Pool.MaxBrowsers),
		MaxContextsPerBrowser: firstNonZero(f.pool.contextsPerProc, cfg.Pool.MaxContextsPerBrowser),
		ContextTimeout:        cfg.Pool.ContextTimeout,
		RecycleAfterUses:      cfg.Pool.RecycleAfterUses,
		AcquireTimeout:        cfg.Pool.AcquireTimeout,
		IdleTimeout:           cfg.Pool.IdleTimeout,
		MaxBrowserAge:         cfg.Pool.MaxBrowserAge,
	}
	if f.pool.contextTimeout != "" {
		d, err := time.ParseDuration(f.pool.contextTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: --context-timeout %q", ErrInvalidTimeout, f.pool.contextTimeout)
		}
		p.pool.ContextTimeout = d
	}

	headers, err := parseHeaders(f.pageLoad.headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	wait, err := resolveWait(cfg, f)
	if err != nil {
		return nil, err
	}

	p.base = websnap.GenerationRequest{
		Artifact: p.artifact,
		Viewport: &websnap.Viewport{
			Width:  firstNonEmpty(f.pageLoad.viewportWidth, cfg.Render.ViewportWidth),
			Height: firstNonEmpty(f.pageLoad.viewportHeight, cfg.Render.ViewportHeight),
		},
		Wait:      wait,
		Headers:   headers,
		UserAgent: firstNonEmpty(f.pageLoad.userAgent, cfg.Render.UserAgent),
	}

	switch p.artifact {
	case websnap.ArtifactScreenshot:
		p.base.Screenshot = &websnap.ScreenshotOptions{
			Format:   firstNonEmpty(f.render.imageFormat, cfg.Render.ImageFormat),
			Quality:  f.render.quality,
			FullPage: f.render.fullPage || cfg.Render.FullPage,
		}
	default:
		margin := firstNonEmpty(f.render.margin, cfg.Render.Margin)
		opts := &websnap.PDFOptions{
			Format:          firstNonEmpty(f.render.format, cfg.Render.Format),
			Landscape:       f.render.landscape || cfg.Render.Landscape,
			HeaderTemplate:  f.render.headerTemplate,
			FooterTemplate:  f.render.footerTemplate,
			PageRanges:      f.render.pageRanges,
			Scale:           f.render.scale,
			PrintBackground: f.render.printBackground || cfg.Render.PrintBackground,
		}
		if margin != "" {
			opts.Margins = &websnap.Margins{Top: margin, Bottom: margin, Left: margin, Right: margin}
		}
		p.base.PDF = opts
	}

	return p, nil
}

// resolveWait merges wait-policy settings; nil means library defaults.
func resolveWait(cfg *config.Config, f *cliFlags) (*websnap.WaitPolicy, error) {
	until := firstNonEmpty(f.pageLoad.waitUntil, cfg.Render.WaitUntil)
	timeout := cfg.Render.WaitTimeout
	delay := cfg.Render.Delay

	if f.pageLoad.waitTimeout != "" {
		d, err := time.ParseDuration(f.pageLoad.waitTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: --timeout %q", ErrInvalidTimeout, f.pageLoad.waitTimeout)
		}
		timeout = d
	}
	if f.pageLoad.delay != "" {
		d, err := time.ParseDuration(f.pageLoad.delay)
		if err != nil {
			return nil, fmt.Errorf("%w: --delay %q", ErrInvalidTimeout, f.pageLoad.delay)
		}
		delay = d
	}

	if until == "" && timeout == 0 && delay == 0 {
		return nil, nil
	}
	return &websnap.WaitPolicy{Until: until, Timeout: timeout, Delay: delay}, nil
}

// requestFor builds the request for one input, which is either a URL or
// a path to a local HTML file.
func (p *renderParams) requestFor(input, html string) websnap.GenerationRequest {
	req := p.base
	if fileutil.IsURL(input) {
		req.Source = websnap.SourceURL
		req.URL = input
	} else {
		req.Source = websnap.SourceHTML
		req.HTML = html
	}
	return req
}

// artifactExtension returns the output file extension for the artifact.
func (p *renderParams) artifactExtension() string {
	if p.artifact == websnap.ArtifactScreenshot {
		if p.base.Screenshot != nil && p.base.Screenshot.Format == websnap.ImageJPEG {
			return "jpg"
		}
		return "png"
	}
	return "pdf"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
