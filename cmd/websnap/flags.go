package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across render modes.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// renderFlags holds artifact and page options.
type renderFlags struct {
	artifact        string
	format          string
	landscape       bool
	margin          string
	headerTemplate  string
	footerTemplate  string
	pageRanges      string
	scale           float64
	printBackground bool
	fullPage        bool
	imageFormat     string
	quality         int
}

// pageLoadFlags holds navigation and page setup options.
type pageLoadFlags struct {
	waitUntil      string
	waitTimeout    string
	delay          string
	viewportWidth  string
	viewportHeight string
	userAgent      string
	headers        []string // repeated key=value
}

// poolFlags holds browser pool sizing overrides.
type poolFlags struct {
	maxBrowsers     int
	contextsPerProc int
	contextTimeout  string
}

// cliFlags holds all flags for the render command.
type cliFlags struct {
	common   commonFlags
	render   renderFlags
	pageLoad pageLoadFlags
	pool     poolFlags
	output   string
	workers  int
	version  bool
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show detailed progress")
}

// addRenderFlags adds artifact flags to a FlagSet.
func addRenderFlags(fs *flag.FlagSet, f *renderFlags) {
	fs.StringVarP(&f.artifact, "artifact", "a", "", "artifact kind: pdf, screenshot")
	fs.StringVarP(&f.format, "format", "f", "", "paper format: a3, a4, a5, letter, legal, tabloid")
	fs.BoolVar(&f.landscape, "landscape", false, "landscape orientation")
	fs.StringVar(&f.margin, "margin", "", "uniform page margin (e.g. 1cm, 0.5in)")
	fs.StringVar(&f.headerTemplate, "header-template", "", "PDF header template HTML")
	fs.StringVar(&f.footerTemplate, "footer-template", "", "PDF footer template HTML")
	fs.StringVar(&f.pageRanges, "page-ranges", "", "pages to print (e.g. 1-3,5)")
	fs.Float64Var(&f.scale, "scale", 0, "render scale (0.1-2.0)")
	fs.BoolVar(&f.printBackground, "print-background", false, "print background graphics")
	fs.BoolVar(&f.fullPage, "full-page", false, "capture the full scrollable page")
	fs.StringVar(&f.imageFormat, "image-format", "", "screenshot format: png, jpeg")
	fs.IntVar(&f.quality, "quality", 0, "jpeg quality (1-100)")
}

// addPageLoadFlags adds navigation flags to a FlagSet.
func addPageLoadFlags(fs *flag.FlagSet, f *pageLoadFlags) {
	fs.StringVar(&f.waitUntil, "wait-until", "", "wait condition: load, domcontentloaded, networkidle")
	fs.StringVarP(&f.waitTimeout, "timeout", "t", "", "navigation timeout (e.g. 30s)")
	fs.StringVar(&f.delay, "delay", "", "extra settle delay after load (e.g. 500ms)")
	fs.StringVar(&f.viewportWidth, "width", "", "viewport width (e.g. 1280px)")
	fs.StringVar(&f.viewportHeight, "height", "", "viewport height (e.g. 800px)")
	fs.StringVar(&f.userAgent, "user-agent", "", "user agent override")
	fs.StringArrayVarP(&f.headers, "header", "H", nil, "extra request header key=value (repeatable)")
}

// addPoolFlags adds pool sizing flags to a FlagSet.
func addPoolFlags(fs *flag.FlagSet, f *poolFlags) {
	fs.IntVar(&f.maxBrowsers, "max-browsers", 0, "browser process cap (0 = default)")
	fs.IntVar(&f.contextsPerProc, "contexts-per-browser", 0, "contexts per browser (0 = default)")
	fs.StringVar(&f.contextTimeout, "context-timeout", "", "per-render lease timeout (e.g. 2m)")
}

// parseFlags parses command line flags and returns positional args.
func parseFlags(args []string) (*cliFlags, []string, error) {
	fs := flag.NewFlagSet("websnap", flag.ContinueOnError)
	f := &cliFlags{}

	fs.StringVarP(&f.output, "output", "o", "", "output file or directory")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel renders (0 = context capacity)")
	fs.BoolVar(&f.version, "version", false, "print version and exit")

	addCommonFlags(fs, &f.common)
	addRenderFlags(fs, &f.render)
	addPageLoadFlags(fs, &f.pageLoad)
	addPoolFlags(fs, &f.pool)

	fs.Usage = func() { printUsage(os.Stderr) }

	if err := fs.Parse(args[1:]); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

// parseHeaders converts repeated key=value flags into a header map.
func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid header %q (expected key=value)", pair)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}
