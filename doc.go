// Package websnap renders untrusted web pages and HTML documents to PDF
// or screenshot bytes using a pool of headless Chrome processes.
//
// # Quick Start
//
// Create a pool, build a pipeline on top of it, and generate:
//
//	pool, err := websnap.NewBrowserPool(websnap.DefaultPoolConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	pipe := websnap.NewPipeline(pool)
//	result, err := pipe.Generate(ctx, websnap.GenerationRequest{
//	    Source: websnap.SourceURL,
//	    URL:    "https://example.com",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("example.pdf", result.Data, 0644)
//
// The pool is safe for concurrent use; one pipeline serves any number
// of goroutines.
//
// # Request Pipeline
//
// Each generation moves through fixed stages:
//
//  1. Structural validation (no pool resource is consumed on bad input)
//  2. SSRF admission check for URL sources
//  3. Context lease acquisition from the browser pool
//  4. Page configuration (viewport, headers, cookies)
//  5. Content load: DNS-rechecked navigation, or sanitized markup injection
//  6. Artifact capture (PDF print or screenshot)
//
// The lease is released on every path, so a failed or panicking render
// never leaks a context slot.
//
// # Security Model
//
// Inputs are treated as hostile. URL sources pass a private-range and
// metadata-endpoint blocklist twice, with the second pass resolving DNS
// immediately before navigation to close the rebinding window. HTML
// sources are parsed and stripped of script-bearing elements, event
// handlers, and dangerous URL schemes before they reach the engine.
// Every render runs in its own incognito browser context, so no state
// leaks between requests.
//
// # Errors
//
// All failures wrap the package sentinel errors (ErrSSRFBlocked,
// ErrPoolExhausted, ErrNavigation, ...) and are matchable with
// errors.Is.
package websnap
