package main

import (
	"fmt"
	"io"
)

// printUsage writes the command usage to w.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `websnap - render web pages and HTML files to PDF or screenshot

Usage:
  websnap [flags] <url|file.html> [...]

Inputs starting with http:// or https:// are navigated; anything else
is read as a local HTML file and rendered from markup.

Examples:
  websnap https://example.com
  websnap -a screenshot --full-page https://example.com
  websnap -f letter --landscape --margin 1cm report.html -o out/
  websnap -c websnap.yaml https://example.com/docs -o docs.pdf

Common flags:
  -o, --output           output file or directory
  -a, --artifact         pdf (default) or screenshot
  -f, --format           paper format: a3, a4, a5, letter, legal, tabloid
  -t, --timeout          navigation timeout (e.g. 30s)
  -w, --workers          parallel renders (0 = context capacity)
  -c, --config           config file name or path
  -H, --header           extra request header key=value (repeatable)
  -q, --quiet            only show errors
  -v, --verbose          show detailed progress

Run with no arguments for this help. All flags: see the README.
`)
}
