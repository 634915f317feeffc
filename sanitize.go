package websnap

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Sanitizer strips executable and exfiltration-capable markup from
// attacker-supplied HTML before it is handed to a scripting-capable
// rendering engine. It walks a real parse tree rather than matching
// text, so malformed markup is normalized before filtering.
type Sanitizer struct{}

// NewSanitizer creates a Sanitizer.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// blockedElements are removed together with their content.
var blockedElements = map[string]bool{
	"script":   true,
	"object":   true,
	"embed":    true,
	"applet":   true,
	"iframe":   true,
	"frame":    true,
	"frameset": true,
	"form":     true,
	"input":    true,
	"base":     true,
}

// blockedValueSchemes neutralize an attribute when its value starts
// with one of these after whitespace/control stripping.
var blockedValueSchemes = []string{
	"javascript:",
	"vbscript:",
	"data:text/html",
}

// CSS neutralization patterns. The replacement keeps the declaration
// syntactically inert without deleting surrounding rules.
var (
	reCSSExpression = regexp.MustCompile(`(?i)expression\s*\(`)
	reCSSImport     = regexp.MustCompile(`(?i)@import\b`)
	reCSSBehavior   = regexp.MustCompile(`(?i)(-moz-)?\bbehavior\s*:`)
	reCSSBinding    = regexp.MustCompile(`(?i)(-moz-)?\bbinding\s*:`)
)

// reControlChars matches characters attackers interleave into scheme
// names to defeat prefix checks.
var reControlChars = regexp.MustCompile(`[\x00-\x20]`)

// SanitizeHTML removes script-bearing elements, event-handler
// attributes, and dangerous URL schemes from untrusted page markup.
// Styling and layout markup is preserved so pages still render
// faithfully.
func (s *Sanitizer) SanitizeHTML(in string) string {
	return sanitizeMarkup(in, false)
}

// SanitizePDFTemplate sanitizes a PDF header/footer template. Templates
// carry a narrow legitimate vocabulary (date/title/page-number
// placeholder spans), so on top of SanitizeHTML the residual CSS is
// stripped of @import, behavior:, and binding: as well.
func (s *Sanitizer) SanitizePDFTemplate(tpl string) string {
	return sanitizeMarkup(tpl, true)
}

// sanitizeMarkup parses in as a body fragment, prunes and rewrites the
// tree, and renders it back. Unparseable input yields an empty string
// (fail closed).
func sanitizeMarkup(in string, strictCSS bool) string {
	if strings.TrimSpace(in) == "" {
		return ""
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(in), body)
	if err != nil {
		return ""
	}

	var out strings.Builder
	for _, n := range nodes {
		if cleanNode(n, strictCSS) {
			continue
		}
		_ = html.Render(&out, n)
	}
	return out.String()
}

// cleanNode prunes blocked elements and rewrites attributes in place.
// Returns true when the node was removed entirely.
func cleanNode(n *html.Node, strictCSS bool) bool {
	if n.Type == html.ElementNode {
		name := strings.ToLower(n.Data)

		if blockedElements[name] {
			remove(n)
			return true
		}
		if name == "meta" && isMetaRefresh(n) {
			remove(n)
			return true
		}

		n.Attr = cleanAttrs(n.Attr, strictCSS)

		if name == "style" {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					c.Data = neutralizeCSS(c.Data, strictCSS)
				}
			}
		}
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		cleanNode(c, strictCSS)
		c = next
	}
	return false
}

// cleanAttrs drops event handlers and scheme-smuggling values, and
// neutralizes CSS in style attributes.
func cleanAttrs(attrs []html.Attribute, strictCSS bool) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if hasBlockedScheme(a.Val) {
			continue
		}
		if key == "style" {
			a.Val = neutralizeCSS(a.Val, strictCSS)
		}
		kept = append(kept, a)
	}
	return kept
}

// hasBlockedScheme reports whether an attribute value smuggles a
// dangerous scheme, ignoring interleaved whitespace and control chars.
func hasBlockedScheme(val string) bool {
	stripped := strings.ToLower(reControlChars.ReplaceAllString(val, ""))
	for _, scheme := range blockedValueSchemes {
		if strings.HasPrefix(stripped, scheme) {
			return true
		}
	}
	return false
}

// isMetaRefresh reports whether a meta element is a refresh directive.
func isMetaRefresh(n *html.Node) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "http-equiv") && strings.EqualFold(strings.TrimSpace(a.Val), "refresh") {
			return true
		}
	}
	return false
}

// neutralizeCSS defangs executable CSS constructs. strictCSS adds the
// template-only rules.
func neutralizeCSS(css string, strictCSS bool) string {
	out := reCSSExpression.ReplaceAllString(css, "blocked(")
	if strictCSS {
		out = reCSSImport.ReplaceAllString(out, "/*blocked*/")
		out = reCSSBehavior.ReplaceAllString(out, "blocked:")
		out = reCSSBinding.ReplaceAllString(out, "blocked:")
	}
	return out
}

// remove detaches a node from its parent.
func remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
