// Package sanitize strips email HTML down to a subset that is safe to
// render, and reports which external resources were blocked.
package sanitize

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// Result carries the cleaned HTML plus the external resource URLs that
// were removed so the UI can offer a "load remote content" affordance.
type Result struct {
	HTML    string
	Blocked []string
}

var remoteSrcPattern = regexp.MustCompile(`(?i)(?:src|background)\s*=\s*["']?(https?://[^"'>\s]+)`)

type Sanitizer struct {
	policy *bluemonday.Policy
}

func New() *Sanitizer {
	// Built from an empty policy rather than a permissive preset so that
	// src is never an allowed attribute on img: remote trackers cannot
	// load, and the blocked list stays truthful.
	p := bluemonday.NewPolicy()
	p.AllowStandardAttributes()
	p.AllowStandardURLs()
	p.AllowElements("a", "b", "blockquote", "br", "center", "code", "div",
		"em", "font", "h1", "h2", "h3", "h4", "h5", "h6", "hr", "i",
		"li", "ol", "p", "pre", "s", "small", "span", "strong", "sub",
		"sup", "u", "ul")
	p.AllowElements("table", "caption", "thead", "tbody", "tfoot",
		"tr", "td", "th", "col", "colgroup")
	p.AllowElements("img")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("style").Globally()
	p.AllowAttrs("color", "face", "size").OnElements("font")
	p.AllowAttrs("align", "valign", "width", "height", "bgcolor",
		"cellpadding", "cellspacing", "border").OnElements(
		"table", "td", "th", "tr", "col", "colgroup")
	p.AllowAttrs("alt", "width", "height").OnElements("img")
	return &Sanitizer{policy: p}
}

// Sanitize cleans html and collects the remote resource URLs present in
// the original markup that do not survive sanitization.
func (s *Sanitizer) Sanitize(html string) Result {
	var blocked []string
	seen := make(map[string]struct{})
	for _, m := range remoteSrcPattern.FindAllStringSubmatch(html, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		blocked = append(blocked, m[1])
	}
	return Result{
		HTML:    s.policy.Sanitize(html),
		Blocked: blocked,
	}
}
