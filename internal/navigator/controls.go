package navigator

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/gobwas/glob"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/discovery"
)

// buttonXPath matches a button whose own text, or the text of a span inside it, is exactly label.
func buttonXPath(label string) string {
	lit := discovery.Literal(label)
	return fmt.Sprintf("//button[.//span[normalize-space(.)=%s] or normalize-space(.)=%s]", lit, lit)
}

// findControl returns the locator of the first button matching one of labels, in label order.
func findControl(doc *html.Node, labels []string) (xpath, label string, ok bool) {
	for _, l := range labels {
		xp := buttonXPath(l)
		if htmlquery.FindOne(doc, xp) != nil {
			return xp, l, true
		}
	}
	return "", "", false
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid location pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, location string) bool {
	loc := strings.ToLower(location)
	for _, g := range globs {
		if g.Match(loc) {
			return true
		}
	}
	return false
}
