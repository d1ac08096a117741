package discovery

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/form"
)

// Strategy detects questions rendered with one markup convention.
type Strategy interface {
	Name() string
	// Discover returns the questions found in doc and the elements it had to skip.
	Discover(doc *html.Node) ([]form.Descriptor, []error)
}

// ElementError records one element a strategy could not interpret.
type ElementError struct {
	Strategy string
	Element  string
	Err      error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s: element %s: %v", e.Strategy, e.Element, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }

// elementFunc inspects one candidate element. ok is false when the element is not a question.
type elementFunc func(n *html.Node) (d form.Descriptor, ok bool, err error)

// each applies fn to every node, isolating failures and panics to the element that caused them.
func each(strategy string, nodes []*html.Node, fn elementFunc) ([]form.Descriptor, []error) {
	var (
		out  []form.Descriptor
		errs []error
	)
	for _, n := range nodes {
		d, ok, err := guard(n, fn)
		if err != nil {
			errs = append(errs, &ElementError{Strategy: strategy, Element: UniqueXPath(n), Err: err})
			continue
		}
		if !ok || len(d.Text) < form.MinQuestionLength {
			continue
		}
		d.Strategy = strategy
		out = append(out, d)
	}
	return out, errs
}

func guard(n *html.Node, fn elementFunc) (d form.Descriptor, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while inspecting element: %v", r)
		}
	}()
	return fn(n)
}

// choiceLabels returns the label text of each input, skipping inputs without one.
func choiceLabels(scope *html.Node, inputs []*html.Node) []string {
	var labels []string
	for _, in := range inputs {
		if l := LabelFor(scope, htmlquery.SelectAttr(in, "id")); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// IsPlaceholder reports whether an option's text is a "choose one" sentinel.
func IsPlaceholder(optionText string, markers []string) bool {
	lower := strings.ToLower(optionText)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// DropdownOptions lists the selectable option texts of a <select>: blank text, placeholders
// and options without a submit value are excluded.
func DropdownOptions(sel *html.Node, placeholders []string) []string {
	var opts []string
	for _, o := range htmlquery.Find(sel, ".//option") {
		t := text(o)
		if t == "" || htmlquery.SelectAttr(o, "value") == "" || IsPlaceholder(t, placeholders) {
			continue
		}
		opts = append(opts, t)
	}
	return opts
}
