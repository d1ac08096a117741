// Package browsertest provides an in-memory browser.Page backed by a parsed HTML document.
// Mutations are applied to the document so later snapshots observe them.
package browsertest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/browser"
)

// ErrInjected is returned by mutations made to fail with FailNext.
var ErrInjected = errors.New("injected failure")

// Page is a fake browser.Page.
type Page struct {
	mu          sync.Mutex
	url         string
	doc         *html.Node
	failures    map[string]int
	clicks      []string
	navigations []string
	shots       int

	// OnClick runs after a click has been applied. It may call Load to move to another step.
	OnClick func(p *Page, xpath string, node *html.Node)
	// OnNavigate serves Navigate; when nil the URL changes and the document is left alone.
	OnNavigate func(p *Page, url string) error
}

var _ browser.Page = (*Page)(nil)

// New returns a page at url showing markup.
func New(url, markup string) *Page {
	p := &Page{failures: make(map[string]int)}
	p.Load(url, markup)
	return p
}

// Load replaces the current URL and document.
func (p *Page) Load(url, markup string) {
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		panic(fmt.Sprintf("browsertest: invalid markup: %v", err))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.doc = doc
}

// FailNext makes the next n mutations addressed to xpath fail with ErrInjected.
func (p *Page) FailNext(xpath string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[xpath] = n
}

// Clicks returns every clicked XPath in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Screenshots is the number of screenshots taken.
func (p *Page) Screenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shots
}

// Value returns the value attribute of the element at xpath.
func (p *Page) Value(xpath string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := htmlquery.FindOne(p.doc, xpath)
	if n == nil {
		return ""
	}
	if n.Data == "select" {
		if opt := htmlquery.FindOne(n, ".//option[@selected]"); opt != nil {
			return htmlquery.SelectAttr(opt, "value")
		}
		return ""
	}
	return htmlquery.SelectAttr(n, "value")
}

func (p *Page) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Snapshot(ctx context.Context) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, p.doc); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shots++
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	hook := p.OnNavigate
	if hook == nil {
		p.url = url
	}
	p.mu.Unlock()
	if hook != nil {
		return hook(p, url)
	}
	return nil
}

func (p *Page) WaitStable(ctx context.Context) error {
	return ctx.Err()
}

// lookup finds xpath, consuming an injected failure if one is pending. Callers hold mu.
func (p *Page) lookup(xpath string) (*html.Node, error) {
	if n := p.failures[xpath]; n > 0 {
		p.failures[xpath] = n - 1
		return nil, fmt.Errorf("%s: %w", xpath, ErrInjected)
	}
	node, err := htmlquery.Query(p.doc, xpath)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", xpath, err)
	}
	if node == nil {
		return nil, fmt.Errorf("%s: %w", xpath, browser.ErrElementNotFound)
	}
	return node, nil
}

func (p *Page) SetValue(ctx context.Context, xpath, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.lookup(xpath)
	if err != nil {
		return err
	}
	setAttr(node, "value", value)
	return nil
}

func (p *Page) SelectOption(ctx context.Context, xpath, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.lookup(xpath)
	if err != nil {
		return err
	}
	found := false
	for _, opt := range htmlquery.Find(node, ".//option") {
		if htmlquery.SelectAttr(opt, "value") == value && !found {
			setAttr(opt, "selected", "selected")
			found = true
			continue
		}
		removeAttr(opt, "selected")
	}
	if !found {
		return fmt.Errorf("no option with value %q: %w", value, browser.ErrElementNotFound)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, xpath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	node, err := p.lookup(xpath)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.clicks = append(p.clicks, xpath)
	p.toggle(node)
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, xpath, node)
	}
	return nil
}

// toggle applies native click semantics for labels, radios and checkboxes.
func (p *Page) toggle(node *html.Node) {
	input := node
	if node.Data == "label" {
		id := htmlquery.SelectAttr(node, "for")
		if id == "" {
			return
		}
		input = htmlquery.FindOne(p.doc, fmt.Sprintf("//input[@id=%q]", id))
		if input == nil {
			return
		}
	}
	if input.Data != "input" {
		return
	}
	switch strings.ToLower(htmlquery.SelectAttr(input, "type")) {
	case "checkbox":
		if hasAttr(input, "checked") {
			removeAttr(input, "checked")
		} else {
			setAttr(input, "checked", "checked")
		}
	case "radio":
		if name := htmlquery.SelectAttr(input, "name"); name != "" {
			for _, other := range htmlquery.Find(p.doc, fmt.Sprintf("//input[@type='radio'][@name=%q]", name)) {
				removeAttr(other, "checked")
			}
		}
		setAttr(input, "checked", "checked")
	}
}

func (p *Page) IsChecked(ctx context.Context, xpath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	node := htmlquery.FindOne(p.doc, xpath)
	if node == nil {
		return false, fmt.Errorf("%s: %w", xpath, browser.ErrElementNotFound)
	}
	return hasAttr(node, "checked"), nil
}

func (p *Page) IsEnabled(ctx context.Context, xpath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	node := htmlquery.FindOne(p.doc, xpath)
	if node == nil {
		return false, fmt.Errorf("%s: %w", xpath, browser.ErrElementNotFound)
	}
	return !hasAttr(node, "disabled") && htmlquery.SelectAttr(node, "aria-disabled") != "true", nil
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}
