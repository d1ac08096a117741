// Package filler applies a resolved answer to the live control a descriptor points at.
package filler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/browser"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/discovery"
	"github.com/xkilldash9x/applypilot/internal/form"
	"github.com/xkilldash9x/applypilot/internal/observability"
)

var (
	// ErrEmptyAnswer is returned for blank answers; an empty fill never counts as success.
	ErrEmptyAnswer = errors.New("answer is empty")
	// ErrNoMatch means no option of the control matches the answer.
	ErrNoMatch = errors.New("no option matches answer")
)

// Filler mutates controls on one page.
type Filler struct {
	page         browser.Page
	attempts     int
	pause        time.Duration
	placeholders []string
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// New builds a filler. metrics may be nil.
func New(page browser.Page, cfg config.FillerConfig, placeholders []string, metrics *observability.Metrics, logger *zap.Logger) *Filler {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Filler{
		page:         page,
		attempts:     attempts,
		pause:        cfg.RetryPause,
		placeholders: placeholders,
		metrics:      metrics,
		logger:       logger.Named("filler"),
	}
}

// Fill applies answer to d and reports whether it landed. Failures are retried and logged,
// never returned.
func (f *Filler) Fill(ctx context.Context, d form.Descriptor, answer string) bool {
	err := f.fill(ctx, d, answer)
	f.metrics.ObserveFill(d.Type.String(), err == nil)
	if err != nil {
		f.logger.Warn("Failed to fill field.",
			zap.String("question", d.Text),
			zap.Stringer("type", d.Type),
			zap.String("answer", answer),
			zap.Error(err),
		)
		return false
	}
	f.logger.Info("Filled field.", zap.String("question", d.Text), zap.String("answer", answer))
	return true
}

func (f *Filler) fill(ctx context.Context, d form.Descriptor, answer string) error {
	if strings.TrimSpace(answer) == "" {
		return ErrEmptyAnswer
	}

	var err error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if err = f.attempt(ctx, d, answer); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Debug("Fill attempt failed.",
			zap.String("question", d.Text),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < f.attempts {
			if waitErr := sleep(ctx, f.pause); waitErr != nil {
				return waitErr
			}
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", f.attempts, err)
}

// attempt re-reads the page each time, since the wizard re-renders controls between tries.
func (f *Filler) attempt(ctx context.Context, d form.Descriptor, answer string) error {
	snapshot, err := f.page.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot page: %w", err)
	}
	doc, err := htmlquery.Parse(snapshot)
	if err != nil {
		return fmt.Errorf("failed to parse page: %w", err)
	}

	switch d.Type {
	case form.Text:
		return f.fillText(ctx, d, answer)
	case form.Dropdown:
		return f.fillDropdown(ctx, doc, d, answer)
	case form.SingleChoice, form.MultiChoice:
		return f.fillChoice(ctx, doc, d, answer)
	}
	return fmt.Errorf("unsupported control type %s", d.Type)
}

func (f *Filler) fillText(ctx context.Context, d form.Descriptor, answer string) error {
	if d.Target.XPath == "" {
		return fmt.Errorf("text control has no locator: %w", browser.ErrElementNotFound)
	}
	return f.page.SetValue(ctx, d.Target.XPath, answer)
}

type option struct {
	text, value string
}

func (f *Filler) fillDropdown(ctx context.Context, doc *html.Node, d form.Descriptor, answer string) error {
	sel := htmlquery.FindOne(doc, d.Target.XPath)
	if sel == nil {
		return fmt.Errorf("dropdown %s: %w", d.Target.XPath, browser.ErrElementNotFound)
	}

	var opts []option
	for _, o := range htmlquery.Find(sel, ".//option") {
		opts = append(opts, option{
			text:  strings.Join(strings.Fields(htmlquery.InnerText(o)), " "),
			value: htmlquery.SelectAttr(o, "value"),
		})
	}

	value, ok := matchOption(opts, answer, f.placeholders)
	if !ok {
		return fmt.Errorf("dropdown %q with answer %q: %w", d.Text, answer, ErrNoMatch)
	}
	return f.page.SelectOption(ctx, d.Target.XPath, value)
}

// matchOption finds the option value for answer: a textual match in either direction first,
// then a 1-based index over the real (valued, non-placeholder) options.
func matchOption(opts []option, answer string, placeholders []string) (string, bool) {
	for _, o := range opts {
		if o.text != "" && o.value != "" && form.LabelMatches(o.text, answer) {
			return o.value, true
		}
	}

	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return "", false
	}
	var valid []option
	for _, o := range opts {
		if o.text == "" || o.value == "" || discovery.IsPlaceholder(o.text, placeholders) {
			continue
		}
		valid = append(valid, o)
	}
	if n < 1 || n > len(valid) {
		return "", false
	}
	return valid[n-1].value, true
}

// choiceInputs returns the radios or checkboxes that make up a choice question.
func choiceInputs(doc *html.Node, t form.Target) []*html.Node {
	switch {
	case t.Group != "":
		if group := htmlquery.FindOne(doc, t.Group); group != nil {
			return htmlquery.Find(group, ".//input[@type='radio' or @type='checkbox']")
		}
		return nil
	case t.Prefix != "":
		return htmlquery.Find(doc, discovery.PrefixInputsXPath(t.Prefix, t.ID))
	case t.XPath != "":
		return htmlquery.Find(doc, t.XPath)
	}
	return nil
}

func (f *Filler) fillChoice(ctx context.Context, doc *html.Node, d form.Descriptor, answer string) error {
	inputs := choiceInputs(doc, d.Target)
	if len(inputs) == 0 {
		return fmt.Errorf("choice options for %q: %w", d.Text, browser.ErrElementNotFound)
	}

	tokens := []string{strings.TrimSpace(answer)}
	if d.Type == form.MultiChoice {
		tokens = form.SplitChoices(answer)
	}

	landed := 0
	for _, in := range inputs {
		id := htmlquery.SelectAttr(in, "id")
		label := discovery.LabelFor(doc, id)
		if !matchesAny(label, tokens) {
			continue
		}
		if err := f.check(ctx, doc, in, id); err != nil {
			return err
		}
		landed++
		if d.Type == form.SingleChoice {
			return nil
		}
	}
	if landed == 0 {
		return fmt.Errorf("choice %q with answer %q: %w", d.Text, answer, ErrNoMatch)
	}
	return nil
}

func matchesAny(label string, tokens []string) bool {
	for _, t := range tokens {
		if form.LabelMatches(label, t) {
			return true
		}
	}
	return false
}

// check selects an input unless it already is. Styled choice widgets hide the input itself, so
// the bound label is clicked when there is one.
func (f *Filler) check(ctx context.Context, doc *html.Node, in *html.Node, id string) error {
	inputPath := discovery.UniqueXPath(in)
	checked, err := f.page.IsChecked(ctx, inputPath)
	if err != nil {
		return fmt.Errorf("failed to read state of %s: %w", inputPath, err)
	}
	if checked {
		return nil
	}

	target := inputPath
	if id != "" {
		labelPath := fmt.Sprintf("//label[@for=%s]", discovery.Literal(id))
		if htmlquery.FindOne(doc, labelPath) != nil {
			target = labelPath
		}
	}
	return f.page.Click(ctx, target)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
