// Package discovery extracts the questions present on the current wizard step.
//
// Each markup convention is a Strategy. Strategies run independently over one parsed snapshot
// and their results are concatenated, so a convention that fails to match never hides questions
// found by another.
package discovery

import (
	"context"
	"fmt"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/browser"
	"github.com/xkilldash9x/applypilot/internal/form"
)

// Result is one discovery pass.
type Result struct {
	Descriptors []form.Descriptor
	// Failures lists elements that were skipped because they could not be interpreted.
	Failures []error
}

// DefaultStrategies returns the strategies for the job board's known layouts, in priority order.
func DefaultStrategies(placeholders []string) []Strategy {
	return []Strategy{
		LabeledInput{Placeholders: placeholders},
		RadioGroup{},
		PrefixGroup{},
	}
}

// Discoverer runs strategies over page snapshots.
type Discoverer struct {
	strategies []Strategy
	logger     *zap.Logger
}

// New composes strategies. Earlier strategies win when two report the same question.
func New(logger *zap.Logger, strategies ...Strategy) *Discoverer {
	return &Discoverer{
		strategies: strategies,
		logger:     logger.Named("discovery"),
	}
}

// Discover snapshots page and runs every strategy over it. Only a failed snapshot is an error.
func (d *Discoverer) Discover(ctx context.Context, page browser.Page) (Result, error) {
	r, err := page.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to snapshot step: %w", err)
	}
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse step markup: %w", err)
	}
	return d.DiscoverDocument(doc), nil
}

// DiscoverDocument runs every strategy over an already parsed document.
func (d *Discoverer) DiscoverDocument(doc *html.Node) Result {
	var res Result
	seen := make(map[string]bool)

	for _, s := range d.strategies {
		found, failures := d.run(s, doc)
		for _, f := range failures {
			d.logger.Debug("Skipped element during discovery.", zap.String("strategy", s.Name()), zap.Error(f))
		}
		res.Failures = append(res.Failures, failures...)

		for _, desc := range found {
			desc.Text = form.Normalize(desc.Text)
			if len(desc.Text) < form.MinQuestionLength {
				continue
			}
			key := form.Key(desc.Text)
			if seen[key] {
				continue
			}
			seen[key] = true
			res.Descriptors = append(res.Descriptors, desc)
		}
	}

	d.logger.Debug("Discovery pass complete.",
		zap.Int("questions", len(res.Descriptors)),
		zap.Int("skipped", len(res.Failures)),
	)
	return res
}

// run shields the pass from a strategy that panics outside its per-element guard.
func (d *Discoverer) run(s Strategy, doc *html.Node) (found []form.Descriptor, failures []error) {
	defer func() {
		if r := recover(); r != nil {
			found = nil
			failures = []error{fmt.Errorf("%s: strategy panicked: %v", s.Name(), r)}
		}
	}()
	return s.Discover(doc)
}
