// Package navigator drives a multi-step application wizard to submission.
//
// Each iteration handles authentication interruptions, detects stalls, submits on the review
// step, and otherwise discovers, resolves and fills the questions of the current step before
// advancing. Anything the navigator does not recognize aborts the session instead of guessing.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/gobwas/glob"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applypilot/internal/browser"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/discovery"
	"github.com/xkilldash9x/applypilot/internal/form"
	"github.com/xkilldash9x/applypilot/internal/observability"
	"github.com/xkilldash9x/applypilot/internal/resolver"
)

// Discoverer lists the questions of the current step.
type Discoverer interface {
	Discover(ctx context.Context, page browser.Page) (discovery.Result, error)
}

// Resolver picks answers.
type Resolver interface {
	Resolve(ctx context.Context, d form.Descriptor) (resolver.Resolution, error)
	Reelicit(ctx context.Context, d form.Descriptor) (resolver.Resolution, error)
}

// Filler applies answers.
type Filler interface {
	Fill(ctx context.Context, d form.Descriptor, answer string) bool
}

// Options configures a Navigator.
type Options struct {
	MaxSteps         int
	StallLimit       int
	SettleDelay      time.Duration
	AuthPollInterval time.Duration
	AuthPatterns     []glob.Glob
	// Authenticated must also match before an auth wait ends. Nil accepts any location.
	Authenticated  glob.Glob
	ReviewPatterns []glob.Glob
	SubmitLabels   []string
	NextLabels     []string
	DryRun         bool
	Diagnostics    Diagnostics
	Metrics        *observability.Metrics
}

// OptionsFromConfig compiles the location patterns of cfg.
func OptionsFromConfig(cfg config.NavigatorConfig, dryRun bool) (Options, error) {
	auth, err := compileGlobs(cfg.AuthPatterns)
	if err != nil {
		return Options{}, err
	}
	review, err := compileGlobs(cfg.ReviewPatterns)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		MaxSteps:         cfg.MaxSteps,
		StallLimit:       cfg.StallLimit,
		SettleDelay:      cfg.SettleDelay,
		AuthPollInterval: cfg.AuthPollInterval,
		AuthPatterns:     auth,
		ReviewPatterns:   review,
		SubmitLabels:     cfg.SubmitLabels,
		NextLabels:       cfg.NextLabels,
		DryRun:           dryRun,
	}
	if cfg.AuthenticatedPattern != "" {
		authenticated, err := compileGlobs([]string{cfg.AuthenticatedPattern})
		if err != nil {
			return Options{}, err
		}
		opts.Authenticated = authenticated[0]
	}
	return opts, nil
}

// AuthRequired reports whether location is a login or OAuth page.
func (o Options) AuthRequired(location string) bool {
	return matchAny(o.AuthPatterns, location)
}

// SignedIn reports whether location is past authentication: no auth pattern matches and, when
// set, the Authenticated pattern does.
func (o Options) SignedIn(location string) bool {
	if o.AuthRequired(location) {
		return false
	}
	return o.Authenticated == nil || matchAny([]glob.Glob{o.Authenticated}, location)
}

// Navigator runs sessions against one page. Sessions must not run concurrently.
type Navigator struct {
	page       browser.Page
	discoverer Discoverer
	resolver   Resolver
	filler     Filler
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

// New builds a navigator.
func New(page browser.Page, d Discoverer, r Resolver, f Filler, opts Options, logger *zap.Logger) *Navigator {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 15
	}
	if opts.StallLimit < 2 {
		opts.StallLimit = 3
	}
	if opts.AuthPollInterval <= 0 {
		opts.AuthPollInterval = 2 * time.Second
	}
	return &Navigator{
		page:       page,
		discoverer: d,
		resolver:   r,
		filler:     f,
		opts:       opts,
		logger:     logger.Named("navigator"),
		now:        time.Now,
	}
}

// stepResult tells Run what to do after a step.
type stepResult int

const (
	advanced stepResult = iota
	finished
)

// Run drives the wizard currently shown on the page. The returned session is always non-nil;
// the error is an *AbortError for aborted sessions or the context error.
func (n *Navigator) Run(ctx context.Context, job Job) (*Session, error) {
	s := newSession(job, n.now())
	logger := n.logger.With(zap.String("session", s.ID), zap.String("job", job.Title))
	logger.Info("Starting application session.", zap.String("url", job.URL), zap.Bool("dry_run", n.opts.DryRun))

	err := n.run(ctx, s, logger)
	s.FinishedAt = n.now()

	var abort *AbortError
	switch {
	case err == nil:
	case errors.As(err, &abort):
		s.Outcome = Aborted
		s.AbortReason = abort.Reason
		n.opts.Metrics.ObserveAbort(string(abort.Reason))
		logger.Warn("Session aborted.",
			zap.String("reason", string(abort.Reason)),
			zap.Int("step", abort.Step),
			zap.String("location", abort.Location),
			zap.String("question", abort.Question),
			zap.String("detail", abort.Detail),
		)
	default:
		s.Outcome = Aborted
		logger.Warn("Session interrupted.", zap.Error(err))
	}
	n.opts.Metrics.ObserveSession(string(s.Outcome), s.StepIndex)
	logger.Info("Session finished.", zap.String("outcome", string(s.Outcome)), zap.Int("steps", s.StepIndex))
	return s, err
}

func (n *Navigator) run(ctx context.Context, s *Session, logger *zap.Logger) error {
	if err := n.page.WaitStable(ctx); err != nil {
		return err
	}

	for s.StepIndex < n.opts.MaxSteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		location, err := n.page.Location(ctx)
		if err != nil {
			return fmt.Errorf("failed to read location: %w", err)
		}

		if n.opts.AuthRequired(location) {
			if err := n.waitForAuth(ctx, location, logger); err != nil {
				return err
			}
			// Same step again; the login detour is not progress.
			s.resetStall()
			continue
		}

		s.StepIndex++
		stepLog := logger.With(zap.Int("step", s.StepIndex), zap.String("location", location))

		visits := s.observe(location)
		if visits >= 2 && !s.diagnosed {
			s.diagnosed = true
			n.captureDiagnostics(ctx, s, stepLog)
		}
		if visits >= n.opts.StallLimit {
			return n.abort(s, LoopDetected, "", fmt.Sprintf("location unchanged for %d iterations", visits), nil)
		}

		var res stepResult
		if matchAny(n.opts.ReviewPatterns, location) {
			res, err = n.reviewStep(ctx, s, stepLog)
		} else {
			res, err = n.formStep(ctx, s, stepLog)
		}
		if err != nil {
			return err
		}
		if res == finished {
			return nil
		}

		if err := sleep(ctx, n.opts.SettleDelay); err != nil {
			return err
		}
		if err := n.page.WaitStable(ctx); err != nil {
			return err
		}
	}
	return n.abort(s, BudgetExhausted, "", fmt.Sprintf("no submission within %d steps", n.opts.MaxSteps), nil)
}

func (n *Navigator) abort(s *Session, reason Reason, question, detail string, err error) error {
	return &AbortError{
		Reason:   reason,
		Step:     s.StepIndex,
		Location: s.CurrentStepURL,
		Question: question,
		Detail:   detail,
		Err:      err,
	}
}

func (n *Navigator) captureDiagnostics(ctx context.Context, s *Session, logger *zap.Logger) {
	if n.opts.Diagnostics == nil {
		return
	}
	name := fmt.Sprintf("%s-step%02d", s.ID, s.StepIndex)
	if err := n.opts.Diagnostics.Capture(ctx, n.page, name); err != nil {
		logger.Error("Failed to capture diagnostics.", zap.Error(err))
	}
}

// waitForAuth blocks until the operator has finished logging in. There is no timeout.
func (n *Navigator) waitForAuth(ctx context.Context, location string, logger *zap.Logger) error {
	logger.Warn("Authentication required, waiting for the operator to log in.", zap.String("location", location))

	ticker := time.NewTicker(n.opts.AuthPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			loc, err := n.page.Location(ctx)
			if err != nil {
				logger.Debug("Failed to read location during auth wait.", zap.Error(err))
				continue
			}
			if n.opts.SignedIn(loc) {
				logger.Info("Authentication completed, resuming.", zap.String("location", loc))
				return n.page.WaitStable(ctx)
			}
		}
	}
}


func (n *Navigator) reviewStep(ctx context.Context, s *Session, logger *zap.Logger) (stepResult, error) {
	doc, err := n.document(ctx)
	if err != nil {
		return advanced, err
	}
	xpath, label, ok := findControl(doc, n.opts.SubmitLabels)
	if !ok {
		// The submit button may still be rendering, or the review page may carry questions.
		logger.Info("No submit control on the review step yet, handling it as a form step.")
		return n.formStep(ctx, s, logger)
	}
	logger.Info("Reached review step.", zap.String("control", label))
	return n.submit(ctx, s, xpath, logger)
}

func (n *Navigator) submit(ctx context.Context, s *Session, xpath string, logger *zap.Logger) (stepResult, error) {
	if n.opts.DryRun {
		logger.Info("Dry run, not submitting the application.")
		s.Outcome = DryRunCompleted
		return finished, nil
	}
	if err := n.page.Click(ctx, xpath); err != nil {
		return advanced, n.abort(s, SubmitFailed, "", "submit click failed", err)
	}
	if err := n.page.WaitStable(ctx); err != nil {
		logger.Debug("Page did not settle after submit.", zap.Error(err))
	}
	logger.Info("Application submitted.")
	s.Outcome = Submitted
	return finished, nil
}

func (n *Navigator) formStep(ctx context.Context, s *Session, logger *zap.Logger) (stepResult, error) {
	found, err := n.discoverer.Discover(ctx, n.page)
	if err != nil {
		if ctx.Err() != nil {
			return advanced, ctx.Err()
		}
		// A half-rendered page; the stall check bounds how often this can repeat.
		logger.Warn("Failed to read step, retrying.", zap.Error(err))
		return advanced, nil
	}
	for _, f := range found.Failures {
		logger.Debug("Skipped element during discovery.", zap.Error(f))
	}
	logger.Info("Discovered questions.", zap.Int("count", len(found.Descriptors)))

	unmet := ""
	for _, d := range found.Descriptors {
		filled, err := n.answer(ctx, s, d, logger)
		if err != nil {
			return advanced, err
		}
		if !filled && d.Required && unmet == "" {
			unmet = d.Text
		}
	}
	if unmet != "" {
		return advanced, n.abort(s, UnrecognizedStructure, unmet, "required question could not be answered", nil)
	}

	doc, err := n.document(ctx)
	if err != nil {
		return advanced, err
	}
	if xpath, label, ok := findControl(doc, n.opts.SubmitLabels); ok {
		logger.Info("Found submit control.", zap.String("control", label))
		return n.submit(ctx, s, xpath, logger)
	}

	xpath, label, ok := findControl(doc, n.opts.NextLabels)
	if !ok {
		return advanced, n.abort(s, UnrecognizedStructure, "", "no submit or next control found", nil)
	}
	enabled, err := n.page.IsEnabled(ctx, xpath)
	if err != nil {
		return advanced, n.abort(s, UnrecognizedStructure, "", "next control vanished", err)
	}
	if !enabled {
		return advanced, n.abort(s, UnrecognizedStructure, "", "next control is disabled", nil)
	}
	if err := n.page.Click(ctx, xpath); err != nil {
		if ctx.Err() != nil {
			return advanced, ctx.Err()
		}
		logger.Warn("Failed to click next, retrying.", zap.String("control", label), zap.Error(err))
		return advanced, nil
	}
	logger.Debug("Advanced.", zap.String("control", label))
	return advanced, nil
}

// answer resolves and fills one question. Only context errors are returned; everything else
// degrades to an unfilled question.
func (n *Navigator) answer(ctx context.Context, s *Session, d form.Descriptor, logger *zap.Logger) (bool, error) {
	entry := AnsweredQuestion{Step: s.StepIndex, Question: d.Text, Type: d.Type, Required: d.Required}
	defer func() { s.Answered = append(s.Answered, entry) }()

	res, err := n.resolver.Resolve(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.Warn("No answer for question.", zap.String("question", d.Text), zap.Bool("required", d.Required), zap.Error(err))
		return false, nil
	}
	n.opts.Metrics.ObserveResolution(string(res.Source))
	entry.Answer, entry.Source = res.Answer, res.Source
	entry.Filled = n.filler.Fill(ctx, d, res.Answer)

	// A stored answer that no longer fits the control is asked again, not skipped.
	if !entry.Filled && res.Source != resolver.SourceElicited {
		again, err := n.resolver.Reelicit(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.Warn("Failed to re-ask question.", zap.String("question", d.Text), zap.Error(err))
			return false, nil
		}
		n.opts.Metrics.ObserveResolution(string(again.Source))
		entry.Answer, entry.Source = again.Answer, again.Source
		entry.Filled = n.filler.Fill(ctx, d, again.Answer)
	}
	return entry.Filled, nil
}

func (n *Navigator) document(ctx context.Context) (*html.Node, error) {
	snapshot, err := n.page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	doc, err := htmlquery.Parse(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
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
