// Package campaign walks job-board search results and hands each eligible application to the
// navigator, one at a time.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/applypilot/internal/browser"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/filter"
	"github.com/xkilldash9x/applypilot/internal/history"
	"github.com/xkilldash9x/applypilot/internal/navigator"
)

// Navigator completes one application wizard.
type Navigator interface {
	Run(ctx context.Context, job navigator.Job) (*navigator.Session, error)
}

// Summary counts what a run did.
type Summary struct {
	Completed int
	Attempted int
	Skipped   int
	Pages     int
}

// Runner is a single-page, sequential campaign.
type Runner struct {
	page      browser.Page
	navigator Navigator
	history   *history.Log
	report    *history.Report
	exclusion *filter.Exclusion
	scope     *Scope
	limiter   *rate.Limiter
	cfg       config.CampaignConfig
	auth      navigator.Options
	logger    *zap.Logger
}

// NewRunner wires a runner. auth supplies the login location patterns and poll interval.
func NewRunner(
	page browser.Page,
	nav Navigator,
	hist *history.Log,
	report *history.Report,
	exclusion *filter.Exclusion,
	cfg config.CampaignConfig,
	auth navigator.Options,
	logger *zap.Logger,
) (*Runner, error) {
	scope, err := NewScope(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid campaign base url: %w", err)
	}
	if cfg.RatePerMinute <= 0 {
		return nil, fmt.Errorf("rate_per_minute must be positive")
	}
	if auth.AuthPollInterval <= 0 {
		auth.AuthPollInterval = 2 * time.Second
	}
	return &Runner{
		page:      page,
		navigator: nav,
		history:   hist,
		report:    report,
		exclusion: exclusion,
		scope:     scope,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60), 1),
		cfg:       cfg,
		auth:      auth,
		logger:    logger.Named("campaign"),
	}, nil
}

// Run searches, applies and paginates until max_applications is reached, a page yields no new
// work, or the results run out.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if err := r.ensureLoggedIn(ctx); err != nil {
		return sum, err
	}

	pageURL := SearchURL(r.cfg.BaseURL, r.cfg.Keyword, r.cfg.Location)
	for sum.Completed < r.cfg.MaxApplications {
		r.logger.Info("Loading search results.", zap.String("url", pageURL))
		doc, err := r.load(ctx, pageURL)
		if err != nil {
			return sum, fmt.Errorf("failed to load search results: %w", err)
		}
		sum.Pages++

		listings := ParseListings(doc, r.cfg.BaseURL)
		r.logger.Info("Jobs visible.", zap.Int("count", len(listings)))
		if len(listings) == 0 {
			break
		}
		next, hasNext := NextPageURL(doc, r.cfg.BaseURL)

		progress := false
		for _, l := range listings {
			if sum.Completed >= r.cfg.MaxApplications {
				break
			}
			attempted, completed, err := r.apply(ctx, l)
			if err != nil {
				return sum, err
			}
			if attempted {
				progress = true
				sum.Attempted++
			} else {
				sum.Skipped++
			}
			if completed {
				sum.Completed++
				r.logger.Info("Application logged.",
					zap.Int("completed", sum.Completed), zap.Int("max", r.cfg.MaxApplications))
			}
		}

		if !progress {
			r.logger.Info("No new jobs processed on this page, stopping.")
			break
		}
		if !hasNext {
			r.logger.Info("Reached the last results page.")
			break
		}
		pageURL = next
	}

	r.logger.Info("Campaign finished.",
		zap.Int("completed", sum.Completed),
		zap.Int("attempted", sum.Attempted),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

// apply handles one listing. attempted is true once the job page was opened; only context
// errors are returned.
func (r *Runner) apply(ctx context.Context, l Listing) (attempted, completed bool, err error) {
	logger := r.logger.With(zap.String("job", l.Title), zap.String("url", history.CleanURL(l.URL)))

	if r.history.Seen(l.URL) {
		logger.Debug("Already applied, skipping.")
		return false, false, nil
	}
	if pattern, ok := r.exclusion.Match(l.Title, ""); ok {
		logger.Info("Skipping job, title excluded.", zap.String("pattern", pattern))
		return false, false, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return false, false, err
	}

	doc, err := r.load(ctx, l.URL)
	if err != nil {
		if ctx.Err() != nil {
			return false, false, ctx.Err()
		}
		logger.Warn("Failed to load job page.", zap.Error(err))
		return false, false, nil
	}
	detail := ParseJobDetail(doc, r.cfg.BaseURL)

	if pattern, ok := r.exclusion.Match(l.Title, detail.Description); ok {
		logger.Info("Skipping job, description excluded.", zap.String("pattern", pattern))
		return true, false, nil
	}
	if detail.External || (detail.ApplyURL != "" && !r.scope.Contains(detail.ApplyURL)) {
		logger.Info("Skipping external application.")
		return true, false, nil
	}

	switch {
	case detail.ApplyURL != "":
		err = r.page.Navigate(ctx, detail.ApplyURL)
	case detail.ApplyButton != "":
		err = r.page.Click(ctx, detail.ApplyButton)
	default:
		logger.Info("Skipping job, no apply control.")
		return true, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return true, false, ctx.Err()
		}
		logger.Warn("Failed to open application.", zap.Error(err))
		return true, false, nil
	}

	job := navigator.Job{Title: l.Title, URL: l.URL, Location: detail.Location, Salary: detail.Salary}
	logger.Info("Applying.")
	session, runErr := r.navigator.Run(ctx, job)
	if runErr != nil && ctx.Err() != nil {
		return true, false, ctx.Err()
	}
	if session == nil {
		logger.Warn("Application did not start.", zap.Error(runErr))
		return true, false, nil
	}

	rec := history.Record{
		Title:    l.Title,
		URL:      history.CleanURL(l.URL),
		Location: detail.Location,
		Salary:   detail.Salary,
		DryRun:   r.cfg.DryRun,
	}
	r.record(rec, session)

	if session.Outcome != navigator.Submitted && session.Outcome != navigator.DryRunCompleted {
		return true, false, nil
	}
	if err := r.history.Append(ctx, rec); err != nil {
		if errors.Is(err, context.Canceled) {
			return true, false, err
		}
		logger.Error("Failed to record application history.", zap.Error(err))
	}
	return true, true, nil
}

func (r *Runner) record(rec history.Record, s *navigator.Session) {
	if r.report == nil || s == nil {
		return
	}
	job := history.JobReport{
		Record:      rec,
		Outcome:     string(s.Outcome),
		AbortReason: string(s.AbortReason),
		Steps:       s.StepIndex,
	}
	for _, a := range s.Answered {
		job.Answers = append(job.Answers, history.Answer{
			Step:     a.Step,
			Question: a.Question,
			Answer:   a.Answer,
			Source:   string(a.Source),
			Filled:   a.Filled,
		})
	}
	r.report.Add(job)
}

func (r *Runner) load(ctx context.Context, url string) (*html.Node, error) {
	if err := r.page.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return r.document(ctx)
}

func (r *Runner) document(ctx context.Context) (*html.Node, error) {
	snapshot, err := r.page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	return htmlquery.Parse(snapshot)
}
