package campaign

import (
	"context"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
)

const loginLinkXPath = `//a[contains(@href, '/id/login') or normalize-space(.)='Masuk']`

// ensureLoggedIn opens the board home page and, when the session is logged out, waits without
// a deadline for the operator to sign in through the browser window.
func (r *Runner) ensureLoggedIn(ctx context.Context) error {
	r.logger.Info("Checking login status.")
	if err := r.page.Navigate(ctx, r.cfg.BaseURL); err != nil {
		return err
	}

	warned := false
	for {
		loggedIn, err := r.loggedIn(ctx)
		if err != nil {
			return err
		}
		if loggedIn {
			if warned {
				r.logger.Info("Logged in, starting automation.")
			} else {
				r.logger.Info("Already logged in.")
			}
			return nil
		}
		if !warned {
			r.logger.Warn("Login required. Log in through the browser window; the run continues automatically.")
			warned = true
		}
		if err := pause(ctx, r.auth.AuthPollInterval); err != nil {
			return err
		}
	}
}

func (r *Runner) loggedIn(ctx context.Context) (bool, error) {
	loc, err := r.page.Location(ctx)
	if err != nil {
		return false, err
	}
	if !r.auth.SignedIn(loc) {
		return false, nil
	}
	doc, err := r.document(ctx)
	if err != nil {
		r.logger.Debug("Failed to read page during login check.", zap.Error(err))
		return false, nil
	}
	return htmlquery.FindOne(doc, loginLinkXPath) == nil, nil
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
