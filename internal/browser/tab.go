package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/config"
)

const (
	defaultNavigationTimeout = 90 * time.Second
	defaultPostLoadWait      = 1500 * time.Millisecond
	defaultActionTimeout     = 30 * time.Second
)

// Tab is a chromedp-backed Page.
type Tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	browser config.BrowserConfig
	network config.NetworkConfig
	logger  *zap.Logger
}

var _ Page = (*Tab)(nil)

// Close releases the tab.
func (t *Tab) Close() {
	t.cancel()
}

// run executes actions on the tab, bounded by both the tab lifetime and ctx.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(t.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// action bounds a single element interaction with the configured action timeout.
func (t *Tab) action(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := t.browser.ActionTimeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (t *Tab) Location(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

func (t *Tab) Snapshot(ctx context.Context) (io.Reader, error) {
	var html string
	if err := t.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("failed to snapshot document: %w", err)
	}
	return bytes.NewReader([]byte(html)), nil
}

func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := t.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Navigate loads url within the navigation timeout, then waits for the page to settle.
// A settle failure is logged and does not fail the navigation.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	t.logger.Info("Navigating.", zap.String("url", url))

	navTimeout := t.network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavigationTimeout
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	if err := t.run(navCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, navTimeout, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	if err := t.WaitStable(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		t.logger.Warn("Page stabilization failed after navigation (non-critical).", zap.Error(err))
	}
	return nil
}

func (t *Tab) WaitStable(ctx context.Context) error {
	timeout := t.network.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	var ready bool
	err := t.run(ctx, chromedp.Poll(`document.readyState === 'complete'`, &ready,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(100*time.Millisecond),
	))
	if err != nil {
		return fmt.Errorf("page did not finish loading: %w", err)
	}

	wait := t.network.PostLoadWait
	if wait <= 0 {
		wait = defaultPostLoadWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Tab) Click(ctx context.Context, xpath string) error {
	opCtx, cancel := t.action(ctx)
	defer cancel()

	err := t.run(opCtx,
		chromedp.ScrollIntoView(xpath, chromedp.BySearch),
		chromedp.WaitVisible(xpath, chromedp.BySearch),
		chromedp.Click(xpath, chromedp.BySearch, chromedp.NodeVisible),
	)
	if err != nil {
		return fmt.Errorf("click action failed for selector '%s': %w", xpath, err)
	}
	return nil
}

func (t *Tab) SetValue(ctx context.Context, xpath, value string) error {
	return t.evalMutation(ctx, "set value", setValueFn, xpath, value)
}

func (t *Tab) SelectOption(ctx context.Context, xpath, value string) error {
	return t.evalMutation(ctx, "select option", selectOptionFn, xpath, value)
}

func (t *Tab) evalMutation(ctx context.Context, name, fn, xpath, value string) error {
	script, err := invoke(fn, xpath, value)
	if err != nil {
		return err
	}
	opCtx, cancel := t.action(ctx)
	defer cancel()

	var ok bool
	err = t.run(opCtx,
		chromedp.ScrollIntoView(xpath, chromedp.BySearch),
		chromedp.Evaluate(script, &ok),
	)
	if err != nil {
		return fmt.Errorf("%s action failed for selector '%s': %w", name, xpath, err)
	}
	if !ok {
		return fmt.Errorf("%s action had no effect for selector '%s': %w", name, xpath, ErrElementNotFound)
	}
	return nil
}

func (t *Tab) IsChecked(ctx context.Context, xpath string) (bool, error) {
	return t.evalFlag(ctx, isCheckedFn, xpath)
}

func (t *Tab) IsEnabled(ctx context.Context, xpath string) (bool, error) {
	return t.evalFlag(ctx, isEnabledFn, xpath)
}

func (t *Tab) evalFlag(ctx context.Context, fn, xpath string) (bool, error) {
	script, err := invoke(fn, xpath)
	if err != nil {
		return false, err
	}
	var flag *bool
	if err := t.run(ctx, chromedp.Evaluate(script, &flag)); err != nil {
		return false, fmt.Errorf("failed to inspect '%s': %w", xpath, err)
	}
	if flag == nil {
		return false, fmt.Errorf("failed to inspect '%s': %w", xpath, ErrElementNotFound)
	}
	return *flag, nil
}
