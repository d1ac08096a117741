// Package browser drives the live Chrome tab the wizard runs in. Controls are addressed by
// XPath so descriptors discovered from an HTML snapshot can be acted on directly.
package browser

import (
	"context"
	"errors"
	"io"
)

// ErrElementNotFound is returned when an XPath matches nothing on the live page.
var ErrElementNotFound = errors.New("element not found")

// Page is the live-page surface the navigator, filler and campaign runner depend on.
type Page interface {
	// Location returns the current URL.
	Location(ctx context.Context) (string, error)
	// Snapshot returns the serialized document HTML.
	Snapshot(ctx context.Context) (io.Reader, error)
	// Screenshot returns a PNG of the viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	// Navigate loads url and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// SetValue assigns a text value through the native setter and raises input and change.
	SetValue(ctx context.Context, xpath, value string) error
	// SelectOption selects the option with the given value and raises change.
	SelectOption(ctx context.Context, xpath, value string) error
	Click(ctx context.Context, xpath string) error
	IsChecked(ctx context.Context, xpath string) (bool, error)
	// IsEnabled is false for disabled or aria-disabled elements.
	IsEnabled(ctx context.Context, xpath string) (bool, error)
	// WaitStable blocks until the document has finished loading and the post-load wait elapsed.
	WaitStable(ctx context.Context) error
}
