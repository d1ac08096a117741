package browser

import "context"

// combineContext derives from primary, which carries the chromedp tab, and is also cancelled
// when op is done. op usually carries the per-action deadline.
func combineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(op, func() {
		cancel(context.Cause(op))
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
