package browser

import "context"

// Metrics is the scroll geometry of the current document.
type Metrics struct {
	ScrollOffset   float64
	ViewportHeight float64
	DocumentHeight float64
}

// Engine is one live document session. The Navigator is the only consumer;
// it treats every returned error as a recoverable fault and converts it to
// the documented sentinel/empty result at the call site.
type Engine interface {
	// Navigate loads a URL and waits for the load to complete.
	Navigate(ctx context.Context, url string) error

	// Metrics reads the current scroll geometry.
	Metrics(ctx context.Context) (Metrics, error)

	// ScrollBy scrolls vertically by delta pixels and settles.
	ScrollBy(ctx context.Context, delta float64) error

	// ScrollTo scrolls to an absolute vertical offset and settles.
	ScrollTo(ctx context.Context, offset float64) error

	// VisibleText extracts the document-order text of non-script/style
	// elements intersecting the viewport.
	VisibleText(ctx context.Context) (string, error)

	// Close releases the session. Safe to call more than once.
	Close() error
}

// EngineFactory opens a fresh session. The orchestrator opens one session per
// URL and never reuses it across URLs.
type EngineFactory func(ctx context.Context) (Engine, error)
