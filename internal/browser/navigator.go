package browser

import (
	"context"
	"log/slog"
	"math"
	"net/url"
	"strings"
)

// occurrenceEpsilon is the position tolerance for FindNext duplicate
// suppression: two matches within this many position units are treated as the
// same occurrence (viewport overlap makes exact positions approximate).
const occurrenceEpsilon = 50

// Navigator owns one document session and exposes the bounded-viewport
// reading operations: page forward/back, current-window read, and the two
// text searches. One Navigator per URL; never shared, never reused.
//
// Every engine fault is absorbed here and converted to the documented
// sentinel/empty/zero result. A malformed page must not abort the task.
type Navigator struct {
	log          *slog.Logger
	engine       Engine
	allowedHosts map[string]struct{}
	cursor       searchCursor
}

// searchCursor is the resumable FindNext state. It is session-scoped and
// reset on session open, on end-of-document, and on any fault.
type searchCursor struct {
	snapshot        string
	lastMatchOffset int
	occurrenceIndex int
	seenPositions   []float64
}

func (c *searchCursor) reset() {
	*c = searchCursor{lastMatchOffset: -1}
}

func (c *searchCursor) seen(pos float64) bool {
	for _, p := range c.seenPositions {
		if math.Abs(pos-p) < occurrenceEpsilon {
			return true
		}
	}
	return false
}

type NavigatorOptions struct {
	Log *slog.Logger

	// AllowedHosts restricts navigation to exact host matches. Empty allows
	// all hosts. Subdomains are not implied; list them explicitly.
	AllowedHosts []string
}

func NewNavigator(engine Engine, opts NavigatorOptions) *Navigator {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	var allowed map[string]struct{}
	if len(opts.AllowedHosts) > 0 {
		allowed = make(map[string]struct{}, len(opts.AllowedHosts))
		for _, h := range opts.AllowedHosts {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" {
				allowed[h] = struct{}{}
			}
		}
	}
	n := &Navigator{log: log, engine: engine, allowedHosts: allowed}
	n.cursor.reset()
	return n
}

// HostAllowed reports whether a URL's host passes the allow-list.
// Exact match only.
func (n *Navigator) HostAllowed(rawURL string) bool {
	if n == nil || len(n.allowedHosts) == 0 {
		return true
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u == nil {
		return false
	}
	_, ok := n.allowedHosts[strings.ToLower(u.Hostname())]
	return ok
}

// Open navigates the session to a URL. It reports false when the host is
// refused by the allow-list or when navigation fails; it never raises.
// Opening resets the search cursor.
func (n *Navigator) Open(ctx context.Context, rawURL string) bool {
	if n == nil || n.engine == nil {
		return false
	}
	n.cursor.reset()
	if !n.HostAllowed(rawURL) {
		n.log.Warn("navigation blocked by allow-list", "url", rawURL)
		return false
	}
	if err := n.engine.Navigate(ctx, rawURL); err != nil {
		n.log.Warn("navigation failed", "url", rawURL, "error", err)
		return false
	}
	return true
}

// Close releases the underlying session.
func (n *Navigator) Close() {
	if n == nil || n.engine == nil {
		return
	}
	if err := n.engine.Close(); err != nil {
		n.log.Warn("session close failed", "error", err)
	}
}

// PageDown scrolls forward exactly one viewport height and returns the new
// window. At the bottom it returns the end-of-page sentinel without moving.
// Windows produced by successive calls are disjoint.
func (n *Navigator) PageDown(ctx context.Context) Result {
	if n == nil || n.engine == nil {
		return Result{}
	}
	m, err := n.engine.Metrics(ctx)
	if err != nil {
		n.log.Warn("page down: metrics failed", "error", err)
		return Result{}
	}
	if m.ScrollOffset+m.ViewportHeight >= m.DocumentHeight {
		return Result{Sentinel: EndOfPage}
	}
	if err := n.engine.ScrollBy(ctx, m.ViewportHeight); err != nil {
		n.log.Warn("page down: scroll failed", "error", err)
		return Result{}
	}
	w, err := n.window(ctx)
	if err != nil {
		n.log.Warn("page down: read failed", "error", err)
		return Result{}
	}
	return Result{Window: &w}
}

// PageUp is the symmetric operation; the sentinel is top-of-page at offset 0.
func (n *Navigator) PageUp(ctx context.Context) Result {
	if n == nil || n.engine == nil {
		return Result{}
	}
	m, err := n.engine.Metrics(ctx)
	if err != nil {
		n.log.Warn("page up: metrics failed", "error", err)
		return Result{}
	}
	if m.ScrollOffset <= 0 {
		return Result{Sentinel: TopOfPage}
	}
	if err := n.engine.ScrollBy(ctx, -m.ViewportHeight); err != nil {
		n.log.Warn("page up: scroll failed", "error", err)
		return Result{}
	}
	w, err := n.window(ctx)
	if err != nil {
		n.log.Warn("page up: read failed", "error", err)
		return Result{}
	}
	return Result{Window: &w}
}

// ReadWindow extracts the current window's visible text without moving.
// It returns "" when there is no session or the read faults.
func (n *Navigator) ReadWindow(ctx context.Context) string {
	if n == nil || n.engine == nil {
		return ""
	}
	text, err := n.engine.VisibleText(ctx)
	if err != nil {
		n.log.Warn("read window failed", "error", err)
		return ""
	}
	return text
}

// FindFirst searches for needle case-insensitively, checking the current
// window first, then rescanning from the document top window-by-window. It
// always starts its scan at the top regardless of the search cursor, so the
// result does not depend on the scroll offset at call time. Not found or any
// fault yields nil.
func (n *Navigator) FindFirst(ctx context.Context, needle string) *Window {
	if n == nil || n.engine == nil {
		return nil
	}
	needleLower := strings.ToLower(needle)

	if w, err := n.window(ctx); err == nil && strings.Contains(strings.ToLower(w.Text), needleLower) {
		return &w
	}

	if err := n.engine.ScrollTo(ctx, 0); err != nil {
		n.log.Warn("find first: reset to top failed", "error", err)
		return nil
	}
	for {
		w, err := n.window(ctx)
		if err != nil {
			n.log.Warn("find first: read failed", "error", err)
			return nil
		}
		if strings.Contains(strings.ToLower(w.Text), needleLower) {
			return &w
		}
		res := n.PageDown(ctx)
		if res.Sentinel != "" {
			break
		}
		if res.Window == nil {
			return nil
		}
	}
	n.log.Debug("find first: not found", "needle", needle)
	return nil
}

// FindNext returns the window containing the next unseen occurrence of
// needle, resuming from the cursor. Occurrences within occurrenceEpsilon
// position units of an already-reported one are skipped silently. When the
// cached snapshot is exhausted it scrolls forward half a viewport height (the
// 50% overlap keeps boundary-straddling matches visible), re-extracts, and
// continues. No scroll progress means the document is exhausted: the cursor
// is cleared and the end-of-page sentinel returned. Any fault clears the
// cursor and yields the zero result.
func (n *Navigator) FindNext(ctx context.Context, needle string) Result {
	if n == nil || n.engine == nil {
		return Result{}
	}
	needleLower := strings.ToLower(needle)

	if n.cursor.snapshot == "" {
		text, err := n.engine.VisibleText(ctx)
		if err != nil {
			n.log.Warn("find next: read failed", "error", err)
			n.cursor.reset()
			return Result{}
		}
		n.cursor.snapshot = text
		n.cursor.lastMatchOffset = -1
	}

	for {
		m, err := n.engine.Metrics(ctx)
		if err != nil {
			n.log.Warn("find next: metrics failed", "error", err)
			n.cursor.reset()
			return Result{}
		}

		contentLower := strings.ToLower(n.cursor.snapshot)
		for {
			start := n.cursor.lastMatchOffset + 1
			if start > len(contentLower) {
				break
			}
			rel := strings.Index(contentLower[start:], needleLower)
			if rel < 0 {
				break
			}
			pos := start + rel
			absolute := m.ScrollOffset + float64(pos)
			n.cursor.lastMatchOffset = pos
			if n.cursor.seen(absolute) {
				continue
			}
			n.cursor.seenPositions = append(n.cursor.seenPositions, absolute)
			n.cursor.occurrenceIndex++
			n.log.Debug("find next: occurrence", "needle", needle, "index", n.cursor.occurrenceIndex)
			w := Window{
				Text:     n.cursor.snapshot,
				AtTop:    m.ScrollOffset <= 0,
				AtBottom: m.ScrollOffset+m.ViewportHeight >= m.DocumentHeight,
			}
			return Result{Window: &w}
		}

		// Snapshot exhausted: advance by half a viewport for overlap.
		if err := n.engine.ScrollBy(ctx, m.ViewportHeight/2); err != nil {
			n.log.Warn("find next: scroll failed", "error", err)
			n.cursor.reset()
			return Result{}
		}
		after, err := n.engine.Metrics(ctx)
		if err != nil {
			n.log.Warn("find next: metrics failed", "error", err)
			n.cursor.reset()
			return Result{}
		}
		if after.ScrollOffset <= m.ScrollOffset {
			n.cursor.reset()
			return Result{Sentinel: EndOfPage}
		}
		text, err := n.engine.VisibleText(ctx)
		if err != nil {
			n.log.Warn("find next: read failed", "error", err)
			n.cursor.reset()
			return Result{}
		}
		n.cursor.snapshot = text
		n.cursor.lastMatchOffset = -1
	}
}

func (n *Navigator) window(ctx context.Context) (Window, error) {
	m, err := n.engine.Metrics(ctx)
	if err != nil {
		return Window{}, err
	}
	text, err := n.engine.VisibleText(ctx)
	if err != nil {
		return Window{}, err
	}
	return Window{
		Text:     text,
		AtTop:    m.ScrollOffset <= 0,
		AtBottom: m.ScrollOffset+m.ViewportHeight >= m.DocumentHeight,
	}, nil
}
