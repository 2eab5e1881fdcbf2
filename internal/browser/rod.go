package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// metricsJS reads the scroll geometry in one round trip. The max() over body
// and documentElement matches how browsers disagree about which element owns
// the document scroll height.
const metricsJS = `() => {
	const scrollTop = window.pageYOffset || document.documentElement.scrollTop;
	const scrollHeight = Math.max(
		document.body.scrollHeight,
		document.documentElement.scrollHeight,
	);
	const clientHeight = document.documentElement.clientHeight;
	return {top: scrollTop, viewport: clientHeight, document: scrollHeight};
}`

// visibleTextJS walks the DOM collecting direct text of elements that
// intersect the viewport, skipping non-content tags. Text arrives in document
// order, space-joined.
const visibleTextJS = `() => {
	const viewportWidth = window.innerWidth;
	const viewportHeight = window.innerHeight;

	function collect(element, result) {
		if (!element ||
			!element.getBoundingClientRect ||
			['SCRIPT', 'STYLE', 'META', 'LINK', 'NOSCRIPT'].includes(element.tagName)) {
			return result;
		}
		const rect = element.getBoundingClientRect();
		if (rect.width > 0 &&
			rect.height > 0 &&
			rect.bottom > 0 &&
			rect.right > 0 &&
			rect.top < viewportHeight &&
			rect.left < viewportWidth) {
			const ownText = Array.from(element.childNodes)
				.filter(n => n.nodeType === 3)
				.map(n => n.textContent.trim())
				.filter(t => t)
				.join(' ');
			if (ownText) {
				result.push(ownText);
			}
			for (const child of element.children) {
				collect(child, result);
			}
		}
		return result;
	}

	return collect(document.body, []).join(' ');
}`

type RodOptions struct {
	Log *slog.Logger

	Headless       bool
	ViewportWidth  int
	ViewportHeight int

	// Settle is how long to wait after a scroll before trusting the layout.
	Settle time.Duration

	// HostAllowed, when set, is also applied to sub-resource requests; loads
	// from refused hosts are aborted at the network layer.
	HostAllowed func(host string) bool
}

// RodEngine drives one Chromium page over the DevTools protocol.
type RodEngine struct {
	log      *slog.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	settle   time.Duration
}

// NewRodEngine launches a browser, opens one page, and applies the viewport
// size. The returned engine owns the browser process and tears it down on
// Close.
func NewRodEngine(ctx context.Context, opts RodOptions) (*RodEngine, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = 1024
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = 768
	}
	if opts.Settle <= 0 {
		opts.Settle = 100 * time.Millisecond
	}

	l := launcher.New().Headless(opts.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  opts.ViewportWidth,
		Height: opts.ViewportHeight,
	}); err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	e := &RodEngine{
		log:      log,
		launcher: l,
		browser:  browser,
		page:     page,
		settle:   opts.Settle,
	}
	if opts.HostAllowed != nil {
		e.installHostFilter(opts.HostAllowed)
	}
	return e, nil
}

// installHostFilter aborts sub-resource loads from hosts outside the
// allow-list. Top-level navigation is refused earlier, before the engine is
// even asked; this catches embedded trackers and third-party assets.
func (e *RodEngine) installHostFilter(allowed func(host string) bool) {
	router := e.page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if allowed(strings.ToLower(h.Request.URL().Hostname())) {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
	})
	if err != nil {
		e.log.Warn("host filter not installed", "error", err)
		return
	}
	go router.Run()
}

func (e *RodEngine) Navigate(ctx context.Context, rawURL string) error {
	page := e.page.Context(ctx)
	if err := page.Navigate(rawURL); err != nil {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", rawURL, err)
	}
	if err := page.WaitStable(e.settle); err != nil {
		e.log.Debug("page did not stabilize", "url", rawURL, "error", err)
	}
	return nil
}

func (e *RodEngine) Metrics(ctx context.Context) (Metrics, error) {
	res, err := e.page.Context(ctx).Eval(metricsJS)
	if err != nil {
		return Metrics{}, fmt.Errorf("read metrics: %w", err)
	}
	return Metrics{
		ScrollOffset:   res.Value.Get("top").Num(),
		ViewportHeight: res.Value.Get("viewport").Num(),
		DocumentHeight: res.Value.Get("document").Num(),
	}, nil
}

func (e *RodEngine) ScrollBy(ctx context.Context, delta float64) error {
	_, err := e.page.Context(ctx).Eval(`(dy) => window.scrollBy(0, dy)`, delta)
	if err != nil {
		return fmt.Errorf("scroll by %.0f: %w", delta, err)
	}
	e.wait(ctx)
	return nil
}

func (e *RodEngine) ScrollTo(ctx context.Context, offset float64) error {
	_, err := e.page.Context(ctx).Eval(`(y) => window.scrollTo(0, y)`, offset)
	if err != nil {
		return fmt.Errorf("scroll to %.0f: %w", offset, err)
	}
	e.wait(ctx)
	return nil
}

func (e *RodEngine) VisibleText(ctx context.Context) (string, error) {
	res, err := e.page.Context(ctx).Eval(visibleTextJS)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return res.Value.Str(), nil
}

// wait gives the renderer time to apply the scroll before the next read.
func (e *RodEngine) wait(ctx context.Context) {
	select {
	case <-time.After(e.settle):
	case <-ctx.Done():
	}
}

func (e *RodEngine) Close() error {
	if e.page != nil {
		_ = e.page.Close()
		e.page = nil
	}
	if e.browser != nil {
		err := e.browser.Close()
		e.browser = nil
		if e.launcher != nil {
			e.launcher.Cleanup()
			e.launcher = nil
		}
		return err
	}
	if e.launcher != nil {
		e.launcher.Cleanup()
		e.launcher = nil
	}
	return nil
}
