// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

// Session is one live browser tab implementing schemas.BrowserSession.
// Every method is a fallible external request bounded by its own timeout
// beneath the caller's context.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.BrowserSession = (*Session)(nil)

// NewSession creates a new Session wrapper around a chromedp context.
func NewSession(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	return &Session{
		id:     sessionID,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("browser_session").With(zap.String("session_id", sessionID)),
		cfg:    cfg,
	}, nil
}

// Initialize connects the tab and applies the emulated viewport.
func (s *Session) Initialize(ctx context.Context) error {
	initCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(initCtx,
		chromedp.EmulateViewport(int64(s.cfg.Browser.ViewportWidth), int64(s.cfg.Browser.ViewportHeight)),
	); err != nil {
		return fmt.Errorf("failed to initialize browser target: %w", err)
	}
	return nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Context returns the underlying chromedp context for the session.
func (s *Session) Context() context.Context {
	return s.ctx
}

// runActions executes chromedp actions, respecting both the session
// lifetime (s.ctx) and the incoming request context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// validateURLScheme rejects navigation targets outside the allowed schemes.
// about:blank is the single allowed about: URL.
func validateURLScheme(rawURL string) error {
	if rawURL == "about:blank" {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return nil
	case "":
		return fmt.Errorf("URL %q has no scheme", rawURL)
	default:
		return fmt.Errorf("URL scheme %q is not allowed", parsed.Scheme)
	}
}

// Navigate loads the URL and waits for the page to stabilize.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	s.logger.Debug("Navigating to URL", zap.String("url", rawURL))

	if err := validateURLScheme(rawURL); err != nil {
		return schemas.NewAgentError(schemas.ErrNavigationFailed, "navigation blocked", err)
	}

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	navTimeout := s.navigationTimeout()
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(rawURL)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return schemas.NewAgentError(schemas.ErrTimeout,
				fmt.Sprintf("navigation timed out after %s", navTimeout), err)
		}
		if opCtx.Err() != nil {
			return opCtx.Err()
		}
		return schemas.NewAgentError(schemas.ErrNavigationFailed, fmt.Sprintf("navigation to %s failed", rawURL), err)
	}

	// Stabilization failures after a successful navigation are non-critical.
	if err := s.stabilize(opCtx); err != nil {
		if opCtx.Err() != nil {
			return opCtx.Err()
		}
		s.logger.Warn("Page stabilization failed after navigation (non-critical).", zap.Error(err))
	}
	return nil
}

// stabilize waits for the DOM to be ready plus the configured quiet period.
func (s *Session) stabilize(ctx context.Context) error {
	stabCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := chromedp.Run(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}

	quietPeriod := s.cfg.Browser.PostLoadWait
	if quietPeriod <= 0 {
		quietPeriod = 1500 * time.Millisecond
	}
	return chromedp.Run(stabCtx, chromedp.Sleep(quietPeriod))
}

// actionTimeout returns the per-action timeout.
func (s *Session) actionTimeout() time.Duration {
	if s.cfg.Browser.ActionTimeout > 0 {
		return s.cfg.Browser.ActionTimeout
	}
	return 15 * time.Second
}

// navigationTimeout returns the per-navigation timeout.
func (s *Session) navigationTimeout() time.Duration {
	if s.cfg.Browser.NavigationTimeout > 0 {
		return s.cfg.Browser.NavigationTimeout
	}
	return 30 * time.Second
}

// Click interacts with the element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking element", zap.String("selector", selector))

	clickCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	err := s.runActions(clickCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click action failed for selector '%s': %w", selector, err)
	}
	return s.stabilize(ctx)
}

// ClickAt dispatches a raw pointer click at viewport coordinates.
func (s *Session) ClickAt(ctx context.Context, point schemas.Point) error {
	s.logger.Debug("Clicking at coordinates", zap.Float64("x", point.X), zap.Float64("y", point.Y))

	clickCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	if err := s.runActions(clickCtx, chromedp.MouseClickXY(point.X, point.Y)); err != nil {
		return fmt.Errorf("click at (%.0f, %.0f) failed: %w", point.X, point.Y, err)
	}
	return s.stabilize(ctx)
}

// Type replaces the element's value with text, simulating key input.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	s.logger.Debug("Typing into element", zap.String("selector", selector), zap.Int("text_length", len(text)))

	// Longer inputs get proportionally more time.
	timeout := s.actionTimeout() + time.Duration(len(text)/10)*time.Second
	if timeout > 3*time.Minute {
		timeout = 3 * time.Minute
	}
	typeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.runActions(typeCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type action failed for selector '%s': %w", selector, err)
	}
	return nil
}

// SelectOption sets a <select> element's value and fires change events.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	s.logger.Debug("Selecting option", zap.String("selector", selector), zap.String("value", value))

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) { return false; }
		el.value = %q;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return el.value === %q;
	})()`, selector, value, value)

	selectCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	var ok bool
	if err := s.runActions(selectCtx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("select action failed for selector '%s': %w", selector, err)
	}
	if !ok {
		return fmt.Errorf("option %q could not be selected in '%s'", value, selector)
	}
	return nil
}

// Scroll moves the viewport by amountPx in the given direction.
func (s *Session) Scroll(ctx context.Context, direction string, amountPx int) error {
	s.logger.Debug("Scrolling page", zap.String("direction", direction), zap.Int("amount_px", amountPx))

	var script string
	switch direction {
	case "down":
		script = fmt.Sprintf(`window.scrollBy({top: %d, behavior: 'instant'});`, amountPx)
	case "up":
		script = fmt.Sprintf(`window.scrollBy({top: -%d, behavior: 'instant'});`, amountPx)
	case "bottom":
		script = `window.scrollTo({top: document.body.scrollHeight, behavior: 'instant'});`
	case "top":
		script = `window.scrollTo({top: 0, behavior: 'instant'});`
	default:
		return fmt.Errorf("invalid scroll direction: %s (supported: up, down, top, bottom)", direction)
	}

	scrollCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.runActions(scrollCtx,
		chromedp.Evaluate(script, nil),
		chromedp.Sleep(300*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("scroll action failed: %w", err)
	}
	return nil
}

// ScrollByPage scrolls by one viewport height.
func (s *Session) ScrollByPage(ctx context.Context, direction string) error {
	var script string
	switch direction {
	case "down":
		script = `window.scrollBy({top: window.innerHeight, behavior: 'instant'});`
	case "up":
		script = `window.scrollBy({top: -window.innerHeight, behavior: 'instant'});`
	default:
		return fmt.Errorf("invalid page scroll direction: %s (supported: up, down)", direction)
	}

	scrollCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.runActions(scrollCtx,
		chromedp.Evaluate(script, nil),
		chromedp.Sleep(300*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("page scroll action failed: %w", err)
	}
	return nil
}

// WaitFor pauses for the given duration, bounded to 30s.
func (s *Session) WaitFor(ctx context.Context, milliseconds int) error {
	duration := time.Duration(milliseconds) * time.Millisecond
	if duration > 30*time.Second {
		duration = 30 * time.Second
	}
	s.logger.Debug("Waiting", zap.Duration("duration", duration))
	return s.runActions(ctx, chromedp.Sleep(duration))
}

// GoBack navigates one entry back in the tab history.
func (s *Session) GoBack(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	if err := s.runActions(navCtx, chromedp.NavigateBack()); err != nil {
		return schemas.NewAgentError(schemas.ErrNavigationFailed, "go back failed", err)
	}
	return s.stabilize(ctx)
}

// Reload refreshes the current page.
func (s *Session) Reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, s.navigationTimeout())
	defer cancel()

	if err := s.runActions(navCtx, chromedp.Reload()); err != nil {
		return schemas.NewAgentError(schemas.ErrNavigationFailed, "reload failed", err)
	}
	return s.stabilize(ctx)
}

// Screenshot captures a JPEG of the viewport, or the full page when
// fullPage is set.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	shotCtx, cancel := context.WithTimeout(ctx, s.actionTimeout())
	defer cancel()

	var buf []byte
	err := s.runActions(shotCtx, chromedp.ActionFunc(func(c context.Context) error {
		params := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(70)
		if fullPage {
			params = params.WithCaptureBeyondViewport(true)
		}
		var err error
		buf, err = params.Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// Evaluate runs a JavaScript snippet in the current document, optionally
// unmarshaling the result into res.
func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	return s.runActions(ctx, chromedp.Evaluate(script, res))
}

// OuterHTML returns the serialized current document.
func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.runActions(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture document HTML: %w", err)
	}
	return html, nil
}

// CurrentURL returns the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.runActions(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Title returns the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.runActions(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// CaptureState collects the tab's cookies for persistence.
func (s *Session) CaptureState(ctx context.Context, name string) (schemas.SessionState, error) {
	state := schemas.SessionState{Name: name}

	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		cookies, err := network.GetCookies().Do(c)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			state.Cookies = append(state.Cookies, schemas.CookieRecord{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Expires:  ck.Expires,
				HTTPOnly: ck.HTTPOnly,
				Secure:   ck.Secure,
				SameSite: ck.SameSite.String(),
			})
		}
		return nil
	}))
	if err != nil {
		return schemas.SessionState{}, fmt.Errorf("failed to capture cookies: %w", err)
	}
	return state, nil
}

// RestoreState applies persisted cookies to the tab.
func (s *Session) RestoreState(ctx context.Context, state schemas.SessionState) error {
	return s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		for _, ck := range state.Cookies {
			params := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(ck.Path).
				WithHTTPOnly(ck.HTTPOnly).
				WithSecure(ck.Secure)
			if ck.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
				params = params.WithExpires(&expires)
			}
			if ck.SameSite != "" {
				params = params.WithSameSite(network.CookieSameSite(ck.SameSite))
			}
			if err := params.Do(c); err != nil {
				s.logger.Warn("Failed to restore cookie.", zap.String("name", ck.Name), zap.Error(err))
			}
		}
		return nil
	}))
}

// Close terminates the browser session.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
