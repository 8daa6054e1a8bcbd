package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/browser"
)

type Options struct {
	NavigationTimeout     time.Duration
	ConsentDelay          time.Duration
	LocalityTimeout       time.Duration
	PollInterval          time.Duration
	ReadinessTimeout      time.Duration
	ReadinessRetryTimeout time.Duration
	CorrectiveScrollY     int
	MaxScrollLoops        int
	ScrollPause           time.Duration
	DiagnosticsDir        string
}

func DefaultOptions() Options {
	return Options{
		NavigationTimeout:     90 * time.Second,
		ConsentDelay:          1500 * time.Millisecond,
		LocalityTimeout:       10 * time.Second,
		PollInterval:          400 * time.Millisecond,
		ReadinessTimeout:      35 * time.Second,
		ReadinessRetryTimeout: 15 * time.Second,
		CorrectiveScrollY:     500,
		MaxScrollLoops:        20,
		ScrollPause:           1200 * time.Millisecond,
		DiagnosticsDir:        "data/diagnostics",
	}
}

// LoadedPage is the stabilized page handed to extraction.
type LoadedPage struct {
	URL  string
	HTML string
}

// Driver walks a retailer's search page from navigation to a fully scrolled
// result list. Every session it opens is closed before Load returns.
type Driver struct {
	launcher browser.Launcher
	opts     Options
	logger   *slog.Logger
}

func NewDriver(launcher browser.Launcher, opts Options, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		launcher: launcher,
		opts:     opts,
		logger:   logger.With("component", "driver"),
	}
}

func (d *Driver) Load(ctx context.Context, a adapter.Adapter, term string) (*LoadedPage, error) {
	logger := d.logger.With("retailer", a.Name, "query", term)

	page, err := d.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSession, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("failed to close browser session", "error", err)
		}
	}()

	target := a.SearchURLFor(term)
	logger.Info("navigating", "url", target)

	if err := page.Navigate(target, d.opts.NavigationTimeout); err != nil {
		logger.Warn("continuing after navigation error", "error", fmt.Errorf("%w: %w", ErrNavigation, err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := d.dismissConsent(ctx, page, a, logger); err != nil {
		return nil, err
	}

	if a.HasLocalityGate() {
		if err := d.completeLocality(ctx, page, a, logger); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("continuing without locality", "error", err)
		}
	}

	if marker, blocked := d.detectBlock(page, a); blocked {
		logger.Warn("block detected, aborting retailer", "marker", marker)
		d.saveDiagnostics(page, a.Name, logger)
		return nil, fmt.Errorf("%w: %s", ErrBlocked, marker)
	}

	if err := d.waitReady(ctx, page, a.Selectors.Product, logger); err != nil {
		return nil, err
	}

	if err := d.scrollToEnd(ctx, page, logger); err != nil {
		return nil, err
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to capture content: %w", ErrSession, err)
	}

	return &LoadedPage{URL: pageURL(page, target), HTML: html}, nil
}

func (d *Driver) dismissConsent(ctx context.Context, page browser.Page, a adapter.Adapter, logger *slog.Logger) error {
	candidates := append([]string{}, a.ConsentSelectors()...)
	candidates = append(candidates, textSelectors(a.ConsentButtonTexts())...)

	for _, selector := range candidates {
		if !exists(page, selector) {
			continue
		}

		if err := page.Click(selector); err != nil {
			logger.Debug("consent click failed", "selector", selector, "error", err)
			continue
		}

		logger.Info("accepted cookies", "selector", selector)
		return sleep(ctx, d.opts.ConsentDelay)
	}

	return nil
}

func (d *Driver) completeLocality(ctx context.Context, page browser.Page, a adapter.Adapter, logger *slog.Logger) error {
	input := firstExisting(page, a.Selectors.Locality)
	if input == "" {
		logger.Debug("no locality input on page")
		return nil
	}

	if err := page.Fill(input, a.LocalityCode); err != nil {
		return fmt.Errorf("%w: fill %s: %w", ErrLocality, input, err)
	}

	confirm := firstExisting(page, a.Selectors.LocalityConfirm)
	if confirm == "" {
		confirm = firstExisting(page, textSelectors(a.LocalityConfirmTexts))
	}
	if confirm == "" {
		return fmt.Errorf("%w: no confirm control found", ErrLocality)
	}

	if err := page.Click(confirm); err != nil {
		return fmt.Errorf("%w: click %s: %w", ErrLocality, confirm, err)
	}

	if err := page.WaitForNetworkIdle(d.opts.LocalityTimeout); err != nil {
		logger.Debug("network did not settle after locality", "error", err)
	}

	logger.Info("locality set", "code", a.LocalityCode)
	return sleep(ctx, d.opts.ConsentDelay)
}

// detectBlock looks for CAPTCHA widgets first and then for block keywords in
// the visible page text.
func (d *Driver) detectBlock(page browser.Page, a adapter.Adapter) (string, bool) {
	if selector := firstExisting(page, a.BlockSelectors()); selector != "" {
		return selector, true
	}

	text, err := page.Text()
	if err != nil {
		return "", false
	}

	text = strings.ToLower(text)
	for _, keyword := range a.BlockMarkers() {
		if strings.Contains(text, strings.ToLower(keyword)) {
			return keyword, true
		}
	}

	return "", false
}

func (d *Driver) saveDiagnostics(page browser.Page, retailer string, logger *slog.Logger) {
	if d.opts.DiagnosticsDir == "" {
		return
	}

	if err := os.MkdirAll(d.opts.DiagnosticsDir, 0o755); err != nil {
		logger.Error("failed to create diagnostics directory", "error", err)
		return
	}

	base := filepath.Join(d.opts.DiagnosticsDir, fmt.Sprintf("%s-%s", strings.ToLower(retailer), uuid.NewString()))

	if err := page.Screenshot(base + ".png"); err != nil {
		logger.Error("failed to save screenshot", "error", err)
	}

	html, err := page.Content()
	if err != nil {
		logger.Error("failed to capture blocked page", "error", err)
		return
	}

	if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		logger.Error("failed to save blocked page", "error", err)
		return
	}

	logger.Info("saved diagnostics", "path", base)
}

func (d *Driver) waitReady(ctx context.Context, page browser.Page, product adapter.Alternatives, logger *slog.Logger) error {
	if selector, err := d.poll(ctx, page, product, d.opts.ReadinessTimeout); err != nil || selector != "" {
		return err
	}

	logger.Info("products not visible yet, scrolling and retrying")
	if err := page.ScrollTo(d.opts.CorrectiveScrollY); err != nil {
		logger.Debug("corrective scroll failed", "error", err)
	}

	selector, err := d.poll(ctx, page, product, d.opts.ReadinessRetryTimeout)
	if err != nil {
		return err
	}
	if selector == "" {
		return ErrNoProducts
	}

	return nil
}

// poll returns the first product selector present before timeout, or "" if
// none showed up.
func (d *Driver) poll(ctx context.Context, page browser.Page, selectors adapter.Alternatives, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		if selector := firstExisting(page, selectors); selector != "" {
			return selector, nil
		}

		if !time.Now().Before(deadline) {
			return "", nil
		}

		if err := sleep(ctx, d.opts.PollInterval); err != nil {
			return "", err
		}
	}
}

// scrollToEnd keeps scrolling while the page grows, up to MaxScrollLoops.
func (d *Driver) scrollToEnd(ctx context.Context, page browser.Page, logger *slog.Logger) error {
	height, err := page.ScrollHeight()
	if err != nil {
		logger.Debug("could not read page height", "error", err)
		return nil
	}

	for i := 0; i < d.opts.MaxScrollLoops; i++ {
		if err := page.ScrollToBottom(); err != nil {
			logger.Debug("scroll failed", "error", err)
			return nil
		}

		if err := sleep(ctx, d.opts.ScrollPause); err != nil {
			return err
		}

		next, err := page.ScrollHeight()
		if err != nil || next <= height {
			logger.Debug("scrolling finished", "loops", i+1, "height", height)
			return nil
		}
		height = next
	}

	return nil
}

func textSelectors(texts []string) []string {
	selectors := make([]string, 0, len(texts)*2)
	for _, text := range texts {
		selectors = append(selectors, fmt.Sprintf("button:has-text(%q)", text))
	}
	for _, text := range texts {
		selectors = append(selectors, fmt.Sprintf("a:has-text(%q)", text))
	}
	return selectors
}

func firstExisting[T ~[]string](page browser.Page, selectors T) string {
	for _, selector := range selectors {
		if exists(page, selector) {
			return selector
		}
	}
	return ""
}

func exists(page browser.Page, selector string) bool {
	found, err := page.Exists(selector)
	return err == nil && found
}

func pageURL(page browser.Page, fallback string) string {
	if u := page.URL(); u != "" && u != "about:blank" {
		return u
	}
	return fallback
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
