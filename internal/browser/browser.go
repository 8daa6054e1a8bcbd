package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgents     []string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

func DefaultUserAgents() []string {
	return append([]string(nil), defaultUserAgents...)
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgents:     DefaultUserAgents(),
		ViewportWidth:  1366,
		ViewportHeight: 900,
		AcceptLanguage: "es-ES,es;q=0.9,en;q=0.8",
		TimezoneID:     "Europe/Madrid",
		Locale:         "es-ES",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

// PickUserAgent returns a random entry of the pool, or "" for an empty pool.
func (o *Options) PickUserAgent() string {
	if len(o.UserAgents) == 0 {
		return ""
	}
	return o.UserAgents[rand.Intn(len(o.UserAgents))]
}

// PlaywrightLauncher starts a fresh Playwright driver, browser and context for
// every session so nothing leaks between scrapes.
type PlaywrightLauncher struct {
	opts   *Options
	logger *slog.Logger
}

func NewLauncher(opts *Options, logger *slog.Logger) *PlaywrightLauncher {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PlaywrightLauncher{
		opts:   opts,
		logger: logger.With("component", "browser"),
	}
}

func (l *PlaywrightLauncher) Launch(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userAgent := l.opts.PickUserAgent()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}

	if l.opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: l.opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := make(map[string]string, len(l.opts.ExtraHeaders)+1)
	for k, v := range l.opts.ExtraHeaders {
		headers[k] = v
	}
	if l.opts.AcceptLanguage != "" {
		headers["Accept-Language"] = l.opts.AcceptLanguage
	}

	contextOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(l.opts.Locale),
		TimezoneId:        playwright.String(l.opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  l.opts.ViewportWidth,
			Height: l.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}
	if userAgent != "" {
		contextOpts.UserAgent = playwright.String(userAgent)
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(l.opts.Timeout.Milliseconds()))

	l.logger.Debug("browser session started", "user_agent", userAgent)

	return &Session{
		pw:      pw,
		browser: browser,
		context: bctx,
		page:    page,
		timeout: l.opts.Timeout,
	}, nil
}

// Session is one Playwright page together with the processes that own it.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
}

func (s *Session) Navigate(url string, timeout time.Duration) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   milliseconds(timeout),
	})
	return err
}

func (s *Session) Exists(selector string) (bool, error) {
	count, err := s.page.Locator(selector).Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Session) Click(selector string) error {
	return s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: milliseconds(s.timeout),
	})
}

func (s *Session) Fill(selector, value string) error {
	return s.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: milliseconds(s.timeout),
	})
}

func (s *Session) WaitForNetworkIdle(timeout time.Duration) error {
	return s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: milliseconds(timeout),
	})
}

func (s *Session) Content() (string, error) {
	return s.page.Content()
}

func (s *Session) Text() (string, error) {
	result, err := s.page.Evaluate(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	text, _ := result.(string)
	return text, nil
}

func (s *Session) ScrollHeight() (int, error) {
	result, err := s.page.Evaluate(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return 0, err
	}

	switch v := result.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("unexpected scroll height type %T", result)
	}
}

func (s *Session) ScrollTo(y int) error {
	_, err := s.page.Evaluate(`(y) => window.scrollTo(0, y)`, y)
	return err
}

func (s *Session) ScrollToBottom() error {
	_, err := s.page.Evaluate(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (s *Session) Screenshot(path string) error {
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (s *Session) URL() string {
	return s.page.URL()
}

// Close tears down the page, context, browser and driver process, reporting
// every failure.
func (s *Session) Close() error {
	var errs []error

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

func milliseconds(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
