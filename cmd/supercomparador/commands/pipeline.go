package commands

import (
	"log/slog"

	"github.com/maltedev/supercomparador/internal/adapter"
	"github.com/maltedev/supercomparador/internal/browser"
	"github.com/maltedev/supercomparador/internal/config"
	"github.com/maltedev/supercomparador/internal/metrics"
	"github.com/maltedev/supercomparador/internal/orchestrator"
	"github.com/maltedev/supercomparador/internal/scraper"
	"github.com/redis/go-redis/v9"
)

func browserOptions(c *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Browser.Headless
	opts.Timeout = c.Browser.Timeout
	opts.ProxyServer = c.Browser.ProxyServer

	if len(c.Browser.UserAgents) > 0 {
		opts.UserAgents = c.Browser.UserAgents
	}
	if c.Browser.ViewportWidth > 0 && c.Browser.ViewportHeight > 0 {
		opts.ViewportWidth = c.Browser.ViewportWidth
		opts.ViewportHeight = c.Browser.ViewportHeight
	}
	if c.Browser.AcceptLanguage != "" {
		opts.AcceptLanguage = c.Browser.AcceptLanguage
	}
	if c.Browser.TimezoneID != "" {
		opts.TimezoneID = c.Browser.TimezoneID
	}
	if c.Browser.Locale != "" {
		opts.Locale = c.Browser.Locale
	}

	return opts
}

func scraperOptions(c *config.Config) scraper.Options {
	return scraper.Options{
		NavigationTimeout:     c.Scraper.NavigationTimeout,
		ConsentDelay:          c.Scraper.ConsentDelay,
		LocalityTimeout:       c.Scraper.LocalityTimeout,
		PollInterval:          c.Scraper.PollInterval,
		ReadinessTimeout:      c.Scraper.ReadinessTimeout,
		ReadinessRetryTimeout: c.Scraper.ReadinessRetryTimeout,
		CorrectiveScrollY:     c.Scraper.CorrectiveScrollY,
		MaxScrollLoops:        c.Scraper.MaxScrollLoops,
		ScrollPause:           c.Scraper.ScrollPause,
		DiagnosticsDir:        c.Scraper.DiagnosticsDir,
	}
}

func orchestratorOptions(c *config.Config) orchestrator.Options {
	return orchestrator.Options{
		TopN:            c.Scraper.TopN,
		Concurrency:     c.Scraper.Concurrency,
		RetailerTimeout: c.Scraper.RetailerTimeout,
	}
}

// newOrchestrator wires the browser, driver and extraction for the
// configured retailers.
func newOrchestrator(c *config.Config, m *metrics.Metrics, logger *slog.Logger, sinks ...orchestrator.Sink) (*orchestrator.Orchestrator, error) {
	adapters, err := adapter.LoadFile(c.Scraper.AdaptersFile)
	if err != nil {
		return nil, err
	}

	launcher := browser.NewLauncher(browserOptions(c), logger)
	s := scraper.New(launcher, scraperOptions(c), logger)

	return orchestrator.New(adapters, s, orchestratorOptions(c), m, logger, sinks...), nil
}

func newRedisClient(c *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}
