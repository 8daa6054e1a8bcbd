package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Search   SearchConfig   `mapstructure:"search"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type ScraperConfig struct {
	AdaptersFile          string        `mapstructure:"adapters_file"`
	TopN                  int           `mapstructure:"top_n"`
	Concurrency           int           `mapstructure:"concurrency"`
	RetailerTimeout       time.Duration `mapstructure:"retailer_timeout"`
	NavigationTimeout     time.Duration `mapstructure:"navigation_timeout"`
	ConsentDelay          time.Duration `mapstructure:"consent_delay"`
	LocalityTimeout       time.Duration `mapstructure:"locality_timeout"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	ReadinessTimeout      time.Duration `mapstructure:"readiness_timeout"`
	ReadinessRetryTimeout time.Duration `mapstructure:"readiness_retry_timeout"`
	CorrectiveScrollY     int           `mapstructure:"corrective_scroll_y"`
	MaxScrollLoops        int           `mapstructure:"max_scroll_loops"`
	ScrollPause           time.Duration `mapstructure:"scroll_pause"`
	DiagnosticsDir        string        `mapstructure:"diagnostics_dir"`
}

type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgents     []string      `mapstructure:"user_agents"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	TimezoneID     string        `mapstructure:"timezone"`
	Locale         string        `mapstructure:"locale"`
	ProxyServer    string        `mapstructure:"proxy_server"`
}

type SnapshotConfig struct {
	Path   string        `mapstructure:"path"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

type SearchConfig struct {
	LiveFallback      bool          `mapstructure:"live_fallback"`
	LiveScrapeTimeout time.Duration `mapstructure:"live_scrape_timeout"`
	FallbackBurst     int           `mapstructure:"fallback_burst"`
	FallbackRefill    time.Duration `mapstructure:"fallback_refill"`
	BreakerFailures   int           `mapstructure:"breaker_failures"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
}

type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
	Prefix   string `mapstructure:"prefix"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type ScheduleConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Terms      []string      `mapstructure:"terms"`
	RunOnStart bool          `mapstructure:"run_on_start"`
	SpacingMin time.Duration `mapstructure:"spacing_min"`
	SpacingMax time.Duration `mapstructure:"spacing_max"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("scraper.adapters_file", "")
	v.SetDefault("scraper.top_n", 3)
	v.SetDefault("scraper.concurrency", 1)
	v.SetDefault("scraper.retailer_timeout", 3*time.Minute)
	v.SetDefault("scraper.navigation_timeout", 90*time.Second)
	v.SetDefault("scraper.consent_delay", 1500*time.Millisecond)
	v.SetDefault("scraper.locality_timeout", 10*time.Second)
	v.SetDefault("scraper.poll_interval", 400*time.Millisecond)
	v.SetDefault("scraper.readiness_timeout", 35*time.Second)
	v.SetDefault("scraper.readiness_retry_timeout", 15*time.Second)
	v.SetDefault("scraper.corrective_scroll_y", 500)
	v.SetDefault("scraper.max_scroll_loops", 20)
	v.SetDefault("scraper.scroll_pause", 1200*time.Millisecond)
	v.SetDefault("scraper.diagnostics_dir", "data/diagnostics")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.user_agents", []string{})
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.accept_language", "es-ES,es;q=0.9,en;q=0.8")
	v.SetDefault("browser.timezone", "Europe/Madrid")
	v.SetDefault("browser.locale", "es-ES")
	v.SetDefault("browser.proxy_server", "")

	v.SetDefault("snapshot.path", "data/productos.json")
	v.SetDefault("snapshot.max_age", 5*time.Minute)

	v.SetDefault("search.live_fallback", true)
	v.SetDefault("search.live_scrape_timeout", 4*time.Minute)
	v.SetDefault("search.fallback_burst", 2)
	v.SetDefault("search.fallback_refill", time.Minute)
	v.SetDefault("search.breaker_failures", 3)
	v.SetDefault("search.breaker_cooldown", 10*time.Minute)

	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.ttl", 30*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "supercomparador:runs")
	v.SetDefault("redis.max_len", 1000)
	v.SetDefault("redis.prefix", "supercomparador:")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "supercomparador")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 5)

	v.SetDefault("schedule.interval", 6*time.Hour)
	v.SetDefault("schedule.terms", []string{})
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("schedule.spacing_min", 5*time.Second)
	v.SetDefault("schedule.spacing_max", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment. Environment keys are the upper-cased config keys with dots
// replaced by underscores, e.g. SCRAPER_TOP_N or BROWSER_HEADLESS.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("logging.level", "LOG_LEVEL", "LOGGING_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT", "LOGGING_FORMAT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Scraper.TopN < 1 {
		errs = append(errs, errors.New("SCRAPER_TOP_N must be at least 1"))
	}

	if c.Scraper.Concurrency < 1 {
		errs = append(errs, errors.New("SCRAPER_CONCURRENCY must be at least 1"))
	}

	if c.Scraper.RetailerTimeout <= 0 {
		errs = append(errs, errors.New("SCRAPER_RETAILER_TIMEOUT must be positive"))
	}

	if c.Scraper.PollInterval <= 0 {
		errs = append(errs, errors.New("SCRAPER_POLL_INTERVAL must be positive"))
	}

	if c.Scraper.MaxScrollLoops < 0 {
		errs = append(errs, errors.New("SCRAPER_MAX_SCROLL_LOOPS cannot be negative"))
	}

	if c.Snapshot.Path == "" {
		errs = append(errs, errors.New("SNAPSHOT_PATH is required"))
	}

	if c.Search.FallbackBurst < 1 {
		errs = append(errs, errors.New("SEARCH_FALLBACK_BURST must be at least 1"))
	}

	if c.Search.BreakerFailures < 1 {
		errs = append(errs, errors.New("SEARCH_BREAKER_FAILURES must be at least 1"))
	}

	if c.Cache.Size < 1 {
		errs = append(errs, errors.New("CACHE_SIZE must be at least 1"))
	}

	if c.Schedule.Interval < 0 {
		errs = append(errs, errors.New("SCHEDULE_INTERVAL cannot be negative"))
	}

	if c.Schedule.SpacingMin > c.Schedule.SpacingMax {
		errs = append(errs, errors.New("SCHEDULE_SPACING_MIN cannot be greater than SCHEDULE_SPACING_MAX"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or text", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}
