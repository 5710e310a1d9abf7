package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
	"transitperf/internal/components/chrono"
	"transitperf/internal/components/telemetry"
	"transitperf/internal/db"
	"transitperf/internal/performance"
	"transitperf/internal/render"
	"transitperf/internal/scrapers/dashboard"

	"dario.cat/mergo"
)

const FileName = "transitperf.json5"

const (
	RendererChrome = "chrome"
	RendererStatic = "static"
)

type RendererConfig struct {
	// Kind is "chrome" for the live dashboard or "static" for server
	// rendered mirrors.
	Kind string `json:"kind"`
	// SettleDelayMs is waited after navigation before the DOM is read.
	SettleDelayMs int `json:"settle_delay_ms"`
	// ReadySelector is waited on before the settle delay. The renderer serves
	// detail and aggregate pages alike, so it should match on both; an empty
	// selector waits the settle delay only.
	ReadySelector  string `json:"ready_selector"`
	ReadyTimeoutMs int    `json:"ready_timeout_ms"`
	// RequestTimeoutMs bounds a static fetch.
	RequestTimeoutMs int    `json:"request_timeout_ms"`
	Headful          bool   `json:"headful"`
	ExecPath         string `json:"exec_path"`
	UserAgent        string `json:"user_agent"`
}

func (c RendererConfig) ChromeOptions() render.ChromeOptions {
	return render.ChromeOptions{
		SettleDelay:   millis(c.SettleDelayMs),
		ReadySelector: c.ReadySelector,
		ReadyTimeout:  millis(c.ReadyTimeoutMs),
		Headless:      !c.Headful,
		ExecPath:      c.ExecPath,
		UserAgent:     c.UserAgent,
	}
}

type RetryConfig struct {
	// Attempts counts the first try, 1 disables retries.
	Attempts          int `json:"attempts"`
	InitialIntervalMs int `json:"initial_interval_ms"`
	MaxIntervalMs     int `json:"max_interval_ms"`
	AttemptTimeoutMs  int `json:"attempt_timeout_ms"`
	BreakerFailures   int `json:"breaker_failures"`
	BreakerCooldownMs int `json:"breaker_cooldown_ms"`
}

func (c RetryConfig) RetryOptions() render.RetryOptions {
	return render.RetryOptions{
		Attempts:        c.Attempts,
		InitialInterval: millis(c.InitialIntervalMs),
		MaxInterval:     millis(c.MaxIntervalMs),
		AttemptTimeout:  millis(c.AttemptTimeoutMs),
		BreakerFailures: uint32(c.BreakerFailures),
		BreakerCooldown: millis(c.BreakerCooldownMs),
	}
}

type DatabaseConfig struct {
	// Driver is one of "postgres", "sqlite" or "libsql".
	Driver string `json:"driver"`
	// DSN, if set, is used as is and the fields below are ignored.
	DSN   string `json:"dsn"`
	Table string `json:"table"`

	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslmode"`

	// File is the sqlite database path.
	File string `json:"file"`
	// Url and AuthToken address a remote libsql database.
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// GetDSN returns the connection string for the configured driver.
func (c DatabaseConfig) GetDSN() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch c.Driver {
	case db.DriverPostgres:
		if c.Host == "" || c.Name == "" || c.User == "" {
			return "", fmt.Errorf("postgres needs host, name and user (POSTGRES_IP, POSTGRES_PROD_DB, POSTGRES_PROD_USER)")
		}
		port := c.Port
		if port == 0 {
			port = 5432
		}
		return db.PostgresDSN(c.Host, port, c.Name, c.User, c.Password, c.SSLMode), nil
	case db.DriverSQLite:
		if c.File == "" {
			return "", fmt.Errorf("sqlite needs a file")
		}
		return c.File, nil
	case db.DriverLibsql:
		if c.Url == "" {
			return "", fmt.Errorf("libsql needs a url")
		}
		if c.AuthToken == "" {
			return c.Url, nil
		}
		u, err := url.Parse(c.Url)
		if err != nil {
			return "", err
		}
		query := u.Query()
		query.Set("authToken", c.AuthToken)
		u.RawQuery = query.Encode()
		return u.String(), nil
	}
	return "", fmt.Errorf("unsupported driver %q", c.Driver)
}

type Config struct {
	// Routes maps a route slug (red, blue, green, orange, bus,
	// commuter_rail) to its detail page.
	Routes     map[string]string `json:"routes"`
	TargetsURL string            `json:"targets_url"`
	// Timezone decides what "today" is for a run.
	Timezone string `json:"timezone"`

	Renderer    RendererConfig   `json:"renderer"`
	Retry       RetryConfig      `json:"retry"`
	Concurrency int              `json:"concurrency"`
	Layout      dashboard.Layout `json:"layout"`

	// AllowStaleReport keeps a run going, with a warning, when the dashboard
	// has not published yesterday's numbers yet.
	AllowStaleReport bool `json:"allow_stale_report"`

	Database  DatabaseConfig   `json:"database"`
	Schedule  string           `json:"schedule"`
	Telemetry telemetry.Config `json:"telemetry"`
}

const dashboardBase = "http://www.mbtabackontrack.com/performance/index.html#/detail/reliability"

func Default() Config {
	return Config{
		Routes: map[string]string{
			performance.RedLine.Slug():      dashboardBase + "/subway/red/",
			performance.BlueLine.Slug():     dashboardBase + "/subway/blue/",
			performance.GreenLine.Slug():    dashboardBase + "/subway/green/",
			performance.OrangeLine.Slug():   dashboardBase + "/subway/orange/",
			performance.Bus.Slug():          dashboardBase + "/bus//",
			performance.CommuterRail.Slug(): dashboardBase + "/commuter_rail//",
		},
		TargetsURL: dashboardBase + "///",
		Timezone:   "America/New_York",
		Renderer: RendererConfig{
			Kind:             RendererChrome,
			SettleDelayMs:    10_000,
			ReadySelector:    dashboard.DefaultLayout().ReadySelector(),
			ReadyTimeoutMs:   30_000,
			RequestTimeoutMs: 30_000,
		},
		Retry: RetryConfig{
			Attempts:          3,
			InitialIntervalMs: 2_000,
			MaxIntervalMs:     30_000,
			AttemptTimeoutMs:  90_000,
			BreakerFailures:   5,
			BreakerCooldownMs: 60_000,
		},
		Concurrency: 1,
		Layout:      dashboard.DefaultLayout(),
		Database: DatabaseConfig{
			Driver:  db.DriverPostgres,
			Table:   db.DefaultTable,
			Port:    5432,
			SSLMode: "disable",
		},
		Schedule: "0 7 * * *",
	}
}

func getEnv(lookup func(string) string, key, fallback string) string {
	value := lookup(key)
	if value == "" {
		return fallback
	}
	return value
}

// ApplyEnv overrides database settings from the environment. The POSTGRES_*
// names are the ones the production deployment already exports.
func (c *Config) ApplyEnv(lookup func(string) string) error {
	d := &c.Database
	d.Host = getEnv(lookup, "POSTGRES_IP", d.Host)
	d.Name = getEnv(lookup, "POSTGRES_PROD_DB", d.Name)
	d.User = getEnv(lookup, "POSTGRES_PROD_USER", d.User)
	d.Password = getEnv(lookup, "POSTGRES_PROD_PASS", d.Password)
	if port := lookup("POSTGRES_PROD_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("POSTGRES_PROD_PORT: %w", err)
		}
		d.Port = n
	}

	d.Driver = getEnv(lookup, "TRANSITPERF_DB_DRIVER", d.Driver)
	d.DSN = getEnv(lookup, "TRANSITPERF_DB_DSN", d.DSN)
	d.Table = getEnv(lookup, "TRANSITPERF_TABLE", d.Table)
	return nil
}

// Validate checks everything a scrape needs. Database settings are only
// checked for shape since a dry run never connects.
func (c Config) Validate() error {
	var errs []error

	for slug := range c.Routes {
		if _, ok := performance.RouteFromSlug(slug); !ok {
			errs = append(errs, fmt.Errorf("routes: unknown route %q", slug))
		}
	}
	for _, r := range performance.CanonicalRoutes() {
		if c.Routes[r.Slug()] == "" {
			errs = append(errs, fmt.Errorf("routes: no url for %q", r.Slug()))
		}
	}
	if c.TargetsURL == "" {
		errs = append(errs, errors.New("targets_url is empty"))
	}
	if _, err := chrono.NewStandardImpl(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}

	switch c.Renderer.Kind {
	case RendererChrome, RendererStatic:
	default:
		errs = append(errs, fmt.Errorf("renderer.kind: unknown renderer %q", c.Renderer.Kind))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if err := c.Layout.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("layout: %w", err))
	}

	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite, db.DriverLibsql:
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}
	if err := db.ValidateTable(c.Database.Table); err != nil {
		errs = append(errs, fmt.Errorf("database.table: %w", err))
	}

	return errors.Join(errs...)
}

// RouteURLs resolves the configured detail page of every canonical route.
func (c Config) RouteURLs() map[performance.Route]string {
	out := make(map[performance.Route]string, len(c.Routes))
	for slug, u := range c.Routes {
		route, ok := performance.RouteFromSlug(slug)
		if ok {
			out[route] = u
		}
	}
	return out
}

// Load reads path (and its .local override) over the defaults, then applies
// the environment. A missing file is not an error, the defaults plus the
// environment are a complete configuration.
func Load(path string, lookup func(string) string) (Config, error) {
	cfg, err := ReadFile[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	err = mergo.Merge(&cfg, Default())
	if err != nil {
		return Config{}, err
	}
	err = cfg.ApplyEnv(lookup)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// NewRenderer builds the configured renderer behind the retrying wrapper.
func (c Config) NewRenderer(tel telemetry.API) render.Renderer {
	var inner render.Renderer
	switch c.Renderer.Kind {
	case RendererStatic:
		inner = render.NewStatic(millis(c.Renderer.RequestTimeoutMs), tel)
	default:
		inner = render.NewChrome(c.Renderer.ChromeOptions(), tel)
	}
	return render.NewResilient(inner, c.Retry.RetryOptions(), tel)
}
