package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	ForecastURL     string
	AdvisoryURL     string
	KMAAuthKey      string
	UpstreamTimeout time.Duration

	GeoIPURL     string
	GeoIPTimeout time.Duration

	DatabaseURL string

	RegionDirectoryPath string

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	WarmZones    []string
	WarmInterval time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ContextMaxDays int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	KMA struct {
		ForecastURL string `yaml:"forecast_url"`
		AdvisoryURL string `yaml:"advisory_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"kma"`

	GeoIP struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"geoip"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Regions struct {
		Path string `yaml:"path"`
	} `yaml:"regions"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Warming struct {
		Zones    []string `yaml:"zones"`
		Interval string   `yaml:"interval"`
	} `yaml:"warming"`

	Reliability struct {
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Context struct {
		MaxDays int `yaml:"max_days"`
	} `yaml:"context"`
}

type secretsFile struct {
	KMAAuthKey  string `yaml:"kma_auth_key"`
	DatabaseURL string `yaml:"database_url"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. The KMA auth key comes from KMA_AUTH_KEY env or the
// secrets file; the database URL from DATABASE_URL env or the secrets file.
// Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.KMAAuthKey = os.Getenv("KMA_AUTH_KEY")
	if cfg.KMAAuthKey == "" {
		cfg.KMAAuthKey = sec.KMAAuthKey
	}
	if cfg.KMAAuthKey == "" {
		return nil, fmt.Errorf("KMA_AUTH_KEY required (set env or config/secrets.yaml kma_auth_key)")
	}

	cfg.ForecastURL = fc.KMA.ForecastURL
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = "https://apihub.kma.go.kr/api/typ01/url/fct_afs_dl.php"
	}
	cfg.AdvisoryURL = fc.KMA.AdvisoryURL
	if cfg.AdvisoryURL == "" {
		cfg.AdvisoryURL = "https://apihub.kma.go.kr/api/typ01/url/wrn_met_data.php"
	}
	cfg.UpstreamTimeout = parseDurationOrZero(fc.KMA.Timeout, 5*time.Second)

	cfg.GeoIPURL = fc.GeoIP.URL
	if cfg.GeoIPURL == "" {
		cfg.GeoIPURL = "http://ip-api.com/json"
	}
	cfg.GeoIPTimeout = parseDuration(fc.GeoIP.Timeout, 2*time.Second)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = sec.DatabaseURL
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fc.Database.URL
	}

	cfg.RegionDirectoryPath = fc.Regions.Path
	if cfg.RegionDirectoryPath == "" {
		cfg.RegionDirectoryPath = filepath.Join(cwd, "config", "regions.json")
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 3*time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.WarmZones = fc.Warming.Zones
	// Warming re-runs once per TTL window unless overridden.
	cfg.WarmInterval = parseDuration(fc.Warming.Interval, cfg.CacheTTL)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.DegradedWindow = parseDuration(fc.Reliability.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Reliability.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.ContextMaxDays = fc.Context.MaxDays
	if cfg.ContextMaxDays <= 0 {
		cfg.ContextMaxDays = 14
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero or negative durations come back as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("kma.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
