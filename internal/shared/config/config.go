package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Shawndas06/bank-aggregator/internal/domain/provider"
)

const envPrefix = "AGG"

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Banks      BanksConfig
	Cache      CacheConfig
	HTTPClient HTTPClientConfig
	Scheduler  SchedulerConfig
	Log        LogConfig
	Telemetry  TelemetryConfig
}

type AppConfig struct {
	Name         string
	Env          string
	Port         string
	Host         string
	BaseCurrency string
	AllowedHosts []string
	// ForceHTTPS redirects plain HTTP requests and sends HSTS.
	ForceHTTPS   bool
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// FallbackToMemory serves the cache from process memory when Redis is unreachable.
	FallbackToMemory bool
}

type BanksConfig struct {
	TeamClientID     string
	TeamClientSecret string
	TeamName         string
	VBankURL         string
	SBankURL         string
	ABankURL         string
	DefaultProviders []provider.ID
}

type CacheConfig struct {
	TokenTTL         time.Duration
	ConsentTTL       time.Duration
	DataTTL          time.Duration
	EncryptionSecret string
}

type HTTPClientConfig struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "bank-aggregator")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.base_currency", "RUB")
	v.SetDefault("app.allowed_hosts", "")
	v.SetDefault("app.force_https", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "bank_aggregator")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.fallback_to_memory", true)

	v.SetDefault("banks.team_name", "Bank Aggregator")
	v.SetDefault("banks.vbank_url", "https://vbank.open.bankingapi.ru")
	v.SetDefault("banks.sbank_url", "https://sbank.open.bankingapi.ru")
	v.SetDefault("banks.abank_url", "https://abank.open.bankingapi.ru")
	v.SetDefault("banks.default_providers", "vbank")

	v.SetDefault("cache.token_ttl", "23h")
	v.SetDefault("cache.consent_ttl", "4h")
	v.SetDefault("cache.data_ttl", "4h")

	v.SetDefault("http_client.connect_timeout", "10s")
	v.SetDefault("http_client.timeout", "30s")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.schedule_times", "06:00,18:00")
	v.SetDefault("scheduler.worker_count", 4)
	v.SetDefault("scheduler.job_delay", "1s")
	v.SetDefault("scheduler.queue_size", 100)
	v.SetDefault("scheduler.run_on_startup", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "bank-aggregator")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
}

// Load reads configuration from, in order of precedence, AGG_* environment
// variables (a .env file in the working directory is loaded into the
// environment first), an optional config file and built-in defaults.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	defaultProviders, err := provider.ParseIDList(v.GetString("banks.default_providers"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s_BANKS_DEFAULT_PROVIDERS: %w", envPrefix, err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:         v.GetString("app.name"),
			Env:          strings.ToLower(v.GetString("app.env")),
			Port:         v.GetString("app.port"),
			Host:         v.GetString("app.host"),
			BaseCurrency: strings.ToUpper(v.GetString("app.base_currency")),
			AllowedHosts: splitList(v.GetString("app.allowed_hosts")),
			ForceHTTPS:   v.GetBool("app.force_https"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:             v.GetString("redis.host"),
			Port:             v.GetInt("redis.port"),
			Password:         v.GetString("redis.password"),
			DB:               v.GetInt("redis.db"),
			FallbackToMemory: v.GetBool("redis.fallback_to_memory"),
		},
		Banks: BanksConfig{
			TeamClientID:     v.GetString("banks.team_client_id"),
			TeamClientSecret: v.GetString("banks.team_client_secret"),
			TeamName:         v.GetString("banks.team_name"),
			VBankURL:         strings.TrimRight(v.GetString("banks.vbank_url"), "/"),
			SBankURL:         strings.TrimRight(v.GetString("banks.sbank_url"), "/"),
			ABankURL:         strings.TrimRight(v.GetString("banks.abank_url"), "/"),
			DefaultProviders: defaultProviders,
		},
		Cache: CacheConfig{
			TokenTTL:         v.GetDuration("cache.token_ttl"),
			ConsentTTL:       v.GetDuration("cache.consent_ttl"),
			DataTTL:          v.GetDuration("cache.data_ttl"),
			EncryptionSecret: v.GetString("cache.encryption_secret"),
		},
		HTTPClient: HTTPClientConfig{
			ConnectTimeout: v.GetDuration("http_client.connect_timeout"),
			Timeout:        v.GetDuration("http_client.timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			ScheduleTimes: splitList(v.GetString("scheduler.schedule_times")),
			WorkerCount:   v.GetInt("scheduler.worker_count"),
			JobDelay:      v.GetDuration("scheduler.job_delay"),
			QueueSize:     v.GetInt("scheduler.queue_size"),
			RunOnStartup:  v.GetBool("scheduler.run_on_startup"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      v.GetBool("telemetry.enabled"),
			ServiceName:  v.GetString("telemetry.service_name"),
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("%s_DATABASE_PORT must be positive", envPrefix))
	}
	if c.Cache.TokenTTL <= 0 || c.Cache.ConsentTTL <= 0 || c.Cache.DataTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.HTTPClient.ConnectTimeout <= 0 || c.HTTPClient.Timeout <= 0 {
		errs = append(errs, errors.New("http client timeouts must be positive"))
	}
	if c.Banks.TeamClientID == "" {
		errs = append(errs, fmt.Errorf("%s_BANKS_TEAM_CLIENT_ID is required", envPrefix))
	}
	if c.Scheduler.Enabled && c.Scheduler.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("%s_SCHEDULER_WORKER_COUNT must be positive", envPrefix))
	}
	for _, at := range c.Scheduler.ScheduleTimes {
		if _, err := time.Parse("15:04", at); err != nil {
			errs = append(errs, fmt.Errorf("invalid schedule time %q", at))
		}
	}
	if c.IsProduction() {
		if c.Banks.TeamClientSecret == "" {
			errs = append(errs, fmt.Errorf("%s_BANKS_TEAM_CLIENT_SECRET is required in production", envPrefix))
		}
		if c.Cache.EncryptionSecret == "" {
			errs = append(errs, fmt.Errorf("%s_CACHE_ENCRYPTION_SECRET is required in production", envPrefix))
		}
	}
	return errors.Join(errs...)
}

// IsProduction reports whether provider failures must surface instead of
// being replaced with synthetic data.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production" || c.App.Env == "prod"
}

// Providers returns the registry entries for every configured bank.
func (c *BanksConfig) Providers() []provider.Provider {
	return []provider.Provider{
		{ID: provider.VBank, DisplayName: "Virtual Bank", BaseURL: c.VBankURL},
		{ID: provider.SBank, DisplayName: "Smart Bank", BaseURL: c.SBankURL},
		{ID: provider.ABank, DisplayName: "Awesome Bank", BaseURL: c.ABankURL},
	}
}

// Credentials returns the team credentials shared by every provider.
func (c *BanksConfig) Credentials() provider.TeamCredentials {
	return provider.TeamCredentials{
		ClientID:     c.TeamClientID,
		ClientSecret: c.TeamClientSecret,
		TeamName:     c.TeamName,
	}
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
