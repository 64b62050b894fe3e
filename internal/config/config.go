package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/straye-as/order-sync/internal/secrets"
	"go.uber.org/zap"
)

const (
	// CRMAuthFlowPassword selects the OAuth username-password flow
	CRMAuthFlowPassword = "password"
	// CRMAuthFlowJWT selects the OAuth JWT bearer flow
	CRMAuthFlowJWT = "jwt"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Logging   LoggingConfig
	Warehouse WarehouseConfig
	CRM       CRMConfig
	Sync      SyncConfig
	Secrets   SecretsConfig
	Server    ServerConfig
	History   HistoryConfig
	Database  DatabaseConfig
	Redis     RedisConfig
}

type AppConfig struct {
	Name        string `validate:"required"`
	Environment string `validate:"required"`
}

type LoggingConfig struct {
	Level  string `validate:"omitempty,oneof=debug info warn error"`
	Format string `validate:"omitempty,oneof=console json"`
	// File is an optional log file written in addition to stderr
	File string
}

// WarehouseConfig holds configuration for the MS SQL Server data warehouse.
// The connection is read-only.
type WarehouseConfig struct {
	// Enabled controls whether the data warehouse connection is attempted
	Enabled bool
	// URL is the connection URL in format host:port/database (from WAREHOUSE-URL secret)
	URL string `validate:"required_if=Enabled true"`
	// User is the database username (from WAREHOUSE-USERNAME secret)
	User string
	// Password is the database password (from WAREHOUSE-PASSWORD secret)
	Password string
	// OrdersView is the schema-qualified view holding one row per order line
	OrdersView string `validate:"required"`
	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int `validate:"gte=0"`
	// MaxIdleConns is the maximum number of connections in the idle connection pool
	MaxIdleConns int `validate:"gte=0"`
	// ConnMaxLifetime is the maximum amount of time a connection may be reused (seconds)
	ConnMaxLifetime int `validate:"gte=0"`
	// QueryTimeout is the timeout for the order query (seconds)
	QueryTimeout int `validate:"gte=0"`
}

// CRMConfig holds the Salesforce connection settings
type CRMConfig struct {
	AuthFlow string `validate:"oneof=password jwt"`
	// Domain is "login", "test", a My Domain host, or a full https URL
	Domain        string `validate:"required"`
	APIVersion    string
	ClientID      string `validate:"required"`
	ClientSecret  string `validate:"required_if=AuthFlow password"`
	Username      string `validate:"required"`
	Password      string `validate:"required_if=AuthFlow password"`
	SecurityToken string
	// PrivateKey is the PEM encoded RSA key used by the jwt flow
	PrivateKey string `validate:"required_if=AuthFlow jwt"`
	// RequestTimeout is the per-request timeout (seconds)
	RequestTimeout int `validate:"gte=0"`
}

// SyncConfig controls the cycle driver and retry policy
type SyncConfig struct {
	// MaxRetries is the total number of attempts for a transport-failing call
	MaxRetries int `validate:"gte=1"`
	// RetryWait is the fixed delay between attempts (seconds)
	RetryWait int `validate:"gte=0"`
	// CycleWait is the idle time between the end of a cycle and the next start (seconds)
	CycleWait int `validate:"gte=1"`
	// WindowDays is the trailing window on the order date
	WindowDays int    `validate:"gte=1"`
	DatePolicy string `validate:"oneof=lenient strict"`
	// Cron switches from the fixed-wait loop to a cron schedule when set
	Cron string
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	// "auto" uses environment in development, vault in staging/production
	Source       string `validate:"oneof=environment vault auto"`
	KeyVaultName string `validate:"required_if=Source vault"`
	CacheEnabled bool
	CacheTTL     int // seconds
}

// ServerConfig controls the health and metrics listener
type ServerConfig struct {
	Enabled      bool
	Port         int `validate:"required_if=Enabled true,gte=0,lte=65535"`
	ReadTimeout  int
	WriteTimeout int
}

// HistoryConfig controls persistence of cycle summaries
type HistoryConfig struct {
	Enabled bool
	// Retention is the number of runs kept; older runs are pruned after each cycle (0 keeps all)
	Retention int `validate:"gte=0"`
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
}

// RedisConfig configures the lock that keeps a single replica writing to the CRM
type RedisConfig struct {
	Enabled  bool
	Addr     string `validate:"required_if=Enabled true"`
	Password string
	DB       int
	LockKey  string
	// LockTTL is the lock lease (seconds); it is refreshed while a cycle runs
	LockTTL int `validate:"gte=0"`
}

// LoginURL returns the OAuth login host for the configured domain
func (c *CRMConfig) LoginURL() string {
	d := strings.TrimSpace(c.Domain)
	switch strings.ToLower(d) {
	case "", "login":
		return "https://login.salesforce.com"
	case "test":
		return "https://test.salesforce.com"
	}
	if strings.HasPrefix(d, "https://") || strings.HasPrefix(d, "http://") {
		return strings.TrimRight(d, "/")
	}
	if !strings.Contains(d, ".") {
		d += ".my.salesforce.com"
	}
	return "https://" + d
}

// RequestTimeoutDuration returns request timeout as duration
func (c *CRMConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// RetryWaitDuration returns the retry backoff as duration
func (s *SyncConfig) RetryWaitDuration() time.Duration {
	return time.Duration(s.RetryWait) * time.Second
}

// CycleWaitDuration returns the inter-cycle wait as duration
func (s *SyncConfig) CycleWaitDuration() time.Duration {
	return time.Duration(s.CycleWait) * time.Second
}

// ConnectionString builds PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (w *WarehouseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(w.ConnMaxLifetime) * time.Second
}

// QueryTimeoutDuration returns query timeout as duration
func (w *WarehouseConfig) QueryTimeoutDuration() time.Duration {
	return time.Duration(w.QueryTimeout) * time.Second
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// LockTTLDuration returns the lock lease as duration
func (r *RedisConfig) LockTTLDuration() time.Duration {
	return time.Duration(r.LockTTL) * time.Second
}

// legacyEnv maps config keys to the variable names used by earlier deployments
var legacyEnv = map[string][]string{
	"sync.maxRetries":      {"APP_MAX_RETRIES"},
	"sync.retryWait":       {"APP_RETRY_WAIT"},
	"sync.cycleWait":       {"APP_CYCLE_WAIT"},
	"logging.level":        {"APP_LOG_LEVEL"},
	"logging.file":         {"APP_LOG_FILE"},
	"crm.username":         {"SF_USERNAME"},
	"crm.password":         {"SF_PASSWORD"},
	"crm.securityToken":    {"SF_SECURITY_TOKEN"},
	"crm.domain":           {"SF_DOMAIN"},
	"crm.clientId":         {"SF_CLIENT_ID"},
	"crm.clientSecret":     {"SF_CLIENT_SECRET"},
	"warehouse.url":        {"WAREHOUSE_URL"},
	"warehouse.user":       {"WAREHOUSE_USERNAME", "WAREHOUSE_USER"},
	"warehouse.password":   {"WAREHOUSE_PASSWORD"},
	"secrets.keyVaultName": {"AZURE_KEY_VAULT_NAME"},
}

// Load loads configuration from file and environment variables.
// It doesn't fetch secrets from vault; use LoadWithSecrets for full secret resolution.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range legacyEnv {
		// The canonical name (SYNC_MAXRETRIES) keeps precedence over the legacy ones
		args := append([]string{key, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration against its validation tags
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Warehouse.Enabled && c.Warehouse.URL != "" {
		if _, err := url.Parse("sqlserver://" + c.Warehouse.URL); err != nil {
			return fmt.Errorf("invalid configuration: warehouse url: %w", err)
		}
	}
	return nil
}

// SecretGetter resolves a secret by vault name with an environment override
type SecretGetter interface {
	GetSecretOrEnv(ctx context.Context, secretName, envName string) (string, error)
}

// secretBinding maps a vault secret and its environment override to a config field
type secretBinding struct {
	secret string
	env    string
	apply  func(*Config, string)
}

var secretBindings = []secretBinding{
	{"WAREHOUSE-URL", "WAREHOUSE_URL", func(c *Config, v string) { c.Warehouse.URL = v }},
	{"WAREHOUSE-USERNAME", "WAREHOUSE_USERNAME", func(c *Config, v string) { c.Warehouse.User = v }},
	{"WAREHOUSE-PASSWORD", "WAREHOUSE_PASSWORD", func(c *Config, v string) { c.Warehouse.Password = v }},
	{"SF-USERNAME", "SF_USERNAME", func(c *Config, v string) { c.CRM.Username = v }},
	{"SF-PASSWORD", "SF_PASSWORD", func(c *Config, v string) { c.CRM.Password = v }},
	{"SF-SECURITY-TOKEN", "SF_SECURITY_TOKEN", func(c *Config, v string) { c.CRM.SecurityToken = v }},
	{"SF-CLIENT-ID", "SF_CLIENT_ID", func(c *Config, v string) { c.CRM.ClientID = v }},
	{"SF-CLIENT-SECRET", "SF_CLIENT_SECRET", func(c *Config, v string) { c.CRM.ClientSecret = v }},
	{"SF-PRIVATE-KEY", "SF_PRIVATE_KEY", func(c *Config, v string) { c.CRM.PrivateKey = v }},
	{"REDIS-PASSWORD", "REDIS_PASSWORD", func(c *Config, v string) { c.Redis.Password = v }},
	{"POSTGRES-MAIN-PASSWORD", "DATABASE_PASSWORD", func(c *Config, v string) { c.Database.Password = v }},
}

// ApplySecrets overwrites credential fields with values resolved from getter.
// Secrets that cannot be resolved leave the configured value in place.
func ApplySecrets(ctx context.Context, cfg *Config, getter SecretGetter, logger *zap.Logger) int {
	applied := 0
	for _, b := range secretBindings {
		value, err := getter.GetSecretOrEnv(ctx, b.secret, b.env)
		if err != nil || value == "" {
			logger.Debug("Secret not resolved, keeping configured value",
				zap.String("secret_name", b.secret),
				zap.Error(err),
			)
			continue
		}
		b.apply(cfg, value)
		applied++
	}
	return applied
}

// LoadWithSecrets loads configuration and resolves credentials from the configured
// secret source. In development (or when secrets.source = "environment") credentials
// come from env vars; in staging/production (or secrets.source = "vault") they come
// from Azure Key Vault, with environment variables still taking precedence.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       secrets.SecretSource(cfg.Secrets.Source),
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider: %w", err)
	}

	if !provider.IsVaultEnabled() {
		logger.Info("Using environment variables for credentials",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	logger.Info("Loading credentials from Azure Key Vault",
		zap.String("key_vault_name", cfg.Secrets.KeyVaultName),
	)
	applied := ApplySecrets(ctx, cfg, provider, logger)
	logger.Info("Credentials loaded from vault", zap.Int("resolved", applied))

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Straye Order Sync")
	v.SetDefault("app.environment", "development")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")

	// Data warehouse defaults (MS SQL Server, read-only)
	v.SetDefault("warehouse.enabled", true)
	v.SetDefault("warehouse.url", "")
	v.SetDefault("warehouse.user", "")
	v.SetDefault("warehouse.password", "")
	v.SetDefault("warehouse.ordersView", "SALESFORCE_INTEGRATION.VW_SALES_ORDER_INVOICING_SUMMARY")
	v.SetDefault("warehouse.maxOpenConns", 4)
	v.SetDefault("warehouse.maxIdleConns", 1)
	v.SetDefault("warehouse.connMaxLifetime", 300) // 5 minutes
	v.SetDefault("warehouse.queryTimeout", 300)

	// CRM defaults
	v.SetDefault("crm.authFlow", CRMAuthFlowPassword)
	v.SetDefault("crm.domain", "login")
	v.SetDefault("crm.apiVersion", "v59.0")
	v.SetDefault("crm.clientId", "")
	v.SetDefault("crm.clientSecret", "")
	v.SetDefault("crm.username", "")
	v.SetDefault("crm.password", "")
	v.SetDefault("crm.securityToken", "")
	v.SetDefault("crm.privateKey", "")
	v.SetDefault("crm.requestTimeout", 30)

	// Sync defaults
	v.SetDefault("sync.maxRetries", 99)
	v.SetDefault("sync.retryWait", 5)
	v.SetDefault("sync.cycleWait", 1000)
	v.SetDefault("sync.windowDays", 7)
	v.SetDefault("sync.datePolicy", "lenient")
	v.SetDefault("sync.cron", "")

	// Secrets defaults
	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.keyVaultName", "")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300) // 5 minutes

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 10)
	v.SetDefault("server.writeTimeout", 10)

	// History defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.retention", 1000)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "order_sync")
	v.SetDefault("database.user", "order_sync")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 5)
	v.SetDefault("database.maxIdleConns", 1)
	v.SetDefault("database.connMaxLifetime", 300)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lockKey", "order-sync:cycle")
	v.SetDefault("redis.lockTTL", 60)
}
