package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Worker    WorkerConfig
	Process   ProcessConfig
	Paths     PathsConfig
	Tools     ToolsConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds the health and metrics HTTP listener configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLSEnabled    bool
	TLSSkipVerify bool
	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string

	SamplingEnabled   bool
	SamplingThreshold int
	SamplingRate      float64
	ErrorSamplingRate float64
}

// WorkerConfig holds the check worker configuration.
type WorkerConfig struct {
	Concurrency int
	Queue       string
	// TaskTimeout bounds a check task. Unset, it is derived from the
	// process budget; set, it must not be shorter than that budget.
	TaskTimeout time.Duration
	// ResultRetention keeps check outcomes readable by the orchestrator.
	ResultRetention time.Duration
}

// ProcessConfig holds the two-stage subprocess timeout.
type ProcessConfig struct {
	// SigtermTimeout is how long a tool may run before it is asked to stop.
	SigtermTimeout time.Duration
	// SigkillTimeout is how long a tool may take to stop before it is killed.
	SigkillTimeout time.Duration
}

// MaxProcessRunsPerCheck is the most subprocesses one check runs in sequence
// (format identification: two version probes, profile, export).
const MaxProcessRunsPerCheck = 4

// taskTimeoutMargin covers the in-process work around the subprocesses.
const taskTimeoutMargin = 15 * time.Minute

// CheckBudget is the longest a check can spend waiting on subprocesses.
func (p ProcessConfig) CheckBudget() time.Duration {
	return MaxProcessRunsPerCheck * (p.SigtermTimeout + p.SigkillTimeout)
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	Quarantine string
}

// ToolsConfig holds the command lines of the external tools.
type ToolsConfig struct {
	ClamScanCmd []string
	DroidCmd    []string
}

// CacheConfig holds TTLs of the redis-backed stores.
type CacheConfig struct {
	IdentificationTTL time.Duration
	IncidentTTL       time.Duration
	FormatTTL         time.Duration
}

// TelemetryConfig holds tracing configuration. Tracing is off without an endpoint.
type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
	ServiceName  string
	SampleRatio  float64
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "sipguard"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 9464),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "sipguard"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "sipguard"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
			TLSSkipVerify: getEnvBool("REDIS_TLS_SKIP_VERIFY", false),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryDelay: getEnvDuration("REDIS_MIN_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay: getEnvDuration("REDIS_MAX_RETRY_DELAY", 3*time.Second),
		},
		Log: LogConfig{
			Level:             getEnv("LOG_LEVEL", "info"),
			Format:            getEnv("LOG_FORMAT", "json"),
			SamplingEnabled:   getEnvBool("LOG_SAMPLING_ENABLED", false),
			SamplingThreshold: getEnvInt("LOG_SAMPLING_THRESHOLD", 100),
			SamplingRate:      getEnvFloat("LOG_SAMPLING_RATE", 0.1),
			ErrorSamplingRate: getEnvFloat("LOG_ERROR_SAMPLING_RATE", 1.0),
		},
		Worker: WorkerConfig{
			Concurrency:     getEnvInt("WORKER_CONCURRENCY", 4),
			Queue:           getEnv("WORKER_QUEUE", "ingest"),
			TaskTimeout:     getEnvDuration("WORKER_TASK_TIMEOUT", 0),
			ResultRetention: getEnvDuration("WORKER_RESULT_RETENTION", 72*time.Hour),
		},
		Process: ProcessConfig{
			SigtermTimeout: getEnvDuration("PROCESS_TIMEOUT_SIGTERM", 4*time.Hour),
			SigkillTimeout: getEnvDuration("PROCESS_TIMEOUT_SIGKILL", 30*time.Second),
		},
		Paths: PathsConfig{
			Quarantine: getEnv("QUARANTINE_PATH", "/var/lib/sipguard/quarantine"),
		},
		Tools: ToolsConfig{
			ClamScanCmd: getEnvFields("CLAMSCAN_CMD", []string{"clamscan", "-r"}),
			DroidCmd:    getEnvFields("DROID_CMD", []string{"droid"}),
		},
		Cache: CacheConfig{
			IdentificationTTL: getEnvDuration("CACHE_IDENTIFICATION_TTL", 7*24*time.Hour),
			IncidentTTL:       getEnvDuration("CACHE_INCIDENT_TTL", 30*24*time.Hour),
			FormatTTL:         getEnvDuration("CACHE_FORMAT_TTL", time.Hour),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "sipguard"),
			SampleRatio:  getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
	}

	if cfg.Worker.TaskTimeout == 0 {
		cfg.Worker.TaskTimeout = cfg.Process.CheckBudget() + taskTimeoutMargin
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.Queue == "" {
		return fmt.Errorf("WORKER_QUEUE is required")
	}
	if c.Process.SigtermTimeout <= 0 || c.Process.SigkillTimeout <= 0 {
		return fmt.Errorf("process timeouts must be positive")
	}
	if budget := c.Process.CheckBudget(); c.Worker.TaskTimeout < budget {
		return fmt.Errorf("WORKER_TASK_TIMEOUT %s is shorter than the subprocess budget %s (%d runs of PROCESS_TIMEOUT_SIGTERM + PROCESS_TIMEOUT_SIGKILL)",
			c.Worker.TaskTimeout, budget, MaxProcessRunsPerCheck)
	}
	if c.Paths.Quarantine == "" {
		return fmt.Errorf("QUARANTINE_PATH is required")
	}
	if !filepath.IsAbs(c.Paths.Quarantine) {
		return fmt.Errorf("QUARANTINE_PATH must be absolute, got %q", c.Paths.Quarantine)
	}
	if len(c.Tools.ClamScanCmd) == 0 {
		return fmt.Errorf("CLAMSCAN_CMD is required")
	}
	if len(c.Tools.DroidCmd) == 0 {
		return fmt.Errorf("DROID_CMD is required")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLE_RATIO must be between 0.0 and 1.0, got %f", c.Telemetry.SampleRatio)
	}
	return nil
}

func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}
	if c.Log.SamplingRate < 0.0 || c.Log.SamplingRate > 1.0 {
		return fmt.Errorf("LOG_SAMPLING_RATE must be between 0.0 and 1.0, got %f", c.Log.SamplingRate)
	}
	if c.Log.ErrorSamplingRate < 0.0 || c.Log.ErrorSamplingRate > 1.0 {
		return fmt.Errorf("LOG_ERROR_SAMPLING_RATE must be between 0.0 and 1.0, got %f", c.Log.ErrorSamplingRate)
	}
	if c.Log.SamplingThreshold < 0 {
		return fmt.Errorf("LOG_SAMPLING_THRESHOLD must be non-negative, got %d", c.Log.SamplingThreshold)
	}
	return nil
}

func (c *Config) validateProduction() error {
	if c.Database.Password == "" || c.Database.Password == "secret" {
		return fmt.Errorf("DB_PASSWORD must be set in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("DB_SSLMODE must not be disable in production")
	}
	if c.Redis.Password == "" {
		return fmt.Errorf("redis password must be set in production")
	}
	if c.Redis.TLSSkipVerify {
		return fmt.Errorf("redis TLS skip verify must be false in production")
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP listener address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvFields splits a command line on whitespace.
func getEnvFields(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if fields := strings.Fields(value); len(fields) > 0 {
			return fields
		}
	}
	return defaultValue
}
