package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Environment   string              `mapstructure:"environment" validate:"omitempty,oneof=development test production"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Processing    ProcessingConfig    `mapstructure:"processing"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// QueueConfig selects the job queue backend shared by the API and the workers.
type QueueConfig struct {
	Driver            string        `mapstructure:"driver" validate:"required,oneof=memory redis postgres"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"min=0,max=256"`
}

// ProcessingConfig drives the simulated settlement. TestMode pins both the
// delay and the outcome so end-to-end runs are reproducible.
type ProcessingConfig struct {
	TestMode            bool          `mapstructure:"test_mode"`
	TestProcessingDelay time.Duration `mapstructure:"test_processing_delay"`
	TestPaymentSuccess  bool          `mapstructure:"test_payment_success"`
	UPISuccessRate      float64       `mapstructure:"upi_success_rate" validate:"min=0,max=1"`
	CardSuccessRate     float64       `mapstructure:"card_success_rate" validate:"min=0,max=1"`
}

type WebhookConfig struct {
	TestRetryIntervals bool          `mapstructure:"test_retry_intervals"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type SecurityConfig struct {
	BCryptCost int `mapstructure:"bcrypt_cost" validate:"omitempty,min=4,max=15"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// RegisterDefaults seeds viper with the values used when config.yml omits a key.
func RegisterDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("http_server.port", 8000)
	v.SetDefault("http_server.openapi_path", "/openapi.yml")
	v.SetDefault("http_server.read_header_timeout", 5*time.Second)
	v.SetDefault("http_server.read_timeout", 15*time.Second)
	v.SetDefault("http_server.write_timeout", 15*time.Second)
	v.SetDefault("http_server.idle_timeout", 60*time.Second)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("queue.driver", "redis")
	v.SetDefault("queue.visibility_timeout", 5*time.Minute)
	v.SetDefault("queue.poll_interval", 500*time.Millisecond)
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("processing.test_processing_delay", time.Second)
	v.SetDefault("processing.test_payment_success", true)
	v.SetDefault("processing.upi_success_rate", 0.90)
	v.SetDefault("processing.card_success_rate", 0.95)
	v.SetDefault("webhook.timeout", 5*time.Second)
	v.SetDefault("security.bcrypt_cost", 10)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
}

// LoadConfigFromEnv builds the config for container deployments where no
// config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Environment: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8000),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			OpenAPIPath:       "/openapi.yml",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Source:          getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://redis:6379/0"),
		},
		Queue: QueueConfig{
			Driver:            getEnv("QUEUE_DRIVER", "redis"),
			VisibilityTimeout: 5 * time.Minute,
			PollInterval:      500 * time.Millisecond,
		},
		Worker: WorkerConfig{
			Concurrency: getEnvAsInt("WORKER_CONCURRENCY", 5),
		},
		Processing: ProcessingConfig{
			TestMode:            getEnvAsBool("TEST_MODE", false),
			TestProcessingDelay: time.Duration(getEnvAsInt("TEST_PROCESSING_DELAY", 1000)) * time.Millisecond,
			TestPaymentSuccess:  getEnv("TEST_PAYMENT_SUCCESS", "true") != "false",
			UPISuccessRate:      0.90,
			CardSuccessRate:     0.95,
		},
		Webhook: WebhookConfig{
			TestRetryIntervals: getEnvAsBool("WEBHOOK_RETRY_INTERVALS_TEST", false),
			Timeout:            5 * time.Second,
		},
		Security: SecurityConfig{
			BCryptCost: getEnvAsInt("BCRYPT_COST", 10),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	var errs []string

	if err := structValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Queue.Validate(c.Redis); err != nil {
		errs = append(errs, fmt.Sprintf("queue config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *QueueConfig) Validate(redisCfg RedisConfig) error {
	if c.Driver == "redis" && redisCfg.URL == "" {
		return errors.New("redis.url is required when queue.driver is redis")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
