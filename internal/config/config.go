package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	DynamoDB     DynamoDBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Verification VerificationConfig
	Ledger       LedgerConfig
	AMQP         AMQPConfig
	Log          LogConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey    string
	AccessExpiry time.Duration
}

// VerificationConfig controls issued phone codes. Window is the lifetime of a
// code and must match the countdown shown by clients.
type VerificationConfig struct {
	CodeLength   int
	Window       time.Duration
	MaxAttempts  int
	SignupWindow time.Duration
}

type LedgerConfig struct {
	PageSize int
}

// AMQPConfig enables event publishing when URL is set.
type AMQPConfig struct {
	URL   string
	Queue string
}

type LogConfig struct {
	Level  string
	Format string
}

// ClientConfig is the configuration of the command line client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Token   string
	Log     LogConfig
}

// Load reads the dev server configuration from the environment, after merging
// a .env file from the working directory when one exists.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "ap-northeast-2"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "UlmaTable"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SecretKey:    getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", 24*time.Hour),
		},
		Verification: VerificationConfig{
			CodeLength:   getEnvAsInt("VERIFICATION_CODE_LENGTH", 6),
			Window:       getEnvAsDuration("VERIFICATION_WINDOW", 180*time.Second),
			MaxAttempts:  getEnvAsInt("VERIFICATION_MAX_ATTEMPTS", 5),
			SignupWindow: getEnvAsDuration("VERIFICATION_SIGNUP_WINDOW", 30*time.Minute),
		},
		Ledger: LedgerConfig{
			PageSize: getEnvAsInt("LEDGER_PAGE_SIZE", 10),
		},
		AMQP: AMQPConfig{
			URL:   getEnv("AMQP_URL", ""),
			Queue: getEnv("AMQP_QUEUE", "participation.registered"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(cfg.JWT.SecretKey) < 32 {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	if cfg.Verification.CodeLength < 4 || cfg.Verification.CodeLength > 8 {
		return nil, fmt.Errorf("VERIFICATION_CODE_LENGTH must be between 4 and 8")
	}

	if cfg.Ledger.PageSize <= 0 {
		return nil, fmt.Errorf("LEDGER_PAGE_SIZE must be positive")
	}

	return cfg, nil
}

// LoadClient reads the command line client configuration.
func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	cfg := &ClientConfig{
		BaseURL: strings.TrimRight(getEnv("ULMA_SERVER", "http://localhost:8080/api"), "/"),
		Timeout: getEnvAsDuration("ULMA_TIMEOUT", 10*time.Second),
		Token:   getEnv("ULMA_TOKEN", ""),
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "warn")),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("ULMA_SERVER must be an http(s) URL, got %q", cfg.BaseURL)
	}

	return cfg, nil
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	if strings.HasPrefix(c.Server.Port, ":") {
		return c.Server.Port
	}
	return ":" + c.Server.Port
}

// loadDotEnv merges .env into the process environment. Variables that are
// already set win.
func loadDotEnv() {
	path := getEnv("ULMA_ENV_FILE", ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
