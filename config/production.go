// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Providers  ProvidersConfig  `json:"providers"`
	Rewards    RewardsConfig    `json:"rewards"`
	Abuse      AbuseConfig      `json:"abuse"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics"`
}

type JWTConfig struct {
	SecretKey       string        `json:"secret_key"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	Output     string `json:"output"` // stdout, file
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        string        `json:"provider"` // redis, memory
	RedisURL        string        `json:"redis_url"`
	RedisDB         int           `json:"redis_db"`
	RedisPrefix     string        `json:"redis_prefix"`
	MemoryCapacity  int           `json:"memory_capacity"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// ProvidersConfig carries the per-network authenticity configuration
type ProvidersConfig struct {
	CPX      CPXConfig      `json:"cpx"`
	BitLabs  BitLabsConfig  `json:"bitlabs"`
	TimeWall TimeWallConfig `json:"timewall"`
}

type CPXConfig struct {
	Secret     string   `json:"secret"`
	AllowedIPs []string `json:"allowed_ips"`
}

type BitLabsConfig struct {
	Secret string `json:"secret"`
}

type TimeWallConfig struct {
	SecretKey  string   `json:"secret_key"`
	AllowedIPs []string `json:"allowed_ips"`
	EnforceIP  bool     `json:"enforce_ip"`
}

// RewardsConfig carries the payout economics applied to every credit
type RewardsConfig struct {
	// PayoutRatio is the user's share of the gross provider amount
	PayoutRatio float64 `json:"payout_ratio"`
	// BonusMultiplier is applied on top of the ratio for bonus events
	BonusMultiplier float64 `json:"bonus_multiplier"`
	// MinPostbackCents rejects dust credits below this USD cent amount
	MinPostbackCents int64 `json:"min_postback_cents"`
	// TimeWallUnitsPerUSD converts TimeWall virtual currency into USD
	TimeWallUnitsPerUSD float64 `json:"timewall_units_per_usd"`
}

// AbuseConfig controls the failed-authenticity cutoff per source address
type AbuseConfig struct {
	FailureThreshold int64         `json:"failure_threshold"` // 0 disables
	FailureWindow    time.Duration `json:"failure_window"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1*1024*1024), // 1MB
			EnableMetrics:   getEnvBool("SERVER_ENABLE_METRICS", true),
		},
		JWT: JWTConfig{
			SecretKey:       getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Issuer:          getEnvString("JWT_ISSUER", "rewardhive"),
			Audience:        getEnvString("JWT_AUDIENCE", "rewardhive-api"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Format:     getEnvString("LOG_FORMAT", "json"),
			Output:     getEnvString("LOG_OUTPUT", "file"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/rewardhive/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			Provider:        getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:        getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:         getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:     getEnvString("CACHE_REDIS_PREFIX", "rewardhive"),
			MemoryCapacity:  getEnvInt("CACHE_MEMORY_CAPACITY", 10000),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Providers: ProvidersConfig{
			CPX: CPXConfig{
				Secret:     getEnvString("CPX_SECRET", ""),
				AllowedIPs: getEnvStringSlice("CPX_ALLOWED_IPS", []string{}),
			},
			BitLabs: BitLabsConfig{
				Secret: getEnvString("BITLABS_SECRET", ""),
			},
			TimeWall: TimeWallConfig{
				SecretKey:  getEnvString("TIMEWALL_SECRET_KEY", ""),
				AllowedIPs: getEnvStringSlice("TIMEWALL_ALLOWED_IPS", []string{}),
				EnforceIP:  getEnvBool("TIMEWALL_ENFORCE_IP", true),
			},
		},
		Rewards: RewardsConfig{
			PayoutRatio:         getEnvFloat("REWARDS_PAYOUT_RATIO", 0.7),
			BonusMultiplier:     getEnvFloat("REWARDS_BONUS_MULTIPLIER", 1.2),
			MinPostbackCents:    int64(getEnvInt("REWARDS_MIN_POSTBACK_CENTS", 1)),
			TimeWallUnitsPerUSD: getEnvFloat("REWARDS_TIMEWALL_UNITS_PER_USD", 100),
		},
		Abuse: AbuseConfig{
			FailureThreshold: int64(getEnvInt("ABUSE_FAILURE_THRESHOLD", 50)),
			FailureWindow:    getEnvDuration("ABUSE_FAILURE_WINDOW", 10*time.Minute),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	// Validate JWT configuration
	if cfg.JWT.SecretKey == "" {
		errors = append(errors, "JWT_SECRET_KEY is required")
	}
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.RefreshTokenTTL <= 0 {
		errors = append(errors, "JWT_REFRESH_TOKEN_TTL must be positive")
	}

	// Validate rewards configuration
	if cfg.Rewards.PayoutRatio <= 0 || cfg.Rewards.PayoutRatio > 1 {
		errors = append(errors, "REWARDS_PAYOUT_RATIO must be in (0, 1]")
	}
	if cfg.Rewards.BonusMultiplier < 1 {
		errors = append(errors, "REWARDS_BONUS_MULTIPLIER must be at least 1")
	}
	if cfg.Rewards.MinPostbackCents < 0 {
		errors = append(errors, "REWARDS_MIN_POSTBACK_CENTS must not be negative")
	}
	if cfg.Rewards.TimeWallUnitsPerUSD <= 0 {
		errors = append(errors, "REWARDS_TIMEWALL_UNITS_PER_USD must be positive")
	}

	// Provider secrets are deliberately optional: a missing secret means
	// authenticity checks are skipped for that network. That is a valid
	// configuration during integration testing, but production
	// deployments must hear about it loudly.
	if cfg.Providers.CPX.Secret == "" {
		log.Println("WARNING: CPX_SECRET is not set; CPX postbacks will be accepted WITHOUT authenticity checks")
	}
	if cfg.Providers.BitLabs.Secret == "" {
		log.Println("WARNING: BITLABS_SECRET is not set; BitLabs postbacks will be accepted WITHOUT authenticity checks")
	}
	if cfg.Providers.TimeWall.SecretKey == "" {
		log.Println("WARNING: TIMEWALL_SECRET_KEY is not set; TimeWall postbacks will be accepted WITHOUT hash verification")
	}
	if cfg.Providers.TimeWall.EnforceIP && len(cfg.Providers.TimeWall.AllowedIPs) == 0 {
		log.Println("WARNING: TIMEWALL_ENFORCE_IP is on but TIMEWALL_ALLOWED_IPS is empty; IP pinning is effectively disabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
