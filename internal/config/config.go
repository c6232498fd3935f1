// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Licensing   LicensingConfig
	Royalty     RoyaltyConfig
	I18n        I18nConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    int
	WriteTimeout   int
	IdleTimeout    int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver       string // postgres or sqlite
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type LicensingConfig struct {
	AdminAddress         string
	PILTemplateAddress   string
	RegisterDefaultTerms bool
	MaxParents           int
	MaxGroupSize         int
	EvenSplitPoolAddress string
}

type RoyaltyConfig struct {
	LAPPolicyAddress    string
	MinSnapshotInterval int // in seconds
	MaxAncestors        int
	WhitelistedTokens   []string
}

type I18nConfig struct {
	DefaultLocale string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:    getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:   getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:    getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "ip_licensing"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			SQLitePath:   getEnv("DB_SQLITE_PATH", "file:ip_licensing?mode=memory&cache=shared"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
		},
		Licensing: LicensingConfig{
			AdminAddress:         getEnv("PROTOCOL_ADMIN_ADDRESS", ""),
			PILTemplateAddress:   getEnv("PIL_TEMPLATE_ADDRESS", "0x0000000000000000000000000000000000001001"),
			RegisterDefaultTerms: getEnvAsBool("REGISTER_DEFAULT_TERMS", true),
			MaxParents:           getEnvAsInt("MAX_PARENTS", 16),
			MaxGroupSize:         getEnvAsInt("MAX_GROUP_SIZE", 1000),
			EvenSplitPoolAddress: getEnv("EVEN_SPLIT_POOL_ADDRESS", "0x0000000000000000000000000000000000001003"),
		},
		Royalty: RoyaltyConfig{
			LAPPolicyAddress:    getEnv("LAP_POLICY_ADDRESS", "0x0000000000000000000000000000000000001002"),
			MinSnapshotInterval: getEnvAsInt("MIN_SNAPSHOT_INTERVAL", 3600),
			MaxAncestors:        getEnvAsInt("MAX_ANCESTORS", 14),
			WhitelistedTokens:   getEnvAsList("WHITELISTED_TOKENS"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.Password == "" && c.Database.Driver == "postgres" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	addresses := map[string]string{
		"PIL_TEMPLATE_ADDRESS":    c.Licensing.PILTemplateAddress,
		"LAP_POLICY_ADDRESS":      c.Royalty.LAPPolicyAddress,
		"EVEN_SPLIT_POOL_ADDRESS": c.Licensing.EvenSplitPoolAddress,
	}
	if c.Licensing.AdminAddress != "" {
		addresses["PROTOCOL_ADMIN_ADDRESS"] = c.Licensing.AdminAddress
	}
	for key, value := range addresses {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%s is not a valid address: %q", key, value)
		}
	}
	for _, token := range c.Royalty.WhitelistedTokens {
		if !common.IsHexAddress(token) {
			return fmt.Errorf("WHITELISTED_TOKENS contains an invalid address: %q", token)
		}
	}

	if c.Licensing.MaxParents <= 0 || c.Royalty.MaxAncestors <= 0 || c.Licensing.MaxGroupSize <= 0 {
		return fmt.Errorf("licensing limits must be positive")
	}

	if c.Royalty.MinSnapshotInterval < 0 {
		return fmt.Errorf("MIN_SNAPSHOT_INTERVAL must not be negative")
	}

	return nil
}

// Helper functions
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
