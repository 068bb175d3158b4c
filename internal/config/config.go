package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds application configuration
type Config struct {
	Port            string
	DBConn          string
	LogLevel        string
	JWTSecret       string
	RatesURL        string
	RatesAppID      string
	RBZURL          string
	CredexAPIURL    string
	BackupURL       string
	MTQSchedule     string
	DCOSchedule     string
	DCOPollInterval time.Duration
	MTQWarnAfter    time.Duration
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DBConn:       getEnv("DB_CONN", "host=localhost port=5432 user=clearing password=clearing dbname=clearing sslmode=disable"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:    getEnv("JWT_SECRET", "secret"),
		RatesURL:     getEnv("RATES_URL", "https://openexchangerates.org/api/historical"),
		RatesAppID:   getEnv("RATES_APP_ID", ""),
		RBZURL:       getEnv("RBZ_URL", "https://www.rbz.co.zw/index.php/research/markets/exchange-rates"),
		CredexAPIURL: getEnv("CREDEX_API_URL", "http://localhost:5000/api/v1"),
		BackupURL:    getEnv("BACKUP_URL", "http://localhost:7070/backup"),
		MTQSchedule:  getEnv("MTQ_SCHEDULE", "* * * * *"),
		DCOSchedule:  getEnv("DCO_SCHEDULE", "0 0 * * *"),
	}

	pollInterval, err := time.ParseDuration(getEnv("DCO_POLL_INTERVAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DCO_POLL_INTERVAL: %w", err)
	}
	cfg.DCOPollInterval = pollInterval

	warnAfter, err := time.ParseDuration(getEnv("MTQ_WARN_AFTER", "50s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MTQ_WARN_AFTER: %w", err)
	}
	cfg.MTQWarnAfter = warnAfter

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.CredexAPIURL == "" {
		return nil, fmt.Errorf("CREDEX_API_URL is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
