package config

import (
	"log"
	"os"
	"time"

	"github.com/code-100-precent/sipcall/pkg/cache"
	"github.com/code-100-precent/sipcall/pkg/logger"
	"github.com/code-100-precent/sipcall/pkg/utils"
)

// Config holds everything the sipcall client needs at startup.
type Config struct {
	APIBaseURL string `env:"API_BASE_URL"`
	DBDriver   string `env:"DB_DRIVER"`
	DSN        string `env:"DSN"`
	Mode       string `env:"MODE"`

	// RequestTimeout bounds each backend round trip. Zero means no timeout,
	// which matches the upstream behavior; set it in production.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	PollInterval    time.Duration `env:"POLL_INTERVAL"`
	DurationTick    time.Duration `env:"DURATION_TICK"`
	ResetDelay      time.Duration `env:"RESET_DELAY"`
	ErrorClearDelay time.Duration `env:"ERROR_CLEAR_DELAY"`
	HistoryLimit    int           `env:"HISTORY_LIMIT"`

	Log   logger.LogConfig
	Cache cache.Config
}

var GlobalConfig *Config

func Load() error {
	// .env 文件可选，缺失时使用默认值
	env := os.Getenv("APP_ENV")
	if err := utils.LoadEnv(env); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	GlobalConfig = &Config{
		APIBaseURL:      getStringOrDefault("API_BASE_URL", "http://localhost:8000/api/v1"),
		DBDriver:        getStringOrDefault("DB_DRIVER", "sqlite"),
		DSN:             getStringOrDefault("DSN", "./sipcall.db"),
		Mode:            getStringOrDefault("MODE", "development"),
		RequestTimeout:  getDurationOrDefault("REQUEST_TIMEOUT", 0),
		PollInterval:    getDurationOrDefault("POLL_INTERVAL", 2*time.Second),
		DurationTick:    getDurationOrDefault("DURATION_TICK", time.Second),
		ResetDelay:      getDurationOrDefault("RESET_DELAY", 2*time.Second),
		ErrorClearDelay: getDurationOrDefault("ERROR_CLEAR_DELAY", 5*time.Second),
		HistoryLimit:    getIntOrDefault("HISTORY_LIMIT", 10),
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/sipcall.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		Cache: cache.Config{
			Type:              getStringOrDefault("CACHE_TYPE", "local"),
			DefaultExpiration: getDurationOrDefault("CACHE_DEFAULT_EXPIRATION", time.Minute),
			CleanupInterval:   getDurationOrDefault("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		},
	}
	return nil
}

// getStringOrDefault 获取环境变量值，如果为空则返回默认值
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault 获取布尔环境变量值，如果为空则返回默认值
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault 获取整数环境变量值，如果为空则返回默认值
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// getDurationOrDefault 获取时长环境变量值，如果为空则返回默认值
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if utils.GetEnv(key) == "" {
		return defaultValue
	}
	return utils.GetDurationEnv(key)
}
