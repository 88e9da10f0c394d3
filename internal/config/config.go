package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	SQLitePath             string
	AutoMigrate            bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	SummaryCacheTTLSeconds int
	LockTTLSeconds         int
	LowStockThreshold      int
	DisplayCurrency        string
	LogLevel               string
	GinMode                string
}

// Load reads the environment (after an optional .env file) and, when
// CONFIG_FILE is set, a config file whose keys use the same names.
// Environment variables win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SUMMARY_CACHE_TTL_SECONDS", 30)
	v.SetDefault("LOCK_TTL_SECONDS", 30)
	v.SetDefault("LOW_STOCK_THRESHOLD", 5)
	v.SetDefault("DISPLAY_CURRENCY", "TRY")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GIN_MODE", "release")

	if file := strings.TrimSpace(v.GetString("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	ttl := v.GetInt("SUMMARY_CACHE_TTL_SECONDS")
	if ttl < 1 {
		ttl = 30
	}
	lockTTL := v.GetInt("LOCK_TTL_SECONDS")
	if lockTTL < 1 {
		lockTTL = 30
	}

	return Config{
		Port:                   v.GetString("PORT"),
		AllowedOrigin:          v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:            strings.TrimSpace(v.GetString("DATABASE_URL")),
		SQLitePath:             strings.TrimSpace(v.GetString("SQLITE_PATH")),
		AutoMigrate:            v.GetBool("AUTO_MIGRATE"),
		RedisAddr:              strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		SummaryCacheTTLSeconds: ttl,
		LockTTLSeconds:         lockTTL,
		LowStockThreshold:      v.GetInt("LOW_STOCK_THRESHOLD"),
		DisplayCurrency:        strings.ToUpper(strings.TrimSpace(v.GetString("DISPLAY_CURRENCY"))),
		LogLevel:               v.GetString("LOG_LEVEL"),
		GinMode:                v.GetString("GIN_MODE"),
	}, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
