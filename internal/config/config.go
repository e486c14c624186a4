/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the transfer-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	RateCatalogURL       string `mapstructure:"RATE_CATALOG_URL"`
	RateCatalogAPIKey    string `mapstructure:"RATE_CATALOG_API_KEY"`
	BlobStoreURL         string `mapstructure:"BLOB_STORE_URL"`
	BlobStoreAPIKey      string `mapstructure:"BLOB_STORE_API_KEY"`
	JWKSURL              string `mapstructure:"JWKS_URL"`

	TransferExpiryMinutes    int    `mapstructure:"TRANSFER_EXPIRY_MINUTES"`
	ExpirySweepSchedule      string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	ExpirySweepBatchSize     int    `mapstructure:"EXPIRY_SWEEP_BATCH_SIZE"`
	CreateRateLimitPerMinute int    `mapstructure:"CREATE_RATE_LIMIT_PER_MINUTE"`

	PointsReferenceCurrency string `mapstructure:"POINTS_REFERENCE_CURRENCY"`
	// Comma-separated FROM:TO pairs eligible for the points discount.
	PointsDiscountPairs string `mapstructure:"POINTS_DISCOUNT_PAIRS"`
}

// DiscountPairs returns the configured allow-list as a slice.
func (c Config) DiscountPairs() []string {
	var pairs []string
	for _, pair := range strings.Split(c.PointsDiscountPairs, ",") {
		if trimmed := strings.TrimSpace(pair); trimmed != "" {
			pairs = append(pairs, trimmed)
		}
	}
	return pairs
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "adamsend:rate_limit")
	viper.SetDefault("TRANSFER_EXPIRY_MINUTES", 30)
	viper.SetDefault("EXPIRY_SWEEP_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("EXPIRY_SWEEP_BATCH_SIZE", 100)
	viper.SetDefault("CREATE_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("POINTS_REFERENCE_CURRENCY", "USD")
	viper.SetDefault("POINTS_DISCOUNT_PAIRS", "RUB:NGN")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RATE_CATALOG_URL")
	_ = viper.BindEnv("RATE_CATALOG_API_KEY")
	_ = viper.BindEnv("BLOB_STORE_URL")
	_ = viper.BindEnv("BLOB_STORE_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("TRANSFER_EXPIRY_MINUTES")
	_ = viper.BindEnv("EXPIRY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("EXPIRY_SWEEP_BATCH_SIZE")
	_ = viper.BindEnv("CREATE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("POINTS_REFERENCE_CURRENCY")
	_ = viper.BindEnv("POINTS_DISCOUNT_PAIRS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "adamsend:rate_limit"
	}

	if config.TransferExpiryMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive transfer expiry configured; using default\" minutes=%d", config.TransferExpiryMinutes)
		config.TransferExpiryMinutes = 30
	}
	if config.ExpirySweepBatchSize <= 0 {
		config.ExpirySweepBatchSize = 100
	}
	if strings.TrimSpace(config.ExpirySweepSchedule) == "" {
		config.ExpirySweepSchedule = "*/5 * * * *"
	}
	if config.CreateRateLimitPerMinute < 0 {
		config.CreateRateLimitPerMinute = 0
	}
	config.PointsReferenceCurrency = strings.ToUpper(strings.TrimSpace(config.PointsReferenceCurrency))
	if config.PointsReferenceCurrency == "" {
		config.PointsReferenceCurrency = "USD"
	}

	return
}
