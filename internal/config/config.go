// Package config loads the server configuration from config.json and
// KISELGRAM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"kiselgram-backend/internal/attachments"
	"kiselgram-backend/internal/bots"
	"kiselgram-backend/internal/models"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "KISELGRAM"

var defaults = map[string]any{
	"Address":           "0.0.0.0",
	"Port":              "3000",
	"TlsCert":           "",
	"TlsKey":            "",
	"PrintHttpRequests": false,
	"LogToFile":         true,
	"LogLevel":          "info",
	"JwtSecret":         "",
	"SelfContained":     true,
	"SqlitePath":        "./database/kiselgram.db",
	"DbUser":            "",
	"DbPassword":        "",
	"DbAddress":         "",
	"DbPort":            "3306",
	"DbDatabase":        "",
	"RedisAddress":      "",
	"RedisPassword":     "",
	"RedisDB":           0,
	"UploadRoot":        "./uploads",
	"MaxUploadBytes":    attachments.DefaultMaxBytes,
	"ThumbnailSize":     attachments.DefaultThumbnailSize,
	"BotInterval":       bots.DefaultInterval,
	"BotBackoff":        bots.DefaultBackoff,
}

// New returns a viper instance with every known key defaulted, reading
// configPath when it is set and config.json from the working directory
// otherwise.
func New(configPath string) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads and validates the configuration. A missing config file is not
// an error as long as the environment supplies the required values.
func Load(v *viper.Viper) (*models.ConfigFile, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg models.ConfigFile
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
