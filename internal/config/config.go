// Package config handles application configuration via environment variables and an optional file.
package config

import (
	"log"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configurable values for the app.
type Config struct {
	Env              string
	LogLevel         string
	Addr             string
	ConfigDir        string
	BackupDir        string
	DeliveryTimeout  time.Duration
	GatewayURL       string
	GatewayTimeout   time.Duration
	MediaMaxBytes    int64
	WebhookSecret    string
	InboundSecret    string
	BackupSchedule   string
	WatchConfig      bool
	WhitelistPattern string
}

var defaults = map[string]string{
	"env":               "development",
	"log_level":         "",
	"addr":              ":3000",
	"config_dir":        "config",
	"backup_dir":        "backups",
	"delivery_timeout":  "10s",
	"gateway_url":       "http://localhost:8081",
	"gateway_timeout":   "15s",
	"media_max_bytes":   "16777216",
	"webhook_secret":    "",
	"inbound_secret":    "",
	"backup_schedule":   "",
	"watch_config":      "false",
	"whitelist_pattern": `^55\d{10,11}$`,
}

// Load reads CONFIG_FILE (when set) and environment variables into a Config.
func Load() *Config {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit config file path. Environment variables
// take precedence over values in the file.
func LoadFile(path string) *Config {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Panicf("Invalid CONFIG_FILE %q: %v", path, err)
		}
	}

	deliveryTimeout, err := time.ParseDuration(v.GetString("delivery_timeout"))
	if err != nil {
		log.Panicf("Invalid DELIVERY_TIMEOUT: %v", err)
	}
	if deliveryTimeout <= 0 {
		log.Panicf("Invalid DELIVERY_TIMEOUT: %s is not positive", deliveryTimeout)
	}

	gatewayTimeout, err := time.ParseDuration(v.GetString("gateway_timeout"))
	if err != nil {
		log.Panicf("Invalid GATEWAY_TIMEOUT: %v", err)
	}
	if gatewayTimeout <= 0 {
		log.Panicf("Invalid GATEWAY_TIMEOUT: %s is not positive", gatewayTimeout)
	}

	mediaMax, err := strconv.ParseInt(v.GetString("media_max_bytes"), 10, 64)
	if err != nil {
		log.Panicf("Invalid MEDIA_MAX_BYTES: %v", err)
	}

	watch, err := strconv.ParseBool(v.GetString("watch_config"))
	if err != nil {
		log.Panicf("Invalid WATCH_CONFIG: %v", err)
	}

	pattern := v.GetString("whitelist_pattern")
	if _, err := regexp.Compile(pattern); err != nil {
		log.Panicf("Invalid WHITELIST_PATTERN: %v", err)
	}

	return &Config{
		Env:              v.GetString("env"),
		LogLevel:         v.GetString("log_level"),
		Addr:             v.GetString("addr"),
		ConfigDir:        v.GetString("config_dir"),
		BackupDir:        v.GetString("backup_dir"),
		DeliveryTimeout:  deliveryTimeout,
		GatewayURL:       v.GetString("gateway_url"),
		GatewayTimeout:   gatewayTimeout,
		MediaMaxBytes:    mediaMax,
		WebhookSecret:    v.GetString("webhook_secret"),
		InboundSecret:    v.GetString("inbound_secret"),
		BackupSchedule:   v.GetString("backup_schedule"),
		WatchConfig:      watch,
		WhitelistPattern: pattern,
	}
}
