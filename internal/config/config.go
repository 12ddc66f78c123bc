package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lkarthik76/ddnd/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const defaultConfigPath = "ddnd.yml"

// ParseFlags parses command line flags and returns them as a struct
func ParseFlags() *models.CommandLineFlags {
	flags := &models.CommandLineFlags{}

	// Basic configuration
	flag.StringVar(&flags.ConfigPath, "config", "", "path to config file (defaults to ddnd.yml if not specified)")
	flag.StringVar(&flags.ShortUserID, "short-user-id", models.DefaultShortUserID, "short user identifier sent with every request")
	flag.StringVar(&flags.DriverID, "driver-id", "", "driver identifier (generated when empty)")
	flag.StringVar(&flags.BaseURL, "base-url", "", "base URL of the collector/classifier API")
	flag.StringVar(&flags.RedisURL, "redis-url", "redis://localhost:6379", "Redis URL of the platform bridge")
	flag.StringVar(&flags.HistoryPath, "history-path", "", "path to the recorded sample store (SQLite)")
	flag.StringVar(&flags.ListenAddr, "listen", "127.0.0.1:8088", "status API listen address")
	flag.BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&flags.LogFormat, "log-format", "console", "log format (json or console)")

	// MQTT uplink
	flag.StringVar(&flags.MqttBrokerURL, "mqtt-broker", "", "MQTT broker URL (uplink disabled when empty)")
	flag.StringVar(&flags.MqttCACert, "mqtt-cacert", "", "path to MQTT CA certificate")
	flag.StringVar(&flags.MqttKeepAlive, "mqtt-keepalive", "30s", "MQTT keepalive duration")

	// NTP configuration
	flag.BoolVar(&flags.NtpEnabled, "ntp-enabled", true, "enable NTP clock offset correction")
	flag.StringVar(&flags.NtpServer, "ntp-server", "pool.ntp.org", "NTP server address")

	// Loop intervals
	flag.StringVar(&flags.HealthInterval, "health-interval", "10s", "biometric collect-and-send interval")
	flag.StringVar(&flags.RiskInterval, "risk-interval", "60s", "risk fetch interval")
	flag.StringVar(&flags.HistoryWindow, "history-window", "1h", "lookback window for recorded samples")

	flag.StringVar(&flags.DrivingPolicy, "driving-policy", "precedence", "driving signal policy (precedence or last_write)")
	flag.IntVar(&flags.MaxInFlight, "max-in-flight", 4, "maximum concurrent health deliveries")

	flag.Parse()
	return flags
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *models.Config {
	return &models.Config{
		Identity: models.IdentityConfig{
			ShortUserID: models.DefaultShortUserID,
		},
		Endpoint: models.EndpointConfig{
			BaseURL: "https://x3lurwrtk3.execute-api.us-east-1.amazonaws.com/prod",
			Timeout: "15s",
		},
		Health: models.HealthConfig{
			Interval:      "10s",
			HistoryWindow: "1h",
			HistoryPath:   "/var/lib/ddnd/samples.db",
		},
		Delivery: models.DeliveryConfig{
			MaxInFlight: 4,
		},
		Risk: models.RiskConfig{
			Interval:      "60s",
			CountdownTick: "1s",
			Emphasis:      "2s",
		},
		Driving: models.DrivingConfig{
			Policy:         "precedence",
			Primary:        "motion",
			StaleAfter:     "30s",
			SpeedThreshold: models.DrivingSpeedThreshold,
		},
		RedisURL: "redis://127.0.0.1:6379",
		MQTT: models.MQTTConfig{
			KeepAlive: "30s",
		},
		NTP: models.NTPConfig{
			Enabled: true,
			Server:  "pool.ntp.org",
		},
		Telegram: models.TelegramConfig{
			RateLimit: "3s",
			QueueSize: 20,
			Events: map[string]bool{
				"risk_high": true,
			},
		},
		Server: models.ServerConfig{
			ListenAddr: "127.0.0.1:8088",
		},
		Events: models.EventsConfig{
			BufferPath: "/var/lib/ddnd/events-buffer.json",
			MaxRetries: 10,
		},
		Log: models.LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from file and/or command line flags
func LoadConfig(flags *models.CommandLineFlags) (*models.Config, string, error) {
	var config *models.Config

	// Try to load config file
	configPath := flags.ConfigPath
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if data, err := os.ReadFile(configPath); err == nil {
		config = DefaultConfig()
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %v", err)
		}
	} else if flags.ConfigPath != "" {
		// Only return error if config file was explicitly specified
		return nil, "", fmt.Errorf("failed to read config file: %v", err)
	} else {
		config = DefaultConfig()
	}

	// Override with command line flags
	flag.Visit(func(f *flag.Flag) {
		applyFlag(config, flags, f.Name)
	})

	if err := ValidateConfig(config); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %v", err)
	}

	return config, configPath, nil
}

// applyFlag copies one explicitly set flag into the config
func applyFlag(config *models.Config, flags *models.CommandLineFlags, name string) {
	switch name {
	case "short-user-id":
		config.Identity.ShortUserID = flags.ShortUserID
	case "driver-id":
		config.Identity.DriverID = flags.DriverID
	case "base-url":
		config.Endpoint.BaseURL = flags.BaseURL
	case "redis-url":
		config.RedisURL = flags.RedisURL
	case "history-path":
		config.Health.HistoryPath = flags.HistoryPath
	case "listen":
		config.Server.ListenAddr = flags.ListenAddr
	case "debug":
		config.Debug = flags.Debug
	case "log-level":
		config.Log.Level = flags.LogLevel
	case "log-format":
		config.Log.Format = flags.LogFormat
	case "mqtt-broker":
		config.MQTT.BrokerURL = flags.MqttBrokerURL
	case "mqtt-cacert":
		config.MQTT.CACert = flags.MqttCACert
	case "mqtt-keepalive":
		config.MQTT.KeepAlive = flags.MqttKeepAlive
	case "ntp-enabled":
		config.NTP.Enabled = flags.NtpEnabled
	case "ntp-server":
		config.NTP.Server = flags.NtpServer
	case "health-interval":
		config.Health.Interval = flags.HealthInterval
	case "risk-interval":
		config.Risk.Interval = flags.RiskInterval
	case "history-window":
		config.Health.HistoryWindow = flags.HistoryWindow
	case "driving-policy":
		config.Driving.Policy = flags.DrivingPolicy
	case "max-in-flight":
		config.Delivery.MaxInFlight = flags.MaxInFlight
	}
}

// ValidateConfig fills unset defaults and validates the configuration
func ValidateConfig(config *models.Config) error {
	var errors []string

	if config.Identity.ShortUserID == "" {
		config.Identity.ShortUserID = models.DefaultShortUserID
	}

	if config.Endpoint.BaseURL == "" {
		errors = append(errors, "endpoint base URL is required")
	} else if u, err := url.Parse(config.Endpoint.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid endpoint base URL: %s", config.Endpoint.BaseURL))
	}
	if config.RedisURL == "" {
		errors = append(errors, "redis URL is required")
	}

	if config.Endpoint.Timeout == "" {
		config.Endpoint.Timeout = "15s"
	}
	if config.Health.Interval == "" {
		config.Health.Interval = "10s"
	}
	if config.Health.HistoryWindow == "" {
		config.Health.HistoryWindow = "1h"
	}
	if config.Delivery.MaxInFlight <= 0 {
		config.Delivery.MaxInFlight = 4
	}
	if config.Risk.Interval == "" {
		config.Risk.Interval = "60s"
	}
	if config.Risk.CountdownTick == "" {
		config.Risk.CountdownTick = "1s"
	}
	if config.Risk.Emphasis == "" {
		config.Risk.Emphasis = "2s"
	}
	if config.Driving.Policy == "" {
		config.Driving.Policy = "precedence"
	}
	if config.Driving.Primary == "" {
		config.Driving.Primary = "motion"
	}
	if config.Driving.StaleAfter == "" {
		config.Driving.StaleAfter = "30s"
	}
	if config.Driving.SpeedThreshold <= 0 {
		config.Driving.SpeedThreshold = models.DrivingSpeedThreshold
	}
	if config.MQTT.KeepAlive == "" {
		config.MQTT.KeepAlive = "30s"
	}
	if config.Telegram.RateLimit == "" {
		config.Telegram.RateLimit = "3s"
	}
	if config.Telegram.QueueSize <= 0 {
		config.Telegram.QueueSize = 20
	}
	if config.Events.MaxRetries <= 0 {
		config.Events.MaxRetries = 10
	}
	if config.Server.ListenAddr == "" {
		config.Server.ListenAddr = "127.0.0.1:8088"
	}

	switch config.Driving.Policy {
	case "precedence", "last_write":
	default:
		errors = append(errors, fmt.Sprintf("invalid driving policy: %s (must be 'precedence' or 'last_write')", config.Driving.Policy))
	}
	switch config.Driving.Primary {
	case "motion", "location":
	default:
		errors = append(errors, fmt.Sprintf("invalid driving primary source: %s (must be 'motion' or 'location')", config.Driving.Primary))
	}

	if config.Telegram.Enabled {
		if config.Telegram.BotToken == "" {
			errors = append(errors, "telegram bot token is required when telegram is enabled")
		}
		if config.Telegram.ChatID == "" {
			errors = append(errors, "telegram chat id is required when telegram is enabled")
		}
	}

	// Parse and validate durations
	durations := map[string]string{
		"endpoint.timeout":      config.Endpoint.Timeout,
		"health.interval":       config.Health.Interval,
		"health.history_window": config.Health.HistoryWindow,
		"risk.interval":         config.Risk.Interval,
		"risk.countdown_tick":   config.Risk.CountdownTick,
		"risk.emphasis":         config.Risk.Emphasis,
		"driving.stale_after":   config.Driving.StaleAfter,
		"mqtt.keepalive":        config.MQTT.KeepAlive,
		"telegram.rate_limit":   config.Telegram.RateLimit,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s: %v", name, err))
			continue
		}
		if d <= 0 {
			errors = append(errors, fmt.Sprintf("invalid %s: must be positive", name))
		}
	}

	if err := validateRiskCadence(config); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// validateRiskCadence ensures the countdown ticks at least once per fetch
// and the risk interval is a whole number of seconds.
func validateRiskCadence(config *models.Config) error {
	interval, err := time.ParseDuration(config.Risk.Interval)
	if err != nil {
		return nil // Already caught by duration validation
	}
	tick, err := time.ParseDuration(config.Risk.CountdownTick)
	if err != nil {
		return nil
	}

	if interval%time.Second != 0 {
		return fmt.Errorf("risk.interval (%s) must be a whole number of seconds", config.Risk.Interval)
	}
	if tick > interval {
		return fmt.Errorf("risk.countdown_tick (%s) must be <= risk.interval (%s)",
			config.Risk.CountdownTick, config.Risk.Interval)
	}

	return nil
}

// MustDuration parses a duration that ValidateConfig already accepted
func MustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("unvalidated duration %q: %v", value, err))
	}
	return d
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(config *models.Config, configPath string, logger *zap.Logger) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %v", err)
	}

	// Create a backup of the existing config file if it exists
	if _, err := os.Stat(configPath); err == nil {
		backupPath := configPath + ".backup"
		if err := copyFile(configPath, backupPath); err != nil {
			logger.Warn("Failed to create backup of config file", zap.Error(err))
		} else {
			logger.Info("Created backup of config file", zap.String("path", backupPath))
		}
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	logger.Info("Configuration saved", zap.String("path", configPath))
	return nil
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}
