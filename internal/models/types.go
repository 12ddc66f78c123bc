package models

import "time"

const (
	// DefaultShortUserID is used when no short user id is configured
	DefaultShortUserID = "1234567890"

	// DeviceType is reported as "dt" in every health payload
	DeviceType = "apple_watch"

	// DrivingSpeedThreshold is the location speed (m/s, ~10 km/h) above which the driver is moving
	DrivingSpeedThreshold = 2.77

	// MQTTPublishTimeout bounds every blocking paho token wait
	MQTTPublishTimeout = 15 * time.Second
)

// CommandLineFlags contains all command-line options
type CommandLineFlags struct {
	ConfigPath  string
	ShortUserID string
	DriverID    string
	BaseURL     string
	RedisURL    string
	HistoryPath string
	ListenAddr  string
	Debug       bool
	LogLevel    string
	LogFormat   string
	// MQTT uplink
	MqttBrokerURL string
	MqttCACert    string
	MqttKeepAlive string
	// NTP configuration
	NtpEnabled bool
	NtpServer  string
	// Loop intervals
	HealthInterval string
	RiskInterval   string
	HistoryWindow  string
	// Driving detection
	DrivingPolicy string
	MaxInFlight   int
}

// Config represents the application configuration
type Config struct {
	Identity IdentityConfig `yaml:"identity"`
	Endpoint EndpointConfig `yaml:"endpoint"`
	Health   HealthConfig   `yaml:"health"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Risk     RiskConfig     `yaml:"risk"`
	Driving  DrivingConfig  `yaml:"driving"`
	RedisURL string         `yaml:"redis_url"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	NTP      NTPConfig      `yaml:"ntp"`
	Telegram TelegramConfig `yaml:"telegram"`
	Server   ServerConfig   `yaml:"server"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
	Debug    bool           `yaml:"debug,omitempty"`
}

// IdentityConfig holds the user/driver identity
type IdentityConfig struct {
	ShortUserID     string `yaml:"short_user_id"`
	DriverID        string `yaml:"driver_id,omitempty"`
	PersistDriverID bool   `yaml:"persist_driver_id,omitempty"`
}

// EndpointConfig describes the remote collector/classifier API
type EndpointConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
	CACert  string `yaml:"ca_cert,omitempty"`
}

// HealthConfig contains biometric sampling settings
type HealthConfig struct {
	Interval      string `yaml:"interval"`
	HistoryWindow string `yaml:"history_window"`
	HistoryPath   string `yaml:"history_path"`
}

// DeliveryConfig contains upload settings
type DeliveryConfig struct {
	MaxInFlight int `yaml:"max_in_flight"`
}

// RiskConfig contains risk polling settings
type RiskConfig struct {
	Interval      string `yaml:"interval"`
	CountdownTick string `yaml:"countdown_tick"`
	Emphasis      string `yaml:"emphasis"`
}

// DrivingConfig contains driving detection settings
type DrivingConfig struct {
	Policy         string  `yaml:"policy"`
	Primary        string  `yaml:"primary"`
	StaleAfter     string  `yaml:"stale_after"`
	SpeedThreshold float64 `yaml:"speed_threshold"`
}

// MQTTConfig contains MQTT uplink configuration
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url,omitempty"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	CACert    string `yaml:"ca_cert,omitempty"`
	KeepAlive string `yaml:"keepalive"`
}

// NTPConfig contains NTP time synchronization configuration
type NTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Server  string `yaml:"server"`
}

// TelegramConfig contains Telegram alert configuration
type TelegramConfig struct {
	Enabled   bool            `yaml:"enabled"`
	BotToken  string          `yaml:"bot_token,omitempty"`
	ChatID    string          `yaml:"chat_id,omitempty"`
	RateLimit string          `yaml:"rate_limit"`
	QueueSize int             `yaml:"queue_size"`
	Events    map[string]bool `yaml:"events,omitempty"`
}

// ServerConfig contains the local status API configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// EventsConfig contains event uplink buffering configuration
type EventsConfig struct {
	BufferPath string `yaml:"buffer_path"`
	MaxRetries int    `yaml:"max_retries"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Identity is the stable user/driver identity attached to every outbound request
type Identity struct {
	ShortUserID string `json:"short_user_id"`
	DriverID    string `json:"driver_id"`
}
