package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Seeds    SeedsConfig    `mapstructure:"seeds"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type PollerConfig struct {
	ModbusTimeout      time.Duration `mapstructure:"modbus_timeout"`
	MQTTConnectTimeout time.Duration `mapstructure:"mqtt_connect_timeout"`
	MQTTClientPrefix   string        `mapstructure:"mqtt_client_prefix"`
	ReconcileInterval  time.Duration `mapstructure:"reconcile_interval"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SMSConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	AccountSID          string `mapstructure:"account_sid"`
	AuthToken           string `mapstructure:"auth_token"`
	MessagingServiceSID string `mapstructure:"messaging_service_sid"`
	Timeout             int    `mapstructure:"timeout"`
}

type AlertsConfig struct {
	Subject        string        `mapstructure:"subject"`
	Message        string        `mapstructure:"message"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	SMTP           SMTPConfig    `mapstructure:"smtp"`
	SMS            SMSConfig     `mapstructure:"sms"`
}

type LogFileConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	File   LogFileConfig `mapstructure:"file"`
}

type SeedsConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.max_connections", 10)

	viper.SetDefault("poller.modbus_timeout", "3s")
	viper.SetDefault("poller.mqtt_connect_timeout", "5s")
	viper.SetDefault("poller.mqtt_client_prefix", "diagnostic-controller")
	viper.SetDefault("poller.reconcile_interval", "30s")

	viper.SetDefault("alerts.subject", "Diagnostics Alert")
	viper.SetDefault("alerts.message", "The following diagnostic codes changed state:")
	viper.SetDefault("alerts.attempt_timeout", "30s")
	viper.SetDefault("alerts.sms.base_url", "https://api.twilio.com")
	viper.SetDefault("alerts.sms.timeout", 15)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.file.max_size_mb", 100)
	viper.SetDefault("logging.file.max_backups", 5)
	viper.SetDefault("logging.file.max_age_days", 30)

	viper.SetDefault("shutdown_timeout", "30s")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DIAG")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
