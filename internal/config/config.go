package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	HTTPAddr          string        `mapstructure:"http_addr" yaml:"http_addr"`
	AcceptTimeout     time.Duration `mapstructure:"accept_timeout" yaml:"accept_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	SendQueueSize     int           `mapstructure:"send_queue_size" yaml:"send_queue_size"`
	MaxLineBytes      int           `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	PasswordCost      int           `mapstructure:"password_cost" yaml:"password_cost"`
	AdminToken        string        `mapstructure:"admin_token" yaml:"admin_token"`
	AdminConsole      bool          `mapstructure:"admin_console" yaml:"admin_console"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":12345",
		HTTPAddr:          "127.0.0.1:8080",
		AcceptTimeout:     time.Second,
		WriteTimeout:      5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		SendQueueSize:     64,
		MaxLineBytes:      64 * 1024,
		DatabasePath:      "chat.db",
		JWTIssuer:         "wirechat-relay",
		TokenTTL:          24 * time.Hour,
		PasswordCost:      10,
		AdminConsole:      true,
		LogLevel:          "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// AdminConsole is a plain bool and cannot be told apart from its zero value, so callers
// set it directly.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.HTTPAddr != "" {
		c.HTTPAddr = other.HTTPAddr
	}
	if other.AcceptTimeout != 0 {
		c.AcceptTimeout = other.AcceptTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.SendQueueSize != 0 {
		c.SendQueueSize = other.SendQueueSize
	}
	if other.MaxLineBytes != 0 {
		c.MaxLineBytes = other.MaxLineBytes
	}
	if other.MaxConnections != 0 {
		c.MaxConnections = other.MaxConnections
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.TokenTTL != 0 {
		c.TokenTTL = other.TokenTTL
	}
	if other.PasswordCost != 0 {
		c.PasswordCost = other.PasswordCost
	}
	if other.AdminToken != "" {
		c.AdminToken = other.AdminToken
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
