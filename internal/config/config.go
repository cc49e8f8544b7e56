package config

import "time"

// ServerConfig is the root configuration for a chat server instance.
type ServerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   HTTPConfig     `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Limits   LimitsConfig   `yaml:"limits"`
	Rooms    RoomsConfig    `yaml:"rooms"`
}

// InstanceConfig identifies this server.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// HTTPConfig holds listener and per-connection transport settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	SendBufferSize  int           `yaml:"send_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DatabaseConfig holds the message-store database connection.
type DatabaseConfig struct {
	Messages DBConfig `yaml:"messages"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LimitsConfig holds the two rate-limit scopes.
type LimitsConfig struct {
	// Message admits inbound envelopes, keyed by connection id.
	Message BucketConfig `yaml:"message"`
	// Request admits handshakes, keyed by client address.
	Request BucketConfig `yaml:"request"`
}

// BucketConfig parameterizes one token-bucket scope.
type BucketConfig struct {
	Capacity       int64         `yaml:"capacity"`
	RefillTokens   int64         `yaml:"refill_tokens"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// RoomsConfig holds room directory settings.
type RoomsConfig struct {
	DefaultMaxMembers int `yaml:"default_max_members"`
	HistoryLimit      int `yaml:"history_limit"`
}
