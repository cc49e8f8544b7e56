package config

import "time"

// Default values for optional configuration fields. The rate-limit
// defaults match the reference deployment: 50 messages per 10s window
// per connection, 100 requests per 60s window per client address.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultMaxMessageBytes = 64 * 1024
	DefaultSendBufferSize  = 256
	DefaultPingInterval    = 54 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultMessageCapacity       = 50
	DefaultMessageRefillTokens   = 50
	DefaultMessageRefillInterval = 10 * time.Second
	DefaultRequestCapacity       = 100
	DefaultRequestRefillTokens   = 100
	DefaultRequestRefillInterval = 60 * time.Second

	DefaultRoomMaxMembers = 100
	DefaultHistoryLimit   = 50
)

func (c *ServerConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.MaxMessageBytes == 0 {
		c.Server.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.Server.SendBufferSize == 0 {
		c.Server.SendBufferSize = DefaultSendBufferSize
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyDBDefaults(&c.Database.Messages)

	applyBucketDefaults(&c.Limits.Message,
		DefaultMessageCapacity, DefaultMessageRefillTokens, DefaultMessageRefillInterval)
	applyBucketDefaults(&c.Limits.Request,
		DefaultRequestCapacity, DefaultRequestRefillTokens, DefaultRequestRefillInterval)

	if c.Rooms.DefaultMaxMembers == 0 {
		c.Rooms.DefaultMaxMembers = DefaultRoomMaxMembers
	}
	if c.Rooms.HistoryLimit == 0 {
		c.Rooms.HistoryLimit = DefaultHistoryLimit
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

func applyBucketDefaults(b *BucketConfig, capacity, tokens int64, interval time.Duration) {
	if b.Capacity == 0 {
		b.Capacity = capacity
	}
	if b.RefillTokens == 0 {
		b.RefillTokens = tokens
	}
	if b.RefillInterval == 0 {
		b.RefillInterval = interval
	}
}
