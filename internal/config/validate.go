package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	if err := c.Database.Messages.validate("database.messages"); err != nil {
		return err
	}

	if err := c.Limits.Message.validate("limits.message"); err != nil {
		return err
	}
	if err := c.Limits.Request.validate("limits.request"); err != nil {
		return err
	}

	if c.Rooms.DefaultMaxMembers < 2 {
		return errors.New("rooms.default_max_members must be >= 2")
	}
	if c.Rooms.HistoryLimit < 1 {
		return errors.New("rooms.history_limit must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns must be <= max_conns", prefix)
	}
	return nil
}

func (b *BucketConfig) validate(prefix string) error {
	if b.Capacity < 1 {
		return fmt.Errorf("%s.capacity must be >= 1", prefix)
	}
	if b.RefillTokens < 1 {
		return fmt.Errorf("%s.refill_tokens must be >= 1", prefix)
	}
	if b.RefillInterval <= 0 {
		return fmt.Errorf("%s.refill_interval must be positive", prefix)
	}
	return nil
}
