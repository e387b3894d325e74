package config

import (
	"time"

	"github.com/go-redis/redis"
)

// RedisConfig holds the client settings shared by everything that talks to redis. One address gives a
// single-node client, several give a cluster client, and a MasterName gives a sentinel-backed failover client.
type RedisConfig struct {
	Addrs      []string `validate:"required,min=1"`
	MasterName string
	DB         int `validate:"gte=0,lte=15"`
	Password   string

	PoolSize     int `validate:"gt=0"`
	MinIdleConns int `validate:"gte=0"`
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Retries inside the client, before an error reaches the caller. Zero disables them.
	MaxRetries      int `validate:"gte=0"`
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addrs:       []string{"localhost:6379"},
		PoolSize:    64,
		DialTimeout: 5 * time.Second,
	}
}

func (rc RedisConfig) AsUniversalOptions() *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:           rc.Addrs,
		MasterName:      rc.MasterName,
		DB:              rc.DB,
		Password:        rc.Password,
		PoolSize:        rc.PoolSize,
		MinIdleConns:    rc.MinIdleConns,
		PoolTimeout:     rc.PoolTimeout,
		IdleTimeout:     rc.IdleTimeout,
		DialTimeout:     rc.DialTimeout,
		ReadTimeout:     rc.ReadTimeout,
		WriteTimeout:    rc.WriteTimeout,
		MaxRetries:      rc.MaxRetries,
		MinRetryBackoff: rc.MinRetryBackoff,
		MaxRetryBackoff: rc.MaxRetryBackoff,
	}
}
