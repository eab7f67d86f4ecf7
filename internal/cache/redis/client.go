// Package redis streams logged arena values to Redis using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool

	// DialTimeout bounds the initial connect and ping; zero means 5s.
	DialTimeout time.Duration
}

// Client owns the connection pool shared by the stream publishers of a run.
type Client struct {
	rdb  *redis.Client
	addr string
}

func options(cfg ClientConfig) *redis.Options {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	opts := &redis.Options{
		Addr:        cfg.Addr,
		ClientName:  "arena",
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: dial,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// New connects to Redis and fails unless the server answers a PING within
// the dial timeout.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := options(cfg)
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, addr: cfg.Addr}, nil
}

// Addr is the server address the client was created for.
func (c *Client) Addr() string { return c.addr }

// Cmdable exposes the command interface to stream implementations.
func (c *Client) Cmdable() redis.Cmdable { return c.rdb }

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis: close: %w", err)
	}
	return nil
}
