package postgresql

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const pingTimeout = 5 * time.Second

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the config as a lib/pq connection URL
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// Client owns a pooled sqlx connection
type Client struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewClient opens the pool and verifies it with a ping
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	logger.Info("Connecting to PostgreSQL",
		slog.String("host", config.Host),
		slog.Int("port", config.Port),
		slog.String("database", config.Database),
	)

	db, err := sqlx.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		slog.Int("max_open_conns", config.MaxOpenConns),
		slog.Duration("conn_max_lifetime", config.ConnMaxLifetime),
	)

	return &Client{db: db, logger: logger}, nil
}

// DB returns the underlying pool
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Close closes the pool
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", err)
	}
	c.logger.Info("PostgreSQL connection closed")
	return nil
}

// InTx runs fn inside a transaction, committing when it returns nil
func (c *Client) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("Failed to roll back transaction", slog.Any("error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthCheck pings the database and runs a trivial query
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var one int
	if err := c.db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
