// Package postgres opens a pooled lib/pq connection and provides the shard
// payload queries used by the postgres index source.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

// ErrNotFound is returned when no payload is stored under the requested name.
var ErrNotFound = errors.New("payload not found")

const schema = `
CREATE TABLE IF NOT EXISTS search_shards (
	build      TEXT        NOT NULL,
	name       TEXT        NOT NULL,
	format     TEXT        NOT NULL,
	payload    BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (build, name)
)`

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Migrate creates the shard payload table if it does not exist.
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating search_shards: %w", err)
	}
	return nil
}

// LoadPayload returns the payload stored for (build, name).
func (c *Client) LoadPayload(ctx context.Context, build, name string) ([]byte, error) {
	var payload []byte
	err := c.DB.QueryRowContext(ctx,
		`SELECT payload FROM search_shards WHERE build = $1 AND name = $2`,
		build, name,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, build, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s/%s: %w", build, name, err)
	}
	return payload, nil
}

// Payload is one row written by StorePayloads.
type Payload struct {
	Name   string
	Format string
	Data   []byte
}

// StorePayloads replaces every payload of a build in a single transaction.
func (c *Client) StorePayloads(ctx context.Context, build string, payloads []Payload) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_shards WHERE build = $1`, build); err != nil {
			return fmt.Errorf("clearing build %s: %w", build, err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO search_shards (build, name, format, payload) VALUES ($1, $2, $3, $4)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range payloads {
			if _, err := stmt.ExecContext(ctx, build, p.Name, p.Format, p.Data); err != nil {
				return fmt.Errorf("inserting %s: %w", p.Name, err)
			}
		}
		return nil
	})
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
