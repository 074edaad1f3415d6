// Package eventlog persists Gateway and Governance events (C11) to
// Postgres for operational tooling. It is a one-way mirror: the core
// packages in pkg/session, pkg/approval, pkg/rotation and pkg/governance
// never read events back to reconstruct state.
package eventlog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/axelar-network/solana-gateway-core/pkg/events"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Client wraps a pooled Postgres connection.
type Client struct {
	db     *sql.DB
	logger *log.Logger
}

// NewClient opens a connection pool against dsn and verifies connectivity.
func NewClient(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Client, error) {
	if dsn == "" {
		return nil, fmt.Errorf("eventlog: dsn must not be empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: opening database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: pinging database: %w", err)
	}

	return &Client{db: db, logger: log.New(log.Writer(), "[eventlog] ", log.LstdFlags)}, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// migration mirrors a single embedded .sql file.
type migration struct {
	version string
	sql     string
}

func (c *Client) readMigrations() ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, migration{
			version: strings.TrimSuffix(d.Name(), ".sql"),
			sql:     string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// MigrateUp applies every embedded migration not already recorded in
// schema_migrations.
func (c *Client) MigrateUp(ctx context.Context) error {
	migrations, err := c.readMigrations()
	if err != nil {
		return fmt.Errorf("eventlog: reading migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := c.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			applied[v] = true
		}
	} else if !strings.Contains(err.Error(), "does not exist") {
		return fmt.Errorf("eventlog: reading applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		c.logger.Printf("applying %s", m.version)
		if _, err := c.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("eventlog: applying migration %s: %w", m.version, err)
		}
	}
	return nil
}

// PostgresSink implements events.Sink by appending every event to the
// gateway_events table. It never blocks core state transitions on a
// database error reaching the caller: Emit propagates the error, and
// callers decide whether a sink failure should roll back the transition.
type PostgresSink struct {
	client *Client
}

// NewPostgresSink wraps an already-migrated Client as an events.Sink.
func NewPostgresSink(client *Client) *PostgresSink {
	return &PostgresSink{client: client}
}

func commandIDOf(e events.Event) []byte {
	switch ev := e.(type) {
	case events.MessageApproved:
		return ev.CommandID[:]
	case events.MessageConsumed:
		return ev.CommandID[:]
	default:
		return nil
	}
}

func (s *PostgresSink) Emit(e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventlog: marshaling event: %w", err)
	}

	_, err = s.client.db.ExecContext(context.Background(),
		`INSERT INTO gateway_events (event_id, event_type, command_id, payload) VALUES ($1, $2, $3, $4)`,
		uuid.New(), e.EventType(), commandIDOf(e), payload,
	)
	if err != nil {
		return fmt.Errorf("eventlog: inserting event: %w", err)
	}
	return nil
}

// Record is a materialised row read back from gateway_events.
type Record struct {
	EventID    uuid.UUID
	EventType  string
	CommandID  []byte
	Payload    json.RawMessage
	RecordedAt time.Time
}

// EventsSince returns every event recorded at or after since, oldest
// first. Intended for operational tooling, not for reconstructing
// authoritative state.
func (s *PostgresSink) EventsSince(ctx context.Context, since time.Time, limit int) ([]Record, error) {
	rows, err := s.client.db.QueryContext(ctx,
		`SELECT event_id, event_type, command_id, payload, recorded_at
		 FROM gateway_events WHERE recorded_at >= $1 ORDER BY recorded_at ASC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("eventlog: querying events since: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// EventsForCommand returns every event recorded against a given
// command_id, in the order they were appended.
func (s *PostgresSink) EventsForCommand(ctx context.Context, commandID [32]byte) ([]Record, error) {
	rows, err := s.client.db.QueryContext(ctx,
		`SELECT event_id, event_type, command_id, payload, recorded_at
		 FROM gateway_events WHERE command_id = $1 ORDER BY recorded_at ASC`,
		commandID[:],
	)
	if err != nil {
		return nil, fmt.Errorf("eventlog: querying events for command: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.EventID, &r.EventType, &r.CommandID, &r.Payload, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("eventlog: scanning event row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
