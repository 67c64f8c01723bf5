// Package store owns the link to the analytics store. A Manager is the only
// way the rest of the process reaches ClickHouse: it dials with a bounded
// fixed-delay retry at startup, probes liveness, and then serves parameterized
// reads and batched writes over the shared connection.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/meterly/datagate/internal/models"
)

// ErrUnavailable is returned by Query and Insert when the manager never
// reached Ready or the link is gone. Safe for callers to retry later.
var ErrUnavailable = errors.New("store: analytics store unavailable")

// State of the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Ready
	Unavailable
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// rows is the subset of driver.Rows the manager consumes.
type rows interface {
	Next() bool
	ScanStruct(dest any) error
	Close() error
	Err() error
}

// batch is the subset of driver.Batch the manager consumes.
type batch interface {
	Append(v ...any) error
	Abort() error
	Send() error
}

// conn abstracts the ClickHouse connection so tests can substitute a fake.
type conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (rows, error)
	PrepareBatch(ctx context.Context, query string) (batch, error)
	Close() error
}

// DialFunc establishes one connection attempt.
type DialFunc func(ctx context.Context) (conn, error)

// chConn adapts driver.Conn to the narrow conn interface.
type chConn struct {
	driver.Conn
}

func (c chConn) Query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := c.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c chConn) PrepareBatch(ctx context.Context, query string) (batch, error) {
	b, err := c.Conn.PrepareBatch(ctx, query)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Dial returns a DialFunc for a native-protocol ClickHouse endpoint.
func Dial(addr, database, username, password string) DialFunc {
	return func(ctx context.Context) (conn, error) {
		c, err := clickhouse.Open(&clickhouse.Options{
			Addr: []string{addr},
			Auth: clickhouse.Auth{
				Database: database,
				Username: username,
				Password: password,
			},
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return chConn{c}, nil
	}
}

// Manager supervises the analytics-store connection.
type Manager struct {
	dial     DialFunc
	attempts int
	delay    time.Duration
	log      *slog.Logger

	mu    sync.RWMutex
	state State
	conn  conn
}

func NewManager(dial DialFunc, attempts int, delay time.Duration, log *slog.Logger) *Manager {
	if attempts < 1 {
		attempts = 1
	}
	return &Manager{
		dial:     dial,
		attempts: attempts,
		delay:    delay,
		log:      log,
		state:    Disconnected,
	}
}

// Connect dials the store up to the configured attempt count with a fixed
// delay between attempts, running a trivial round-trip as a liveness probe
// before declaring Ready. If every attempt fails the manager stays
// Unavailable for the rest of the process lifetime and the last error is
// returned; callers treat that as fatal.
func (m *Manager) Connect(ctx context.Context) error {
	m.setState(Connecting)

	var lastErr error
	for i := 1; i <= m.attempts; i++ {
		c, err := m.dial(ctx)
		if err == nil {
			err = c.Exec(ctx, "SELECT 1")
			if err == nil {
				m.mu.Lock()
				m.conn = c
				m.state = Ready
				m.mu.Unlock()
				m.log.Info("analytics store connected", "attempt", i)
				return nil
			}
			_ = c.Close()
		}
		lastErr = err
		m.log.Warn("analytics store not ready, waiting", "attempt", i, "err", err)

		if i == m.attempts {
			break
		}
		select {
		case <-ctx.Done():
			m.setState(Unavailable)
			return fmt.Errorf("store: connect cancelled: %w", ctx.Err())
		case <-time.After(m.delay):
		}
	}

	m.setState(Unavailable)
	return fmt.Errorf("store: connect failed after %d attempts: %w", m.attempts, lastErr)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	old := m.state
	m.state = s
	m.mu.Unlock()
	if old != s {
		m.log.Info("analytics store state", "from", old.String(), "to", s.String())
	}
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ready returns the live connection, or ErrUnavailable without blocking.
func (m *Manager) ready() (conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Ready {
		return nil, ErrUnavailable
	}
	return m.conn, nil
}

// Query runs a parameterized read and scans the result rows. Arguments are
// always bound, never spliced into the statement.
func (m *Manager) Query(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	c, err := m.ready()
	if err != nil {
		return nil, err
	}

	r, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer r.Close()

	var out []models.Record
	for r.Next() {
		var rec models.Record
		if err := r.ScanStruct(&rec); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", err)
	}
	return out, nil
}

// Insert writes a batch of records. The batch succeeds or fails as a whole,
// as reported by the store.
func (m *Manager) Insert(ctx context.Context, table string, recs []models.Record) error {
	if len(recs) == 0 {
		return nil
	}
	c, err := m.ready()
	if err != nil {
		return err
	}

	b, err := c.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (name, email, country) VALUES", table))
	if err != nil {
		return fmt.Errorf("store: prepare batch: %w", err)
	}
	defer func() { _ = b.Abort() }()

	for _, rec := range recs {
		if err := b.Append(rec.Name, rec.Email, rec.Country); err != nil {
			return fmt.Errorf("store: append: %w", err)
		}
	}
	if err := b.Send(); err != nil {
		return fmt.Errorf("store: send batch: %w", err)
	}
	return nil
}

// EnsureSchema creates the records table if missing. Idempotent; run once
// after Connect succeeds.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	c, err := m.ready()
	if err != nil {
		return err
	}
	err = c.Exec(ctx, `CREATE TABLE IF NOT EXISTS records (
		name String,
		email String,
		country String
	) ENGINE = MergeTree() ORDER BY country`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	m.state = Disconnected
	return err
}
