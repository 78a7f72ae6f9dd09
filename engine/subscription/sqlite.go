package subscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/WessleyAI/transit-mvp/engine/domain"
)

// SQLiteStore keeps subscriptions in a SQLite database.
type SQLiteStore struct {
	conn   *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens or creates the database at dsn and ensures the schema.
func OpenSQLite(dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("subscription: open %s: %w", dsn, err)
	}
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("subscription: set pragma: %w", err)
		}
	}
	s := &SQLiteStore{conn: conn, logger: logger, now: time.Now}
	if err := s.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscription: init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL DEFAULT '',
			bus_id TEXT NOT NULL DEFAULT '',
			stop_id TEXT NOT NULL DEFAULT '',
			notify_before_sec TEXT NOT NULL DEFAULT '300',
			channel TEXT NOT NULL DEFAULT 'console',
			policy TEXT NOT NULL DEFAULT '{}',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_active ON subscriptions(active, id);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

const selectColumns = `SELECT id, user_id, bus_id, stop_id, notify_before_sec, channel, policy, active, created_at FROM subscriptions`

func (s *SQLiteStore) ListActive(ctx context.Context, limit int) ([]domain.Subscription, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, selectColumns+` WHERE active = 1 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("subscription: list active: %w", err)
	}
	return s.scanAll(rows)
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.conn.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("subscription: list: %w", err)
	}
	return s.scanAll(rows)
}

func (s *SQLiteStore) scanAll(rows *sql.Rows) ([]domain.Subscription, error) {
	defer rows.Close()
	var out []domain.Subscription
	for rows.Next() {
		var (
			sub       domain.Subscription
			before    string
			channel   string
			policy    string
			active    int
			createdAt string
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.BusID, &sub.StopID, &before, &channel, &policy, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("subscription: scan: %w", err)
		}
		sub.NotifyBeforeSec = domain.RawSeconds(before)
		sub.Channel = domain.Channel(channel)
		sub.Active = active != 0
		sub.Policy = domain.DefaultPolicy()
		if err := json.Unmarshal([]byte(policy), &sub.Policy); err != nil {
			s.logger.Warn("subscription: bad policy, using default", "id", sub.ID, "err", err)
			sub.Policy = domain.DefaultPolicy()
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			sub.CreatedAt = t
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Add(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	sub = withDefaults(sub)
	sub.CreatedAt = s.now().UTC().Truncate(time.Second)
	policy, err := json.Marshal(sub.Policy)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("subscription: encode policy: %w", err)
	}
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, bus_id, stop_id, notify_before_sec, channel, policy, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		sub.UserID, sub.BusID, sub.StopID, string(sub.NotifyBeforeSec), string(sub.Channel), string(policy),
		sub.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("subscription: insert: %w", err)
	}
	if sub.ID, err = res.LastInsertId(); err != nil {
		return domain.Subscription{}, fmt.Errorf("subscription: insert id: %w", err)
	}
	return sub, nil
}

func (s *SQLiteStore) Deactivate(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx, `UPDATE subscriptions SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("subscription: deactivate %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("subscription: deactivate %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("subscription %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
