package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"numcheck/pkg/domain"
	"numcheck/pkg/platform/sentinel"
)

// Dialect selects placeholder syntax for a SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// upsertChunk keeps multi-row inserts under SQLite's bound-parameter limit.
const upsertChunk = 150

var schema = []string{
	`CREATE TABLE IF NOT EXISTS checked_numbers (
		number        TEXT PRIMARY KEY,
		status        TEXT NOT NULL,
		last_check_ns BIGINT NOT NULL,
		next_retry_ns BIGINT NULL,
		attempts      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_data (
		session_key   TEXT PRIMARY KEY,
		last_check_ns BIGINT NOT NULL,
		total_checked INTEGER NOT NULL
	)`,
}

// SQLStore persists the ledger into two tables. Timestamps are stored as
// Unix nanoseconds so both drivers round-trip them exactly.
type SQLStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewSQLStore wraps an open database. Call EnsureSchema before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("ledger database is required")
	}
	var ph sq.PlaceholderFormat
	switch dialect {
	case DialectSQLite:
		ph = sq.Question
	case DialectPostgres:
		ph = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported ledger dialect %q", dialect)
	}
	return &SQLStore{db: db, sb: sq.StatementBuilder.PlaceholderFormat(ph)}, nil
}

// EnsureSchema creates the ledger tables when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create ledger schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()

	query, args, err := s.sb.
		Select("number", "status", "last_check_ns", "next_retry_ns", "attempts").
		From("checked_numbers").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ledger query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checked numbers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			number, status string
			lastNs         int64
			nextNs         sql.NullInt64
			attempts       int
		)
		if err := rows.Scan(&number, &status, &lastNs, &nextNs, &attempts); err != nil {
			return nil, fmt.Errorf("scan checked number: %w", err)
		}
		rec := Record{
			Status:    domain.Status(status),
			LastCheck: time.Unix(0, lastNs).UTC(),
			Attempts:  attempts,
		}
		if nextNs.Valid {
			next := time.Unix(0, nextNs.Int64).UTC()
			rec.NextRetry = &next
		}
		key := domain.CanonicalNumber(number)
		if err := validateRecord(key, rec); err != nil {
			return nil, err
		}
		snap.CheckedNumbers[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checked numbers: %w", err)
	}

	if err := s.loadUsers(ctx, snap); err != nil {
		return nil, err
	}
	if len(snap.CheckedNumbers) == 0 && len(snap.UserData) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return snap, nil
}

func (s *SQLStore) loadUsers(ctx context.Context, snap *Snapshot) error {
	query, args, err := s.sb.
		Select("session_key", "last_check_ns", "total_checked").
		From("user_data").
		ToSql()
	if err != nil {
		return fmt.Errorf("build user query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query user data: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key    string
			lastNs int64
			total  int
		)
		if err := rows.Scan(&key, &lastNs, &total); err != nil {
			return fmt.Errorf("scan user data: %w", err)
		}
		snap.UserData[domain.SessionKey(key)] = UserStats{
			LastCheck:    time.Unix(0, lastNs).UTC(),
			TotalChecked: total,
		}
	}
	return rows.Err()
}

// Save upserts every record in one transaction, so a failed save leaves the
// previous state untouched.
func (s *SQLStore) Save(ctx context.Context, snap *Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.saveNumbers(ctx, tx, snap.CheckedNumbers); err != nil {
		return err
	}
	if err = s.saveUsers(ctx, tx, snap.UserData); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (s *SQLStore) saveNumbers(ctx context.Context, tx *sql.Tx, records map[domain.CanonicalNumber]Record) error {
	if len(records) == 0 {
		return nil
	}
	keys := make([]domain.CanonicalNumber, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	for start := 0; start < len(keys); start += upsertChunk {
		end := min(start+upsertChunk, len(keys))
		ins := s.sb.Insert("checked_numbers").
			Columns("number", "status", "last_check_ns", "next_retry_ns", "attempts")
		for _, k := range keys[start:end] {
			rec := records[k]
			var next sql.NullInt64
			if rec.NextRetry != nil {
				next = sql.NullInt64{Int64: rec.NextRetry.UnixNano(), Valid: true}
			}
			ins = ins.Values(string(k), string(rec.Status), rec.LastCheck.UnixNano(), next, rec.Attempts)
		}
		ins = ins.Suffix("ON CONFLICT (number) DO UPDATE SET " +
			"status = excluded.status, last_check_ns = excluded.last_check_ns, " +
			"next_retry_ns = excluded.next_retry_ns, attempts = excluded.attempts")
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build number upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert checked numbers: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) saveUsers(ctx context.Context, tx *sql.Tx, users map[domain.SessionKey]UserStats) error {
	if len(users) == 0 {
		return nil
	}
	ins := s.sb.Insert("user_data").Columns("session_key", "last_check_ns", "total_checked")
	n := 0
	flush := func() error {
		if n == 0 {
			return nil
		}
		query, args, err := ins.Suffix("ON CONFLICT (session_key) DO UPDATE SET " +
			"last_check_ns = excluded.last_check_ns, total_checked = excluded.total_checked").ToSql()
		if err != nil {
			return fmt.Errorf("build user upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert user data: %w", err)
		}
		ins = s.sb.Insert("user_data").Columns("session_key", "last_check_ns", "total_checked")
		n = 0
		return nil
	}
	for k, u := range users {
		ins = ins.Values(string(k), u.LastCheck.UnixNano(), u.TotalChecked)
		n++
		if n == upsertChunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
