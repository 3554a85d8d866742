package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arthur-debert/nanoprefs/internal/validation"
	"github.com/arthur-debert/nanoprefs/types"
)

const (
	defaultTable = "preferences"
	sqlTimeout   = 5 * time.Second
)

// SQLite is a Driver storing one row per key. It also implements
// KeyWriter, so an Immediate backend over it writes single rows.
type SQLite struct {
	db      *sql.DB
	builder *sqlBuilder
}

var (
	_ Driver    = (*SQLite)(nil)
	_ KeyWriter = (*SQLite)(nil)
)

// OpenSQLite opens (creating if needed) the database at dsn and ensures the
// table exists. An empty table name uses "preferences".
func OpenSQLite(dsn, table string) (*SQLite, error) {
	if table == "" {
		table = defaultTable
	}
	if err := validation.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, builder: newSQLBuilder(table)}

	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, s.builder.buildCreateTable()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return s, nil
}

// Load implements Driver
func (s *SQLite) Load() (Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()

	query, args, err := s.builder.buildSelectAll()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := Snapshot{}
	for rows.Next() {
		var key, kind, payload string
		if err := rows.Scan(&key, &kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		v, err := decodeRow(kind, payload)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

// Save implements Driver. The table is replaced in a single transaction.
func (s *SQLite) Save(data Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.builder.buildTruncate()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to truncate: %w", err)
	}
	for _, key := range data.Keys() {
		if err := s.upsert(ctx, tx, key, data[key]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) upsert(ctx context.Context, db execer, key string, v Value) error {
	payload, err := json.Marshal(v.Any())
	if err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}
	query, args, err := s.builder.buildUpsert(key, v.Kind.String(), string(payload))
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Put implements KeyWriter
func (s *SQLite) Put(key string, v Value) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()
	return s.upsert(ctx, s.db, key, v)
}

// Delete implements KeyWriter
func (s *SQLite) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()

	query, args, err := s.builder.buildDelete(key)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// Truncate implements KeyWriter
func (s *SQLite) Truncate() error {
	ctx, cancel := context.WithTimeout(context.Background(), sqlTimeout)
	defer cancel()

	query, args, err := s.builder.buildTruncate()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// Close implements Driver
func (s *SQLite) Close() error { return s.db.Close() }

// decodeRow turns a kind name and its JSON payload back into a Value.
func decodeRow(kindName, payload string) (Value, error) {
	kind, err := types.ParseKind(kindName)
	if err != nil {
		return Value{}, err
	}
	data := []byte(payload)
	switch kind {
	case types.KindString:
		var x string
		err = json.Unmarshal(data, &x)
		return StringValue(x), err
	case types.KindStringSet:
		var x []string
		err = json.Unmarshal(data, &x)
		return StringSetValue(x), err
	case types.KindInt:
		var x int32
		err = json.Unmarshal(data, &x)
		return IntValue(x), err
	case types.KindLong:
		var x int64
		err = json.Unmarshal(data, &x)
		return LongValue(x), err
	case types.KindFloat:
		var x float32
		err = json.Unmarshal(data, &x)
		return FloatValue(x), err
	default:
		var x bool
		err = json.Unmarshal(data, &x)
		return BoolValue(x), err
	}
}
