package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document is a flat map of primitive/array fields, stored as JSON.
type Document map[string]any

// ErrNoChange aborts an Update without writing.
var ErrNoChange = errors.New("no change")

// UpdateFunc receives the current document (nil, false when absent) and returns the next one.
type UpdateFunc func(current Document, exists bool) (Document, error)

// Store is the key-value document store the service is built on.
type Store interface {
	Get(ctx context.Context, collection, key string) (Document, bool, error)
	Set(ctx context.Context, collection, key string, doc Document) error
	Delete(ctx context.Context, collection, key string) error
	Query(ctx context.Context, collection, field, equals string) ([]Document, error)
	// Update performs an atomic single-document read-decide-write. A nil document returned
	// from fn deletes the key.
	Update(ctx context.Context, collection, key string, fn UpdateFunc) (Document, error)
	// Subscribe delivers the current value immediately and again after every committed change.
	Subscribe(ctx context.Context, collection, key string, onChange func(Document, bool)) (func(), error)
	Close() error
}

// Open picks the postgres backend for postgres URLs and sqlite otherwise.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return NewPostgres(ctx, databaseURL)
	}
	return New(sqlitePath)
}

type Database struct {
	db  *sql.DB
	hub *watchHub
}

func New(path string) (*Database, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{db: db, hub: newWatchHub()}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("✅ Database initialised: %s", path)
	return d, nil
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return "file::memory:?_txlock=immediate"
	}
	return "file:" + path + "?_txlock=immediate&_busy_timeout=5000"
}

func (d *Database) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key TEXT NOT NULL,
			body TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Get(ctx context.Context, collection, key string) (Document, bool, error) {
	var body string
	err := d.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND key = ?`,
		collection, key,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}

	doc, err := decodeDocument([]byte(body))
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return doc, true, nil
}

func (d *Database) Set(ctx context.Context, collection, key string, doc Document) error {
	if err := upsertSQLite(ctx, d.db, collection, key, doc); err != nil {
		return err
	}
	d.hub.notify(collection, key, doc, true)
	return nil
}

func (d *Database) Delete(ctx context.Context, collection, key string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`,
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	d.hub.notify(collection, key, nil, false)
	return nil
}

func (d *Database) Query(ctx context.Context, collection, field, equals string) ([]Document, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT body FROM documents
		 WHERE collection = ? AND json_extract(body, ?) = ?
		 ORDER BY key`,
		collection, "$."+field, equals,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s where %s: %w", collection, field, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		doc, err := decodeDocument([]byte(body))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (d *Database) Update(ctx context.Context, collection, key string, fn UpdateFunc) (Document, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, key, err)
	}
	defer tx.Rollback()

	var (
		current Document
		exists  bool
		body    string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND key = ?`,
		collection, key,
	).Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("update %s/%s: %w", collection, key, err)
	default:
		exists = true
		if current, err = decodeDocument([]byte(body)); err != nil {
			return nil, err
		}
	}

	next, err := fn(current, exists)
	if err != nil {
		return current, err
	}

	if next == nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND key = ?`, collection, key)
	} else {
		err = upsertSQLite(ctx, tx, collection, key, next)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, key, err)
	}

	d.hub.notify(collection, key, next, next != nil)
	return next, nil
}

func (d *Database) Subscribe(ctx context.Context, collection, key string, onChange func(Document, bool)) (func(), error) {
	return subscribe(ctx, d, d.hub, collection, key, onChange)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSQLite(ctx context.Context, ex execer, collection, key string, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO documents (collection, key, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		collection, key, string(body), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	return nil
}

func decodeDocument(body []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
