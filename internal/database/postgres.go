package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps documents in a jsonb column. Subscribers see writes made through
// this process only.
type PostgresStore struct {
	pool *pgxpool.Pool
	hub  *watchHub
}

func NewPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, hub: newWatchHub()}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Println("✅ Postgres document store initialised")
	return s, nil
}

func (s *PostgresStore) init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key TEXT NOT NULL,
			body JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, key)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Document, bool, error) {
	return getPostgres(ctx, s.pool, collection, key)
}

func (s *PostgresStore) Set(ctx context.Context, collection, key string, doc Document) error {
	if err := upsertPostgres(ctx, s.pool, collection, key, doc); err != nil {
		return err
	}
	s.hub.notify(collection, key, doc, true)
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	s.hub.notify(collection, key, nil, false)
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, collection, field, equals string) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND body ->> $2 = $3 ORDER BY key`,
		collection, field, equals,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s where %s: %w", collection, field, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, collection, key string, fn UpdateFunc) (Document, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, key, err)
	}
	defer tx.Rollback(ctx)

	// The advisory lock also covers keys that do not exist yet, which FOR UPDATE cannot.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, watchKey(collection, key)); err != nil {
		return nil, fmt.Errorf("lock %s/%s: %w", collection, key, err)
	}

	current, exists, err := getPostgres(ctx, tx, collection, key)
	if err != nil {
		return nil, err
	}

	next, err := fn(current, exists)
	if err != nil {
		return current, err
	}

	if next == nil {
		_, err = tx.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND key = $2`, collection, key)
	} else {
		err = upsertPostgres(ctx, tx, collection, key, next)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, key, err)
	}

	s.hub.notify(collection, key, next, next != nil)
	return next, nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, collection, key string, onChange func(Document, bool)) (func(), error) {
	return subscribe(ctx, s, s.hub, collection, key, onChange)
}

type pgRowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func getPostgres(ctx context.Context, q pgRowQuerier, collection, key string) (Document, bool, error) {
	var body []byte
	err := q.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	doc, err := decodeDocument(body)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func upsertPostgres(ctx context.Context, ex pgExecer, collection, key string, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO documents (collection, key, body, updated_at) VALUES ($1, $2, $3::jsonb, NOW())
		 ON CONFLICT (collection, key) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		collection, key, string(body),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	return nil
}
