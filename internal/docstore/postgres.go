package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps every collection in a single documents table with a
// JSONB payload. Field queries go through the ->> operator, so the adapter
// needs no knowledge of the document shapes.
type PostgresStore struct {
	pool         *pgxpool.Pool
	pollInterval time.Duration
}

// NewPostgresStore constructs the adapter. pollInterval drives the Subscribe
// change feed; the store polls rather than using LISTEN/NOTIFY so the feed
// works against any Postgres without triggers.
func NewPostgresStore(pool *pgxpool.Pool, pollInterval time.Duration) *PostgresStore {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &PostgresStore{pool: pool, pollInterval: pollInterval}
}

func (p *PostgresStore) Insert(ctx context.Context, collection string, doc Doc) (string, error) {
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	stored := make(Doc, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored["id"] = id
	payload, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	// ON CONFLICT DO NOTHING keeps retried inserts idempotent.
	_, err = p.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, doc, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, id, payload, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (p *PostgresStore) Update(ctx context.Context, collection, id string, patch Doc) error {
	clean := make(Doc, len(patch))
	for k, v := range patch {
		if k == "id" {
			continue
		}
		clean[k] = v
	}
	payload, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE documents SET doc = doc || $3::jsonb
		WHERE collection=$1 AND id=$2
	`, collection, id, payload)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM documents WHERE collection=$1 AND id=$2
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, `
		SELECT doc FROM documents WHERE collection=$1 AND id=$2
	`, collection, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return decodeDoc(payload)
}

func (p *PostgresStore) QueryEquals(ctx context.Context, collection, field, value string) ([]Doc, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT doc FROM documents
		WHERE collection=$1 AND doc->>$2 = $3
		ORDER BY seq
	`, collection, field, value)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	return collectDocs(rows)
}

func (p *PostgresStore) List(ctx context.Context, collection string) ([]Doc, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT doc FROM documents WHERE collection=$1 ORDER BY seq
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return collectDocs(rows)
}

// Subscribe polls the collection and pushes a snapshot whenever its contents
// change. Good enough for the admin dashboard feed; not a real-time protocol.
func (p *PostgresStore) Subscribe(ctx context.Context, collection string) (<-chan []Doc, func(), error) {
	ch := make(chan []Doc, 1)
	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(ch)
		var last []byte
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			docs, err := p.List(subCtx, collection)
			if err == nil {
				fingerprint, _ := json.Marshal(docs)
				if !bytes.Equal(fingerprint, last) {
					last = fingerprint
					select {
					case ch <- docs:
					case <-subCtx.Done():
						return
					}
				}
			}
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch, cancel, nil
}

func decodeDoc(payload []byte) (Doc, error) {
	var doc Doc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func collectDocs(rows pgx.Rows) ([]Doc, error) {
	var out []Doc
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decodeDoc(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
