package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/snapp/backend/internal/domain"
)

// PGConfig holds PostgreSQL connection settings for the pgvector index.
type PGConfig struct {
	DSN             string
	Dimensions      int
	MaxConns        int32
	MaxConnLifetime time.Duration
	MigrateOnStart  bool
}

func (c *PGConfig) defaults() {
	if c.Dimensions == 0 {
		c.Dimensions = 512
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
}

// PGVectorIndex serves nearest-neighbour queries from PostgreSQL with the
// pgvector extension, using cosine distance.
type PGVectorIndex struct {
	pool *pgxpool.Pool
	dims int
}

var _ domain.VectorIndex = (*PGVectorIndex)(nil)

// NewPGVectorIndex connects to PostgreSQL and optionally creates the schema.
func NewPGVectorIndex(ctx context.Context, cfg PGConfig) (*PGVectorIndex, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	x := &PGVectorIndex{pool: pool, dims: cfg.Dimensions}
	if cfg.MigrateOnStart {
		if err := x.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return x, nil
}

func (x *PGVectorIndex) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS product_embeddings (
			product_id TEXT PRIMARY KEY,
			category   TEXT NOT NULL DEFAULT '',
			brand      TEXT NOT NULL DEFAULT '',
			metadata   JSONB NOT NULL DEFAULT '{}',
			embedding  vector(%d) NOT NULL
		)`, x.dims),
		`CREATE INDEX IF NOT EXISTS idx_product_embeddings_category ON product_embeddings (category)`,
	}
	for _, stmt := range stmts {
		if _, err := x.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Upsert inserts or replaces embeddings.
func (x *PGVectorIndex) Upsert(ctx context.Context, entries ...Entry) error {
	for _, e := range entries {
		if len(e.Embedding) != x.dims {
			return fmt.Errorf("embedding for %s has %d dimensions, want %d", e.ProductID, len(e.Embedding), x.dims)
		}
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", e.ProductID, err)
		}
		if _, err := x.pool.Exec(ctx, `
			INSERT INTO product_embeddings (product_id, category, brand, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (product_id) DO UPDATE SET
				category = EXCLUDED.category, brand = EXCLUDED.brand,
				metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`,
			e.ProductID, e.Category, e.Brand, meta, pgvector.NewVector(e.Embedding),
		); err != nil {
			return fmt.Errorf("upserting embedding %s: %w", e.ProductID, err)
		}
	}
	return nil
}

// Query returns up to topK neighbours ordered by cosine similarity (1 - cosine distance).
func (x *PGVectorIndex) Query(ctx context.Context, embedding []float32, filter domain.VectorFilter, topK int) ([]domain.Neighbor, error) {
	if topK <= 0 {
		return []domain.Neighbor{}, nil
	}

	rows, err := x.pool.Query(ctx, `
		SELECT product_id, metadata, 1 - (embedding <=> $1) AS score
		FROM product_embeddings
		WHERE ($2 = '' OR category = $2) AND ($3 = '' OR brand = $3)
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(embedding), filter.Category, filter.Brand, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	out := []domain.Neighbor{}
	for rows.Next() {
		var n domain.Neighbor
		var meta []byte
		if err := rows.Scan(&n.ProductID, &meta, &n.Score); err != nil {
			return nil, fmt.Errorf("scanning neighbour: %w", err)
		}
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", n.ProductID, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating neighbours: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (x *PGVectorIndex) Close() {
	x.pool.Close()
}
