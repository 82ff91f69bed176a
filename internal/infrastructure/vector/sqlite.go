package vector

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/snapp/backend/internal/domain"
)

// SQLiteIndex is a brute-force cosine index over the catalog's
// product_embeddings table. It suits catalogs up to roughly 100K products.
type SQLiteIndex struct {
	db *sql.DB
}

var _ domain.VectorIndex = (*SQLiteIndex)(nil)

// NewSQLiteIndex wraps a catalog database whose migrations created product_embeddings.
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// Entry is one indexed product embedding.
type Entry struct {
	ProductID string
	Category  string
	Brand     string
	Metadata  map[string]string
	Embedding []float32
}

// Upsert inserts or replaces embeddings.
func (x *SQLiteIndex) Upsert(ctx context.Context, entries ...Entry) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO product_embeddings (product_id, category, brand, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			category = excluded.category, brand = excluded.brand,
			metadata = excluded.metadata, embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %s: %w", e.ProductID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ProductID, e.Category, e.Brand, string(meta), encodeFloat32s(e.Embedding)); err != nil {
			return fmt.Errorf("upserting embedding %s: %w", e.ProductID, err)
		}
	}
	return tx.Commit()
}

type scored struct {
	id       string
	score    float64
	metadata string
}

type scoredHeap []scored

func (h scoredHeap) Len() int           { return len(h) }
func (h scoredHeap) Less(i, j int) bool { return h[i].score < h[j].score }
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)        { *h = append(*h, x.(scored)) }
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Query returns up to topK neighbours of embedding, most similar first.
func (x *SQLiteIndex) Query(ctx context.Context, embedding []float32, filter domain.VectorFilter, topK int) ([]domain.Neighbor, error) {
	if topK <= 0 {
		return []domain.Neighbor{}, nil
	}
	queryNorm := norm(embedding)
	if queryNorm == 0 {
		return []domain.Neighbor{}, nil
	}

	var where []string
	var args []any
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Brand != "" {
		where = append(where, "brand = ?")
		args = append(args, filter.Brand)
	}
	query := `SELECT product_id, metadata, embedding FROM product_embeddings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	h := &scoredHeap{}
	var buf []float32
	for rows.Next() {
		var id, meta string
		var blob []byte
		if err := rows.Scan(&id, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		if buf, err = decodeFloat32sInto(buf, blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(embedding, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, scored{id: id, score: score, metadata: meta})
		} else if score > (*h)[0].score {
			(*h)[0] = scored{id: id, score: score, metadata: meta}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	out := make([]domain.Neighbor, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item := heap.Pop(h).(scored)
		var meta map[string]string
		if err := json.Unmarshal([]byte(item.metadata), &meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", item.id, err)
		}
		out[i] = domain.Neighbor{ProductID: item.id, Score: item.score, Metadata: meta}
	}
	return out, nil
}
