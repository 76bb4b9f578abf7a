package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Repository defines memory persistence operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry, embedding []float32) error
	CreateBatch(ctx context.Context, entries []*Entry, embeddings [][]float32) error
	SearchSimilar(ctx context.Context, userID string, embedding []float32, limit int) ([]Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ErrNotFound is returned when a delete targets a missing entry.
var ErrNotFound = fmt.Errorf("memory entry not found")

// PostgresRepository implements Repository using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new memory repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, entry *Entry, embedding []float32) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	vec := pgvector.NewVector(embedding)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO memories (id, user_id, source, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.Source, entry.Content, vec, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting memory entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateBatch(ctx context.Context, entries []*Entry, embeddings [][]float32) error {
	if len(entries) != len(embeddings) {
		return fmt.Errorf("entries/embeddings length mismatch: %d vs %d", len(entries), len(embeddings))
	}

	batch := &pgx.Batch{}
	for i, entry := range entries {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		batch.Queue(
			`INSERT INTO memories (id, user_id, source, content, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			entry.ID, entry.UserID, entry.Source, entry.Content, pgvector.NewVector(embeddings[i]), entry.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting memory batch: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) SearchSimilar(ctx context.Context, userID string, embedding []float32, limit int) ([]Entry, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, source, content, created_at
		 FROM memories
		 WHERE user_id = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		userID, vec, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar memories: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *PostgresRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, source, content, created_at
		 FROM memories
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting memory entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Source, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
