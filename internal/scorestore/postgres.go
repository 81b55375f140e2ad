package scorestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/pkg/types"
)

var _ Store = (*PostgresStore)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// DDL
// ─────────────────────────────────────────────────────────────────────────────

var ddl = fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS scores (
    id            TEXT         PRIMARY KEY,
    title         TEXT         NOT NULL DEFAULT '',
    source        TEXT         NOT NULL DEFAULT '',
    version       TEXT         NOT NULL DEFAULT '',
    generated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    total_frames  INTEGER      NOT NULL DEFAULT 0,
    document      JSONB        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scores_generated_at
    ON scores (generated_at DESC);

CREATE TABLE IF NOT EXISTS score_frames (
    score_id     TEXT         NOT NULL REFERENCES scores (id) ON DELETE CASCADE,
    frame_index  INTEGER      NOT NULL,
    speaker      TEXT         NOT NULL DEFAULT '',
    signature    vector(%d)   NOT NULL,
    frame        JSONB        NOT NULL,
    PRIMARY KEY (score_id, frame_index)
);

CREATE INDEX IF NOT EXISTS idx_score_frames_signature
    ON score_frames USING hnsw (signature vector_l2_ops);
`, SignatureDim)

// Migrate creates the score tables. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("scorestore: migrate: %w", err)
	}
	return nil
}

// PostgresStore is a [Store] on PostgreSQL with the pgvector extension.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, registers pgvector types on every
// connection and runs [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("scorestore: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("scorestore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("scorestore: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("scorestore: ping: %w", err)
	}
	return nil
}

// SaveScore implements [Store]. The score row and its frames are replaced in
// one transaction.
func (s *PostgresStore) SaveScore(ctx context.Context, score types.Score) error {
	if score.ID == "" {
		return fmt.Errorf("scorestore: save: score id is required")
	}
	head := score
	head.Frames = nil
	doc, err := json.Marshal(head)
	if err != nil {
		return fmt.Errorf("scorestore: save %q: encode score: %w", score.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scorestore: save %q: begin: %w", score.ID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	const upsert = `
		INSERT INTO scores (id, title, source, version, generated_at, total_frames, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    title        = EXCLUDED.title,
		    source       = EXCLUDED.source,
		    version      = EXCLUDED.version,
		    generated_at = EXCLUDED.generated_at,
		    total_frames = EXCLUDED.total_frames,
		    document     = EXCLUDED.document`
	if _, err := tx.Exec(ctx, upsert,
		score.ID, score.Title, score.Source, score.Version, score.GeneratedAt, len(score.Frames), doc,
	); err != nil {
		return fmt.Errorf("scorestore: save %q: upsert score: %w", score.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM score_frames WHERE score_id = $1`, score.ID); err != nil {
		return fmt.Errorf("scorestore: save %q: clear frames: %w", score.ID, err)
	}

	const insertFrame = `
		INSERT INTO score_frames (score_id, frame_index, speaker, signature, frame)
		VALUES ($1, $2, $3, $4, $5)`
	batch := &pgx.Batch{}
	for _, f := range score.Frames {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("scorestore: save %q: encode frame %d: %w", score.ID, f.Index, err)
		}
		batch.Queue(insertFrame, score.ID, f.Index, f.Speaker, pgvector.NewVector(Signature(f)), data)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("scorestore: save %q: insert frames: %w", score.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scorestore: save %q: commit: %w", score.ID, err)
	}
	return nil
}

// GetScore implements [Store].
func (s *PostgresStore) GetScore(ctx context.Context, id string) (types.Score, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM scores WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Score{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return types.Score{}, fmt.Errorf("scorestore: get %q: %w", id, err)
	}

	var score types.Score
	if err := json.Unmarshal(doc, &score); err != nil {
		return types.Score{}, fmt.Errorf("scorestore: get %q: decode score: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT frame
		FROM   score_frames
		WHERE  score_id = $1
		ORDER  BY frame_index`, id)
	if err != nil {
		return types.Score{}, fmt.Errorf("scorestore: get %q: query frames: %w", id, err)
	}
	frames, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Frame, error) {
		var (
			data []byte
			f    types.Frame
		)
		if err := row.Scan(&data); err != nil {
			return f, err
		}
		return f, json.Unmarshal(data, &f)
	})
	if err != nil {
		return types.Score{}, fmt.Errorf("scorestore: get %q: scan frames: %w", id, err)
	}
	score.Frames = frames
	return score, nil
}

// ListScores implements [Store].
func (s *PostgresStore) ListScores(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, generated_at, total_frames
		FROM   scores
		ORDER  BY generated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("scorestore: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var sum Summary
		err := row.Scan(&sum.ID, &sum.Title, &sum.GeneratedAt, &sum.TotalFrames)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("scorestore: list: scan rows: %w", err)
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// SimilarFrames implements [Store] using the pgvector L2 distance operator.
func (s *PostgresStore) SimilarFrames(ctx context.Context, vec []float32, k int) ([]FrameMatch, error) {
	if len(vec) != SignatureDim {
		return nil, fmt.Errorf("scorestore: similar frames: vector has %d dimensions, want %d", len(vec), SignatureDim)
	}
	if k <= 0 {
		return []FrameMatch{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT score_id, frame, signature <-> $1 AS distance
		FROM   score_frames
		ORDER  BY distance
		LIMIT  $2`, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("scorestore: similar frames: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (FrameMatch, error) {
		var (
			m    FrameMatch
			data []byte
		)
		if err := row.Scan(&m.ScoreID, &data, &m.Distance); err != nil {
			return m, err
		}
		return m, json.Unmarshal(data, &m.Frame)
	})
	if err != nil {
		return nil, fmt.Errorf("scorestore: similar frames: scan rows: %w", err)
	}
	if out == nil {
		out = []FrameMatch{}
	}
	return out, nil
}
