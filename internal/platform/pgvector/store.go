package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	pgv "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/dats-backend/internal/pkg/ctxutil"
	"github.com/yungbote/dats-backend/internal/pkg/envutil"
	"github.com/yungbote/dats-backend/internal/pkg/logger"
	"github.com/yungbote/dats-backend/internal/platform/vectorstore"
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Config struct {
	Table     string
	VectorDim int
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		Table:     envutil.String("PGVECTOR_TABLE", "dats_embeddings"),
		VectorDim: envutil.Int("VECTOR_DIM", 0),
	}
	if !identRe.MatchString(cfg.Table) {
		return Config{}, fmt.Errorf("PGVECTOR_TABLE %q is not a valid identifier", cfg.Table)
	}
	if cfg.VectorDim <= 0 {
		return Config{}, fmt.Errorf("VECTOR_DIM must be a positive integer for pgvector")
	}
	return cfg, nil
}

// Store keeps every namespace in one table keyed by (namespace, vector_id)
// and ranks by cosine distance.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
	cfg Config
}

var _ vectorstore.Store = (*Store)(nil)

type embeddingRow struct {
	Namespace string         `gorm:"column:namespace;primaryKey"`
	VectorID  string         `gorm:"column:vector_id;primaryKey"`
	Embedding pgv.Vector     `gorm:"column:embedding"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
}

func New(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg Config) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if db.Dialector.Name() != "postgres" {
		return nil, fmt.Errorf("pgvector requires postgres, got %s", db.Dialector.Name())
	}
	s := &Store{db: db, log: log.With("service", "PgVectorStore", "table", cfg.Table), cfg: cfg}
	if err := s.ensureSchema(ctxutil.Default(ctx)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			namespace text NOT NULL,
			vector_id text NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (namespace, vector_id)
		)`, s.cfg.Table, s.cfg.VectorDim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.cfg.Table, s.cfg.Table),
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("pgvector schema: %w", err)
		}
	}
	s.log.Info("pgvector schema ready", "dim", s.cfg.VectorDim)
	return nil
}

func (s *Store) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	rows := make([]embeddingRow, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Values) != s.cfg.VectorDim {
			return fmt.Errorf("vector %q has dim %d, want %d", v.ID, len(v.Values), s.cfg.VectorDim)
		}
		meta := v.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode metadata for %q: %w", v.ID, err)
		}
		rows = append(rows, embeddingRow{
			Namespace: namespace,
			VectorID:  v.ID,
			Embedding: pgv.NewVector(v.Values),
			Metadata:  datatypes.JSON(raw),
		})
	}
	return s.db.WithContext(ctxutil.Default(ctx)).
		Table(s.cfg.Table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "vector_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "metadata"}),
		}).
		CreateInBatches(rows, 200).Error
}

func (s *Store) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	if topK <= 0 {
		topK = 10
	}
	where, args, err := buildFilterSQL(filter)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf(
		`SELECT vector_id, metadata, embedding <=> ? AS distance FROM %s WHERE namespace = ?%s ORDER BY distance ASC, vector_id ASC LIMIT ?`,
		s.cfg.Table, where,
	)
	all := append([]any{pgv.NewVector(q), namespace}, args...)
	all = append(all, topK)

	rows, err := s.db.WithContext(ctxutil.Default(ctx)).Raw(sql, all...).Rows()
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.Match
	for rows.Next() {
		var (
			id       string
			raw      []byte
			distance float64
		)
		if err := rows.Scan(&id, &raw, &distance); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		meta, err := decodeMetadata(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, vectorstore.Match{ID: id, Score: 1 - distance, Metadata: meta})
	}
	return out, rows.Err()
}

func (s *Store) Fetch(ctx context.Context, namespace string, ids []string) ([]vectorstore.Vector, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.WithContext(ctxutil.Default(ctx)).
		Raw(fmt.Sprintf(`SELECT vector_id, embedding, metadata FROM %s WHERE namespace = ? AND vector_id IN ? ORDER BY vector_id`, s.cfg.Table), namespace, ids).
		Rows()
	if err != nil {
		return nil, fmt.Errorf("pgvector fetch: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.Vector
	for rows.Next() {
		var (
			id  string
			vec pgv.Vector
			raw []byte
		)
		if err := rows.Scan(&id, &vec, &raw); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		meta, err := decodeMetadata(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, vectorstore.Vector{ID: id, Values: vec.Slice(), Metadata: meta})
	}
	return out, rows.Err()
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctxutil.Default(ctx)).
		Exec(fmt.Sprintf(`DELETE FROM %s WHERE namespace = ? AND vector_id IN ?`, s.cfg.Table), namespace, ids).Error
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// buildFilterSQL renders a flat filter into " AND ..." clauses over the jsonb
// metadata column. Keys are emitted in sorted order.
func buildFilterSQL(filter map[string]any) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if !identRe.MatchString(k) {
			return "", nil, fmt.Errorf("unsupported filter key %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		b    strings.Builder
		args []any
	)
	for _, k := range keys {
		switch v := filter[k].(type) {
		case []string:
			if len(v) == 0 {
				return "", nil, fmt.Errorf("empty filter list for %q", k)
			}
			fmt.Fprintf(&b, " AND metadata->>'%s' IN ?", k)
			args = append(args, v)
		case []any:
			if len(v) == 0 {
				return "", nil, fmt.Errorf("empty filter list for %q", k)
			}
			vals := make([]string, 0, len(v))
			for _, x := range v {
				vals = append(vals, fmt.Sprint(x))
			}
			fmt.Fprintf(&b, " AND metadata->>'%s' IN ?", k)
			args = append(args, vals)
		case map[string]any:
			return "", nil, fmt.Errorf("nested filter for %q is unsupported", k)
		default:
			fmt.Fprintf(&b, " AND metadata->>'%s' = ?", k)
			args = append(args, fmt.Sprint(v))
		}
	}
	return b.String(), args, nil
}
