package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/ragflow/log"
)

// ErrNotFound is returned by GetDocument for an unknown id.
var ErrNotFound = errors.New("document not found")

// defaultMaxConns bounds the connection pool; the retriever acquires and
// releases per query and never retains a connection across suspensions.
const defaultMaxConns = 10

// PgxQuerier is the subset of pgxpool.Pool the store uses. pgxmock
// satisfies it in tests.
type PgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a Postgres table with pgvector dense
// columns (embedding_korean, embedding_english) and tsvector lexical
// columns (search_vector_korean, search_vector_english).
type PostgresStore struct {
	db     PgxQuerier
	pool   *pgxpool.Pool
	table  string
	logger log.Logger
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTable sets the documents table name (default "documents").
func WithTable(table string) PostgresOption {
	return func(s *PostgresStore) {
		s.table = table
	}
}

// WithLogger sets the store logger.
func WithLogger(logger log.Logger) PostgresOption {
	return func(s *PostgresStore) {
		s.logger = logger
	}
}

// NewPostgresStore connects a pooled Postgres store.
func NewPostgresStore(ctx context.Context, connString string, opts ...PostgresOption) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns == 0 || cfg.MaxConns > defaultMaxConns {
		cfg.MaxConns = defaultMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := newPostgresStore(pool, opts...)
	s.pool = pool
	return s, nil
}

// NewPostgresStoreWithDB wraps an existing querier (a pool or a mock).
func NewPostgresStoreWithDB(db PgxQuerier, opts ...PostgresOption) *PostgresStore {
	return newPostgresStore(db, opts...)
}

func newPostgresStore(db PgxQuerier, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:     db,
		table:  "documents",
		logger: log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the connection pool, if this store owns one.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const documentColumns = `id, content, source, page, category, COALESCE(caption, ''), entity, COALESCE(human_feedback, ''), COALESCE(image_path, '')`

// DenseSearch implements Store.
func (s *PostgresStore) DenseSearch(ctx context.Context, language string, embedding []float32, filter Filter, limit int) ([]Document, error) {
	col := embeddingColumn(language)
	where, args := buildWhere(filter, 2)

	sql := fmt.Sprintf(
		`SELECT %s, 1 - (%s <=> $1::vector) AS similarity FROM %s WHERE %s ORDER BY %s <=> $1::vector LIMIT %d`,
		documentColumns, col, s.table, where, col, limit,
	)
	args = append([]any{vectorLiteral(embedding)}, args...)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows, true)
		if err != nil {
			return nil, fmt.Errorf("dense search scan: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dense search rows: %w", err)
	}
	s.logger.Debug("dense search (%s): %d documents", language, len(docs))
	return docs, nil
}

// LexicalSearch implements Store.
func (s *PostgresStore) LexicalSearch(ctx context.Context, language string, expression string, filter Filter, limit int) ([]Document, error) {
	col := searchVectorColumn(language)
	where, args := buildWhere(filter, 2)

	sql := fmt.Sprintf(
		`SELECT %s, ts_rank(%s, to_tsquery('simple', $1)) AS rank FROM %s WHERE %s @@ to_tsquery('simple', $1) AND %s ORDER BY rank DESC LIMIT %d`,
		documentColumns, col, s.table, col, where, limit,
	)
	args = append([]any{expression}, args...)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows, false)
		if err != nil {
			return nil, fmt.Errorf("lexical search scan: %w", err)
		}
		doc.LexicalRank = len(docs) + 1
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexical search rows: %w", err)
	}
	s.logger.Debug("lexical search (%s) %q: %d documents", language, expression, len(docs))
	return docs, nil
}

// GetDocument implements Store.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, documentColumns, s.table)

	row := s.db.QueryRow(ctx, sql, id)
	doc, err := scanDocumentRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// GetMetadata implements Store.
func (s *PostgresStore) GetMetadata(ctx context.Context) (MetadataSnapshot, error) {
	var snap MetadataSnapshot

	sources, err := s.distinctStrings(ctx, fmt.Sprintf(
		`SELECT DISTINCT source FROM %s ORDER BY source`, s.table))
	if err != nil {
		return snap, fmt.Errorf("metadata sources: %w", err)
	}
	snap.Sources = sources

	categories, err := s.distinctStrings(ctx, fmt.Sprintf(
		`SELECT DISTINCT category FROM %s ORDER BY category`, s.table))
	if err != nil {
		return snap, fmt.Errorf("metadata categories: %w", err)
	}
	snap.Categories = categories

	entityTypes, err := s.distinctStrings(ctx, fmt.Sprintf(
		`SELECT DISTINCT entity->>'type' FROM %s WHERE entity IS NOT NULL AND entity->>'type' IS NOT NULL ORDER BY 1`, s.table))
	if err != nil {
		return snap, fmt.Errorf("metadata entity types: %w", err)
	}
	snap.EntityTypes = entityTypes

	entityCategories, err := s.distinctStrings(ctx, fmt.Sprintf(
		`SELECT DISTINCT category FROM %s WHERE entity IS NOT NULL ORDER BY category`, s.table))
	if err != nil {
		return snap, fmt.Errorf("metadata entity categories: %w", err)
	}
	snap.EntityCategories = entityCategories

	row := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT COALESCE(MIN(page), 0), COALESCE(MAX(page), 0) FROM %s`, s.table))
	if err := row.Scan(&snap.Pages.Min, &snap.Pages.Max); err != nil {
		return snap, fmt.Errorf("metadata page range: %w", err)
	}

	return snap, nil
}

func (s *PostgresStore) distinctStrings(ctx context.Context, sql string) ([]string, error) {
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(rows pgx.Rows, dense bool) (Document, error) {
	var (
		doc    Document
		entity []byte
		score  float64
	)
	err := rows.Scan(
		&doc.ID, &doc.Content,
		&doc.Metadata.Source, &doc.Metadata.Page, &doc.Metadata.Category,
		&doc.Metadata.Caption, &entity, &doc.Metadata.HumanFeedback,
		&doc.Metadata.ImagePath, &score,
	)
	if err != nil {
		return Document{}, err
	}
	if dense {
		doc.Similarity = score
	}
	if err := attachEntity(&doc, entity); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func scanDocumentRow(row rowScanner) (Document, error) {
	var (
		doc    Document
		entity []byte
	)
	err := row.Scan(
		&doc.ID, &doc.Content,
		&doc.Metadata.Source, &doc.Metadata.Page, &doc.Metadata.Category,
		&doc.Metadata.Caption, &entity, &doc.Metadata.HumanFeedback,
		&doc.Metadata.ImagePath,
	)
	if err != nil {
		return Document{}, err
	}
	if err := attachEntity(&doc, entity); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func attachEntity(doc *Document, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var e Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("decode entity for %s: %w", doc.ID, err)
	}
	doc.Metadata.Entity = &e
	return nil
}

// buildWhere renders the filter as a positional-parameter WHERE clause
// starting at $start. An empty filter renders as "1=1".
func buildWhere(f Filter, start int) (string, []any) {
	var (
		conds []string
		args  []any
		n     = start - 1
	)
	next := func() int {
		n++
		return n
	}

	if len(f.Sources) > 0 {
		conds = append(conds, fmt.Sprintf("source = ANY($%d)", next()))
		args = append(args, f.Sources)
	}
	if len(f.Pages) > 0 {
		conds = append(conds, fmt.Sprintf("page = ANY($%d)", next()))
		args = append(args, f.Pages)
	}
	if len(f.Categories) > 0 {
		conds = append(conds, fmt.Sprintf("category = ANY($%d)", next()))
		args = append(args, f.Categories)
	}
	if f.CaptionContains != "" {
		conds = append(conds, fmt.Sprintf("caption ILIKE $%d", next()))
		args = append(args, "%"+f.CaptionContains+"%")
	}
	if f.Entity != nil {
		var entityConds []string
		if f.Entity.Type != "" {
			entityConds = append(entityConds, fmt.Sprintf("entity->>'type' = $%d", next()))
			args = append(args, f.Entity.Type)
		}
		if f.Entity.Title != "" {
			entityConds = append(entityConds, fmt.Sprintf("entity->>'title' ILIKE $%d", next()))
			args = append(args, "%"+f.Entity.Title+"%")
		}
		if len(f.Entity.Keywords) > 0 {
			entityConds = append(entityConds, fmt.Sprintf("entity->'keywords' ?| $%d", next()))
			args = append(args, f.Entity.Keywords)
		}
		if len(entityConds) > 0 {
			conds = append(conds, "("+strings.Join(entityConds, " AND ")+")")
		}
	}

	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

func embeddingColumn(language string) string {
	if language == LanguageKorean {
		return "embedding_korean"
	}
	return "embedding_english"
}

func searchVectorColumn(language string) string {
	if language == LanguageKorean {
		return "search_vector_korean"
	}
	return "search_vector_english"
}

// vectorLiteral renders an embedding in pgvector input syntax.
func vectorLiteral(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
