package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to Postgres with the pool settings shared by the service.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// PostgresStore keeps every collection in a single JSONB documents table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the documents table and its lookup indexes.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			pk BIGSERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			doc JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection)`,
		`CREATE INDEX IF NOT EXISTS documents_collection_id_idx ON documents (collection, (doc->>'id'))`,
		`CREATE INDEX IF NOT EXISTS documents_collection_parent_idx ON documents (collection, (doc->>'parentId'))`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Collection(name string) Collection {
	return &postgresCollection{db: s.db, name: name}
}

type postgresCollection struct {
	db   *sql.DB
	name string
}

func (c *postgresCollection) Insert(ctx context.Context, doc Doc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (collection, doc) VALUES ($1, $2)`, c.name, raw); err != nil {
		return fmt.Errorf("insert into %s: %w", c.name, err)
	}
	return nil
}

func (c *postgresCollection) FindOne(ctx context.Context, conds ...Cond) (Doc, bool, error) {
	where, args := buildWhere(c.name, conds)
	query := `SELECT doc FROM documents WHERE ` + where + ` ORDER BY pk LIMIT 1`
	var raw []byte
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find in %s: %w", c.name, err)
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("decode document: %w", err)
	}
	return doc, true, nil
}

func (c *postgresCollection) Find(ctx context.Context, q Query) ([]Doc, error) {
	where, args := buildWhere(c.name, q.Conds)
	query := `SELECT doc FROM documents WHERE ` + where
	if q.Sort.Field != "" {
		query += ` ORDER BY ` + sortExpr(q.Sort) + `, pk`
	} else {
		query += ` ORDER BY pk`
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}
	if q.Skip > 0 {
		query += fmt.Sprintf(` OFFSET %d`, q.Skip)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	defer rows.Close()

	docs := make([]Doc, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc Doc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	return docs, nil
}

func (c *postgresCollection) Count(ctx context.Context, conds ...Cond) (int, error) {
	where, args := buildWhere(c.name, conds)
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count in %s: %w", c.name, err)
	}
	return count, nil
}

func (c *postgresCollection) UpdateOne(ctx context.Context, conds []Cond, patch Patch) (bool, error) {
	if patch.empty() {
		return false, nil
	}
	where, args := buildWhere(c.name, conds)
	expr, args, err := patchExpr(patch, args)
	if err != nil {
		return false, fmt.Errorf("update in %s: %w", c.name, err)
	}
	query := `UPDATE documents SET doc = ` + expr + ` WHERE pk = (
		SELECT pk FROM documents WHERE ` + where + ` ORDER BY pk LIMIT 1)`
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update in %s: %w", c.name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update in %s: %w", c.name, err)
	}
	return affected > 0, nil
}

func (c *postgresCollection) DeleteOne(ctx context.Context, conds ...Cond) (bool, error) {
	where, args := buildWhere(c.name, conds)
	query := `DELETE FROM documents WHERE pk = (
		SELECT pk FROM documents WHERE ` + where + ` ORDER BY pk LIMIT 1)`
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete in %s: %w", c.name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete in %s: %w", c.name, err)
	}
	return affected > 0, nil
}

func (c *postgresCollection) DeleteMany(ctx context.Context, conds ...Cond) (int, error) {
	where, args := buildWhere(c.name, conds)
	result, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete in %s: %w", c.name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete in %s: %w", c.name, err)
	}
	return int(affected), nil
}

func buildWhere(collection string, conds []Cond) (string, []any) {
	clauses := []string{"collection = $1"}
	args := []any{collection}
	for _, cond := range conds {
		placeholder := fmt.Sprintf("$%d", len(args)+1)
		switch cond.Op {
		case OpEq:
			clauses = append(clauses, fmt.Sprintf("doc->>%s = %s", quoteLiteral(cond.Field), placeholder))
			args = append(args, cond.Value)
		case OpGte:
			clauses = append(clauses, fmt.Sprintf("(doc->>%s)::timestamptz >= %s", quoteLiteral(cond.Field), placeholder))
			args = append(args, condTime(cond))
		case OpLt:
			clauses = append(clauses, fmt.Sprintf("(doc->>%s)::timestamptz < %s", quoteLiteral(cond.Field), placeholder))
			args = append(args, condTime(cond))
		case OpContains:
			clauses = append(clauses, fmt.Sprintf("doc->%s ? %s", quoteLiteral(cond.Field), placeholder))
			args = append(args, cond.Value)
		}
	}
	return strings.Join(clauses, " AND "), args
}

func condTime(cond Cond) time.Time {
	t, _ := cond.Value.(time.Time)
	return t
}

func sortExpr(by Sort) string {
	direction := "ASC"
	if by.Desc {
		direction = "DESC"
	}
	if by.ArrayLen {
		return fmt.Sprintf("jsonb_array_length(COALESCE(doc->%s, '[]'::jsonb)) %s", quoteLiteral(by.Field), direction)
	}
	return fmt.Sprintf("(doc->>%s)::timestamptz %s", quoteLiteral(by.Field), direction)
}

// patchExpr builds a nested jsonb expression applying every part of the patch
// in one UPDATE, so the write stays record-atomic.
func patchExpr(patch Patch, args []any) (string, []any, error) {
	expr := "doc"
	for field, value := range patch.Set {
		raw, err := json.Marshal(value)
		if err != nil {
			return "", nil, fmt.Errorf("encode patch value for %s: %w", field, err)
		}
		placeholder := fmt.Sprintf("$%d", len(args)+1)
		args = append(args, string(raw))
		expr = fmt.Sprintf("jsonb_set(%s, %s, %s::jsonb)", expr, pathLiteral(field), placeholder)
	}
	for field, value := range patch.Push {
		placeholder := fmt.Sprintf("$%d", len(args)+1)
		args = append(args, value)
		expr = fmt.Sprintf("jsonb_set(%s, %s, COALESCE(doc->%s, '[]'::jsonb) || to_jsonb(%s::text))",
			expr, pathLiteral(field), quoteLiteral(field), placeholder)
	}
	for field, values := range patch.Pull {
		pulled := fmt.Sprintf("COALESCE(doc->%s, '[]'::jsonb)", quoteLiteral(field))
		for _, value := range values {
			placeholder := fmt.Sprintf("$%d", len(args)+1)
			args = append(args, value)
			pulled = fmt.Sprintf("(%s - %s::text)", pulled, placeholder)
		}
		expr = fmt.Sprintf("jsonb_set(%s, %s, %s)", expr, pathLiteral(field), pulled)
	}
	for field, key := range patch.SetKey {
		placeholder := fmt.Sprintf("$%d", len(args)+1)
		args = append(args, key)
		expr = fmt.Sprintf("jsonb_set(%s, %s, COALESCE(doc->%s, '{}'::jsonb) || jsonb_build_object(%s::text, true))",
			expr, pathLiteral(field), quoteLiteral(field), placeholder)
	}
	return expr, args, nil
}

// quoteLiteral embeds a field name as a SQL string literal. Field names come
// from the typed stores, never from callers.
func quoteLiteral(field string) string {
	return "'" + strings.ReplaceAll(field, "'", "''") + "'"
}

func pathLiteral(field string) string {
	return "'{" + strings.ReplaceAll(field, "'", "''") + "}'"
}
