// Package docstore is the generic document-query capability the typed stores
// are built on: schemaless JSON documents grouped into named collections, with
// filtered finds, counts, and partial patches. Two backends exist, an
// in-process one for tests and development and a Postgres JSONB one for
// production.
package docstore

import (
	"context"
	"time"
)

// Doc is a single document in its JSON-compatible form. Timestamps are
// RFC 3339 strings, sets of ids are arrays of strings or objects with
// true-valued keys.
type Doc map[string]any

type Op string

const (
	// OpEq matches a string field exactly.
	OpEq Op = "eq"
	// OpGte and OpLt compare timestamp fields. The condition value must be a
	// time.Time and the stored field an RFC 3339 string.
	OpGte Op = "gte"
	OpLt  Op = "lt"
	// OpContains matches when a string-array field contains the value.
	OpContains Op = "contains"
)

type Cond struct {
	Field string
	Op    Op
	Value any
}

func Eq(field, value string) Cond        { return Cond{Field: field, Op: OpEq, Value: value} }
func Gte(field string, t time.Time) Cond { return Cond{Field: field, Op: OpGte, Value: t} }
func Lt(field string, t time.Time) Cond  { return Cond{Field: field, Op: OpLt, Value: t} }
func Contains(field, value string) Cond  { return Cond{Field: field, Op: OpContains, Value: value} }

// Sort orders a find. Non-ArrayLen sort fields must hold RFC 3339 timestamps;
// ArrayLen orders by the length of a string-array field (used for like counts).
type Sort struct {
	Field    string
	Desc     bool
	ArrayLen bool
}

type Query struct {
	Conds []Cond
	Sort  Sort
	Limit int
	Skip  int
}

// Patch describes a partial update. All parts apply to the same document in a
// single record-atomic write.
type Patch struct {
	// Set replaces top-level fields with JSON-compatible values.
	Set map[string]any
	// Push appends one value to a string-array field.
	Push map[string]string
	// Pull removes every occurrence of the given values from a string-array field.
	Pull map[string][]string
	// SetKey adds a key (value true) to an embedded string-set field.
	SetKey map[string]string
}

func (p Patch) empty() bool {
	return len(p.Set) == 0 && len(p.Push) == 0 && len(p.Pull) == 0 && len(p.SetKey) == 0
}

// Collection is the per-collection query surface. Find respects sort, skip and
// limit; Count never does. UpdateOne, DeleteOne report whether a document
// matched.
type Collection interface {
	Insert(ctx context.Context, doc Doc) error
	FindOne(ctx context.Context, conds ...Cond) (Doc, bool, error)
	Find(ctx context.Context, q Query) ([]Doc, error)
	Count(ctx context.Context, conds ...Cond) (int, error)
	UpdateOne(ctx context.Context, conds []Cond, patch Patch) (bool, error)
	DeleteOne(ctx context.Context, conds ...Cond) (bool, error)
	DeleteMany(ctx context.Context, conds ...Cond) (int, error)
}

type Store interface {
	Collection(name string) Collection
}
