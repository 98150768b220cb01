package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps collections in process memory. It backs the test suites
// and local development; semantics mirror the Postgres backend, with documents
// held in insertion order.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Doc
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Doc)}
}

func (s *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: s, name: name}
}

type memoryCollection struct {
	store *MemoryStore
	name  string
}

func (c *memoryCollection) Insert(_ context.Context, doc Doc) error {
	cloned, err := cloneDoc(doc)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", c.name, err)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.collections[c.name] = append(c.store.collections[c.name], cloned)
	return nil
}

func (c *memoryCollection) FindOne(_ context.Context, conds ...Cond) (Doc, bool, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	for _, doc := range c.store.collections[c.name] {
		if matchesAll(doc, conds) {
			cloned, err := cloneDoc(doc)
			if err != nil {
				return nil, false, fmt.Errorf("find in %s: %w", c.name, err)
			}
			return cloned, true, nil
		}
	}
	return nil, false, nil
}

func (c *memoryCollection) Find(_ context.Context, q Query) ([]Doc, error) {
	c.store.mu.RLock()
	matched := make([]Doc, 0)
	for _, doc := range c.store.collections[c.name] {
		if matchesAll(doc, q.Conds) {
			matched = append(matched, doc)
		}
	}
	c.store.mu.RUnlock()

	if q.Sort.Field != "" {
		sortDocs(matched, q.Sort)
	}
	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Skip:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	results := make([]Doc, 0, len(matched))
	for _, doc := range matched {
		cloned, err := cloneDoc(doc)
		if err != nil {
			return nil, fmt.Errorf("find in %s: %w", c.name, err)
		}
		results = append(results, cloned)
	}
	return results, nil
}

func (c *memoryCollection) Count(_ context.Context, conds ...Cond) (int, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	count := 0
	for _, doc := range c.store.collections[c.name] {
		if matchesAll(doc, conds) {
			count++
		}
	}
	return count, nil
}

func (c *memoryCollection) UpdateOne(_ context.Context, conds []Cond, patch Patch) (bool, error) {
	if patch.empty() {
		return false, nil
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs := c.store.collections[c.name]
	for i, doc := range docs {
		if matchesAll(doc, conds) {
			patched, err := cloneDoc(doc)
			if err != nil {
				return false, fmt.Errorf("update in %s: %w", c.name, err)
			}
			applyPatch(patched, patch)
			docs[i] = patched
			return true, nil
		}
	}
	return false, nil
}

func (c *memoryCollection) DeleteOne(_ context.Context, conds ...Cond) (bool, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	docs := c.store.collections[c.name]
	for i, doc := range docs {
		if matchesAll(doc, conds) {
			c.store.collections[c.name] = append(docs[:i:i], docs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (c *memoryCollection) DeleteMany(_ context.Context, conds ...Cond) (int, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	kept := make([]Doc, 0)
	deleted := 0
	for _, doc := range c.store.collections[c.name] {
		if matchesAll(doc, conds) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	c.store.collections[c.name] = kept
	return deleted, nil
}

func cloneDoc(doc Doc) (Doc, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var cloned Doc
	if err := json.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return cloned, nil
}

func matchesAll(doc Doc, conds []Cond) bool {
	for _, cond := range conds {
		if !matches(doc, cond) {
			return false
		}
	}
	return true
}

func matches(doc Doc, cond Cond) bool {
	value, ok := doc[cond.Field]
	switch cond.Op {
	case OpEq:
		want, _ := cond.Value.(string)
		got, isString := value.(string)
		return ok && isString && got == want
	case OpGte, OpLt:
		want, isTime := cond.Value.(time.Time)
		if !ok || !isTime {
			return false
		}
		got, parsed := fieldTime(value)
		if !parsed {
			return false
		}
		if cond.Op == OpGte {
			return !got.Before(want)
		}
		return got.Before(want)
	case OpContains:
		want, _ := cond.Value.(string)
		items, isArray := value.([]any)
		if !ok || !isArray {
			return false
		}
		for _, item := range items {
			if s, isString := item.(string); isString && s == want {
				return true
			}
		}
		return false
	}
	return false
}

func fieldTime(value any) (time.Time, bool) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func sortDocs(docs []Doc, by Sort) {
	sort.SliceStable(docs, func(i, j int) bool {
		less := docLess(docs[i], docs[j], by)
		if by.Desc {
			return docLess(docs[j], docs[i], by)
		}
		return less
	})
}

func docLess(a, b Doc, by Sort) bool {
	if by.ArrayLen {
		return arrayLen(a[by.Field]) < arrayLen(b[by.Field])
	}
	at, aok := fieldTime(a[by.Field])
	bt, bok := fieldTime(b[by.Field])
	if !aok || !bok {
		return !aok && bok
	}
	return at.Before(bt)
}

func arrayLen(value any) int {
	items, ok := value.([]any)
	if !ok {
		return 0
	}
	return len(items)
}

func applyPatch(doc Doc, patch Patch) {
	for field, value := range patch.Set {
		doc[field] = value
	}
	for field, value := range patch.Push {
		items, _ := doc[field].([]any)
		doc[field] = append(items, value)
	}
	for field, values := range patch.Pull {
		items, _ := doc[field].([]any)
		kept := make([]any, 0, len(items))
		for _, item := range items {
			s, isString := item.(string)
			if isString && contains(values, s) {
				continue
			}
			kept = append(kept, item)
		}
		doc[field] = kept
	}
	for field, key := range patch.SetKey {
		set, _ := doc[field].(map[string]any)
		if set == nil {
			set = make(map[string]any)
		}
		set[key] = true
		doc[field] = set
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
