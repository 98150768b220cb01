// Package store is the typed access layer over the generic document-query
// capability. No business logic lives here; the adapters translate between
// domain records and docstore documents.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"typetalk/api/internal/docstore"
)

const (
	collectionQuestions = "questions"
	collectionComments  = "comments"
	collectionUsers     = "users"
	collectionRandos    = "randos"
)

// Stores bundles the typed adapters over one document store.
type Stores struct {
	Questions *Questions
	Comments  *Comments
	Authors   *Authors
}

func New(docs docstore.Store) *Stores {
	return &Stores{
		Questions: &Questions{collection: docs.Collection(collectionQuestions)},
		Comments:  &Comments{collection: docs.Collection(collectionComments)},
		Authors: &Authors{
			users:  docs.Collection(collectionUsers),
			randos: docs.Collection(collectionRandos),
		},
	}
}

func toDoc(record any) (docstore.Doc, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var doc docstore.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return doc, nil
}

func fromDoc(doc docstore.Doc, record any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, record); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// timestamp formats a patch value the way document timestamps are stored.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
