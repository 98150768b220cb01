package store

import (
	"context"
	"fmt"
	"time"

	"typetalk/api/internal/docstore"
)

type Questions struct {
	collection docstore.Collection
}

func (q *Questions) Insert(ctx context.Context, question Question) error {
	doc, err := toDoc(question)
	if err != nil {
		return err
	}
	if err := q.collection.Insert(ctx, doc); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (q *Questions) GetByID(ctx context.Context, id string) (Question, bool, error) {
	return q.getOne(ctx, docstore.Eq("id", id))
}

func (q *Questions) GetByURL(ctx context.Context, url string) (Question, bool, error) {
	return q.getOne(ctx, docstore.Eq("url", url))
}

func (q *Questions) getOne(ctx context.Context, cond docstore.Cond) (Question, bool, error) {
	doc, found, err := q.collection.FindOne(ctx, cond)
	if err != nil {
		return Question{}, false, fmt.Errorf("find question: %w", err)
	}
	if !found {
		return Question{}, false, nil
	}
	var question Question
	if err := fromDoc(doc, &question); err != nil {
		return Question{}, false, err
	}
	return question, true, nil
}

// ListNewest pages questions newest-first; a zero before means no cursor.
func (q *Questions) ListNewest(ctx context.Context, before time.Time, limit int) ([]Question, error) {
	query := docstore.Query{
		Sort:  docstore.Sort{Field: "dateCreated", Desc: true},
		Limit: limit,
	}
	if !before.IsZero() {
		query.Conds = append(query.Conds, docstore.Lt("dateCreated", before))
	}
	return q.list(ctx, query)
}

// ListBySubscriber returns every question the user subscribes to.
func (q *Questions) ListBySubscriber(ctx context.Context, userID string) ([]Question, error) {
	return q.list(ctx, docstore.Query{
		Conds: []docstore.Cond{docstore.Contains("subscriberIds", userID)},
		Sort:  docstore.Sort{Field: "dateCreated", Desc: true},
	})
}

func (q *Questions) list(ctx context.Context, query docstore.Query) ([]Question, error) {
	docs, err := q.collection.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	questions := make([]Question, 0, len(docs))
	for _, doc := range docs {
		var question Question
		if err := fromDoc(doc, &question); err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	return questions, nil
}

func (q *Questions) Count(ctx context.Context) (int, error) {
	count, err := q.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return count, nil
}

// AttachComment appends the comment id and marks the author in the commenter
// presence set in one record-atomic patch. Marking is idempotent: re-adding a
// present key leaves the set unchanged.
func (q *Questions) AttachComment(ctx context.Context, questionID, commentID, authorID string) error {
	matched, err := q.collection.UpdateOne(ctx,
		[]docstore.Cond{docstore.Eq("id", questionID)},
		docstore.Patch{
			Push:   map[string]string{"commentIds": commentID},
			SetKey: map[string]string{"commenterIds": authorID},
		})
	if err != nil {
		return fmt.Errorf("attach comment: %w", err)
	}
	if !matched {
		return fmt.Errorf("attach comment: question %s not found", questionID)
	}
	return nil
}

// MarkCommented records the author in the presence set without touching the
// comment list. Idempotent.
func (q *Questions) MarkCommented(ctx context.Context, questionID, authorID string) error {
	if _, err := q.collection.UpdateOne(ctx,
		[]docstore.Cond{docstore.Eq("id", questionID)},
		docstore.Patch{SetKey: map[string]string{"commenterIds": authorID}}); err != nil {
		return fmt.Errorf("mark commented: %w", err)
	}
	return nil
}

func (q *Questions) SetLike(ctx context.Context, questionID, userID string, liked bool) error {
	patch := docstore.Patch{Pull: map[string][]string{"likeIds": {userID}}}
	if liked {
		patch = docstore.Patch{Push: map[string]string{"likeIds": userID}}
	}
	if _, err := q.collection.UpdateOne(ctx, []docstore.Cond{docstore.Eq("id", questionID)}, patch); err != nil {
		return fmt.Errorf("set question like: %w", err)
	}
	return nil
}

func (q *Questions) SetSubscription(ctx context.Context, questionID, userID string, subscribed bool) error {
	patch := docstore.Patch{Pull: map[string][]string{"subscriberIds": {userID}}}
	if subscribed {
		patch = docstore.Patch{Push: map[string]string{"subscriberIds": userID}}
	}
	if _, err := q.collection.UpdateOne(ctx, []docstore.Cond{docstore.Eq("id", questionID)}, patch); err != nil {
		return fmt.Errorf("set subscription: %w", err)
	}
	return nil
}

// UpdateMeta rewrites the author-editable fields and flips the modified flag.
func (q *Questions) UpdateMeta(ctx context.Context, questionID, text, url string, now time.Time) (bool, error) {
	matched, err := q.collection.UpdateOne(ctx,
		[]docstore.Cond{docstore.Eq("id", questionID)},
		docstore.Patch{Set: map[string]any{
			"question":     text,
			"url":          url,
			"dateModified": timestamp(now),
			"modified":     true,
		}})
	if err != nil {
		return false, fmt.Errorf("update question: %w", err)
	}
	return matched, nil
}

func (q *Questions) Delete(ctx context.Context, questionID string) (bool, error) {
	deleted, err := q.collection.DeleteOne(ctx, docstore.Eq("id", questionID))
	if err != nil {
		return false, fmt.Errorf("delete question: %w", err)
	}
	return deleted, nil
}
