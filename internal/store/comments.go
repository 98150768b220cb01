package store

import (
	"context"
	"fmt"
	"time"

	"typetalk/api/internal/docstore"
)

type Comments struct {
	collection docstore.Collection
}

// CommentPageQuery selects a page of comments. ParentID empty means all
// comments; zero time bounds are ignored.
type CommentPageQuery struct {
	ParentID   string
	CreatedGte time.Time
	CreatedLt  time.Time
	Sort       docstore.Sort
	Limit      int
	Skip       int
}

func (c *Comments) Insert(ctx context.Context, comment Comment) error {
	doc, err := toDoc(comment)
	if err != nil {
		return err
	}
	if err := c.collection.Insert(ctx, doc); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (c *Comments) GetByID(ctx context.Context, id string) (Comment, bool, error) {
	doc, found, err := c.collection.FindOne(ctx, docstore.Eq("id", id))
	if err != nil {
		return Comment{}, false, fmt.Errorf("find comment: %w", err)
	}
	if !found {
		return Comment{}, false, nil
	}
	var comment Comment
	if err := fromDoc(doc, &comment); err != nil {
		return Comment{}, false, err
	}
	return comment, true, nil
}

func (c *Comments) ListPage(ctx context.Context, page CommentPageQuery) ([]Comment, error) {
	query := docstore.Query{
		Sort:  page.Sort,
		Limit: page.Limit,
		Skip:  page.Skip,
	}
	if page.ParentID != "" {
		query.Conds = append(query.Conds, docstore.Eq("parentId", page.ParentID))
	}
	if !page.CreatedGte.IsZero() {
		query.Conds = append(query.Conds, docstore.Gte("dateCreated", page.CreatedGte))
	}
	if !page.CreatedLt.IsZero() {
		query.Conds = append(query.Conds, docstore.Lt("dateCreated", page.CreatedLt))
	}

	docs, err := c.collection.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	comments := make([]Comment, 0, len(docs))
	for _, doc := range docs {
		var comment Comment
		if err := fromDoc(doc, &comment); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// CountByParent counts the whole thread; an empty parent counts everything.
// Temporal cutoffs never apply here: the UI total is window-independent.
func (c *Comments) CountByParent(ctx context.Context, parentID string) (int, error) {
	var conds []docstore.Cond
	if parentID != "" {
		conds = append(conds, docstore.Eq("parentId", parentID))
	}
	count, err := c.collection.Count(ctx, conds...)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}

// HasByParentAndAuthor reports whether the author already commented on the
// parent. Backs the self-healing side of the dedup check.
func (c *Comments) HasByParentAndAuthor(ctx context.Context, parentID, authorID string) (bool, error) {
	_, found, err := c.collection.FindOne(ctx, docstore.Eq("parentId", parentID), docstore.Eq("authorId", authorID))
	if err != nil {
		return false, fmt.Errorf("find comment by author: %w", err)
	}
	return found, nil
}

// HasByParentAndOrigin reports whether any comment on the parent carries the
// network-origin tag.
func (c *Comments) HasByParentAndOrigin(ctx context.Context, parentID, origin string) (bool, error) {
	_, found, err := c.collection.FindOne(ctx, docstore.Eq("parentId", parentID), docstore.Eq("ip", origin))
	if err != nil {
		return false, fmt.Errorf("find comment by origin: %w", err)
	}
	return found, nil
}

// PushChild appends a reply id to a comment's child list.
func (c *Comments) PushChild(ctx context.Context, parentID, childID string) error {
	matched, err := c.collection.UpdateOne(ctx,
		[]docstore.Cond{docstore.Eq("id", parentID)},
		docstore.Patch{Push: map[string]string{"commentIds": childID}})
	if err != nil {
		return fmt.Errorf("push child comment: %w", err)
	}
	if !matched {
		return fmt.Errorf("push child comment: comment %s not found", parentID)
	}
	return nil
}

// UpdateText rewrites the body, original author only.
func (c *Comments) UpdateText(ctx context.Context, commentID, authorID, text string, now time.Time) (bool, error) {
	matched, err := c.collection.UpdateOne(ctx,
		[]docstore.Cond{docstore.Eq("id", commentID), docstore.Eq("authorId", authorID)},
		docstore.Patch{Set: map[string]any{
			"comment":      text,
			"dateModified": timestamp(now),
			"modified":     true,
		}})
	if err != nil {
		return false, fmt.Errorf("update comment: %w", err)
	}
	return matched, nil
}

func (c *Comments) SetLike(ctx context.Context, commentID, userID string, liked bool) error {
	patch := docstore.Patch{Pull: map[string][]string{"likeIds": {userID}}}
	if liked {
		patch = docstore.Patch{Push: map[string]string{"likeIds": userID}}
	}
	if _, err := c.collection.UpdateOne(ctx, []docstore.Cond{docstore.Eq("id", commentID)}, patch); err != nil {
		return fmt.Errorf("set comment like: %w", err)
	}
	return nil
}

func (c *Comments) Delete(ctx context.Context, commentID string) (bool, error) {
	deleted, err := c.collection.DeleteOne(ctx, docstore.Eq("id", commentID))
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	return deleted, nil
}
