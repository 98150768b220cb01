package docstore

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func seedComments(t *testing.T, c Collection, n int, base time.Time) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		doc := Doc{
			"id":          fmt.Sprintf("c%d", i),
			"parentId":    "q1",
			"authorId":    fmt.Sprintf("a%d", i),
			"likeIds":     []any{},
			"dateCreated": base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339Nano),
		}
		if err := c.Insert(ctx, doc); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func TestMemoryFindSortLimitSkip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Collection("comments")
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	seedComments(t, c, 5, base)

	docs, err := c.Find(ctx, Query{
		Conds: []Cond{Eq("parentId", "q1")},
		Sort:  Sort{Field: "dateCreated", Desc: true},
		Limit: 2,
		Skip:  1,
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0]["id"] != "c3" || docs[1]["id"] != "c2" {
		t.Errorf("got ids %v, %v; want c3, c2", docs[0]["id"], docs[1]["id"])
	}
}

func TestMemoryTimeRangeConds(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Collection("comments")
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	seedComments(t, c, 5, base)

	docs, err := c.Find(ctx, Query{
		Conds: []Cond{Gte("dateCreated", base.Add(2 * time.Minute))},
		Sort:  Sort{Field: "dateCreated"},
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d docs, want 3", len(docs))
	}
	if docs[0]["id"] != "c2" {
		t.Errorf("first doc %v, want c2", docs[0]["id"])
	}

	docs, err = c.Find(ctx, Query{Conds: []Cond{Lt("dateCreated", base.Add(2 * time.Minute))}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs before cutoff, want 2", len(docs))
	}
}

func TestMemoryCountIgnoresPaging(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Collection("comments")
	seedComments(t, c, 5, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	count, err := c.Count(ctx, Eq("parentId", "q1"))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
}

func TestMemorySortByArrayLen(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Collection("comments")
	likes := map[string][]any{
		"c0": {"u1"},
		"c1": {"u1", "u2", "u3"},
		"c2": {},
		"c3": {"u1", "u2"},
	}
	for id, likers := range likes {
		if err := c.Insert(ctx, Doc{"id": id, "likeIds": likers}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	docs, err := c.Find(ctx, Query{Sort: Sort{Field: "likeIds", Desc: true, ArrayLen: true}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	wantOrder := []string{"c1", "c3", "c0", "c2"}
	for i, want := range wantOrder {
		if docs[i]["id"] != want {
			t.Errorf("position %d: got %v, want %s", i, docs[i]["id"], want)
		}
	}
}

func TestMemoryUpdateOnePatch(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Collection("questions")
	if err := c.Insert(ctx, Doc{
		"id":           "q1",
		"commentIds":   []any{},
		"likeIds":      []any{"u1", "u2"},
		"commenterIds": map[string]any{},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	matched, err := c.UpdateOne(ctx, []Cond{Eq("id", "q1")}, Patch{
		Set:    map[string]any{"question": "updated"},
		Push:   map[string]string{"commentIds": "c1"},
		Pull:   map[string][]string{"likeIds": {"u1"}},
		SetKey: map[string]string{"commenterIds": "a1"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !matched {
		t.Fatal("update matched nothing")
	}

	doc, found, err := c.FindOne(ctx, Eq("id", "q1"))
	if err != nil || !found {
		t.Fatalf("find after update: found=%v err=%v", found, err)
	}
	if doc["question"] != "updated" {
		t.Errorf("question = %v, want updated", doc["question"])
	}
	if ids := doc["commentIds"].([]any); len(ids) != 1 || ids[0] != "c1" {
		t.Errorf("commentIds = %v, want [c1]", ids)
	}
	if likes := doc["likeIds"].([]any); len(likes) != 1 || likes[0] != "u2" {
		t.Errorf("likeIds = %v, want [u2]", likes)
	}
	set := doc["commenterIds"].(map[string]any)
	if set["a1"] != true {
		t.Errorf("commenterIds = %v, want a1 present", set)
	}
}

func TestMemorySetKeyIdempotent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Collection("questions")
	if err := c.Insert(ctx, Doc{"id": "q1", "commenterIds": map[string]any{}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.UpdateOne(ctx, []Cond{Eq("id", "q1")},
			Patch{SetKey: map[string]string{"commenterIds": "a1"}}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	doc, _, err := c.FindOne(ctx, Eq("id", "q1"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	set := doc["commenterIds"].(map[string]any)
	if len(set) != 1 || set["a1"] != true {
		t.Errorf("commenterIds = %v, want exactly {a1: true}", set)
	}
}

func TestMemoryContains(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Collection("questions")
	if err := c.Insert(ctx, Doc{"id": "q1", "subscriberIds": []any{"u1", "u2"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.Insert(ctx, Doc{"id": "q2", "subscriberIds": []any{"u3"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	docs, err := c.Find(ctx, Query{Conds: []Cond{Contains("subscriberIds", "u2")}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 1 || docs[0]["id"] != "q1" {
		t.Errorf("got %v, want only q1", docs)
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore().Collection("comments")
	seedComments(t, c, 3, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	deleted, err := c.DeleteOne(ctx, Eq("id", "c1"))
	if err != nil || !deleted {
		t.Fatalf("delete one: deleted=%v err=%v", deleted, err)
	}
	count, _ := c.Count(ctx)
	if count != 2 {
		t.Errorf("count after delete = %d, want 2", count)
	}

	n, err := c.DeleteMany(ctx, Eq("parentId", "q1"))
	if err != nil {
		t.Fatalf("delete many: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
}
