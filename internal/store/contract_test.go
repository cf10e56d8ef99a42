package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

type widget struct {
	ID        string    `bson:"id"`
	Owner     string    `bson:"owner"`
	Count     int       `bson:"count"`
	Price     float64   `bson:"price"`
	CreatedAt time.Time `bson:"created_at"`
}

type narrowWidget struct {
	ID    string `bson:"id"`
	Owner string `bson:"owner"`
}

// runCollectionContract exercises the primitives every backend must honour.
// It expects the named collection to start empty.
func runCollectionContract(t *testing.T, s Store, name string) {
	t.Helper()
	ctx := context.Background()
	c := s.Collection(name)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("find one on empty collection returns ErrNotFound", func(t *testing.T) {
		var w widget
		err := c.FindOne(ctx, Filter{"id": "missing"}, &w)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("insert and find by equality", func(t *testing.T) {
		if err := c.InsertOne(ctx, widget{ID: "w1", Owner: "alice", Count: 2, Price: 29.99, CreatedAt: created}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := c.InsertMany(ctx, []any{
			widget{ID: "w2", Owner: "alice", Count: 1, Price: 5, CreatedAt: created},
			widget{ID: "w3", Owner: "bob", Count: 7, Price: 1.5, CreatedAt: created},
		}); err != nil {
			t.Fatalf("insert many: %v", err)
		}

		var w widget
		if err := c.FindOne(ctx, Filter{"id": "w1"}, &w); err != nil {
			t.Fatalf("find one: %v", err)
		}
		if w.Owner != "alice" || w.Count != 2 || w.Price != 29.99 {
			t.Errorf("unexpected widget: %+v", w)
		}
		if !w.CreatedAt.Equal(created) {
			t.Errorf("expected created_at %v, got %v", created, w.CreatedAt)
		}
	})

	t.Run("filters require every field to match", func(t *testing.T) {
		var w widget
		err := c.FindOne(ctx, Filter{"id": "w1", "owner": "bob"}, &w)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("find many and count", func(t *testing.T) {
		var ws []widget
		if err := c.FindMany(ctx, Filter{"owner": "alice"}, &ws); err != nil {
			t.Fatalf("find many: %v", err)
		}
		if len(ws) != 2 {
			t.Errorf("expected 2 widgets, got %d", len(ws))
		}

		n, err := c.Count(ctx, Filter{})
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 documents, got %d", n)
		}
	})

	t.Run("update one sets fields on a single match", func(t *testing.T) {
		matched, err := c.UpdateOne(ctx, Filter{"id": "w1"}, map[string]any{"count": 5})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if !matched {
			t.Fatal("expected update to match")
		}

		var w widget
		if err := c.FindOne(ctx, Filter{"id": "w1"}, &w); err != nil {
			t.Fatalf("find one: %v", err)
		}
		if w.Count != 5 {
			t.Errorf("expected count 5, got %d", w.Count)
		}
		if w.Owner != "alice" {
			t.Errorf("update clobbered owner: %q", w.Owner)
		}

		matched, err = c.UpdateOne(ctx, Filter{"id": "nope"}, map[string]any{"count": 1})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if matched {
			t.Error("expected no match for unknown id")
		}
	})

	t.Run("strict decoding rejects unknown fields", func(t *testing.T) {
		var n narrowWidget
		err := c.FindOne(ctx, Filter{"id": "w1"}, &n)
		if !errors.Is(err, ErrSchema) {
			t.Errorf("expected ErrSchema, got %v", err)
		}
	})

	t.Run("delete one and delete many", func(t *testing.T) {
		deleted, err := c.DeleteOne(ctx, Filter{"id": "w3"})
		if err != nil {
			t.Fatalf("delete one: %v", err)
		}
		if !deleted {
			t.Error("expected w3 to be deleted")
		}

		deleted, err = c.DeleteOne(ctx, Filter{"id": "w3"})
		if err != nil {
			t.Fatalf("delete one: %v", err)
		}
		if deleted {
			t.Error("expected second delete to miss")
		}

		removed, err := c.DeleteMany(ctx, Filter{"owner": "alice"})
		if err != nil {
			t.Fatalf("delete many: %v", err)
		}
		if removed != 2 {
			t.Errorf("expected 2 removed, got %d", removed)
		}

		n, err := c.Count(ctx, Filter{})
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 0 {
			t.Errorf("expected empty collection, got %d", n)
		}
	})
}

type account struct {
	ID    string `bson:"id"`
	Email string `bson:"email"`
}

// runUniqueContract checks that the users collection rejects a repeated
// email on every write path. It expects the users collection to start empty.
func runUniqueContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	c := s.Collection(Users)

	if err := c.InsertOne(ctx, account{ID: "u1", Email: "taken@example.com"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	t.Run("insert one with a taken email", func(t *testing.T) {
		err := c.InsertOne(ctx, account{ID: "u2", Email: "taken@example.com"})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		n, err := c.Count(ctx, Filter{"email": "taken@example.com"})
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 document, got %d", n)
		}
	})

	t.Run("insert many with a taken email", func(t *testing.T) {
		err := c.InsertMany(ctx, []any{
			account{ID: "u3", Email: "taken@example.com"},
			account{ID: "u4", Email: "fresh@example.com"},
		})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("update onto a taken email", func(t *testing.T) {
		if err := c.InsertOne(ctx, account{ID: "u5", Email: "other@example.com"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		_, err := c.UpdateOne(ctx, Filter{"id": "u5"}, map[string]any{"email": "taken@example.com"})
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		var a account
		if err := c.FindOne(ctx, Filter{"id": "u5"}, &a); err != nil {
			t.Fatalf("find: %v", err)
		}
		if a.Email != "other@example.com" {
			t.Errorf("expected email unchanged, got %s", a.Email)
		}
	})

	t.Run("other collections are not constrained", func(t *testing.T) {
		other := s.Collection("widgets_unique")
		for i := 0; i < 2; i++ {
			if err := other.InsertOne(ctx, account{ID: "w", Email: "taken@example.com"}); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
	})
}
