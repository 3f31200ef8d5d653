package gallery

import (
	"context"
	"errors"
	"testing"

	"imagehub/internal/accounts"
	"imagehub/internal/events"
	"imagehub/internal/storage"
)

func TestCommentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryRepository()
	publisher := events.NewMemoryPublisher()
	names := accounts.NewStaticClient(map[string]string{"user-1": "alice"})
	comments := NewCommentService(store, publisher, names, nil)
	image := seedImage(t, store)

	view, err := comments.Add(ctx, image.ID, "user-1", "  great capture  ")
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if view.Comment.Content != "great capture" {
		t.Fatalf("expected trimmed content, got %q", view.Comment.Content)
	}
	if view.AuthorName != "alice" {
		t.Fatalf("expected enriched author name, got %q", view.AuthorName)
	}

	listed, err := comments.List(ctx, image.ID)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(listed) != 1 || listed[0].Comment.ID != view.Comment.ID {
		t.Fatalf("unexpected listing %+v", listed)
	}

	updated, err := comments.Update(ctx, view.Comment.ID, image.ID, "user-1", "even better")
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Comment.Content != "even better" {
		t.Fatalf("expected updated content, got %q", updated.Comment.Content)
	}

	if err := comments.Delete(ctx, view.Comment.ID, image.ID, "user-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	published := publisher.CommentEvents()
	if len(published) != 2 {
		t.Fatalf("expected create and delete events, got %d", len(published))
	}
	if !published[0].Created || published[1].Created {
		t.Fatalf("expected created-then-deleted events, got %+v", published)
	}
	if published[1].Content != "even better" {
		t.Fatalf("expected delete event to carry pre-deletion content, got %q", published[1].Content)
	}
}

func TestCommentMutationsRequireOwnership(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryRepository()
	comments := NewCommentService(store, events.NewMemoryPublisher(), nil, nil)
	image := seedImage(t, store)

	view, err := comments.Add(ctx, image.ID, "user-1", "mine")
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if _, err := comments.Update(ctx, view.Comment.ID, image.ID, "user-2", "hijack"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected foreign update to read as not found, got %v", err)
	}
	if err := comments.Delete(ctx, view.Comment.ID, image.ID, "user-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected foreign delete to read as not found, got %v", err)
	}

	// The owner still sees the untouched comment.
	listed, err := comments.List(ctx, image.ID)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(listed) != 1 || listed[0].Comment.Content != "mine" {
		t.Fatalf("expected comment to survive foreign mutations, got %+v", listed)
	}
}

func TestCommentValidation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryRepository()
	comments := NewCommentService(store, events.NewMemoryPublisher(), nil, nil)
	image := seedImage(t, store)

	if _, err := comments.Add(ctx, image.ID, "user-1", "   "); !errors.Is(err, storage.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for blank content, got %v", err)
	}
	if _, err := comments.Add(ctx, "missing", "user-1", "text"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown image, got %v", err)
	}
}

type unreachableAccounts struct{}

func (unreachableAccounts) UsernameByID(ctx context.Context, userID string) (string, error) {
	return "", errors.New("identity service timeout")
}

func TestCommentEnrichmentDegradesToEmptyName(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryRepository()
	comments := NewCommentService(store, events.NewMemoryPublisher(), unreachableAccounts{}, nil)
	image := seedImage(t, store)

	view, err := comments.Add(ctx, image.ID, "user-1", "still works")
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if view.AuthorName != "" {
		t.Fatalf("expected empty author name on lookup failure, got %q", view.AuthorName)
	}
	if view.Comment.Content != "still works" {
		t.Fatalf("expected comment to be stored, got %+v", view.Comment)
	}
}
