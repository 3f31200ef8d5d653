package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"imagehub/internal/events"
	"imagehub/internal/observability/metrics"
	"imagehub/internal/storage"
)

// LikeService implements the like toggle. Toggles are keyed by the unique
// (imageID, userID) pair: a toggle inserts the like when absent and removes
// it when present.
type LikeService struct {
	store     storage.Repository
	publisher events.Publisher
	logger    *slog.Logger
}

func NewLikeService(store storage.Repository, publisher events.Publisher, logger *slog.Logger) *LikeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LikeService{store: store, publisher: publisher, logger: logger}
}

// Toggle flips the like state for the user on the image and reports whether
// the like now exists. A concurrent toggle that wins the insert race is
// treated as having satisfied this caller's add: the uniqueness violation is
// swallowed and the like reported as present, with no duplicate row and no
// second event.
func (s *LikeService) Toggle(ctx context.Context, imageID, userID string) (bool, error) {
	if _, err := s.store.GetImage(ctx, imageID); err != nil {
		return false, fmt.Errorf("resolve image: %w", err)
	}

	_, err := s.store.GetLike(ctx, imageID, userID)
	switch {
	case err == nil:
		if err := s.store.DeleteLike(ctx, imageID, userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// A concurrent toggle removed it first.
				return false, nil
			}
			return false, fmt.Errorf("remove like: %w", err)
		}
		metrics.ObserveGalleryEvent("like_removed")
		s.emit(ctx, imageID, userID, false)
		return false, nil
	case errors.Is(err, storage.ErrNotFound):
		if _, err := s.store.CreateLike(ctx, imageID, userID); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				// A concurrent toggle inserted it first; the row exists and
				// the winner already published the event.
				return true, nil
			}
			return false, fmt.Errorf("add like: %w", err)
		}
		metrics.ObserveGalleryEvent("like_added")
		s.emit(ctx, imageID, userID, true)
		return true, nil
	default:
		return false, fmt.Errorf("lookup like: %w", err)
	}
}

// Count returns the number of likes recorded for the image.
func (s *LikeService) Count(ctx context.Context, imageID string) (int, error) {
	return s.store.CountLikes(ctx, imageID)
}

func (s *LikeService) emit(ctx context.Context, imageID, userID string, added bool) {
	if s.publisher == nil {
		return
	}
	event := events.LikeEvent{
		UserID:    userID,
		ImageID:   imageID,
		Added:     added,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.PublishLike(ctx, event); err != nil {
		metrics.ObservePublishFailure("like-events")
		s.logger.Error("failed to publish like event",
			"image_id", imageID,
			"user_id", userID,
			"added", added,
			"error", err)
	}
}
