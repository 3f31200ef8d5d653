package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"imagehub/internal/accounts"
	"imagehub/internal/events"
	"imagehub/internal/models"
	"imagehub/internal/observability/metrics"
	"imagehub/internal/storage"
)

// CommentView is a comment enriched with the author's display name. The name
// is best effort: when the accounts service cannot resolve it the view is
// returned with an empty AuthorName rather than failing the request.
type CommentView struct {
	Comment    models.Comment
	AuthorName string
}

// CommentService manages comments on images. Mutations are scoped to the
// owner: updates and deletes address a comment by the full
// (commentID, imageID, userID) triple, so a comment that exists but belongs
// to someone else is indistinguishable from one that does not exist.
type CommentService struct {
	store     storage.Repository
	publisher events.Publisher
	accounts  accounts.Client
	logger    *slog.Logger
}

func NewCommentService(store storage.Repository, publisher events.Publisher, client accounts.Client, logger *slog.Logger) *CommentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommentService{store: store, publisher: publisher, accounts: client, logger: logger}
}

// Add records a new comment by the user on the image.
func (s *CommentService) Add(ctx context.Context, imageID, userID, content string) (CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return CommentView{}, fmt.Errorf("%w: comment content is required", storage.ErrInvalid)
	}
	if _, err := s.store.GetImage(ctx, imageID); err != nil {
		return CommentView{}, fmt.Errorf("resolve image: %w", err)
	}
	comment, err := s.store.CreateComment(ctx, imageID, userID, content)
	if err != nil {
		return CommentView{}, fmt.Errorf("create comment: %w", err)
	}
	metrics.ObserveGalleryEvent("comment_created")
	s.emit(ctx, comment, true)
	return s.enrich(ctx, comment), nil
}

// List returns the comments on the image, newest first.
func (s *CommentService) List(ctx context.Context, imageID string) ([]CommentView, error) {
	comments, err := s.store.ListComments(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	views := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		views = append(views, s.enrich(ctx, comment))
	}
	return views, nil
}

// Update rewrites the content of the user's own comment.
func (s *CommentService) Update(ctx context.Context, commentID, imageID, userID, content string) (CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return CommentView{}, fmt.Errorf("%w: comment content is required", storage.ErrInvalid)
	}
	comment, err := s.store.UpdateComment(ctx, commentID, imageID, userID, content)
	if err != nil {
		return CommentView{}, fmt.Errorf("update comment: %w", err)
	}
	metrics.ObserveGalleryEvent("comment_updated")
	return s.enrich(ctx, comment), nil
}

// Delete removes the user's own comment. The published event carries the
// content the comment had before deletion.
func (s *CommentService) Delete(ctx context.Context, commentID, imageID, userID string) error {
	comment, err := s.store.DeleteComment(ctx, commentID, imageID, userID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	metrics.ObserveGalleryEvent("comment_deleted")
	s.emit(ctx, comment, false)
	return nil
}

func (s *CommentService) enrich(ctx context.Context, comment models.Comment) CommentView {
	view := CommentView{Comment: comment}
	if s.accounts == nil {
		return view
	}
	name, err := s.accounts.UsernameByID(ctx, comment.UserID)
	if err != nil {
		s.logger.Warn("failed to resolve comment author name",
			"comment_id", comment.ID,
			"user_id", comment.UserID,
			"error", err)
		return view
	}
	view.AuthorName = name
	return view
}

func (s *CommentService) emit(ctx context.Context, comment models.Comment, created bool) {
	if s.publisher == nil {
		return
	}
	event := events.CommentEvent{
		UserID:    comment.UserID,
		ImageID:   comment.ImageID,
		CommentID: comment.ID,
		Created:   created,
		Content:   comment.Content,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.PublishComment(ctx, event); err != nil {
		metrics.ObservePublishFailure("comment-events")
		s.logger.Error("failed to publish comment event",
			"comment_id", comment.ID,
			"image_id", comment.ImageID,
			"created", created,
			"error", err)
	}
}
