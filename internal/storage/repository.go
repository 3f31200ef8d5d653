package storage

import (
	"context"
	"errors"

	"imagehub/internal/models"
)

var (
	// ErrNotFound is returned when a record is absent or, for comment
	// mutations, when the caller does not own the record. The two cases are
	// deliberately indistinguishable.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert collides with the unique
	// (image_id, user_id) like constraint.
	ErrConflict = errors.New("duplicate record")
	// ErrInvalid is returned when input fails validation before reaching
	// storage.
	ErrInvalid = errors.New("invalid input")
	// ErrUnavailable is returned when a backing service the operation needs
	// is not configured or not reachable.
	ErrUnavailable = errors.New("storage unavailable")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page describes a pagination window. Number is zero-based.
type Page struct {
	Number int
	Size   int
}

// Normalized clamps the page number and applies the default and maximum
// size caps.
func (p Page) Normalized() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

// Offset returns the first record index covered by the page.
func (p Page) Offset() int {
	n := p.Normalized()
	return n.Number * n.Size
}

// Limit returns the page size after applying defaults and caps.
func (p Page) Limit() int {
	return p.Normalized().Size
}

type CreateImageParams struct {
	URL         string
	Description string
	UserID      string
}

// Repository exposes the datastore operations required by the gallery
// services and API handlers.
type Repository interface {
	Ping(ctx context.Context) error

	CreateImage(ctx context.Context, params CreateImageParams) (models.Image, error)
	GetImage(ctx context.Context, id string) (models.Image, error)
	ListImages(ctx context.Context, page Page) ([]models.Image, int, error)
	ListImagesByUser(ctx context.Context, userID string, page Page) ([]models.Image, int, error)

	GetLike(ctx context.Context, imageID, userID string) (models.Like, error)
	CreateLike(ctx context.Context, imageID, userID string) (models.Like, error)
	DeleteLike(ctx context.Context, imageID, userID string) error
	CountLikes(ctx context.Context, imageID string) (int, error)

	CreateComment(ctx context.Context, imageID, userID, content string) (models.Comment, error)
	ListComments(ctx context.Context, imageID string) ([]models.Comment, error)
	UpdateComment(ctx context.Context, commentID, imageID, userID, content string) (models.Comment, error)
	DeleteComment(ctx context.Context, commentID, imageID, userID string) (models.Comment, error)
}

var (
	_ Repository = (*Storage)(nil)
	_ Repository = (*postgresRepository)(nil)
)
