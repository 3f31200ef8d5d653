package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"imagehub/internal/models"
	"imagehub/internal/observability/metrics"
	"imagehub/internal/storage"
)

// ImageService manages the image catalog. Binary uploads go to object
// storage under a per-upload unique key; the catalog rows only carry the
// resulting URL.
type ImageService struct {
	store   storage.Repository
	objects storage.ObjectStore
	logger  *slog.Logger
}

func NewImageService(store storage.Repository, objects storage.ObjectStore, logger *slog.Logger) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	if objects == nil {
		objects = storage.NewObjectStore(storage.ObjectStorageConfig{})
	}
	return &ImageService{store: store, objects: objects, logger: logger}
}

// Upload stores the image bytes and records the catalog entry for the user.
// The object key is a fresh UUID joined to the sanitized original filename,
// so repeated uploads of the same file never collide.
func (s *ImageService) Upload(ctx context.Context, data []byte, filename, contentType, description, userID string) (models.Image, error) {
	if len(data) == 0 {
		return models.Image{}, fmt.Errorf("%w: image payload is empty", storage.ErrInvalid)
	}
	key := uuid.NewString() + "-" + sanitizeFilename(filename)
	url, err := s.objects.Upload(ctx, key, contentType, data)
	if err != nil {
		return models.Image{}, fmt.Errorf("store image object: %w", err)
	}
	image, err := s.store.CreateImage(ctx, storage.CreateImageParams{
		URL:         url,
		Description: description,
		UserID:      userID,
	})
	if err != nil {
		// The object is already uploaded; best effort cleanup so a failed
		// catalog insert does not leak storage.
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to clean up orphaned object", "key", key, "error", delErr)
		}
		return models.Image{}, fmt.Errorf("create image record: %w", err)
	}
	metrics.ObserveGalleryEvent("upload")
	s.logger.Info("image uploaded", "image_id", image.ID, "user_id", userID, "key", key)
	return image, nil
}

// Get returns a single image by ID.
func (s *ImageService) Get(ctx context.Context, imageID string) (models.Image, error) {
	return s.store.GetImage(ctx, imageID)
}

// List returns a page of the full catalog, newest first, with the total
// number of images across all pages.
func (s *ImageService) List(ctx context.Context, page storage.Page) ([]models.Image, int, error) {
	return s.store.ListImages(ctx, page)
}

// ListByUser returns a page of the images uploaded by the user, newest
// first, with the user's total across all pages.
func (s *ImageService) ListByUser(ctx context.Context, userID string, page storage.Page) ([]models.Image, int, error) {
	return s.store.ListImagesByUser(ctx, userID, page)
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
