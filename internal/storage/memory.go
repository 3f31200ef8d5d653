package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"imagehub/internal/models"
)

type dataset struct {
	Images   map[string]models.Image   `json:"images"`
	Likes    map[string]models.Like    `json:"likes"`
	Comments map[string]models.Comment `json:"comments"`
}

// Storage is a mutex-guarded in-memory repository with optional JSON
// persistence, intended for development and tests. The like uniqueness
// invariant is enforced under the write lock.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	now             func() time.Time
}

// NewJSONRepository loads (or initialises) a JSON-backed repository at the
// provided path. An empty path keeps the dataset purely in memory.
func NewJSONRepository(path string) (*Storage, error) {
	s := &Storage{filePath: path, now: func() time.Time { return time.Now().UTC() }}
	s.data = emptyDataset()
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read datastore: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("decode datastore: %w", err)
		}
	}
	s.ensureInitializedLocked()
	return s, nil
}

// NewMemoryRepository returns a repository that never touches disk.
func NewMemoryRepository() *Storage {
	s, _ := NewJSONRepository("")
	return s
}

func emptyDataset() dataset {
	return dataset{
		Images:   make(map[string]models.Image),
		Likes:    make(map[string]models.Like),
		Comments: make(map[string]models.Comment),
	}
}

func (s *Storage) ensureInitializedLocked() {
	if s.data.Images == nil {
		s.data.Images = make(map[string]models.Image)
	}
	if s.data.Likes == nil {
		s.data.Likes = make(map[string]models.Like)
	}
	if s.data.Comments == nil {
		s.data.Comments = make(map[string]models.Comment)
	}
}

func (s *Storage) persist() error {
	if s.persistOverride != nil {
		return s.persistOverride(s.data)
	}
	if s.filePath == "" {
		return nil
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode datastore: %w", err)
	}
	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create datastore directory: %w", err)
		}
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write datastore: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replace datastore: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Storage) CreateImage(ctx context.Context, params CreateImageParams) (models.Image, error) {
	if err := ctx.Err(); err != nil {
		return models.Image{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureInitializedLocked()

	image := models.Image{
		ID:          uuid.NewString(),
		URL:         params.URL,
		Description: params.Description,
		UploadedAt:  s.now(),
		UserID:      params.UserID,
	}
	s.data.Images[image.ID] = image
	if err := s.persist(); err != nil {
		delete(s.data.Images, image.ID)
		return models.Image{}, err
	}
	return image, nil
}

func (s *Storage) GetImage(ctx context.Context, id string) (models.Image, error) {
	if err := ctx.Err(); err != nil {
		return models.Image{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	image, ok := s.data.Images[id]
	if !ok {
		return models.Image{}, ErrNotFound
	}
	return image, nil
}

func (s *Storage) ListImages(ctx context.Context, page Page) ([]models.Image, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginateImages(s.collectImages(""), page)
}

func (s *Storage) ListImagesByUser(ctx context.Context, userID string, page Page) ([]models.Image, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginateImages(s.collectImages(userID), page)
}

func (s *Storage) collectImages(userID string) []models.Image {
	images := make([]models.Image, 0, len(s.data.Images))
	for _, image := range s.data.Images {
		if userID != "" && image.UserID != userID {
			continue
		}
		images = append(images, image)
	}
	sort.Slice(images, func(i, j int) bool {
		if images[i].UploadedAt.Equal(images[j].UploadedAt) {
			return images[i].ID < images[j].ID
		}
		return images[i].UploadedAt.After(images[j].UploadedAt)
	})
	return images
}

func paginateImages(images []models.Image, page Page) ([]models.Image, int, error) {
	total := len(images)
	offset := page.Offset()
	limit := page.Limit()
	if offset >= total {
		return []models.Image{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]models.Image, end-offset)
	copy(out, images[offset:end])
	return out, total, nil
}

func likeKey(imageID, userID string) string {
	return imageID + "/" + userID
}

func (s *Storage) GetLike(ctx context.Context, imageID, userID string) (models.Like, error) {
	if err := ctx.Err(); err != nil {
		return models.Like{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	like, ok := s.data.Likes[likeKey(imageID, userID)]
	if !ok {
		return models.Like{}, ErrNotFound
	}
	return like, nil
}

func (s *Storage) CreateLike(ctx context.Context, imageID, userID string) (models.Like, error) {
	if err := ctx.Err(); err != nil {
		return models.Like{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureInitializedLocked()

	key := likeKey(imageID, userID)
	if _, exists := s.data.Likes[key]; exists {
		return models.Like{}, ErrConflict
	}
	like := models.Like{
		ID:        uuid.NewString(),
		ImageID:   imageID,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	s.data.Likes[key] = like
	if err := s.persist(); err != nil {
		delete(s.data.Likes, key)
		return models.Like{}, err
	}
	return like, nil
}

func (s *Storage) DeleteLike(ctx context.Context, imageID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := likeKey(imageID, userID)
	like, ok := s.data.Likes[key]
	if !ok {
		return ErrNotFound
	}
	delete(s.data.Likes, key)
	if err := s.persist(); err != nil {
		s.data.Likes[key] = like
		return err
	}
	return nil
}

func (s *Storage) CountLikes(ctx context.Context, imageID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, like := range s.data.Likes {
		if like.ImageID == imageID {
			count++
		}
	}
	return count, nil
}

func (s *Storage) CreateComment(ctx context.Context, imageID, userID, content string) (models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return models.Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureInitializedLocked()

	comment := models.Comment{
		ID:        uuid.NewString(),
		ImageID:   imageID,
		UserID:    userID,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.data.Comments[comment.ID] = comment
	if err := s.persist(); err != nil {
		delete(s.data.Comments, comment.ID)
		return models.Comment{}, err
	}
	return comment, nil
}

func (s *Storage) ListComments(ctx context.Context, imageID string) ([]models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := make([]models.Comment, 0)
	for _, comment := range s.data.Comments {
		if comment.ImageID == imageID {
			comments = append(comments, comment)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	return comments, nil
}

// ownedCommentLocked resolves a comment by the full ownership triple. A
// mismatch on any of the three keys reads as absence.
func (s *Storage) ownedCommentLocked(commentID, imageID, userID string) (models.Comment, bool) {
	comment, ok := s.data.Comments[commentID]
	if !ok || comment.ImageID != imageID || comment.UserID != userID {
		return models.Comment{}, false
	}
	return comment, true
}

func (s *Storage) UpdateComment(ctx context.Context, commentID, imageID, userID, content string) (models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return models.Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.ownedCommentLocked(commentID, imageID, userID)
	if !ok {
		return models.Comment{}, ErrNotFound
	}
	updated := previous
	updated.Content = content
	s.data.Comments[commentID] = updated
	if err := s.persist(); err != nil {
		s.data.Comments[commentID] = previous
		return models.Comment{}, err
	}
	return updated, nil
}

func (s *Storage) DeleteComment(ctx context.Context, commentID, imageID, userID string) (models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return models.Comment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.ownedCommentLocked(commentID, imageID, userID)
	if !ok {
		return models.Comment{}, ErrNotFound
	}
	delete(s.data.Comments, commentID)
	if err := s.persist(); err != nil {
		s.data.Comments[commentID] = comment
		return models.Comment{}, err
	}
	return comment, nil
}
