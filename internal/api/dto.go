package api

import (
	"time"

	"imagehub/internal/gallery"
	"imagehub/internal/models"
	"imagehub/internal/storage"
)

type commentPayload struct {
	Content string `json:"content"`
}

type commentResponse struct {
	ID         string    `json:"id"`
	ImageID    string    `json:"imageId"`
	UserID     string    `json:"userId"`
	AuthorName string    `json:"authorName,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toCommentResponse(view gallery.CommentView) commentResponse {
	return commentResponse{
		ID:         view.Comment.ID,
		ImageID:    view.Comment.ImageID,
		UserID:     view.Comment.UserID,
		AuthorName: view.AuthorName,
		Content:    view.Comment.Content,
		CreatedAt:  view.Comment.CreatedAt,
	}
}

type likeCountResponse struct {
	Count int `json:"count"`
}

// pageResponse is the envelope for paginated listings. Last reports whether
// the page is the final one; an empty page past the end is still last.
type pageResponse struct {
	Content       []models.Image `json:"content"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	TotalElements int            `json:"totalElements"`
	TotalPages    int            `json:"totalPages"`
	Last          bool           `json:"last"`
}

func toPageResponse(images []models.Image, page storage.Page, total int) pageResponse {
	if images == nil {
		images = []models.Image{}
	}
	size := page.Limit()
	totalPages := 0
	if size > 0 {
		totalPages = (total + size - 1) / size
	}
	number := page.Normalized().Number
	return pageResponse{
		Content:       images,
		Page:          number,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          number >= totalPages-1,
	}
}
