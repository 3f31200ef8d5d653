package models

import "time"

// Identity is the authenticated principal extracted from a verified bearer
// token. It lives for a single request and is never persisted.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type Image struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
	UserID      string    `json:"userId"`
}

// Like records a single user's like on an image. At most one Like exists per
// (ImageID, UserID) pair at any time.
type Like struct {
	ID        string    `json:"id"`
	ImageID   string    `json:"imageId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment is owned by the user that created it. ImageID, UserID, and
// CreatedAt are immutable after creation; only Content may change.
type Comment struct {
	ID        string    `json:"id"`
	ImageID   string    `json:"imageId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
