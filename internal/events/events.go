package events

import (
	"context"
	"sync"
	"time"
)

// LikeEvent is published after a like toggle commits. Added reports whether
// the toggle created or removed the like.
type LikeEvent struct {
	UserID    string    `json:"userId"`
	ImageID   string    `json:"imageId"`
	Added     bool      `json:"added"`
	Timestamp time.Time `json:"timestamp"`
}

// CommentEvent is published after a comment is created or deleted. Content
// carries the comment body, including the pre-deletion content on deletes.
type CommentEvent struct {
	UserID    string    `json:"userId"`
	ImageID   string    `json:"imageId"`
	CommentID string    `json:"commentId"`
	Created   bool      `json:"created"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers gallery mutation events to the external event bus.
// Publishes are fire-and-forget from the request path: callers log failures
// and never roll back the mutation that triggered them.
type Publisher interface {
	PublishLike(ctx context.Context, event LikeEvent) error
	PublishComment(ctx context.Context, event CommentEvent) error
}

// MemoryPublisher buffers events in memory for development and tests.
type MemoryPublisher struct {
	mu       sync.Mutex
	likes    []LikeEvent
	comments []CommentEvent
}

// NewMemoryPublisher returns an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) PublishLike(ctx context.Context, event LikeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.likes = append(p.likes, event)
	return nil
}

func (p *MemoryPublisher) PublishComment(ctx context.Context, event CommentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comments = append(p.comments, event)
	return nil
}

// LikeEvents returns a copy of the captured like events.
func (p *MemoryPublisher) LikeEvents() []LikeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LikeEvent(nil), p.likes...)
}

// CommentEvents returns a copy of the captured comment events.
func (p *MemoryPublisher) CommentEvents() []CommentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CommentEvent(nil), p.comments...)
}
