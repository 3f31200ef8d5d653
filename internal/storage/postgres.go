package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"imagehub/internal/models"
)

const uniqueViolationCode = "23505"

// PostgresConfig tunes the Postgres connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	ApplicationName string
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// schema exists.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	repo := &postgresRepository{pool: pool}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the connection pool, honouring the context deadline.
func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// migrate creates the gallery tables when absent. The unique index on
// (image_id, user_id) backs the like toggle invariant under concurrency.
func (r *postgresRepository) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS images (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			uploaded_at TIMESTAMPTZ NOT NULL,
			user_id UUID NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS likes (
			id UUID PRIMARY KEY,
			image_id UUID NOT NULL,
			user_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT likes_image_user_unique UNIQUE (image_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS comments (
			id UUID PRIMARY KEY,
			image_id UUID NOT NULL,
			user_id UUID NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS images_user_uploaded_idx ON images (user_id, uploaded_at DESC)`,
		`CREATE INDEX IF NOT EXISTS comments_image_created_idx ON comments (image_id, created_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) CreateImage(ctx context.Context, params CreateImageParams) (models.Image, error) {
	image := models.Image{
		ID:          uuid.NewString(),
		URL:         params.URL,
		Description: params.Description,
		UploadedAt:  time.Now().UTC(),
		UserID:      params.UserID,
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO images (id, url, description, uploaded_at, user_id)
VALUES ($1, $2, $3, $4, $5)
`, image.ID, image.URL, image.Description, image.UploadedAt, image.UserID)
	if err != nil {
		return models.Image{}, fmt.Errorf("insert image: %w", err)
	}
	return image, nil
}

func (r *postgresRepository) GetImage(ctx context.Context, id string) (models.Image, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, url, description, uploaded_at, user_id
FROM images
WHERE id = $1
`, id)
	var image models.Image
	if err := row.Scan(&image.ID, &image.URL, &image.Description, &image.UploadedAt, &image.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Image{}, ErrNotFound
		}
		return models.Image{}, fmt.Errorf("select image: %w", err)
	}
	return image, nil
}

func (r *postgresRepository) ListImages(ctx context.Context, page Page) ([]models.Image, int, error) {
	return r.listImages(ctx, "", page)
}

func (r *postgresRepository) ListImagesByUser(ctx context.Context, userID string, page Page) ([]models.Image, int, error) {
	return r.listImages(ctx, userID, page)
}

func (r *postgresRepository) listImages(ctx context.Context, userID string, page Page) ([]models.Image, int, error) {
	var (
		total int
		rows  pgx.Rows
		err   error
	)
	if userID == "" {
		if err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM images`).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count images: %w", err)
		}
		rows, err = r.pool.Query(ctx, `
SELECT id, url, description, uploaded_at, user_id
FROM images
ORDER BY uploaded_at DESC, id
LIMIT $1 OFFSET $2
`, page.Limit(), page.Offset())
	} else {
		if err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM images WHERE user_id = $1`, userID).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count user images: %w", err)
		}
		rows, err = r.pool.Query(ctx, `
SELECT id, url, description, uploaded_at, user_id
FROM images
WHERE user_id = $1
ORDER BY uploaded_at DESC, id
LIMIT $2 OFFSET $3
`, userID, page.Limit(), page.Offset())
	}
	if err != nil {
		return nil, 0, fmt.Errorf("select images: %w", err)
	}
	defer rows.Close()

	images := make([]models.Image, 0, page.Limit())
	for rows.Next() {
		var image models.Image
		if err := rows.Scan(&image.ID, &image.URL, &image.Description, &image.UploadedAt, &image.UserID); err != nil {
			return nil, 0, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate images: %w", err)
	}
	return images, total, nil
}

func (r *postgresRepository) GetLike(ctx context.Context, imageID, userID string) (models.Like, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, image_id, user_id, created_at
FROM likes
WHERE image_id = $1 AND user_id = $2
`, imageID, userID)
	var like models.Like
	if err := row.Scan(&like.ID, &like.ImageID, &like.UserID, &like.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Like{}, ErrNotFound
		}
		return models.Like{}, fmt.Errorf("select like: %w", err)
	}
	return like, nil
}

func (r *postgresRepository) CreateLike(ctx context.Context, imageID, userID string) (models.Like, error) {
	like := models.Like{
		ID:        uuid.NewString(),
		ImageID:   imageID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO likes (id, image_id, user_id, created_at)
VALUES ($1, $2, $3, $4)
`, like.ID, like.ImageID, like.UserID, like.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Like{}, ErrConflict
		}
		return models.Like{}, fmt.Errorf("insert like: %w", err)
	}
	return like, nil
}

func (r *postgresRepository) DeleteLike(ctx context.Context, imageID, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM likes WHERE image_id = $1 AND user_id = $2`, imageID, userID)
	if err != nil {
		return fmt.Errorf("delete like: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) CountLikes(ctx context.Context, imageID string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM likes WHERE image_id = $1`, imageID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) CreateComment(ctx context.Context, imageID, userID, content string) (models.Comment, error) {
	comment := models.Comment{
		ID:        uuid.NewString(),
		ImageID:   imageID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO comments (id, image_id, user_id, content, created_at)
VALUES ($1, $2, $3, $4, $5)
`, comment.ID, comment.ImageID, comment.UserID, comment.Content, comment.CreatedAt)
	if err != nil {
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

func (r *postgresRepository) ListComments(ctx context.Context, imageID string) ([]models.Comment, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, image_id, user_id, content, created_at
FROM comments
WHERE image_id = $1
ORDER BY created_at DESC, id
`, imageID)
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0)
	for rows.Next() {
		var comment models.Comment
		if err := rows.Scan(&comment.ID, &comment.ImageID, &comment.UserID, &comment.Content, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// UpdateComment mutates content only when the full ownership triple matches,
// so a wrong author reads the same as a missing comment.
func (r *postgresRepository) UpdateComment(ctx context.Context, commentID, imageID, userID, content string) (models.Comment, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE comments
SET content = $4
WHERE id = $1 AND image_id = $2 AND user_id = $3
RETURNING id, image_id, user_id, content, created_at
`, commentID, imageID, userID, content)
	var comment models.Comment
	if err := row.Scan(&comment.ID, &comment.ImageID, &comment.UserID, &comment.Content, &comment.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return comment, nil
}

func (r *postgresRepository) DeleteComment(ctx context.Context, commentID, imageID, userID string) (models.Comment, error) {
	row := r.pool.QueryRow(ctx, `
DELETE FROM comments
WHERE id = $1 AND image_id = $2 AND user_id = $3
RETURNING id, image_id, user_id, content, created_at
`, commentID, imageID, userID)
	var comment models.Comment
	if err := row.Scan(&comment.ID, &comment.ImageID, &comment.UserID, &comment.Content, &comment.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("delete comment: %w", err)
	}
	return comment, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
