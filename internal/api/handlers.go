package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"imagehub/internal/gallery"
	"imagehub/internal/storage"
)

const maxUploadBytes = 32 << 20 // 32 MiB

// API wires the gallery services to HTTP. Handlers assume the auth
// middleware already ran: any request reaching a protected route carries an
// identity in its context.
type API struct {
	images   *gallery.ImageService
	likes    *gallery.LikeService
	comments *gallery.CommentService
	store    storage.Repository
	logger   *slog.Logger
}

func New(images *gallery.ImageService, likes *gallery.LikeService, comments *gallery.CommentService, store storage.Repository, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{images: images, likes: likes, comments: comments, store: store, logger: logger}
}

// Register attaches all routes to the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/images", a.handleImages)
	mux.HandleFunc("/api/images/", a.handleImageSubtree)
	mux.HandleFunc("/api/user/", a.handleUserImages)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	status := "ok"
	code := http.StatusOK
	if err := a.store.Ping(r.Context()); err != nil {
		a.logger.Error("health check failed", "error", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// handleImages covers the collection: POST uploads, GET lists the catalog.
func (a *API) handleImages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.uploadImage(w, r)
	case http.MethodGet:
		page := parsePage(r)
		images, total, err := a.images.List(r.Context(), page)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPageResponse(images, page, total))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (a *API) uploadImage(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(data) > maxUploadBytes {
		writeProblem(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}

	contentType := header.Header.Get("Content-Type")
	description := r.FormValue("description")
	image, err := a.images.Upload(r.Context(), data, header.Filename, contentType, description, identity.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/images/"+image.ID)
	writeJSON(w, http.StatusCreated, image)
}

// handleImageSubtree dispatches /api/images/{id} and its nested like and
// comment routes by positional path segments.
func (a *API) handleImageSubtree(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/images/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeProblem(w, r, http.StatusNotFound, "resource not found")
		return
	}
	imageID := parts[0]

	switch {
	case len(parts) == 1:
		a.getImage(w, r, imageID)
	case len(parts) == 2 && parts[1] == "likes":
		a.toggleLike(w, r, imageID)
	case len(parts) == 3 && parts[1] == "likes" && parts[2] == "count":
		a.countLikes(w, r, imageID)
	case len(parts) == 2 && parts[1] == "comments":
		a.handleComments(w, r, imageID)
	case len(parts) == 3 && parts[1] == "comments":
		a.handleComment(w, r, imageID, parts[2])
	default:
		writeProblem(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getImage(w http.ResponseWriter, r *http.Request, imageID string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	image, err := a.images.Get(r.Context(), imageID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, image)
}

func (a *API) toggleLike(w http.ResponseWriter, r *http.Request, imageID string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	if _, err := a.likes.Toggle(r.Context(), imageID, identity.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) countLikes(w http.ResponseWriter, r *http.Request, imageID string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	count, err := a.likes.Count(r.Context(), imageID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likeCountResponse{Count: count})
}

func (a *API) handleComments(w http.ResponseWriter, r *http.Request, imageID string) {
	switch r.Method {
	case http.MethodPost:
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
			return
		}
		var payload commentPayload
		if err := decodeJSON(r, &payload); err != nil {
			writeProblem(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		view, err := a.comments.Add(r.Context(), imageID, identity.UserID, payload.Content)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toCommentResponse(view))
	case http.MethodGet:
		views, err := a.comments.List(r.Context(), imageID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		responses := make([]commentResponse, 0, len(views))
		for _, view := range views {
			responses = append(responses, toCommentResponse(view))
		}
		writeJSON(w, http.StatusOK, responses)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (a *API) handleComment(w http.ResponseWriter, r *http.Request, imageID, commentID string) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	switch r.Method {
	case http.MethodPut:
		var payload commentPayload
		if err := decodeJSON(r, &payload); err != nil {
			writeProblem(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		view, err := a.comments.Update(r.Context(), commentID, imageID, identity.UserID, payload.Content)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toCommentResponse(view))
	case http.MethodDelete:
		if err := a.comments.Delete(r.Context(), commentID, imageID, identity.UserID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// handleUserImages serves /api/user/{userID}/images. The middleware has
// already enforced that the caller is the addressed user.
func (a *API) handleUserImages(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/user/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "images" {
		writeProblem(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	page := parsePage(r)
	images, total, err := a.images.ListByUser(r.Context(), parts[0], page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(images, page, total))
}

func parsePage(r *http.Request) storage.Page {
	page := storage.Page{Number: -1, Size: -1}
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page.Number = n
		}
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			page.Size = n
		}
	}
	return page
}
