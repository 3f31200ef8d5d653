package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type capturedRequest struct {
	Method        string
	Path          string
	Body          string
	Authorization string
	ContentSHA    string
	ContentType   string
}

func newObjectServer(t *testing.T) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	captured := &[]capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		*captured = append(*captured, capturedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Body:          string(body),
			Authorization: r.Header.Get("Authorization"),
			ContentSHA:    r.Header.Get("X-Amz-Content-Sha256"),
			ContentType:   r.Header.Get("Content-Type"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func TestObjectStoreDisabledWithoutConfig(t *testing.T) {
	store := NewObjectStore(ObjectStorageConfig{})
	if store.Enabled() {
		t.Fatal("expected disabled store without endpoint and bucket")
	}
	if _, err := store.Upload(context.Background(), "k", "text/plain", []byte("x")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on disabled store, got %v", err)
	}
	if err := store.Delete(context.Background(), "k"); err != nil {
		t.Fatalf("expected delete to be a no-op, got %v", err)
	}
}

func TestObjectStoreUploadAndDelete(t *testing.T) {
	server, captured := newObjectServer(t)

	store := NewObjectStore(ObjectStorageConfig{
		Endpoint:  server.URL,
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "gallery",
		Prefix:    "images",
	})
	if !store.Enabled() {
		t.Fatal("expected enabled store")
	}

	url, err := store.Upload(context.Background(), "abc-cat.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if !strings.HasSuffix(url, "/gallery/images/abc-cat.png") {
		t.Fatalf("unexpected object URL %q", url)
	}

	if err := store.Delete(context.Background(), "abc-cat.png"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	requests := *captured
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	put := requests[0]
	if put.Method != http.MethodPut || put.Path != "/gallery/images/abc-cat.png" {
		t.Fatalf("unexpected upload request %+v", put)
	}
	if put.Body != "png-bytes" || put.ContentType != "image/png" {
		t.Fatalf("unexpected upload payload %+v", put)
	}
	if !strings.HasPrefix(put.Authorization, "AWS4-HMAC-SHA256 Credential=access/") {
		t.Fatalf("expected SigV4 authorization, got %q", put.Authorization)
	}
	if put.ContentSHA == "" {
		t.Fatal("expected payload hash header")
	}

	del := requests[1]
	if del.Method != http.MethodDelete || del.Path != "/gallery/images/abc-cat.png" {
		t.Fatalf("unexpected delete request %+v", del)
	}
	if del.ContentSHA != emptyPayloadHash {
		t.Fatalf("expected empty payload hash on delete, got %q", del.ContentSHA)
	}
}

func TestObjectStorePublicEndpoint(t *testing.T) {
	server, _ := newObjectServer(t)

	store := NewObjectStore(ObjectStorageConfig{
		Endpoint:       server.URL,
		Region:         "us-east-1",
		AccessKey:      "access",
		SecretKey:      "secret",
		Bucket:         "gallery",
		PublicEndpoint: "https://cdn.example.com/media/",
	})

	url, err := store.Upload(context.Background(), "photo.png", "image/png", []byte("x"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if url != "https://cdn.example.com/media/photo.png" {
		t.Fatalf("expected public URL, got %q", url)
	}
}

func TestObjectStoreUploadErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	store := NewObjectStore(ObjectStorageConfig{
		Endpoint:  server.URL,
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "gallery",
	})
	if _, err := store.Upload(context.Background(), "k", "text/plain", []byte("x")); err == nil {
		t.Fatal("expected error on non-2xx upload status")
	}
}
