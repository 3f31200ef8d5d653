package gallery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"imagehub/internal/models"
	"imagehub/internal/storage"
)

type fakeObjectStore struct {
	keys      []string
	deleted   []string
	uploadErr error
}

func (f *fakeObjectStore) Enabled() bool { return true }

func (f *fakeObjectStore) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func TestUploadStoresObjectAndRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryRepository()
	objects := &fakeObjectStore{}
	images := NewImageService(store, objects, nil)

	image, err := images.Upload(ctx, []byte("png-bytes"), "beach day.png", "image/png", "last summer", "user-1")
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if len(objects.keys) != 1 {
		t.Fatalf("expected one stored object, got %d", len(objects.keys))
	}
	key := objects.keys[0]
	if !strings.HasSuffix(key, "-beach_day.png") {
		t.Fatalf("expected key to carry sanitized filename, got %q", key)
	}
	if len(key) <= len("-beach_day.png") {
		t.Fatalf("expected unique prefix on key %q", key)
	}
	if image.URL != "https://cdn.example.com/"+key {
		t.Fatalf("expected record URL to match object URL, got %q", image.URL)
	}
	if image.Description != "last summer" || image.UserID != "user-1" {
		t.Fatalf("unexpected record %+v", image)
	}

	fetched, err := images.Get(ctx, image.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fetched.ID != image.ID {
		t.Fatalf("expected stored image, got %+v", fetched)
	}
}

func TestUploadRepeatedFilenamesGetDistinctKeys(t *testing.T) {
	ctx := context.Background()
	objects := &fakeObjectStore{}
	images := NewImageService(storage.NewMemoryRepository(), objects, nil)

	for i := 0; i < 2; i++ {
		if _, err := images.Upload(ctx, []byte("data"), "cat.jpg", "image/jpeg", "", "user-1"); err != nil {
			t.Fatalf("Upload returned error: %v", err)
		}
	}
	if len(objects.keys) != 2 || objects.keys[0] == objects.keys[1] {
		t.Fatalf("expected distinct keys, got %v", objects.keys)
	}
}

func TestUploadRejectsEmptyPayload(t *testing.T) {
	images := NewImageService(storage.NewMemoryRepository(), &fakeObjectStore{}, nil)
	if _, err := images.Upload(context.Background(), nil, "x.png", "image/png", "", "user-1"); !errors.Is(err, storage.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestUploadFailsWhenObjectStoreDisabled(t *testing.T) {
	images := NewImageService(storage.NewMemoryRepository(), nil, nil)
	if _, err := images.Upload(context.Background(), []byte("data"), "x.png", "image/png", "", "user-1"); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable without configured object storage, got %v", err)
	}
}

// rejectingRepository forces the catalog insert to fail after the object
// upload succeeded.
type rejectingRepository struct {
	storage.Repository
}

func (rejectingRepository) CreateImage(ctx context.Context, params storage.CreateImageParams) (models.Image, error) {
	return models.Image{}, errors.New("insert failed")
}

func TestUploadCleansUpOrphanedObject(t *testing.T) {
	objects := &fakeObjectStore{}
	images := NewImageService(rejectingRepository{Repository: storage.NewMemoryRepository()}, objects, nil)

	if _, err := images.Upload(context.Background(), []byte("data"), "x.png", "image/png", "", "user-1"); err == nil {
		t.Fatal("expected upload to fail")
	}
	if len(objects.deleted) != 1 {
		t.Fatalf("expected orphaned object cleanup, got deletes %v", objects.deleted)
	}
	if objects.deleted[0] != objects.keys[0] {
		t.Fatalf("expected the uploaded key to be deleted, got %v vs %v", objects.deleted, objects.keys)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"beach day.png":       "beach_day.png",
		"../../etc/passwd":    "passwd",
		`C:\photos\cat.jpg`:   "cat.jpg",
		"":                    "upload",
		"..":                  "upload",
		"weird*chars?.jpeg":   "weird_chars_.jpeg",
		"already-fine_01.png": "already-fine_01.png",
	}
	for input, want := range cases {
		if got := sanitizeFilename(input); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
}
