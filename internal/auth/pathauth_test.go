package auth

import (
	"testing"

	"imagehub/internal/models"
)

func TestAuthorizePath(t *testing.T) {
	alice := models.Identity{UserID: "user-1", Username: "alice"}

	cases := []struct {
		name    string
		path    string
		allowed bool
	}{
		{"own images", "/api/user/user-1/images", true},
		{"own images with trailing segment", "/api/user/user-1/images/extra", true},
		{"someone else's images", "/api/user/user-2/images", false},
		{"empty user segment", "/api/user//images", false},
		{"prefix without enough segments", "/api/user/user-1", false},
		{"bare prefix", "/api/user/", false},
		{"user subtree outside images", "/api/user/user-2/profile", true},
		{"unrelated api path", "/api/images", true},
		{"image detail path", "/api/images/abc123", true},
		{"root", "/", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AuthorizePath(tc.path, alice); got != tc.allowed {
				t.Fatalf("AuthorizePath(%q) = %v, want %v", tc.path, got, tc.allowed)
			}
		})
	}
}

func TestAuthorizePathCaseSensitiveUserID(t *testing.T) {
	id := models.Identity{UserID: "User-1"}
	if AuthorizePath("/api/user/user-1/images", id) {
		t.Fatal("expected user id comparison to be exact")
	}
}
