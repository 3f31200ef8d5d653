package auth

import (
	"strings"

	"imagehub/internal/models"
)

const userScopedPrefix = "/api/user/"

// AuthorizePath decides whether the identity may access the request path.
// Only paths of the user-scoped images shape /api/user/{userID}/images... are
// restricted: the user id segment must match the identity's user id exactly.
// Paths under the prefix that are too short to carry the expected segments are
// denied outright; everything else is outside this check and allowed.
func AuthorizePath(path string, id models.Identity) bool {
	if !strings.HasPrefix(path, userScopedPrefix) {
		return true
	}

	// ["", "api", "user", userID, "images", ...]
	segments := strings.Split(path, "/")
	if len(segments) < 5 {
		return false
	}
	if segments[4] != "images" {
		return true
	}
	if segments[3] == "" {
		return false
	}
	return segments[3] == id.UserID
}
