package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestRequireAuthAndAdmin(t *testing.T) {
	player := &users.User{ID: uuid.New(), Role: users.RoleUser}
	admin := &users.User{ID: uuid.New(), Role: users.RoleAdmin}

	testCases := []struct {
		name      string
		user      *users.User
		authCode  int
		adminCode int
	}{
		{"anonymous", nil, http.StatusUnauthorized, http.StatusForbidden},
		{"player", player, http.StatusNoContent, http.StatusForbidden},
		{"admin", admin, http.StatusNoContent, http.StatusNoContent},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.user != nil {
				req = req.WithContext(WithUser(req.Context(), tc.user))
			}

			rec := httptest.NewRecorder()
			RequireAuth(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.authCode, rec.Code)

			rec = httptest.NewRecorder()
			RequireAdmin(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.adminCode, rec.Code)

			if tc.user != nil {
				id, found := GetUserIDFromContext(req.Context())
				assert.True(t, found)
				assert.Equal(t, tc.user.ID, id)
			}
		})
	}
}
