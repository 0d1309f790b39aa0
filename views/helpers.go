package views

import (
	"context"

	"github.com/AdamBeresnev/quiniela/internal/middleware"
	users "github.com/AdamBeresnev/quiniela/internal/user"
)

func GetUser(ctx context.Context) *users.User {
	return middleware.GetAuthenticatedUser(ctx)
}

func viewerName(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.Username
	}
	return "guest"
}
