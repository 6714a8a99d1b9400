package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-core/api/middleware"
	pkgAuth "github.com/angelmondragon/marketplace-core/pkg/auth"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

func authedRequest(method, target, body string, userID uuid.UUID, role enums.ActorRole, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithIdentity(req.Context(), pkgAuth.Identity{UserID: userID, Role: role})
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	return req.WithContext(ctx)
}
