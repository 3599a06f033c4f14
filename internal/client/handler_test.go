package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, svc *Service) http.Handler {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/clients", h.MountRoutes)
	return r
}

func TestFindClientEndpoint(t *testing.T) {
	repo := newMemoryClientRepo()
	svc := NewService(repo)
	ctx := context.Background()
	_, err := svc.CreateClient(ctx, CreateClientInput{Name: "Acme Plumbing"})
	require.NoError(t, err)
	second, err := svc.CreateClient(ctx, CreateClientInput{Name: "Budget Roofing"})
	require.NoError(t, err)

	router := newTestHandler(t, svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/find?name=roof", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ClientID int64 `json:"client_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, second.ID, body.ClientID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/find?name=nonexistent", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/find", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
