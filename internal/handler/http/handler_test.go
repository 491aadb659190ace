package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gettakaro/takaro-worker/internal/domain/connector"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
	"github.com/gettakaro/takaro-worker/internal/domain/registry"
	"github.com/gettakaro/takaro-worker/internal/service/dto"
)

type fakeGameServers struct {
	added   []string
	removed []string
	cleared []string
	addErr  error
}

func (f *fakeGameServers) Add(_ context.Context, domainID string, gs model.GameServer) error {
	f.added = append(f.added, domainID+"/"+gs.ID+"/"+gs.Type+"/"+gs.ConnectionInfo["url"])
	return f.addErr
}

func (f *fakeGameServers) Remove(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeGameServers) List() []registry.Status {
	return []registry.Status{{GameServerID: "gs1", DomainID: "d1", Type: "ws", Degraded: true}}
}

func (f *fakeGameServers) Bootstrap(context.Context) error { return nil }

func (f *fakeGameServers) ClearRateLimitCache(domainID string) {
	f.cleared = append(f.cleared, domainID)
}

func newServer(t *testing.T, svc *fakeGameServers, token string) *httptest.Server {
	t.Helper()
	h := NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(h.Routes([]string{"*"}, token))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	srv := newServer(t, &fakeGameServers{}, "secret")
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestTokenRequired(t *testing.T) {
	srv := newServer(t, &fakeGameServers{}, "secret")
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/v1/gameservers", "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/v1/gameservers", "wrong", "").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/v1/gameservers", "secret", "").StatusCode)
}

func TestListGameServers(t *testing.T) {
	srv := newServer(t, &fakeGameServers{}, "")
	resp := do(t, http.MethodGet, srv.URL+"/v1/gameservers", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []dto.GameServerView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "gs1", out[0].GameServerID)
	assert.True(t, out[0].Degraded)
}

func TestAddGameServer(t *testing.T) {
	svc := &fakeGameServers{}
	srv := newServer(t, svc, "")

	resp := do(t, http.MethodPost, srv.URL+"/v1/domains/d1/gameservers", "",
		`{"id":"gs9","type":"ws","connectionInfo":{"url":"ws://game:8080"}}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{"d1/gs9/ws/ws://game:8080"}, svc.added)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/v1/domains/d1/gameservers", "", `{"type":"ws"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/v1/domains/d1/gameservers", "", `{`).StatusCode)
}

func TestAddGameServerErrors(t *testing.T) {
	svc := &fakeGameServers{addErr: fmt.Errorf("gameserver gs9: %w", connector.ErrUnknownGameType)}
	srv := newServer(t, svc, "")
	body := `{"id":"gs9","type":"factorio"}`
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, srv.URL+"/v1/domains/d1/gameservers", "", body).StatusCode)

	svc.addErr = fmt.Errorf("gameserver gs9: start: connection refused")
	assert.Equal(t, http.StatusBadGateway, do(t, http.MethodPost, srv.URL+"/v1/domains/d1/gameservers", "", body).StatusCode)

	svc.addErr = fmt.Errorf("gameserver gs9: %w", registry.ErrSuperseded)
	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, srv.URL+"/v1/domains/d1/gameservers", "", body).StatusCode)
}

func TestRemoveAndClearCache(t *testing.T) {
	svc := &fakeGameServers{}
	srv := newServer(t, svc, "")

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, srv.URL+"/v1/gameservers/gs1", "", "").StatusCode)
	assert.Equal(t, []string{"gs1"}, svc.removed)

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, srv.URL+"/v1/domains/d1/ratelimit-cache", "", "").StatusCode)
	assert.Equal(t, []string{"d1"}, svc.cleared)
}
