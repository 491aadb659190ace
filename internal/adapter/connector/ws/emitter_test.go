package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

var upgrader = websocket.Upgrader{}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// gameServer writes frames to every client and then holds the connection open.
func gameServer(t *testing.T, frames []string, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			select {
			case gotAuth <- r.Header.Get("Authorization"):
			default:
			}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func next(t *testing.T, ch <-chan model.GameEvent) model.GameEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return model.GameEvent{}
	}
}

func TestEmitter_ForwardsKnownFrames(t *testing.T) {
	auth := make(chan string, 1)
	srv := gameServer(t, []string{
		`{"type":"player-connected","data":{"player":{"gameId":"76561","name":"alice"}}}`,
		`{"type":"something-else","data":{}}`,
		`not json`,
		`{"type":"chat-message","data":{"msg":"/tp home","player":{"gameId":"76561"}}}`,
	}, auth)

	e, err := New(model.GameServer{ID: "gs1", Type: GameType, ConnectionInfo: map[string]string{
		"url":   srv.URL,
		"token": "secret",
	}}, discard())
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	assert.Equal(t, "Bearer secret", <-auth)

	ev := next(t, e.Events())
	assert.Equal(t, model.EventPlayerConnected, ev.Type)
	require.NotNil(t, ev.Payload.Player)
	assert.Equal(t, "alice", ev.Payload.Player.Name)

	ev = next(t, e.Events())
	assert.Equal(t, model.EventChatMessage, ev.Type)
	assert.Equal(t, "/tp home", ev.Payload.Msg)
}

func TestEmitter_StopClosesEvents(t *testing.T) {
	srv := gameServer(t, nil, nil)
	e, err := New(model.GameServer{ID: "gs1", ConnectionInfo: map[string]string{"url": srv.URL}}, discard())
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())

	select {
	case _, ok := <-e.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events not closed")
	}
}

func TestEmitter_StartFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	e, err := New(model.GameServer{ID: "gs1", ConnectionInfo: map[string]string{"url": srv.URL}}, discard())
	require.NoError(t, err)
	require.Error(t, e.Start(context.Background()))

	require.NoError(t, e.Stop())
	_, ok := <-e.Events()
	assert.False(t, ok)
}

func TestEmitter_ConnectionLossEmitsErrorAndReconnects(t *testing.T) {
	drop := make(chan struct{})
	connects := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		select {
		case connects <- struct{}{}:
		default:
		}
		select {
		case <-drop:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	e, err := New(model.GameServer{ID: "gs1", ConnectionInfo: map[string]string{"url": srv.URL}}, discard(),
		WithBackoff(10*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	<-connects
	close(drop)

	ev := next(t, e.Events())
	assert.Equal(t, model.EventError, ev.Type)
	assert.True(t, strings.HasPrefix(ev.Payload.Msg, "connection lost"))

	select {
	case <-connects:
	case <-time.After(2 * time.Second):
		t.Fatal("did not reconnect")
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(model.GameServer{ID: "gs1", ConnectionInfo: map[string]string{"url": "ftp://x"}}, discard())
	assert.Error(t, err)
	_, err = New(model.GameServer{ID: "gs1"}, discard())
	assert.Error(t, err)
}
