// Package ws connects to game servers that push events over a websocket as
// JSON frames of the form {"type": ..., "data": {...}}.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/gettakaro/takaro-worker/internal/domain/connector"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

const GameType = "ws"

const (
	readTimeout   = 60 * time.Second
	pingInterval  = 25 * time.Second
	writeTimeout  = 5 * time.Second
	stableAfter   = 10 * time.Second
	eventBuffer   = 256
	defaultMinGap = time.Second
	defaultMaxGap = 30 * time.Second
)

// Interface guard
var _ connector.Emitter = (*Emitter)(nil)

type frame struct {
	Type model.EventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Emitter struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	events chan model.GameEvent
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	conn     *websocket.Conn
	started  bool
	stopOnce sync.Once
}

type Option func(*Emitter)

// WithBackoff bounds the reconnect delay.
func WithBackoff(min, max time.Duration) Option {
	return func(e *Emitter) {
		e.minBackoff = min
		e.maxBackoff = max
	}
}

// New reads `url` and the optional `token` from the connection info.
func New(gs model.GameServer, logger *slog.Logger, opts ...Option) (*Emitter, error) {
	raw := gs.ConnectionInfo["url"]
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return nil, fmt.Errorf("ws connector: invalid url %q", raw)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("ws connector: unsupported scheme %q", u.Scheme)
	}

	header := http.Header{}
	if token := gs.ConnectionInfo["token"]; token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Emitter{
		url:        u.String(),
		header:     header,
		dialer:     websocket.DefaultDialer,
		logger:     logger.With("gameserver_id", gs.ID, "connector", GameType),
		minBackoff: defaultMinGap,
		maxBackoff: defaultMaxGap,
		events:     make(chan model.GameEvent, eventBuffer),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Emitter) Events() <-chan model.GameEvent { return e.events }

// Start dials once within ctx. After a successful dial the emitter keeps
// reconnecting on its own until Stop.
func (e *Emitter) Start(ctx context.Context) error {
	conn, _, err := e.dialer.DialContext(ctx, e.url, e.header)
	if err != nil {
		return fmt.Errorf("ws connector: dial: %w", err)
	}

	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		_ = conn.Close()
		return context.Canceled
	}
	e.conn = conn
	e.started = true
	e.mu.Unlock()

	go e.run(conn)
	return nil
}

// Stop closes the connection and the events channel.
func (e *Emitter) Stop() error {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.cancel()
		started := e.started
		if e.conn != nil {
			_ = e.conn.Close()
		}
		e.mu.Unlock()

		if started {
			<-e.done
		} else {
			close(e.events)
		}
	})
	return nil
}

func (e *Emitter) run(conn *websocket.Conn) {
	defer close(e.done)
	defer close(e.events)

	backoff := e.minBackoff
	for {
		connected := time.Now()
		err := e.read(conn)
		_ = conn.Close()
		if e.ctx.Err() != nil {
			return
		}
		e.fail(fmt.Errorf("connection lost: %w", err))

		if time.Since(connected) > stableAfter {
			backoff = e.minBackoff
		}

		for {
			if !e.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, e.maxBackoff)

			next, _, err := e.dialer.DialContext(e.ctx, e.url, e.header)
			if err == nil {
				e.mu.Lock()
				e.conn = next
				stopped := e.ctx.Err() != nil
				e.mu.Unlock()
				if stopped {
					_ = next.Close()
					return
				}
				conn = next
				e.logger.Info("GAMESERVER_RECONNECTED")
				break
			}
			if e.ctx.Err() != nil {
				return
			}
			e.fail(fmt.Errorf("reconnect: %w", err))
		}
	}
}

func (e *Emitter) read(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			e.logger.Debug("WS_FRAME_MALFORMED", "err", err)
			continue
		}
		if !f.Type.IsForwarded() {
			continue
		}

		var payload model.EventPayload
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &payload); err != nil {
				e.logger.Debug("WS_FRAME_MALFORMED", "type", f.Type, "err", err)
				continue
			}
		}
		e.emit(model.NewGameEvent(f.Type, payload))
	}
}

// fail surfaces a connection problem as an error event.
func (e *Emitter) fail(err error) {
	e.logger.Warn("GAMESERVER_CONNECTION_ERROR", "err", err)
	e.emit(model.NewGameEvent(model.EventError, model.EventPayload{Msg: err.Error()}))
}

func (e *Emitter) emit(ev model.GameEvent) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

// sleep waits d with +/-20% jitter. It returns false when stopped.
func (e *Emitter) sleep(d time.Duration) bool {
	d = time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-e.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
