// Package dockerlog follows a game server container's log stream and turns
// its lines into game events.
package dockerlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/gettakaro/takaro-worker/internal/domain/connector"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

const (
	eventBuffer = 256
	maxLineSize = 1 << 20
)

// Interface guard
var _ connector.Emitter = (*Emitter)(nil)

// LogSource is the docker engine surface this connector needs.
type LogSource interface {
	ContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)
	ContainerTTY(ctx context.Context, id string) (bool, error)
}

type Emitter struct {
	src         LogSource
	containerID string
	parse       ParseFunc
	logger      *slog.Logger

	events chan model.GameEvent
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	stream   io.ReadCloser
	started  bool
	stopOnce sync.Once
}

// New reads `containerId` from the connection info and picks the parser for gs.Type.
func New(src LogSource, gs model.GameServer, logger *slog.Logger) (*Emitter, error) {
	parse, ok := Parsers[gs.Type]
	if !ok {
		return nil, fmt.Errorf("dockerlog connector: %w: %q", connector.ErrUnknownGameType, gs.Type)
	}
	containerID := gs.ConnectionInfo["containerId"]
	if containerID == "" {
		return nil, fmt.Errorf("dockerlog connector: connectionInfo.containerId is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Emitter{
		src:         src,
		containerID: containerID,
		parse:       parse,
		logger:      logger.With("gameserver_id", gs.ID, "container_id", containerID),
		events:      make(chan model.GameEvent, eventBuffer),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}, nil
}

func (e *Emitter) Events() <-chan model.GameEvent { return e.events }

func (e *Emitter) Start(ctx context.Context) error {
	tty, err := e.src.ContainerTTY(ctx, e.containerID)
	if err != nil {
		return fmt.Errorf("dockerlog connector: inspect: %w", err)
	}

	// the stream outlives the start context
	stream, err := e.src.ContainerLogs(e.ctx, e.containerID)
	if err != nil {
		return fmt.Errorf("dockerlog connector: logs: %w", err)
	}

	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		_ = stream.Close()
		return context.Canceled
	}
	e.stream = stream
	e.started = true
	e.mu.Unlock()

	var r io.Reader = stream
	if !tty {
		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, stream)
			_ = pw.CloseWithError(err)
		}()
		r = pr
	}

	go e.run(r)
	return nil
}

func (e *Emitter) Stop() error {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.cancel()
		started := e.started
		if e.stream != nil {
			_ = e.stream.Close()
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

func (e *Emitter) run(r io.Reader) {
	defer close(e.done)
	defer close(e.events)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if !e.emit(model.NewGameEvent(model.EventLogLine, model.EventPayload{Msg: line})) {
			return
		}
		if t, payload, ok := e.parse(line); ok {
			if !e.emit(model.NewGameEvent(t, payload)) {
				return
			}
		}
	}

	if e.ctx.Err() != nil {
		return
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	e.logger.Warn("GAMESERVER_LOG_STREAM_ENDED", "err", err)
	e.emit(model.NewGameEvent(model.EventError, model.EventPayload{Msg: "log stream ended: " + err.Error()}))
}

func (e *Emitter) emit(ev model.GameEvent) bool {
	select {
	case e.events <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}
