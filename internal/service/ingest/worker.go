// Package ingest turns raw game events from the events queue into recorded
// events, hook jobs and command jobs.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gettakaro/takaro-worker/internal/domain/command"
	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// Catalog is the module-installation lookup.
type Catalog interface {
	ListHooks(ctx context.Context, domainID, gameServerID string, eventType model.EventType) ([]model.InstalledHook, error)
	GetCommand(ctx context.Context, domainID, gameServerID, trigger string) (*model.InstalledCommand, error)
}

type EventRecorder interface {
	CreateEvent(ctx context.Context, rec model.EventRecord) error
}

type Messenger interface {
	SendMessage(ctx context.Context, domainID, gameServerID, message string, recipient *model.Player) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job *model.JobData) error
}

const (
	regexCacheSize    = 1024
	defaultWriteTries = 4
)

func writeBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

var recordedEvents = map[model.EventType]model.EventName{
	model.EventPlayerConnected:    model.EventNamePlayerConnected,
	model.EventPlayerDisconnected: model.EventNamePlayerDisconnected,
	model.EventChatMessage:        model.EventNameChatMessage,
}

// Worker handles events-queue jobs. Every lookup happens before the first
// write, so a retried job never records or enqueues twice for a failed read.
type Worker struct {
	catalog   Catalog
	enricher  *Enricher
	recorder  EventRecorder
	messenger Messenger
	queue     Enqueuer
	logger    *slog.Logger
	regexes   *lru.Cache[string, *regexp.Regexp]

	writeBackoff func() backoff.BackOff
	writeTries   uint
}

func NewWorker(catalog Catalog, enricher *Enricher, recorder EventRecorder, messenger Messenger, queue Enqueuer, logger *slog.Logger) *Worker {
	regexes, _ := lru.New[string, *regexp.Regexp](regexCacheSize)
	return &Worker{
		catalog:   catalog,
		enricher:  enricher,
		recorder:  recorder,
		messenger: messenger,
		queue:     queue,
		logger:    logger,
		regexes:   regexes,

		writeBackoff: writeBackOff,
		writeTries:   defaultWriteTries,
	}
}

// plan is everything one event turns into.
type plan struct {
	hooks    []model.InstalledHook
	cmd      *model.InstalledCommand
	parsed   *model.ParsedCommand
	parseErr error
	rawChat  string
	playerID string
}

func (w *Worker) Handle(ctx context.Context, job *model.JobData) error {
	if job.Event == nil {
		w.logger.Warn("EVENT_JOB_WITHOUT_EVENT", "job_id", job.ID)
		return nil
	}
	ev := *job.Event
	if ev.DomainID == "" {
		ev.DomainID = job.DomainID
	}
	if ev.GameServerID == "" {
		ev.GameServerID = job.GameServerID
	}

	p, err := w.prepare(ctx, &ev)
	if err != nil {
		return err
	}

	if err := w.apply(ctx, &ev, w.writes(&ev, p)); err != nil {
		return err
	}

	if p.parseErr != nil {
		// user input error: tell the player, nothing else
		if err := w.messenger.SendMessage(ctx, ev.DomainID, ev.GameServerID, command.PlayerMessage(p.parseErr), ev.Payload.Player); err != nil {
			w.logger.Warn("COMMAND_PARSE_REPLY_FAILED", "err", err, "gameserver_id", ev.GameServerID)
		}
	}
	return nil
}

// write is one side effect of an event.
type write struct {
	what string
	do   func(ctx context.Context) error
}

// writes orders the side effects: jobs first, the event record last.
func (w *Worker) writes(ev *model.GameEvent, p plan) []write {
	var out []write

	enqueue := func(job *model.JobData) {
		out = append(out, write{
			what: "enqueue " + string(job.Kind),
			do:   func(ctx context.Context) error { return w.queue.Enqueue(ctx, job) },
		})
	}

	for _, hook := range p.hooks {
		enqueue(&model.JobData{
			Kind:         model.QueueHooks,
			FunctionID:   hook.FunctionID,
			DomainID:     ev.DomainID,
			ItemID:       hook.ID,
			ModuleID:     hook.ModuleID,
			GameServerID: ev.GameServerID,
			Hook:         &model.HookJob{EventData: *ev},
		})
	}

	if p.parsed != nil {
		enqueue(&model.JobData{
			Kind:         model.QueueCommands,
			FunctionID:   p.cmd.FunctionID,
			DomainID:     ev.DomainID,
			ItemID:       p.cmd.ID,
			ModuleID:     p.cmd.ModuleID,
			GameServerID: ev.GameServerID,
			Command: &model.CommandJob{
				Player:     *ev.Payload.Player,
				Arguments:  p.parsed.Arguments,
				RawMessage: p.rawChat,
			},
		})
	}

	if name, ok := recordedEvents[ev.Type]; ok {
		rec := model.EventRecord{
			EventName:    name,
			GameServerID: ev.GameServerID,
			DomainID:     ev.DomainID,
			PlayerID:     p.playerID,
			Meta:         eventMeta(*ev),
		}
		out = append(out, write{
			what: "record " + string(name),
			do:   func(ctx context.Context) error { return w.recorder.CreateEvent(ctx, rec) },
		})
	}

	return out
}

// apply runs the writes in order. While nothing has gone out a failure is
// returned and the queue redelivers the whole event. After the first write
// succeeded a redelivery would duplicate it, so the rest are retried in place
// and given up on with an error log.
func (w *Worker) apply(ctx context.Context, ev *model.GameEvent, writes []write) error {
	for i, wr := range writes {
		if i == 0 {
			if err := wr.do(ctx); err != nil {
				return fmt.Errorf("%s: %w", wr.what, err)
			}
			continue
		}

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, wr.do(ctx)
		}, backoff.WithBackOff(w.writeBackoff()), backoff.WithMaxTries(w.writeTries))
		if err != nil {
			w.logger.Error("EVENT_WRITE_FAILED",
				"err", err,
				"write", wr.what,
				"domain_id", ev.DomainID,
				"gameserver_id", ev.GameServerID,
				"event_type", ev.Type,
			)
		}
	}
	return nil
}

func (w *Worker) prepare(ctx context.Context, ev *model.GameEvent) (plan, error) {
	var p plan

	enr, err := w.enricher.Enrich(ctx, ev)
	if err != nil {
		return p, err
	}
	p.playerID = enr.PlayerID
	if ev.Payload.Player != nil && enr.PlayerID != "" {
		player := *ev.Payload.Player
		player.ID = enr.PlayerID
		ev.Payload.Player = &player
	}

	hooks, err := w.catalog.ListHooks(ctx, ev.DomainID, ev.GameServerID, ev.Type)
	if err != nil {
		return p, fmt.Errorf("list hooks: %w", err)
	}
	for _, h := range hooks {
		if w.matches(h, ev.Payload.Msg) {
			p.hooks = append(p.hooks, h)
		}
	}

	if ev.Type != model.EventChatMessage || ev.Payload.Player == nil {
		return p, nil
	}

	msg := strings.TrimSpace(ev.Payload.Msg)
	if !strings.HasPrefix(msg, enr.Prefix) {
		return p, nil
	}

	trigger := strings.Fields(strings.TrimPrefix(msg, enr.Prefix))
	if len(trigger) == 0 {
		return p, nil
	}

	cmd, err := w.catalog.GetCommand(ctx, ev.DomainID, ev.GameServerID, trigger[0])
	if err != nil {
		return p, fmt.Errorf("get command %q: %w", trigger[0], err)
	}
	if cmd == nil {
		return p, nil
	}

	p.cmd = cmd
	p.rawChat = msg
	parsed, err := command.Parse(msg, cmd.Definition, ev.GameServerID)
	if err != nil {
		if !command.IsUserError(err) {
			return p, err
		}
		p.parseErr = err
		return p, nil
	}
	p.parsed = &parsed
	return p, nil
}

// matches applies the hook's optional regex to the event message. A regex
// that does not compile never matches.
func (w *Worker) matches(h model.InstalledHook, msg string) bool {
	if h.Regex == "" {
		return true
	}

	re, ok := w.regexes.Get(h.Regex)
	if !ok {
		compiled, err := regexp.Compile(h.Regex)
		if err != nil {
			w.logger.Warn("HOOK_REGEX_INVALID", "hook_id", h.ID, "err", err)
			return false
		}
		re = compiled
		w.regexes.Add(h.Regex, re)
	}
	return re.MatchString(msg)
}

func eventMeta(ev model.GameEvent) map[string]any {
	meta := map[string]any{}
	if ev.Payload.Msg != "" {
		meta["msg"] = ev.Payload.Msg
	}
	if ev.Payload.Player != nil {
		meta["player"] = ev.Payload.Player
	}
	if len(ev.Payload.Extra) > 0 {
		meta["extra"] = ev.Payload.Extra
	}
	return meta
}
