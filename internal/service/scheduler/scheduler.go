// Package scheduler fires installed cronjobs for the game servers this worker
// is connected to.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
	"github.com/gettakaro/takaro-worker/internal/domain/registry"
)

const (
	scheduleCacheSize = 2048
	listConcurrency   = 8
)

// Servers lists the game servers currently registered with this process.
type Servers interface {
	List() []registry.Status
}

type CronjobSource interface {
	ListCronjobs(ctx context.Context, domainID, gameServerID string) ([]model.InstalledCronjob, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job *model.JobData) error
}

type Scheduler struct {
	servers   Servers
	cronjobs  CronjobSource
	queue     Enqueuer
	logger    *slog.Logger
	interval  time.Duration
	schedules *lru.Cache[string, *Schedule]
	now       func() time.Time
}

func New(servers Servers, cronjobs CronjobSource, queue Enqueuer, logger *slog.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	schedules, _ := lru.New[string, *Schedule](scheduleCacheSize)
	return &Scheduler{
		servers:   servers,
		cronjobs:  cronjobs,
		queue:     queue,
		logger:    logger,
		interval:  interval,
		schedules: schedules,
		now:       time.Now,
	}
}

// Run ticks on interval boundaries until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.now().Truncate(s.interval).Add(s.interval)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		n := s.Tick(ctx, next)
		s.logger.Debug("CRON_TICK", "at", next, "enqueued", n)
	}
}

// Tick enqueues a cronjobs job for every installed cronjob whose schedule
// matches at. A server whose cronjobs cannot be listed is skipped for this tick.
func (s *Scheduler) Tick(ctx context.Context, at time.Time) int {
	at = at.UTC().Truncate(time.Minute)

	servers := s.servers.List()
	due := make([][]*model.JobData, len(servers))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, st := range servers {
		g.Go(func() error {
			cronjobs, err := s.cronjobs.ListCronjobs(gCtx, st.DomainID, st.GameServerID)
			if err != nil {
				s.logger.Warn("CRON_LIST_FAILED", "err", err, "gameserver_id", st.GameServerID, "domain_id", st.DomainID)
				return nil
			}
			for _, cj := range cronjobs {
				if !s.due(cj, at) {
					continue
				}
				due[i] = append(due[i], &model.JobData{
					Kind:         model.QueueCronjobs,
					FunctionID:   cj.FunctionID,
					DomainID:     st.DomainID,
					ItemID:       cj.ID,
					ModuleID:     cj.ModuleID,
					GameServerID: st.GameServerID,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	enqueued := 0
	for _, jobs := range due {
		for _, job := range jobs {
			if err := s.queue.Enqueue(ctx, job); err != nil {
				s.logger.Error("JOB_ENQUEUE_FAILED", "err", err, "queue", job.Kind, "function_id", job.FunctionID)
				continue
			}
			enqueued++
		}
	}
	return enqueued
}

func (s *Scheduler) due(cj model.InstalledCronjob, at time.Time) bool {
	sched, ok := s.schedules.Get(cj.TemporalValue)
	if !ok {
		parsed, err := ParseSchedule(cj.TemporalValue)
		if err != nil {
			s.logger.Warn("CRON_EXPRESSION_INVALID", "cronjob_id", cj.ID, "err", err)
			return false
		}
		sched = parsed
		s.schedules.Add(cj.TemporalValue, sched)
	}
	return sched.Matches(at)
}
