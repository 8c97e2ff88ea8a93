package jobs

import (
    "context"
    "time"

    "github.com/example/sprint-rewind/internal/config"
    "github.com/example/sprint-rewind/internal/repo"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface {
    CaptureDailySnapshots(ctx context.Context) error
}

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    repo *repo.Repository
    c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
    loc, err := time.LoadLocation(cfg.TZ)
    if err != nil { loc = time.Local }
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
    if _, err := c.AddFunc(cfg.SnapshotCron, cr.daily); err != nil {
        log.Error().Err(err).Str("schedule", cfg.SnapshotCron).Msg("cron: bad schedule, daily capture disabled")
    }
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

func (cr *Cron) daily() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute); defer cancel()
    const lockKey int64 = 737373
    ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: already running elsewhere"); return }
    defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()
    cr.log.Info().Msg("cron: daily snapshot capture")
    if err := cr.svc.CaptureDailySnapshots(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: capture failed") }
}
