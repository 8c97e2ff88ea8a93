/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/example/sprint-rewind/internal/config"
    apihttp "github.com/example/sprint-rewind/internal/http"
    "github.com/example/sprint-rewind/internal/jobs"
    "github.com/example/sprint-rewind/internal/logger"
    "github.com/example/sprint-rewind/internal/repo"
    "github.com/example/sprint-rewind/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()

    // Services
    repository := repo.NewRepository(db, log)
    svc := services.New(cfg, log, repository)
    backfill := services.NewBackfill(cfg, log, svc)

    rebuild := func(ctx context.Context, names []string) {
        rep := backfill.RebuildSprints(ctx, names)
        log.Info().Int("processed", rep.Processed).Int("failed", rep.Failed).Msg("rebuild finished")
        for name, reason := range rep.Failures {
            log.Error().Str("sprint", name).Str("reason", reason).Msg("rebuild failure")
        }
    }

    // HTTP server (Gin)
    router := apihttp.NewRouter(cfg, log, svc, rebuild)

    // Cron: daily live snapshot capture
    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    // graceful shutdown
    srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
    errCh := make(chan error, 1)
    go func() { errCh <- srv.ListenAndServe() }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
        shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancelShutdown()
        if err := srv.Shutdown(shutdownCtx); err != nil { log.Error().Err(err).Msg("http shutdown error") }
    case err := <-errCh:
        if err != nil && !errors.Is(err, http.ErrServerClosed) { log.Error().Err(err).Msg("http server error") }
    }
}
