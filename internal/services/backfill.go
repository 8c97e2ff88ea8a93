/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/example/sprint-rewind/internal/config"
    "github.com/example/sprint-rewind/internal/domain"
    "github.com/example/sprint-rewind/internal/repo"
    "github.com/rs/zerolog"
)

// Backfill drives historical reconstruction across many sprints. Transient
// storage failures are retried with fixed backoff before a sprint is counted
// as failed; one sprint's failure never blocks the rest.
type Backfill struct {
    cfg config.Config
    log zerolog.Logger
    svc *Service

    // overridable in tests; defaults to repo.IsTransient
    isTransient func(error) bool
    sleep       func(ctx context.Context, d time.Duration) error
}

func NewBackfill(cfg config.Config, log zerolog.Logger, svc *Service) *Backfill {
    return &Backfill{cfg: cfg, log: log, svc: svc, isTransient: repo.IsTransient, sleep: sleepCtx}
}

// sleepCtx waits for d or until ctx is canceled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

// Report is what operators see: per-sprint outcome counts plus the concrete
// reason for every failure.
type Report struct {
    Processed int
    Failed    int
    Failures  map[string]string
}

func (b *Backfill) RebuildSprints(ctx context.Context, names []string) Report {
    sprints := make([]domain.Sprint, 0, len(names))
    rep := Report{Failures: map[string]string{}}
    for _, name := range names {
        sp, err := b.svc.store.GetSprintByName(ctx, name)
        if err != nil {
            rep.Failed++
            rep.Failures[name] = fmt.Sprintf("load sprint: %v", err)
            continue
        }
        sprints = append(sprints, *sp)
    }
    b.rebuild(ctx, sprints, &rep)
    return rep
}

func (b *Backfill) RebuildClosedSprints(ctx context.Context) (Report, error) {
    sprints, err := b.svc.store.ListClosedSprints(ctx)
    if err != nil { return Report{}, err }
    rep := Report{Failures: map[string]string{}}
    b.rebuild(ctx, sprints, &rep)
    return rep, nil
}

func (b *Backfill) rebuild(ctx context.Context, sprints []domain.Sprint, rep *Report) {
    names := make([]string, 0, len(sprints))
    for _, sp := range sprints { names = append(names, sp.Name) }
    sprintsJSON, _ := json.Marshal(names)
    runID, err := b.svc.store.StartJobRun(ctx, string(sprintsJSON))
    if err != nil { b.log.Error().Err(err).Msg("start job run failed") }

    for i := range sprints {
        sp := &sprints[i]
        if err := b.withRetry(ctx, sp.Name, func() error { return b.svc.recompute(ctx, sp) }); err != nil {
            rep.Failed++
            rep.Failures[sp.Name] = err.Error()
            continue
        }
        rep.Processed++
    }

    if runID != 0 {
        errStr := ""
        if rep.Failed > 0 { errStr = fmt.Sprintf("%d sprint(s) failed", rep.Failed) }
        _ = b.svc.store.FinishJobRun(ctx, runID, rep.Processed, rep.Failed, rep.Failed == 0, errStr)
    }
    b.log.Info().Int("processed", rep.Processed).Int("failed", rep.Failed).Msg("backfill done")
}

// withRetry retries transient storage errors with the configured fixed
// backoffs, then escalates. Non-transient errors fail immediately.
func (b *Backfill) withRetry(ctx context.Context, name string, fn func() error) error {
    retries := b.cfg.BackfillRetries
    if retries <= 0 { retries = 3 }
    backoffs := b.cfg.BackfillBackoffs
    var lastErr error
    for attempt := 0; attempt <= retries; attempt++ {
        lastErr = fn()
        if lastErr == nil { return nil }
        if !b.isTransient(lastErr) { return lastErr }
        if attempt == retries { break }
        wait := 5 * time.Second
        if attempt < len(backoffs) { wait = backoffs[attempt] }
        b.log.Warn().Err(lastErr).Str("sprint", name).Dur("backoff", wait).Int("attempt", attempt+1).
            Msg("transient storage error, retrying")
        if err := b.sleep(ctx, wait); err != nil { return err }
    }
    return fmt.Errorf("retries exhausted: %w", lastErr)
}

// EnrichItemHistory derives initial/last/done remaining for every item from
// its revision stream. The pass is best-effort: one item's fetch failure is
// logged and skipped, never retried, and never aborts the batch.
func (b *Backfill) EnrichItemHistory(ctx context.Context) (int, int, error) {
    ids, err := b.svc.store.ListItemIDs(ctx)
    if err != nil { return 0, 0, err }
    updated, skipped := 0, 0
    for _, id := range ids {
        revs, err := b.svc.store.ListItemRevisions(ctx, id)
        if err != nil {
            skipped++
            b.log.Warn().Err(err).Int64("item", id).Msg("enrich: revision fetch failed, skipping")
            continue
        }
        initial, last, done := b.svc.deriveHistoryFields(revs)
        if err := b.svc.store.UpdateItemHistoryFields(ctx, id, initial, last, done); err != nil {
            skipped++
            b.log.Warn().Err(err).Int64("item", id).Msg("enrich: update failed, skipping")
            continue
        }
        updated++
    }
    b.log.Info().Int("updated", updated).Int("skipped", skipped).Msg("item history enrichment done")
    return updated, skipped, nil
}

// deriveHistoryFields folds one item's revisions into the three derived
// remaining-work fields: first positive ever observed, most recent positive,
// and the value converted at the completion transition.
func (s *Service) deriveHistoryFields(revs []domain.Revision) (initial, last, done *float64) {
    var prev *float64
    state := ""
    for _, rv := range revs {
        if rv.State != nil { state = *rv.State }
        explicit := rv.RemainingWork != nil
        cur := prev
        if explicit { cur = rv.RemainingWork }
        doneLike := s.isDoneState(state)
        if !explicit && doneLike {
            zero := 0.0
            cur = &zero
        }
        if explicit && *rv.RemainingWork > 0 {
            if initial == nil { initial = rv.RemainingWork }
            last = rv.RemainingWork
        }
        if prev != nil && *prev > 0 && cur != nil && *cur == 0 && doneLike {
            done = prev
        }
        prev = cur
    }
    return initial, last, done
}
