/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "sync"
    "time"

    "github.com/example/sprint-rewind/internal/config"
    "github.com/example/sprint-rewind/internal/domain"
    "github.com/rs/zerolog"
)

// Baseline is the pre-sprint "day zero" planned effort. Contributors is kept
// for diagnosability: zero contributors with non-zero hours means the planned
// fallback was used, zero/zero is a zero-evidence sprint.
type Baseline struct {
    Hours        float64
    Contributors int
}

type BaselineCalculator struct {
    cfg config.Config
    log zerolog.Logger
    svc *Service

    mu    sync.Mutex
    cache map[int64]cachedBaseline
}

type cachedBaseline struct {
    val Baseline
    at  time.Time
}

func NewBaselineCalculator(cfg config.Config, log zerolog.Logger, svc *Service) *BaselineCalculator {
    return &BaselineCalculator{cfg: cfg, log: log, svc: svc, cache: map[int64]cachedBaseline{}}
}

// Compute replays each item's pre-sprint revisions and sums the last-known
// remaining values of items that demonstrably belonged to the sprint before
// day one. Recomputation is read-heavy, so results are cached per sprint with
// a short TTL.
func (b *BaselineCalculator) Compute(ctx context.Context, sprint *domain.Sprint, items []domain.WorkItem, revs map[int64][]domain.Revision, dayOne time.Time) Baseline {
    ttl := b.cfg.BaselineCacheTTL
    if ttl > 0 {
        b.mu.Lock()
        if c, ok := b.cache[sprint.ID]; ok && time.Since(c.at) < ttl {
            b.mu.Unlock()
            return c.val
        }
        b.mu.Unlock()
    }

    var total float64
    contributors := 0
    for _, it := range items {
        if !b.svc.isHoursType(it.Type) { continue }
        if it.CreatedAt == nil || !it.CreatedAt.Before(dayOne) { continue }
        var lastRemaining float64
        lastState := ""
        lastPath := ""
        sawPathEvidence := false
        for _, rv := range revs[it.ID] {
            if !rv.ChangedAt.Before(dayOne) { break }
            if rv.State != nil { lastState = *rv.State }
            if rv.RemainingWork != nil {
                lastRemaining = *rv.RemainingWork
            } else if b.svc.isDoneState(lastState) {
                // completion transitions routinely omit remaining; a done-like
                // state with the field absent means zero, same as replay
                lastRemaining = 0
            }
            if rv.IterationPath != nil {
                lastPath = *rv.IterationPath
                sawPathEvidence = true
            }
        }
        // No explicit membership evidence before day one means the item is
        // not counted, even if it carried hours: it may have joined later.
        if !sawPathEvidence || !inSprintPath(lastPath, sprint.Path) { continue }
        if lastRemaining <= 0 { continue }
        total += lastRemaining
        contributors++
    }

    if contributors == 0 && total == 0 {
        if planned := deref(sprint.PlannedHours); planned > 0 {
            b.log.Info().Str("sprint", sprint.Name).Float64("planned", planned).
                Msg("baseline: no revision evidence, using recorded planned hours")
            total = planned
        }
    }

    out := Baseline{Hours: total, Contributors: contributors}
    if ttl > 0 {
        b.mu.Lock()
        b.cache[sprint.ID] = cachedBaseline{val: out, at: time.Now()}
        b.mu.Unlock()
    }
    return out
}
