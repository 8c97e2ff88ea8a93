/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "math"
    "time"

    "github.com/example/sprint-rewind/internal/domain"
)

// CaptureDailySnapshots writes today's snapshot row for every open sprint
// from current item state, without historical replay. This is the routine
// daily capture path; full reconstruction stays available for rebuilds.
func (s *Service) CaptureDailySnapshots(ctx context.Context) error {
    sprints, err := s.store.ListOpenSprints(ctx)
    if err != nil { return err }
    names := make([]string, 0, len(sprints))
    for _, sp := range sprints { names = append(names, sp.Name) }
    sprintsJSON, _ := json.Marshal(names)
    runID, err := s.store.StartJobRun(ctx, string(sprintsJSON))
    if err != nil { s.log.Error().Err(err).Msg("start job run failed") }

    now := time.Now()
    processed, failed := 0, 0
    var lastErr error
    for i := range sprints {
        if err := s.captureSprint(ctx, &sprints[i], now); err != nil {
            if errors.Is(err, errNonWorkingDay) {
                s.log.Info().Str("sprint", sprints[i].Name).Msg("daily capture skipped: non-working day")
                continue
            }
            failed++
            lastErr = err
            s.log.Error().Err(err).Str("sprint", sprints[i].Name).Msg("daily capture failed")
            continue
        }
        processed++
    }
    if runID != 0 {
        errStr := ""
        if lastErr != nil { errStr = lastErr.Error() }
        _ = s.store.FinishJobRun(ctx, runID, processed, failed, lastErr == nil, errStr)
    }
    if lastErr != nil { return fmt.Errorf("daily capture: %d sprint(s) failed, last: %w", failed, lastErr) }
    return nil
}

var errNonWorkingDay = errors.New("today is not a working day for this sprint")

func (s *Service) captureSprint(ctx context.Context, sprint *domain.Sprint, now time.Time) error {
    days, err := WorkingDays(sprint.StartsAt, sprint.EndsAt, TeamDaysOff(sprint.DaysOff))
    if err != nil { return fmt.Errorf("sprint %q: %w", sprint.Name, err) }
    today := dayOf(now)
    todayIdx := -1
    for i, d := range days {
        if d.Equal(today) { todayIdx = i; break }
    }
    if todayIdx < 0 { return errNonWorkingDay }

    // Stale future-dated rows from a prior erroneous run must not survive.
    if err := s.store.DeleteSnapshotsAfter(ctx, sprint.ID, today); err != nil { return err }

    items, err := s.store.ListSprintItems(ctx, sprint.Path)
    if err != nil { return err }

    var remaining, completed float64
    for _, it := range items {
        if !s.isHoursType(it.Type) { continue }
        if s.isDoneState(it.State) {
            completed += s.completedForDoneItem(it, today)
            continue
        }
        remaining += s.remainingForItem(it)
        completed += deref(it.CompletedWork)
    }
    total := remaining + completed

    var prev *domain.Snapshot
    if todayIdx > 0 {
        prev, err = s.store.GetSnapshot(ctx, sprint.ID, days[todayIdx-1])
        if err != nil { return err }
    }
    ideal := total
    added, removed := 0.0, 0.0
    if prev != nil {
        net := total - prev.TotalWork
        if net > 0 { added = net } else { removed = -net }
        ideal = prev.IdealRemaining + net
        if ideal < 0 { ideal = 0 }
        steps := len(days) - todayIdx
        ideal -= ideal / float64(steps)
        if ideal < 0 { ideal = 0 }
    }

    todo, inProgress, done, blocked := s.countStates(items, today)
    snap := domain.Snapshot{
        SprintID:        sprint.ID,
        Day:             today,
        RemainingWork:   math.Round(remaining),
        CompletedWork:   math.Round(completed),
        TotalWork:       math.Round(total),
        IdealRemaining:  math.Round(ideal),
        ScopeAdded:      math.Round(added),
        ScopeRemoved:    math.Round(removed),
        CountTodo:       todo,
        CountInProgress: inProgress,
        CountDone:       done,
        CountBlocked:    blocked,
    }
    return s.store.UpsertSnapshot(ctx, snap)
}

// remainingForItem resolves an open item's remaining hours through the
// fallback chain: current value, then the derived history fields, then a
// reconstruction from initial minus completed.
func (s *Service) remainingForItem(it domain.WorkItem) float64 {
    var derived *float64
    if it.InitialRemaining != nil && it.CompletedWork != nil {
        d := *it.InitialRemaining - *it.CompletedWork
        if d > 0 { derived = &d }
    }
    return firstPositive(it.RemainingWork, it.LastRemaining, derived, it.InitialRemaining)
}

// completedForDoneItem resolves the hours a finished item contributed. Items
// closed today often arrive before the tracker records a remaining-work
// change for the day; their last pre-today remaining stands in, not zero.
func (s *Service) completedForDoneItem(it domain.WorkItem, today time.Time) float64 {
    closedToday := it.ClosedAt != nil && dayOf(*it.ClosedAt).Equal(today)
    if closedToday && deref(it.RemainingWork) == 0 {
        if v := firstPositive(it.LastRemaining, it.CompletedWork, it.DoneRemaining, it.InitialRemaining); v > 0 { return v }
        return 0
    }
    return firstPositive(it.CompletedWork, it.DoneRemaining, it.LastRemaining, it.InitialRemaining)
}
