/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "math"
    "time"

    "github.com/example/sprint-rewind/internal/domain"
)

// aggregate walks the working days in order, folding the summed per-day
// deltas into cumulative totals and the reactive ideal curve. Rounding
// happens only here, at the recording boundary.
func (s *Service) aggregate(sprint *domain.Sprint, days []time.Time, baseline float64, deltas *dayDeltas, items []domain.WorkItem) []domain.Snapshot {
    scopeAccum := baseline
    remainingAccum := baseline
    completedAccum := 0.0
    idealCursor := baseline

    snaps := make([]domain.Snapshot, 0, len(days))
    for i, day := range days {
        key := dayKey(day)
        added := deltas.added[key]
        removed := deltas.removed[key]
        completed := deltas.completed[key]
        net := added - removed

        scopeAccum += net
        if scopeAccum < 0 { scopeAccum = 0 }
        remainingAccum += net - completed
        if remainingAccum < 0 { remainingAccum = 0 }
        completedAccum += completed
        if completedAccum < 0 { completedAccum = 0 }

        // The ideal line re-levels to a fresh linear burn whenever scope
        // moves, instead of staying the day-one straight line.
        if i > 0 {
            idealCursor += net
            if idealCursor < 0 { idealCursor = 0 }
            steps := len(days) - i
            idealCursor -= idealCursor / float64(steps)
            if idealCursor < 0 { idealCursor = 0 }
        }

        todo, inProgress, done, blocked := s.countStates(items, day)
        snaps = append(snaps, domain.Snapshot{
            SprintID:        sprint.ID,
            Day:             day,
            RemainingWork:   math.Round(remainingAccum),
            CompletedWork:   math.Round(completedAccum),
            TotalWork:       math.Round(scopeAccum),
            IdealRemaining:  math.Round(idealCursor),
            ScopeAdded:      math.Round(added),
            ScopeRemoved:    math.Round(removed),
            CountTodo:       todo,
            CountInProgress: inProgress,
            CountDone:       done,
            CountBlocked:    blocked,
        })
    }
    return snaps
}
