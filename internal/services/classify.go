package services

import (
    "time"

    "github.com/example/sprint-rewind/internal/domain"
)

// countStates buckets countable items into todo/in-progress/done as of the
// day's end using the items' stored lifecycle timestamps, for cumulative-flow
// counts. This deliberately approximates history from terminal timestamps
// (an activation or closing date edited after the fact misplaces the item on
// past days); it matches the source system and must not stand in for the
// hours-based replay. Blocked is an overlay count, not a fourth bucket.
func (s *Service) countStates(items []domain.WorkItem, day time.Time) (todo, inProgress, done, blocked int) {
    dayEnd := dayOf(day).AddDate(0, 0, 1)
    for _, it := range items {
        if !s.isCountType(it.Type) { continue }
        // Items that appear only after this day are not counted at all.
        if it.CreatedAt != nil && !it.CreatedAt.Before(dayEnd) { continue }
        switch {
        case it.ClosedAt != nil && it.ClosedAt.Before(dayEnd):
            done++
        case it.ActivatedAt != nil && it.ActivatedAt.Before(dayEnd):
            inProgress++
        default:
            todo++
        }
        if it.Blocked { blocked++ }
    }
    return todo, inProgress, done, blocked
}
