/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "math"
    "sort"
    "time"

    "github.com/example/sprint-rewind/internal/domain"
)

// dayDeltas accumulates per-working-day hour movements across all items,
// keyed by day string. Scope enter/exit and size changes land in added and
// removed; completions (and reopen debits) land in completed.
type dayDeltas struct {
    added     map[string]float64
    removed   map[string]float64
    completed map[string]float64
}

func newDayDeltas() *dayDeltas {
    return &dayDeltas{
        added:     map[string]float64{},
        removed:   map[string]float64{},
        completed: map[string]float64{},
    }
}

// dayFor maps a revision timestamp to the nearest working day at or after
// it. Late revisions fold into the last working day so an end-of-sprint
// completion landing on a weekend still counts.
func dayFor(ts time.Time, days []time.Time) string {
    d := dayOf(ts)
    for _, wd := range days {
        if !d.After(wd) { return dayKey(wd) }
    }
    return dayKey(days[len(days)-1])
}

// replayCursor is the carried-forward state of one item between revisions.
// Each item gets its own cursor: replay is independent and side-effect-free
// per item.
type replayCursor struct {
    remaining     *float64
    state         string
    path          string
    completed     float64
    seenRemaining bool
}

// replayItem folds one item's chronologically ordered revisions into per-day
// deltas. Revisions before day one only advance the cursor; their effect is
// the baseline's concern.
func (s *Service) replayItem(item domain.WorkItem, revs []domain.Revision, sprint *domain.Sprint, days []time.Time, out *dayDeltas) {
    if len(revs) == 0 {
        revs = s.synthesizeRevision(item)
        if len(revs) == 0 { return }
    }
    ordered := make([]domain.Revision, len(revs))
    copy(ordered, revs)
    sort.SliceStable(ordered, func(i, j int) bool {
        if ordered[i].Rev != ordered[j].Rev { return ordered[i].Rev < ordered[j].Rev }
        return ordered[i].ChangedAt.Before(ordered[j].ChangedAt)
    })

    dayOne := days[0]
    cur := replayCursor{state: "", path: ""}
    for _, rv := range ordered {
        explicit := rv.RemainingWork != nil

        remaining := cur.remaining
        if explicit {
            v := *rv.RemainingWork
            remaining = &v
        }
        state := cur.state
        if rv.State != nil { state = *rv.State }
        path := cur.path
        if rv.IterationPath != nil { path = *rv.IterationPath }

        doneLike := s.isDoneState(state)
        // The tracker frequently omits remaining exactly on the completion
        // transition; a done-like state with no value means zero remaining.
        if !explicit && doneLike {
            zero := 0.0
            remaining = &zero
        }

        // First explicit estimate while already inside the sprint: the
        // previous remaining is zero, not undefined.
        prev := cur.remaining
        if !cur.seenRemaining && explicit && inSprintPath(path, sprint.Path) {
            zero := 0.0
            prev = &zero
        }

        if rv.ChangedAt.Before(dayOne) {
            s.advanceCursor(&cur, remaining, state, path, explicit)
            continue
        }

        day := dayFor(rv.ChangedAt, days)
        wasIn := inSprintPath(cur.path, sprint.Path)
        isIn := inSprintPath(path, sprint.Path)

        switch {
        case !wasIn && isIn:
            // Scope enter: remaining plus any hours the item already burned
            // re-enter the ledger together.
            out.added[day] += deref(remaining) + cur.completed
            if cur.completed > 0 { out.completed[day] += cur.completed }
        case wasIn && !isIn:
            // Scope exit: the combined total leaves, including the item's
            // completed contribution.
            out.removed[day] += deref(remaining) + cur.completed
            out.completed[day] -= cur.completed
        case isIn:
            switch {
            case prev != nil && *prev > 0 && remaining != nil && *remaining == 0 && doneLike:
                // Completion: the previous remaining converts to completed.
                // Not a scope removal.
                out.completed[day] += *prev
                cur.completed += *prev
            case prev != nil && *prev == 0 && remaining != nil && *remaining > 0 && cur.completed > 0:
                // Reopen: hours move back from completed to remaining, capped
                // by what the item actually completed.
                back := math.Min(cur.completed, *remaining)
                out.completed[day] -= back
                cur.completed -= back
            case explicit && prev != nil:
                diff := *remaining - *prev
                if diff > 0 {
                    out.added[day] += diff
                } else if diff < 0 {
                    out.removed[day] += -diff
                }
            }
        }
        s.advanceCursor(&cur, remaining, state, path, explicit)
    }
}

func (s *Service) advanceCursor(cur *replayCursor, remaining *float64, state, path string, explicit bool) {
    cur.remaining = remaining
    cur.state = state
    cur.path = path
    if explicit { cur.seenRemaining = true }
}

// synthesizeRevision degrades an item that was never observed changing into a
// single point built from its current fields, per the data-model contract.
func (s *Service) synthesizeRevision(item domain.WorkItem) []domain.Revision {
    at := item.CreatedAt
    if at == nil { at = item.ChangedAt }
    if at == nil { return nil }
    var remaining *float64
    if v := firstPositive(item.RemainingWork, item.InitialRemaining); v > 0 {
        remaining = &v
    } else if item.RemainingWork != nil {
        remaining = item.RemainingWork
    }
    state := item.State
    path := item.IterationPath
    return []domain.Revision{{
        ItemID:        item.ID,
        Rev:           1,
        RemainingWork: remaining,
        State:         &state,
        IterationPath: &path,
        ChangedAt:     *at,
    }}
}
