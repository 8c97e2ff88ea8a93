/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "errors"
    "time"

    "github.com/example/sprint-rewind/internal/domain"
)

// ErrNoWorkingDays signals the degenerate calendar: the caller must surface a
// skipped sprint instead of writing an empty series.
var ErrNoWorkingDays = errors.New("no working days in range")

const dayFormat = "2006-01-02"

func dayOf(t time.Time) time.Time {
    t = t.UTC()
    return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time) string { return dayOf(t).Format(dayFormat) }

func isWeekend(t time.Time) bool {
    wd := t.Weekday()
    return wd == time.Saturday || wd == time.Sunday
}

// WorkingDays expands [start, end] into the ordered business days, skipping
// weekends and the excluded set (keys in dayFormat).
func WorkingDays(start, end time.Time, excluded map[string]struct{}) ([]time.Time, error) {
    var days []time.Time
    for d := dayOf(start); !d.After(dayOf(end)); d = d.AddDate(0, 0, 1) {
        if isWeekend(d) { continue }
        if _, off := excluded[dayKey(d)]; off { continue }
        days = append(days, d)
    }
    if len(days) == 0 { return nil, ErrNoWorkingDays }
    return days, nil
}

// TeamDaysOff intersects every member's day-off set: a day closes the sprint
// only when the whole team is off. Weekends are dropped during expansion so a
// range spanning a weekend does not make Saturday "off for everyone".
// Zero members means no sprint-wide exclusion at all.
func TeamDaysOff(ranges []domain.DayOffRange) map[string]struct{} {
    byMember := map[string]map[string]struct{}{}
    for _, r := range ranges {
        set := byMember[r.Member]
        if set == nil { set = map[string]struct{}{}; byMember[r.Member] = set }
        for d := dayOf(r.Start); !d.After(dayOf(r.End)); d = d.AddDate(0, 0, 1) {
            if isWeekend(d) { continue }
            set[dayKey(d)] = struct{}{}
        }
    }
    if len(byMember) == 0 { return map[string]struct{}{} }
    var common map[string]struct{}
    for _, set := range byMember {
        if common == nil {
            common = map[string]struct{}{}
            for k := range set { common[k] = struct{}{} }
            continue
        }
        for k := range common {
            if _, ok := set[k]; !ok { delete(common, k) }
        }
    }
    return common
}
