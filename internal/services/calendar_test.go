package services

import (
    "testing"
    "time"

    "github.com/example/sprint-rewind/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestWorkingDaysSkipsWeekends(t *testing.T) {
    days, err := WorkingDays(d("2024-01-01"), d("2024-01-12"), nil)
    require.NoError(t, err)
    require.Len(t, days, 10)
    for _, day := range days {
        assert.NotEqual(t, time.Saturday, day.Weekday())
        assert.NotEqual(t, time.Sunday, day.Weekday())
    }
    assert.Equal(t, d("2024-01-01"), days[0])
    assert.Equal(t, d("2024-01-05"), days[4])
    assert.Equal(t, d("2024-01-08"), days[5])
    assert.Equal(t, d("2024-01-12"), days[9])
}

func TestWorkingDaysExcluded(t *testing.T) {
    excluded := map[string]struct{}{"2024-01-03": {}, "2024-01-10": {}}
    days, err := WorkingDays(d("2024-01-01"), d("2024-01-12"), excluded)
    require.NoError(t, err)
    require.Len(t, days, 8)
    for _, day := range days {
        assert.NotEqual(t, "2024-01-03", dayKey(day))
        assert.NotEqual(t, "2024-01-10", dayKey(day))
    }
}

func TestWorkingDaysEmptyRange(t *testing.T) {
    // a weekend-only range has no business days
    _, err := WorkingDays(d("2024-01-06"), d("2024-01-07"), nil)
    require.ErrorIs(t, err, ErrNoWorkingDays)

    _, err = WorkingDays(d("2024-01-12"), d("2024-01-01"), nil)
    require.ErrorIs(t, err, ErrNoWorkingDays)
}

func TestTeamDaysOffIntersection(t *testing.T) {
    ranges := []domain.DayOffRange{
        {Member: "alice", Start: d("2024-01-02"), End: d("2024-01-04")},
        {Member: "bob", Start: d("2024-01-03"), End: d("2024-01-05")},
    }
    off := TeamDaysOff(ranges)
    // only the overlap of both members' absences closes the sprint
    require.Len(t, off, 2)
    assert.Contains(t, off, "2024-01-03")
    assert.Contains(t, off, "2024-01-04")
}

func TestTeamDaysOffSingleMember(t *testing.T) {
    ranges := []domain.DayOffRange{
        {Member: "alice", Start: d("2024-01-02"), End: d("2024-01-02")},
    }
    off := TeamDaysOff(ranges)
    require.Len(t, off, 1)
    assert.Contains(t, off, "2024-01-02")
}

func TestTeamDaysOffWeekendSpanIgnored(t *testing.T) {
    // a range over a weekend contributes nothing for the weekend itself
    ranges := []domain.DayOffRange{
        {Member: "alice", Start: d("2024-01-06"), End: d("2024-01-07")},
    }
    off := TeamDaysOff(ranges)
    assert.Empty(t, off)
}

func TestTeamDaysOffNoMembers(t *testing.T) {
    assert.Empty(t, TeamDaysOff(nil))
}

func TestTeamWideDayOffClosesCalendar(t *testing.T) {
    // every member off on day 4: that day disappears from the calendar
    ranges := []domain.DayOffRange{
        {Member: "alice", Start: d("2024-01-04"), End: d("2024-01-04")},
        {Member: "bob", Start: d("2024-01-04"), End: d("2024-01-04")},
    }
    days, err := WorkingDays(d("2024-01-01"), d("2024-01-12"), TeamDaysOff(ranges))
    require.NoError(t, err)
    require.Len(t, days, 9)
    for _, day := range days { assert.NotEqual(t, "2024-01-04", dayKey(day)) }

    // one member still working keeps the day open
    partial := []domain.DayOffRange{
        {Member: "alice", Start: d("2024-01-04"), End: d("2024-01-04")},
        {Member: "bob", Start: d("2024-01-09"), End: d("2024-01-09")},
    }
    days, err = WorkingDays(d("2024-01-01"), d("2024-01-12"), TeamDaysOff(partial))
    require.NoError(t, err)
    assert.Len(t, days, 10)
}
