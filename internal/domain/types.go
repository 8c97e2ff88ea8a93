package domain

import "time"

// WorkItem is the current state of one tracked item, owned by the ingestion
// pipeline and read-only here. Pointer fields distinguish absent from zero.
type WorkItem struct {
    ID            int64
    Type          string
    State         string
    IterationPath string
    CreatedAt     *time.Time
    ActivatedAt   *time.Time
    ClosedAt      *time.Time
    ChangedAt     *time.Time

    RemainingWork *float64
    CompletedWork *float64

    // Derived by the enrichment pass from the revision stream.
    InitialRemaining *float64
    LastRemaining    *float64
    DoneRemaining    *float64

    Blocked bool
    Removed bool
}

// Revision is one immutable change event. Only changed fields are set; nil
// means the field did not change in this revision.
type Revision struct {
    ItemID        int64
    Rev           int
    RemainingWork *float64
    State         *string
    IterationPath *string
    ChangedBy     string
    ChangedAt     time.Time
}

type Sprint struct {
    ID           int64
    Name         string
    Path         string
    StartsAt     time.Time
    EndsAt       time.Time
    PlannedHours *float64
    Closed       bool
    DaysOff      []DayOffRange
}

// DayOffRange is one member's time off, inclusive on both ends.
type DayOffRange struct {
    Member string
    Start  time.Time
    End    time.Time
}

// Snapshot is one (sprint, day) row. Remaining/Completed/Total/Ideal are
// cumulative as of the day; ScopeAdded/ScopeRemoved are that day's movements.
type Snapshot struct {
    SprintID       int64
    Day            time.Time
    RemainingWork  float64
    CompletedWork  float64
    TotalWork      float64
    IdealRemaining float64
    ScopeAdded     float64
    ScopeRemoved   float64

    CountTodo       int
    CountInProgress int
    CountDone       int
    CountBlocked    int
}
