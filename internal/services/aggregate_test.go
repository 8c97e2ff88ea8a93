package services

import (
    "context"
    "testing"

    "github.com/example/sprint-rewind/internal/domain"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestAggregateFoldsDeltas(t *testing.T) {
    svc := testService(newFakeStore())
    sprint := testSprint()
    days := sprintDays(t, sprint)

    deltas := newDayDeltas()
    deltas.completed["2024-01-01"] = 5
    deltas.added["2024-01-02"] = 4
    deltas.removed["2024-01-03"] = 2
    deltas.completed["2024-01-03"] = 8

    snaps := svc.aggregate(sprint, days, 20, deltas, nil)
    require.Len(t, snaps, 10)

    assert.Equal(t, 20.0, snaps[0].TotalWork)
    assert.Equal(t, 15.0, snaps[0].RemainingWork)
    assert.Equal(t, 5.0, snaps[0].CompletedWork)
    // day one: the ideal line starts at the baseline
    assert.Equal(t, 20.0, snaps[0].IdealRemaining)

    assert.Equal(t, 24.0, snaps[1].TotalWork)
    assert.Equal(t, 19.0, snaps[1].RemainingWork)
    assert.Equal(t, 4.0, snaps[1].ScopeAdded)
    // re-leveled: (20+4) - 24/9, rounded
    assert.Equal(t, 21.0, snaps[1].IdealRemaining)

    assert.Equal(t, 22.0, snaps[2].TotalWork)
    assert.Equal(t, 9.0, snaps[2].RemainingWork)
    assert.Equal(t, 13.0, snaps[2].CompletedWork)
    assert.Equal(t, 2.0, snaps[2].ScopeRemoved)

    // the ideal line always lands on zero on the last day
    assert.Equal(t, 0.0, snaps[9].IdealRemaining)
}

func TestAggregateNeverGoesNegative(t *testing.T) {
    svc := testService(newFakeStore())
    sprint := testSprint()
    days := sprintDays(t, sprint)

    deltas := newDayDeltas()
    deltas.completed["2024-01-01"] = 10
    deltas.removed["2024-01-02"] = 7

    snaps := svc.aggregate(sprint, days, 0, deltas, nil)
    for _, sn := range snaps {
        assert.GreaterOrEqual(t, sn.RemainingWork, 0.0, dayKey(sn.Day))
        assert.GreaterOrEqual(t, sn.TotalWork, 0.0, dayKey(sn.Day))
        assert.GreaterOrEqual(t, sn.IdealRemaining, 0.0, dayKey(sn.Day))
    }
}

func TestRecomputeSprintIsIdempotent(t *testing.T) {
    store := newFakeStore()
    sprint := testSprint()
    store.sprints[sprint.ID] = sprint
    store.items = []domain.WorkItem{
        {ID: 1, Type: "Task", IterationPath: sprint.Path, CreatedAt: tp("2023-12-28", 9)},
        {ID: 2, Type: "Task", IterationPath: sprint.Path, CreatedAt: tp("2024-01-02", 9), RemainingWork: fp(5)},
    }
    store.revs = map[int64][]domain.Revision{
        1: {
            {ItemID: 1, Rev: 1, ChangedAt: at("2023-12-28", 9), IterationPath: sp(sprint.Path), RemainingWork: fp(8)},
            {ItemID: 1, Rev: 2, ChangedAt: at("2024-01-03", 15), State: sp("Done")},
        },
    }
    svc := testService(store)

    require.NoError(t, svc.RecomputeSprint(context.Background(), sprint.ID))
    first := make(map[string]domain.Snapshot, len(store.snaps))
    for k, v := range store.snaps { first[k] = v }
    require.Len(t, first, 10)

    require.NoError(t, svc.RecomputeSprint(context.Background(), sprint.ID))
    assert.Equal(t, first, store.snaps)

    sn, err := store.GetSnapshot(context.Background(), sprint.ID, d("2024-01-01"))
    require.NoError(t, err)
    require.NotNil(t, sn)
    assert.Equal(t, 8.0, sn.TotalWork)
    assert.Equal(t, 8.0, sn.RemainingWork)

    sn, err = store.GetSnapshot(context.Background(), sprint.ID, d("2024-01-03"))
    require.NoError(t, err)
    require.NotNil(t, sn)
    assert.Equal(t, 8.0, sn.CompletedWork)
    // item 2 entered scope on day 2 with 5 hours
    assert.Equal(t, 13.0, sn.TotalWork)
    assert.Equal(t, 5.0, sn.RemainingWork)
}
