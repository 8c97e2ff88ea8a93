package services

import (
    "testing"

    "github.com/example/sprint-rewind/internal/domain"
    "github.com/stretchr/testify/assert"
)

func TestCountStatesBuckets(t *testing.T) {
    svc := testService(newFakeStore())
    items := []domain.WorkItem{
        {ID: 1, Type: "Task", CreatedAt: tp("2024-01-01", 9)},
        {ID: 2, Type: "Task", CreatedAt: tp("2024-01-01", 9), ActivatedAt: tp("2024-01-02", 10)},
        {ID: 3, Type: "Bug", CreatedAt: tp("2024-01-01", 9), ActivatedAt: tp("2024-01-02", 10), ClosedAt: tp("2024-01-03", 16)},
        // not created yet as of the probed day
        {ID: 4, Type: "Task", CreatedAt: tp("2024-01-05", 9)},
        // not a countable type
        {ID: 5, Type: "Epic", CreatedAt: tp("2024-01-01", 9)},
    }

    todo, inProgress, done, blocked := svc.countStates(items, d("2024-01-01"))
    assert.Equal(t, 3, todo)
    assert.Zero(t, inProgress)
    assert.Zero(t, done)
    assert.Zero(t, blocked)

    todo, inProgress, done, _ = svc.countStates(items, d("2024-01-02"))
    assert.Equal(t, 1, todo)
    assert.Equal(t, 2, inProgress)
    assert.Zero(t, done)

    todo, inProgress, done, _ = svc.countStates(items, d("2024-01-03"))
    assert.Equal(t, 1, todo)
    assert.Equal(t, 1, inProgress)
    assert.Equal(t, 1, done)

    todo, _, _, _ = svc.countStates(items, d("2024-01-05"))
    assert.Equal(t, 2, todo)
}

func TestCountStatesBlockedOverlay(t *testing.T) {
    svc := testService(newFakeStore())
    items := []domain.WorkItem{
        {ID: 1, Type: "Task", CreatedAt: tp("2024-01-01", 9), ActivatedAt: tp("2024-01-01", 10), Blocked: true},
    }
    _, inProgress, _, blocked := svc.countStates(items, d("2024-01-01"))
    // a blocked item keeps its lifecycle bucket; blocked counts on top
    assert.Equal(t, 1, inProgress)
    assert.Equal(t, 1, blocked)
}
