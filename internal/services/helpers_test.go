package services

import (
    "context"
    "fmt"
    "time"

    "github.com/example/sprint-rewind/internal/config"
    "github.com/example/sprint-rewind/internal/domain"
    "github.com/example/sprint-rewind/internal/repo"
    "github.com/rs/zerolog"
)

func testConfig() config.Config {
    return config.Config{
        DoneStates:       []string{"done", "closed", "completed", "resolved"},
        InProgressStates: []string{"in progress", "active", "doing", "committed"},
        HoursItemTypes:   []string{"task", "bug", "test case"},
        CountItemTypes:   []string{"task", "bug", "test case", "user story", "issue"},
        BaselineCacheTTL: 0,
        BackfillRetries:  3,
        BackfillBackoffs: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
        WorkersSprints:   2,
    }
}

func testService(store Store) *Service {
    return New(testConfig(), zerolog.Nop(), store)
}

func fp(v float64) *float64 { return &v }
func sp(v string) *string   { return &v }

func d(day string) time.Time {
    t, err := time.Parse("2006-01-02", day)
    if err != nil { panic(err) }
    return t.UTC()
}

func at(day string, hour int) time.Time { return d(day).Add(time.Duration(hour) * time.Hour) }

func tp(day string, hour int) *time.Time {
    t := at(day, hour)
    return &t
}

// fakeStore is the in-memory Store used by engine tests.
type fakeStore struct {
    sprints map[int64]*domain.Sprint
    items   []domain.WorkItem
    revs    map[int64][]domain.Revision
    snaps   map[string]domain.Snapshot

    itemRevErr  map[int64]error
    updateErr   map[int64]error
    replaceErrs []error

    updates    map[int64][3]*float64
    runs       int
    finished   int
    lastErrStr string
}

func newFakeStore() *fakeStore {
    return &fakeStore{
        sprints:    map[int64]*domain.Sprint{},
        revs:       map[int64][]domain.Revision{},
        snaps:      map[string]domain.Snapshot{},
        itemRevErr: map[int64]error{},
        updateErr:  map[int64]error{},
        updates:    map[int64][3]*float64{},
    }
}

func snapKey(sprintID int64, day time.Time) string {
    return fmt.Sprintf("%d|%s", sprintID, day.UTC().Format("2006-01-02"))
}

func (f *fakeStore) GetSprint(_ context.Context, id int64) (*domain.Sprint, error) {
    if s, ok := f.sprints[id]; ok { return s, nil }
    return nil, fmt.Errorf("sprint %d not found", id)
}

func (f *fakeStore) GetSprintByName(_ context.Context, name string) (*domain.Sprint, error) {
    for _, s := range f.sprints {
        if s.Name == name { return s, nil }
    }
    return nil, fmt.Errorf("sprint %q not found", name)
}

func (f *fakeStore) ListOpenSprints(_ context.Context) ([]domain.Sprint, error) {
    var out []domain.Sprint
    for _, s := range f.sprints {
        if !s.Closed { out = append(out, *s) }
    }
    return out, nil
}

func (f *fakeStore) ListClosedSprints(_ context.Context) ([]domain.Sprint, error) {
    var out []domain.Sprint
    for _, s := range f.sprints {
        if s.Closed { out = append(out, *s) }
    }
    return out, nil
}

func (f *fakeStore) ListSprintItems(_ context.Context, path string) ([]domain.WorkItem, error) {
    var out []domain.WorkItem
    for _, it := range f.items {
        if it.Removed { continue }
        if inSprintPath(it.IterationPath, path) { out = append(out, it) }
    }
    return out, nil
}

func (f *fakeStore) ListItemIDs(_ context.Context) ([]int64, error) {
    var out []int64
    for _, it := range f.items {
        if !it.Removed { out = append(out, it.ID) }
    }
    return out, nil
}

func (f *fakeStore) ListRevisions(_ context.Context, itemIDs []int64) (map[int64][]domain.Revision, error) {
    out := map[int64][]domain.Revision{}
    for _, id := range itemIDs { out[id] = f.revs[id] }
    return out, nil
}

func (f *fakeStore) ListItemRevisions(_ context.Context, itemID int64) ([]domain.Revision, error) {
    if err := f.itemRevErr[itemID]; err != nil { return nil, err }
    return f.revs[itemID], nil
}

func (f *fakeStore) UpdateItemHistoryFields(_ context.Context, itemID int64, initial, last, done *float64) error {
    if err := f.updateErr[itemID]; err != nil { return err }
    f.updates[itemID] = [3]*float64{initial, last, done}
    return nil
}

func (f *fakeStore) ReplaceSnapshots(_ context.Context, sprintID int64, snaps []domain.Snapshot) error {
    if len(f.replaceErrs) > 0 {
        err := f.replaceErrs[0]
        f.replaceErrs = f.replaceErrs[1:]
        if err != nil { return err }
    }
    for k, s := range f.snaps {
        if s.SprintID == sprintID { delete(f.snaps, k) }
    }
    for _, s := range snaps { f.snaps[snapKey(sprintID, s.Day)] = s }
    return nil
}

func (f *fakeStore) UpsertSnapshot(_ context.Context, s domain.Snapshot) error {
    f.snaps[snapKey(s.SprintID, s.Day)] = s
    return nil
}

func (f *fakeStore) GetSnapshot(_ context.Context, sprintID int64, day time.Time) (*domain.Snapshot, error) {
    if s, ok := f.snaps[snapKey(sprintID, day)]; ok { return &s, nil }
    return nil, nil
}

func (f *fakeStore) DeleteSnapshotsAfter(_ context.Context, sprintID int64, day time.Time) error {
    for k, s := range f.snaps {
        if s.SprintID == sprintID && s.Day.After(day) { delete(f.snaps, k) }
    }
    return nil
}

func (f *fakeStore) StartJobRun(_ context.Context, _ string) (int64, error) {
    f.runs++
    return int64(f.runs), nil
}

func (f *fakeStore) FinishJobRun(_ context.Context, _ int64, _, _ int, _ bool, errStr string) error {
    f.finished++
    f.lastErrStr = errStr
    return nil
}

func (f *fakeStore) GetLastRun(_ context.Context) (*repo.LastRun, error) {
    return &repo.LastRun{}, nil
}
