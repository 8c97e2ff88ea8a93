/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/example/sprint-rewind/internal/config"
    "github.com/example/sprint-rewind/internal/domain"
    "github.com/example/sprint-rewind/internal/repo"
    "github.com/rs/zerolog"
)

// Store is the storage access the engine needs; the concrete implementation
// is internal/repo. Keeping it an interface lets the calculators run against
// in-memory fixtures in tests.
type Store interface {
    GetSprint(ctx context.Context, id int64) (*domain.Sprint, error)
    GetSprintByName(ctx context.Context, name string) (*domain.Sprint, error)
    ListOpenSprints(ctx context.Context) ([]domain.Sprint, error)
    ListClosedSprints(ctx context.Context) ([]domain.Sprint, error)

    ListSprintItems(ctx context.Context, path string) ([]domain.WorkItem, error)
    ListItemIDs(ctx context.Context) ([]int64, error)
    ListRevisions(ctx context.Context, itemIDs []int64) (map[int64][]domain.Revision, error)
    ListItemRevisions(ctx context.Context, itemID int64) ([]domain.Revision, error)
    UpdateItemHistoryFields(ctx context.Context, itemID int64, initial, last, done *float64) error

    ReplaceSnapshots(ctx context.Context, sprintID int64, snaps []domain.Snapshot) error
    UpsertSnapshot(ctx context.Context, s domain.Snapshot) error
    GetSnapshot(ctx context.Context, sprintID int64, day time.Time) (*domain.Snapshot, error)
    DeleteSnapshotsAfter(ctx context.Context, sprintID int64, day time.Time) error

    StartJobRun(ctx context.Context, sprintsJSON string) (int64, error)
    FinishJobRun(ctx context.Context, id int64, processed, failed int, success bool, errStr string) error
    GetLastRun(ctx context.Context) (*repo.LastRun, error)
}

type Service struct {
    cfg   config.Config
    log   zerolog.Logger
    store Store

    baseline *BaselineCalculator
}

func New(cfg config.Config, log zerolog.Logger, store Store) *Service {
    s := &Service{cfg: cfg, log: log, store: store}
    s.baseline = NewBaselineCalculator(cfg, log, s)
    return s
}

// ---- lifecycle-state and type normalization ----

type stateKind int

const (
    stateOther stateKind = iota
    stateInProgress
    stateDone
)

func containsFold(list []string, s string) bool {
    for _, v := range list {
        if strings.EqualFold(strings.TrimSpace(v), s) { return true }
    }
    return false
}

func (s *Service) classifyState(state string) stateKind {
    st := strings.ToLower(strings.TrimSpace(state))
    if st == "" { return stateOther }
    if containsFold(s.cfg.DoneStates, st) { return stateDone }
    if containsFold(s.cfg.InProgressStates, st) { return stateInProgress }
    // heuristic fallback for unmapped tracker states
    switch {
    case strings.Contains(st, "done") || strings.Contains(st, "closed") || strings.Contains(st, "complete") || strings.Contains(st, "resolve"):
        return stateDone
    case strings.Contains(st, "progress") || strings.Contains(st, "active") || st == "doing":
        return stateInProgress
    default:
        return stateOther
    }
}

func (s *Service) isDoneState(state string) bool { return s.classifyState(state) == stateDone }

func (s *Service) isHoursType(typ string) bool { return containsFold(s.cfg.HoursItemTypes, strings.ToLower(strings.TrimSpace(typ))) }

func (s *Service) isCountType(typ string) bool { return containsFold(s.cfg.CountItemTypes, strings.ToLower(strings.TrimSpace(typ))) }

// inSprintPath tests iteration membership by case-insensitive prefix match;
// sprint assignment is a path string, not a foreign key.
func inSprintPath(itemPath, sprintPath string) bool {
    ip := strings.ToLower(strings.TrimSpace(itemPath))
    sp := strings.ToLower(strings.TrimSpace(sprintPath))
    if ip == "" || sp == "" { return false }
    return strings.HasPrefix(ip, sp)
}

func deref(v *float64) float64 {
    if v == nil { return 0 }
    return *v
}

// firstPositive walks candidate values in priority order and returns the
// first strictly positive one. The live path's fallback chains share it.
func firstPositive(vals ...*float64) float64 {
    for _, v := range vals {
        if v != nil && *v > 0 { return *v }
    }
    return 0
}

// ---- top-level operations ----

// RecomputeSprint rebuilds one sprint's full snapshot series from the
// revision log. Re-running converges to identical rows.
func (s *Service) RecomputeSprint(ctx context.Context, sprintID int64) error {
    sprint, err := s.store.GetSprint(ctx, sprintID)
    if err != nil { return fmt.Errorf("load sprint %d: %w", sprintID, err) }
    return s.recompute(ctx, sprint)
}

func (s *Service) RecomputeSprintByName(ctx context.Context, name string) error {
    sprint, err := s.store.GetSprintByName(ctx, name)
    if err != nil { return fmt.Errorf("load sprint %q: %w", name, err) }
    return s.recompute(ctx, sprint)
}

func (s *Service) recompute(ctx context.Context, sprint *domain.Sprint) error {
    days, err := WorkingDays(sprint.StartsAt, sprint.EndsAt, TeamDaysOff(sprint.DaysOff))
    if err != nil {
        s.log.Warn().Str("sprint", sprint.Name).Msg("recompute skipped: no working days")
        return fmt.Errorf("sprint %q: %w", sprint.Name, err)
    }
    items, err := s.store.ListSprintItems(ctx, sprint.Path)
    if err != nil { return fmt.Errorf("list items for %q: %w", sprint.Name, err) }
    ids := make([]int64, 0, len(items))
    for _, it := range items { ids = append(ids, it.ID) }
    revs, err := s.store.ListRevisions(ctx, ids)
    if err != nil { return fmt.Errorf("list revisions for %q: %w", sprint.Name, err) }

    base := s.baseline.Compute(ctx, sprint, items, revs, days[0])
    if base.Contributors == 0 && base.Hours == 0 {
        s.log.Warn().Str("sprint", sprint.Name).Msg("baseline has zero evidence")
    }

    deltas := newDayDeltas()
    for _, it := range items {
        if !s.isHoursType(it.Type) { continue }
        s.replayItem(it, revs[it.ID], sprint, days, deltas)
    }
    snaps := s.aggregate(sprint, days, base.Hours, deltas, items)

    if err := s.store.ReplaceSnapshots(ctx, sprint.ID, snaps); err != nil {
        return fmt.Errorf("write snapshots for %q: %w", sprint.Name, err)
    }
    s.log.Info().Str("sprint", sprint.Name).Int("days", len(days)).
        Float64("baseline", base.Hours).Int("baseline_items", base.Contributors).
        Msg("sprint recomputed")
    return nil
}

// RecomputeOpenSprints fans the currently-open sprints over a bounded worker
// pool; sprints are independent units so failures do not block each other.
func (s *Service) RecomputeOpenSprints(ctx context.Context) (int, int, error) {
    sprints, err := s.store.ListOpenSprints(ctx)
    if err != nil { return 0, 0, err }
    workerCount := s.cfg.WorkersSprints
    if workerCount <= 0 { workerCount = 4 }
    if workerCount > len(sprints) { workerCount = len(sprints) }

    jobs := make(chan domain.Sprint)
    var wg sync.WaitGroup
    var mu sync.Mutex
    ok, failed := 0, 0
    for w := 0; w < workerCount; w++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for sp := range jobs {
                sp := sp
                err := s.recompute(ctx, &sp)
                mu.Lock()
                if err != nil {
                    failed++
                    s.log.Error().Err(err).Str("sprint", sp.Name).Msg("recompute failed")
                } else {
                    ok++
                }
                mu.Unlock()
            }
        }()
    }
    for _, sp := range sprints { jobs <- sp }
    close(jobs)
    wg.Wait()
    return ok, failed, nil
}

func (s *Service) GetLastRun(ctx context.Context) (any, error) { return s.store.GetLastRun(ctx) }
