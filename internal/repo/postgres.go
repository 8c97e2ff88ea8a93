package repo

import (
    "context"
    "errors"
    "net"
    "time"

    "github.com/example/sprint-rewind/internal/config"
    "github.com/example/sprint-rewind/internal/domain"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// IsTransient reports whether err looks like a connectivity/timeout failure
// worth retrying, as opposed to a query or data error.
func IsTransient(err error) bool {
    if err == nil { return false }
    if errors.Is(err, context.DeadlineExceeded) { return true }
    var netErr net.Error
    if errors.As(err, &netErr) { return true }
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) {
        // 08xxx connection exception, 57xxx operator intervention (shutdown etc.)
        if len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57") { return true }
    }
    if pgconn.Timeout(err) { return true }
    return false
}

// ---- Sprints ----

const sprintCols = `id, name, path, starts_at, ends_at, planned_hours, closed`

func (r *Repository) scanSprint(row pgx.Row) (*domain.Sprint, error) {
    var s domain.Sprint
    if err := row.Scan(&s.ID, &s.Name, &s.Path, &s.StartsAt, &s.EndsAt, &s.PlannedHours, &s.Closed); err != nil { return nil, err }
    return &s, nil
}

func (r *Repository) loadDaysOff(ctx context.Context, s *domain.Sprint) error {
    rows, err := r.db.Pool.Query(ctx, `SELECT COALESCE(member,''), starts_on, ends_on FROM sprint_days_off WHERE sprint_id=$1 ORDER BY member, starts_on`, s.ID)
    if err != nil { return err }
    defer rows.Close()
    for rows.Next() {
        var d domain.DayOffRange
        if err := rows.Scan(&d.Member, &d.Start, &d.End); err != nil { return err }
        s.DaysOff = append(s.DaysOff, d)
    }
    return rows.Err()
}

func (r *Repository) GetSprint(ctx context.Context, id int64) (*domain.Sprint, error) {
    s, err := r.scanSprint(r.db.Pool.QueryRow(ctx, `SELECT `+sprintCols+` FROM sprints WHERE id=$1`, id))
    if err != nil { return nil, err }
    if err := r.loadDaysOff(ctx, s); err != nil { return nil, err }
    return s, nil
}

func (r *Repository) GetSprintByName(ctx context.Context, name string) (*domain.Sprint, error) {
    s, err := r.scanSprint(r.db.Pool.QueryRow(ctx, `SELECT `+sprintCols+` FROM sprints WHERE lower(name)=lower($1)`, name))
    if err != nil { return nil, err }
    if err := r.loadDaysOff(ctx, s); err != nil { return nil, err }
    return s, nil
}

func (r *Repository) listSprints(ctx context.Context, q string, args ...any) ([]domain.Sprint, error) {
    rows, err := r.db.Pool.Query(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Sprint
    for rows.Next() {
        var s domain.Sprint
        if err := rows.Scan(&s.ID, &s.Name, &s.Path, &s.StartsAt, &s.EndsAt, &s.PlannedHours, &s.Closed); err != nil { return nil, err }
        out = append(out, s)
    }
    if err := rows.Err(); err != nil { return nil, err }
    for i := range out {
        if err := r.loadDaysOff(ctx, &out[i]); err != nil { return nil, err }
    }
    return out, nil
}

func (r *Repository) ListOpenSprints(ctx context.Context) ([]domain.Sprint, error) {
    return r.listSprints(ctx, `SELECT `+sprintCols+` FROM sprints WHERE NOT closed ORDER BY starts_at`)
}

func (r *Repository) ListClosedSprints(ctx context.Context) ([]domain.Sprint, error) {
    return r.listSprints(ctx, `SELECT `+sprintCols+` FROM sprints WHERE closed ORDER BY starts_at`)
}

// ---- Work items ----

const itemCols = `id, COALESCE(type,''), COALESCE(state,''), COALESCE(iteration_path,''),
        created_at, activated_at, closed_at, changed_at,
        remaining_work, completed_work, initial_remaining, last_remaining, done_remaining,
        COALESCE(blocked,false), COALESCE(removed,false)`

func scanItem(rows pgx.Rows) (domain.WorkItem, error) {
    var it domain.WorkItem
    err := rows.Scan(&it.ID, &it.Type, &it.State, &it.IterationPath,
        &it.CreatedAt, &it.ActivatedAt, &it.ClosedAt, &it.ChangedAt,
        &it.RemainingWork, &it.CompletedWork, &it.InitialRemaining, &it.LastRemaining, &it.DoneRemaining,
        &it.Blocked, &it.Removed)
    return it, err
}

// ListSprintItems returns not-removed items whose iteration path sits under
// the sprint's path prefix, case-insensitively.
func (r *Repository) ListSprintItems(ctx context.Context, path string) ([]domain.WorkItem, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT `+itemCols+` FROM work_items
        WHERE NOT COALESCE(removed,false) AND lower(iteration_path) LIKE lower($1) || '%'`, path)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.WorkItem
    for rows.Next() {
        it, err := scanItem(rows)
        if err != nil { return nil, err }
        out = append(out, it)
    }
    return out, rows.Err()
}

func (r *Repository) ListItemIDs(ctx context.Context) ([]int64, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT id FROM work_items WHERE NOT COALESCE(removed,false) ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []int64
    for rows.Next() {
        var id int64
        if err := rows.Scan(&id); err != nil { return nil, err }
        out = append(out, id)
    }
    return out, rows.Err()
}

// ---- Revisions ----

const revCols = `item_id, rev, remaining_work, state, iteration_path, COALESCE(changed_by,''), changed_at`

// ListRevisions returns each item's revisions in replay order.
func (r *Repository) ListRevisions(ctx context.Context, itemIDs []int64) (map[int64][]domain.Revision, error) {
    out := map[int64][]domain.Revision{}
    if len(itemIDs) == 0 { return out, nil }
    rows, err := r.db.Pool.Query(ctx, `SELECT `+revCols+` FROM revisions
        WHERE item_id = ANY($1) ORDER BY item_id, rev, changed_at`, itemIDs)
    if err != nil { return nil, err }
    defer rows.Close()
    for rows.Next() {
        var rv domain.Revision
        if err := rows.Scan(&rv.ItemID, &rv.Rev, &rv.RemainingWork, &rv.State, &rv.IterationPath, &rv.ChangedBy, &rv.ChangedAt); err != nil { return nil, err }
        out[rv.ItemID] = append(out[rv.ItemID], rv)
    }
    return out, rows.Err()
}

func (r *Repository) ListItemRevisions(ctx context.Context, itemID int64) ([]domain.Revision, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT `+revCols+` FROM revisions
        WHERE item_id = $1 ORDER BY rev, changed_at`, itemID)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Revision
    for rows.Next() {
        var rv domain.Revision
        if err := rows.Scan(&rv.ItemID, &rv.Rev, &rv.RemainingWork, &rv.State, &rv.IterationPath, &rv.ChangedBy, &rv.ChangedAt); err != nil { return nil, err }
        out = append(out, rv)
    }
    return out, rows.Err()
}

func (r *Repository) UpdateItemHistoryFields(ctx context.Context, itemID int64, initial, last, done *float64) error {
    _, err := r.db.Pool.Exec(ctx, `UPDATE work_items SET initial_remaining=$2, last_remaining=$3, done_remaining=$4 WHERE id=$1`,
        itemID, initial, last, done)
    return err
}

// ---- Snapshots ----

const snapshotUpsert = `INSERT INTO sprint_snapshots(sprint_id, day, remaining_work, completed_work, total_work,
            ideal_remaining, scope_added, scope_removed, count_todo, count_in_progress, count_done, count_blocked)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (sprint_id, day) DO UPDATE SET
            remaining_work=EXCLUDED.remaining_work,
            completed_work=EXCLUDED.completed_work,
            total_work=EXCLUDED.total_work,
            ideal_remaining=EXCLUDED.ideal_remaining,
            scope_added=EXCLUDED.scope_added,
            scope_removed=EXCLUDED.scope_removed,
            count_todo=EXCLUDED.count_todo,
            count_in_progress=EXCLUDED.count_in_progress,
            count_done=EXCLUDED.count_done,
            count_blocked=EXCLUDED.count_blocked`

// ReplaceSnapshots rebuilds a sprint's full series in one transaction so a
// re-run converges to the same rows and never leaves leftovers from a longer
// previous series.
func (r *Repository) ReplaceSnapshots(ctx context.Context, sprintID int64, snaps []domain.Snapshot) error {
    tx, err := r.db.Pool.Begin(ctx)
    if err != nil { return err }
    defer func() { _ = tx.Rollback(ctx) }()
    if _, err := tx.Exec(ctx, `DELETE FROM sprint_snapshots WHERE sprint_id=$1`, sprintID); err != nil { return err }
    batch := &pgx.Batch{}
    for _, s := range snaps {
        batch.Queue(snapshotUpsert, s.SprintID, s.Day, s.RemainingWork, s.CompletedWork, s.TotalWork,
            s.IdealRemaining, s.ScopeAdded, s.ScopeRemoved, s.CountTodo, s.CountInProgress, s.CountDone, s.CountBlocked)
    }
    br := tx.SendBatch(ctx, batch)
    for range snaps {
        if _, err := br.Exec(); err != nil { _ = br.Close(); return err }
    }
    if err := br.Close(); err != nil { return err }
    return tx.Commit(ctx)
}

func (r *Repository) UpsertSnapshot(ctx context.Context, s domain.Snapshot) error {
    _, err := r.db.Pool.Exec(ctx, snapshotUpsert, s.SprintID, s.Day, s.RemainingWork, s.CompletedWork, s.TotalWork,
        s.IdealRemaining, s.ScopeAdded, s.ScopeRemoved, s.CountTodo, s.CountInProgress, s.CountDone, s.CountBlocked)
    return err
}

func (r *Repository) GetSnapshot(ctx context.Context, sprintID int64, day time.Time) (*domain.Snapshot, error) {
    row := r.db.Pool.QueryRow(ctx, `SELECT sprint_id, day, remaining_work, completed_work, total_work,
            ideal_remaining, scope_added, scope_removed, count_todo, count_in_progress, count_done, count_blocked
        FROM sprint_snapshots WHERE sprint_id=$1 AND day=$2`, sprintID, day)
    var s domain.Snapshot
    if err := row.Scan(&s.SprintID, &s.Day, &s.RemainingWork, &s.CompletedWork, &s.TotalWork,
        &s.IdealRemaining, &s.ScopeAdded, &s.ScopeRemoved, &s.CountTodo, &s.CountInProgress, &s.CountDone, &s.CountBlocked); err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
        return nil, err
    }
    return &s, nil
}

// DeleteSnapshotsAfter drops rows dated strictly after day. The live path
// runs it before writing today's row to clear stale future-dated rows left by
// an erroneous earlier run.
func (r *Repository) DeleteSnapshotsAfter(ctx context.Context, sprintID int64, day time.Time) error {
    _, err := r.db.Pool.Exec(ctx, `DELETE FROM sprint_snapshots WHERE sprint_id=$1 AND day > $2`, sprintID, day)
    return err
}

// ---- Job runs ----

func (r *Repository) StartJobRun(ctx context.Context, sprintsJSON string) (int64, error) {
    const q = `INSERT INTO job_runs(started_at, sprints, success) VALUES(now(), $1, false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, sprintsJSON).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, processed, failed int, success bool, errStr string) error {
    const q = `UPDATE job_runs SET finished_at=now(), sprints_processed=$2, sprints_failed=$3, success=$4, error=$5 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, processed, failed, success, errStr)
    return err
}

type LastRun struct {
    StartedAt        time.Time  `json:"started_at"`
    FinishedAt       *time.Time `json:"finished_at"`
    Sprints          string     `json:"sprints"`
    SprintsProcessed int        `json:"sprints_processed"`
    SprintsFailed    int        `json:"sprints_failed"`
    Success          bool       `json:"success"`
    Error            string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    const q = `SELECT started_at, finished_at, sprints::text,
        coalesce(sprints_processed,0), coalesce(sprints_failed,0),
        coalesce(success,false), coalesce(error,'')
        FROM job_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &LastRun{}
    if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.Sprints, &lr.SprintsProcessed, &lr.SprintsFailed, &lr.Success, &lr.Error); err != nil {
        return nil, err
    }
    return lr, nil
}
