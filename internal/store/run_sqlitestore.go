package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type RunSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewRunSQLiteStore(rdb, rwdb *sql.DB) *RunSQLiteStore {
	return &RunSQLiteStore{rdb, rwdb}
}

// UpsertRun inserts r or updates the mutable columns of the existing row
// for the same job and number. r.RunID is set from the stored row.
func (store *RunSQLiteStore) UpsertRun(ctx context.Context, r *Run) error {
	query := `insert into runs (
		job_name,
		number,
		status,
		result,
		keep_flag,
		artifact_store,
		created_on,
		started_on,
		ended_on
	)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	on conflict (job_name, number) do update set
		status = excluded.status,
		result = excluded.result,
		keep_flag = excluded.keep_flag,
		artifact_store = excluded.artifact_store,
		started_on = excluded.started_on,
		ended_on = excluded.ended_on
	returning run_id`
	return sqlscan.Get(
		ctx, store.rwdb, &r.RunID, query,
		r.JobName,
		r.Number,
		r.Status,
		r.Result,
		r.KeepFlag,
		r.ArtifactStore,
		r.CreatedOn,
		r.StartedOn,
		r.EndedOn,
	)
}

func (store *RunSQLiteStore) ReadRun(ctx context.Context, job string, number int64) (*Run, error) {
	r := new(Run)
	query := "select * from runs where job_name = $1 and number = $2"
	if err := sqlscan.Get(ctx, store.rdb, r, query, job, number); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) ListJobRuns(ctx context.Context, job string) ([]Run, error) {
	query := `select * from runs
	where job_name = $1
	order by number desc`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, job)
	return runs, err
}

func (store *RunSQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	query := `select * from runs order by job_name, number`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query)
	return runs, err
}

func (store *RunSQLiteStore) CountJobRuns(ctx context.Context, job string) (int64, error) {
	var count int64
	query := `select count(*) from runs where job_name = $1`
	err := sqlscan.Get(ctx, store.rdb, &count, query, job)
	return count, err
}

func (store *RunSQLiteStore) DeleteRun(ctx context.Context, job string, number int64) error {
	query := "delete from runs where job_name = $1 and number = $2"
	_, err := store.rwdb.ExecContext(ctx, query, job, number)
	return err
}
