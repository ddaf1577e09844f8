package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

type LinkSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewLinkSQLiteStore(rdb, rwdb *sql.DB) *LinkSQLiteStore {
	return &LinkSQLiteStore{rdb, rwdb}
}

// CreateLink stores l; storing an identical fact again is a no-op.
func (store *LinkSQLiteStore) CreateLink(ctx context.Context, l *Link) error {
	query := `insert into dependency_links (
		producer_job,
		producer_number,
		consumer_job,
		consumer_number,
		producer_name,
		consumer_name,
		artifact
	)
	values ($1, $2, $3, $4, $5, $6, $7)
	on conflict do nothing`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		l.ProducerJob,
		l.ProducerNumber,
		l.ConsumerJob,
		l.ConsumerNumber,
		l.ProducerName,
		l.ConsumerName,
		l.Artifact,
	)
	return err
}

func (store *LinkSQLiteStore) ListLinks(ctx context.Context) ([]Link, error) {
	query := `select * from dependency_links order by link_id`
	links := make([]Link, 0)
	err := sqlscan.Select(ctx, store.rdb, &links, query)
	return links, err
}

// DeleteRecordLinks removes every link in which the record takes part.
func (store *LinkSQLiteStore) DeleteRecordLinks(ctx context.Context, job string, number int64) error {
	query := `delete from dependency_links
	where (producer_job = $1 and producer_number = $2)
		or (consumer_job = $1 and consumer_number = $2)`
	_, err := store.rwdb.ExecContext(ctx, query, job, number)
	return err
}
