package timing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/assemble"
)

// DB is the part of *pgxpool.Pool the fetch log uses.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// FetchRecord is one row of fetch_log.
type FetchRecord struct {
	JobID    string
	ExpID    string
	Shot     int32
	Node     string
	Source   string
	Samples  int
	Duration time.Duration
}

// RecordFromEvent converts an assembler event for storage.
func RecordFromEvent(jobID string, ev assemble.NodeEvent) FetchRecord {
	return FetchRecord{
		JobID:    jobID,
		ExpID:    ev.ExpID,
		Shot:     ev.Shot,
		Node:     ev.Ref,
		Source:   ev.Source,
		Samples:  ev.Samples,
		Duration: ev.Duration,
	}
}

func AddFetchRecords(ctx context.Context, conn DB, records []FetchRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(
			`INSERT INTO fetch_log (job_id, exp_id, shot, node, source, samples, duration_ms)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.JobID, r.ExpID, r.Shot, r.Node, r.Source, r.Samples, r.Duration.Milliseconds(),
		)
	}
	return conn.SendBatch(ctx, batch).Close()
}

// PredictFetchTime returns the mean remote read time of node, or zero when
// it was never read.
func PredictFetchTime(ctx context.Context, conn DB, node string) (time.Duration, error) {
	var ms *float64
	err := conn.QueryRow(ctx,
		`SELECT avg(duration_ms)::float8 FROM fetch_log WHERE node = $1 AND source = $2`,
		node, assemble.SourceRemote,
	).Scan(&ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if ms == nil {
		return 0, nil
	}
	return time.Duration(*ms * float64(time.Millisecond)), nil
}
