package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/storage"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/timing"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/util"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/assemble"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/w7x"
)

// PrefetchJob asks the worker to read signals into the cache and
// optionally export the result to S3.
type PrefetchJob struct {
	ID          string            `json:"id"`
	ExpID       string            `json:"exp_id" validate:"required"`
	Names       []string          `json:"names" validate:"required,min=1"`
	Options     map[string]string `json:"options,omitempty"`
	Export      bool              `json:"export"`
	RequestedBy string            `json:"requested_by,omitempty"`
}

// NewPrefetchJob creates a job with a fresh id.
func NewPrefetchJob(req datasource.Request, export bool, requestedBy string) (PrefetchJob, error) {
	id, err := gonanoid.New()
	if err != nil {
		return PrefetchJob{}, err
	}
	return PrefetchJob{
		ID:          id,
		ExpID:       req.ExpID,
		Names:       req.Names,
		Options:     req.Options,
		Export:      export,
		RequestedBy: requestedBy,
	}, nil
}

// ExportKey is where the job's result is stored when Export is set.
func (j PrefetchJob) ExportKey() string {
	return storage.ExportKey(j.ExpID, j.ID)
}

var publishBackoff = util.Backoff{Initial: 200 * time.Millisecond, Max: 2 * time.Second}

// EnqueuePrefetch publishes job to PrefetchQueue.
func EnqueuePrefetch(ctx context.Context, ch Publisher, job PrefetchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return util.RetryErrWithContext(ctx, 3, publishBackoff, func(context.Context) error {
		return PublishFIFO(ch, PrefetchQueue, data)
	})
}

// PrefetchDeps are the collaborators of ProcessPrefetch. Export, Record and
// Lock may be nil.
type PrefetchDeps struct {
	Reader *w7x.Reader
	Export func(ctx context.Context, key string, obj *dataobj.DataObject) error
	Record func(ctx context.Context, records []timing.FetchRecord) error
	// Lock runs fn while no other worker prefetches the same experiment.
	Lock func(ctx context.Context, expID string, fn func(ctx context.Context) error) error
}

// ProcessPrefetch runs one prefetch job with caching forced on.
func ProcessPrefetch(ctx context.Context, deps PrefetchDeps, body []byte) error {
	var job PrefetchJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if job.ExpID == "" || len(job.Names) == 0 {
		return fmt.Errorf("%w %s: exp_id and names are required", ErrInvalidJob, job.ID)
	}

	var records []timing.FetchRecord
	reader := *deps.Reader
	parent := reader.Observer
	reader.Observer = func(ev assemble.NodeEvent) {
		records = append(records, timing.RecordFromEvent(job.ID, ev))
		if parent != nil {
			parent(ev)
		}
	}

	opts := maps.Clone(job.Options)
	if opts == nil {
		opts = map[string]string{}
	}
	opts[w7x.OptCacheData] = "True"

	logger.Info("[Queue] Prefetching", "job_id", job.ID, "exp_id", job.ExpID, "names", len(job.Names))
	req := datasource.Request{ExpID: job.ExpID, Names: job.Names, Options: opts}
	var obj *dataobj.DataObject
	read := func(ctx context.Context) error {
		var err error
		obj, err = reader.GetData(ctx, req)
		return err
	}
	var err error
	if deps.Lock != nil {
		err = deps.Lock(ctx, job.ExpID, read)
	} else {
		err = read(ctx)
	}
	if err != nil {
		return fmt.Errorf("prefetch %s failed: %w", job.ID, err)
	}

	if deps.Record != nil {
		if err := deps.Record(ctx, records); err != nil {
			logger.Warn("[Queue] Failed to record fetch log", "job_id", job.ID, "err", err)
		}
	}

	if job.Export && deps.Export != nil {
		key := job.ExportKey()
		err := util.RetryErrWithContext(ctx, 3, publishBackoff, func(ctx context.Context) error {
			return deps.Export(ctx, key, obj)
		})
		if err != nil {
			return fmt.Errorf("export of %s failed: %w", job.ID, err)
		}
		logger.Info("[Queue] Exported", "job_id", job.ID, "key", key)
	}
	return nil
}
