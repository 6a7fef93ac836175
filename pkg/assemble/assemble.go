// Package assemble turns resolved signals into one sample array: it reads
// every node (from the cache when possible), checks that all nodes share
// a time base, and lays the signals out side by side.
package assemble

import (
	"context"
	"fmt"
	"time"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/cache"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/vnames"
)

// Fetcher reads one node from the archive.
type Fetcher interface {
	Fetch(ctx context.Context, ref string, shot int32, expID string) (common.NodeSample, error)
}

// Cache stores raw node samples.
type Cache interface {
	Get(shot int32, node string) cache.Result
	Put(shot int32, node string, sample common.NodeSample) error
}

const (
	SourceCache  = "cache"
	SourceRemote = "remote"
)

// NodeEvent reports one node read.
type NodeEvent struct {
	Ref      string
	Shot     int32
	ExpID    string
	Source   string
	Duration time.Duration
	Samples  int
}

// Assembler reads and combines signals. Cache and Observer may be nil.
type Assembler struct {
	Fetcher  Fetcher
	Cache    Cache
	Observer func(NodeEvent)
}

// Result is the assembled data. Data is one-dimensional for a single
// signal and [samples, signals] otherwise. Time is nil when no node was
// read.
type Result struct {
	Names []string
	Data  dataobj.Array
	Time  *common.TimeBase
}

// Assemble reads all signals of one experiment in order. It fails on the
// first error; no partial result is returned.
func (a *Assembler) Assemble(ctx context.Context, signals []vnames.Signal, exp vnames.ExpID) (*Result, error) {
	plans := make([]Plan, 0, len(signals))
	for _, s := range signals {
		p, err := PlanFor(s)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}

	res := &Result{Names: make([]string, 0, len(plans))}
	columns := make([]common.Samples, 0, len(plans))
	for _, p := range plans {
		parts := make([]common.Samples, 0, len(p.Refs))
		for _, ref := range p.Refs {
			sample, err := a.read(ctx, string(ref), exp)
			if err != nil {
				return nil, err
			}
			if res.Time == nil {
				tb := sample.Time
				res.Time = &tb
			} else if sample.Time != *res.Time {
				return nil, &common.TimebaseError{Node: string(ref), Want: *res.Time, Got: sample.Time}
			}
			parts = append(parts, sample.Values)
		}
		col, err := p.combine(parts)
		if err != nil {
			return nil, err
		}
		res.Names = append(res.Names, p.Name)
		columns = append(columns, col)
	}

	data, err := layout(columns)
	if err != nil {
		return nil, err
	}
	res.Data = data
	return res, nil
}

// read returns one node, from the cache if it holds a valid copy.
func (a *Assembler) read(ctx context.Context, ref string, exp vnames.ExpID) (common.NodeSample, error) {
	shot := exp.Shot()
	start := time.Now()

	if a.Cache != nil {
		if r := a.Cache.Get(shot, ref); r.Status == cache.Hit {
			a.observe(NodeEvent{Ref: ref, Shot: shot, ExpID: exp.String(), Source: SourceCache,
				Duration: time.Since(start), Samples: r.Sample.Values.Len()})
			return r.Sample, nil
		}
	}

	sample, err := a.Fetcher.Fetch(ctx, ref, shot, exp.String())
	if err != nil {
		return common.NodeSample{}, err
	}
	a.observe(NodeEvent{Ref: ref, Shot: shot, ExpID: exp.String(), Source: SourceRemote,
		Duration: time.Since(start), Samples: sample.Values.Len()})

	if a.Cache != nil {
		if err := a.Cache.Put(shot, ref, sample); err != nil {
			logger.Warn("Cannot write cache file", "node", ref, "err", err)
		}
	}
	return sample, nil
}

func (a *Assembler) observe(ev NodeEvent) {
	if a.Observer != nil {
		a.Observer(ev)
	}
}

// layout places the signals in an array: a single signal unchanged, several
// as the columns of a [samples, signals] array of their common dtype.
func layout(columns []common.Samples) (dataobj.Array, error) {
	switch len(columns) {
	case 0:
		return dataobj.Array{Shape: []int{0}, Values: common.Make(common.DTypeInt, 0)}, nil
	case 1:
		return dataobj.Array{Shape: []int{columns[0].Len()}, Values: columns[0]}, nil
	}

	dtype := common.DTypeInt
	n := columns[0].Len()
	for i, c := range columns {
		dtype = common.Promote(dtype, c.DType)
		if c.Len() != n {
			return dataobj.Array{}, fmt.Errorf("%w: signal %d has %d samples, signal 0 has %d",
				common.ErrShape, i, c.Len(), n)
		}
	}

	m := len(columns)
	out := common.Make(dtype, n*m)
	for j, c := range columns {
		c = c.Cast(dtype)
		for i := 0; i < n; i++ {
			out.Set(i*m+j, c, i)
		}
	}
	return dataobj.Array{Shape: []int{n, m}, Values: out}, nil
}
