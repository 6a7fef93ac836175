// Package w7x is the W7-X MDSplus data source: it resolves signal names,
// reads the nodes and returns them as a data object with Time, Sample and
// Signal name coordinates.
package w7x

import (
	"context"
	"fmt"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/assemble"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/cache"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/mds"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/vnames"
)

const (
	SourceName = "W7X_MDSPlus"
	DataTitle  = "W7-X MDSPlus data"
)

// Coordinate names.
const (
	CoordTime       = "Time"
	CoordSample     = "Sample"
	CoordSignalName = "Signal name"
)

// Reader reads W7-X MDSplus data. The zero value uses no config defaults
// and the mdsip transport.
type Reader struct {
	Config *Config
	// Dial overrides the transport, mostly for tests.
	Dial mds.Dialer
	// Observer is told about every node read.
	Observer func(assemble.NodeEvent)
}

// GetData reads the requested signals of one experiment. Each call opens
// its own connection, only when a node is not cached, and closes it before
// returning.
func (r *Reader) GetData(ctx context.Context, req datasource.Request) (*dataobj.DataObject, error) {
	if req.ExpID == "" {
		return nil, fmt.Errorf("%w: exp_id should be set for W7X MDSPlus", common.ErrFormat)
	}
	exp, err := vnames.ParseExpID(req.ExpID)
	if err != nil {
		return nil, err
	}
	if len(req.Names) == 0 {
		return nil, fmt.Errorf("%w: no data name given", common.ErrFormat)
	}

	opts, err := MergeOptions(r.Config, req.Options)
	if err != nil {
		return nil, err
	}

	var table *vnames.Table
	if opts.VirtualNameFile != "" {
		table, err = vnames.LoadFile(opts.VirtualNameFile)
		if err != nil {
			return nil, err
		}
	}
	signals, err := vnames.Resolve(req.Names, exp, table)
	if err != nil {
		return nil, err
	}

	target, err := mds.NewTarget(opts.User, opts.Server)
	if err != nil {
		return nil, err
	}
	fetcher := mds.NewFetcher(target, r.Dial, opts.Verbose)
	defer fetcher.Close()

	asm := &assemble.Assembler{
		Fetcher:  fetcher,
		Cache:    cache.New(opts.CacheDirectory, opts.CacheData),
		Observer: r.Observer,
	}
	res, err := asm.Assemble(ctx, signals, exp)
	if err != nil {
		return nil, err
	}

	obj := newDataObject(req.ExpID, res)
	for _, rng := range req.Ranges {
		obj, err = obj.SelectRange(rng)
		if err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func newDataObject(expID string, res *assemble.Result) *dataobj.DataObject {
	var coords []dataobj.Coordinate
	if res.Time != nil {
		coords = append(coords, dataobj.Coordinate{
			Name:       CoordTime,
			Unit:       dataobj.Unit{Name: CoordTime, Unit: "Second"},
			Mode:       dataobj.CoordinateMode{Equidistant: true},
			Start:      res.Time.Start,
			Step:       res.Time.Step,
			Dimensions: []int{0},
		})
	}
	coords = append(coords, dataobj.Coordinate{
		Name:       CoordSample,
		Unit:       dataobj.Unit{Name: CoordSample},
		Mode:       dataobj.CoordinateMode{Equidistant: true},
		Start:      0,
		Step:       1,
		Dimensions: []int{0},
	})

	signalDims := []int{}
	if len(res.Names) > 1 {
		signalDims = []int{1}
	}
	coords = append(coords, dataobj.Coordinate{
		Name:       CoordSignalName,
		Unit:       dataobj.Unit{Name: CoordSignalName},
		Mode:       dataobj.CoordinateMode{Equidistant: false},
		Values:     res.Names,
		Dimensions: signalDims,
	})

	return &dataobj.DataObject{
		Title:       DataTitle,
		Source:      SourceName,
		ExpID:       expID,
		Data:        res.Data,
		Coordinates: coords,
	}
}

// AddCoordinate is not supported by this data source.
func AddCoordinate(context.Context, *dataobj.DataObject, []string, map[string]string) (*dataobj.DataObject, error) {
	return nil, common.ErrNotImplemented
}

// Register adds the reader to reg under SourceName.
func (r *Reader) Register(reg *datasource.Registry) error {
	return reg.Register(datasource.Source{
		Name:          SourceName,
		GetData:       r.GetData,
		AddCoordinate: AddCoordinate,
	})
}
