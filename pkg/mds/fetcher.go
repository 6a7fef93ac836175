package mds

import (
	"context"
	"fmt"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
)

// Fetcher reads nodes for one request. It connects on the first Fetch and
// keeps the connection until Close; the caller owns its lifetime.
type Fetcher struct {
	target  Target
	dial    Dialer
	verbose bool

	conn     Connection
	tree     string
	treeShot int32
}

// NewFetcher returns a Fetcher. A nil dial uses DialMdsip.
func NewFetcher(target Target, dial Dialer, verbose bool) *Fetcher {
	if dial == nil {
		dial = DialMdsip
	}
	return &Fetcher{target: target, dial: dial, verbose: verbose}
}

// Fetch reads one node ("[\]tree::node") of shot. expID only names the
// experiment in errors.
func (f *Fetcher) Fetch(ctx context.Context, ref string, shot int32, expID string) (common.NodeSample, error) {
	tree, _, err := SplitNodeRef(ref)
	if err != nil {
		return common.NodeSample{}, err
	}

	if f.conn == nil {
		if f.verbose {
			logger.Info("Connecting to " + f.target.String())
		}
		conn, err := f.dial(ctx, f.target)
		if err != nil {
			return common.NodeSample{}, fmt.Errorf("%w %s: %w", common.ErrConnection, f.target, err)
		}
		f.conn = conn
	}

	if f.tree != tree || f.treeShot != shot {
		if err := f.conn.OpenTree(ctx, tree, shot); err != nil {
			f.tree = ""
			return common.NodeSample{}, fmt.Errorf("%w: error connecting to tree %s, experiment %s: %w",
				common.ErrTreeOpen, tree, expID, err)
		}
		f.tree, f.treeShot = tree, shot
	}

	if f.verbose {
		logger.Info("Reading " + ref)
	}
	sample, err := f.conn.ReadNode(ctx, ref)
	if err != nil {
		return common.NodeSample{}, fmt.Errorf("%w: cannot read MDS node %s: %w", common.ErrNodeRead, ref, err)
	}
	return sample, nil
}

// Connected reports whether a connection has been opened.
func (f *Fetcher) Connected() bool {
	return f.conn != nil
}

// Close closes the connection, if one was opened.
func (f *Fetcher) Close() error {
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	f.tree = ""
	return err
}
