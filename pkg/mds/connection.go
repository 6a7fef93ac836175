package mds

import (
	"context"
	"fmt"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/mds/mdsip"
)

// Connection is an open session with the archive server.
type Connection interface {
	OpenTree(ctx context.Context, tree string, shot int32) error
	ReadNode(ctx context.Context, path string) (common.NodeSample, error)
	Close() error
}

// Dialer opens a Connection to a target.
type Dialer func(ctx context.Context, target Target) (Connection, error)

// DialMdsip is the Dialer speaking the mdsip protocol over ssh or tcp.
func DialMdsip(ctx context.Context, target Target) (Connection, error) {
	var (
		conn *mdsip.Conn
		err  error
	)
	switch target.Scheme {
	case SchemeTCP:
		conn, err = mdsip.DialTCP(ctx, target.Host, target.User)
	default:
		conn, err = mdsip.DialSSH(ctx, mdsip.SSHConfig{User: target.User, Host: target.Host})
	}
	if err != nil {
		return nil, err
	}
	return &mdsipConnection{conn: conn}, nil
}

type mdsipConnection struct {
	conn *mdsip.Conn
}

func (c *mdsipConnection) OpenTree(ctx context.Context, tree string, shot int32) error {
	v, err := c.conn.Evaluate(ctx, "TreeOpen($,$)", tree, shot)
	if err != nil {
		return err
	}
	status, err := v.Int()
	if err != nil {
		return err
	}
	if status&1 == 0 {
		return &mdsip.StatusError{Status: int32(status)}
	}
	return nil
}

func (c *mdsipConnection) ReadNode(ctx context.Context, path string) (common.NodeSample, error) {
	v, err := c.conn.Evaluate(ctx, "DATA("+path+")")
	if err != nil {
		return common.NodeSample{}, err
	}
	values, err := v.Samples()
	if err != nil {
		return common.NodeSample{}, err
	}

	dim := "DIM_OF(" + path + ")"
	tv, err := c.conn.Evaluate(ctx, "FT_FLOAT([BEGIN_OF("+dim+"), DELTA_OF("+dim+"), END_OF("+dim+")])")
	if err != nil {
		return common.NodeSample{}, fmt.Errorf("reading time base: %w", err)
	}
	tb, err := tv.Float64s()
	if err != nil {
		return common.NodeSample{}, err
	}
	if len(tb) != 3 {
		return common.NodeSample{}, fmt.Errorf("time base of %s has %d elements, want 3", path, len(tb))
	}

	return common.NodeSample{
		Values: values,
		Time:   common.TimeBase{Start: tb[0], Step: tb[1], End: tb[2]},
	}, nil
}

func (c *mdsipConnection) Close() error {
	return c.conn.Close()
}
