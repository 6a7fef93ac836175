package mdsip

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"
)

// StatusError is returned when the server answers with an even status.
type StatusError struct {
	Status  int32
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("mdsip status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("mdsip status %d", e.Status)
}

// Conn is a logged-in mdsip session. Calls are serialized; one expression
// is in flight at a time.
type Conn struct {
	rw    io.ReadWriteCloser
	mu    sync.Mutex
	msgID uint8
}

// NewConn logs in as user on an established byte stream.
func NewConn(ctx context.Context, rw io.ReadWriteCloser, user string) (*Conn, error) {
	c := &Conn{rw: rw}
	err := c.withContext(ctx, func() error {
		err := writeMessage(rw, Message{
			DType:  DTypeT,
			Length: int16(len(user)),
			NArgs:  0,
			Body:   []byte(user),
		})
		if err != nil {
			return err
		}
		ans, err := readMessage(rw)
		if err != nil {
			return err
		}
		if ans.Status&1 == 0 {
			return &StatusError{Status: ans.Status, Message: "login rejected for user " + user}
		}
		return nil
	})
	if err != nil {
		rw.Close()
		return nil, fmt.Errorf("mdsip login: %w", err)
	}
	return c, nil
}

// Evaluate sends a TDI expression with "$" placeholders filled from args
// and returns the server's answer.
func (c *Conn) Evaluate(ctx context.Context, expr string, args ...any) (Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.msgID++
	id := c.msgID
	nargs := uint8(len(args) + 1)

	var v Value
	err := c.withContext(ctx, func() error {
		err := writeMessage(c.rw, Message{
			DType:  DTypeT,
			Length: int16(len(expr)),
			NArgs:  nargs,
			ID:     id,
			Body:   []byte(expr),
		})
		if err != nil {
			return err
		}
		for i, a := range args {
			m, err := encodeArg(a, binary.LittleEndian)
			if err != nil {
				return err
			}
			m.NArgs = nargs
			m.DescIdx = uint8(i + 1)
			m.ID = id
			if err := writeMessage(c.rw, m); err != nil {
				return err
			}
		}

		ans, err := readMessage(c.rw)
		if err != nil {
			return err
		}
		if ans.Status&1 == 0 {
			serr := &StatusError{Status: ans.Status}
			if ans.DType == DTypeT {
				serr.Message = string(ans.Body)
			}
			return serr
		}
		v, err = decodeValue(ans)
		return err
	})
	if err != nil {
		return Value{}, fmt.Errorf("evaluating %s: %w", expr, err)
	}
	return v, nil
}

// Close ends the session.
func (c *Conn) Close() error {
	return c.rw.Close()
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// withContext runs fn, aborting blocked I/O when ctx ends. Streams with
// deadlines are expired; others are closed, which ends the session.
func (c *Conn) withContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		if d, ok := c.rw.(deadliner); ok {
			d.SetDeadline(time.Unix(1, 0))
			return
		}
		c.rw.Close()
	})
	defer stop()

	err := fn()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
