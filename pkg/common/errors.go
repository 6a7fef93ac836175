package common

import (
	"errors"
	"fmt"
)

var (
	ErrFormat               = errors.New("format error")
	ErrConfigIO             = errors.New("cannot read configuration")
	ErrInvalidOption        = errors.New("invalid option")
	ErrConnection           = errors.New("cannot connect to MDSplus server")
	ErrTreeOpen             = errors.New("cannot open MDSplus tree")
	ErrNodeRead             = errors.New("cannot read MDSplus node")
	ErrInconsistentTimebase = errors.New("different timescales for signals, not possible to return in one data object")
	ErrUnsupportedComposite = errors.New("unsupported composite signal")
	ErrShape                = errors.New("signal lengths differ")
	ErrNotImplemented       = errors.New("coordinate conversions not implemented yet")
)

// TimebaseError reports a node whose time base differs from the one
// established by the first node of the same request.
type TimebaseError struct {
	Node string
	Want TimeBase
	Got  TimeBase
}

func (e *TimebaseError) Error() string {
	return fmt.Sprintf(
		"%s: node %s has start=%g step=%g end=%g, expected start=%g step=%g end=%g",
		ErrInconsistentTimebase.Error(), e.Node,
		e.Got.Start, e.Got.Step, e.Got.End,
		e.Want.Start, e.Want.Step, e.Want.End,
	)
}

func (e *TimebaseError) Unwrap() error {
	return ErrInconsistentTimebase
}
