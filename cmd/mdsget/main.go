// mdsget reads W7-X MDSplus signals of one experiment and prints a summary
// or the samples as CSV.
//
//	mdsget -exp 20181018.003 -name CR-B -name CR-C [-csv]
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fusion-flap/flap-w7x-mdsplus/internal/config"
	"github.com/fusion-flap/flap-w7x-mdsplus/internal/util"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/datasource"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/logger/console"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/mds"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/w7x"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
	}))

	if err := run(ctx, os.Args[1:], os.Stdout, nil); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error("mdsget failed", "err", err)
		os.Exit(1)
	}
}

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// run parses args, reads the data and writes it to out. dial overrides the
// mdsip transport when not nil.
func run(ctx context.Context, args []string, out io.Writer, dial mds.Dialer) error {
	fs := flag.NewFlagSet("mdsget", flag.ContinueOnError)
	exp := fs.String("exp", "", "experiment ID, YYYYMMDD.nnn")
	asCSV := fs.Bool("csv", false, "print the samples as CSV")
	var names, options, ranges listFlag
	fs.Var(&names, "name", "signal name, may contain wildcards (repeatable)")
	fs.Var(&options, "option", "reader option as 'Key=Value' (repeatable)")
	fs.Var(&ranges, "range", "select 'Coordinate:low:high' (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *exp == "" || len(names) == 0 {
		fs.Usage()
		return fmt.Errorf("%w: -exp and at least one -name are required", common.ErrFormat)
	}

	req := datasource.Request{ExpID: *exp, Names: names, Options: map[string]string{}}
	for _, o := range options {
		k, v, ok := strings.Cut(o, "=")
		if !ok {
			return fmt.Errorf("%w: option %q is not Key=Value", common.ErrInvalidOption, o)
		}
		req.Options[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	for _, r := range ranges {
		rng, err := parseRange(r)
		if err != nil {
			return err
		}
		req.Ranges = append(req.Ranges, rng)
	}

	cfg, err := config.LoadReaderConfig()
	if err != nil {
		return err
	}
	reader := &w7x.Reader{Config: cfg, Dial: dial}
	obj, err := reader.GetData(ctx, req)
	if err != nil {
		return err
	}

	if *asCSV {
		return writeCSV(out, obj)
	}
	return writeSummary(out, obj)
}

func parseRange(s string) (dataobj.Range, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return dataobj.Range{}, fmt.Errorf("%w: range %q is not Coordinate:low:high", common.ErrFormat, s)
	}
	low, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return dataobj.Range{}, fmt.Errorf("%w: range %q: %w", common.ErrFormat, s, err)
	}
	high, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return dataobj.Range{}, fmt.Errorf("%w: range %q: %w", common.ErrFormat, s, err)
	}
	return dataobj.Range{Coordinate: parts[0], Low: low, High: high}, nil
}

func writeSummary(out io.Writer, obj *dataobj.DataObject) error {
	fmt.Fprintf(out, "%s, exp %s\n", obj.Title, obj.ExpID)
	fmt.Fprintf(out, "  data: %s %v\n", obj.Data.Values.DType, obj.Data.Shape)
	for _, c := range obj.Coordinates {
		switch {
		case c.Mode.Equidistant:
			fmt.Fprintf(out, "  %s: start %g step %g %s dims %v\n", c.Name, c.Start, c.Step, c.Unit.Unit, c.Dimensions)
		default:
			fmt.Fprintf(out, "  %s: %s dims %v\n", c.Name, strings.Join(c.Values, ", "), c.Dimensions)
		}
	}
	return nil
}

// writeCSV writes one row per sample: the time, then one column per signal.
func writeCSV(out io.Writer, obj *dataobj.DataObject) error {
	names := []string{obj.ExpID}
	if c, ok := obj.Coordinate(w7x.CoordSignalName); ok {
		names = c.Values
	}
	timeCoord, hasTime := obj.Coordinate(w7x.CoordTime)

	rows := 0
	if len(obj.Data.Shape) > 0 {
		rows = obj.Data.Shape[0]
	}
	cols := 1
	if len(obj.Data.Shape) > 1 {
		cols = obj.Data.Shape[1]
	}

	w := csv.NewWriter(out)
	header := append([]string{w7x.CoordTime}, names...)
	if !hasTime {
		header[0] = w7x.CoordSample
	}
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, cols+1)
	for i := range rows {
		if hasTime {
			record[0] = strconv.FormatFloat(timeCoord.Start+float64(i)*timeCoord.Step, 'g', -1, 64)
		} else {
			record[0] = strconv.Itoa(i)
		}
		for j := range cols {
			record[j+1] = formatSample(obj.Data.Values, i*cols+j)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatSample(s common.Samples, i int) string {
	switch s.DType {
	case common.DTypeInt:
		return strconv.FormatInt(s.Ints[i], 10)
	case common.DTypeFloat:
		return strconv.FormatFloat(s.Floats[i], 'g', -1, 64)
	default:
		return strconv.FormatComplex(s.Complex[i], 'g', -1, 128)
	}
}
