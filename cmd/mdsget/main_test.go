package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/mds"
)

type fakeConn struct{}

func (fakeConn) OpenTree(context.Context, string, int32) error { return nil }

func (fakeConn) ReadNode(_ context.Context, path string) (common.NodeSample, error) {
	v := []float64{1, 2, 3}
	if strings.HasSuffix(path, "IM") {
		v = []float64{0.5, 0, -1}
	}
	return common.NodeSample{
		Values: common.FloatSamples(v),
		Time:   common.TimeBase{Start: 0, Step: 0.5, End: 1},
	}, nil
}

func (fakeConn) Close() error { return nil }

func fakeDial(context.Context, mds.Target) (mds.Connection, error) { return fakeConn{}, nil }

func writeVirtualFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "w7x.virt")
	data := "[Virtual names]\nCH-1 = QRN::CH1\nCH-2 = QRN::CH2\nCR-B = complex(QRN::RE, QRN::IM)\n"
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return p
}

func TestRunCSV(t *testing.T) {
	t.Setenv("MDS_CONFIG_FILE", "")
	t.Setenv("MDS_USER", "tester")
	t.Setenv("MDS_VIRTUAL_NAME_FILE", writeVirtualFile(t))

	var out bytes.Buffer
	err := run(context.Background(), []string{"-exp", "20181018.003", "-name", "CH-*", "-csv", "-option", "Verbose=no"}, &out, fakeDial)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	want := "Time,CH-1,CH-2\n0,1,1\n0.5,2,2\n1,3,3\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestRunComplexWithRange(t *testing.T) {
	t.Setenv("MDS_CONFIG_FILE", "")
	t.Setenv("MDS_USER", "tester")
	t.Setenv("MDS_VIRTUAL_NAME_FILE", writeVirtualFile(t))

	var out bytes.Buffer
	err := run(context.Background(), []string{"-exp", "20181018.003", "-name", "CR-B", "-csv", "-range", "Time:0.4:1"}, &out, fakeDial)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	want := "Time,CR-B\n0.5,(2+0i)\n1,(3-1i)\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestRunSummary(t *testing.T) {
	t.Setenv("MDS_CONFIG_FILE", "")
	t.Setenv("MDS_USER", "tester")
	t.Setenv("MDS_VIRTUAL_NAME_FILE", "")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-exp", "20181018.003", "-name", `\QRN::CH1`}, &out, fakeDial); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	for _, want := range []string{"W7-X MDSPlus data, exp 20181018.003", "data: float [3]", "Time: start 0 step 0.5"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("summary %q does not contain %q", out.String(), want)
		}
	}
}

func TestRunErrors(t *testing.T) {
	t.Setenv("MDS_CONFIG_FILE", "")
	t.Setenv("MDS_USER", "tester")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "missing_exp", args: []string{"-name", "A::B"}, want: common.ErrFormat},
		{name: "bad_option", args: []string{"-exp", "20181018.003", "-name", "A::B", "-option", "Verbose"}, want: common.ErrInvalidOption},
		{name: "unknown_option", args: []string{"-exp", "20181018.003", "-name", "A::B", "-option", "Colour=red"}, want: common.ErrInvalidOption},
		{name: "bad_range", args: []string{"-exp", "20181018.003", "-name", "A::B", "-range", "Time:1"}, want: common.ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), tt.args, &out, fakeDial); !errors.Is(err, tt.want) {
				t.Fatalf("run() error = %v, want %v", err, tt.want)
			}
		})
	}
}
