package assemble

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/cache"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/vnames"
)

var tb = common.TimeBase{Start: 0, Step: 1e-3, End: 2e-3}

type fakeFetcher struct {
	nodes map[string]common.NodeSample
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string, _ int32, _ string) (common.NodeSample, error) {
	f.calls = append(f.calls, ref)
	s, ok := f.nodes[ref]
	if !ok {
		return common.NodeSample{}, common.ErrNodeRead
	}
	return s, nil
}

func exp(t *testing.T) vnames.ExpID {
	t.Helper()
	e, err := vnames.ParseExpID("20181018.003")
	if err != nil {
		t.Fatalf("ParseExpID() error = %v", err)
	}
	return e
}

func node(name string) vnames.Signal {
	return vnames.Signal{Name: name, Ref: vnames.NodeRef(name)}
}

func TestComplexCombine(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{nodes: map[string]common.NodeSample{
		"A::RE": {Values: common.FloatSamples([]float64{1, 2, 3}), Time: tb},
		"A::IM": {Values: common.IntSamples([]int64{4, 5, 6}), Time: tb},
	}}
	a := &Assembler{Fetcher: f}
	sig := vnames.Signal{Name: "CR-B", Virtual: true, Ref: vnames.CompositeRef{
		Kind: vnames.KindComplex, Refs: []vnames.NodeRef{"A::RE", "A::IM"},
	}}

	res, err := a.Assemble(context.Background(), []vnames.Signal{sig}, exp(t))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(res.Data.Shape) != 1 || res.Data.Shape[0] != 3 {
		t.Fatalf("shape = %v, want [3]", res.Data.Shape)
	}
	want := []complex128{complex(1, 4), complex(2, 5), complex(3, 6)}
	for i, v := range res.Data.Values.Complex {
		if v != want[i] {
			t.Fatalf("value %d = %v, want %v", i, v, want[i])
		}
	}
	if res.Time == nil || *res.Time != tb {
		t.Fatalf("time = %v, want %v", res.Time, tb)
	}
}

func TestTwoSignalsLayout(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{nodes: map[string]common.NodeSample{
		"A::X": {Values: common.IntSamples([]int64{1, 2, 3}), Time: tb},
		"A::Y": {Values: common.FloatSamples([]float64{0.5, 1.5, 2.5}), Time: tb},
	}}
	a := &Assembler{Fetcher: f}

	res, err := a.Assemble(context.Background(), []vnames.Signal{node("A::Y"), node("A::X")}, exp(t))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if res.Names[0] != "A::Y" || res.Names[1] != "A::X" {
		t.Fatalf("names = %v, want resolution order", res.Names)
	}
	if res.Data.Shape[0] != 3 || res.Data.Shape[1] != 2 {
		t.Fatalf("shape = %v, want [3 2]", res.Data.Shape)
	}
	if res.Data.Values.DType != common.DTypeFloat {
		t.Fatalf("dtype = %v, want float", res.Data.Values.DType)
	}
	want := []float64{0.5, 1, 1.5, 2, 2.5, 3}
	for i, v := range res.Data.Values.Floats {
		if v != want[i] {
			t.Fatalf("values = %v, want %v", res.Data.Values.Floats, want)
		}
	}
}

func TestDTypeUnification(t *testing.T) {
	t.Parallel()

	ints := common.NodeSample{Values: common.IntSamples([]int64{1, 2}), Time: tb}
	floats := common.NodeSample{Values: common.FloatSamples([]float64{1, 2}), Time: tb}
	cplx := common.NodeSample{Values: common.ComplexSamples([]complex128{1, 2i}), Time: tb}

	tests := []struct {
		name  string
		nodes []common.NodeSample
		want  common.DType
	}{
		{name: "int_int", nodes: []common.NodeSample{ints, ints}, want: common.DTypeInt},
		{name: "int_float", nodes: []common.NodeSample{ints, floats}, want: common.DTypeFloat},
		{name: "float_complex_int", nodes: []common.NodeSample{floats, cplx, ints}, want: common.DTypeComplex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeFetcher{nodes: map[string]common.NodeSample{}}
			var sigs []vnames.Signal
			for i, n := range tt.nodes {
				ref := "T::N" + string(rune('0'+i))
				f.nodes[ref] = n
				sigs = append(sigs, node(ref))
			}
			res, err := (&Assembler{Fetcher: f}).Assemble(context.Background(), sigs, exp(t))
			if err != nil {
				t.Fatalf("Assemble() error = %v", err)
			}
			if res.Data.Values.DType != tt.want {
				t.Fatalf("dtype = %v, want %v", res.Data.Values.DType, tt.want)
			}
		})
	}
}

func TestInconsistentTimebase(t *testing.T) {
	t.Parallel()

	other := tb
	other.Step = 2e-3
	f := &fakeFetcher{nodes: map[string]common.NodeSample{
		"A::X": {Values: common.IntSamples([]int64{1, 2}), Time: tb},
		"A::Y": {Values: common.IntSamples([]int64{1, 2}), Time: other},
	}}
	_, err := (&Assembler{Fetcher: f}).Assemble(context.Background(), []vnames.Signal{node("A::X"), node("A::Y")}, exp(t))
	if !errors.Is(err, common.ErrInconsistentTimebase) {
		t.Fatalf("Assemble() error = %v, want ErrInconsistentTimebase", err)
	}
	var tbErr *common.TimebaseError
	if !errors.As(err, &tbErr) || tbErr.Node != "A::Y" || tbErr.Got != other {
		t.Fatalf("Assemble() error = %#v, want TimebaseError for A::Y", err)
	}
}

func TestLengthMismatch(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{nodes: map[string]common.NodeSample{
		"A::X": {Values: common.IntSamples([]int64{1, 2}), Time: tb},
		"A::Y": {Values: common.IntSamples([]int64{1, 2, 3}), Time: tb},
	}}
	_, err := (&Assembler{Fetcher: f}).Assemble(context.Background(), []vnames.Signal{node("A::X"), node("A::Y")}, exp(t))
	if !errors.Is(err, common.ErrShape) {
		t.Fatalf("Assemble() error = %v, want ErrShape", err)
	}
}

func TestUnsupportedComposite(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{}
	sig := vnames.Signal{Name: "S", Virtual: true, Ref: vnames.CompositeRef{Kind: "sum", Refs: []vnames.NodeRef{"A::X", "A::Y"}}}
	_, err := (&Assembler{Fetcher: f}).Assemble(context.Background(), []vnames.Signal{sig}, exp(t))
	if !errors.Is(err, common.ErrUnsupportedComposite) {
		t.Fatalf("Assemble() error = %v, want ErrUnsupportedComposite", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("fetcher called %d times before plan validation failed", len(f.calls))
	}
}

func TestCacheAvoidsFetcher(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := cache.New(dir, true)
	f := &fakeFetcher{nodes: map[string]common.NodeSample{
		`\A::X`: {Values: common.FloatSamples([]float64{1, 2, 3}), Time: tb},
	}}
	var events []NodeEvent
	a := &Assembler{Fetcher: f, Cache: store, Observer: func(ev NodeEvent) { events = append(events, ev) }}

	first, err := a.Assemble(context.Background(), []vnames.Signal{node(`\A::X`)}, exp(t))
	if err != nil {
		t.Fatalf("first Assemble() error = %v", err)
	}
	second, err := a.Assemble(context.Background(), []vnames.Signal{node(`\A::X`)}, exp(t))
	if err != nil {
		t.Fatalf("second Assemble() error = %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("fetcher called %d times, want 1", len(f.calls))
	}
	if len(events) != 2 || events[0].Source != SourceRemote || events[1].Source != SourceCache {
		t.Fatalf("events = %+v, want remote then cache", events)
	}
	if *first.Time != *second.Time || second.Data.Values.Floats[2] != 3 {
		t.Fatalf("cached result differs: %+v vs %+v", first, second)
	}
}

func TestCorruptCacheFallsBackToFetch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := cache.New(dir, true)
	e := exp(t)
	if err := os.WriteFile(store.Path(e.Shot(), `\A::X`), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	f := &fakeFetcher{nodes: map[string]common.NodeSample{
		`\A::X`: {Values: common.IntSamples([]int64{7}), Time: tb},
	}}

	res, err := (&Assembler{Fetcher: f, Cache: store}).Assemble(context.Background(), []vnames.Signal{node(`\A::X`)}, e)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(f.calls) != 1 || res.Data.Values.Ints[0] != 7 {
		t.Fatalf("calls = %v, data = %v", f.calls, res.Data.Values)
	}
	if r := store.Get(e.Shot(), `\A::X`); r.Status != cache.Hit {
		t.Fatalf("cache after refetch = %v, want hit", r.Status)
	}
}
