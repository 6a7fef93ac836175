package storage

import (
	"testing"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
)

func TestExportKey(t *testing.T) {
	if got := ExportKey("20181018.003", "abc"); got != "signals/20181018.003/abc.cbor" {
		t.Fatalf("ExportKey() = %q", got)
	}
}

func TestEncodeDataObject(t *testing.T) {
	in := &dataobj.DataObject{
		Title:  "W7-X MDSPlus data",
		Source: "W7X_MDSPlus",
		ExpID:  "20181018.003",
		Data: dataobj.Array{
			Shape:  []int{2},
			Values: common.ComplexSamples([]complex128{complex(1, -1), complex(0, 2)}),
		},
		Coordinates: []dataobj.Coordinate{
			{Name: "Time", Unit: dataobj.Unit{Unit: "Second"}, Mode: dataobj.CoordinateMode{Equidistant: true}, Start: 1, Step: 0.5, Dimensions: []int{0}},
		},
	}

	data, err := EncodeDataObject(in)
	if err != nil {
		t.Fatalf("EncodeDataObject() error = %v", err)
	}
	out, err := DecodeDataObject(data)
	if err != nil {
		t.Fatalf("DecodeDataObject() error = %v", err)
	}
	if out.ExpID != in.ExpID || out.Data.Values.DType != common.DTypeComplex || out.Data.Values.Complex[1] != complex(0, 2) {
		t.Fatalf("decoded = %+v", out)
	}
	if len(out.Coordinates) != 1 || out.Coordinates[0].Step != 0.5 {
		t.Fatalf("decoded coordinates = %+v", out.Coordinates)
	}
}
