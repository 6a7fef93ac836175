package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
)

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	var got Request
	err := reg.Register(Source{
		Name: "TEST",
		GetData: func(_ context.Context, req Request) (*dataobj.DataObject, error) {
			got = req
			return &dataobj.DataObject{Source: "TEST", ExpID: req.ExpID}, nil
		},
		AddCoordinate: func(_ context.Context, obj *dataobj.DataObject, _ []string, _ map[string]string) (*dataobj.DataObject, error) {
			return obj, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(Source{Name: "B", GetData: func(context.Context, Request) (*dataobj.DataObject, error) { return nil, nil }}); err != nil {
		t.Fatalf("Register(B) error = %v", err)
	}

	obj, err := reg.GetData(context.Background(), "TEST", Request{ExpID: "20181018.003", Names: []string{"X"}})
	if err != nil || obj.ExpID != "20181018.003" || got.Names[0] != "X" {
		t.Fatalf("GetData() = %+v, %v", obj, err)
	}
	if _, err := reg.AddCoordinate(context.Background(), obj, []string{"Device R"}, nil); err != nil {
		t.Fatalf("AddCoordinate() error = %v", err)
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "B" || names[1] != "TEST" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestRegistryErrors(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	if err := reg.Register(Source{Name: "X"}); err == nil {
		t.Fatalf("Register() without GetData should fail")
	}
	if _, err := reg.GetData(context.Background(), "NOPE", Request{}); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("GetData() error = %v, want ErrUnknownSource", err)
	}
	if _, err := reg.AddCoordinate(context.Background(), &dataobj.DataObject{Source: "NOPE"}, nil, nil); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("AddCoordinate() error = %v, want ErrUnknownSource", err)
	}
}
