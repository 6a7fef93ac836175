// Package datasource dispatches data requests to named data sources.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/dataobj"
)

var ErrUnknownSource = errors.New("unknown data source")

// Request asks a data source for named signals of one experiment.
type Request struct {
	ExpID   string            `json:"exp_id" validate:"required"`
	Names   []string          `json:"names" validate:"required,min=1,dive,required"`
	Options map[string]string `json:"options,omitempty"`
	Ranges  []dataobj.Range   `json:"ranges,omitempty" validate:"dive"`
}

type GetDataFunc func(ctx context.Context, req Request) (*dataobj.DataObject, error)

type AddCoordinateFunc func(ctx context.Context, obj *dataobj.DataObject, coordinates []string, options map[string]string) (*dataobj.DataObject, error)

// Source is a registered data source.
type Source struct {
	Name          string
	GetData       GetDataFunc
	AddCoordinate AddCoordinateFunc
}

// Registry maps source names to sources. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// Default is the process-wide registry.
var Default = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds s, replacing a source of the same name.
func (r *Registry) Register(s Source) error {
	if s.Name == "" || s.GetData == nil {
		return fmt.Errorf("data source %q needs a name and a GetData function", s.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name] = s
	return nil
}

func (r *Registry) Lookup(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// GetData reads data from the named source.
func (r *Registry) GetData(ctx context.Context, source string, req Request) (*dataobj.DataObject, error) {
	s, ok := r.Lookup(source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	return s.GetData(ctx, req)
}

// AddCoordinate asks the source of obj to add coordinates to it.
func (r *Registry) AddCoordinate(ctx context.Context, obj *dataobj.DataObject, coordinates []string, options map[string]string) (*dataobj.DataObject, error) {
	s, ok := r.Lookup(obj.Source)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, obj.Source)
	}
	if s.AddCoordinate == nil {
		return nil, fmt.Errorf("data source %s cannot add coordinates", s.Name)
	}
	return s.AddCoordinate(ctx, obj, coordinates, options)
}
