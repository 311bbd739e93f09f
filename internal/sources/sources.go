package sources

import (
	"context"
	"fmt"
	"strings"

	"eventhub/internal/domain"
)

// ID is the closed set of source identifiers known at start-up.
type ID string

const (
	Seed       ID = "seed"
	Eventbrite ID = "eventbrite"
	Timeout    ID = "timeout"
	Council    ID = "council"
	Broadsheet ID = "broadsheet"
)

// Order is the default run order. The seed source always runs first.
var Order = []ID{Seed, Eventbrite, Timeout, Council, Broadsheet}

var displayNames = map[ID]string{
	Seed:       "Sydney Events Hub",
	Eventbrite: "Eventbrite",
	Timeout:    "Timeout Sydney",
	Council:    "City of Sydney",
	Broadsheet: "Broadsheet Sydney",
}

// DisplayName is the source name recorded on events and run logs.
func (id ID) DisplayName() string {
	if n, ok := displayNames[id]; ok {
		return n
	}
	return string(id)
}

// ParseID resolves an identifier slug or a display name.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	for _, id := range Order {
		if strings.EqualFold(s, string(id)) || strings.EqualFold(s, displayNames[id]) {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Adapter fetches one source and normalizes its listings. Malformed items are
// dropped internally; only batch-level failures are returned.
type Adapter interface {
	ID() ID
	Name() string
	Fetch(ctx context.Context) ([]domain.NormalizedEvent, error)
}

// Func adapts a plain function to the Adapter interface.
type Func struct {
	SourceID ID
	FetchFn  func(ctx context.Context) ([]domain.NormalizedEvent, error)
}

func (f Func) ID() ID       { return f.SourceID }
func (f Func) Name() string { return f.SourceID.DisplayName() }
func (f Func) Fetch(ctx context.Context) ([]domain.NormalizedEvent, error) {
	return f.FetchFn(ctx)
}

// Registry maps source IDs to adapters. It is built once and read-only afterwards.
type Registry struct {
	adapters map[ID]Adapter
	order    []ID
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[ID]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, ok := displayNames[a.ID()]; !ok {
			return nil, fmt.Errorf("unknown source id %q", a.ID())
		}
		if _, dup := r.adapters[a.ID()]; dup {
			return nil, fmt.Errorf("duplicate adapter for %q", a.ID())
		}
		r.adapters[a.ID()] = a
	}
	for _, id := range Order {
		if _, ok := r.adapters[id]; ok {
			r.order = append(r.order, id)
		}
	}
	return r, nil
}

// All returns the registered adapters in run order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// Lookup finds an adapter by slug or display name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	id, err := ParseID(name)
	if err != nil {
		return nil, false
	}
	a, ok := r.adapters[id]
	return a, ok
}

func (r *Registry) Get(id ID) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}
