package sources

import (
	"time"
)

// Options configures the built-in adapters.
type Options struct {
	City     string
	Location *time.Location
	Fetcher  Fetcher
	// URLs overrides listing pages per source.
	URLs map[ID]string
	Now  func() time.Time
}

func (o Options) city() string {
	if o.City == "" {
		return "Sydney"
	}
	return o.City
}

func (o Options) listing(id ID, def string) string {
	if u, ok := o.URLs[id]; ok && u != "" {
		return u
	}
	return def
}

func (o Options) loc() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return LoadLocation("")
}

// New builds the adapter for id.
func New(id ID, o Options) (Adapter, error) {
	switch id {
	case Seed:
		return NewSeed(o), nil
	case Eventbrite:
		return NewEventbrite(o), nil
	case Timeout:
		return NewTimeout(o), nil
	case Council:
		return NewCouncil(o), nil
	case Broadsheet:
		return NewBroadsheet(o), nil
	}
	_, err := ParseID(string(id))
	return nil, err
}

// Build returns a registry holding the enabled sources. An empty list enables all.
func Build(o Options, enabled []ID) (*Registry, error) {
	if len(enabled) == 0 {
		enabled = Order
	}
	adapters := make([]Adapter, 0, len(enabled))
	for _, id := range enabled {
		a, err := New(id, o)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return NewRegistry(adapters...)
}
