package sources_test

import (
	"context"
	"testing"

	"eventhub/internal/domain"
	"eventhub/internal/sources"
)

func stub(id sources.ID) sources.Adapter {
	return sources.Func{SourceID: id, FetchFn: func(context.Context) ([]domain.NormalizedEvent, error) { return nil, nil }}
}

func TestRegistryRunsSeedFirst(t *testing.T) {
	reg, err := sources.NewRegistry(stub(sources.Council), stub(sources.Eventbrite), stub(sources.Seed))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	all := reg.All()
	want := []sources.ID{sources.Seed, sources.Eventbrite, sources.Council}
	if len(all) != len(want) {
		t.Fatalf("expected %d adapters, got %d", len(want), len(all))
	}
	for i, id := range want {
		if all[i].ID() != id {
			t.Fatalf("position %d: got %s want %s", i, all[i].ID(), id)
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	reg, err := sources.NewRegistry(stub(sources.Seed), stub(sources.Timeout))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for _, name := range []string{"timeout", "Timeout Sydney", "TIMEOUT SYDNEY"} {
		a, ok := reg.Lookup(name)
		if !ok || a.ID() != sources.Timeout {
			t.Fatalf("lookup %q failed", name)
		}
	}
	if _, ok := reg.Lookup("Eventbrite"); ok {
		t.Fatalf("expected unregistered source to be missing")
	}
	if _, ok := reg.Lookup("Meetup"); ok {
		t.Fatalf("expected unknown source to be missing")
	}
	if a, _ := reg.Lookup("Sydney Events Hub"); a.Name() != "Sydney Events Hub" {
		t.Fatalf("unexpected seed name %q", a.Name())
	}
}

func TestRegistryRejectsDuplicatesAndUnknownIDs(t *testing.T) {
	if _, err := sources.NewRegistry(stub(sources.Seed), stub(sources.Seed)); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := sources.NewRegistry(stub(sources.ID("meetup"))); err == nil {
		t.Fatalf("expected unknown id error")
	}
}

func TestParseID(t *testing.T) {
	id, err := sources.ParseID(" City of Sydney ")
	if err != nil || id != sources.Council {
		t.Fatalf("parse display name: %v %s", err, id)
	}
	if _, err := sources.ParseID("nope"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestBuildEnablesAllByDefault(t *testing.T) {
	reg, err := sources.Build(sources.Options{}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(reg.All()) != len(sources.Order) {
		t.Fatalf("expected every source, got %d", len(reg.All()))
	}
	reg, err = sources.Build(sources.Options{}, []sources.ID{sources.Broadsheet})
	if err != nil {
		t.Fatalf("build subset: %v", err)
	}
	if all := reg.All(); len(all) != 1 || all[0].Name() != "Broadsheet Sydney" {
		t.Fatalf("unexpected subset %+v", all)
	}
}
