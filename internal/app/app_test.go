package app_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"eventhub/internal/app"
	"eventhub/internal/config"
	"eventhub/internal/sources"
)

func TestBuildDefaultWorkspace(t *testing.T) {
	a, err := app.Build(context.Background(), app.Options{Workspace: t.TempDir(), Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	all := a.Engine.Sources.All()
	if len(all) != len(sources.Order) || all[0].ID() != sources.Seed {
		t.Fatalf("unexpected sources %d", len(all))
	}
	if a.Engine.Notifier != nil || a.Engine.Archive != nil {
		t.Fatalf("default config must not wire notifiers or archive")
	}
	n, err := a.Repo.CountEvents(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("count: %v %d", err, n)
	}
}

func TestBuildHonoursDisabledSources(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`city: {name: Sydney}
sources:
  eventbrite: {enabled: false}
  Broadsheet Sydney: {enabled: false}
notify:
  webhooks:
    - url: http://127.0.0.1:1/hook
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	a, err := app.Build(context.Background(), app.Options{Workspace: t.TempDir(), Config: cfg, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if _, ok := a.Engine.Sources.Get(sources.Eventbrite); ok {
		t.Fatalf("eventbrite should be disabled")
	}
	if _, ok := a.Engine.Sources.Lookup("Broadsheet Sydney"); ok {
		t.Fatalf("broadsheet should be disabled")
	}
	if len(a.Engine.Sources.All()) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(a.Engine.Sources.All()))
	}
	if a.Engine.Notifier == nil {
		t.Fatalf("webhook notifier not wired")
	}
}
