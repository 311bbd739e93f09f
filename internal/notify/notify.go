package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"eventhub/internal/domain"
)

// Run event types delivered to subscribers.
const (
	TypeRunSucceeded = "run.succeeded"
	TypeRunFailed    = "run.failed"
)

// Notifier receives the summary of every finished source run.
type Notifier interface {
	Notify(ctx context.Context, s domain.RunSummary) error
}

// RunEvent is the wire body shared by every backend.
type RunEvent struct {
	Type    string            `json:"type"`
	TS      time.Time         `json:"ts"`
	Summary domain.RunSummary `json:"summary"`
}

func NewRunEvent(s domain.RunSummary, at time.Time) RunEvent {
	t := TypeRunSucceeded
	if s.Failed() {
		t = TypeRunFailed
	}
	return RunEvent{Type: t, TS: at.UTC(), Summary: s}
}

// Multi fans a summary out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, s domain.RunSummary) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
