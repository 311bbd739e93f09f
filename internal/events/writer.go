package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/db"
)

// History entry types.
const (
	TypeCreated  = "event.created"
	TypeChanged  = "event.changed"
	TypeRetired  = "event.retired"
	TypeImported = "event.imported"
)

// TSLayout is a fixed-width UTC layout so stored timestamps sort lexically.
const TSLayout = "2006-01-02T15:04:05.000000Z"

type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

// Append records a lifecycle transition for a stored event inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, eventID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(TSLayout)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal history payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO event_history(id,event_id,ts,type,actor_id,payload_json) VALUES (?,?,?,?,?,?)`),
		uuid.NewString(), eventID, ts, evtType, actorID, string(data))
	return err
}
