package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types recorded in the activity log.
const (
	RecordCreated    = "record.created"
	RecordUpdated    = "record.updated"
	RecordDeleted    = "record.deleted"
	IndicatorCreated = "indicator.created"
	IndicatorDeleted = "indicator.deleted"
	SyncPulled       = "sync.pulled"
	SyncPushed       = "sync.pushed"
	SyncFailed       = "sync.failed"
	SettingsUpdated  = "settings.updated"
)

// Entity kinds.
const (
	KindRecord    = "record"
	KindIndicator = "indicator"
	KindRemote    = "remote"
	KindSettings  = "settings"
)

const SystemActor = "system"

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.DB == nil {
		return nil
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	if actorID == "" {
		actorID = SystemActor
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
