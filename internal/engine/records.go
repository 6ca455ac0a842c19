package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"dofaline/internal/domain"
	"dofaline/internal/events"
	"dofaline/internal/report"
)

func newID() string {
	return uuid.NewString()
}

// RecordCreateOptions are parameters for creating a record.
type RecordCreateOptions struct {
	Country       string
	Axis          string
	Category      string
	Type          domain.DofaType
	Factor        string
	Description   string
	Justification string
	Impact        int
	User          string
	Actions       []ActionInput
}

func (e Engine) AddRecord(ctx context.Context, opts RecordCreateOptions) (domain.DofaRecord, error) {
	r := domain.DofaRecord{
		ID:            newID(),
		Country:       strings.TrimSpace(opts.Country),
		Axis:          strings.TrimSpace(opts.Axis),
		Category:      strings.TrimSpace(opts.Category),
		Type:          domain.DofaType(strings.ToUpper(strings.TrimSpace(string(opts.Type)))),
		Factor:        strings.TrimSpace(opts.Factor),
		Description:   opts.Description,
		Justification: opts.Justification,
		Impact:        opts.Impact,
		User:          strings.TrimSpace(opts.User),
		Timestamp:     e.now().UnixMilli(),
		Actions:       []domain.DofaAction{},
	}
	for _, in := range opts.Actions {
		a, err := e.buildAction("", in)
		if err != nil {
			return domain.DofaRecord{}, err
		}
		r.Actions = append(r.Actions, a)
	}
	if err := e.validateRecord(r); err != nil {
		return domain.DofaRecord{}, err
	}
	if err := e.Records.Add(ctx, r); err != nil {
		return domain.DofaRecord{}, err
	}
	e.record(ctx, events.RecordCreated, events.KindRecord, r.ID, r.User, events.EventPayload{
		"country": r.Country, "type": r.Type, "factor": r.Factor, "impact": r.Impact,
	})
	return r, nil
}

// UpdateRecord replaces a record as a whole. The stored id and creation
// timestamp are kept; actions without an id get one.
func (e Engine) UpdateRecord(ctx context.Context, r domain.DofaRecord, actorID string) (domain.DofaRecord, error) {
	r = r.Clone()
	r.Type = domain.DofaType(strings.ToUpper(string(r.Type)))
	if r.Actions == nil {
		r.Actions = []domain.DofaAction{}
	}
	for i, a := range r.Actions {
		if a.ID == "" {
			r.Actions[i].ID = newID()
		}
		if err := e.checkDates(r.Actions[i]); err != nil {
			return domain.DofaRecord{}, err
		}
	}
	return e.modifyRecord(ctx, r.ID, actorID, func(existing *domain.DofaRecord) (events.EventPayload, error) {
		r.Timestamp = existing.Timestamp
		if err := e.validateRecord(r); err != nil {
			return nil, err
		}
		*existing = r
		return events.EventPayload{"factor": r.Factor, "actions": len(r.Actions)}, nil
	})
}

// modifyRecord runs change against the current stored record under the
// store lock and logs a record update on success.
func (e Engine) modifyRecord(ctx context.Context, id, actorID string, change func(r *domain.DofaRecord) (events.EventPayload, error)) (domain.DofaRecord, error) {
	var (
		out     domain.DofaRecord
		payload events.EventPayload
	)
	ok, err := e.Records.Modify(ctx, id, func(r domain.DofaRecord) (domain.DofaRecord, error) {
		p, err := change(&r)
		if err != nil {
			return r, err
		}
		out, payload = r.Clone(), p
		return r, nil
	})
	if !ok {
		return domain.DofaRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.DofaRecord{}, err
	}
	e.record(ctx, events.RecordUpdated, events.KindRecord, id, actorID, payload)
	return out, nil
}

func (e Engine) DeleteRecord(ctx context.Context, id, actorID string) error {
	ok, err := e.Records.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	e.record(ctx, events.RecordDeleted, events.KindRecord, id, actorID, nil)
	return nil
}

func (e Engine) GetRecord(id string) (domain.DofaRecord, error) {
	r, ok := e.Records.Get(id)
	if !ok {
		return domain.DofaRecord{}, ErrNotFound
	}
	return r, nil
}

// ListRecords returns records matching f, newest first.
func (e Engine) ListRecords(f report.RecordFilter) []domain.DofaRecord {
	return report.FilterRecords(e.Records.List(), f)
}

// AddAction appends an action to a record.
func (e Engine) AddAction(ctx context.Context, recordID string, in ActionInput, actorID string) (domain.DofaAction, error) {
	a, err := e.buildAction("", in)
	if err != nil {
		return domain.DofaAction{}, err
	}
	_, err = e.modifyRecord(ctx, recordID, actorID, func(r *domain.DofaRecord) (events.EventPayload, error) {
		r.Actions = append(r.Actions, a)
		return events.EventPayload{"action_added": a.ID}, nil
	})
	if err != nil {
		return domain.DofaAction{}, err
	}
	return a, nil
}

// UpdateAction replaces the fields of one action of a record.
func (e Engine) UpdateAction(ctx context.Context, recordID, actionID string, in ActionInput, actorID string) (domain.DofaAction, error) {
	a, err := e.buildAction(actionID, in)
	if err != nil {
		return domain.DofaAction{}, err
	}
	_, err = e.modifyRecord(ctx, recordID, actorID, func(r *domain.DofaRecord) (events.EventPayload, error) {
		idx := actionIndex(*r, actionID)
		if idx < 0 {
			return nil, ErrNotFound
		}
		r.Actions[idx] = a
		return events.EventPayload{"action_updated": a.ID}, nil
	})
	if err != nil {
		return domain.DofaAction{}, err
	}
	return a, nil
}

func (e Engine) RemoveAction(ctx context.Context, recordID, actionID, actorID string) error {
	_, err := e.modifyRecord(ctx, recordID, actorID, func(r *domain.DofaRecord) (events.EventPayload, error) {
		idx := actionIndex(*r, actionID)
		if idx < 0 {
			return nil, ErrNotFound
		}
		r.Actions = append(r.Actions[:idx], r.Actions[idx+1:]...)
		return events.EventPayload{"action_removed": actionID}, nil
	})
	return err
}

func actionIndex(r domain.DofaRecord, actionID string) int {
	for i, a := range r.Actions {
		if a.ID == actionID {
			return i
		}
	}
	return -1
}
