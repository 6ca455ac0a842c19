package engine

import (
	"context"
	"strings"

	"dofaline/internal/domain"
	"dofaline/internal/events"
	"dofaline/internal/report"
)

type IndicatorCreateOptions struct {
	ProcessID string
	// Type accepts the stored label or its English name; empty means tactical.
	Type    string
	Name    string
	Goal    string
	Formula string
	ActorID string
}

// AddIndicator registers an indicator against a node of the process map.
func (e Engine) AddIndicator(ctx context.Context, opts IndicatorCreateOptions) (domain.IndicatorRecord, error) {
	node, ok := e.Catalog.LookupProcess(strings.TrimSpace(opts.ProcessID))
	if !ok {
		return domain.IndicatorRecord{}, invalid("processId", "unknown process %q", opts.ProcessID)
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.IndicatorRecord{}, invalid("name", "is required")
	}
	typ := domain.IndicatorTactical
	if strings.TrimSpace(opts.Type) != "" {
		t, ok := domain.ParseIndicatorType(opts.Type)
		if !ok {
			return domain.IndicatorRecord{}, invalid("type", "unknown indicator type %q", opts.Type)
		}
		typ = t
	}
	ind := domain.IndicatorRecord{
		ID:          newID(),
		ProcessID:   node.ID,
		ProcessName: node.Name,
		Type:        typ,
		Name:        name,
		Goal:        strings.TrimSpace(opts.Goal),
		Formula:     strings.TrimSpace(opts.Formula),
		Timestamp:   e.now().UnixMilli(),
	}
	if err := e.Indicators.Add(ctx, ind); err != nil {
		return domain.IndicatorRecord{}, err
	}
	e.record(ctx, events.IndicatorCreated, events.KindIndicator, ind.ID, opts.ActorID, events.EventPayload{
		"process_id": ind.ProcessID, "name": ind.Name, "type": ind.Type,
	})
	return ind, nil
}

func (e Engine) DeleteIndicator(ctx context.Context, id, actorID string) error {
	ok, err := e.Indicators.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	e.record(ctx, events.IndicatorDeleted, events.KindIndicator, id, actorID, nil)
	return nil
}

func (e Engine) ListIndicators(f report.IndicatorFilter) []domain.IndicatorRecord {
	return report.FilterIndicators(e.Indicators.List(), f)
}
