package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dofaline/internal/catalog"
	"dofaline/internal/config"
	"dofaline/internal/domain"
	"dofaline/internal/events"
	"dofaline/internal/repo"
	"dofaline/internal/store"
	"dofaline/internal/syncer"
	"dofaline/internal/tasks"
)

// ErrNotFound is returned when a record, action or indicator does not exist.
var ErrNotFound = repo.ErrNotFound

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Catalog    *catalog.Catalog
	Records    *store.Store[domain.DofaRecord]
	Indicators *store.Store[domain.IndicatorRecord]
	Sync       *syncer.Syncer
	Logger     *zap.Logger
	Location   *time.Location
	Now        func() time.Time
}

// New wires the stores and the syncer over db. Call Load before serving.
func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	loc, err := cfg.Location()
	if err != nil {
		loc = time.Local
	}
	r := repo.Repo{DB: db}
	w := events.Writer{DB: db}
	recs := store.New[domain.DofaRecord](config.DefaultRecordsTable, r, logger)
	inds := store.New[domain.IndicatorRecord](config.DefaultIndicatorsTable, r, logger)
	s := syncer.New(cfg.Remote, syncer.Options{
		Records:    recs,
		Indicators: inds,
		Logger:     logger,
		Events:     w,
	})
	return Engine{
		DB:         db,
		Repo:       r,
		Events:     w,
		Config:     cfg,
		Catalog:    catalog.Default(),
		Records:    recs,
		Indicators: inds,
		Sync:       s,
		Logger:     logger.Named("engine"),
		Location:   loc,
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().In(e.loc())
	}
	return time.Now().In(e.loc())
}

func (e Engine) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.Local
}

// Load restores both collections and applies persisted remote settings.
func (e Engine) Load(ctx context.Context) error {
	e.Records.Load(ctx)
	e.Indicators.Load(ctx)
	settings, err := e.Repo.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	e.Sync.Configure(e.Config.Remote.WithSettings(settings))
	return nil
}

// Close waits for background pushes to drain.
func (e Engine) Close() {
	e.Sync.Wait()
}

func (e Engine) record(ctx context.Context, evtType, kind, id, actor string, payload events.EventPayload) {
	if err := e.Events.Append(ctx, evtType, kind, id, actor, payload); err != nil {
		e.Logger.Warn("append event", zap.String("type", evtType), zap.Error(err))
	}
}

// ActionInput carries the editable fields of an action.
type ActionInput struct {
	Text                  string
	Responsible           string
	StartDate             string
	EndDate               string
	EffectivenessFollowUp string
}

func (e Engine) buildAction(id string, in ActionInput) (domain.DofaAction, error) {
	a := domain.DofaAction{
		ID:                    id,
		Text:                  strings.TrimSpace(in.Text),
		Responsible:           strings.TrimSpace(in.Responsible),
		StartDate:             strings.TrimSpace(in.StartDate),
		EndDate:               strings.TrimSpace(in.EndDate),
		EffectivenessFollowUp: in.EffectivenessFollowUp,
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if a.Text == "" {
		return a, invalid("text", "is required")
	}
	if err := e.checkDates(a); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) checkDates(a domain.DofaAction) error {
	start, startOK := tasks.ParseDate(a.StartDate, e.loc())
	if a.StartDate != "" && !startOK {
		return invalid("startDate", "%q is not a date", a.StartDate)
	}
	end, endOK := tasks.ParseDate(a.EndDate, e.loc())
	if a.EndDate != "" && !endOK {
		return invalid("endDate", "%q is not a date", a.EndDate)
	}
	if startOK && endOK && end.Before(start) {
		return invalid("endDate", "must not be before startDate")
	}
	return nil
}

func (e Engine) validateRecord(r domain.DofaRecord) error {
	c := e.Catalog
	switch {
	case !c.HasCountry(r.Country):
		return invalid("country", "unknown country %q", r.Country)
	case !c.HasAxis(r.Axis):
		return invalid("axis", "unknown axis %q", r.Axis)
	case !c.HasCategory(r.Category):
		return invalid("category", "unknown category %q", r.Category)
	case !r.Type.Valid():
		return invalid("type", "must be one of F, O, D, A")
	case strings.TrimSpace(r.Factor) == "":
		return invalid("factor", "is required")
	case r.Impact < 1 || r.Impact > 5:
		return invalid("impact", "must be between 1 and 5")
	case strings.TrimSpace(r.User) == "":
		return invalid("user", "is required")
	}
	seen := map[string]struct{}{}
	for _, a := range r.Actions {
		if _, dup := seen[a.ID]; dup {
			return invalid("actions", "duplicate action id %s", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}
