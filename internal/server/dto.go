package server

import (
	"dofaline/internal/catalog"
	"dofaline/internal/config"
	"dofaline/internal/domain"
	"dofaline/internal/engine"
	"dofaline/internal/syncer"
	"dofaline/internal/tasks"
)

// Request payloads

type ActionRequest struct {
	// ID is only honoured on record replacement.
	ID                    string `json:"id,omitempty"`
	Text                  string `json:"text"`
	Responsible           string `json:"responsible,omitempty"`
	StartDate             string `json:"startDate,omitempty" example:"2024-05-01"`
	EndDate               string `json:"endDate,omitempty" example:"2024-06-30"`
	EffectivenessFollowUp string `json:"effectivenessFollowUp,omitempty"`
}

func (a ActionRequest) input() engine.ActionInput {
	return engine.ActionInput{
		Text:                  a.Text,
		Responsible:           a.Responsible,
		StartDate:             a.StartDate,
		EndDate:               a.EndDate,
		EffectivenessFollowUp: a.EffectivenessFollowUp,
	}
}

type RecordRequest struct {
	Country       string          `json:"country" example:"Panamá"`
	Axis          string          `json:"axis" example:"Excelencia Operativa"`
	Category      string          `json:"category" example:"Personal"`
	Type          string          `json:"type" enum:"F,O,D,A"`
	Factor        string          `json:"factor"`
	Description   string          `json:"description,omitempty"`
	Justification string          `json:"justification,omitempty"`
	Impact        int             `json:"impact" minimum:"1" maximum:"5"`
	User          string          `json:"user,omitempty"`
	Actions       []ActionRequest `json:"actions,omitempty"`
}

func (r RecordRequest) createOptions(actor string) engine.RecordCreateOptions {
	user := r.User
	if user == "" {
		user = actor
	}
	opts := engine.RecordCreateOptions{
		Country:       r.Country,
		Axis:          r.Axis,
		Category:      r.Category,
		Type:          domain.DofaType(r.Type),
		Factor:        r.Factor,
		Description:   r.Description,
		Justification: r.Justification,
		Impact:        r.Impact,
		User:          user,
	}
	for _, a := range r.Actions {
		opts.Actions = append(opts.Actions, a.input())
	}
	return opts
}

func (r RecordRequest) record(id, actor string) domain.DofaRecord {
	user := r.User
	if user == "" {
		user = actor
	}
	rec := domain.DofaRecord{
		ID:            id,
		Country:       r.Country,
		Axis:          r.Axis,
		Category:      r.Category,
		Type:          domain.DofaType(r.Type),
		Factor:        r.Factor,
		Description:   r.Description,
		Justification: r.Justification,
		Impact:        r.Impact,
		User:          user,
		Actions:       []domain.DofaAction{},
	}
	for _, a := range r.Actions {
		rec.Actions = append(rec.Actions, domain.DofaAction{
			ID:                    a.ID,
			Text:                  a.Text,
			Responsible:           a.Responsible,
			StartDate:             a.StartDate,
			EndDate:               a.EndDate,
			EffectivenessFollowUp: a.EffectivenessFollowUp,
		})
	}
	return rec
}

type CreateIndicatorRequest struct {
	ProcessID string `json:"processId" example:"hse-Salud"`
	Type      string `json:"type,omitempty" example:"Táctico"`
	Name      string `json:"name"`
	Goal      string `json:"goal,omitempty"`
	Formula   string `json:"formula,omitempty"`
}

type RemoteSettingsRequest struct {
	URL             *string `json:"url,omitempty"`
	Key             *string `json:"key,omitempty"`
	RecordsTable    *string `json:"records_table,omitempty"`
	IndicatorsTable *string `json:"indicators_table,omitempty"`
}

// Responses

type TaskListResponse struct {
	Items []domain.TaskView `json:"items"`
	Stats tasks.TaskStats   `json:"stats"`
}

type CatalogResponse struct {
	Countries       []catalog.Country              `json:"countries"`
	Axes            []string                       `json:"axes"`
	Categories      []string                       `json:"categories"`
	TypeLabels      map[string]string              `json:"type_labels"`
	ImpactLabels    map[string]string              `json:"impact_labels"`
	IndicatorTypes  []domain.IndicatorType         `json:"indicator_types"`
	FactorTemplates map[string]map[string][]string `json:"factor_templates"`
}

type RemoteSettingsResponse struct {
	URL             string `json:"url"`
	Key             string `json:"key" doc:"Masked key"`
	RecordsTable    string `json:"records_table"`
	IndicatorsTable string `json:"indicators_table"`
	Enabled         bool   `json:"enabled"`
}

func remoteSettingsResponse(c config.RemoteConfig) RemoteSettingsResponse {
	return RemoteSettingsResponse{
		URL:             c.URL,
		Key:             c.MaskedKey(),
		RecordsTable:    c.RecordsTable,
		IndicatorsTable: c.IndicatorsTable,
		Enabled:         c.Enabled(),
	}
}

type SyncResponse struct {
	Result syncer.PullResult `json:"result"`
	Status syncer.Status     `json:"status"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
