package domain

import "strings"

// DofaType classifies a factor: F strength, O opportunity, D weakness, A threat.
type DofaType string

const (
	TypeStrength    DofaType = "F"
	TypeOpportunity DofaType = "O"
	TypeWeakness    DofaType = "D"
	TypeThreat      DofaType = "A"
)

// DofaTypes lists the factor types in display order.
var DofaTypes = []DofaType{TypeStrength, TypeOpportunity, TypeWeakness, TypeThreat}

func (t DofaType) Valid() bool {
	switch t {
	case TypeStrength, TypeOpportunity, TypeWeakness, TypeThreat:
		return true
	}
	return false
}

type DofaAction struct {
	ID                    string `json:"id"`
	Text                  string `json:"text"`
	Responsible           string `json:"responsible"`
	StartDate             string `json:"startDate"`
	EndDate               string `json:"endDate"`
	EffectivenessFollowUp string `json:"effectivenessFollowUp"`
}

type DofaRecord struct {
	ID            string       `json:"id"`
	Country       string       `json:"country"`
	Axis          string       `json:"axis"`
	Category      string       `json:"category"`
	Type          DofaType     `json:"type" enum:"F,O,D,A"`
	Factor        string       `json:"factor"`
	Description   string       `json:"description"`
	Justification string       `json:"justification"`
	Impact        int          `json:"impact" minimum:"1" maximum:"5"`
	User          string       `json:"user"`
	Timestamp     int64        `json:"timestamp"`
	Actions       []DofaAction `json:"actions"`
}

func (r DofaRecord) GetID() string { return r.ID }

// Clone returns a copy that does not share the actions slice.
func (r DofaRecord) Clone() DofaRecord {
	out := r
	if r.Actions == nil {
		return out
	}
	out.Actions = make([]DofaAction, len(r.Actions))
	copy(out.Actions, r.Actions)
	return out
}

// IndicatorType values are the labels stored by existing data.
type IndicatorType string

const (
	IndicatorStrategic   IndicatorType = "Estratégico"
	IndicatorTactical    IndicatorType = "Táctico"
	IndicatorOperational IndicatorType = "Operativo"
)

var IndicatorTypes = []IndicatorType{IndicatorStrategic, IndicatorTactical, IndicatorOperational}

// ParseIndicatorType accepts the stored label or its English name.
func ParseIndicatorType(s string) (IndicatorType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "estratégico", "estrategico", "strategic":
		return IndicatorStrategic, true
	case "táctico", "tactico", "tactical":
		return IndicatorTactical, true
	case "operativo", "operational":
		return IndicatorOperational, true
	}
	return "", false
}

type IndicatorRecord struct {
	ID          string        `json:"id"`
	ProcessID   string        `json:"processId"`
	ProcessName string        `json:"processName"`
	Type        IndicatorType `json:"type"`
	Name        string        `json:"name"`
	Goal        string        `json:"goal"`
	Formula     string        `json:"formula"`
	Timestamp   int64         `json:"timestamp"`
}

func (i IndicatorRecord) GetID() string { return i.ID }

// ActionStatus is derived from an action's dates and follow-up; it is never stored.
type ActionStatus string

const (
	StatusOpen       ActionStatus = "open"
	StatusInProgress ActionStatus = "in_progress"
	StatusClosed     ActionStatus = "closed"
	StatusDelayed    ActionStatus = "delayed"
)

var ActionStatuses = []ActionStatus{StatusOpen, StatusInProgress, StatusClosed, StatusDelayed}

var statusLabels = map[ActionStatus]string{
	StatusOpen:       "Abierta",
	StatusInProgress: "En proceso",
	StatusClosed:     "Cerrada",
	StatusDelayed:    "Retrasada",
}

func (s ActionStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// ParseActionStatus accepts the canonical value or the display label.
func ParseActionStatus(s string) (ActionStatus, bool) {
	trimmed := strings.TrimSpace(s)
	for _, st := range ActionStatuses {
		if strings.EqualFold(trimmed, string(st)) || strings.EqualFold(trimmed, st.Label()) {
			return st, true
		}
	}
	return "", false
}

// TaskView is an action annotated with its derived status and parent record context.
type TaskView struct {
	DofaAction
	Status         ActionStatus `json:"status" enum:"open,in_progress,closed,delayed"`
	ParentFactor   string       `json:"parentFactor"`
	ParentCountry  string       `json:"parentCountry"`
	ParentAxis     string       `json:"parentAxis"`
	ParentRecordID string       `json:"parentRecordId"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
