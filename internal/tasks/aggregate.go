package tasks

import (
	"slices"
	"strings"
	"time"

	"dofaline/internal/domain"
)

// StatusAll disables status filtering.
const StatusAll = "all"

type TaskFilter struct {
	// Status is one of the action statuses, "all" or empty.
	Status string
	Search string
}

type TaskStats struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Closed     int `json:"closed"`
	Delayed    int `json:"delayed"`
}

// Aggregate flattens the actions of every record into task views.
func Aggregate(records []domain.DofaRecord, now time.Time) []domain.TaskView {
	var out []domain.TaskView
	for _, r := range records {
		for _, a := range r.Actions {
			out = append(out, domain.TaskView{
				DofaAction:     a,
				Status:         DeriveStatus(a, now),
				ParentFactor:   r.Factor,
				ParentCountry:  r.Country,
				ParentAxis:     r.Axis,
				ParentRecordID: r.ID,
			})
		}
	}
	return out
}

// Filter keeps the tasks that match the filter, preserving order.
func Filter(items []domain.TaskView, f TaskFilter) []domain.TaskView {
	var want domain.ActionStatus
	if s := strings.TrimSpace(f.Status); s != "" && !strings.EqualFold(s, StatusAll) {
		st, ok := domain.ParseActionStatus(s)
		if !ok {
			return []domain.TaskView{}
		}
		want = st
	}
	needle := strings.ToLower(f.Search)
	out := make([]domain.TaskView, 0, len(items))
	for _, t := range items {
		if want != "" && t.Status != want {
			continue
		}
		if needle != "" && !strings.Contains(searchText(t), needle) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func searchText(t domain.TaskView) string {
	return strings.ToLower(strings.Join([]string{t.Text, t.Responsible, t.ParentFactor, t.ParentCountry}, " "))
}

// Sort orders tasks by end date ascending. Tasks with an unparseable end date
// follow the dated ones and tasks without an end date come last; ties keep
// their input order.
func Sort(items []domain.TaskView) {
	type key struct {
		rank int
		end  time.Time
	}
	keyOf := func(t domain.TaskView) key {
		if t.EndDate == "" {
			return key{rank: 2}
		}
		end, ok := ParseDate(t.EndDate, time.UTC)
		if !ok {
			return key{rank: 1}
		}
		return key{end: end}
	}
	slices.SortStableFunc(items, func(a, b domain.TaskView) int {
		ka, kb := keyOf(a), keyOf(b)
		if ka.rank != kb.rank {
			return ka.rank - kb.rank
		}
		return ka.end.Compare(kb.end)
	})
}

// Query aggregates, filters and sorts in one pass.
func Query(records []domain.DofaRecord, now time.Time, f TaskFilter) []domain.TaskView {
	out := Filter(Aggregate(records, now), f)
	Sort(out)
	return out
}

func Summarize(items []domain.TaskView) TaskStats {
	s := TaskStats{Total: len(items)}
	for _, t := range items {
		switch t.Status {
		case domain.StatusOpen:
			s.Open++
		case domain.StatusInProgress:
			s.InProgress++
		case domain.StatusClosed:
			s.Closed++
		case domain.StatusDelayed:
			s.Delayed++
		}
	}
	return s
}
