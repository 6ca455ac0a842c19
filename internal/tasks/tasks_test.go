package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dofaline/internal/domain"
)

var testNow = time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name string
		a    domain.DofaAction
		want domain.ActionStatus
	}{
		{"follow-up closes", domain.DofaAction{StartDate: "2024-01-01", EndDate: "2024-01-10", EffectivenessFollowUp: "done"}, domain.StatusClosed},
		{"follow-up wins without dates", domain.DofaAction{EffectivenessFollowUp: "ok"}, domain.StatusClosed},
		{"no dates", domain.DofaAction{}, domain.StatusOpen},
		{"missing end", domain.DofaAction{StartDate: "2024-01-01"}, domain.StatusOpen},
		{"missing start", domain.DofaAction{EndDate: "2024-12-01"}, domain.StatusOpen},
		{"past end", domain.DofaAction{StartDate: "2024-01-01", EndDate: "2024-01-10"}, domain.StatusDelayed},
		{"end today", domain.DofaAction{StartDate: "2024-05-01", EndDate: "2024-06-01"}, domain.StatusInProgress},
		{"end yesterday", domain.DofaAction{StartDate: "2024-05-01", EndDate: "2024-05-31"}, domain.StatusDelayed},
		{"future end", domain.DofaAction{StartDate: "2024-05-01", EndDate: "2024-07-01"}, domain.StatusInProgress},
		{"timestamp end", domain.DofaAction{StartDate: "2024-05-01", EndDate: "2024-05-30T10:00:00Z"}, domain.StatusDelayed},
		{"garbage end", domain.DofaAction{StartDate: "2024-05-01", EndDate: "soon"}, domain.StatusInProgress},
		{"blank start is set", domain.DofaAction{StartDate: "  ", EndDate: "2024-07-01"}, domain.StatusInProgress},
		{"blank end is set", domain.DofaAction{StartDate: "2024-05-01", EndDate: " "}, domain.StatusInProgress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.a, testNow))
		})
	}
}

func TestDeriveStatusUsesNowLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	a := domain.DofaAction{StartDate: "2024-05-01", EndDate: "2024-05-31"}
	// 03:00 UTC on June 1 is still May 31 five hours west.
	now := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, domain.StatusDelayed, DeriveStatus(a, now))
	assert.Equal(t, domain.StatusInProgress, DeriveStatus(a, now.In(loc)))
}

func sampleRecords() []domain.DofaRecord {
	return []domain.DofaRecord{
		{
			ID: "r1", Country: "Colombia", Axis: "Excelencia Operativa", Factor: "Grúas",
			Actions: []domain.DofaAction{
				{ID: "a1", Text: "Revisar contrato", Responsible: "Ana", StartDate: "2024-01-01", EndDate: "2024-01-10"},
				{ID: "a2", Text: "Capacitar", Responsible: "Luis"},
			},
		},
		{ID: "r2", Country: "México", Factor: "Sin acciones"},
		{
			ID: "r3", Country: "Brasil", Axis: "Sostenibilidad", Factor: "Emisiones",
			Actions: []domain.DofaAction{
				{ID: "a3", Text: "Medir huella", Responsible: "Ana", StartDate: "2024-05-01", EndDate: "2024-08-01"},
				{ID: "a4", Text: "Informe", Responsible: "Sofía", StartDate: "2024-01-01", EndDate: "2024-02-01", EffectivenessFollowUp: "ok"},
			},
		},
	}
}

func ids(items []domain.TaskView) []string {
	out := make([]string, 0, len(items))
	for _, t := range items {
		out = append(out, t.ID)
	}
	return out
}

func TestAggregateCarriesParentContext(t *testing.T) {
	got := Aggregate(sampleRecords(), testNow)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"a1", "a2", "a3", "a4"}, ids(got))
	assert.Equal(t, "r1", got[0].ParentRecordID)
	assert.Equal(t, "Grúas", got[0].ParentFactor)
	assert.Equal(t, "Colombia", got[0].ParentCountry)
	assert.Equal(t, "Excelencia Operativa", got[0].ParentAxis)
	assert.Equal(t, domain.StatusDelayed, got[0].Status)
	assert.Equal(t, domain.StatusOpen, got[1].Status)
	assert.Equal(t, domain.StatusInProgress, got[2].Status)
	assert.Equal(t, domain.StatusClosed, got[3].Status)
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil, testNow))
	assert.Empty(t, Aggregate([]domain.DofaRecord{{ID: "x"}}, testNow))
}

func TestFilter(t *testing.T) {
	all := Aggregate(sampleRecords(), testNow)

	assert.Len(t, Filter(all, TaskFilter{}), 4)
	assert.Len(t, Filter(all, TaskFilter{Status: StatusAll}), 4)
	assert.Equal(t, []string{"a1"}, ids(Filter(all, TaskFilter{Status: "delayed"})))
	assert.Equal(t, []string{"a1"}, ids(Filter(all, TaskFilter{Status: "Retrasada"})))
	assert.Empty(t, Filter(all, TaskFilter{Status: "bogus"}))

	assert.Equal(t, []string{"a1", "a3"}, ids(Filter(all, TaskFilter{Search: "ANA"})))
	assert.Equal(t, []string{"a3", "a4"}, ids(Filter(all, TaskFilter{Search: "brasil"})))
	assert.Equal(t, []string{"a1", "a2"}, ids(Filter(all, TaskFilter{Search: "grúas"})))
	assert.Equal(t, []string{"a3"}, ids(Filter(all, TaskFilter{Status: "in_progress", Search: "ana"})))
}

func TestSortByEndDate(t *testing.T) {
	items := []domain.TaskView{
		{DofaAction: domain.DofaAction{ID: "empty1"}},
		{DofaAction: domain.DofaAction{ID: "late", EndDate: "2024-09-01"}},
		{DofaAction: domain.DofaAction{ID: "junk", EndDate: "someday"}},
		{DofaAction: domain.DofaAction{ID: "blank", EndDate: " "}},
		{DofaAction: domain.DofaAction{ID: "early", EndDate: "2024-02-01"}},
		{DofaAction: domain.DofaAction{ID: "empty2"}},
		{DofaAction: domain.DofaAction{ID: "early2", EndDate: "2024-02-01"}},
	}
	Sort(items)
	assert.Equal(t, []string{"early", "early2", "late", "junk", "blank", "empty1", "empty2"}, ids(items))
}

func TestQueryIsOrderIndependent(t *testing.T) {
	recs := sampleRecords()
	reversed := []domain.DofaRecord{recs[2], recs[1], recs[0]}

	a := Query(recs, testNow, TaskFilter{})
	b := Query(reversed, testNow, TaskFilter{})
	assert.ElementsMatch(t, ids(a), ids(b))
	assert.Equal(t, []string{"a1", "a4", "a3", "a2"}, ids(a))
}

func TestSummarize(t *testing.T) {
	s := Summarize(Aggregate(sampleRecords(), testNow))
	assert.Equal(t, TaskStats{Total: 4, Open: 1, InProgress: 1, Closed: 1, Delayed: 1}, s)
}
