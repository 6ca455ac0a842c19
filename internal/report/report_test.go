package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dofaline/internal/domain"
)

func fixtures() []domain.DofaRecord {
	return []domain.DofaRecord{
		{ID: "1", Country: "Panamá", Type: domain.TypeStrength, Impact: 5, Factor: "Flota moderna", Timestamp: 100},
		{ID: "2", Country: "Colombia", Type: domain.TypeThreat, Impact: 4, Factor: "Competencia", Description: "nuevos actores", Timestamp: 300},
		{ID: "3", Country: "Panamá", Type: domain.TypeWeakness, Impact: 2, Factor: "Rotación", Timestamp: 200},
		{ID: "4", Country: "Ecuador", Type: domain.TypeThreat, Impact: 3, Factor: "Regulación", Timestamp: 50},
		{ID: "5", Country: "Colombia", Type: domain.TypeOpportunity, Impact: 5, Factor: "Puerto nuevo", Timestamp: 400},
	}
}

func TestBuildDashboard(t *testing.T) {
	d := BuildDashboard(fixtures())
	assert.Equal(t, 5, d.TotalRecords)
	assert.Equal(t, 3, d.ActiveCountries)
	assert.Equal(t, 3.8, d.AverageImpact)
	assert.Equal(t, 3, d.CriticalCount)
	assert.Equal(t, map[domain.DofaType]int{"F": 1, "O": 1, "D": 1, "A": 2}, d.ByType)
	assert.InDelta(t, 3.5, d.AverageImpactByType[domain.TypeThreat], 1e-9)

	require.Len(t, d.ByCountry, 3)
	assert.Equal(t, "Panamá", d.ByCountry[0].Country)
	assert.Equal(t, "Colombia", d.ByCountry[1].Country)
	assert.Equal(t, 2, d.ByCountry[0].Total)
	assert.Equal(t, 1, d.ByCountry[1].ByType[domain.TypeOpportunity])
	assert.Equal(t, 0, d.ByCountry[2].ByType[domain.TypeStrength])

	require.Len(t, d.TopCritical, 2)
	assert.Equal(t, "1", d.TopCritical[0].ID)
}

func TestBuildDashboardEmpty(t *testing.T) {
	d := BuildDashboard(nil)
	assert.Zero(t, d.TotalRecords)
	assert.Zero(t, d.AverageImpact)
	assert.Len(t, d.ByType, 4)
	assert.NotNil(t, d.TopCritical)
}

func TestPrioritize(t *testing.T) {
	got := Prioritize(fixtures())
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"1", "5", "2", "4"}, ids)
}

func TestFilterRecords(t *testing.T) {
	recs := fixtures()
	var ids []string
	for _, r := range FilterRecords(recs, RecordFilter{}) {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"5", "2", "3", "1", "4"}, ids)

	got := FilterRecords(recs, RecordFilter{Country: "Colombia", Type: "a"})
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)

	got = FilterRecords(recs, RecordFilter{Search: "ACTORES"})
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)

	assert.Empty(t, FilterRecords(recs, RecordFilter{Country: "Guatemala"}))
	assert.Equal(t, []string{"Colombia", "Ecuador", "Panamá"}, Countries(recs))
}

func TestFilterIndicators(t *testing.T) {
	items := []domain.IndicatorRecord{
		{ID: "a", ProcessID: "cco", ProcessName: "Control Operacional", Type: domain.IndicatorOperational, Name: "Disponibilidad", Formula: "horas op / horas", Timestamp: 1},
		{ID: "b", ProcessID: "pes", ProcessName: "Planeación", Type: domain.IndicatorStrategic, Name: "EBITDA", Formula: "ebitda / ventas", Timestamp: 3},
		{ID: "c", ProcessID: "cco", ProcessName: "Control Operacional", Type: domain.IndicatorTactical, Name: "Demoras", Formula: "minutos", Timestamp: 2},
	}
	ids := func(in []domain.IndicatorRecord) []string {
		var out []string
		for _, i := range in {
			out = append(out, i.ID)
		}
		return out
	}
	assert.Equal(t, []string{"b", "c", "a"}, ids(FilterIndicators(items, IndicatorFilter{Type: "Todos"})))
	assert.Equal(t, []string{"b"}, ids(FilterIndicators(items, IndicatorFilter{Type: "strategic"})))
	assert.Equal(t, []string{"c", "a"}, ids(FilterIndicators(items, IndicatorFilter{ProcessID: "cco"})))
	assert.Equal(t, []string{"c", "a"}, ids(FilterIndicators(items, IndicatorFilter{Search: "operacional"})))
	assert.Equal(t, []string{"b"}, ids(FilterIndicators(items, IndicatorFilter{Search: "VENTAS"})))
	assert.Empty(t, FilterIndicators(items, IndicatorFilter{Type: "nope"}))
}
