package report

import (
	"math"
	"slices"
	"strings"

	"dofaline/internal/domain"
)

// Impact thresholds used by the dashboard and the prioritization matrix.
const (
	CriticalImpact = 4
	PriorityImpact = 3
	MaxImpact      = 5
)

type CountryBreakdown struct {
	Country string                  `json:"country"`
	ByType  map[domain.DofaType]int `json:"by_type"`
	Total   int                     `json:"total"`
}

type Dashboard struct {
	TotalRecords        int                         `json:"total_records"`
	ActiveCountries     int                         `json:"active_countries"`
	AverageImpact       float64                     `json:"average_impact"`
	CriticalCount       int                         `json:"critical_count"`
	ByType              map[domain.DofaType]int     `json:"by_type"`
	ByCountry           []CountryBreakdown          `json:"by_country"`
	AverageImpactByType map[domain.DofaType]float64 `json:"average_impact_by_type"`
	TopCritical         []domain.DofaRecord         `json:"top_critical"`
}

// BuildDashboard computes the headline figures over all records.
func BuildDashboard(records []domain.DofaRecord) Dashboard {
	d := Dashboard{
		TotalRecords:        len(records),
		ByType:              map[domain.DofaType]int{},
		AverageImpactByType: map[domain.DofaType]float64{},
		ByCountry:           []CountryBreakdown{},
		TopCritical:         []domain.DofaRecord{},
	}
	sums := map[domain.DofaType]int{}
	for _, t := range domain.DofaTypes {
		d.ByType[t] = 0
		d.AverageImpactByType[t] = 0
	}
	countries := map[string]int{}
	total := 0
	for _, r := range records {
		total += r.Impact
		if r.Impact >= CriticalImpact {
			d.CriticalCount++
		}
		if r.Impact == MaxImpact {
			d.TopCritical = append(d.TopCritical, r)
		}
		d.ByType[r.Type]++
		sums[r.Type] += r.Impact

		i, ok := countries[r.Country]
		if !ok {
			i = len(d.ByCountry)
			countries[r.Country] = i
			d.ByCountry = append(d.ByCountry, CountryBreakdown{Country: r.Country, ByType: emptyTypeCounts()})
		}
		d.ByCountry[i].ByType[r.Type]++
		d.ByCountry[i].Total++
	}
	d.ActiveCountries = len(d.ByCountry)
	if len(records) > 0 {
		d.AverageImpact = round1(float64(total) / float64(len(records)))
	}
	for t, n := range d.ByType {
		if n > 0 {
			d.AverageImpactByType[t] = float64(sums[t]) / float64(n)
		}
	}
	return d
}

func emptyTypeCounts() map[domain.DofaType]int {
	m := make(map[domain.DofaType]int, len(domain.DofaTypes))
	for _, t := range domain.DofaTypes {
		m[t] = 0
	}
	return m
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Prioritize returns records with impact 3 or more, highest impact first.
// Records with equal impact keep their stored order.
func Prioritize(records []domain.DofaRecord) []domain.DofaRecord {
	out := []domain.DofaRecord{}
	for _, r := range records {
		if r.Impact >= PriorityImpact {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.DofaRecord) int { return b.Impact - a.Impact })
	return out
}

type RecordFilter struct {
	Country string
	Type    string
	Search  string
}

// FilterRecords applies the consolidated view filters and orders the result
// newest first. Empty or "all" country and type match everything.
func FilterRecords(records []domain.DofaRecord, f RecordFilter) []domain.DofaRecord {
	needle := strings.ToLower(f.Search)
	out := []domain.DofaRecord{}
	for _, r := range records {
		if !matchAll(f.Country) && r.Country != f.Country {
			continue
		}
		if !matchAll(f.Type) && !strings.EqualFold(string(r.Type), f.Type) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(r.Factor), needle) &&
			!strings.Contains(strings.ToLower(r.Description), needle) {
			continue
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b domain.DofaRecord) int { return cmpDesc(a.Timestamp, b.Timestamp) })
	return out
}

// Countries lists the distinct record countries in sorted order.
func Countries(records []domain.DofaRecord) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, r := range records {
		if _, ok := seen[r.Country]; ok {
			continue
		}
		seen[r.Country] = struct{}{}
		out = append(out, r.Country)
	}
	slices.Sort(out)
	return out
}

type IndicatorFilter struct {
	Type      string
	ProcessID string
	Search    string
}

// FilterIndicators searches name, process name and formula, newest first.
func FilterIndicators(items []domain.IndicatorRecord, f IndicatorFilter) []domain.IndicatorRecord {
	var want domain.IndicatorType
	if !matchAll(f.Type) {
		t, ok := domain.ParseIndicatorType(f.Type)
		if !ok {
			return []domain.IndicatorRecord{}
		}
		want = t
	}
	needle := strings.ToLower(f.Search)
	out := []domain.IndicatorRecord{}
	for _, it := range items {
		if want != "" && it.Type != want {
			continue
		}
		if f.ProcessID != "" && it.ProcessID != f.ProcessID {
			continue
		}
		hay := strings.ToLower(it.Name + " " + it.ProcessName + " " + it.Formula)
		if needle != "" && !strings.Contains(hay, needle) {
			continue
		}
		out = append(out, it)
	}
	slices.SortStableFunc(out, func(a, b domain.IndicatorRecord) int { return cmpDesc(a.Timestamp, b.Timestamp) })
	return out
}

func matchAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "all") || strings.EqualFold(v, "todos")
}

func cmpDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
