package engine

import (
	"context"
	"io"

	"dofaline/internal/domain"
	"dofaline/internal/export"
	"dofaline/internal/report"
	"dofaline/internal/repo"
	"dofaline/internal/tasks"
)

// Tasks returns every action across all records with its status derived at
// the current instant, filtered and ordered by end date.
func (e Engine) Tasks(f tasks.TaskFilter) []domain.TaskView {
	return tasks.Query(e.Records.List(), e.now(), f)
}

func (e Engine) TaskStats() tasks.TaskStats {
	return tasks.Summarize(tasks.Aggregate(e.Records.List(), e.now()))
}

func (e Engine) Dashboard() report.Dashboard {
	return report.BuildDashboard(e.Records.List())
}

func (e Engine) Prioritized() []domain.DofaRecord {
	return report.Prioritize(e.Records.List())
}

func (e Engine) Countries() []string {
	return report.Countries(e.Records.List())
}

// ExportRecords writes the records report and returns its download name.
func (e Engine) ExportRecords(w io.Writer) (string, error) {
	now := e.now()
	return export.RecordsFileName(now), export.WriteRecords(w, e.Records.List(), e.loc())
}

func (e Engine) ExportIndicators(w io.Writer) (string, error) {
	now := e.now()
	return export.IndicatorsFileName(now), export.WriteIndicators(w, e.Indicators.List(), e.loc())
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
