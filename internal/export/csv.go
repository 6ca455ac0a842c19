package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"dofaline/internal/domain"
)

// BOM makes spreadsheet tools detect UTF-8.
const BOM = "\ufeff"

const (
	dateLayout = "02/01/2006"
	fileDate   = "2006-01-02"
)

var (
	RecordHeader = []string{
		"ID", "Fecha", "Pais", "Eje", "Categoria", "Tipo", "Factor", "Justificacion", "Impacto", "Usuario",
		"Accion", "Responsable", "Fecha Inicio", "Fecha Fin", "Seguimiento Eficacia",
	}
	IndicatorHeader = []string{"ID", "Fecha Registro", "Proceso", "Tipo", "Nombre Indicador", "Meta", "Formula"}
)

func RecordsFileName(now time.Time) string {
	return fmt.Sprintf("DOFA_SAAMTOWAGE_%s.csv", now.Format(fileDate))
}

func IndicatorsFileName(now time.Time) string {
	return fmt.Sprintf("Indicadores_Consolidados_SAAMTOWAGE_%s.csv", now.Format(fileDate))
}

// WriteRecords writes one row per action. A record without actions gets a
// single row with blank action columns.
func WriteRecords(w io.Writer, records []domain.DofaRecord, loc *time.Location) error {
	cw, err := newWriter(w)
	if err != nil {
		return err
	}
	if err := cw.Write(RecordHeader); err != nil {
		return err
	}
	for _, r := range records {
		base := []string{
			r.ID,
			formatMillis(r.Timestamp, loc),
			r.Country,
			r.Axis,
			r.Category,
			string(r.Type),
			clean(r.Factor),
			clean(r.Justification),
			strconv.Itoa(r.Impact),
			clean(r.User),
		}
		if len(r.Actions) == 0 {
			if err := cw.Write(append(base, "", "", "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, a := range r.Actions {
			row := append(append([]string{}, base...),
				clean(a.Text),
				clean(a.Responsible),
				a.StartDate,
				a.EndDate,
				clean(a.EffectivenessFollowUp),
			)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteIndicators(w io.Writer, items []domain.IndicatorRecord, loc *time.Location) error {
	cw, err := newWriter(w)
	if err != nil {
		return err
	}
	if err := cw.Write(IndicatorHeader); err != nil {
		return err
	}
	for _, it := range items {
		row := []string{
			it.ID,
			formatMillis(it.Timestamp, loc),
			clean(it.ProcessName),
			string(it.Type),
			clean(it.Name),
			clean(it.Goal),
			clean(it.Formula),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func newWriter(w io.Writer) (*csv.Writer, error) {
	if _, err := io.WriteString(w, BOM); err != nil {
		return nil, err
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	return cw, nil
}

func formatMillis(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(dateLayout)
}

func clean(s string) string {
	return strings.ReplaceAll(s, ";", ",")
}
