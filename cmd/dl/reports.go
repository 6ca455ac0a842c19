package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"dofaline/internal/catalog"
	"dofaline/internal/domain"
	"dofaline/internal/engine"
	"dofaline/internal/report"
	"dofaline/internal/tasks"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Actions across all records with derived status",
	}
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskStatsCmd())
	return cmd
}

func taskListCmd() *cobra.Command {
	var f tasks.TaskFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions ordered by end date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Status != "" && f.Status != tasks.StatusAll {
				st, ok := domain.ParseActionStatus(f.Status)
				if !ok {
					return fmt.Errorf("invalid status %q", f.Status)
				}
				f.Status = string(st)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items := e.Tasks(f)
				return printJSONOrTable(items, func() {
					tw := newTable()
					tw.AppendHeader(table.Row{"Status", "End", "Text", "Responsible", "Factor", "Country", "Record"})
					for _, t := range items {
						tw.AppendRow(table.Row{t.Status.Label(), t.EndDate, truncate(t.Text, 40), t.Responsible, truncate(t.ParentFactor, 30), t.ParentCountry, t.ParentRecordID})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "open, in_progress, closed, delayed or all")
	cmd.Flags().StringVar(&f.Search, "search", "", "search text, responsible, factor and country")
	return cmd
}

func taskStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count actions per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s := e.TaskStats()
				return printJSONOrTable(s, func() {
					tw := newTable()
					tw.AppendHeader(table.Row{"Total", domain.StatusOpen.Label(), domain.StatusInProgress.Label(), domain.StatusClosed.Label(), domain.StatusDelayed.Label()})
					tw.AppendRow(table.Row{s.Total, s.Open, s.InProgress, s.Closed, s.Delayed})
					tw.Render()
				})
			})
		},
	}
}

func indicatorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "indicator", Short: "Manage process indicators"}
	cmd.AddCommand(indicatorAddCmd())
	cmd.AddCommand(indicatorListCmd())
	cmd.AddCommand(indicatorDeleteCmd())
	return cmd
}

func indicatorAddCmd() *cobra.Command {
	var opts engine.IndicatorCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Attach an indicator to a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ind, err := e.AddIndicator(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ind, func() {
					fmt.Printf("Created indicator %s for %s\n", ind.ID, ind.ProcessName)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProcessID, "process", "", "process id (see dl process-map)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "Estratégico, Táctico or Operativo (default Táctico)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "indicator name")
	cmd.Flags().StringVar(&opts.Goal, "goal", "", "goal")
	cmd.Flags().StringVar(&opts.Formula, "formula", "", "formula")
	_ = cmd.MarkFlagRequired("process")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func indicatorListCmd() *cobra.Command {
	var f report.IndicatorFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indicators, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items := e.ListIndicators(f)
				return printJSONOrTable(items, func() {
					tw := newTable()
					tw.AppendHeader(table.Row{"ID", "Process", "Type", "Name", "Goal", "Formula"})
					for _, ind := range items {
						tw.AppendRow(table.Row{ind.ID, ind.ProcessName, ind.Type, truncate(ind.Name, 40), ind.Goal, truncate(ind.Formula, 30)})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().StringVar(&f.ProcessID, "process", "", "process filter")
	cmd.Flags().StringVar(&f.Search, "search", "", "search name, process and formula")
	return cmd
}

func indicatorDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <indicator-id>",
		Short: "Delete an indicator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteIndicator(ctx, args[0], actor()); err != nil {
					return err
				}
				fmt.Printf("Deleted indicator %s\n", args[0])
				return nil
			})
		},
	}
}

func processMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-map",
		Short: "Show the process map indicators attach to",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := catalog.Default()
			return printJSONOrTable(c.ProcessMap, func() {
				tw := newTable()
				tw.AppendHeader(table.Row{"Group", "ID", "Name"})
				for _, g := range c.ProcessMap {
					for _, p := range g.Processes {
						tw.AppendRow(table.Row{g.Group, p.ID, p.Name})
						for _, sub := range p.Sub {
							tw.AppendRow(table.Row{g.Group, catalog.SubProcessID(p.ID, sub), "  " + sub})
						}
					}
					tw.AppendSeparator()
				}
				tw.Render()
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Headline figures and the prioritization matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d := e.Dashboard()
				return printJSONOrTable(d, func() {
					tw := newTable()
					tw.AppendHeader(table.Row{"Records", "Countries", "Avg impact", "Critical"})
					tw.AppendRow(table.Row{d.TotalRecords, d.ActiveCountries, d.AverageImpact, d.CriticalCount})
					tw.Render()

					byCountry := newTable()
					header := table.Row{"Country"}
					for _, t := range domain.DofaTypes {
						header = append(header, e.Catalog.TypeLabel(t))
					}
					byCountry.AppendHeader(append(header, "Total"))
					for _, c := range d.ByCountry {
						row := table.Row{c.Country}
						for _, t := range domain.DofaTypes {
							row = append(row, c.ByType[t])
						}
						byCountry.AppendRow(append(row, c.Total))
					}
					byCountry.Render()

					prio := newTable()
					prio.SetTitle("Prioritization")
					prio.AppendHeader(table.Row{"Impact", "Type", "Country", "Factor"})
					for _, r := range e.Prioritized() {
						prio.AppendRow(table.Row{r.Impact, e.Catalog.TypeLabel(r.Type), r.Country, truncate(r.Factor, 50)})
					}
					prio.Render()
				})
			})
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "export", Short: "Export CSV reports"}
	cmd.AddCommand(exportSubCmd("records", "Export records with one row per action", engine.Engine.ExportRecords))
	cmd.AddCommand(exportSubCmd("indicators", "Export indicators", engine.Engine.ExportIndicators))
	return cmd
}

func exportSubCmd(use, short string, write func(engine.Engine, io.Writer) (string, error)) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if out == "-" {
					_, err := write(e, os.Stdout)
					return err
				}
				f, err := os.CreateTemp(".", "dofaline-export-*.csv")
				if err != nil {
					return err
				}
				defer os.Remove(f.Name())
				name, err := write(e, f)
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				if out == "" {
					out = name
				}
				if err := os.Rename(f.Name(), out); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: dated report name, - for stdout)")
	return cmd
}
