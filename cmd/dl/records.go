package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"dofaline/internal/domain"
	"dofaline/internal/engine"
	"dofaline/internal/report"
	"dofaline/internal/tasks"
)

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "record", Short: "Manage DOFA records"}
	cmd.AddCommand(recordAddCmd())
	cmd.AddCommand(recordListCmd())
	cmd.AddCommand(recordShowCmd())
	cmd.AddCommand(recordDeleteCmd())
	return cmd
}

func recordAddCmd() *cobra.Command {
	var opts engine.RecordCreateOptions
	var typ string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a record",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Type = domain.DofaType(typ)
			if opts.User == "" {
				opts.User = actor()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.AddRecord(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec, func() {
					fmt.Printf("Created record %s (%s %s, impact %d)\n", rec.ID, e.Catalog.TypeLabel(rec.Type), rec.Country, rec.Impact)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Country, "country", "", "country")
	cmd.Flags().StringVar(&opts.Axis, "axis", "", "strategic axis")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringVar(&typ, "type", "", "F, O, D or A")
	cmd.Flags().StringVar(&opts.Factor, "factor", "", "factor")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Justification, "justification", "", "justification")
	cmd.Flags().IntVar(&opts.Impact, "impact", 3, "impact 1-5")
	cmd.Flags().StringVar(&opts.User, "user", "", "author (defaults to --actor-id)")
	_ = cmd.MarkFlagRequired("country")
	_ = cmd.MarkFlagRequired("axis")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("factor")
	return cmd
}

func recordListCmd() *cobra.Command {
	var f report.RecordFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records := e.ListRecords(f)
				return printJSONOrTable(records, func() {
					tw := newTable()
					tw.AppendHeader(table.Row{"ID", "Date", "Country", "Type", "Axis", "Factor", "Impact", "Actions"})
					for _, r := range records {
						tw.AppendRow(table.Row{
							r.ID,
							time.UnixMilli(r.Timestamp).In(e.Location).Format(tasks.DateLayout),
							r.Country,
							e.Catalog.TypeLabel(r.Type),
							truncate(r.Axis, 24),
							truncate(r.Factor, 40),
							r.Impact,
							len(r.Actions),
						})
					}
					tw.AppendFooter(table.Row{"", "", "", "", "", "Total", len(records)})
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.Country, "country", "", "country filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter (F, O, D, A)")
	cmd.Flags().StringVar(&f.Search, "search", "", "search factor, description and author")
	return cmd
}

func recordShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show a record and its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.GetRecord(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec, func() {
					fmt.Printf("%s  %s / %s / %s\n", rec.ID, rec.Country, rec.Axis, rec.Category)
					fmt.Printf("%s: %s (impacto %d, %s)\n", e.Catalog.TypeLabel(rec.Type), rec.Factor, rec.Impact, e.Catalog.ImpactLabel(rec.Impact))
					if rec.Description != "" {
						fmt.Println(rec.Description)
					}
					tw := newTable()
					tw.AppendHeader(table.Row{"Action", "Status", "Text", "Responsible", "Start", "End"})
					now := time.Now().In(e.Location)
					for _, a := range rec.Actions {
						tw.AppendRow(table.Row{a.ID, tasks.DeriveStatus(a, now).Label(), truncate(a.Text, 40), a.Responsible, a.StartDate, a.EndDate})
					}
					tw.Render()
				})
			})
		},
	}
}

func recordDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <record-id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteRecord(ctx, args[0], actor()); err != nil {
					return err
				}
				fmt.Printf("Deleted record %s\n", args[0])
				return nil
			})
		},
	}
}

func actionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "action", Short: "Manage the actions of a record"}
	cmd.AddCommand(actionAddCmd())
	cmd.AddCommand(actionUpdateCmd())
	cmd.AddCommand(actionRemoveCmd())
	return cmd
}

func actionFlags(cmd *cobra.Command, in *engine.ActionInput) {
	cmd.Flags().StringVar(&in.Text, "text", "", "action text")
	cmd.Flags().StringVar(&in.Responsible, "responsible", "", "responsible person")
	cmd.Flags().StringVar(&in.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.EndDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.EffectivenessFollowUp, "follow-up", "", "effectiveness follow-up; closes the action")
}

func actionAddCmd() *cobra.Command {
	var in engine.ActionInput
	cmd := &cobra.Command{
		Use:   "add <record-id>",
		Short: "Append an action to a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AddAction(ctx, args[0], in, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a, func() {
					fmt.Printf("Added action %s to record %s\n", a.ID, args[0])
				})
			})
		},
	}
	actionFlags(cmd, &in)
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func actionUpdateCmd() *cobra.Command {
	var in engine.ActionInput
	cmd := &cobra.Command{
		Use:   "update <record-id> <action-id>",
		Short: "Change fields of an action; omitted flags keep their value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.GetRecord(args[0])
				if err != nil {
					return err
				}
				var current *domain.DofaAction
				for i := range rec.Actions {
					if rec.Actions[i].ID == args[1] {
						current = &rec.Actions[i]
					}
				}
				if current == nil {
					return engine.ErrNotFound
				}
				merged := engine.ActionInput{
					Text:                  pick(cmd, "text", in.Text, current.Text),
					Responsible:           pick(cmd, "responsible", in.Responsible, current.Responsible),
					StartDate:             pick(cmd, "start", in.StartDate, current.StartDate),
					EndDate:               pick(cmd, "end", in.EndDate, current.EndDate),
					EffectivenessFollowUp: pick(cmd, "follow-up", in.EffectivenessFollowUp, current.EffectivenessFollowUp),
				}
				a, err := e.UpdateAction(ctx, args[0], args[1], merged, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a, func() {
					fmt.Printf("Updated action %s (%s)\n", a.ID, tasks.DeriveStatus(a, time.Now().In(e.Location)).Label())
				})
			})
		},
	}
	actionFlags(cmd, &in)
	return cmd
}

func actionRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <record-id> <action-id>",
		Short: "Remove an action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RemoveAction(ctx, args[0], args[1], actor()); err != nil {
					return err
				}
				fmt.Printf("Removed action %s\n", args[1])
				return nil
			})
		},
	}
}

func pick(cmd *cobra.Command, flag, value, fallback string) string {
	if cmd.Flags().Changed(flag) {
		return value
	}
	return fallback
}
