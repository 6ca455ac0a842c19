package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"dofaline/internal/engine"
	"dofaline/internal/syncer"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror records and indicators with the remote tables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Replace local collections with the remote tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Pull(ctx, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(res, func() {
					fmt.Printf("Pulled %d records and %d indicators\n", res.Records, res.Indicators)
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Upload both full collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.PushAll(ctx, actor()); err != nil {
					return err
				}
				fmt.Printf("Pushed %d records and %d indicators\n", e.Records.Len(), e.Indicators.Len())
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "now",
		Short: "Push local state, then pull the remote tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SyncNow(ctx, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(res, func() {
					fmt.Printf("Synchronized: %d records, %d indicators\n", res.Records, res.Indicators)
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the remote connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st := e.SyncStatus()
				return printJSONOrTable(st, func() { renderSyncStatus(st) })
			})
		},
	})
	return cmd
}

func renderSyncStatus(st syncer.Status) {
	tw := newTable()
	state := "local only"
	if st.Connected {
		state = "connected"
	}
	tw.AppendRow(table.Row{"State", state})
	tw.AppendRow(table.Row{"URL", st.URL})
	tw.AppendRow(table.Row{"Records table", st.RecordsTable})
	tw.AppendRow(table.Row{"Indicators table", st.IndicatorsTable})
	tw.AppendRow(table.Row{"Last pull", formatTime(st.LastPullAt)})
	tw.AppendRow(table.Row{"Last push", formatTime(st.LastPushAt)})
	if st.LastError != "" {
		tw.AppendRow(table.Row{"Last error", st.LastError + " (" + formatTime(st.LastErrorAt) + ")"})
	}
	tw.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Remote connection settings"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective remote settings as YAML; the key is masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printSettings(e)
			})
		},
	})
	cmd.AddCommand(settingsSetCmd())
	return cmd
}

func settingsSetCmd() *cobra.Command {
	var url, key, recordsTable, indicatorsTable string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Persist remote settings; an empty value clears the stored one",
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd engine.RemoteSettingsUpdate
			if cmd.Flags().Changed("url") {
				upd.URL = &url
			}
			if cmd.Flags().Changed("key") {
				upd.Key = &key
			}
			if cmd.Flags().Changed("records-table") {
				upd.RecordsTable = &recordsTable
			}
			if cmd.Flags().Changed("indicators-table") {
				upd.IndicatorsTable = &indicatorsTable
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.ConfigureRemote(ctx, upd, actor()); err != nil {
					return err
				}
				return printSettings(e)
			})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "remote base URL")
	cmd.Flags().StringVar(&key, "key", "", "remote API key")
	cmd.Flags().StringVar(&recordsTable, "records-table", "", "records table name")
	cmd.Flags().StringVar(&indicatorsTable, "indicators-table", "", "indicators table name")
	return cmd
}

type settingsView struct {
	URL             string `yaml:"url" json:"url"`
	Key             string `yaml:"key" json:"key"`
	RecordsTable    string `yaml:"records_table" json:"records_table"`
	IndicatorsTable string `yaml:"indicators_table" json:"indicators_table"`
	Enabled         bool   `yaml:"enabled" json:"enabled"`
}

func printSettings(e engine.Engine) error {
	cfg := e.RemoteSettings()
	v := settingsView{
		URL:             cfg.URL,
		Key:             cfg.MaskedKey(),
		RecordsTable:    cfg.RecordsTable,
		IndicatorsTable: cfg.IndicatorsTable,
		Enabled:         cfg.Enabled(),
	}
	if viper.GetBool("json") {
		return printJSON(v)
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
