package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dofaline/internal/app"
	"dofaline/internal/config"
	"dofaline/internal/db"
	"dofaline/internal/engine"
	"dofaline/internal/migrate"
	"dofaline/internal/repo"
	"dofaline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dl",
	Short: "Dofaline CLI",
	Long: `Dofaline keeps the DOFA (SWOT) matrix of the regional operations and the
actions that follow up each factor.
- Records: a factor (strength, opportunity, weakness or threat) for a country, axis and category, rated 1-5.
- Actions: follow-up work on a record; their status (open, in progress, closed, delayed) is derived from dates and effectiveness follow-up.
- Indicators: KPIs attached to the process map.
- Sync: collections are mirrored to a remote PostgREST table; local edits push the full collection, 'dl sync pull' replaces local data.
- Event log: everything that changed, view with 'dl log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DOFALINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", server.DefaultActor, "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides dofaline.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(indicatorCmd())
	rootCmd.AddCommand(processMapCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and a starter dofaline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s exists; keeping it (use --force to overwrite)\n", path)
			} else if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			version, err := migrate.Version(cmd.Context(), conn)
			if err != nil {
				return err
			}
			fmt.Printf("Initialized workspace %s (schema version %d)\n", db.Path(workspace), version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing dofaline.yml")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything that happened: record and indicator changes, settings updates and sync outcomes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					entity := evt.EntityKind
					if evt.EntityID != "" {
						entity += ":" + evt.EntityID
					}
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, entity, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noSync bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and the remote poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			if addr == "" {
				addr = c.Config.Server.Addr
			}
			handler, err := server.New(server.Config{
				Engine:   c.Engine,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: c.Config.Server.JWTSecret},
				Logger:   c.Logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				c.Logger.Info("serving API", zap.String("addr", addr), zap.String("base_path", basePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if !noSync {
				g.Go(func() error {
					return c.Engine.Sync.Run(gctx, c.Config.Sync.PollInterval)
				})
			}
			fmt.Printf("Serving dofaline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "do not poll the remote")
	return cmd
}

// --- helpers ---

func openWorkspace(ctx context.Context) (*app.Context, error) {
	return app.Open(ctx, viper.GetString("workspace"), app.Options{LogLevel: viper.GetString("log-level")})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	c, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c.Engine)
}

func actor() string {
	return viper.GetString("actor-id")
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSONOrTable(v any, render func()) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
