package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dofaline/internal/config"
	"dofaline/internal/db"
	"dofaline/internal/engine"
	"dofaline/internal/migrate"
)

// Context is an opened workspace: its config, database and a loaded engine.
type Context struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Logger    *zap.Logger
}

// Options tweak workspace opening. Empty fields fall back to dofaline.yml.
type Options struct {
	LogLevel string
	Logger   *zap.Logger
}

// Open loads the workspace config, migrates the database and restores the
// local collections. Callers must Close the returned context.
func Open(ctx context.Context, workspace string, opts Options) (*Context, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	logger := opts.Logger
	if logger == nil {
		logger, err = NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg, logger)
	if err := e.Load(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    e,
		Logger:    logger,
	}, nil
}

// Close drains pending pushes before closing the database.
func (c *Context) Close() error {
	c.Engine.Close()
	_ = c.Logger.Sync()
	return c.DB.Close()
}

// NewLogger builds a zap logger for the configured level and format.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	var zc zap.Config
	if strings.EqualFold(cfg.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
