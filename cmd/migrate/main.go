package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// Authoring commands work on the migrations directory and need no database.
var authoring = map[string]func(options) error{
	"create": func(o options) error {
		if o.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(authoringDir(o), o.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(o options) error {
		if err := migrate.ValidateDir(authoringDir(o)); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	},
}

var schema = map[string]func(context.Context, *migrate.Runner, options) error{
	"up":     func(ctx context.Context, r *migrate.Runner, _ options) error { return r.Run(ctx, "up") },
	"down":   func(ctx context.Context, r *migrate.Runner, _ options) error { return r.Run(ctx, "down") },
	"status": func(ctx context.Context, r *migrate.Runner, _ options) error { return r.Run(ctx, "status") },
	"version": func(ctx context.Context, r *migrate.Runner, o options) error {
		target, err := strconv.ParseInt(o.version, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid -version %q (expected YYYYMMDDHHMMSS)", o.version)
		}
		return r.MigrateTo(ctx, target)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	var o options
	flag.StringVar(&o.dir, "dir", "", "migrations directory; schema commands use the embedded set when empty")
	flag.StringVar(&o.name, "name", "", "migration name (create)")
	flag.StringVar(&o.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	if fn, ok := authoring[*cmd]; ok {
		exitOnError(ctx, logg, *cmd, fn(o))
		return
	}
	fn, ok := schema[*cmd]
	if !ok {
		exitOnError(ctx, logg, "flags", fmt.Errorf("unknown -cmd value %q", *cmd))
	}

	cfg, err := config.Load()
	exitOnError(ctx, logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnError(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOnError(ctx, logg, "sql database", err)

	var source fs.FS
	if o.dir != "" {
		source = os.DirFS(o.dir)
	}
	runner, err := migrate.NewRunner(sqlDB, source)
	exitOnError(ctx, logg, "runner", err)

	logg.Info(ctx, "migrate ready")
	exitOnError(ctx, logg, *cmd, fn(ctx, runner, o))
}

func authoringDir(o options) string {
	if o.dir != "" {
		return o.dir
	}
	return migrate.DefaultDir
}

func exitOnError(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "step", step), "migrate failed", err)
	os.Exit(1)
}
