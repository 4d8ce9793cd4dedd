package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/epiguard-backend/pkg/config"
	"github.com/angelmondragon/epiguard-backend/pkg/db"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (empty uses the embedded set; create defaults to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	if err := run(opts, logg); err != nil {
		logg.Error(context.Background(), "migrate failed", err)
		os.Exit(1)
	}
}

func run(opts options, logg *logger.Logger) error {
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": opts.cmd, "dir": opts.dir})

	// create and validate work on files only
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return nil
	case "validate":
		if err := migrate.ValidateFS(migrate.Source(opts.dir)); err != nil {
			return err
		}
		logg.Info(ctx, "migration validation passed")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbClient.Close()
	if dbClient.Driver() != db.DriverPostgres {
		return fmt.Errorf("goose migrations target postgres, got %s", dbClient.Driver())
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	migrator, err := migrate.New(sqlDB, migrate.Source(opts.dir))
	if err != nil {
		return err
	}

	var results []migrate.Result
	switch opts.cmd {
	case "up":
		results, err = migrator.Up(ctx)
	case "down":
		results, err = migrator.Down(ctx)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		results, err = migrator.MigrateTo(ctx, opts.version)
	case "status":
		rows, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%d\t%s\t%s\n", row.Version, state, row.Path)
		}
		return nil
	default:
		return fmt.Errorf("unknown -cmd value: %s", opts.cmd)
	}

	for _, r := range results {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":   r.Version,
			"direction": r.Direction,
			"empty":     r.Empty,
		}), "migration applied")
	}
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "count", len(results)), "migrate done")
	return nil
}
