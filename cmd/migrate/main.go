package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/config"
	"github.com/angelmondragon/groupcart-backend/pkg/db"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

const serviceName = "migrate"

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|to|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name (create)")
	target := flag.String("version", "", "target version YYYYMMDDHHMMSS (to)")
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: serviceName})
	ctx := context.Background()

	// create and validate only touch files, so they run without config or a database.
	switch *cmd {
	case "create":
		if *name == "" {
			fail(ctx, logg, "missing -name for create", nil)
		}
		out := *dir
		if out == "" {
			out = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(out, *name, time.Now())
		if err != nil {
			fail(ctx, logg, "create migration", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateFS(source(*dir)); err != nil {
			fail(ctx, logg, "migration validation failed", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail(ctx, logg, "load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "connect database", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.SQL()
	if err != nil {
		fail(ctx, logg, "extract sql.DB", err)
	}
	runner, err := migrate.NewRunner(sqlDB, source(*dir), logg)
	if err != nil {
		fail(ctx, logg, "build migration runner", err)
	}

	switch *cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "to":
		if *target == "" {
			fail(ctx, logg, "missing -version for to", nil)
		}
		err = runner.To(ctx, *target)
	case "status":
		var pending int
		pending, err = runner.Status(ctx)
		if err == nil {
			fmt.Printf("%d pending migration(s)\n", pending)
		}
	default:
		fail(ctx, logg, fmt.Sprintf("unknown -cmd value %q", *cmd), nil)
	}
	if err != nil {
		fail(ctx, logg, "migrate "+*cmd, err)
	}
	logg.Info(ctx, "migrate finished")
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.FS()
	}
	return os.DirFS(dir)
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = errors.New(msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
