package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bdlm/log"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/bindery/internal/action"
	"github.com/matthewbaird/bindery/internal/config"
	"github.com/matthewbaird/bindery/internal/mainloop"
	"github.com/matthewbaird/bindery/internal/schemestore"
	"github.com/matthewbaird/bindery/internal/screen"
	"github.com/matthewbaird/bindery/internal/server"
	"github.com/matthewbaird/bindery/internal/session"
	"github.com/matthewbaird/bindery/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("err", err).Warnf("%-v", err)
		level, _ = log.ParseLevel("info")
	}
	log.SetFormatter(&log.TextFormatter{
		ForceTTY: true,
	})
	log.SetLevel(level)

	db, err := sql.Open("sqlite", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		log.Fatalf("enabling foreign keys: %v", err)
	}

	records := store.OpenSQLite(db)
	defer records.Close()
	for _, e := range cfg.Entities {
		if err := records.Define(ctx, e); err != nil {
			log.Fatalf("defining entity: %v", err)
		}
	}
	log.Infof("database ready (%d entities)", len(cfg.Entities))

	schemes, err := schemestore.Open(cfg.SchemeDB)
	if err != nil {
		log.Fatalf("opening scheme store: %v", err)
	}
	defer schemes.Close()
	if cfg.SchemeDir != "" {
		n, err := schemes.ImportDir(cfg.SchemeDir)
		if err != nil {
			log.Fatalf("importing schemes: %v", err)
		}
		log.Infof("imported %d scheme documents from %s", n, cfg.SchemeDir)
	}

	var performer action.Performer
	if cfg.ActionsFile != "" {
		defs, err := action.LoadDefinitions(cfg.ActionsFile)
		if err != nil {
			log.Fatalf("loading actions: %v", err)
		}
		performer = action.NewHTTPPerformer(defs)
	} else {
		log.Warn("no ACTIONS_FILE configured, actions will fail")
	}

	loop := mainloop.New()
	go loop.Run(ctx)

	bus := action.NewBus()
	bus.Subscribe("log", "", action.LogHandler())

	sessions := session.NewManager(loop, schemes.Load, screen.Options{
		Performer: performer,
		Bus:       bus,
		Registry:  action.NewRegistry(),
	}, cfg.SessionMaxAge, cfg.SessionIdle)
	sessions.Provide("db", records)
	sessions.Provide("memory", store.NewMemory())

	if err := server.Run(ctx, server.Config{
		Port:         cfg.Port,
		Schemes:      schemes,
		Sessions:     sessions,
		CleanupEvery: time.Minute,
	}); err != nil {
		log.Errorf("server error: %v", err)
		os.Exit(1)
	}
	loop.Stop()
}
