package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	emailadapter "capmatch/internal/adapters/email"
	httpadapter "capmatch/internal/adapters/http"
	pg "capmatch/internal/adapters/postgres"
	"capmatch/internal/config"
	auditsvc "capmatch/internal/services/audit"
	matchsvc "capmatch/internal/services/matching"
	outreachsvc "capmatch/internal/services/outreach"
	"capmatch/internal/workers/dispatch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("warning: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pg.Migrate(ctx, cfg.DatabaseURL); err != nil {
		log.Fatalf("migrate error: %v", err)
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()

	clock := clockwork.NewRealClock()
	mailer := emailadapter.New(cfg.EmailEndpoint, cfg.EmailAPIKey, cfg.EmailFrom, nil)
	dispatcher := dispatch.New(db, db, db, mailer, dispatch.Config{
		ClaimBaseURL: cfg.ClaimBaseURL,
		SignupURL:    cfg.SignupURL,
		Workers:      cfg.DispatchWorkers,
	}, logger)
	auditor := auditsvc.New(db, clock, logger)
	outreach := outreachsvc.New(db, db, dispatcher, auditor, clock, logger, cfg.DispatchTimeout)
	matching := matchsvc.New(db, db, cfg.OrgBlacklist, clock)

	srv := httpadapter.New(outreach, matching, logger)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	errCh := make(chan error, 1)
	go func() { errCh <- http.ListenAndServe(cfg.ListenAddr, r) }()
	logger.Info("listening", "addr", cfg.ListenAddr, "env", cfg.Env)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
		auditor.Wait()
		time.Sleep(300 * time.Millisecond)
	case err := <-errCh:
		log.Fatal(fmt.Errorf("server error: %w", err))
	}
}
