// Package main is the entry point for the gnrtax background worker.
// It sweeps aged draft movements into the submitted state and runs the
// scheduled reconciliation pass.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appctx "gnrtax/internal/core/context"
	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/security"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/declaration"
	"gnrtax/internal/domain/rate"
	"gnrtax/internal/domain/reconciliation"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/internal/infrastructure/storage/postgres"
	"gnrtax/internal/infrastructure/storage/postgres/catalog_repo"
	"gnrtax/internal/infrastructure/storage/postgres/declaration_repo"
	"gnrtax/internal/infrastructure/storage/postgres/movement_repo"
	"gnrtax/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting gnrtax worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	itemRepo := catalog_repo.NewItemRepo(txManager)
	movementRepo := movement_repo.NewMovementRepo(txManager)
	declRepo := declaration_repo.NewDeclarationRepo(txManager)

	policy := security.NewStrictPolicy(time.Time{})
	if closed, err := latestValidatedEnd(ctx, declRepo); err != nil {
		log.Warnw("failed to recover closed period", "error", err)
	} else if !closed.IsZero() {
		policy.AdvanceClosedPeriod(closed)
	}

	// The worker never records new movements, so it draws no numbers.
	ledger := tax.NewService(movementRepo, txManager, policy, nil)

	rateConfig := rate.NewConfigProvider(getEnvDuration("RATE_CONFIG_TTL", 5*time.Minute), nil)
	rates := rate.NewEngine(rateConfig, ledger.History())
	detector := reconciliation.NewDetector(reconciliation.DefaultConfig(), nil)
	recon := reconciliation.NewService(ledger, itemRepo, rates, detector)

	worker := NewWorker(ledger, recon, WorkerConfig{
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
		DraftMaxAge:     getEnvDuration("DRAFT_MAX_AGE", 24*time.Hour),
		AnalyzeInterval: getEnvDuration("ANALYZE_INTERVAL", 6*time.Hour),
		AnalyzeWindow:   getEnvDuration("ANALYZE_WINDOW", 90*24*time.Hour),
	}, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

func latestValidatedEnd(ctx context.Context, repo declaration.Repository) (time.Time, error) {
	status := declaration.StatusValidated
	result, err := repo.List(ctx, declaration.ListFilter{Status: &status})
	if err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for _, d := range result.Items {
		if d.EndDate.After(latest) {
			latest = d.EndDate
		}
	}
	return latest, nil
}

// WorkerConfig holds the sweep and analysis schedules.
type WorkerConfig struct {
	// SweepInterval is how often the draft sweep runs
	SweepInterval time.Duration

	// DraftMaxAge is the age past which a draft is auto-submitted
	DraftMaxAge time.Duration

	// AnalyzeInterval is how often reconciliation runs
	AnalyzeInterval time.Duration

	// AnalyzeWindow is the lookback covered by each reconciliation run
	AnalyzeWindow time.Duration
}

// draftLedger is the slice of the movement service the sweep needs.
type draftLedger interface {
	List(ctx context.Context, filter tax.Filter) (domain.ListResult[*entity.TaxMovement], error)
	Submit(ctx context.Context, movementID id.ID) (*entity.TaxMovement, error)
}

// Worker runs the periodic ledger maintenance jobs.
type Worker struct {
	ledger draftLedger
	recon  *reconciliation.Service
	cfg    WorkerConfig
	log    *logger.Logger
}

func NewWorker(ledger draftLedger, recon *reconciliation.Service, cfg WorkerConfig, log *logger.Logger) *Worker {
	return &Worker{
		ledger: ledger,
		recon:  recon,
		cfg:    cfg,
		log:    log.WithComponent("worker"),
	}
}

// Run executes jobs on their tickers until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	// Audit stamps on auto-submitted movements name the worker, not a person
	ctx = appctx.WithUser(ctx, &appctx.UserContext{
		UserID:    "worker",
		IsService: true,
	})

	sweepTicker := time.NewTicker(w.cfg.SweepInterval)
	defer sweepTicker.Stop()

	analyzeTicker := time.NewTicker(w.cfg.AnalyzeInterval)
	defer analyzeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			w.sweepDrafts(ctx)
		case <-analyzeTicker.C:
			w.analyze(ctx)
		}
	}
}

// sweepDrafts submits drafts older than DraftMaxAge. Drafts exist so an
// operator can review captured lines; past the review window they count
// toward declarations like any other movement.
func (w *Worker) sweepDrafts(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.cfg.DraftMaxAge)
	status := entity.StatusDraft

	filter := tax.Filter{
		Status:    &status,
		CreatedTo: &cutoff,
	}
	filter.Limit = 200
	filter.OrderBy = "date"

	submitted := 0
	for {
		result, err := w.ledger.List(ctx, filter)
		if err != nil {
			w.log.Errorw("draft sweep query failed", "error", err)
			return
		}
		if len(result.Items) == 0 {
			break
		}

		pass := 0
		for _, m := range result.Items {
			if _, err := w.ledger.Submit(ctx, m.ID); err != nil {
				w.log.Warnw("failed to auto-submit draft",
					"movement_id", m.ID,
					"number", m.Number,
					"error", err,
				)
				continue
			}
			pass++
		}
		submitted += pass

		// Submitted drafts leave the filter, so every pass re-queries at
		// offset zero. A pass that submits nothing would see the same page
		// again; the stuck drafts wait for the next tick.
		if pass == 0 || len(result.Items) < filter.Limit {
			break
		}
	}

	if submitted > 0 {
		w.log.Infow("draft sweep complete", "submitted", submitted, "cutoff", cutoff.Format("2006-01-02"))
	}
}

func (w *Worker) analyze(ctx context.Context) {
	to := time.Now().UTC()
	from := to.Add(-w.cfg.AnalyzeWindow)

	report, err := w.recon.Analyze(ctx, from, to)
	if err != nil {
		w.log.Errorw("scheduled reconciliation failed", "error", err)
		return
	}

	w.log.Infow("scheduled reconciliation complete",
		"examined", report.Examined,
		"anomalies", len(report.Anomalies),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
