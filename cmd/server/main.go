// Package main is the entry point for the gnrtax API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/security"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain"
	"gnrtax/internal/domain/attestation"
	"gnrtax/internal/domain/auth"
	"gnrtax/internal/domain/capture"
	"gnrtax/internal/domain/catalogs/client"
	"gnrtax/internal/domain/catalogs/item"
	"gnrtax/internal/domain/declaration"
	"gnrtax/internal/domain/rate"
	"gnrtax/internal/domain/reconciliation"
	"gnrtax/internal/domain/registers/tax"
	"gnrtax/internal/domain/uom"
	v1 "gnrtax/internal/infrastructure/http/v1"
	"gnrtax/internal/infrastructure/storage/postgres"
	"gnrtax/internal/infrastructure/storage/postgres/auth_repo"
	"gnrtax/internal/infrastructure/storage/postgres/catalog_repo"
	"gnrtax/internal/infrastructure/storage/postgres/declaration_repo"
	"gnrtax/internal/infrastructure/storage/postgres/movement_repo"
	"gnrtax/pkg/logger"
	"gnrtax/pkg/numerator"
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

	ctx := context.Background()
	log.Info("starting gnrtax server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Repositories ---
	itemRepo := catalog_repo.NewItemRepo(txManager)
	clientRepo := catalog_repo.NewClientRepo(txManager)
	movementRepo := movement_repo.NewMovementRepo(txManager)
	declRepo := declaration_repo.NewDeclarationRepo(txManager)
	tokenRepo := auth_repo.NewTokenRepo(txManager)

	// --- Numbering ---
	numbers := numerator.New(pool)
	numbers.RegisterScope("tax_movement", numerator.Config{
		Prefix:      "MVT",
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	})
	numbers.RegisterScope("declaration", numerator.Config{
		Prefix:      "DECL",
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	})

	// --- Posting policy ---
	// The close boundary is recovered from the latest validated declaration
	// so a restart does not reopen declared periods.
	policy := security.NewStrictPolicy(time.Time{})
	if closed, err := latestValidatedEnd(ctx, declRepo); err != nil {
		log.Warnw("failed to recover closed period, ledger starts open", "error", err)
	} else if !closed.IsZero() {
		policy.AdvanceClosedPeriod(closed)
		log.Infow("closed period recovered", "closed_until", closed.Format("2006-01-02"))
	}

	// --- Domain services ---
	evaluator := attestation.NewEvaluator(types.MustMoney("3.86"), types.MustMoney("24.81"))
	converter := uom.NewConverter()

	ledger := tax.NewService(movementRepo, txManager, policy, numbers)

	rateConfig := rate.NewConfigProvider(getEnvDuration("RATE_CONFIG_TTL", 5*time.Minute), nil)
	rates := rate.NewEngine(rateConfig, ledger.History())

	itemService := item.NewService(itemRepo, txManager)
	clientService := client.NewService(clientRepo, txManager, evaluator)
	materializer := capture.NewMaterializer(itemRepo, clientRepo, converter, rates, ledger)

	aggregator := declaration.NewAggregator(ledger, declRepo, clientRepo, evaluator)
	declService := declaration.NewService(declRepo, aggregator, txManager, policy, numbers)

	rules, err := loadAnomalyRules(getEnv("ANOMALY_RULES_FILE", ""))
	if err != nil {
		log.Fatalw("failed to load anomaly rules", "error", err)
	}
	detector := reconciliation.NewDetector(reconciliation.DefaultConfig(), rules)
	reconService := reconciliation.NewService(ledger, itemRepo, rates, detector)

	// --- Audit ---
	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}
	registerAuditHooks(ledger, itemService, declService, auditService)

	// --- Auth ---
	jwtSecret := getEnv("JWT_SECRET", "your-secret-key-change-in-production")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))
	tokenService := auth.NewTokenService(tokenRepo)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:         pool,
		Logger:       log,
		JWTValidator: jwtService,
		TokenService: tokenService,
		Items:        itemService,
		Clients:      clientService,
		Converter:    converter,
		Rates:        rates,
		Ledger:       ledger,
		Materializer: materializer,
		Declarations: declService,
		Recon:        reconService,
		ReportsDir:   getEnv("REPORTS_DIR", ""),
		AdminRole:    getEnv("ADMIN_ROLE", "admin"),
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// latestValidatedEnd finds the end date of the most recent validated
// declaration, or zero time when none exists yet.
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

// loadAnomalyRules reads operator-defined reconciliation rules from a JSON
// file. An empty path means built-in checks only.
func loadAnomalyRules(path string) (*reconciliation.RuleSet, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var rules []reconciliation.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return reconciliation.CompileRules(rules)
}

// registerAuditHooks records catalog and ledger changes in sys_audit.
// Audit failures are swallowed by the hooks: a missing audit row must not
// roll back a business operation.
func registerAuditHooks(ledger *tax.Service, items *item.Service, decls *declaration.Service, audit *postgres.AuditService) {
	ledger.Hooks().On(domain.AfterCreate, func(ctx context.Context, m *entity.TaxMovement) error {
		_ = audit.LogChange(ctx, "tax_movement", m.ID, postgres.AuditActionCreate, map[string]any{
			"number":        m.Number,
			"status":        string(m.Status),
			"movement_type": string(m.MovementType),
			"quantity":      m.Quantity.String(),
			"rate":          m.Rate.String(),
		})
		return nil
	})
	ledger.Hooks().On(domain.AfterUpdate, func(ctx context.Context, m *entity.TaxMovement) error {
		_ = audit.LogChange(ctx, "tax_movement", m.ID, postingAction(m), map[string]any{
			"number": m.Number,
			"status": string(m.Status),
		})
		return nil
	})
	items.Hooks().On(domain.AfterCreate, func(ctx context.Context, it *item.TrackedItem) error {
		_ = audit.LogChange(ctx, "tracked_item", it.ID, postgres.AuditActionCreate, map[string]any{
			"code":     it.Code,
			"category": string(it.Category),
		})
		return nil
	})
	items.Hooks().On(domain.AfterUpdate, func(ctx context.Context, it *item.TrackedItem) error {
		_ = audit.LogChange(ctx, "tracked_item", it.ID, postgres.AuditActionUpdate, map[string]any{
			"code":    it.Code,
			"tracked": it.Tracked,
		})
		return nil
	})
	decls.Hooks().On(domain.AfterCreate, func(ctx context.Context, d *declaration.Declaration) error {
		_ = audit.LogChange(ctx, "declaration", d.ID, postgres.AuditActionCreate, map[string]any{
			"code":    d.Code,
			"status":  string(d.Status),
			"tax_due": d.TaxDue.String(),
		})
		return nil
	})
	decls.Hooks().On(domain.AfterUpdate, func(ctx context.Context, d *declaration.Declaration) error {
		_ = audit.LogChange(ctx, "declaration", d.ID, declarationAction(d), map[string]any{
			"code":    d.Code,
			"status":  string(d.Status),
			"tax_due": d.TaxDue.String(),
		})
		return nil
	})
}

// declarationAction maps a declaration's status to its audit action.
func declarationAction(d *declaration.Declaration) postgres.AuditAction {
	switch d.Status {
	case declaration.StatusSubmitted:
		return postgres.AuditActionSubmit
	case declaration.StatusValidated:
		return postgres.AuditActionValidate
	case declaration.StatusCancelled:
		return postgres.AuditActionCancel
	default:
		return postgres.AuditActionUpdate
	}
}

// postingAction maps a movement's post-update status to its audit action.
func postingAction(m *entity.TaxMovement) postgres.AuditAction {
	switch m.Status {
	case entity.StatusSubmitted:
		return postgres.AuditActionSubmit
	case entity.StatusCancelled:
		return postgres.AuditActionCancel
	default:
		return postgres.AuditActionUpdate
	}
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
