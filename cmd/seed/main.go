// Package main provides a CLI tool for seeding the database with initial data.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"gnrtax/internal/core/entity"
	"gnrtax/internal/core/id"
	"gnrtax/internal/core/types"
	"gnrtax/internal/domain/auth"
	"gnrtax/internal/infrastructure/storage/postgres"
	"gnrtax/internal/infrastructure/storage/postgres/auth_repo"
	"gnrtax/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := seedItems(ctx, pool, log); err != nil {
		log.Fatalw("failed to seed items", "error", err)
	}

	if os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := seedClients(ctx, pool, log); err != nil {
			log.Fatalw("failed to seed demo clients", "error", err)
		}
		if err := seedMovements(ctx, pool, log); err != nil {
			log.Fatalw("failed to seed demo movements", "error", err)
		}
	}

	if os.Getenv("SEED_ADMIN_TOKEN") == "true" {
		if err := seedAdminToken(ctx, pool, log); err != nil {
			log.Fatalw("failed to seed admin token", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

// seedItems inserts the statutory fuel products every installation tracks.
// Rates are stored in euros per litre.
func seedItems(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	items := []struct {
		code         string
		name         string
		tracked      bool
		category     string
		baselineRate string
		unit         string
		group        string
	}{
		{"GNR", "Gazole non routier", true, "GNR", "3.86", "L", "Carburants"},
		{"GNR-E", "GNR été", true, "GNR", "3.86", "L", "Carburants"},
		{"GNR-H", "GNR hiver", true, "GNR", "3.86", "L", "Carburants"},
		{"FOD", "Fioul domestique", true, "Fioul", "2.46", "L", "Combustibles"},
		{"ADBLUE", "AdBlue", true, "AdBlue", "0", "L", "Additifs"},
		{"GO", "Gazole routier", false, "", "0", "L", "Carburants"},
	}

	for _, it := range items {
		itemID := id.New()
		tag, err := pool.Exec(ctx, `
			INSERT INTO tracked_items (
				id, deletion_mark, version, code, name,
				tracked, category, baseline_rate, unit, item_group
			)
			VALUES ($1, false, 1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (code) WHERE deletion_mark = FALSE DO NOTHING
		`, itemID, it.code, it.name, it.tracked, it.category, it.baselineRate, it.unit, it.group)
		if err != nil {
			return fmt.Errorf("seed item %s: %w", it.code, err)
		}
		if tag.RowsAffected() > 0 {
			log.Infow("seeded item", "code", it.code, "category", it.category)
		}
	}
	return nil
}

// seedClients inserts demo counterparties: one with a valid attestation on
// file, one with an expired deposit, one with none.
func seedClients(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	clients := []struct {
		code    string
		name    string
		siren   string
		dossier string
		deposit string // yyyy-mm-dd, empty for no deposit
		city    string
		postal  string
	}{
		{"CL-001", "SARL Travaux Publics Martin", "732829320", "ATT-2026-0147", "2026-02-10", "Rennes", "35000"},
		{"CL-002", "EARL Ferme des Quatre Vents", "821456789", "ATT-2022-0033", "2022-06-01", "Vitré", "35500"},
		{"CL-003", "Transports Lebreton", "493027868", "", "", "Fougères", "35300"},
	}

	for _, c := range clients {
		clientID := id.New()
		var deposit any
		if c.deposit != "" {
			deposit = c.deposit
		}
		tag, err := pool.Exec(ctx, `
			INSERT INTO clients (
				id, deletion_mark, version, code, name, siren,
				attestation_dossier, attestation_deposit,
				address_line, postal_code, city
			)
			VALUES ($1, false, 1, $2, $3, $4, $5, $6, '', $7, $8)
			ON CONFLICT (code) WHERE deletion_mark = FALSE DO NOTHING
		`, clientID, c.code, c.name, c.siren, c.dossier, deposit, c.postal, c.city)
		if err != nil {
			return fmt.Errorf("seed client %s: %w", c.code, err)
		}
		if tag.RowsAffected() > 0 {
			log.Infow("seeded client", "code", c.code, "name", c.name)
		}
	}
	return nil
}

// movementCopyColumns is the COPY column list for demo ledger rows;
// omitted columns take their schema defaults.
var movementCopyColumns = []string{
	"id", "version", "created_at", "updated_at",
	"number", "date", "status",
	"item_id", "movement_type", "quantity", "unit_price",
	"rate", "tax_amount", "rate_source",
	"counterparty_id", "counterparty_kind", "category",
	"quarter", "semester", "year",
	"source_doc_type", "source_doc_id", "source_line_no",
	"submitted_at",
}

// seedMovements loads a small submitted ledger over COPY so declarations
// and reconciliation have something to work with out of the box.
func seedMovements(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	var count int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM tax_movements WHERE source_doc_type = 'seed'`,
	).Scan(&count); err != nil {
		return fmt.Errorf("check existing movements: %w", err)
	}
	if count > 0 {
		log.Info("demo movements already exist, skipping")
		return nil
	}

	itemID, err := lookupID(ctx, pool, "tracked_items", "GNR")
	if err != nil {
		return err
	}
	attestedID, err := lookupID(ctx, pool, "clients", "CL-001")
	if err != nil {
		return err
	}
	plainID, err := lookupID(ctx, pool, "clients", "CL-003")
	if err != nil {
		return err
	}

	demo := []struct {
		number  string
		date    string
		mType   entity.MovementType
		litres  float64
		client  *id.ID
		docID   string
		lineNo  int
	}{
		{"MVT-SEED-00001", "2026-01-08", entity.MovementPurchase, 12000, nil, "FA-2026-0012", 1},
		{"MVT-SEED-00002", "2026-01-21", entity.MovementSale, 3500, &attestedID, "FV-2026-0031", 1},
		{"MVT-SEED-00003", "2026-02-04", entity.MovementSale, 2800, &plainID, "FV-2026-0058", 1},
		{"MVT-SEED-00004", "2026-02-18", entity.MovementExit, 450, nil, "BS-2026-0007", 1},
		{"MVT-SEED-00005", "2026-03-11", entity.MovementSale, 5100, &attestedID, "FV-2026-0104", 2},
	}

	rows := make([][]any, 0, len(demo))
	for _, d := range demo {
		date, err := time.Parse("2006-01-02", d.date)
		if err != nil {
			return fmt.Errorf("parse seed date %s: %w", d.date, err)
		}

		m := entity.NewTaxMovement(itemID, d.mType, date)
		m.Number = d.number
		m.Quantity = types.NewQuantityFromFloat64(d.litres)
		m.Category = "GNR"
		m.SourceDocType = "seed"
		m.SourceDocID = d.docID
		m.SourceLineNo = d.lineNo
		m.ApplyRate(types.MustMoney("3.86"), entity.RateSourceItem)
		if d.client != nil {
			m.CounterpartyID = d.client
			m.CounterpartyKind = entity.CounterpartyClient
		}
		m.MarkSubmitted()

		rows = append(rows, []any{
			m.ID, m.Version, m.CreatedAt, m.UpdatedAt,
			m.Number, m.Date, string(m.Status),
			m.ItemID, string(m.MovementType), int64(m.Quantity), m.UnitPrice.String(),
			m.Rate.String(), m.TaxAmount.String(), string(m.RateSource),
			m.CounterpartyID, string(m.CounterpartyKind), m.Category,
			m.Quarter, m.Semester, m.Year,
			m.SourceDocType, m.SourceDocID, m.SourceLineNo,
			m.SubmittedAt,
		})
	}

	txManager := postgres.NewTxManager(pool)
	inserter := postgres.NewBatchInserter(txManager)
	return txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := inserter.CopyFromSlice(ctx, "tax_movements", movementCopyColumns, rows)
		if err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		log.Infow("seeded demo movements", "count", n)
		return nil
	})
}

func lookupID(ctx context.Context, pool *postgres.Pool, table, code string) (id.ID, error) {
	var entityID id.ID
	err := pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE code = $1 AND NOT deletion_mark`, table),
		code,
	).Scan(&entityID)
	if err != nil {
		return id.Nil, fmt.Errorf("lookup %s %s: %w", table, code, err)
	}
	return entityID, nil
}

// seedAdminToken issues a bootstrap service token with the admin role and
// prints it once. The plaintext is never stored; losing it means issuing
// a new one.
func seedAdminToken(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	name := os.Getenv("ADMIN_TOKEN_NAME")
	if name == "" {
		name = "bootstrap-admin"
	}

	var count int
	err := pool.QueryRow(ctx,
		`SELECT count(*) FROM service_tokens WHERE name = $1 AND revoked_at IS NULL AND NOT deletion_mark`,
		name,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check existing token: %w", err)
	}
	if count > 0 {
		log.Infow("admin token already exists, skipping", "name", name)
		return nil
	}

	tokens := auth.NewTokenService(auth_repo.NewTokenRepo(postgres.NewTxManager(pool)))
	token, plaintext, err := tokens.Issue(ctx, name, []string{"admin"})
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	log.Infow("issued admin service token", "name", name, "token_id", token.TokenID)
	fmt.Printf("\nADMIN TOKEN (shown once):\n%s\n\n", plaintext)
	return nil
}
