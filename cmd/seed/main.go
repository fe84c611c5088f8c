package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinichub/scheduling/internal/db"
	"github.com/clinichub/scheduling/internal/logging"
	"github.com/clinichub/scheduling/internal/scheduling"
)

// seed populates demo tenants with calendars and open slots. Every insert
// goes through a tenant-scoped session so the row policies stay in force.
func main() {
	logging.Init("info", "console")
	log := logging.Get()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	if err := db.Migrate(dsn); err != nil {
		log.Fatal().Err(err).Msg("schema migration error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, dsn)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	sessions := db.NewSessions(pool)

	for i := 0; i < 3; i++ {
		tenantID := fmt.Sprintf("clinic-%03d", i+1)
		if err := seedTenant(context.Background(), sessions, tenantID); err != nil {
			log.Fatal().Err(err).Str("tenant_id", tenantID).Msg("seed tenant")
		}
		log.Info().Str("tenant_id", tenantID).Msg("tenant seeded")
	}

	log.Info().Msg("seed complete")
}

func seedTenant(ctx context.Context, sessions *db.Sessions, tenantID string) error {
	return sessions.WithTenant(ctx, tenantID, func(tx pgx.Tx) error {
		for p := 0; p < 5; p++ {
			calendarID := uuid.New()
			practitionerID := uuid.NewString()

			_, err := tx.Exec(ctx, `
				INSERT INTO calendars (id, tenant_id, practitioner_id)
				VALUES ($1, $2, $3)
			`, calendarID, tenantID, practitionerID)
			if err != nil {
				return err
			}

			if err := seedSlots(ctx, tx, tenantID, calendarID); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedSlots(ctx context.Context, tx pgx.Tx, tenantID string, calendarID uuid.UUID) error {
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	for d := 0; d < 7; d++ {
		start := day.Add(time.Duration(d)*24*time.Hour + 9*time.Hour)
		for i := 0; i < 12; i++ {
			mode := scheduling.ModeOnsite
			if gofakeit.Bool() {
				mode = scheduling.ModeTele
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO slots (id, tenant_id, calendar_id, starts_at, ends_at, capacity, mode, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, 'open')
			`, uuid.New(), tenantID, calendarID,
				start, start.Add(30*time.Minute),
				gofakeit.Number(1, 3), mode)
			if err != nil {
				return err
			}

			start = start.Add(30 * time.Minute)
		}
	}
	return nil
}
