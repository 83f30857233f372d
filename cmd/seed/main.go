package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicore/waitlist-scheduling/internal/db"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("service", "seed").Logger()

	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedEntries(context.Background(), pool, 500); err != nil {
		logger.Fatal().Err(err).Msg("seed waitlist entries")
	}

	logger.Info().Msg("seed complete")
}

func seedEntries(ctx context.Context, pool *pgxpool.Pool, count int) error {
	priorities := []string{"high", "medium", "low"}
	times := []string{"09:00", "09:30", "10:00", "10:30", "11:00", "14:00", "14:30", "15:00", "16:00"}

	for i := 0; i < count; i++ {
		dates := randomDates(gofakeit.Number(1, 4))
		prefTimes := randomPick(times, gofakeit.Number(1, 3))

		priority := priorities[gofakeit.Number(0, len(priorities)-1)]
		addedAt := time.Now().Add(-time.Duration(gofakeit.Number(0, 21*24)) * time.Hour)
		expiresAt := addedAt.Add(30 * 24 * time.Hour)

		var notes *string
		if gofakeit.Bool() {
			n := gofakeit.Sentence(6)
			notes = &n
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO waitlist_entries
				(id, patient_id, priority, preferred_dates, preferred_times, notes, status, added_at, updated_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'waiting', $7, $7, $8)
		`, uuid.New(), uuid.New(), priority, dates, prefTimes, notes, addedAt, expiresAt)
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}

	return nil
}

func randomDates(n int) []string {
	dates := make([]string, 0, n)
	for i := 0; i < n; i++ {
		d := time.Now().AddDate(0, 0, gofakeit.Number(1, 28))
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates
}

func randomPick(pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	picked := make([]string, 0, n)
	seen := make(map[int]struct{})
	for len(picked) < n {
		idx := gofakeit.Number(0, len(pool)-1)
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		picked = append(picked, pool[idx])
	}
	return picked
}
