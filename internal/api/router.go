package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/waitlist-scheduling/internal/waitlist"
)

// WaitlistService is what the handlers need from the waitlist service.
// *waitlist.Service satisfies it; tests provide stubs.
type WaitlistService interface {
	AddEntry(ctx context.Context, params waitlist.NewEntryParams) (*waitlist.Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error)
	ListEntries(ctx context.Context, status *waitlist.Status, limit, offset int) ([]waitlist.Entry, error)
	MarkContacted(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error)
	CancelEntry(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error)
	RunAssignments(ctx context.Context) (*waitlist.RunResult, error)
}

type RouterConfig struct {
	Service WaitlistService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// Waitlist endpoints
	r.Post("/waitlist", createEntryHandler(cfg.Service))
	r.Get("/waitlist", listEntriesHandler(cfg.Service))
	r.Get("/waitlist/{id}", getEntryHandler(cfg.Service))
	r.Post("/waitlist/{id}/contact", contactEntryHandler(cfg.Service))
	r.Post("/waitlist/{id}/cancel", cancelEntryHandler(cfg.Service))

	// Assignment runs
	r.Post("/assignments/run", runAssignmentsHandler(cfg.Service))

	return r
}
