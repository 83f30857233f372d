package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("waitlist entry not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	CreateEntry(ctx context.Context, e *Entry) (*Entry, error)
	GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListEntries(ctx context.Context, status *Status, limit, offset int) ([]Entry, error)

	// ListWaiting returns every waiting entry, the full matcher input.
	ListWaiting(ctx context.Context) ([]Entry, error)

	// UpdateEntryStatus is a compare-and-swap: it only succeeds when the
	// entry still has status from.
	UpdateEntryStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Entry, error)

	// Expiry worker
	FindExpiredEntries(ctx context.Context, now time.Time) ([]Entry, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
