package ports

import (
	"context"
	"time"

	"github.com/magstore/email-receipts/internal/core/domain"
)

// SentEmailFilter carries the query parameters for the sent-email log.
// Zero values mean "no filter".
type SentEmailFilter struct {
	Status   domain.DispatchStatus
	DateFrom time.Time // sent_at >= DateFrom
	DateTo   time.Time // sent_at <= DateTo
	Search   string    // case-insensitive substring of recipient email or name
}

// SentEmailRepository is the append-only audit log of dispatch attempts.
type SentEmailRepository interface {
	Record(ctx context.Context, rec *domain.DispatchRecord) (*domain.DispatchRecord, error)
	// Query returns one page (1-based) of matching rows, most recent first,
	// plus the total number of matches. A pageSize <= 0 returns every match.
	Query(ctx context.Context, filter SentEmailFilter, page, pageSize int) ([]domain.DispatchRecord, int64, error)
	// Export returns every matching row in the same order as Query.
	Export(ctx context.Context, filter SentEmailFilter) ([]domain.DispatchRecord, error)
}
