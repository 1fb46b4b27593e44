package ports

import (
	"context"

	"github.com/magstore/email-receipts/internal/core/domain"
)

// ReceiptInput is one receipt to send. Digital is required for the digital
// edition and dropped for print.
type ReceiptInput struct {
	Email        string
	Name         string
	Edition      string
	PurchaseDate string
	Digital      *domain.DigitalAccess
}

// BulkRow is one parsed row of an uploaded recipient list. ParseError is set
// when the CSV row itself could not be read.
type BulkRow struct {
	Line       int
	Receipt    ReceiptInput
	ParseError string
}

// BulkRowResult is the per-row report of a bulk send.
type BulkRowResult struct {
	Line      int
	Email     string
	Status    domain.DispatchStatus
	MessageID string
	Error     string
}

// BulkResult summarises a bulk send.
type BulkResult struct {
	Total   int
	Success int
	Failed  int
	Rows    []BulkRowResult
}

// DefaultPageSize is used when the requested page size is not in PageSizes.
const DefaultPageSize = 20

// PageSizes are the page sizes the history view accepts.
var PageSizes = []int{20, 50, 100}

// HistoryInput carries the list view parameters.
type HistoryInput struct {
	Filter  SentEmailFilter
	Page    int
	PerPage int
}

// HistoryResult is one page of the sent-email log.
type HistoryResult struct {
	Items      []domain.DispatchRecord
	Total      int64
	Page       int
	PerPage    int
	TotalPages int
}

// DispatchService is the use-case surface behind the send and history pages.
type DispatchService interface {
	SendSingle(ctx context.Context, userID string, in ReceiptInput) (*domain.DispatchRecord, error)
	SendBulk(ctx context.Context, userID string, rows []BulkRow) (*BulkResult, error)
	History(ctx context.Context, in HistoryInput) (*HistoryResult, error)
	Export(ctx context.Context, filter SentEmailFilter) ([]domain.DispatchRecord, error)
	ProviderConfigured() bool
}
