package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/magstore/email-receipts/internal/api/metrics"
	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

// DispatchService sends receipts and keeps the sent-email log.
type DispatchService struct {
	mailer   ports.Mailer
	repo     ports.SentEmailRepository
	composer *ReceiptComposer
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

func NewDispatchService(mailer ports.Mailer, repo ports.SentEmailRepository, composer *ReceiptComposer, log zerolog.Logger) *DispatchService {
	return &DispatchService{
		mailer:   mailer,
		repo:     repo,
		composer: composer,
		validate: newReceiptValidator(),
		log:      log,
		now:      time.Now,
	}
}

func (s *DispatchService) ProviderConfigured() bool {
	return s.mailer.Configured()
}

func (s *DispatchService) send(ctx context.Context, f receiptFields) domain.Outcome {
	if !s.mailer.Configured() {
		return failed(domain.ErrProviderNotConfigured.Error())
	}

	msg, err := s.composer.Compose(f)
	if err != nil {
		return failed(err.Error())
	}

	start := time.Now()
	messageID, err := s.mailer.Send(ctx, msg)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrProviderTimeout) {
			outcome = "timeout"
		}
		metrics.ProviderRequestDuration.WithLabelValues(outcome).Observe(elapsed)
		return failed(err.Error())
	}
	metrics.ProviderRequestDuration.WithLabelValues("success").Observe(elapsed)

	return domain.Outcome{Status: domain.StatusSuccess, MessageID: messageID}
}

func failed(reason string) domain.Outcome {
	if reason == "" {
		reason = "unknown error"
	}
	return domain.Outcome{Status: domain.StatusFailed, Error: reason}
}

// SendSingle dispatches one receipt and records the attempt. Invalid input
// is rejected before any provider call and is not recorded.
func (s *DispatchService) SendSingle(ctx context.Context, userID string, in ports.ReceiptInput) (*domain.DispatchRecord, error) {
	f := normalizeReceipt(in)
	if err := validateReceipt(s.validate, f); err != nil {
		return nil, err
	}

	rec, err := s.record(ctx, userID, f, s.send(ctx, f))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SendBulk processes rows one at a time in input order. Each row gets its own
// record whatever happened to the rows before it; only a storage failure
// stops the batch.
func (s *DispatchService) SendBulk(ctx context.Context, userID string, rows []ports.BulkRow) (*ports.BulkResult, error) {
	metrics.BulkBatchRows.Observe(float64(len(rows)))

	result := &ports.BulkResult{Total: len(rows), Rows: make([]ports.BulkRowResult, 0, len(rows))}
	for _, row := range rows {
		f := normalizeReceipt(row.Receipt)

		var outcome domain.Outcome
		if row.ParseError != "" {
			outcome = failed("malformed CSV row: " + row.ParseError)
		} else if err := validateReceipt(s.validate, f); err != nil {
			outcome = failed(err.Error())
		} else {
			outcome = s.send(ctx, f)
		}

		rec, err := s.record(ctx, userID, f, outcome)
		if err != nil {
			return nil, fmt.Errorf("bulk row %d: %w", row.Line, err)
		}

		if rec.Status == domain.StatusSuccess {
			result.Success++
		} else {
			result.Failed++
		}
		result.Rows = append(result.Rows, ports.BulkRowResult{
			Line:      row.Line,
			Email:     rec.RecipientEmail,
			Status:    rec.Status,
			MessageID: outcome.MessageID,
			Error:     outcome.Error,
		})
	}

	s.log.Info().
		Str("user_id", userID).
		Int("total", result.Total).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Msg("bulk send completed")

	return result, nil
}

func (s *DispatchService) record(ctx context.Context, userID string, f receiptFields, outcome domain.Outcome) (*domain.DispatchRecord, error) {
	rec := &domain.DispatchRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		RecipientEmail: f.Email,
		RecipientName:  f.Name,
		Edition:        f.edition(),
		PurchaseDate:   f.PurchaseDate,
		Digital:        f.digital(),
		SentAt:         s.now().UTC(),
		Status:         outcome.Status,
	}
	if outcome.MessageID != "" {
		id := outcome.MessageID
		rec.MessageID = &id
		rec.TransactionID = domain.ExtractTransactionID(id)
	}
	if outcome.Status == domain.StatusFailed {
		msg := outcome.Error
		rec.ErrorMessage = &msg
	}

	saved, err := s.repo.Record(ctx, rec)
	if err != nil {
		s.log.Error().Err(err).Str("recipient", f.Email).Msg("failed to record dispatch attempt")
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	metrics.DispatchesTotal.WithLabelValues(string(saved.Edition), string(saved.Status)).Inc()

	lvl := zerolog.InfoLevel
	if saved.Status == domain.StatusFailed {
		lvl = zerolog.WarnLevel
	}
	s.log.WithLevel(lvl).
		Str("recipient", saved.RecipientEmail).
		Str("edition", f.Edition).
		Str("status", string(saved.Status)).
		Str("message_id", outcome.MessageID).
		Str("error", outcome.Error).
		Msg("receipt dispatch recorded")

	return saved, nil
}

// History returns one page of the sent-email log.
func (s *DispatchService) History(ctx context.Context, in ports.HistoryInput) (*ports.HistoryResult, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	perPage := NormalizePageSize(in.PerPage)

	items, total, err := s.repo.Query(ctx, in.Filter, page, perPage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}

	return &ports.HistoryResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

// Export returns every row matching filter, ordered as History orders them.
func (s *DispatchService) Export(ctx context.Context, filter ports.SentEmailFilter) ([]domain.DispatchRecord, error) {
	rows, err := s.repo.Export(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return rows, nil
}

// NormalizePageSize maps anything outside ports.PageSizes to
// ports.DefaultPageSize.
func NormalizePageSize(n int) int {
	if slices.Contains(ports.PageSizes, n) {
		return n
	}
	return ports.DefaultPageSize
}
