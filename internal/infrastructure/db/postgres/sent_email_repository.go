package postgres

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

// sentEmailOrder is shared by Query and Export so both list rows identically.
const sentEmailOrder = "sent_emails.sent_at DESC, sent_emails.id DESC"

type SentEmailRepository struct {
	db *gorm.DB
}

func NewSentEmailRepository(db *gorm.DB) *SentEmailRepository {
	return &SentEmailRepository{db: db}
}

func (r *SentEmailRepository) Record(ctx context.Context, rec *domain.DispatchRecord) (*domain.DispatchRecord, error) {
	m := sentEmailToModel(rec)
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("insert sent email: %w", err)
	}

	var sender UserModel
	if err := r.db.WithContext(ctx).Select("username").Where("id = ?", rec.UserID).Take(&sender).Error; err == nil {
		m.User = sender
	}
	out := sentEmailFromModel(m)
	return &out, nil
}

func (r *SentEmailRepository) Query(ctx context.Context, filter ports.SentEmailFilter, page, pageSize int) ([]domain.DispatchRecord, int64, error) {
	var total int64
	if err := applySentEmailFilter(r.db.WithContext(ctx).Model(&SentEmailModel{}), filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count sent emails: %w", err)
	}

	var models []SentEmailModel
	if err := pageQuery(r.db.WithContext(ctx), filter, page, pageSize).Preload("User").Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("query sent emails: %w", err)
	}
	return toRecords(models), total, nil
}

func (r *SentEmailRepository) Export(ctx context.Context, filter ports.SentEmailFilter) ([]domain.DispatchRecord, error) {
	var models []SentEmailModel
	if err := listQuery(r.db.WithContext(ctx), filter).Preload("User").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("export sent emails: %w", err)
	}
	return toRecords(models), nil
}

func listQuery(tx *gorm.DB, filter ports.SentEmailFilter) *gorm.DB {
	return applySentEmailFilter(tx.Model(&SentEmailModel{}), filter).Order(sentEmailOrder)
}

// pageQuery is listQuery limited to one 1-based page. pageSize <= 0 means
// no limit.
func pageQuery(tx *gorm.DB, filter ports.SentEmailFilter, page, pageSize int) *gorm.DB {
	tx = listQuery(tx, filter)
	if pageSize <= 0 {
		return tx
	}
	if page < 1 {
		page = 1
	}
	return tx.Offset((page - 1) * pageSize).Limit(pageSize)
}

func applySentEmailFilter(tx *gorm.DB, f ports.SentEmailFilter) *gorm.DB {
	if f.Status != "" {
		tx = tx.Where("sent_emails.status = ?", string(f.Status))
	}
	if !f.DateFrom.IsZero() {
		tx = tx.Where("sent_emails.sent_at >= ?", f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		tx = tx.Where("sent_emails.sent_at <= ?", f.DateTo)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		tx = tx.Where("(LOWER(sent_emails.recipient_email) LIKE ? OR LOWER(sent_emails.recipient_name) LIKE ?)", pattern, pattern)
	}
	return tx
}

// escapeLike makes user input match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func toRecords(models []SentEmailModel) []domain.DispatchRecord {
	out := make([]domain.DispatchRecord, 0, len(models))
	for _, m := range models {
		out = append(out, sentEmailFromModel(m))
	}
	return out
}
