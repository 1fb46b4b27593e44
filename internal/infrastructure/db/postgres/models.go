package postgres

import (
	"time"

	"github.com/magstore/email-receipts/internal/core/domain"
)

// UserModel is the users table.
type UserModel struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)"`
	Username     string     `gorm:"size:100;not null;uniqueIndex"`
	Email        *string    `gorm:"size:120;uniqueIndex"`
	PasswordHash string     `gorm:"size:255;not null"`
	CreatedAt    time.Time  `gorm:"not null"`
	LastLogin    *time.Time
	IsActive     bool `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

// SentEmailModel is the sent_emails table. Free-text columns are sized for
// the raw input of rejected bulk rows, which are stored as received.
type SentEmailModel struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)"`
	UserID          string    `gorm:"type:varchar(36);not null;index"`
	User            UserModel `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
	RecipientEmail  string    `gorm:"size:500;not null;index"`
	RecipientName   string    `gorm:"size:500;not null"`
	Edition         string    `gorm:"size:500;not null"`
	PurchaseDate    string    `gorm:"size:500;not null"`
	DigitalLink     *string   `gorm:"size:500"`
	DigitalUsername *string   `gorm:"size:500"`
	DigitalPassword *string   `gorm:"size:500"`
	SentAt          time.Time `gorm:"not null;index"`
	MessageID       *string   `gorm:"size:255"`
	TransactionID   *string   `gorm:"size:255;index"`
	Status          string    `gorm:"size:20;not null;index"`
	ErrorMessage    *string   `gorm:"type:text"`
}

func (SentEmailModel) TableName() string { return "sent_emails" }

func userToModel(u *domain.User) UserModel {
	m := UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
		IsActive:     u.Active,
	}
	if u.Email != "" {
		email := u.Email
		m.Email = &email
	}
	return m
}

func userFromModel(m UserModel) *domain.User {
	u := &domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		LastLogin:    m.LastLogin,
		Active:       m.IsActive,
	}
	if m.Email != nil {
		u.Email = *m.Email
	}
	return u
}

func sentEmailToModel(r *domain.DispatchRecord) SentEmailModel {
	m := SentEmailModel{
		ID:             r.ID,
		UserID:         r.UserID,
		RecipientEmail: r.RecipientEmail,
		RecipientName:  r.RecipientName,
		Edition:        string(r.Edition),
		PurchaseDate:   r.PurchaseDate,
		SentAt:         r.SentAt,
		MessageID:      r.MessageID,
		TransactionID:  r.TransactionID,
		Status:         string(r.Status),
		ErrorMessage:   r.ErrorMessage,
	}
	if r.Digital != nil {
		m.DigitalLink = &r.Digital.Link
		m.DigitalUsername = &r.Digital.Username
		m.DigitalPassword = &r.Digital.Password
	}
	return m
}

func sentEmailFromModel(m SentEmailModel) domain.DispatchRecord {
	r := domain.DispatchRecord{
		ID:             m.ID,
		UserID:         m.UserID,
		SentBy:         m.User.Username,
		RecipientEmail: m.RecipientEmail,
		RecipientName:  m.RecipientName,
		Edition:        domain.Edition(m.Edition),
		PurchaseDate:   m.PurchaseDate,
		SentAt:         m.SentAt,
		MessageID:      m.MessageID,
		TransactionID:  m.TransactionID,
		Status:         domain.DispatchStatus(m.Status),
		ErrorMessage:   m.ErrorMessage,
	}
	if m.DigitalLink != nil || m.DigitalUsername != nil || m.DigitalPassword != nil {
		r.Digital = &domain.DigitalAccess{
			Link:     deref(m.DigitalLink),
			Username: deref(m.DigitalUsername),
			Password: deref(m.DigitalPassword),
		}
	}
	return r
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
