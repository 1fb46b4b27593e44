package domain

import (
	"errors"
	"strings"
	"time"
)

// Edition is the kind of purchase a receipt is issued for.
type Edition string

const (
	EditionDigital Edition = "digital"
	EditionPrint   Edition = "print"
)

// ParseEdition accepts exactly "digital" or "print".
func ParseEdition(s string) (Edition, bool) {
	switch Edition(s) {
	case EditionDigital, EditionPrint:
		return Edition(s), true
	default:
		return "", false
	}
}

// Label is the human-readable edition name used in emails and pages.
func (e Edition) Label() string {
	switch e {
	case EditionDigital:
		return "Digital"
	case EditionPrint:
		return "Print"
	default:
		return string(e)
	}
}

// DispatchStatus is the outcome of one dispatch attempt.
type DispatchStatus string

const (
	StatusSuccess DispatchStatus = "success"
	StatusFailed  DispatchStatus = "failed"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrInvalidEdition = errors.New("edition must be digital or print")
	ErrStorage        = errors.New("storage unavailable")

	ErrProviderTimeout       = errors.New("email provider timed out")
	ErrProviderNotConfigured = errors.New("email provider is not configured")
)

// DigitalAccess carries the credentials handed out with a digital edition.
type DigitalAccess struct {
	Link     string `json:"link"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Outcome is the normalised result of a single provider call.
type Outcome struct {
	Status    DispatchStatus
	MessageID string
	Error     string
}

// DispatchRecord is one row of the sent-email audit log. Rows are written
// once, right after the attempt, and never modified.
type DispatchRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	SentBy         string         `json:"sent_by,omitempty"`
	RecipientEmail string         `json:"recipient_email"`
	RecipientName  string         `json:"recipient_name"`
	Edition        Edition        `json:"edition"`
	PurchaseDate   string         `json:"purchase_date"`
	Digital        *DigitalAccess `json:"digital,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
	MessageID      *string        `json:"message_id,omitempty"`
	TransactionID  *string        `json:"transaction_id,omitempty"`
	Status         DispatchStatus `json:"status"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
}

// ExtractTransactionID derives the short transaction id from a provider
// message id of the form "<token@domain>". Any other shape yields nil.
func ExtractTransactionID(messageID string) *string {
	rest, ok := strings.CutPrefix(messageID, "<")
	if !ok {
		return nil
	}
	token, _, ok := strings.Cut(rest, "@")
	if !ok || token == "" {
		return nil
	}
	return &token
}
