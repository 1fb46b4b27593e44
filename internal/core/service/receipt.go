package service

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

//go:embed templates/receipt.html
var receiptFS embed.FS

var receiptTemplate = template.Must(template.ParseFS(receiptFS, "templates/receipt.html"))

// receiptFields is a receipt after trimming, in the shape the validator checks.
type receiptFields struct {
	Email        string `label:"email"         validate:"required,email,max=120"`
	Name         string `label:"name"          validate:"required,max=120"`
	PurchaseDate string `label:"purchase_date" validate:"required,max=50"`
	Edition      string `label:"edition"       validate:"required"`
	Link         string `label:"link"          validate:"required_if=Edition digital,max=500"`
	Username     string `label:"username"      validate:"required_if=Edition digital,max=100"`
	Password     string `label:"password"      validate:"required_if=Edition digital,max=100"`
}

// edition is empty when the raw value is not a known edition.
func (f receiptFields) edition() domain.Edition {
	e, _ := domain.ParseEdition(f.Edition)
	return e
}

// digital returns the access block for digital editions and nil for print.
func (f receiptFields) digital() *domain.DigitalAccess {
	if f.Link == "" && f.Username == "" && f.Password == "" {
		return nil
	}
	return &domain.DigitalAccess{Link: f.Link, Username: f.Username, Password: f.Password}
}

func normalizeReceipt(in ports.ReceiptInput) receiptFields {
	f := receiptFields{
		Email:        strings.TrimSpace(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PurchaseDate: strings.TrimSpace(in.PurchaseDate),
		Edition:      strings.TrimSpace(in.Edition),
	}
	// Digital fields only exist for the digital edition; anything supplied
	// alongside another edition is dropped.
	if in.Digital != nil && f.edition() == domain.EditionDigital {
		f.Link = strings.TrimSpace(in.Digital.Link)
		f.Username = strings.TrimSpace(in.Digital.Username)
		f.Password = strings.TrimSpace(in.Digital.Password)
	}
	return f
}

func newReceiptValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("label"); name != "" {
			return name
		}
		return strings.ToLower(fld.Name)
	})
	return v
}

// validateReceipt checks a normalised receipt. Errors wrap domain.ErrValidation,
// and also domain.ErrInvalidEdition when the edition is unknown.
func validateReceipt(v *validator.Validate, f receiptFields) error {
	var msgs []string
	if err := v.Struct(f); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		for _, fe := range ve {
			msgs = append(msgs, receiptFieldError(fe))
		}
	}

	if f.Edition != "" && f.edition() == "" {
		return fmt.Errorf("%w: %w", domain.ErrValidation, editionError{msgs: msgs})
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}

// editionError lists the other field errors after the edition one.
type editionError struct {
	msgs []string
}

func (e editionError) Error() string {
	return strings.Join(append([]string{domain.ErrInvalidEdition.Error()}, e.msgs...), "; ")
}

func (e editionError) Unwrap() error { return domain.ErrInvalidEdition }

func receiptFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		return field + " is required for digital editions"
	case "email":
		return "invalid email address format"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// ReceiptComposer renders the receipt email for a validated receipt.
type ReceiptComposer struct {
	senderName   string
	magazineName string
	now          func() time.Time
}

func NewReceiptComposer(senderName, magazineName string) *ReceiptComposer {
	return &ReceiptComposer{senderName: senderName, magazineName: magazineName, now: time.Now}
}

type receiptView struct {
	Subject       string
	RecipientName string
	MagazineName  string
	EditionLabel  string
	PurchaseDate  string
	ReceiptDate   string
	SenderName    string
	Digital       *domain.DigitalAccess
}

func (c *ReceiptComposer) Compose(f receiptFields) (ports.EmailMessage, error) {
	view := receiptView{
		Subject:       fmt.Sprintf("Receipt for %s (%s Edition) - %s", c.magazineName, f.edition().Label(), c.senderName),
		RecipientName: f.Name,
		MagazineName:  c.magazineName,
		EditionLabel:  f.edition().Label(),
		PurchaseDate:  f.PurchaseDate,
		ReceiptDate:   c.now().Format("2006-01-02 15:04:05"),
		SenderName:    c.senderName,
		Digital:       f.digital(),
	}

	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, view); err != nil {
		return ports.EmailMessage{}, fmt.Errorf("render receipt: %w", err)
	}

	return ports.EmailMessage{
		ToEmail: f.Email,
		ToName:  f.Name,
		Subject: view.Subject,
		HTML:    buf.String(),
	}, nil
}
