package handler

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/magstore/email-receipts/internal/api/view"
	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

const defaultMaxCSVBytes = 1 << 20

type DispatchHandler struct {
	svc         ports.DispatchService
	maxCSVBytes int64
	log         zerolog.Logger
}

func NewDispatchHandler(svc ports.DispatchService, maxCSVBytes int64, log zerolog.Logger) *DispatchHandler {
	if maxCSVBytes <= 0 {
		maxCSVBytes = defaultMaxCSVBytes
	}
	return &DispatchHandler{svc: svc, maxCSVBytes: maxCSVBytes, log: log}
}

// receiptForm is the single-send payload, shared by the HTML form and the
// JSON API.
type receiptForm struct {
	Email        string `form:"email"         json:"email"`
	Name         string `form:"name"          json:"name"`
	PurchaseDate string `form:"purchase_date" json:"purchase_date"`
	Edition      string `form:"edition"       json:"edition"`
	Link         string `form:"link"          json:"link"`
	Username     string `form:"username"      json:"username"`
	Password     string `form:"password"      json:"password"`
}

func (f receiptForm) sanitized() receiptForm {
	return receiptForm{
		Email:        sanitize(f.Email, maxInputLen),
		Name:         sanitize(f.Name, maxInputLen),
		PurchaseDate: sanitize(f.PurchaseDate, maxInputLen),
		Edition:      sanitize(f.Edition, maxInputLen),
		Link:         sanitize(f.Link, maxInputLen),
		Username:     sanitize(f.Username, maxInputLen),
		Password:     sanitize(f.Password, maxInputLen),
	}
}

func (f receiptForm) input() ports.ReceiptInput {
	return ports.ReceiptInput{
		Email:        f.Email,
		Name:         f.Name,
		PurchaseDate: f.PurchaseDate,
		Edition:      f.Edition,
		Digital:      &domain.DigitalAccess{Link: f.Link, Username: f.Username, Password: f.Password},
	}
}

type sendSingleView struct {
	Form   receiptForm
	Result *domain.DispatchRecord
}

type sendBulkView struct {
	Result *ports.BulkResult
}

func (h *DispatchHandler) page(c echo.Context, title string, content any, flashes ...view.Flash) view.Page {
	p := newPage(c, title, content, flashes...)
	p.ProviderConfigured = h.svc.ProviderConfigured()
	return p
}

// Index renders the dashboard.
//
// @Summary      Dashboard
// @Tags         pages
// @Produce      html
// @Success      200
// @Router       / [get]
func (h *DispatchHandler) Index(c echo.Context) error {
	return c.Render(http.StatusOK, view.PageIndex, h.page(c, "Dashboard", nil))
}

// SendSingleForm renders the single-recipient form.
//
// @Summary      Single-send form
// @Tags         dispatch
// @Produce      html
// @Success      200
// @Router       /send-single [get]
func (h *DispatchHandler) SendSingleForm(c echo.Context) error {
	return c.Render(http.StatusOK, view.PageSendSingle, h.page(c, "Send a receipt", sendSingleView{Form: receiptForm{Edition: string(domain.EditionPrint)}}))
}

// SendSingle validates the form, sends one receipt and records the attempt.
//
// @Summary      Send one receipt
// @Tags         dispatch
// @Accept       x-www-form-urlencoded
// @Produce      html
// @Param        email          formData  string  true   "Recipient email"
// @Param        name           formData  string  true   "Recipient name"
// @Param        purchase_date  formData  string  true   "Purchase date"
// @Param        edition        formData  string  true   "digital or print"
// @Param        link           formData  string  false  "Digital access link"
// @Param        username       formData  string  false  "Digital login username"
// @Param        password       formData  string  false  "Digital login password"
// @Success      200
// @Failure      400
// @Router       /send-single [post]
func (h *DispatchHandler) SendSingle(c echo.Context) error {
	userID, _, err := sessionUser(c)
	if err != nil {
		return err
	}

	var form receiptForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	form = form.sanitized()

	rec, err := h.svc.SendSingle(c.Request().Context(), userID, form.input())
	if errors.Is(err, domain.ErrValidation) {
		return c.Render(http.StatusBadRequest, view.PageSendSingle,
			h.page(c, "Send a receipt", sendSingleView{Form: form}, flashError(validationMessage(err))))
	}
	if err != nil {
		return err
	}

	if rec.Status != domain.StatusSuccess {
		return c.Render(http.StatusOK, view.PageSendSingle,
			h.page(c, "Send a receipt", sendSingleView{Form: form, Result: rec},
				flashError(fmt.Sprintf("Failed to send email to %s", rec.RecipientEmail))))
	}
	return c.Render(http.StatusOK, view.PageSendSingle,
		h.page(c, "Send a receipt", sendSingleView{Form: receiptForm{Edition: form.Edition}, Result: rec},
			flashSuccess(fmt.Sprintf("Email successfully sent to %s", rec.RecipientEmail))))
}

// SendBulkForm renders the CSV upload form.
//
// @Summary      Bulk-send form
// @Tags         dispatch
// @Produce      html
// @Success      200
// @Router       /send-bulk [get]
func (h *DispatchHandler) SendBulkForm(c echo.Context) error {
	return c.Render(http.StatusOK, view.PageSendBulk, h.page(c, "Bulk send", sendBulkView{}))
}

// SendBulk sends one receipt per CSV row and records every row.
//
// @Summary      Send receipts from a CSV upload
// @Tags         dispatch
// @Accept       multipart/form-data
// @Produce      html
// @Param        csv_file  formData  file  true  "email,name,purchase_date,edition,link,username,password"
// @Success      200
// @Failure      400
// @Router       /send-bulk [post]
func (h *DispatchHandler) SendBulk(c echo.Context) error {
	userID, _, err := sessionUser(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("csv_file")
	if err != nil {
		return h.bulkError(c, "No file uploaded")
	}
	if strings.TrimSpace(fh.Filename) == "" {
		return h.bulkError(c, "No file selected")
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
		return h.bulkError(c, "Only CSV files are allowed")
	}
	if fh.Size > h.maxCSVBytes {
		return h.bulkError(c, fmt.Sprintf("CSV file is too large (max %d KB)", h.maxCSVBytes/1024))
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	rows, err := parseBulkCSV(f)
	if err != nil {
		h.log.Info().Err(err).Str("file", fh.Filename).Msg("bulk upload rejected")
		return h.bulkError(c, "Error processing file: "+err.Error())
	}
	if len(rows) == 0 {
		return h.bulkError(c, "The CSV file has no recipient rows")
	}

	result, err := h.svc.SendBulk(c.Request().Context(), userID, rows)
	if err != nil {
		return err
	}

	flash := flashSuccess(fmt.Sprintf("Bulk email completed: %d sent, %d failed", result.Success, result.Failed))
	if result.Failed > 0 {
		flash.Kind = "info"
	}
	return c.Render(http.StatusOK, view.PageSendBulk, h.page(c, "Bulk send", sendBulkView{Result: result}, flash))
}

func (h *DispatchHandler) bulkError(c echo.Context, msg string) error {
	return c.Render(http.StatusBadRequest, view.PageSendBulk, h.page(c, "Bulk send", sendBulkView{}, flashError(msg)))
}

type apiSendResponse struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	MessageID     *string `json:"message_id"`
	TransactionID *string `json:"transaction_id"`
	Error         string  `json:"error,omitempty"`
}

// APISendEmail is the JSON equivalent of SendSingle.
//
// @Summary      Send one receipt (JSON)
// @Tags         api
// @Accept       json
// @Produce      json
// @Param        body  body      receiptForm  true  "Receipt"
// @Success      200   {object}  apiSendResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      502   {object}  apiSendResponse
// @Router       /api/send-email [post]
func (h *DispatchHandler) APISendEmail(c echo.Context) error {
	userID, _, err := sessionUser(c)
	if err != nil {
		return err
	}

	// The JSON API is not covered by the form CSRF token, so only bodies a
	// cross-site form cannot produce are accepted.
	if mediaType, _, err := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType)); err != nil || mediaType != echo.MIMEApplicationJSON {
		return c.JSON(http.StatusUnsupportedMediaType, map[string]string{"error": "Content-Type must be application/json"})
	}

	var req receiptForm
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
	}

	rec, err := h.svc.SendSingle(c.Request().Context(), userID, req.sanitized().input())
	if errors.Is(err, domain.ErrValidation) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
	}
	if err != nil {
		return err
	}

	resp := apiSendResponse{
		ID:            rec.ID,
		Status:        string(rec.Status),
		MessageID:     rec.MessageID,
		TransactionID: rec.TransactionID,
	}
	if rec.Status != domain.StatusSuccess {
		if rec.ErrorMessage != nil {
			resp.Error = *rec.ErrorMessage
		}
		return c.JSON(http.StatusBadGateway, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// validationMessage strips the sentinel prefix from a validation error.
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
}
