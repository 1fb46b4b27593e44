package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/magstore/email-receipts/internal/api/view"
	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

const dateLayout = "2006-01-02"

var exportHeader = []string{
	"id", "recipient_email", "recipient_name", "purchase_date", "edition",
	"digital_link", "digital_username", "digital_password",
	"sent_at", "transaction_id", "status", "error_message", "sent_by",
}

type HistoryHandler struct {
	svc ports.DispatchService
	log zerolog.Logger
	now func() time.Time
}

func NewHistoryHandler(svc ports.DispatchService, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{svc: svc, log: log, now: time.Now}
}

// historyQuery is the raw query string of the list and export views.
type historyQuery struct {
	Status   string `query:"status"`
	DateFrom string `query:"date_from"`
	DateTo   string `query:"date_to"`
	Search   string `query:"search"`
	Page     string `query:"page"`
	PerPage  string `query:"per_page"`
}

type sentEmailsView struct {
	Items          []domain.DispatchRecord
	Filter         historyQuery
	Total          int64
	Page           int
	PerPage        int
	TotalPages     int
	HasPrev        bool
	HasNext        bool
	PrevURL        string
	NextURL        string
	ExportURL      string
	PerPageOptions []int
}

// List renders one page of the sent-email log.
//
// @Summary      Sent-email log
// @Tags         history
// @Produce      html
// @Param        status     query  string  false  "success or failed"
// @Param        date_from  query  string  false  "YYYY-MM-DD, inclusive"
// @Param        date_to    query  string  false  "YYYY-MM-DD, inclusive"
// @Param        search     query  string  false  "Recipient email or name contains"
// @Param        page       query  int     false  "1-based page"
// @Param        per_page   query  int     false  "20, 50 or 100"
// @Success      200
// @Router       /sent-emails [get]
func (h *HistoryHandler) List(c echo.Context) error {
	q, err := bindHistoryQuery(c)
	if err != nil {
		return err
	}
	filter, clean, flashes := parseHistoryFilter(q)

	page, _ := strconv.Atoi(q.Page)
	perPage, _ := strconv.Atoi(q.PerPage)
	res, err := h.svc.History(c.Request().Context(), ports.HistoryInput{Filter: filter, Page: page, PerPage: perPage})
	if err != nil {
		return err
	}

	v := sentEmailsView{
		Items:          res.Items,
		Filter:         clean,
		Total:          res.Total,
		Page:           res.Page,
		PerPage:        res.PerPage,
		TotalPages:     max(res.TotalPages, 1),
		HasPrev:        res.Page > 1,
		HasNext:        res.Page < res.TotalPages,
		ExportURL:      "/sent-emails/export?" + filterValues(clean).Encode(),
		PerPageOptions: ports.PageSizes,
	}
	if v.HasPrev {
		v.PrevURL = pageURL(clean, res.Page-1, res.PerPage)
	}
	if v.HasNext {
		v.NextURL = pageURL(clean, res.Page+1, res.PerPage)
	}

	p := newPage(c, "Sent emails", v, flashes...)
	p.ProviderConfigured = h.svc.ProviderConfigured()
	return c.Render(http.StatusOK, view.PageSentEmails, p)
}

// Export streams every row matching the list filters as CSV.
//
// @Summary      Export the sent-email log
// @Tags         history
// @Produce      text/csv
// @Param        status     query  string  false  "success or failed"
// @Param        date_from  query  string  false  "YYYY-MM-DD, inclusive"
// @Param        date_to    query  string  false  "YYYY-MM-DD, inclusive"
// @Param        search     query  string  false  "Recipient email or name contains"
// @Success      200
// @Router       /sent-emails/export [get]
func (h *HistoryHandler) Export(c echo.Context) error {
	q, err := bindHistoryQuery(c)
	if err != nil {
		return err
	}
	filter, _, _ := parseHistoryFilter(q)

	rows, err := h.svc.Export(c.Request().Context(), filter)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("sent_emails_%s.csv", h.now().UTC().Format("20060102_150405"))
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	res.WriteHeader(http.StatusOK)

	w := csv.NewWriter(res)
	if err := w.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(exportRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.log.Error().Err(err).Int("rows", len(rows)).Msg("export write failed")
		return err
	}
	h.log.Info().Int("rows", len(rows)).Msg("sent emails exported")
	return nil
}

func bindHistoryQuery(c echo.Context) (historyQuery, error) {
	var q historyQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return q, echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	return q, nil
}

// parseHistoryFilter turns the raw query into a filter. Unusable values are
// dropped from the returned query and reported as flashes.
func parseHistoryFilter(q historyQuery) (ports.SentEmailFilter, historyQuery, []view.Flash) {
	var (
		f       ports.SentEmailFilter
		clean   historyQuery
		flashes []view.Flash
	)

	switch domain.DispatchStatus(q.Status) {
	case domain.StatusSuccess, domain.StatusFailed:
		f.Status = domain.DispatchStatus(q.Status)
		clean.Status = q.Status
	}

	if s := sanitize(q.DateFrom, maxInputLen); s != "" {
		if t, err := time.Parse(dateLayout, s); err == nil {
			f.DateFrom = t
			clean.DateFrom = s
		} else {
			flashes = append(flashes, flashInfo("Ignoring invalid start date: "+s))
		}
	}
	if s := sanitize(q.DateTo, maxInputLen); s != "" {
		if t, err := time.Parse(dateLayout, s); err == nil {
			f.DateTo = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
			clean.DateTo = s
		} else {
			flashes = append(flashes, flashInfo("Ignoring invalid end date: "+s))
		}
	}

	clean.Search = sanitize(q.Search, maxInputLen)
	f.Search = clean.Search
	return f, clean, flashes
}

func filterValues(q historyQuery) url.Values {
	v := url.Values{}
	for k, s := range map[string]string{
		"status":    q.Status,
		"date_from": q.DateFrom,
		"date_to":   q.DateTo,
		"search":    q.Search,
	} {
		if s != "" {
			v.Set(k, s)
		}
	}
	return v
}

func pageURL(q historyQuery, page, perPage int) string {
	v := filterValues(q)
	v.Set("page", strconv.Itoa(page))
	v.Set("per_page", strconv.Itoa(perPage))
	return "/sent-emails?" + v.Encode()
}

func exportRow(r domain.DispatchRecord) []string {
	var link, user, pass string
	if r.Digital != nil {
		link, user, pass = r.Digital.Link, r.Digital.Username, r.Digital.Password
	}
	row := []string{
		r.ID,
		r.RecipientEmail,
		r.RecipientName,
		r.PurchaseDate,
		string(r.Edition),
		link,
		user,
		pass,
		r.SentAt.UTC().Format("2006-01-02 15:04:05"),
		deref(r.TransactionID),
		string(r.Status),
		deref(r.ErrorMessage),
		r.SentBy,
	}
	for i := range row {
		row[i] = csvCell(row[i])
	}
	return row
}

// csvCell stops spreadsheets from evaluating a cell as a formula by
// prefixing a quote to values that start with a formula trigger.
func csvCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
