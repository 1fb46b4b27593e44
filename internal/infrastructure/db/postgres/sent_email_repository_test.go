package postgres

import (
	"strings"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

// dryRunDB builds SQL without ever opening a connection.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=test dbname=test sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func listSQL(db *gorm.DB, f ports.SentEmailFilter, page, pageSize int) string {
	return db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var models []SentEmailModel
		return pageQuery(tx, f, page, pageSize).Find(&models)
	})
}

func TestPageQuery_NoFilter(t *testing.T) {
	sql := listSQL(dryRunDB(t), ports.SentEmailFilter{}, 1, 20)

	if !strings.Contains(sql, `FROM "sent_emails"`) {
		t.Fatalf("expected sent_emails table, got %s", sql)
	}
	if strings.Contains(sql, "WHERE") {
		t.Fatalf("expected no WHERE clause, got %s", sql)
	}
	if !strings.Contains(sql, "ORDER BY "+sentEmailOrder) {
		t.Fatalf("expected most-recent-first ordering, got %s", sql)
	}
	if !strings.Contains(sql, "LIMIT 20") {
		t.Fatalf("expected LIMIT 20, got %s", sql)
	}
}

func TestPageQuery_Offset(t *testing.T) {
	sql := listSQL(dryRunDB(t), ports.SentEmailFilter{}, 3, 50)
	if !strings.Contains(sql, "LIMIT 50") || !strings.Contains(sql, "OFFSET 100") {
		t.Fatalf("expected LIMIT 50 OFFSET 100, got %s", sql)
	}
}

func TestPageQuery_UnpaginatedMatchesExportShape(t *testing.T) {
	db := dryRunDB(t)
	f := ports.SentEmailFilter{Status: domain.StatusFailed, Search: "ann"}

	paged := listSQL(db, f, 1, 0)
	export := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var models []SentEmailModel
		return listQuery(tx, f).Find(&models)
	})

	if paged != export {
		t.Fatalf("expected identical SQL\nquery:  %s\nexport: %s", paged, export)
	}
	if strings.Contains(export, "LIMIT") {
		t.Fatalf("export must not paginate: %s", export)
	}
}

func TestApplySentEmailFilter_AllFilters(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	sql := listSQL(dryRunDB(t), ports.SentEmailFilter{
		Status:   domain.StatusSuccess,
		DateFrom: from,
		DateTo:   to,
		Search:   "  John ",
	}, 1, 20)

	for _, want := range []string{
		"sent_emails.status = 'success'",
		"sent_emails.sent_at >= '2024-01-01 00:00:00",
		"sent_emails.sent_at <= '2024-01-31 23:59:59",
		"LOWER(sent_emails.recipient_email) LIKE '%john%'",
		"LOWER(sent_emails.recipient_name) LIKE '%john%'",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected %q in %s", want, sql)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	cases := map[string]string{
		"plain":   "plain",
		"50%":     `50\%`,
		"a_b":     `a\_b`,
		`back\sl`: `back\\sl`,
	}
	for in, want := range cases {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSentEmailModelRoundTrip(t *testing.T) {
	msgID := "<abc123@smtp-relay.example>"
	rec := &domain.DispatchRecord{
		ID:             "id-1",
		UserID:         "u1",
		RecipientEmail: "jane@example.com",
		RecipientName:  "Jane",
		Edition:        domain.EditionDigital,
		PurchaseDate:   "2025-02-01",
		Digital:        &domain.DigitalAccess{Link: "https://x", Username: "jane", Password: "pw"},
		MessageID:      &msgID,
		TransactionID:  domain.ExtractTransactionID(msgID),
		Status:         domain.StatusSuccess,
	}

	m := sentEmailToModel(rec)
	if m.DigitalLink == nil || *m.DigitalLink != "https://x" {
		t.Fatalf("digital link not mapped: %+v", m)
	}
	m.User = UserModel{Username: "admin"}

	got := sentEmailFromModel(m)
	if got.SentBy != "admin" {
		t.Fatalf("expected sent_by admin, got %q", got.SentBy)
	}
	if got.Digital == nil || got.Digital.Link == "" || got.Digital.Password != "pw" {
		t.Fatalf("digital fields lost: %+v", got.Digital)
	}
	if got.TransactionID == nil || *got.TransactionID != "abc123" {
		t.Fatalf("transaction id lost: %v", got.TransactionID)
	}

	printRec := sentEmailToModel(&domain.DispatchRecord{Edition: domain.EditionPrint, Status: domain.StatusSuccess})
	if printRec.DigitalLink != nil || printRec.DigitalUsername != nil || printRec.DigitalPassword != nil {
		t.Fatalf("print record must not carry digital columns: %+v", printRec)
	}
	if sentEmailFromModel(printRec).Digital != nil {
		t.Fatalf("print record must map back without digital access")
	}
}

func TestUserModelEmailOptional(t *testing.T) {
	m := userToModel(&domain.User{ID: "u1", Username: "admin", Active: true})
	if m.Email != nil {
		t.Fatalf("empty email must be stored as NULL")
	}
	if !m.IsActive {
		t.Fatalf("active flag lost")
	}
	if u := userFromModel(m); u.Email != "" || !u.Active {
		t.Fatalf("unexpected user: %+v", u)
	}
}
