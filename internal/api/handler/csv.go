package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

// ErrCSVHeader means the upload has no usable header row.
var ErrCSVHeader = errors.New("invalid CSV header")

var requiredColumns = []string{"email", "name", "purchase_date", "edition"}

// parseBulkCSV reads an uploaded recipient list. The header row is required
// and matched case-insensitively; column order is free. Rows the CSV reader
// cannot parse are returned with ParseError set so they are still recorded.
func parseBulkCSV(r io.Reader) ([]ports.BulkRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: file is empty", ErrCSVHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCSVHeader, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing column(s) %s", ErrCSVHeader, strings.Join(missing, ", "))
	}

	var rows []ports.BulkRow
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			rows = append(rows, ports.BulkRow{Line: pe.StartLine, ParseError: pe.Err.Error()})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		if blank(record) {
			continue
		}

		line, _ := cr.FieldPos(0)
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return sanitize(record[i], maxInputLen)
		}
		rows = append(rows, ports.BulkRow{
			Line: line,
			Receipt: ports.ReceiptInput{
				Email:        get("email"),
				Name:         get("name"),
				PurchaseDate: get("purchase_date"),
				Edition:      get("edition"),
				Digital: &domain.DigitalAccess{
					Link:     get("link"),
					Username: get("username"),
					Password: get("password"),
				},
			},
		})
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
