package parsers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvTable is a header-addressed CSV file.
type csvTable struct {
	columns map[string]int
	rows    [][]string
}

func readCSV(content []byte) (*csvTable, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("file is empty")
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	t := &csvTable{columns: make(map[string]int, len(header))}
	for i, h := range header {
		t.columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading rows: %w", err)
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func (t *csvTable) has(cols ...string) bool {
	for _, c := range cols {
		if _, ok := t.columns[c]; !ok {
			return false
		}
	}
	return true
}

func (t *csvTable) get(row []string, col string) string {
	i, ok := t.columns[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// detectCSV picks a format from the header row.
func (t *csvTable) detect() BankType {
	switch {
	case t.has("date", "description", "type", "amount", "status"):
		return BankSoFi
	case t.has("transaction date", "description", "debit", "credit"):
		return BankCapitalOne
	}
	return bankUnknown
}

// parseSoFi reads Date, Description, Type, Amount, Current balance, Status.
// Rows that are not posted are skipped.
func parseSoFi(t *csvTable, log zerolog.Logger) ([]rawRow, int) {
	var out []rawRow
	skipped := 0
	for i, row := range t.rows {
		if !strings.EqualFold(t.get(row, "status"), "posted") {
			skipped++
			continue
		}
		date, err := parseDate(t.get(row, "date"))
		if err != nil {
			log.Warn().Err(err).Int("row", i+2).Msg("Skipping SoFi row")
			skipped++
			continue
		}
		amount, err := parseAmount(t.get(row, "amount"))
		if err != nil {
			log.Warn().Err(err).Int("row", i+2).Msg("Skipping SoFi row")
			skipped++
			continue
		}
		out = append(out, rawRow{
			date:         date,
			description:  t.get(row, "description"),
			originalType: t.get(row, "type"),
			amount:       amount,
			bank:         BankSoFi,
		})
	}
	return out, skipped
}

// parseCapitalOne reads Transaction Date, Posted Date, Card No.,
// Description, Category, Debit, Credit. A row with neither debit nor credit
// is skipped.
func parseCapitalOne(t *csvTable, log zerolog.Logger) ([]rawRow, int) {
	var out []rawRow
	skipped := 0
	for i, row := range t.rows {
		date, err := parseDate(t.get(row, "transaction date"))
		if err != nil {
			log.Warn().Err(err).Int("row", i+2).Msg("Skipping Capital One row")
			skipped++
			continue
		}
		debit, derr := parseAmount(t.get(row, "debit"))
		credit, cerr := parseAmount(t.get(row, "credit"))
		if err := errors.Join(derr, cerr); err != nil {
			log.Warn().Err(err).Int("row", i+2).Msg("Skipping Capital One row")
			skipped++
			continue
		}

		category := t.get(row, "category")
		r := rawRow{date: date, description: t.get(row, "description"), bank: BankCapitalOne}
		switch {
		case debit.IsPositive():
			r.amount = debit.Neg()
			r.originalType = firstNonEmpty(category, "Purchase")
		case credit.IsPositive():
			r.amount = credit
			r.originalType = firstNonEmpty(category, "Payment")
		default:
			skipped++
			continue
		}
		out = append(out, r)
	}
	return out, skipped
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
