// Package statement reads bank statements exported as CSV.
package statement

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// Line is one parsed statement row. Amount is a magnitude; Kind carries the
// direction.
type Line struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Kind        ledger.Kind
}

// ErrNoHeader is returned when the first row has no recognizable columns.
var ErrNoHeader = errors.New("statement has no date/description/amount header")

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02.01.2006",
	"2006/01/02",
	"02-01-2006",
	"2 Jan 2006",
	"02 Jan 2006",
}

var headerAliases = map[string]string{
	"date":             "date",
	"transaction date": "date",
	"booking date":     "date",
	"description":      "description",
	"details":          "description",
	"memo":             "description",
	"payee":            "description",
	"narrative":        "description",
	"amount":           "amount",
	"value":            "amount",
	"type":             "type",
	"kind":             "type",
	"paid in":          "credit",
	"credit":           "credit",
	"money in":         "credit",
	"paid out":         "debit",
	"debit":            "debit",
	"money out":        "debit",
}

type columns map[string]int

func (c columns) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// Parse reads a CSV statement. The separator (comma or semicolon) is taken
// from the header row. Amounts come either from a signed amount column, an
// amount column plus a type column, or separate paid in/paid out columns.
// Blank rows are skipped; the first malformed row aborts the parse.
func Parse(r io.Reader) ([]Line, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Parse: read: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	sep := detectSeparator(data)
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("Parse: header: %w", err)
	}

	cols := columns{}
	for i, h := range header {
		if name, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := cols[name]; !dup {
				cols[name] = i
			}
		}
	}
	_, hasAmount := cols["amount"]
	_, hasDebit := cols["debit"]
	_, hasCredit := cols["credit"]
	if _, ok := cols["date"]; !ok || (!hasAmount && !hasDebit && !hasCredit) {
		return nil, ErrNoHeader
	}

	var lines []Line
	row := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("Parse: row %d: %w", row, err)
		}
		if isBlank(record) {
			continue
		}

		line, err := parseRecord(cols, record, sep)
		if err != nil {
			return nil, fmt.Errorf("Parse: row %d: %w", row, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func parseRecord(cols columns, record []string, sep rune) (Line, error) {
	date, err := parseDate(cols.get(record, "date"))
	if err != nil {
		return Line{}, err
	}

	line := Line{Date: date, Description: cols.get(record, "description")}

	if raw := cols.get(record, "amount"); raw != "" {
		amount, err := parseAmount(raw, sep)
		if err != nil {
			return Line{}, err
		}
		line.Kind = ledger.KindIncome
		if amount.IsNegative() {
			line.Kind = ledger.KindExpense
		}
		if t := cols.get(record, "type"); t != "" {
			kind, err := ledger.ParseKind(normalizeType(t))
			if err != nil {
				return Line{}, fmt.Errorf("type %q: %w", t, err)
			}
			line.Kind = kind
		}
		line.Amount = amount.Abs()
		return line, nil
	}

	if raw := cols.get(record, "debit"); raw != "" {
		amount, err := parseAmount(raw, sep)
		if err != nil {
			return Line{}, err
		}
		line.Amount, line.Kind = amount.Abs(), ledger.KindExpense
		return line, nil
	}
	if raw := cols.get(record, "credit"); raw != "" {
		amount, err := parseAmount(raw, sep)
		if err != nil {
			return Line{}, err
		}
		line.Amount, line.Kind = amount.Abs(), ledger.KindIncome
		return line, nil
	}
	return Line{}, fmt.Errorf("no amount")
}

func normalizeType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "debit", "dr", "out", "withdrawal":
		return string(ledger.KindExpense)
	case "credit", "cr", "in", "deposit":
		return string(ledger.KindIncome)
	}
	return t
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseAmount accepts "1234.56", "-12", "1,234.56", "£12.00" and, in
// semicolon files, the decimal comma form "1.234,56".
func parseAmount(s string, sep rune) (decimal.Decimal, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '£', '€', '$', '\'':
			return -1
		}
		return r
	}, s)

	negative := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		negative = true
		clean = strings.Trim(clean, "()")
	}

	if sep == ';' && strings.Contains(clean, ",") {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	} else {
		clean = strings.ReplaceAll(clean, ",", "")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognized amount %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func detectSeparator(data []byte) rune {
	first, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	if strings.Count(first, ";") > strings.Count(first, ",") {
		return ';'
	}
	return ','
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
