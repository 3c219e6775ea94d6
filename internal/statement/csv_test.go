package statement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/vault-ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Line
	}{
		{
			name:  "signed amount column",
			input: "Date,Description,Amount\n2025-03-01,TESCO STORES,-23.45\n2025-03-02,SALARY ACME,2500\n",
			want: []Line{
				{Date: day(2025, 3, 1), Description: "TESCO STORES", Amount: dec("23.45"), Kind: ledger.KindExpense},
				{Date: day(2025, 3, 2), Description: "SALARY ACME", Amount: dec("2500"), Kind: ledger.KindIncome},
			},
		},
		{
			name:  "amount with type column",
			input: "date,memo,amount,type\n01/03/2025,Rent,950.00,debit\n05/03/2025,Refund,10,Income\n",
			want: []Line{
				{Date: day(2025, 3, 1), Description: "Rent", Amount: dec("950"), Kind: ledger.KindExpense},
				{Date: day(2025, 3, 5), Description: "Refund", Amount: dec("10"), Kind: ledger.KindIncome},
			},
		},
		{
			name:  "semicolon with decimal comma",
			input: "Booking date;Details;Amount\n01.03.2025;Miete;-1.234,50\n",
			want: []Line{
				{Date: day(2025, 3, 1), Description: "Miete", Amount: dec("1234.5"), Kind: ledger.KindExpense},
			},
		},
		{
			name:  "paid in and paid out columns",
			input: "Date,Description,Paid out,Paid in\n2025-03-01,Coffee,£3.20,\n2025-03-02,Transfer,,\"1,000.00\"\n",
			want: []Line{
				{Date: day(2025, 3, 1), Description: "Coffee", Amount: dec("3.2"), Kind: ledger.KindExpense},
				{Date: day(2025, 3, 2), Description: "Transfer", Amount: dec("1000"), Kind: ledger.KindIncome},
			},
		},
		{
			name:  "blank rows and BOM",
			input: "\xef\xbb\xbfDate,Description,Amount\n\n2025-03-01,x,(5)\n,,\n",
			want: []Line{
				{Date: day(2025, 3, 1), Description: "x", Amount: dec("5"), Kind: ledger.KindExpense},
			},
		},
		{
			name:  "header only",
			input: "Date,Description,Amount\n",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d lines, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range got {
				g, w := got[i], tt.want[i]
				if !g.Date.Equal(w.Date) || g.Description != w.Description || !g.Amount.Equal(w.Amount) || g.Kind != w.Kind {
					t.Errorf("line %d = %+v, want %+v", i, g, w)
				}
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		noHdr bool
	}{
		{name: "no header", input: "foo,bar\n1,2\n", noHdr: true},
		{name: "bad date", input: "Date,Amount\nyesterday,5\n"},
		{name: "bad amount", input: "Date,Amount\n2025-01-01,five\n"},
		{name: "bad type", input: "Date,Amount,Type\n2025-01-01,5,transfer\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("Expected error")
			}
			if tt.noHdr && !errors.Is(err, ErrNoHeader) {
				t.Errorf("Expected ErrNoHeader, got %v", err)
			}
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://statements/2025/march.csv")
	if err != nil {
		t.Fatalf("ParseGCSURI failed: %v", err)
	}
	if bucket != "statements" || object != "2025/march.csv" {
		t.Errorf("Got %q %q", bucket, object)
	}

	for _, bad := range []string{"s3://x/y", "gs://bucket", "gs:///obj"} {
		if _, _, err := ParseGCSURI(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("gs://b/folder/file.csv"); got != "file.csv" {
		t.Errorf("FileName = %q", got)
	}
	if got := FileName("/tmp/local.csv"); got != "local.csv" {
		t.Errorf("FileName = %q", got)
	}
}

func TestFetcher_LocalFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "s.csv")
	if err := os.WriteFile(p, []byte("Date,Amount\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	data, err := NewFetcher().Fetch(context.Background(), p)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "Date,Amount\n" {
		t.Errorf("Unexpected content %q", data)
	}

	if _, err := NewFetcher().Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
