package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"four digit year", "2024-01-31", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), false},
		{"two digit year", "24-01-31", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), false},
		{"surrounding whitespace", " 2024-02-29 ", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), false},
		{"slashes rejected", "2024/01/31", time.Time{}, true},
		{"invalid day", "2023-02-29", time.Time{}, true},
		{"empty", "", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Fatalf("expected ErrInvalidDate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDateRange(t *testing.T) {
	r := MustDateRange("2024-03-01", "24-03-31")

	if r.Compact() != "20240301.20240331" {
		t.Fatalf("unexpected compact form %s", r.Compact())
	}
	if r.String() != "2024/03/01 - 2024/03/31" {
		t.Fatalf("unexpected string form %s", r.String())
	}
	if !r.Contains(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)) {
		t.Fatal("expected last day to be contained")
	}
	if r.Contains(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected day after end to be excluded")
	}
	if r.IsZero() || !(DateRange{}).IsZero() {
		t.Fatal("unexpected IsZero result")
	}

	if _, err := ParseDateRange("2024-03-31", "2024-03-01"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestDateRangeText(t *testing.T) {
	r := MustDateRange("2024-03-01", "2024-03-31")
	text, err := r.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(text) != "2024-03-01..2024-03-31" {
		t.Fatalf("unexpected text %s", text)
	}

	var decoded DateRange
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != r {
		t.Fatalf("decoded %v, want %v", decoded, r)
	}
	if err := decoded.UnmarshalText([]byte("2024-03-01")); err == nil {
		t.Fatal("expected error for missing separator")
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		part, total int
		want        float64
		str         string
	}{
		{1, 3, 33.3, "33.3%"},
		{2, 3, 66.7, "66.7%"},
		{0, 0, 0, "0.0%"},
		{5, 5, 100, "100.0%"},
	}
	for _, tt := range tests {
		p := PercentageFromRatio(tt.part, tt.total)
		if p.Value() != tt.want {
			t.Errorf("PercentageFromRatio(%d, %d) = %v, want %v", tt.part, tt.total, p.Value(), tt.want)
		}
		if p.String() != tt.str {
			t.Errorf("String() = %s, want %s", p.String(), tt.str)
		}
	}
	if NewPercentage(40).Delta(NewPercentage(25.6)) != 14.4 {
		t.Errorf("unexpected delta %v", NewPercentage(40).Delta(NewPercentage(25.6)))
	}
}
