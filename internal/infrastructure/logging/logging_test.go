package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/defectctl/internal/domain"
)

func TestFileName(t *testing.T) {
	r := domain.MustDateRange("2024-01-01", "2024-01-31")
	tests := []struct {
		pillar string
		want   string
	}{
		{"", "defects.20240101.20240131.log"},
		{domain.AllPillars, "defects.20240101.20240131.log"},
		{"qe", "defects.20240101.20240131.qe.log"},
		{"web/mobile", "defects.20240101.20240131.web_mobile.log"},
	}
	for _, tt := range tests {
		if got := FileName(r, tt.pillar); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.pillar, got, tt.want)
		}
	}
	if got := FileName(domain.DateRange{}, "qe"); got != "defects.qe.log" {
		t.Errorf("FileName without range = %q", got)
	}
}

func TestOpen_ConsoleOnlyShowsWarnings(t *testing.T) {
	var stderr bytes.Buffer
	logger, closer, err := Open(Options{Stderr: &stderr})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closer.Close()

	logger.Info("fetched defects", "count", 3)
	logger.Warn("unmapped status", "label", "blocked")

	out := stderr.String()
	if strings.Contains(out, "fetched defects") {
		t.Errorf("info records must not reach the console: %s", out)
	}
	if !strings.Contains(out, "label=blocked") {
		t.Errorf("expected warning on console, got: %s", out)
	}
}

func TestOpen_FileReceivesInfoAndDebug(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	logger, closer, err := Open(Options{Debug: true, Stderr: &stderr, Dir: dir, File: "defects.log"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	logger.With("pillar", "qe").Debug("jira response", "status", 200)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "defects.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, out := range []string{string(data), stderr.String()} {
		if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "pillar=qe") {
			t.Errorf("expected debug record with pillar attr, got: %s", out)
		}
	}
}

func TestOpen_JSONFormat(t *testing.T) {
	var stderr bytes.Buffer
	logger, closer, err := Open(Options{Format: "json", Stderr: &stderr})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closer.Close()

	logger.Error("run failed")
	if !strings.Contains(stderr.String(), `"level":"ERROR"`) {
		t.Errorf("expected JSON output, got: %s", stderr.String())
	}
}

func TestOpen_RejectsEscapingFileName(t *testing.T) {
	if _, _, err := Open(Options{Dir: t.TempDir(), File: "../defects.log"}); err == nil {
		t.Fatal("expected error for file name with separators")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("dropped")
}
