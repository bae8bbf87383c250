package report

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
	"github.com/felixgeelhaar/defectctl/internal/pathutil"
)

// FileName returns the report file name for a pillar run:
// defects.<pillar>.<yyyymmdd>.<yyyymmdd>.bounce.report
func FileName(pillar string, r domain.DateRange) string {
	name := "defects." + pathutil.SafeName(pillar)
	if !r.IsZero() {
		name += "." + r.Compact()
	}
	return name + ".bounce.report"
}

// FileArchive writes the text report of every run into Dir.
type FileArchive struct {
	Dir string
}

var _ application.ReportArchive = FileArchive{}

func (a FileArchive) Save(result application.BounceResult) (string, error) {
	dir := a.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path, err := pathutil.JoinWithin(dir, FileName(result.Pillar, result.Range))
	if err != nil {
		return "", err
	}
	// #nosec G304 -- file name is generated from sanitized pillar name
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := writeText(f, result, false); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
