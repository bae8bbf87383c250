package application

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/felixgeelhaar/defectctl/internal/domain"
)

type OutputFormat string

const (
	OutputText  OutputFormat = "text"
	OutputJSON  OutputFormat = "json"
	OutputBrief OutputFormat = "brief"
)

var ErrConfigNotFound = errors.New("config not found")

// Config represents validated, application-ready configuration.
// Pillars that failed validation are kept in Rejected so that only the
// affected pillar stops, not the whole run.
type Config struct {
	Pillars  domain.PillarSet
	Rejected map[string]error
}

// Names returns every configured pillar name, valid or rejected, sorted.
func (c Config) Names() []string {
	names := c.Pillars.Names()
	for name := range c.Rejected {
		if _, ok := c.Pillars[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// rejection is a selected pillar that failed validation.
type rejection struct {
	name string
	err  error
}

// selection is the outcome of resolving requested pillar names.
type selection struct {
	pillars  []*domain.Pillar
	rejected []rejection
}

func (s selection) errs() []error {
	out := make([]error, len(s.rejected))
	for i, r := range s.rejected {
		out[i] = r.err
	}
	return out
}

// selectPillars resolves names, expanding domain.AllPillars. Unknown names
// fail the whole selection; rejected pillars are reported separately.
func (c Config) selectPillars(names []string) (selection, error) {
	var sel selection
	seen := make(map[string]struct{})
	reject := func(name string) bool {
		err, ok := c.Rejected[name]
		if !ok {
			return false
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			sel.rejected = append(sel.rejected, rejection{name: name, err: err})
		}
		return true
	}

	var valid []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if strings.EqualFold(name, domain.AllPillars) {
			if len(c.Names()) == 0 {
				return selection{}, &domain.ConfigNotFoundError{Pillar: name}
			}
			for _, n := range c.Names() {
				if _, ok := c.Pillars[n]; !ok {
					reject(n)
				}
			}
			if len(c.Pillars) > 0 {
				valid = append(valid, domain.AllPillars)
			}
			continue
		}
		if reject(name) {
			continue
		}
		valid = append(valid, name)
	}
	if len(valid) == 0 {
		if len(sel.rejected) == 0 {
			return selection{}, &domain.ConfigNotFoundError{Pillar: strings.Join(names, ",")}
		}
		return sel, nil
	}

	pillars, err := c.Pillars.Select(valid)
	if err != nil {
		return selection{}, err
	}
	sel.pillars = pillars
	return sel, nil
}

// ConfigSource yields raw pillar definitions from some backing format.
type ConfigSource interface {
	Parse() ([]domain.PillarDefinition, error)
}

type ConfigLoader interface {
	Load(path string) (Config, error)
	Exists(path string) (bool, error)
}

// DefectQuery selects the defects of one project within a date range.
type DefectQuery struct {
	Pillar  *domain.Pillar
	Project string
	Range   domain.DateRange
}

// IssueSource fetches defects with their status history from a tracker.
type IssueSource interface {
	Defects(ctx context.Context, q DefectQuery) ([]domain.Defect, error)
}

type Reporter interface {
	Write(w io.Writer, result BounceResult, format OutputFormat) error
	WriteAudit(w io.Writer, result AuditResult, format OutputFormat) error
}

// ReportArchive persists a rendered report and returns where it was written.
type ReportArchive interface {
	Save(result BounceResult) (string, error)
}

type HistoryStore interface {
	Load() (domain.History, error)
	Append(entry domain.HistoryEntry) error
}

// FileWatcher provides file change notifications.
type FileWatcher interface {
	WatchFile(path string) error
	Events(ctx context.Context) <-chan struct{}
	Close() error
}

// WatchCallback is invoked after every run in watch mode.
type WatchCallback func(run int, results []BounceResult, err error)

// BounceOptions configures a bounce metrics run.
type BounceOptions struct {
	ConfigPath  string
	Pillars     []string
	Range       domain.DateRange
	Output      OutputFormat
	IncludeOpen bool // Count defects that have not reached the terminal bucket
	Record      bool // Append the result to history
	Workers     int
}

// DefectBounce pairs a bounced defect with its replay.
type DefectBounce struct {
	Defect domain.Defect       `json:"defect"`
	Report domain.BounceReport `json:"report"`
}

// BounceResult is the outcome of one pillar run.
type BounceResult struct {
	Pillar   string                 `json:"pillar"`
	Range    domain.DateRange       `json:"range"`
	Order    []domain.Bucket        `json:"order"`
	SLA      domain.SLA             `json:"sla"`
	Fetched  int                    `json:"fetched"`
	Metrics  domain.MetricsResult   `json:"metrics"`
	Bounced  []DefectBounce         `json:"bounced"`
	Excluded map[string]int         `json:"excluded"` // Keyed by project
	Unmapped []domain.UnmappedLabel `json:"unmapped"`
	// Rejected lists the pillars of the same run that failed validation.
	Rejected []domain.RejectedPillar `json:"rejected,omitempty"`
}

// Violations returns the bounced defects that broke the SLA, most severe
// first. Unknown severities sort last; ties are ordered by id.
func (r BounceResult) Violations() []DefectBounce {
	var out []DefectBounce
	for _, b := range r.Bounced {
		if b.Report.SLAViolation {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Defect.SeverityRank(), out[j].Defect.SeverityRank()
		if ri != rj {
			return rj == 0 || (ri != 0 && ri < rj)
		}
		return out[i].Defect.ID < out[j].Defect.ID
	})
	return out
}

// ListOptions configures pillar listing.
type ListOptions struct {
	ConfigPath string
}

// PillarSummary describes one configured pillar.
type PillarSummary struct {
	Name     string          `json:"name"`
	URL      string          `json:"url,omitempty"`
	Projects []string        `json:"projects"`
	Order    []domain.Bucket `json:"order"`
	Error    string          `json:"error,omitempty"`
}

// AuditOptions configures the required-field audit.
type AuditOptions struct {
	ConfigPath string
	Pillars    []string
	Range      domain.DateRange
	Output     OutputFormat
	Workers    int
}

// AuditResult lists incomplete defects for one pillar.
type AuditResult struct {
	Pillar    string                 `json:"pillar"`
	Range     domain.DateRange       `json:"range"`
	Checked   int                    `json:"checked"`
	Reporters []domain.ReporterAudit `json:"reporters"`
}

// TrendOptions configures bounce-rate trend analysis.
type TrendOptions struct {
	Pillars []string // Empty means every pillar in history
}

// TrendResult compares the two most recent runs of a pillar.
type TrendResult struct {
	Pillar   string                  `json:"pillar"`
	Runs     int                     `json:"runs"`
	Previous *domain.HistoryEntry    `json:"previous,omitempty"`
	Current  domain.HistoryEntry     `json:"current"`
	Overall  domain.Trend            `json:"overall"`
	Projects map[string]domain.Trend `json:"projects"`
}
