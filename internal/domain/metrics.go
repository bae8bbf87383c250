package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Transition is a (from, to) bucket pair.
type Transition struct {
	From Bucket
	To   Bucket
}

func (t Transition) String() string {
	return string(t.From) + "->" + string(t.To)
}

// MarshalText encodes the transition as "from->to" so it can key JSON maps.
func (t Transition) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes the "from->to" form.
func (t *Transition) UnmarshalText(b []byte) error {
	from, to, ok := strings.Cut(string(b), "->")
	if !ok {
		return fmt.Errorf("invalid transition %q", string(b))
	}
	*t = Transition{From: Bucket(from), To: Bucket(to)}
	return nil
}

// ProjectMetrics holds the subtotals for one project.
type ProjectMetrics struct {
	Defects    int `json:"defects"`
	Bounced    int `json:"bounced"`
	Bounces    int `json:"bounces"`
	Violations int `json:"violations"`
}

// BounceRate is the share of defects that bounced at least once.
func (m ProjectMetrics) BounceRate() Percentage {
	return PercentageFromRatio(m.Bounced, m.Defects)
}

func (m ProjectMetrics) plus(o ProjectMetrics) ProjectMetrics {
	return ProjectMetrics{
		Defects:    m.Defects + o.Defects,
		Bounced:    m.Bounced + o.Bounced,
		Bounces:    m.Bounces + o.Bounces,
		Violations: m.Violations + o.Violations,
	}
}

// MetricsResult aggregates bounce reports for one pillar and date range.
// Every field is built additively, so results can be folded in any order
// and merged from parallel partial results.
type MetricsResult struct {
	Pillar         string                    `json:"pillar"`
	Range          DateRange                 `json:"range"`
	TotalDefects   int                       `json:"total_defects"`
	BouncedDefects int                       `json:"bounced_defects"`
	TotalBounces   int                       `json:"total_bounces"`
	ByTransition   map[Transition]int        `json:"by_transition"`
	Projects       map[string]ProjectMetrics `json:"projects"`
	Violations     []string                  `json:"violations"`
}

// NewMetricsResult returns the empty result, the identity for Merge.
func NewMetricsResult(pillar string, r DateRange) MetricsResult {
	return MetricsResult{
		Pillar:       pillar,
		Range:        r,
		ByTransition: make(map[Transition]int),
		Projects:     make(map[string]ProjectMetrics),
		Violations:   []string{},
	}
}

// Add folds one report into m under project.
func (m *MetricsResult) Add(report BounceReport, project string) {
	if m.ByTransition == nil {
		m.ByTransition = make(map[Transition]int)
	}
	if m.Projects == nil {
		m.Projects = make(map[string]ProjectMetrics)
	}

	delta := ProjectMetrics{Defects: 1, Bounces: len(report.Bounces)}
	if report.Bounced() {
		delta.Bounced = 1
	}
	if report.SLAViolation {
		delta.Violations = 1
		m.Violations = insertSorted(m.Violations, report.DefectID)
	}

	m.TotalDefects += delta.Defects
	m.BouncedDefects += delta.Bounced
	m.TotalBounces += delta.Bounces
	for _, e := range report.Bounces {
		m.ByTransition[e.Transition()]++
	}
	m.Projects[project] = m.Projects[project].plus(delta)
}

// Merge combines two partial results. It is associative and commutative and
// leaves both operands untouched. The receiver's pillar and range win when set.
func (m MetricsResult) Merge(o MetricsResult) MetricsResult {
	out := NewMetricsResult(m.Pillar, m.Range)
	if out.Pillar == "" {
		out.Pillar = o.Pillar
	}
	if out.Range.IsZero() {
		out.Range = o.Range
	}
	out.TotalDefects = m.TotalDefects + o.TotalDefects
	out.BouncedDefects = m.BouncedDefects + o.BouncedDefects
	out.TotalBounces = m.TotalBounces + o.TotalBounces
	for _, src := range []MetricsResult{m, o} {
		for k, v := range src.ByTransition {
			out.ByTransition[k] += v
		}
		for k, v := range src.Projects {
			out.Projects[k] = out.Projects[k].plus(v)
		}
		out.Violations = append(out.Violations, src.Violations...)
	}
	sort.Strings(out.Violations)
	return out
}

// BounceRate is the overall share of defects that bounced.
func (m MetricsResult) BounceRate() Percentage {
	return PercentageFromRatio(m.BouncedDefects, m.TotalDefects)
}

// ProjectNames returns the projects with subtotals, sorted.
func (m MetricsResult) ProjectNames() []string {
	names := make([]string, 0, len(m.Projects))
	for name := range m.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Transitions returns the histogram keys ordered by count, then name.
func (m MetricsResult) Transitions() []Transition {
	keys := make([]Transition, 0, len(m.ByTransition))
	for k := range m.ByTransition {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := m.ByTransition[keys[i]], m.ByTransition[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Aggregate folds reports into a MetricsResult. ownerOf maps defect id to
// project; reports whose id is missing fall back to their own Project.
func Aggregate(pillar string, r DateRange, reports []BounceReport, ownerOf map[string]string) MetricsResult {
	out := NewMetricsResult(pillar, r)
	for _, report := range reports {
		project := report.Project
		if owner, ok := ownerOf[report.DefectID]; ok {
			project = owner
		}
		out.Add(report, project)
	}
	return out
}

func insertSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// Exclusion explains why a defect was left out of the metrics.
type Exclusion string

const (
	ExcludedNone         Exclusion = ""
	ExcludedNotClosed    Exclusion = "not closed"
	ExcludedClosedBefore Exclusion = "closed before range"
)

// Eligible decides whether a report counts towards the metrics of r.
// Only defects resting in the terminal bucket count, and only when they
// settled there on or after the first day of r.
func Eligible(report BounceReport, p *Pillar, r DateRange) Exclusion {
	if report.Final != p.Terminal() {
		return ExcludedNotClosed
	}
	if !r.IsZero() && report.SettledAt.Before(r.Start()) {
		return ExcludedClosedBefore
	}
	return ExcludedNone
}
