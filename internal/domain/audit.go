package domain

import (
	"sort"
	"strings"
)

// Required defect fields checked by AuditFields.
const (
	FieldComponent   = "component"
	FieldEnvironment = "environment"
	FieldPriority    = "priority"
	FieldSeverity    = "severity"
)

// MissingFields lists the required fields a defect leaves empty.
type MissingFields struct {
	DefectID string   `json:"defect_id"`
	Project  string   `json:"project"`
	Link     string   `json:"link,omitempty"`
	Fields   []string `json:"fields"`
}

// ReporterAudit groups incomplete defects by the person who filed them.
type ReporterAudit struct {
	Reporter string          `json:"reporter"`
	Defects  []MissingFields `json:"defects"`
}

// UnknownReporter is used for defects without a reporter.
const UnknownReporter = "unknown"

// AuditFields reports defects missing a component, environment, priority or
// severity, grouped by reporter. Reporters and defects are sorted.
func AuditFields(defects []Defect) []ReporterAudit {
	grouped := make(map[string][]MissingFields)
	for _, d := range defects {
		var missing []string
		if len(d.Components) == 0 {
			missing = append(missing, FieldComponent)
		}
		if blank(d.Environment) {
			missing = append(missing, FieldEnvironment)
		}
		if blank(d.Priority) {
			missing = append(missing, FieldPriority)
		}
		if blank(d.Severity) {
			missing = append(missing, FieldSeverity)
		}
		if len(missing) == 0 {
			continue
		}
		reporter := strings.TrimSpace(d.Reporter)
		if reporter == "" {
			reporter = UnknownReporter
		}
		grouped[reporter] = append(grouped[reporter], MissingFields{
			DefectID: d.ID,
			Project:  d.Project,
			Link:     d.Link,
			Fields:   missing,
		})
	}

	out := make([]ReporterAudit, 0, len(grouped))
	for reporter, items := range grouped {
		sort.Slice(items, func(i, j int) bool { return items[i].DefectID < items[j].DefectID })
		out = append(out, ReporterAudit{Reporter: reporter, Defects: items})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reporter < out[j].Reporter })
	return out
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
