package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
)

type Writer struct{}

var _ application.Reporter = Writer{}

var (
	headStyle = lipgloss.NewStyle().Bold(true)
	goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A")).Bold(true)
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04")).Bold(true)
)

func (Writer) Write(w io.Writer, result application.BounceResult, format application.OutputFormat) error {
	switch format {
	case application.OutputJSON:
		payload := struct {
			application.BounceResult
			BounceRate float64 `json:"bounce_rate"`
		}{
			BounceResult: result,
			BounceRate:   result.Metrics.BounceRate().Value(),
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case application.OutputBrief:
		return writeBrief(w, result)
	case application.OutputText, "":
		return writeText(w, result, colorEnabled(w))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func (Writer) WriteAudit(w io.Writer, result application.AuditResult, format application.OutputFormat) error {
	switch format {
	case application.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case application.OutputBrief:
		incomplete := 0
		for _, r := range result.Reporters {
			incomplete += len(r.Defects)
		}
		_, err := fmt.Fprintf(w, "%s | %s | %d checked | %d incomplete | %d reporters\n",
			result.Pillar, result.Range, result.Checked, incomplete, len(result.Reporters))
		return err
	case application.OutputText, "":
		return writeAuditText(w, result, colorEnabled(w))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeText(w io.Writer, result application.BounceResult, colorize bool) error {
	style := func(s lipgloss.Style, v string) string {
		if colorize {
			return s.Render(v)
		}
		return v
	}
	m := result.Metrics

	fmt.Fprintf(w, "%s %s\n", style(headStyle, "Bounce report:"), result.Pillar)
	if !result.Range.IsZero() {
		fmt.Fprintf(w, "Range: %s\n", result.Range)
	}
	fmt.Fprintf(w, "Bucket order: %s\n", joinBuckets(result.Order, " > "))
	if result.SLA.Enabled() {
		fmt.Fprintf(w, "SLA: at most %d entries into %q\n", result.SLA.Limit, result.SLA.Bucket)
	}
	if len(result.Order) > 0 {
		fmt.Fprintf(w, "\nNOTE: defects were updated within the range and count only once settled in %q.\n",
			result.Order[len(result.Order)-1])
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Project\tDefects\tBounced\tBounces\tViolations\tBounce rate")
	for _, name := range m.ProjectNames() {
		p := m.Projects[name]
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			strings.ToUpper(name), p.Defects, p.Bounced, p.Bounces, p.Violations, p.BounceRate())
	}
	rate := m.BounceRate().String()
	switch {
	case len(m.Violations) > 0:
		rate = style(badStyle, rate)
	case m.BouncedDefects > 0:
		rate = style(warnStyle, rate)
	default:
		rate = style(goodStyle, rate)
	}
	_, _ = fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%d\t%d\t%s\n",
		m.TotalDefects, m.BouncedDefects, m.TotalBounces, len(m.Violations), rate)
	if err := tw.Flush(); err != nil {
		return err
	}

	if transitions := m.Transitions(); len(transitions) > 0 {
		fmt.Fprintln(w, "\nTransitions:")
		ttw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, t := range transitions {
			_, _ = fmt.Fprintf(ttw, "  %s\t%d\n", t, m.ByTransition[t])
		}
		if err := ttw.Flush(); err != nil {
			return err
		}
	}

	if len(result.Bounced) > 0 {
		fmt.Fprintln(w, "\nBounced defects:")
		g := newGrid("Pillar", "Project", "Defect", "SLA", "Bounces", "Trail")
		g.alignRight(5)
		for _, b := range result.Bounced {
			flag := ""
			if b.Report.SLAViolation {
				flag = "*"
			}
			g.row(result.Pillar, strings.ToUpper(b.Defect.Project), b.Defect.ID, flag,
				len(b.Report.Bounces), joinBuckets(b.Report.Trail, " > "))
		}
		fmt.Fprintln(w, g.String())
	}

	fmt.Fprintln(w, "\nViolation details:")
	violations := result.Violations()
	if len(violations) == 0 {
		fmt.Fprintln(w, "  None")
	}
	for _, v := range violations {
		fmt.Fprintf(w, "  %s\n", style(badStyle, v.Defect.ID))
		for _, a := range domain.Attributes(v.Defect) {
			if a.Name == "ID" || a.Value == "" {
				continue
			}
			fmt.Fprintf(w, "    %-12s %s\n", a.Name+":", a.Value)
		}
		fmt.Fprintf(w, "    %-12s %d\n", "Visits:", v.Report.Visits[result.SLA.Bucket])
	}

	if len(result.Excluded) > 0 {
		projects := make([]string, 0, len(result.Excluded))
		for project := range result.Excluded {
			projects = append(projects, project)
		}
		sort.Strings(projects)
		parts := make([]string, len(projects))
		for i, project := range projects {
			parts[i] = fmt.Sprintf("%s %d", strings.ToUpper(project), result.Excluded[project])
		}
		fmt.Fprintf(w, "\nExcluded by project: %s (of %d fetched)\n", strings.Join(parts, ", "), result.Fetched)
	}

	if len(result.Unmapped) > 0 {
		fmt.Fprintln(w, "\n"+style(warnStyle, "Unmapped statuses:"))
		for _, u := range result.Unmapped {
			fmt.Fprintf(w, "  - %q (first seen on %s, %d occurrences)\n", u.Label, u.FirstDefect, u.Occurrences)
		}
	}

	if len(result.Rejected) > 0 {
		fmt.Fprintln(w, "\n"+style(badStyle, "Rejected pillars:"))
		for _, r := range result.Rejected {
			fmt.Fprintf(w, "  - %s: %s\n", r.Pillar, r.Reason)
		}
	}
	return nil
}

func writeAuditText(w io.Writer, result application.AuditResult, colorize bool) error {
	title := "Field audit:"
	if colorize {
		title = headStyle.Render(title)
	}
	fmt.Fprintf(w, "%s %s\n", title, result.Pillar)
	if !result.Range.IsZero() {
		fmt.Fprintf(w, "Range: %s\n", result.Range)
	}
	fmt.Fprintf(w, "Checked: %d defects\n", result.Checked)
	if len(result.Reporters) == 0 {
		fmt.Fprintln(w, "\nAll defects have a component, environment, priority and severity.")
		return nil
	}
	for _, r := range result.Reporters {
		fmt.Fprintf(w, "\n%s (%d)\n", r.Reporter, len(r.Defects))
		g := newGrid("Defect", "Project", "Missing", "Link")
		for _, d := range r.Defects {
			g.row(d.DefectID, strings.ToUpper(d.Project), strings.Join(d.Fields, ", "), d.Link)
		}
		fmt.Fprintln(w, g.String())
	}
	return nil
}

// writeBrief outputs a single-line summary optimized for LLM/agent consumption.
// Format: PILLAR | RANGE | N defects | B bounced (R%) | X bounces | V SLA violations [| U unmapped statuses]
func writeBrief(w io.Writer, result application.BounceResult) error {
	m := result.Metrics
	var sb strings.Builder
	sb.WriteString(result.Pillar)
	if !result.Range.IsZero() {
		sb.WriteString(" | " + result.Range.String())
	}
	fmt.Fprintf(&sb, " | %d defects | %d bounced (%s) | %d bounces | %d SLA violations",
		m.TotalDefects, m.BouncedDefects, m.BounceRate(), m.TotalBounces, len(m.Violations))
	if len(m.Violations) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(m.Violations, ", "))
	}
	if len(result.Unmapped) > 0 {
		fmt.Fprintf(&sb, " | %d unmapped statuses", len(result.Unmapped))
	}
	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func joinBuckets(buckets []domain.Bucket, sep string) string {
	parts := make([]string, len(buckets))
	for i, b := range buckets {
		parts[i] = string(b)
	}
	return strings.Join(parts, sep)
}

func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
