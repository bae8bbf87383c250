package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/defectctl/internal/domain"
)

// DefaultWorkers bounds concurrent project fetches and report folding.
const DefaultWorkers = 4

type Service struct {
	ConfigLoader ConfigLoader
	Source       IssueSource
	Reporter     Reporter
	Archive      ReportArchive // Optional
	History      HistoryStore  // Optional
	Logger       *slog.Logger
	Out          io.Writer
	Now          func() time.Time
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) loadConfig(path string) (Config, error) {
	exists, err := s.ConfigLoader.Exists(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	return s.ConfigLoader.Load(path)
}

// Bounce computes bounce metrics for every selected pillar and writes a
// report per pillar. A rejected pillar does not stop the others; its error
// is returned after the remaining pillars have run.
func (s *Service) Bounce(ctx context.Context, opts BounceOptions) ([]BounceResult, error) {
	cfg, err := s.loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	sel, err := cfg.selectPillars(opts.Pillars)
	if err != nil {
		return nil, err
	}

	log := s.logger()
	diag := domain.NewDiagnostics()
	for _, r := range sel.rejected {
		log.ErrorContext(ctx, "pillar rejected", "pillar", r.name, "error", r.err)
		diag.Record(domain.NewConfigRejectedEvent(r.name, r.err))
	}
	errs := sel.errs()

	var results []BounceResult
	for _, p := range sel.pillars {
		result, err := s.runPillar(ctx, p, opts)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			log.ErrorContext(ctx, "pillar run failed", "pillar", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("pillar %s: %w", p.Name(), err))
			continue
		}
		result.Rejected = diag.Rejected()
		if err := s.publish(ctx, result, opts); err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

func (s *Service) publish(ctx context.Context, result BounceResult, opts BounceOptions) error {
	if err := s.Reporter.Write(s.Out, result, opts.Output); err != nil {
		return err
	}
	if s.Archive != nil {
		path, err := s.Archive.Save(result)
		if err != nil {
			return fmt.Errorf("archive report: %w", err)
		}
		s.logger().InfoContext(ctx, "report written", "pillar", result.Pillar, "path", path)
	}
	if opts.Record && s.History != nil {
		if err := s.History.Append(domain.NewHistoryEntry(result.Metrics, s.now())); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
	}
	return nil
}

// partial is one worker's share of a pillar run.
type partial struct {
	metrics  domain.MetricsResult
	bounced  []DefectBounce
	excluded map[string]int
}

func (s *Service) runPillar(ctx context.Context, p *domain.Pillar, opts BounceOptions) (BounceResult, error) {
	log := s.logger().With("pillar", p.Name())
	log.InfoContext(ctx, "querying defects", "url", p.URL(), "projects", p.Projects(), "range", opts.Range.String())

	defects, err := s.fetch(ctx, p, opts.Range, opts.Workers)
	if err != nil {
		return BounceResult{}, err
	}

	diag := domain.NewDiagnostics()
	chunks := split(defects, workers(opts.Workers))
	parts := make([]partial, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			part := partial{excluded: make(map[string]int)}
			var reports []domain.BounceReport
			owners := make(map[string]string, len(chunk))
			for _, d := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				report, err := domain.Detect(d, p)
				if err != nil {
					return err
				}
				for _, label := range report.Unmapped {
					diag.Record(domain.NewUnmappedStatusEvent(p.Name(), d.ID, label))
				}
				if !opts.IncludeOpen {
					if reason := domain.Eligible(report, p, opts.Range); reason != domain.ExcludedNone {
						log.DebugContext(gctx, "defect excluded", "defect", d.ID, "reason", string(reason))
						part.excluded[d.Project]++
						continue
					}
				}
				reports = append(reports, report)
				owners[d.ID] = d.Project
				if report.Bounced() {
					part.bounced = append(part.bounced, DefectBounce{Defect: d, Report: report})
				}
			}
			part.metrics = domain.Aggregate(p.Name(), opts.Range, reports, owners)
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BounceResult{}, err
	}

	result := BounceResult{
		Pillar:   p.Name(),
		Range:    opts.Range,
		Order:    p.Order(),
		SLA:      p.SLA(),
		Fetched:  len(defects),
		Metrics:  domain.NewMetricsResult(p.Name(), opts.Range),
		Excluded: make(map[string]int),
		Unmapped: diag.Unmapped(),
	}
	for _, part := range parts {
		result.Metrics = result.Metrics.Merge(part.metrics)
		result.Bounced = append(result.Bounced, part.bounced...)
		for project, n := range part.excluded {
			result.Excluded[project] += n
		}
	}
	sort.Slice(result.Bounced, func(i, j int) bool {
		return result.Bounced[i].Defect.ID < result.Bounced[j].Defect.ID
	})

	for _, u := range result.Unmapped {
		log.WarnContext(ctx, "unmapped status", "label", u.Label, "defect", u.FirstDefect, "occurrences", u.Occurrences)
	}
	log.InfoContext(ctx, "pillar complete",
		"defects", result.Metrics.TotalDefects,
		"bounced", result.Metrics.BouncedDefects,
		"bounces", result.Metrics.TotalBounces,
	)
	return result, nil
}

// fetch queries every project of p concurrently and returns the defects in
// project order.
func (s *Service) fetch(ctx context.Context, p *domain.Pillar, r domain.DateRange, n int) ([]domain.Defect, error) {
	projects := p.Projects()
	found := make([][]domain.Defect, len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(n))
	for i, project := range projects {
		g.Go(func() error {
			defects, err := s.Source.Defects(gctx, DefectQuery{Pillar: p, Project: project, Range: r})
			if err != nil {
				return fmt.Errorf("fetch %s: %w", project, err)
			}
			s.logger().DebugContext(gctx, "project fetched", "pillar", p.Name(), "project", project, "defects", len(defects))
			found[i] = defects
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.Defect
	for _, defects := range found {
		all = append(all, defects...)
	}
	return all, nil
}

func workers(n int) int {
	if n <= 0 {
		return DefaultWorkers
	}
	return n
}

// split divides defects into at most n contiguous chunks.
func split(defects []domain.Defect, n int) [][]domain.Defect {
	if len(defects) == 0 {
		return nil
	}
	size := (len(defects) + n - 1) / n
	var chunks [][]domain.Defect
	for start := 0; start < len(defects); start += size {
		end := min(start+size, len(defects))
		chunks = append(chunks, defects[start:end])
	}
	return chunks
}

// ListPillars describes every configured pillar, including rejected ones.
func (s *Service) ListPillars(ctx context.Context, opts ListOptions) ([]PillarSummary, error) {
	cfg, err := s.loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	var out []PillarSummary
	for _, name := range cfg.Names() {
		if p, ok := cfg.Pillars[name]; ok {
			out = append(out, PillarSummary{Name: name, URL: p.URL(), Projects: p.Projects(), Order: p.Order()})
			continue
		}
		out = append(out, PillarSummary{Name: name, Error: cfg.Rejected[name].Error()})
	}
	return out, nil
}

// Audit reports defects missing required fields for every selected pillar.
func (s *Service) Audit(ctx context.Context, opts AuditOptions) ([]AuditResult, error) {
	cfg, err := s.loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	sel, err := cfg.selectPillars(opts.Pillars)
	if err != nil {
		return nil, err
	}

	errs := sel.errs()
	var results []AuditResult
	for _, p := range sel.pillars {
		defects, err := s.fetch(ctx, p, opts.Range, opts.Workers)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("pillar %s: %w", p.Name(), err))
			continue
		}
		result := AuditResult{
			Pillar:    p.Name(),
			Range:     opts.Range,
			Checked:   len(defects),
			Reporters: domain.AuditFields(defects),
		}
		if err := s.Reporter.WriteAudit(s.Out, result, opts.Output); err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

// Trend compares the latest two recorded runs of each pillar.
func (s *Service) Trend(ctx context.Context, opts TrendOptions) ([]TrendResult, error) {
	if s.History == nil {
		return nil, errors.New("no history store configured")
	}
	h, err := s.History.Load()
	if err != nil {
		return nil, err
	}

	pillars := opts.Pillars
	if len(pillars) == 0 {
		pillars = h.Pillars()
	}

	var out []TrendResult
	for _, name := range pillars {
		entries := h.ForPillar(name)
		if len(entries) == 0 {
			continue
		}
		current := entries[len(entries)-1]
		result := TrendResult{
			Pillar:   name,
			Runs:     len(entries),
			Current:  current,
			Projects: make(map[string]domain.Trend),
		}
		if len(entries) > 1 {
			previous := entries[len(entries)-2]
			result.Previous = &previous
			result.Overall = domain.CalculateTrend(previous.Overall, current.Overall)
			for project, rate := range current.Projects {
				if before, ok := previous.Projects[project]; ok {
					result.Projects[project] = domain.CalculateTrend(before.Percent, rate.Percent)
				}
			}
		} else {
			result.Overall = domain.Trend{Direction: domain.TrendStable}
		}
		out = append(out, result)
	}
	return out, nil
}

// Watch runs Bounce, then re-runs it whenever the config file changes.
func (s *Service) Watch(ctx context.Context, opts BounceOptions, watcher FileWatcher, callback WatchCallback) error {
	if err := watcher.WatchFile(opts.ConfigPath); err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}

	runNumber := 1
	results, runErr := s.Bounce(ctx, opts)
	if callback != nil {
		callback(runNumber, results, runErr)
	}

	events := watcher.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			runNumber++
			results, runErr := s.Bounce(ctx, opts)
			if callback != nil {
				callback(runNumber, results, runErr)
			}
		}
	}
}
