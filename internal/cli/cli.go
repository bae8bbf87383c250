package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
	"github.com/felixgeelhaar/defectctl/internal/infrastructure/config"
	"github.com/felixgeelhaar/defectctl/internal/infrastructure/history"
	"github.com/felixgeelhaar/defectctl/internal/infrastructure/jira"
	"github.com/felixgeelhaar/defectctl/internal/infrastructure/logging"
	"github.com/felixgeelhaar/defectctl/internal/infrastructure/report"
	"github.com/felixgeelhaar/defectctl/internal/infrastructure/watcher"
	"github.com/felixgeelhaar/defectctl/internal/infrastructure/wizard"
	"github.com/felixgeelhaar/defectctl/internal/mcp"
)

type Service interface {
	Bounce(ctx context.Context, opts application.BounceOptions) ([]application.BounceResult, error)
	ListPillars(ctx context.Context, opts application.ListOptions) ([]application.PillarSummary, error)
	Audit(ctx context.Context, opts application.AuditOptions) ([]application.AuditResult, error)
	Trend(ctx context.Context, opts application.TrendOptions) ([]application.TrendResult, error)
	Watch(ctx context.Context, opts application.BounceOptions, watcher application.FileWatcher, callback application.WatchCallback) error
}

// Settings selects the adapters wired into a Service for one command.
type Settings struct {
	Out         io.Writer
	Stderr      io.Writer
	Username    string
	Password    string
	Debug       bool
	ReportDir   string // Empty disables report archiving
	LogFile     string // Run log name inside ReportDir; empty disables it
	HistoryPath string // Empty disables recording
}

// Builder wires a Service. The returned closer releases the run log.
type Builder func(Settings) (Service, io.Closer, error)

var (
	initWizard = wizard.Run
	getenv     = os.Getenv
	serveMCP   = func(ctx context.Context, srv *mcp.Server) error { return srv.Run(ctx) }
)

func Run(args []string, stdout, stderr io.Writer, build Builder) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	ctx := context.Background()

	switch args[1] {
	case "bounce":
		fs := flag.NewFlagSet("bounce", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		var pillars pillarList
		fs.Var(&pillars, "pillar", "Pillar to run (repeatable, ALL for every pillar)")
		start := fs.String("start", "", "First day of the range (YYYY-MM-DD or YY-MM-DD)")
		end := fs.String("end", "", "Last day of the range (YYYY-MM-DD or YY-MM-DD)")
		creds := credentialFlags(fs)
		debug := fs.Bool("debug", false, "Log at debug level")
		output := outputFlags(fs)
		reportDir := fs.String("report-dir", ".", "Directory for report and log files (empty disables them)")
		historyPath := fs.String("history", "", "Record bounce rates to this history file")
		includeOpen := fs.Bool("include-open", false, "Count defects that are not closed yet")
		workers := fs.Int("workers", application.DefaultWorkers, "Concurrent project fetches")
		watch := fs.Bool("watch", false, "Re-run whenever the config file changes")
		_ = fs.Parse(args[2:])

		r, err := domain.ParseDateRange(*start, *end)
		if err != nil {
			return exitCode(err, 2, stderr)
		}
		user, pass := creds.resolve()
		settings := Settings{
			Out:         stdout,
			Stderr:      stderr,
			Username:    user,
			Password:    pass,
			Debug:       *debug,
			ReportDir:   *reportDir,
			HistoryPath: *historyPath,
		}
		if *reportDir != "" {
			settings.LogFile = logging.FileName(r, pillars.single())
		}
		svc, closer, err := build(settings)
		if err != nil {
			return exitCode(err, 3, stderr)
		}
		defer closer.Close()

		opts := application.BounceOptions{
			ConfigPath:  *configPath,
			Pillars:     pillars.orAll(),
			Range:       r,
			Output:      *output,
			IncludeOpen: *includeOpen,
			Record:      *historyPath != "",
			Workers:     *workers,
		}
		if *watch {
			return runWatch(ctx, stdout, stderr, svc, opts)
		}
		_, err = svc.Bounce(ctx, opts)
		return exitCode(err, runExitCode(err), stderr)
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		_ = fs.Parse(args[2:])
		svc, closer, err := build(Settings{Out: stdout, Stderr: stderr})
		if err != nil {
			return exitCode(err, 3, stderr)
		}
		defer closer.Close()
		pillars, err := svc.ListPillars(ctx, application.ListOptions{ConfigPath: *configPath})
		if err != nil {
			return exitCode(err, 4, stderr)
		}
		printPillars(*configPath, pillars, stdout)
		return 0
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		var pillars pillarList
		fs.Var(&pillars, "pillar", "Pillar to audit (repeatable, ALL for every pillar)")
		start := fs.String("start", "", "First day of the range (YYYY-MM-DD or YY-MM-DD)")
		end := fs.String("end", "", "Last day of the range (YYYY-MM-DD or YY-MM-DD)")
		creds := credentialFlags(fs)
		output := outputFlags(fs)
		outPath := fs.String("out", "", "Write the audit to this file instead of stdout")
		_ = fs.Parse(args[2:])

		r, err := domain.ParseDateRange(*start, *end)
		if err != nil {
			return exitCode(err, 2, stderr)
		}
		out := stdout
		if *outPath != "" {
			// #nosec G304 -- path is provided by the operator
			file, err := os.Create(*outPath)
			if err != nil {
				return exitCode(err, 2, stderr)
			}
			defer file.Close()
			out = file
		}
		user, pass := creds.resolve()
		svc, closer, err := build(Settings{Out: out, Stderr: stderr, Username: user, Password: pass})
		if err != nil {
			return exitCode(err, 3, stderr)
		}
		defer closer.Close()
		_, err = svc.Audit(ctx, application.AuditOptions{
			ConfigPath: *configPath,
			Pillars:    pillars.orAll(),
			Range:      r,
			Output:     *output,
		})
		return exitCode(err, runExitCode(err), stderr)
	case "trend":
		fs := flag.NewFlagSet("trend", flag.ExitOnError)
		historyPath := fs.String("history", history.DefaultPath, "History file path")
		output := outputFlags(fs)
		var pillars pillarList
		fs.Var(&pillars, "pillar", "Pillar to show (repeatable)")
		_ = fs.Parse(args[2:])
		svc, closer, err := build(Settings{Out: stdout, Stderr: stderr, HistoryPath: *historyPath})
		if err != nil {
			return exitCode(err, 3, stderr)
		}
		defer closer.Close()
		results, err := svc.Trend(ctx, application.TrendOptions{Pillars: pillars})
		if err != nil {
			return exitCode(err, 3, stderr)
		}
		if err := printTrendResults(results, stdout, *output); err != nil {
			return exitCode(err, 3, stderr)
		}
		return 0
	case "init":
		fs := flag.NewFlagSet("init", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		force := fs.Bool("force", false, "Overwrite existing config file")
		noInteractive := fs.Bool("no-interactive", false, "Skip the interactive init wizard")
		_ = fs.Parse(args[2:])
		def := config.Default()
		if !*noInteractive {
			var confirmed bool
			var err error
			def, confirmed, err = initWizard(def, stdout, os.Stdin)
			if err != nil {
				return exitCode(err, 5, stderr)
			}
			if !confirmed {
				fmt.Fprintln(stdout, "Init cancelled; no configuration written.")
				return 0
			}
		}
		if err := writeConfigFile(*configPath, []domain.PillarDefinition{def}, stdout, *force); err != nil {
			return exitCode(err, 2, stderr)
		}
		return 0
	case "mcp":
		fs := flag.NewFlagSet("mcp", flag.ExitOnError)
		configPath := fs.String("config", config.DefaultPath, "Config file path")
		historyPath := fs.String("history", history.DefaultPath, "History file path")
		creds := credentialFlags(fs)
		workers := fs.Int("workers", application.DefaultWorkers, "Concurrent project fetches")
		_ = fs.Parse(args[2:])
		user, pass := creds.resolve()
		// stdout carries the protocol, so reports are discarded.
		svc, closer, err := build(Settings{
			Out:         io.Discard,
			Stderr:      stderr,
			Username:    user,
			Password:    pass,
			HistoryPath: *historyPath,
		})
		if err != nil {
			return exitCode(err, 3, stderr)
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		srv := mcp.New(svc, config.Loader{}, mcp.Config{ConfigPath: *configPath, Workers: *workers}, Version)
		if err := serveMCP(ctx, srv); err != nil && ctx.Err() == nil {
			return exitCode(err, 3, stderr)
		}
		return 0
	case "version", "--version", "-v":
		fmt.Fprintln(stdout, versionString())
		return 0
	default:
		usage(stderr)
		return 2
	}
}

// BuildService wires the production adapters.
func BuildService(s Settings) (Service, io.Closer, error) {
	if s.ReportDir != "" {
		if err := os.MkdirAll(s.ReportDir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create report dir: %w", err)
		}
	}
	logger, closer, err := logging.Open(logging.Options{
		Debug:  s.Debug,
		Stderr: s.Stderr,
		Dir:    s.ReportDir,
		File:   s.LogFile,
	})
	if err != nil {
		return nil, nil, err
	}

	svc := &application.Service{
		ConfigLoader: config.Loader{},
		Source:       jira.NewSource(s.Username, s.Password, logger),
		Reporter:     report.Writer{},
		Logger:       logger,
		Out:          s.Out,
	}
	if s.ReportDir != "" {
		svc.Archive = report.FileArchive{Dir: s.ReportDir}
	}
	if s.HistoryPath != "" {
		svc.History = &history.FileStore{Path: s.HistoryPath}
	}
	return svc, closer, nil
}

// runExitCode maps configuration problems to 4 and everything else to 3.
func runExitCode(err error) int {
	switch {
	case errors.Is(err, application.ErrConfigNotFound),
		errors.Is(err, domain.ErrConfigNotFound),
		errors.Is(err, domain.ErrConfigValidation),
		errors.Is(err, config.ErrParse),
		errors.Is(err, config.ErrInvalidFormat):
		return 4
	default:
		return 3
	}
}

func outputFlags(fs *flag.FlagSet) *application.OutputFormat {
	output := application.OutputText
	fs.Var((*outputValue)(&output), "output", "Output format: text|json|brief")
	fs.Var((*outputValue)(&output), "o", "Output format: text|json|brief")
	return &output
}

type outputValue application.OutputFormat

func (o *outputValue) String() string { return string(*o) }

func (o *outputValue) Set(value string) error {
	switch value {
	case string(application.OutputText), string(application.OutputJSON), string(application.OutputBrief):
		*o = outputValue(value)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s", value)
	}
}

// credentials holds the Jira login flags of a command.
type credentials struct {
	user string
	pass string
}

func credentialFlags(fs *flag.FlagSet) *credentials {
	c := &credentials{}
	fs.StringVar(&c.user, "user", "", "Jira username (default $SSO_USER)")
	fs.StringVar(&c.user, "u", "", "Jira username (default $SSO_USER)")
	fs.StringVar(&c.pass, "pswd", "", "Jira password or token (default $SSO_PASS)")
	fs.StringVar(&c.pass, "p", "", "Jira password or token (default $SSO_PASS)")
	return c
}

// resolve falls back to SSO_USER and SSO_PASS for unset flags.
func (c *credentials) resolve() (string, string) {
	user, pass := c.user, c.pass
	if user == "" {
		user = getenv("SSO_USER")
	}
	if pass == "" {
		pass = getenv("SSO_PASS")
	}
	return user, pass
}

// pillarList is a repeatable flag that also accepts comma-separated names.
type pillarList []string

func (p *pillarList) String() string {
	return strings.Join(*p, ",")
}

func (p *pillarList) Set(value string) error {
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		*p = append(*p, name)
	}
	return nil
}

func (p pillarList) orAll() []string {
	if len(p) == 0 {
		return []string{domain.AllPillars}
	}
	return p
}

// single returns the only requested pillar, or ALL.
func (p pillarList) single() string {
	if len(p) == 1 {
		return p[0]
	}
	return domain.AllPillars
}

func writeConfigFile(path string, defs []domain.PillarDefinition, stdout io.Writer, force bool) error {
	if path == "-" {
		return config.Write(stdout, defs)
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	// #nosec G304 -- path is provided by the operator
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := config.Write(file, defs); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `defectctl <command>

Commands:
  bounce    Compute defect bounce metrics for a date range
  list      List configured pillars and their projects
  validate  Report defects missing required fields
  trend     Show bounce-rate trend from recorded history
  init      Write a starter defects.yaml (interactive wizard)
  mcp       Serve bounce metrics over the Model Context Protocol
  version   Print version information`)
}

func exitCode(err error, code int, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, err)
	return code
}

func printPillars(path string, pillars []application.PillarSummary, w io.Writer) {
	if len(pillars) == 0 {
		fmt.Fprintf(w, "No pillars configured in %s\n", path)
		return
	}
	fmt.Fprintf(w, "Pillars in %s:\n", path)
	for _, p := range pillars {
		if p.Error != "" {
			fmt.Fprintf(w, "  %s: rejected: %s\n", p.Name, p.Error)
			continue
		}
		order := make([]string, len(p.Order))
		for i, b := range p.Order {
			order[i] = string(b)
		}
		fmt.Fprintf(w, "  %s: %s (%s)\n", p.Name, strings.Join(p.Projects, ", "), strings.Join(order, " -> "))
	}
}

func trendSymbol(t domain.Trend) string {
	switch t.Direction {
	case domain.TrendUp:
		return "↑"
	case domain.TrendDown:
		return "↓"
	default:
		return "→"
	}
}

func printTrendResults(results []application.TrendResult, w io.Writer, format application.OutputFormat) error {
	if format == application.OutputJSON {
		return writeJSON(w, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No history recorded yet. Run `defectctl bounce --history <file>` first.")
		return nil
	}

	for i, result := range results {
		if format == application.OutputBrief {
			fmt.Fprintf(w, "%s | %s | %.1f%% %s (%+.1f%%) | %d runs\n",
				result.Pillar, result.Current.Range, result.Current.Overall,
				trendSymbol(result.Overall), result.Overall.Delta, result.Runs)
			continue
		}
		if i > 0 {
			fmt.Fprintln(w, "")
		}
		if result.Previous == nil {
			fmt.Fprintf(w, "Bounce Rate Trend (%s): %.1f%% (first run)\n", result.Pillar, result.Current.Overall)
		} else {
			fmt.Fprintf(w, "Bounce Rate Trend (%s): %.1f%% %s %.1f%% (%+.1f%%)\n",
				result.Pillar, result.Previous.Overall, trendSymbol(result.Overall),
				result.Current.Overall, result.Overall.Delta)
		}
		if len(result.Projects) > 0 {
			fmt.Fprintln(w, "\nProject Trends:")
			for _, name := range sortedKeys(result.Projects) {
				trend := result.Projects[name]
				fmt.Fprintf(w, "  %s: %s %+.1f%%\n", name, trendSymbol(trend), trend.Delta)
			}
		}
		fmt.Fprintf(w, "\nHistory: %d runs, latest %s\n", result.Runs, result.Current.Range)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]domain.Trend) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runWatch(ctx context.Context, stdout, stderr io.Writer, svc Service, opts application.BounceOptions) int {
	w, err := watcher.New(watcher.WithDebounce(500 * time.Millisecond))
	if err != nil {
		fmt.Fprintf(stderr, "failed to create watcher: %v\n", err)
		return 3
	}
	defer w.Close()

	// Handle Ctrl+C gracefully
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stdout, "\nStopping watch mode...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(stdout, "Watching %s for changes... (Ctrl+C to stop)\n\n", opts.ConfigPath)

	callback := func(runNumber int, results []application.BounceResult, runErr error) {
		fmt.Fprintf(stdout, "\n--- Run #%d at %s ---\n", runNumber, time.Now().Format("15:04:05"))
		if runErr != nil {
			fmt.Fprintf(stderr, "Bounce run failed: %v\n", runErr)
			return
		}
		fmt.Fprintf(stdout, "Bounce run completed for %d pillar(s)\n", len(results))
	}

	if err := svc.Watch(ctx, opts, w, callback); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(stderr, "watch error: %v\n", err)
		return 3
	}
	return 0
}
