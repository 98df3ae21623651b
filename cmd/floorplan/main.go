// Command floorplan runs the floor-plan planning pipeline from the command
// line, or serves it over MCP on stdio with -mcp.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"floorplanner/pkg/agent"
	llmmetrics "floorplanner/pkg/agent/middleware/metrics"
	"floorplanner/pkg/agents"
	"floorplanner/pkg/config"
	"floorplanner/pkg/design"
	"floorplanner/pkg/logx"
	"floorplanner/pkg/mcpserver"
	"floorplanner/pkg/metrics"
	"floorplanner/pkg/orchestrator"
	"floorplanner/pkg/persistence"
	"floorplanner/pkg/version"
)

// Exit codes.
const (
	exitComplete = 0
	exitFailure  = 1
	exitHalted   = 2
)

type options struct {
	configPath  string
	inputPath   string
	resumeID    string
	answersPath string
	outPath     string
	metricsOut  string
	listState   string
	password    string
	list        bool
	interactive bool
	mcp         bool
}

func main() {
	var (
		opts        options
		showVersion bool
	)
	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&opts.inputPath, "input", "", "Path to the plot and brief JSON file")
	flag.StringVar(&opts.resumeID, "resume", "", "Resume a halted session by id")
	flag.StringVar(&opts.answersPath, "answers", "", "JSON file of answers keyed by question id (with -resume)")
	flag.StringVar(&opts.outPath, "out", "", "Write the final design context JSON to this file")
	flag.StringVar(&opts.metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file")
	flag.BoolVar(&opts.list, "list", false, "List stored sessions and exit")
	flag.StringVar(&opts.listState, "state", "", "Filter -list by state (HALTED, COMPLETE, ...)")
	flag.StringVar(&opts.password, "secrets-password", "", "Password for the encrypted secrets file (or set "+config.EnvPassword+")")
	flag.BoolVar(&opts.interactive, "interactive", false, "Prompt for unanswered questions and resume until complete")
	flag.BoolVar(&opts.mcp, "mcp", false, "Serve the pipeline as MCP tools on stdio")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Print(version.String("floorplan"))
		os.Exit(exitComplete)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts)
	stop()
	os.Exit(code)
}

// run wires the pipeline and returns the process exit code.
func run(ctx context.Context, opts options) int {
	logger := logx.NewLogger("floorplan")

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		return exitFailure
	}
	if err := loadSecrets(opts.password); err != nil {
		logger.Error("Failed to load secrets: %v", err)
		return exitFailure
	}

	registry := prometheus.NewRegistry()
	costs := llmmetrics.NewInternalRecorder()
	client, err := agent.NewClient(cfg, llmmetrics.Multi(llmmetrics.NewPrometheusRecorder(registry), costs))
	if err != nil {
		logger.Error("Failed to create LLM client: %v", err)
		return exitFailure
	}

	var pm *metrics.Pipeline
	if cfg.Metrics.Enabled {
		pm = metrics.NewPipeline(registry)
	}

	var store *persistence.Store
	if cfg.Database.Path != "" {
		store, err = persistence.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("Failed to open session store: %v", err)
			return exitFailure
		}
		defer func() {
			if cerr := store.Close(); cerr != nil {
				logger.Warn("Failed to close session store: %v", cerr)
			}
		}()
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Client:  client,
		Config:  cfg,
		Schemas: agents.Schemas(),
		Store:   store,
		Metrics: pm,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("Failed to create orchestrator: %v", err)
		return exitFailure
	}
	for _, stage := range agents.Stages() {
		if err := orch.Register(stage); err != nil {
			logger.Error("Failed to register stage %s: %v", stage.Name, err)
			return exitFailure
		}
	}

	if opts.mcp {
		logger.Info("Serving %d stages over MCP on stdio", len(orch.StageNames()))
		if err := mcpserver.ServeStdio(mcpserver.New(orch, version.Version)); err != nil {
			logger.Error("MCP server stopped: %v", err)
			return exitFailure
		}
		return exitComplete
	}

	a := &app{
		orch:     orch,
		registry: registry,
		costs:    costs,
		in:       os.Stdin,
		out:      os.Stdout,
		tty:      term.IsTerminal(int(os.Stdin.Fd())),
		logger:   logger,
	}
	return a.drive(ctx, opts)
}

// loadSecrets decrypts the secrets file when one exists. Without a password
// the provider keys are read from the environment instead.
func loadSecrets(password string) error {
	if !config.SecretsFileExists(config.DataDir) {
		return nil
	}
	if password == "" {
		password = os.Getenv(config.EnvPassword)
	}
	if password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		var err error
		password, err = promptForPassword(os.Stderr)
		if err != nil {
			return err
		}
	}
	if password == "" {
		logx.NewLogger("floorplan").Warn("Secrets file %s present but no password given; using environment credentials",
			config.SecretsPath(config.DataDir))
		return nil
	}
	return config.LoadSecretsFile(config.DataDir, password)
}

// app is the CLI front of one orchestrator.
type app struct {
	orch     *orchestrator.Orchestrator
	registry prometheus.Gatherer
	costs    *llmmetrics.InternalRecorder
	in       io.Reader
	out      io.Writer
	tty      bool
	logger   *logx.Logger
}

// drive runs or resumes one session, optionally answers questions
// interactively, and writes the requested artefacts.
func (a *app) drive(ctx context.Context, opts options) int {
	if opts.list {
		return a.listSessions(opts.listState)
	}

	out, err := a.start(ctx, opts)
	if err == nil && opts.interactive {
		if !a.tty {
			a.logger.Warn("-interactive needs a terminal on stdin; skipping prompts")
		} else {
			out, err = a.answerLoop(ctx, out)
		}
	}

	if out != nil {
		a.report(out)
		if werr := a.writeArtefacts(opts, out); werr != nil {
			a.logger.Error("%v", werr)
			return exitFailure
		}
	}
	if err != nil {
		a.logger.Error("%v", err)
		return exitFailure
	}
	return exitCode(out)
}

func (a *app) start(ctx context.Context, opts options) (*orchestrator.Outcome, error) {
	if opts.resumeID != "" {
		answers := map[string]string{}
		if opts.answersPath != "" {
			if err := readJSON(opts.answersPath, &answers); err != nil {
				return nil, err
			}
		}
		return a.orch.Resume(ctx, opts.resumeID, answers)
	}
	if opts.inputPath == "" {
		return nil, errors.New("one of -input, -resume, -list or -mcp is required")
	}
	var in design.Input
	if err := readJSON(opts.inputPath, &in); err != nil {
		return nil, err
	}
	return a.orch.Run(ctx, in)
}

func (a *app) listSessions(state string) int {
	sessions, err := a.orch.Sessions(orchestrator.State(state))
	if err != nil {
		a.logger.Error("Failed to list sessions: %v", err)
		return exitFailure
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTATE\tNEXT STAGE\tUPDATED")
	for _, s := range sessions {
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Format("2006-01-02 15:04")
		}
		next := s.NextStage
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.State, next, updated)
	}
	if err := tw.Flush(); err != nil {
		a.logger.Error("Failed to write session list: %v", err)
		return exitFailure
	}
	return exitComplete
}

func (a *app) report(out *orchestrator.Outcome) {
	fmt.Fprintf(a.out, "Session %s: %s (%d tokens)\n", out.SessionID, out.State, out.TokensUsed)
	if m := a.costs.GetSessionMetrics(out.SessionID); m != nil {
		fmt.Fprintf(a.out, "  LLM requests: %d (%d failed), cost $%.4f\n", m.RequestCount, m.FailedCount, m.TotalCost)
	}
	if out.Context != nil && out.Context.Cost != nil {
		fmt.Fprintf(a.out, "  Estimated cost: INR %.0f\n", out.Context.Cost.TotalINR)
	}
	if len(out.Unanswered) > 0 {
		fmt.Fprintf(a.out, "  Unanswered questions (resume with -resume %s -answers <file>):\n", out.SessionID)
		for _, q := range out.Unanswered {
			fmt.Fprintf(a.out, "    %s: %s\n", q.ID, q.Text)
		}
	}
	if len(out.HighRisk) > 0 {
		fmt.Fprintln(a.out, "  High-risk assumptions:")
		for _, as := range out.HighRisk {
			fmt.Fprintf(a.out, "    %s: %s\n", as.ID, as.Text)
		}
	}
}

func (a *app) writeArtefacts(opts options, out *orchestrator.Outcome) error {
	if opts.outPath != "" && out.Context != nil {
		data, err := json.MarshalIndent(out.Context, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal design context: %w", err)
		}
		if err := os.WriteFile(opts.outPath, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.outPath, err)
		}
	}
	if opts.metricsOut != "" {
		f, err := os.Create(opts.metricsOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.metricsOut, err)
		}
		defer func() { _ = f.Close() }()
		if err := metrics.WriteText(f, a.registry); err != nil {
			return err
		}
	}
	return nil
}

func exitCode(out *orchestrator.Outcome) int {
	switch {
	case out == nil:
		return exitFailure
	case out.Complete():
		return exitComplete
	case out.Halted():
		return exitHalted
	default:
		return exitFailure
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
