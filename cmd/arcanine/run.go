package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/arcanine/pkg/history"
	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/replay"
	"github.com/ormasoftchile/arcanine/pkg/report"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/schema"
	"github.com/ormasoftchile/arcanine/pkg/stage"
	"github.com/ormasoftchile/arcanine/pkg/store"
	"github.com/ormasoftchile/arcanine/pkg/trace"
	"github.com/ormasoftchile/arcanine/pkg/transport"
)

// errRunFailed makes the process exit non-zero without repeating what the
// report already shows.
var errRunFailed = errors.New("run failed")

// runOptions are the flags shared by run and run-all.
type runOptions struct {
	envPath          string
	globalsPath      string
	vars             []string
	timeout          time.Duration
	maxBody          int64
	scriptTimeout    time.Duration
	maxConsole       int
	maxDepth         int
	order            string
	tracePath        string
	historyPath      string
	replayPath       string
	recordPath       string
	commit           bool
	jsonOut          bool
	markdown         bool
	plain            bool
	verbose          bool
	parallel         int
	failOnUnresolved bool
	noReresolve      bool
}

func (o *runOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.envPath, "env", "e", "", "Environment YAML file")
	f.StringVar(&o.globalsPath, "globals", "", "Globals YAML file")
	f.StringArrayVar(&o.vars, "var", nil, "Set a runtime variable (key=value), repeatable")
	f.DurationVar(&o.timeout, "timeout", transport.DefaultTimeout, "HTTP timeout per request")
	f.Int64Var(&o.maxBody, "max-body", transport.DefaultMaxBodyBytes, "Response body bytes kept per request")
	f.DurationVar(&o.scriptTimeout, "script-timeout", sandbox.DefaultTimeout, "Time budget per script")
	f.IntVar(&o.maxConsole, "max-console", sandbox.DefaultMaxConsoleLines, "Console lines kept per stage")
	f.IntVar(&o.maxDepth, "max-depth", 10, "Nested variable expansion limit")
	f.StringVar(&o.order, "order", string(stage.OuterFirst), "Post-response and test script order: outer-first or inner-first")
	f.StringVar(&o.tracePath, "trace", "", "Append JSONL trace events to this file")
	f.StringVar(&o.historyPath, "history", "", "Append a history entry per run to this JSONL file")
	f.StringVar(&o.replayPath, "replay", "", "Answer requests from a recorded scenario file instead of the network")
	f.StringVar(&o.recordPath, "record", "", "Save every exchange to this scenario file")
	f.BoolVar(&o.commit, "commit", false, "Write script variable changes back to the collection and environment files")
	f.BoolVar(&o.jsonOut, "json", false, "Print results as JSON")
	f.BoolVar(&o.markdown, "markdown", false, "Print results as rendered markdown")
	f.BoolVar(&o.plain, "plain", false, "Disable colors")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	f.BoolVar(&o.failOnUnresolved, "fail-on-unresolved", false, "Abort when any {{token}} stays unresolved, not only in the URL")
	f.BoolVar(&o.noReresolve, "no-reresolve", false, "Do not resolve again after pre-request scripts")
}

// parseVars turns key=value pairs into a map.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", p)
		}
		vars[k] = v
	}
	return vars, nil
}

// session is everything a run command sets up before executing.
type session struct {
	opts     *runOptions
	src      schema.Sources
	orch     *pipeline.Orchestrator
	tw       *trace.Writer
	recorder *history.Recorder
	store    *store.Store
	exchange *replay.Recorder
}

func (o *runOptions) open(collectionPath string, exec pipeline.Executor) (*session, error) {
	src, err := schema.LoadSources(collectionPath, o.envPath, o.globalsPath)
	if err != nil {
		return nil, err
	}
	if src.Overrides, err = parseVars(o.vars); err != nil {
		return nil, err
	}
	order, err := stage.ParseOrder(o.order)
	if err != nil {
		return nil, err
	}
	rules, err := src.Redactions()
	if err != nil {
		return nil, fmt.Errorf("redaction rules: %w", err)
	}

	s := &session{opts: o, src: src}
	if o.tracePath != "" {
		if s.tw, err = trace.NewFileWriter(o.tracePath); err != nil {
			return nil, err
		}
	} else {
		// Still used to scrub printed and recorded output.
		s.tw = trace.NewWriter(io.Discard)
	}
	s.tw.SetRules(rules)

	if exec == nil {
		if exec, err = o.executor(); err != nil {
			s.tw.Close()
			return nil, err
		}
	}
	if o.recordPath != "" {
		s.exchange = replay.NewRecorder(exec)
		exec = s.exchange
	}
	cfg := pipeline.DefaultConfig(exec)
	cfg.Budget = sandbox.Budget{Timeout: o.scriptTimeout, MaxConsoleLines: o.maxConsole}
	cfg.MaxDepth = o.maxDepth
	cfg.Order = order
	cfg.FailOnUnresolved = o.failOnUnresolved
	cfg.ResolveAfterPreRequest = !o.noReresolve
	cfg.Trace = s.tw
	if o.verbose {
		cfg.Logger = &writerLogger{w: os.Stderr}
	}
	if s.orch, err = pipeline.New(cfg); err != nil {
		s.tw.Close()
		return nil, err
	}

	if o.historyPath != "" {
		s.recorder = history.NewRecorder(o.historyPath, s.tw)
	}
	if o.commit {
		s.store = store.New(collectionPath, src.Collection, o.envPath, src.Environment)
	}
	return s, nil
}

// executor picks the live HTTP transport or a replayed scenario.
func (o *runOptions) executor() (pipeline.Executor, error) {
	if o.replayPath == "" {
		h := transport.New(o.timeout)
		h.MaxBodyBytes = o.maxBody
		return h, nil
	}
	sc, err := replay.LoadScenario(o.replayPath)
	if err != nil {
		return nil, err
	}
	return replay.NewExecutor(sc), nil
}

// Close saves the recorded scenario, if any, and closes the trace.
func (s *session) Close() error {
	var err error
	if s.exchange != nil {
		err = s.exchange.Scenario().Save(s.opts.recordPath)
	}
	return errors.Join(err, s.tw.Close())
}

// finish records and commits one result. It is called serialized.
func (s *session) finish(r *pipeline.Result) error {
	if s.recorder != nil {
		if err := s.recorder.Record(r); err != nil {
			return err
		}
	}
	if s.store != nil {
		return s.store.CommitResult(r)
	}
	return nil
}

func (s *session) print(w io.Writer, results []*pipeline.Result) error {
	styles := report.Styles{Plain: s.opts.plain}
	switch {
	case s.opts.jsonOut:
		var v any = results
		if len(results) == 1 {
			v = results[0]
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, s.tw.Redact(string(data)))
	case s.opts.markdown:
		var md strings.Builder
		for _, r := range results {
			md.WriteString(report.Markdown(r))
			md.WriteString("\n")
		}
		out := md.String()
		if !s.opts.plain {
			out = report.RenderMarkdown(out, 100)
		}
		fmt.Fprintln(w, s.tw.Redact(out))
	default:
		for _, r := range results {
			fmt.Fprint(w, s.tw.Redact(report.Text(r, styles)))
		}
		if len(results) > 1 {
			fmt.Fprint(w, "\n"+s.tw.Redact(report.Summary(results, styles)))
		}
	}
	for _, r := range results {
		if !r.Passed() {
			return errRunFailed
		}
	}
	return nil
}

// writerLogger prints pipeline progress lines.
type writerLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *writerLogger) Logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format+"\n", args...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// --- run ---

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [collection.yaml] [request-path]",
	Short: "Run one request of a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return runOne(ctx, cmd.OutOrStdout(), &runOpts, args[0], args[1], nil)
	},
}

func runOne(ctx context.Context, w io.Writer, o *runOptions, collectionPath, path string, exec pipeline.Executor) (err error) {
	s, err := o.open(collectionPath, exec)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	job, err := schema.Plan(s.src, path)
	if err != nil {
		return err
	}
	r := s.orch.Execute(ctx, job.Def, job.Levels)
	if err := s.finish(r); err != nil {
		return err
	}
	return s.print(w, []*pipeline.Result{r})
}

// --- run-all ---

var runAllOpts runOptions

var runAllCmd = &cobra.Command{
	Use:   "run-all [collection.yaml] [folder]",
	Short: "Run every request of a collection, or of one folder",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 2 {
			prefix = args[1]
		}
		ctx, cancel := signalContext()
		defer cancel()
		return runAll(ctx, cmd.OutOrStdout(), &runAllOpts, args[0], prefix, nil)
	},
}

func runAll(ctx context.Context, w io.Writer, o *runOptions, collectionPath, prefix string, exec pipeline.Executor) (err error) {
	s, err := o.open(collectionPath, exec)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	jobs, err := schema.PlanAll(s.src, prefix)
	if err != nil {
		return err
	}
	results, err := s.orch.RunAll(ctx, jobs, o.parallel, s.finish)
	if err != nil {
		return err
	}
	return s.print(w, results)
}

func init() {
	runOpts.register(runCmd)
	runAllOpts.register(runAllCmd)
	runAllCmd.Flags().IntVarP(&runAllOpts.parallel, "parallel", "p", 1, "Maximum runs in flight")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runAllCmd)
}
