// Package console implements an interactive script console. Each line is
// run in the sandbox against one ScopeChain that lives for the session, so
// env.set in one line is visible to the next.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/resolve"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/scope"
)

// Console is a REPL over the script sandbox.
type Console struct {
	chain    *scope.Chain
	engine   sandbox.Engine
	budget   sandbox.Budget
	stage    sandbox.Stage
	request  *model.Request
	response *model.Response
	output   io.Writer
	lines    int
}

// Options configure a Console. Zero values take defaults.
type Options struct {
	Engine   sandbox.Engine
	Budget   sandbox.Budget
	Request  *model.Request  // exposed as request; nil leaves it undefined
	Response *model.Response // exposed as response; nil leaves it undefined
	Output   io.Writer
}

// New builds a session chain from levels.
func New(levels []scope.Table, opts Options) (*Console, error) {
	chain, err := scope.Build(levels)
	if err != nil {
		return nil, fmt.Errorf("build scope: %w", err)
	}
	c := &Console{
		chain:    chain,
		engine:   opts.Engine,
		budget:   opts.Budget,
		stage:    sandbox.StagePreRequest,
		request:  opts.Request,
		response: opts.Response,
		output:   opts.Output,
	}
	if c.engine == nil {
		c.engine = sandbox.NewJS()
	}
	if c.output == nil {
		c.output = os.Stdout
	}
	if c.response != nil {
		c.stage = sandbox.StagePostResponse
	}
	return c, nil
}

// Chain exposes the session scope.
func (c *Console) Chain() *scope.Chain { return c.chain }

var commands = []string{":vars", ":changes", ":resolve", ":stage", ":help", ":quit"}

// Run starts the interactive loop on the terminal. It returns on :quit,
// Ctrl-C or EOF.
func (c *Console) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(c.output, "arcanine console, levels: %s\n", levelList(c.chain.Levels()))
	fmt.Fprintf(c.output, "Type :help for commands. Anything else runs as a script.\n\n")

	for {
		rl.SetPrompt(c.prompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		if c.Handle(ctx, line) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Console) prompt() string {
	return fmt.Sprintf("arcanine[%s]> ", c.stage)
}

// Handle processes one input line and reports whether the session should
// end.
func (c *Console) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ":") {
		c.Eval(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case ":vars", ":v":
		c.handleVars(arg)
	case ":changes":
		c.handleChanges()
	case ":resolve", ":r":
		c.handleResolve(arg)
	case ":stage":
		c.handleStage(arg)
	case ":help", ":h", ":?":
		c.handleHelp()
	case ":quit", ":q":
		fmt.Fprintf(c.output, "Bye.\n")
		return true
	default:
		fmt.Fprintf(c.output, "Unknown command: %q. Type :help for available commands.\n", cmd)
	}
	return false
}

// Eval runs src as one script and prints its console output, test outcomes
// and error.
func (c *Console) Eval(ctx context.Context, src string) sandbox.StageResult {
	c.lines++
	sc := &sandbox.Context{
		Stage:    c.stage,
		Vars:     c.chain,
		Request:  c.request,
		Response: c.response,
	}
	res := c.engine.Run(ctx, sandbox.Script{Origin: fmt.Sprintf("console:%d", c.lines), Source: src}, sc, c.budget)
	for _, e := range res.Console {
		prefix := ""
		if e.Level != sandbox.ConsoleLog {
			prefix = string(e.Level) + ": "
		}
		fmt.Fprintf(c.output, "%s%s\n", prefix, e.Text)
	}
	for _, t := range res.Tests {
		mark := "✓"
		if !t.Passed {
			mark = "✗"
		}
		fmt.Fprintf(c.output, "  %s %s\n", mark, t.Name)
	}
	if res.Error != nil {
		fmt.Fprintf(c.output, "Error: %v\n", res.Error)
	}
	return res
}

func (c *Console) handleVars(arg string) {
	if arg != "" {
		level, err := scope.ParseLevel(arg)
		if err != nil {
			fmt.Fprintf(c.output, "%v\n", err)
			return
		}
		printVars(c.output, c.chain.Level(level), c.chain.SecretValues())
		return
	}
	printVars(c.output, c.chain.Flatten(), c.chain.SecretValues())
}

func printVars(w io.Writer, vars map[string]string, secrets []string) {
	if len(vars) == 0 {
		fmt.Fprintf(w, "No variables defined.\n")
		return
	}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		v := vars[k]
		if slices.Contains(secrets, v) {
			v = "********"
		}
		fmt.Fprintf(w, "  %s = %q\n", k, v)
	}
}

func (c *Console) handleChanges() {
	ch := c.chain.Changes()
	if ch.Empty() {
		fmt.Fprintf(c.output, "No changes.\n")
		return
	}
	for _, k := range sortedKeys(ch.Runtime) {
		fmt.Fprintf(c.output, "  runtime    %s = %q\n", k, ch.Runtime[k])
	}
	for _, k := range sortedKeys(ch.CollectionSet) {
		fmt.Fprintf(c.output, "  collection %s = %q\n", k, ch.CollectionSet[k])
	}
	for _, k := range ch.CollectionDeleted {
		fmt.Fprintf(c.output, "  collection %s deleted\n", k)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (c *Console) handleResolve(arg string) {
	if arg == "" {
		fmt.Fprintf(c.output, "Usage: :resolve <text with {{tokens}}>\n")
		return
	}
	res := resolve.Resolve(c.chain, arg, resolve.DefaultMaxDepth)
	fmt.Fprintf(c.output, "%s\n", res.Output)
	if len(res.Unresolved) > 0 {
		fmt.Fprintf(c.output, "unresolved: %s\n", strings.Join(res.Unresolved, ", "))
	}
}

func (c *Console) handleStage(arg string) {
	switch sandbox.Stage(arg) {
	case sandbox.StagePreRequest, sandbox.StagePostResponse, sandbox.StageTest:
		c.stage = sandbox.Stage(arg)
		fmt.Fprintf(c.output, "Stage set to %s.\n", c.stage)
	case "":
		fmt.Fprintf(c.output, "Current stage: %s\n", c.stage)
	default:
		fmt.Fprintf(c.output, "Unknown stage %q (pre-request, post-response, test).\n", arg)
	}
}

func (c *Console) handleHelp() {
	fmt.Fprintf(c.output, `Commands:
  :vars [level]     Show effective variables, or one level's table
  :changes          Show runtime and collection writes made so far
  :resolve <text>   Expand {{tokens}} in text
  :stage [name]     Show or set the stage scripts run as
  :help             Show this help
  :quit             Exit the console

Any other line runs as a script with env, collection, request, response,
assert, console and crypto in scope.
`)
}

func levelList(levels []scope.Level) string {
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.String()
	}
	return strings.Join(names, ", ")
}
