package cli

import (
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
)

const versionString = "1.0.0"
const defaultConfigPath = "./data/config/nbcollab.toml"

type cliOptions struct {
	configPath string
	verbose    bool
	version    bool
	noImports  bool
	command    string

	format     string
	output     string
	inject     string
	eventsPath string
	notebookID string
	group      string
	allGroups  bool
	users      string
	since      string
	until      string
	window     string
	windows    bool
	ui         bool
	args       []string
}

type commandSpec struct {
	summary string
	formats []string
	// positional is the exact number of arguments; -1 accepts any number.
	positional int
}

var commands = map[string]commandSpec{
	"graph":    {summary: "Print the section dependency graph of a notebook", formats: []string{"text", "json", "mermaid"}, positional: 1},
	"schedule": {summary: "Print the ideal section schedule of a notebook", formats: []string{"text", "json", "markdown"}, positional: 1},
	"ingest":   {summary: "Store execution events from a JSON file", formats: []string{"text"}, positional: 1},
	"score":    {summary: "Score how closely executions followed the ideal schedule", formats: []string{"text", "json", "markdown"}, positional: 1},
	"trend":    {summary: "Show stored score runs over time", formats: []string{"text", "json", "tsv"}, positional: 0},
	"watch":    {summary: "Re-analyze notebooks as they change", formats: []string{"text"}, positional: -1},
}

var commandOrder = []string{"graph", "schedule", "ingest", "score", "trend", "watch"}

func parseOptions(args []string) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("nbcollab", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	fs.BoolVar(&opts.noImports, "no-imports", false, "Do not treat imports as definitions when building the graph")
	fs.Usage = func() { printUsage(fs.Output(), fs) }

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if opts.version {
		return opts, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return cliOptions{}, fmt.Errorf("a command is required: %s", strings.Join(commandOrder, ", "))
	}
	opts.command = rest[0]
	cmdSpec, ok := commands[opts.command]
	if !ok {
		return cliOptions{}, fmt.Errorf("unknown command %q (want one of %s)", opts.command, strings.Join(commandOrder, ", "))
	}

	sub := commandFlags(&opts)
	if err := sub.Parse(rest[1:]); err != nil {
		return cliOptions{}, err
	}
	opts.args = sub.Args()
	return opts, validateOptions(opts, cmdSpec)
}

func commandFlags(opts *cliOptions) *flag.FlagSet {
	fs := flag.NewFlagSet(opts.command, flag.ContinueOnError)
	cmdSpec := commands[opts.command]
	if len(cmdSpec.formats) > 1 {
		fs.StringVar(&opts.format, "format", "text", "Output format: "+strings.Join(cmdSpec.formats, ", "))
	} else {
		opts.format = "text"
	}

	switch opts.command {
	case "graph":
		fs.StringVar(&opts.output, "output", "", "Write output to this file instead of stdout")
		fs.StringVar(&opts.inject, "inject", "", "Inject the mermaid diagram into this markdown file between nbcollab:graph markers")
	case "schedule":
		fs.StringVar(&opts.output, "output", "", "Write output to this file instead of stdout")
	case "ingest":
		fs.StringVar(&opts.notebookID, "notebook", "", "Notebook id the events belong to (required)")
	case "score":
		fs.StringVar(&opts.eventsPath, "events", "", "Read executions from this JSON file instead of the history store")
		fs.StringVar(&opts.group, "group", "", "Score only the members of this group")
		fs.BoolVar(&opts.allGroups, "groups", false, "Score every group defined for the notebook")
		fs.StringVar(&opts.users, "users", "", "Comma-separated user ids to score")
		fs.StringVar(&opts.since, "since", "", "Ignore executions before this time (RFC3339 or YYYY-MM-DD)")
		fs.StringVar(&opts.until, "until", "", "Ignore executions after this time (RFC3339 or YYYY-MM-DD)")
		fs.BoolVar(&opts.windows, "windows", false, "Include observed windows in markdown output")
		fs.StringVar(&opts.output, "output", "", "Write output to this file instead of stdout")
	case "trend":
		fs.StringVar(&opts.notebookID, "notebook", "", "Notebook id to report on (required)")
		fs.StringVar(&opts.group, "group", "", "Restrict to runs of this group")
		fs.StringVar(&opts.since, "since", "", "Include runs at/after this time (RFC3339 or YYYY-MM-DD)")
		fs.StringVar(&opts.window, "window", "24h", "Moving-average window")
		fs.StringVar(&opts.output, "output", "", "Write output to this file instead of stdout")
	case "watch":
		fs.BoolVar(&opts.ui, "ui", false, "Enable terminal UI mode")
	}
	return fs
}

func validateOptions(opts cliOptions, cmdSpec commandSpec) error {
	if cmdSpec.positional >= 0 && len(opts.args) != cmdSpec.positional {
		switch opts.command {
		case "ingest":
			return fmt.Errorf("ingest requires one events file argument")
		case "trend":
			return fmt.Errorf("trend takes no positional arguments, use -notebook")
		default:
			return fmt.Errorf("%s requires one notebook path argument", opts.command)
		}
	}
	if !slices.Contains(cmdSpec.formats, opts.format) {
		return fmt.Errorf("%s: unsupported format %q (want one of %s)", opts.command, opts.format, strings.Join(cmdSpec.formats, ", "))
	}
	if (opts.command == "ingest" || opts.command == "trend") && strings.TrimSpace(opts.notebookID) == "" {
		return fmt.Errorf("%s requires -notebook", opts.command)
	}
	if opts.group != "" && opts.allGroups {
		return fmt.Errorf("-group and -groups cannot be combined")
	}
	if opts.inject != "" && opts.format != "mermaid" {
		return fmt.Errorf("-inject requires -format mermaid")
	}
	return nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: nbcollab [flags] <command> [command flags] [args]\n\nCommands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nFlags:\n")
	fs.PrintDefaults()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
