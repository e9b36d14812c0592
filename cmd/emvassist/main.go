// Emvassist is the EM&V analysis assistant: it answers measurement and
// verification questions for the chat widget on the analysis page, using
// the local AI backend when it is reachable and an offline reference
// when it is not.
//
// Usage:
//
//	emvassist serve                     Start the API server and page watcher
//	emvassist ask [-page f.html] <q>    Ask a single question
//	emvassist kb [-type cat] <query>    Search the offline reference
//	emvassist health                    Probe the AI backend
//	emvassist history [clear]           Show or clear conversation history
//	emvassist prefs [key=value ...]     Show or update preferences
//	emvassist init [dir]                Write an example config
//	emvassist version                   Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Gdockery/synerex-platform-sub002/internal/buildinfo"
	"github.com/Gdockery/synerex-platform-sub002/internal/config"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the whole
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand rather than
// with the flag package, whose package-level state gets in the way of
// calling run concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			// Everything after the command belongs to it.
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}
	out := output{w: stdout, format: outputFmt}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		return runAsk(ctx, out, stderr, configPath, cmdArgs)
	case "kb":
		return runKB(out, stderr, configPath, cmdArgs)
	case "health":
		return runHealth(ctx, out, stderr, configPath)
	case "history":
		return runHistory(out, stderr, configPath, cmdArgs)
	case "prefs":
		return runPrefs(out, stderr, configPath, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(out)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// output writes command results as text or JSON.
type output struct {
	w      io.Writer
	format string
}

func (o output) json() bool { return o.format == "json" }

func (o output) encode(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runVersion prints build metadata in the requested output format.
func runVersion(out output) error {
	info := buildinfo.Get()
	if out.json() {
		return out.encode(info)
	}
	fmt.Fprintln(out.w, buildinfo.String())
	for _, f := range info.Fields() {
		fmt.Fprintf(out.w, "  %-12s %s\n", f[0]+":", f[1])
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "emvassist - EM&V analysis assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: emvassist [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                    Start the API server and page watcher")
	fmt.Fprintln(w, "  ask [-page f.html] <q>   Ask a single question")
	fmt.Fprintln(w, "  kb [-type cat] <query>   Search the offline reference")
	fmt.Fprintln(w, "  health                   Probe the AI backend")
	fmt.Fprintln(w, "  history [clear]          Show or clear conversation history")
	fmt.Fprintln(w, "  prefs [key=value ...]    Show or update preferences")
	fmt.Fprintln(w, "  init [dir]               Write an example config (default: .)")
	fmt.Fprintln(w, "  version                  Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/emvassist/config.yaml, /etc/emvassist/config.yaml")
	return nil
}

// newLogger builds the process logger. When file is set, records are
// also written to a size-rotated log file. The returned closer releases
// the file.
func newLogger(w io.Writer, level slog.Level, format, file string) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}

	handler := config.NewLogHandler(w, level, format)
	return slog.New(handler), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise
// [config.FindConfig] searches the default locations; when optional is
// true and nothing is found, the built-in defaults are used.
func loadConfig(explicit string, optional bool) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if optional && explicit == "" {
			return config.Default(), "", nil
		}
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// configuredLevel returns the config's log level, or fallback when none
// is set. Config.Validate has already rejected unknown names.
func configuredLevel(cfg *config.Config, fallback slog.Level) slog.Level {
	if cfg.LogLevel == "" {
		return fallback
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return fallback
	}
	return level
}

// errUsage marks a command-line usage mistake.
var errUsage = errors.New("usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}
