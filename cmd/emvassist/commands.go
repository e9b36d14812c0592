package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/Gdockery/synerex-platform-sub002/internal/aiclient"
	"github.com/Gdockery/synerex-platform-sub002/internal/config"
	"github.com/Gdockery/synerex-platform-sub002/internal/httpkit"
	"github.com/Gdockery/synerex-platform-sub002/internal/knowledge"
	"github.com/Gdockery/synerex-platform-sub002/internal/memory"
)

// askTimeout bounds a one-shot question: the backend's 60s chat
// deadline plus the health probe.
const askTimeout = 90 * time.Second

// commandConfig loads the config for a one-shot command and builds a
// quiet logger on stderr. Commands work without a config file.
func commandConfig(stderr io.Writer, configPath string) (*config.Config, *slog.Logger, error) {
	cfg, _, err := loadConfig(configPath, true)
	if err != nil {
		return nil, nil, err
	}
	logger, _ := newLogger(stderr, configuredLevel(cfg, slog.LevelWarn), cfg.LogFormat, "")
	return cfg, logger, nil
}

// runAsk handles "emvassist ask [-page file.html] <question>".
func runAsk(ctx context.Context, out output, stderr io.Writer, configPath string, args []string) error {
	var pageFile string
	var words []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-page" && i+1 < len(args):
			pageFile = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-page="):
			pageFile = strings.TrimPrefix(args[i], "-page=")
		default:
			words = append(words, args[i])
		}
	}
	question := strings.TrimSpace(strings.Join(words, " "))
	if question == "" {
		return usageError("ask [-page file.html] <question>")
	}

	cfg, logger, err := commandConfig(stderr, configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, askTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, appOptions{PageFile: pageFile})
	if err != nil {
		return err
	}
	defer a.Close()

	// Capture the analysis on the page before asking about it.
	a.watcher.Refresh(ctx)

	ans := a.assistant.Answer(ctx, question, nil)
	if out.json() {
		return out.encode(ans)
	}

	text := ans.Text
	if isTerminal(out.w) {
		text = renderMarkdown(text)
	}
	fmt.Fprintln(out.w, strings.TrimRight(text, "\n"))
	return nil
}

// runKB handles "emvassist kb [-type category] <query>". Without a
// query it lists the categories.
func runKB(out output, stderr io.Writer, configPath string, args []string) error {
	var category string
	var words []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-type" && i+1 < len(args):
			category = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-type="):
			category = strings.TrimPrefix(args[i], "-type=")
		default:
			words = append(words, args[i])
		}
	}
	query := strings.TrimSpace(strings.Join(words, " "))

	cfg, logger, err := commandConfig(stderr, configPath)
	if err != nil {
		return err
	}
	kb, err := loadKnowledge(cfg, logger)
	if err != nil {
		return err
	}

	if query == "" {
		if out.json() {
			return out.encode(map[string]any{"categories": kb.Categories()})
		}
		fmt.Fprintln(out.w, kb.DefaultMenu())
		return nil
	}

	entries := knowledge.Filter(kb.Search(query), category)
	if out.json() {
		return out.encode(map[string]any{"results": entries, "total_results": len(entries)})
	}
	if len(entries) == 0 {
		fmt.Fprintf(out.w, "No reference entries match %q.\n", query)
		return nil
	}
	fmt.Fprintln(out.w, knowledge.FormatEntries(entries))
	return nil
}

// runHealth handles "emvassist health". It exits non-zero when the
// backend is unreachable so it can be used from scripts.
func runHealth(ctx context.Context, out output, stderr io.Writer, configPath string) error {
	cfg, logger, err := commandConfig(stderr, configPath)
	if err != nil {
		return err
	}

	client := aiclient.New(aiclient.Config{
		BaseURL:    cfg.AI.BaseURL,
		HTTPClient: httpkit.NewClient(),
		Logger:     logger,
	})
	ok := client.TestConnection(ctx)
	status := client.Status()

	if out.json() {
		if err := out.encode(map[string]any{
			"url":    cfg.AI.BaseURL,
			"status": status,
			"model":  client.Model(),
		}); err != nil {
			return err
		}
	} else if ok {
		color.New(color.FgGreen).Fprintf(out.w, "AI Connected (%s)\n", client.Model())
		fmt.Fprintf(out.w, "  url: %s\n", cfg.AI.BaseURL)
	} else {
		color.New(color.FgRed).Fprintln(out.w, "AI Offline")
		fmt.Fprintf(out.w, "  url:   %s\n", cfg.AI.BaseURL)
		if status.LastError != "" {
			fmt.Fprintf(out.w, "  error: %s\n", status.LastError)
		}
	}

	if !ok {
		return fmt.Errorf("AI backend at %s is unavailable", cfg.AI.BaseURL)
	}
	return nil
}

// runHistory handles "emvassist history [clear]".
func runHistory(out output, stderr io.Writer, configPath string, args []string) error {
	cfg, logger, err := commandConfig(stderr, configPath)
	if err != nil {
		return err
	}
	store, mem, err := openMemory(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) > 0 {
		if args[0] != "clear" {
			return usageError("history [clear]")
		}
		if err := mem.ClearHistory(); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		fmt.Fprintln(out.w, "History cleared.")
		return nil
	}

	history := mem.History()
	if out.json() {
		return out.encode(map[string]any{"history": history, "count": len(history)})
	}
	if len(history) == 0 {
		fmt.Fprintln(out.w, "No conversation history.")
		return nil
	}
	for _, e := range history {
		fmt.Fprintf(out.w, "[%s] %s: %s\n", e.Timestamp, e.Role, e.Text)
	}
	return nil
}

// runPrefs handles "emvassist prefs [key=value ...]". Values that parse
// as JSON are stored typed; anything else is stored as a string.
func runPrefs(out output, stderr io.Writer, configPath string, args []string) error {
	update := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return usageError("prefs [key=value ...]")
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		update[key] = v
	}

	cfg, logger, err := commandConfig(stderr, configPath)
	if err != nil {
		return err
	}
	store, mem, err := openMemory(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	prefs := mem.Preferences()
	if len(update) > 0 {
		prefs, err = mem.UpdatePreferences(update)
		if err != nil {
			return fmt.Errorf("update preferences: %w", err)
		}
	}

	if out.json() {
		return out.encode(prefs)
	}
	printPreferences(out.w, prefs)
	return nil
}

func printPreferences(w io.Writer, prefs memory.Preferences) {
	if len(prefs) == 0 {
		fmt.Fprintln(w, "No preferences set.")
		return
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, err := json.Marshal(prefs[k])
		if err != nil {
			v = []byte(fmt.Sprint(prefs[k]))
		}
		fmt.Fprintf(w, "%s = %s\n", k, v)
	}
}

// markdownRenderer styles answers for the terminal. It is nil when the
// renderer could not be built, in which case answers print as-is.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		markdownRenderer = nil
	}
}

// renderMarkdown renders content for terminal display, returning it
// unchanged if rendering fails.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// isTerminal reports whether w is an interactive terminal. Piped and
// captured output is left as plain markdown.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
