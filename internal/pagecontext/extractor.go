// Package pagecontext builds the per-question context snapshot from the
// EM&V analysis page: the project fields, the derived location and the
// most recent analysis results.
package pagecontext

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Gdockery/synerex-platform-sub002/internal/formfield"
	"github.com/Gdockery/synerex-platform-sub002/internal/location"
)

// Project holds the non-empty project fields found on the page.
type Project map[string]string

// Analysis is a snapshot of the analysis results rendered on the page.
type Analysis struct {
	Results    []string          `json:"results,omitempty"`
	Metrics    map[string]string `json:"metrics,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
}

// IsZero reports whether the snapshot holds no results or metrics.
func (a Analysis) IsZero() bool {
	return len(a.Results) == 0 && len(a.Metrics) == 0
}

// Equal compares content, ignoring CapturedAt.
func (a Analysis) Equal(b Analysis) bool {
	if len(a.Results) != len(b.Results) || len(a.Metrics) != len(b.Metrics) {
		return false
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	for k, v := range a.Metrics {
		if bv, ok := b.Metrics[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// Selectors for analysis result and metric nodes.
const (
	ResultsSelector = "#analysisResults, .analysis-result, [data-analysis-result]"
	MetricsSelector = "[data-metric]"
)

// Source yields the page to read. It is called once per extraction so
// that a page which changes between questions is always read fresh.
type Source func(ctx context.Context) (formfield.Reader, error)

// StaticSource always returns r.
func StaticSource(r formfield.Reader) Source {
	return func(context.Context) (formfield.Reader, error) { return r, nil }
}

// FileSource parses the HTML file at path on every call.
func FileSource(path string) Source {
	return func(context.Context) (formfield.Reader, error) {
		return formfield.LoadFile(path)
	}
}

// ExtractorConfig configures an Extractor. Only Source is required.
type ExtractorConfig struct {
	Source   Source
	Table    formfield.Table
	Resolver location.Resolver
	Logger   *slog.Logger
}

// Extractor reads project context and analysis results from a page. It
// has no side effects beyond logging.
type Extractor struct {
	source   Source
	table    formfield.Table
	resolver location.Resolver
	logger   *slog.Logger
}

// NewExtractor creates an Extractor, filling unset fields with the
// default table, location.Resolve and slog.Default().
func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.Table == nil {
		cfg.Table = formfield.DefaultTable()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = location.Resolve
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Extractor{
		source:   cfg.Source,
		table:    cfg.Table,
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
	}
}

func (e *Extractor) reader(ctx context.Context) (formfield.Reader, error) {
	if e == nil || e.source == nil {
		return nil, fmt.Errorf("no page source configured")
	}
	return e.source(ctx)
}

// Project returns the project fields currently on the page. It never
// fails: an unreadable page yields an empty map. A diagnostic listing
// every checked field is logged at debug level.
func (e *Extractor) Project(ctx context.Context) Project {
	r, err := e.reader(ctx)
	if err != nil {
		e.log().Debug("project context unavailable", "error", err)
		return Project{}
	}

	values, checks := e.table.Resolve(ctx, r)

	found := make([]string, 0, len(checks))
	missing := make([]string, 0, len(checks))
	for _, c := range checks {
		if c.Found {
			found = append(found, c.Field+"="+c.Selector)
		} else {
			missing = append(missing, c.Field)
		}
		if c.Err != nil {
			e.log().Debug("field selector failed", "field", c.Field, "error", c.Err)
		}
	}
	e.log().Debug("project fields checked",
		"found", strings.Join(found, ","),
		"missing", strings.Join(missing, ","),
	)

	return Project(values)
}

// Location resolves location data from the fields currently on the page.
func (e *Extractor) Location(ctx context.Context) location.Data {
	return e.ResolveLocation(e.Project(ctx))
}

// ResolveLocation applies the configured resolver to already-extracted
// project fields.
func (e *Extractor) ResolveLocation(p Project) location.Data {
	if e == nil || e.resolver == nil {
		return location.Resolve(p)
	}
	return e.resolver(p)
}

// Analysis reads the analysis result and metric nodes. A missing or
// unreadable page yields an empty snapshot.
func (e *Extractor) Analysis(ctx context.Context) Analysis {
	a := Analysis{CapturedAt: time.Now()}

	r, err := e.reader(ctx)
	if err != nil {
		e.log().Debug("analysis results unavailable", "error", err)
		return a
	}

	results, err := r.Lookup(ctx, ResultsSelector)
	if err != nil {
		e.log().Debug("analysis results lookup failed", "error", err)
	}
	for _, el := range results {
		if v := el.FieldValue(); v != "" {
			a.Results = append(a.Results, v)
		}
	}

	metrics, err := r.Lookup(ctx, MetricsSelector)
	if err != nil {
		e.log().Debug("analysis metrics lookup failed", "error", err)
	}
	for _, el := range metrics {
		name := el.Attrs["data-metric"]
		v := el.FieldValue()
		if name == "" || v == "" {
			continue
		}
		if a.Metrics == nil {
			a.Metrics = make(map[string]string)
		}
		a.Metrics[name] = v
	}
	return a
}

func (e *Extractor) log() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}
