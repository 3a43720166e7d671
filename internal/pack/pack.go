// Package pack is the Orchestrator (C8, spec.md §4.8 / §2): ties the
// autoload resolver, analyzer, dependency resolver, topological sorter, and
// AST merger together for a single pack(entry) invocation.
package pack

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tourze/php-packer-sub000/internal/analyzer"
	"github.com/tourze/php-packer-sub000/internal/autoload"
	"github.com/tourze/php-packer-sub000/internal/config"
	"github.com/tourze/php-packer-sub000/internal/merge"
	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/pathutil"
	"github.com/tourze/php-packer-sub000/internal/perror"
	"github.com/tourze/php-packer-sub000/internal/phpast"
	"github.com/tourze/php-packer-sub000/internal/reporter"
	"github.com/tourze/php-packer-sub000/internal/resolve"
	"github.com/tourze/php-packer-sub000/internal/store"
	"github.com/tourze/php-packer-sub000/internal/topo"
)

// manifestName and externalDirName are the conventional sibling paths
// spec.md §6 describes ("a dependency-manager manifest" / "the
// external-packages directory") without naming — this repo follows the
// composer.json / vendor convention the autoload resolver's manifest
// ingestion already mirrors.
const (
	manifestName    = "composer.json"
	externalDirName = "vendor"
)

// PackResult is what a successful pack() invocation hands back to an
// out-of-scope output-writing stage: the merged AST plus the asset
// pass-through list (spec.md §6, SPEC_FULL.md's supplemented features).
type PackResult struct {
	Merged    *phpast.Node
	LoadOrder []*model.File
	Assets    []string
	Stats     merge.Stats
}

// Orchestrator is C8.
type Orchestrator struct {
	Logger *slog.Logger
}

// New constructs an Orchestrator. A nil logger defaults to slog.Default(),
// the way the teacher's compiler.go does.
func New(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Logger: logger}
}

// Pack runs spec.md §2's full data flow for one Config: ingest the
// manifest, resolve the entry file's transitive closure, sort it, exclude
// configured patterns, merge, and (if Config.Debug) dump a diagnostic JSON
// file alongside the database.
func (o *Orchestrator) Pack(c *config.Config) (*PackResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cr := &reporter.CollectingReporter{}
	h := reporter.NewHandler(cr)

	dbPath := pathutil.MakeAbsolute(c.Database, c.ProjectRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, &perror.ConfigurationError{Key: "database", Message: err.Error()}
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, &perror.ConfigurationError{Key: "database", Message: err.Error()}
	}
	defer s.Close()

	externalDir := filepath.Join(c.ProjectRoot, externalDirName)
	al := autoload.NewResolver()
	manifestPath := filepath.Join(c.ProjectRoot, manifestName)
	if _, statErr := os.Stat(manifestPath); statErr == nil {
		al.IngestManifest(manifestPath, c.ProjectRoot, externalDir, h)
	}

	a := analyzer.New(s, c.ProjectRoot, externalDir, h)
	r := resolve.New(s, a, al, c.ProjectRoot, h)

	entryRel := pathutil.RelativeTo(pathutil.Normalize(c.Entry), pathutil.Normalize(c.ProjectRoot))
	// Errors already reported through h (e.g. a non-entry parse failure)
	// do not stop the run; they surface through h.Error() below.
	if err := r.ResolveAll(entryRel); err != nil && !errors.Is(err, reporter.ErrInvalidSource) {
		var notFound *perror.FileNotFound
		if errors.As(err, &notFound) {
			return nil, &perror.ConfigurationError{Key: "entry", Message: err.Error()}
		}
		return nil, err
	}

	entry, err := s.GetFileByPath(entryRel)
	if err != nil || entry == nil {
		return nil, &perror.ConfigurationError{Key: "entry", Message: "entry file was not analyzed"}
	}

	order, err := topo.SortFiles(s, entry.ID, h)
	if err != nil {
		return nil, err
	}

	order, excluded := applyExclude(order, c.Exclude)
	for _, path := range excluded {
		o.Logger.Info("pack: excluded file from load order", "path", path)
	}

	m := merge.New(h)
	m.Optimize = c.OptimizeCode
	merged, err := m.Merge(order)
	if err != nil {
		return nil, err
	}

	result := &PackResult{
		Merged:    merged,
		LoadOrder: order,
		Assets:    append([]string(nil), c.Assets...),
		Stats:     m.Stats(),
	}

	if c.Debug {
		if err := writeDebugDump(dbPath, order, cr); err != nil {
			o.Logger.Warn("pack: failed to write debug dump", "error", err)
		}
	}

	if err := h.Error(); err != nil {
		return result, err
	}
	return result, nil
}

// applyExclude drops files whose project-root-relative path matches any of
// patterns (filepath.Match glob syntax), per SPEC_FULL.md's supplemented
// "exclude" handling: applied after C6 produces the load order and before
// C7 merges.
func applyExclude(order []*model.File, patterns []string) (kept []*model.File, excluded []string) {
	if len(patterns) == 0 {
		return order, nil
	}
	for _, f := range order {
		matched := false
		for _, pattern := range patterns {
			if ok, _ := filepath.Match(pattern, f.Path); ok {
				matched = true
				break
			}
		}
		if matched {
			excluded = append(excluded, f.Path)
			continue
		}
		kept = append(kept, f)
	}
	return kept, excluded
}

// debugDump is the shape written to <database>.debug.json when Config.Debug
// is set (SPEC_FULL.md's supplemented debug-graph-dump feature). Diagnostic
// only: it has no bearing on packing semantics.
type debugDump struct {
	LoadOrder []string `json:"load_order"`
	Warnings  []string `json:"warnings"`
	Errors    []string `json:"errors"`
}

func writeDebugDump(dbPath string, order []*model.File, cr *reporter.CollectingReporter) error {
	dump := debugDump{}
	for _, f := range order {
		dump.LoadOrder = append(dump.LoadOrder, f.Path)
	}
	for _, w := range cr.Warnings {
		dump.Warnings = append(dump.Warnings, w.Error())
	}
	for _, e := range cr.Errors {
		dump.Errors = append(dump.Errors, e.Error())
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(dbPath+".debug.json", data, 0o644)
}
