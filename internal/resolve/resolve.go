// Package resolve is the Dependency Resolver (C5, spec.md §4.5): drives a
// work queue over the include/use/extends/implements closure, resolving
// include paths and class references, retrying unresolved dependencies
// until a fixed point.
package resolve

import (
	"strings"

	"github.com/tourze/php-packer-sub000/internal/analyzer"
	"github.com/tourze/php-packer-sub000/internal/autoload"
	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/pathutil"
	"github.com/tourze/php-packer-sub000/internal/perror"
	"github.com/tourze/php-packer-sub000/internal/reporter"
	"github.com/tourze/php-packer-sub000/internal/store"
)

// defaultBuiltins is the fixed built-in allow list (spec.md §4.5): class
// names whose definitions come from the host runtime, never from project
// or external code the packer analyzes.
var defaultBuiltins = map[string]bool{
	"Exception":                true,
	"Error":                    true,
	"TypeError":                true,
	"ValueError":               true,
	"RuntimeException":         true,
	"InvalidArgumentException": true,
	"LogicException":           true,
	"ArgumentCountError":       true,
	"Throwable":                true,
	"stdClass":                 true,
	"Closure":                  true,
	"Generator":                true,
	"ArrayAccess":              true,
	"Iterator":                 true,
	"IteratorAggregate":        true,
	"Countable":                true,
	"Traversable":              true,
	"JsonSerializable":         true,
	"DateTime":                 true,
	"DateTimeImmutable":        true,
	"DateInterval":             true,
	"ArrayObject":              true,
	"SplStack":                 true,
	"SplQueue":                 true,
	"WeakMap":                  true,
}

// Resolver is C5.
type Resolver struct {
	Store       *store.Store
	Analyzer    *analyzer.Analyzer
	Autoload    *autoload.Resolver
	ProjectRoot string
	Handler     *reporter.Handler

	// ExternalPrefixes names namespace prefixes (e.g. "Psr\\") treated as
	// well-known-external: resolved-to-nothing like the builtins list.
	ExternalPrefixes []string

	exists func(string) bool

	inProgress  map[string]bool
	enqueued    map[string]bool
	maxFixedPointIterations int
}

// New constructs a Resolver with spec.md §4.5's default 5-iteration
// fixed-point bound.
func New(s *store.Store, a *analyzer.Analyzer, al *autoload.Resolver, projectRoot string, h *reporter.Handler) *Resolver {
	return &Resolver{
		Store:                   s,
		Analyzer:                a,
		Autoload:                al,
		ProjectRoot:             projectRoot,
		Handler:                 h,
		exists:                  pathutil.FileExists,
		inProgress:              map[string]bool{},
		enqueued:                map[string]bool{},
		maxFixedPointIterations: 5,
	}
}

func (r *Resolver) isBuiltin(fqn string) bool {
	name := fqn
	if idx := strings.LastIndex(name, `\`); idx >= 0 {
		name = name[idx+1:]
	}
	if defaultBuiltins[name] {
		return true
	}
	for _, prefix := range r.ExternalPrefixes {
		if strings.HasPrefix(fqn, prefix) {
			return true
		}
	}
	return false
}

// ResolveAll implements spec.md §4.5's resolve_all(entry_path).
func (r *Resolver) ResolveAll(entryPath string) error {
	entryPath = pathutil.Normalize(entryPath)
	r.enqueued[entryPath] = true
	if _, err := r.Store.Enqueue(entryPath, 1000); err != nil {
		return err
	}

	if err := r.drain(entryPath); err != nil {
		return err
	}
	if err := r.fixedPoint(); err != nil {
		return err
	}
	r.reportRemaining()
	return r.Handler.Error()
}

func (r *Resolver) drain(entryPath string) error {
	for {
		item, err := r.Store.NextWorkItem()
		if err != nil {
			return err
		}
		if item == nil {
			return nil
		}
		if r.inProgress[item.FilePath] {
			r.Handler.HandleWarningOnce(item.ID, &perror.GeneralPackerError{Message: "cycle detected re-enqueuing in-progress file: " + item.FilePath})
			r.Store.MarkWorkItem(item.ID, model.WorkDone)
			continue
		}
		r.inProgress[item.FilePath] = true

		f, err := r.Analyzer.Analyze(item.FilePath)
		if err != nil {
			r.Store.MarkWorkItem(item.ID, model.WorkFailed)
			if item.FilePath == entryPath {
				return err
			}
			// A non-entry file that fails to parse is a reportable error, not
			// a mere warning (perror.ParseError's own doc: "analysis_status
			// =failed and analysis continues"); it is routed through
			// HandleError so the Reporter's abort decision and the Handler's
			// aggregate Error() both see it, per spec.md §7.
			if herr := r.Handler.HandleError(err); herr != nil {
				return herr
			}
			continue
		}
		if f == nil {
			// Non-source file: ignored by C4, nothing further to do.
			r.Store.MarkWorkItem(item.ID, model.WorkDone)
			continue
		}

		deps, err := r.Store.DependenciesBySource(f.ID)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			if dep.IsResolved {
				continue
			}
			r.resolveOne(dep, f)
		}
		r.Store.MarkWorkItem(item.ID, model.WorkDone)
	}
}

func (r *Resolver) fixedPoint() error {
	for i := 0; i < r.maxFixedPointIterations; i++ {
		unresolved, err := r.Store.UnresolvedDependencies()
		if err != nil {
			return err
		}
		resolvedAny := false
		for _, dep := range unresolved {
			src, err := r.Store.GetFile(dep.SourceFileID)
			if err != nil || src == nil {
				continue
			}
			if r.resolveOne(dep, src) {
				resolvedAny = true
			}
		}
		if !resolvedAny {
			break
		}
		// Newly enqueued files from this iteration still need analysis
		// before the next one can see their dependencies.
		if err := r.drain(""); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) reportRemaining() {
	unresolved, err := r.Store.UnresolvedDependencies()
	if err != nil {
		return
	}
	for _, dep := range unresolved {
		if dep.DependencyType.IsIncludeFamily() {
			r.Handler.HandleWarningOnce(dep.ID, &perror.FileNotFound{Path: dep.Context, DependencyID: dep.ID})
			continue
		}
		if r.isBuiltin(dep.TargetSymbol) {
			continue
		}
		r.Handler.HandleWarningOnce(dep.ID, &perror.UnresolvedSymbol{FQN: dep.TargetSymbol, DependencyID: dep.ID})
	}
}

// resolveOne implements spec.md §4.5's resolve_one(dep) dispatch. It
// returns true if dep was newly resolved.
func (r *Resolver) resolveOne(dep *model.Dependency, source *model.File) bool {
	if dep.DependencyType.IsIncludeFamily() {
		return r.resolveInclude(dep, source)
	}
	return r.resolveClass(dep)
}

func (r *Resolver) resolveInclude(dep *model.Dependency, source *model.File) bool {
	switch dep.ContextKind {
	case "dynamic", "complex", "":
		return false
	}

	var candidates []string
	switch dep.ContextKind {
	case "dir":
		sourceDir := pathutil.Dir(source.Path)
		candidates = []string{pathutil.Join(r.ProjectRoot, sourceDir, dep.Context)}
	case "literal":
		if pathutil.IsAbsolute(dep.Context) {
			candidates = []string{pathutil.Normalize(dep.Context)}
		} else {
			sourceDir := pathutil.Dir(source.Path)
			candidates = []string{
				pathutil.Join(r.ProjectRoot, sourceDir, dep.Context),
				pathutil.Join(r.ProjectRoot, dep.Context),
				pathutil.Normalize(dep.Context),
			}
		}
	}

	for _, candidate := range candidates {
		if r.exists(candidate) {
			rel := pathutil.RelativeTo(candidate, r.ProjectRoot)
			return r.markResolved(dep, rel)
		}
	}
	return false
}

func (r *Resolver) resolveClass(dep *model.Dependency) bool {
	if r.isBuiltin(dep.TargetSymbol) {
		return false
	}

	if f, err := r.Store.FindFileBySymbol(dep.TargetSymbol); err == nil && f != nil {
		return r.markResolved(dep, f.Path)
	}

	if r.Autoload == nil {
		return false
	}
	path, ok := r.Autoload.Resolve(dep.TargetSymbol)
	if !ok {
		return false
	}
	rel := pathutil.RelativeTo(path, r.ProjectRoot)
	return r.markResolved(dep, rel)
}

func (r *Resolver) markResolved(dep *model.Dependency, relPath string) bool {
	relPath = pathutil.Normalize(relPath)
	fileID, err := r.Store.EnsureFile(relPath)
	if err != nil {
		return false
	}
	dep.TargetFileID = fileID
	dep.IsResolved = true
	if err := r.Store.UpdateDependency(dep); err != nil {
		return false
	}
	r.maybeEnqueue(relPath)
	return true
}

func (r *Resolver) maybeEnqueue(relPath string) {
	if r.enqueued[relPath] {
		return
	}
	f, err := r.Store.GetFileByPath(relPath)
	if err == nil && f != nil && f.AnalysisStatus == model.AnalysisCompleted {
		return
	}
	r.enqueued[relPath] = true
	r.Store.Enqueue(relPath, 100)
}
