// Package autoload is the Autoload Resolver (spec.md §4.3): maps a
// fully-qualified symbol name to a file path using PSR-4, PSR-0, classmap,
// and files rules read from a dependency-manager manifest.
package autoload

import (
	"sort"
	"strings"

	art "github.com/plar/go-adaptive-radix-tree"

	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/pathutil"
)

// psr4Entry and psr0Entry preserve registration order within a priority
// tier, per spec.md §5 ("insertion-order within priority").
type psr4Entry struct {
	prefix    string
	basePaths []string
	priority  int
	seq       int
}

type psr0Entry struct {
	prefix    string
	basePaths []string
	priority  int
	seq       int
}

// Resolver holds the four ordered maps spec.md §4.3 describes, after
// ingesting a manifest. The classmap is backed by an adaptive radix tree
// keyed by FQN, since it is an exact-match, high-cardinality lookup table
// that can grow to cover an entire vendor tree.
type Resolver struct {
	classmap art.Tree // fqn (string key) -> absolute path (string value)
	psr4     []psr4Entry
	psr0     []psr0Entry
	files    []string // unconditional includes, in registration order

	// exists is the filesystem existence check; overridable in tests.
	exists func(path string) bool

	seq int
}

// NewResolver constructs an empty Resolver. exists defaults to a real
// filesystem check if nil is passed to Ingest's caller via WithExistsFunc.
func NewResolver() *Resolver {
	return &Resolver{classmap: art.New()}
}

// WithExistsFunc overrides the filesystem-existence predicate used while
// walking psr4/psr0 candidates, for deterministic tests.
func (r *Resolver) WithExistsFunc(fn func(path string) bool) *Resolver {
	r.exists = fn
	return r
}

func (r *Resolver) existsFn() func(string) bool {
	if r.exists != nil {
		return r.exists
	}
	return pathutil.FileExists
}

// AddClassmapEntry registers one fqn -> absolute path mapping, as produced
// either by manifest ingestion or by the classmap-directory scan.
func (r *Resolver) AddClassmapEntry(fqn, path string) {
	r.classmap.Insert(art.Key(fqn), path)
}

// AddPSR4 registers a PSR-4 prefix -> base-paths rule at priority.
func (r *Resolver) AddPSR4(prefix string, basePaths []string, priority int) {
	r.seq++
	r.psr4 = append(r.psr4, psr4Entry{prefix: prefix, basePaths: basePaths, priority: priority, seq: r.seq})
}

// AddPSR0 registers a PSR-0 prefix -> base-paths rule at priority.
func (r *Resolver) AddPSR0(prefix string, basePaths []string, priority int) {
	r.seq++
	r.psr0 = append(r.psr0, psr0Entry{prefix: prefix, basePaths: basePaths, priority: priority, seq: r.seq})
}

// AddFilesEntry registers one unconditional-include path.
func (r *Resolver) AddFilesEntry(path string) {
	r.files = append(r.files, path)
}

// FilesEntries returns the registered unconditional includes in
// registration order (spec.md §4.3 item 4: "collected and emitted before
// any class-resolution pass").
func (r *Resolver) FilesEntries() []string {
	return append([]string(nil), r.files...)
}

// sortEntries orders psr4/psr0 rules priority DESC, insertion-order
// tiebreak, per spec.md §4.3's "ordered maps (priority DESC,
// insertion-order tiebreak)".
func (r *Resolver) sortEntries() {
	sort.SliceStable(r.psr4, func(i, j int) bool {
		if r.psr4[i].priority != r.psr4[j].priority {
			return r.psr4[i].priority > r.psr4[j].priority
		}
		return r.psr4[i].seq < r.psr4[j].seq
	})
	sort.SliceStable(r.psr0, func(i, j int) bool {
		if r.psr0[i].priority != r.psr0[j].priority {
			return r.psr0[i].priority > r.psr0[j].priority
		}
		return r.psr0[i].seq < r.psr0[j].seq
	})
}

// Resolve implements spec.md §4.3's resolve(fqn) algorithm:
//  1. Strip a leading backslash.
//  2. Look up classmap.
//  3. Walk psr4 in registration order.
//  4. Walk psr0.
//  5. Return "", false if all fail.
func (r *Resolver) Resolve(fqn string) (string, bool) {
	fqn = strings.TrimPrefix(fqn, `\`)

	if v, found := r.classmap.Search(art.Key(fqn)); found {
		return v.(string), true
	}

	r.sortEntries()
	exists := r.existsFn()

	for _, e := range r.psr4 {
		if !strings.HasPrefix(fqn, e.prefix) {
			continue
		}
		rest := strings.TrimPrefix(fqn, e.prefix)
		rest = strings.ReplaceAll(rest, `\`, "/")
		for _, base := range e.basePaths {
			candidate := pathutil.Normalize(pathutil.Join(base, rest) + ".php")
			if exists(candidate) {
				return candidate, true
			}
		}
	}

	for _, e := range r.psr0 {
		if !strings.HasPrefix(fqn, e.prefix) {
			continue
		}
		rel := psr0Path(fqn)
		for _, base := range e.basePaths {
			candidate := pathutil.Normalize(pathutil.Join(base, rel) + ".php")
			if exists(candidate) {
				return candidate, true
			}
		}
	}

	return "", false
}

// psr0Path implements spec.md §4.3's PSR-0 path rule: the full fqn, with
// "\" -> "/" and, in the local class part only, "_" -> "/".
func psr0Path(fqn string) string {
	lastSep := strings.LastIndex(fqn, `\`)
	namespacePart, localPart := "", fqn
	if lastSep >= 0 {
		namespacePart, localPart = fqn[:lastSep], fqn[lastSep+1:]
	}
	namespacePart = strings.ReplaceAll(namespacePart, `\`, "/")
	localPart = strings.ReplaceAll(localPart, "_", "/")
	if namespacePart == "" {
		return localPart
	}
	return namespacePart + "/" + localPart
}

// ClassmapEntry is one row produced by ScanClassmapDirectory's tokenizing
// walk, per spec.md §4.3: "each file is tokenized to a triple (namespace,
// kind, local_name) and indexed."
type ClassmapEntry struct {
	Namespace string
	Kind      model.SymbolKind
	LocalName string
	Path      string
}

// FQN returns the fully-qualified name this entry indexes under.
func (e ClassmapEntry) FQN() string {
	if e.Namespace == "" {
		return e.LocalName
	}
	return e.Namespace + `\` + e.LocalName
}
