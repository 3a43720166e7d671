// Package merge is the AST Merger (C7, spec.md §4.7): groups definitions
// per namespace, deduplicates by fully-qualified name, synthesises
// conditional definitions when the only diverging factor is a host-version
// guard, strips per-file directives, and tags external code with
// provenance comments.
package merge

import (
	"fmt"

	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/phpast"
	"github.com/tourze/php-packer-sub000/internal/phpparser"
	"github.com/tourze/php-packer-sub000/internal/reporter"
)

// Merger is C7.
type Merger struct {
	Parser  phpparser.Parser
	Handler *reporter.Handler
	// Optimize enables the post-merge optimisation pass (spec.md §4.7's
	// "optional" private-member removal). Off by default: it is only safe
	// when reflection is not used on private members.
	Optimize bool

	stats Stats
}

// Stats accumulates the observability counters spec.md §4.7 asks for
// ("Statistics (removed counts) are accumulated for reporting").
type Stats struct {
	DedupedClasses             int
	DedupedFunctionsMerged     int
	DedupedDropped             int
	OptimizedPrivateMethods    int
	OptimizedPrivateProperties int
}

// New constructs a Merger using the bundled parser.
func New(h *reporter.Handler) *Merger {
	return &Merger{Parser: phpparser.DefaultParser{}, Handler: h}
}

// Stats returns the statistics accumulated over every Merge call made on
// this Merger; they are never reset.
func (m *Merger) Stats() Stats { return m.stats }

// Merge implements spec.md §4.7's pipeline over files, already ordered by
// C6, each carrying its stored content.
func (m *Merger) Merge(files []*model.File) (*phpast.Node, error) {
	var externalFiles, projectFiles []*model.File
	for _, f := range files {
		if f.IsExternal {
			externalFiles = append(externalFiles, f)
		} else {
			projectFiles = append(projectFiles, f)
		}
	}

	var externalNodes []*phpast.Node
	for _, f := range externalFiles {
		nodes, err := m.processExternal(f)
		if err != nil {
			m.Handler.HandleWarning(err)
			continue
		}
		externalNodes = append(externalNodes, nodes...)
	}

	globalBucket := newBucket()
	nsBuckets := map[string]*bucket{}
	var nsOrder []string

	for _, f := range projectFiles {
		defs, err := m.processProject(f)
		if err != nil {
			m.Handler.HandleWarning(err)
			continue
		}
		for _, d := range defs {
			var b *bucket
			if d.namespace == "" {
				b = globalBucket
			} else {
				if _, ok := nsBuckets[d.namespace]; !ok {
					nsBuckets[d.namespace] = newBucket()
					nsOrder = append(nsOrder, d.namespace)
				}
				b = nsBuckets[d.namespace]
			}
			b.add(d)
		}
	}

	root := phpast.NewNode(phpast.KindFile, 0)
	root.Children = append(root.Children, externalNodes...)

	globalStmts := m.dedupe(globalBucket)
	root.Children = append(root.Children, globalStmts...)

	for _, ns := range nsOrder {
		stmts := m.dedupe(nsBuckets[ns])
		wrapper := phpast.NewNode(phpast.KindNamespace, 0)
		wrapper.Name = ns
		wrapper.Children = stmts
		root.Children = append(root.Children, wrapper)
	}

	if m.Optimize {
		m.optimize(root)
	}

	return root, nil
}

// processExternal implements spec.md §4.7 step 2: re-parse, resolve, strip
// imports and directive statements, tag provenance, and return the flat
// statement list to concatenate.
func (m *Merger) processExternal(f *model.File) ([]*phpast.Node, error) {
	root, err := m.Parser.Parse(f.Path, []byte(f.Content))
	if err != nil {
		return nil, err
	}
	rewriteAndStripImports(root)
	stmts := root.Children
	if len(stmts) > 0 {
		tagProvenance(stmts[0], fmt.Sprintf("External file: %s", f.Path))
	}
	return stmts, nil
}

// definition is one definition statement collected from a project file,
// tagged with the namespace it was declared under and the source file it
// came from (needed by host-version-guard synthesis, which inspects the
// original source text).
type definition struct {
	namespace string
	node      *phpast.Node
	source    *model.File
}

// processProject implements spec.md §4.7 step 3: re-parse, resolve, then
// keep only definition statements.
func (m *Merger) processProject(f *model.File) ([]definition, error) {
	root, err := m.Parser.Parse(f.Path, []byte(f.Content))
	if err != nil {
		return nil, err
	}
	rewriteAndStripImports(root)
	return collectDefinitions(root, f), nil
}

// collectDefinitions walks root keeping only class/interface/trait/
// function/constant declarations (spec.md's "definition statement"),
// dropping everything else: top-level statements, imports, directives.
func collectDefinitions(root *phpast.Node, source *model.File) []definition {
	var out []definition
	ns := ""
	var walk func(nodes []*phpast.Node, ns string)
	walk = func(nodes []*phpast.Node, ns string) {
		for _, n := range nodes {
			switch n.Kind {
			case phpast.KindNamespace:
				if len(n.Children) > 0 {
					walk(n.Children, n.Name)
				} else {
					ns = n.Name
				}
			case phpast.KindClass, phpast.KindInterface, phpast.KindTrait, phpast.KindFunction, phpast.KindConst:
				out = append(out, definition{namespace: ns, node: n, source: source})
			}
		}
	}
	walk(root.Children, ns)
	return out
}

// tagProvenance stamps n.Attrs with a provenance marker; the final
// pretty-printer (out of scope here) is expected to render it as a leading
// comment.
func tagProvenance(n *phpast.Node, text string) {
	if n.Attrs == nil {
		n.Attrs = map[string]any{}
	}
	n.Attrs["provenance"] = text
}
