package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tourze/php-packer-sub000/internal/perror"
	"github.com/tourze/php-packer-sub000/internal/phpast"
)

// bucket groups definitions by fully-qualified name while preserving first-
// seen order, the shape spec.md §4.7's dedup step needs: "keep first" policies
// must keep the textually-first definition, and namespace output order
// follows declaration order, not name order.
type bucket struct {
	order []string
	byFQN map[string][]definition
}

func newBucket() *bucket {
	return &bucket{byFQN: map[string][]definition{}}
}

func (b *bucket) add(d definition) {
	fqn := d.node.FQN
	if _, ok := b.byFQN[fqn]; !ok {
		b.order = append(b.order, fqn)
	}
	b.byFQN[fqn] = append(b.byFQN[fqn], d)
}

// dedupe implements spec.md §4.7's three dedup policies, one per definition
// kind, and returns the final statement list for one bucket (global scope or
// one namespace) in first-seen order.
func (m *Merger) dedupe(b *bucket) []*phpast.Node {
	var out []*phpast.Node
	for _, fqn := range b.order {
		defs := b.byFQN[fqn]
		if len(defs) == 1 {
			out = append(out, defs[0].node)
			continue
		}

		switch defs[0].node.Kind {
		case phpast.KindFunction:
			out = append(out, m.dedupeFunctions(fqn, defs)...)
		case phpast.KindClass, phpast.KindInterface, phpast.KindTrait:
			out = append(out, m.dedupeTypes(fqn, defs)...)
		default: // KindConst and anything else: keep first, drop rest silently
			out = append(out, defs[0].node)
			m.stats.DedupedDropped += len(defs) - 1
		}
	}
	return out
}

// dedupeTypes implements the class/interface/trait policy: if every
// duplicate has the same set of method names (property differences are
// ignored, per spec.md §4.7), they're structurally equivalent and only the
// first survives; otherwise all variants are kept and a warning is logged,
// since the packer can't safely pick one.
func (m *Merger) dedupeTypes(fqn string, defs []definition) []*phpast.Node {
	first := methodNames(defs[0].node)
	equivalent := true
	for _, d := range defs[1:] {
		if !sameStringSet(first, methodNames(d.node)) {
			equivalent = false
			break
		}
	}
	if equivalent {
		m.stats.DedupedClasses += len(defs) - 1
		return []*phpast.Node{defs[0].node}
	}

	for _, d := range defs[1:] {
		m.Handler.HandleWarning(&perror.DuplicateSymbol{
			Kind: defs[0].node.Kind.String(),
			FQN:  fqn,
			Keep: int(defs[0].source.ID),
			Drop: int(d.source.ID),
		})
	}
	out := make([]*phpast.Node, len(defs))
	for i, d := range defs {
		out[i] = d.node
	}
	return out
}

func methodNames(n *phpast.Node) []string {
	var names []string
	for _, c := range n.Children {
		if c.Kind == phpast.KindClassMethod {
			names = append(names, c.MethodName)
		}
	}
	sort.Strings(names)
	return names
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hostVersionMarkers are the literal text fragments spec.md §9's Design
// Notes call out as the (deliberately fragile) signal that two function
// bodies are host-version variants of each other, rather than a genuine
// duplicate definition.
var hostVersionMarkers = []struct {
	text string
	expr string
}{
	{"version 8", "host_version_id >= 80000"},
	{"version 7", "host_version_id < 80000"},
}

// dedupeFunctions implements the function policy: exactly two variants whose
// source text carries complementary host-version markers are synthesised
// into a single `if (host_version_id >= 80000) { v8 } else { v7 }` wrapper;
// anything else keeps the first variant and drops the rest with a warning.
func (m *Merger) dedupeFunctions(fqn string, defs []definition) []*phpast.Node {
	if len(defs) == 2 {
		if wrapper := synthesizeHostVersionGuard(fqn, defs[0], defs[1]); wrapper != nil {
			m.stats.DedupedFunctionsMerged++
			return []*phpast.Node{wrapper}
		}
	}

	m.Handler.HandleWarning(&perror.GeneralPackerError{Message: fmt.Sprintf("merge: %d definitions of function %q found with no host-version split, keeping first (from %s)", len(defs), fqn, sourcePaths(defs))})
	m.stats.DedupedDropped += len(defs) - 1
	return []*phpast.Node{defs[0].node}
}

// synthesizeHostVersionGuard returns the guard wrapper node if a and b each
// carry one (and only one, distinct) host-version marker in their original
// source text; nil otherwise.
func synthesizeHostVersionGuard(fqn string, a, b definition) *phpast.Node {
	markerA := markerIndex(a)
	markerB := markerIndex(b)
	if markerA < 0 || markerB < 0 || markerA == markerB {
		return nil
	}

	v8, v7 := a, b
	if markerA != 0 {
		v8, v7 = b, a
	}

	wrapper := phpast.NewNode(phpast.KindConditional, v8.node.StartLine)
	wrapper.Name = fqn
	wrapper.Attrs = map[string]any{"host_version_guard": hostVersionMarkers[0].expr}
	wrapper.Children = []*phpast.Node{v8.node, v7.node}
	return wrapper
}

// markerIndex returns the index into hostVersionMarkers matched by d's
// original source text within its function's line range, or -1 if none (or
// more than one) matches.
func markerIndex(d definition) int {
	text := sourceSlice(d.source.Content, d.node.StartLine, d.node.EndLine)
	found := -1
	for i, marker := range hostVersionMarkers {
		if strings.Contains(text, marker.text) {
			if found >= 0 {
				return -1
			}
			found = i
		}
	}
	return found
}

func sourceSlice(content string, startLine, endLine int) string {
	if startLine < 1 {
		startLine = 1
	}
	lines := strings.Split(content, "\n")
	if startLine > len(lines) {
		return ""
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if endLine < startLine {
		endLine = startLine
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}

func sourcePaths(defs []definition) string {
	paths := make([]string, len(defs))
	for i, d := range defs {
		paths[i] = d.source.Path
	}
	return strings.Join(paths, ", ")
}
