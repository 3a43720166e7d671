package merge

import "github.com/tourze/php-packer-sub000/internal/phpast"

// rewriteAndStripImports mutates root in place: every name reference
// (extends/implements/use_trait/new/static-call target) is rewritten to its
// fully-qualified form using the namespace/import context active at that
// point, and every use-import statement is deleted, per spec.md §4.7 step 2
// ("deletes every use import and rewrites short names to the resolved
// FQCN").
func rewriteAndStripImports(root *phpast.Node) {
	ns := ""
	var imports []phpast.UseImport
	root.Children = rewriteSiblings(root.Children, &ns, &imports)
}

func fqnOf(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + `\` + name
}

func isSpecialRef(name string) bool {
	switch name {
	case "self", "static", "parent":
		return true
	}
	return false
}

func rewriteSiblings(nodes []*phpast.Node, ns *string, imports *[]phpast.UseImport) []*phpast.Node {
	out := make([]*phpast.Node, 0, len(nodes))
	for _, n := range nodes {
		switch n.Kind {
		case phpast.KindNamespace:
			if len(n.Children) > 0 {
				childNS := n.Name
				childImports := []phpast.UseImport{}
				n.Children = rewriteSiblings(n.Children, &childNS, &childImports)
			} else {
				*ns = n.Name
				*imports = nil
			}
			out = append(out, n)

		case phpast.KindUseImport, phpast.KindGroupUseImport:
			*imports = append(*imports, n.Imports...)
			// Dropped: use-import statements do not survive into merged output.

		case phpast.KindDirective:
			// Dropped: host-level directive statements (declare(...)) are
			// per-file and meaningless once concatenated, spec.md §4.7 step 2.

		case phpast.KindClass:
			n.FQN = fqnOf(*ns, n.Name)
			n.Namespace = *ns
			resolveAll(n.Extends, *ns, *imports)
			resolveAll(n.Implements, *ns, *imports)
			resolveAll(n.UseTraits, *ns, *imports)
			n.Children = rewriteSiblings(n.Children, ns, imports)
			out = append(out, n)

		case phpast.KindInterface:
			n.FQN = fqnOf(*ns, n.Name)
			n.Namespace = *ns
			resolveAll(n.Extends, *ns, *imports)
			n.Children = rewriteSiblings(n.Children, ns, imports)
			out = append(out, n)

		case phpast.KindTrait:
			n.FQN = fqnOf(*ns, n.Name)
			n.Namespace = *ns
			n.Children = rewriteSiblings(n.Children, ns, imports)
			out = append(out, n)

		case phpast.KindFunction:
			n.FQN = fqnOf(*ns, n.Name)
			n.Namespace = *ns
			n.Children = rewriteSiblings(n.Children, ns, imports)
			out = append(out, n)

		case phpast.KindConst:
			n.FQN = fqnOf(*ns, n.Name)
			n.Namespace = *ns
			out = append(out, n)

		case phpast.KindNewExpr:
			if n.IsAnonClass {
				resolveAll(n.Extends, *ns, *imports)
				resolveAll(n.Implements, *ns, *imports)
				resolveAll(n.UseTraits, *ns, *imports)
				n.Children = rewriteSiblings(n.Children, ns, imports)
			} else if n.RefName != "" && !isSpecialRef(n.RefName) {
				n.RefName = phpast.ResolveName(*ns, *imports, n.RefName)
			}
			out = append(out, n)

		case phpast.KindStaticCall, phpast.KindClassConstAccess:
			if n.RefName != "" && !isSpecialRef(n.RefName) {
				n.RefName = phpast.ResolveName(*ns, *imports, n.RefName)
			}
			out = append(out, n)

		default:
			n.Children = rewriteSiblings(n.Children, ns, imports)
			out = append(out, n)
		}
	}
	return out
}

func resolveAll(names []string, ns string, imports []phpast.UseImport) {
	for i, name := range names {
		names[i] = phpast.ResolveName(ns, imports, name)
	}
}
