package analyzer

import (
	"strings"

	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/phpast"
)

// walker implements spec.md §4.4's two passes (name resolution + extraction)
// as a single traversal: every name is resolved at the point it is used,
// against the namespace/import context active there, so a second full pass
// over the tree is unnecessary — the effect is identical since imports in
// PHP may not appear after the first declaration that uses them.
type walker struct {
	a      *Analyzer
	fileID int64

	symbolCount int
	depCount    int
}

func (w *walker) run(root *phpast.Node) {
	ns := ""
	var imports []phpast.UseImport
	w.processSiblings(root.Children, &ns, &imports, false)
}

func (w *walker) resolve(ns string, imports []phpast.UseImport, name string) string {
	return phpast.ResolveName(ns, imports, name)
}

// processSiblings walks one list of sibling statements in source order,
// threading the mutable namespace/import context spec.md §4.4 describes
// ("Enter namespace: sets current namespace for descendants").
func (w *walker) processSiblings(nodes []*phpast.Node, ns *string, imports *[]phpast.UseImport, conditional bool) {
	for _, n := range nodes {
		w.processNode(n, ns, imports, conditional)
	}
}

func (w *walker) processNode(n *phpast.Node, ns *string, imports *[]phpast.UseImport, conditional bool) {
	switch n.Kind {
	case phpast.KindNamespace:
		if len(n.Children) > 0 {
			childNS := n.Name
			childImports := []phpast.UseImport{}
			w.processSiblings(n.Children, &childNS, &childImports, conditional)
		} else {
			*ns = n.Name
			*imports = nil
		}

	case phpast.KindUseImport, phpast.KindGroupUseImport:
		*imports = append(*imports, n.Imports...)
		for _, imp := range n.Imports {
			target := strings.TrimPrefix(imp.Name, `\`)
			w.recordDependency(model.DepUseClass, target, n.StartLine, conditional)
		}

	case phpast.KindClass:
		fqn := fqnOf(*ns, n.Name)
		n.FQN = fqn
		vis := visibilityOf(n)
		w.recordSymbol(model.SymbolClass, n.Name, fqn, *ns, vis, n.IsAbstract, n.IsFinal)
		for _, ext := range n.Extends {
			w.recordDependency(model.DepExtends, w.resolve(*ns, *imports, ext), n.StartLine, conditional)
		}
		for _, impl := range n.Implements {
			w.recordDependency(model.DepImplements, w.resolve(*ns, *imports, impl), n.StartLine, conditional)
		}
		for _, tr := range n.UseTraits {
			w.recordDependency(model.DepUseTrait, w.resolve(*ns, *imports, tr), n.StartLine, conditional)
		}
		w.processSiblings(n.Children, ns, imports, conditional)

	case phpast.KindInterface:
		fqn := fqnOf(*ns, n.Name)
		n.FQN = fqn
		w.recordSymbol(model.SymbolInterface, n.Name, fqn, *ns, model.VisibilityPublic, false, false)
		for _, ext := range n.Extends {
			w.recordDependency(model.DepExtends, w.resolve(*ns, *imports, ext), n.StartLine, conditional)
		}
		w.processSiblings(n.Children, ns, imports, conditional)

	case phpast.KindTrait:
		fqn := fqnOf(*ns, n.Name)
		n.FQN = fqn
		w.recordSymbol(model.SymbolTrait, n.Name, fqn, *ns, model.VisibilityPublic, false, false)
		w.processSiblings(n.Children, ns, imports, conditional)

	case phpast.KindFunction:
		fqn := fqnOf(*ns, n.Name)
		n.FQN = fqn
		w.recordSymbol(model.SymbolFunction, n.Name, fqn, *ns, model.VisibilityPublic, false, false)
		w.processSiblings(n.Children, ns, imports, conditional)

	case phpast.KindConst:
		fqn := fqnOf(*ns, n.Name)
		n.FQN = fqn
		w.recordSymbol(model.SymbolConstant, n.Name, fqn, *ns, model.VisibilityPublic, false, false)

	case phpast.KindClassMethod:
		w.processSiblings(n.Children, ns, imports, conditional)

	case phpast.KindNewExpr:
		if n.IsAnonClass {
			for _, ext := range n.Extends {
				w.recordDependency(model.DepExtends, w.resolve(*ns, *imports, ext), n.StartLine, true)
			}
			for _, impl := range n.Implements {
				w.recordDependency(model.DepImplements, w.resolve(*ns, *imports, impl), n.StartLine, true)
			}
			for _, tr := range n.UseTraits {
				w.recordDependency(model.DepUseTrait, w.resolve(*ns, *imports, tr), n.StartLine, true)
			}
			w.processSiblings(n.Children, ns, imports, true)
			return
		}
		if n.RefName != "" && !isSpecialRef(n.RefName) {
			w.recordDependency(model.DepUseClass, w.resolve(*ns, *imports, n.RefName), n.StartLine, conditional || n.Conditional)
		}

	case phpast.KindStaticCall, phpast.KindClassConstAccess:
		if n.RefName != "" && !isSpecialRef(n.RefName) {
			w.recordDependency(model.DepUseClass, w.resolve(*ns, *imports, n.RefName), n.StartLine, conditional || n.Conditional)
		}

	case phpast.KindInclude:
		w.recordInclude(n, conditional || n.Conditional)

	case phpast.KindConditional, phpast.KindTryCatch:
		w.processSiblings(n.Children, ns, imports, true)

	case phpast.KindBlock, phpast.KindGeneric, phpast.KindDirective:
		w.processSiblings(n.Children, ns, imports, conditional)
	}
}

func isSpecialRef(name string) bool {
	switch name {
	case "self", "static", "parent":
		return true
	}
	return false
}

func fqnOf(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + `\` + name
}

func visibilityOf(n *phpast.Node) model.Visibility {
	if n.IsAbstract {
		return model.VisibilityAbstract
	}
	if n.IsFinal {
		return model.VisibilityFinal
	}
	switch n.Visibility {
	case phpast.VisibilityProtected:
		return model.VisibilityProtected
	case phpast.VisibilityPrivate:
		return model.VisibilityPrivate
	default:
		return model.VisibilityPublic
	}
}

func (w *walker) recordSymbol(kind model.SymbolKind, local, fqn, ns string, vis model.Visibility, abstract, final bool) {
	sym := &model.Symbol{
		FileID:             w.fileID,
		Kind:               kind,
		LocalName:          local,
		FullyQualifiedName: fqn,
		Namespace:          ns,
		Visibility:         vis,
		IsAbstract:         abstract,
		IsFinal:            final,
	}
	w.a.Store.PutSymbol(sym)
	w.symbolCount++
}

func (w *walker) recordDependency(depType model.DependencyType, targetFQN string, line int, conditional bool) {
	dep := &model.Dependency{
		SourceFileID:   w.fileID,
		DependencyType: depType,
		TargetSymbol:   targetFQN,
		Line:           line,
		IsConditional:  conditional,
	}
	w.a.Store.PutDependency(dep)
	w.depCount++
}

func (w *walker) recordInclude(n *phpast.Node, conditional bool) {
	depType := model.DependencyType(n.IncludeOp)
	context := ""
	switch n.IncludeArgKind {
	case "literal":
		context = n.IncludeLiteral
	case "dir":
		// The text following "__DIR__ ." in source order, e.g. "/legacy.php"
		// for `__DIR__ . '/legacy.php'`; resolve.Resolver joins this onto the
		// source file's directory.
		context = strings.Join(n.DirParts, "")
	case "dynamic", "complex":
		context = ""
	}
	dep := &model.Dependency{
		SourceFileID:   w.fileID,
		DependencyType: depType,
		Context:        context,
		ContextKind:    n.IncludeArgKind,
		Line:           n.StartLine,
		IsConditional:  conditional,
	}
	w.a.Store.PutDependency(dep)
	w.depCount++
}
