package analyzer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/reporter"
	"github.com/tourze/php-packer-sub000/internal/store"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, string) {
	t.Helper()
	root := t.TempDir()
	s, err := store.Open(filepath.Join(t.TempDir(), "pack.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	h := reporter.NewHandler(&reporter.CollectingReporter{})
	return New(s, root, "", h), root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestAnalyzeClassExtendsRecordsSymbolAndDependency(t *testing.T) {
	a, root := newTestAnalyzer(t)
	writeFile(t, root, "src/Child.php", "<?php\nnamespace App;\nclass Child extends Base {}\n")

	f, err := a.Analyze("src/Child.php")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if f.FileType != model.FileTypeClass {
		t.Errorf("file_type = %q, want class", f.FileType)
	}

	syms, err := a.Store.SymbolsByFile(f.ID)
	if err != nil {
		t.Fatalf("SymbolsByFile: %v", err)
	}
	if len(syms) != 1 || syms[0].FullyQualifiedName != `App\Child` {
		t.Fatalf("unexpected symbols: %+v", syms)
	}

	deps, err := a.Store.DependenciesBySource(f.ID)
	if err != nil {
		t.Fatalf("DependenciesBySource: %v", err)
	}
	if len(deps) != 1 || deps[0].DependencyType != model.DepExtends || deps[0].TargetSymbol != `App\Base` {
		t.Fatalf("unexpected dependencies: %+v", deps)
	}
}

func TestAnalyzeConditionalIncludeMarksConditional(t *testing.T) {
	a, root := newTestAnalyzer(t)
	writeFile(t, root, "entry.php", "<?php\nif (HOST_VERSION_ID >= 80000) {\n  require \"a.php\";\n} else {\n  require \"b.php\";\n}\n")

	f, err := a.Analyze("entry.php")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	deps, err := a.Store.DependenciesBySource(f.ID)
	if err != nil {
		t.Fatalf("DependenciesBySource: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("expected 2 include dependencies, got %d: %+v", len(deps), deps)
	}
	for _, d := range deps {
		if !d.IsConditional {
			t.Errorf("expected include inside if/else to be conditional: %+v", d)
		}
		if d.ContextKind != "literal" {
			t.Errorf("expected literal include context, got %q", d.ContextKind)
		}
	}
}

func TestAnalyzeExternalFileSkipsAST(t *testing.T) {
	a, root := newTestAnalyzer(t)
	a.ExternalPathMatcher = func(rel string) bool { return rel == "vendor/lib/Foo.php" }
	writeFile(t, root, "vendor/lib/Foo.php", "<?php\nclass Foo {}\n")

	f, err := a.Analyze("vendor/lib/Foo.php")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !f.IsExternal || !f.SkipAST {
		t.Fatalf("expected external file with skipped AST, got %+v", f)
	}
	syms, err := a.Store.SymbolsByFile(f.ID)
	if err != nil {
		t.Fatalf("SymbolsByFile: %v", err)
	}
	if len(syms) != 0 {
		t.Errorf("expected no symbols recorded for external file, got %+v", syms)
	}
}
