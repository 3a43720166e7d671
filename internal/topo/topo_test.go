package topo

import (
	"path/filepath"
	"testing"

	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/perror"
	"github.com/tourze/php-packer-sub000/internal/reporter"
	"github.com/tourze/php-packer-sub000/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "pack.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestSortFilesS1Order exercises spec.md §8 scenario S1's expected load
// order: Base.php, Child.php, entry.php.
func TestSortFilesS1Order(t *testing.T) {
	s := openTestStore(t)
	base, _ := s.PutFile(&model.File{Path: "src/Base.php"})
	child, _ := s.PutFile(&model.File{Path: "src/Child.php"})
	entry, _ := s.PutFile(&model.File{Path: "entry.php", IsEntry: true})

	s.PutDependency(&model.Dependency{SourceFileID: child, TargetFileID: base, DependencyType: model.DepExtends, IsResolved: true})
	s.PutDependency(&model.Dependency{SourceFileID: entry, TargetFileID: child, DependencyType: model.DepUseClass, IsResolved: true})

	h := reporter.NewHandler(&reporter.CollectingReporter{})
	order, err := SortFiles(s, entry, h)
	if err != nil {
		t.Fatalf("SortFiles: %v", err)
	}
	var paths []string
	for _, f := range order {
		paths = append(paths, f.Path)
	}
	want := []string{"src/Base.php", "src/Child.php", "entry.php"}
	if len(paths) != len(want) {
		t.Fatalf("order = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("order = %v, want %v", paths, want)
		}
	}
}

// TestSortFilesS3StructuralCycleFatal exercises spec.md §8 scenario S3.
func TestSortFilesS3StructuralCycleFatal(t *testing.T) {
	s := openTestStore(t)
	a, _ := s.PutFile(&model.File{Path: "A.php"})
	b, _ := s.PutFile(&model.File{Path: "B.php"})
	s.PutDependency(&model.Dependency{SourceFileID: a, TargetFileID: b, DependencyType: model.DepExtends, IsResolved: true})
	s.PutDependency(&model.Dependency{SourceFileID: b, TargetFileID: a, DependencyType: model.DepExtends, IsResolved: true})

	h := reporter.NewHandler(&reporter.CollectingReporter{})
	_, err := SortFiles(s, a, h)
	if err == nil {
		t.Fatalf("expected CircularDependency error")
	}
	if _, ok := err.(*perror.CircularDependency); !ok {
		t.Fatalf("expected *perror.CircularDependency, got %T: %v", err, err)
	}
}

// TestSortFilesS4ReferenceCycleWarnsAndBreaksDeterministically exercises
// spec.md §8 scenario S4.
func TestSortFilesS4ReferenceCycleWarnsAndBreaksDeterministically(t *testing.T) {
	s := openTestStore(t)
	a, _ := s.PutFile(&model.File{Path: "A.php"})
	b, _ := s.PutFile(&model.File{Path: "B.php"})
	s.PutDependency(&model.Dependency{SourceFileID: a, TargetFileID: b, DependencyType: model.DepUseClass, IsResolved: true})
	s.PutDependency(&model.Dependency{SourceFileID: b, TargetFileID: a, DependencyType: model.DepUseClass, IsResolved: true})

	cr := &reporter.CollectingReporter{}
	h := reporter.NewHandler(cr)
	order, err := SortFiles(s, a, h)
	if err != nil {
		t.Fatalf("reference-only cycle should not be fatal: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("expected both files in order, got %+v", order)
	}
	if order[0].ID != a {
		t.Fatalf("expected smallest id first, got %+v", order)
	}
	if len(cr.Warnings) == 0 {
		t.Fatalf("expected a cycle warning to be recorded")
	}
}

func TestSortGraphCyclesAlwaysFatal(t *testing.T) {
	edges := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	_, err := SortGraph(edges)
	if err == nil {
		t.Fatalf("expected fatal cycle error")
	}
}

func TestSortGraphOrdersDependenciesFirst(t *testing.T) {
	edges := map[string][]string{
		"child":  {"base"},
		"entry":  {"child"},
		"base":   {},
	}
	order, err := SortGraph(edges)
	if err != nil {
		t.Fatalf("SortGraph: %v", err)
	}
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["base"] > pos["child"] || pos["child"] > pos["entry"] {
		t.Fatalf("expected base < child < entry, got %v", order)
	}
}
