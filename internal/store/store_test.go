package store

import (
	"path/filepath"
	"testing"

	"github.com/tourze/php-packer-sub000/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "pack.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutFileUpsertPreservesEntry(t *testing.T) {
	s := openTestStore(t)

	id, err := s.PutFile(&model.File{Path: "src/A.php", Content: "v1", IsEntry: true})
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	id2, err := s.PutFile(&model.File{Path: "src/A.php", Content: "v2"})
	if err != nil {
		t.Fatalf("PutFile update: %v", err)
	}
	if id2 != id {
		t.Fatalf("expected same id on upsert, got %d vs %d", id2, id)
	}

	got, err := s.GetFile(id)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.Content != "v2" {
		t.Errorf("content = %q, want v2", got.Content)
	}
	if !got.IsEntry {
		t.Errorf("is_entry should be preserved across upsert")
	}
}

func TestFindFileBySymbol(t *testing.T) {
	s := openTestStore(t)
	fid, _ := s.PutFile(&model.File{Path: "src/Base.php"})
	dup, err := s.PutSymbol(&model.Symbol{FileID: fid, Kind: model.SymbolClass, FullyQualifiedName: "App\\Base"})
	if err != nil {
		t.Fatalf("PutSymbol: %v", err)
	}
	if dup {
		t.Fatalf("unexpected duplicate")
	}

	f, err := s.FindFileBySymbol("App\\Base")
	if err != nil {
		t.Fatalf("FindFileBySymbol: %v", err)
	}
	if f == nil || f.ID != fid {
		t.Fatalf("expected file %d, got %+v", fid, f)
	}

	_, err = s.PutSymbol(&model.Symbol{FileID: fid, Kind: model.SymbolClass, FullyQualifiedName: "App\\Base"})
	if err != nil {
		t.Fatalf("PutSymbol duplicate: %v", err)
	}
}

func TestAllRequiredFilesTransitiveClosure(t *testing.T) {
	s := openTestStore(t)
	a, _ := s.PutFile(&model.File{Path: "entry.php"})
	b, _ := s.PutFile(&model.File{Path: "src/Base.php"})
	c, _ := s.PutFile(&model.File{Path: "src/Child.php"})

	if _, err := s.PutDependency(&model.Dependency{SourceFileID: a, TargetFileID: c, DependencyType: model.DepUseClass, IsResolved: true}); err != nil {
		t.Fatalf("PutDependency: %v", err)
	}
	if _, err := s.PutDependency(&model.Dependency{SourceFileID: c, TargetFileID: b, DependencyType: model.DepExtends, IsResolved: true}); err != nil {
		t.Fatalf("PutDependency: %v", err)
	}

	files, err := s.AllRequiredFiles(a)
	if err != nil {
		t.Fatalf("AllRequiredFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d: %+v", len(files), files)
	}
}

func TestWorkQueueFIFOWithinPriority(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Enqueue("first.php", 100); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := s.Enqueue("second.php", 100); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := s.Enqueue("entry.php", 1000); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	item, err := s.NextWorkItem()
	if err != nil {
		t.Fatalf("NextWorkItem: %v", err)
	}
	if item.FilePath != "entry.php" {
		t.Fatalf("expected highest priority first, got %q", item.FilePath)
	}

	item, err = s.NextWorkItem()
	if err != nil {
		t.Fatalf("NextWorkItem: %v", err)
	}
	if item.FilePath != "first.php" {
		t.Fatalf("expected FIFO order within priority, got %q", item.FilePath)
	}
}

func TestAutoloadRulesPriorityOrder(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutAutoloadRule(&model.AutoloadRule{Type: model.RulePSR4, Prefix: "Vendor\\", Priority: model.PriorityVendorPSR4}); err != nil {
		t.Fatalf("PutAutoloadRule: %v", err)
	}
	if err := s.PutAutoloadRule(&model.AutoloadRule{Type: model.RulePSR4, Prefix: "App\\", Priority: model.PriorityMainPSR4}); err != nil {
		t.Fatalf("PutAutoloadRule: %v", err)
	}
	if err := s.PutAutoloadRule(&model.AutoloadRule{Type: model.RuleClassmap, Priority: model.PriorityClassmap}); err != nil {
		t.Fatalf("PutAutoloadRule: %v", err)
	}

	rules, err := s.AllAutoloadRules()
	if err != nil {
		t.Fatalf("AllAutoloadRules: %v", err)
	}
	if len(rules) != 3 || rules[0].Type != model.RuleClassmap || rules[1].Prefix != "App\\" {
		t.Fatalf("unexpected rule order: %+v", rules)
	}
}
