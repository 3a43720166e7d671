// Package store is the Persistent Store (spec.md §4.2): durable,
// relational-style tables for File, Symbol, Dependency, AutoloadRule,
// AstNode, and WorkQueueItem, with transaction semantics, built on
// boltdb. Every other component reaches the database only through this
// package's API, per spec.md §3's ownership rule.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/boltdb/bolt"

	"github.com/tourze/php-packer-sub000/internal/model"
)

var (
	bucketFiles         = []byte("files")
	bucketSymbols       = []byte("symbols")
	bucketDependencies  = []byte("dependencies")
	bucketAutoload      = []byte("autoload_rules")
	bucketAstNodes      = []byte("ast_nodes")
	bucketWorkQueue     = []byte("work_queue")
	bucketMeta          = []byte("meta")
	bucketPathIndex     = []byte("files_by_path")
	bucketSymbolByFQN   = []byte("symbols_by_fqn")
	allBuckets          = [][]byte{bucketFiles, bucketSymbols, bucketDependencies, bucketAutoload, bucketAstNodes, bucketWorkQueue, bucketMeta, bucketPathIndex, bucketSymbolByFQN}
)

// Store wraps a boltdb database file with the typed CRUD and derived
// queries spec.md §4.2 requires. A Store is not safe for concurrent use
// from multiple goroutines; spec.md §5 mandates a single-threaded
// cooperative core. Its only lock, mu, serializes the writes that assign
// ids from the in-memory sequence counters.
type Store struct {
	db *bolt.DB

	// in-memory sequence counters, persisted to bucketMeta on every mutation
	// so a reopened database continues numbering without collisions.
	mu       sync.Mutex
	seqFile  int64
	seqSym   int64
	seqDep   int64
	seqAst   int64
	seqWork  int64
	workSeq  int64
}

// Open opens (creating if necessary) the boltdb file at path and ensures
// all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadSeqs(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) loadSeqs() error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		readInt64(b, "seq_file", &s.seqFile)
		readInt64(b, "seq_symbol", &s.seqSym)
		readInt64(b, "seq_dependency", &s.seqDep)
		readInt64(b, "seq_ast", &s.seqAst)
		readInt64(b, "seq_work", &s.seqWork)
		readInt64(b, "work_fifo_seq", &s.workSeq)
		return nil
	})
}

func readInt64(b *bolt.Bucket, key string, dst *int64) {
	v := b.Get([]byte(key))
	if v == nil {
		*dst = 0
		return
	}
	var n int64
	_ = json.Unmarshal(v, &n)
	*dst = n
}

func writeInt64(b *bolt.Bucket, key string, v int64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// Begin starts a transaction. Callers must Commit or Rollback on every exit
// path, per spec.md §4.2's "guaranteed release" requirement.
func (s *Store) Begin(writable bool) (*bolt.Tx, error) {
	return s.db.Begin(writable)
}

// WithTx runs fn inside a writable transaction, committing on success and
// rolling back if fn returns an error or panics.
func (s *Store) WithTx(fn func(tx *bolt.Tx) error) (err error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func keyOf(id int64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}

// --- File ---------------------------------------------------------------

// PutFile upserts f. Same path -> update content/hash, preserve is_entry
// unless f.IsEntry is explicitly true (spec.md §4.2 upsert semantics).
func (s *Store) PutFile(f *model.File) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.WithTx(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketPathIndex)
		files := tx.Bucket(bucketFiles)
		meta := tx.Bucket(bucketMeta)

		if existing := idx.Get([]byte(f.Path)); existing != nil {
			var old model.File
			if err := json.Unmarshal(files.Get(existing), &old); err != nil {
				return err
			}
			id = old.ID
			f.ID = id
			if !f.IsEntry {
				f.IsEntry = old.IsEntry
			}
		} else {
			s.seqFile++
			id = s.seqFile
			f.ID = id
			if err := writeInt64(meta, "seq_file", s.seqFile); err != nil {
				return err
			}
		}

		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		if err := files.Put(keyOf(id), data); err != nil {
			return err
		}
		return idx.Put([]byte(f.Path), keyOf(id))
	})
	return id, err
}

// GetFile fetches a File by id.
func (s *Store) GetFile(id int64) (*model.File, error) {
	var f model.File
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFiles).Get(keyOf(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &f)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &f, nil
}

// EnsureFile returns the id of the File at path, creating a pending stub
// row (no content yet) if none exists. It never overwrites an existing
// row's content, unlike PutFile's upsert.
func (s *Store) EnsureFile(path string) (int64, error) {
	if f, err := s.GetFileByPath(path); err != nil {
		return 0, err
	} else if f != nil {
		return f.ID, nil
	}
	return s.PutFile(&model.File{Path: path, AnalysisStatus: model.AnalysisPending})
}

// GetFileByPath fetches a File by its project-root-relative path.
func (s *Store) GetFileByPath(path string) (*model.File, error) {
	var id int64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPathIndex).Get([]byte(path))
		if v == nil {
			return nil
		}
		var err error
		id, err = parseKey(v)
		return err
	})
	if err != nil || id == 0 {
		return nil, err
	}
	return s.GetFile(id)
}

func parseKey(k []byte) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(string(k), "%020d", &n)
	return n, err
}

// AllFiles returns every stored File, ordered by id.
func (s *Store) AllFiles() ([]*model.File, error) {
	var out []*model.File
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var f model.File
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			out = append(out, &f)
			return nil
		})
	})
	return out, err
}

// --- Symbol ---------------------------------------------------------------

func symbolKey(kind model.SymbolKind, fqn string) string {
	return string(kind) + "\x00" + fqn
}

// PutSymbol inserts sym. Returns a bool indicating whether (kind, fqn)
// already existed. The analyzer (C4) does not act on it; duplicate
// definitions are reported as DuplicateSymbol warnings by the merger's
// dedup step.
func (s *Store) PutSymbol(sym *model.Symbol) (duplicate bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.WithTx(func(tx *bolt.Tx) error {
		byFQN := tx.Bucket(bucketSymbolByFQN)
		symbols := tx.Bucket(bucketSymbols)
		meta := tx.Bucket(bucketMeta)

		k := symbolKey(sym.Kind, sym.FullyQualifiedName)
		duplicate = byFQN.Get([]byte(k)) != nil

		s.seqSym++
		sym.ID = s.seqSym
		if err := writeInt64(meta, "seq_symbol", s.seqSym); err != nil {
			return err
		}
		data, err := json.Marshal(sym)
		if err != nil {
			return err
		}
		if err := symbols.Put(keyOf(sym.ID), data); err != nil {
			return err
		}
		// First occurrence stays canonical for find_file_by_symbol, matching
		// the "keep first" policy used elsewhere for duplicates.
		if duplicate {
			return nil
		}
		return byFQN.Put([]byte(k), keyOf(sym.ID))
	})
	return duplicate, err
}

// FindFileBySymbol implements spec.md §4.2's find_file_by_symbol(fqn): joins
// Symbol to File on FQN, returning the first file that defines fqn under
// any kind.
func (s *Store) FindFileBySymbol(fqn string) (*model.File, error) {
	var fileID int64
	err := s.db.View(func(tx *bolt.Tx) error {
		byFQN := tx.Bucket(bucketSymbolByFQN)
		symbols := tx.Bucket(bucketSymbols)
		for _, kind := range []model.SymbolKind{model.SymbolClass, model.SymbolInterface, model.SymbolTrait, model.SymbolFunction, model.SymbolConstant} {
			k := []byte(symbolKey(kind, fqn))
			v := byFQN.Get(k)
			if v == nil {
				continue
			}
			symData := symbols.Get(v)
			if symData == nil {
				continue
			}
			var sym model.Symbol
			if err := json.Unmarshal(symData, &sym); err != nil {
				return err
			}
			fileID = sym.FileID
			return nil
		}
		return nil
	})
	if err != nil || fileID == 0 {
		return nil, err
	}
	return s.GetFile(fileID)
}

// AllSymbols returns every stored Symbol, ordered by id.
func (s *Store) AllSymbols() ([]*model.Symbol, error) {
	var out []*model.Symbol
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSymbols).ForEach(func(_, v []byte) error {
			var sym model.Symbol
			if err := json.Unmarshal(v, &sym); err != nil {
				return err
			}
			out = append(out, &sym)
			return nil
		})
	})
	return out, err
}

// SymbolsByFile returns every Symbol recorded for fileID.
func (s *Store) SymbolsByFile(fileID int64) ([]*model.Symbol, error) {
	all, err := s.AllSymbols()
	if err != nil {
		return nil, err
	}
	var out []*model.Symbol
	for _, sym := range all {
		if sym.FileID == fileID {
			out = append(out, sym)
		}
	}
	return out, nil
}

// --- Dependency -------------------------------------------------------------

// PutDependency inserts dep, assigning it an id.
func (s *Store) PutDependency(dep *model.Dependency) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.WithTx(func(tx *bolt.Tx) error {
		deps := tx.Bucket(bucketDependencies)
		meta := tx.Bucket(bucketMeta)
		s.seqDep++
		id = s.seqDep
		dep.ID = id
		if err := writeInt64(meta, "seq_dependency", s.seqDep); err != nil {
			return err
		}
		data, err := json.Marshal(dep)
		if err != nil {
			return err
		}
		return deps.Put(keyOf(id), data)
	})
	return id, err
}

// UpdateDependency persists changes to an existing Dependency row (used to
// mark resolution outcomes).
func (s *Store) UpdateDependency(dep *model.Dependency) error {
	return s.WithTx(func(tx *bolt.Tx) error {
		data, err := json.Marshal(dep)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDependencies).Put(keyOf(dep.ID), data)
	})
}

// AllDependencies returns every stored Dependency, ordered by id.
func (s *Store) AllDependencies() ([]*model.Dependency, error) {
	var out []*model.Dependency
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDependencies).ForEach(func(_, v []byte) error {
			var d model.Dependency
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			out = append(out, &d)
			return nil
		})
	})
	return out, err
}

// UnresolvedDependencies implements spec.md §4.2's unresolved_dependencies().
func (s *Store) UnresolvedDependencies() ([]*model.Dependency, error) {
	all, err := s.AllDependencies()
	if err != nil {
		return nil, err
	}
	var out []*model.Dependency
	for _, d := range all {
		if !d.IsResolved {
			out = append(out, d)
		}
	}
	return out, nil
}

// DependenciesBySource implements spec.md §4.2's dependencies_by_source(id).
func (s *Store) DependenciesBySource(fileID int64) ([]*model.Dependency, error) {
	all, err := s.AllDependencies()
	if err != nil {
		return nil, err
	}
	var out []*model.Dependency
	for _, d := range all {
		if d.SourceFileID == fileID {
			out = append(out, d)
		}
	}
	return out, nil
}

// AllRequiredFiles implements spec.md §4.2's all_required_files(entry_id): the
// recursive transitive closure of resolved edges, bounded at depth 100.
func (s *Store) AllRequiredFiles(entryID int64) ([]*model.File, error) {
	const maxDepth = 100
	visited := map[int64]bool{entryID: true}
	order := []int64{entryID}
	frontier := []int64{entryID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int64
		for _, fid := range frontier {
			deps, err := s.DependenciesBySource(fid)
			if err != nil {
				return nil, err
			}
			for _, d := range deps {
				if !d.IsResolved || d.TargetFileID == 0 {
					continue
				}
				if visited[d.TargetFileID] {
					continue
				}
				visited[d.TargetFileID] = true
				order = append(order, d.TargetFileID)
				next = append(next, d.TargetFileID)
			}
		}
		frontier = next
	}

	files := make([]*model.File, 0, len(order))
	for _, id := range order {
		f, err := s.GetFile(id)
		if err != nil {
			return nil, err
		}
		if f != nil {
			files = append(files, f)
		}
	}
	return files, nil
}

// --- AutoloadRule -----------------------------------------------------------

// PutAutoloadRule appends r to the stored rule set.
func (s *Store) PutAutoloadRule(r *model.AutoloadRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.WithTx(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAutoload)
		n, err := b.NextSequence()
		if err != nil {
			return err
		}
		r.Seq = int(n)
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(keyOf(int64(n)), data)
	})
}

// AllAutoloadRules returns every stored AutoloadRule, sorted priority DESC
// with insertion-order tiebreak (spec.md §4.3/§5).
func (s *Store) AllAutoloadRules() ([]*model.AutoloadRule, error) {
	var out []*model.AutoloadRule
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAutoload).ForEach(func(_, v []byte) error {
			var r model.AutoloadRule
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// --- AstNode -----------------------------------------------------------------

// PutAstNodes stores a flattened tree of AstNode rows all belonging to
// fileID. On input, each node's ParentID holds a 1-based index into nodes
// (its parent's position in the slice), or 0 for the root; PutAstNodes
// assigns real ids in slice order and rewrites ParentID to reference them,
// so the caller need not know ids in advance.
func (s *Store) PutAstNodes(fileID int64, nodes []*model.AstNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.WithTx(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAstNodes)
		meta := tx.Bucket(bucketMeta)

		ids := make([]int64, len(nodes))
		for i, n := range nodes {
			s.seqAst++
			ids[i] = s.seqAst
			n.FileID = fileID
			_ = n
		}
		for i, n := range nodes {
			localParent := n.ParentID
			n.ID = ids[i]
			if localParent > 0 && int(localParent) <= len(ids) {
				n.ParentID = ids[localParent-1]
			} else {
				n.ParentID = 0
			}
			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := b.Put(keyOf(n.ID), data); err != nil {
				return err
			}
		}
		return writeInt64(meta, "seq_ast", s.seqAst)
	})
}

// AstNodesByFile returns every AstNode belonging to fileID, ordered by id
// (i.e. insertion/pre-order).
func (s *Store) AstNodesByFile(fileID int64) ([]*model.AstNode, error) {
	var out []*model.AstNode
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAstNodes).ForEach(func(_, v []byte) error {
			var n model.AstNode
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.FileID == fileID {
				out = append(out, &n)
			}
			return nil
		})
	})
	return out, err
}

// --- WorkQueueItem -----------------------------------------------------------

// Enqueue pushes a new WorkQueueItem, assigning it a FIFO sequence number
// for same-priority ordering (spec.md §5).
func (s *Store) Enqueue(path string, priority int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.WithTx(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkQueue)
		meta := tx.Bucket(bucketMeta)
		s.seqWork++
		id = s.seqWork
		s.workSeq++
		item := &model.WorkQueueItem{ID: id, FilePath: path, Priority: priority, Status: model.WorkPending, Seq: s.workSeq}
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if err := b.Put(keyOf(id), data); err != nil {
			return err
		}
		if err := writeInt64(meta, "seq_work", s.seqWork); err != nil {
			return err
		}
		return writeInt64(meta, "work_fifo_seq", s.workSeq)
	})
	return id, err
}

// NextWorkItem implements spec.md §4.2's next_work_item(): atomically pops
// the highest-priority pending item, FIFO within a priority tier.
func (s *Store) NextWorkItem() (*model.WorkQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.WorkQueueItem
	err := s.WithTx(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkQueue)
		return b.ForEach(func(k, v []byte) error {
			var item model.WorkQueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			if item.Status != model.WorkPending {
				return nil
			}
			if best == nil || item.Priority > best.Priority || (item.Priority == best.Priority && item.Seq < best.Seq) {
				cp := item
				best = &cp
			}
			return nil
		})
	})
	if err != nil || best == nil {
		return nil, err
	}
	best.Status = model.WorkInProgress
	if err := s.updateWorkItem(best); err != nil {
		return nil, err
	}
	return best, nil
}

func (s *Store) updateWorkItem(item *model.WorkQueueItem) error {
	return s.WithTx(func(tx *bolt.Tx) error {
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketWorkQueue).Put(keyOf(item.ID), data)
	})
}

// MarkWorkItem updates the status of an already-popped item.
func (s *Store) MarkWorkItem(id int64, status model.WorkQueueStatus) error {
	return s.WithTx(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkQueue)
		v := b.Get(keyOf(id))
		if v == nil {
			return fmt.Errorf("store: work item %d not found", id)
		}
		var item model.WorkQueueItem
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		item.Status = status
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return b.Put(keyOf(id), data)
	})
}
