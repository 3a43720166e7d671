// Package model defines the persistent entities of spec.md §3. Every field
// here is either a typed record (where the shape is known, per spec.md §9's
// "dynamic arrays with mixed value types become typed records") or a small
// enum-like string type with named constants.
package model

// FileType classifies a stored File.
type FileType string

const (
	FileTypeClass     FileType = "class"
	FileTypeInterface FileType = "interface"
	FileTypeTrait     FileType = "trait"
	FileTypeScript    FileType = "script"
	FileTypeUnknown   FileType = "unknown"
)

// AnalysisStatus tracks where a File is in the C4 pipeline.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
)

// File is spec.md §3's File entity. Path is always project-root-relative.
type File struct {
	ID             int64
	Path           string
	Content        string
	ContentHash    string
	FileType       FileType
	ClassName      string
	Namespace      string
	IsEntry        bool
	IsExternal     bool
	SkipAST        bool
	AstRootID      int64 // 0 means unset
	AnalysisStatus AnalysisStatus
}

// SymbolKind enumerates the declaration kinds C4 records as Symbols.
type SymbolKind string

const (
	SymbolClass     SymbolKind = "class"
	SymbolInterface SymbolKind = "interface"
	SymbolTrait     SymbolKind = "trait"
	SymbolFunction  SymbolKind = "function"
	SymbolConstant  SymbolKind = "constant"
)

// Visibility mirrors spec.md §3's Symbol.visibility domain.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityProtected Visibility = "protected"
	VisibilityPrivate   Visibility = "private"
	VisibilityAbstract  Visibility = "abstract"
	VisibilityFinal     Visibility = "final"
)

// Symbol is spec.md §3's Symbol entity. (Kind, FullyQualifiedName) must be
// unique across all files.
type Symbol struct {
	ID                 int64
	FileID             int64
	Kind               SymbolKind
	LocalName          string
	FullyQualifiedName string
	Namespace          string
	Visibility         Visibility
	IsAbstract         bool
	IsFinal            bool
}

// DependencyType enumerates spec.md §3's Dependency.dependency_type domain.
type DependencyType string

const (
	DepRequire      DependencyType = "require"
	DepRequireOnce  DependencyType = "require_once"
	DepInclude      DependencyType = "include"
	DepIncludeOnce  DependencyType = "include_once"
	DepExtends      DependencyType = "extends"
	DepImplements   DependencyType = "implements"
	DepUseTrait     DependencyType = "use_trait"
	DepUseClass     DependencyType = "use_class"
	DepUseFunction  DependencyType = "use_function"
)

// IsIncludeFamily reports whether t is one of the require/include variants.
func (t DependencyType) IsIncludeFamily() bool {
	switch t {
	case DepRequire, DepRequireOnce, DepInclude, DepIncludeOnce:
		return true
	}
	return false
}

// Dependency is spec.md §3's Dependency entity.
type Dependency struct {
	ID             int64
	SourceFileID   int64
	TargetFileID   int64 // 0 means unset
	DependencyType DependencyType
	TargetSymbol   string // set for class-family deps
	Line           int
	IsConditional  bool
	IsResolved     bool
	Context        string // include-family: literal/__DIR__ expression text; classification in ContextKind
	ContextKind    string // "literal", "dir", "dynamic", "complex", or "" for class-family
}

// AutoloadRuleType enumerates spec.md §3's AutoloadRule.type domain.
type AutoloadRuleType string

const (
	RuleClassmap AutoloadRuleType = "classmap"
	RuleFiles    AutoloadRuleType = "files"
	RulePSR4     AutoloadRuleType = "psr4"
	RulePSR0     AutoloadRuleType = "psr0"
)

// Standard priority values from spec.md §4.3.
const (
	PriorityClassmap     = 110
	PriorityFiles        = 120
	PriorityMainPSR4     = 100
	PriorityMainPSR0     = 90
	PriorityDevPSR4      = 50
	PriorityDevPSR0      = 40
	PriorityVendorPSR4   = 10
)

// AutoloadRule is spec.md §3's AutoloadRule entity.
type AutoloadRule struct {
	Type     AutoloadRuleType
	Path     string
	Prefix   string
	Priority int
	// Seq preserves registration order for stable sort within a priority
	// tier (spec.md §5: "insertion-order within priority").
	Seq int
}

// AstNode is spec.md §3's AstNode entity: the persisted form of a
// phpast.Node, flattened for storage. Attributes carries the JSON-encoded
// phpast.Node.Attrs map plus any tagged fields the store needs to retain
// verbatim.
type AstNode struct {
	ID         int64
	FileID     int64
	ParentID   int64 // 0 for a file's root
	NodeType   string
	NodeName   string
	StartLine  int
	EndLine    int
	FQCN       string
	Attributes string // JSON-encoded
}

// WorkQueueStatus enumerates spec.md §3's WorkQueueItem.status domain.
type WorkQueueStatus string

const (
	WorkPending    WorkQueueStatus = "pending"
	WorkInProgress WorkQueueStatus = "in_progress"
	WorkDone       WorkQueueStatus = "done"
	WorkFailed     WorkQueueStatus = "failed"
)

// WorkQueueItem is spec.md §3's WorkQueueItem entity.
type WorkQueueItem struct {
	ID       int64
	FilePath string
	Priority int
	Status   WorkQueueStatus
	// Seq breaks ties between equal-priority items in FIFO order (spec.md
	// §5: "work items of the same priority are processed in FIFO order").
	Seq int64
}
