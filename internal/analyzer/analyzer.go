// Package analyzer is the File Analyzer (C4, spec.md §4.4): parses one
// file, runs name resolution, extracts symbols and dependencies, and
// stores them (and the AST) through the Persistent Store.
package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"

	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/pathutil"
	"github.com/tourze/php-packer-sub000/internal/perror"
	"github.com/tourze/php-packer-sub000/internal/phpast"
	"github.com/tourze/php-packer-sub000/internal/phpparser"
	"github.com/tourze/php-packer-sub000/internal/reporter"
	"github.com/tourze/php-packer-sub000/internal/store"
)

// Analyzer is C4. ExternalPathMatcher decides whether a project-root
// relative path counts as "external" (spec.md §3: "any path under the
// external-package directory").
type Analyzer struct {
	Store               *store.Store
	Parser              phpparser.Parser
	ProjectRoot         string
	ExternalPathMatcher func(relPath string) bool
	Handler             *reporter.Handler

	// SymbolCount and DependencyCount are the observability counters spec.md
	// §4.4 asks for.
	SymbolCount     int
	DependencyCount int
}

// New constructs an Analyzer with the default bundled parser.
func New(s *store.Store, projectRoot string, externalDir string, h *reporter.Handler) *Analyzer {
	return &Analyzer{
		Store:       s,
		Parser:      phpparser.DefaultParser{},
		ProjectRoot: projectRoot,
		Handler:     h,
		ExternalPathMatcher: func(relPath string) bool {
			if externalDir == "" {
				return false
			}
			rel := pathutil.Normalize(externalDir)
			rel = strings.TrimPrefix(rel, pathutil.Normalize(projectRoot)+"/")
			return strings.HasPrefix(relPath, rel+"/") || relPath == rel
		},
	}
}

// Analyze implements spec.md §4.4's analyze(path) entry point. path is
// project-root-relative.
func (a *Analyzer) Analyze(path string) (*model.File, error) {
	abs := pathutil.MakeAbsolute(path, a.ProjectRoot)
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, &perror.FileNotFound{Path: path}
	}
	hash := contentHash(content)

	if !strings.HasSuffix(path, ".php") {
		// Non-source file: ignore, per spec.md §4.4.
		return nil, nil
	}

	if a.ExternalPathMatcher(path) {
		f := &model.File{
			Path:           path,
			Content:        string(content),
			ContentHash:    hash,
			FileType:       model.FileTypeUnknown,
			IsExternal:     true,
			SkipAST:        true,
			AnalysisStatus: model.AnalysisCompleted,
		}
		if _, err := a.Store.PutFile(f); err != nil {
			return nil, err
		}
		return f, nil
	}

	f := &model.File{
		Path:           path,
		Content:        string(content),
		ContentHash:    hash,
		AnalysisStatus: model.AnalysisPending,
	}
	fileID, err := a.Store.PutFile(f)
	if err != nil {
		return nil, err
	}
	f.ID = fileID

	root, err := a.Parser.Parse(path, content)
	if err != nil {
		f.AnalysisStatus = model.AnalysisFailed
		a.Store.PutFile(f)
		return f, &perror.ParseError{Path: path, Message: err.Error()}
	}

	w := &walker{a: a, fileID: fileID}
	w.run(root)
	f.FileType = classify(root)
	f.AnalysisStatus = model.AnalysisCompleted
	if _, err := a.Store.PutFile(f); err != nil {
		return nil, err
	}
	if err := a.storeAst(fileID, root); err != nil {
		return nil, err
	}
	a.SymbolCount += w.symbolCount
	a.DependencyCount += w.depCount
	return f, nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// classify determines a File's file_type by inspecting its top-level
// declarations: the first class/interface/trait found wins, else "script".
func classify(root *phpast.Node) model.FileType {
	var found model.FileType
	var scan func(nodes []*phpast.Node)
	scan = func(nodes []*phpast.Node) {
		for _, n := range nodes {
			switch n.Kind {
			case phpast.KindClass:
				if found == "" {
					found = model.FileTypeClass
				}
			case phpast.KindInterface:
				if found == "" {
					found = model.FileTypeInterface
				}
			case phpast.KindTrait:
				if found == "" {
					found = model.FileTypeTrait
				}
			case phpast.KindNamespace:
				scan(n.Children)
			}
		}
	}
	scan(root.Children)
	if found == "" {
		return model.FileTypeScript
	}
	return found
}

// storeAst flattens root into model.AstNode rows for persistence. Each
// row's ParentID is temporarily set to a 1-based index into the rows slice
// (0 for the root); store.PutAstNodes rewrites these into real ids.
func (a *Analyzer) storeAst(fileID int64, root *phpast.Node) error {
	var rows []*model.AstNode
	var walk func(n *phpast.Node, parentLocalID int64)
	walk = func(n *phpast.Node, parentLocalID int64) {
		attrs, _ := json.Marshal(n.Attrs)
		row := &model.AstNode{
			ParentID:   parentLocalID,
			NodeType:   n.Kind.String(),
			NodeName:   n.Name,
			StartLine:  n.StartLine,
			EndLine:    n.EndLine,
			FQCN:       n.FQN,
			Attributes: string(attrs),
		}
		rows = append(rows, row)
		selfLocalID := int64(len(rows))
		for _, c := range n.Children {
			walk(c, selfLocalID)
		}
	}
	walk(root, 0)
	return a.Store.PutAstNodes(fileID, rows)
}
