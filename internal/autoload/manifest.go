package autoload

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tourze/php-packer-sub000/internal/model"
	"github.com/tourze/php-packer-sub000/internal/pathutil"
	"github.com/tourze/php-packer-sub000/internal/phpast"
	"github.com/tourze/php-packer-sub000/internal/phpparser"
	"github.com/tourze/php-packer-sub000/internal/reporter"
)

// autoloadSection mirrors the "autoload"/"autoload-dev" object of a
// manifest file (spec.md §6): optional psr-4, psr-0, classmap, and files
// subsections.
type autoloadSection struct {
	PSR4     map[string]any `json:"psr-4"`
	PSR0     map[string]any `json:"psr-0"`
	Classmap []string       `json:"classmap"`
	Files    []string       `json:"files"`
}

// manifestFile mirrors the top-level manifest document.
type manifestFile struct {
	Autoload    autoloadSection `json:"autoload"`
	AutoloadDev autoloadSection `json:"autoload-dev"`
}

// installedPackage describes one entry of the installed-packages manifest
// in the external-packages directory (spec.md §6).
type installedPackage struct {
	Name     string          `json:"name"`
	Autoload autoloadSection `json:"autoload"`
}

type installedManifest struct {
	Packages []installedPackage `json:"packages"`
}

// IngestManifest reads the project manifest at manifestPath (main and dev
// autoload sections) and, if present, the installed-packages manifest under
// externalDir, registering rules at the priorities spec.md §4.3 specifies.
// A missing or malformed manifest is a warning, not a failure, per spec.md
// §4.3's error conditions: the resolver is simply left without that
// section's rules.
func (r *Resolver) IngestManifest(manifestPath, projectRoot, externalDir string, h *reporter.Handler) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		h.HandleWarning(err)
		return
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		h.HandleWarning(err)
		return
	}

	r.ingestSection(mf.Autoload, projectRoot, model.PriorityMainPSR4, model.PriorityMainPSR0)
	r.ingestSection(mf.AutoloadDev, projectRoot, model.PriorityDevPSR4, model.PriorityDevPSR0)

	if externalDir == "" {
		return
	}
	installedPath := pathutil.Join(externalDir, "installed.json")
	idata, err := os.ReadFile(installedPath)
	if err != nil {
		h.HandleWarning(err)
		return
	}
	var im installedManifest
	if err := json.Unmarshal(idata, &im); err != nil {
		h.HandleWarning(err)
		return
	}
	for _, pkg := range im.Packages {
		pkgRoot := pathutil.Join(externalDir, pkg.Name)
		r.ingestSection(pkg.Autoload, pkgRoot, model.PriorityVendorPSR4, model.PriorityVendorPSR4)
	}
}

func (r *Resolver) ingestSection(sec autoloadSection, baseDir string, psr4Priority, psr0Priority int) {
	for prefix, paths := range sec.PSR4 {
		r.AddPSR4(prefix, resolvePaths(paths, baseDir), psr4Priority)
	}
	for prefix, paths := range sec.PSR0 {
		r.AddPSR0(prefix, resolvePaths(paths, baseDir), psr0Priority)
	}
	for _, cm := range sec.Classmap {
		dir := pathutil.MakeAbsolute(cm, baseDir)
		entries, err := ScanClassmapDirectory(dir)
		if err == nil {
			for _, e := range entries {
				r.AddClassmapEntry(e.FQN(), e.Path)
			}
		}
	}
	for _, f := range sec.Files {
		r.AddFilesEntry(pathutil.MakeAbsolute(f, baseDir))
	}
}

// resolvePaths normalizes a manifest psr-4/psr-0 value, which may be a
// single string or an array of strings, into a list of absolute base paths.
func resolvePaths(v any, baseDir string) []string {
	switch t := v.(type) {
	case string:
		return []string{pathutil.MakeAbsolute(t, baseDir)}
	case []any:
		out := make([]string, 0, len(t))
		for _, p := range t {
			if s, ok := p.(string); ok {
				out = append(out, pathutil.MakeAbsolute(s, baseDir))
			}
		}
		return out
	default:
		return nil
	}
}

// ScanClassmapDirectory implements spec.md §4.3's classmap-directory scan:
// every ".php" file under dir is tokenized to (namespace, kind, local_name)
// triples. Each file is parsed with the bundled parser and only the
// namespace/class/interface/trait declarations are kept, since the classmap
// only needs declaration names, not bodies.
func ScanClassmapDirectory(dir string) ([]ClassmapEntry, error) {
	var out []ClassmapEntry
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".php" {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		entries := tokenizeDeclarations(src)
		for i := range entries {
			entries[i].Path = path
		}
		out = append(out, entries...)
		return nil
	})
	return out, err
}

// tokenizeDeclarations extracts (namespace, kind, local_name) triples from
// src by running the bundled recursive-descent parser and collecting the
// declaration nodes; a file that fails to parse yields no entries.
func tokenizeDeclarations(src []byte) []ClassmapEntry {
	root, err := phpparser.Parse("", src)
	if err != nil {
		return nil
	}
	var out []ClassmapEntry
	collectDeclarations(root, "", &out)
	return out
}

// collectDeclarations walks one level of namespace nesting (PHP manifests
// scanned for classmap purposes do not nest namespaces further) collecting
// class/interface/trait declarations.
func collectDeclarations(root *phpast.Node, namespace string, out *[]ClassmapEntry) {
	for _, child := range root.Children {
		switch child.Kind {
		case phpast.KindNamespace:
			collectDeclarations(child, child.Name, out)
		case phpast.KindClass:
			*out = append(*out, ClassmapEntry{Namespace: namespace, Kind: model.SymbolClass, LocalName: child.Name})
		case phpast.KindInterface:
			*out = append(*out, ClassmapEntry{Namespace: namespace, Kind: model.SymbolInterface, LocalName: child.Name})
		case phpast.KindTrait:
			*out = append(*out, ClassmapEntry{Namespace: namespace, Kind: model.SymbolTrait, LocalName: child.Name})
		}
	}
}
