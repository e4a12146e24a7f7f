package pysource

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"pytestmaker/internal/logging"
)

// expandStarImports binds the exported names of star-imported modules that
// live in the workspace rooted at root. path is the absolute file of m.
// Modules found nowhere under root (the standard library, site-packages)
// stay opaque. visited breaks import cycles.
func expandStarImports(ctx context.Context, m *Module, path, root string, visited map[string]bool) {
	m.OpaqueStarImports = nil
	for _, imp := range m.StarImports {
		file, ok := findModuleFile(imp.Module, filepath.Dir(path), root)
		if !ok {
			m.OpaqueStarImports = appendUnique(m.OpaqueStarImports, imp.Module)
			continue
		}
		if visited[file] {
			continue
		}
		visited[file] = true

		content, err := os.ReadFile(file)
		if err != nil {
			logging.ReflectError("star import %s: %v", imp.Module, err)
			m.OpaqueStarImports = appendUnique(m.OpaqueStarImports, imp.Module)
			continue
		}
		sub, err := ParseModule(ctx, content)
		if err != nil {
			logging.ReflectError("star import %s: %v", imp.Module, err)
			m.OpaqueStarImports = appendUnique(m.OpaqueStarImports, imp.Module)
			continue
		}
		expandStarImports(ctx, sub, file, root, visited)

		added := 0
		for name, sym := range sub.Symbols {
			if !sym.Exported {
				continue
			}
			if _, defined := m.Symbols[name]; defined {
				continue
			}
			m.Symbols[name] = Symbol{Name: name, Kind: SymbolImport, Line: imp.Line}
			added++
		}
		// Without __all__ whatever reached sub through its own opaque star
		// imports is public in sub too.
		if sub.All == nil {
			for _, opaque := range sub.OpaqueStarImports {
				m.OpaqueStarImports = appendUnique(m.OpaqueStarImports, opaque)
			}
		}
		logging.ReflectDebug("star import %s (%s): %d names", imp.Module, file, added)
	}
	m.markExported()
}

// findModuleFile maps an imported module name to a workspace file. Absolute
// names are looked up under root, relative ones (leading dots) from dir.
func findModuleFile(module, dir, root string) (string, bool) {
	base, rest := root, module
	if strings.HasPrefix(module, ".") {
		rest = strings.TrimLeft(module, ".")
		base = dir
		for i := 1; i < len(module)-len(rest); i++ {
			base = filepath.Dir(base)
		}
	}

	var candidates []string
	if rest == "" {
		candidates = []string{filepath.Join(base, "__init__.py")}
	} else {
		rel := filepath.Join(strings.Split(rest, ".")...)
		candidates = []string{
			filepath.Join(base, rel+".py"),
			filepath.Join(base, rel, "__init__.py"),
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
