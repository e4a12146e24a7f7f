// Package pysource reads Python source with Tree-sitter.
//
// It provides the three views of a target module the generator needs:
//   - the top-level import statements to replay in the generated suite
//   - a symbol table mapping module-level names to what declares them
//   - Python literal rendering and parsing for assertion values
//
// Nothing here imports or executes Python; the module is only parsed.
package pysource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pytestmaker/internal/logging"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SymbolKind classifies a module-level name.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolVariable SymbolKind = "variable"
	SymbolImport   SymbolKind = "import"
)

// Symbol is one module-level binding.
type Symbol struct {
	Name string
	Kind SymbolKind
	Line int // 1-indexed

	// Exported reports whether `from module import *` brings the name in.
	Exported bool
}

// Module is the parsed view of a target module.
type Module struct {
	// Name is the importable module name, empty when parsed from memory.
	Name string

	// Imports are the reflected top-level import statements, in source order.
	Imports []string

	// FutureImports are `from __future__ import ...` statements; Python
	// requires them before any other statement.
	FutureImports []string

	// Symbols maps every module-level name to its declaration.
	Symbols map[string]Symbol

	// All holds the names listed in a literal __all__, nil when absent.
	All []string

	// StarImports are the `from X import *` statements, in source order.
	StarImports []StarImport

	// OpaqueStarImports name the star-imported modules whose names are
	// unknown: they are not workspace files, or the module was parsed from
	// memory. Any name may come from them.
	OpaqueStarImports []string
}

// StarImport is one `from X import *` statement.
type StarImport struct {
	Module string
	Line   int // 1-indexed
}

// Lookup resolves a module-level name.
func (m *Module) Lookup(name string) (Symbol, bool) {
	if m == nil {
		return Symbol{}, false
	}
	s, ok := m.Symbols[name]
	return s, ok
}

// LookupStar answers for a name the symbol table lacks but an opaque star
// import may bind. The symbol is reported as an import.
func (m *Module) LookupStar(name string) (Symbol, bool) {
	if m == nil || len(m.OpaqueStarImports) == 0 {
		return Symbol{}, false
	}
	return Symbol{Name: name, Kind: SymbolImport, Exported: m.exports(name)}, true
}

// Parser wraps a Tree-sitter parser configured for Python.
// A Parser is not safe for concurrent use.
type Parser struct {
	parser *sitter.Parser
}

// NewParser creates a new Python parser.
func NewParser() *Parser {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Parser{parser: parser}
}

func (p *Parser) parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// LoadModule reads and parses a Python file.
func LoadModule(ctx context.Context, path string) (*Module, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module source: %w", err)
	}
	m, err := ParseModule(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	m.Name = strings.TrimSuffix(filepath.Base(path), ".py")

	if len(m.StarImports) > 0 {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		expandStarImports(ctx, m, abs, filepath.Dir(abs), map[string]bool{abs: true})
		logging.Reflect("%s: %d star imports, opaque: %v", m.Name, len(m.StarImports), m.OpaqueStarImports)
	}
	return m, nil
}

// ParseModule builds the import list and symbol table of a Python module.
func ParseModule(ctx context.Context, content []byte) (*Module, error) {
	return NewParser().ParseModule(ctx, content)
}

// ParseModule is the Parser form of the package-level ParseModule.
func (p *Parser) ParseModule(ctx context.Context, content []byte) (*Module, error) {
	timer := logging.StartTimer(logging.CategoryReflect, "ParseModule")
	defer timer.Stop()

	tree, err := p.parse(ctx, content)
	if err != nil {
		logging.ReflectError("parse failed: %v", err)
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		// The grammar can trail the newest Python syntax; keep what parsed.
		logging.ReflectError("module has syntax errors: %v", newSyntaxError(root, content))
	}

	m := &Module{Symbols: make(map[string]Symbol)}
	m.Imports, m.FutureImports = reflectImports(root, content)
	p.collectSymbols(root, content, m)
	for _, imp := range m.StarImports {
		m.OpaqueStarImports = appendUnique(m.OpaqueStarImports, imp.Module)
	}
	m.markExported()

	logging.ReflectDebug("module parsed: %d imports, %d symbols", len(m.Imports), len(m.Symbols))
	return m, nil
}

// collectSymbols records definitions made by a block of statements.
func (p *Parser) collectSymbols(block *sitter.Node, src []byte, m *Module) {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		p.collectStatement(block.NamedChild(i), src, m)
	}
}

// collectStatement records the bindings of one statement. Conditional and
// guarded blocks (if/try/with) at module level still bind module-level
// names, so they are walked too.
func (p *Parser) collectStatement(child *sitter.Node, src []byte, m *Module) {
	switch child.Type() {
	case "function_definition":
		m.define(child.ChildByFieldName("name"), SymbolFunction, src)
	case "class_definition":
		m.define(child.ChildByFieldName("name"), SymbolClass, src)
	case "decorated_definition":
		def := child.ChildByFieldName("definition")
		if def == nil {
			return
		}
		kind := SymbolFunction
		if def.Type() == "class_definition" {
			kind = SymbolClass
		}
		m.define(def.ChildByFieldName("name"), kind, src)
	case "expression_statement":
		for j := 0; j < int(child.NamedChildCount()); j++ {
			p.collectAssignment(child.NamedChild(j), src, m)
		}
	case "import_statement", "import_from_statement":
		collectImportBindings(child, src, m)
	case "if_statement", "try_statement", "with_statement",
		"for_statement", "while_statement", "match_statement",
		"elif_clause", "else_clause", "except_clause", "finally_clause", "case_clause":
		if child.Type() == "for_statement" {
			m.definePattern(child.ChildByFieldName("left"), src)
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			inner := child.NamedChild(j)
			if inner.Type() == "block" {
				p.collectSymbols(inner, src, m)
			} else if strings.HasSuffix(inner.Type(), "_clause") {
				p.collectStatement(inner, src, m)
			}
		}
	}
}

// collectAssignment handles `x = ...`, `x: int = ...`, `a = b = ...` and
// unpacking targets.
func (p *Parser) collectAssignment(n *sitter.Node, src []byte, m *Module) {
	if n == nil || n.Type() != "assignment" {
		return
	}
	left := n.ChildByFieldName("left")
	if left != nil && left.Type() == "identifier" && left.Content(src) == "__all__" {
		m.All = parseAll(n.ChildByFieldName("right"), src)
	}
	m.definePattern(left, src)
	p.collectAssignment(n.ChildByFieldName("right"), src, m)
}

// definePattern binds the names of an assignment or loop target such as
// `a`, `a, b`, `(a, b)` or `[a, *rest]`. Attributes and subscripts bind
// nothing.
func (m *Module) definePattern(n *sitter.Node, src []byte) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier":
		m.define(n, SymbolVariable, src)
	case "pattern_list", "tuple_pattern", "list_pattern", "list_splat_pattern",
		"tuple", "list", "list_splat", "parenthesized_expression":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			m.definePattern(n.NamedChild(i), src)
		}
	}
}

func (m *Module) define(nameNode *sitter.Node, kind SymbolKind, src []byte) {
	if nameNode == nil {
		return
	}
	name := nameNode.Content(src)
	// Later bindings win, as they do at import time.
	m.Symbols[name] = Symbol{
		Name: name,
		Kind: kind,
		Line: int(nameNode.StartPoint().Row) + 1,
	}
}

// parseAll reads a literal list or tuple of strings.
func parseAll(n *sitter.Node, src []byte) []string {
	if n == nil {
		return nil
	}
	v, err := literalValue(n, src)
	if err != nil {
		return nil
	}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case Tuple:
		items = []any(t)
	default:
		return nil
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			names = append(names, s)
		}
	}
	return names
}

func (m *Module) markExported() {
	var all map[string]bool
	if m.All != nil {
		all = make(map[string]bool, len(m.All))
		for _, name := range m.All {
			all[name] = true
		}
	}
	for name, s := range m.Symbols {
		s.Exported = exportedBy(all, name)
		m.Symbols[name] = s
	}
}

// exports reports whether `from module import *` brings name in.
func (m *Module) exports(name string) bool {
	if m.All == nil {
		return exportedBy(nil, name)
	}
	for _, n := range m.All {
		if n == name {
			return true
		}
	}
	return false
}

func exportedBy(all map[string]bool, name string) bool {
	if all != nil {
		return all[name]
	}
	return !strings.HasPrefix(name, "_")
}
