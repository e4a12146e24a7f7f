package pysource

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// typingModule is skipped by Reflect: the generated preamble already does
// `from typing import *`.
const typingModule = "typing"

// Reflect returns the top-level import statements of a module, one statement
// per imported name, in source order. `from typing import ...` is skipped and
// `from __future__` imports are returned separately.
func (p *Parser) Reflect(ctx context.Context, content []byte) (imports, future []string, err error) {
	tree, err := p.parse(ctx, content)
	if err != nil {
		return nil, nil, err
	}
	defer tree.Close()

	imports, future = reflectImports(tree.RootNode(), content)
	return imports, future, nil
}

func reflectImports(root *sitter.Node, src []byte) (imports, future []string) {
	seen := make(map[string]bool)
	add := func(list *[]string, stmt string) {
		if seen[stmt] {
			return
		}
		seen[stmt] = true
		*list = append(*list, stmt)
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "import_statement":
			for _, name := range importedNames(node, nil, src) {
				add(&imports, "import "+name.String())
			}

		case "import_from_statement":
			modNode := node.ChildByFieldName("module_name")
			if modNode == nil {
				continue
			}
			module := compact(modNode.Content(src))
			if module == typingModule {
				continue
			}
			for _, name := range importedNames(node, modNode, src) {
				add(&imports, "from "+module+" import "+name.String())
			}

		case "future_import_statement":
			for _, name := range importedNames(node, nil, src) {
				add(&future, "from __future__ import "+name.String())
			}
		}
	}
	return imports, future
}

// importName is one imported name with its optional alias.
type importName struct {
	Name  string
	Alias string
}

func (n importName) String() string {
	if n.Alias != "" {
		return n.Name + " as " + n.Alias
	}
	return n.Name
}

// Binding is the name the import introduces into the importing namespace.
func (n importName) Binding() string {
	if n.Alias != "" {
		return n.Alias
	}
	if n.Name == "*" {
		return ""
	}
	// `import a.b` binds `a`
	if i := strings.IndexByte(n.Name, '.'); i >= 0 {
		return n.Name[:i]
	}
	return n.Name
}

// importedNames lists the names of an import node, skipping the module node
// of a from-import.
func importedNames(node, skip *sitter.Node, src []byte) []importName {
	var names []importName
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if skip != nil && child.StartByte() == skip.StartByte() && child.EndByte() == skip.EndByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			names = append(names, importName{Name: compact(child.Content(src))})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil {
				continue
			}
			in := importName{Name: compact(name.Content(src))}
			if alias != nil {
				in.Alias = alias.Content(src)
			}
			names = append(names, in)
		case "wildcard_import":
			names = append(names, importName{Name: "*"})
		}
	}
	return names
}

// collectImportBindings adds the names an import statement binds to the
// symbol table; they are attributes of the module like any definition.
// Star imports are recorded for expandStarImports.
func collectImportBindings(node *sitter.Node, src []byte, m *Module) {
	var skip *sitter.Node
	if node.Type() == "import_from_statement" {
		skip = node.ChildByFieldName("module_name")
	}
	for _, name := range importedNames(node, skip, src) {
		if name.Name == "*" && skip != nil {
			m.StarImports = append(m.StarImports, StarImport{
				Module: compact(skip.Content(src)),
				Line:   int(node.StartPoint().Row) + 1,
			})
			continue
		}
		binding := name.Binding()
		if binding == "" {
			continue
		}
		m.Symbols[binding] = Symbol{
			Name: binding,
			Kind: SymbolImport,
			Line: int(node.StartPoint().Row) + 1,
		}
	}
}

// compact drops whitespace inside dotted names (`a . b` is legal Python).
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
