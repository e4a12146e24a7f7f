// Package spec loads the YAML test specification.
//
// A specification is a mapping from test keys (`<callable>$<discriminator>`)
// to directive mappings. Declaration order is significant: it becomes the
// order of the generated suite, so the document is read as a yaml.Node tree
// rather than into a Go map.
package spec

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"pytestmaker/internal/logging"

	"gopkg.in/yaml.v3"
)

// RawEntry is one top-level key of the specification with its directives
// left undecoded.
type RawEntry struct {
	Key  string
	Line int // line of the key, 1-indexed

	// Directives maps directive names to their value nodes.
	Directives map[string]*yaml.Node

	// Order lists the directive names in declaration order.
	Order []string
}

// Directive returns the value node of a directive, aliases resolved.
func (e RawEntry) Directive(name string) (*yaml.Node, bool) {
	n, ok := e.Directives[name]
	if !ok {
		return nil, false
	}
	return resolveAlias(n), true
}

// Document is a loaded specification.
type Document struct {
	ModulePath string
	SpecPath   string
	Entries    []RawEntry
}

// ModuleFile returns the source file of a module name; a trailing ".py"
// on the name is tolerated.
func ModuleFile(moduleName string) string {
	return strings.TrimSuffix(moduleName, ".py") + ".py"
}

// Load checks that the target module and the specification exist, then
// parses the specification. moduleName may carry a directory.
func Load(moduleName, specPath string) (*Document, error) {
	timer := logging.StartTimer(logging.CategorySpec, "Load")
	defer timer.Stop()

	modulePath := ModuleFile(moduleName)
	if err := requireFile(ArtifactModule, modulePath); err != nil {
		logging.SpecError("%v", err)
		return nil, err
	}
	if err := requireFile(ArtifactSpecification, specPath); err != nil {
		logging.SpecError("%v", err)
		return nil, err
	}

	data, err := os.ReadFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read specification: %w", err)
	}

	entries, err := Parse(data)
	if err != nil {
		var me *MalformedError
		if errors.As(err, &me) && me.Path == "" {
			me.Path = specPath
		}
		logging.SpecError("%v", err)
		return nil, err
	}

	if len(entries) == 0 {
		logging.SpecWarn("%s declares no tests", specPath)
	}
	logging.Spec("loaded %d entries from %s", len(entries), specPath)
	return &Document{
		ModulePath: modulePath,
		SpecPath:   specPath,
		Entries:    entries,
	}, nil
}

func requireFile(kind ArtifactKind, path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &MissingArtifactError{Kind: kind, Path: path}
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return &MissingArtifactError{Kind: kind, Path: path}
	}
	return nil
}

// Parse decodes a specification document into raw entries.
func Parse(data []byte) ([]RawEntry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedError{Reason: err.Error()}
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := resolveAlias(doc.Content[0])
	if isNull(root) {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, &MalformedError{
			Line:   root.Line,
			Reason: fmt.Sprintf("top level must be a mapping, got %s", kindName(root)),
		}
	}

	pairs, err := mappingPairs(root)
	if err != nil {
		return nil, err
	}

	entries := make([]RawEntry, 0, len(pairs))
	for _, p := range pairs {
		if p.key.Kind != yaml.ScalarNode {
			return nil, &MalformedError{Line: p.key.Line, Reason: "test keys must be scalars"}
		}
		entry, err := parseEntry(p.key, p.value)
		if err != nil {
			return nil, err
		}
		logging.SpecDebug("entry %q: %d directives", entry.Key, len(entry.Order))
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(key, value *yaml.Node) (RawEntry, error) {
	entry := RawEntry{
		Key:        key.Value,
		Line:       key.Line,
		Directives: make(map[string]*yaml.Node),
	}

	value = resolveAlias(value)
	if isNull(value) {
		return entry, nil
	}
	if value.Kind != yaml.MappingNode {
		return RawEntry{}, &MalformedError{
			Line:   value.Line,
			Reason: fmt.Sprintf("entry %q must be a mapping of directives, got %s", entry.Key, kindName(value)),
		}
	}

	pairs, err := mappingPairs(value)
	if err != nil {
		return RawEntry{}, err
	}
	for _, p := range pairs {
		if p.key.Kind != yaml.ScalarNode {
			return RawEntry{}, &MalformedError{
				Line:   p.key.Line,
				Reason: fmt.Sprintf("entry %q: directive names must be scalars", entry.Key),
			}
		}
		entry.Directives[p.key.Value] = p.value
		entry.Order = append(entry.Order, p.key.Value)
	}
	return entry, nil
}
