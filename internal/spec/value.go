package spec

import (
	"fmt"
	"math/big"

	"pytestmaker/internal/pysource"

	"gopkg.in/yaml.v3"
)

const (
	tagNull  = "!!null"
	tagBool  = "!!bool"
	tagInt   = "!!int"
	tagFloat = "!!float"
	tagMerge = "!!merge"
	tagStr   = "!!str"
)

// yaml11Bools are the plain scalars YAML 1.1 reads as booleans. yaml.v3
// follows YAML 1.2 and leaves them as strings; specifications written for
// PyYAML expect booleans.
var yaml11Bools = map[string]bool{
	"yes": true, "Yes": true, "YES": true,
	"on": true, "On": true, "ON": true,
	"no": false, "No": false, "NO": false,
	"off": false, "Off": false, "OFF": false,
}

// quotedOrTagged styles keep a scalar's text literal.
const quotedOrTagged = yaml.DoubleQuotedStyle | yaml.SingleQuotedStyle |
	yaml.LiteralStyle | yaml.FoldedStyle | yaml.TaggedStyle

// Value converts a YAML node into a Python literal value: null is nil,
// booleans are bool (plain yes/no/on/off included, as in YAML 1.1), integers are *big.Int, floats are float64, sequences
// are []any and mappings are pysource.Dict in document order. Every other
// scalar, timestamps included, is its string text. Sequence keys become
// tuples so that the rendered dict is valid Python.
func Value(node *yaml.Node) (any, error) {
	n := resolveAlias(node)
	if n == nil {
		return nil, nil
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return Value(n.Content[0])
	case yaml.ScalarNode:
		return scalarValue(n)
	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := Value(c)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case yaml.MappingNode:
		pairs, err := mappingPairs(n)
		if err != nil {
			return nil, err
		}
		dict := make(pysource.Dict, 0, len(pairs))
		for _, p := range pairs {
			k, err := Value(p.key)
			if err != nil {
				return nil, err
			}
			k, err = hashable(k, p.key.Line)
			if err != nil {
				return nil, err
			}
			v, err := Value(p.value)
			if err != nil {
				return nil, err
			}
			dict = append(dict, pysource.DictItem{Key: k, Value: v})
		}
		return dict, nil
	}
	return nil, &MalformedError{Line: n.Line, Reason: fmt.Sprintf("unsupported %s node", kindName(n))}
}

func scalarValue(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case tagNull:
		return nil, nil
	case tagBool:
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, &MalformedError{Line: n.Line, Reason: err.Error()}
		}
		return b, nil
	case tagInt:
		if i, ok := parseInt(n.Value); ok {
			return i, nil
		}
		return nil, &MalformedError{Line: n.Line, Reason: fmt.Sprintf("invalid integer %q", n.Value)}
	case tagFloat:
		// Integers that overflow int64 resolve as floats.
		if i, ok := parseInt(n.Value); ok {
			return i, nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, &MalformedError{Line: n.Line, Reason: err.Error()}
		}
		return f, nil
	case tagStr:
		if b, ok := yaml11Bools[n.Value]; ok && n.Style&quotedOrTagged == 0 {
			return b, nil
		}
	}
	return n.Value, nil
}

func parseInt(text string) (*big.Int, bool) {
	return new(big.Int).SetString(text, 0)
}

// hashable turns list keys into tuples; dict keys are rejected.
func hashable(v any, line int) (any, error) {
	switch t := v.(type) {
	case []any:
		out := make(pysource.Tuple, len(t))
		for i, item := range t {
			h, err := hashable(item, line)
			if err != nil {
				return nil, err
			}
			out[i] = h
		}
		return out, nil
	case pysource.Dict:
		return nil, &MalformedError{Line: line, Reason: "a mapping cannot be used as a mapping key"}
	}
	return v, nil
}

// Text returns the text of a scalar node. The second result is false for
// collections.
func Text(node *yaml.Node) (string, bool) {
	n := resolveAlias(node)
	if n == nil || n.Kind != yaml.ScalarNode {
		return "", false
	}
	return n.Value, true
}

// IsNull reports whether a node is absent or an explicit null.
func IsNull(node *yaml.Node) bool {
	return isNull(resolveAlias(node))
}

type pair struct {
	key   *yaml.Node
	value *yaml.Node
}

// mappingPairs lists the key/value pairs of a mapping node in order,
// expanding `<<` merge keys. Explicit keys win over merged ones and repeated
// explicit scalar keys are malformed.
func mappingPairs(n *yaml.Node) ([]pair, error) {
	var explicit, merged []pair
	seen := make(map[string]int)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := resolveAlias(n.Content[i])
		v := n.Content[i+1]
		if k.Kind == yaml.ScalarNode && k.ShortTag() == tagMerge {
			m, err := mergePairs(v)
			if err != nil {
				return nil, err
			}
			merged = append(merged, m...)
			continue
		}
		if k.Kind == yaml.ScalarNode {
			if first, dup := seen[k.Value]; dup {
				return nil, &MalformedError{
					Line:   k.Line,
					Reason: fmt.Sprintf("duplicate key %q (first defined on line %d)", k.Value, first),
				}
			}
			seen[k.Value] = k.Line
		}
		explicit = append(explicit, pair{key: k, value: v})
	}
	if len(merged) == 0 {
		return explicit, nil
	}

	out := make([]pair, 0, len(merged)+len(explicit))
	taken := make(map[string]bool)
	for _, p := range merged {
		if p.key.Kind == yaml.ScalarNode {
			if _, overridden := seen[p.key.Value]; overridden || taken[p.key.Value] {
				continue
			}
			taken[p.key.Value] = true
		}
		out = append(out, p)
	}
	return append(out, explicit...), nil
}

// mergePairs expands the value of a merge key: a mapping or a sequence of
// mappings, earlier mappings taking precedence.
func mergePairs(v *yaml.Node) ([]pair, error) {
	v = resolveAlias(v)
	switch v.Kind {
	case yaml.MappingNode:
		return mappingPairs(v)
	case yaml.SequenceNode:
		var out []pair
		taken := make(map[string]bool)
		for _, item := range v.Content {
			item = resolveAlias(item)
			if item.Kind != yaml.MappingNode {
				return nil, &MalformedError{Line: item.Line, Reason: "merge sequence items must be mappings"}
			}
			pairs, err := mappingPairs(item)
			if err != nil {
				return nil, err
			}
			for _, p := range pairs {
				if p.key.Kind == yaml.ScalarNode {
					if taken[p.key.Value] {
						continue
					}
					taken[p.key.Value] = true
				}
				out = append(out, p)
			}
		}
		return out, nil
	}
	return nil, &MalformedError{Line: v.Line, Reason: "merge value must be a mapping"}
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == tagNull)
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "node"
}
