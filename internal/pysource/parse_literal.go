package pysource

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrNotLiteral is returned when an expression is not a plain Python literal.
var ErrNotLiteral = errors.New("not a python literal")

// ParseLiteral evaluates a Python literal expression: None, booleans,
// numbers (with unary sign), strings, and lists, tuples and dicts of those.
// It is the inverse of Repr. Anything else (names, calls other than
// float('inf'|'-inf'|'nan'), operators, f-strings, bytes) is ErrNotLiteral.
func ParseLiteral(expr string) (any, error) {
	return NewParser().ParseLiteral(context.Background(), expr)
}

// ParseLiteral is the Parser form of the package-level ParseLiteral.
func (p *Parser) ParseLiteral(ctx context.Context, expr string) (any, error) {
	src := []byte(expr)
	tree, err := p.parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: %q does not parse", ErrNotLiteral, expr)
	}
	stmts := namedChildren(root)
	if len(stmts) != 1 || stmts[0].Type() != "expression_statement" {
		return nil, fmt.Errorf("%w: %q is not a single expression", ErrNotLiteral, expr)
	}
	exprs := namedChildren(stmts[0])
	if len(exprs) != 1 {
		return nil, fmt.Errorf("%w: %q is not a single expression", ErrNotLiteral, expr)
	}
	return literalValue(exprs[0], src)
}

// namedChildren returns the named children of n without comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func literalValue(n *sitter.Node, src []byte) (any, error) {
	text := n.Content(src)
	switch n.Type() {
	case "none":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "integer":
		i, ok := new(big.Int).SetString(text, 0)
		if !ok {
			return nil, fmt.Errorf("%w: integer %q", ErrNotLiteral, text)
		}
		return i, nil
	case "float":
		f, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: float %q", ErrNotLiteral, text)
		}
		return f, nil
	case "string":
		return decodeString(text)
	case "concatenated_string":
		var b strings.Builder
		for _, part := range namedChildren(n) {
			s, err := literalValue(part, src)
			if err != nil {
				return nil, err
			}
			str, ok := s.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrNotLiteral, text)
			}
			b.WriteString(str)
		}
		return b.String(), nil
	case "parenthesized_expression":
		inner := namedChildren(n)
		if len(inner) != 1 {
			return nil, fmt.Errorf("%w: %q", ErrNotLiteral, text)
		}
		return literalValue(inner[0], src)
	case "list":
		items, err := literalItems(n, src)
		if err != nil {
			return nil, err
		}
		return items, nil
	case "tuple":
		items, err := literalItems(n, src)
		if err != nil {
			return nil, err
		}
		return Tuple(items), nil
	case "dictionary":
		dict := Dict{}
		for _, pair := range namedChildren(n) {
			if pair.Type() != "pair" {
				return nil, fmt.Errorf("%w: dict entry %q", ErrNotLiteral, pair.Content(src))
			}
			k, err := literalValue(pair.ChildByFieldName("key"), src)
			if err != nil {
				return nil, err
			}
			v, err := literalValue(pair.ChildByFieldName("value"), src)
			if err != nil {
				return nil, err
			}
			dict = append(dict, DictItem{Key: k, Value: v})
		}
		return dict, nil
	case "unary_operator":
		return unaryValue(n, src)
	case "call":
		return floatCall(n, src)
	}
	return nil, fmt.Errorf("%w: %s %q", ErrNotLiteral, n.Type(), text)
}

func literalItems(n *sitter.Node, src []byte) ([]any, error) {
	children := namedChildren(n)
	items := make([]any, 0, len(children))
	for _, c := range children {
		v, err := literalValue(c, src)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func unaryValue(n *sitter.Node, src []byte) (any, error) {
	op := n.ChildByFieldName("operator")
	arg := n.ChildByFieldName("argument")
	if op == nil || arg == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotLiteral, n.Content(src))
	}
	v, err := literalValue(arg, src)
	if err != nil {
		return nil, err
	}
	switch op.Content(src) {
	case "+":
		switch v.(type) {
		case *big.Int, float64:
			return v, nil
		}
	case "-":
		switch t := v.(type) {
		case *big.Int:
			return new(big.Int).Neg(t), nil
		case float64:
			return -t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotLiteral, n.Content(src))
}

// floatCall accepts float('inf'), float('-inf') and float('nan').
func floatCall(n *sitter.Node, src []byte) (any, error) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil || fn.Content(src) != "float" {
		return nil, fmt.Errorf("%w: call %q", ErrNotLiteral, n.Content(src))
	}
	argNodes := namedChildren(args)
	if len(argNodes) != 1 || argNodes[0].Type() != "string" {
		return nil, fmt.Errorf("%w: call %q", ErrNotLiteral, n.Content(src))
	}
	s, err := decodeString(argNodes[0].Content(src))
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(s.(string))) {
	case "inf", "+inf", "infinity":
		return math.Inf(1), nil
	case "-inf", "-infinity":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	return nil, fmt.Errorf("%w: call %q", ErrNotLiteral, n.Content(src))
}

// decodeString decodes the source text of one Python string literal.
func decodeString(text string) (any, error) {
	i := strings.IndexAny(text, `'"`)
	if i < 0 {
		return nil, fmt.Errorf("%w: string %q", ErrNotLiteral, text)
	}
	prefix := strings.ToLower(text[:i])
	if strings.ContainsAny(prefix, "bf") {
		return nil, fmt.Errorf("%w: %s-string %q", ErrNotLiteral, prefix, text)
	}
	raw := strings.Contains(prefix, "r")

	body := text[i:]
	quoteLen := 1
	if len(body) >= 6 && (strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, `'''`)) {
		quoteLen = 3
	}
	if len(body) < 2*quoteLen {
		return nil, fmt.Errorf("%w: string %q", ErrNotLiteral, text)
	}
	body = body[quoteLen : len(body)-quoteLen]
	if raw {
		return body, nil
	}
	return unescape(body)
}

func unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case '\n':
			// line continuation
		case '\\', '\'', '"':
			b.WriteByte(e)
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'v':
			b.WriteByte('\v')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(s[i:j], 8, 32)
			b.WriteRune(rune(v))
			i = j - 1
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[e]
			if i+1+width > len(s) {
				return "", fmt.Errorf("%w: truncated \\%c escape", ErrNotLiteral, e)
			}
			v, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(v)) {
				return "", fmt.Errorf("%w: bad \\%c escape", ErrNotLiteral, e)
			}
			b.WriteRune(rune(v))
			i += width
		case 'N':
			return "", fmt.Errorf("%w: \\N{...} escapes are not supported", ErrNotLiteral)
		default:
			// Python keeps unknown escapes verbatim.
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	return b.String(), nil
}
