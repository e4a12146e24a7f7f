package pysource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrSyntax classifies SyntaxError values.
var ErrSyntax = errors.New("python syntax error")

// SyntaxError locates the first error or missing node of a parse.
type SyntaxError struct {
	Line    int // 1-indexed
	Column  int // 1-indexed
	Missing bool
	Text    string // source line containing the error
}

func (e *SyntaxError) Error() string {
	what := "invalid syntax"
	if e.Missing {
		what = "incomplete syntax"
	}
	return fmt.Sprintf("%s at line %d, column %d: %s", what, e.Line, e.Column, e.Text)
}

// Is reports ErrSyntax.
func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// CheckSyntax parses Python source and reports the first syntax error.
func CheckSyntax(ctx context.Context, content []byte) error {
	return NewParser().CheckSyntax(ctx, content)
}

// CheckSyntax is the Parser form of the package-level CheckSyntax.
func (p *Parser) CheckSyntax(ctx context.Context, content []byte) error {
	tree, err := p.parse(ctx, content)
	if err != nil {
		return err
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	return newSyntaxError(root, content)
}

func newSyntaxError(root *sitter.Node, content []byte) *SyntaxError {
	bad := firstErrorNode(root)
	if bad == nil {
		bad = root
	}
	pt := bad.StartPoint()
	e := &SyntaxError{
		Line:    int(pt.Row) + 1,
		Column:  int(pt.Column) + 1,
		Missing: bad.IsMissing(),
	}
	lines := strings.Split(string(content), "\n")
	if int(pt.Row) < len(lines) {
		e.Text = strings.TrimSpace(lines[pt.Row])
	}
	return e
}

// firstErrorNode walks depth-first, in source order.
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
