// Package emit renders resolved entries as a pytest module.
//
// Emission is pure: the whole file is built in memory and identical inputs
// always produce identical bytes. Writing the result is the caller's job.
package emit

import (
	"context"
	"strings"

	"pytestmaker/internal/logging"
	"pytestmaker/internal/pysource"
	"pytestmaker/internal/resolve"
)

const indent = "    "

// OutputFile is the name of the generated suite for a module.
func OutputFile(moduleName string) string {
	return "test_" + moduleName + ".py"
}

// Emit renders the pytest source for entries. module supplies the replayed
// imports and tells which callables `from <module> import *` cannot reach;
// it may be nil.
func Emit(entries []resolve.Entry, moduleName string, module *pysource.Module) string {
	timer := logging.StartTimer(logging.CategoryEmit, "Emit")
	defer timer.Stop()

	w := &writer{parser: pysource.NewParser()}
	w.preamble(entries, moduleName, module)

	for i, e := range entries {
		if e.IsFixture {
			w.fixture(e)
		} else {
			w.test(e)
		}
		if i == len(entries)-1 {
			break
		}
		w.blank()
		if e.IsFixture {
			w.blank()
		}
	}

	logging.Emit("emitted %d entries for module %s (%d bytes)", len(entries), moduleName, w.b.Len())
	return w.b.String()
}

type writer struct {
	b      strings.Builder
	parser *pysource.Parser
}

func (w *writer) line(parts ...string) {
	for _, p := range parts {
		w.b.WriteString(p)
	}
	w.b.WriteByte('\n')
}

func (w *writer) blank() { w.b.WriteByte('\n') }

func (w *writer) preamble(entries []resolve.Entry, moduleName string, module *pysource.Module) {
	if module != nil {
		for _, stmt := range module.FutureImports {
			w.line(stmt)
		}
	}
	w.line("import pytest")
	if module != nil {
		for _, stmt := range module.Imports {
			if stmt == "import pytest" {
				continue
			}
			w.line(stmt)
		}
	}
	w.line("from typing import *")
	w.line("from ", moduleName, " import *")
	for _, name := range hiddenCallables(entries) {
		w.line("from ", moduleName, " import ", name)
	}
	if len(entries) > 0 {
		w.blank()
	}
}

// hiddenCallables lists the called names a wildcard import does not bind,
// in first-use order.
func hiddenCallables(entries []resolve.Entry) []string {
	var names []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsFixture || e.Callable.Symbol.Exported || seen[e.Callable.Name] {
			continue
		}
		seen[e.Callable.Name] = true
		names = append(names, e.Callable.Name)
	}
	return names
}

func (w *writer) fixture(e resolve.Entry) {
	w.line("@pytest.fixture")
	w.line("def ", e.FunctionName(), "():")
	w.line(indent, "return ", w.fixtureValue(e.Args))
	logging.EmitDebug("fixture %s", e.FunctionName())
}

// fixtureValue renders a pure literal canonically and anything else as
// written.
func (w *writer) fixtureValue(args string) string {
	expr := strings.TrimSpace(args)
	if expr == "" {
		return "None"
	}
	v, err := w.parser.ParseLiteral(context.Background(), expr)
	if err != nil {
		return expr
	}
	return pysource.Repr(v)
}

func (w *writer) test(e resolve.Entry) {
	w.control(e.Control)
	w.line("def ", e.FunctionName(), "(", e.FixtureParam, ") -> None:")

	args := e.Args
	if e.Spread {
		args = "*" + e.FixtureParam
	}
	w.line(indent, "result = ", e.Callable.Name, "(", args, ")")

	for _, a := range e.Assertions {
		w.assertion(a)
	}
	logging.EmitDebug("test %s: %d assertions", e.FunctionName(), len(e.Assertions))
}

func (w *writer) control(c resolve.Control) {
	switch c.Kind {
	case resolve.ControlSkip:
		w.marker("skip", c.Reason)
	case resolve.ControlXFail:
		w.marker("xfail", c.Reason)
	case resolve.ControlTimeout:
		w.line("@pytest.mark.timeout(", pysource.Repr(c.Timeout), ")")
	}
}

func (w *writer) marker(name, reason string) {
	if reason == "" {
		w.line("@pytest.mark.", name)
		return
	}
	w.line("@pytest.mark.", name, "(")
	w.line(indent, "reason=", pysource.QuoteDouble(reason), ")")
}

func (w *writer) assertion(a resolve.Assertion) {
	switch {
	case a.Kind == resolve.AssertOutType:
		w.line(indent, "assert isinstance(result, ", a.Expr, ")")
	case a.Kind.Verbatim():
		w.line(indent, "assert result ", a.Kind.Operator(), " ", a.Expr)
	default:
		w.line(indent, "assert result ", a.Kind.Operator(), " ", pysource.Repr(a.Value))
	}
}
