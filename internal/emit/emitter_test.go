package emit

import (
	"context"
	"strings"
	"testing"

	"pytestmaker/internal/pysource"
	"pytestmaker/internal/resolve"
	"pytestmaker/internal/spec"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const calcModule = `from __future__ import annotations
import math
from typing import List
import pytest


def add(a, b):
    return a + b


def slow(n):
    return n


def total(*values):
    return sum(values)


def _hidden():
    return 1
`

func generate(t *testing.T, doc string) string {
	t.Helper()
	m, err := pysource.ParseModule(context.Background(), []byte(calcModule))
	require.NoError(t, err)
	raw, err := spec.Parse([]byte(doc))
	require.NoError(t, err)
	entries, err := resolve.Resolve(raw, m)
	require.NoError(t, err)
	return Emit(entries, "calc", m)
}

func TestEmit_Golden(t *testing.T) {
	doc := `fixture$data:
  args: "[1,2,3]"
add$pos:
  args: "$1$2"
  equals: 3
  outtype: int
slow$case:
  args: "$5"
  timeout: 10
total$spread:
  args: "$data*"
  eval_equals: "sum([1, 2, 3])"
  skip: 'needs "work"'
fixture$raw:
  args: "$math.pi"
_hidden$x:
  fail: ""
  more: 0
`
	want := `from __future__ import annotations
import pytest
import math
from typing import *
from calc import *
from calc import _hidden

@pytest.fixture
def test_fixture_data():
    return [1, 2, 3]


def test_add_pos() -> None:
    result = add(1, 2)
    assert isinstance(result, int)
    assert result == 3

@pytest.mark.timeout(10)
def test_slow_case() -> None:
    result = slow(5)

@pytest.mark.skip(
    reason="needs \"work\"")
def test_total_spread(test_fixture_data) -> None:
    result = total(*test_fixture_data)
    assert result == sum([1, 2, 3])

@pytest.fixture
def test_fixture_raw():
    return math.pi


@pytest.mark.xfail
def test__hidden_x() -> None:
    result = _hidden()
    assert result > 0
`
	got := generate(t, doc)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Emit mismatch (-want +got):\n%s", diff)
	}
	if err := pysource.CheckSyntax(context.Background(), []byte(got)); err != nil {
		t.Errorf("generated source does not parse: %v", err)
	}
}

func TestEmit_Scenarios(t *testing.T) {
	header := "from __future__ import annotations\nimport pytest\nimport math\nfrom typing import *\nfrom calc import *\n\n"

	tests := []struct {
		name string
		doc  string
		body string
	}{
		{
			name: "equality",
			doc:  "add$pos:\n  args: \"$1$2\"\n  equals: 3\n",
			body: "def test_add_pos() -> None:\n    result = add(1, 2)\n    assert result == 3\n",
		},
		{
			name: "timeout",
			doc:  "slow$case:\n  args: \"$5\"\n  timeout: 10\n",
			body: "@pytest.mark.timeout(10)\ndef test_slow_case() -> None:\n    result = slow(5)\n",
		},
		{
			name: "fixture",
			doc:  "fixture$data:\n  args: \"[1,2,3]\"\n",
			body: "@pytest.fixture\ndef test_fixture_data():\n    return [1, 2, 3]\n",
		},
		{
			name: "skip beats timeout",
			doc:  "slow$case:\n  skip: later\n  timeout: 10\n",
			body: "@pytest.mark.skip(\n    reason=\"later\")\ndef test_slow_case() -> None:\n    result = slow()\n",
		},
		{
			name: "fixture ignores assertions and controls",
			doc:  "fixture$data:\n  args: \"$42\"\n  equals: 1\n  skip: x\n",
			body: "@pytest.fixture\ndef test_fixture_data():\n    return 42\n",
		},
		{
			name: "empty fixture",
			doc:  "fixture$nothing: ~\n",
			body: "@pytest.fixture\ndef test_fixture_nothing():\n    return None\n",
		},
		{
			name: "fixture parameter",
			doc:  "add$a:\n  args: \"$fixture_pair\"\n",
			body: "def test_add_a(test_fixture_pair) -> None:\n    result = add(test_fixture_pair)\n",
		},
		{
			name: "literal rendering",
			doc:  "add$a:\n  equals: {k: [1, 2.0, null, true, it's]}\n  less: 0.1\n  lessoe: ''\n  moreoe: -3\n",
			body: "def test_add_a() -> None:\n    result = add()\n" +
				"    assert result == {'k': [1, 2.0, None, True, \"it's\"]}\n" +
				"    assert result < 0.1\n" +
				"    assert result <= ''\n" +
				"    assert result >= -3\n",
		},
		{
			name: "eval variants in order",
			doc:  "add$a:\n  eval_moreoe: b\n  eval_less: c\n  eval_more: d\n  eval_lessoe: e\n  eval_equals: f\n",
			body: "def test_add_a() -> None:\n    result = add()\n" +
				"    assert result == f\n" +
				"    assert result < c\n" +
				"    assert result <= e\n" +
				"    assert result > d\n" +
				"    assert result >= b\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := generate(t, tt.doc)
			if diff := cmp.Diff(header+tt.body, got); diff != "" {
				t.Errorf("Emit mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmit_Deterministic(t *testing.T) {
	doc := "fixture$a: {args: '{x: 1}'}\nadd$b: {args: '$a', equals: {z: 1, y: 2}}\nslow$c: {timeout: 1.5}\n"
	first := generate(t, doc)
	for i := 0; i < 5; i++ {
		if got := generate(t, doc); got != first {
			t.Fatalf("run %d differs:\n%s", i, cmp.Diff(first, got))
		}
	}
	if !strings.Contains(first, "assert result == {'z': 1, 'y': 2}") {
		t.Errorf("mapping order not preserved:\n%s", first)
	}
	if !strings.Contains(first, "@pytest.mark.timeout(1.5)") {
		t.Errorf("float timeout not rendered:\n%s", first)
	}
}

func TestEmit_PreservesOrder(t *testing.T) {
	doc := "slow$z: {}\nfixture$m: {}\nadd$a: {}\ntotal$q: {}\nslow$b: {}\n"
	got := generate(t, doc)

	var defs []string
	for _, line := range strings.Split(got, "\n") {
		if strings.HasPrefix(line, "def ") {
			defs = append(defs, strings.SplitN(strings.TrimPrefix(line, "def "), "(", 2)[0])
		}
	}
	want := []string{"test_slow_z", "test_fixture_m", "test_add_a", "test_total_q", "test_slow_b"}
	if diff := cmp.Diff(want, defs); diff != "" {
		t.Errorf("definition order mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasSuffix(got, ")\n") || strings.HasSuffix(got, "\n\n") {
		t.Errorf("output must end with exactly one newline: %q", got[len(got)-10:])
	}
}

func TestEmit_NoEntries(t *testing.T) {
	got := Emit(nil, "calc", nil)
	want := "import pytest\nfrom typing import *\nfrom calc import *\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Emit mismatch (-want +got):\n%s", diff)
	}
}

func TestEmit_HandBuiltEntries(t *testing.T) {
	entries := []resolve.Entry{{
		Callable:      resolve.Callable{Name: "f", Symbol: pysource.Symbol{Name: "f", Exported: true}},
		Discriminator: "one",
		Args:          "x",
		Assertions:    []resolve.Assertion{{Kind: resolve.AssertEquals, Value: pysource.Tuple{"a"}}},
		Control:       resolve.Control{Kind: resolve.ControlXFail, Reason: "flaky"},
	}}
	want := "import pytest\nfrom typing import *\nfrom mod import *\n\n" +
		"@pytest.mark.xfail(\n    reason=\"flaky\")\n" +
		"def test_f_one() -> None:\n    result = f(x)\n    assert result == ('a',)\n"
	if diff := cmp.Diff(want, Emit(entries, "mod", nil)); diff != "" {
		t.Errorf("Emit mismatch (-want +got):\n%s", diff)
	}
}

func TestOutputFile(t *testing.T) {
	if got := OutputFile("calc"); got != "test_calc.py" {
		t.Errorf("OutputFile = %s", got)
	}
}
