package resolve

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"pytestmaker/internal/pysource"
	"pytestmaker/internal/spec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calcModule = `import math

def add(a, b):
    return a + b

def slow(n):
    return n

def total(*values):
    return sum(values)

def _hidden():
    return 1
`

func loadModule(t *testing.T) *pysource.Module {
	t.Helper()
	m, err := pysource.ParseModule(context.Background(), []byte(calcModule))
	require.NoError(t, err)
	m.Name = "calc"
	return m
}

func resolveDoc(t *testing.T, doc string) ([]Entry, error) {
	t.Helper()
	raw, err := spec.Parse([]byte(doc))
	require.NoError(t, err)
	return Resolve(raw, loadModule(t))
}

func TestResolve_Test(t *testing.T) {
	entries, err := resolveDoc(t, `add$pos:
  args: "$1$2"
  equals: 3
`)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.False(t, e.IsFixture)
	assert.Equal(t, "add", e.Callable.Name)
	assert.Equal(t, pysource.SymbolFunction, e.Callable.Symbol.Kind)
	assert.Equal(t, "pos", e.Discriminator)
	assert.Equal(t, "1, 2", e.Args)
	assert.False(t, e.Spread)
	assert.Empty(t, e.FixtureParam)
	assert.Equal(t, "test_add_pos", e.FunctionName())
	require.Len(t, e.Assertions, 1)
	assert.Equal(t, AssertEquals, e.Assertions[0].Kind)
	assert.Equal(t, 0, big.NewInt(3).Cmp(e.Assertions[0].Value.(*big.Int)))
	assert.Equal(t, ControlNone, e.Control.Kind)
}

func TestResolve_Args(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"absent", "add$a: {}\n", ""},
		{"null", "add$a: {args: ~}\n", ""},
		{"leading artifact stripped", "add$a: {args: '$1$2'}\n", "1, 2"},
		{"no artifact kept whole", "add$a: {args: '[1,2,3]'}\n", "[1,2,3]"},
		{"single", "add$a: {args: '$5'}\n", "5"},
		{"number", "add$a: {args: 7}\n", "7"},
		{"expressions", "add$a: {args: \"$'x'$math.pi\"}\n", "'x', math.pi"},
		{"sequence", "add$a: {args: [1, \"'two'\", x]}\n", "1, 'two', x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := resolveDoc(t, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, entries[0].Args)
		})
	}
}

func TestResolve_Fixtures(t *testing.T) {
	entries, err := resolveDoc(t, `add$uses_later:
  args: "$data"
total$spread:
  args: "$data*"
fixture$data:
  args: "[1,2,3]"
  equals: 4
  skip: never
add$by_full_name:
  args: "$test_fixture_data"
add$by_short_name:
  args: "$fixture_data"
add$conftest:
  args: "$fixture_from_conftest"
`)
	require.NoError(t, err)
	require.Len(t, entries, 6)

	uses := entries[0]
	assert.Equal(t, "test_fixture_data", uses.FixtureParam)
	assert.Equal(t, "test_fixture_data", uses.Args)
	assert.False(t, uses.Spread)

	spread := entries[1]
	assert.True(t, spread.Spread)
	assert.Equal(t, "test_fixture_data", spread.FixtureParam)

	fx := entries[2]
	assert.True(t, fx.IsFixture)
	assert.True(t, fx.Callable.Fixture)
	assert.Equal(t, "data", fx.Discriminator)
	assert.Equal(t, "[1,2,3]", fx.Args)
	assert.Empty(t, fx.Assertions, "fixtures carry no assertions")
	assert.Equal(t, ControlNone, fx.Control.Kind, "fixtures carry no control directive")
	assert.Equal(t, "test_fixture_data", fx.FunctionName())

	assert.Equal(t, "test_fixture_data", entries[3].FixtureParam)
	assert.Equal(t, "test_fixture_data", entries[4].FixtureParam)
	assert.Equal(t, "test_fixture_from_conftest", entries[5].FixtureParam)
}

func TestResolve_FixtureClassification(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		fixture bool
	}{
		{"callable part names fixture", "fixture$x: {}\n", true},
		{"callable part contains fixture", "my_fixture$x: {}\n", true},
		{"discriminator containing fixture is a test", "add$fixture_case: {}\n", false},
		{"explicit tag", "add$x: {fixture: true}\n", true},
		{"explicit opt out", "add_fixture$x: {fixture: false}\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := spec.Parse([]byte(tt.doc))
			require.NoError(t, err)
			m := loadModule(t)
			m.Symbols["add_fixture"] = pysource.Symbol{Name: "add_fixture", Kind: pysource.SymbolFunction}

			entries, err := Resolve(raw, m)
			require.NoError(t, err)
			assert.Equal(t, tt.fixture, entries[0].IsFixture)
		})
	}
}

func TestResolve_AssertionOrderAndPresence(t *testing.T) {
	entries, err := resolveDoc(t, `add$all:
  eval_moreoe: "0"
  moreoe: 1
  eval_equals: "math.pi"
  equals: 0
  less: ""
  outtype: int
  lessoe: null
  more: [1]
`)
	require.NoError(t, err)

	var kinds []AssertionKind
	for _, a := range entries[0].Assertions {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []AssertionKind{
		AssertOutType, AssertEquals, AssertLess, AssertLessOE, AssertMore, AssertMoreOE,
		AssertEvalEquals, AssertEvalMoreOE,
	}, kinds)

	byKind := make(map[AssertionKind]Assertion)
	for _, a := range entries[0].Assertions {
		byKind[a.Kind] = a
	}
	assert.Equal(t, "int", byKind[AssertOutType].Expr)
	assert.Equal(t, "math.pi", byKind[AssertEvalEquals].Expr)
	assert.Equal(t, "", byKind[AssertLess].Value, "falsy values are still asserted")
	assert.Nil(t, byKind[AssertLessOE].Value)
	assert.Equal(t, []any{big.NewInt(1)}, byKind[AssertMore].Value)
}

func TestResolve_ControlPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		kind   ControlKind
		reason string
	}{
		{"none", "add$a: {}\n", ControlNone, ""},
		{"skip beats timeout", "add$a: {timeout: 10, skip: slow}\n", ControlSkip, "slow"},
		{"skip beats fail", "add$a: {fail: broken, skip: later}\n", ControlSkip, "later"},
		{"fail beats timeout", "add$a: {fail: broken, timeout: 3}\n", ControlXFail, "broken"},
		{"timeout alone", "add$a: {timeout: 10}\n", ControlTimeout, ""},
		{"bare skip", "add$a: {skip: ~}\n", ControlSkip, ""},
		{"true fail is bare", "add$a: {fail: true}\n", ControlXFail, ""},
		{"yaml 1.1 no skip falls through", "add$a: {skip: no, fail: off, timeout: 2}\n", ControlTimeout, ""},
		{"yaml 1.1 yes skip is bare", "add$a: {skip: yes}\n", ControlSkip, ""},
		{"quoted no is a reason", "add$a: {skip: 'no'}\n", ControlSkip, "no"},
		{"false skip falls through", "add$a: {skip: false, timeout: 2}\n", ControlTimeout, ""},
		{"invalid timeout ignored under skip", "add$a: {skip: x, timeout: soon}\n", ControlSkip, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := resolveDoc(t, tt.doc)
			require.NoError(t, err)
			c := entries[0].Control
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.reason, c.Reason)
		})
	}
}

func TestResolve_Timeout(t *testing.T) {
	entries, err := resolveDoc(t, "slow$case: {args: '$5', timeout: 2.5}\n")
	require.NoError(t, err)
	assert.Equal(t, 2.5, entries[0].Control.Timeout)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		target error
		msg    string
	}{
		{"no delimiter", "add_pos: {}\n", ErrMalformedKey, `malformed test key "add_pos" (line 1): expected exactly one "$" delimiter, found 0`},
		{"two delimiters", "add$a$b: {}\n", ErrMalformedKey, "found 2"},
		{"empty callable", "$a: {}\n", ErrMalformedKey, "must both be non-empty"},
		{"empty discriminator", "add$: {}\n", ErrMalformedKey, "must both be non-empty"},
		{"bad discriminator", "add$a-b: {}\n", ErrMalformedKey, "letters, digits and underscores"},
		{"bad key after good ones", "add$ok: {}\nbroken: {}\n", ErrMalformedKey, `"broken"`},
		{"unknown callable", "sub$a: {}\n", ErrUnresolvedCallable, `calc has no attribute "sub" (test key "sub$a")`},
		{"zero timeout", "add$a: {timeout: 0}\n", ErrDirective, "positive number"},
		{"negative timeout", "add$a: {timeout: -1}\n", ErrDirective, "positive number"},
		{"string timeout", "add$a: {timeout: soon}\n", ErrDirective, "'soon'"},
		{"fixture not bool", "add$a: {fixture: yes please}\n", ErrDirective, "expected true or false"},
		{"empty eval", "add$a: {eval_equals: ''}\n", ErrDirective, "non-empty expression"},
		{"outtype list", "add$a: {outtype: [int]}\n", ErrDirective, "non-empty expression"},
		{"args mapping", "add$a: {args: {x: 1}}\n", ErrDirective, "list of argument expressions"},
		{"spread of expression", "total$a: {args: '$[1, 2]*'}\n", ErrDirective, "single fixture"},
		{"skip mapping", "add$a: {skip: {why: x}}\n", ErrDirective, "reason must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveDoc(t, tt.doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestResolve_PreservesOrder(t *testing.T) {
	entries, err := resolveDoc(t, `slow$z: {}
fixture$m: {}
add$a: {}
slow$b: {}
`)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.FunctionName())
	}
	assert.Equal(t, []string{"test_slow_z", "test_fixture_m", "test_add_a", "test_slow_b"}, names)
}

func TestResolve_PrivateAndImportedNames(t *testing.T) {
	entries, err := resolveDoc(t, "_hidden$a: {}\nmath$b: {}\n")
	require.NoError(t, err)
	assert.False(t, entries[0].Callable.Symbol.Exported)
	assert.Equal(t, pysource.SymbolImport, entries[1].Callable.Symbol.Kind)
}

func TestResolve_ModuleLevelBindings(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"tuple unpacking", "add, sub = (lambda a, b: a + b), (lambda a, b: a - b)\n"},
		{"parenthesized unpacking", "(add, sub) = make_ops()\n"},
		{"list unpacking with rest", "[first, *add] = make_ops()\n"},
		{"for body", "for _ in range(1):\n    def add(a, b):\n        return a + b\n"},
		{"for target", "for add in [max]:\n    pass\n"},
		{"while else", "while False:\n    pass\nelse:\n    def add(a, b):\n        return a + b\n"},
		{"match case", "match 1:\n    case 1:\n        def add(a, b):\n            return a + b\n    case _:\n        pass\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := pysource.ParseModule(context.Background(), []byte(tt.source))
			require.NoError(t, err)
			m.Name = "calc"

			raw, err := spec.Parse([]byte("add$pos: {args: '$1$2'}\n"))
			require.NoError(t, err)
			entries, err := Resolve(raw, m)
			require.NoError(t, err)
			assert.Equal(t, "add", entries[0].Callable.Name)
			assert.True(t, entries[0].Callable.Symbol.Exported)
		})
	}
}

func TestResolve_StarImports(t *testing.T) {
	write := func(t *testing.T, dir, name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}
	raw, err := spec.Parse([]byte("add$pos: {args: '$1$2', equals: 3}\n"))
	require.NoError(t, err)

	t.Run("workspace module", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, "helpers.py", "def add(a, b):\n    return a + b\n")
		path := write(t, dir, "calc.py", "from helpers import *\n")

		m, err := pysource.LoadModule(context.Background(), path)
		require.NoError(t, err)
		entries, err := Resolve(raw, m)
		require.NoError(t, err)
		assert.Equal(t, pysource.SymbolImport, entries[0].Callable.Symbol.Kind)
		assert.Equal(t, 1, entries[0].Callable.Symbol.Line)
	})

	t.Run("workspace module without the name", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, "helpers.py", "def sub(a, b):\n    return a - b\n")
		path := write(t, dir, "calc.py", "from helpers import *\n")

		m, err := pysource.LoadModule(context.Background(), path)
		require.NoError(t, err)
		_, err = Resolve(raw, m)
		assert.True(t, errors.Is(err, ErrUnresolvedCallable))
	})

	t.Run("module outside the workspace", func(t *testing.T) {
		dir := t.TempDir()
		path := write(t, dir, "calc.py", "from operator import *\n")

		m, err := pysource.LoadModule(context.Background(), path)
		require.NoError(t, err)
		entries, err := Resolve(raw, m)
		require.NoError(t, err)
		assert.Equal(t, pysource.SymbolImport, entries[0].Callable.Symbol.Kind)
		assert.True(t, entries[0].Callable.Symbol.Exported)
	})
}

func TestSplitKey(t *testing.T) {
	callable, disc, err := SplitKey("add$pos")
	require.NoError(t, err)
	assert.Equal(t, "add", callable)
	assert.Equal(t, "pos", disc)

	var mk *MalformedKeyError
	_, _, err = SplitKey("nodelimiter")
	require.True(t, errors.As(err, &mk))
	assert.Equal(t, "nodelimiter", mk.Key)
}
