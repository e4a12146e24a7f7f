package spec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"calc.py": "def add(a, b):\n    return a + b\n",
		"pytest_input.yaml": `add$pos:
  args: "$1$2"
  equals: 3
slow$case:
  args: "$5"
  timeout: 10
fixture$data:
  args: "[1,2,3]"
`,
	})

	doc, err := Load(filepath.Join(dir, "calc"), filepath.Join(dir, "pytest_input.yaml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "calc.py"), doc.ModulePath)
	require.Len(t, doc.Entries, 3)

	keys := make([]string, len(doc.Entries))
	for i, e := range doc.Entries {
		keys[i] = e.Key
	}
	assert.Equal(t, []string{"add$pos", "slow$case", "fixture$data"}, keys)

	first := doc.Entries[0]
	assert.Equal(t, []string{"args", "equals"}, first.Order)
	assert.Equal(t, 1, first.Line)
	args, ok := first.Directive("args")
	require.True(t, ok)
	assert.Equal(t, "$1$2", args.Value)
	_, ok = first.Directive("timeout")
	assert.False(t, ok)
}

func TestLoad_ModuleNameWithExtension(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"calc.py":   "",
		"spec.yaml": "",
	})
	doc, err := Load(filepath.Join(dir, "calc.py"), filepath.Join(dir, "spec.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "calc.py"), doc.ModulePath)
	assert.Empty(t, doc.Entries)
}

func TestLoad_MissingArtifacts(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"calc.py":   "",
		"spec.yaml": "a$b:\n",
	})

	tests := []struct {
		name     string
		module   string
		specPath string
		kind     ArtifactKind
		missing  string
	}{
		{"module", filepath.Join(dir, "nope"), filepath.Join(dir, "spec.yaml"), ArtifactModule, filepath.Join(dir, "nope.py")},
		{"specification", filepath.Join(dir, "calc"), filepath.Join(dir, "absent.yaml"), ArtifactSpecification, filepath.Join(dir, "absent.yaml")},
		{"module checked first", filepath.Join(dir, "nope"), filepath.Join(dir, "absent.yaml"), ArtifactModule, filepath.Join(dir, "nope.py")},
		{"directory is not a file", dir, filepath.Join(dir, "spec.yaml"), ArtifactModule, dir + ".py"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.module, tt.specPath)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingArtifact))

			var mae *MissingArtifactError
			require.True(t, errors.As(err, &mae))
			assert.Equal(t, tt.kind, mae.Kind)
			assert.Equal(t, tt.missing, mae.Path)
			assert.Equal(t, tt.missing+" does not exist", err.Error())
		})
	}
}

func TestLoad_MalformedCarriesPath(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"calc.py":   "",
		"spec.yaml": "- a\n- b\n",
	})
	specPath := filepath.Join(dir, "spec.yaml")
	_, err := Load(filepath.Join(dir, "calc"), specPath)

	var me *MalformedError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, specPath, me.Path)
	assert.Equal(t, 1, me.Line)
	assert.Contains(t, err.Error(), "top level must be a mapping")
}

func TestParse_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		entries int
	}{
		{"empty", "", 0},
		{"comments only", "# nothing here\n", 0},
		{"explicit null", "~\n", 0},
		{"null entry", "add$pos:\n", 1},
		{"empty mapping entry", "add$pos: {}\n", 1},
		{"flow mapping", "{a$b: {args: '$1'}, c$d: null}\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Parse([]byte(tt.doc))
			require.NoError(t, err)
			assert.Len(t, entries, tt.entries)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		reason string
	}{
		{"sequence root", "- a$b\n", "top level must be a mapping"},
		{"scalar root", "just text\n", "top level must be a mapping"},
		{"scalar entry", "add$pos: 3\n", `entry "add$pos" must be a mapping`},
		{"sequence entry", "add$pos:\n  - 1\n", `entry "add$pos" must be a mapping`},
		{"duplicate key", "add$pos:\n  equals: 1\nadd$pos:\n  equals: 2\n", `duplicate key "add$pos" (first defined on line 1)`},
		{"duplicate directive", "add$pos:\n  equals: 1\n  equals: 2\n", `duplicate key "equals"`},
		{"sequence key", "? [a, b]\n: {}\n", "test keys must be scalars"},
		{"invalid yaml", "add$pos: [\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "error %v should be ErrMalformed", err)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestParse_AliasesAndMerge(t *testing.T) {
	doc := `base: &base
  args: "$1$2"
  equals: 3
add$one: *base
add$two:
  <<: *base
  equals: 4
`
	entries, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	one := entries[1]
	assert.Equal(t, []string{"args", "equals"}, one.Order)

	two := entries[2]
	assert.Equal(t, []string{"args", "equals"}, two.Order)
	eq, ok := two.Directive("equals")
	require.True(t, ok)
	assert.Equal(t, "4", eq.Value)
}
