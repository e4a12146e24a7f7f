// Package resolve turns raw specification entries into canonical entries.
//
// A test key `<callable>$<discriminator>` names a function of the target
// module and a suffix that keeps generated names unique. Fixture keys name
// a value producer instead. Resolution looks callables up in the module's
// symbol table; nothing is imported.
package resolve

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"pytestmaker/internal/logging"
	"pytestmaker/internal/pysource"
	"pytestmaker/internal/spec"

	"gopkg.in/yaml.v3"
)

const (
	// KeyDelimiter separates the callable from the discriminator in a key
	// and the arguments in an args string.
	KeyDelimiter = "$"

	// SpreadMarker ends an argument that is unpacked into the call.
	SpreadMarker = "*"

	fixtureWord = "fixture"
)

var (
	discriminatorPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	identifierPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Resolve resolves entries in order against a module's symbol table.
// Fixture declarations are collected first so that a test may consume a
// fixture declared after it.
func Resolve(entries []spec.RawEntry, module *pysource.Module) ([]Entry, error) {
	timer := logging.StartTimer(logging.CategoryResolve, "Resolve")
	defer timer.Stop()

	r := &resolver{module: module, fixtures: make(map[string]string)}

	keys := make([]key, len(entries))
	for i, raw := range entries {
		k, err := r.classify(raw)
		if err != nil {
			logging.ResolveError("%v", err)
			return nil, err
		}
		keys[i] = k
		if k.fixture {
			name := FixtureName(k.discriminator)
			for _, ref := range []string{k.discriminator, fixtureWord + "_" + k.discriminator, name} {
				r.fixtures[ref] = name
			}
		}
	}

	out := make([]Entry, 0, len(entries))
	names := make(map[string]string)
	for i, raw := range entries {
		e, err := r.resolve(raw, keys[i])
		if err != nil {
			logging.ResolveError("%v", err)
			return nil, err
		}
		fn := e.FunctionName()
		if prev, dup := names[fn]; dup {
			logging.ResolveWarn("keys %q and %q both generate %s; the later definition shadows the earlier", prev, raw.Key, fn)
		}
		names[fn] = raw.Key
		out = append(out, e)
	}

	logging.Resolve("resolved %d entries (%d fixtures)", len(out), countFixtures(out))
	return out, nil
}

type resolver struct {
	module *pysource.Module

	// fixtures maps every accepted spelling of a fixture reference to the
	// fixture's generated name.
	fixtures map[string]string
}

type key struct {
	callable      string
	discriminator string
	fixture       bool
}

// SplitKey splits a test key into its callable and discriminator parts.
func SplitKey(raw string) (callable, discriminator string, err error) {
	if n := strings.Count(raw, KeyDelimiter); n != 1 {
		return "", "", &MalformedKeyError{
			Key:    raw,
			Reason: fmt.Sprintf("expected exactly one %q delimiter, found %d", KeyDelimiter, n),
		}
	}
	callable, discriminator, _ = strings.Cut(raw, KeyDelimiter)
	if callable == "" || discriminator == "" {
		return "", "", &MalformedKeyError{Key: raw, Reason: "callable and discriminator must both be non-empty"}
	}
	if !discriminatorPattern.MatchString(discriminator) {
		return "", "", &MalformedKeyError{
			Key:    raw,
			Reason: fmt.Sprintf("discriminator %q may only contain letters, digits and underscores", discriminator),
		}
	}
	return callable, discriminator, nil
}

func (r *resolver) classify(raw spec.RawEntry) (key, error) {
	callable, disc, err := SplitKey(raw.Key)
	if err != nil {
		if mk, ok := err.(*MalformedKeyError); ok {
			mk.Line = raw.Line
		}
		return key{}, err
	}
	k := key{callable: callable, discriminator: disc}

	if n, ok := raw.Directive(DirectiveFixture); ok {
		v, err := spec.Value(n)
		if err != nil {
			return key{}, directiveErr(raw, DirectiveFixture, "cannot decode value", err)
		}
		b, ok := v.(bool)
		if !ok {
			return key{}, directiveErr(raw, DirectiveFixture, fmt.Sprintf("expected true or false, got %s", pysource.Repr(v)), nil)
		}
		k.fixture = b
		return k, nil
	}
	k.fixture = strings.Contains(callable, fixtureWord)
	return k, nil
}

func (r *resolver) resolve(raw spec.RawEntry, k key) (Entry, error) {
	for _, name := range raw.Order {
		if !knownDirective(name) {
			logging.ResolveWarn("test key %q: unknown directive %q ignored", raw.Key, name)
		}
	}

	args, err := argumentText(raw)
	if err != nil {
		return Entry{}, err
	}

	if k.fixture {
		for _, name := range raw.Order {
			if isAssertion(name) || name == DirectiveSkip || name == DirectiveFail || name == DirectiveTimeout {
				logging.ResolveWarn("fixture %q: directive %q does not apply to fixtures", raw.Key, name)
			}
		}
		logging.ResolveDebug("fixture %q -> %s", raw.Key, FixtureName(k.discriminator))
		return Entry{
			Key:           raw.Key,
			Callable:      Callable{Name: k.callable, Fixture: true},
			Discriminator: k.discriminator,
			Args:          args,
			IsFixture:     true,
		}, nil
	}

	sym, ok := r.module.Lookup(k.callable)
	if !ok {
		if sym, ok = r.module.LookupStar(k.callable); ok {
			logging.ResolveWarn("test key %q: %s is not defined in %s; assuming it comes from a star import of %v",
				raw.Key, k.callable, r.moduleName(), r.module.OpaqueStarImports)
		}
	}
	if !ok {
		return Entry{}, &UnresolvedCallableError{Key: raw.Key, Callable: k.callable, Module: r.moduleName()}
	}

	e := Entry{
		Key:           raw.Key,
		Callable:      Callable{Name: k.callable, Symbol: sym},
		Discriminator: k.discriminator,
		Args:          args,
	}
	if err := r.bindFixture(raw, &e); err != nil {
		return Entry{}, err
	}
	if e.Assertions, err = assertions(raw); err != nil {
		return Entry{}, err
	}
	if e.Control, err = control(raw); err != nil {
		return Entry{}, err
	}

	logging.ResolveDebug("test %q -> %s(%s), %d assertions, control %s",
		raw.Key, e.FunctionName(), e.Args, len(e.Assertions), e.Control.Kind)
	return e, nil
}

func (r *resolver) moduleName() string {
	if r.module == nil {
		return ""
	}
	return r.module.Name
}

// bindFixture detects spread and fixture-valued arguments.
func (r *resolver) bindFixture(raw spec.RawEntry, e *Entry) error {
	args := strings.TrimSpace(e.Args)
	if args == "" {
		return nil
	}

	if strings.HasSuffix(args, SpreadMarker) {
		name := strings.TrimSpace(strings.TrimSuffix(args, SpreadMarker))
		if !identifierPattern.MatchString(name) {
			return directiveErr(raw, DirectiveArgs,
				fmt.Sprintf("spread argument %q must name a single fixture", args), nil)
		}
		e.Spread = true
		e.FixtureParam = r.fixtureName(name)
		e.Args = e.FixtureParam
		return nil
	}

	if generated, ok := r.fixtures[args]; ok {
		e.FixtureParam = generated
		e.Args = generated
		return nil
	}
	// Fixtures defined outside the specification, e.g. in conftest.py.
	if identifierPattern.MatchString(args) && strings.Contains(args, fixtureWord) {
		e.FixtureParam = "test_" + args
		e.Args = e.FixtureParam
	}
	return nil
}

func (r *resolver) fixtureName(ref string) string {
	if generated, ok := r.fixtures[ref]; ok {
		return generated
	}
	if strings.HasPrefix(ref, "test_") {
		return ref
	}
	return "test_" + ref
}

// argumentText decodes the args directive. A scalar is a `$`-joined list
// whose leading `, ` artifact is dropped; a sequence lists one argument
// expression per item.
func argumentText(raw spec.RawEntry) (string, error) {
	n, ok := raw.Directive(DirectiveArgs)
	if !ok || spec.IsNull(n) {
		return "", nil
	}
	if text, ok := spec.Text(n); ok {
		joined := strings.ReplaceAll(text, KeyDelimiter, ", ")
		return strings.TrimPrefix(joined, ", "), nil
	}
	if n.Kind != yaml.SequenceNode {
		return "", directiveErr(raw, DirectiveArgs, "expected a string or a list of argument expressions", nil)
	}
	parts := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		text, ok := spec.Text(item)
		if !ok {
			return "", directiveErr(raw, DirectiveArgs, "list items must be scalar expressions", nil)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, ", "), nil
}

func assertions(raw spec.RawEntry) ([]Assertion, error) {
	var out []Assertion
	for _, kind := range AssertionOrder {
		n, ok := raw.Directive(string(kind))
		if !ok {
			continue
		}
		if kind.Verbatim() {
			text, ok := spec.Text(n)
			if !ok || spec.IsNull(n) || strings.TrimSpace(text) == "" {
				return nil, directiveErr(raw, string(kind), "expected a non-empty expression", nil)
			}
			out = append(out, Assertion{Kind: kind, Expr: strings.TrimSpace(text)})
			continue
		}
		v, err := spec.Value(n)
		if err != nil {
			return nil, directiveErr(raw, string(kind), "cannot decode value", err)
		}
		out = append(out, Assertion{Kind: kind, Value: v})
	}
	return out, nil
}

// control picks the honored control directive: skip, then fail, then
// timeout. A null or true value activates skip or fail without a reason;
// false leaves the directive inactive.
func control(raw spec.RawEntry) (Control, error) {
	for _, c := range []struct {
		name string
		kind ControlKind
	}{
		{DirectiveSkip, ControlSkip},
		{DirectiveFail, ControlXFail},
	} {
		n, ok := raw.Directive(c.name)
		if !ok || isFalse(n) {
			continue
		}
		if spec.IsNull(n) || isTrue(n) {
			return Control{Kind: c.kind}, nil
		}
		reason, ok := spec.Text(n)
		if !ok {
			return Control{}, directiveErr(raw, c.name, "reason must be a string", nil)
		}
		return Control{Kind: c.kind, Reason: reason}, nil
	}

	n, ok := raw.Directive(DirectiveTimeout)
	if !ok || isFalse(n) || spec.IsNull(n) {
		return Control{}, nil
	}
	v, err := spec.Value(n)
	if err != nil {
		return Control{}, directiveErr(raw, DirectiveTimeout, "cannot decode value", err)
	}
	if !positive(v) {
		return Control{}, directiveErr(raw, DirectiveTimeout,
			fmt.Sprintf("expected a positive number of seconds, got %s", pysource.Repr(v)), nil)
	}
	return Control{Kind: ControlTimeout, Timeout: v}, nil
}

func positive(v any) bool {
	switch t := v.(type) {
	case *big.Int:
		return t.Sign() > 0
	case float64:
		return t > 0 && !math.IsInf(t, 1)
	}
	return false
}

func isFalse(n *yaml.Node) bool {
	v, err := spec.Value(n)
	return err == nil && v == false
}

func isTrue(n *yaml.Node) bool {
	v, err := spec.Value(n)
	return err == nil && v == true
}

func knownDirective(name string) bool {
	switch name {
	case DirectiveArgs, DirectiveFixture, DirectiveSkip, DirectiveFail, DirectiveTimeout:
		return true
	}
	return isAssertion(name)
}

func directiveErr(raw spec.RawEntry, directive, reason string, err error) *DirectiveError {
	return &DirectiveError{Key: raw.Key, Directive: directive, Reason: reason, Err: err}
}

func countFixtures(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if e.IsFixture {
			n++
		}
	}
	return n
}
