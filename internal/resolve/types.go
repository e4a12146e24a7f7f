package resolve

import "pytestmaker/internal/pysource"

// Directive names recognized in a specification entry.
const (
	DirectiveArgs    = "args"
	DirectiveFixture = "fixture"
	DirectiveSkip    = "skip"
	DirectiveFail    = "fail"
	DirectiveTimeout = "timeout"
)

// AssertionKind names one assertion directive.
type AssertionKind string

const (
	AssertOutType    AssertionKind = "outtype"
	AssertEquals     AssertionKind = "equals"
	AssertLess       AssertionKind = "less"
	AssertLessOE     AssertionKind = "lessoe"
	AssertMore       AssertionKind = "more"
	AssertMoreOE     AssertionKind = "moreoe"
	AssertEvalEquals AssertionKind = "eval_equals"
	AssertEvalLess   AssertionKind = "eval_less"
	AssertEvalLessOE AssertionKind = "eval_lessoe"
	AssertEvalMore   AssertionKind = "eval_more"
	AssertEvalMoreOE AssertionKind = "eval_moreoe"
)

// AssertionOrder is the order assertions are emitted in.
var AssertionOrder = []AssertionKind{
	AssertOutType,
	AssertEquals, AssertLess, AssertLessOE, AssertMore, AssertMoreOE,
	AssertEvalEquals, AssertEvalLess, AssertEvalLessOE, AssertEvalMore, AssertEvalMoreOE,
}

var operators = map[AssertionKind]string{
	AssertEquals:     "==",
	AssertLess:       "<",
	AssertLessOE:     "<=",
	AssertMore:       ">",
	AssertMoreOE:     ">=",
	AssertEvalEquals: "==",
	AssertEvalLess:   "<",
	AssertEvalLessOE: "<=",
	AssertEvalMore:   ">",
	AssertEvalMoreOE: ">=",
}

// Operator returns the comparison operator of a kind, "" for outtype.
func (k AssertionKind) Operator() string { return operators[k] }

// Verbatim reports whether the clause holds expression text rather than a
// literal value.
func (k AssertionKind) Verbatim() bool {
	switch k {
	case AssertOutType, AssertEvalEquals, AssertEvalLess, AssertEvalLessOE, AssertEvalMore, AssertEvalMoreOE:
		return true
	}
	return false
}

func isAssertion(name string) bool {
	_, ok := operators[AssertionKind(name)]
	return ok || name == string(AssertOutType)
}

// Assertion is one assertion clause. Literal clauses carry a decoded Value;
// verbatim clauses carry Expr, spliced into the generated source unchanged.
type Assertion struct {
	Kind  AssertionKind
	Value any
	Expr  string
}

// ControlKind selects the active control directive.
type ControlKind int

const (
	ControlNone ControlKind = iota
	ControlSkip
	ControlXFail
	ControlTimeout
)

func (k ControlKind) String() string {
	switch k {
	case ControlSkip:
		return "skip"
	case ControlXFail:
		return "xfail"
	case ControlTimeout:
		return "timeout"
	}
	return "none"
}

// Control is the single control directive honored for a test.
type Control struct {
	Kind    ControlKind
	Reason  string // skip and xfail
	Timeout any    // *big.Int or float64 seconds, always positive
}

// Callable is the resolved left-hand side of a test key.
type Callable struct {
	Name   string
	Symbol pysource.Symbol

	// Fixture marks a fixture entry; such a callable is never called.
	Fixture bool
}

// Entry is a resolved specification entry, ready for emission.
type Entry struct {
	Key           string
	Callable      Callable
	Discriminator string

	// Args is the argument text spliced into the call, spread marker
	// stripped and fixture references replaced by generated names.
	Args string

	// Spread calls the function as f(*FixtureParam).
	Spread bool

	// FixtureParam is the generated name of the fixture the test consumes.
	FixtureParam string

	Assertions []Assertion
	Control    Control
	IsFixture  bool
}

// FunctionName is the generated Python function name of the entry.
func (e Entry) FunctionName() string {
	if e.IsFixture {
		return FixtureName(e.Discriminator)
	}
	return "test_" + e.Callable.Name + "_" + e.Discriminator
}

// FixtureName is the generated function name of a fixture discriminator.
func FixtureName(discriminator string) string {
	return "test_fixture_" + discriminator
}
