package pysource

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tuple is a Python tuple value.
type Tuple []any

// Dict is a Python dict value; item order is insertion order.
type Dict []DictItem

// DictItem is one key/value pair of a Dict.
type DictItem struct {
	Key   any
	Value any
}

// Repr renders a value as canonical Python literal source, the way Python's
// repr() does for the same value. Supported values are nil, bool, the Go
// integer types, *big.Int, float64, string, []any, Tuple and Dict.
func Repr(v any) string {
	var b strings.Builder
	writeRepr(&b, v)
	return b.String()
}

func writeRepr(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("None")
	case bool:
		if t {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))
	case *big.Int:
		b.WriteString(t.String())
	case float64:
		b.WriteString(FormatFloat(t))
	case string:
		b.WriteString(Quote(t))
	case []any:
		b.WriteByte('[')
		writeItems(b, t)
		b.WriteByte(']')
	case Tuple:
		b.WriteByte('(')
		writeItems(b, t)
		if len(t) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case Dict:
		b.WriteByte('{')
		for i, item := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, item.Key)
			b.WriteString(": ")
			writeRepr(b, item.Value)
		}
		b.WriteByte('}')
	default:
		b.WriteString(Quote(fmt.Sprint(t)))
	}
}

func writeItems(b *strings.Builder, items []any) {
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		writeRepr(b, item)
	}
}

// FormatFloat renders a float64 as Python's repr does: shortest round-trip
// digits, positional notation for exponents in [-4, 16), scientific outside,
// and always a fractional part or exponent. Non-finite values render as
// float() calls, since `inf` and `nan` are not Python literals.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "float('nan')"
	case math.IsInf(f, 1):
		return "float('inf')"
	case math.IsInf(f, -1):
		return "float('-inf')"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil {
		return sci
	}
	if exp < -4 || exp >= 16 {
		return sci
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// Quote renders a Python string literal the way repr() does: single quotes
// unless the string contains a single quote and no double quote.
func Quote(s string) string {
	q := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	return quoteWith(s, q)
}

// QuoteDouble renders a double-quoted Python string literal.
func QuoteDouble(s string) string {
	return quoteWith(s, '"')
}

func quoteWith(s string, q rune) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteRune(q)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			// Not valid UTF-8; keep the byte visible.
			fmt.Fprintf(&b, `\x%02x`, s[i])
			i++
			continue
		}
		i += size
		switch {
		case r == q || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x7f:
			b.WriteRune(r)
		case !unicode.IsPrint(r):
			switch {
			case r < 0x100:
				fmt.Fprintf(&b, `\x%02x`, r)
			case r < 0x10000:
				fmt.Fprintf(&b, `\u%04x`, r)
			default:
				fmt.Fprintf(&b, `\U%08x`, r)
			}
		default:
			b.WriteRune(r)
		}
	}
	b.WriteRune(q)
	return b.String()
}
