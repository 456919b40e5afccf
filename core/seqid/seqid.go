// Package seqid parses and builds the sequence identifiers used on the command line.
//
// Identifiers are either a starting value ("276") or a power ("2^10"). A power
// may carry an exponent range ("2^1-30") that expands to one identifier per
// exponent. The merge detector itself never looks inside an identifier.
package seqid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/alimerge/core/errors"
)

// MaxRange bounds the number of identifiers a single range may expand to.
const MaxRange = 100000

// idGrammar is the participle grammar for sequence identifiers.
// Examples: "276", "2^10", "2^1-30"
//
//nolint:govet // participle grammar tags are not standard struct tags
type idGrammar struct {
	Base string   `@Int`
	Exp  *expPart `( "^" @@ )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type expPart struct {
	First int  `@Int`
	Last  *int `( "-" @Int )?`
}

var idLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[\^\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var idParser = participle.MustBuild[idGrammar](
	participle.Lexer(idLexer),
	participle.Elide("Whitespace"),
)

// Parse parses an identifier or range and returns the identifiers it denotes.
func Parse(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.NewValidation("sequence", s, "empty identifier")
	}

	parsed, err := idParser.ParseString("", s)
	if err != nil {
		return nil, errors.NewValidation("sequence", s, err.Error())
	}

	if parsed.Exp == nil {
		return []string{parsed.Base}, nil
	}

	last := parsed.Exp.First
	if parsed.Exp.Last != nil {
		last = *parsed.Exp.Last
	}
	return Range(parsed.Base, parsed.Exp.First, last)
}

// ParseAll parses several identifiers, keeping their order.
func ParseAll(args []string) ([]string, error) {
	var ids []string
	for _, arg := range args {
		expanded, err := Parse(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, expanded...)
	}
	return ids, nil
}

// Power returns the identifier of the sequence starting at base^exp.
func Power(base string, exp int) string {
	return base + "^" + strconv.Itoa(exp)
}

// Range returns base^first through base^last.
func Range(base string, first, last int) ([]string, error) {
	if err := ValidateBase(base); err != nil {
		return nil, err
	}
	if first < 0 {
		return nil, errors.NewValidation("exponent", strconv.Itoa(first), "must not be negative")
	}
	if first > last {
		return nil, errors.NewValidation("exponent range", fmt.Sprintf("%d-%d", first, last), "first exponent exceeds last")
	}
	if last-first >= MaxRange {
		return nil, errors.NewValidation("exponent range", fmt.Sprintf("%d-%d", first, last), "too many sequences")
	}

	ids := make([]string, 0, last-first+1)
	for exp := first; exp <= last; exp++ {
		ids = append(ids, Power(base, exp))
	}
	return ids, nil
}

// ValidateBase checks that base is a plain decimal number of at least 2.
func ValidateBase(base string) error {
	if base == "" {
		return errors.NewValidation("base", base, "empty")
	}
	for _, r := range base {
		if r < '0' || r > '9' {
			return errors.NewValidation("base", base, "not a decimal number")
		}
	}
	trimmed := strings.TrimLeft(base, "0")
	if trimmed == "" || trimmed == "1" {
		return errors.NewValidation("base", base, "must be at least 2")
	}
	return nil
}
