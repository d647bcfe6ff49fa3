package firebolt

import (
	"fmt"
	"regexp"
	"strings"
)

// Substitute replaces every whole-word, case-insensitive occurrence of each
// parameter name in template with the parameter's encoded literal.
// Parameters are applied in order; names absent from the template are ignored
// and unmatched markers are left for the server to report.
func Substitute(template string, params []NamedParam) (string, error) {
	query := template
	for _, p := range params {
		if p.Name == "" {
			continue
		}
		literal, err := Encode(p.Value)
		if err != nil {
			return "", &ParameterError{Name: p.Name, Err: err}
		}
		query = placeholderPattern(p.Name).ReplaceAllLiteralString(query, literal)
	}
	return query, nil
}

// placeholderPattern builds a word-bounded matcher for name. A boundary is
// only required on a side where the name itself has a word character, so
// "@id" matches in "(@id)" but "id" never matches inside "identifier".
func placeholderPattern(name string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)")
	if isWordByte(name[0]) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(name))
	if isWordByte(name[len(name)-1]) {
		b.WriteString(`\b`)
	}
	return regexp.MustCompile(b.String())
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// interpolatePositional replaces ? placeholders in the query with encoded
// literals. It skips ? characters inside single-quoted string literals.
func interpolatePositional(query string, args []Param) (string, error) {
	if len(args) == 0 {
		return query, nil
	}

	var buf strings.Builder
	buf.Grow(len(query) + len(args)*8)
	argIdx := 0
	inString := false

	for i := 0; i < len(query); i++ {
		ch := query[i]
		if inString && ch == '\\' && i+1 < len(query) {
			// Backslash escape inside a literal
			buf.WriteByte(ch)
			buf.WriteByte(query[i+1])
			i++
			continue
		}
		if ch == '\'' {
			if inString && i+1 < len(query) && query[i+1] == '\'' {
				buf.WriteString("''")
				i++
				continue
			}
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if ch == '?' && !inString {
			if argIdx >= len(args) {
				return "", fmt.Errorf("firebolt: not enough arguments: query has more placeholders than the %d provided arguments", len(args))
			}
			s, err := Encode(args[argIdx])
			if err != nil {
				return "", &ParameterError{Name: fmt.Sprintf("$%d", argIdx+1), Err: err}
			}
			buf.WriteString(s)
			argIdx++
			continue
		}
		buf.WriteByte(ch)
	}

	if argIdx != len(args) {
		return "", fmt.Errorf("firebolt: too many arguments: %d provided but only %d placeholders in query", len(args), argIdx)
	}
	return buf.String(), nil
}
