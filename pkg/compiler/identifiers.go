package compiler

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// jsReserved lists the JavaScript reserved words a generated name must not
// collide with. Generated bindings carry prefixes and never collide; only
// the exported function name needs the check.
var jsReserved = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "enum": true, "export": true,
	"extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "import": true, "in": true,
	"instanceof": true, "new": true, "null": true, "return": true,
	"super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true, "let": true, "static": true,
}

// foldMarks strips combining marks after NFD decomposition, so accented
// node names fold to plain ASCII letters.
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// sanitizeIdent folds an arbitrary name into a valid JavaScript identifier
// fragment. The result may be empty for names with no usable runes.
func sanitizeIdent(name string) string {
	folded, _, err := transform.String(foldMarks, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for i, r := range folded {
		switch {
		case r == '_' || r == '$':
			b.WriteRune(r)
		case unicode.IsLetter(r) && r < 128:
			b.WriteRune(r)
		case unicode.IsDigit(r) && r < 128:
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// isJSIdent reports whether the name can be used with dot access in
// generated text.
func isJSIdent(name string) bool {
	if name == "" || jsReserved[name] {
		return false
	}
	for i, r := range name {
		valid := r == '_' || r == '$' || (unicode.IsLetter(r) && r < 128) ||
			(i > 0 && unicode.IsDigit(r) && r < 128)
		if !valid {
			return false
		}
	}
	return true
}

var titleCaser = cases.Title(language.English)

// functionName derives the exported callable's name from the workflow name:
// words title-cased and concatenated, with a fallback for names that fold to
// nothing.
func functionName(workflowName string) string {
	words := strings.FieldsFunc(workflowName, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteString(titleCaser.String(strings.ToLower(w)))
	}
	name := sanitizeIdent(b.String())
	if name == "" || strings.Trim(name, "_") == "" {
		return "Workflow"
	}
	if jsReserved[name] {
		name = name + "Workflow"
	}
	return name
}
