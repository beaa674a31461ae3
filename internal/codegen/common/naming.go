package common

import (
	"strings"
	"unicode"
)

func ToSnakeCase(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		isUpper := r >= 'A' && r <= 'Z'

		if i > 0 && isUpper {
			// "someWord" -> "some_word"
			prevIsLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			prevIsDigit := runes[i-1] >= '0' && runes[i-1] <= '9'

			// "XMLParser" -> "xml_parser", not "x_m_l_parser"
			nextIsLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'

			if (prevIsLower || prevIsDigit || nextIsLower) && runes[i-1] != '_' {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

var rustKeywords = map[string]bool{
	"as": true, "break": true, "const": true, "continue": true, "crate": true,
	"else": true, "enum": true, "extern": true, "false": true, "fn": true,
	"for": true, "if": true, "impl": true, "in": true, "let": true,
	"loop": true, "match": true, "mod": true, "move": true, "mut": true,
	"pub": true, "ref": true, "return": true, "self": true, "Self": true,
	"static": true, "struct": true, "super": true, "trait": true, "true": true,
	"type": true, "unsafe": true, "use": true, "where": true, "while": true,
	"async": true, "await": true, "dyn": true, "abstract": true, "become": true,
	"box": true, "do": true, "final": true, "macro": true, "override": true,
	"priv": true, "typeof": true, "unsized": true, "virtual": true, "yield": true,
	"try": true,
}

// IsRustKeyword reports whether s is a strict or reserved Rust keyword.
func IsRustKeyword(s string) bool {
	return rustKeywords[s]
}

// IsIdent reports whether s is an ASCII identifier that is not a keyword.
func IsIdent(s string) bool {
	if s == "" || IsRustKeyword(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', isUpper(c), isLower(c):
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// SanitizeIdent appends an underscore to Rust keywords ("type" -> "type_").
// Characters that cannot appear in an identifier are replaced with '_' and a
// leading digit is prefixed with '_'.
func SanitizeIdent(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' || isUpper(c) || isLower(c) || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	if IsRustKeyword(out) {
		out += "_"
	}
	return out
}

// ConstName converts a GIR constant or member name to SCREAMING_CASE.
func ConstName(name string) string {
	return SanitizeIdent(strings.ToUpper(name))
}

// CrateName derives the crate name for a namespace version pair, for example
// ("Gtk", "3.0") -> "gtk_3_0".
func CrateName(namespace, version string) string {
	return sanitizeCrateChars(namespace) + "_" + sanitizeCrateChars(version)
}

// CrateAlias is the local name a crate is imported under in generated code.
func CrateAlias(namespace string) string {
	alias := SanitizeIdent(strings.ToLower(namespace))
	if alias == "libc" {
		alias = "libc_"
	}
	return alias
}

func sanitizeCrateChars(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
func isLower(b byte) bool { return b >= 'a' && b <= 'z' }
