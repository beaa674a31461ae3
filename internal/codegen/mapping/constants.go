package mapping

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/Alia5/girgen/internal/codegen/model"
)

var integerPattern = regexp.MustCompile(`^-?\d+$`)

type sizedInt struct {
	bits   uint
	signed bool
}

var sizedInts = map[string]sizedInt{
	"gint8": {8, true}, "guint8": {8, false},
	"gint16": {16, true}, "guint16": {16, false},
	"gint32": {32, true}, "guint32": {32, false},
	"gint64": {64, true}, "guint64": {64, false},
}

// ConstantValue returns the Rust initializer for a GIR constant value of
// the given type.
func ConstantValue(t *model.TypeRef, value string) (string, error) {
	switch {
	case t.Name == "gboolean":
		switch value {
		case "true":
			return "TRUE", nil
		case "false":
			return "FALSE", nil
		}
		return "", fmt.Errorf("unexpected boolean constant value %q", value)
	case stringCTypes[cleanCType(t.CType)] || (t.CType == "" && (t.Name == "utf8" || t.Name == "filename")):
		return `b"` + escapeByteString(value) + `\0"`, nil
	}
	if info, ok := sizedInts[t.Name]; ok {
		if !integerPattern.MatchString(value) {
			return "", fmt.Errorf("unexpected integer constant value %q", value)
		}
		if !info.signed && strings.HasPrefix(value, "-") {
			return value + "i64 as " + ffiBasic[t.Name], nil
		}
		return info.convert(value), nil
	}
	if unsignedTypes[t.Name] {
		if !integerPattern.MatchString(value) {
			return "", fmt.Errorf("unexpected integer constant value %q", value)
		}
		// Negated flag combinations show up as negative literals.
		if strings.HasPrefix(value, "-") {
			return value + "i64 as " + t.Name, nil
		}
	}
	return value, nil
}

func (s sizedInt) convert(value string) string {
	v, _ := new(big.Int).SetString(value, 10)
	limit := new(big.Int).Lsh(big.NewInt(1), s.bits)
	if s.fits(v) {
		return value
	}
	if s.signed && v.Sign() > 0 && v.Cmp(limit) < 0 {
		// Within the bit width but beyond the signed range: two's complement.
		return new(big.Int).Sub(v, limit).String()
	}
	return value
}

func (s sizedInt) fits(v *big.Int) bool {
	one := big.NewInt(1)
	if s.signed {
		lo := new(big.Int).Neg(new(big.Int).Lsh(one, s.bits-1))
		hi := new(big.Int).Sub(new(big.Int).Lsh(one, s.bits-1), one)
		return v.Cmp(lo) >= 0 && v.Cmp(hi) <= 0
	}
	hi := new(big.Int).Sub(new(big.Int).Lsh(one, s.bits), one)
	return v.Sign() >= 0 && v.Cmp(hi) <= 0
}

func escapeByteString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&b, `\x%02x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// rawConstant returns the FFI type and initializer of a constant.
func (r *rawMapper) constant(e *model.Entity) (string, string, error) {
	value, err := ConstantValue(e.Type, e.Value)
	if err != nil {
		return "", "", err
	}
	if stringCTypes[cleanCType(e.Type.CType)] || strings.HasPrefix(value, `b"`) {
		return "&'static [u8]", value, nil
	}
	t, err := r.typ(e.Type, false)
	if err != nil {
		return "", "", err
	}
	return t, value, nil
}
