package canon

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// Stringify serializes a canonical Value with sorted keys and no
// whitespace. This string is the sole input to hashing, and the sole
// byte representation persisted by the durable timeline store.
func Stringify(v Value) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v Value) {
	switch v.Kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindInt:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case KindUInt:
		b.WriteString(strconv.FormatUint(v.UInt, 10))
	case KindBigInt:
		writeQuoted(b, v.BigInt)
	case KindFloat:
		if v.FloatOK {
			b.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
		} else {
			writeQuoted(b, v.Str) // non-finite textual form
		}
	case KindString:
		writeQuoted(b, v.Str)
	case KindBytes:
		writeQuoted(b, hex.EncodeToString(v.Bytes))
	case KindPDA:
		writeQuoted(b, base58.Encode(v.Bytes))
	case KindArray:
		b.WriteByte('[')
		for i, elem := range v.Array {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, elem)
		}
		b.WriteByte(']')
	case KindObject:
		b.WriteByte('{')
		for i, m := range v.Object {
			if i > 0 {
				b.WriteByte(',')
			}
			writeQuoted(b, m.Key)
			b.WriteByte(':')
			writeValue(b, m.Value)
		}
		b.WriteByte('}')
	}
}

// writeQuoted writes s as a JSON string literal. It escapes '"', '\\',
// newline, carriage return and tab with their short forms, writes any
// other control character below 0x20 as \u00XX, and writes every other
// rune unchanged (no HTML escaping, no escaping of non-ASCII).
func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u`)
				const hexDigits = "0123456789abcdef"
				b.WriteByte(hexDigits[(r>>12)&0xf])
				b.WriteByte(hexDigits[(r>>8)&0xf])
				b.WriteByte(hexDigits[(r>>4)&0xf])
				b.WriteByte(hexDigits[r&0xf])
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
