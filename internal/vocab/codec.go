package vocab

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// byteCodec is the GPT-2 "bytes to printable runes" table. Every byte value gets a rune that
// survives JSON and whitespace splitting: printable latin-1 bytes map to themselves and the
// rest (control chars, space, 0x7f-0xa0, 0xad) are shifted to 256, 257, ...
// That is what turns a leading space into 'Ġ' in vocab.json and merges.txt.
type byteCodec struct {
	byteToRune [NumByteSymbols]rune
	runeToByte map[rune]byte
}

var gpt2Codec = newByteCodec()

func newByteCodec() *byteCodec {
	c := &byteCodec{runeToByte: make(map[rune]byte, NumByteSymbols)}

	var printable [NumByteSymbols]bool
	for b := '!'; b <= '~'; b++ {
		printable[b] = true
	}
	for b := '¡'; b <= '¬'; b++ {
		printable[b] = true
	}
	for b := '®'; b <= 'ÿ'; b++ {
		printable[b] = true
	}

	// stand-ins (256, 257, ...) for the remaining bytes, assigned in byte order
	next := rune(NumByteSymbols)
	for b := 0; b < NumByteSymbols; b++ {
		r := rune(b)
		if !printable[b] {
			r = next
			next++
		}
		c.byteToRune[b] = r
		c.runeToByte[r] = byte(b)
	}

	return c
}

// encodeTokenString renders raw token bytes as a vocab.json/merges.txt token string.
func (c *byteCodec) encodeTokenString(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, x := range b {
		sb.WriteRune(c.byteToRune[x])
	}
	return sb.String()
}

// decodeTokenString turns a serialized token string back into the raw bytes it stands for.
// Runes from the table decode to their byte; any other rune is taken literally as its UTF-8
// encoding, which keeps hand-written entries such as "<|endoftext|>" loadable.
func (c *byteCodec) decodeTokenString(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))

	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			return nil, fmt.Errorf("invalid utf8 in token string at %q", s)
		}

		if b, ok := c.runeToByte[r]; ok {
			out = append(out, b)
		} else {
			out = utf8.AppendRune(out, r)
		}

		s = s[size:]
	}

	return out, nil
}
