package tokenizer

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

const replacementChar = "\uFFFD"

// DecodeBytes concatenates the byte strings of ids. An id outside the vocabulary contributes
// the UTF-8 encoding of U+FFFD.
func (t *Tokenizer) DecodeBytes(ids []int) []byte {
	if len(ids) == 0 {
		return nil
	}
	return t.appendBytes(nil, ids)
}

func (t *Tokenizer) appendBytes(out []byte, ids []int) []byte {
	total := len(out)
	for _, id := range ids {
		if sym, ok := t.vocab.Symbol(id); ok {
			total += len(sym)
		} else {
			total += len(replacementChar)
		}
	}

	if cap(out) < total {
		grown := make([]byte, len(out), total)
		copy(grown, out)
		out = grown
	}
	for _, id := range ids {
		if sym, ok := t.vocab.Symbol(id); ok {
			out = append(out, sym...)
		} else {
			out = append(out, replacementChar...)
		}
	}
	return out
}

// Decode converts ids back to text. It never fails: out-of-range ids become U+FFFD and so does
// every maximal ill-formed subsequence of the concatenated bytes.
func (t *Tokenizer) Decode(ids []int) string {
	return decodeUTF8(t.appendBytes(nil, ids))
}

func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), replacementChar)
	}
	return string(s)
}

// StreamDecoder decodes an id stream incrementally. Bytes that may still be the start of a
// multi-byte character are held back until the next Feed or Flush, so the concatenation of
// every returned string equals Decode of the whole stream.
type StreamDecoder struct {
	tok *Tokenizer
	buf []byte
}

// NewStreamDecoder returns a decoder with an empty buffer. Not safe for concurrent use.
func (t *Tokenizer) NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{tok: t}
}

// Feed consumes ids and returns the text that is final so far.
func (d *StreamDecoder) Feed(ids []int) string {
	d.buf = d.tok.appendBytes(d.buf, ids)

	cut := len(d.buf)
	for i := len(d.buf) - 1; i >= 0 && i >= len(d.buf)-(utf8.UTFMax-1); i-- {
		if utf8.RuneStart(d.buf[i]) {
			if !utf8.FullRune(d.buf[i:]) {
				cut = i
			}
			break
		}
	}

	out := decodeUTF8(d.buf[:cut])
	d.buf = append(d.buf[:0], d.buf[cut:]...)
	return out
}

// Flush returns whatever is buffered, with any incomplete tail replaced, and resets the
// decoder for a new stream.
func (d *StreamDecoder) Flush() string {
	out := decodeUTF8(d.buf)
	d.buf = d.buf[:0]
	return out
}
