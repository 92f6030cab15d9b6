package pretokenize

import (
	"bufio"
	"bytes"
	"io"
)

const (
	// DefaultMaxDocumentSize bounds how much text the document scanner buffers while looking
	// for a place to cut.
	DefaultMaxDocumentSize = 1 << 30

	// DefaultChunkSize is the size past which a long document is cut into pieces.
	DefaultChunkSize = 1 << 20
)

// NewDocumentScanner returns a scanner whose tokens are the ordinary text between special
// token occurrences in r; the special tokens themselves are dropped. Matching is leftmost,
// and at one position the longest special token wins. Since training never pre-tokenizes
// across a special token, documents can be segmented independently.
//
// A document longer than min(DefaultChunkSize, maxDocumentSize/2) is returned in pieces cut
// where GPT2Pattern always breaks, so segmenting the pieces one by one yields the same units
// as segmenting the whole document. Only text with no such cut point within maxDocumentSize
// bytes fails with bufio.ErrTooLong.
func NewDocumentScanner(r io.Reader, specialTokens []string, maxDocumentSize int) *bufio.Scanner {
	if maxDocumentSize <= 0 {
		maxDocumentSize = DefaultMaxDocumentSize
	}
	initial := min(64*1024, maxDocumentSize)
	chunkSize := max(min(DefaultChunkSize, maxDocumentSize/2), 1)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, initial), maxDocumentSize)
	sc.Split(splitDocuments(SortSpecialTokens(specialTokens), chunkSize))
	return sc
}

// splitDocuments builds a bufio.SplitFunc; specials must be sorted longest first. The
// returned func is stateful and belongs to a single scanner.
func splitDocuments(specials []string, chunkSize int) bufio.SplitFunc {
	tokens := make([][]byte, len(specials))
	maxLen := 0
	for i, s := range specials {
		tokens[i] = []byte(s)
		maxLen = max(maxLen, len(s))
	}

	// no special token starts before data[searchFrom]
	searchFrom := 0

	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}

		pos, tokLen := -1, 0
		for _, tok := range tokens {
			i := bytes.Index(data[searchFrom:], tok)
			if i < 0 {
				continue
			}
			i += searchFrom
			// tokens are sorted longest first, so the first hit at a position is the longest
			if pos == -1 || i < pos {
				pos, tokLen = i, len(tok)
			}
		}

		// A longer token starting at pos may still be arriving.
		if pos >= 0 && (atEOF || pos+maxLen <= len(data)) {
			searchFrom = 0
			return pos + tokLen, data[:pos], nil
		}
		if atEOF {
			searchFrom = 0
			return len(data), data, bufio.ErrFinalToken
		}

		// a token starting at or after limit may be only partly buffered
		limit := max(len(data)-maxLen+1, 0)
		if pos >= 0 {
			limit = min(limit, pos)
		}
		searchFrom = limit

		if len(data) >= chunkSize {
			if cut := lastCutPoint(data, limit); cut > 0 {
				searchFrom = 0
				return cut, data[:cut], nil
			}
		}
		return 0, nil, nil
	}
}

// lastCutPoint returns the largest p <= limit such that data[p-1] is '\n', and data[p-2] and
// data[p] are ASCII non-space bytes, or 0 if there is none. No GPT2Pattern match crosses p:
// only whitespace alternatives can hold the newline, and they cannot reach back past
// data[p-2] or forward into data[p]. So the units of data[:p] and data[p:] concatenate to the
// units of data.
func lastCutPoint(data []byte, limit int) int {
	for p := min(limit, len(data)-1); p >= 2; p-- {
		if data[p-1] == '\n' && isASCIINonSpace(data[p-2]) && isASCIINonSpace(data[p]) {
			return p
		}
	}
	return 0
}

func isASCIINonSpace(b byte) bool {
	if b >= 0x80 {
		return false
	}
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return false
	}
	return true
}
