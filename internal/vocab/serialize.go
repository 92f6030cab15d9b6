package vocab

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

const (
	// VocabFileName holds the id table as a JSON object of token string -> id.
	VocabFileName = "vocab.json"
	// MergesFileName holds one "left right" merge per line in priority order.
	MergesFileName = "merges.txt"

	mergesHeader = "#version: 0.2"
)

var (
	ErrNotDense       = errors.New("vocab ids are not dense")
	ErrMissingByte    = errors.New("vocab is missing a single-byte symbol")
	ErrDanglingMerge  = errors.New("merge references a symbol with no vocab id")
	ErrMalformedMerge = errors.New("malformed merge")
)

// Save writes vocab.json and merges.txt into dir, creating it if needed.
func Save(dir string, v *Vocabulary, merges MergeList) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	if err := writeFile(filepath.Join(dir, VocabFileName), func(w io.Writer) error {
		return WriteVocab(w, v)
	}); err != nil {
		return err
	}

	return writeFile(filepath.Join(dir, MergesFileName), func(w io.Writer) error {
		return WriteMerges(w, merges)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	bw := bufio.NewWriter(out)
	if err := write(bw); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}

// WriteVocab serializes v as a JSON object with one key per id, in id order. A byte
// sequence that appears under several ids is written as a repeated key; ReadVocab keeps
// every occurrence.
func WriteVocab(w io.Writer, v *Vocabulary) error {
	var keyBuf bytes.Buffer
	enc := json.NewEncoder(&keyBuf)
	enc.SetEscapeHTML(false)

	if _, err := io.WriteString(w, "{"); err != nil {
		return err
	}
	for id, sym := range v.Symbols() {
		keyBuf.Reset()
		if err := enc.Encode(gpt2Codec.encodeTokenString(sym)); err != nil {
			return fmt.Errorf("encode token id %d: %w", id, err)
		}
		key := bytes.TrimRight(keyBuf.Bytes(), "\n")

		sep := ",\n  "
		if id == 0 {
			sep = "\n  "
		}
		if _, err := fmt.Fprintf(w, "%s%s: %d", sep, key, id); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n}\n")
	return err
}

// WriteMerges serializes merges one per line after the version header.
func WriteMerges(w io.Writer, merges MergeList) error {
	if _, err := fmt.Fprintln(w, mergesHeader); err != nil {
		return err
	}
	for _, m := range merges {
		if _, err := fmt.Fprintf(w, "%s %s\n",
			gpt2Codec.encodeTokenString(m.Left), gpt2Codec.encodeTokenString(m.Right)); err != nil {
			return err
		}
	}
	return nil
}

// ReadVocab parses a vocab.json stream. Ids must be dense, start at 0 and appear once each.
func ReadVocab(r io.Reader) (*Vocabulary, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("error while unmarshalling vocab: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("error while unmarshalling vocab: expected object, got %v", tok)
	}

	byID := make(map[int][]byte)
	maxID := -1
	var errs error
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("error while unmarshalling vocab: %w", err)
		}
		key, _ := keyTok.(string)

		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return nil, fmt.Errorf("error while unmarshalling vocab value for %q: %w", key, err)
		}
		id64, err := num.Int64()
		if err != nil || id64 < 0 || id64 > math.MaxInt32 {
			errs = multierr.Append(errs, fmt.Errorf("token %q: invalid id %s", key, num))
			continue
		}
		id := int(id64)

		tokenBytes, err := gpt2Codec.decodeTokenString(key)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to decode token %q at index %d: %w", key, id, err))
			continue
		}
		if len(tokenBytes) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("decoded empty byte sequence for token id %d", id))
			continue
		}
		if _, dup := byID[id]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%w: id %d assigned twice", ErrNotDense, id))
			continue
		}

		byID[id] = tokenBytes
		if id > maxID {
			maxID = id
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("error while unmarshalling vocab: %w", err)
	}

	if missing := maxID + 1 - len(byID); missing > 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: %d ids missing below %d, first %v",
			ErrNotDense, missing, maxID, firstGaps(byID, maxID, 5)))
	}
	if errs != nil {
		return nil, errs
	}

	symbols := make([][]byte, maxID+1)
	for id, b := range byID {
		symbols[id] = b
	}
	return FromSymbols(symbols)
}

// firstGaps returns up to n ids in [0, maxID] missing from byID, in ascending order. It stops
// after at most len(byID)+n probes.
func firstGaps(byID map[int][]byte, maxID, n int) []int {
	var gaps []int
	for i := 0; i <= maxID && len(gaps) < n; i++ {
		if _, ok := byID[i]; !ok {
			gaps = append(gaps, i)
		}
	}
	return gaps
}

// ReadMerges parses a merges.txt stream. A leading "#version" line and blank lines are ignored.
func ReadMerges(r io.Reader) (MergeList, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16<<20)

	var merges MergeList
	var errs error
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || (lineNo == 1 && strings.HasPrefix(line, "#version")) {
			continue
		}

		left, right, ok := strings.Cut(line, " ")
		if !ok || left == "" || right == "" || strings.Contains(right, " ") {
			errs = multierr.Append(errs, fmt.Errorf("%w at line %d: %q", ErrMalformedMerge, lineNo, line))
			continue
		}

		lb, err := gpt2Codec.decodeTokenString(left)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w at line %d: %w", ErrMalformedMerge, lineNo, err))
			continue
		}
		rb, err := gpt2Codec.decodeTokenString(right)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w at line %d: %w", ErrMalformedMerge, lineNo, err))
			continue
		}
		merges = append(merges, Merge{Left: lb, Right: rb})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error while reading merges: %w", err)
	}
	if errs != nil {
		return nil, errs
	}
	return merges, nil
}

// LoadFiles reads and validates a vocab.json / merges.txt pair.
func LoadFiles(vocabPath, mergesPath string) (*Vocabulary, MergeList, error) {
	vf, err := os.Open(vocabPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error while reading vocab file : %w", err)
	}
	defer vf.Close()

	v, err := ReadVocab(bufio.NewReader(vf))
	if err != nil {
		return nil, nil, fmt.Errorf("vocab %s: %w", vocabPath, err)
	}

	mf, err := os.Open(mergesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error while reading merges file : %w", err)
	}
	defer mf.Close()

	merges, err := ReadMerges(mf)
	if err != nil {
		return nil, nil, fmt.Errorf("merges %s: %w", mergesPath, err)
	}

	if err := Validate(v, merges); err != nil {
		return nil, nil, err
	}
	return v, merges, nil
}

// Validate checks that v and merges can drive an encoder: every byte value has an id and every
// merge's operands and result have ids. All problems are reported together.
func Validate(v *Vocabulary, merges MergeList) error {
	var errs error

	for b := 0; b < NumByteSymbols; b++ {
		if _, ok := v.Lookup([]byte{byte(b)}); !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: 0x%02x", ErrMissingByte, b))
		}
	}

	for rank, m := range merges {
		if len(m.Left) == 0 || len(m.Right) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: merge %d has an empty side", ErrMalformedMerge, rank))
			continue
		}
		for _, sym := range [][]byte{m.Left, m.Right, m.Result()} {
			if _, ok := v.Lookup(sym); !ok {
				errs = multierr.Append(errs, fmt.Errorf("%w: merge %d (%q %q) needs %q",
					ErrDanglingMerge, rank, m.Left, m.Right, sym))
			}
		}
	}

	return errs
}
