package pretokenize

import (
	"fmt"
	"iter"
	"sort"

	"github.com/dlclark/regexp2"
)

// GPT2Pattern splits ordinary text into word-like units: contractions, letter runs and digit
// runs with an optional leading space, punctuation runs, and whitespace. The \s+(?!\S)
// alternative leaves the last space of a run for the following word, which is why this
// needs a backtracking engine.
const GPT2Pattern = `'(?:[sdmt]|ll|ve|re)| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// Span is a piece of the input that is either exactly one special token or ordinary text.
type Span struct {
	Text    string
	Special bool
}

// Unit is one pre-token: a special token kept whole, or one match of the word pattern.
type Unit struct {
	Text    string
	Special bool
}

// Segmenter is safe for concurrent use.
type Segmenter struct {
	// special tokens, longest first
	specials  []string
	specialRE *regexp2.Regexp
	wordRE    *regexp2.Regexp
}

// New compiles a segmenter for the given special tokens. Empty and repeated tokens are ignored.
func New(specialTokens []string) (*Segmenter, error) {
	wordRE, err := regexp2.Compile(GPT2Pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("error compiling word pattern: %w", err)
	}

	s := &Segmenter{wordRE: wordRE}
	s.specials = SortSpecialTokens(specialTokens)
	if len(s.specials) == 0 {
		return s, nil
	}
	pattern := ""
	for i, tok := range s.specials {
		if i > 0 {
			pattern += "|"
		}
		pattern += regexp2.Escape(tok)
	}
	s.specialRE, err = regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("error compiling special token pattern: %w", err)
	}
	return s, nil
}

// SortSpecialTokens drops empty and repeated tokens and orders the rest by descending byte
// length, so an alternation built from the result tries "<|a|><|b|>" before "<|a|>".
// Equal lengths keep their input order.
func SortSpecialTokens(specialTokens []string) []string {
	seen := make(map[string]struct{}, len(specialTokens))
	out := make([]string, 0, len(specialTokens))
	for _, tok := range specialTokens {
		if tok == "" {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// SpecialTokens returns the tokens this segmenter isolates, longest first.
func (s *Segmenter) SpecialTokens() []string {
	return s.specials
}

// Spans lazily partitions text into special-token and ordinary spans. Empty ordinary spans
// are not produced.
func (s *Segmenter) Spans(text string) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		if text == "" {
			return
		}
		if s.specialRE == nil {
			yield(Span{Text: text})
			return
		}

		runes := []rune(text)
		prev := 0
		m, err := s.specialRE.FindRunesMatch(runes)
		for err == nil && m != nil {
			// regexp2 reports rune offsets
			if m.Index > prev {
				if !yield(Span{Text: string(runes[prev:m.Index])}) {
					return
				}
			}
			if !yield(Span{Text: m.String(), Special: true}) {
				return
			}
			prev = m.Index + m.Length
			m, err = s.specialRE.FindNextMatch(m)
		}
		if prev < len(runes) {
			yield(Span{Text: string(runes[prev:])})
		}
	}
}

// SplitSpecial collects Spans.
func (s *Segmenter) SplitSpecial(text string) []Span {
	var out []Span
	for sp := range s.Spans(text) {
		out = append(out, sp)
	}
	return out
}

// Words lazily yields the word-pattern matches of ordinary text. Special tokens are not
// looked for here.
func (s *Segmenter) Words(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if text == "" {
			return
		}
		m, err := s.wordRE.FindStringMatch(text)
		for err == nil && m != nil {
			if !yield(m.String()) {
				return
			}
			m, err = s.wordRE.FindNextMatch(m)
		}
	}
}

// Units lazily yields the pre-tokens of text in order, keeping special tokens as single
// units. Each pull does at most one regex match worth of work.
func (s *Segmenter) Units(text string) iter.Seq[Unit] {
	return func(yield func(Unit) bool) {
		for sp := range s.Spans(text) {
			if sp.Special {
				if !yield(Unit{Text: sp.Text, Special: true}) {
					return
				}
				continue
			}
			for w := range s.Words(sp.Text) {
				if !yield(Unit{Text: w}) {
					return
				}
			}
		}
	}
}

// Split collects Units.
func (s *Segmenter) Split(text string) []Unit {
	var out []Unit
	for u := range s.Units(text) {
		out = append(out, u)
	}
	return out
}

// TrainingWords yields the word units of text with special-token spans dropped, which is how
// the trainer sees a corpus.
func (s *Segmenter) TrainingWords(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for sp := range s.Spans(text) {
			if sp.Special {
				continue
			}
			for w := range s.Words(sp.Text) {
				if !yield(w) {
					return
				}
			}
		}
	}
}
