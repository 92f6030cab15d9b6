package vocab

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestBuildBaseBytes(t *testing.T) {
	v, next := Build(nil)
	require.Equal(t, NumByteSymbols, v.Len())
	require.Equal(t, NumByteSymbols, next)

	for b := 0; b < NumByteSymbols; b++ {
		sym, ok := v.Symbol(b)
		require.True(t, ok)
		if len(sym) != 1 || sym[0] != byte(b) {
			t.Fatalf("id %d: got %v", b, sym)
		}
	}
}

func TestBuildDeduplicatesSpecialTokens(t *testing.T) {
	v, next := Build([]string{"<|endoftext|>", "a", "<|pad|>", "<|endoftext|>"})

	// "a" is already byte 0x61 and the repeated token is skipped
	assert.Equal(t, 258, next)
	assert.Equal(t, 258, v.Len())

	sym, _ := v.Symbol(256)
	assert.Equal(t, "<|endoftext|>", string(sym))
	sym, _ = v.Symbol(257)
	assert.Equal(t, "<|pad|>", string(sym))

	id, ok := v.Lookup([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, int('a'), id)
}

func TestAddKeepsFirstLookup(t *testing.T) {
	v, _ := Build([]string{"ab"})
	id := v.Add([]byte("ab"))
	assert.Equal(t, 257, id)

	first, ok := v.Lookup([]byte("ab"))
	assert.True(t, ok)
	assert.Equal(t, 256, first)
}

func TestSymbolOutOfRange(t *testing.T) {
	v, _ := Build(nil)
	_, ok := v.Symbol(-1)
	assert.False(t, ok)
	_, ok = v.Symbol(NumByteSymbols)
	assert.False(t, ok)
}

func TestCodecRoundTripsEveryByte(t *testing.T) {
	all := make([]byte, NumByteSymbols)
	for i := range all {
		all[i] = byte(i)
	}

	s := gpt2Codec.encodeTokenString(all)
	assert.NotContains(t, s, " ")
	assert.NotContains(t, s, "\n")

	back, err := gpt2Codec.decodeTokenString(s)
	require.NoError(t, err)
	assert.Equal(t, all, back)
}

func TestCodecKnownRunes(t *testing.T) {
	assert.Equal(t, "Ġthe", gpt2Codec.encodeTokenString([]byte(" the")))
	assert.Equal(t, "Ċ", gpt2Codec.encodeTokenString([]byte("\n")))

	// runes outside the table are taken literally
	b, err := gpt2Codec.decodeTokenString("世")
	require.NoError(t, err)
	assert.Equal(t, []byte("世"), b)

	_, err = gpt2Codec.decodeTokenString("\xff")
	assert.Error(t, err)
}

func trainedLikeFixture() (*Vocabulary, MergeList) {
	v, _ := Build([]string{"<|endoftext|>"})
	merges := MergeList{
		{Left: []byte(" "), Right: []byte("t")},
		{Left: []byte("h"), Right: []byte("e")},
		{Left: []byte(" t"), Right: []byte("he")},
		{Left: []byte{0xe4}, Right: []byte{0xb8}},
	}
	for _, m := range merges {
		v.Add(m.Result())
	}
	return v, merges
}

func TestSaveLoadRoundTrip(t *testing.T) {
	v, merges := trainedLikeFixture()
	dir := t.TempDir()

	require.NoError(t, Save(dir, v, merges))

	gotV, gotMerges, err := LoadFiles(filepath.Join(dir, VocabFileName), filepath.Join(dir, MergesFileName))
	require.NoError(t, err)

	if diff := cmp.Diff(v.Symbols(), gotV.Symbols()); diff != "" {
		t.Fatalf("vocab mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(merges, gotMerges); diff != "" {
		t.Fatalf("merges mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(filepath.Join(dir, MergesFileName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), mergesHeader+"\n"))
	assert.Contains(t, string(raw), "Ġt he\n")
}

func TestVocabRoundTripKeepsDuplicateSymbols(t *testing.T) {
	v, _ := Build([]string{"ab"})
	v.Add([]byte("ab"))

	var buf bytes.Buffer
	require.NoError(t, WriteVocab(&buf, v))

	got, err := ReadVocab(&buf)
	require.NoError(t, err)
	require.Equal(t, v.Len(), got.Len())

	s256, _ := got.Symbol(256)
	s257, _ := got.Symbol(257)
	assert.Equal(t, "ab", string(s256))
	assert.Equal(t, "ab", string(s257))
}

func TestReadVocabRejectsGaps(t *testing.T) {
	_, err := ReadVocab(strings.NewReader(`{"a": 0, "b": 2}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotDense))
}

func TestReadVocabRejectsRepeatedID(t *testing.T) {
	_, err := ReadVocab(strings.NewReader(`{"a": 0, "b": 0}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotDense))
}

func TestReadVocabRejectsFarOutID(t *testing.T) {
	_, err := ReadVocab(strings.NewReader(`{"!": 0, "\"": 20000000}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotDense))
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "19999999 ids missing")
	assert.Contains(t, err.Error(), "[1 2 3 4 5]")

	_, err = ReadVocab(strings.NewReader(`{"!": 0, "\"": 1099511627776}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid id")
}

func TestReadVocabRejectsNonObject(t *testing.T) {
	_, err := ReadVocab(strings.NewReader(`["a"]`))
	assert.Error(t, err)
}

func TestReadMergesSkipsHeaderAndBlankLines(t *testing.T) {
	merges, err := ReadMerges(strings.NewReader("#version: 0.2\nĠ t\n\nh e\r\n"))
	require.NoError(t, err)

	want := MergeList{
		{Left: []byte(" "), Right: []byte("t")},
		{Left: []byte("h"), Right: []byte("e")},
	}
	if diff := cmp.Diff(want, merges); diff != "" {
		t.Fatalf("merges mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMergesRejectsMalformedLines(t *testing.T) {
	_, err := ReadMerges(strings.NewReader("#version: 0.2\nabc\na b c\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedMerge))
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "line 3")
}

func TestValidate(t *testing.T) {
	v, merges := trainedLikeFixture()
	require.NoError(t, Validate(v, merges))

	dangling := append(MergeList{}, merges...)
	dangling = append(dangling, Merge{Left: []byte("x"), Right: []byte("yz")})
	err := Validate(v, dangling)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDanglingMerge))

	small, err := FromSymbols([][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	err = Validate(small, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingByte))
}

func TestFromSymbolsRejectsEmpty(t *testing.T) {
	_, err := FromSymbols([][]byte{[]byte("a"), {}})
	assert.Error(t, err)
}

func TestMergeResult(t *testing.T) {
	m := Merge{Left: []byte("ab"), Right: []byte("c")}
	assert.Equal(t, []byte("abc"), m.Result())
	assert.True(t, m.Equal(Merge{Left: []byte("ab"), Right: []byte("c")}))
	assert.False(t, m.Equal(Merge{Left: []byte("a"), Right: []byte("bc")}))
}
