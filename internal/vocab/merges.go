package vocab

import "bytes"

// Merge is one learned rule: every adjacent Left, Right is rewritten into Left+Right.
type Merge struct {
	Left  []byte
	Right []byte
}

// Result is the concatenation produced by the merge.
func (m Merge) Result() []byte {
	out := make([]byte, 0, len(m.Left)+len(m.Right))
	out = append(out, m.Left...)
	return append(out, m.Right...)
}

// Equal reports whether both sides match byte for byte.
func (m Merge) Equal(o Merge) bool {
	return bytes.Equal(m.Left, o.Left) && bytes.Equal(m.Right, o.Right)
}

// MergeList is the ordered list of merges. Position is priority: index 0 was learned first.
type MergeList []Merge
