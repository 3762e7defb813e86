// Package segment inserts word boundaries into mixed Mandarin/Latin text
// and groups the resulting words into fixed-size learning chunks.
//
// Segmentation here is purely lexical: spaces go between CJK and non-CJK
// runs, never inside a run of CJK characters. Word-level segmentation of
// Chinese is delegated to the translation service.
package segment

import (
	"regexp"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// Character classes
// ---------------------------------------------------------------------------

// Class is the lexical class of a character run.
type Class int

const (
	ClassOther Class = iota // punctuation, symbols, non-ASCII letters
	ClassCJK                // CJK Unified Ideographs (U+4E00..U+9FFF)
	ClassLatin              // ASCII letters and digits
	ClassSpace              // whitespace
)

func (c Class) String() string {
	switch c {
	case ClassCJK:
		return "cjk"
	case ClassLatin:
		return "latin"
	case ClassSpace:
		return "space"
	default:
		return "other"
	}
}

// IsCJK reports whether r is in the CJK Unified Ideographs block.
func IsCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// ContainsCJK reports whether s contains at least one CJK character.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if IsCJK(r) {
			return true
		}
	}
	return false
}

func isLatin(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func classOf(r rune) Class {
	switch {
	case IsCJK(r):
		return ClassCJK
	case isLatin(r):
		return ClassLatin
	case unicode.IsSpace(r):
		return ClassSpace
	default:
		return ClassOther
	}
}

// ---------------------------------------------------------------------------
// Character runs
// ---------------------------------------------------------------------------

// Run is a maximal sequence of characters of the same class.
// Start and End are rune offsets into the source text, End exclusive.
type Run struct {
	Class Class
	Start int
	End   int
	Text  string
}

// Runs splits s into maximal runs of same-class characters.
func Runs(s string) []Run {
	var runs []Run
	var b strings.Builder
	cur := Run{Class: -1}
	i := 0
	for _, r := range s {
		c := classOf(r)
		if c != cur.Class {
			if b.Len() > 0 {
				cur.End = i
				cur.Text = b.String()
				runs = append(runs, cur)
				b.Reset()
			}
			cur = Run{Class: c, Start: i}
		}
		b.WriteRune(r)
		i++
	}
	if b.Len() > 0 {
		cur.End = i
		cur.Text = b.String()
		runs = append(runs, cur)
	}
	return runs
}

// ---------------------------------------------------------------------------
// Boundary insertion
// ---------------------------------------------------------------------------

// Text that already alternates Latin words and space-separated tokens is
// returned untouched.
var wellFormed = regexp.MustCompile(`^[a-zA-Z0-9]+(\s+[a-zA-Z0-9\x{4e00}-\x{9fff}]+)*$`)

// Normalize collapses every whitespace run to a single space and trims.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// InsertBoundaries returns text with single spaces between CJK and
// non-CJK runs. ASCII letter/digit runs are kept intact, so a Latin word
// directly following Chinese stays attached to it, while Chinese directly
// following a Latin word is separated. The result is whitespace-normalized
// and trimmed; applying InsertBoundaries to its own output is a no-op.
func InsertBoundaries(text string) string {
	text = Normalize(text)
	if text == "" || wellFormed.MatchString(text) {
		return text
	}

	runes := []rune(text)

	// Offsets covered by Latin runs, and the offsets at which one ends.
	protected := make([]bool, len(runes)+1)
	latinEnd := make([]bool, len(runes)+1)
	for _, run := range Runs(text) {
		if run.Class != ClassLatin {
			continue
		}
		for i := run.Start; i < run.End; i++ {
			protected[i] = true
		}
		latinEnd[run.End] = true
	}

	var b strings.Builder
	b.Grow(len(text) + len(runes))
	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			cjk := IsCJK(r)
			prevCJK := IsCJK(prev)
			prevSpace := prev == ' '
			switch {
			case cjk && !prevCJK && !prevSpace && !protected[i]:
				b.WriteByte(' ')
			case !cjk && r != ' ' && prevCJK && !protected[i]:
				b.WriteByte(' ')
			case cjk && latinEnd[i]:
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return Normalize(b.String())
}

// ---------------------------------------------------------------------------
// Words and chunks
// ---------------------------------------------------------------------------

// Words splits boundary-inserted text on whitespace.
func Words(text string) []string {
	return strings.Fields(text)
}

// Chunk partitions words into contiguous groups of size (the last group may
// be shorter). It returns nil for an empty slice or a size below one.
func Chunk(words []string, size int) [][]string {
	if len(words) == 0 || size < 1 {
		return nil
	}
	chunks := make([][]string, 0, (len(words)+size-1)/size)
	for i := 0; i < len(words); i += size {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, words[i:end])
	}
	return chunks
}

// ChunkText is Chunk over Words, with each group joined by single spaces.
func ChunkText(text string, size int) []string {
	groups := Chunk(Words(text), size)
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = strings.Join(g, " ")
	}
	return out
}
