// Package romanize renders Hanyu Pinyin for Mandarin text locally, without
// a network round trip. It is used to fill in pinyin when a translation
// service omits it.
package romanize

import (
	"strings"

	"github.com/mozillazg/go-pinyin"

	"github.com/minios-linux/zhdrill/segment"
)

// Romanizer converts Chinese characters to pinyin syllables.
type Romanizer struct {
	args pinyin.Args
}

// New returns a Romanizer producing tone-marked pinyin (nǐ hǎo).
func New() *Romanizer {
	a := pinyin.NewArgs()
	a.Style = pinyin.Tone
	return &Romanizer{args: a}
}

// NewNumbered returns a Romanizer producing tone-number pinyin (ni3 hao3).
func NewNumbered() *Romanizer {
	a := pinyin.NewArgs()
	a.Style = pinyin.Tone3
	return &Romanizer{args: a}
}

// Syllables returns one syllable per CJK character of s; other characters
// are skipped.
func (r *Romanizer) Syllables(s string) []string {
	return pinyin.LazyPinyin(s, r.args)
}

// Pinyin romanizes every CJK run in text and keeps other non-space runs
// verbatim, joining everything with single spaces. It returns "" when text
// contains no CJK.
func (r *Romanizer) Pinyin(text string) string {
	if !segment.ContainsCJK(text) {
		return ""
	}
	var parts []string
	for _, run := range segment.Runs(text) {
		switch run.Class {
		case segment.ClassSpace:
		case segment.ClassCJK:
			parts = append(parts, r.Syllables(run.Text)...)
		default:
			parts = append(parts, run.Text)
		}
	}
	return strings.Join(parts, " ")
}
