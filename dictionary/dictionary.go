// Package dictionary is the offline Mandarin→English word list used when the
// translation service is unavailable. The table is fixed at build time and
// cannot be modified at run time.
package dictionary

import (
	"sort"
	"strings"

	"github.com/minios-linux/zhdrill/segment"
)

// Placeholders emitted instead of pinyin for text that has none.
const (
	EnglishTextPinyin = "[English text]" // whole input contained no CJK
	EnglishPinyin     = "[English]"      // non-CJK segment inside mixed text
)

// Entry is a single dictionary record.
type Entry struct {
	Key     string
	English string
	Pinyin  string
}

// Translation is the result of TranslateFallback.
type Translation struct {
	English string
	Pinyin  string
}

var entries = map[string]Entry{}

func init() {
	for _, e := range []Entry{
		{"你好", "Hello", "nǐ hǎo"},
		{"我", "I", "wǒ"},
		{"很", "very", "hěn"},
		{"高兴", "happy", "gāo xìng"},
		{"认识", "to meet", "rèn shi"},
		{"你", "you", "nǐ"},
		{"喜欢", "like", "xǐ huān"},
		{"学习", "study", "xué xí"},
		{"中文", "Chinese language", "zhōng wén"},
		{"今天", "today", "jīn tiān"},
		{"天气", "weather", "tiān qì"},
		{"好", "good", "hǎo"},
		{"想", "want", "xiǎng"},
		{"吃", "eat", "chī"},
		{"中国", "Chinese", "zhōng guó"},
		{"菜", "food", "cài"},
		{"谢谢", "thank you", "xiè xiè"},
		{"的", "of", "de"},
		{"帮助", "help", "bāng zhù"},
		{"英文", "English language", "yīng wén"},
		{"早上好", "Good morning", "zǎo shàng hǎo"},
		{"晚上好", "Good evening", "wǎn shàng hǎo"},
		{"我爱你", "I love you", "wǒ ài nǐ"},
		{"再见", "Goodbye", "zài jiàn"},
		{"工作", "Work", "gōng zuò"},
		{"玩", "Play", "wán"},
		{"读书", "Read books", "dú shū"},
		{"写字", "Write", "xiě zì"},
		{"说话", "Speak", "shuō huà"},
		{"听", "Listen", "tīng"},
		{"看", "Look/See", "kàn"},
		{"天空", "sky", "tiān kōng"},
		{"美", "beautiful", "měi"},
	} {
		if _, dup := entries[e.Key]; dup {
			panic("dictionary: duplicate key " + e.Key)
		}
		entries[e.Key] = e
	}
}

// LookupPhrase returns the entry whose key equals text exactly.
func LookupPhrase(text string) (Entry, bool) {
	e, ok := entries[text]
	return e, ok
}

// LookupCharacter returns the entry for a single character.
func LookupCharacter(ch rune) (Entry, bool) {
	e, ok := entries[string(ch)]
	return e, ok
}

// Len returns the number of entries.
func Len() int { return len(entries) }

// Keys returns all keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TranslateFallback produces a best-effort gloss of text.
//
// An exact phrase match wins. Text without CJK is passed through with the
// "[English text]" pinyin placeholder. Otherwise each CJK run is glossed one
// character at a time (unknown characters become "[X]" in both fields) and
// every other non-space run passes through with "[English]" as its pinyin.
func TranslateFallback(text string) Translation {
	if e, ok := LookupPhrase(text); ok {
		return Translation{English: e.English, Pinyin: e.Pinyin}
	}
	if !segment.ContainsCJK(text) {
		return Translation{English: text, Pinyin: EnglishTextPinyin}
	}

	var english, pinyin []string
	for _, run := range pieces(text) {
		switch run.Class {
		case segment.ClassCJK:
			for _, ch := range run.Text {
				if e, ok := LookupCharacter(ch); ok {
					english = append(english, e.English)
					pinyin = append(pinyin, e.Pinyin)
				} else {
					unknown := "[" + string(ch) + "]"
					english = append(english, unknown)
					pinyin = append(pinyin, unknown)
				}
			}
		default:
			english = append(english, run.Text)
			pinyin = append(pinyin, EnglishPinyin)
		}
	}
	return Translation{
		English: segment.Normalize(strings.Join(english, " ")),
		Pinyin:  segment.Normalize(strings.Join(pinyin, " ")),
	}
}

// pieces drops whitespace around CJK runs and merges every stretch of
// non-CJK text between CJK runs into one piece, inner spaces included, so
// "Go 123" stays one piece.
func pieces(text string) []segment.Run {
	var out []segment.Run
	var gap string
	for _, run := range segment.Runs(text) {
		if run.Class == segment.ClassSpace {
			gap += run.Text
			continue
		}
		if run.Class != segment.ClassCJK {
			run.Class = segment.ClassOther
		}
		if n := len(out); n > 0 && out[n-1].Class == segment.ClassOther && run.Class == segment.ClassOther {
			out[n-1].End = run.End
			out[n-1].Text += gap + run.Text
			gap = ""
			continue
		}
		gap = ""
		out = append(out, run)
	}
	return out
}
