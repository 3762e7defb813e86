package romanize

import (
	"reflect"
	"testing"
)

func TestSyllables(t *testing.T) {
	got := New().Syllables("你好")
	want := []string{"nǐ", "hǎo"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSyllables_Numbered(t *testing.T) {
	got := NewNumbered().Syllables("中国")
	want := []string{"zhong1", "guo2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPinyin_Mixed(t *testing.T) {
	got := New().Pinyin("我爱Go 语言")
	want := "wǒ ài Go yǔ yán"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPinyin_NoCJK(t *testing.T) {
	if got := New().Pinyin("hello"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
