package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/bregydoc/gtranslate"
	"golang.org/x/text/language"

	"github.com/minios-linux/zhdrill/dictionary"
	"github.com/minios-linux/zhdrill/romanize"
)

// FallbackRequest asks a fallback service to translate Text from one
// language to another. Empty languages default to zh→en.
type FallbackRequest struct {
	Text string
	From string
	To   string
}

// FallbackResult is the answer of a fallback service.
type FallbackResult struct {
	Translation string `json:"translation"`
	Pinyin      string `json:"pinyin"`
}

// FallbackService is the secondary translator used when the primary
// Service fails.
type FallbackService interface {
	Translate(ctx context.Context, req FallbackRequest) (FallbackResult, error)
}

// normalizeLanguages fills in defaults and reduces both tags to their base
// language ("zh-CN" → "zh").
func normalizeLanguages(req FallbackRequest) (from, to string, err error) {
	from, to = req.From, req.To
	if from == "" {
		from = "zh"
	}
	if to == "" {
		to = "en"
	}
	fromTag, err := language.Parse(from)
	if err != nil {
		return "", "", fmt.Errorf("invalid source language %q: %w", from, err)
	}
	toTag, err := language.Parse(to)
	if err != nil {
		return "", "", fmt.Errorf("invalid target language %q: %w", to, err)
	}
	fromBase, _ := fromTag.Base()
	toBase, _ := toTag.Base()
	return fromBase.String(), toBase.String(), nil
}

// ---------------------------------------------------------------------------
// Dictionary fallback
// ---------------------------------------------------------------------------

// DictionaryFallback glosses text with the built-in word list. It only
// supports Mandarin to English.
type DictionaryFallback struct{}

// Translate implements FallbackService.
func (DictionaryFallback) Translate(ctx context.Context, req FallbackRequest) (FallbackResult, error) {
	if err := ctx.Err(); err != nil {
		return FallbackResult{}, err
	}
	from, to, err := normalizeLanguages(req)
	if err != nil {
		return FallbackResult{}, err
	}
	if from != "zh" || to != "en" {
		return FallbackResult{}, fmt.Errorf("dictionary fallback only supports zh→en, got %s→%s", from, to)
	}
	t := dictionary.TranslateFallback(req.Text)
	return FallbackResult{Translation: t.English, Pinyin: t.Pinyin}, nil
}

// ---------------------------------------------------------------------------
// Google Translate fallback
// ---------------------------------------------------------------------------

// GoogleFallback translates through the public Google Translate endpoint
// and romanizes locally.
type GoogleFallback struct {
	romanizer *romanize.Romanizer
	translate func(text string, params gtranslate.TranslationParams) (string, error)
}

// NewGoogleFallback returns a GoogleFallback producing tone-marked pinyin.
func NewGoogleFallback() *GoogleFallback {
	return &GoogleFallback{
		romanizer: romanize.New(),
		translate: gtranslate.TranslateWithParams,
	}
}

// Translate implements FallbackService.
func (g *GoogleFallback) Translate(ctx context.Context, req FallbackRequest) (FallbackResult, error) {
	from, to, err := normalizeLanguages(req)
	if err != nil {
		return FallbackResult{}, err
	}

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		text, err := g.translate(req.Text, gtranslate.TranslationParams{From: from, To: to})
		ch <- answer{text, err}
	}()

	var got answer
	select {
	case <-ctx.Done():
		return FallbackResult{}, ctx.Err()
	case got = <-ch:
	}
	if got.err != nil {
		return FallbackResult{}, fmt.Errorf("google translate: %w", got.err)
	}

	pinyin := g.romanizer.Pinyin(req.Text)
	if pinyin == "" {
		pinyin = dictionary.EnglishTextPinyin
	}
	return FallbackResult{Translation: strings.TrimSpace(got.text), Pinyin: pinyin}, nil
}
