// Package breakdown turns a Mandarin phrase into an ordered list of word
// sets: the whole phrase first, then fixed-size chunks of its words, each
// with an English gloss and pinyin.
package breakdown

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minios-linux/zhdrill/dictionary"
	"github.com/minios-linux/zhdrill/romanize"
	"github.com/minios-linux/zhdrill/segment"
	"github.com/minios-linux/zhdrill/translate"
)

// Placeholders used in WordSet fields.
const (
	FailedPlaceholder   = "[Translation failed]"
	NoPinyinPlaceholder = "[No pinyin available]"
)

// DefaultChunkSize is the number of words per learning chunk.
const DefaultChunkSize = 2

var (
	// ErrEmptyInput is returned for a phrase that is empty after trimming.
	// Callers treat it as a no-op.
	ErrEmptyInput = errors.New("breakdown: empty input")
	// ErrInvalidChunkSize is returned for a chunk size below one.
	ErrInvalidChunkSize = errors.New("breakdown: chunk size must be at least 1")
)

// WordSet is one unit of study.
type WordSet struct {
	Mandarin  string `json:"mandarin"`
	English   string `json:"english"`
	Pinyin    string `json:"pinyin"`
	Segmented string `json:"segmented,omitempty"`
}

// Failed reports whether the set is a placeholder for a chunk that could
// not be translated.
func (w WordSet) Failed() bool {
	return w.English == FailedPlaceholder
}

// ---------------------------------------------------------------------------
// Translator
// ---------------------------------------------------------------------------

// Translator produces a WordSet for a single piece of text using the
// primary translation service.
type Translator struct {
	service   translate.Service
	romanizer *romanize.Romanizer
}

// NewTranslator returns a Translator calling service. When romanizer is
// non-nil it fills in pinyin the service left out.
func NewTranslator(service translate.Service, romanizer *romanize.Romanizer) *Translator {
	return &Translator{service: service, romanizer: romanizer}
}

// Translate returns the WordSet for text. Text without CJK is returned
// as-is without calling the service.
func (t *Translator) Translate(ctx context.Context, text string) (WordSet, error) {
	if !segment.ContainsCJK(text) {
		return WordSet{
			Mandarin:  text,
			English:   text,
			Pinyin:    dictionary.EnglishTextPinyin,
			Segmented: text,
		}, nil
	}

	res, err := t.service.Translate(ctx, text)
	if err != nil {
		return WordSet{}, err
	}

	ws := WordSet{
		Mandarin:  text,
		English:   res.Translation,
		Pinyin:    res.Pinyin,
		Segmented: res.Segmented,
	}
	if ws.Segmented == "" {
		ws.Segmented = text
	}
	if ws.Pinyin == "" {
		ws.Pinyin = t.romanize(text)
	}
	return ws, nil
}

func (t *Translator) romanize(text string) string {
	if t.romanizer != nil {
		if p := t.romanizer.Pinyin(text); p != "" {
			return p
		}
	}
	return NoPinyinPlaceholder
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// Options configures a Pipeline.
type Options struct {
	// Fallback is used when the whole-phrase translation fails.
	// Defaults to translate.DictionaryFallback.
	Fallback translate.FallbackService
	// OnLog emits progress messages.
	OnLog func(format string, args ...any)
	// OnError emits non-fatal errors (failed chunks, primary failure).
	OnError func(format string, args ...any)
	// Verbose enables per-chunk logging.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// Pipeline breaks phrases into word sets.
type Pipeline struct {
	translator *Translator
	opts       Options
}

// NewPipeline returns a Pipeline using translator for the primary path.
func NewPipeline(translator *Translator, opts Options) *Pipeline {
	if opts.Fallback == nil {
		opts.Fallback = translate.DictionaryFallback{}
	}
	return &Pipeline{translator: translator, opts: opts}
}

// Result is the outcome of a breakdown.
type Result struct {
	// Sets holds the whole phrase at index 0 followed by its chunks in order.
	Sets []WordSet `json:"sets"`
	// Fallback is true when the primary service failed and the fallback
	// service produced Sets.
	Fallback bool `json:"fallback"`
	// PrimaryErr is the primary failure that triggered the fallback.
	PrimaryErr error `json:"-"`
}

// Error is returned when both the primary and the fallback service fail
// on the whole phrase.
type Error struct {
	Primary  error
	Fallback error
}

func (e *Error) Error() string {
	return fmt.Sprintf("could not translate phrase: %v; fallback also failed: %v", e.Primary, e.Fallback)
}

func (e *Error) Unwrap() []error { return []error{e.Primary, e.Fallback} }

// Breakdown tokenizes phrase, translates it as a whole and then in chunks
// of chunkSize words. Chunks are translated one at a time, in order. A
// failed chunk becomes a placeholder WordSet; a failed whole-phrase call
// switches to the fallback service for the whole phrase and every chunk.
func (p *Pipeline) Breakdown(ctx context.Context, phrase string, chunkSize int) (*Result, error) {
	if chunkSize < 1 {
		return nil, ErrInvalidChunkSize
	}
	text := segment.InsertBoundaries(phrase)
	if text == "" {
		return nil, ErrEmptyInput
	}

	whole, err := p.translator.Translate(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.opts.logError("Primary translation failed, using fallback: %v", err)
		return p.breakdownFallback(ctx, text, chunkSize, err)
	}

	chunks := segment.ChunkText(whole.Segmented, chunkSize)
	sets := make([]WordSet, 0, len(chunks)+1)
	sets = append(sets, whole)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.opts.Verbose {
			p.opts.log("  Chunk %d/%d: %s", i+1, len(chunks), chunk)
		}
		ws, err := p.translator.Translate(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.opts.logError("Chunk %d/%d (%s) failed: %v", i+1, len(chunks), chunk, err)
			ws = failedSet(chunk)
		}
		sets = append(sets, ws)
	}

	return &Result{Sets: sets}, nil
}

func (p *Pipeline) breakdownFallback(ctx context.Context, text string, chunkSize int, primaryErr error) (*Result, error) {
	whole, err := p.fallbackSet(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Primary: primaryErr, Fallback: err}
	}

	chunks := segment.ChunkText(text, chunkSize)
	sets := make([]WordSet, 0, len(chunks)+1)
	sets = append(sets, whole)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ws, err := p.fallbackSet(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.opts.logError("Fallback chunk %d/%d (%s) failed: %v", i+1, len(chunks), chunk, err)
			ws = failedSet(chunk)
		}
		sets = append(sets, ws)
	}

	return &Result{Sets: sets, Fallback: true, PrimaryErr: primaryErr}, nil
}

func (p *Pipeline) fallbackSet(ctx context.Context, text string) (WordSet, error) {
	if !segment.ContainsCJK(text) {
		return WordSet{
			Mandarin:  text,
			English:   text,
			Pinyin:    dictionary.EnglishTextPinyin,
			Segmented: text,
		}, nil
	}
	res, err := p.opts.Fallback.Translate(ctx, translate.FallbackRequest{Text: text, From: "zh", To: "en"})
	if err != nil {
		return WordSet{}, err
	}
	pinyin := strings.TrimSpace(res.Pinyin)
	if pinyin == "" {
		pinyin = NoPinyinPlaceholder
	}
	return WordSet{
		Mandarin:  text,
		English:   res.Translation,
		Pinyin:    pinyin,
		Segmented: text,
	}, nil
}

func failedSet(chunk string) WordSet {
	return WordSet{
		Mandarin: chunk,
		English:  FailedPlaceholder,
		Pinyin:   FailedPlaceholder,
	}
}
