// Package speech plays Mandarin text through the system text-to-speech
// engine (macOS say or espeak-ng) and lists the voices it offers.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Engine is a text-to-speech command.
type Engine string

const (
	EngineSay    Engine = "say"
	EngineEspeak Engine = "espeak-ng"
)

// Defaults for utterances.
const (
	DefaultLang = "zh-CN"
	DefaultRate = 0.7
	// baseWPM is the words-per-minute both engines use at rate 1.0.
	baseWPM = 175
)

// DetectEngine returns the first engine found in PATH.
func DetectEngine() (Engine, error) {
	for _, e := range []Engine{EngineSay, EngineEspeak} {
		if _, err := exec.LookPath(string(e)); err == nil {
			return e, nil
		}
	}
	return "", errors.New("no text-to-speech engine found (install espeak-ng, or use macOS say)")
}

// ParseEngine validates an engine name; "" or "auto" detects one.
func ParseEngine(name string) (Engine, error) {
	switch Engine(name) {
	case "", "auto":
		return DetectEngine()
	case EngineSay, EngineEspeak:
		return Engine(name), nil
	default:
		return "", fmt.Errorf("unknown speech engine %q (valid: say, espeak-ng, auto)", name)
	}
}

// Utterance is one request to speak.
type Utterance struct {
	Text  string
	Lang  string  // BCP 47 tag, e.g. zh-CN
	Voice string  // engine voice name; empty picks by Lang
	Rate  float64 // 1.0 is normal speed
}

// Args returns the command-line arguments that make engine speak u.
func (u Utterance) Args(engine Engine) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	wpm := strconv.Itoa(int(baseWPM*rate + 0.5))

	switch engine {
	case EngineSay:
		var args []string
		if u.Voice != "" {
			args = append(args, "-v", u.Voice)
		}
		return append(args, "-r", wpm, "--", u.Text)
	default:
		voice := u.Voice
		if voice == "" {
			voice = espeakVoiceFor(u.Lang)
		}
		return []string{"-v", voice, "-s", wpm, "--", u.Text}
	}
}

// espeakVoiceFor maps a language tag to an espeak-ng voice.
func espeakVoiceFor(lang string) string {
	switch strings.ToLower(strings.ReplaceAll(lang, "_", "-")) {
	case "", "zh", "zh-cn", "zh-hans", "cmn":
		return "cmn"
	case "zh-hk", "yue":
		return "yue"
	default:
		return lang
	}
}

// ---------------------------------------------------------------------------
// Command player
// ---------------------------------------------------------------------------

// PlaybackError reports a failed speech command.
type PlaybackError struct {
	Engine Engine
	Text   string
	Err    error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s: speaking %q: %v", e.Engine, e.Text, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// CommandPlayer speaks text by running a TTS engine, one process at a time.
type CommandPlayer struct {
	engine Engine
	voice  string
	lang   string
	rate   float64

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewCommandPlayer returns a player for engine. An empty voice lets the
// engine pick one for zh-CN.
func NewCommandPlayer(engine Engine, voice string, rate float64) (*CommandPlayer, error) {
	if _, err := exec.LookPath(string(engine)); err != nil {
		return nil, fmt.Errorf("speech engine %s not available: %w", engine, err)
	}
	if rate <= 0 {
		rate = DefaultRate
	}
	return &CommandPlayer{engine: engine, voice: voice, lang: DefaultLang, rate: rate}, nil
}

// Play speaks text and blocks until the engine exits. A playback cut off
// by Stop returns nil.
func (p *CommandPlayer) Play(ctx context.Context, text string) error {
	u := Utterance{Text: text, Lang: p.lang, Voice: p.voice, Rate: p.rate}
	cmd := exec.CommandContext(ctx, string(p.engine), u.Args(p.engine)...)
	if err := cmd.Start(); err != nil {
		return &PlaybackError{Engine: p.engine, Text: text, Err: err}
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	err := cmd.Wait()

	p.mu.Lock()
	stopped := p.cmd != cmd
	if !stopped {
		p.cmd = nil
	}
	p.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if stopped {
			return nil
		}
		return &PlaybackError{Engine: p.engine, Text: text, Err: err}
	}
	return nil
}

// Stop kills the engine process if one is running.
func (p *CommandPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	p.cmd = nil
}
