package speech

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Voice is a voice offered by an engine.
type Voice struct {
	Name   string
	Lang   string // normalized to use "-" (zh-CN)
	Gender string // "F", "M" or ""
	Engine Engine
}

// ListVoices asks engine for its installed voices.
func ListVoices(ctx context.Context, engine Engine) ([]Voice, error) {
	var args []string
	switch engine {
	case EngineSay:
		args = []string{"-v", "?"}
	case EngineEspeak:
		args = []string{"--voices"}
	default:
		return nil, fmt.Errorf("unknown speech engine %q", engine)
	}
	out, err := exec.CommandContext(ctx, string(engine), args...).Output()
	if err != nil {
		return nil, fmt.Errorf("listing %s voices: %w", engine, err)
	}
	if engine == EngineSay {
		return parseSayVoices(string(out)), nil
	}
	return parseEspeakVoices(string(out)), nil
}

// "Tingting             zh_CN    # 你好！我叫婷婷。"
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

func parseSayVoices(out string) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		m := sayVoiceLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		voices = append(voices, Voice{
			Name:   strings.TrimSpace(m[1]),
			Lang:   strings.ReplaceAll(m[2], "_", "-"),
			Engine: EngineSay,
		})
	}
	return voices
}

// Pty Language       Age/Gender VoiceName          File                 Other Languages
//  5  cmn             --/M      Chinese_(Mandarin) sit/cmn              (zh-cmn 5)(zh 5)
func parseEspeakVoices(out string) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		gender := ""
		if _, g, ok := strings.Cut(fields[2], "/"); ok && g != "-" {
			gender = g
		}
		voices = append(voices, Voice{
			Name:   fields[3],
			Lang:   fields[1],
			Gender: gender,
			Engine: EngineEspeak,
		})
	}
	return voices
}

// isChineseLang reports whether lang is a Chinese language tag.
func isChineseLang(lang string) bool {
	lang = strings.ToLower(lang)
	return strings.HasPrefix(lang, "zh") || strings.HasPrefix(lang, "cmn") || strings.HasPrefix(lang, "yue")
}

// ChineseVoices returns the voices whose language is Chinese.
func ChineseVoices(voices []Voice) []Voice {
	var out []Voice
	for _, v := range voices {
		if isChineseLang(v.Lang) {
			out = append(out, v)
		}
	}
	return out
}

// PreferredVoice picks the voice to drill with, in order of preference:
// Tingting, a pinyin or simplified-Chinese voice, a female Chinese voice,
// then any Chinese voice. It reports false when there is no Chinese voice.
func PreferredVoice(voices []Voice) (Voice, bool) {
	chinese := ChineseVoices(voices)
	if len(chinese) == 0 {
		return Voice{}, false
	}
	rules := []func(Voice) bool{
		func(v Voice) bool {
			return strings.Contains(v.Name, "Tingting") || strings.Contains(v.Name, "Ting-Ting")
		},
		func(v Voice) bool {
			return strings.Contains(v.Name, "Pinyin") ||
				(strings.Contains(v.Name, "Chinese") && strings.Contains(v.Name, "Simplified"))
		},
		func(v Voice) bool {
			return strings.Contains(v.Name, "Female") || strings.Contains(v.Name, "Girl") || v.Gender == "F"
		},
	}
	for _, match := range rules {
		for _, v := range chinese {
			if match(v) {
				return v, true
			}
		}
	}
	return chinese[0], true
}
