package i18n

import "testing"

func clearLocaleEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LANGUAGE", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "")
}

func TestDetectLanguagePriorityAndNormalization(t *testing.T) {
	t.Run("LANGUAGE has highest priority", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "zh_CN.UTF-8:en_US")
		t.Setenv("LC_ALL", "de_DE.UTF-8")

		if got := detectLanguage(); got != "zh_CN" {
			t.Fatalf("detectLanguage() = %q, want %q", got, "zh_CN")
		}
	})

	t.Run("C and POSIX are skipped", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "C")
		t.Setenv("LC_ALL", "POSIX")
		t.Setenv("LC_MESSAGES", "fr_FR.UTF-8")

		if got := detectLanguage(); got != "fr_FR" {
			t.Fatalf("detectLanguage() = %q, want %q", got, "fr_FR")
		}
	})

	t.Run("falls back to en", func(t *testing.T) {
		clearLocaleEnv(t)
		if got := detectLanguage(); got != "en" {
			t.Fatalf("detectLanguage() = %q, want %q", got, "en")
		}
	})
}

func TestTAndNFallbackWhenUninitialized(t *testing.T) {
	old := po
	po = nil
	t.Cleanup(func() { po = old })

	if got := T("Hello"); got != "Hello" {
		t.Fatalf("T fallback = %q, want %q", got, "Hello")
	}
	if got := N("part", "parts", 1); got != "part" {
		t.Fatalf("N singular fallback = %q, want %q", got, "part")
	}
	if got := N("part", "parts", 2); got != "parts" {
		t.Fatalf("N plural fallback = %q, want %q", got, "parts")
	}
}

func TestEmbeddedChineseCatalog(t *testing.T) {
	old, oldLang := po, lang
	t.Cleanup(func() { po, lang = old, oldLang })

	Init("zh_CN")
	if Language() != "zh_CN" {
		t.Fatalf("Language() = %q", Language())
	}
	if got := T("Practice finished"); got != "练习结束" {
		t.Fatalf("T(Practice finished) = %q, want 练习结束", got)
	}
	if got := T("no such message"); got != "no such message" {
		t.Fatalf("untranslated message changed: %q", got)
	}

	Init("en")
	if got := T("Practice finished"); got != "Practice finished" {
		t.Fatalf("en catalog should pass through, got %q", got)
	}
}
