package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/minios-linux/zhdrill/config"
	"github.com/minios-linux/zhdrill/segment"
	"github.com/minios-linux/zhdrill/settings"
	"github.com/minios-linux/zhdrill/translate"
)

func isolateSettings(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(settings.EnvAPIKey, "")
	t.Setenv(settings.EnvOpenAIAPIKey, "")
}

func TestApplyServiceArgs(t *testing.T) {
	cfg := config.Default()
	cfg.Model = "from-file"
	cfg.Fallback = config.FallbackGoogle

	applyServiceArgs(cfg, serviceArgs{
		provider:  "Groq",
		timeout:   1500 * time.Millisecond,
		chunkSize: 3,
		noCache:   true,
	})

	if cfg.Provider != "groq" {
		t.Errorf("provider = %q", cfg.Provider)
	}
	if cfg.Model != "from-file" || cfg.Fallback != config.FallbackGoogle {
		t.Errorf("unset flags overrode config: model %q fallback %q", cfg.Model, cfg.Fallback)
	}
	if cfg.TimeoutSeconds != 2 {
		t.Errorf("timeout = %d", cfg.TimeoutSeconds)
	}
	if cfg.ChunkSize != 3 || cfg.CacheSize != -1 {
		t.Errorf("chunk/cache = %d/%d", cfg.ChunkSize, cfg.CacheSize)
	}
}

func TestApplyPracticeArgs(t *testing.T) {
	cfg := config.Default()
	applyPracticeArgs(cfg, practiceArgs{interval: 1500 * time.Millisecond, voice: "Tingting"})
	if cfg.Practice.Interval() != 1500*time.Millisecond || cfg.Practice.Voice != "Tingting" {
		t.Errorf("practice = %+v", cfg.Practice)
	}
	if cfg.Practice.Repetitions != config.DefaultRepetitions {
		t.Errorf("repetitions = %d", cfg.Practice.Repetitions)
	}
}

func TestResolveProvider(t *testing.T) {
	isolateSettings(t)

	prov := resolveProvider("OpenAI", "", "sk-test", "", "", 0)
	if prov.ID != translate.ProviderOpenAI || prov.Model != translate.DefaultOpenAIModel || prov.APIKey != "sk-test" {
		t.Errorf("openai = %+v", prov)
	}

	prov = resolveProvider("groq", "", "", "llama", "http://proxy:3128", 5*time.Second)
	if prov.Model != "llama" || prov.Proxy != "http://proxy:3128" || prov.Timeout != 5*time.Second {
		t.Errorf("groq = %+v", prov)
	}

	if err := settings.SetAPIKeyWithBaseURL(translate.ProviderCustomOpenAI, "k", "https://llm.example/v1"); err != nil {
		t.Fatal(err)
	}
	prov = resolveProvider("custom-openai", "", "", "m", "", 0)
	if prov.BaseURL != "https://llm.example/v1" {
		t.Errorf("stored base URL not used: %q", prov.BaseURL)
	}

	prov = resolveProvider("https://other.example/v1", "", "", "m", "", 0)
	if prov.ID != translate.ProviderCustomOpenAI || prov.BaseURL != "https://other.example/v1" {
		t.Errorf("unknown name = %+v", prov)
	}
}

func TestValidateProvider(t *testing.T) {
	old := ollamaProbe
	t.Cleanup(func() { ollamaProbe = old })

	tests := []struct {
		name    string
		prov    translate.Provider
		probe   error
		wantErr string
	}{
		{"openai needs key", resolveProvider("openai", "", "", "", "", 0), nil, "requires an API key"},
		{"openai with key", resolveProvider("openai", "", "sk", "", "", 0), nil, ""},
		{"google needs model", translate.Provider{ID: translate.ProviderGoogle, Name: "Google"}, nil, "--model is required"},
		{"custom needs url", translate.Provider{ID: translate.ProviderCustomOpenAI, Model: "m"}, nil, "endpoint URL"},
		{"opencode without key", translate.Provider{ID: translate.ProviderOpenCode, Model: "m"}, nil, ""},
		{"ollama down", translate.Provider{ID: translate.ProviderOllama, Model: "m"}, errors.New("refused"), "ollama serve"},
		{"ollama up", translate.Provider{ID: translate.ProviderOllama, Model: "m"}, nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ollamaProbe = func(string) error { return tc.probe }
			err := validateProvider(tc.prov)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestBuildServices(t *testing.T) {
	isolateSettings(t)

	t.Run("remote primary with dictionary fallback", func(t *testing.T) {
		cfg := config.Default()
		cfg.ServiceURL = "http://127.0.0.1:1"
		svc, err := buildServices(cfg, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := svc.fallback.(translate.DictionaryFallback); !ok {
			t.Errorf("fallback = %T", svc.fallback)
		}
		if svc.provider.ID != "remote" {
			t.Errorf("provider = %+v", svc.provider)
		}

		// The unreachable primary falls back to the dictionary.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := svc.pipeline.Breakdown(ctx, "我 很", 2)
		if err != nil {
			t.Fatalf("Breakdown: %v", err)
		}
		if !res.Fallback || res.Sets[0].English != "I very" {
			t.Errorf("result = %+v", res.Sets)
		}
	})

	t.Run("openai with flag key", func(t *testing.T) {
		cfg := config.Default()
		cfg.Fallback = config.FallbackGoogle
		svc, err := buildServices(cfg, "sk-flag")
		if err != nil {
			t.Fatal(err)
		}
		if svc.provider.APIKey != "sk-flag" {
			t.Errorf("api key = %q", svc.provider.APIKey)
		}
		if _, ok := svc.fallback.(*translate.GoogleFallback); !ok {
			t.Errorf("fallback = %T", svc.fallback)
		}
	})

	t.Run("openai without key", func(t *testing.T) {
		if _, err := buildServices(config.Default(), ""); err == nil {
			t.Fatal("expected missing key error")
		}
	})

	t.Run("remote fallback", func(t *testing.T) {
		cfg := config.Default()
		cfg.ServiceURL = "http://127.0.0.1:1"
		cfg.Fallback = config.FallbackRemote
		if _, err := buildServices(cfg, ""); err == nil {
			t.Fatal("expected error without fallback URL")
		}
		cfg.FallbackURL = "http://127.0.0.1:2"
		svc, err := buildServices(cfg, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := svc.fallback.(*translate.RemoteFallback); !ok {
			t.Errorf("fallback = %T", svc.fallback)
		}
	})
}

func TestCredentialStatus(t *testing.T) {
	if got := credentialStatus(nil); !strings.Contains(got, "not configured") {
		t.Errorf("nil entry = %q", got)
	}
	got := credentialStatus(&settings.Info{Type: "api", Key: "sk-1234567890"})
	if !strings.Contains(got, "sk-1...7890") {
		t.Errorf("key entry = %q", got)
	}
	got = credentialStatus(&settings.Info{Type: "api", BaseURL: "http://llm"})
	if !strings.Contains(got, "no key") || !strings.Contains(got, "http://llm") {
		t.Errorf("url-only entry = %q", got)
	}
}

func TestSamplePhrases(t *testing.T) {
	for _, s := range samplePhrases {
		if !segment.ContainsCJK(s) {
			t.Errorf("sample %q has no Chinese", s)
		}
	}
	if _, ok := providerByID("ollama"); !ok {
		t.Error("ollama missing from provider menu")
	}
	if _, ok := providerByID("copilot"); ok {
		t.Error("unexpected provider copilot")
	}
}
