package settings

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDataDirAndFilePathUseXDGDataHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir() error: %v", err)
	}
	wantDir := filepath.Join(tmp, "zhdrill")
	if dir != wantDir {
		t.Fatalf("DataDir() = %q, want %q", dir, wantDir)
	}

	wantPath := filepath.Join(tmp, "zhdrill", "auth.json")
	if got := FilePath(); got != wantPath {
		t.Fatalf("FilePath() = %q, want %q", got, wantPath)
	}

	prompts, err := PromptsFilePath()
	if err != nil || prompts != filepath.Join(tmp, "zhdrill", "prompts.json") {
		t.Fatalf("PromptsFilePath() = %q, %v", prompts, err)
	}
}

func TestSaveLoadRemoveLifecycle(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	store := Store{
		"openai": {Type: "api", Key: "sk-openai-123456"},
		"groq":   {Type: "api", Key: "gsk-123456789"},
	}

	if err := Save(store); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	path := filepath.Join(tmp, "zhdrill", "auth.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat auth.json: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("auth.json mode = %o, want 600", info.Mode().Perm())
	}

	loaded := Load()
	if got := loaded.Providers(); !reflect.DeepEqual(got, []string{"groq", "openai"}) {
		t.Fatalf("Providers() = %v", got)
	}

	if err := Remove("openai"); err != nil {
		t.Fatalf("Remove(openai) error: %v", err)
	}
	if got := GetAPIKey("openai"); got != "" {
		t.Fatalf("GetAPIKey after remove = %q, want empty", got)
	}
	if GetAPIKey("groq") == "" {
		t.Fatalf("groq key should remain after removing openai")
	}

	if err := Remove("missing-provider"); err != nil {
		t.Fatalf("Remove(missing) should be no-op, got: %v", err)
	}

	if err := RemoveAll(); err != nil {
		t.Fatalf("RemoveAll() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("auth.json should be removed, stat err=%v", err)
	}
	if got := Load(); len(got) != 0 {
		t.Fatalf("Load() after RemoveAll should be empty, got=%#v", got)
	}
}

func TestSetAPIKeyKeepsBaseURL(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if err := SetAPIKeyWithBaseURL("custom-openai", "old", "http://localhost:1234/v1"); err != nil {
		t.Fatal(err)
	}
	if err := SetAPIKey("custom-openai", "new"); err != nil {
		t.Fatal(err)
	}
	if got := GetBaseURL("custom-openai"); got != "http://localhost:1234/v1" {
		t.Fatalf("base URL = %q, want preserved", got)
	}
	if got := GetAPIKey("custom-openai"); got != "new" {
		t.Fatalf("key = %q, want new", got)
	}
}

func TestResolveAPIKeyPriority(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	if err := SetAPIKey("openai", "stored-key"); err != nil {
		t.Fatalf("SetAPIKey() error: %v", err)
	}
	if got := ResolveAPIKey("openai", ""); got != "stored-key" {
		t.Fatalf("stored key expected, got %q", got)
	}

	t.Setenv(EnvOpenAIAPIKey, "openai-env")
	if got := ResolveAPIKey("openai", ""); got != "openai-env" {
		t.Fatalf("OPENAI_API_KEY should win over store, got %q", got)
	}
	if got := ResolveAPIKey("groq", ""); got != "" {
		t.Fatalf("OPENAI_API_KEY must not apply to groq, got %q", got)
	}

	t.Setenv(EnvAPIKey, "zhdrill-env")
	if got := ResolveAPIKey("openai", ""); got != "zhdrill-env" {
		t.Fatalf("ZHDRILL_API_KEY should win, got %q", got)
	}
	if got := ResolveAPIKey("openai", "flag-key"); got != "flag-key" {
		t.Fatalf("flag should win, got %q", got)
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey("short"); got != "****" {
		t.Fatalf("MaskKey(short) = %q, want ****", got)
	}
	if got := MaskKey("12345678"); got != "****" {
		t.Fatalf("MaskKey(8 chars) = %q, want ****", got)
	}
	if got := MaskKey("123456789"); got != "1234...6789" {
		t.Fatalf("MaskKey(9 chars) = %q, want 1234...6789", got)
	}
}
