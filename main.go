// zhdrill: Mandarin phrase breakdown and listening drills.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/minios-linux/zhdrill/breakdown"
	"github.com/minios-linux/zhdrill/config"
	"github.com/minios-linux/zhdrill/i18n"
	"github.com/minios-linux/zhdrill/practice"
	"github.com/minios-linux/zhdrill/romanize"
	"github.com/minios-linux/zhdrill/server"
	"github.com/minios-linux/zhdrill/settings"
	"github.com/minios-linux/zhdrill/speech"
	"github.com/minios-linux/zhdrill/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	verbose bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "zhdrill",
		Short: "Mandarin phrase breakdown and listening drills",
		Long: `zhdrill — break Mandarin phrases into study chunks and drill them aloud.

A phrase is translated as a whole, then in chunks of a few words, each with
an English gloss and pinyin. When the AI provider is unavailable, a built-in
dictionary (or Google Translate) takes over.

Commands:
  breakdown   Break a phrase into translated chunks
  practice    Break a phrase down and drill it with text-to-speech
  serve       Run the HTTP API
  voices      List Chinese text-to-speech voices
  samples     Show sample phrases
  auth        Manage provider API keys

AI Providers:
  openai         OpenAI (function calling, default)
  google         Google AI (Gemini) — API key
  groq           Groq — API key required
  opencode       OpenCode (multi-format dispatcher)
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint

Settings are read from .zhdrill.yaml and .env in --root; flags win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			i18n.Init("")
		},
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory (.zhdrill.yaml, .env)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(
		newBreakdownCmd(),
		newPracticeCmd(),
		newServeCmd(),
		newVoicesCmd(),
		newSamplesCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("zhdrill version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// Service flags (shared by breakdown, practice and serve)
// ---------------------------------------------------------------------------

type serviceArgs struct {
	provider    string
	model       string
	apiKey      string
	baseURL     string
	proxy       string
	timeout     time.Duration
	maxRetries  int
	prompt      string
	promptType  string
	serviceURL  string
	fallback    string
	fallbackURL string
	chunkSize   int
	noCache     bool
}

func addServiceFlags(cmd *cobra.Command, a *serviceArgs) {
	f := cmd.Flags()
	f.StringVar(&a.provider, "provider", "", "AI provider (openai, google, groq, opencode, ollama, custom-openai)")
	f.StringVar(&a.model, "model", "", "Model name (provider default if empty)")
	f.StringVar(&a.apiKey, "api-key", "", "API key (or set ZHDRILL_API_KEY / OPENAI_API_KEY)")
	f.StringVar(&a.baseURL, "base-url", "", "Custom API base URL")
	f.StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	f.DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	f.IntVar(&a.maxRetries, "retries", 0, "Maximum retries per request (0 = 3)")
	f.StringVar(&a.prompt, "prompt", "", "Custom system prompt")
	f.StringVar(&a.promptType, "prompt-type", "", "Prompt from prompts.json (default, tone-numbers)")
	f.StringVar(&a.serviceURL, "service-url", "", "Use another zhdrill server as the primary service")
	f.StringVar(&a.fallback, "fallback", "", "Fallback translator (dictionary, google, remote)")
	f.StringVar(&a.fallbackURL, "fallback-url", "", "zhdrill server for the remote fallback")
	f.IntVar(&a.chunkSize, "chunk-size", 0, "Words per chunk (default 2)")
	f.BoolVar(&a.noCache, "no-cache", false, "Disable the translation cache")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		completions := make([]string, 0, len(allProviders))
		for _, p := range allProviders {
			completions = append(completions, fmt.Sprintf("%s\t%s", p.id, p.name))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("fallback", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{config.FallbackDictionary, config.FallbackGoogle, config.FallbackRemote}, cobra.ShellCompDirectiveNoFileComp
	})
}

// loadConfig reads .env and .zhdrill.yaml from the root directory.
func loadConfig() *config.File {
	if err := config.LoadEnv(rootDir); err != nil {
		logWarning("%v", err)
	}
	cfg, err := config.LoadOrDefault(rootDir)
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
	return cfg
}

// applyServiceArgs overrides config values with the flags that were set.
func applyServiceArgs(cfg *config.File, a serviceArgs) {
	if a.provider != "" {
		cfg.Provider = strings.ToLower(a.provider)
	}
	if a.model != "" {
		cfg.Model = a.model
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.proxy != "" {
		cfg.Proxy = a.proxy
	}
	if a.timeout > 0 {
		cfg.TimeoutSeconds = int(a.timeout.Round(time.Second) / time.Second)
	}
	if a.maxRetries > 0 {
		cfg.MaxRetries = a.maxRetries
	}
	if a.prompt != "" {
		cfg.Prompt = a.prompt
	}
	if a.promptType != "" {
		cfg.PromptType = a.promptType
	}
	if a.serviceURL != "" {
		cfg.ServiceURL = a.serviceURL
	}
	if a.fallback != "" {
		cfg.Fallback = a.fallback
	}
	if a.fallbackURL != "" {
		cfg.FallbackURL = a.fallbackURL
	}
	if a.chunkSize != 0 {
		cfg.ChunkSize = a.chunkSize
	}
	if a.noCache {
		cfg.CacheSize = -1
	}
}

// services bundles the translators built from configuration.
type services struct {
	provider   translate.Provider
	translator *breakdown.Translator
	fallback   translate.FallbackService
	pipeline   *breakdown.Pipeline
}

// buildServices wires the primary service, the fallback and the pipeline.
func buildServices(cfg *config.File, apiKeyFlag string) (*services, error) {
	var (
		primary translate.Service
		prov    translate.Provider
	)

	if cfg.ServiceURL != "" {
		primary = translate.NewRemoteService(cfg.ServiceURL, cfg.Proxy, cfg.Timeout())
		prov = translate.Provider{ID: "remote", Name: cfg.ServiceURL}
	} else {
		apiKey := settings.ResolveAPIKey(cfg.Provider, apiKeyFlag)
		prov = resolveProvider(cfg.Provider, cfg.BaseURL, apiKey, cfg.Model, cfg.Proxy, cfg.Timeout())
		if err := validateProvider(prov); err != nil {
			return nil, err
		}
		if cfg.Prompt == "" {
			if _, err := translate.LoadPromptsFromDefaultLocations(); err != nil {
				logWarning("Prompts not loaded, using built-in prompt: %v", err)
			}
		}
		primary = translate.NewLLMService(translate.Options{
			Provider:     prov,
			Timeout:      cfg.Timeout(),
			MaxRetries:   cfg.MaxRetries,
			SystemPrompt: cfg.Prompt,
			PromptType:   cfg.PromptType,
			OnLog:        logInfo,
			OnError:      logWarning,
			Verbose:      verbose,
		})
	}

	if cfg.CacheSize > 0 {
		cached, err := translate.NewCachedService(primary, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		primary = cached
	}

	var fallback translate.FallbackService
	switch cfg.Fallback {
	case config.FallbackGoogle:
		fallback = translate.NewGoogleFallback()
	case config.FallbackRemote:
		if cfg.FallbackURL == "" {
			return nil, errors.New("fallback 'remote' requires --fallback-url")
		}
		fallback = translate.NewRemoteFallback(cfg.FallbackURL, cfg.Proxy, cfg.Timeout())
	case config.FallbackDictionary, "":
		fallback = translate.DictionaryFallback{}
	default:
		return nil, fmt.Errorf("unknown fallback '%s' (valid: dictionary, google, remote)", cfg.Fallback)
	}

	translator := breakdown.NewTranslator(primary, romanize.New())
	pipeline := breakdown.NewPipeline(translator, breakdown.Options{
		Fallback: fallback,
		OnLog:    logInfo,
		OnError:  logWarning,
		Verbose:  verbose,
	})

	return &services{
		provider:   prov,
		translator: translator,
		fallback:   fallback,
		pipeline:   pipeline,
	}, nil
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runBreakdown breaks phrase down and reports errors the CLI way.
func runBreakdown(ctx context.Context, svc *services, phrase string, chunkSize int) *breakdown.Result {
	if verbose {
		logInfo(i18n.T("Breaking down: %s"), phrase)
	}
	res, err := svc.pipeline.Breakdown(ctx, phrase, chunkSize)
	if err != nil {
		switch {
		case errors.Is(err, breakdown.ErrEmptyInput):
			logWarning("%s", i18n.T("Nothing to break down"))
			os.Exit(0)
		case errors.Is(err, context.Canceled):
			logWarning("%s", i18n.T("Cancelled"))
			os.Exit(130)
		}
		logError(i18n.T("Breakdown failed: %v"), err)
		os.Exit(1)
	}
	if res.Fallback {
		logWarning("%s", i18n.T("AI translation unavailable, showing fallback translation"))
	}
	return res
}

// ---------------------------------------------------------------------------
// breakdown
// ---------------------------------------------------------------------------

func newBreakdownCmd() *cobra.Command {
	var (
		a      serviceArgs
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "breakdown PHRASE...",
		Short: "Break a phrase into translated chunks",
		Long: `Translate a Mandarin phrase as a whole, then in chunks of --chunk-size words.

The first row is always the whole phrase. Spaces between words in the input
are kept; the AI provider decides the final word boundaries.

Examples:
  zhdrill breakdown 你好我很高兴认识你
  zhdrill breakdown --chunk-size 3 我 喜欢 学习 中文
  zhdrill breakdown --provider groq --model llama-3.3-70b-versatile 今天天气很好
  zhdrill breakdown --json 谢谢你的帮助`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			applyServiceArgs(cfg, a)
			svc, err := buildServices(cfg, a.apiKey)
			if err != nil {
				logError("%v", err)
				os.Exit(1)
			}

			ctx, cancel := signalContext()
			defer cancel()

			res := runBreakdown(ctx, svc, strings.Join(args, " "), cfg.ChunkSize)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetEscapeHTML(false)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					logError("%v", err)
					os.Exit(1)
				}
				return
			}
			printSets(res.Sets)
		},
	}

	addServiceFlags(cmd, &a)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

// printSets prints word sets as an aligned list, the whole phrase first.
func printSets(sets []breakdown.WordSet) {
	for i, ws := range sets {
		label := fmt.Sprintf("%d.", i)
		if i == 0 {
			label = "  "
		}
		color := colorGreen
		if ws.Failed() {
			color = colorRed
		}
		mandarin := ws.Mandarin
		if ws.Segmented != "" {
			mandarin = ws.Segmented
		}
		fmt.Printf("%s %s%s%s\n", label, color, mandarin, colorReset)
		fmt.Printf("   %s\n", ws.Pinyin)
		fmt.Printf("   %s\n", ws.English)
		if i == 0 && len(sets) > 1 {
			fmt.Println(strings.Repeat("─", 40))
		}
	}
}

// ---------------------------------------------------------------------------
// practice
// ---------------------------------------------------------------------------

type practiceArgs struct {
	repetitions int
	interval    time.Duration
	rate        float64
	voice       string
	engine      string
}

func newPracticeCmd() *cobra.Command {
	var (
		a serviceArgs
		p practiceArgs
	)

	cmd := &cobra.Command{
		Use:   "practice PHRASE...",
		Short: "Break a phrase down and drill it with text-to-speech",
		Long: `Break a phrase down, then speak every part in order: the whole phrase,
then each chunk. The sequence repeats --repetitions times with --interval
between parts and twice that between rounds. Press Ctrl+C to stop.

Speech uses macOS 'say' or 'espeak-ng'. Without --voice, a Chinese voice
is picked automatically.

Examples:
  zhdrill practice 你好我很高兴认识你
  zhdrill practice --repetitions 3 --interval 1.5s 我想吃中国菜
  zhdrill practice --engine espeak-ng --rate 0.6 谢谢你的帮助`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			applyServiceArgs(cfg, a)
			applyPracticeArgs(cfg, p)

			engine, err := speech.ParseEngine(cfg.Practice.Engine)
			if err != nil {
				logError("%v", err)
				os.Exit(1)
			}

			svc, err := buildServices(cfg, a.apiKey)
			if err != nil {
				logError("%v", err)
				os.Exit(1)
			}

			ctx, cancel := signalContext()
			defer cancel()

			res := runBreakdown(ctx, svc, strings.Join(args, " "), cfg.ChunkSize)

			voice := cfg.Practice.Voice
			if voice == "" {
				voice = pickVoice(ctx, engine)
			}
			player, err := speech.NewCommandPlayer(engine, voice, cfg.Practice.Rate)
			if err != nil {
				logError("%v", err)
				os.Exit(1)
			}

			runPractice(ctx, player, res.Sets, cfg.Practice.Repetitions, cfg.Practice.Interval())
		},
	}

	addServiceFlags(cmd, &a)
	cmd.Flags().IntVar(&p.repetitions, "repetitions", 0, "Times to repeat the sequence (default 5)")
	cmd.Flags().DurationVar(&p.interval, "interval", 0, "Pause between parts (default 2s)")
	cmd.Flags().Float64Var(&p.rate, "rate", 0, "Speech rate, 1.0 is normal (default 0.7)")
	cmd.Flags().StringVar(&p.voice, "voice", "", "Text-to-speech voice name")
	cmd.Flags().StringVar(&p.engine, "engine", "", "Speech engine (say, espeak-ng, auto)")

	return cmd
}

func applyPracticeArgs(cfg *config.File, p practiceArgs) {
	if p.repetitions != 0 {
		cfg.Practice.Repetitions = p.repetitions
	}
	if p.interval != 0 {
		cfg.Practice.IntervalSeconds = p.interval.Seconds()
	}
	if p.rate != 0 {
		cfg.Practice.Rate = p.rate
	}
	if p.voice != "" {
		cfg.Practice.Voice = p.voice
	}
	if p.engine != "" {
		cfg.Practice.Engine = p.engine
	}
}

// pickVoice returns the preferred installed Chinese voice, or "" to let
// the engine choose by language.
func pickVoice(ctx context.Context, engine speech.Engine) string {
	voices, err := speech.ListVoices(ctx, engine)
	if err != nil {
		if verbose {
			logWarning("Cannot list voices: %v", err)
		}
		return ""
	}
	v, ok := speech.PreferredVoice(voices)
	if !ok {
		logWarning("%s", i18n.T("No Chinese voice installed, using the engine default"))
		return ""
	}
	if verbose {
		logInfo(i18n.T("Using voice: %s"), v.Name)
	}
	// espeak-ng selects voices by language code
	if engine == speech.EngineEspeak {
		return v.Lang
	}
	return v.Name
}

func runPractice(ctx context.Context, player practice.Player, sets []breakdown.WordSet, repetitions int, interval time.Duration) {
	sched := practice.New(player, practice.Options{
		OnSpeak: func(s practice.Session, index int) {
			ws := s.Parts[index]
			fmt.Printf("[%d/%d] %s%s%s  %s  %s\n",
				s.CurrentRepetition, s.Repetitions,
				colorGreen, ws.Mandarin, colorReset, ws.Pinyin, ws.English)
		},
		OnError: logWarning,
	})

	sess, err := sched.Start(ctx, sets, repetitions, interval)
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
	logInfo(i18n.T("Practicing %d parts, %d repetitions (Ctrl+C to stop)"), len(sess.Parts), sess.Repetitions)

	select {
	case <-sched.Done():
	case <-ctx.Done():
		sched.Cancel()
	}

	if final := sched.Wait(); final.Cancelled {
		logWarning("%s", i18n.T("Practice stopped"))
		return
	}
	logSuccess("%s", i18n.T("Practice finished"))
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	var (
		a             serviceArgs
		addr          string
		maxConcurrent int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the translation and breakdown API.

Routes:
  GET  /api/test               Health check
  POST /api/translate-openai   {"text"} -> {"segmented","translation","pinyin"}
  POST /api/translate-alt      {"text","from","to"} -> {"translation","pinyin"}
  POST /api/breakdown          {"text","chunk_size"} -> {"sets","fallback"}

Examples:
  zhdrill serve
  zhdrill serve --addr 127.0.0.1:3000 --fallback google`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			applyServiceArgs(cfg, a)
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if maxConcurrent > 0 {
				cfg.Server.MaxConcurrent = maxConcurrent
			}

			svc, err := buildServices(cfg, a.apiKey)
			if err != nil {
				logError("%v", err)
				os.Exit(1)
			}

			srv := server.New(server.Options{
				Translator:    svc.translator,
				Fallback:      svc.fallback,
				Pipeline:      svc.pipeline,
				ChunkSize:     cfg.ChunkSize,
				MaxConcurrent: cfg.Server.MaxConcurrent,
				Provider:      svc.provider.ID,
				OnLog:         logInfo,
				OnError:       logWarning,
				Verbose:       verbose,
			})

			ctx, cancel := signalContext()
			defer cancel()

			if err := srv.Run(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logError("%v", err)
				os.Exit(1)
			}
			logSuccess("%s", i18n.T("Server stopped"))
		},
	}

	addServiceFlags(cmd, &a)
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :8080)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Breakdowns processed at once (default 4)")

	return cmd
}

// ---------------------------------------------------------------------------
// voices
// ---------------------------------------------------------------------------

func newVoicesCmd() *cobra.Command {
	var (
		engineName string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List Chinese text-to-speech voices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			engine, err := speech.ParseEngine(engineName)
			if err != nil {
				logError("%v", err)
				os.Exit(1)
			}
			voices, err := speech.ListVoices(cmd.Context(), engine)
			if err != nil {
				logError("%v", err)
				os.Exit(1)
			}

			preferred, _ := speech.PreferredVoice(voices)
			if !all {
				voices = speech.ChineseVoices(voices)
			}
			if len(voices) == 0 {
				logWarning("%s", i18n.T("No Chinese voice installed"))
				return
			}

			fmt.Fprintf(os.Stderr, "\n%s%s voices%s\n", colorBlue, engine, colorReset)
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			for _, v := range voices {
				mark := " "
				if v.Name == preferred.Name {
					mark = colorGreen + "*" + colorReset
				}
				fmt.Printf("%s %-28s %-10s %s\n", mark, v.Name, v.Lang, v.Gender)
			}
			fmt.Fprintln(os.Stderr)
		},
	}

	cmd.Flags().StringVar(&engineName, "engine", "", "Speech engine (say, espeak-ng, auto)")
	cmd.Flags().BoolVar(&all, "all", false, "List every voice, not only Chinese ones")

	return cmd
}

// ---------------------------------------------------------------------------
// samples
// ---------------------------------------------------------------------------

// samplePhrases are ready-made phrases for trying the tool out.
var samplePhrases = []string{
	"你好 我 很 高兴 认识 你",
	"我 喜欢 学习 中文",
	"今天 天气 很 好",
	"我 想 吃 中国 菜",
	"谢谢 你 的 帮助",
}

func newSamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "Show sample phrases",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, s := range samplePhrases {
				fmt.Println(s)
			}
			fmt.Fprintf(os.Stderr, "\n  %s zhdrill practice %s\n\n", i18n.T("Try:"), samplePhrases[0])
		},
	}
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Manage API keys for the AI providers.

API key providers (paste your key):
  openai        OpenAI
  google        Google AI Studio (Gemini API key)
  groq          Groq Cloud (free tier available)
  opencode      OpenCode proxy
  custom-openai Custom OpenAI-compatible endpoint

No auth required:
  ollama        Local Ollama server

Examples:
  zhdrill auth login                       Interactive provider selection
  zhdrill auth login --provider openai     Store an OpenAI API key
  zhdrill auth logout --provider groq      Remove the Groq API key
  zhdrill auth logout                      Remove all credentials
  zhdrill auth list                        Show all stored credentials`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

// allProviders is the ordered list of providers for the interactive menu.
var allProviders = []struct {
	id      string
	name    string
	desc    string
	auth    string // "api-key", "none"
	helpURL string
	example string
}{
	{"openai", "OpenAI", "function calling, default provider", "api-key",
		"https://platform.openai.com/api-keys", "zhdrill breakdown 你好"},
	{"google", "Google AI Studio", "Gemini API key, free tier available", "api-key",
		"https://aistudio.google.com/apikey", "zhdrill breakdown --provider google --model gemini-2.5-flash 你好"},
	{"groq", "Groq Cloud", "fast inference, free tier available", "api-key",
		"https://console.groq.com/keys", "zhdrill breakdown --provider groq --model llama-3.3-70b-versatile 你好"},
	{"opencode", "OpenCode", "multi-provider proxy", "api-key",
		"", "zhdrill breakdown --provider opencode --model gemini-2.5-flash 你好"},
	{"custom-openai", "Custom OpenAI", "any OpenAI-compatible endpoint", "api-key",
		"", "zhdrill breakdown --provider custom-openai --model MODEL 你好"},
	{"ollama", "Ollama", "local server, no auth needed", "none",
		"https://ollama.com", "zhdrill breakdown --provider ollama --model qwen2.5 你好"},
}

func providerByID(id string) (int, bool) {
	for i, p := range allProviders {
		if p.id == id {
			return i, true
		}
	}
	return -1, false
}

func newAuthLoginCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key for a provider",
		Long: `Store an API key in the zhdrill data directory.

Without --provider, an interactive menu lets you pick one.`,
		Run: func(cmd *cobra.Command, args []string) {
			scanner := bufio.NewScanner(os.Stdin)

			if provider == "" {
				fmt.Fprintf(os.Stderr, "\n%sSelect a provider%s\n", colorBlue, colorReset)
				fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
				for i, p := range allProviders {
					fmt.Fprintf(os.Stderr, "  %d) %-16s %s\n", i+1, p.name, p.desc)
				}
				fmt.Fprintf(os.Stderr, "\n  Choice [1-%d]: ", len(allProviders))
				if !scanner.Scan() {
					logError("No input received")
					os.Exit(1)
				}
				var n int
				if _, err := fmt.Sscanf(strings.TrimSpace(scanner.Text()), "%d", &n); err != nil || n < 1 || n > len(allProviders) {
					logError("Invalid choice")
					os.Exit(1)
				}
				provider = allProviders[n-1].id
			}

			idx, ok := providerByID(provider)
			if !ok {
				logError("Unknown provider '%s'. Run 'zhdrill auth list' to see providers.", provider)
				os.Exit(1)
			}
			if allProviders[idx].auth == "none" {
				logInfo("%s needs no API key", allProviders[idx].name)
				return
			}
			authLoginAPIKey(scanner, idx)
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to configure")

	return cmd
}

func authLoginAPIKey(scanner *bufio.Scanner, idx int) {
	info := allProviders[idx]

	fmt.Fprintf(os.Stderr, "\n%s%s — API Key Setup%s\n", colorBlue, info.name, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintln(os.Stderr)

	if info.helpURL != "" {
		fmt.Fprintf(os.Stderr, "  Get your API key from: %s%s%s\n\n", colorGreen, info.helpURL, colorReset)
	}

	var baseURL string
	if info.id == translate.ProviderCustomOpenAI {
		current := settings.GetBaseURL(info.id)
		if current != "" {
			fmt.Fprintf(os.Stderr, "  Endpoint URL [%s]: ", current)
		} else {
			fmt.Fprintf(os.Stderr, "  Endpoint URL (e.g. https://api.example.com/v1): ")
		}
		if !scanner.Scan() {
			logError("No input received")
			os.Exit(1)
		}
		baseURL = strings.TrimSpace(scanner.Text())
		if baseURL == "" {
			baseURL = current
		}
		if baseURL == "" {
			logError("No endpoint URL provided")
			os.Exit(1)
		}
	}

	// Check if already configured
	existing := settings.GetAPIKey(info.id)
	if existing != "" {
		fmt.Fprintf(os.Stderr, "  Current key: %s%s%s\n", colorYellow, settings.MaskKey(existing), colorReset)
		fmt.Fprintf(os.Stderr, "  Enter new key to replace, or press Enter to keep: ")
	} else {
		fmt.Fprintf(os.Stderr, "  Enter API key: ")
	}

	if !scanner.Scan() {
		logError("No input received")
		os.Exit(1)
	}
	key := strings.TrimSpace(scanner.Text())

	if key == "" {
		key = existing
	}
	if key == "" && info.id != translate.ProviderCustomOpenAI {
		logError("No API key provided")
		os.Exit(1)
	}

	var err error
	if info.id == translate.ProviderCustomOpenAI {
		err = settings.SetAPIKeyWithBaseURL(info.id, key, baseURL)
	} else {
		err = settings.SetAPIKey(info.id, key)
	}
	if err != nil {
		logError("Failed to save API key: %v", err)
		os.Exit(1)
	}

	logSuccess("%s API key saved!", info.name)
	fmt.Fprintf(os.Stderr, "\n  You can now use: %s\n\n", info.example)
}

func newAuthLogoutCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long: `Remove stored credentials for one or all providers.

If --provider is not specified, credentials for ALL providers are removed.`,
		Run: func(cmd *cobra.Command, args []string) {
			if provider != "" {
				if _, ok := providerByID(provider); !ok {
					logError("Unknown provider '%s'. Run 'zhdrill auth list' to see providers.", provider)
					os.Exit(1)
				}
				if err := settings.Remove(provider); err != nil {
					logError("Failed to remove %s credentials: %v", provider, err)
					os.Exit(1)
				}
				logSuccess("%s credentials removed", provider)
				return
			}

			if err := settings.RemoveAll(); err != nil {
				logError("Failed to remove credentials: %v", err)
				os.Exit(1)
			}
			logSuccess("All stored credentials removed")
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to logout (default: all)")
	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		completions := make([]string, 0, len(allProviders))
		for _, p := range allProviders {
			if p.auth == "none" {
				continue
			}
			completions = append(completions, fmt.Sprintf("%s\t%s", p.id, p.name))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials and status",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "\n%sStored Credentials%s\n", colorBlue, colorReset)
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

			fmt.Fprintf(os.Stderr, "\n  %sAPI Key Providers%s\n", colorYellow, colorReset)
			for _, p := range allProviders {
				if p.auth == "none" {
					continue
				}
				fmt.Fprintf(os.Stderr, "  %-14s %s\n", p.id, credentialStatus(settings.Get(p.id)))
			}

			// Environment variables
			fmt.Fprintf(os.Stderr, "\n  %sEnvironment Variables%s\n", colorYellow, colorReset)
			for _, name := range []string{settings.EnvAPIKey, settings.EnvOpenAIAPIKey} {
				if v := os.Getenv(name); v != "" {
					fmt.Fprintf(os.Stderr, "  %s: %s%s%s (overrides stored keys)\n", name, colorGreen, settings.MaskKey(v), colorReset)
				} else {
					fmt.Fprintf(os.Stderr, "  %s: %snot set%s\n", name, colorRed, colorReset)
				}
			}
			fmt.Fprintf(os.Stderr, "\n  Stored in: %s\n\n", settings.FilePath())
		},
	}
}

// credentialStatus renders one auth list row.
func credentialStatus(entry *settings.Info) string {
	switch {
	case entry != nil && entry.Key != "":
		status := fmt.Sprintf("%sconfigured%s (key: %s)", colorGreen, colorReset, settings.MaskKey(entry.Key))
		if entry.BaseURL != "" {
			status += fmt.Sprintf("\n  %14s endpoint: %s", "", entry.BaseURL)
		}
		return status
	case entry != nil && entry.BaseURL != "":
		// custom-openai may have just a URL, no key
		return fmt.Sprintf("%sconfigured%s (no key)\n  %14s endpoint: %s", colorGreen, colorReset, "", entry.BaseURL)
	default:
		return fmt.Sprintf("%snot configured%s", colorRed, colorReset)
	}
}

// ---------------------------------------------------------------------------
// Provider helpers
// ---------------------------------------------------------------------------

func resolveProvider(name, baseURL, apiKey, model, proxy string, timeout time.Duration) translate.Provider {
	defaults := translate.DefaultProviders()

	var prov translate.Provider

	if p, ok := defaults[strings.ToLower(name)]; ok {
		prov = p
	} else {
		prov = translate.Provider{
			ID:      translate.ProviderCustomOpenAI,
			Name:    name,
			BaseURL: name,
			Timeout: 60 * time.Second,
		}
	}

	if baseURL != "" {
		prov.BaseURL = baseURL
	} else if prov.ID == translate.ProviderCustomOpenAI {
		// Check credentials store for base URL
		if storedURL := settings.GetBaseURL(prov.ID); storedURL != "" {
			prov.BaseURL = storedURL
		}
	}
	if apiKey != "" {
		prov.APIKey = apiKey
	}
	if model != "" {
		prov.Model = model
	}
	if proxy != "" {
		prov.Proxy = proxy
	}
	if timeout > 0 {
		prov.Timeout = timeout
	}

	return prov
}

// ollamaProbe checks that an Ollama server answers; replaced in tests.
var ollamaProbe = func(baseURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	root := strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1")
	if root == "" {
		root = "http://localhost:11434"
	}
	resp, err := client.Get(root + "/api/tags")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func validateProvider(prov translate.Provider) error {
	// Check if model is specified
	if prov.Model == "" {
		modelExamples := map[string]string{
			translate.ProviderGoogle:       "gemini-2.5-flash, gemini-2.0-flash",
			translate.ProviderGroq:         "llama-3.3-70b-versatile, qwen/qwen3-32b",
			translate.ProviderOpenCode:     "big-pickle, gemini-2.5-flash, claude-sonnet-4.5, gpt-4o",
			translate.ProviderOllama:       "qwen2.5, llama3.2",
			translate.ProviderCustomOpenAI: "gpt-4o, gpt-4o-mini (depends on your endpoint)",
		}

		examples := modelExamples[prov.ID]
		if examples == "" {
			examples = "check provider documentation"
		}

		return fmt.Errorf("--model is required for provider '%s'\n\n"+
			"Example models for %s:\n  %s\n\n"+
			"Usage: --provider %s --model MODEL_NAME",
			prov.ID, prov.Name, examples, prov.ID)
	}

	switch prov.ID {
	case translate.ProviderOpenAI, translate.ProviderGoogle, translate.ProviderGroq:
		if prov.APIKey == "" {
			return fmt.Errorf("provider '%s' requires an API key\n\n"+
				"Option 1: Store your API key:\n"+
				"  zhdrill auth login --provider %s\n\n"+
				"Option 2: Pass key directly:\n"+
				"  --api-key YOUR_KEY or export ZHDRILL_API_KEY=YOUR_KEY",
				prov.ID, prov.ID)
		}

	case translate.ProviderOpenCode:
		// OpenCode can work without API key for some models

	case translate.ProviderCustomOpenAI:
		if prov.BaseURL == "" {
			return fmt.Errorf("provider 'custom-openai' requires an endpoint URL\n\n" +
				"Option 1: Configure via auth:\n" +
				"  zhdrill auth login --provider custom-openai\n\n" +
				"Option 2: Pass directly:\n" +
				"  --base-url https://api.example.com/v1")
		}

	case translate.ProviderOllama:
		if err := ollamaProbe(prov.BaseURL); err != nil {
			return fmt.Errorf("provider 'ollama' requires Ollama server to be running\n\n" +
				"Start Ollama with: ollama serve\n" +
				"Install from: https://ollama.com")
		}
	}

	return nil
}
