package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// defaultTemperature is the sampling temperature sent to every provider.
const defaultTemperature = 0.3

// Result is what the primary service returns for a piece of text.
type Result struct {
	Segmented   string `json:"segmented"`
	Translation string `json:"translation"`
	Pinyin      string `json:"pinyin"`
}

// Service is the primary translation service: it segments, translates and
// romanizes Mandarin text in one call.
type Service interface {
	Translate(ctx context.Context, text string) (Result, error)
}

// ServiceError reports a failed or non-successful call to a translation
// service.
type ServiceError struct {
	StatusCode int    // HTTP status, 0 when no response was received
	Message    string // short description
	Detail     string // upstream body or details, may be empty
	Err        error  // underlying cause, may be nil
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString("translation service")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// LLM-backed service
// ---------------------------------------------------------------------------

// LLMService implements Service on top of an AI provider.
type LLMService struct {
	opts   Options
	rl     *rateLimitState
	openai *openai.Client
}

// NewLLMService returns a Service calling opts.Provider. Provider "openai"
// goes through the OpenAI client with function calling, every other
// provider is asked for a bare JSON object over HTTP.
func NewLLMService(opts Options) *LLMService {
	s := &LLMService{opts: opts, rl: &rateLimitState{}}
	if opts.Provider.ID == ProviderOpenAI {
		s.openai = newOpenAIClient(opts.Provider, opts.effectiveTimeout())
	}
	return s
}

// Translate implements Service.
func (s *LLMService) Translate(ctx context.Context, text string) (Result, error) {
	if s.opts.Verbose {
		s.opts.log("  %s: %s", s.opts.Provider.Name, truncate(text, 80))
	}

	var (
		content string
		err     error
	)
	if s.openai != nil {
		content, err = s.callOpenAI(ctx, text)
	} else {
		prov := s.opts.Provider
		prov.Timeout = s.opts.effectiveTimeout()
		content, err = callProvider(ctx, prov, s.opts.resolvedPrompt()+jsonReplyInstruction, text, s.rl, s.opts.effectiveMaxRetries(), s.opts.Verbose)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		s.opts.logError("%s request failed: %v", s.opts.Provider.Name, err)
		var se *ServiceError
		if !errors.As(err, &se) {
			err = &ServiceError{Message: "request failed", Err: err}
		}
		return Result{}, err
	}

	res, err := parseResult(content)
	if err != nil {
		return Result{}, &ServiceError{Message: "malformed response", Detail: truncate(content, 300), Err: err}
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseResult extracts a Result from model output that should be a JSON
// object, tolerating code fences and surrounding prose.
func parseResult(content string) (Result, error) {
	content = strings.TrimSpace(content)

	if m := markdownCodeBlock.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}

	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx >= 0 && endIdx > startIdx {
		content = content[startIdx : endIdx+1]
	}

	var res Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return Result{}, fmt.Errorf("failed to parse response as JSON object: %w", err)
	}
	res.Segmented = strings.TrimSpace(res.Segmented)
	res.Translation = strings.TrimSpace(res.Translation)
	res.Pinyin = strings.TrimSpace(res.Pinyin)
	if res.Translation == "" {
		return Result{}, errors.New("response has no translation")
	}
	return res, nil
}
