package translate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// DefaultOpenAIModel is the model used when none is configured.
const DefaultOpenAIModel = openai.GPT3Dot5Turbo

// processTextFunction is the structured-output contract: the model must
// call it with all three fields filled in.
const processTextFunction = "process_chinese_text"

var processTextTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        processTextFunction,
		Description: "Process Chinese text to get segmentation, translation, and pinyin",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"segmented": {
					Type:        jsonschema.String,
					Description: "The Chinese text with spaces between words",
				},
				"translation": {
					Type:        jsonschema.String,
					Description: "English translation of the text",
				},
				"pinyin": {
					Type:        jsonschema.String,
					Description: "Pinyin romanization of the Chinese text",
				},
			},
			Required: []string{"segmented", "translation", "pinyin"},
		},
	},
}

func newOpenAIClient(prov Provider, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(prov.APIKey)
	if prov.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(prov.BaseURL, "/")
	}
	cfg.HTTPClient = makeHTTPClient(prov.Proxy, timeout)
	return openai.NewClientWithConfig(cfg)
}

// callOpenAI forces a process_chinese_text call and returns its JSON
// arguments. Retry policy mirrors callHTTPProvider.
func (s *LLMService) callOpenAI(ctx context.Context, text string) (string, error) {
	model := s.opts.Provider.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.opts.resolvedPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: defaultTemperature,
		Tools:       []openai.Tool{processTextTool},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: processTextFunction},
		},
	}

	maxRetries := s.opts.effectiveMaxRetries()
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := s.rl.waitIfPaused(ctx); err != nil {
			return "", err
		}
		if s.opts.Verbose {
			log.Printf("[DEBUG] %s attempt %d: chat completion (%s)", s.opts.Provider.Name, attempt+1, model)
		}

		resp, err := s.openai.CreateChatCompletion(ctx, req)
		if err == nil {
			return toolArguments(resp)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		status := openAIStatus(err)
		retryable := status == 0 || status >= 500 || status == http.StatusTooManyRequests
		if !retryable || attempt == maxRetries {
			return "", openAIServiceError(status, err)
		}
		if status == http.StatusTooManyRequests {
			s.rl.pause(time.Duration(attempt+1) * 5 * backoffUnit)
		}
		if err := backoff(ctx, attempt); err != nil {
			return "", err
		}
	}
	return "", &ServiceError{Message: fmt.Sprintf("exhausted all %d retries", maxRetries)}
}

// toolArguments returns the arguments of the forced function call, or the
// message content when the model answered in plain text.
func toolArguments(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", &ServiceError{Message: "response has no choices"}
	}
	msg := resp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Function.Name == processTextFunction {
			return call.Function.Arguments, nil
		}
	}
	if msg.Content != "" {
		return msg.Content, nil
	}
	return "", &ServiceError{Message: "model did not call " + processTextFunction}
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func openAIServiceError(status int, err error) *ServiceError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ServiceError{StatusCode: status, Message: "OpenAI API error", Detail: apiErr.Message}
	}
	if status != 0 {
		return &ServiceError{StatusCode: status, Message: fmt.Sprintf("API returned status %d", status), Err: err}
	}
	return &ServiceError{Message: "API request failed", Err: err}
}
