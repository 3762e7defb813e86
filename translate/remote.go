package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Routes served by a zhdrill server.
const (
	PrimaryRoute  = "/api/translate-openai"
	FallbackRoute = "/api/translate-alt"
)

// ErrorResponse is the JSON body a zhdrill server returns on failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// remoteClient posts JSON to a zhdrill server.
type remoteClient struct {
	baseURL string
	client  *http.Client
}

func newRemoteClient(baseURL, proxy string, timeout time.Duration) remoteClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return remoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  makeHTTPClient(proxy, timeout),
	}
}

func (c remoteClient) post(ctx context.Context, route string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ServiceError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ServiceError{StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			return &ServiceError{StatusCode: resp.StatusCode, Message: e.Error, Detail: e.Details}
		}
		return &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("server returned status %d", resp.StatusCode),
			Detail:     truncate(string(respBody), 500),
		}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &ServiceError{StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

// RemoteService is a Service backed by another zhdrill server.
type RemoteService struct {
	c remoteClient
}

// NewRemoteService returns a Service posting to baseURL + PrimaryRoute.
func NewRemoteService(baseURL, proxy string, timeout time.Duration) *RemoteService {
	return &RemoteService{c: newRemoteClient(baseURL, proxy, timeout)}
}

// Translate implements Service.
func (s *RemoteService) Translate(ctx context.Context, text string) (Result, error) {
	var res Result
	if err := s.c.post(ctx, PrimaryRoute, map[string]string{"text": text}, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// RemoteFallback is a FallbackService backed by another zhdrill server.
type RemoteFallback struct {
	c remoteClient
}

// NewRemoteFallback returns a FallbackService posting to baseURL + FallbackRoute.
func NewRemoteFallback(baseURL, proxy string, timeout time.Duration) *RemoteFallback {
	return &RemoteFallback{c: newRemoteClient(baseURL, proxy, timeout)}
}

// Translate implements FallbackService.
func (f *RemoteFallback) Translate(ctx context.Context, req FallbackRequest) (FallbackResult, error) {
	in := struct {
		Text string `json:"text"`
		From string `json:"from,omitempty"`
		To   string `json:"to,omitempty"`
	}{req.Text, req.From, req.To}
	var res FallbackResult
	if err := f.c.post(ctx, FallbackRoute, in, &res); err != nil {
		return FallbackResult{}, err
	}
	return res, nil
}
