package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/minios-linux/zhdrill/breakdown"
	"github.com/minios-linux/zhdrill/translate"
)

type fakeService struct {
	mu    sync.Mutex
	fail  error
	calls []string
}

func (f *fakeService) Translate(ctx context.Context, text string) (translate.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.fail != nil {
		return translate.Result{}, f.fail
	}
	return translate.Result{Segmented: text, Translation: "en(" + text + ")", Pinyin: "py(" + text + ")"}, nil
}

func newTestServer(svc translate.Service) *Server {
	tr := breakdown.NewTranslator(svc, nil)
	return New(Options{
		Translator:    tr,
		Pipeline:      breakdown.NewPipeline(tr, breakdown.Options{}),
		MaxConcurrent: 2,
		Provider:      "openai",
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthCheck(t *testing.T) {
	rec := do(t, newTestServer(&fakeService{}), http.MethodGet, TestRoute, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[TestResponse](t, rec)
	if got.Status != "ok" || got.Message != "API is working" || got.Provider != "openai" {
		t.Errorf("got %+v", got)
	}
}

func TestTranslateRoute(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		rec := do(t, newTestServer(&fakeService{}), http.MethodPost, translate.PrimaryRoute, `{"text":"你好"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		got := decode[translate.Result](t, rec)
		want := translate.Result{Segmented: "你好", Translation: "en(你好)", Pinyin: "py(你好)"}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("english text skips service", func(t *testing.T) {
		svc := &fakeService{}
		rec := do(t, newTestServer(svc), http.MethodPost, translate.PrimaryRoute, `{"text":"hello"}`)
		got := decode[translate.Result](t, rec)
		if got.Translation != "hello" || got.Pinyin != "[English text]" {
			t.Errorf("got %+v", got)
		}
		if len(svc.calls) != 0 {
			t.Errorf("service called: %v", svc.calls)
		}
	})

	t.Run("missing text", func(t *testing.T) {
		rec := do(t, newTestServer(&fakeService{}), http.MethodPost, translate.PrimaryRoute, `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decode[translate.ErrorResponse](t, rec); got.Error != "Text is required" {
			t.Errorf("error = %q", got.Error)
		}
	})

	t.Run("service failure", func(t *testing.T) {
		svc := &fakeService{fail: &translate.ServiceError{StatusCode: 429, Message: "rate limited", Detail: "slow down"}}
		rec := do(t, newTestServer(svc), http.MethodPost, translate.PrimaryRoute, `{"text":"你好"}`)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
		got := decode[translate.ErrorResponse](t, rec)
		if got.Error != "rate limited" || got.Details != "slow down" {
			t.Errorf("got %+v", got)
		}
	})
}

type failingFallback struct{}

func (failingFallback) Translate(context.Context, translate.FallbackRequest) (translate.FallbackResult, error) {
	return translate.FallbackResult{}, errors.New("offline")
}

func TestFallbackRoute(t *testing.T) {
	rec := do(t, newTestServer(&fakeService{}), http.MethodPost, translate.FallbackRoute, `{"text":"你好","from":"zh","to":"en"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[translate.FallbackResult](t, rec)
	if got.Translation != "Hello" || got.Pinyin != "nǐ hǎo" {
		t.Errorf("got %+v", got)
	}

	rec = do(t, newTestServer(&fakeService{}), http.MethodPost, translate.FallbackRoute, `{"text":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text status = %d", rec.Code)
	}

	tr := breakdown.NewTranslator(&fakeService{}, nil)
	s := New(Options{Translator: tr, Pipeline: breakdown.NewPipeline(tr, breakdown.Options{}), Fallback: failingFallback{}})
	rec = do(t, s, http.MethodPost, translate.FallbackRoute, `{"text":"你好"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[translate.ErrorResponse](t, rec); got.Error != "Failed to translate text" || got.Details != "offline" {
		t.Errorf("got %+v", got)
	}
}

func TestBreakdownRoute(t *testing.T) {
	t.Run("default chunk size", func(t *testing.T) {
		rec := do(t, newTestServer(&fakeService{}), http.MethodPost, BreakdownRoute, `{"text":"你好 我 很 高兴 认识 你"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		got := decode[breakdown.Result](t, rec)
		if got.Fallback {
			t.Error("unexpected fallback")
		}
		want := []string{"你好 我 很 高兴 认识 你", "你好 我", "很 高兴", "认识 你"}
		if len(got.Sets) != len(want) {
			t.Fatalf("got %d sets: %+v", len(got.Sets), got.Sets)
		}
		for i, w := range want {
			if got.Sets[i].Mandarin != w {
				t.Errorf("set %d = %q, want %q", i, got.Sets[i].Mandarin, w)
			}
		}
	})

	t.Run("primary failure uses dictionary", func(t *testing.T) {
		svc := &fakeService{fail: &translate.ServiceError{StatusCode: 500, Message: "boom"}}
		rec := do(t, newTestServer(svc), http.MethodPost, BreakdownRoute, `{"text":"你好 我 很","chunk_size":3}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		got := decode[breakdown.Result](t, rec)
		if !got.Fallback || len(got.Sets) != 2 {
			t.Fatalf("got %+v", got)
		}
		if got.Sets[1].English != "you good I very" {
			t.Errorf("chunk english = %q", got.Sets[1].English)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		rec := do(t, newTestServer(&fakeService{}), http.MethodPost, BreakdownRoute, `{"text":"   "}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("invalid chunk size", func(t *testing.T) {
		rec := do(t, newTestServer(&fakeService{}), http.MethodPost, BreakdownRoute, `{"text":"你好","chunk_size":-1}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("both tiers fail", func(t *testing.T) {
		svc := &fakeService{fail: errors.New("down")}
		tr := breakdown.NewTranslator(svc, nil)
		s := New(Options{Translator: tr, Pipeline: breakdown.NewPipeline(tr, breakdown.Options{Fallback: failingFallback{}})})
		rec := do(t, s, http.MethodPost, BreakdownRoute, `{"text":"你好"}`)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decode[translate.ErrorResponse](t, rec); !strings.Contains(got.Details, "down") {
			t.Errorf("details = %q", got.Details)
		}
	})
}

func TestRemoteClientsAgainstServer(t *testing.T) {
	ts := httptest.NewServer(newTestServer(&fakeService{}))
	defer ts.Close()

	res, err := translate.NewRemoteService(ts.URL, "", 0).Translate(context.Background(), "谢谢")
	if err != nil {
		t.Fatalf("remote service: %v", err)
	}
	if res.Translation != "en(谢谢)" {
		t.Errorf("remote service = %+v", res)
	}

	fb, err := translate.NewRemoteFallback(ts.URL, "", 0).Translate(context.Background(), translate.FallbackRequest{Text: "谢谢"})
	if err != nil {
		t.Fatalf("remote fallback: %v", err)
	}
	if fb.Translation != "thank you" || fb.Pinyin != "xiè xiè" {
		t.Errorf("remote fallback = %+v", fb)
	}
}
