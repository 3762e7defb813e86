// Package server exposes the translation services and the phrase
// breakdown over HTTP.
//
// Routes:
//
//	GET  /api/test               health check
//	POST /api/translate-openai   primary translation {text}
//	POST /api/translate-alt      fallback translation {text, from, to}
//	POST /api/breakdown          phrase breakdown {text, chunk_size}
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/semaphore"

	"github.com/minios-linux/zhdrill/breakdown"
	"github.com/minios-linux/zhdrill/translate"
)

// Routes not shared with the translate package's remote clients.
const (
	TestRoute      = "/api/test"
	BreakdownRoute = "/api/breakdown"
)

const textRequired = "Text is required"

// Options configures a Server.
type Options struct {
	// Translator answers the primary route.
	Translator *breakdown.Translator
	// Fallback answers the fallback route.
	Fallback translate.FallbackService
	// Pipeline answers the breakdown route.
	Pipeline *breakdown.Pipeline
	// ChunkSize is used when a breakdown request does not set one.
	ChunkSize int
	// MaxConcurrent bounds the number of breakdowns running at once.
	MaxConcurrent int
	// Provider is reported by the health check.
	Provider string
	// OnLog emits request and lifecycle messages.
	OnLog func(format string, args ...any)
	// OnError emits handler failures.
	OnError func(format string, args ...any)
	// Verbose enables request logging.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// Server is the zhdrill HTTP API.
type Server struct {
	opts Options
	sem  *semaphore.Weighted
	e    *echo.Echo
}

// New builds a Server and registers its routes.
func New(opts Options) *Server {
	if opts.Fallback == nil {
		opts.Fallback = translate.DictionaryFallback{}
	}
	if opts.ChunkSize < 1 {
		opts.ChunkSize = breakdown.DefaultChunkSize
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}

	s := &Server{
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		e:    echo.New(),
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.Recover())
	if opts.Verbose {
		s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogMethod:  true,
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			LogError:   true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				if v.Error != nil {
					s.opts.log("%s %s %d %s: %v", v.Method, v.URI, v.Status, v.Latency, v.Error)
				} else {
					s.opts.log("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
				}
				return nil
			},
		}))
	}

	s.e.GET(TestRoute, s.handleTest)
	s.e.POST(translate.PrimaryRoute, s.handleTranslate)
	s.e.POST(translate.FallbackRoute, s.handleFallback)
	s.e.POST(BreakdownRoute, s.handleBreakdown)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.e.Start(addr)
	}()
	s.opts.log("Listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// TestResponse is the health check body.
type TestResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
}

func (s *Server) handleTest(c echo.Context) error {
	return c.JSON(http.StatusOK, TestResponse{
		Status:   "ok",
		Message:  "API is working",
		Provider: s.opts.Provider,
	})
}

type translateRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTranslate(c echo.Context) error {
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, translate.ErrorResponse{Error: textRequired})
	}

	ws, err := s.opts.Translator.Translate(c.Request().Context(), req.Text)
	if err != nil {
		s.opts.logError("Translation of %q failed: %v", req.Text, err)
		resp := translate.ErrorResponse{Error: err.Error()}
		var se *translate.ServiceError
		if errors.As(err, &se) {
			resp = translate.ErrorResponse{Error: se.Message, Details: se.Detail}
		}
		return c.JSON(http.StatusInternalServerError, resp)
	}

	return c.JSON(http.StatusOK, translate.Result{
		Segmented:   ws.Segmented,
		Translation: ws.English,
		Pinyin:      ws.Pinyin,
	})
}

type fallbackRequest struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleFallback(c echo.Context) error {
	var req fallbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, translate.ErrorResponse{Error: textRequired})
	}

	res, err := s.opts.Fallback.Translate(c.Request().Context(), translate.FallbackRequest{
		Text: req.Text,
		From: req.From,
		To:   req.To,
	})
	if err != nil {
		s.opts.logError("Fallback translation of %q failed: %v", req.Text, err)
		return c.JSON(http.StatusInternalServerError, translate.ErrorResponse{
			Error:   "Failed to translate text",
			Details: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, res)
}

type breakdownRequest struct {
	Text      string `json:"text"`
	ChunkSize int    `json:"chunk_size"`
}

func (s *Server) handleBreakdown(c echo.Context) error {
	var req breakdownRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = s.opts.ChunkSize
	}

	ctx := c.Request().Context()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	}
	defer s.sem.Release(1)

	res, err := s.opts.Pipeline.Breakdown(ctx, req.Text, req.ChunkSize)
	switch {
	case errors.Is(err, breakdown.ErrEmptyInput):
		return c.JSON(http.StatusBadRequest, translate.ErrorResponse{Error: textRequired})
	case errors.Is(err, breakdown.ErrInvalidChunkSize):
		return c.JSON(http.StatusBadRequest, translate.ErrorResponse{Error: err.Error()})
	case err != nil:
		s.opts.logError("Breakdown of %q failed: %v", req.Text, err)
		return c.JSON(http.StatusInternalServerError, translate.ErrorResponse{
			Error:   "Failed to translate text",
			Details: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, res)
}
