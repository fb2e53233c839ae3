// Package server exposes the Telegram webhook over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/khmerdict/dictbot/internal/bot"
	"github.com/khmerdict/dictbot/internal/logctx"
)

//go:generate mockgen -source=webhook.go -destination=../mocks/server/mock_webhook.go -package=mock_server

// MaxBodyBytes caps the size of a webhook body.
const MaxBodyBytes = 1 << 20

// LivenessText is the body of GET /.
const LivenessText = "Khmer dictionary bot is running!"

// EventHandler answers a decoded update.
type EventHandler interface {
	Handle(ctx context.Context, ev bot.Event) error
}

// WebhookHandler decodes Telegram updates and always acknowledges them.
type WebhookHandler struct {
	handler EventHandler
	timeout time.Duration
}

// NewWebhookHandler creates a WebhookHandler. Each update is handled within timeout.
func NewWebhookHandler(handler EventHandler, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{handler: handler, timeout: timeout}
}

// ServeHTTP handles one update. The response is 200 "ok" whatever happens, so
// Telegram never redelivers an update the bot could not handle.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	ctx := logctx.With(context.WithoutCancel(r.Context()), "request_id", requestID)
	logger := logctx.From(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while handling update",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
		}
		acknowledge(w)
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		logger.Warn("failed to read webhook body", "error", err)
		return
	}

	ev, err := bot.Decode(body)
	if err != nil {
		logger.Debug("dropping update", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	started := time.Now()
	if err := h.handler.Handle(ctx, ev); err != nil {
		logger.Warn("failed to handle update", "error", err, "elapsed", time.Since(started))
		return
	}
	logger.Debug("update handled", "elapsed", time.Since(started))
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

// NewMux routes GET / to the liveness text and POST webhookPath to the webhook.
func NewMux(webhook http.Handler, webhookPath string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, LivenessText)
	})
	mux.Handle("POST "+webhookPath, webhook)
	return mux
}

// New creates the HTTP server. Cleartext HTTP/2 is accepted alongside HTTP/1.1.
func New(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ListenAndServe runs srv until it is shut down.
func ListenAndServe(srv *http.Server) error {
	slog.Default().Info("starting server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("srv.ListenAndServe > %w", err)
	}
	return nil
}
