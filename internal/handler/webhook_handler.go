package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"whozere-relay/internal/service"
	"whozere-relay/internal/util"
)

const maxWebhookBody = 64 << 10

// WebhookProcessor is implemented by service.WebhookService.
type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte) (service.Result, error)
}

// WebhookHandler receives login notifications from whozere agents.
type WebhookHandler struct {
	processor WebhookProcessor
	logger    *zap.Logger
}

func NewWebhookHandler(processor WebhookProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, logger: logger}
}

func (h *WebhookHandler) RegisterRoutes(router chi.Router) {
	router.Post("/whozere", h.Receive)
}

// Receive handles POST /webhooks/whozere.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, h.logger, http.StatusRequestEntityTooLarge, err, service.MsgInvalidPayload)
			return
		}
		respondWithError(w, h.logger, http.StatusBadRequest, fmt.Errorf("failed to read body: %w", err), service.MsgInvalidPayload)
		return
	}

	result, err := h.processor.Handle(r.Context(), body)
	if err != nil {
		message := result.Message
		if message == "" {
			message = "Failed to process login event"
		}
		respondWithError(w, h.logger, getStatusCode(err), err, message)
		return
	}

	h.logger.Debug("Webhook processed",
		util.String("message", result.Message),
		util.String("record_id", result.RecordID),
	)
	respondWithJSON(w, h.logger, http.StatusOK, Response{
		Success: result.Success,
		Data:    result,
		Message: result.Message,
	})
}
