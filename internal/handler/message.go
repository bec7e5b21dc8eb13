package handler

import (
	"errors"
	"net/http"

	"chatline/internal/broker"
	"chatline/internal/gateway"
	"chatline/internal/model"
)

// maxRequestBody は POST ボディの上限 (1MB)
const maxRequestBody = 1 << 20

type createMessageBody struct {
	model.SendMessageRequest
	// User is the field name older clients send instead of author.
	User string `json:"user,omitempty"`
}

// CreateMessage handles POST /messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	log := h.Log.With().Str("route", "POST /messages").Str("remote", r.RemoteAddr).Logger()
	log.Debug().Msg("[POST /messages] Request received")

	if h.limiter != nil && !h.limiter.Allow() {
		log.Warn().Msg("[POST /messages] ❌ Rate limited")
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var body createMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.Warn().Err(err).Msg("[POST /messages] ❌ Bad Request")
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Author == "" {
		body.Author = body.User
	}

	msg, err := h.Gateway.SendMessage(r.Context(), body.Author, body.Content)
	if err != nil {
		if errors.Is(err, gateway.ErrValidation) {
			log.Warn().Err(err).Msg("[POST /messages] ❌ Bad Request")
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("[POST /messages] ❌ Failed to create message")
		writeError(w, http.StatusInternalServerError, "Failed to create message")
		return
	}

	log.Info().Str("id", msg.ID).Str("author", msg.Author).Msg("[POST /messages] ✅ Created message")
	writeJSON(w, http.StatusCreated, msg)
}

// GetMessages handles GET /messages
// 全履歴を作成順に返す
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgList := h.Gateway.ListMessages()

	h.Log.Debug().Str("remote", r.RemoteAddr).Int("count", len(msgList)).Msg("[GET /messages] ✅ Returned messages")
	writeJSON(w, http.StatusOK, msgList)
}

type healthResponse struct {
	Status      string         `json:"status"`
	Messages    int            `json:"messages"`
	Subscribers int            `json:"subscribers"`
	Connections int            `json:"connections"`
	Topics      map[string]int `json:"topics"`
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Messages:    len(h.Gateway.ListMessages()),
		Subscribers: h.Broker.Subscribers(broker.TopicMessageCreated),
		Connections: h.Connections(),
		Topics:      h.Broker.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
