package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// maxChatBody caps /chat request bodies.
const maxChatBody = 64 << 10

// chatRequest is the body of POST /chat.
type chatRequest struct {
	From    string `json:"from"`
	Message string `json:"message"`
	// ID is optional; repeating an ID exercises de-duplication.
	ID string `json:"id,omitempty"`
	// Reset clears the session before the message is processed.
	Reset bool `json:"reset,omitempty"`
}

// chatResult is the result payload of POST /chat.
type chatResult struct {
	Phone      string            `json:"phone"`
	SessionID  string            `json:"session_id,omitempty"`
	Flow       string            `json:"flow,omitempty"`
	Intent     string            `json:"intent,omitempty"`
	Entities   map[string]string `json:"entities,omitempty"`
	Confidence float64           `json:"confidence"`
	Duplicate  bool              `json:"duplicate,omitempty"`
	Reply      *models.Reply     `json:"reply"`
}

// chatHandler runs one turn synchronously and returns the reply instead of sending it (POST /chat).
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: message")
		return
	}
	phone, err := s.channel.ValidateAndCanonicalizeRecipient(req.From)
	if err != nil {
		slog.Warn("Server.chatHandler: sender validation failed", "error", err, "from", req.From)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Reset {
		if err := s.sessions.Reset(r.Context(), phone); err != nil {
			slog.Error("Server.chatHandler: session reset failed", "error", err, "phone", phone)
			writeError(w, http.StatusInternalServerError, "Failed to reset session")
			return
		}
	}

	turn, err := s.handler.Respond(r.Context(), models.InboundMessage{
		ID:   req.ID,
		From: phone,
		Body: req.Message,
		Kind: models.MessageKindText,
	})
	if err != nil {
		slog.Error("Server.chatHandler: turn failed", "error", err, "phone", phone)
		writeError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(chatResult{
		Phone:      turn.Phone,
		SessionID:  turn.SessionID,
		Flow:       string(turn.Flow),
		Intent:     string(turn.Intent),
		Entities:   turn.Entities,
		Confidence: turn.Confidence,
		Duplicate:  turn.Duplicate,
		Reply:      turn.Reply,
	}))
}

// healthHandler pings the database and, when it has one, the session backend (GET /health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), DefaultHealthTimeout)
	defer cancel()

	checks := map[string]string{"database": "ok", "channel": s.channel.Name()}
	healthy := true
	if err := s.st.Ping(ctx); err != nil {
		slog.Error("Server.healthHandler: database ping failed", "error", err)
		checks["database"] = err.Error()
		healthy = false
	}
	if p, ok := s.sessions.Store().(pinger); ok {
		checks["sessions"] = "ok"
		if err := p.Ping(ctx); err != nil {
			slog.Error("Server.healthHandler: session store ping failed", "error", err)
			checks["sessions"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: "unhealthy",
			Result:  checks,
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(checks))
}
