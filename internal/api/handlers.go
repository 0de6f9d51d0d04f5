// Package api provides the endpoint handlers for the GutCheck HTTP surface.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gutcheck/gutcheck/internal/flow"
	"github.com/gutcheck/gutcheck/internal/helpline"
	"github.com/gutcheck/gutcheck/internal/models"
)

// chatHandler handles POST /chat: one user turn in, one finalized response out.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("chatHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("chatHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("chatHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	// A missing conversation ID starts a fresh conversation.
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
		slog.Debug("chatHandler minted conversation ID", "conversationID", conversationID)
	}

	turn := flow.TurnRequest{
		ConversationID: conversationID,
		UserID:         req.UserID,
		Message:        req.Message,
	}
	if req.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		switch {
		case err != nil:
			// An undecodable attachment degrades to a text-only turn rather
			// than failing it.
			slog.Warn("chatHandler attachment decode failed, continuing text-only", "error", err, "conversationID", conversationID)
			turn.ImageFailed = true
		case len(data) > models.MaxImageBytes:
			slog.Warn("chatHandler attachment too large", "bytes", len(data), "conversationID", conversationID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrImageTooLarge.Error()))
			return
		default:
			turn.ImageData = data
			turn.ImageMediaType = req.ImageMediaType
		}
	}

	resp, err := s.flow.ProcessTurn(r.Context(), turn)
	if err != nil {
		if errors.Is(err, models.ErrTurnInProgress) {
			slog.Warn("chatHandler turn already in progress", "conversationID", conversationID)
			writeJSONResponse(w, http.StatusConflict, models.Error("A turn is already in progress for this conversation"))
			return
		}
		slog.Error("chatHandler turn failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	slog.Info("chatHandler turn processed", "conversationID", conversationID, "nextStage", resp.NextStage)
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// conversationsHandler routes /conversations/{id} and /conversations/{id}/reset.
func (s *Server) conversationsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("conversationsHandler invoked", "method", r.Method, "path", r.URL.Path)

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/conversations/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.getConversationHandler(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "reset":
		s.resetConversationHandler(w, r, parts[0])
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown conversation endpoint"))
	}
}

// getConversationHandler handles GET /conversations/{id}: committed history
// plus current state, for resume-from-history.
func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request, conversationID string) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	snapshot, err := s.flow.Snapshot(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, models.ErrConversationNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
			return
		}
		slog.Error("getConversationHandler failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}

	slog.Debug("getConversationHandler succeeded", "conversationID", conversationID, "messages", len(snapshot.Messages))
	writeJSONResponse(w, http.StatusOK, models.Success(snapshot))
}

// resetConversationHandler handles POST /conversations/{id}/reset: destroys
// state and history so the next turn starts a fresh session.
func (s *Server) resetConversationHandler(w http.ResponseWriter, r *http.Request, conversationID string) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	if err := s.flow.Reset(r.Context(), conversationID); err != nil {
		slog.Error("resetConversationHandler failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset conversation"))
		return
	}

	slog.Info("resetConversationHandler succeeded", "conversationID", conversationID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation reset", nil))
}

// helplinesHandler handles GET /helplines?region=&q=. With q it returns the
// scored matches for that text; without it, the full directory filtered to
// the region.
func (s *Server) helplinesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("helplinesHandler invoked", "method", r.Method)
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	region := r.URL.Query().Get("region")
	query := r.URL.Query().Get("q")

	var records []models.HelplineRecord
	if query != "" {
		records = helpline.GetRelevantHelplines(query, region)
	} else {
		for _, rec := range helpline.All() {
			if rec.Region != "" && region != "" && !strings.EqualFold(rec.Region, region) {
				continue
			}
			records = append(records, rec)
		}
	}

	slog.Debug("helplinesHandler succeeded", "count", len(records), "region", region, "scored", query != "")
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
