// Package api provides profile management handlers for GutCheck endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gutcheck/gutcheck/internal/models"
)

// profilesHandler routes /profiles/{id} for reading and upserting the user
// profile that personalizes responses.
func (s *Server) profilesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("profilesHandler invoked", "method", r.Method, "path", r.URL.Path)

	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/profiles/"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown profile endpoint"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getProfileHandler(w, r, userID)
	case http.MethodPut:
		s.putProfileHandler(w, r, userID)
	default:
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// getProfileHandler handles GET /profiles/{id}.
func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request, userID string) {
	profile, err := s.st.GetProfile(userID)
	if err != nil {
		slog.Error("getProfileHandler failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load profile"))
		return
	}
	if profile == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Profile not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

// putProfileHandler handles PUT /profiles/{id}: full upsert. The path ID is
// authoritative over any user_id in the body.
func (s *Server) putProfileHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var profile models.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		slog.Warn("putProfileHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	profile.UserID = userID

	if err := s.st.SaveProfile(profile); err != nil {
		slog.Error("putProfileHandler save failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save profile"))
		return
	}

	slog.Info("putProfileHandler profile saved", "userID", userID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Profile saved", profile))
}
