package server

import (
	"net/http"
	"time"

	"github.com/neuralinbox/neuralinbox/internal/types"
)

type settingsResponse struct {
	Timezone       string         `json:"timezone"`
	Language       string         `json:"language"`
	Settings       map[string]any `json:"settings"`
	OnboardingDone bool           `json:"onboarding_done"`
}

func settingsFromUser(user *types.User) settingsResponse {
	tz := user.Timezone
	if tz == "" {
		tz = types.DefaultTimezone
	}
	lang := user.Language
	if lang == "" {
		lang = "ru"
	}
	settings := user.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	if _, ok := settings["notifications"]; !ok {
		settings["notifications"] = map[string]any{"enabled": true}
	}
	return settingsResponse{
		Timezone:       tz,
		Language:       lang,
		Settings:       settings,
		OnboardingDone: user.OnboardingDone,
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetOrCreateUser(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, settingsFromUser(user))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	var body struct {
		Timezone      *string        `json:"timezone"`
		Language      *string        `json:"language"`
		Notifications map[string]any `json:"notifications"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.Timezone != nil {
		if _, err := time.LoadLocation(*body.Timezone); err != nil || *body.Timezone == "" {
			writeError(w, http.StatusBadRequest, "Invalid timezone: "+*body.Timezone)
			return
		}
	}

	var settings map[string]any
	if body.Notifications != nil {
		user, err := s.store.GetOrCreateUser(r.Context(), uid)
		if err != nil {
			writeStoreError(w, err, "User not found")
			return
		}
		settings = user.Settings
		if settings == nil {
			settings = map[string]any{}
		}
		settings["notifications"] = body.Notifications
	}

	user, err := s.store.UpdateUser(r.Context(), uid, body.Timezone, body.Language, settings, nil)
	if err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, settingsFromUser(user))
}

func (s *Server) handleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	done := true
	if _, err := s.store.UpdateUser(r.Context(), userID(r), nil, nil, nil, &done); err != nil {
		writeStoreError(w, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Onboarding completed"})
}
