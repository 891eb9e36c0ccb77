package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/neuralinbox/neuralinbox/internal/tools"
)

type assistantResponse struct {
	Reply             string `json:"reply"`
	NeedsConfirmation bool   `json:"needs_confirmation"`
	Token             string `json:"token,omitempty"`
}

func assistantResponseFrom(result *tools.LoopResult) assistantResponse {
	return assistantResponse{
		Reply:             result.Reply,
		NeedsConfirmation: result.NeedsConfirmation,
		Token:             result.Token,
	}
}

func (s *Server) handleAssistantMessage(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "Assistant is not configured")
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.Text = strings.TrimSpace(body.Text)
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}

	result, err := s.assistant.Run(r.Context(), userID(r), body.Text)
	if err != nil {
		log.Printf("assistant run failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Assistant request failed")
		return
	}
	writeJSON(w, http.StatusOK, assistantResponseFrom(result))
}

func (s *Server) handleAssistantConfirm(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "Assistant is not configured")
		return
	}

	var body struct {
		Approved bool `json:"approved"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.assistant.Resume(r.Context(), userID(r), body.Approved)
	if err != nil {
		log.Printf("assistant resume failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Assistant request failed")
		return
	}
	writeJSON(w, http.StatusOK, assistantResponseFrom(result))
}
