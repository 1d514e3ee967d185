package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"data-sculptor/application"
	"data-sculptor/domain"
)

var errServiceDisabled = errors.New("service is not configured")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: errServiceDisabled.Error()})
		return
	}
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	deep := true
	if req.UseDeepAnalysis != nil {
		deep = *req.UseDeepAnalysis
	}
	in := application.FeedbackRequest{
		Code:       req.CurrentCode,
		LineOffset: req.CellCodeOffset,
		ProfileID:  req.ProfileIndex,
		Deep:       deep,
	}
	if req.ProfileIndex != "" {
		if req.SectionIndex == nil {
			writeError(w, errMissing("section_index"))
			return
		}
		in.SectionIndex = *req.SectionIndex
	}

	snap, err := s.feedback.RequestFeedback(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{
		NonLocalizedFeedback: snap.Summary,
		LocalizedFeedback:    toWire(snap.Warnings),
	})
}

func (s *Server) handleLocalize(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: errServiceDisabled.Error()})
		return
	}
	var req localizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ws, err := s.feedback.LocalizeWarnings(r.Context(), application.LocalizeRequest{
		Code:       req.CurrentCode,
		Warnings:   req.Warnings,
		LineOffset: req.CellCodeOffset,
		Deep:       req.UseDeepAnalysis,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, localizeResponse{LocalizedFeedback: toWire(ws)})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: errServiceDisabled.Error()})
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	// An explicit empty list with no summary means the caller shows nothing.
	cleared := req.CurrentLocalizedFeedback != nil && len(req.CurrentLocalizedFeedback) == 0 &&
		strings.TrimSpace(req.CurrentNonLocalizedFeedback) == ""
	reply, err := s.chat.Reply(r.Context(), application.ChatRequest{
		ConversationID:  req.ConversationID,
		UserID:          req.UserID,
		Message:         req.Message,
		Code:            req.CurrentCode,
		LineOffset:      req.CellCodeOffset,
		Summary:         req.CurrentNonLocalizedFeedback,
		Warnings:        fromWire(req.CurrentLocalizedFeedback),
		FeedbackCleared: cleared,
		Deep:            req.UseDeepAnalysis,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Message: reply})
}

func errMissing(field string) error {
	return fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
}
