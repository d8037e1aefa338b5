package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ent0n29/skilldash/internal/extraction"
	"github.com/ent0n29/skilldash/internal/skill"
)

type chatRequest struct {
	Message string             `json:"message"`
	History *[]extraction.Turn `json:"history"`
}

type chatResponse struct {
	Message   string        `json:"message"`
	SkillData *skill.Update `json:"skillData"`
}

type voiceParseRequest struct {
	Transcript string `json:"transcript"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat extraction not configured")
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "Message is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	chatReq := extraction.ChatRequest{ClientKey: clientKey(r), Message: req.Message}
	if req.History == nil {
		// Message problems are reported before a missing history.
		if err := chatReq.Validate(); err != nil {
			s.respondExtractionError(w, r, err, "Failed to process chat")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid history")
		return
	}
	chatReq.History = *req.History

	res, err := s.chat.Extract(r.Context(), chatReq)
	if err != nil {
		s.respondExtractionError(w, r, err, "Failed to process chat")
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Message: res.Reply, SkillData: res.Update})
}

func (s *Server) handleVoiceParse(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice extraction not configured")
		return
	}
	var req voiceParseRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	draft, err := s.voice.Extract(r.Context(), req.Transcript)
	if err != nil {
		s.respondExtractionError(w, r, err, "Failed to parse voice input")
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

// respondExtractionError maps the extraction error taxonomy onto HTTP.
// Upstream and payload failures get a generic message.
func (s *Server) respondExtractionError(w http.ResponseWriter, r *http.Request, err error, generic string) {
	var ve *extraction.ValidationError
	var re *extraction.RateLimitError
	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, "invalid_request", ve.Error())
	case errors.As(err, &re):
		if secs := int(s.cfg.RateLimitWindow.Seconds()); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		respondError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later.")
	default:
		s.requestLogger(r).Error("extraction failed", "error", err)
		respondError(w, http.StatusInternalServerError, "extraction_failed", generic)
	}
}
