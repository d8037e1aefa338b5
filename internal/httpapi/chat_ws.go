package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/skilldash/internal/extraction"
	"github.com/ent0n29/skilldash/internal/protocol"
	"github.com/ent0n29/skilldash/internal/session"
)

const (
	defaultWSReadTimeout = 10 * time.Minute
	wsWriteWait          = 10 * time.Second
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat sessions not configured")
		return
	}
	var req session.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	uid := strings.TrimSpace(req.UserID)
	if uid == "" {
		uid = userID(r)
	}
	sess := s.sessions.Create(uid)
	respondJSON(w, http.StatusCreated, s.sessions.Snapshot(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat sessions not configured")
		return
	}
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.sessions.Snapshot(sess))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat sessions not configured")
		return
	}
	sess, err := s.sessions.End(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.sessions.Snapshot(sess))
}

// handleChatWS serves a chat conversation over a websocket. Turns are
// processed one at a time against the session's server-side history. A
// connection without session_id gets a session that ends with it.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil || s.chat == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat sessions not configured")
		return
	}

	var sess *session.Session
	ephemeral := false
	if id := strings.TrimSpace(r.URL.Query().Get("session_id")); id != "" {
		got, err := s.sessions.Get(id)
		if err != nil {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		if got.Status != session.StatusActive {
			respondError(w, http.StatusGone, "session_ended", "session has ended")
			return
		}
		sess = got
	} else {
		sess = s.sessions.Create(userID(r))
		ephemeral = true
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := s.requestLogger(r).With("session_id", sess.ID)
	if s.metrics != nil {
		s.metrics.ChatConnections.Inc()
		defer s.metrics.ChatConnections.Dec()
	}
	log.Info("chat websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 16)
	key := clientKey(r)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		defer close(outbound)
		s.runChatConnection(ctx, log, sess.ID, key, inbound, outbound)
	}()

	readTimeout := s.wsReadTimeout()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Pings keep idle browsers answering with pongs inside readTimeout.
		ping := time.NewTicker(readTimeout / 2)
		defer ping.Stop()
		for {
			select {
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				if ctx.Err() != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					log.Warn("websocket write failed", "error", err)
					cancel()
					continue
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			case <-ping.C:
				if ctx.Err() != nil {
					continue
				}
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					log.Warn("websocket ping failed", "error", err)
					cancel()
				}
			}
		}
	}()

	outbound <- protocol.SessionReady{Type: protocol.TypeSessionReady, SessionID: sess.ID, MaxTurns: extraction.MaxHistoryTurns}

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_ = s.sessions.Touch(sess.ID)
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			parsed = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Detail:    err.Error(),
			}
		} else if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-workerDone
	<-writerDone
	if ephemeral {
		_, _ = s.sessions.End(sess.ID)
	}
	log.Info("chat websocket disconnected")
}

// runChatConnection handles inbound frames in order until inbound closes.
func (s *Server) runChatConnection(ctx context.Context, log *slog.Logger, sessionID, clientKey string, inbound <-chan any, outbound chan<- any) {
	send := func(v any) {
		select {
		case outbound <- v:
		case <-ctx.Done():
		}
	}

	for msg := range inbound {
		if ctx.Err() != nil {
			continue
		}
		switch m := msg.(type) {
		case protocol.ErrorEvent:
			send(m)
		case protocol.ChatReset:
			if err := s.sessions.Reset(sessionID); err != nil {
				send(sessionError(sessionID, "", err))
				continue
			}
			send(protocol.SessionReady{Type: protocol.TypeSessionReady, SessionID: sessionID, MaxTurns: extraction.MaxHistoryTurns})
		case protocol.ChatTurn:
			sess, err := s.sessions.Get(sessionID)
			if err != nil {
				send(sessionError(sessionID, m.TurnID, err))
				continue
			}
			res, err := s.chat.Extract(ctx, extraction.ChatRequest{
				ClientKey: clientKey,
				Message:   m.Message,
				History:   sess.History,
			})
			if err != nil {
				if !extraction.IsClientError(err) {
					log.Error("chat turn failed", "turn_id", m.TurnID, "error", err)
				}
				send(extractionError(sessionID, m.TurnID, err))
				continue
			}
			sess, err = s.sessions.RecordExchange(sessionID, m.Message, res.Reply, res.Update)
			if err != nil {
				send(sessionError(sessionID, m.TurnID, err))
				continue
			}
			send(protocol.ChatReply{
				Type:      protocol.TypeChatReply,
				SessionID: sessionID,
				TurnID:    m.TurnID,
				Message:   res.Reply,
				SkillData: res.Update,
				Draft:     sess.Draft,
			})
		case protocol.VoiceTranscript:
			if s.voice == nil {
				send(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, SessionID: sessionID, TurnID: m.TurnID, Code: "unavailable", Detail: "voice extraction not configured"})
				continue
			}
			d, err := s.voice.Extract(ctx, m.Transcript)
			if err != nil {
				if !extraction.IsClientError(err) {
					log.Error("voice transcript failed", "turn_id", m.TurnID, "error", err)
				}
				send(extractionError(sessionID, m.TurnID, err))
				continue
			}
			if err := s.sessions.SetDraft(sessionID, d); err != nil {
				send(sessionError(sessionID, m.TurnID, err))
				continue
			}
			send(protocol.VoiceDraft{Type: protocol.TypeVoiceDraft, SessionID: sessionID, TurnID: m.TurnID, Draft: d})
		}
	}
}

func (s *Server) wsReadTimeout() time.Duration {
	if s.cfg.WSReadTimeout > 0 {
		return s.cfg.WSReadTimeout
	}
	return defaultWSReadTimeout
}

func extractionError(sessionID, turnID string, err error) protocol.ErrorEvent {
	ev := protocol.ErrorEvent{Type: protocol.TypeErrorEvent, SessionID: sessionID, TurnID: turnID}
	var ve *extraction.ValidationError
	var re *extraction.RateLimitError
	var te *extraction.TransientUpstreamError
	switch {
	case errors.As(err, &ve):
		ev.Code, ev.Detail = "invalid_request", ve.Error()
	case errors.As(err, &re):
		ev.Code, ev.Detail, ev.Retryable = "rate_limited", re.Error(), true
	case errors.As(err, &te):
		ev.Code, ev.Detail, ev.Retryable = "extraction_failed", "Failed to process chat", true
	default:
		ev.Code, ev.Detail = "extraction_failed", "Failed to process chat"
	}
	return ev
}

func sessionError(sessionID, turnID string, err error) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		TurnID:    turnID,
		Code:      "session_unavailable",
		Detail:    err.Error(),
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatTurn:
		return m.Type, true
	case protocol.ChatReset:
		return m.Type, true
	case protocol.VoiceTranscript:
		return m.Type, true
	case protocol.SessionReady:
		return m.Type, true
	case protocol.ChatReply:
		return m.Type, true
	case protocol.VoiceDraft:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
