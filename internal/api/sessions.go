package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/herald/internal/chat"
	"github.com/MikeSquared-Agency/herald/internal/launch"
	"github.com/MikeSquared-Agency/herald/internal/request"
	"github.com/MikeSquared-Agency/herald/internal/session"
)

// QueryRequest is the body of a submission. It doubles as the session handoff.
type QueryRequest struct {
	Query   string          `json:"query"`
	Toggles request.Toggles `json:"toggles"`
}

type ExchangeResponse struct {
	SessionID          string `json:"session_id"`
	UserMessageID      string `json:"user_message_id,omitempty"`
	AssistantMessageID string `json:"message_id,omitempty"`
}

// MessageView is a history entry with its display content.
type MessageView struct {
	chat.Message
	Content string `json:"content"`
}

type MessagesResponse struct {
	SessionID string        `json:"session_id"`
	Streaming bool          `json:"streaming"`
	Messages  []MessageView `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, field string) {
	writeJSON(w, status, errorResponse{Error: msg, Field: field})
}

// writeDomainError maps session and launch errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var vErr *request.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Reason, vErr.Field)
	case errors.Is(err, request.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error(), "query")
	case errors.Is(err, session.ErrStreamInProgress),
		errors.Is(err, launch.ErrInFlight),
		errors.Is(err, launch.ErrNotTerminal),
		errors.Is(err, launch.ErrAlreadyLaunched):
		writeError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, launch.ErrNoActionableData), errors.Is(err, launch.ErrReplyFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "")
	case errors.Is(err, session.ErrNotFound), errors.Is(err, launch.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, err.Error(), "")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "")
	}
}

func decodeQuery(r *http.Request) (QueryRequest, error) {
	var q QueryRequest
	err := json.NewDecoder(r.Body).Decode(&q)
	if errors.Is(err, io.EOF) {
		return q, nil
	}
	return q, err
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeDomainError(w, session.ErrNotFound)
	}
	return c, ok
}

// createSession handles POST /api/v1/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "")
		return
	}

	c, ex, err := s.sessions.Create(session.Handoff{Query: q.Query, Toggles: q.Toggles})
	if err != nil {
		_ = s.sessions.Close(c.ID())
		writeDomainError(w, err)
		return
	}

	resp := ExchangeResponse{SessionID: c.ID()}
	if ex != nil {
		resp.UserMessageID = ex.UserMessageID
		resp.AssistantMessageID = ex.AssistantMessageID
	}
	writeJSON(w, http.StatusCreated, resp)
}

// closeSession handles DELETE /api/v1/sessions/{id}
func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// postMessage handles POST /api/v1/sessions/{id}/messages
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	q, err := decodeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "")
		return
	}

	ex, err := c.Submit(q.Query, q.Toggles)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ExchangeResponse{
		SessionID:          c.ID(),
		UserMessageID:      ex.UserMessageID,
		AssistantMessageID: ex.AssistantMessageID,
	})
}

// listMessages handles GET /api/v1/sessions/{id}/messages
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	msgs := c.Messages()
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{Message: m, Content: m.Content()})
	}
	writeJSON(w, http.StatusOK, MessagesResponse{
		SessionID: c.ID(),
		Streaming: c.Streaming(),
		Messages:  views,
	})
}

// launchCampaign handles POST /api/v1/sessions/{id}/messages/{messageID}/launch
func (s *Server) launchCampaign(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageID")
	if _, err := c.StartLaunch(messageID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message_id": messageID,
		"status":     string(chat.LaunchLaunching),
	})
}

// listLaunching handles GET /api/v1/sessions/{id}/launches
func (s *Server) listLaunching(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": c.ID(),
		"launching":  c.Launcher().Launching(),
	})
}

// listCampaigns handles GET /api/v1/campaigns
func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "launch audit not configured", "")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", "limit")
			return
		}
		limit = n
	}

	records, err := s.audit.ListLaunches(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list launches", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list launches", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaigns": records,
		"count":     len(records),
	})
}
