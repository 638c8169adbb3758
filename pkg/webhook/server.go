// Package webhook is the HTTP transport: it validates and filters
// platform events and enqueues the surviving messages for the engine.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/gestao-presente/orquestra/pkg/bus"
	"github.com/gestao-presente/orquestra/pkg/directory"
	"github.com/gestao-presente/orquestra/pkg/textutil"
)

const maxPayloadBytes = 1 << 20

type Server struct {
	bus       *bus.MessageBus
	dir       *directory.Directory
	lister    directory.TeamLister
	token     string
	accountID string
	log       *zap.Logger
	httpSrv   *http.Server
}

func NewServer(addr string, mb *bus.MessageBus, dir *directory.Directory, lister directory.TeamLister, token, accountID string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		bus:       mb,
		dir:       dir,
		lister:    lister,
		token:     token,
		accountID: accountID,
		log:       log.Named("webhook"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/webhook", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /teams", s.handleTeams)
	mux.HandleFunc("POST /reload-teams", s.handleReloadTeams)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe blocks until the server stops. http.ErrServerClosed
// is translated to nil.
func (s *Server) ListenAndServe() error {
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.URL.Query().Get("token") != s.token {
		s.log.Warn("webhook rejected, invalid token", zap.String("remote", r.RemoteAddr))
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "invalid token"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil || !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	payload := gjson.ParseBytes(body)

	msg, ok := s.extract(payload)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ignored": true})
		return
	}

	if err := s.bus.PublishInbound(r.Context(), msg); err != nil {
		s.log.Warn("enqueue failed", zap.Error(err), zap.Int("conversation_id", msg.ConversationID))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "queue unavailable"})
		return
	}

	s.log.Info("message enqueued",
		zap.Int("conversation_id", msg.ConversationID),
		zap.String("message_id", msg.MessageID),
		zap.String("sender", msg.SenderName),
	)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// extract filters the event down to a workable inbound message. Only
// public incoming message_created events with content and a resolvable
// conversation survive.
func (s *Server) extract(payload gjson.Result) (bus.InboundMessage, bool) {
	if payload.Get("event").String() != "message_created" {
		return bus.InboundMessage{}, false
	}
	if payload.Get("message_type").String() != "incoming" {
		return bus.InboundMessage{}, false
	}
	if payload.Get("private").Bool() {
		return bus.InboundMessage{}, false
	}

	// The platform sometimes wraps text in HTML ("<p>Bom dia</p>").
	content := textutil.StripHTML(payload.Get("content").String())

	conversationID := int(payload.Get("conversation.id").Int())
	if conversationID == 0 {
		conversationID = int(payload.Get("conversation_id").Int())
	}

	accountID := payload.Get("account.id").String()
	if accountID == "" {
		accountID = s.accountID
	}

	if content == "" || conversationID == 0 || accountID == "" {
		s.log.Debug("event ignored, missing content or conversation",
			zap.Int("conversation_id", conversationID),
		)
		return bus.InboundMessage{}, false
	}

	var labels []string
	payload.Get("conversation.labels").ForEach(func(_, label gjson.Result) bool {
		labels = append(labels, label.String())
		return true
	})

	return bus.InboundMessage{
		ConversationID:   conversationID,
		MessageID:        payload.Get("id").String(),
		AccountID:        accountID,
		Content:          content,
		Labels:           labels,
		SenderName:       payload.Get("sender.name").String(),
		FirstInteraction: payload.Get("conversation.first_reply_created_at").String() == "",
	}, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "orquestra",
		"teams":   s.dir.Len(),
	})
}

func (s *Server) handleTeams(w http.ResponseWriter, _ *http.Request) {
	teams := s.dir.Teams()
	out := make([]map[string]string, 0, len(teams))
	for _, team := range teams {
		out = append(out, map[string]string{"name": team.Name, "id": team.ID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": out})
}

func (s *Server) handleReloadTeams(w http.ResponseWriter, r *http.Request) {
	if s.lister == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"error": "no team source configured"})
		return
	}
	if err := s.dir.Refresh(r.Context(), s.lister); err != nil {
		s.log.Warn("team reload failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	s.log.Info("team directory reloaded", zap.Int("teams", s.dir.Len()))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "teams": s.dir.Len()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
