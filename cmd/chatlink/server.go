package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chatlink/internal/constants"
	apperrors "chatlink/internal/errors"
	"chatlink/internal/metrics"
	"chatlink/internal/models"
	"chatlink/pkg/channel"
	"chatlink/pkg/circuitbreaker"
	"chatlink/pkg/history"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes the local status and control API for the channel.
type Server struct {
	router        *mux.Router
	logger        *logrus.Logger
	errLog        *apperrors.Logger
	manager       *channel.Manager
	historyClient history.Client
	registry      *metrics.Registry
	fetchLimit    int
	port          int
	server        *http.Server
}

func NewServer(cfg *models.Config, manager *channel.Manager, historyClient history.Client, registry *metrics.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		logger:        logger,
		errLog:        &apperrors.Logger{Logger: logger},
		manager:       manager,
		historyClient: historyClient,
		registry:      registry,
		fetchLimit:    cfg.History.FetchLimit,
		port:          cfg.Server.Port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	api.HandleFunc("/state", s.handleState()).Methods(http.MethodGet)
	api.HandleFunc("/feed", s.handleFeed()).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	api.HandleFunc("/send", s.handleSend()).Methods(http.MethodPost)
	api.HandleFunc("/connect", s.handleConnect()).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", s.handleDisconnect()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func (s *Server) handleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.manager.State()
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"chat_id":    s.manager.ChatID(),
			"state":      state,
			"terminal":   state.IsTerminal(),
			"diagnostic": s.manager.Diagnostic(),
			"queued":     s.manager.QueueLen(),
		})
	}
}

// handleFeed returns the merged feed: fetched history reconciled with the
// live inbound store. A history failure degrades to the live view instead of
// failing the request.
func (s *Server) handleFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		historical, err := s.historyClient.FetchMessages(r.Context(), s.manager.ChatID(), s.fetchLimit)
		historyError := ""
		if err != nil {
			historyError = apperrors.GetUserMessage(err)
			if circuitbreaker.IsOpenError(err) {
				historyError = "Message history temporarily unavailable"
			}
			s.errLog.LogRetryableError(err, "History fetch failed, serving live messages only")
		}

		feed := s.manager.Feed(historical)
		if feed == nil {
			feed = []models.Message{}
		}

		response := map[string]interface{}{
			"chat_id":  s.manager.ChatID(),
			"messages": feed,
		}
		if historyError != "" {
			response["history_error"] = historyError
		}
		s.writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.registry.GetSnapshot())
	}
}

func (s *Server) handleSend() http.HandlerFunc {
	type sendRequest struct {
		Content string `json:"content"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		queued, err := s.manager.Send(req.Content)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": apperrors.GetUserMessage(err)})
			return
		}

		status := http.StatusOK
		if queued {
			status = http.StatusAccepted
		}
		s.writeJSON(w, status, map[string]interface{}{"queued": queued})
	}
}

func (s *Server) handleConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.manager.Connect()
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "connecting"})
	}
}

func (s *Server) handleDisconnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.manager.Disconnect()
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}
