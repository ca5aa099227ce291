// internal/server/handlers.go
package server

import (
	"errors"
	"fmt"
	"net/http"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/agent"
)

const maxCommandBody = 1 << 20

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCommand is the HTTP twin of the WebSocket command channel.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody)).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	s.logger.Info("Received command", zap.String("command", req.Command))

	data, err := s.execute(r.Context(), req.Command, req.Params)
	if err != nil {
		s.respondWithError(w, statusFor(err), err.Error())
		return
	}
	s.respondWithSuccess(w, http.StatusOK, data)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.respondWithSuccess(w, http.StatusOK, stateDoc(s.engine.State()))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.runSimple(w, r, CmdGetConfig)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.runSimple(w, r, CmdGetVersion)
}

func (s *Server) runSimple(w http.ResponseWriter, r *http.Request, name string) {
	data, err := s.execute(r.Context(), name, nil)
	if err != nil {
		s.respondWithError(w, statusFor(err), err.Error())
		return
	}
	s.respondWithSuccess(w, http.StatusOK, data)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadCommand), errors.Is(err, agent.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, agent.ErrEngineBusy), errors.Is(err, agent.ErrNoPendingApproval):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) respondWithSuccess(w http.ResponseWriter, code int, data any) {
	s.respondJSON(w, code, CommandResponse{Status: "success", Data: data})
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.logger.Warn("Command failed", zap.Int("status", code), zap.String("error", message))
	s.respondJSON(w, code, CommandResponse{Status: "error", Error: message})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload CommandResponse) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal JSON response", zap.Error(err))
		http.Error(w, "Internal Server Error: Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
