package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harun/aura/pkg/agent"
	"github.com/harun/aura/pkg/toolexecutor"
	"github.com/harun/aura/pkg/toolspec"
)

// decodeBody reads a bounded JSON body into v. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msgMessageRequired})
		return
	}

	status, body := s.exchange(r.Context(), req.Message)
	writeJSON(w, status, body)
}

// exchange runs one assistant turn and maps the outcome onto the response
// contract shared by HTTP and WebSocket clients.
func (s *Server) exchange(ctx context.Context, text string) (int, interface{}) {
	result, err := s.assistant.HandleUserMessage(ctx, text)
	switch {
	case err == nil:
		return http.StatusOK, ChatResponse{Message: result.Reply, ExchangeID: result.ID}
	case errors.Is(err, agent.ErrInvalidMessage):
		return http.StatusBadRequest, ErrorResponse{Error: msgMessageRequired}
	case errors.Is(err, agent.ErrNoResponse):
		return http.StatusOK, ChatResponse{Message: msgNoResponse}
	default:
		s.logger.Error().Err(err).Msg("Chat exchange failed")
		return http.StatusInternalServerError, ErrorResponse{Error: msgChatFailed}
	}
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.assistant.History(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to retrieve memory")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to retrieve memory"})
		return
	}
	writeJSON(w, http.StatusOK, MemoryResponse{Memory: turns})
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.ClearHistory(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear memory")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to clear memory"})
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Memory cleared successfully"})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tools":      toolspec.Describe(),
		"guidelines": toolspec.Guidelines(),
	})
}

// handleToolCall runs one tool directly. Tool failures are reported in the
// envelope with status 200; only transport problems use error codes.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := toolspec.Lookup(name); !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("unknown tool: %s", name)})
		return
	}

	args := map[string]interface{}{}
	if err := decodeBody(w, r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody})
		return
	}

	writeJSON(w, http.StatusOK, s.assistant.ExecuteTool(r.Context(), name, args))
}

func (s *Server) handleFilesGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	switch {
	case query.Get("dir") != "":
		s.fileOperation(w, r, toolspec.ListFiles, map[string]interface{}{"directory": query.Get("dir")}, "files")
	case query.Get("filePath") != "":
		s.fileOperation(w, r, toolspec.ReadFile, map[string]interface{}{"path": query.Get("filePath")}, "content")
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Either dir or filePath is required"})
	}
}

func (s *Server) handleFilesCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msgInvalidBody})
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "File path is required"})
		return
	}
	s.fileOperation(w, r, toolspec.CreateFile, map[string]interface{}{"path": req.Path, "content": req.Content}, "message")
}

func (s *Server) handleFilesDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("filePath")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "File path is required"})
		return
	}
	s.fileOperation(w, r, toolspec.DeleteFile, map[string]interface{}{"path": path}, "message")
}

// fileOperation runs a file tool through the dispatcher, so the REST file
// routes share its path confinement, and renders the result under key.
func (s *Server) fileOperation(w http.ResponseWriter, r *http.Request, tool toolspec.Name, args map[string]interface{}, key string) {
	env := s.assistant.ExecuteTool(r.Context(), tool.String(), args)
	if !env.Success {
		writeJSON(w, statusForEnvelope(env), ErrorResponse{Error: env.Error})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{key: env.Result})
}

func statusForEnvelope(env toolexecutor.Envelope) int {
	switch {
	case strings.Contains(env.Error, "file not found"), strings.Contains(env.Error, "no such file"):
		return http.StatusNotFound
	case strings.HasPrefix(env.Error, "invalid arguments"), strings.Contains(env.Error, "outside the workspace"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	env := s.assistant.ExecuteTool(r.Context(), toolspec.CaptureScreenshot.String(), map[string]interface{}{})
	status := http.StatusOK
	if !env.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, env)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}
