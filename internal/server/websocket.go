package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const wsWriteTimeout = 10 * time.Second

// handleWebSocket serves a chat session. Each text frame {"message": ...}
// runs one exchange and is answered with the same body POST /api/chat
// returns. Frames on one connection are handled in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	shuttingDown := s.isShuttingDown
	s.shutdownMu.RUnlock()
	if shuttingDown {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Server is shutting down"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	conn.SetReadLimit(maxBodyBytes)

	clientID, _ := gonanoid.New()
	logger := s.logger.With().Str("client_id", clientID).Str("ip", clientIP(r)).Logger()

	s.socketsMu.Lock()
	s.sockets[conn] = struct{}{}
	s.socketsMu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		s.socketsMu.Lock()
		delete(s.sockets, conn)
		s.socketsMu.Unlock()
		conn.Close()
		logger.Info().Msg("Client disconnected")
	}()

	logger.Info().Msg("Client connected")

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		body := s.handleFrame(ctx, data)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(body); err != nil {
			logger.Warn().Err(err).Msg("Failed to write WebSocket reply")
			return
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, data []byte) interface{} {
	if !s.beginRequest() {
		return ErrorResponse{Error: "Server is shutting down"}
	}
	defer s.inFlightReqs.Done()

	var req ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ErrorResponse{Error: msgInvalidBody}
	}
	if req.Message == "" {
		return ErrorResponse{Error: msgMessageRequired}
	}

	_, body := s.exchange(ctx, req.Message)
	return body
}

// closeSockets sends a going-away close to every open WebSocket.
func (s *Server) closeSockets() {
	s.socketsMu.Lock()
	defer s.socketsMu.Unlock()

	deadline := time.Now().Add(time.Second)
	for conn := range s.sockets {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		conn.Close()
	}
}
