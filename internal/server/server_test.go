package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/aura/pkg/agent"
	"github.com/harun/aura/pkg/memory"
	"github.com/harun/aura/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toolInvocation struct {
	name string
	args map[string]interface{}
}

// fakeAssistant scripts exchange outcomes and records tool invocations.
type fakeAssistant struct {
	mu         sync.Mutex
	reply      string
	err        error
	entered    chan struct{}
	block      chan struct{}
	turns      []memory.Turn
	historyErr error
	clearErr   error
	cleared    bool
	envelope   toolexecutor.Envelope
	tools      []toolInvocation
	messages   []string
}

func (f *fakeAssistant) HandleUserMessage(ctx context.Context, text string) (agent.ExchangeResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	if strings.TrimSpace(text) == "" {
		return agent.ExchangeResult{}, agent.ErrInvalidMessage
	}
	if f.err != nil {
		return agent.ExchangeResult{}, f.err
	}
	return agent.ExchangeResult{ID: "ex-1", Reply: f.reply}, nil
}

func (f *fakeAssistant) ExecuteTool(_ context.Context, name string, args map[string]interface{}) toolexecutor.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools = append(f.tools, toolInvocation{name: name, args: args})
	return f.envelope
}

func (f *fakeAssistant) History(context.Context) ([]memory.Turn, error) {
	return f.turns, f.historyErr
}

func (f *fakeAssistant) ClearHistory(context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	return nil
}

func newTestServer(t *testing.T, assistant *fakeAssistant, opts ...func(*Options)) *Server {
	t.Helper()
	options := Options{
		Logger:          zerolog.Nop(),
		ShutdownTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	s, err := NewServer(options, assistant)
	require.NoError(t, err)
	t.Cleanup(s.rateLimiter.Stop)
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(Options{}, nil)
	assert.Error(t, err)

	s := newTestServer(t, &fakeAssistant{})
	assert.Equal(t, 3000, s.options.Port)
	assert.Equal(t, "127.0.0.1", s.options.Host)
}

func TestChat(t *testing.T) {
	t.Run("reply", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{reply: "You have two files."})
		rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"list my files"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]interface{}{"message": "You have two files.", "exchange_id": "ex-1"}, decode(t, rec))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("missing message", func(t *testing.T) {
		assistant := &fakeAssistant{}
		s := newTestServer(t, assistant)

		for _, body := range []string{`{}`, `{"message":"   "}`, ``} {
			rec := do(t, s, http.MethodPost, "/api/chat", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Message is required", decode(t, rec)["error"])
		}
		assert.Empty(t, assistant.messages, "invalid requests never reach the runner")
	})

	t.Run("invalid json", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{})
		rec := do(t, s, http.MethodPost, "/api/chat", `{"message":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("upstream failure", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{err: fmt.Errorf("%w: boom", agent.ErrUpstream)})
		rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, map[string]interface{}{"error": "Failed to get response from AI"}, decode(t, rec))
	})

	t.Run("empty reply", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{err: agent.ErrNoResponse})
		rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]interface{}{"message": "No response from AI"}, decode(t, rec))
	})

	t.Run("wrong method", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{})
		rec := do(t, s, http.MethodGet, "/api/chat", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestChatRateLimit(t *testing.T) {
	s := newTestServer(t, &fakeAssistant{reply: "ok"}, func(o *Options) { o.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`).Code)
	}
	rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMemoryRoutes(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		assistant := &fakeAssistant{turns: []memory.Turn{
			{Role: memory.RoleUser, Content: "hi", Timestamp: 1},
			{Role: memory.RoleAssistant, Content: "hello", Timestamp: 2},
		}}
		s := newTestServer(t, assistant)
		rec := do(t, s, http.MethodGet, "/api/memory", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var body MemoryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, assistant.turns, body.Memory)
	})

	t.Run("get failure", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{historyErr: errors.New("disk gone")})
		rec := do(t, s, http.MethodGet, "/api/memory", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to retrieve memory", decode(t, rec)["error"])
	})

	t.Run("clear", func(t *testing.T) {
		assistant := &fakeAssistant{}
		s := newTestServer(t, assistant)
		rec := do(t, s, http.MethodDelete, "/api/memory", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, assistant.cleared)
	})

	t.Run("clear failure", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{clearErr: errors.New("locked")})
		rec := do(t, s, http.MethodDelete, "/api/memory", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestToolRoutes(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{})
		rec := do(t, s, http.MethodGet, "/api/tools", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Len(t, body["tools"], 5)
		assert.Contains(t, body["guidelines"], "createFile")
	})

	t.Run("call", func(t *testing.T) {
		assistant := &fakeAssistant{envelope: toolexecutor.Succeed([]string{"a.txt"})}
		s := newTestServer(t, assistant)
		rec := do(t, s, http.MethodPost, "/api/tools/listFiles", `{"directory":"/"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]interface{}{"success": true, "result": []interface{}{"a.txt"}}, decode(t, rec))
		require.Len(t, assistant.tools, 1)
		assert.Equal(t, "listFiles", assistant.tools[0].name)
		assert.Equal(t, map[string]interface{}{"directory": "/"}, assistant.tools[0].args)
	})

	t.Run("tool failure stays in band", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{envelope: toolexecutor.Fail("file not found: x")})
		rec := do(t, s, http.MethodPost, "/api/tools/readFile", `{"path":"x"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decode(t, rec)["success"])
	})

	t.Run("unknown tool", func(t *testing.T) {
		assistant := &fakeAssistant{}
		s := newTestServer(t, assistant)
		rec := do(t, s, http.MethodPost, "/api/tools/rmrf", `{}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, assistant.tools)
	})

	t.Run("non-object arguments", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{})
		rec := do(t, s, http.MethodPost, "/api/tools/readFile", `["x"]`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFileRoutes(t *testing.T) {
	t.Run("list directory", func(t *testing.T) {
		assistant := &fakeAssistant{envelope: toolexecutor.Succeed([]string{"notes.txt"})}
		s := newTestServer(t, assistant)
		rec := do(t, s, http.MethodGet, "/api/files?dir=/", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []interface{}{"notes.txt"}, decode(t, rec)["files"])
		assert.Equal(t, "listFiles", assistant.tools[0].name)
	})

	t.Run("read file", func(t *testing.T) {
		assistant := &fakeAssistant{envelope: toolexecutor.Succeed("hello")}
		s := newTestServer(t, assistant)
		rec := do(t, s, http.MethodGet, "/api/files?filePath=notes.txt", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", decode(t, rec)["content"])
		assert.Equal(t, map[string]interface{}{"path": "notes.txt"}, assistant.tools[0].args)
	})

	t.Run("missing query", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{})
		rec := do(t, s, http.MethodGet, "/api/files", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Either dir or filePath is required", decode(t, rec)["error"])
	})

	t.Run("create", func(t *testing.T) {
		assistant := &fakeAssistant{envelope: toolexecutor.Succeed("File created successfully at /w/a.txt")}
		s := newTestServer(t, assistant)
		rec := do(t, s, http.MethodPost, "/api/files", `{"path":"a.txt","content":"x"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "createFile", assistant.tools[0].name)
		assert.Equal(t, map[string]interface{}{"path": "a.txt", "content": "x"}, assistant.tools[0].args)
	})

	t.Run("delete missing file", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{envelope: toolexecutor.Fail("file not found: gone.txt")})
		rec := do(t, s, http.MethodDelete, "/api/files?filePath=gone.txt", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "file not found: gone.txt", decode(t, rec)["error"])
	})

	t.Run("delete requires path", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{})
		rec := do(t, s, http.MethodDelete, "/api/files", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestScreenshot(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		assistant := &fakeAssistant{envelope: toolexecutor.Succeed("data:image/png;base64,AAAA")}
		s := newTestServer(t, assistant)
		rec := do(t, s, http.MethodPost, "/api/vision/screenshot", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "data:image/png;base64,AAAA", decode(t, rec)["result"])
		assert.Equal(t, "captureScreenshot", assistant.tools[0].name)
	})

	t.Run("failure", func(t *testing.T) {
		s := newTestServer(t, &fakeAssistant{envelope: toolexecutor.Fail("screenshot capture is not configured")})
		rec := do(t, s, http.MethodPost, "/api/vision/screenshot", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, false, decode(t, rec)["success"])
	})
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, &fakeAssistant{reply: "ok"})

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	do(t, s, http.MethodPost, "/api/chat", `{"message":"hi"}`)
	rec = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "aura_http_requests_total")
}

func TestWebSocket(t *testing.T) {
	assistant := &fakeAssistant{reply: "hello there"}
	s := newTestServer(t, assistant)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ChatRequest{Message: "hi"}))
	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, map[string]interface{}{"message": "hello there", "exchange_id": "ex-1"}, reply)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "Invalid request body", reply["error"])

	require.NoError(t, conn.WriteJSON(ChatRequest{}))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "Message is required", reply["error"])
}

func TestGracefulShutdown(t *testing.T) {
	assistant := &fakeAssistant{reply: "done", entered: make(chan struct{}, 1), block: make(chan struct{})}
	s := newTestServer(t, assistant, func(o *Options) { o.ShutdownTimeout = 5 * time.Second })

	finished := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		finished <- do(t, s, http.MethodPost, "/api/chat", `{"message":"slow"}`)
	}()

	select {
	case <-assistant.entered:
	case <-time.After(time.Second):
		t.Fatal("exchange never started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		s.shutdownMu.RLock()
		defer s.shutdownMu.RUnlock()
		return s.isShuttingDown
	}, time.Second, 10*time.Millisecond)

	rec := do(t, s, http.MethodPost, "/api/chat", `{"message":"late"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight exchange finished")
	default:
	}

	close(assistant.block)
	require.NoError(t, <-stopped)
	assert.Equal(t, http.StatusOK, (<-finished).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()

	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "limits are per client")
	assert.Equal(t, 60, rl.RetryAfter("a"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))

	rl.cleanup()
	rl.mu.Lock()
	_, tracked := rl.limits["b"]
	rl.mu.Unlock()
	assert.False(t, tracked, "idle clients are dropped")

	disabled := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, disabled.Allow("x"))
	}
	disabled.Stop()
	disabled.Stop()
}

func TestStatusRecorderHijack(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rec.Hijack()
	assert.Error(t, err)

	rec.WriteHeader(http.StatusTeapot)
	rec.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusTeapot, rec.status)
}
