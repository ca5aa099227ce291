// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/seeclaw/internal/agent"
	"github.com/xkilldash9x/seeclaw/internal/config"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

type mockController struct {
	mock.Mock
}

func (m *mockController) SubmitGoal(goal string) error { return m.Called(goal).Error(0) }
func (m *mockController) Stop()                        { m.Called() }
func (m *mockController) Approve() error               { return m.Called().Error(0) }
func (m *mockController) Reject() error                { return m.Called().Error(0) }
func (m *mockController) State() agent.State           { return m.Called().Get(0).(agent.State) }

func (m *mockController) Chat(_ context.Context, message string) (string, error) {
	args := m.Called(message)
	return args.String(0), args.Error(1)
}

type testServer struct {
	srv  *Server
	ts   *httptest.Server
	bus  *agent.EventBus
	ctrl *mockController
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctrl := &mockController{}
	bus := agent.NewEventBus(logger, 16)
	srv := New(cfg, ctrl, bus, "1.2.3", logger)
	return &testServer{srv: srv, ts: httptest.NewServer(srv.Handler()), bus: bus, ctrl: ctrl}
}

// close tears down in dependency order so no handler outlives the test.
func (h *testServer) close() {
	h.srv.closeClients()
	h.ts.Close()
	h.bus.Shutdown()
}

func (h *testServer) post(t *testing.T, body string) (int, CommandResponse) {
	t.Helper()
	resp, err := h.ts.Client().Post(h.ts.URL+"/api/v1/command", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out CommandResponse
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return resp.StatusCode, out
}

func (h *testServer) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg WSMessage) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func readMsg(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

// ready round-trips a ping so the server-side subscription is in place.
func ready(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeMsg(t, conn, WSMessage{Type: CmdPing, RequestID: "ready"})
	msg := readMsg(t, conn)
	require.Equal(t, MsgCommandResult, msg.Type)
	require.Equal(t, "ready", msg.RequestID)
}

func TestHealthCheck(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newTestServer(t, nil)
	defer h.close()

	resp, err := h.ts.Client().Get(h.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestCommand_StartTask(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newTestServer(t, nil)
	defer h.close()
	h.ctrl.On("SubmitGoal", "open notes").Return(nil).Once()

	code, resp := h.post(t, `{"command":"start_task","params":{"task":"  open notes "}}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, map[string]any{"accepted": true, "task": "open notes"}, resp.Data)
	h.ctrl.AssertExpectations(t)
}

func TestCommand_Errors(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newTestServer(t, nil)
	defer h.close()
	h.ctrl.On("SubmitGoal", "busy work").Return(agent.ErrEngineBusy)
	h.ctrl.On("Approve").Return(agent.ErrNoPendingApproval)
	h.ctrl.On("Chat", "").Return("", errors.New("provider down"))

	tests := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{"malformed body", `{"command":`, http.StatusBadRequest, "Invalid request body"},
		{"unknown command", `{"command":"launch_rocket"}`, http.StatusBadRequest, `unknown command "launch_rocket"`},
		{"empty task", `{"command":"start_task","params":{"task":"   "}}`, http.StatusBadRequest, "requires a non-empty 'task'"},
		{"busy", `{"command":"start_task","params":{"task":"busy work"}}`, http.StatusConflict, "busy"},
		{"missing approved", `{"command":"confirm_action","params":{}}`, http.StatusBadRequest, "requires 'approved'"},
		{"bad approved", `{"command":"confirm_action","params":{"approved":"perhaps"}}`, http.StatusBadRequest, "must be a boolean"},
		{"nothing pending", `{"command":"confirm_action","params":{"approved":"true"}}`, http.StatusConflict, "no action is waiting"},
		{"chat failure", `{"command":"chat","params":{}}`, http.StatusInternalServerError, "provider down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := h.post(t, tt.body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, "error", resp.Status)
			assert.Contains(t, resp.Error, tt.message)
		})
	}
}

func TestCommand_StopAndChat(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newTestServer(t, nil)
	defer h.close()
	h.ctrl.On("Stop").Return().Once()
	h.ctrl.On("Chat", "hello").Return("Hi there.", nil).Once()

	code, resp := h.post(t, `{"command":"STOP_TASK"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"stopping": true}, resp.Data)

	code, resp = h.post(t, `{"command":"chat","params":{"message":"hello"}}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"content": "Hi there."}, resp.Data)
	h.ctrl.AssertExpectations(t)
}

func TestGetConfigIsRedacted(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := config.NewDefaultConfig()
	p := cfg.LLMCfg.Providers["openai"]
	p.APIKey = "sk-live-123"
	cfg.LLMCfg.Providers["openai"] = p
	h := newTestServer(t, cfg)
	defer h.close()

	resp, err := h.ts.Client().Get(h.ts.URL + "/api/v1/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-live-123")

	var out struct {
		Data struct {
			LLM struct {
				ActiveProvider string `json:"active_provider"`
				Providers      map[string]struct {
					APIKey string `json:"api_key"`
				} `json:"providers"`
			} `json:"llm"`
			Perception struct {
				GridSize int `json:"grid_size"`
			} `json:"perception"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "openai", out.Data.LLM.ActiveProvider)
	assert.Equal(t, config.RedactedSentinel, out.Data.LLM.Providers["openai"].APIKey)
	assert.Equal(t, 12, out.Data.Perception.GridSize)
}

func TestStateAndVersion(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newTestServer(t, nil)
	defer h.close()
	h.ctrl.On("State").Return(agent.StatePlanning{Goal: "tidy desktop"})

	resp, err := h.ts.Client().Get(h.ts.URL + "/api/v1/state")
	require.NoError(t, err)
	var state CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	resp.Body.Close()
	assert.Equal(t, map[string]any{"state": "planning", "goal": "tidy desktop", "description": "planning: tidy desktop"}, state.Data)

	resp, err = h.ts.Client().Get(h.ts.URL + "/api/v1/version")
	require.NoError(t, err)
	var version CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&version))
	resp.Body.Close()
	assert.Equal(t, map[string]any{"version": "1.2.3"}, version.Data)
}

func TestWebSocket_ForwardsNotices(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newTestServer(t, nil)
	defer h.close()

	conn := h.dial(t, nil)
	defer conn.Close()
	ready(t, conn)

	require.NoError(t, h.bus.StateChanged(agent.StateDone{Summary: "All set."}))
	msg := readMsg(t, conn)
	assert.Equal(t, MsgStateChanged, msg.Type)
	assert.Equal(t, "done", msg.Data["state"])
	assert.Equal(t, "All set.", msg.Data["summary"])
	assert.NotEmpty(t, msg.RequestID, "notice id is carried as request_id")

	require.NoError(t, h.bus.ApprovalRequired(agent.ApprovalRequest{Seq: 3, Action: agent.ExecuteTerminal{Command: "ls"}, Reason: "Run terminal command \"ls\""}))
	msg = readMsg(t, conn)
	assert.Equal(t, MsgActionRequired, msg.Type)
	assert.Equal(t, float64(3), msg.Data["seq"])
	assert.Equal(t, "execute_terminal", msg.Data["action_type"])
	assert.Equal(t, map[string]any{"type": "execute_terminal", "command": "ls", "reason": ""}, msg.Data["action"])

	require.NoError(t, h.bus.ViewportCaptured(agent.ViewportInfo{ImagePNG: []byte{0x89, 'P'}, GridN: 12, Width: 640, Height: 480, Source: "grid"}))
	msg = readMsg(t, conn)
	assert.Equal(t, MsgViewport, msg.Type)
	assert.Equal(t, "iVA=", msg.Data["image_base64"])
	assert.Equal(t, float64(12), msg.Data["grid_n"])

	require.NoError(t, h.bus.StreamChunk(llmclient.StreamChunk{Kind: llmclient.ChunkContent, Content: "tok"}))
	msg = readMsg(t, conn)
	assert.Equal(t, MsgStreamChunk, msg.Type)
	assert.Equal(t, map[string]any{"kind": "content", "content": "tok"}, msg.Data)

	require.NoError(t, h.bus.TaskCancelled())
	assert.Equal(t, MsgTaskCancelled, readMsg(t, conn).Type)
}

func TestWebSocket_Commands(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newTestServer(t, nil)
	defer h.close()
	h.ctrl.On("Reject").Return(nil).Once()
	h.ctrl.On("Chat", "what is on screen?").Return("A terminal.", nil).Once()

	conn := h.dial(t, nil)
	defer conn.Close()

	writeMsg(t, conn, WSMessage{Type: CmdConfirmAction, RequestID: "r1", Data: map[string]any{"approved": false}})
	msg := readMsg(t, conn)
	assert.Equal(t, MsgCommandResult, msg.Type)
	assert.Equal(t, "r1", msg.RequestID)
	assert.Equal(t, map[string]any{"approved": false, "command": CmdConfirmAction}, msg.Data)

	writeMsg(t, conn, WSMessage{Type: CmdChat, RequestID: "r2", Data: map[string]any{"message": "what is on screen?"}})
	msg = readMsg(t, conn)
	assert.Equal(t, "r2", msg.RequestID)
	assert.Equal(t, "A terminal.", msg.Data["content"])

	writeMsg(t, conn, WSMessage{Type: "warp_drive", RequestID: "r3"})
	msg = readMsg(t, conn)
	assert.Equal(t, MsgSystemError, msg.Type)
	assert.Equal(t, "r3", msg.RequestID)
	assert.Contains(t, msg.Data["error"], "unknown command")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = readMsg(t, conn)
	assert.Equal(t, MsgSystemError, msg.Type)
	assert.Contains(t, msg.Data["error"], "Malformed message")

	h.ctrl.AssertExpectations(t)
}

func TestWebSocket_Origin(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("foreign origin rejected", func(t *testing.T) {
		h := newTestServer(t, nil)
		defer h.close()
		url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws/v1/events"
		_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
		require.Error(t, err)
		require.NotNil(t, resp)
		resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("listed origin accepted", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.ServerCfg.AllowedOrigins = []string{"http://localhost:5173"}
		h := newTestServer(t, cfg)
		defer h.close()
		conn := h.dial(t, http.Header{"Origin": {"http://localhost:5173"}})
		defer conn.Close()
		ready(t, conn)
	})
}

func TestCORSPreflight(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := config.NewDefaultConfig()
	cfg.ServerCfg.AllowedOrigins = []string{"*"}
	h := newTestServer(t, cfg)
	defer h.close()

	req, err := http.NewRequest(http.MethodOptions, h.ts.URL+"/api/v1/command", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := h.ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServe_ShutdownClosesSockets(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger := zaptest.NewLogger(t)
	bus := agent.NewEventBus(logger, 4)
	defer bus.Shutdown()
	srv := New(nil, &mockController{}, bus, "dev", logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/v1/events", nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	ready(t, conn)

	cancel()
	select {
	case err := <-served:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "socket must be closed by shutdown")
}

func TestNoticeMessage_Activity(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := noticeMessage(agent.Notice{ID: "n1", Timestamp: ts, Kind: agent.NoticeActivity, Payload: "Planning"})
	assert.Equal(t, MsgActivity, msg.Type)
	assert.Equal(t, "2026-01-02T03:04:05Z", msg.Timestamp)
	assert.Equal(t, map[string]any{"label": "Planning"}, msg.Data)
}
