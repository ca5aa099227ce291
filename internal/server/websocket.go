// internal/server/websocket.go
package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/agent"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

// MessageType names a WebSocket message. Inbound messages use command names.
type MessageType string

const (
	MsgStateChanged   MessageType = "agent_state_changed"
	MsgActivity       MessageType = "agent_activity"
	MsgActionRequired MessageType = "action_required"
	MsgViewport       MessageType = "viewport_captured"
	MsgStreamChunk    MessageType = "llm_stream_chunk"
	MsgTaskCancelled  MessageType = "task_cancelled"
	MsgCommandResult  MessageType = "command_result"
	MsgSystemError    MessageType = "system_error"
)

// WSMessage is the envelope for both directions.
type WSMessage struct {
	Type      MessageType    `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
}

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 64 * 1024
	sendChannelSize = 256
)

// wsClient is one frontend connection.
type wsClient struct {
	server  *Server
	conn    *websocket.Conn
	send    chan WSMessage
	notices <-chan agent.Notice

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection to WebSocket.", zap.Error(err))
		return
	}
	s.logger.Info("Frontend connected.", zap.String("remote_addr", r.RemoteAddr))

	notices, unsubscribe := s.events.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsClient{
		server:  s,
		conn:    conn,
		send:    make(chan WSMessage, sendChannelSize),
		notices: notices,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.register(c)
	defer s.unregister(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()

	cancel()
	unsubscribe()
	c.tasks.Wait()
	<-done
	s.logger.Info("Frontend disconnected.", zap.String("remote_addr", r.RemoteAddr))
}

// readPump decodes inbound commands until the connection fails.
func (c *wsClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("WebSocket closed unexpectedly.", zap.Error(err))
			}
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", "Malformed message: "+err.Error())
			continue
		}
		c.server.logger.Debug("Received frontend message.", zap.String("type", string(msg.Type)), zap.String("request_id", msg.RequestID))
		c.processMessage(msg)
	}
}

// writePump owns every write to the connection, as gorilla requires.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var msg WSMessage
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case n, ok := <-c.notices:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
				return
			}
			msg = noticeMessage(n)
		case msg = <-c.send:
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}

		payload, err := json.Marshal(msg)
		if err != nil {
			c.server.logger.Error("Failed to encode WebSocket message.", zap.String("type", string(msg.Type)), zap.Error(err))
			continue
		}
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.server.logger.Debug("WebSocket write failed.", zap.Error(err))
			return
		}
	}
}

// processMessage runs a command. Chat runs in the background so the read
// loop stays responsive to pongs and stop requests.
func (c *wsClient) processMessage(msg WSMessage) {
	name := string(msg.Type)
	if name == CmdChat {
		c.tasks.Add(1)
		go func() {
			defer c.tasks.Done()
			c.reply(msg.RequestID, name, msg.Data)
		}()
		return
	}
	c.reply(msg.RequestID, name, msg.Data)
}

func (c *wsClient) reply(requestID, name string, params map[string]any) {
	data, err := c.server.execute(c.ctx, name, params)
	if err != nil {
		c.sendError(requestID, err.Error())
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["command"] = name
	c.sendMessage(MsgCommandResult, requestID, data)
}

// sendMessage queues msg without blocking; a full buffer drops it.
func (c *wsClient) sendMessage(msgType MessageType, requestID string, data map[string]any) {
	msg := WSMessage{Type: msgType, Data: data, Timestamp: timestamp(time.Now()), RequestID: requestID}
	select {
	case c.send <- msg:
	default:
		c.server.logger.Warn("WebSocket send buffer full, dropping message.", zap.String("type", string(msgType)), zap.String("request_id", requestID))
	}
}

func (c *wsClient) sendError(requestID, message string) {
	c.sendMessage(MsgSystemError, requestID, map[string]any{"error": message})
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// noticeMessage converts an engine notice into its wire form.
func noticeMessage(n agent.Notice) WSMessage {
	msg := WSMessage{Timestamp: timestamp(n.Timestamp), RequestID: n.ID}
	switch n.Kind {
	case agent.NoticeState:
		msg.Type = MsgStateChanged
		if s, ok := n.Payload.(agent.State); ok {
			msg.Data = stateDoc(s)
		}
	case agent.NoticeActivity:
		msg.Type = MsgActivity
		msg.Data = map[string]any{"label": n.Payload}
	case agent.NoticeApproval:
		msg.Type = MsgActionRequired
		if req, ok := n.Payload.(agent.ApprovalRequest); ok {
			msg.Data = map[string]any{
				"seq":         req.Seq,
				"reason":      req.Reason,
				"action_type": agent.ActionType(req.Action),
			}
			if raw, err := agent.MarshalAction(req.Action); err == nil {
				var doc map[string]any
				if json.Unmarshal(raw, &doc) == nil {
					msg.Data["action"] = doc
				}
			}
		}
	case agent.NoticeViewport:
		msg.Type = MsgViewport
		if info, ok := n.Payload.(agent.ViewportInfo); ok {
			msg.Data = map[string]any{
				"grid_n":        info.GridN,
				"width":         info.Width,
				"height":        info.Height,
				"element_count": info.ElementCount,
				"source":        info.Source,
			}
			if len(info.ImagePNG) > 0 {
				msg.Data["image_base64"] = base64.StdEncoding.EncodeToString(info.ImagePNG)
			}
		}
	case agent.NoticeStream:
		msg.Type = MsgStreamChunk
		if chunk, ok := n.Payload.(llmclient.StreamChunk); ok {
			msg.Data = map[string]any{"kind": chunk.Kind, "content": chunk.Content}
		}
	case agent.NoticeCancelled:
		msg.Type = MsgTaskCancelled
	default:
		msg.Type = MessageType(n.Kind)
	}
	return msg
}
