package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/koopa0/room-relay/pkg/errors"
)

// 心跳與緩衝配置
//
// Ping 間隔 54 秒：避開常見代理的 60 秒超時，留 6 秒余量。
// 讀取超時 60 秒：60 秒內沒有任何消息（包括 Pong）即視為死連接，
// 關閉後走正常的斷線路徑，剩餘成員會收到 playerLeft。
const (
	pingInterval   = 54 * time.Second
	readTimeout    = 60 * time.Second
	writeTimeout   = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Hub WebSocket 接入層
//
// 升級 HTTP 連接、為每個客戶端啟動讀寫 goroutine，並把解析後的
// 消息轉入協調器。房間狀態一概不碰。
type Hub struct {
	registry    *Registry
	coordinator *Coordinator
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewHub 創建 WebSocket 接入層
func NewHub(registry *Registry, coordinator *Coordinator, logger *slog.Logger) *Hub {
	return &Hub{
		registry:    registry,
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// ServeWS 處理 WebSocket 連接
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    hub,
		logger: hub.logger,
	}

	hub.registry.Add(client)

	go client.writePump()
	go client.readPump()

	hub.logger.Info("WebSocket 連接建立", "conn_id", client.id, "remote", r.RemoteAddr)
}

// Client 單個客戶端連接
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	logger *slog.Logger

	closeOnce sync.Once
}

// ID 連接句柄
func (c *Client) ID() string {
	return c.id
}

// Enqueue 將出站消息壓入發送隊列
//
// 非阻塞：緩衝滿時丟棄該幀，慢消費者不能拖住協調器對其他
// 房間的處理。
func (c *Client) Enqueue(message []byte) {
	select {
	case c.send <- message:
	default:
		c.logger.Warn("連接發送緩衝已滿，丟棄消息", "conn_id", c.id)
	}
}

// Close 關閉發送隊列與底層連接
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
	_ = c.conn.Close()
}

// readPump 讀取客戶端消息
//
// 入站消息在此完成信封解析；畸形 JSON 直接回覆 errorEvent，
// 不進入協調器。讀取退出（斷線、超時、錯誤）時觸發斷線路徑。
func (c *Client) readPump() {
	defer func() {
		c.hub.coordinator.HandleDisconnect(c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		c.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket 讀取錯誤", "conn_id", c.id, "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("解析客戶端消息失敗", "conn_id", c.id, "error", err)
			c.replyError(apperrors.Wrap(err, apperrors.ErrCodeInvalidPayload, "malformed message envelope"))
			continue
		}
		if env.Event == "" {
			c.replyError(apperrors.ErrInvalidPayload.WithDetails("event is required"))
			continue
		}

		c.hub.coordinator.Dispatch(c.id, env)
	}
}

// writePump 寫入消息到客戶端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Registry 關閉了發送隊列，嘗試優雅關閉
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// replyError 在信封解析階段直接回覆錯誤（尚未進入協調器）
func (c *Client) replyError(err error) {
	message, marshalErr := json.Marshal(Event{
		Type: EventError,
		Data: errorData{Code: apperrors.Code(err), Message: err.Error()},
	})
	if marshalErr != nil {
		return
	}
	c.Enqueue(message)
}
