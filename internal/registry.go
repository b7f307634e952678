package internal

import (
	"encoding/json"
	"log/slog"
	"sync"

	apperrors "github.com/koopa0/room-relay/pkg/errors"
)

// Conn 傳輸層連接的抽象
//
// 發送為 fire-and-forget：除了傳輸層本身，沒有投遞保證
// （至多一次、不重試）。測試使用記錄型假連接。
type Conn interface {
	ID() string
	Enqueue(message []byte)
	Close()
}

// MemberLister Registry 所需的只讀房間視圖
//
// 廣播需要知道房間成員，但成員變更仍然全部經由協調器，
// Registry 只讀不寫。
type MemberLister interface {
	MemberIDs(roomID string) ([]string, error)
}

// Registry 連接註冊表
//
// 只持有「連接 ↔ 玩家 ID」映射；房間成員變更一律委託協調器。
// 斷線必須冪等：同一連接的第二次 Remove 是 no-op，否則斷線和
// 顯式離開的競態會廣播出重複的 playerLeft。
type Registry struct {
	conns      map[string]Conn   // connID -> Conn
	connPlayer map[string]string // connID -> playerID
	playerConn map[string]string // playerID -> connID
	mu         sync.RWMutex

	members MemberLister
	logger  *slog.Logger
}

// NewRegistry 創建連接註冊表
func NewRegistry(members MemberLister, logger *slog.Logger) *Registry {
	return &Registry{
		conns:      make(map[string]Conn),
		connPlayer: make(map[string]string),
		playerConn: make(map[string]string),
		members:    members,
		logger:     logger,
	}
}

// Add 註冊新連接（尚未綁定玩家，玩家 ID 在加入房間時才分配）
func (reg *Registry) Add(conn Conn) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.conns[conn.ID()] = conn
}

// Bind 將連接綁定到玩家 ID（加入房間成功後呼叫）
func (reg *Registry) Bind(connID, playerID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.connPlayer[connID] = playerID
	reg.playerConn[playerID] = connID
}

// Unbind 解除連接與玩家的綁定（顯式離開房間後連接仍然存活）
func (reg *Registry) Unbind(connID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if playerID, ok := reg.connPlayer[connID]; ok {
		delete(reg.playerConn, playerID)
		delete(reg.connPlayer, connID)
	}
}

// PlayerID 查詢連接綁定的玩家
func (reg *Registry) PlayerID(connID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	playerID, ok := reg.connPlayer[connID]
	return playerID, ok
}

// ConnID 查詢玩家綁定的連接
func (reg *Registry) ConnID(playerID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	connID, ok := reg.playerConn[playerID]
	return connID, ok
}

// Remove 釋放連接（冪等）
//
// 回傳曾綁定的玩家 ID 供協調器走離開房間路徑；連接已不存在時
// 回傳 ok=false，呼叫方不做任何事。
func (reg *Registry) Remove(connID string) (playerID string, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	conn, exists := reg.conns[connID]
	if !exists {
		return "", false
	}
	delete(reg.conns, connID)

	if pid, bound := reg.connPlayer[connID]; bound {
		playerID = pid
		delete(reg.connPlayer, connID)
		delete(reg.playerConn, pid)
	}

	conn.Close()
	return playerID, true
}

// Send 向單一連接發送事件
//
// Enqueue 在讀鎖內執行，與 Remove 的關閉互斥，避免向已關閉的
// 發送隊列寫入。
func (reg *Registry) Send(connID, event string, data any) {
	message, err := json.Marshal(Event{Type: event, Data: data})
	if err != nil {
		reg.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}

	reg.mu.RLock()
	defer reg.mu.RUnlock()

	if conn, exists := reg.conns[connID]; exists {
		conn.Enqueue(message)
	}
}

// SendError 向單一連接回覆錯誤事件
func (reg *Registry) SendError(connID string, err error) {
	reg.Send(connID, EventError, errorData{
		Code:    apperrors.Code(err),
		Message: err.Error(),
	})
}

// Broadcast 向房間所有成員的連接廣播事件
//
// excludePlayerID 非空時跳過該玩家（移動事件不回送給發送者）。
// 廣播是 fire-and-forget：慢消費者由連接自身的發送緩衝吸收，
// 不會阻塞協調器。
func (reg *Registry) Broadcast(roomID, event string, data any, excludePlayerID string) {
	memberIDs, err := reg.members.MemberIDs(roomID)
	if err != nil {
		reg.logger.Warn("廣播目標房間不存在", "room_id", roomID, "event", event)
		return
	}

	message, err := json.Marshal(Event{Type: event, Data: data})
	if err != nil {
		reg.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}

	reg.mu.RLock()
	defer reg.mu.RUnlock()

	for _, playerID := range memberIDs {
		if playerID == excludePlayerID {
			continue
		}
		connID, bound := reg.playerConn[playerID]
		if !bound {
			continue
		}
		if conn, exists := reg.conns[connID]; exists {
			conn.Enqueue(message)
		}
	}
}

// ConnectionCount 當前連接數
func (reg *Registry) ConnectionCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.conns)
}
