package internal

import (
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/koopa0/room-relay/pkg/errors"
)

// 系統設計問題：
//   傳輸層每個連接一個讀取 goroutine，房間狀態卻要求
//   「單房間事件按接收順序處理到完成」，如何兩者兼得？
//
// 設計方案：
//   所有入站事件（包括斷線）匯入同一條有界 channel，由單一
//   協調器 goroutine 逐一處理。一個事件的「讀取-變更-廣播」
//   全程完成後才取下一個，天然保證：
//     - 單房間順序：同一玩家的兩次移動按接收順序落地
//     - 無鎖競態：Store 變更全部來自這一個 goroutine
//     - 隔離性：錯誤事件只影響來源連接，不波及其他房間

const (
	eventBuffer   = 256
	sweepInterval = 1 * time.Minute
)

// inbound 入站事件（來自連接讀取 goroutine、斷線路徑或閒置掃描）
type inbound struct {
	connID     string
	envelope   Envelope
	disconnect bool
	sweep      bool
}

// Coordinator 會話協調器
//
// 接收 Registry 轉入的事件，透過 Allocator 變更 Store，
// 並計算出站事件與其接收者。每個房間是一個小型狀態機：
// 無條目（Empty）→ 有成員（Active）→ 最後一名成員離開時刪除。
type Coordinator struct {
	store    *Store
	alloc    *Allocator
	registry *Registry
	logger   *slog.Logger

	events chan inbound
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCoordinator 創建協調器並啟動事件循環
func NewCoordinator(store *Store, alloc *Allocator, registry *Registry, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		store:    store,
		alloc:    alloc,
		registry: registry,
		logger:   logger,
		events:   make(chan inbound, eventBuffer),
		stopCh:   make(chan struct{}),
	}

	c.wg.Add(1)
	go c.loop()

	return c
}

// Dispatch 將入站消息排入協調器
//
// 阻塞式入隊：緩衝滿時讓連接的讀取 goroutine 等待，
// 丟事件會破壞順序保證。
func (c *Coordinator) Dispatch(connID string, env Envelope) {
	select {
	case c.events <- inbound{connID: connID, envelope: env}:
	case <-c.stopCh:
	}
}

// HandleDisconnect 連接關閉時排入斷線事件
func (c *Coordinator) HandleDisconnect(connID string) {
	select {
	case c.events <- inbound{connID: connID, disconnect: true}:
	case <-c.stopCh:
	}
}

// Sweep 排入一次閒置房間掃描
//
// 掃描平時由事件循環的定時器觸發，這裡公開給測試與運維使用。
func (c *Coordinator) Sweep() {
	select {
	case c.events <- inbound{sweep: true}:
	case <-c.stopCh:
	}
}

// Stop 停止協調器
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.logger.Info("協調器已停止")
}

// loop 事件循環（run-to-completion）
//
// 閒置掃描也在這裡觸發：房間回收與成員事件在同一個 goroutine
// 內串行執行，存儲和連接註冊表不會彼此失去同步。
func (c *Coordinator) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case in := <-c.events:
			c.handle(in)
		case <-ticker.C:
			c.sweepIdleRooms()
		case <-c.stopCh:
			return
		}
	}
}

// handle 處理單一入站事件
//
// 任何失敗都只記錄警告並回覆來源連接，絕不讓協調器崩潰，
// 也絕不波及其他房間。
func (c *Coordinator) handle(in inbound) {
	if in.disconnect {
		c.handleDisconnect(in.connID)
		return
	}
	if in.sweep {
		c.sweepIdleRooms()
		return
	}

	switch in.envelope.Event {
	case EventCreateOrJoinRoom:
		c.handleCreateOrJoin(in.connID, in.envelope.Data)
	case EventJoinRoom:
		c.handleJoinRoom(in.connID, in.envelope.Data)
	case EventPlayerMovement, EventPlayerMove:
		c.handleMovement(in.connID, in.envelope.Data)
	case EventLeaveRoom:
		c.handleLeaveRoom(in.connID, in.envelope.Data)
	default:
		c.logger.Warn("未知事件類型", "event", in.envelope.Event, "conn_id", in.connID)
		c.registry.SendError(in.connID, apperrors.ErrInvalidPayload.WithDetails("unknown event: "+in.envelope.Event))
	}
}

// handleCreateOrJoin 處理 createOrJoinRoom
//
// 未提供房間代碼時的策略是「一律創建新房間」（見 Allocator），
// 回覆只發給創建者本人：roomJoined 帶空的現有玩家列表。
func (c *Coordinator) handleCreateOrJoin(connID string, data map[string]any) {
	payload, err := decodeCreateOrJoin(data)
	if err != nil {
		c.reject(connID, EventCreateOrJoinRoom, err)
		return
	}

	if playerID, bound := c.registry.PlayerID(connID); bound {
		c.reject(connID, EventCreateOrJoinRoom, apperrors.ErrPlayerInRoom.WithDetails(playerID))
		return
	}

	roomID, player, err := c.alloc.CreateOrJoin(payload.Username)
	if err != nil {
		c.reject(connID, EventCreateOrJoinRoom, err)
		return
	}

	c.registry.Bind(connID, player.ID)
	c.registry.Send(connID, EventRoomJoined, roomJoinedData{
		RoomID:  roomID,
		Players: []Player{},
	})
}

// handleJoinRoom 處理 joinRoom
//
// 加入者收到 roomJoined（按加入順序回放現有玩家，不含自己）；
// 其餘成員收到 playerJoined。
func (c *Coordinator) handleJoinRoom(connID string, data map[string]any) {
	payload, err := decodeJoinRoom(data)
	if err != nil {
		c.reject(connID, EventJoinRoom, err)
		return
	}

	if playerID, bound := c.registry.PlayerID(connID); bound {
		c.reject(connID, EventJoinRoom, apperrors.ErrPlayerInRoom.WithDetails(playerID))
		return
	}

	player, err := c.alloc.JoinExisting(payload.RoomID, payload.Username)
	if err != nil {
		c.reject(connID, EventJoinRoom, err)
		return
	}

	c.registry.Bind(connID, player.ID)

	members, err := c.store.Players(payload.RoomID)
	if err != nil {
		c.reject(connID, EventJoinRoom, err)
		return
	}
	existing := make([]Player, 0, len(members)-1)
	for _, m := range members {
		if m.ID != player.ID {
			existing = append(existing, m)
		}
	}

	c.registry.Send(connID, EventRoomJoined, roomJoinedData{
		RoomID:  payload.RoomID,
		Players: existing,
	})
	c.registry.Broadcast(payload.RoomID, EventPlayerJoined, playerJoinedData{
		PlayerID: player.ID,
		Player:   player,
	}, player.ID)
}

// handleMovement 處理 playerMovement / playerMove
//
// 發送者必須是目標房間的成員；更新存儲位置後轉發給同房間的
// 其他成員，絕不回送給發送者本人。
func (c *Coordinator) handleMovement(connID string, data map[string]any) {
	roomID, movement, err := decodePlayerMovement(data)
	if err != nil {
		c.reject(connID, EventPlayerMovement, err)
		return
	}

	playerID, bound := c.registry.PlayerID(connID)
	if !bound {
		c.reject(connID, EventPlayerMovement, apperrors.ErrMemberNotFound.WithDetails("connection has no player"))
		return
	}

	if current, ok := c.store.RoomOf(playerID); !ok || current != roomID {
		c.reject(connID, EventPlayerMovement, apperrors.ErrMemberNotFound.WithDetails(playerID))
		return
	}

	if err := c.store.UpdateMemberPosition(roomID, playerID, movement); err != nil {
		c.reject(connID, EventPlayerMovement, err)
		return
	}

	c.registry.Broadcast(roomID, EventPlayerMoved, playerMovedData{
		PlayerID: playerID,
		Movement: movement,
	}, playerID)
}

// handleLeaveRoom 處理顯式離開房間
//
// 與斷線走同一條移除路徑，但連接保持存活，玩家之後可以再
// 創建或加入其他房間。
func (c *Coordinator) handleLeaveRoom(connID string, data map[string]any) {
	payload, err := decodeLeaveRoom(data)
	if err != nil {
		c.reject(connID, EventLeaveRoom, err)
		return
	}

	playerID, bound := c.registry.PlayerID(connID)
	if !bound {
		c.reject(connID, EventLeaveRoom, apperrors.ErrMemberNotFound.WithDetails("connection has no player"))
		return
	}

	if current, ok := c.store.RoomOf(playerID); !ok || current != payload.RoomID {
		c.reject(connID, EventLeaveRoom, apperrors.ErrMemberNotFound.WithDetails(playerID))
		return
	}

	c.removeFromRoom(payload.RoomID, playerID)
	c.registry.Unbind(connID)
}

// handleDisconnect 處理連接關閉
//
// Remove 是冪等的：連接已被釋放時直接返回，不會重複廣播
// playerLeft。
func (c *Coordinator) handleDisconnect(connID string) {
	playerID, ok := c.registry.Remove(connID)
	if !ok || playerID == "" {
		return
	}

	roomID, inRoom := c.store.RoomOf(playerID)
	if !inRoom {
		return
	}

	c.removeFromRoom(roomID, playerID)
}

// removeFromRoom 從房間移除玩家並通知剩餘成員
//
// 房間變空時 Store 已將其刪除，此時不再廣播。
func (c *Coordinator) removeFromRoom(roomID, playerID string) {
	roomDeleted, err := c.store.RemoveMember(roomID, playerID)
	if err != nil {
		c.logger.Warn("移除成員失敗",
			"room_id", roomID,
			"player_id", playerID,
			"error", err)
		return
	}

	c.logger.Info("玩家離開房間", "room_id", roomID, "player_id", playerID)

	if roomDeleted {
		return
	}

	c.registry.Broadcast(roomID, EventPlayerLeft, playerLeftData{
		PlayerID: playerID,
	}, playerID)
}

// sweepIdleRooms 回收閒置超過 TTL 的房間
//
// 每名成員先收到 ROOM_CLOSED 並解除連接綁定，再從存儲移除。
// 綁定必須在這裡一併清理：仍然在線的成員之後要能重新創建或
// 加入房間，殘留的綁定會讓後續請求被 PLAYER_IN_ROOM 拒絕。
// 房間整體關閉，因此不逐一廣播 playerLeft。
func (c *Coordinator) sweepIdleRooms() {
	for _, roomID := range c.store.IdleRoomIDs() {
		memberIDs, err := c.store.MemberIDs(roomID)
		if err != nil {
			continue
		}

		for _, playerID := range memberIDs {
			if connID, ok := c.registry.ConnID(playerID); ok {
				c.registry.SendError(connID, apperrors.ErrRoomClosed.WithDetails(roomID))
				c.registry.Unbind(connID)
			}

			if _, err := c.store.RemoveMember(roomID, playerID); err != nil {
				c.logger.Warn("清理閒置房間成員失敗",
					"room_id", roomID,
					"player_id", playerID,
					"error", err)
			}
		}

		c.logger.Warn("閒置房間已清理", "room_id", roomID, "members", len(memberIDs))
	}
}

// reject 記錄警告並回覆錯誤事件
//
// 引用不存在房間或玩家的事件在此被丟棄：記錄警告、回覆來源
// 連接，不向上傳播。
func (c *Coordinator) reject(connID, event string, err error) {
	c.logger.Warn("事件被拒絕",
		"event", event,
		"conn_id", connID,
		"error", err)
	c.registry.SendError(connID, err)
}
