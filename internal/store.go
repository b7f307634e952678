package internal

import (
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/koopa0/room-relay/pkg/errors"
)

// Store 房間狀態存儲
//
// 系統設計考量：
//
//  1. 顯式所有權：
//     房間表若放在模組級全域變數，任何 handler 都能碰到。
//     這裡改為顯式建構、注入協調器的實例，生命週期與測試隔離都清楚。
//
//  2. 並發控制（RWMutex）：
//     同一房間的併發加入 / 離開不能把成員列表競態成不一致狀態，
//     所有變更操作都在寫鎖內原子完成。讀操作（統計、閒置掃描）
//     使用讀鎖並發執行。
//
//  3. 單房間不變量：
//     playerRoom 索引保證一個玩家 ID 最多出現在一個房間的成員列表，
//     AddMember 在寫鎖內檢查並拒絕二次加入。
//
//  4. 資源回收：
//     最後一名成員離開時房間立即刪除（即時 GC）。閒置超時的兜底
//     清理由協調器驅動（見 Coordinator），Store 只提供 IdleRoomIDs
//     掃描——成員的移除必須走協調器的單一事件循環，否則存儲與
//     連接註冊表會失去同步。
type Store struct {
	rooms      map[string]*Room  // roomID -> Room
	playerRoom map[string]string // playerID -> roomID
	mu         sync.RWMutex
	logger     *slog.Logger

	idleTTL time.Duration // 0 表示停用閒置掃描
}

// NewStore 創建房間存儲
func NewStore(logger *slog.Logger, idleTTL time.Duration) *Store {
	return &Store{
		rooms:      make(map[string]*Room),
		playerRoom: make(map[string]string),
		logger:     logger,
		idleTTL:    idleTTL,
	}
}

// Create 創建房間
func (s *Store) Create(roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[roomID]; exists {
		return apperrors.ErrRoomAlreadyExists.WithDetails(roomID)
	}

	s.rooms[roomID] = newRoom(roomID)

	s.logger.Info("房間已創建", "room_id", roomID)
	return nil
}

// Exists 檢查房間是否存在
func (s *Store) Exists(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.rooms[roomID]
	return exists
}

// AddMember 將玩家加入房間（按加入順序附加）
func (s *Store) AddMember(roomID string, player Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return apperrors.ErrRoomNotFound.WithDetails(roomID)
	}

	// 單房間不變量：一個玩家 ID 最多屬於一個房間
	if existingRoomID, ok := s.playerRoom[player.ID]; ok {
		return apperrors.ErrPlayerInRoom.WithDetails(existingRoomID)
	}

	p := player
	room.addMember(&p)
	s.playerRoom[player.ID] = roomID

	return nil
}

// RemoveMember 將玩家移出房間
//
// 房間變空時立即刪除（空房間 GC），回傳值指示房間是否被刪除。
func (s *Store) RemoveMember(roomID, playerID string) (roomDeleted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return false, apperrors.ErrRoomNotFound.WithDetails(roomID)
	}

	if !room.removeMember(playerID) {
		return false, apperrors.ErrMemberNotFound.WithDetails(playerID)
	}
	delete(s.playerRoom, playerID)

	if room.size() == 0 {
		delete(s.rooms, roomID)
		s.logger.Info("空房間已刪除", "room_id", roomID)
		return true, nil
	}

	return false, nil
}

// UpdateMemberPosition 更新成員的位置與面向
func (s *Store) UpdateMemberPosition(roomID, playerID string, movement Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return apperrors.ErrRoomNotFound.WithDetails(roomID)
	}

	p, ok := room.member(playerID)
	if !ok {
		return apperrors.ErrMemberNotFound.WithDetails(playerID)
	}

	p.X = movement.X
	p.Y = movement.Y
	p.Direction = movement.Direction
	room.lastActive = time.Now()

	return nil
}

// Players 回傳房間成員快照（按加入順序）
func (s *Store) Players(roomID string) ([]Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return nil, apperrors.ErrRoomNotFound.WithDetails(roomID)
	}

	return room.players(), nil
}

// MemberIDs 回傳房間成員 ID（按加入順序）
//
// Registry 依此決定廣播的目標連接。
func (s *Store) MemberIDs(roomID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return nil, apperrors.ErrRoomNotFound.WithDetails(roomID)
	}

	return room.memberIDs(), nil
}

// RoomOf 查詢玩家所在房間
func (s *Store) RoomOf(playerID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roomID, exists := s.playerRoom[playerID]
	return roomID, exists
}

// RoomCount 活躍房間數量
func (s *Store) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// ListRooms 列出活躍房間（供運維端點使用）
func (s *Store) ListRooms() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]map[string]any, 0, len(s.rooms))
	for _, room := range s.rooms {
		result = append(result, map[string]any{
			"room_id":      room.ID,
			"player_count": room.size(),
			"created_at":   room.CreatedAt,
		})
	}
	return result
}

// Stats 獲取統計資訊
func (s *Store) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalPlayers := 0
	for _, room := range s.rooms {
		totalPlayers += room.size()
	}

	return map[string]any{
		"total_rooms":   len(s.rooms),
		"total_players": totalPlayers,
	}
}

// IdleRoomIDs 回傳閒置超過 TTL 的房間 ID
//
// 正常情況下空房間在最後一名成員離開時就已刪除，閒置掃描是兜底：
// 成員全部停止發送事件（如客戶端假死）時房間仍會被回收。
// 只掃描不移除——移除走協調器的事件循環，連同連接綁定一起清理。
func (s *Store) IdleRoomIDs() []string {
	if s.idleTTL <= 0 {
		return nil
	}

	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var idle []string
	for roomID, room := range s.rooms {
		if room.idleSince(now) >= s.idleTTL {
			idle = append(idle, roomID)
		}
	}
	return idle
}

// Stop 停止存儲
func (s *Store) Stop() {
	s.logger.Info("房間存儲已停止")
}
