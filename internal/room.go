package internal

import (
	"fmt"
	"time"
)

// 系統設計問題：
//   如何在多個遊戲客戶端之間中繼房間成員與位置更新？
//
// 核心挑戰：
//   1. 成員管理：玩家同一時間只能屬於一個房間
//   2. 順序保證：同一房間的事件必須按接收順序處理
//   3. 廣播路由：移動事件只發給同房間的其他玩家（不回送給自己）
//   4. 資源回收：最後一名玩家離開後房間必須被刪除
//
// 設計方案：
//   ✅ Store 集中持有房間狀態 - 避免模組級全域變數
//   ✅ 單一協調器 goroutine - 事件逐一處理到完成
//   ✅ 邊界驗證 - 消息在進入 Store 前先解碼為具型別的值
//   ✅ 空房間即時 GC + 閒置超時清理

// Direction 玩家面向方向
type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// ParseDirection 驗證並轉換方向字串
//
// 客戶端提供的方向只允許四個值，其他一律拒絕，
// 避免未驗證的字串進入 Store。
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUp, DirectionDown, DirectionLeft, DirectionRight:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("invalid direction: %q", s)
	}
}

// Movement 一次位置更新
type Movement struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Direction Direction `json:"direction"`
}

// Player 房間成員
//
// Username 由客戶端提供，不驗證唯一性；ID 在連接加入房間時生成，
// 全域唯一。
type Player struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Direction Direction `json:"direction"`
}

// Room 遊戲房間
//
// 成員以加入順序保存（order slice），新加入者需要按此順序
// 回放現有玩家列表。Room 由 Store 獨佔持有，所有欄位只能在
// Store 的鎖保護下讀寫，因此本身不帶鎖。
type Room struct {
	ID        string
	CreatedAt time.Time

	members    map[string]*Player
	order      []string // 加入順序（playerID）
	lastActive time.Time
}

func newRoom(id string) *Room {
	now := time.Now()
	return &Room{
		ID:         id,
		CreatedAt:  now,
		members:    make(map[string]*Player),
		order:      make([]string, 0, 4),
		lastActive: now,
	}
}

// addMember 依加入順序附加成員（呼叫方需持有 Store 鎖）
func (r *Room) addMember(p *Player) {
	r.members[p.ID] = p
	r.order = append(r.order, p.ID)
	r.lastActive = time.Now()
}

// removeMember 移除成員，回傳是否存在
func (r *Room) removeMember(playerID string) bool {
	if _, ok := r.members[playerID]; !ok {
		return false
	}
	delete(r.members, playerID)
	for i, id := range r.order {
		if id == playerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.lastActive = time.Now()
	return true
}

// member 查找成員
func (r *Room) member(playerID string) (*Player, bool) {
	p, ok := r.members[playerID]
	return p, ok
}

// players 回傳按加入順序排列的成員快照
//
// 回傳值為拷貝，呼叫方可以在鎖外安全使用。
func (r *Room) players() []Player {
	result := make([]Player, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.members[id]; ok {
			result = append(result, *p)
		}
	}
	return result
}

// memberIDs 回傳按加入順序排列的成員 ID
func (r *Room) memberIDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// size 成員數量
func (r *Room) size() int {
	return len(r.members)
}

// idleSince 最後一次活動距今的時間
func (r *Room) idleSince(now time.Time) time.Duration {
	return now.Sub(r.lastActive)
}
