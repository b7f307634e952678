package internal

import (
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/koopa0/room-relay/pkg/errors"
)

// 預設配置
const (
	defaultCodeLength   = 6
	defaultCodeAttempts = 10
	defaultSpawnX       = 5
	defaultSpawnY       = 5
)

// Allocator 房間分配策略
//
// 負責兩個決策：房間代碼生成（碰撞時有限重試）與
// 「自動配對或指定加入」。目前策略：未提供房間代碼時一律創建
// 新房間，不做撮合進現有房間——這是刻意的簡化，不是 bug。
type Allocator struct {
	store  *Store
	logger *slog.Logger

	codeLength   int
	codeAttempts int
	spawnX       float64
	spawnY       float64
}

// AllocatorOption 分配器配置選項
type AllocatorOption func(*Allocator)

// WithCodeLength 設置房間代碼長度
func WithCodeLength(n int) AllocatorOption {
	return func(a *Allocator) { a.codeLength = n }
}

// WithCodeAttempts 設置代碼碰撞重試上限
func WithCodeAttempts(n int) AllocatorOption {
	return func(a *Allocator) { a.codeAttempts = n }
}

// WithSpawn 設置出生點座標
func WithSpawn(x, y float64) AllocatorOption {
	return func(a *Allocator) { a.spawnX = x; a.spawnY = y }
}

// NewAllocator 創建房間分配器
func NewAllocator(store *Store, logger *slog.Logger, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		store:        store,
		logger:       logger,
		codeLength:   defaultCodeLength,
		codeAttempts: defaultCodeAttempts,
		spawnX:       defaultSpawnX,
		spawnY:       defaultSpawnY,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateOrJoin 創建新房間並讓玩家加入
//
// 回傳房間代碼與新建的玩家（出生點位置、面向下方）。
func (a *Allocator) CreateOrJoin(username string) (string, Player, error) {
	roomID, err := a.allocateRoom()
	if err != nil {
		return "", Player{}, err
	}

	player := a.newPlayer(username)
	if err := a.store.AddMember(roomID, player); err != nil {
		return "", Player{}, err
	}

	a.logger.Info("玩家創建房間",
		"room_id", roomID,
		"player_id", player.ID,
		"username", username)

	return roomID, player, nil
}

// JoinExisting 加入既有房間
func (a *Allocator) JoinExisting(roomID, username string) (Player, error) {
	player := a.newPlayer(username)
	if err := a.store.AddMember(roomID, player); err != nil {
		return Player{}, err
	}

	a.logger.Info("玩家加入房間",
		"room_id", roomID,
		"player_id", player.ID,
		"username", username)

	return player, nil
}

// allocateRoom 生成代碼並向 Store 註冊房間
//
// 代碼碰撞時重試，超過重試上限回傳 AllocationExhausted。
// 無上限的重試在代碼空間接近佔滿時不保證終止，上限讓失敗有界。
func (a *Allocator) allocateRoom() (string, error) {
	for i := 0; i < a.codeAttempts; i++ {
		code := a.generateRoomCode()

		err := a.store.Create(code)
		if err == nil {
			return code, nil
		}
		if !apperrors.IsAlreadyExists(err) {
			return "", err
		}

		a.logger.Debug("房間代碼碰撞，重試", "code", code, "attempt", i+1)
	}

	return "", apperrors.ErrAllocationExhausted
}

// generateRoomCode 生成簡短可分享的房間代碼
func (a *Allocator) generateRoomCode() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, a.codeLength)
	for i := range b {
		b[i] = chars[randInt(len(chars))]
	}
	return string(b)
}

// newPlayer 創建玩家（ID 在加入房間時生成）
func (a *Allocator) newPlayer(username string) Player {
	return Player{
		ID:        uuid.NewString(),
		Username:  username,
		X:         a.spawnX,
		Y:         a.spawnY,
		Direction: DirectionDown,
	}
}

// randInt 生成隨機數
func randInt(max int) int {
	b := make([]byte, 1)
	if _, err := rand.Read(b); err != nil {
		// 如果隨機讀取失敗，使用時間作為隨機源
		return int(time.Now().UnixNano()) % max
	}
	return int(b[0]) % max
}
