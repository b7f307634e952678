package internal_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/room-relay/internal"
	apperrors "github.com/koopa0/room-relay/pkg/errors"
)

// TestAllocator_CreateOrJoin 測試「未提供代碼一律創建新房間」策略
func TestAllocator_CreateOrJoin(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()
	alloc := internal.NewAllocator(store, testLogger())

	roomID, player, err := alloc.CreateOrJoin("alice")
	require.NoError(t, err)

	// 房間代碼：6 位大寫字母與數字
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), roomID)
	assert.True(t, store.Exists(roomID))

	// 玩家在出生點，面向下方
	assert.NotEmpty(t, player.ID)
	assert.Equal(t, "alice", player.Username)
	assert.Equal(t, float64(5), player.X)
	assert.Equal(t, float64(5), player.Y)
	assert.Equal(t, internal.DirectionDown, player.Direction)

	got, ok := store.RoomOf(player.ID)
	assert.True(t, ok)
	assert.Equal(t, roomID, got)

	// 第二次呼叫創建另一個房間，不會撮合進現有房間
	roomID2, player2, err := alloc.CreateOrJoin("bob")
	require.NoError(t, err)
	assert.NotEqual(t, roomID, roomID2)
	assert.NotEqual(t, player.ID, player2.ID)
	assert.Equal(t, 2, store.RoomCount())
}

// TestAllocator_JoinExisting 測試加入既有房間
func TestAllocator_JoinExisting(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()
	alloc := internal.NewAllocator(store, testLogger())

	roomID, creator, err := alloc.CreateOrJoin("alice")
	require.NoError(t, err)

	joiner, err := alloc.JoinExisting(roomID, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, creator.ID, joiner.ID)

	// 加入順序：創建者在前
	players, err := store.Players(roomID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Username)
	assert.Equal(t, "bob", players[1].Username)

	// 未知房間
	_, err = alloc.JoinExisting("MISSING", "carol")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

// TestAllocator_SpawnOption 測試出生點配置
func TestAllocator_SpawnOption(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()
	alloc := internal.NewAllocator(store, testLogger(), internal.WithSpawn(10, 20))

	_, player, err := alloc.CreateOrJoin("alice")
	require.NoError(t, err)
	assert.Equal(t, float64(10), player.X)
	assert.Equal(t, float64(20), player.Y)
}

// TestAllocator_CollisionRetry 測試代碼碰撞後重試成功
func TestAllocator_CollisionRetry(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()

	// 單字符代碼空間共 36 個，佔用其中 35 個，留一個給重試命中
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for _, c := range chars[:35] {
		require.NoError(t, store.Create(string(c)))
	}

	alloc := internal.NewAllocator(store, testLogger(),
		internal.WithCodeLength(1),
		internal.WithCodeAttempts(1000))

	roomID, _, err := alloc.CreateOrJoin("alice")
	require.NoError(t, err)
	assert.Equal(t, "9", roomID)
}

// TestAllocator_Exhaustion 測試代碼空間耗盡時有界失敗
func TestAllocator_Exhaustion(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()

	// 佔滿整個單字符代碼空間
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for _, c := range chars {
		require.NoError(t, store.Create(string(c)))
	}

	alloc := internal.NewAllocator(store, testLogger(),
		internal.WithCodeLength(1),
		internal.WithCodeAttempts(10))

	_, _, err := alloc.CreateOrJoin("alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAllocationExhausted)

	// 失敗時不留下半成品：玩家沒有歸屬
	assert.Equal(t, 36, store.RoomCount())
}
