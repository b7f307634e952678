package internal_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/room-relay/internal"
	apperrors "github.com/koopa0/room-relay/pkg/errors"
)

// testLogger 測試用日誌（只輸出錯誤，避免淹沒測試輸出）
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPlayer(id, username string) internal.Player {
	return internal.Player{
		ID:        id,
		Username:  username,
		X:         5,
		Y:         5,
		Direction: internal.DirectionDown,
	}
}

// TestStore_Create 測試創建房間
func TestStore_Create(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()

	require.NoError(t, store.Create("ABC123"))
	assert.True(t, store.Exists("ABC123"))

	// 重複代碼被拒絕
	err := store.Create("ABC123")
	require.Error(t, err)
	assert.True(t, apperrors.IsAlreadyExists(err))
}

// TestStore_AddMember 測試加入成員
func TestStore_AddMember(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, store *internal.Store)
		roomID   string
		player   internal.Player
		validate func(t *testing.T, store *internal.Store, err error)
	}{
		{
			name: "add member to existing room",
			setup: func(t *testing.T, store *internal.Store) {
				require.NoError(t, store.Create("ROOM01"))
			},
			roomID: "ROOM01",
			player: testPlayer("p1", "alice"),
			validate: func(t *testing.T, store *internal.Store, err error) {
				require.NoError(t, err)

				roomID, ok := store.RoomOf("p1")
				assert.True(t, ok)
				assert.Equal(t, "ROOM01", roomID)

				players, err := store.Players("ROOM01")
				require.NoError(t, err)
				require.Len(t, players, 1)
				assert.Equal(t, "alice", players[0].Username)
			},
		},
		{
			name:   "room not found",
			setup:  func(t *testing.T, store *internal.Store) {},
			roomID: "MISSING",
			player: testPlayer("p1", "alice"),
			validate: func(t *testing.T, store *internal.Store, err error) {
				require.Error(t, err)
				assert.True(t, apperrors.IsNotFound(err))
			},
		},
		{
			name: "player already in another room",
			setup: func(t *testing.T, store *internal.Store) {
				require.NoError(t, store.Create("ROOM01"))
				require.NoError(t, store.Create("ROOM02"))
				require.NoError(t, store.AddMember("ROOM01", testPlayer("p1", "alice")))
			},
			roomID: "ROOM02",
			player: testPlayer("p1", "alice"),
			validate: func(t *testing.T, store *internal.Store, err error) {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrPlayerInRoom)

				// 單房間不變量：玩家仍然只在原房間
				roomID, ok := store.RoomOf("p1")
				assert.True(t, ok)
				assert.Equal(t, "ROOM01", roomID)

				players, err := store.Players("ROOM02")
				require.NoError(t, err)
				assert.Empty(t, players)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := internal.NewStore(testLogger(), 0)
			defer store.Stop()

			tt.setup(t, store)
			err := store.AddMember(tt.roomID, tt.player)
			tt.validate(t, store, err)
		})
	}
}

// TestStore_JoinOrder 測試成員按加入順序回放
func TestStore_JoinOrder(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()

	require.NoError(t, store.Create("ROOM01"))
	require.NoError(t, store.AddMember("ROOM01", testPlayer("p1", "alice")))
	require.NoError(t, store.AddMember("ROOM01", testPlayer("p2", "bob")))
	require.NoError(t, store.AddMember("ROOM01", testPlayer("p3", "carol")))

	players, err := store.Players("ROOM01")
	require.NoError(t, err)
	require.Len(t, players, 3)
	assert.Equal(t, "alice", players[0].Username)
	assert.Equal(t, "bob", players[1].Username)
	assert.Equal(t, "carol", players[2].Username)

	// 移除中間成員後順序保持
	deleted, err := store.RemoveMember("ROOM01", "p2")
	require.NoError(t, err)
	assert.False(t, deleted)

	players, err = store.Players("ROOM01")
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Username)
	assert.Equal(t, "carol", players[1].Username)

	// 新加入者附加在尾部
	require.NoError(t, store.AddMember("ROOM01", testPlayer("p4", "dave")))
	ids, err := store.MemberIDs("ROOM01")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3", "p4"}, ids)
}

// TestStore_RemoveMember 測試移除成員與空房間 GC
func TestStore_RemoveMember(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()

	require.NoError(t, store.Create("ROOM01"))
	require.NoError(t, store.AddMember("ROOM01", testPlayer("p1", "alice")))
	require.NoError(t, store.AddMember("ROOM01", testPlayer("p2", "bob")))

	// 非成員
	_, err := store.RemoveMember("ROOM01", "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	// 還有剩餘成員，房間保留
	deleted, err := store.RemoveMember("ROOM01", "p1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, store.Exists("ROOM01"))

	_, ok := store.RoomOf("p1")
	assert.False(t, ok)

	// 最後一名成員離開，房間立即刪除
	deleted, err = store.RemoveMember("ROOM01", "p2")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, store.Exists("ROOM01"))
	assert.Equal(t, 0, store.RoomCount())

	// 對已刪除的房間操作回傳未找到
	_, err = store.Players("ROOM01")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

// TestStore_UpdateMemberPosition 測試位置更新
func TestStore_UpdateMemberPosition(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()

	require.NoError(t, store.Create("ROOM01"))
	require.NoError(t, store.AddMember("ROOM01", testPlayer("p1", "alice")))

	movement := internal.Movement{X: 12, Y: 7, Direction: internal.DirectionLeft}
	require.NoError(t, store.UpdateMemberPosition("ROOM01", "p1", movement))

	players, err := store.Players("ROOM01")
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, float64(12), players[0].X)
	assert.Equal(t, float64(7), players[0].Y)
	assert.Equal(t, internal.DirectionLeft, players[0].Direction)

	// 未知房間 / 非成員
	err = store.UpdateMemberPosition("MISSING", "p1", movement)
	assert.True(t, apperrors.IsNotFound(err))

	err = store.UpdateMemberPosition("ROOM01", "ghost", movement)
	assert.True(t, apperrors.IsNotFound(err))
}

// TestStore_SingleRoomInvariant 測試任意加入離開序列下玩家至多屬於一個房間
func TestStore_SingleRoomInvariant(t *testing.T) {
	store := internal.NewStore(testLogger(), 0)
	defer store.Stop()

	require.NoError(t, store.Create("ROOM01"))
	require.NoError(t, store.Create("ROOM02"))

	// 加入 → 離開 → 加入另一個房間，始終只有一個歸屬
	require.NoError(t, store.AddMember("ROOM01", testPlayer("p1", "alice")))
	assert.Error(t, store.AddMember("ROOM02", testPlayer("p1", "alice")))

	_, err := store.RemoveMember("ROOM01", "p1")
	require.NoError(t, err)

	require.NoError(t, store.AddMember("ROOM02", testPlayer("p1", "alice")))
	roomID, ok := store.RoomOf("p1")
	assert.True(t, ok)
	assert.Equal(t, "ROOM02", roomID)
}

// TestStore_IdleRoomIDs 測試閒置房間掃描
func TestStore_IdleRoomIDs(t *testing.T) {
	store := internal.NewStore(testLogger(), 10*time.Millisecond)
	defer store.Stop()

	require.NoError(t, store.Create("ROOM01"))
	require.NoError(t, store.AddMember("ROOM01", testPlayer("p1", "alice")))

	// 剛有活動的房間不會被列出
	assert.Empty(t, store.IdleRoomIDs())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"ROOM01"}, store.IdleRoomIDs())

	// 位置更新刷新活動時間
	require.NoError(t, store.UpdateMemberPosition("ROOM01", "p1",
		internal.Movement{X: 1, Y: 1, Direction: internal.DirectionUp}))
	assert.Empty(t, store.IdleRoomIDs())

	// TTL 為 0 時掃描停用
	disabled := internal.NewStore(testLogger(), 0)
	defer disabled.Stop()
	require.NoError(t, disabled.Create("ROOM02"))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, disabled.IdleRoomIDs())
}
