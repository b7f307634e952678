package internal

import (
	"github.com/mitchellh/mapstructure"

	apperrors "github.com/koopa0/room-relay/pkg/errors"
)

// 客戶端 → 服務器事件
const (
	EventCreateOrJoinRoom = "createOrJoinRoom"
	EventJoinRoom         = "joinRoom"
	EventPlayerMovement   = "playerMovement"
	// EventPlayerMove 舊場景使用的別名，語義與 playerMovement 相同
	EventPlayerMove = "playerMove"
	EventLeaveRoom  = "leaveRoom"
)

// 服務器 → 客戶端事件
const (
	EventRoomJoined   = "roomJoined"
	EventPlayerJoined = "playerJoined"
	EventPlayerMoved  = "playerMoved"
	EventPlayerLeft   = "playerLeft"
	EventError        = "errorEvent"
)

// Envelope 入站消息信封
//
// 所有客戶端消息共用 {event, data} 外層結構，data 在協調器內
// 按事件類型解碼為具型別的 payload（邊界驗證，拒絕畸形消息，
// 不讓未定義欄位滲入 Store）。
type Envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Event 出站消息
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// 入站 payload

type createOrJoinPayload struct {
	Username string `mapstructure:"username"`
}

type joinRoomPayload struct {
	RoomID   string `mapstructure:"roomId"`
	Username string `mapstructure:"username"`
}

type movementPayload struct {
	X         float64 `mapstructure:"x"`
	Y         float64 `mapstructure:"y"`
	Direction string  `mapstructure:"direction"`
}

type playerMovementPayload struct {
	RoomID   string          `mapstructure:"roomId"`
	Movement movementPayload `mapstructure:"movement"`
}

type leaveRoomPayload struct {
	RoomID string `mapstructure:"roomId"`
}

// 出站 payload

type roomJoinedData struct {
	RoomID  string   `json:"roomId"`
	Players []Player `json:"players"`
}

type playerJoinedData struct {
	PlayerID string `json:"playerId"`
	Player   Player `json:"player"`
}

type playerMovedData struct {
	PlayerID string   `json:"playerId"`
	Movement Movement `json:"movement"`
}

type playerLeftData struct {
	PlayerID string `json:"playerId"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeCreateOrJoin 解碼並驗證 createOrJoinRoom
func decodeCreateOrJoin(data map[string]any) (createOrJoinPayload, error) {
	var p createOrJoinPayload
	if err := mapstructure.Decode(data, &p); err != nil {
		return p, apperrors.Wrap(err, apperrors.ErrCodeInvalidPayload, "malformed createOrJoinRoom payload")
	}
	if p.Username == "" {
		return p, apperrors.ErrInvalidPayload.WithDetails("username is required")
	}
	return p, nil
}

// decodeJoinRoom 解碼並驗證 joinRoom
func decodeJoinRoom(data map[string]any) (joinRoomPayload, error) {
	var p joinRoomPayload
	if err := mapstructure.Decode(data, &p); err != nil {
		return p, apperrors.Wrap(err, apperrors.ErrCodeInvalidPayload, "malformed joinRoom payload")
	}
	if p.RoomID == "" {
		return p, apperrors.ErrInvalidPayload.WithDetails("roomId is required")
	}
	if p.Username == "" {
		return p, apperrors.ErrInvalidPayload.WithDetails("username is required")
	}
	return p, nil
}

// decodePlayerMovement 解碼並驗證 playerMovement / playerMove
func decodePlayerMovement(data map[string]any) (string, Movement, error) {
	var p playerMovementPayload
	if err := mapstructure.Decode(data, &p); err != nil {
		return "", Movement{}, apperrors.Wrap(err, apperrors.ErrCodeInvalidPayload, "malformed playerMovement payload")
	}
	if p.RoomID == "" {
		return "", Movement{}, apperrors.ErrInvalidPayload.WithDetails("roomId is required")
	}

	direction, err := ParseDirection(p.Movement.Direction)
	if err != nil {
		return "", Movement{}, apperrors.Wrap(err, apperrors.ErrCodeInvalidPayload, "invalid movement direction")
	}

	return p.RoomID, Movement{
		X:         p.Movement.X,
		Y:         p.Movement.Y,
		Direction: direction,
	}, nil
}

// decodeLeaveRoom 解碼並驗證 leaveRoom
func decodeLeaveRoom(data map[string]any) (leaveRoomPayload, error) {
	var p leaveRoomPayload
	if err := mapstructure.Decode(data, &p); err != nil {
		return p, apperrors.Wrap(err, apperrors.ErrCodeInvalidPayload, "malformed leaveRoom payload")
	}
	if p.RoomID == "" {
		return p, apperrors.ErrInvalidPayload.WithDetails("roomId is required")
	}
	return p, nil
}
