// Package errors 提供應用程式錯誤處理
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeRoomNotFound 房間未找到
	ErrCodeRoomNotFound = "ROOM_NOT_FOUND"
	// ErrCodeRoomAlreadyExists 房間代碼已被佔用
	ErrCodeRoomAlreadyExists = "ROOM_ALREADY_EXISTS"
	// ErrCodeMemberNotFound 玩家不是房間成員
	ErrCodeMemberNotFound = "MEMBER_NOT_FOUND"
	// ErrCodePlayerInRoom 玩家已在其他房間
	ErrCodePlayerInRoom = "PLAYER_IN_ROOM"
	// ErrCodeAllocationExhausted 房間代碼生成重試次數用盡
	ErrCodeAllocationExhausted = "ALLOCATION_EXHAUSTED"
	// ErrCodeRoomClosed 房間已被服務器回收
	ErrCodeRoomClosed = "ROOM_CLOSED"
	// ErrCodeInvalidPayload 無效的消息格式
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += fmt.Sprintf(" (%s)", e.Details)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 添加詳細資訊
func (e *AppError) WithDetails(details string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Err:     e.Err,
	}
}

// 預定義錯誤
var (
	// ErrRoomNotFound 房間不存在
	ErrRoomNotFound = New(ErrCodeRoomNotFound, "room not found")

	// ErrRoomAlreadyExists 房間代碼已存在
	ErrRoomAlreadyExists = New(ErrCodeRoomAlreadyExists, "room already exists")

	// ErrMemberNotFound 玩家不在房間內
	ErrMemberNotFound = New(ErrCodeMemberNotFound, "player is not a member of the room")

	// ErrPlayerInRoom 玩家已在房間內
	ErrPlayerInRoom = New(ErrCodePlayerInRoom, "player already belongs to a room")

	// ErrAllocationExhausted 生成房間代碼失敗
	ErrAllocationExhausted = New(ErrCodeAllocationExhausted, "room code generation retries exhausted")

	// ErrRoomClosed 房間因閒置超時被回收
	ErrRoomClosed = New(ErrCodeRoomClosed, "room was closed by the server")

	// ErrInvalidPayload 無效的消息內容
	ErrInvalidPayload = New(ErrCodeInvalidPayload, "invalid message payload")
)

// Code 提取錯誤碼（非 AppError 回傳 INTERNAL_ERROR）
func Code(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeRoomNotFound || appErr.Code == ErrCodeMemberNotFound
	}
	return false
}

// IsAlreadyExists 檢查是否為已存在錯誤
func IsAlreadyExists(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeRoomAlreadyExists
	}
	return false
}

// IsInvalidPayload 檢查是否為無效消息錯誤
func IsInvalidPayload(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeInvalidPayload
	}
	return false
}
