package chaterrors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理业务错误，包含错误码和错误消息
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取用户可见的错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeTokenInvalid   = 10001
	CodeTokenExpired   = 10002
	CodeSessionExpired = 10003

	// 会话相关 13000-13999
	CodeConversationNotFound = 13001
	CodeEmptyMessage         = 13002

	// 系统错误 50000-50999
	CodeServerError  = 50001
	CodeNetworkError = 50002
	CodeBadResponse  = 50003
)

// ============== 预定义错误 ==============

// 认证相关
var (
	ErrTokenInvalid   = NewError(CodeTokenInvalid, "Token 无效")
	ErrTokenExpired   = NewError(CodeTokenExpired, "Token 已过期")
	ErrSessionExpired = NewError(CodeSessionExpired, "登录状态已失效，请重新登录")
)

// 会话相关
var (
	ErrConversationNotFound = NewError(CodeConversationNotFound, "会话不存在")
	ErrEmptyMessage         = NewError(CodeEmptyMessage, "消息内容不能为空")
)

// 系统相关
var (
	ErrServerError  = NewError(CodeServerError, "服务器内部错误")
	ErrNetworkError = NewError(CodeNetworkError, "网络请求失败")
	ErrBadResponse  = NewError(CodeBadResponse, "服务器响应格式错误")
)
