package workflow

import (
	"errors"
	"fmt"
)

// ErrorKind 工作流错误分类
type ErrorKind string

const (
	KindAuthorization ErrorKind = "authorization"
	KindNotFound      ErrorKind = "not_found"
	KindValidation    ErrorKind = "validation"
	KindConflict      ErrorKind = "conflict"
	KindInternal      ErrorKind = "internal"
)

// Error 工作流错误
// Code 为机器可读的错误码, Message 为面向用户的描述
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Unauthorized 创建授权错误
func Unauthorized(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound 创建未找到错误
func NotFound(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Invalid 创建参数校验错误
func Invalid(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict 创建状态冲突错误
func Conflict(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf 返回错误分类, 非工作流错误一律视为 internal
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return KindInternal
}

// CodeOf 返回错误码
func CodeOf(err error) string {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Code
	}
	return "INTERNAL_ERROR"
}

// 常用错误
var (
	ErrNotAuthenticated = &Error{Kind: KindAuthorization, Code: "NOT_AUTHENTICATED", Message: "no authenticated user"}
	ErrLocked           = &Error{Kind: KindConflict, Code: "SCORES_LOCKED", Message: "application scores are locked"}
)
