package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// 协议层错误码，出现在 error 帧的 code 字段
const (
	CodeMalformedFrame       = 1000
	CodeMissingField         = 1001
	CodeUnknownCommand       = 1002
	CodeAlreadyAuthenticated = 1003
	CodeAuthUnavailable      = 1004
	CodeInvalidPeer          = 1005
	ServerInternalError      = 1500
)

var (
	ErrMalformedFrame       = NewCodeError(CodeMalformedFrame, "Malformed frame")
	ErrMissingField         = NewCodeError(CodeMissingField, "Missing required field")
	ErrUnknownCommand       = NewCodeError(CodeUnknownCommand, "Unknown command")
	ErrAlreadyAuthenticated = NewCodeError(CodeAlreadyAuthenticated, "Already authenticated")
	ErrAuthUnavailable      = NewCodeError(CodeAuthUnavailable, "Authentication unavailable")
	ErrInvalidPeer          = NewCodeError(CodeInvalidPeer, "Invalid user.")
	ErrPersistence          = NewCodeError(ServerInternalError, "Storage failure")
)

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

// WithMsg 覆盖对外展示的文案，code 不变
func (e CodeError) WithMsg(msg string) CodeError {
	e.Msg = msg
	return e
}

func (e CodeError) WithDetail(detail string) CodeError {
	if e.Detail == "" {
		e.Detail = detail
	} else {
		e.Detail = e.Detail + ", " + detail
	}
	return e
}

// WrapMsg 附加上下文并带上调用栈
func (e CodeError) WrapMsg(msg string, kv ...any) error {
	if msg != "" || len(kv) > 0 {
		e = e.WithDetail(toString(msg, kv))
	}
	return pkgerrors.WithStack(e)
}

// Is 按 code 比较，允许 errors.Is(err, errs.ErrPersistence)
func (e CodeError) Is(target error) bool {
	var other CodeError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

const initialCapacity = 3

func (e CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// AsCodeError 取出链上的 CodeError，没有则归为内部错误
func AsCodeError(err error) CodeError {
	var ce CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrPersistence.WithDetail(err.Error())
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithMessage(err, toString(msg, kv))
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
