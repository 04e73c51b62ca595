package errx

import (
	"errors"
	"fmt"
)

type Code string

type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) *Error { return &Error{Code: code, Msg: msg} }

func Wrap(code Code, err error, msg string) *Error { return &Error{Code: code, Msg: msg, Err: err} }

func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf 返回错误码，非 errx 错误返回 CodeUnknown
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

const (
	CodeStorageWrite   Code = "STORAGE_WRITE_FAILED"
	CodeStorageClear   Code = "STORAGE_CLEAR_FAILED"
	CodeInvalidCommand Code = "INVALID_COMMAND"
	CodeUnknownCommand Code = "UNKNOWN_COMMAND"
	CodeRecordNotFound Code = "RECORD_NOT_FOUND"
	CodeUnknown        Code = "UNKNOWN_ERROR"
)
