// Package apperr carries the error codes shared by the rental pipeline.
// Controllers switch on Code(err) to pick a response.
package apperr

import (
	"errors"
	"fmt"
)

type ErrCode string

const (
	ErrNotFound            ErrCode = "NOT_FOUND"
	ErrBadInput            ErrCode = "BAD_INPUT"
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrConflict            ErrCode = "CONFLICT"
	ErrUnavailable         ErrCode = "UNAVAILABLE"
	ErrAlreadyRented       ErrCode = "ALREADY_RENTED"
	ErrInvalidTransition   ErrCode = "INVALID_TRANSITION"
	ErrInvalidToken        ErrCode = "INVALID_TOKEN"
	ErrPaymentIncomplete   ErrCode = "PAYMENT_INCOMPLETE"
	ErrProviderUnavailable ErrCode = "PROVIDER_UNAVAILABLE"
	ErrSignatureMismatch   ErrCode = "SIGNATURE_MISMATCH"
	ErrInvariantBroken     ErrCode = "INVARIANT_BROKEN"
)

type codedError struct {
	code ErrCode
	msg  string
	err  error
}

func (e *codedError) Error() string {
	switch {
	case e.msg != "" && e.err != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	case e.msg != "":
		return fmt.Sprintf("%s: %s", e.code, e.msg)
	case e.err != nil:
		return fmt.Sprintf("%s: %v", e.code, e.err)
	}
	return string(e.code)
}

func (e *codedError) Code() ErrCode { return e.code }
func (e *codedError) Unwrap() error { return e.err }

// New makes a coded error with a formatted message.
func New(c ErrCode, format string, args ...any) error {
	return &codedError{code: c, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to err. A nil err stays nil.
func Wrap(c ErrCode, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &codedError{code: c, msg: msg, err: err}
}

// Code extracts the outermost error code, or "" for uncoded errors.
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

func Is(err error, c ErrCode) bool { return err != nil && Code(err) == c }
