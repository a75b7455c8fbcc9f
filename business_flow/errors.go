// Package businessflow contains the core business logic and use cases for postback reconciliation workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// User-related errors
	ErrUserNotFound = errors.New("user not found")
	ErrUserInactive = errors.New("user account is inactive")

	// Postback-related errors
	ErrDuplicatePostback = errors.New("postback already handled")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrEventNil          = errors.New("postback event is nil")

	// Filter errors
	ErrInvalidPage           = errors.New("page must be at least 1")
	ErrInvalidPageSize       = errors.New("page size must be between 1 and 100")
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func IsUserInactive(err error) bool {
	return errors.Is(err, ErrUserInactive)
}

func IsDuplicatePostback(err error) bool {
	return errors.Is(err, ErrDuplicatePostback)
}

func IsUnknownProvider(err error) bool {
	return errors.Is(err, ErrUnknownProvider)
}
