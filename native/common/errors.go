package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable failure classes. Engine errors wrap exactly one of these so callers
// can branch with errors.Is or Code.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidApp          = errors.New("invalid app")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("overflow")
	ErrRewardRateTooHigh   = errors.New("reward rate too high")
	ErrRewardsLocked       = errors.New("rewards locked")
	ErrAlreadyConfigured   = errors.New("already configured")
	ErrPaused              = errors.New("paused")
)

// ErrorCode is the machine readable identifier of a failure class.
type ErrorCode string

const (
	CodeOK                  ErrorCode = ""
	CodeInvalidInput        ErrorCode = "InvalidInput"
	CodeUnauthorized        ErrorCode = "Unauthorized"
	CodeInvalidApp          ErrorCode = "InvalidApp"
	CodeInsufficientBalance ErrorCode = "InsufficientBalance"
	CodeOverflow            ErrorCode = "Overflow"
	CodeRewardRateTooHigh   ErrorCode = "RewardRateTooHigh"
	CodeRewardsLocked       ErrorCode = "RewardsLocked"
	CodeAlreadyConfigured   ErrorCode = "AlreadyConfigured"
	CodePaused              ErrorCode = "Paused"
	CodeInternal            ErrorCode = "Internal"
)

var codeTable = []struct {
	err    error
	code   ErrorCode
	status int
}{
	{ErrInvalidInput, CodeInvalidInput, http.StatusBadRequest},
	{ErrUnauthorized, CodeUnauthorized, http.StatusForbidden},
	{ErrInvalidApp, CodeInvalidApp, http.StatusBadRequest},
	{ErrInsufficientBalance, CodeInsufficientBalance, http.StatusConflict},
	{ErrOverflow, CodeOverflow, http.StatusBadRequest},
	{ErrRewardRateTooHigh, CodeRewardRateTooHigh, http.StatusUnprocessableEntity},
	{ErrRewardsLocked, CodeRewardsLocked, http.StatusConflict},
	{ErrAlreadyConfigured, CodeAlreadyConfigured, http.StatusConflict},
	{ErrPaused, CodePaused, http.StatusServiceUnavailable},
}

// Code maps an error chain onto its stable identifier. Nil maps to CodeOK and
// anything outside the taxonomy to CodeInternal.
func Code(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// HTTPStatus returns the response status used by the RPC layer for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}

// Wrap annotates a taxonomy sentinel with context while keeping it matchable.
func Wrap(class error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), class)
}
