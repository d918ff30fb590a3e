package game

import "fmt"

// ErrorCode is a stable machine-readable code surfaced to clients. Internal
// faults are never exposed raw; they map to one of these.
type ErrorCode string

const (
	CodeNotYourTurn        ErrorCode = "NOT_YOUR_TURN"
	CodeStaleAction        ErrorCode = "STALE_ACTION"
	CodeInvalidAction      ErrorCode = "INVALID_ACTION"
	CodeNotEnoughChips     ErrorCode = "NOT_ENOUGH_CHIPS"
	CodeRaiseTooSmall      ErrorCode = "RAISE_TOO_SMALL"
	CodeAlreadyFolded      ErrorCode = "ALREADY_FOLDED"
	CodeAlreadyAllIn       ErrorCode = "ALREADY_ALL_IN"
	CodeGameNotActive      ErrorCode = "GAME_NOT_ACTIVE"
	CodeGameAlreadyStarted ErrorCode = "GAME_ALREADY_STARTED"
	CodePlayerNotFound     ErrorCode = "PLAYER_NOT_FOUND"
	CodeNotEnoughPlayers   ErrorCode = "NOT_ENOUGH_PLAYERS"
	CodeNotAuthorized      ErrorCode = "NOT_AUTHORIZED"
	CodeHandFrozen         ErrorCode = "HAND_FROZEN"
)

// Error is a structured game error: a stable code plus human detail.
type Error struct {
	Code   ErrorCode `json:"code"`
	Detail string    `json:"details"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Errorf builds a structured error with formatted detail.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code, or empty string for non-game errors.
func CodeOf(err error) ErrorCode {
	if ge, ok := err.(*Error); ok {
		return ge.Code
	}
	return ""
}

// IsCode reports whether err is a game error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
