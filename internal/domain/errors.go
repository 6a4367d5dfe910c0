package domain

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied means the platform refused media access.
// Fatal to enumeration; the user must re-grant access and retry.
var ErrPermissionDenied = errors.New("media access permission denied")

// JoinRejectedError means the backend refused participant creation.
// Fatal to the join attempt, never retried automatically.
type JoinRejectedError struct {
	Status  int
	Message string
}

func (e *JoinRejectedError) Error() string {
	return fmt.Sprintf("request to create participant returned %d, message=%s", e.Status, e.Message)
}

// EngineConnectError means the engine connect step failed.
// Fatal to the join attempt.
type EngineConnectError struct {
	Cause error
}

func (e *EngineConnectError) Error() string {
	return fmt.Sprintf("engine connect failed: %v", e.Cause)
}

func (e *EngineConnectError) Unwrap() error { return e.Cause }

// PublishError means a stream publish failed. Non-fatal: the session
// continues without the affected stream.
type PublishError struct {
	Cause error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed: %v", e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }

// ScreenCaptureError means display capture was refused or failed.
// Non-fatal: the screen-share flag reverts to off.
type ScreenCaptureError struct {
	Cause error
}

func (e *ScreenCaptureError) Error() string {
	return fmt.Sprintf("screen capture failed: %v", e.Cause)
}

func (e *ScreenCaptureError) Unwrap() error { return e.Cause }
