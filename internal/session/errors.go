package session

import (
	"fmt"
	"time"
)

// ConnectError covers dial, handshake and socket I/O failures.
type ConnectError struct {
	Op  string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// AuthError is returned when the device rejects the admin password or never answers.
type AuthError struct {
	// Code is the badp value; empty when no answer arrived.
	Code string
}

func (e *AuthError) Error() string {
	if e.Code == "" {
		return "authentication: no response from device"
	}

	return fmt.Sprintf("authentication rejected (badp=%s)", e.Code)
}

// ProtocolError reports a line the session could not use.
type ProtocolError struct {
	Name string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("protocol: %v", e.Err)
	}

	return fmt.Sprintf("protocol: %s: %v", e.Name, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a keep-alive or handshake deadline that passed.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response after %s", e.Op, e.After)
}
