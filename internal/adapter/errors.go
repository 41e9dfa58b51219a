package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Kind classifies an adapter failure. The scheduler and health tracker
// branch on Kind, never on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectivity
	KindAuth
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindAuth:
		return "auth"
	case KindParse:
		return "parse"
	}
	return "unknown"
}

// Error is the error type returned by every adapter operation.
type Error struct {
	Kind   Kind
	Device string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "adapter error"
	}
	return fmt.Sprintf("%s %s: %s error: %v", e.Device, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the Kind of err. Errors that are not *Error and not
// recognizably network failures are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if isConnectivityError(err) {
		return KindConnectivity
	}
	return KindUnknown
}

func newError(kind Kind, device, op string, err error) *Error {
	return &Error{Kind: kind, Device: device, Op: op, Err: err}
}

// classify wraps err with a Kind inferred from its shape. Errors that are
// already *Error are returned unchanged.
func classify(device, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if isAuthError(err) {
		return newError(KindAuth, device, op, err)
	}
	// Anything else that kept us from talking to the device.
	return newError(KindConnectivity, device, op, err)
}

func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}

	message := strings.ToLower(err.Error())
	for _, s := range []string{
		"broken pipe",
		"connection reset",
		"use of closed network connection",
		"connection refused",
		"no route to host",
		"i/o timeout",
		"timeout",
	} {
		if strings.Contains(message, s) {
			return true
		}
	}
	return false
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "unable to authenticate") ||
		strings.Contains(text, "authentication failed") ||
		strings.Contains(text, "unknown user") ||
		strings.Contains(text, "wrong digest") ||
		strings.Contains(text, "authorization error")
}
