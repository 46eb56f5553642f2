/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package mcperr provides the domain error kinds used across the bridge:
// error codes classify failures the way an HTTP status does, each value
// carries an optional causal chain, and the admin surface maps kinds to
// status codes without needing to inspect message text.
package mcperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way an HTTP status category does.
type Kind uint8

const (
	Unknown Kind = iota
	ValidationError
	NotFound
	AlreadyExists
	InvalidState
	ServerStartFailed
	ServerStopFailed
	ConnectionFailed
	TransportError
	UnsupportedTransport
)

func (k Kind) String() string {
	switch k {
	case ValidationError:
		return "ValidationError"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case InvalidState:
		return "InvalidState"
	case ServerStartFailed:
		return "ServerStartFailed"
	case ServerStopFailed:
		return "ServerStopFailed"
	case ConnectionFailed:
		return "ConnectionFailed"
	case TransportError:
		return "TransportError"
	case UnsupportedTransport:
		return "UnsupportedTransport"
	default:
		return "Unknown"
	}
}

// Error is the domain error value threaded through the core. It names
// which server/connection id it refers to, so operator-visible
// failures always name the subject id.
type Error interface {
	error
	Code() Kind
	Subject() string
	Cause() error
	Unwrap() error
}

type mcpError struct {
	code    Kind
	subject string
	message string
	cause   error
}

// New builds an Error of the given kind. subject is the server or
// connection id the failure concerns; it may be empty for kinds that
// are not id-scoped (e.g. a pure ValidationError on request shape).
func New(code Kind, subject string, message string, cause error) Error {
	return &mcpError{code: code, subject: subject, message: message, cause: cause}
}

// Newf behaves like New but formats message with args.
func Newf(code Kind, subject string, cause error, format string, args ...interface{}) Error {
	return New(code, subject, fmt.Sprintf(format, args...), cause)
}

func (e *mcpError) Code() Kind     { return e.code }
func (e *mcpError) Subject() string { return e.subject }
func (e *mcpError) Cause() error   { return e.cause }
func (e *mcpError) Unwrap() error  { return e.cause }

func (e *mcpError) Error() string {
	if e.subject != "" {
		if e.cause != nil {
			return fmt.Sprintf("%s[%s]: %s: %v", e.code, e.subject, e.message, e.cause)
		}
		return fmt.Sprintf("%s[%s]: %s", e.code, e.subject, e.message)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Is lets callers use errors.Is(err, mcperr.New(mcperr.NotFound, "", "", nil))
// style checks by comparing kinds, independent of subject/message/cause.
func (e *mcpError) Is(target error) bool {
	var o Error
	if errors.As(target, &o) {
		return o.Code() == e.code
	}
	return false
}

// CodeOf extracts the Kind from err, returning Unknown if err is nil or
// not an mcperr.Error.
func CodeOf(err error) Kind {
	var o Error
	if err == nil {
		return Unknown
	}
	if errors.As(err, &o) {
		return o.Code()
	}
	return Unknown
}

// AsKind is a convenience predicate used by callers that only care
// whether err carries a given Kind anywhere in its chain.
func AsKind(err error, k Kind) bool {
	for err != nil {
		if o, ok := err.(Error); ok && o.Code() == k {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
