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

// Package transport defines the uniform Adapter interface and the
// closed tag set of supported transports. Concrete variants live in
// the stdio, sse, and memory subpackages; this package only holds the
// shared contract so the handler and bridge manager can depend on one
// small interface instead of three concrete types.
package transport

import "context"

// Frame is one opaque JSON-RPC 2.0 object. The bridge never inspects
// or transforms its contents.
type Frame = map[string]interface{}

// FrameHandler receives one inbound frame.
type FrameHandler func(Frame)

// ErrorHandler receives a transport-level failure.
type ErrorHandler func(error)

// CloseHandler fires exactly once over the adapter's lifetime.
type CloseHandler func()

// Adapter is the uniform interface over stdio, sse, and memory
// transports. Implementations must tolerate
// SetFrameHandler/SetErrorHandler/SetCloseHandler being called either
// before or after Start; a handler installed after Start but before
// any frame has been delivered must still receive that frame — in
// practice this means implementations keep the handler pointer behind
// a mutex and look it up at delivery time. A frame delivered while no
// frame handler is installed is dropped; frames are not buffered
// waiting for a handler.
type Adapter interface {
	// Start establishes the underlying channel. Idempotent once started.
	Start(ctx context.Context) error
	// Send delivers one frame to the far side.
	Send(ctx context.Context, frame Frame) error
	// Close releases resources and signals the close handler exactly once.
	Close() error

	SetFrameHandler(fn FrameHandler)
	SetErrorHandler(fn ErrorHandler)
	SetCloseHandler(fn CloseHandler)

	// Detach replaces all upcalls with no-ops, letting the adapter
	// outlive a stopped Handler without retaining a reference to it.
	Detach()
}

// Kind names which closed-set transport an Adapter implements, used by
// the handler to validate the {stdio, sse} ↔ {sse, stdio} /
// memory↔memory cross product of allowed pairings.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindStdio
	KindSSE
	KindMemory
)

func (k Kind) String() string {
	switch k {
	case KindStdio:
		return "stdio"
	case KindSSE:
		return "sse"
	case KindMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// KindedAdapter is implemented by every concrete adapter so the
// handler can identify which pairing rule applies without a type
// switch over three packages.
type KindedAdapter interface {
	Adapter
	Kind() Kind
}
