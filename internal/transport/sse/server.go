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

// Package sse implements the Server-Sent-Events transport: a
// long-lived event stream carrying inbound frames to the remote
// client, paired with a companion POST endpoint carrying outbound
// frames back. The connection id doubles as the SSE session id.
package sse

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/nabbar/mcp-bridge/internal/transport"
)

// ServerAdapter writes frames onto a gin ResponseWriter as SSE events
// and receives outbound frames delivered out-of-band via Deliver, which
// the connection's companion POST endpoint calls.
type ServerAdapter struct {
	transport.Upcalls

	SessionID string

	mu      sync.Mutex
	started bool
	writer  gin.ResponseWriter
	done    chan struct{}
}

func NewServerAdapter(sessionID string, w gin.ResponseWriter) *ServerAdapter {
	return &ServerAdapter{SessionID: sessionID, writer: w, done: make(chan struct{})}
}

func (a *ServerAdapter) Kind() transport.Kind { return transport.KindSSE }

func (a *ServerAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	w := a.writer
	a.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	go func() {
		select {
		case <-ctx.Done():
			a.Close()
		case <-a.done:
		}
	}()
	return nil
}

// Send writes one frame as an SSE "message" event to the stream. This
// is the inbound direction for the remote client reading the stream.
func (a *ServerAdapter) Send(ctx context.Context, frame transport.Frame) error {
	a.mu.Lock()
	w := a.writer
	a.mu.Unlock()
	if w == nil {
		return fmt.Errorf("sse server adapter: not started")
	}
	ev := sse.Event{Event: "message", Data: frame}
	if err := sse.Encode(w, ev); err != nil {
		a.EmitError(err)
		return err
	}
	w.Flush()
	return nil
}

// Deliver is called by the admin surface's companion POST handler
// with a frame the remote client sent outbound over HTTP.
func (a *ServerAdapter) Deliver(frame transport.Frame) {
	a.EmitFrame(frame)
}

func (a *ServerAdapter) Close() error {
	a.mu.Lock()
	select {
	case <-a.done:
		a.mu.Unlock()
		return nil
	default:
	}
	close(a.done)
	a.mu.Unlock()

	a.EmitCloseOnce()
	return nil
}
