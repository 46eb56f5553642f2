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

// Package handler implements the ephemeral per-connection forwarder:
// one Handler pairs exactly one client adapter with exactly one server
// adapter and forwards frames in both directions until either side
// closes.
package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/nabbar/mcp-bridge/internal/mcperr"
	"github.com/nabbar/mcp-bridge/internal/mlog"
	"github.com/nabbar/mcp-bridge/internal/transport"
)

// validPairs is the closed set of transport combinations the bridge
// forwards between: a server reached over stdio pairs with a remote
// client over sse and vice versa; memory only pairs with memory,
// since it models two ends of the same in-process channel.
var validPairs = map[[2]transport.Kind]bool{
	{transport.KindStdio, transport.KindSSE}:    true,
	{transport.KindSSE, transport.KindStdio}:    true,
	{transport.KindMemory, transport.KindMemory}: true,
}

// ValidCombination reports whether a server/client transport pairing
// is one the bridge forwards between.
func ValidCombination(server, client transport.Kind) bool {
	return validPairs[[2]transport.Kind{server, client}]
}

// Handler holds non-owning references to both adapters: it installs
// upcalls on each but never stores a back-reference inside the
// adapters themselves, so either adapter can outlive the handler once
// Stop detaches it.
type Handler struct {
	ID     string
	Log    mlog.Logger
	Server transport.KindedAdapter
	Client transport.KindedAdapter

	onServerClose func()
	onClientClose func()

	mu      sync.Mutex
	stopped bool
}

// New validates the transport pairing and constructs a Handler. It
// does not start forwarding; call Start for that.
func New(id string, server, client transport.KindedAdapter, log mlog.Logger) (*Handler, error) {
	if !ValidCombination(server.Kind(), client.Kind()) {
		return nil, mcperr.New(mcperr.UnsupportedTransport, id,
			fmt.Sprintf("unsupported transport combination: server=%s client=%s", server.Kind(), client.Kind()), nil)
	}
	if log == nil {
		log = mlog.Nop()
	}
	return &Handler{ID: id, Log: log, Server: server, Client: client}, nil
}

// OnServerClose registers a callback fired when the server-side
// adapter closes or errors, so the Bridge Manager can tear down the
// connection-level state that depends on it.
func (h *Handler) OnServerClose(fn func()) { h.onServerClose = fn }

// OnClientClose registers a callback fired when only the remote
// client disconnects; this stops the handler but leaves the server
// adapter intact for reuse by a future connection.
func (h *Handler) OnClientClose(fn func()) { h.onClientClose = fn }

// Start wires both adapters' frame handlers to forward to the other
// side and starts both, server first then client.
func (h *Handler) Start(ctx context.Context) error {
	h.Server.SetFrameHandler(func(f transport.Frame) {
		if err := h.Client.Send(ctx, f); err != nil {
			h.Log.WithFields(mlog.Fields{"handler": h.ID}).Warn("forward server->client failed: " + err.Error())
		}
	})
	h.Server.SetErrorHandler(func(err error) {
		h.Log.WithFields(mlog.Fields{"handler": h.ID}).Warn("server transport error: " + err.Error())
		h.stopInternal(true)
	})
	h.Server.SetCloseHandler(func() {
		h.stopInternal(true)
	})

	h.Client.SetFrameHandler(func(f transport.Frame) {
		if err := h.Server.Send(ctx, f); err != nil {
			h.Log.WithFields(mlog.Fields{"handler": h.ID}).Warn("forward client->server failed: " + err.Error())
		}
	})
	h.Client.SetErrorHandler(func(err error) {
		h.Log.WithFields(mlog.Fields{"handler": h.ID}).Warn("client transport error: " + err.Error())
	})
	h.Client.SetCloseHandler(func() {
		h.stopInternal(false)
	})

	if err := h.Server.Start(ctx); err != nil {
		return mcperr.New(mcperr.TransportError, h.ID, "server adapter start failed", err)
	}
	if err := h.Client.Start(ctx); err != nil {
		_ = h.Server.Close()
		return mcperr.New(mcperr.TransportError, h.ID, "client adapter start failed", err)
	}
	return nil
}

// Stop closes the client side and detaches both adapters' upcalls. It
// does not close the server adapter — callers that also own the
// server lifecycle (the Supervisor) close it separately.
func (h *Handler) Stop() {
	h.stopInternal(false)
}

func (h *Handler) stopInternal(serverClosed bool) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	_ = h.Client.Close()
	h.Client.Detach()
	h.Server.Detach()
	if serverClosed {
		if h.onServerClose != nil {
			h.onServerClose()
		}
	} else if h.onClientClose != nil {
		h.onClientClose()
	}
}
