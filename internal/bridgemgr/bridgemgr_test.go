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

package bridgemgr

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/nabbar/mcp-bridge/internal/mcperr"
	"github.com/nabbar/mcp-bridge/internal/model"
	"github.com/nabbar/mcp-bridge/internal/registry"
)

func memoryServerConfig(id string) model.ServerConfig {
	return model.ServerConfig{
		ID:        id,
		Name:      "in-process",
		Transport: model.TransportMemory,
	}
}

func newTestManager() (*Manager, *registry.ServerRegistry) {
	servers := registry.NewServerRegistry()
	conns := registry.NewConnectionRegistry()
	return New(servers, conns, nil), servers
}

func TestConnect_BringsServerUpAndWiresHandler(t *testing.T) {
	m, servers := newTestManager()
	if _, err := servers.Register(memoryServerConfig("srv1")); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := m.Connect(ctx, model.ConnectionConfig{ServerID: "srv1", Transport: model.TransportMemory}, ConnectHints{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	inst, err := m.Connections.Get(id)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if got := inst.GetStatus(); got != model.ConnConnected {
		t.Fatalf("want ConnConnected, got %v", got)
	}

	srv, _ := servers.Get("srv1")
	if got := srv.GetStatus(); got != model.ServerRunning {
		t.Fatalf("want server Running, got %v", got)
	}

	m.mu.Lock()
	_, hasHandler := m.handlers[id]
	m.mu.Unlock()
	if !hasHandler {
		t.Fatalf("expected a live handler for connection %s", id)
	}
}

func TestDisconnect_LeavesServerRunning(t *testing.T) {
	m, servers := newTestManager()
	servers.Register(memoryServerConfig("srv1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := m.Connect(ctx, model.ConnectionConfig{ServerID: "srv1", Transport: model.TransportMemory}, ConnectHints{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := m.Disconnect(id); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := m.Disconnect(id); err != nil {
		t.Fatalf("second disconnect should be a no-op, got: %v", err)
	}

	inst, _ := m.Connections.Get(id)
	if got := inst.GetStatus(); got != model.ConnDisconnected {
		t.Fatalf("want ConnDisconnected, got %v", got)
	}

	srv, _ := servers.Get("srv1")
	if got := srv.GetStatus(); got != model.ServerRunning {
		t.Fatalf("disconnect should leave the server alone, want Running, got %v", got)
	}

	m.mu.Lock()
	_, hasHandler := m.handlers[id]
	m.mu.Unlock()
	if hasHandler {
		t.Fatalf("expected the handler to be removed after disconnect")
	}
}

func TestConnect_UnsupportedCombinationRejected(t *testing.T) {
	m, servers := newTestManager()
	servers.Register(memoryServerConfig("srv1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// A memory-transport server can only pair with a memory-transport
	// connection; requesting sse here must be rejected before any
	// handler is started, and must leave no residue behind.
	_, err := m.Connect(ctx, model.ConnectionConfig{ServerID: "srv1", Transport: model.TransportSSE}, ConnectHints{})
	if err == nil {
		t.Fatalf("expected an error for an sse connection against a memory server")
	}
	if mcperr.CodeOf(err) != mcperr.ConnectionFailed && mcperr.CodeOf(err) != mcperr.ValidationError {
		t.Fatalf("want ConnectionFailed or ValidationError, got %v", mcperr.CodeOf(err))
	}

	if got := len(m.Connections.List()); got != 0 {
		t.Fatalf("failed connect must leave no connection behind, found %d", got)
	}
}

func TestUpdateEnvironment_HotSwapReconnectsUnderNewID(t *testing.T) {
	m, servers := newTestManager()
	servers.Register(memoryServerConfig("srv1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	firstID, err := m.Connect(ctx, model.ConnectionConfig{ServerID: "srv1", Transport: model.TransportMemory}, ConnectHints{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := m.UpdateEnvironment(ctx, "srv1", map[string]string{"FOO": "bar"}); err != nil {
		t.Fatalf("update environment: %v", err)
	}

	// hotSwap disconnects the old connection and mints a fresh id on
	// reconnect; the old id must now be gone and a new Connected
	// connection must exist against the same server.
	if _, err := m.Connections.Get(firstID); err == nil {
		t.Fatalf("expected original connection %s to be gone after hot-swap", firstID)
	}

	remaining := m.Connections.ListByServer("srv1")
	found := false
	for _, inst := range remaining {
		if inst.GetStatus() == model.ConnConnected {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a reconnected, Connected connection against srv1 after hot-swap")
	}

	srv, _ := servers.Get("srv1")
	if srv.Config.Env["FOO"] != "bar" {
		t.Fatalf("want merged env to stick after hot-swap, got %v", srv.Config.Env)
	}
}

// sseServerConfig registers a server reached by dialing an sse
// backend that just holds the stream open, letting hot-swap redial it
// across a restart without a real subprocess.
func sseServerConfig(t *testing.T, id string, backend *httptest.Server) model.ServerConfig {
	t.Helper()
	u, err := url.Parse(backend.URL)
	if err != nil {
		t.Fatalf("parse backend url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split backend host/port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse backend port: %v", err)
	}
	return model.ServerConfig{
		ID:         id,
		Name:       "remote-sse-backend",
		Transport:  model.TransportSSE,
		SSEOptions: &model.SSEOptions{Host: host, Port: port},
	}
}

func newFakeSSEBackend() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func TestHotSwap_RetainsStdioConnectionHints(t *testing.T) {
	backend := newFakeSSEBackend()
	defer backend.Close()

	m, servers := newTestManager()
	if _, err := servers.Register(sseServerConfig(t, "srv1", backend)); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pr, pw := io.Pipe()
	defer pw.Close()

	firstID, err := m.Connect(ctx, model.ConnectionConfig{ServerID: "srv1", Transport: model.TransportStdio},
		ConnectHints{StdioStdin: io.Discard, StdioStdout: pr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := m.UpdateEnvironment(ctx, "srv1", map[string]string{"FOO": "bar"}); err != nil {
		t.Fatalf("update environment: %v", err)
	}

	// Without the stdin/stdout hints being retained and replayed, the
	// hot-swap reconnect would fail validation (no bound stdio streams)
	// and leave zero Connected connections against srv1.
	if _, err := m.Connections.Get(firstID); err == nil {
		t.Fatalf("expected original connection %s to be gone after hot-swap", firstID)
	}
	var stillConnected bool
	for _, inst := range m.Connections.ListByServer("srv1") {
		if inst.GetStatus() == model.ConnConnected {
			stillConnected = true
		}
	}
	if !stillConnected {
		t.Fatalf("expected the stdio connection to be reconnected with its retained hints after hot-swap")
	}
}

func TestUpdateEnvironment_StoppedServerSkipsRestart(t *testing.T) {
	m, servers := newTestManager()
	servers.Register(memoryServerConfig("srv1"))

	if err := m.UpdateEnvironment(context.Background(), "srv1", map[string]string{"FOO": "bar"}); err != nil {
		t.Fatalf("update environment on a stopped server: %v", err)
	}

	srv, _ := servers.Get("srv1")
	if got := srv.GetStatus(); got != model.ServerStopped {
		t.Fatalf("env update on a never-started server must not start it, got %v", got)
	}
	if srv.Config.Env["FOO"] != "bar" {
		t.Fatalf("env delta should still be merged even without a restart")
	}
}
