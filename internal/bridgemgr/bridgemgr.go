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

// Package bridgemgr implements the Bridge Manager: the orchestration
// layer tying the registries, the supervisor, and handlers together
// behind connect, disconnect, and updateEnvironment.
package bridgemgr

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"

	"github.com/nabbar/mcp-bridge/internal/handler"
	"github.com/nabbar/mcp-bridge/internal/mcperr"
	"github.com/nabbar/mcp-bridge/internal/mlog"
	"github.com/nabbar/mcp-bridge/internal/model"
	"github.com/nabbar/mcp-bridge/internal/registry"
	"github.com/nabbar/mcp-bridge/internal/supervisor"
	"github.com/nabbar/mcp-bridge/internal/transport"
	"github.com/nabbar/mcp-bridge/internal/transport/sse"
	"github.com/nabbar/mcp-bridge/internal/transport/stdio"
)

// ConnectHints carries the out-of-band material connect needs that a
// ConnectionConfig alone cannot express: the open HTTP response for an
// sse connection, the piped streams for a stdio connection, and an
// optional environment delta to apply to the target server before
// connecting. These out-of-band handles stay valid across a backend
// restart, so the Manager retains the hints of every Connected
// connection and replays them when hot-swap reconnects it.
type ConnectHints struct {
	SSEResponseWriter gin.ResponseWriter
	StdioStdin        io.Writer
	StdioStdout       io.Reader
	EnvDelta          map[string]string
	Timeout           time.Duration
}

// Manager is the Bridge Manager. It holds no state of its own beyond
// the live handler map and the hints retained for hot-swap replay;
// everything else lives in the registries.
type Manager struct {
	Servers     *registry.ServerRegistry
	Connections *registry.ConnectionRegistry
	Supervisor  *supervisor.Supervisor
	Log         mlog.Logger

	mu       sync.Mutex
	handlers map[string]*handler.Handler
	hints    map[string]ConnectHints
}

// New wires a Manager and its Supervisor together, resolving the
// circular dependency (the Supervisor needs to call back into the
// Manager to best-effort disconnect connections during server stop).
func New(servers *registry.ServerRegistry, connections *registry.ConnectionRegistry, log mlog.Logger) *Manager {
	if log == nil {
		log = mlog.Nop()
	}
	sup := supervisor.New(servers, log)
	m := &Manager{
		Servers:     servers,
		Connections: connections,
		Supervisor:  sup,
		Log:         log,
		handlers:    make(map[string]*handler.Handler),
		hints:       make(map[string]ConnectHints),
	}
	sup.ListConnectionsForServer = m.connectionIDsForServer
	sup.Disconnect = m.Disconnect
	return m
}

func (m *Manager) connectionIDsForServer(serverID string) []string {
	conns := m.Connections.ListByServer(serverID)
	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		if c.GetStatus() != model.ConnDisconnected {
			ids = append(ids, c.Config.ID)
		}
	}
	return ids
}

// Connect brings up a new client-to-server bridge: it ensures the
// target server is running, builds the matching adapter pair, and
// starts a Handler to forward between them.
func (m *Manager) Connect(ctx context.Context, cfg model.ConnectionConfig, hints ConnectHints) (id string, err error) {
	inst, err := m.Connections.Create(cfg)
	if err != nil {
		return "", err
	}
	id = inst.Config.ID
	cfg.ID = id

	fail := func(cause error) (string, error) {
		// Remove requires Disconnected; a failed connect must leave no
		// residue in the registry rather than a visible ConnError entry.
		inst.SetStatus(model.ConnDisconnected, cause)
		_ = m.Connections.Remove(id)
		m.mu.Lock()
		delete(m.hints, id)
		m.mu.Unlock()
		return "", mcperr.New(mcperr.ConnectionFailed, id, "connect failed", cause)
	}

	if len(hints.EnvDelta) > 0 {
		running, merr := m.Servers.MergeEnv(cfg.ServerID, hints.EnvDelta)
		if merr != nil {
			return fail(merr)
		}
		if running {
			if herr := m.hotSwap(ctx, cfg.ServerID); herr != nil {
				return fail(herr)
			}
		}
	}

	serverInst, serr := m.Servers.Get(cfg.ServerID)
	if serr != nil {
		return fail(serr)
	}
	if serverInst.GetStatus() != model.ServerRunning {
		if serr := m.Supervisor.Start(ctx, cfg.ServerID); serr != nil {
			return fail(serr)
		}
	}

	inst.SetStatus(model.ConnConnecting, nil)

	connectCtx := ctx
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		connectCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	serverAdapter, clientAdapter, berr := m.buildAdapters(cfg, serverInst, hints)
	if berr != nil {
		return fail(berr)
	}

	h, herr := handler.New(id, serverAdapter, clientAdapter, m.Log)
	if herr != nil {
		return fail(herr)
	}
	h.OnServerClose(func() {
		m.forceDisconnect(id)
	})
	h.OnClientClose(func() {
		m.forceDisconnect(id)
	})

	if serr := h.Start(connectCtx); serr != nil {
		return fail(serr)
	}

	m.mu.Lock()
	m.handlers[id] = h
	m.hints[id] = hints
	m.mu.Unlock()

	inst.SetStatus(model.ConnConnected, nil)
	inst.SetConnectTime(time.Now())
	inst.ResetReconnectCount()
	return id, nil
}

// buildAdapters resolves the server-side and client-side adapters for
// a connection, rejecting any transport pairing the Handler can't
// bridge.
func (m *Manager) buildAdapters(cfg model.ConnectionConfig, serverInst *model.ServerInstance, hints ConnectHints) (transport.KindedAdapter, transport.KindedAdapter, error) {
	serverAdapter, ok := serverInst.GetTransportHandle().(transport.KindedAdapter)
	if !ok || serverAdapter == nil {
		return nil, nil, mcperr.New(mcperr.ConnectionFailed, cfg.ServerID, "server has no live transport handle", nil)
	}

	var clientAdapter transport.KindedAdapter
	switch cfg.Transport {
	case model.TransportSSE:
		if hints.SSEResponseWriter == nil {
			return nil, nil, mcperr.New(mcperr.ValidationError, cfg.ID, "sse connection requires an open response", nil)
		}
		clientAdapter = sse.NewServerAdapter(cfg.ID, hints.SSEResponseWriter)
	case model.TransportStdio:
		if hints.StdioStdin == nil || hints.StdioStdout == nil {
			return nil, nil, mcperr.New(mcperr.ValidationError, cfg.ID, "stdio connection requires bound stdin/stdout", nil)
		}
		clientAdapter = stdio.NewClientAdapter(hints.StdioStdin, hints.StdioStdout)
	case model.TransportMemory:
		peer, ok := supervisor.TakeMemoryPeer(cfg.ServerID)
		if !ok {
			return nil, nil, mcperr.New(mcperr.ConnectionFailed, cfg.ServerID, "no memory peer available; server may already be paired", nil)
		}
		clientAdapter = peer
	default:
		return nil, nil, mcperr.New(mcperr.UnsupportedTransport, cfg.ID, fmt.Sprintf("unknown connection transport %q", cfg.Transport), nil)
	}

	if !handler.ValidCombination(serverAdapter.Kind(), clientAdapter.Kind()) {
		return nil, nil, mcperr.New(mcperr.UnsupportedTransport, cfg.ID,
			fmt.Sprintf("unsupported combination server=%s client=%s", serverAdapter.Kind(), clientAdapter.Kind()), nil)
	}
	return serverAdapter, clientAdapter, nil
}

// Disconnect tears down a connection's handler and marks it
// Disconnected, idempotently.
func (m *Manager) Disconnect(id string) error {
	inst, err := m.Connections.Get(id)
	if err != nil {
		return err
	}

	switch inst.GetStatus() {
	case model.ConnDisconnected, model.ConnDisconnecting:
		return nil
	}

	inst.SetStatus(model.ConnDisconnecting, nil)

	m.mu.Lock()
	h := m.handlers[id]
	delete(m.handlers, id)
	delete(m.hints, id)
	m.mu.Unlock()

	if h != nil {
		h.Stop()
	}

	inst.SetTransportHandle(nil)
	inst.SetStatus(model.ConnDisconnected, nil)
	return nil
}

// hintsFor returns the out-of-band hints retained from the connection's
// original Connect call, used by hotSwap to replay them across a
// restart before Disconnect discards the entry.
func (m *Manager) hintsFor(id string) ConnectHints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hints[id]
}

// forceDisconnect is invoked from a Handler's close callbacks, which
// run on the forwarding goroutines rather than an API caller's
// goroutine; it reuses Disconnect's idempotent state machine.
func (m *Manager) forceDisconnect(id string) {
	if err := m.Disconnect(id); err != nil {
		m.Log.WithFields(mlog.Fields{"connection": id}).Warn("handler-triggered disconnect failed: " + err.Error())
	}
}

// UpdateEnvironment merges envDelta into the server's config and, if
// the server is currently running, triggers a hot-swap to apply it.
func (m *Manager) UpdateEnvironment(ctx context.Context, serverID string, envDelta map[string]string) error {
	running, err := m.Servers.MergeEnv(serverID, envDelta)
	if err != nil {
		return err
	}
	if !running {
		return nil
	}
	return m.hotSwap(ctx, serverID)
}

// hotSwapTarget pairs a snapshotted connection config with the
// out-of-band hints its original Connect call was given — the piped
// stdio streams or the open sse response stay valid across a backend
// restart, so hotSwap must replay them rather than reconnect bare.
type hotSwapTarget struct {
	cfg   model.ConnectionConfig
	hints ConnectHints
}

// hotSwap disconnects and removes every Connected connection to
// serverID, restarts the server, then reconnects each snapshotted
// connection under a freshly minted id — connection ids are not
// preserved across a hot-swap.
func (m *Manager) hotSwap(ctx context.Context, serverID string) error {
	targets := m.Connections.ListByServer(serverID)

	snapshots := make([]hotSwapTarget, 0, len(targets))
	for _, inst := range targets {
		if inst.GetStatus() != model.ConnConnected {
			continue
		}
		cfg := inst.Config.Clone()
		snapshots = append(snapshots, hotSwapTarget{cfg: cfg, hints: m.hintsFor(cfg.ID)})
	}

	for _, snap := range snapshots {
		if err := m.Disconnect(snap.cfg.ID); err != nil {
			m.Log.WithFields(mlog.Fields{"connection": snap.cfg.ID}).Warn("hot-swap disconnect failed: " + err.Error())
			continue
		}
		// The original id is retired; the reconnect below mints a new one.
		if err := m.Connections.Remove(snap.cfg.ID); err != nil {
			m.Log.WithFields(mlog.Fields{"connection": snap.cfg.ID}).Warn("hot-swap remove failed: " + err.Error())
		}
	}

	if err := m.Supervisor.Restart(ctx, serverID); err != nil {
		return mcperr.New(mcperr.ServerStartFailed, serverID, "hot-swap restart failed", err)
	}

	var reconnectErrs *multierror.Error
	for _, snap := range snapshots {
		reconnectCfg := snap.cfg
		reconnectCfg.ID = ""
		reconnectHints := snap.hints
		// The env delta was already merged into the server config before
		// the restart; replaying it again on reconnect would be a no-op
		// at best, so it is dropped here.
		reconnectHints.EnvDelta = nil
		if _, err := m.Connect(ctx, reconnectCfg, reconnectHints); err != nil {
			reconnectErrs = multierror.Append(reconnectErrs, fmt.Errorf("reconnect %s: %w", snap.cfg.ID, err))
			m.Log.WithFields(mlog.Fields{"server": serverID, "connection": snap.cfg.ID}).
				Warn("hot-swap reconnect failed: " + err.Error())
		}
	}
	return reconnectErrs.ErrorOrNil()
}

// HandleInboundSSEPost feeds one HTTP-posted frame into the client
// side of the named connection's handler. The Admin Surface owns
// decoding the request body into a Frame before calling this.
func (m *Manager) HandleInboundSSEPost(connectionID string, frame transport.Frame) error {
	m.mu.Lock()
	h := m.handlers[connectionID]
	m.mu.Unlock()
	if h == nil {
		return mcperr.New(mcperr.NotFound, connectionID, "no active handler for connection", nil)
	}

	sa, ok := h.Client.(*sse.ServerAdapter)
	if !ok {
		return mcperr.New(mcperr.InvalidState, connectionID, "connection is not an sse-hosted connection", nil)
	}
	sa.Deliver(frame)
	return nil
}
