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

// Package supervisor owns server process lifecycle: bringing a
// ServerInstance to Running or Stopped, including the crash-restart
// loop bounded by maxRestarts.
package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nabbar/mcp-bridge/internal/mcperr"
	"github.com/nabbar/mcp-bridge/internal/mlog"
	"github.com/nabbar/mcp-bridge/internal/model"
	"github.com/nabbar/mcp-bridge/internal/registry"
	"github.com/nabbar/mcp-bridge/internal/transport"
	"github.com/nabbar/mcp-bridge/internal/transport/memory"
	"github.com/nabbar/mcp-bridge/internal/transport/sse"
	"github.com/nabbar/mcp-bridge/internal/transport/stdio"
)

const defaultGracePeriod = 5 * time.Second

// DisconnectFunc is supplied by the Bridge Manager so the supervisor
// can best-effort disconnect every connection against a server before
// stopping it, without the supervisor importing the bridge manager
// and creating an import cycle.
type DisconnectFunc func(connectionID string) error

// Supervisor owns the stdio process lifecycle and the adapter
// construction for every declared transport. It does not know about
// connections directly; ListConnectionsForServer/Disconnect are injected.
type Supervisor struct {
	Servers *registry.ServerRegistry
	Log     mlog.Logger

	ListConnectionsForServer func(serverID string) []string
	Disconnect               DisconnectFunc

	group singleflight.Group

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	exited  map[string]chan struct{}
}

func New(servers *registry.ServerRegistry, log mlog.Logger) *Supervisor {
	if log == nil {
		log = mlog.Nop()
	}
	return &Supervisor{
		Servers: servers,
		Log:     log,
		cancels: make(map[string]context.CancelFunc),
		exited:  make(map[string]chan struct{}),
	}
}

// Start brings the server to Running, idempotently. This is the
// operator-initiated entrypoint: a fresh Start always clears the
// restart count. The crash-restart path goes through start directly
// so an automatic restart never resets the very counter that bounds
// it.
func (s *Supervisor) Start(ctx context.Context, id string) error {
	return s.start(ctx, id, true)
}

func (s *Supervisor) start(ctx context.Context, id string, resetRestartCount bool) error {
	inst, err := s.Servers.Get(id)
	if err != nil {
		return err
	}

	switch inst.GetStatus() {
	case model.ServerRunning, model.ServerStarting:
		return nil
	}

	inst.SetStatus(model.ServerStarting, nil)

	runCtx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	s.mu.Lock()
	s.cancels[id] = cancel
	s.exited[id] = exited
	s.mu.Unlock()

	adapter, err := s.buildAdapter(inst.Config)
	if err != nil {
		cancel()
		inst.SetStatus(model.ServerError, err)
		return mcperr.New(mcperr.ServerStartFailed, id, "adapter construction failed", err)
	}

	if err := adapter.Start(runCtx); err != nil {
		cancel()
		inst.SetStatus(model.ServerError, err)
		return mcperr.New(mcperr.ServerStartFailed, id, "adapter start failed", err)
	}

	if sa, ok := adapter.(*stdio.ServerAdapter); ok {
		inst.SetProcessHandle(sa.Cmd())
		go s.watchExit(runCtx, id, sa.Cmd(), exited)
	} else {
		close(exited) // no process to wait on; Stop has nothing to join.
	}

	inst.SetTransportHandle(adapter)
	inst.SetStartTime(time.Now())
	inst.SetStatus(model.ServerRunning, nil)
	if resetRestartCount {
		inst.ResetRestartCount()
	}
	return nil
}

// buildAdapter constructs the server-side adapter for cfg's declared
// transport. For memory-transport servers this builds only the
// "server" half of a linked pair; the Bridge Manager retrieves the
// paired half via TakeMemoryPeer when it wires a memory connection.
func (s *Supervisor) buildAdapter(cfg model.ServerConfig) (transport.KindedAdapter, error) {
	switch cfg.Transport {
	case model.TransportStdio:
		return stdio.NewServerAdapter(cfg.Command, cfg.Args, cfg.Dir, envSlice(cfg.Env), s.Log), nil
	case model.TransportMemory:
		left, right := memory.NewPair()
		rememberMemoryPeer(cfg.ID, right)
		return left, nil
	case model.TransportSSE:
		// The backend itself speaks sse as a server: we reach it by
		// dialing out to the host/port it publishes, so the sse
		// "client" variant fills this role — the adapter name tracks
		// which side owns the HTTP resource, not which Handler role
		// it plays.
		if cfg.SSEOptions == nil {
			return nil, mcperr.New(mcperr.ValidationError, cfg.ID, "sse transport requires sseOptions", nil)
		}
		base := fmt.Sprintf("http://%s:%d", cfg.SSEOptions.Host, cfg.SSEOptions.Port)
		return sse.NewClientAdapter(base+"/sse", base+"/messages"), nil
	default:
		return nil, mcperr.New(mcperr.UnsupportedTransport, cfg.ID, fmt.Sprintf("unknown transport %q", cfg.Transport), nil)
	}
}

// memoryPeerStore holds the unclaimed peer half of a memory server's
// linked pair, consumed once by the Bridge Manager when building the
// matching connection-side adapter.
var memoryPeerMu sync.Mutex
var memoryPeerStore = map[string]transport.KindedAdapter{}

func rememberMemoryPeer(serverID string, peer transport.KindedAdapter) {
	memoryPeerMu.Lock()
	memoryPeerStore[serverID] = peer
	memoryPeerMu.Unlock()
}

// TakeMemoryPeer returns and clears the unclaimed peer adapter for a
// memory-transport server, if one is waiting.
func TakeMemoryPeer(serverID string) (transport.KindedAdapter, bool) {
	memoryPeerMu.Lock()
	defer memoryPeerMu.Unlock()
	peer, ok := memoryPeerStore[serverID]
	if ok {
		delete(memoryPeerStore, serverID)
	}
	return peer, ok
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// watchExit observes process exit, absorbs it if the instance is
// Stopping (operator-initiated stop takes precedence over a racing
// crash exit), otherwise consults shouldRestart and schedules a crash
// restart.
func (s *Supervisor) watchExit(ctx context.Context, id string, cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	close(exited)

	inst, getErr := s.Servers.Get(id)
	if getErr != nil {
		return // unregistered while running; drop the event.
	}

	if inst.GetStatus() == model.ServerStopping {
		return // operator stop owns this transition.
	}

	inst.SetStatus(model.ServerStopped, err)
	inst.SetProcessHandle(nil)
	inst.SetTransportHandle(nil)

	should, restartErr := s.Servers.ShouldRestart(id)
	if restartErr != nil || !should {
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	inst.IncrementRestartCount()
	delay, _ := s.Servers.RestartDelay(id)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if inst.GetStatus() != model.ServerStopped {
		return
	}
	// A crash restart must preserve the count watchExit just
	// incremented above; only an operator-initiated Start clears it.
	_ = s.start(context.Background(), id, false)
}

// Stop brings the server to Stopped, idempotently.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	inst, err := s.Servers.Get(id)
	if err != nil {
		return err
	}

	switch inst.GetStatus() {
	case model.ServerStopped, model.ServerStopping:
		return nil
	}

	inst.SetStatus(model.ServerStopping, nil)

	if s.ListConnectionsForServer != nil && s.Disconnect != nil {
		for _, connID := range s.ListConnectionsForServer(id) {
			if derr := s.Disconnect(connID); derr != nil {
				s.Log.WithFields(mlog.Fields{"server": id, "connection": connID}).
					Warn("best-effort disconnect during server stop failed: " + derr.Error())
			}
		}
	}

	s.mu.Lock()
	cancel := s.cancels[id]
	exited := s.exited[id]
	delete(s.cancels, id)
	delete(s.exited, id)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if adapter, ok := inst.GetTransportHandle().(transport.KindedAdapter); ok && adapter != nil {
		_ = adapter.Close()
	}
	if cmd, ok := inst.GetProcessHandle().(*exec.Cmd); ok && cmd != nil && cmd.Process != nil {
		terminateGracefully(cmd, exited, defaultGracePeriod)
	}

	inst.SetProcessHandle(nil)
	inst.SetTransportHandle(nil)
	inst.SetStatus(model.ServerStopped, nil)
	return nil
}

// terminateGracefully sends SIGTERM, waits up to grace for watchExit's
// cmd.Wait to observe the exit, then sends SIGKILL. The exited
// channel is closed by watchExit, which is the sole
// caller of cmd.Wait — os.Process.Wait may only be awaited once, so
// this never calls it a second time.
func terminateGracefully(cmd *exec.Cmd, exited chan struct{}, grace time.Duration) {
	_ = cmd.Process.Signal(syscall.SIGTERM)

	if exited == nil {
		return
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
		return
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-exited
	}
}

// Restart is stop followed by start, the only primitive the Bridge
// Manager invokes for its hot-swap path.
func (s *Supervisor) Restart(ctx context.Context, id string) error {
	_, err, _ := s.group.Do(id, func() (interface{}, error) {
		if err := s.Stop(ctx, id); err != nil {
			return nil, err
		}
		return nil, s.Start(ctx, id)
	})
	return err
}
