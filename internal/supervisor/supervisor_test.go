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

package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/nabbar/mcp-bridge/internal/model"
	"github.com/nabbar/mcp-bridge/internal/registry"
)

// TestCrashRestartBound covers a server that exits immediately,
// registered with maxRestarts=3: it must spawn exactly 4 times
// (initial + 3 restarts) then settle in Stopped.
func TestCrashRestartBound(t *testing.T) {
	servers := registry.NewServerRegistry()
	sup := New(servers, nil)

	inst, err := servers.Register(model.ServerConfig{
		Command:   "false",
		Transport: model.TransportStdio,
		Lifecycle: model.LifecyclePolicy{
			AutoRestart:  true,
			MaxRestarts:  3,
			RestartDelay: 10 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := sup.Start(context.Background(), inst.Config.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := inst.Snapshot()
		if snap.Status == model.ServerStopped && snap.RestartCount == 3 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	snap := inst.Snapshot()
	if snap.Status != model.ServerStopped {
		t.Fatalf("expected Stopped after exhausting restarts, got %v", snap.Status)
	}
	if snap.RestartCount != 3 {
		t.Fatalf("expected restartCount=3, got %d", snap.RestartCount)
	}

	time.Sleep(200 * time.Millisecond)
	snap = inst.Snapshot()
	if snap.RestartCount != 3 {
		t.Fatalf("expected no further restarts, restartCount=%d", snap.RestartCount)
	}
}

// TestStartStopIdempotent verifies repeated Start/Stop calls against
// an already-Running/Stopped instance return success without error.
func TestStartStopIdempotent(t *testing.T) {
	servers := registry.NewServerRegistry()
	sup := New(servers, nil)

	inst, err := servers.Register(model.ServerConfig{
		Command:   "sleep",
		Args:      []string{"5"},
		Transport: model.TransportStdio,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id := inst.Config.ID

	if err := sup.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sup.Start(context.Background(), id); err != nil {
		t.Fatalf("second start should be idempotent: %v", err)
	}
	if err := sup.Stop(context.Background(), id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sup.Stop(context.Background(), id); err != nil {
		t.Fatalf("second stop should be idempotent: %v", err)
	}

	snap := inst.Snapshot()
	if snap.Status != model.ServerStopped {
		t.Fatalf("expected Stopped, got %v", snap.Status)
	}
}

// TestAtRestInvariant checks that status=Stopped holds exactly when
// both the process handle and the transport handle are absent.
func TestAtRestInvariant(t *testing.T) {
	servers := registry.NewServerRegistry()
	sup := New(servers, nil)

	inst, err := servers.Register(model.ServerConfig{
		Command:   "sleep",
		Args:      []string{"5"},
		Transport: model.TransportStdio,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id := inst.Config.ID

	if inst.GetProcessHandle() != nil || inst.GetTransportHandle() != nil {
		t.Fatal("freshly registered instance must have no handles")
	}

	if err := sup.Start(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	if inst.GetProcessHandle() == nil || inst.GetTransportHandle() == nil {
		t.Fatal("running instance must have both handles")
	}

	if err := sup.Stop(context.Background(), id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if inst.GetProcessHandle() != nil || inst.GetTransportHandle() != nil {
		t.Fatal("stopped instance must have no handles")
	}
}
