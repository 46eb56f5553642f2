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

// Package stdio implements the stdio server and client adapters: a
// child process's standard streams framed as newline-delimited
// JSON-RPC objects. The server adapter owns the spawn; the client
// adapter binds to a process already spawned and owned by the
// Supervisor.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/nabbar/mcp-bridge/internal/mlog"
	"github.com/nabbar/mcp-bridge/internal/transport"
)

// ServerAdapter spawns a child process from a ServerConfig and
// exposes its standard input/output as a framed Adapter. The process
// handle is exported via Cmd so the Supervisor can observe exit and
// terminate it directly.
type ServerAdapter struct {
	transport.Upcalls

	Command string
	Args    []string
	Dir     string
	Env     []string
	Log     mlog.Logger

	mu      sync.Mutex
	started bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser
}

func NewServerAdapter(command string, args []string, dir string, env []string, log mlog.Logger) *ServerAdapter {
	if log == nil {
		log = mlog.Nop()
	}
	return &ServerAdapter{Command: command, Args: args, Dir: dir, Env: env, Log: log}
}

func (a *ServerAdapter) Kind() transport.Kind { return transport.KindStdio }

// Cmd exposes the spawned process so the Supervisor can install an
// exit watcher.
func (a *ServerAdapter) Cmd() *exec.Cmd {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cmd
}

func (a *ServerAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}

	cmd := exec.CommandContext(ctx, a.Command, a.Args...)
	cmd.Dir = a.Dir
	if len(a.Env) > 0 {
		cmd.Env = append(os.Environ(), a.Env...)
	}
	cmd.Cancel = nil // the Supervisor owns termination, not ctx cancellation

	stdin, err := cmd.StdinPipe()
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("stdio server adapter: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("stdio server adapter: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("stdio server adapter: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		a.mu.Unlock()
		return fmt.Errorf("stdio server adapter: spawn: %w", err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.stdout = stdout
	a.stderr = stderr
	a.started = true
	a.mu.Unlock()

	go a.drainStderr(stderr)
	go a.readLoop(stdout)
	return nil
}

// drainStderr captures the child's standard error for logging only.
func (a *ServerAdapter) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		a.Log.Warn("child stderr: " + scanner.Text())
	}
}

func (a *ServerAdapter) readLoop(r io.Reader) {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		frame, err := readFrame(br)
		if err != nil {
			if err != io.EOF {
				a.EmitError(fmt.Errorf("stdio server adapter: read: %w", err))
			}
			a.EmitCloseOnce()
			return
		}
		a.EmitFrame(frame)
	}
}

func (a *ServerAdapter) Send(ctx context.Context, frame transport.Frame) error {
	a.mu.Lock()
	w := a.stdin
	a.mu.Unlock()
	if w == nil {
		return fmt.Errorf("stdio server adapter: not started")
	}
	if err := writeFrame(w, frame); err != nil {
		a.EmitError(err)
		return err
	}
	return nil
}

func (a *ServerAdapter) Close() error {
	a.mu.Lock()
	stdin := a.stdin
	a.mu.Unlock()
	if stdin != nil {
		_ = stdin.Close()
	}
	a.EmitCloseOnce()
	return nil
}
