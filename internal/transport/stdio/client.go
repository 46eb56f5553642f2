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

package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nabbar/mcp-bridge/internal/transport"
)

// ClientAdapter binds to a process's standard streams without owning
// the process itself — the server side of the same connection owns
// spawn and termination.
type ClientAdapter struct {
	transport.Upcalls

	mu      sync.Mutex
	started bool
	stdin   io.Writer
	stdout  io.Reader
}

func NewClientAdapter(stdin io.Writer, stdout io.Reader) *ClientAdapter {
	return &ClientAdapter{stdin: stdin, stdout: stdout}
}

func (a *ClientAdapter) Kind() transport.Kind { return transport.KindStdio }

func (a *ClientAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	stdout := a.stdout
	a.mu.Unlock()

	go a.readLoop(stdout)
	return nil
}

func (a *ClientAdapter) readLoop(r io.Reader) {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		frame, err := readFrame(br)
		if err != nil {
			if err != io.EOF {
				a.EmitError(fmt.Errorf("stdio client adapter: read: %w", err))
			}
			a.EmitCloseOnce()
			return
		}
		a.EmitFrame(frame)
	}
}

func (a *ClientAdapter) Send(ctx context.Context, frame transport.Frame) error {
	a.mu.Lock()
	w := a.stdin
	a.mu.Unlock()
	if w == nil {
		return fmt.Errorf("stdio client adapter: not started")
	}
	if err := writeFrame(w, frame); err != nil {
		a.EmitError(err)
		return err
	}
	return nil
}

// Close only fires the close handler; it does not stop the read loop
// (frames keep reaching whatever frame handler is still installed) and
// does not terminate the underlying process, which the server adapter
// owns.
func (a *ClientAdapter) Close() error {
	a.EmitCloseOnce()
	return nil
}
