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

package transport

import "sync"

// Upcalls is embedded by every concrete adapter. It holds the three
// handler functions behind a mutex and guarantees the close handler
// fires at most once per adapter. A handler that stops replaces these
// with no-ops rather than the adapter holding a back-reference to the
// handler, which is why Upcalls stores plain funcs rather than an
// interface back to the owner.
type Upcalls struct {
	mu        sync.Mutex
	onFrame   FrameHandler
	onError   ErrorHandler
	onClose   CloseHandler
	closed    bool
}

func (u *Upcalls) SetFrameHandler(fn FrameHandler) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onFrame = fn
}

func (u *Upcalls) SetErrorHandler(fn ErrorHandler) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onError = fn
}

func (u *Upcalls) SetCloseHandler(fn CloseHandler) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onClose = fn
}

func (u *Upcalls) EmitFrame(f Frame) {
	u.mu.Lock()
	fn := u.onFrame
	u.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

func (u *Upcalls) EmitError(err error) {
	u.mu.Lock()
	fn := u.onError
	u.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// EmitCloseOnce fires the close handler at most once across the
// adapter's lifetime, regardless of how many code paths call it (I/O
// error followed by an explicit Close, for instance).
func (u *Upcalls) EmitCloseOnce() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	fn := u.onClose
	u.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Detach replaces all three upcalls with no-ops, used by Handler.stop
// so the adapter can outlive the handler without retaining references
// to it.
func (u *Upcalls) Detach() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onFrame = nil
	u.onError = nil
	u.onClose = nil
}
