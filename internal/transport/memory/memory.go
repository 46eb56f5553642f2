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

// Package memory implements the in-process paired-channel transport:
// a linked pair {left, right} that mutually deliver.
package memory

import (
	"context"
	"sync"

	"github.com/nabbar/mcp-bridge/internal/transport"
)

type side struct {
	transport.Upcalls

	mu      sync.Mutex
	started bool
	peer    *side
	inbox   chan transport.Frame
	done    chan struct{}
}

// NewPair returns two adapters wired back to back: a frame sent on
// left arrives on right's frame handler, and vice versa.
func NewPair() (left, right transport.KindedAdapter) {
	l := &side{inbox: make(chan transport.Frame, 64), done: make(chan struct{})}
	r := &side{inbox: make(chan transport.Frame, 64), done: make(chan struct{})}
	l.peer, r.peer = r, l
	return l, r
}

func (s *side) Kind() transport.Kind { return transport.KindMemory }

func (s *side) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	go s.pump(ctx)
	return nil
}

func (s *side) pump(ctx context.Context) {
	for {
		select {
		case f, ok := <-s.inbox:
			if !ok {
				return
			}
			s.EmitFrame(f)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *side) Send(ctx context.Context, frame transport.Frame) error {
	s.mu.Lock()
	peer := s.peer
	s.mu.Unlock()
	if peer == nil {
		return nil
	}
	select {
	case peer.inbox <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *side) Close() error {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.done)
	s.mu.Unlock()

	s.EmitCloseOnce()
	return nil
}
