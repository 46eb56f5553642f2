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

package memory

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nabbar/mcp-bridge/internal/transport"
)

func TestNewPair_DeliversBothDirections(t *testing.T) {
	left, right := NewPair()

	var gotOnRight, gotOnLeft transport.Frame
	var wg sync.WaitGroup
	wg.Add(2)
	right.SetFrameHandler(func(f transport.Frame) { gotOnRight = f; wg.Done() })
	left.SetFrameHandler(func(f transport.Frame) { gotOnLeft = f; wg.Done() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := left.Start(ctx); err != nil {
		t.Fatalf("start left: %v", err)
	}
	if err := right.Start(ctx); err != nil {
		t.Fatalf("start right: %v", err)
	}

	leftToRight := transport.Frame{"from": "left"}
	rightToLeft := transport.Frame{"from": "right"}

	if err := left.Send(ctx, leftToRight); err != nil {
		t.Fatalf("send left->right: %v", err)
	}
	if err := right.Send(ctx, rightToLeft); err != nil {
		t.Fatalf("send right->left: %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for both frames to be delivered")
	}

	if !reflect.DeepEqual(gotOnRight, leftToRight) {
		t.Fatalf("right got %v, want %v", gotOnRight, leftToRight)
	}
	if !reflect.DeepEqual(gotOnLeft, rightToLeft) {
		t.Fatalf("left got %v, want %v", gotOnLeft, rightToLeft)
	}
}

func TestClose_FiresCloseHandlerOnce(t *testing.T) {
	left, _ := NewPair()
	var calls int32
	left.SetCloseHandler(func() { atomic.AddInt32(&calls, 1) })

	ctx := context.Background()
	if err := left.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	left.Close()
	left.Close()
	left.Close()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("want close handler to fire exactly once, fired %d times", got)
	}
}

func TestStart_Idempotent(t *testing.T) {
	left, _ := NewPair()
	ctx := context.Background()
	if err := left.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := left.Start(ctx); err != nil {
		t.Fatalf("second start should be a no-op, got: %v", err)
	}
}

func TestSend_AfterPeerCloseDoesNotBlockForever(t *testing.T) {
	left, right := NewPair()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := left.Start(ctx); err != nil {
		t.Fatalf("start left: %v", err)
	}
	if err := right.Start(ctx); err != nil {
		t.Fatalf("start right: %v", err)
	}
	right.Close()

	// The peer's inbox channel is unbuffered-beyond-capacity only in
	// principle; sending into a closed-but-still-referenced peer must
	// not hang past the context deadline.
	done := make(chan error, 1)
	go func() { done <- left.Send(ctx, transport.Frame{}) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send blocked past the deadline after peer close")
	}
}
