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

package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/nabbar/mcp-bridge/internal/transport"
)

// ClientAdapter opens an SSE stream at StreamURL and posts outbound
// frames to PostURL, the companion endpoint every SSE stream pairs
// with.
type ClientAdapter struct {
	transport.Upcalls

	StreamURL string
	PostURL   string
	Client    *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	body   io.ReadCloser
}

func NewClientAdapter(streamURL, postURL string) *ClientAdapter {
	return &ClientAdapter{StreamURL: streamURL, PostURL: postURL, Client: http.DefaultClient}
}

func (a *ClientAdapter) Kind() transport.Kind { return transport.KindSSE }

func (a *ClientAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	req, err := http.NewRequestWithContext(runCtx, http.MethodGet, a.StreamURL, nil)
	if err != nil {
		return fmt.Errorf("sse client adapter: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("sse client adapter: connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("sse client adapter: unexpected status %d", resp.StatusCode)
	}

	a.mu.Lock()
	a.body = resp.Body
	a.mu.Unlock()

	go a.readLoop(resp.Body)
	return nil
}

func (a *ClientAdapter) readLoop(body io.ReadCloser) {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), 16*1024*1024)

	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		var f transport.Frame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			a.EmitError(fmt.Errorf("sse client adapter: decode event: %w", err))
			return
		}
		a.EmitFrame(f)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry: and comment lines carry no frame payload.
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		a.EmitError(fmt.Errorf("sse client adapter: stream read: %w", err))
	}
	a.EmitCloseOnce()
}

// Send posts one outbound frame to the companion endpoint.
func (a *ClientAdapter) Send(ctx context.Context, frame transport.Frame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.PostURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		a.EmitError(err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("sse client adapter: post rejected with status %d", resp.StatusCode)
		a.EmitError(err)
		return err
	}
	return nil
}

func (a *ClientAdapter) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.EmitCloseOnce()
	return nil
}
