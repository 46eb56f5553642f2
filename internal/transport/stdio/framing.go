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
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/nabbar/mcp-bridge/internal/transport"
)

// maxLineSize caps a single framed message to guard against a runaway
// child process filling memory with an unterminated line.
const maxLineSize = 16 * 1024 * 1024

// readFrame reads one newline-delimited JSON-RPC object, the wire
// format stdio transports use for child-process traffic. Blank lines
// between frames are skipped rather than treated as malformed input,
// since a child process's stdout may emit stray newlines around its
// own buffering boundaries.
func readFrame(r *bufio.Reader) (transport.Frame, error) {
	for {
		line, err := readLineBounded(r)
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			var f transport.Frame
			if jerr := json.Unmarshal([]byte(trimmed), &f); jerr != nil {
				return nil, jerr
			}
			return f, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// readLineBounded reads up to a trailing newline, erroring instead of
// growing without bound if a misbehaving child never emits one.
func readLineBounded(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		chunk, err := r.ReadSlice('\n')
		b.Write(chunk)
		if b.Len() > maxLineSize {
			return "", errors.New("stdio frame exceeds maximum line size")
		}
		if err == nil {
			return b.String(), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return b.String(), err
	}
}

func writeFrame(w io.Writer, f transport.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
