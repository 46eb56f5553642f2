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

// Package registry implements the Server Registry and Connection
// Registry: pure in-memory catalogs keyed by id, with every operation
// appearing atomic with respect to the others.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nabbar/mcp-bridge/internal/mcperr"
	"github.com/nabbar/mcp-bridge/internal/model"
	"github.com/nabbar/mcp-bridge/internal/syncmap"
)

// ServerRegistry catalogs declared servers and their runtime state.
// The registry mutex serializes id-space operations (register,
// unregister, get-for-update); individual instance field mutations go
// through the instance's own mutex so a concurrent list() is not
// blocked behind a single Starting/Stopping transition.
type ServerRegistry struct {
	mu   sync.RWMutex
	byID syncmap.Map[string, *model.ServerInstance]
	// order preserves registration order for list(); listing order is
	// stable within a process but otherwise unspecified.
	order []string
}

func NewServerRegistry() *ServerRegistry {
	return &ServerRegistry{}
}

// Register creates a Stopped ServerInstance. If cfg.ID is empty one is
// minted; a caller-supplied id that collides fails with AlreadyExists.
func (r *ServerRegistry) Register(cfg model.ServerConfig) (*model.ServerInstance, error) {
	if cfg.Transport == model.TransportSSE && cfg.SSEOptions == nil {
		return nil, mcperr.New(mcperr.ValidationError, cfg.ID, "sse transport requires sseOptions", nil)
	}
	if !cfg.Transport.Valid() {
		return nil, mcperr.New(mcperr.ValidationError, cfg.ID, "unknown transport", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if _, ok := r.byID.Load(cfg.ID); ok {
		return nil, mcperr.New(mcperr.AlreadyExists, cfg.ID, "server id already registered", nil)
	}

	inst := model.NewServerInstance(cfg)
	r.byID.Store(cfg.ID, inst)
	r.order = append(r.order, cfg.ID)
	return inst, nil
}

// Unregister removes a server, requiring it be Stopped first.
func (r *ServerRegistry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID.Load(id)
	if !ok {
		return mcperr.New(mcperr.NotFound, id, "server not found", nil)
	}
	if inst.GetStatus() != model.ServerStopped {
		return mcperr.New(mcperr.InvalidState, id, "unregister requires Stopped status", nil)
	}

	r.byID.Delete(id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *ServerRegistry) Get(id string) (*model.ServerInstance, error) {
	inst, ok := r.byID.Load(id)
	if !ok {
		return nil, mcperr.New(mcperr.NotFound, id, "server not found", nil)
	}
	return inst, nil
}

// List returns instances in registration order.
func (r *ServerRegistry) List() []*model.ServerInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.ServerInstance, 0, len(r.order))
	for _, id := range r.order {
		if inst, ok := r.byID.Load(id); ok {
			out = append(out, inst)
		}
	}
	return out
}

func (r *ServerRegistry) UpdateStatus(id string, status model.ServerStatus, cause error) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}
	inst.SetStatus(status, cause)
	return nil
}

func (r *ServerRegistry) UpdateProcess(id string, handle interface{}) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}
	inst.SetProcessHandle(handle)
	return nil
}

func (r *ServerRegistry) UpdateTransport(id string, handle interface{}) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}
	inst.SetTransportHandle(handle)
	return nil
}

func (r *ServerRegistry) IncrementRestartCount(id string) (int, error) {
	inst, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return inst.IncrementRestartCount(), nil
}

func (r *ServerRegistry) ResetRestartCount(id string) error {
	inst, err := r.Get(id)
	if err != nil {
		return err
	}
	inst.ResetRestartCount()
	return nil
}

// MergeEnv merges delta into the server's config.Env and reports
// whether a restart is required, rejecting the mutation outright if
// the instance is mid-transition.
func (r *ServerRegistry) MergeEnv(id string, delta map[string]string) (bool, error) {
	inst, err := r.Get(id)
	if err != nil {
		return false, err
	}
	switch inst.GetStatus() {
	case model.ServerStopped, model.ServerRunning:
		return inst.MergeEnv(delta), nil
	default:
		return false, mcperr.New(mcperr.InvalidState, id, "env mutation requires Stopped or Running status", nil)
	}
}

func (r *ServerRegistry) ShouldRestart(id string) (bool, error) {
	inst, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return inst.ShouldRestart(), nil
}

func (r *ServerRegistry) RestartDelay(id string) (time.Duration, error) {
	inst, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return inst.RestartDelay(), nil
}
