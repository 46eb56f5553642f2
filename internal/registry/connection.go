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

package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nabbar/mcp-bridge/internal/mcperr"
	"github.com/nabbar/mcp-bridge/internal/model"
	"github.com/nabbar/mcp-bridge/internal/syncmap"
)

// ConnectionRegistry catalogs client connections and their runtime
// state, mirroring ServerRegistry's concurrency shape.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	byID  syncmap.Map[string, *model.ConnectionInstance]
	order []string
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{}
}

// Create reserves a Disconnected ConnectionInstance, minting an id if
// cfg.ID is empty.
func (r *ConnectionRegistry) Create(cfg model.ConnectionConfig) (*model.ConnectionInstance, error) {
	if !cfg.Transport.Valid() {
		return nil, mcperr.New(mcperr.ValidationError, cfg.ID, "unknown transport", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if _, ok := r.byID.Load(cfg.ID); ok {
		return nil, mcperr.New(mcperr.AlreadyExists, cfg.ID, "connection id already registered", nil)
	}

	inst := model.NewConnectionInstance(cfg)
	r.byID.Store(cfg.ID, inst)
	r.order = append(r.order, cfg.ID)
	return inst, nil
}

// Remove deletes a connection, requiring it be Disconnected.
func (r *ConnectionRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.byID.Load(id)
	if !ok {
		return mcperr.New(mcperr.NotFound, id, "connection not found", nil)
	}
	if inst.GetStatus() != model.ConnDisconnected {
		return mcperr.New(mcperr.InvalidState, id, "remove requires Disconnected status", nil)
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

func (r *ConnectionRegistry) Get(id string) (*model.ConnectionInstance, error) {
	inst, ok := r.byID.Load(id)
	if !ok {
		return nil, mcperr.New(mcperr.NotFound, id, "connection not found", nil)
	}
	return inst, nil
}

func (r *ConnectionRegistry) List() []*model.ConnectionInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.ConnectionInstance, 0, len(r.order))
	for _, id := range r.order {
		if inst, ok := r.byID.Load(id); ok {
			out = append(out, inst)
		}
	}
	return out
}

// ListByServer returns every connection targeting serverID, used by
// Supervisor.Stop's best-effort disconnect and the hot-swap path.
func (r *ConnectionRegistry) ListByServer(serverID string) []*model.ConnectionInstance {
	var out []*model.ConnectionInstance
	for _, inst := range r.List() {
		if inst.Config.ServerID == serverID {
			out = append(out, inst)
		}
	}
	return out
}
