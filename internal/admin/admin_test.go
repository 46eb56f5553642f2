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

package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nabbar/mcp-bridge/internal/bridgemgr"
	"github.com/nabbar/mcp-bridge/internal/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestSurface() *Surface {
	servers := registry.NewServerRegistry()
	conns := registry.NewConnectionRegistry()
	mgr := bridgemgr.New(servers, conns, nil)
	return New(mgr, nil)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateServer_ValidationRejectsMissingCommand(t *testing.T) {
	s := newTestSurface()
	r := s.Router()

	rec := doJSON(t, r, http.MethodPost, "/api/servers", map[string]interface{}{
		"transport": "stdio",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateServer_GetServer_NotFound(t *testing.T) {
	s := newTestSurface()
	r := s.Router()

	rec := doJSON(t, r, http.MethodGet, "/api/servers/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServerLifecycle_CreateStartStopDelete(t *testing.T) {
	s := newTestSurface()
	r := s.Router()

	rec := doJSON(t, r, http.MethodPost, "/api/servers", map[string]interface{}{
		"name":      "in-process",
		"command":   "unused-for-memory-transport",
		"transport": "memory",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created serverProjection
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created server: %v", err)
	}
	if created.Status != "stopped" {
		t.Fatalf("want freshly registered server stopped, got %s", created.Status)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/servers/"+created.ID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var started serverProjection
	json.Unmarshal(rec.Body.Bytes(), &started)
	if started.Status != "running" {
		t.Fatalf("want running after start, got %s", started.Status)
	}

	// A running server rejects update.
	rec = doJSON(t, r, http.MethodPut, "/api/servers/"+created.ID, map[string]interface{}{
		"command":   "unused",
		"transport": "memory",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("update while running: want 409, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodPost, "/api/servers/"+created.ID+"/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodDelete, "/api/servers/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodGet, "/api/servers/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: want 404, got %d", rec.Code)
	}
}

func TestConnectionLifecycle_CreateThenDisconnect(t *testing.T) {
	s := newTestSurface()
	r := s.Router()

	rec := doJSON(t, r, http.MethodPost, "/api/servers", map[string]interface{}{
		"name": "in-process", "command": "unused", "transport": "memory",
	})
	var srv serverProjection
	json.Unmarshal(rec.Body.Bytes(), &srv)

	rec = doJSON(t, r, http.MethodPost, "/api/connections", map[string]interface{}{
		"serverId": srv.ID, "transport": "memory",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create connection: want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var conn connectionProjection
	json.Unmarshal(rec.Body.Bytes(), &conn)
	if conn.Status != "connected" {
		t.Fatalf("want connected, got %s", conn.Status)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/connections/"+conn.ID+"/disconnect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disconnect: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// The server bringing up the connection should not have been torn
	// down by disconnecting the connection.
	rec = doJSON(t, r, http.MethodGet, "/api/servers/"+srv.ID, nil)
	var afterDisconnect serverProjection
	json.Unmarshal(rec.Body.Bytes(), &afterDisconnect)
	if afterDisconnect.Status != "running" {
		t.Fatalf("want server still running after connection disconnect, got %s", afterDisconnect.Status)
	}
}

func TestCreateConnection_UnsupportedCombinationIsBadRequestOrServerError(t *testing.T) {
	s := newTestSurface()
	r := s.Router()

	rec := doJSON(t, r, http.MethodPost, "/api/servers", map[string]interface{}{
		"name": "in-process", "command": "unused", "transport": "memory",
	})
	var srv serverProjection
	json.Unmarshal(rec.Body.Bytes(), &srv)

	rec = doJSON(t, r, http.MethodPost, "/api/connections", map[string]interface{}{
		"serverId": srv.ID, "transport": "stdio",
	})
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusInternalServerError {
		t.Fatalf("want a rejection for memory/stdio mismatch, got %d: %s", rec.Code, rec.Body.String())
	}
}
