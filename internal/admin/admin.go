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

// Package admin is a thin gin-based HTTP/JSON veneer over the Bridge
// Manager's operations. It validates request shape and translates
// mcperr.Kind into HTTP status; it holds no state of its own and
// performs no business logic beyond that translation.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nabbar/mcp-bridge/internal/bridgemgr"
	"github.com/nabbar/mcp-bridge/internal/mcperr"
	"github.com/nabbar/mcp-bridge/internal/mlog"
	"github.com/nabbar/mcp-bridge/internal/model"
	"github.com/nabbar/mcp-bridge/internal/transport"
)

// Surface wires the Bridge Manager into a gin.Engine.
type Surface struct {
	Manager *bridgemgr.Manager
	Log     mlog.Logger
}

func New(mgr *bridgemgr.Manager, log mlog.Logger) *Surface {
	if log == nil {
		log = mlog.Nop()
	}
	return &Surface{Manager: mgr, Log: log}
}

// Router builds the gin.Engine exposing the admin HTTP surface.
func (s *Surface) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)

	r.GET("/api/servers", s.listServers)
	r.GET("/api/servers/:id", s.getServer)
	r.POST("/api/servers", s.createServer)
	r.PUT("/api/servers/:id", s.updateServer)
	r.DELETE("/api/servers/:id", s.deleteServer)
	r.POST("/api/servers/:id/start", s.startServer)
	r.POST("/api/servers/:id/stop", s.stopServer)
	r.POST("/api/servers/:id/environment", s.updateEnvironment)

	r.GET("/api/connections", s.listConnections)
	r.GET("/api/connections/:id", s.getConnection)
	r.POST("/api/connections", s.createConnection)
	r.DELETE("/api/connections/:id", s.deleteConnection)
	r.POST("/api/connections/:id/disconnect", s.disconnectConnection)
	r.POST("/api/connections/:id/reconnect", s.reconnectConnection)
	r.POST("/api/connections/:id/messages", s.postConnectionMessage)

	return r
}

func (s *Surface) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps a domain error to its HTTP status category: 400
// validation, 404 not-found, 409 invalid-state, 500 internal.
func writeError(c *gin.Context, err error) {
	code := mcperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case mcperr.ValidationError, mcperr.UnsupportedTransport:
		status = http.StatusBadRequest
	case mcperr.NotFound:
		status = http.StatusNotFound
	case mcperr.AlreadyExists, mcperr.InvalidState:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": gin.H{"code": code.String(), "message": err.Error()}})
}

// serverProjection is the external shape of server listing/detail
// responses, omitting process/transport handles.
type serverProjection struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Version      string     `json:"version"`
	Transport    string     `json:"transport"`
	Status       string     `json:"status"`
	Env          map[string]string `json:"env,omitempty"`
	StartTime    *time.Time `json:"startTime,omitempty"`
	RestartCount int        `json:"restartCount"`
	Error        string     `json:"error,omitempty"`
}

func projectServer(snap model.ServerSnapshot) serverProjection {
	p := serverProjection{
		ID:           snap.Config.ID,
		Name:         snap.Config.Name,
		Version:      snap.Config.Version,
		Transport:    string(snap.Config.Transport),
		Status:       string(snap.Status),
		Env:          snap.Config.Env,
		StartTime:    snap.StartTime,
		RestartCount: snap.RestartCount,
	}
	if snap.LastError != nil {
		p.Error = snap.LastError.Error()
	}
	return p
}

type connectionProjection struct {
	ID             string     `json:"id"`
	ServerID       string     `json:"serverId"`
	Transport      string     `json:"transport"`
	Status         string     `json:"status"`
	ConnectTime    *time.Time `json:"connectTime,omitempty"`
	ReconnectCount int        `json:"reconnectCount"`
	Error          string     `json:"error,omitempty"`
}

func projectConnection(snap model.ConnectionSnapshot) connectionProjection {
	p := connectionProjection{
		ID:             snap.Config.ID,
		ServerID:       snap.Config.ServerID,
		Transport:      string(snap.Config.Transport),
		Status:         string(snap.Status),
		ConnectTime:    snap.ConnectTime,
		ReconnectCount: snap.ReconnectCount,
	}
	if snap.LastError != nil {
		p.Error = snap.LastError.Error()
	}
	return p
}

func (s *Surface) listServers(c *gin.Context) {
	insts := s.Manager.Servers.List()
	out := make([]serverProjection, 0, len(insts))
	for _, inst := range insts {
		out = append(out, projectServer(inst.Snapshot()))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Surface) getServer(c *gin.Context) {
	inst, err := s.Manager.Servers.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, projectServer(inst.Snapshot()))
}

// createServerRequest mirrors ServerConfig without the id field, which
// Register mints.
type createServerRequest struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Command string            `json:"command" binding:"required"`
	Args    []string          `json:"args"`
	Dir     string            `json:"dir"`
	Env     map[string]string `json:"env"`

	Transport  string  `json:"transport" binding:"required"`
	SSEOptions *struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"sseOptions"`

	Lifecycle struct {
		AutoRestart  bool  `json:"autoRestart"`
		MaxRestarts  int   `json:"maxRestarts"`
		RestartDelay int64 `json:"restartDelayMs"`
	} `json:"lifecycle"`
}

func (s *Surface) createServer(c *gin.Context) {
	var req createServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, mcperr.New(mcperr.ValidationError, "", err.Error(), err))
		return
	}

	cfg := model.ServerConfig{
		Name:    req.Name,
		Version: req.Version,
		Command: req.Command,
		Args:    req.Args,
		Dir:     req.Dir,
		Env:     req.Env,

		Transport: model.Transport(req.Transport),
		Lifecycle: model.LifecyclePolicy{
			AutoRestart:  req.Lifecycle.AutoRestart,
			MaxRestarts:  req.Lifecycle.MaxRestarts,
			RestartDelay: time.Duration(req.Lifecycle.RestartDelay) * time.Millisecond,
		},
	}
	if req.SSEOptions != nil {
		cfg.SSEOptions = &model.SSEOptions{Host: req.SSEOptions.Host, Port: req.SSEOptions.Port}
	}

	inst, err := s.Manager.Servers.Register(cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, projectServer(inst.Snapshot()))
}

// updateServer replaces a server's revisable config fields; it is
// rejected unless the instance is Stopped. The fields replaced are
// name, version, command, args, dir, env, and lifecycle, each set to
// the request's value: a field omitted from the body is reset to its
// zero value rather than kept, and command and transport are required
// as on create. Transport and sseOptions in the body are ignored;
// transport is immutable.
func (s *Surface) updateServer(c *gin.Context) {
	id := c.Param("id")
	inst, err := s.Manager.Servers.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	if inst.GetStatus() != model.ServerStopped {
		writeError(c, mcperr.New(mcperr.InvalidState, id, "update requires Stopped status", nil))
		return
	}

	var req createServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, mcperr.New(mcperr.ValidationError, id, err.Error(), err))
		return
	}

	cur := inst.Snapshot().Config
	cur.Name = req.Name
	cur.Version = req.Version
	cur.Command = req.Command
	cur.Args = req.Args
	cur.Dir = req.Dir
	cur.Env = req.Env
	cur.Lifecycle = model.LifecyclePolicy{
		AutoRestart:  req.Lifecycle.AutoRestart,
		MaxRestarts:  req.Lifecycle.MaxRestarts,
		RestartDelay: time.Duration(req.Lifecycle.RestartDelay) * time.Millisecond,
	}

	if err := s.Manager.Servers.Unregister(id); err != nil {
		writeError(c, err)
		return
	}
	cur.ID = id
	newInst, rerr := s.Manager.Servers.Register(cur)
	if rerr != nil {
		writeError(c, rerr)
		return
	}
	c.JSON(http.StatusOK, projectServer(newInst.Snapshot()))
}

func (s *Surface) deleteServer(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.Manager.Servers.Get(id); err != nil {
		writeError(c, err)
		return
	}
	if err := s.Manager.Supervisor.Stop(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	if err := s.Manager.Servers.Unregister(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Surface) startServer(c *gin.Context) {
	id := c.Param("id")
	if err := s.Manager.Supervisor.Start(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	inst, _ := s.Manager.Servers.Get(id)
	c.JSON(http.StatusOK, projectServer(inst.Snapshot()))
}

func (s *Surface) stopServer(c *gin.Context) {
	id := c.Param("id")
	if err := s.Manager.Supervisor.Stop(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	inst, _ := s.Manager.Servers.Get(id)
	c.JSON(http.StatusOK, projectServer(inst.Snapshot()))
}

func (s *Surface) updateEnvironment(c *gin.Context) {
	id := c.Param("id")
	var delta map[string]interface{}
	if err := c.ShouldBindJSON(&delta); err != nil {
		writeError(c, mcperr.New(mcperr.ValidationError, id, err.Error(), err))
		return
	}

	typed := make(map[string]string, len(delta))
	for k, v := range delta {
		sv, ok := v.(string)
		if !ok {
			writeError(c, mcperr.New(mcperr.ValidationError, id, "environment values must be strings", nil))
			return
		}
		typed[k] = sv
	}

	if err := s.Manager.UpdateEnvironment(c.Request.Context(), id, typed); err != nil {
		writeError(c, err)
		return
	}
	inst, err := s.Manager.Servers.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	snap := inst.Snapshot()
	c.JSON(http.StatusOK, gin.H{"env": snap.Config.Env, "status": snap.Status})
}

func (s *Surface) listConnections(c *gin.Context) {
	insts := s.Manager.Connections.List()
	out := make([]connectionProjection, 0, len(insts))
	for _, inst := range insts {
		out = append(out, projectConnection(inst.Snapshot()))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Surface) getConnection(c *gin.Context) {
	inst, err := s.Manager.Connections.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, projectConnection(inst.Snapshot()))
}

type createConnectionRequest struct {
	ServerID  string `json:"serverId" binding:"required"`
	Transport string `json:"transport" binding:"required"`
	TimeoutMs int64  `json:"timeoutMs"`
	Reconnect struct {
		Reconnect      bool  `json:"reconnect"`
		MaxReconnects  int   `json:"maxReconnects"`
		ReconnectDelay int64 `json:"reconnectDelayMs"`
	} `json:"reconnect"`
	EnvDelta map[string]string `json:"envDelta"`
}

// createConnection handles POST /api/connections. An sse-transport
// connection requires the request itself to BE the open response (the
// caller dials this endpoint expecting an event stream back), so this
// handler hijacks the response as the SSE sink when transport=sse;
// for stdio and memory it returns the usual JSON projection.
func (s *Surface) createConnection(c *gin.Context) {
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, mcperr.New(mcperr.ValidationError, "", err.Error(), err))
		return
	}

	cfg := model.ConnectionConfig{
		ServerID:  req.ServerID,
		Transport: model.Transport(req.Transport),
		Timeout:   time.Duration(req.TimeoutMs) * time.Millisecond,
		Reconnect: model.ReconnectPolicy{
			Reconnect:      req.Reconnect.Reconnect,
			MaxReconnects:  req.Reconnect.MaxReconnects,
			ReconnectDelay: time.Duration(req.Reconnect.ReconnectDelay) * time.Millisecond,
		},
	}

	hints := bridgemgr.ConnectHints{EnvDelta: req.EnvDelta, Timeout: cfg.Timeout}
	if cfg.Transport == model.TransportSSE {
		hints.SSEResponseWriter = c.Writer
	}

	id, err := s.Manager.Connect(c.Request.Context(), cfg, hints)
	if err != nil {
		writeError(c, err)
		return
	}

	if cfg.Transport == model.TransportSSE {
		// The response is now owned by the sse adapter, which has
		// already written status/headers and will stream events on it
		// until the connection is torn down.
		<-c.Request.Context().Done()
		return
	}

	inst, _ := s.Manager.Connections.Get(id)
	c.JSON(http.StatusCreated, projectConnection(inst.Snapshot()))
}

func (s *Surface) deleteConnection(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.Manager.Connections.Get(id); err != nil {
		writeError(c, err)
		return
	}
	if err := s.Manager.Disconnect(id); err != nil {
		writeError(c, err)
		return
	}
	if err := s.Manager.Connections.Remove(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Surface) disconnectConnection(c *gin.Context) {
	id := c.Param("id")
	if err := s.Manager.Disconnect(id); err != nil {
		writeError(c, err)
		return
	}
	inst, err := s.Manager.Connections.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, projectConnection(inst.Snapshot()))
}

// reconnectConnection re-runs connect() with the existing connection's
// config and no connect hints; the connection's reconnect policy is not
// consulted. The original id is retired first since the registry requires
// Disconnected before removal and a fresh connect mints its own id —
// the same id instability the hot-swap path accepts.
func (s *Surface) reconnectConnection(c *gin.Context) {
	id := c.Param("id")
	inst, err := s.Manager.Connections.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	cfg := inst.Snapshot().Config

	if derr := s.Manager.Disconnect(id); derr != nil {
		writeError(c, derr)
		return
	}
	if rerr := s.Manager.Connections.Remove(id); rerr != nil {
		writeError(c, rerr)
		return
	}

	cfg.ID = ""
	newID, cerr := s.Manager.Connect(c.Request.Context(), cfg, bridgemgr.ConnectHints{})
	if cerr != nil {
		writeError(c, cerr)
		return
	}
	newInst, _ := s.Manager.Connections.Get(newID)
	c.JSON(http.StatusOK, projectConnection(newInst.Snapshot()))
}

// postConnectionMessage is the companion POST endpoint paired with
// every sse server adapter's event stream, identified by connection id.
func (s *Surface) postConnectionMessage(c *gin.Context) {
	id := c.Param("id")
	var frame transport.Frame
	if err := c.ShouldBindJSON(&frame); err != nil {
		writeError(c, mcperr.New(mcperr.ValidationError, id, err.Error(), err))
		return
	}
	if err := s.Manager.HandleInboundSSEPost(id, frame); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
