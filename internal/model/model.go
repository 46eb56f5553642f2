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

// Package model holds the data shapes for server and connection
// configuration, and their runtime instances. Nothing here does I/O;
// registries and the bridge manager own the state machines that
// mutate these types.
package model

import (
	"sync"
	"time"
)

// Transport names the three supported wire mechanisms.
type Transport string

const (
	TransportStdio   Transport = "stdio"
	TransportSSE     Transport = "sse"
	TransportMemory  Transport = "memory"
	TransportUnknown Transport = ""
)

func (t Transport) Valid() bool {
	switch t {
	case TransportStdio, TransportSSE, TransportMemory:
		return true
	default:
		return false
	}
}

// ServerStatus is the ServerInstance lifecycle state.
type ServerStatus string

const (
	ServerStopped  ServerStatus = "stopped"
	ServerStarting ServerStatus = "starting"
	ServerRunning  ServerStatus = "running"
	ServerStopping ServerStatus = "stopping"
	ServerError    ServerStatus = "error"
)

// ConnectionStatus is the ConnectionInstance lifecycle state.
type ConnectionStatus string

const (
	ConnConnecting    ConnectionStatus = "connecting"
	ConnConnected     ConnectionStatus = "connected"
	ConnDisconnecting ConnectionStatus = "disconnecting"
	ConnDisconnected  ConnectionStatus = "disconnected"
	ConnError         ConnectionStatus = "error"
)

// SSEOptions is required when ServerConfig.Transport is sse.
type SSEOptions struct {
	Host string
	Port int
}

// LifecyclePolicy governs auto-restart behavior for a server process.
type LifecyclePolicy struct {
	AutoRestart bool
	// MaxRestarts < 0 means unbounded; nil-like semantics are expressed
	// with a negative sentinel since Go has no optional int without a
	// pointer, and a pointer here would complicate the copy semantics
	// ServerConfig relies on.
	MaxRestarts  int
	RestartDelay time.Duration
}

// ServerConfig is immutable except for Env, which MergeEnv mutates
// in place.
type ServerConfig struct {
	ID      string
	Name    string
	Version string

	Command string
	Args    []string
	Dir     string
	Env     map[string]string

	Transport  Transport
	SSEOptions *SSEOptions

	Lifecycle LifecyclePolicy
}

// Clone returns a copy that shares no Args, Env or SSEOptions storage
// with c, used by NewServerInstance and Snapshot so callers never alias
// the instance's own config.
func (c ServerConfig) Clone() ServerConfig {
	cp := c
	cp.Args = append([]string(nil), c.Args...)
	cp.Env = make(map[string]string, len(c.Env))
	for k, v := range c.Env {
		cp.Env[k] = v
	}
	if c.SSEOptions != nil {
		opt := *c.SSEOptions
		cp.SSEOptions = &opt
	}
	return cp
}

// ServerInstance is a ServerConfig plus runtime fields. Every mutator
// takes the instance's own mutex so that registry-level
// reads (list()) never block on a single instance's state transition.
type ServerInstance struct {
	mu sync.Mutex

	Config ServerConfig

	Status       ServerStatus
	LastError    error
	StartTime    *time.Time
	RestartCount int

	// process and transport handles are opaque to the registry; the
	// supervisor is the only reader/writer of their concrete type.
	ProcessHandle   interface{}
	TransportHandle interface{}
}

// NewServerInstance creates a Stopped instance wrapping a config copy.
func NewServerInstance(cfg ServerConfig) *ServerInstance {
	return &ServerInstance{Config: cfg.Clone(), Status: ServerStopped}
}

// Snapshot returns a value copy safe to read without holding the
// instance lock, used by admin projections and registry list().
type ServerSnapshot struct {
	Config       ServerConfig
	Status       ServerStatus
	LastError    error
	StartTime    *time.Time
	RestartCount int
}

func (s *ServerInstance) Snapshot() ServerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServerSnapshot{
		Config:       s.Config.Clone(),
		Status:       s.Status,
		LastError:    s.LastError,
		StartTime:    s.StartTime,
		RestartCount: s.RestartCount,
	}
}

func (s *ServerInstance) withLock(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

func (s *ServerInstance) SetStatus(status ServerStatus, err error) {
	s.withLock(func() {
		s.Status = status
		s.LastError = err
	})
}

func (s *ServerInstance) SetProcessHandle(h interface{}) {
	s.withLock(func() { s.ProcessHandle = h })
}

func (s *ServerInstance) SetTransportHandle(h interface{}) {
	s.withLock(func() { s.TransportHandle = h })
}

func (s *ServerInstance) SetStartTime(t time.Time) {
	s.withLock(func() { s.StartTime = &t })
}

func (s *ServerInstance) IncrementRestartCount() int {
	var n int
	s.withLock(func() {
		s.RestartCount++
		n = s.RestartCount
	})
	return n
}

func (s *ServerInstance) ResetRestartCount() {
	s.withLock(func() { s.RestartCount = 0 })
}

// MergeEnv merges delta into Config.Env (delta wins on collision) and
// reports whether the instance is currently Running, meaning a restart
// is required to apply the change.
func (s *ServerInstance) MergeEnv(delta map[string]string) (running bool) {
	s.withLock(func() {
		if s.Config.Env == nil {
			s.Config.Env = make(map[string]string, len(delta))
		}
		for k, v := range delta {
			s.Config.Env[k] = v
		}
		running = s.Status == ServerRunning
	})
	return running
}

// ShouldRestart reports whether a crashed server is eligible for an
// automatic restart. MaxRestarts < 0 means unbounded.
func (s *ServerInstance) ShouldRestart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Config.Lifecycle.AutoRestart {
		return false
	}
	if s.Config.Lifecycle.MaxRestarts < 0 {
		return true
	}
	return s.RestartCount < s.Config.Lifecycle.MaxRestarts
}

// RestartDelay returns the configured delay or the 1s default.
func (s *ServerInstance) RestartDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Config.Lifecycle.RestartDelay > 0 {
		return s.Config.Lifecycle.RestartDelay
	}
	return time.Second
}

func (s *ServerInstance) GetStatus() ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

func (s *ServerInstance) GetProcessHandle() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ProcessHandle
}

func (s *ServerInstance) GetTransportHandle() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TransportHandle
}

// ReconnectPolicy governs a connection's client-side reconnect attempts.
type ReconnectPolicy struct {
	Reconnect      bool
	MaxReconnects  int
	ReconnectDelay time.Duration
}

// ConnectionConfig identifies a client-to-server bridge.
type ConnectionConfig struct {
	ID        string
	ServerID  string
	Transport Transport
	Timeout   time.Duration
	Reconnect ReconnectPolicy
}

func (c ConnectionConfig) Clone() ConnectionConfig {
	return c
}

// ConnectionInstance is a ConnectionConfig plus runtime fields.
type ConnectionInstance struct {
	mu sync.Mutex

	Config ConnectionConfig

	Status         ConnectionStatus
	LastError      error
	ConnectTime    *time.Time
	ReconnectCount int

	TransportHandle interface{}
}

func NewConnectionInstance(cfg ConnectionConfig) *ConnectionInstance {
	return &ConnectionInstance{Config: cfg.Clone(), Status: ConnDisconnected}
}

type ConnectionSnapshot struct {
	Config         ConnectionConfig
	Status         ConnectionStatus
	LastError      error
	ConnectTime    *time.Time
	ReconnectCount int
}

func (c *ConnectionInstance) Snapshot() ConnectionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionSnapshot{
		Config:         c.Config.Clone(),
		Status:         c.Status,
		LastError:      c.LastError,
		ConnectTime:    c.ConnectTime,
		ReconnectCount: c.ReconnectCount,
	}
}

func (c *ConnectionInstance) withLock(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f()
}

func (c *ConnectionInstance) SetStatus(status ConnectionStatus, err error) {
	c.withLock(func() {
		c.Status = status
		c.LastError = err
	})
}

func (c *ConnectionInstance) SetTransportHandle(h interface{}) {
	c.withLock(func() { c.TransportHandle = h })
}

func (c *ConnectionInstance) SetConnectTime(t time.Time) {
	c.withLock(func() { c.ConnectTime = &t })
}

func (c *ConnectionInstance) ResetReconnectCount() {
	c.withLock(func() { c.ReconnectCount = 0 })
}

func (c *ConnectionInstance) IncrementReconnectCount() int {
	var n int
	c.withLock(func() {
		c.ReconnectCount++
		n = c.ReconnectCount
	})
	return n
}

func (c *ConnectionInstance) GetStatus() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Status
}
