// Package syncctx holds the process-wide sync state shared by the
// connectivity monitor, the sync queue engine and the outer surfaces.
// Exactly one Context is built at startup and injected everywhere.
package syncctx

import (
	"sync"
	"time"
)

// Progress of the drain in flight.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// State is a snapshot of the shared sync state.
type State struct {
	IsOnline    bool       `json:"is_online"`
	IsSyncing   bool       `json:"is_syncing"`
	QueueLength int        `json:"queue_length"`
	LastError   *string    `json:"last_error,omitempty"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	Progress    Progress   `json:"progress"`
}

type Context struct {
	mu     sync.RWMutex
	state  State
	subs   map[int]chan State
	nextID int
	closed bool
}

// New returns a Context with the optimistic initial guess of being online.
func New() *Context {
	return &Context{
		state: State{IsOnline: true},
		subs:  map[int]chan State{},
	}
}

func (c *Context) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Context) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.IsOnline
}

// SetOnline records reachability and reports whether it changed.
func (c *Context) SetOnline(online bool) bool {
	return c.update(func(s *State) bool {
		if s.IsOnline == online {
			return false
		}
		s.IsOnline = online
		return true
	})
}

// TryBeginDrain acquires the single drain slot. It fails when offline or
// when another drain is running.
func (c *Context) TryBeginDrain() bool {
	return c.update(func(s *State) bool {
		if !s.IsOnline || s.IsSyncing {
			return false
		}
		s.IsSyncing = true
		s.Progress = Progress{}
		return true
	})
}

func (c *Context) EndDrain() {
	c.update(func(s *State) bool {
		s.IsSyncing = false
		s.Progress = Progress{}
		return true
	})
}

func (c *Context) SetQueueLength(n int) {
	c.update(func(s *State) bool {
		changed := s.QueueLength != n
		s.QueueLength = n
		return changed
	})
}

func (c *Context) SetLastError(msg string) {
	c.update(func(s *State) bool {
		s.LastError = &msg
		return true
	})
}

func (c *Context) ClearLastError() {
	c.update(func(s *State) bool {
		changed := s.LastError != nil
		s.LastError = nil
		return changed
	})
}

func (c *Context) SetProgress(current, total int) {
	c.update(func(s *State) bool {
		s.Progress = Progress{Current: current, Total: total}
		return true
	})
}

func (c *Context) SetLastSync(t time.Time) {
	c.update(func(s *State) bool {
		s.LastSyncAt = &t
		return true
	})
}

// Subscribe returns a channel receiving the latest state after every change.
// Slow readers only miss intermediate states. Call cancel to detach.
func (c *Context) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close detaches all subscribers. Later updates still change the state.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.closed = true
}

func (c *Context) update(f func(s *State) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !f(&c.state) {
		return false
	}
	snap := c.state
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	return true
}
