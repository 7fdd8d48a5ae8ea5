package compat

import "sync"

// HostLocks is a table of per host locks.
//
// Entries are reference counted and dropped once the last holder or waiter unlocks,
// the table only holds locks for hosts with an assignment in progress.
type HostLocks struct {
	mu    sync.Mutex
	locks map[string]*hostLock
}

type hostLock struct {
	mu   sync.Mutex
	refs int
}

// NewHostLocks returns an empty lock table.
func NewHostLocks() *HostLocks {
	return &HostLocks{locks: map[string]*hostLock{}}
}

// Lock blocks until the host lock is held, the returned func releases it.
func (h *HostLocks) Lock(hostID string) (unlock func()) {
	h.mu.Lock()

	l, exists := h.locks[hostID]
	if !exists {
		l = &hostLock{}
		h.locks[hostID] = l
	}

	l.refs++
	h.mu.Unlock()

	l.mu.Lock()

	var once sync.Once

	return func() {
		once.Do(func() {
			l.mu.Unlock()

			h.mu.Lock()
			defer h.mu.Unlock()

			l.refs--
			if l.refs == 0 {
				delete(h.locks, hostID)
			}
		})
	}
}

// Len returns the number of hosts with a lock held or awaited.
func (h *HostLocks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.locks)
}
