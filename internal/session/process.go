package session

import (
	"os"
	"sync"
	"syscall"
)

// ProcessManager tracks live agent subprocesses so a shutdown can terminate
// every process group at once.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*os.Process
}

// NewProcessManager creates an empty process manager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{procs: make(map[int]*os.Process)}
}

// Track registers a started process.
func (pm *ProcessManager) Track(p *os.Process) {
	if p == nil {
		return
	}
	pm.mu.Lock()
	pm.procs[p.Pid] = p
	pm.mu.Unlock()
}

// Untrack removes a finished process.
func (pm *ProcessManager) Untrack(p *os.Process) {
	if p == nil {
		return
	}
	pm.mu.Lock()
	delete(pm.procs, p.Pid)
	pm.mu.Unlock()
}

// KillAll SIGTERMs every tracked process group. Best effort: processes that
// already exited are skipped.
func (pm *ProcessManager) KillAll() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for pid := range pm.procs {
		syscall.Kill(-pid, syscall.SIGTERM)
		delete(pm.procs, pid)
	}
}
