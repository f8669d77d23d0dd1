package portal

import (
	"sync"

	"workportal/models"
)

// Registry holds the open sessions of the server by session id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers s and tears down any older session of the same employee.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	var stale []*Session
	for id, other := range r.sessions {
		if other.employee.EmpID == s.employee.EmpID {
			stale = append(stale, other)
			delete(r.sessions, id)
		}
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()

	for _, old := range stale {
		old.Teardown()
	}
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ForEmployee returns the session of an employee, if one is open.
func (r *Registry) ForEmployee(empID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.employee.EmpID == empID {
			return s, true
		}
	}
	return nil, false
}

// Remove tears the session down. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Teardown()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Teardown()
		}(s)
	}
	wg.Wait()
}

// Employees lists who is logged in.
func (r *Registry) Employees() []models.Employee {
	r.mu.RLock()
	defer r.mu.RUnlock()
	emps := make([]models.Employee, 0, len(r.sessions))
	for _, s := range r.sessions {
		emps = append(emps, s.employee)
	}
	return emps
}
