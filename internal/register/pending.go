package register

import "sync"

// PendingSet tracks sale ids that are queued but not yet confirmed or rejected.
type PendingSet struct {
	mu        sync.Mutex
	ids       map[string]struct{}
	observers []func(int)
}

func NewPendingSet() *PendingSet {
	return &PendingSet{ids: map[string]struct{}{}}
}

// OnChange registers fn to receive the new count after every mutation that
// changes it. Observers run on the mutating goroutine.
func (p *PendingSet) OnChange(fn func(int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Add is a no-op when id is already tracked.
func (p *PendingSet) Add(id string) bool {
	p.mu.Lock()
	if _, ok := p.ids[id]; ok {
		p.mu.Unlock()
		return false
	}
	p.ids[id] = struct{}{}
	count, observers := len(p.ids), p.observers
	p.mu.Unlock()
	notify(observers, count)
	return true
}

// Remove is a no-op when id is not tracked.
func (p *PendingSet) Remove(id string) bool {
	p.mu.Lock()
	if _, ok := p.ids[id]; !ok {
		p.mu.Unlock()
		return false
	}
	delete(p.ids, id)
	count, observers := len(p.ids), p.observers
	p.mu.Unlock()
	notify(observers, count)
	return true
}

func (p *PendingSet) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

// Clear drops every id without resolving any of them. Teardown only.
func (p *PendingSet) Clear() {
	p.mu.Lock()
	if len(p.ids) == 0 {
		p.mu.Unlock()
		return
	}
	p.ids = map[string]struct{}{}
	observers := p.observers
	p.mu.Unlock()
	notify(observers, 0)
}

func notify(observers []func(int), count int) {
	for _, fn := range observers {
		fn(count)
	}
}
