package picker

import (
	"context"
	"sync"
)

// Picker starts sessions and allows at most one at a time.
type Picker struct {
	opts Options

	mu     sync.Mutex
	active *Session
}

func New(opts Options) *Picker {
	return &Picker{opts: opts}
}

// Run starts a session and blocks until it is Done. A second call while a
// session is running fails with ErrSessionActive.
func (p *Picker) Run(ctx context.Context) (Outcome, error) {
	p.mu.Lock()
	if p.active != nil {
		p.mu.Unlock()
		return Outcome{}, ErrSessionActive
	}
	s := NewSession(p.opts)
	p.active = s
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active = nil
		p.mu.Unlock()
	}()
	return s.Run(ctx)
}

// Active returns the running session, or nil.
func (p *Picker) Active() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Cancel aborts the running session, if any.
func (p *Picker) Cancel() {
	if s := p.Active(); s != nil {
		s.Cancel()
	}
}
