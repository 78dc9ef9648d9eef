// Package viewstate projects gate outcomes into the state a dashboard view renders.
package viewstate

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/hemobank/bo-dashboard/internal/gate"
)

// Status is the render status of a view
type Status string

// Statuses
const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// State is what a view renders. It is derived and never persisted.
type State struct {
	Status       Status          `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Fingerprint  string          `json:"-"`

	// UpdatedAt is when Data last changed
	UpdatedAt time.Time `json:"updatedAt,omitzero"`

	// RefreshedAt is when Data was last confirmed by a fetch or cache hit
	RefreshedAt time.Time `json:"refreshedAt,omitzero"`
}

// clone copies s so that Data no longer shares memory with the cache entry
func (s State) clone() State {
	s.Data = bytes.Clone(s.Data)
	return s
}

// ChangeKind distinguishes notifications
type ChangeKind string

// Change kinds
const (
	// ChangeStatus is sent when only the status or error changed
	ChangeStatus ChangeKind = "status"
	// ChangeData is sent when new data was applied
	ChangeData ChangeKind = "data"
	// ChangeRefreshed is sent when identical data was confirmed
	ChangeRefreshed ChangeKind = "refreshed"
)

// Change is a notification sent to subscribers
type Change struct {
	Kind  ChangeKind
	State State
}

// Projection holds the state of one mounted view
type Projection struct {
	clock clock.PassiveClock

	mu     sync.Mutex
	state  State
	frozen bool
	subs   map[int]chan Change
	nextID int
}

// NewProjection creates an idle projection
func NewProjection(clk clock.PassiveClock) *Projection {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Projection{
		clock: clk,
		state: State{Status: StatusIdle},
		subs:  make(map[int]chan Change),
	}
}

// BeginFetch marks the view as loading
func (p *Projection) BeginFetch() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen || p.state.Status == StatusLoading {
		return
	}
	p.state.Status = StatusLoading
	p.notify(ChangeStatus)
}

// Apply folds a gate outcome into the state
func (p *Projection) Apply(o gate.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		return
	}

	switch o.Kind {
	case gate.OutcomeError:
		p.state.Status = StatusError
		if o.Err != nil {
			p.state.ErrorMessage = o.Err.Error()
		}
		p.notify(ChangeStatus)

	case gate.OutcomeFetched, gate.OutcomeCacheHit:
		p.applyEntry(o)

	case gate.OutcomeSkipped:
		// Another fetch is still running and will settle the view itself.
		// Otherwise a skip settles a loading view but keeps any shown error.
		if o.Reason != gate.ReasonInFlight && p.state.Status == StatusLoading {
			p.state.Status = StatusIdle
			p.notify(ChangeStatus)
		}
	}
}

func (p *Projection) applyEntry(o gate.Outcome) {
	now := p.clock.Now()
	p.state.Status = StatusIdle
	p.state.ErrorMessage = ""
	p.state.RefreshedAt = now

	entry := o.Entry
	if entry == nil || entry.Fingerprint == p.state.Fingerprint {
		p.notify(ChangeRefreshed)
		return
	}

	p.state.Data = entry.Payload
	p.state.Fingerprint = entry.Fingerprint
	p.state.UpdatedAt = now
	p.notify(ChangeData)
}

// Snapshot returns a copy of the current state
func (p *Projection) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Subscribe returns a channel of changes and a function to stop receiving.
// Slow subscribers miss notifications rather than blocking the projection.
func (p *Projection) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Change, buffer)
	if p.frozen {
		close(ch)
		return ch, func() {}
	}

	id := p.nextID
	p.nextID++
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(sub)
			}
		})
	}
}

// Freeze stops all further updates and closes subscriber channels
func (p *Projection) Freeze() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		return
	}
	p.frozen = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

// notify must be called with mu held
func (p *Projection) notify(kind ChangeKind) {
	change := Change{Kind: kind, State: p.state.clone()}
	for _, ch := range p.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
