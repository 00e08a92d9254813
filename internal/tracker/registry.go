package tracker

import (
	"sort"
	"sync"
)

// Registry hands out one Tracker per logical slot, such as a document's
// analysis or its video, so that a slot never has two active jobs.
type Registry struct {
	mu    sync.Mutex
	opts  Options
	slots map[string]*Tracker
}

// NewRegistry creates an empty registry whose trackers share opts
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:  opts,
		slots: make(map[string]*Tracker),
	}
}

// Tracker returns the tracker for slot, creating it on first use
func (r *Registry) Tracker(slot string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.slots[slot]
	if !ok {
		opts := r.opts
		if opts.Logger != nil {
			opts.Logger = opts.Logger.With("slot", slot)
		}
		t = New(opts)
		r.slots[slot] = t
	}
	return t
}

// Cancel cancels the job in slot, if any
func (r *Registry) Cancel(slot string) {
	r.mu.Lock()
	t := r.slots[slot]
	r.mu.Unlock()

	if t != nil {
		t.Cancel()
	}
}

// CancelAll cancels every slot, as when the user navigates away
func (r *Registry) CancelAll() {
	r.mu.Lock()
	trackers := make([]*Tracker, 0, len(r.slots))
	for _, t := range r.slots {
		trackers = append(trackers, t)
	}
	r.mu.Unlock()

	for _, t := range trackers {
		t.Cancel()
	}
}

// Active returns the slots that currently have an active job, sorted
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for slot, t := range r.slots {
		if t.Active() {
			out = append(out, slot)
		}
	}
	sort.Strings(out)
	return out
}
