package discovery

import (
	"sort"
	"sync"
)

type Mode int

const (
	ModeUnset Mode = iota
	ModeJSON
	ModeField
)

func (m Mode) String() string {
	switch m {
	case ModeJSON:
		return "json"
	case ModeField:
		return "field"
	}
	return "unset"
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

type DeviceState struct {
	ID         string `json:"id"`
	Mode       Mode   `json:"mode"`
	Discovered bool   `json:"discovered"`
}

// Registry tracks announced devices and their telemetry mode.
// Mode is a one-way latch, once set it is never overwritten. A device leaves the discovered set only
// when none of its announcements could be published.
type Registry struct {
	discovered map[string]bool
	modes      map[string]Mode
	sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		discovered: map[string]bool{},
		modes:      map[string]Mode{},
	}
}

// LatchMode sets mode if it was unset and returns the effective one
func (r *Registry) LatchMode(device string, mode Mode) Mode {
	r.Lock()
	defer r.Unlock()
	if m, ok := r.modes[device]; ok && m != ModeUnset {
		return m
	}
	r.modes[device] = mode
	return mode
}

func (r *Registry) Mode(device string) Mode {
	r.RLock()
	defer r.RUnlock()
	return r.modes[device]
}

// MarkDiscovered returns true only for the call that moved the device from unknown to discovered
func (r *Registry) MarkDiscovered(device string) bool {
	r.Lock()
	defer r.Unlock()
	if r.discovered[device] {
		return false
	}
	r.discovered[device] = true
	return true
}

// forget reverts MarkDiscovered of a device whose announcement was never published
func (r *Registry) forget(device string) {
	r.Lock()
	defer r.Unlock()
	delete(r.discovered, device)
}

func (r *Registry) IsDiscovered(device string) bool {
	r.RLock()
	defer r.RUnlock()
	return r.discovered[device]
}

// Len returns number of discovered devices
func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.discovered)
}

// Devices returns snapshot of every known device sorted by id
func (r *Registry) Devices() []DeviceState {
	r.RLock()
	seen := map[string]bool{}
	out := []DeviceState{}
	for id := range r.discovered {
		seen[id] = true
		out = append(out, DeviceState{ID: id, Mode: r.modes[id], Discovered: true})
	}
	for id, m := range r.modes {
		if !seen[id] {
			out = append(out, DeviceState{ID: id, Mode: m})
		}
	}
	r.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
