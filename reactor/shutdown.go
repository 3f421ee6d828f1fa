// File: reactor/shutdown.go
// Author: momentics <momentics@gmail.com>

package reactor

import "github.com/momentics/hioload-reactor/deferred"

// TriggerID identifies a registered shutdown trigger.
type TriggerID uint64

type shutdownTrigger struct {
	id TriggerID
	fn func() *deferred.Deferred
}

// AddShutdownTrigger registers fn to run when the loop stops. The loop keeps
// running until every returned Deferred fires or the shutdown timeout
// passes. A nil Deferred counts as done.
func (r *Reactor) AddShutdownTrigger(fn func() *deferred.Deferred) TriggerID {
	r.trigSeq++
	id := TriggerID(r.trigSeq)
	r.triggers = append(r.triggers, shutdownTrigger{id: id, fn: fn})
	return id
}

// RemoveShutdownTrigger unregisters a trigger. Unknown ids are ignored.
func (r *Reactor) RemoveShutdownTrigger(id TriggerID) {
	for i, t := range r.triggers {
		if t.id == id {
			r.triggers = append(r.triggers[:i], r.triggers[i+1:]...)
			return
		}
	}
}
