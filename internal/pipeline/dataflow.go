package pipeline

import (
	"encoding/json"
	"sync"
)

// DataFlowContext accumulates the accepted (quality-gate-passed) outputs of
// a session's stages and exposes them to later stages. A stage may only
// execute once every output it declares in Requires is present; that
// invariant is the sole basis for sequencing correctness.
//
// A session is processed by a single worker, so the mutex only guards
// against concurrent snapshot reads from polling clients.
type DataFlowContext struct {
	mu      sync.RWMutex
	outputs map[string]json.RawMessage
	order   []string // insertion order, for deterministic final assembly
}

// NewDataFlowContext returns an empty context.
func NewDataFlowContext() *DataFlowContext {
	return &DataFlowContext{
		outputs: make(map[string]json.RawMessage),
	}
}

// Get returns the accepted output for a stage, if present. The returned
// slice is a copy and safe to retain.
func (d *DataFlowContext) Get(stageID string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out, ok := d.outputs[stageID]
	if !ok {
		return nil, false
	}
	cp := make(json.RawMessage, len(out))
	copy(cp, out)
	return cp, true
}

// Put records the accepted output for a stage. It is write-once: a second
// Put for the same stage ID returns ErrDuplicateOutput, since a session only
// ever accepts one successful result per stage.
func (d *DataFlowContext) Put(stageID string, output json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.outputs[stageID]; exists {
		return ErrDuplicateOutput
	}

	cp := make(json.RawMessage, len(output))
	copy(cp, output)
	d.outputs[stageID] = cp
	d.order = append(d.order, stageID)
	return nil
}

// HasAll reports whether every listed stage ID has an accepted output.
func (d *DataFlowContext) HasAll(stageIDs []string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range stageIDs {
		if _, ok := d.outputs[id]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the subset of stage IDs that have no accepted output,
// preserving the order given.
func (d *DataFlowContext) Missing(stageIDs []string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var missing []string
	for _, id := range stageIDs {
		if _, ok := d.outputs[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Slice returns copies of the outputs for the listed stage IDs. Stages
// without an accepted output are omitted.
func (d *DataFlowContext) Slice(stageIDs []string) map[string]json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(stageIDs))
	for _, id := range stageIDs {
		if v, ok := d.outputs[id]; ok {
			cp := make(json.RawMessage, len(v))
			copy(cp, v)
			out[id] = cp
		}
	}
	return out
}

// Outputs returns copies of all accepted outputs keyed by stage ID.
func (d *DataFlowContext) Outputs() map[string]json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(d.outputs))
	for id, v := range d.outputs {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[id] = cp
	}
	return out
}

// Len returns the number of accepted outputs.
func (d *DataFlowContext) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.outputs)
}
