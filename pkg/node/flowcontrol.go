package node

import "sync"

// FlowControlTable records, for each flow-control id, the set of
// addresses registered as producers and the set registered as
// consumers. It is the flow-control analogue of the
// router's address table: two maps behind one mutex, grounded the
// same way on pkg/events.Broker's subscriber bookkeeping.
type FlowControlTable struct {
	mu        sync.RWMutex
	producers map[string]map[Address]bool
	consumers map[string]map[Address]bool
}

// NewFlowControlTable creates an empty table.
func NewFlowControlTable() *FlowControlTable {
	return &FlowControlTable{
		producers: make(map[string]map[Address]bool),
		consumers: make(map[string]map[Address]bool),
	}
}

// AddProducer records addr as a producer for id. start_worker calls
// this when a worker is started with a flow-control id.
func (t *FlowControlTable) AddProducer(id string, addr Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.producers[id] == nil {
		t.producers[id] = make(map[Address]bool)
	}
	t.producers[id][addr] = true
}

// RemoveProducer drops addr as a producer for id, e.g. on stop_worker.
func (t *FlowControlTable) RemoveProducer(id string, addr Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.producers[id], addr)
}

// AddConsumer grows the consumer set for id. Explicit add_consumer /
// remove_consumer calls are how a transport listener or decryptor
// admits a newly started downstream worker.
func (t *FlowControlTable) AddConsumer(id string, addr Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumers[id] == nil {
		t.consumers[id] = make(map[Address]bool)
	}
	t.consumers[id][addr] = true
}

// RemoveConsumer shrinks the consumer set for id.
func (t *FlowControlTable) RemoveConsumer(id string, addr Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.consumers[id], addr)
}

// IsProducer reports whether addr is a registered producer for id.
// Default-constructed access controls consult this so a fresh
// transport listener only admits messages from its registered
// producers, by default.
func (t *FlowControlTable) IsProducer(id string, addr Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.producers[id][addr]
}

// IsConsumer reports whether addr is a registered consumer for id.
func (t *FlowControlTable) IsConsumer(id string, addr Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.consumers[id][addr]
}
