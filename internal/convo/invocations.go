package convo

import "sync"

// InvocationLog remembers which primer text started a conversation,
// keyed by the message ID of the reply that opened it. Capacity is
// bounded; the oldest record is evicted in strict insertion order when a
// new one would exceed it.
type InvocationLog struct {
	mu       sync.Mutex
	capacity int
	order    []string
	primers  map[string]string
}

// DefaultInvocationCapacity bounds the log when no capacity is given.
const DefaultInvocationCapacity = 100

// NewInvocationLog returns a log holding at most capacity records.
func NewInvocationLog(capacity int) *InvocationLog {
	if capacity <= 0 {
		capacity = DefaultInvocationCapacity
	}
	return &InvocationLog{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		primers:  make(map[string]string, capacity),
	}
}

// Record stores the primer under the given message ID. Recording an ID
// already present replaces its primer without changing its age.
func (l *InvocationLog) Record(messageID, primer string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.primers[messageID]; ok {
		l.primers[messageID] = primer
		return
	}
	if len(l.order) == l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.primers, oldest)
	}
	l.order = append(l.order, messageID)
	l.primers[messageID] = primer
}

// Lookup returns the primer recorded for the message ID. Lookups do not
// affect eviction order.
func (l *InvocationLog) Lookup(messageID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	primer, ok := l.primers[messageID]
	return primer, ok
}

// Len reports the number of records currently held.
func (l *InvocationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
