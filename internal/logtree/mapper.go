package logtree

// ThreadIdMapper assigns a stable, monotonically increasing ThreadNumber to
// each ThreadID on first sight, and forgets the mapping once the owning
// Thread-kind scope closes, so a later OS thread-id reuse gets a fresh
// number (spec.md §4.7).
type ThreadIdMapper struct {
	assigned map[ThreadID]ThreadNumber
	next     ThreadNumber
}

// NewThreadIdMapper constructs an empty mapper.
func NewThreadIdMapper() *ThreadIdMapper {
	return &ThreadIdMapper{assigned: make(map[ThreadID]ThreadNumber)}
}

// NumberFor returns id's ThreadNumber, assigning a fresh one if this is the
// first time id has been seen since the last time it was forgotten.
func (m *ThreadIdMapper) NumberFor(id ThreadID) ThreadNumber {
	n, ok := m.assigned[id]
	if ok {
		return n
	}

	n = m.next
	m.next++
	m.assigned[id] = n

	return n
}

// Forget drops id's mapping, called when its owning Thread-kind scope
// closes.
func (m *ThreadIdMapper) Forget(id ThreadID) {
	delete(m.assigned, id)
}
