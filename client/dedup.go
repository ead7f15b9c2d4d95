package client

// seenRecord remembers a bounded window of recently delivered event
// identifiers. Once the capacity is reached the oldest entry is evicted,
// so very old ids may be delivered again; the window only has to cover the
// push/pull overlap, not all history. Not safe for concurrent use; the
// controller guards it with its own mutex.
type seenRecord struct {
	capacity int
	ids      map[string]struct{}
	ring     []string
	next     int
}

func newSeenRecord(capacity int) *seenRecord {
	return &seenRecord{
		capacity: capacity,
		ids:      make(map[string]struct{}, capacity),
		ring:     make([]string, capacity),
	}
}

func (s *seenRecord) Seen(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenRecord) Add(id string) {
	if s.Seen(id) {
		return
	}
	if evicted := s.ring[s.next]; evicted != "" {
		delete(s.ids, evicted)
	}
	s.ring[s.next] = id
	s.ids[id] = struct{}{}
	s.next = (s.next + 1) % s.capacity
}
