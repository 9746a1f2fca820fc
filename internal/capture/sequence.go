package capture

import "github.com/dgnsrekt/copilot_capture/internal/types"

// Sequence is a fixed-capacity, append-only ring of captured requests. Once
// full, each append evicts the oldest record. Callers serialize access.
type Sequence struct {
	buf     []types.CapturedRequest
	start   int
	size    int
	total   int
	evicted int
}

// NewSequence creates a Sequence holding at most capacity records.
func NewSequence(capacity int) *Sequence {
	if capacity < 1 {
		capacity = 1
	}
	return &Sequence{buf: make([]types.CapturedRequest, capacity)}
}

// Append stores rec and reports whether an older record was evicted.
func (s *Sequence) Append(rec types.CapturedRequest) bool {
	s.total++
	if s.size < len(s.buf) {
		s.buf[(s.start+s.size)%len(s.buf)] = rec
		s.size++
		return false
	}
	s.buf[s.start] = rec
	s.start = (s.start + 1) % len(s.buf)
	s.evicted++
	return true
}

// Len returns the number of retained records.
func (s *Sequence) Len() int { return s.size }

// Total returns the number of records ever appended.
func (s *Sequence) Total() int { return s.total }

// Evicted returns how many records were dropped to respect the capacity.
func (s *Sequence) Evicted() int { return s.evicted }

// Snapshot copies the retained records, oldest first.
func (s *Sequence) Snapshot() []types.CapturedRequest {
	return s.Last(s.size)
}

// Last copies the newest n retained records, oldest first.
func (s *Sequence) Last(n int) []types.CapturedRequest {
	if n <= 0 || n > s.size {
		n = s.size
	}
	out := make([]types.CapturedRequest, 0, n)
	for i := s.size - n; i < s.size; i++ {
		out = append(out, s.buf[(s.start+i)%len(s.buf)])
	}
	return out
}
