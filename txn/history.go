package txn

import "time"

// QueryRecord is one entry in a transaction's bounded statement history.
type QueryRecord struct {
	SQL      string
	At       time.Time
	Duration time.Duration
	Err      string
}

// queryRing is a fixed-capacity ring that overwrites the oldest entry on
// overflow. Insertion is O(1); no reallocation after construction.
type queryRing struct {
	buf  []QueryRecord
	head int
	n    int
}

func newQueryRing(capacity int) *queryRing {
	if capacity < 1 {
		capacity = 1
	}
	return &queryRing{buf: make([]QueryRecord, capacity)}
}

func (r *queryRing) push(rec QueryRecord) {
	r.buf[r.head] = rec
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// snapshot returns the retained records, oldest first.
func (r *queryRing) snapshot() []QueryRecord {
	out := make([]QueryRecord, 0, r.n)
	start := (r.head - r.n + len(r.buf)) % len(r.buf)
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
