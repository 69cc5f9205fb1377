package ledger

// FlushPolicy decides, after each upsert, whether the ledger should be
// persisted. Observe is called with the store lock held.
type FlushPolicy interface {
	Observe() bool
}

// DefaultFlushEvery bounds data loss to the last incomplete group of updates.
const DefaultFlushEvery = 10

// EveryN requests a flush after every n upserts.
type EveryN struct {
	n       int
	pending int
}

// NewEveryN builds an EveryN policy; n < 1 means every upsert.
func NewEveryN(n int) *EveryN {
	if n < 1 {
		n = 1
	}
	return &EveryN{n: n}
}

func (p *EveryN) Observe() bool {
	p.pending++
	if p.pending >= p.n {
		p.pending = 0
		return true
	}
	return false
}

// Pending is the number of upserts since the last requested flush.
func (p *EveryN) Pending() int {
	return p.pending
}

// Never leaves flushing to explicit Flush and Close calls.
type Never struct{}

func (Never) Observe() bool { return false }
