package coordinator

import (
	"sync"
	"sync/atomic"
)

// Phase names the stage a run is in.
type Phase string

const (
	PhaseListing   Phase = "listing"
	PhaseFetching  Phase = "fetching"
	PhaseArchiving Phase = "archiving"
	PhaseDone      Phase = "done"
)

// Progress range boundaries. Container mode reserves the tail of the range
// for the archive build.
const (
	FetchSpanBatch     = 1.0
	FetchSpanContainer = 0.8
	ArchiveSpanEnd     = 0.98
)

// Snapshot is a point-in-time copy of the progress counters.
type Snapshot struct {
	Phase     Phase
	Total     int
	Resolved  int
	Succeeded int
	Failed    int
	Fraction  float64
	Current   string
}

// Progress tracks how many items have been fully resolved. Counter updates
// are atomic; the phase window and observer calls are serialized.
type Progress struct {
	total     atomic.Int64
	resolved  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	mu           sync.Mutex
	phase        Phase
	fetchSpan    float64
	archiveDone  int
	archiveTotal int
	current      string
	observer     func(Snapshot)
}

// NewProgress creates a progress tracker. fetchSpan is the share of the range
// covered by item resolution (FetchSpanBatch or FetchSpanContainer). The
// observer, if non-nil, is called after every change and must not call back
// into the tracker.
func NewProgress(fetchSpan float64, observer func(Snapshot)) *Progress {
	if fetchSpan <= 0 || fetchSpan > 1 {
		fetchSpan = FetchSpanBatch
	}
	return &Progress{
		phase:     PhaseListing,
		fetchSpan: fetchSpan,
		observer:  observer,
	}
}

// SetPhase moves the tracker to a new phase.
func (p *Progress) SetPhase(phase Phase) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
	p.notify()
}

// SetTotal records the number of items the run will resolve.
func (p *Progress) SetTotal(n int) {
	if p == nil {
		return
	}
	p.total.Store(int64(n))
	p.notify()
}

// Resolve marks one item as fully processed.
func (p *Progress) Resolve(succeeded bool, current string) {
	if p == nil {
		return
	}
	if succeeded {
		p.succeeded.Add(1)
	} else {
		p.failed.Add(1)
	}
	p.resolved.Add(1)
	p.mu.Lock()
	p.current = current
	p.mu.Unlock()
	p.notify()
}

// ArchiveStep records that done of total archive entries have been written.
func (p *Progress) ArchiveStep(done, total int, name string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.phase = PhaseArchiving
	p.archiveDone = done
	p.archiveTotal = total
	p.current = name
	p.mu.Unlock()
	p.notify()
}

// Finish moves the tracker to PhaseDone, which reports a full range.
func (p *Progress) Finish() {
	p.SetPhase(PhaseDone)
}

// Fraction returns the overall completion in [0, 1].
func (p *Progress) Fraction() float64 {
	return p.Snapshot().Fraction
}

// Snapshot returns the current counters.
func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Progress) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:     p.phase,
		Total:     int(p.total.Load()),
		Resolved:  int(p.resolved.Load()),
		Succeeded: int(p.succeeded.Load()),
		Failed:    int(p.failed.Load()),
		Current:   p.current,
	}

	switch p.phase {
	case PhaseDone:
		s.Fraction = 1
	case PhaseArchiving:
		s.Fraction = p.fetchSpan
		if p.archiveTotal > 0 {
			s.Fraction += (ArchiveSpanEnd - p.fetchSpan) * float64(p.archiveDone) / float64(p.archiveTotal)
		}
	default:
		if s.Total > 0 {
			s.Fraction = p.fetchSpan * float64(s.Resolved) / float64(s.Total)
		}
	}
	if s.Fraction > 1 {
		s.Fraction = 1
	}
	return s
}

func (p *Progress) notify() {
	if p.observer == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer(p.snapshotLocked())
}
