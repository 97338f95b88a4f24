package domain

import "sort"

// Terminal phase sentinels. These never appear in the ordered phase
// progression; they mark streams that left the watchlist.
const (
	// PhaseFinished marks a stream whose age exceeded the last phase's cap.
	PhaseFinished = 99
	// PhaseGraduated marks a stream whose bonding curve filled up.
	PhaseGraduated = 100
)

// Phase is one row of the ref_coin_phases table.
type Phase struct {
	ID              int
	Name            string
	IntervalSeconds int // flush cadence while in this phase
	MaxAgeMinutes   int // upper age bound before transition to the next phase
}

// PhaseSet is an immutable, id-ordered view of the phase reference table.
// Terminal sentinels are kept out of the progression order.
type PhaseSet struct {
	byID  map[int]Phase
	order []Phase
}

// NewPhaseSet builds a PhaseSet from table rows in any order.
func NewPhaseSet(phases []Phase) *PhaseSet {
	ps := &PhaseSet{byID: make(map[int]Phase, len(phases))}
	for _, p := range phases {
		ps.byID[p.ID] = p
		if p.ID < PhaseFinished {
			ps.order = append(ps.order, p)
		}
	}
	sort.Slice(ps.order, func(i, j int) bool { return ps.order[i].ID < ps.order[j].ID })
	return ps
}

// Get returns the phase with the given id.
func (ps *PhaseSet) Get(id int) (Phase, bool) {
	p, ok := ps.byID[id]
	return p, ok
}

// Next returns the first phase whose id is strictly greater than currentID.
// ok is false when the progression is exhausted (the stream is finished).
func (ps *PhaseSet) Next(currentID int) (Phase, bool) {
	for _, p := range ps.order {
		if p.ID > currentID {
			return p, true
		}
	}
	return Phase{}, false
}

// Smallest returns the lowest-id phase, used as the entry phase for newly
// promoted streams and as the fallback for unknown phase ids.
func (ps *PhaseSet) Smallest() (Phase, bool) {
	if len(ps.order) == 0 {
		return Phase{}, false
	}
	return ps.order[0], true
}

// Len reports the number of non-terminal phases.
func (ps *PhaseSet) Len() int {
	return len(ps.order)
}

// All returns the non-terminal phases in ascending id order.
func (ps *PhaseSet) All() []Phase {
	out := make([]Phase, len(ps.order))
	copy(out, ps.order)
	return out
}

// DefaultPhases is the compiled-in fallback used when ref_coin_phases is
// absent or empty at startup.
func DefaultPhases() []Phase {
	return []Phase{
		{ID: 1, Name: "launch", IntervalSeconds: 5, MaxAgeMinutes: 2},
		{ID: 2, Name: "early", IntervalSeconds: 30, MaxAgeMinutes: 10},
		{ID: 3, Name: "mid", IntervalSeconds: 60, MaxAgeMinutes: 30},
		{ID: 4, Name: "late", IntervalSeconds: 300, MaxAgeMinutes: 120},
	}
}
