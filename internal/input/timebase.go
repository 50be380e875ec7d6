package input

// Timebase enforces a strictly increasing host clock per pointer. Backends
// occasionally deliver duplicate or rewound host timestamps; those are
// bumped to one microsecond past the previous value and counted.
type Timebase struct {
	last      map[uint32]uint64
	corrected uint64
}

// NewTimebase creates an empty timebase.
func NewTimebase() *Timebase {
	return &Timebase{last: make(map[uint32]uint64)}
}

// Normalize returns the corrected host time for pointerID.
func (t *Timebase) Normalize(pointerID uint32, hostUs uint64) uint64 {
	prev := t.last[pointerID]
	out := hostUs
	if hostUs <= prev {
		t.corrected++
		out = prev + 1
	}
	t.last[pointerID] = out
	return out
}

// Corrected returns how many samples had their host time rewritten.
func (t *Timebase) Corrected() uint64 {
	return t.corrected
}

// Reset clears all per-pointer history.
func (t *Timebase) Reset() {
	clear(t.last)
	t.corrected = 0
}
