package ticket

// Corrections remaps known-bad ticket keys (historical typos in branch names
// and commands) to the key the work was actually tracked under.
type Corrections map[ID]ID

// DefaultCorrections returns the built-in correction table.
func DefaultCorrections() Corrections {
	return Corrections{
		"VIBE-516": "VIBE-216",
	}
}

// Apply returns the corrected key for id, or id itself.
func (c Corrections) Apply(id ID) ID {
	if to, ok := c[id]; ok {
		return to
	}
	return id
}

// With returns a copy of c extended by extra. Invalid keys in extra are ignored.
func (c Corrections) With(extra map[string]string) Corrections {
	out := make(Corrections, len(c)+len(extra))
	for k, v := range c {
		out[k] = v
	}
	for from, to := range extra {
		f, ok1 := Parse(from)
		t, ok2 := Parse(to)
		if ok1 && ok2 {
			out[f] = t
		}
	}
	return out
}
