package main

import "fmt"

// Program is a record for one station, keyed by its 16-bit PI code.
// Created on first reference, never deleted during a run; handles
// (pointers into ProgramTable.entries) stay stable because the slice is
// only ever appended to.
type Program struct {
	PI       uint16
	Freq     float64 // MHz, last observed frequency
	Name     [8]byte // PS name, assembled 2 chars at a time
	TP       bool    // traffic-program flag
	TA       bool    // last-seen traffic-announcement flag
	Type     int     // PTY, 0..31
}

// NameString cuts the fixed-size PS buffer at its first NUL, then trims
// trailing spaces.
func (p *Program) NameString() string {
	n := 0
	for n < len(p.Name) && p.Name[n] != 0 {
		n++
	}
	s := string(p.Name[:n])
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// ProgramTable is the append-only, unordered collection of known
// programs. PI-code uniqueness is its sole invariant.
type ProgramTable struct {
	entries []*Program
}

// GetOrCreate performs a linear search by PI, appending a
// zero-initialized record on first reference.
func (t *ProgramTable) GetOrCreate(pi uint16) *Program {
	for _, p := range t.entries {
		if p.PI == pi {
			return p
		}
	}
	p := &Program{PI: pi}
	t.entries = append(t.entries, p)
	return p
}

// Lookup returns the existing record for pi, or nil.
func (t *ProgramTable) Lookup(pi uint16) *Program {
	for _, p := range t.entries {
		if p.PI == pi {
			return p
		}
	}
	return nil
}

func (t *ProgramTable) Len() int { return len(t.entries) }

// NextProgram locates the entry matching currentMHz within +/-0.09,
// advances cyclically to the next entry whose frequency is >= the
// tuner's minimum, retunes to it, and reports via the returned message
// (empty if nothing was printed). It is pure except for the call to
// tuner.SetFrequency, to keep the sweep logic testable.
func (t *ProgramTable) NextProgram(currentMHz float64, tuner interface {
	SetFrequency(float64) error
	Min() float64
}) (message string, newFreq float64, err error) {
	for i, p := range t.entries {
		if currentMHz < p.Freq-0.09 || currentMHz > p.Freq+0.09 {
			continue
		}
		next := i + 1
		if next == len(t.entries) {
			next = 0
		}
		for next != i {
			freq := t.entries[next].Freq
			if freq >= tuner.Min() {
				name := t.entries[next].NameString()
				if err := tuner.SetFrequency(freq); err != nil {
					return "", currentMHz, err
				}
				if name != "" {
					message = fmt.Sprintf("Switching to %s (%.2f)", name, freq)
				}
				return message, freq, nil
			}
			if next == len(t.entries)-1 {
				next = 0
			} else {
				next++
			}
		}
		return "No other stations known", currentMHz, nil
	}
	return "", currentMHz, nil
}
