package main

import "testing"

func TestGetOrCreatePIUniqueness(t *testing.T) {
	table := &ProgramTable{}
	a := table.GetOrCreate(0x1111)
	b := table.GetOrCreate(0x2222)
	c := table.GetOrCreate(0x1111)

	if a != c {
		t.Fatalf("GetOrCreate(0x1111) returned different handles on repeat lookup")
	}
	if a == b {
		t.Fatalf("GetOrCreate returned the same handle for two different PI codes")
	}
	if table.Len() != 2 {
		t.Fatalf("table has %d entries, want 2", table.Len())
	}
}

type fakeTuner struct {
	freq     float64
	min, max float64
	err      error
}

func (f *fakeTuner) SetFrequency(mhz float64) error {
	if f.err != nil {
		return f.err
	}
	f.freq = mhz
	return nil
}
func (f *fakeTuner) Min() float64 { return f.min }

func TestNextProgram(t *testing.T) {
	table := &ProgramTable{}
	p1 := table.GetOrCreate(0x1111)
	p1.Freq = 98.50
	p2 := table.GetOrCreate(0x2222)
	p2.Freq = 102.10
	copy(p2.Name[:], "Other   ")

	tuner := &fakeTuner{min: 87.5, max: 108.0}
	msg, newFreq, err := table.NextProgram(98.52, tuner)
	if err != nil {
		t.Fatalf("NextProgram: %v", err)
	}
	if newFreq != 102.10 {
		t.Fatalf("NextProgram set %.2f, want 102.10", newFreq)
	}
	if tuner.freq != 102.10 {
		t.Fatalf("tuner frequency = %.2f, want 102.10", tuner.freq)
	}
	if msg != "Switching to Other (102.10)" {
		t.Fatalf("message = %q, want %q", msg, "Switching to Other (102.10)")
	}
}

func TestNextProgramNoOtherStations(t *testing.T) {
	table := &ProgramTable{}
	p1 := table.GetOrCreate(0x1111)
	p1.Freq = 98.50

	tuner := &fakeTuner{min: 87.5, max: 108.0}
	msg, freq, err := table.NextProgram(98.50, tuner)
	if err != nil {
		t.Fatalf("NextProgram: %v", err)
	}
	if msg != "No other stations known" || freq != 98.50 {
		t.Fatalf("single-entry table should not switch, got msg=%q freq=%.2f", msg, freq)
	}
}
