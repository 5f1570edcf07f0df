package main

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

type fakeFreqSource struct {
	freq float64
	min  float64
}

func (f *fakeFreqSource) GetFrequency() (float64, error) { return f.freq, nil }
func (f *fakeFreqSource) Min() float64                   { return f.min }

// feedGroup pushes one assembled 8-byte group through the decoder as
// four raw 3-byte records, blocks 0..3 in order.
func feedGroup(t *testing.T, d *RDSDecoder, pi uint16, g [8]byte) {
	t.Helper()
	records := [4][2]byte{
		{byte(pi >> 8), byte(pi)},
		{g[2], g[3]},
		{g[4], g[5]},
		{g[6], g[7]},
	}
	for i, r := range records {
		if err := d.HandleRecord(r[1], r[0], byte(i)); err != nil {
			t.Fatalf("HandleRecord block %d: %v", i, err)
		}
	}
}

func TestProgramServiceNameAssembly(t *testing.T) {
	var buf bytes.Buffer
	d := NewRDSDecoder(&ProgramTable{}, &fakeFreqSource{freq: 98.5}, &buf)

	segments := []struct {
		index int
		a, b  byte
	}{
		{0, 'B', 'B'},
		{1, 'C', ' '},
		{2, 'R', '1'},
		{3, ' ', ' '},
	}
	for _, seg := range segments {
		var g [8]byte
		g[3] = byte(seg.index)
		g[6], g[7] = seg.a, seg.b
		feedGroup(t, d, 0x1234, g)
	}

	if !strings.Contains(buf.String(), "Program: BBC R1\n") {
		t.Fatalf("output = %q, want it to contain %q", buf.String(), "Program: BBC R1")
	}
}

func TestRadiotextABFlip(t *testing.T) {
	var buf bytes.Buffer
	d := NewRDSDecoder(&ProgramTable{}, &fakeFreqSource{freq: 98.5}, &buf)

	text := "ABCDEFGHIJKLMNOP" // 16 chars, 4 segments of 4
	for seg := 0; seg < 4; seg++ {
		var g [8]byte
		g[2] = 0x20     // groupType=4 (2A)
		g[3] = byte(seg) // A/B bit (0x10) clear
		copy(g[4:8], text[seg*4:seg*4+4])
		feedGroup(t, d, 0x1234, g)
	}

	// Toggle the A/B flag to force a flush of the assembled text.
	var flip [8]byte
	flip[2] = 0x20
	flip[3] = 0x10
	feedGroup(t, d, 0x1234, flip)

	if !strings.Contains(buf.String(), "Text: ABCDEFGHIJKLMNOP\n") {
		t.Fatalf("output = %q, want it to contain %q", buf.String(), "Text: ABCDEFGHIJKLMNOP")
	}
}

func TestStereoLatch(t *testing.T) {
	var buf bytes.Buffer
	d := NewRDSDecoder(&ProgramTable{}, &fakeFreqSource{freq: 98.5}, &buf)

	stereoOn := [8]byte{0, 0, 0, 0x07, 0, 0, ' ', ' '}  // DI=3 (0x03), stereo bit (0x04) set
	stereoOff := [8]byte{0, 0, 0, 0x03, 0, 0, ' ', ' '} // DI=3, stereo bit clear

	feedGroup(t, d, 0x1234, stereoOn)
	if !strings.Contains(buf.String(), "Program is stereo\n") {
		t.Fatalf("output = %q, want it to contain %q", buf.String(), "Program is stereo")
	}

	buf.Reset()
	feedGroup(t, d, 0x1234, stereoOff)
	if !strings.Contains(buf.String(), "Program is mono\n") {
		t.Fatalf("output = %q, want it to contain %q", buf.String(), "Program is mono")
	}

	buf.Reset()
	feedGroup(t, d, 0x1234, stereoOff)
	if buf.Len() != 0 {
		t.Fatalf("repeated mono state should emit nothing, got %q", buf.String())
	}
}

func TestEONAlternateFrequency(t *testing.T) {
	programs := &ProgramTable{}
	d := NewRDSDecoder(programs, &fakeFreqSource{freq: 91.70, min: 87.5}, &discard{})

	// Establish 0x3333 as the currently-tuned station at 91.70 MHz by
	// sending one of its groups (block 0 stamps Freq from the tuner).
	feedGroup(t, d, 0x3333, [8]byte{})

	// 14A, variant 5: PION 0x4444, b1=42 -> f1=91.70 (matches the
	// current station), b2=114 -> f2=98.90, via f=(100*(b-1)+87600)/1000.
	var g [8]byte
	g[2], g[3] = 0xE0, 0x05 // groupType=28 (14A), variant=5
	g[4], g[5] = 42, 114
	g[6], g[7] = 0x44, 0x44 // PION 0x4444
	feedGroup(t, d, 0x3333, g)

	other := programs.Lookup(0x4444)
	if other == nil {
		t.Fatal("program 0x4444 was not created")
	}
	if math.Abs(other.Freq-98.90) > 1e-9 {
		t.Fatalf("program 0x4444 freq = %.2f, want 98.90", other.Freq)
	}
}

func TestDuplicateGroupSuppressed(t *testing.T) {
	var buf bytes.Buffer
	d := NewRDSDecoder(&ProgramTable{}, &fakeFreqSource{freq: 98.5}, &buf)

	feedGroup(t, d, 0x1234, [8]byte{0, 0, 0, 0, 0, 0, 'T', 'E'})
	feedGroup(t, d, 0x1234, [8]byte{0, 0, 0, 1, 0, 0, 'S', 'T'})
	feedGroup(t, d, 0x1234, [8]byte{0, 0, 0, 2, 0, 0, ' ', ' '})

	last := [8]byte{0, 0, 0, 3, 0, 0, 'F', 'M'}
	feedGroup(t, d, 0x1234, last)
	if !strings.Contains(buf.String(), "Program: TEST  FM\n") {
		t.Fatalf("output = %q, want it to contain %q", buf.String(), "Program: TEST  FM")
	}

	buf.Reset()
	feedGroup(t, d, 0x1234, last)
	if buf.Len() != 0 {
		t.Fatalf("duplicate group should produce no output, got %q", buf.String())
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
