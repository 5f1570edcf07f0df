package main

import (
	"fmt"
	"io"
	"os"
)

// ptyNames is the 31-entry RBDS program-type table. The original
// decoder this module is modeled on has a missing comma between
// "Religion" and "Phone-in" that silently concatenates the two and
// shifts every later index by one; this is the corrected 31-entry table.
var ptyNames = [31]string{
	"News", "Current affairs", "Information", "Sport",
	"Education", "Drama", "Culture", "Science", "Varied", "Pop music",
	"Rock music", "Easy listening", "Light classical", "Serious classical",
	"Other music", "Weather", "Finance", "Children's programmes",
	"Social affairs", "Religion", "Phone-in", "Travel", "Leisure", "Jazz music",
	"Country music", "National music", "Oldies music", "Folk music",
	"Documentary", "Alarm test", "Alarm",
}

// trimName trims a fixed-size PS/EON name buffer at its first NUL, then
// trims trailing spaces, matching Program.NameString's convention.
func trimName(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	s := string(b[:n])
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

func ptyName(code int) string {
	if code < 1 || code > len(ptyNames) {
		return ""
	}
	return ptyNames[code-1]
}

// tmcDurations maps the 3-bit continuity indicator of a single-group
// (subtype 1) type-8A TMC message to its duration label.
var tmcDurations = [8]string{
	"unknown", "15 minutes", "30 minutes", "1 hour",
	"2 hours", "3 hour", "4 hour", "rest of the day",
}

// RDSDecoder assembles and dispatches RDS groups from a stream of raw
// 3-byte block records. It is single-threaded: all state below is
// touched only from the RDS/keyboard event loop.
type RDSDecoder struct {
	programs *ProgramTable
	tuner    frequencySource
	out      io.Writer
	Verbose  int

	group     [8]byte
	lastGroup [8]byte
	haveLast  bool

	groupType   int
	thisProgram *Program

	psBuf        [8]byte
	lastPSName   string
	stereoKnown  bool
	isStereo     bool
	ta           bool
	afRemaining  int

	rtBuf [64]byte
	rtAB  bool

	blockCount, errorCount int
}

// frequencySource is the subset of Tuner the decoder needs to stamp a
// program's last-observed frequency; kept narrow for testability.
type frequencySource interface {
	GetFrequency() (float64, error)
}

func NewRDSDecoder(programs *ProgramTable, tuner frequencySource, out io.Writer) *RDSDecoder {
	if out == nil {
		out = os.Stdout
	}
	d := &RDSDecoder{programs: programs, tuner: tuner, out: out}
	for i := range d.rtBuf {
		d.rtBuf[i] = ' '
	}
	return d
}

func (d *RDSDecoder) emit(format string, args ...any) {
	fmt.Fprintf(d.out, format+"\n", args...)
}

// HandleRecord processes one raw 3-byte RDS record: lsb, msb and the
// block-indicator byte whose low 3 bits give the block number and bit 7
// signals an uncorrectable block.
func (d *RDSDecoder) HandleRecord(lsb, msb, blockIndicator byte) error {
	blockNumber := int(blockIndicator & 0x07)
	errored := blockIndicator&0x80 != 0

	d.blockCount++
	if errored {
		d.errorCount++
		if d.Verbose > 0 {
			d.emit("%d errors in %d blocks so far", d.errorCount, d.blockCount)
		}
		return &DecodeError{BlockNumber: blockNumber}
	}
	if blockNumber < 0 || blockNumber > 3 {
		return nil
	}

	if blockNumber == 0 {
		pi := uint16(msb)<<8 | uint16(lsb)
		d.thisProgram = d.programs.GetOrCreate(pi)
		if freq, err := d.tuner.GetFrequency(); err == nil {
			d.thisProgram.Freq = freq
		}
	}
	if blockNumber == 1 {
		word := uint16(msb)<<8 | uint16(lsb)
		d.groupType = int(word >> 11)
		pty := int((word >> 5) & 0x1F)
		if d.thisProgram != nil && pty != 0 && d.thisProgram.Type != pty {
			d.thisProgram.Type = pty
			d.emit("Program type: %s", ptyName(pty))
		}
	}

	d.group[2*blockNumber] = msb
	d.group[2*blockNumber+1] = lsb

	if blockNumber == 3 {
		if d.haveLast && d.group == d.lastGroup {
			return nil
		}
		d.dispatch(d.groupType, d.group)
		d.lastGroup = d.group
		d.haveLast = true
		d.group = [8]byte{}
	}
	return nil
}

func (d *RDSDecoder) dispatch(groupType int, g [8]byte) {
	switch groupType {
	case 0: // 0A
		d.handle0A(g)
	case 4: // 2A
		d.handle2A(g)
	case 8: // 4A
		d.emit("%s", FormatDate(Decode4A(g)))
	case 16: // 8A
		d.handle8A(g)
	case 28: // 14A
		d.handle14A(g)
		fallthrough // matches the original decoder's missing switch
		// terminator: every 14A group also falls into the verbose dump
		// below, kept as-is rather than fixed.
	default:
		if d.Verbose > 1 {
			d.emit("Group(%X): %02X%02X-%02X%02X-%02X%02X-%02X%02X",
				groupType, g[0], g[1], g[2], g[3], g[4], g[5], g[6], g[7])
		}
	}
}

func (d *RDSDecoder) handle0A(g [8]byte) {
	tp := g[2]&0x04 == 0x04
	taBit := g[3]&0x10 == 0x10
	index := int(g[3]&0x03) << 1

	if tp && taBit != d.ta {
		d.ta = taBit
		state := "off"
		if d.ta {
			state = "on"
		}
		d.emit("Traffic announcement %s", state)
	}

	d.psBuf[index] = g[6]
	d.psBuf[index+1] = g[7]
	if index == 6 {
		name := trimName(d.psBuf[:])
		if name != "" && name != d.lastPSName {
			d.emit("Program: %s", name)
			d.lastPSName = name
		}
	}

	if g[3]&0x03 == 3 {
		stereo := g[3]&0x04 == 0x04
		if !d.stereoKnown || stereo != d.isStereo {
			d.isStereo = stereo
			d.stereoKnown = true
			state := "mono"
			if stereo {
				state = "stereo"
			}
			d.emit("Program is %s", state)
		}
	}

	// Alternate frequencies: byte 4 in [224,249] introduces a list whose
	// remaining count is byte4-224; subsequent 0A groups consume pairs.
	// Only the counter is kept: no frequency is decoded from the pairs and
	// nothing is logged, matching the reference decoder's AF accounting.
	if g[4] >= 224 && g[4] <= 249 {
		d.afRemaining = int(g[4]) - 224
	} else if d.afRemaining > 0 {
		d.afRemaining -= 2
		if d.afRemaining < 0 {
			d.afRemaining = 0
		}
	}
}

func (d *RDSDecoder) handle2A(g [8]byte) {
	index := int(g[3] & 0x0F)
	ab := g[3]&0x10 == 0x10
	if ab != d.rtAB {
		d.rtAB = ab
		end := len(d.rtBuf)
		for end > 0 {
			c := d.rtBuf[end-1]
			if c == ' ' || c == '\r' || c == 0 {
				end--
				continue
			}
			break
		}
		if end > 0 {
			d.emit("Text: %s", string(d.rtBuf[:end]))
		}
		for i := range d.rtBuf {
			d.rtBuf[i] = ' '
		}
	}
	for i := 0; i < 4; i++ {
		d.rtBuf[4*index+i] = g[4+i]
	}
}

func (d *RDSDecoder) handle8A(g [8]byte) {
	subtype := (g[3] & 0x18) >> 3
	ci := int(g[3] & 0x07)
	extent := int(g[4]&0x38) >> 3
	event := (int(g[4]&0x07) << 8) | int(g[5])
	location := (int(g[6]) << 8) | int(g[7])

	if subtype == 1 {
		d.emit("TMC(single): evt=%X, loc=%X, extent=%X, dur=%s",
			event, location, extent, tmcDurations[ci])
		return
	}
	if d.Verbose > 0 {
		d.emit("TMC: Type=%X, CI=%X, event=%X, loc=%X", subtype, ci, event, location)
	}
}

func (d *RDSDecoder) handle14A(g [8]byte) {
	tpon := g[3]&0x10 == 0x10
	variant := int(g[3] & 0x0F)
	pion := uint16(g[6])<<8 | uint16(g[7])
	other := d.programs.GetOrCreate(pion)

	switch variant {
	case 0, 1, 2, 3:
		other.Name[2*variant] = g[4]
		other.Name[2*variant+1] = g[5]
	case 5:
		if d.thisProgram != nil {
			f1 := (100*(float64(g[4])-1) + 87600) / 1000.0
			f2 := (100*(float64(g[5])-1) + 87600) / 1000.0
			if d.thisProgram.Freq >= d.tunerMin() && f1 >= d.thisProgram.Freq-0.04 && f1 <= d.thisProgram.Freq+0.04 {
				other.Freq = f2
				if d.Verbose > 0 {
					name := other.NameString()
					if name != "" {
						d.emit("%s is on %.2fMHz", name, other.Freq)
					}
				}
			}
		}
	case 0xD:
		taon := g[5]&0x01 == 0x01
		if tpon && taon && taon != other.TA {
			other.TA = taon
			state := "off"
			if taon {
				state = "on"
			}
			name := other.NameString()
			if name != "" {
				d.emit("Traffic Announcement on %s is %s", name, state)
			} else {
				d.emit("Traffic Announcement on %X is %s", pion, state)
			}
		}
	default:
		if d.Verbose > 0 {
			info := int(g[4])<<8 | int(g[5])
			d.emit("EON: TPON=%v, v=%X, info=%X, PION=%X", tpon, variant, info, pion)
		}
	}
}

// tunerMin narrows the frequencySource back to a Tuner when available,
// for the EON alternate-frequency pair's minimum-frequency gate (type
// 14A variant 5); decoders under test can supply a zero minimum.
func (d *RDSDecoder) tunerMin() float64 {
	if mt, ok := d.tuner.(interface{ Min() float64 }); ok {
		return mt.Min()
	}
	return 0
}
