package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// Keyboard puts stdin into raw mode for single-character command input
// and guarantees the terminal is restored on Close, including
// when the process is interrupted mid-run.
type Keyboard struct {
	fd    int
	state *term.State
}

// OpenKeyboard switches stdin to raw mode. Callers must defer Close, or
// route SIGINT/SIGTERM to it, to avoid leaving the terminal unusable.
func OpenKeyboard() (*Keyboard, error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, &ConfigError{Op: "term.MakeRaw", Err: err}
	}
	return &Keyboard{fd: fd, state: state}, nil
}

func (k *Keyboard) Close() error {
	return term.Restore(k.fd, k.state)
}

const freqStep = 0.05 // MHz, '+'/'-' step size

// HandleKey processes one raw byte read from stdin: 'n' asks the
// program table for the next known station, '+'/'-' step the tuner's
// frequency by 0.05 MHz (past max it wraps to min+0.05, past min to
// max-0.05, since SetFrequency rejects the range ends), and any other byte
// is echoed back as its decimal/hex value. line is the text to print,
// or "" if nothing should be printed.
func HandleKey(b byte, tuner *Tuner, programs *ProgramTable) (line string, err error) {
	switch b {
	case 'n':
		cur, err := tuner.GetFrequency()
		if err != nil {
			return "", err
		}
		msg, _, err := programs.NextProgram(cur, tuner)
		return msg, err
	case '+':
		return stepFrequency(tuner, freqStep)
	case '-':
		return stepFrequency(tuner, -freqStep)
	default:
		return fmt.Sprintf("key: %d (0x%02X)", b, b), nil
	}
}

func stepFrequency(tuner *Tuner, delta float64) (string, error) {
	cur, err := tuner.GetFrequency()
	if err != nil {
		return "", err
	}
	next := cur + delta
	if next > tuner.Max() {
		next = tuner.Min() + freqStep
	} else if next < tuner.Min() {
		next = tuner.Max() - freqStep
	}
	if err := tuner.SetFrequency(next); err != nil {
		return "", err
	}
	return fmt.Sprintf("Frequency tuned to %.2f", next), nil
}

// ReadByte blocks for exactly one byte of stdin. Called only after a
// poll on stdin's fd reports it readable, so it does not block the
// single-threaded event loop that also services the RDS block reader.
func ReadByte(f *os.File) (byte, error) {
	var buf [1]byte
	n, err := f.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, &ShortRead{Got: n, Want: 1}
	}
	return buf[0], nil
}
