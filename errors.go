package main

import "fmt"

// DeviceError wraps a failed ioctl on the radio device with the
// operation name and the underlying errno.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// OutOfRange reports a tuning request outside the tuner's advertised
// [min, max] range.
type OutOfRange struct {
	Requested, Min, Max float64
}

func (e *OutOfRange) Error() string {
	return fmt.Sprintf("%.2f is not in range (%.2f - %.2f)", e.Requested, e.Min, e.Max)
}

// DecodeError marks an RDS block that failed error correction.
type DecodeError struct {
	BlockNumber int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("rds: uncorrectable block %d", e.BlockNumber)
}

// ShortRead marks a partial RDS record read from the tuner fd.
type ShortRead struct {
	Got, Want int
}

func (e *ShortRead) Error() string {
	return fmt.Sprintf("rds: short read, got %d want %d bytes", e.Got, e.Want)
}

// AudioXrun marks an ALSA underrun or suspend condition in the audio
// bridge's capture stream.
type AudioXrun struct {
	Errno error
}

func (e *AudioXrun) Error() string {
	return fmt.Sprintf("audio: xrun: %v", e.Errno)
}

func (e *AudioXrun) Unwrap() error { return e.Errno }

// ConfigError marks a fatal audio-server or sound-card setup failure.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
