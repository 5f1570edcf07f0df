package main

import (
	"fmt"
	"math"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// V4L2 structures and ioctl numbers. The kernel only exposes these
// through linux/videodev2.h, which golang.org/x/sys/unix does not wrap,
// so the ABI is reproduced here directly -- the same approach the
// teacher's si4703.go takes for its I2C register layout, just at the
// ioctl layer instead of the I2C layer.

type v4l2Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

type v4l2Tuner struct {
	Index      uint32
	Name       [32]byte
	Type       uint32
	Capability uint32
	RangeLow   uint32
	RangeHigh  uint32
	RxSubchans uint32
	AudMode    uint32
	Signal     int32
	Afc        int32
	Reserved   [4]uint32
}

type v4l2Frequency struct {
	Tuner     uint32
	Type      uint32
	Frequency uint32
	Reserved  [8]uint32
}

type v4l2HwFreqSeek struct {
	Tuner       uint32
	Type        uint32
	SeekUpward  uint32
	WrapAround  uint32
	Spacing     uint32
	RangeLow    uint32
	RangeHigh   uint32
	Reserved    [5]uint32
}

type v4l2QueryCtrl struct {
	ID           uint32
	Type         uint32
	Name         [32]byte
	Minimum      int32
	Maximum      int32
	Step         int32
	DefaultValue int32
	Flags        uint32
	Reserved     [2]uint32
}

type v4l2Control struct {
	ID    uint32
	Value int32
}

const (
	v4l2TunerRadio       = 1
	v4l2TunerCapLow      = 0x0001
	v4l2TunerModeStereo  = 0x0002
	v4l2CapRDSCapture    = 0x00000100
	v4l2CidAudioVolume   = 0x00980905
	v4l2CidAudioMute     = 0x00980909
)

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func iocNum(dir, nr uintptr, size uintptr) uintptr {
	const typ = uintptr('V')
	return (dir << 30) | (size << 16) | (typ << 8) | nr
}

var (
	vidiocQueryCap        = iocNum(iocRead, 0, unsafe.Sizeof(v4l2Capability{}))
	vidiocSCtrl           = iocNum(iocRead|iocWrite, 28, unsafe.Sizeof(v4l2Control{}))
	vidiocGTuner          = iocNum(iocRead|iocWrite, 29, unsafe.Sizeof(v4l2Tuner{}))
	vidiocQueryCtrl       = iocNum(iocRead|iocWrite, 36, unsafe.Sizeof(v4l2QueryCtrl{}))
	vidiocGFrequency      = iocNum(iocRead|iocWrite, 56, unsafe.Sizeof(v4l2Frequency{}))
	vidiocSFrequency      = iocNum(iocWrite, 57, unsafe.Sizeof(v4l2Frequency{}))
	vidiocSHwFreqSeek     = iocNum(iocWrite, 82, unsafe.Sizeof(v4l2HwFreqSeek{}))
)

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Tuner is the facade over an already-opened V4L2 radio device handle.
// It exposes the get/set-frequency, seek and volume operations the RDS
// decoder and keyboard multiplexer need.
type Tuner struct {
	f              *os.File
	divider        float64
	min, max       float64
	volMin, volMax int32
}

// OpenTuner opens device read-only, queries its tuner capability to
// establish the frequency divider and the [min, max] range, and returns
// a ready-to-use facade. Capability/device info are returned for the
// caller to decide whether RDS capture is supported.
func OpenTuner(device string) (*Tuner, v4l2Tuner, v4l2Capability, error) {
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return nil, v4l2Tuner{}, v4l2Capability{}, err
	}

	var tun v4l2Tuner
	if err := ioctl(f.Fd(), vidiocGTuner, unsafe.Pointer(&tun)); err != nil {
		f.Close()
		return nil, v4l2Tuner{}, v4l2Capability{}, &DeviceError{Op: "VIDIOC_G_TUNER", Err: err}
	}
	if tun.Type != v4l2TunerRadio {
		f.Close()
		return nil, tun, v4l2Capability{}, fmt.Errorf("%s is not a FM radio", device)
	}

	var caps v4l2Capability
	if err := ioctl(f.Fd(), vidiocQueryCap, unsafe.Pointer(&caps)); err != nil {
		f.Close()
		return nil, tun, caps, &DeviceError{Op: "VIDIOC_QUERYCAP", Err: err}
	}

	divider := 16.0
	if tun.Capability&v4l2TunerCapLow != 0 {
		divider = 16000.0
	}

	var queryctrl v4l2QueryCtrl
	queryctrl.ID = v4l2CidAudioVolume
	volMin, volMax := int32(0), int32(0)
	if err := ioctl(f.Fd(), vidiocQueryCtrl, unsafe.Pointer(&queryctrl)); err == nil {
		volMin, volMax = queryctrl.Minimum, queryctrl.Maximum
	}

	t := &Tuner{
		f:       f,
		divider: divider,
		min:     float64(tun.RangeLow) / divider,
		max:     float64(tun.RangeHigh) / divider,
		volMin:  volMin,
		volMax:  volMax,
	}
	return t, tun, caps, nil
}

func (t *Tuner) Close() error { return t.f.Close() }

// Min and Max report the tuner's advertised frequency range in MHz.
func (t *Tuner) Min() float64 { return t.min }
func (t *Tuner) Max() float64 { return t.max }

// GetFrequency reads the device's current frequency register, MHz =
// raw / divider.
func (t *Tuner) GetFrequency() (float64, error) {
	var freq v4l2Frequency
	freq.Tuner = 0
	freq.Type = v4l2TunerRadio
	if err := ioctl(t.f.Fd(), vidiocGFrequency, unsafe.Pointer(&freq)); err != nil {
		return 0, &DeviceError{Op: "VIDIOC_G_FREQUENCY", Err: err}
	}
	return float64(freq.Frequency) / t.divider, nil
}

// SetFrequency writes raw = round(MHz * divider), failing with
// OutOfRange if mhz is not strictly between Min() and Max().
func (t *Tuner) SetFrequency(mhz float64) error {
	if !(mhz > t.min && mhz < t.max) {
		return &OutOfRange{Requested: mhz, Min: t.min, Max: t.max}
	}
	var freq v4l2Frequency
	freq.Tuner = 0
	freq.Type = v4l2TunerRadio
	freq.Frequency = uint32(math.Round(mhz * t.divider))
	if err := ioctl(t.f.Fd(), vidiocSFrequency, unsafe.Pointer(&freq)); err != nil {
		return &DeviceError{Op: "VIDIOC_S_FREQUENCY", Err: err}
	}
	return nil
}

// Seek issues a hardware seek with wrap-around and returns the new
// frequency on success.
func (t *Tuner) Seek(upward bool) (float64, error) {
	var seek v4l2HwFreqSeek
	seek.Tuner = 0
	seek.Type = v4l2TunerRadio
	seek.WrapAround = 1
	if upward {
		seek.SeekUpward = 1
	}
	if err := ioctl(t.f.Fd(), vidiocSHwFreqSeek, unsafe.Pointer(&seek)); err != nil {
		return 0, &DeviceError{Op: "VIDIOC_S_HW_FREQ_SEEK", Err: err}
	}
	return t.GetFrequency()
}

// SetVolume unmutes when volume > 0, mutes at volume == 0, then maps
// volume linearly into the device's [min, max] control range. Values
// above 100 clamp to 100.
func (t *Tuner) SetVolume(volume int) error {
	if volume > 100 {
		volume = 100
	}
	if volume < 0 {
		volume = 0
	}

	mute := v4l2Control{ID: v4l2CidAudioMute, Value: 0}
	if volume == 0 {
		mute.Value = 1
	}
	if err := ioctl(t.f.Fd(), vidiocSCtrl, unsafe.Pointer(&mute)); err != nil {
		return &DeviceError{Op: "VIDIOC_S_CTRL(mute)", Err: err}
	}

	raw := t.volMin + int32(volume)*(t.volMax-t.volMin)/100
	ctrl := v4l2Control{ID: v4l2CidAudioVolume, Value: raw}
	if err := ioctl(t.f.Fd(), vidiocSCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return &DeviceError{Op: "VIDIOC_S_CTRL(volume)", Err: err}
	}
	return nil
}

// SupportsRDS reports whether the device advertises RDS capture.
func SupportsRDS(caps v4l2Capability) bool {
	return caps.Capabilities&v4l2CapRDSCapture != 0
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
