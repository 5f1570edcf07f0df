package main

// #cgo LDFLAGS: -lasound -lsamplerate -ljack
// #include <alsa/asoundlib.h>
// #include <samplerate.h>
// #include <jack/jack.h>
// #include <stdlib.h>
// #include <errno.h>
//
// extern int goJackProcess(jack_nframes_t nframes, void *arg);
//
// static int jackProcessTrampoline(jack_nframes_t nframes, void *arg) {
//   return goJackProcess(nframes, arg);
// }
//
// static int installProcessCallback(jack_client_t *client, void *arg) {
//   return jack_set_process_callback(client, jackProcessTrampoline, arg);
// }
import "C"

import (
	"fmt"
	"math"
	"runtime/cgo"
	"sync/atomic"
	"time"
	"unsafe"
)

// SoundCard wraps an ALSA PCM capture handle opened for interleaved
// 16-bit signed little-endian capture at 96000 Hz, 2 channels, period
// 2048 frames, 4 periods.
type SoundCard struct {
	handle   *C.snd_pcm_t
	channels int
	rate     int
}

// OpenSoundCard opens device for capture with the given rate/channels
// and a 2048-frame period across 4 periods.
func OpenSoundCard(device string, rate, channels int) (*SoundCard, error) {
	var handle *C.snd_pcm_t
	cdev := C.CString(device)
	defer C.free(unsafe.Pointer(cdev))

	if rc := C.snd_pcm_open(&handle, cdev, C.SND_PCM_STREAM_CAPTURE, 0); rc < 0 {
		return nil, &ConfigError{Op: "snd_pcm_open", Err: alsaErr(rc)}
	}

	var params *C.snd_pcm_hw_params_t
	C.snd_pcm_hw_params_malloc(&params)
	defer C.snd_pcm_hw_params_free(params)

	C.snd_pcm_hw_params_any(handle, params)
	C.snd_pcm_hw_params_set_access(handle, params, C.SND_PCM_ACCESS_RW_INTERLEAVED)
	C.snd_pcm_hw_params_set_format(handle, params, C.SND_PCM_FORMAT_S16_LE)
	actualRate := C.uint(rate)
	C.snd_pcm_hw_params_set_rate_near(handle, params, &actualRate, nil)
	C.snd_pcm_hw_params_set_channels(handle, params, C.uint(channels))

	period := C.snd_pcm_uframes_t(2048)
	C.snd_pcm_hw_params_set_period_size_near(handle, params, &period, nil)
	periods := C.uint(4)
	C.snd_pcm_hw_params_set_periods_near(handle, params, &periods, nil)

	if rc := C.snd_pcm_hw_params(handle, params); rc < 0 {
		C.snd_pcm_close(handle)
		return nil, &ConfigError{Op: "snd_pcm_hw_params", Err: alsaErr(rc)}
	}
	if rc := C.snd_pcm_prepare(handle); rc < 0 {
		C.snd_pcm_close(handle)
		return nil, &ConfigError{Op: "snd_pcm_prepare", Err: alsaErr(rc)}
	}

	return &SoundCard{handle: handle, channels: channels, rate: int(actualRate)}, nil
}

func (s *SoundCard) Close() error {
	C.snd_pcm_close(s.handle)
	return nil
}

func alsaErr(rc C.int) error {
	return &DeviceError{Op: "alsa", Err: errnoFromStrerror(rc)}
}

func errnoFromStrerror(rc C.int) error {
	return strerrorError(rc)
}

func strerrorError(rc C.int) error {
	return stringError(C.GoString(C.snd_strerror(rc)))
}

type stringError string

func (e stringError) Error() string { return string(e) }

// AvailableFrames returns the number of frames currently buffered by
// the capture device.
func (s *SoundCard) AvailableFrames() (int, error) {
	avail := C.snd_pcm_avail_update(s.handle)
	if avail < 0 {
		return 0, alsaErr(C.int(avail))
	}
	return int(avail), nil
}

// ReadFrames reads up to n interleaved frames of int16 samples into buf,
// retrying on EAGAIN and recovering from EPIPE (underrun) or ESTRPIPE
// (suspend).
func (s *SoundCard) ReadFrames(buf []int16, n int) (int, error) {
	for {
		rc := C.snd_pcm_readi(s.handle, unsafe.Pointer(&buf[0]), C.snd_pcm_uframes_t(n))
		switch {
		case rc >= 0:
			return int(rc), nil
		case rc == C.long(-C.EAGAIN):
			time.Sleep(100 * time.Microsecond)
			continue
		case rc == C.long(-C.EPIPE):
			if err := s.Prepare(); err != nil {
				return 0, err
			}
			continue
		case rc == C.long(-C.ESTRPIPE):
			if err := s.resume(); err != nil {
				return 0, err
			}
			continue
		default:
			return 0, &AudioXrun{Errno: alsaErr(C.int(rc))}
		}
	}
}

func (s *SoundCard) resume() error {
	for {
		rc := C.snd_pcm_resume(s.handle)
		if rc == 0 {
			return nil
		}
		if rc == C.int(-C.EAGAIN) {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		return s.Prepare()
	}
}

// Prepare recovers the stream after an underrun or suspend.
func (s *SoundCard) Prepare() error {
	if rc := C.snd_pcm_prepare(s.handle); rc < 0 {
		return alsaErr(rc)
	}
	return nil
}

// RewindFrames pushes n frames back into the capture buffer, used both
// to discard the leftover input after a resample cycle and to correct
// for an excessive consume.
func (s *SoundCard) RewindFrames(n int) error {
	if n <= 0 {
		return nil
	}
	rc := C.snd_pcm_rewind(s.handle, C.snd_pcm_uframes_t(n))
	if rc < 0 {
		return alsaErr(C.int(rc))
	}
	return nil
}

// Bridge ties a SoundCard, a Controller and one libsamplerate state per
// channel together behind a JACK process callback.
type Bridge struct {
	card          *SoundCard
	controller    *Controller
	channels      int
	srcStates     []*C.SRC_STATE
	scratch       []int16   // reused read buffer, sized at Open time
	deinterleaved []float32 // reused per-channel conversion buffer
	cycleStart    time.Time

	quit atomic.Bool // set by RequestQuit, checked at the start of each Process call

	client      *C.jack_client_t
	ports       []*C.jack_port_t
	callbackOut [][]float32 // reused outer slice; elements rebound per callback, no heap allocation
	handle      cgo.Handle
}

// OpenBridge opens a capture device and sets up the resample controller
// and per-channel converters, targeting a delay of targetFrames with a
// static resample factor of serverRate/sourceRate. The JACK client is
// opened separately by StartJack.
func OpenBridge(device string, sourceRate, serverRate, channels, targetFrames int) (*Bridge, error) {
	card, err := OpenSoundCard(device, sourceRate, channels)
	if err != nil {
		return nil, err
	}
	static := float64(serverRate) / float64(sourceRate)
	maxDiff := targetFrames / 4
	if maxDiff < 1 {
		maxDiff = 1
	}

	states := make([]*C.SRC_STATE, channels)
	for ch := 0; ch < channels; ch++ {
		var errCode C.int
		st := C.src_new(C.SRC_SINC_MEDIUM_QUALITY, 1, &errCode)
		if st == nil {
			card.Close()
			return nil, &ConfigError{Op: "src_new", Err: stringError(C.GoString(C.src_strerror(errCode)))}
		}
		states[ch] = st
	}

	maxReadFrames := targetFrames*4 + 4096
	return &Bridge{
		card:          card,
		controller:    NewController(targetFrames, maxDiff, static),
		channels:      channels,
		srcStates:     states,
		scratch:       make([]int16, maxReadFrames*channels),
		deinterleaved: make([]float32, maxReadFrames),
	}, nil
}

func (b *Bridge) Close() error {
	if b.client != nil {
		C.jack_deactivate(b.client)
		C.jack_client_close(b.client)
	}
	if b.handle != 0 {
		b.handle.Delete()
	}
	for _, st := range b.srcStates {
		C.src_delete(st)
	}
	return b.card.Close()
}

// StartJack opens a JACK client named name, registers one output port
// per channel and activates the process callback. The bridge must
// outlive the client: Close tears both down.
func (b *Bridge) StartJack(name string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var status C.jack_status_t
	client := C.jack_client_open(cname, C.JackNullOption, &status)
	if client == nil {
		return &ConfigError{Op: "jack_client_open", Err: stringError("failed to connect to JACK server")}
	}
	b.client = client

	b.ports = make([]*C.jack_port_t, b.channels)
	for ch := 0; ch < b.channels; ch++ {
		portName := C.CString(fmt.Sprintf("out_%d", ch))
		port := C.jack_port_register(client, portName, C.JACK_DEFAULT_AUDIO_TYPE,
			C.JackPortIsOutput, 0)
		C.free(unsafe.Pointer(portName))
		if port == nil {
			return &ConfigError{Op: "jack_port_register", Err: stringError("port registration failed")}
		}
		b.ports[ch] = port
	}
	b.callbackOut = make([][]float32, b.channels)

	b.handle = cgo.NewHandle(b)
	if rc := C.installProcessCallback(client, unsafe.Pointer(uintptr(b.handle))); rc != 0 {
		return &ConfigError{Op: "jack_set_process_callback", Err: stringError("install failed")}
	}
	if rc := C.jack_activate(client); rc != 0 {
		return &ConfigError{Op: "jack_activate", Err: stringError("activation failed")}
	}
	return nil
}

// goJackProcess is the realtime process callback JACK invokes directly;
// it must not allocate. It recovers the *Bridge from the
// opaque handle, maps each output port's buffer into a Go slice over
// the same memory, and delegates to Process.
//
//export goJackProcess
func goJackProcess(nframes C.jack_nframes_t, arg unsafe.Pointer) C.int {
	h := cgo.Handle(uintptr(arg))
	b, ok := h.Value().(*Bridge)
	if !ok {
		return 1
	}
	n := int(nframes)
	for ch := 0; ch < b.channels; ch++ {
		bufPtr := C.jack_port_get_buffer(b.ports[ch], nframes)
		b.callbackOut[ch] = unsafe.Slice((*float32)(bufPtr), n)
	}
	if err := b.Process(n, b.callbackOut); err != nil {
		return 1
	}
	return 0
}

// RequestQuit is called from the signal handler; Process observes it
// and stops producing output, letting the JACK client shut down.
func (b *Bridge) RequestQuit()   { b.quit.Store(true) }
func (b *Bridge) quitting() bool { return b.quit.Load() }

// Process runs the realtime resample cycle: it must not allocate, so
// every scratch buffer it touches was sized in OpenBridge. out holds one
// []float32 slice per channel, each of length n.
func (b *Bridge) Process(n int, out [][]float32) error {
	if b.quitting() {
		return nil
	}

	avail, err := b.card.AvailableFrames()
	if err != nil {
		return err
	}
	elapsed := int(time.Since(b.cycleStart).Seconds() * float64(b.card.rate))
	b.cycleStart = time.Now()
	delay := avail - elapsed

	target := b.controller.Target()
	maxDiff := b.controller.MaxDiff()

	switch {
	case delay > target+maxDiff:
		toConsume := delay - target
		consumed := 0
		for consumed < toConsume {
			want := toConsume - consumed
			if want > len(b.scratch)/b.channels {
				want = len(b.scratch) / b.channels
			}
			got, err := b.card.ReadFrames(b.scratch, want)
			if err != nil {
				return err
			}
			consumed += got
		}
		b.controller.ResetIntegrator()
		delay = target
	case delay < target-maxDiff:
		if err := b.card.RewindFrames(target - delay); err != nil {
			return err
		}
		b.controller.ResetIntegrator()
		delay = target
	}

	offset := float64(delay - target)
	factor := b.controller.Step(offset)

	toRead := int(math.Ceil(float64(n)/factor)) + 2
	if toRead*b.channels > len(b.scratch) {
		toRead = len(b.scratch) / b.channels
	}
	got, err := b.card.ReadFrames(b.scratch, toRead)
	if err != nil {
		return err
	}

	deinterleaved := b.deinterleaved[:got]
	for ch := 0; ch < b.channels; ch++ {
		for i := 0; i < got; i++ {
			deinterleaved[i] = float32(b.scratch[i*b.channels+ch]) / 32767.0
		}

		var data C.SRC_DATA
		data.data_in = (*C.float)(unsafe.Pointer(&deinterleaved[0]))
		data.input_frames = C.long(got)
		data.data_out = (*C.float)(unsafe.Pointer(&out[ch][0]))
		data.output_frames = C.long(n)
		data.src_ratio = C.double(factor)
		data.end_of_input = 0

		if rc := C.src_process(b.srcStates[ch], &data); rc != 0 {
			return &ConfigError{Op: "src_process", Err: stringError(C.GoString(C.src_strerror(rc)))}
		}
		if int(data.output_frames_gen) < n {
			for i := int(data.output_frames_gen); i < n; i++ {
				out[ch][i] = 0
			}
		}

		leftover := got - int(data.input_frames_used)
		if ch == 0 && leftover > 0 {
			if err := b.card.RewindFrames(leftover); err != nil {
				return err
			}
		}
	}

	return nil
}
