package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"stemdeck/logger"

	"github.com/gen2brain/malgo"
)

// deviceOpenTimeout bounds how long a host device open may take
// before it is reported as unavailable.
const deviceOpenTimeout = 5 * time.Second

// DefaultBufferFrames is the requested frames-per-buffer when the
// settings carry no value.
const DefaultBufferFrames = 512

// OutputDriver owns the host audio stream and pulls frames from the
// mixer on the host's real-time thread. Streams can be recreated on
// another device without touching mixer state: the new stream is
// opened first, the old one drains silence and is then torn down.
//
// Decoded data stays at the canonical rate; a stream opened at any
// other rate is fed through the boundary resampler.
type OutputDriver struct {
	mixer *Mixer

	mu           sync.Mutex
	ctx          *malgo.AllocatedContext
	device       *malgo.Device
	deviceName   string
	bufferFrames int
	sampleRate   int // requested device rate; canonical by default
	running      bool

	// generation tags the active stream. A superseded stream's
	// callback sees a stale generation and emits silence while it
	// drains.
	generation atomic.Uint64

	// expectedStop suppresses the device-lost callback during
	// deliberate stops and switches.
	expectedStop atomic.Bool

	onDeviceLost func()
}

// NewOutputDriver initializes the host audio context. onDeviceLost is
// invoked (from a host thread) when the active device disappears.
func NewOutputDriver(mixer *Mixer, onDeviceLost func()) (*OutputDriver, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", logger.F("msg", message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &OutputDriver{
		mixer:        mixer,
		ctx:          ctx,
		bufferFrames: DefaultBufferFrames,
		sampleRate:   CanonicalSampleRate,
		onDeviceLost: onDeviceLost,
	}, nil
}

// Devices lists the host's playback devices.
func (d *OutputDriver) Devices() ([]DeviceInfo, error) {
	devices, _, err := enumeratePlayback(d.ctx)
	return devices, err
}

// DeviceName returns the name of the active device ("" = default).
func (d *OutputDriver) DeviceName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deviceName
}

// openDevice builds and starts a stream bound to the given generation.
func (d *OutputDriver) openDevice(id *malgo.DeviceID, bufferFrames int, gen uint64) (*malgo.Device, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = canonicalChannels
	cfg.SampleRate = uint32(d.sampleRate)
	cfg.PeriodSizeInFrames = uint32(bufferFrames)
	if id != nil {
		cfg.Playback.DeviceID = id.Pointer()
	}

	// Streams at a non-canonical rate interpolate at the output
	// boundary; decoded data is untouched.
	var boundary *outputResampler
	if d.sampleRate != CanonicalSampleRate {
		boundary = newOutputResampler(d.sampleRate, bufferFrames*4)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if frameCount == 0 || len(pOutput) == 0 {
				return
			}
			out := unsafe.Slice((*float32)(unsafe.Pointer(&pOutput[0])), int(frameCount)*canonicalChannels)
			if d.generation.Load() != gen {
				// Superseded stream draining during a switch.
				for i := range out {
					out[i] = 0
				}
				return
			}
			if boundary != nil {
				boundary.fill(d.mixer.Mix, out)
				return
			}
			d.mixer.Mix(out)
		},
		Stop: func() {
			if d.expectedStop.Load() || d.generation.Load() != gen {
				return
			}
			logger.Warn("audio device stopped unexpectedly")
			if d.onDeviceLost != nil {
				d.onDeviceLost()
			}
		},
	}

	type result struct {
		device *malgo.Device
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		device, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
		if err == nil {
			err = device.Start()
			if err != nil {
				device.Uninit()
				device = nil
			}
		}
		ch <- result{device, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, res.err)
		}
		return res.device, nil
	case <-time.After(deviceOpenTimeout):
		// The hung open is abandoned; if it ever completes the
		// device is torn down immediately.
		go func() {
			if res := <-ch; res.device != nil {
				res.device.Uninit()
			}
		}()
		return nil, fmt.Errorf("device open timed out: %w", ErrDeviceUnavailable)
	}
}

// Start opens a stream on the named device (empty = system default).
func (d *OutputDriver) Start(deviceName string, bufferFrames int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startLocked(deviceName, bufferFrames)
}

func (d *OutputDriver) startLocked(deviceName string, bufferFrames int) error {
	if d.running {
		return nil
	}
	if bufferFrames <= 0 {
		bufferFrames = DefaultBufferFrames
	}

	id, err := findPlaybackDevice(d.ctx, deviceName)
	if err != nil {
		return err
	}

	gen := d.generation.Add(1)
	d.expectedStop.Store(false)
	device, err := d.openDevice(id, bufferFrames, gen)
	if err != nil {
		return err
	}

	d.device = device
	d.deviceName = deviceName
	d.bufferFrames = bufferFrames
	d.running = true
	logger.Info("audio stream started",
		logger.F("device", deviceName), logger.F("bufferFrames", bufferFrames))
	return nil
}

// Stop tears down the active stream. Mixer state is untouched.
func (d *OutputDriver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *OutputDriver) stopLocked() {
	if d.device != nil {
		d.expectedStop.Store(true)
		d.device.Uninit()
		d.device = nil
	}
	d.running = false
}

// Switch moves the stream to another device without losing engine
// state. The new stream is opened first; on failure the old stream
// keeps running and the error is surfaced.
func (d *OutputDriver) Switch(deviceName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return d.startLocked(deviceName, d.bufferFrames)
	}

	id, err := findPlaybackDevice(d.ctx, deviceName)
	if err != nil {
		return err
	}

	old := d.device
	oldGen := d.generation.Load()

	d.expectedStop.Store(true)
	gen := d.generation.Add(1) // old stream now drains silence
	device, err := d.openDevice(id, d.bufferFrames, gen)
	if err != nil {
		// Re-activate the old stream; it never stopped pulling.
		d.generation.Store(oldGen)
		d.expectedStop.Store(false)
		return err
	}

	if old != nil {
		old.Uninit()
	}
	d.device = device
	d.deviceName = deviceName
	d.expectedStop.Store(false)
	logger.Info("audio stream switched", logger.F("device", deviceName))
	return nil
}

// SetBufferSize recreates the stream with a new requested buffer
// size. No-op on the mixer's transport.
func (d *OutputDriver) SetBufferSize(bufferFrames int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if bufferFrames <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	d.bufferFrames = bufferFrames
	if !d.running {
		return nil
	}

	name := d.deviceName
	d.stopLocked()
	return d.startLocked(name, bufferFrames)
}

// SetSampleRate recreates the stream at a new requested device rate.
// Decoded data remains at the canonical rate; a non-canonical device
// rate is served through the boundary resampler.
func (d *OutputDriver) SetSampleRate(hz int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if hz < 8000 || hz > 192000 {
		return fmt.Errorf("%d hz: %w", hz, ErrSampleRateUnsupported)
	}
	d.sampleRate = hz
	if !d.running {
		return nil
	}

	name := d.deviceName
	d.stopLocked()
	return d.startLocked(name, d.bufferFrames)
}

// Close stops the stream and releases the host context.
func (d *OutputDriver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	if d.ctx != nil {
		d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
}
