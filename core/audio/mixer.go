package audio

import "sync/atomic"

// State is the transport state.
type State int32

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// drainBudget bounds how many inbox commands one callback applies.
const drainBudget = 64

// telemetryIntervalFrames spaces snapshot emission at roughly 50 ms
// of output.
const telemetryIntervalFrames = CanonicalSampleRate / 20

// stemRuntime is the mixer's per-stem state. gain ramps toward the
// effective target across at most one buffer to avoid zipper noise.
type stemRuntime struct {
	pcm    []float32
	frames int
	gain   float32 // ramped gain currently applied
	target float32 // user-set gain
	mute   bool
	solo   bool
	peak   float32 // running peak since last telemetry emit
}

// Mixer owns the playback state and services the output driver's pull
// callback. All mutation happens on the audio thread via the inbox;
// control threads communicate exclusively through SendCommand and the
// atomic position/state mirrors.
//
// Mix never allocates, locks, or performs I/O.
type Mixer struct {
	inbox  *commandRing
	outbox *telemetryRing

	// Audio-thread-owned state.
	song         *DecodedSong
	stems        [MaxStems]stemRuntime
	stemCount    int
	songFrames   int
	state        State
	pos          int
	master       float32
	masterTarget float32
	masterPeak   float32
	sinceEmit    int
	session      uint32

	// Mirrors for cheap control-plane reads.
	atomicPos     atomic.Int64
	atomicState   atomic.Int32
	atomicSession atomic.Uint32
}

// NewMixer creates a mixer with empty transport.
func NewMixer() *Mixer {
	m := &Mixer{
		inbox:        newCommandRing(),
		outbox:       newTelemetryRing(),
		master:       1.0,
		masterTarget: 1.0,
	}
	return m
}

// SendCommand enqueues a control message. Returns false when the
// inbox is full; the caller coalesces and retries.
func (m *Mixer) SendCommand(c Command) bool {
	return m.inbox.Push(c)
}

// PollTelemetry drains one snapshot from the outbox.
func (m *Mixer) PollTelemetry() (Telemetry, bool) {
	return m.outbox.Pop()
}

// Position returns the transport position in frames, readable from
// any thread.
func (m *Mixer) Position() int64 {
	return m.atomicPos.Load()
}

// State returns the transport state, readable from any thread.
func (m *Mixer) State() State {
	return State(m.atomicState.Load())
}

// Session returns the playback session id. It increments on Stop and
// LoadSong; telemetry is monotonic within one session.
func (m *Mixer) Session() uint32 {
	return m.atomicSession.Load()
}

// Mix fills out (interleaved stereo, len = 2*frames) with the next
// block of audio. Called by the output driver on the real-time thread.
func (m *Mixer) Mix(out []float32) {
	m.drainInbox()

	frames := len(out) / canonicalChannels

	if m.state != StatePlaying || m.song == nil {
		for i := range out {
			out[i] = 0
		}
		m.publishMirrors()
		return
	}

	for i := range out {
		out[i] = 0
	}

	anySolo := false
	for i := 0; i < m.stemCount; i++ {
		if m.stems[i].solo {
			anySolo = true
			break
		}
	}

	// Stem-major accumulation keeps each stem's PCM read sequential.
	for i := 0; i < m.stemCount; i++ {
		st := &m.stems[i]

		effective := st.target
		if st.mute || (anySolo && !st.solo) {
			effective = 0
		}
		step := (effective - st.gain) / float32(frames)

		avail := st.frames - m.pos
		if avail > frames {
			avail = frames
		}
		if avail < 0 {
			avail = 0
		}

		gain := st.gain
		peak := st.peak
		base := m.pos * canonicalChannels
		for f := 0; f < avail; f++ {
			gain += step
			l := st.pcm[base+f*2] * gain
			r := st.pcm[base+f*2+1] * gain
			out[f*2] += l
			out[f*2+1] += r
			if l < 0 {
				l = -l
			}
			if r < 0 {
				r = -r
			}
			if l > peak {
				peak = l
			}
			if r > peak {
				peak = r
			}
		}
		// Finish the ramp even when the stem ran out of samples so
		// the next buffer starts from the settled gain.
		st.gain = effective
		st.peak = peak
	}

	// Master stage: ramp, clamp, track the master peak.
	mstep := (m.masterTarget - m.master) / float32(frames)
	mgain := m.master
	mpeak := m.masterPeak
	for f := 0; f < frames; f++ {
		mgain += mstep
		l := out[f*2] * mgain
		r := out[f*2+1] * mgain
		if l > 1 {
			l = 1
		} else if l < -1 {
			l = -1
		}
		if r > 1 {
			r = 1
		} else if r < -1 {
			r = -1
		}
		out[f*2] = l
		out[f*2+1] = r
		if l < 0 {
			l = -l
		}
		if r < 0 {
			r = -r
		}
		if l > mpeak {
			mpeak = l
		}
		if r > mpeak {
			mpeak = r
		}
	}
	m.master = m.masterTarget
	m.masterPeak = mpeak

	m.pos += frames
	if m.pos >= m.songFrames {
		// End of song. The tail of the buffer is already zero-padded
		// because every stem ran out of samples.
		m.state = StateStopped
		m.pos = 0
		m.session++
		m.emitTelemetry()
		m.publishMirrors()
		return
	}

	m.sinceEmit += frames
	if m.sinceEmit >= telemetryIntervalFrames {
		m.sinceEmit = 0
		m.emitTelemetry()
	}
	m.publishMirrors()
}

func (m *Mixer) drainInbox() {
	for n := 0; n < drainBudget; n++ {
		cmd, ok := m.inbox.Pop()
		if !ok {
			return
		}
		m.apply(cmd)
	}
}

func (m *Mixer) apply(cmd Command) {
	switch cmd.Kind {
	case CmdLoadSong:
		m.loadSong(cmd.Song)
	case CmdPlay:
		if m.song == nil {
			return
		}
		if m.state == StateStopped {
			m.pos = 0
		}
		m.setState(StatePlaying)
	case CmdPause:
		if m.state == StatePlaying {
			m.setState(StatePaused)
		}
	case CmdStop:
		m.pos = 0
		m.session++
		m.setState(StateStopped)
	case CmdSeek:
		if m.song == nil {
			return
		}
		pos := cmd.Frames
		if pos < 0 {
			pos = 0
		}
		if pos > m.songFrames {
			pos = m.songFrames
		}
		m.pos = pos
	case CmdSetStemGain:
		if cmd.Stem >= 0 && cmd.Stem < m.stemCount {
			m.stems[cmd.Stem].target = clampGain(cmd.Gain)
		}
	case CmdSetStemMute:
		if cmd.Stem >= 0 && cmd.Stem < m.stemCount {
			m.stems[cmd.Stem].mute = cmd.Flag
		}
	case CmdSetStemSolo:
		if cmd.Stem >= 0 && cmd.Stem < m.stemCount {
			m.stems[cmd.Stem].solo = cmd.Flag
		}
	case CmdSetMasterGain:
		m.masterTarget = clampGain(cmd.Gain)
	}
}

func (m *Mixer) loadSong(song *DecodedSong) {
	m.song = song
	// Drop the previous song's buffer references so eviction can
	// actually free them.
	for i := 0; i < m.stemCount; i++ {
		m.stems[i] = stemRuntime{}
	}
	m.stemCount = 0
	m.songFrames = 0
	m.pos = 0
	m.session++
	if song != nil {
		n := len(song.Stems)
		if n > MaxStems {
			n = MaxStems
		}
		for i := 0; i < n; i++ {
			stem := &song.Stems[i]
			gain := clampGain(stem.Gain)
			m.stems[i] = stemRuntime{
				pcm:    stem.PCM,
				frames: stem.Frames,
				gain:   gain,
				target: gain,
				mute:   stem.Muted,
			}
		}
		m.stemCount = n
		m.songFrames = song.Frames()
	}
	// An explicit Play is required after a load.
	m.setState(StateStopped)
}

func (m *Mixer) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.emitTelemetry()
}

func (m *Mixer) emitTelemetry() {
	t := Telemetry{
		Frames:    int64(m.pos),
		State:     m.state,
		Session:   m.session,
		StemCount: m.stemCount,
		Master:    m.masterPeak,
	}
	for i := 0; i < m.stemCount; i++ {
		t.StemPeaks[i] = m.stems[i].peak
		m.stems[i].peak = 0
	}
	m.masterPeak = 0
	m.outbox.Push(t)
}

func (m *Mixer) publishMirrors() {
	m.atomicPos.Store(int64(m.pos))
	m.atomicState.Store(int32(m.state))
	m.atomicSession.Store(m.session)
}

func clampGain(g float32) float32 {
	if g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}
