package audio

import (
	"math"
	"testing"
)

// makeSong builds a song whose stems are constant-valued so mixed
// output is easy to predict.
func makeSong(id string, frames int, values ...float32) *DecodedSong {
	song := &DecodedSong{ID: id}
	for i, v := range values {
		pcm := make([]float32, frames*2)
		for s := range pcm {
			pcm[s] = v
		}
		song.Stems = append(song.Stems, DecodedStem{
			ID:     id + "-stem-" + string(rune('a'+i)),
			Name:   "Stem",
			Gain:   1.0,
			PCM:    pcm,
			Frames: frames,
		})
	}
	return song
}

// mixUntilSettled runs enough buffers for the one-buffer gain ramps
// to converge, returning the last buffer.
func mixUntilSettled(m *Mixer, frames int) []float32 {
	out := make([]float32, frames*2)
	m.Mix(out)
	m.Mix(out)
	return out
}

func send(t *testing.T, m *Mixer, cmd Command) {
	t.Helper()
	if !m.SendCommand(cmd) {
		t.Fatalf("inbox full sending command %v", cmd.Kind)
	}
}

func TestMixerSilentWhenStopped(t *testing.T) {
	m := NewMixer()
	out := make([]float32, 256)
	for i := range out {
		out[i] = 0.5
	}
	m.Mix(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("expected silence at %d, got %f", i, v)
		}
	}
	if m.State() != StateStopped {
		t.Fatalf("expected stopped, got %v", m.State())
	}
}

func TestMixerLoadRequiresExplicitPlay(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 48000, 0.5)})
	out := make([]float32, 256)
	m.Mix(out)

	if m.State() != StateStopped {
		t.Fatalf("load must leave transport stopped, got %v", m.State())
	}
	if m.Position() != 0 {
		t.Fatalf("load must reset position, got %d", m.Position())
	}
}

func TestMixerPlaySumsStems(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 48000, 0.25, 0.25)})
	send(t, m, Command{Kind: CmdPlay})

	out := mixUntilSettled(m, 64)
	for i, v := range out {
		if math.Abs(float64(v)-0.5) > 1e-4 {
			t.Fatalf("sample %d: expected 0.5, got %f", i, v)
		}
	}
	if m.State() != StatePlaying {
		t.Fatalf("expected playing, got %v", m.State())
	}
}

func TestMixerOutputClamped(t *testing.T) {
	// Four full-scale stems would sum to 4.0 without the clamp.
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 48000, 1, 1, 1, 1)})
	send(t, m, Command{Kind: CmdPlay})

	out := mixUntilSettled(m, 128)
	for i, v := range out {
		if v < -1.0 || v > 1.0 {
			t.Fatalf("sample %d out of range: %f", i, v)
		}
	}
}

func TestMixerMutedStemContributesNothing(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 48000, 0.25, 0.5)})
	send(t, m, Command{Kind: CmdSetStemMute, Stem: 1, Flag: true})
	send(t, m, Command{Kind: CmdPlay})

	out := mixUntilSettled(m, 64)
	for i, v := range out {
		if math.Abs(float64(v)-0.25) > 1e-4 {
			t.Fatalf("sample %d: expected 0.25 with stem muted, got %f", i, v)
		}
	}
}

func TestMixerSoloSilencesOthers(t *testing.T) {
	// S2: stems A, B, C at gain 1.0; B soloed; output equals B alone
	// regardless of A and C gains.
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 48000, 0.125, 0.25, 0.5)})
	send(t, m, Command{Kind: CmdSetStemSolo, Stem: 1, Flag: true})
	send(t, m, Command{Kind: CmdPlay})

	out := mixUntilSettled(m, 64)
	for i, v := range out {
		if math.Abs(float64(v)-0.25) > 1e-4 {
			t.Fatalf("sample %d: expected solo output 0.25, got %f", i, v)
		}
	}
}

func TestMixerMuteBeatsSolo(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 48000, 0.25)})
	send(t, m, Command{Kind: CmdSetStemSolo, Stem: 0, Flag: true})
	send(t, m, Command{Kind: CmdSetStemMute, Stem: 0, Flag: true})
	send(t, m, Command{Kind: CmdPlay})

	out := mixUntilSettled(m, 64)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d: muted+soloed stem must be silent, got %f", i, v)
		}
	}
}

func TestMixerMasterGainApplied(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 48000, 0.5)})
	send(t, m, Command{Kind: CmdSetMasterGain, Gain: 0.5})
	send(t, m, Command{Kind: CmdPlay})

	out := mixUntilSettled(m, 64)
	for i, v := range out {
		if math.Abs(float64(v)-0.25) > 1e-4 {
			t.Fatalf("sample %d: expected 0.25 after master gain, got %f", i, v)
		}
	}
}

func TestMixerTransportSemantics(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 48000, 0.1)})
	out := make([]float32, 512*2)

	send(t, m, Command{Kind: CmdPlay})
	m.Mix(out)
	if got := m.Position(); got != 512 {
		t.Fatalf("expected position 512 after one buffer, got %d", got)
	}

	send(t, m, Command{Kind: CmdPause})
	m.Mix(out)
	if m.State() != StatePaused {
		t.Fatalf("expected paused, got %v", m.State())
	}
	if got := m.Position(); got != 512 {
		t.Fatalf("pause must keep position, got %d", got)
	}

	send(t, m, Command{Kind: CmdPlay})
	m.Mix(out)
	if got := m.Position(); got != 1024 {
		t.Fatalf("resume must continue from pause point, got %d", got)
	}

	send(t, m, Command{Kind: CmdStop})
	m.Mix(out)
	if m.State() != StateStopped {
		t.Fatalf("expected stopped, got %v", m.State())
	}
	if got := m.Position(); got != 0 {
		t.Fatalf("stop must reset position, got %d", got)
	}
}

func TestMixerSeekClamped(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 1000, 0.1)})
	out := make([]float32, 64)

	send(t, m, Command{Kind: CmdSeek, Frames: 500})
	m.Mix(out)
	if got := m.Position(); got != 500 {
		t.Fatalf("expected position 500, got %d", got)
	}
	if m.State() != StateStopped {
		t.Fatalf("seek must not change transport state, got %v", m.State())
	}

	send(t, m, Command{Kind: CmdSeek, Frames: 100000})
	m.Mix(out)
	if got := m.Position(); got != 1000 {
		t.Fatalf("seek beyond end must clamp to %d, got %d", 1000, got)
	}

	send(t, m, Command{Kind: CmdSeek, Frames: -5})
	m.Mix(out)
	if got := m.Position(); got != 0 {
		t.Fatalf("negative seek must clamp to 0, got %d", got)
	}
}

func TestMixerStopsAtEndOfSong(t *testing.T) {
	// Song shorter than one buffer: the callback must zero-pad the
	// tail and transition to Stopped.
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 100, 0.5)})
	send(t, m, Command{Kind: CmdPlay})

	out := make([]float32, 256*2)
	m.Mix(out)

	if m.State() != StateStopped {
		t.Fatalf("expected stopped at end of song, got %v", m.State())
	}
	if got := m.Position(); got != 0 {
		t.Fatalf("expected position reset at end of song, got %d", got)
	}
	for i := 100 * 2; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("tail sample %d not zero-padded: %f", i, out[i])
		}
	}
}

func TestMixerSeekBeyondEndThenPlayStops(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 1000, 0.5)})
	send(t, m, Command{Kind: CmdPlay})
	out := make([]float32, 64)
	m.Mix(out)

	send(t, m, Command{Kind: CmdSeek, Frames: 5000})
	m.Mix(out)

	if m.State() != StateStopped {
		t.Fatalf("playback past the end must stop, got %v", m.State())
	}
}

func TestMixerGainRampConverges(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", 48000, 1.0)})
	send(t, m, Command{Kind: CmdPlay})
	out := make([]float32, 64*2)
	m.Mix(out)

	send(t, m, Command{Kind: CmdSetStemGain, Stem: 0, Gain: 0.5})
	m.Mix(out) // ramp buffer
	m.Mix(out) // settled buffer

	for i, v := range out {
		if math.Abs(float64(v)-0.5) > 1e-4 {
			t.Fatalf("sample %d: gain not settled, got %f", i, v)
		}
	}
}

func TestMixerSessionAdvancesOnStopAndLoad(t *testing.T) {
	m := NewMixer()
	out := make([]float32, 64)

	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("a", 48000, 0.1)})
	m.Mix(out)
	first := m.Session()

	send(t, m, Command{Kind: CmdStop})
	m.Mix(out)
	afterStop := m.Session()
	if afterStop <= first {
		t.Fatalf("session must advance on stop: %d -> %d", first, afterStop)
	}

	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("b", 48000, 0.1)})
	m.Mix(out)
	if got := m.Session(); got <= afterStop {
		t.Fatalf("session must advance on load: %d -> %d", afterStop, got)
	}
}

func TestMixerTelemetryCarriesPeaks(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: makeSong("s", CanonicalSampleRate, 0.5)})
	send(t, m, Command{Kind: CmdPlay})

	// Mix more than 50 ms of audio to force a periodic emission.
	out := make([]float32, 1024*2)
	for i := 0; i < 4; i++ {
		m.Mix(out)
	}

	var last Telemetry
	seen := false
	for {
		telemetry, more := m.PollTelemetry()
		if !more {
			break
		}
		if telemetry.State == StatePlaying && telemetry.StemCount == 1 {
			last = telemetry
			seen = true
		}
	}
	if !seen {
		t.Fatal("expected at least one playing telemetry snapshot")
	}
	if math.Abs(float64(last.StemPeaks[0])-0.5) > 0.05 {
		t.Fatalf("expected stem peak near 0.5, got %f", last.StemPeaks[0])
	}
	if math.Abs(float64(last.Master)-0.5) > 0.05 {
		t.Fatalf("expected master peak near 0.5, got %f", last.Master)
	}
}

func TestMixerIgnoresPlayWithoutSong(t *testing.T) {
	m := NewMixer()
	send(t, m, Command{Kind: CmdPlay})
	out := make([]float32, 64)
	m.Mix(out)
	if m.State() != StateStopped {
		t.Fatalf("play without a song must be ignored, got %v", m.State())
	}
}

func TestMixerShorterStemPadsWithSilence(t *testing.T) {
	// One stem half as long as the other: after it ends only the
	// longer stem sounds.
	long := make([]float32, 400*2)
	short := make([]float32, 200*2)
	for i := range long {
		long[i] = 0.25
	}
	for i := range short {
		short[i] = 0.25
	}
	song := &DecodedSong{ID: "s", Stems: []DecodedStem{
		{ID: "long", Gain: 1, PCM: long, Frames: 400},
		{ID: "short", Gain: 1, PCM: short, Frames: 200},
	}}

	m := NewMixer()
	send(t, m, Command{Kind: CmdLoadSong, Song: song})
	send(t, m, Command{Kind: CmdPlay})

	out := make([]float32, 300*2)
	m.Mix(out)

	if v := out[100*2]; math.Abs(float64(v)-0.5) > 1e-4 {
		t.Fatalf("expected both stems before frame 200, got %f", v)
	}
	if v := out[250*2]; math.Abs(float64(v)-0.25) > 1e-4 {
		t.Fatalf("expected only the long stem after frame 200, got %f", v)
	}
}
