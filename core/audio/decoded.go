package audio

// CanonicalSampleRate is the engine-wide sample rate. Every decoded
// stem is resampled to this rate; the mixer and output driver assume
// it throughout.
const CanonicalSampleRate = 48000

// canonicalChannels is the stereo interleave of all decoded PCM.
const canonicalChannels = 2

// DecodedStem is one stem's fully decoded audio: interleaved stereo
// f32 at the canonical rate. Mono sources are duplicated across both
// channels; sources with more than two channels are averaged down.
type DecodedStem struct {
	ID     string
	Name   string
	Gain   float32 // default mix gain
	Muted  bool    // default mute flag
	PCM    []float32
	Frames int // len(PCM) / 2
}

// DecodedSong is the in-memory representation of a song, held under
// shared ownership by the cache and the mixer. PCM is immutable after
// construction.
type DecodedSong struct {
	ID    string
	Stems []DecodedStem
}

// Frames returns the song length in frames: the longest stem.
func (s *DecodedSong) Frames() int {
	max := 0
	for i := range s.Stems {
		if s.Stems[i].Frames > max {
			max = s.Stems[i].Frames
		}
	}
	return max
}

// Bytes returns the total PCM payload size.
func (s *DecodedSong) Bytes() int64 {
	var total int64
	for i := range s.Stems {
		total += int64(len(s.Stems[i].PCM)) * 4
	}
	return total
}

// Duration returns the song length in seconds.
func (s *DecodedSong) Duration() float64 {
	return float64(s.Frames()) / float64(CanonicalSampleRate)
}
