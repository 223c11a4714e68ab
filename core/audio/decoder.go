package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// decodeChunkFrames bounds how many frames are pulled from a decoder
// per iteration so resampling never materializes a second full copy.
const decodeChunkFrames = 65536

// Decoder turns audio files into canonical PCM. Safe for concurrent
// use from worker goroutines; it holds no mutable state.
type Decoder struct {
	sampleRate int
}

// NewDecoder creates a decoder targeting the given canonical rate.
func NewDecoder(sampleRate int) *Decoder {
	if sampleRate <= 0 {
		sampleRate = CanonicalSampleRate
	}
	return &Decoder{sampleRate: sampleRate}
}

// ProbeInfo is the cheap metadata read used by the import pipeline.
type ProbeInfo struct {
	SampleRate int
	Channels   int
	Frames     int
	Duration   float64 // seconds at the native rate
}

// openStream dispatches on file extension to the matching beep
// decoder. The returned streamer always yields stereo samples: beep
// duplicates mono sources across both channels and averages sources
// with more than two channels.
func openStream(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, beep.Format{}, fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return nil, beep.Format{}, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("%s: %w", filepath.Ext(path), ErrUnsupportedFormat)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("%s: %w: %v", path, ErrCorruptStream, err)
	}
	return streamer, format, nil
}

// Probe reads a file's native format without decoding its audio.
func (d *Decoder) Probe(path string) (ProbeInfo, error) {
	streamer, format, err := openStream(path)
	if err != nil {
		return ProbeInfo{}, err
	}
	defer streamer.Close()

	frames := streamer.Len()
	info := ProbeInfo{
		SampleRate: int(format.SampleRate),
		Channels:   format.NumChannels,
		Frames:     frames,
	}
	if info.SampleRate > 0 {
		info.Duration = float64(frames) / float64(info.SampleRate)
	}
	return info, nil
}

// DecodeFile decodes an entire file to interleaved stereo f32 at the
// canonical rate. A source at any other rate goes through the chunked
// linear resampler. Partial decodes are never returned: any stream
// error discards everything read so far.
func (d *Decoder) DecodeFile(path string) ([]float32, int, error) {
	streamer, format, err := openStream(path)
	if err != nil {
		return nil, 0, err
	}
	defer streamer.Close()

	srcLen := streamer.Len()
	outLen := srcLen
	var resampler *linearResampler
	if int(format.SampleRate) != d.sampleRate {
		resampler = newLinearResampler(int(format.SampleRate), d.sampleRate)
		outLen = int(float64(srcLen) * float64(d.sampleRate) / float64(format.SampleRate))
	}

	pcm := make([]float32, 0, (outLen+1)*canonicalChannels)
	chunk := make([][2]float64, decodeChunkFrames)
	var staging []float32
	if resampler != nil {
		staging = make([]float32, 0, decodeChunkFrames*canonicalChannels)
	}
	for {
		n, ok := streamer.Stream(chunk)
		if resampler == nil {
			for i := 0; i < n; i++ {
				pcm = append(pcm, clampSample(chunk[i][0]), clampSample(chunk[i][1]))
			}
		} else {
			staging = staging[:0]
			for i := 0; i < n; i++ {
				staging = append(staging, clampSample(chunk[i][0]), clampSample(chunk[i][1]))
			}
			pcm = resampler.process(staging, pcm)
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w: %v", path, ErrCorruptStream, err)
	}

	frames := len(pcm) / canonicalChannels
	if frames == 0 {
		return nil, 0, fmt.Errorf("%s: %w: decoded no audio", path, ErrCorruptStream)
	}
	return pcm, frames, nil
}

func clampSample(v float64) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return float32(v)
}
