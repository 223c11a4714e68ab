package audio

import (
	"math"
	"testing"
)

func TestLinearResamplerChunkingIsTransparent(t *testing.T) {
	// Feeding the same source in one shot or in ragged chunks must
	// produce the same output: the carried frame bridges chunk
	// boundaries.
	src := make([]float32, 0, 1000*2)
	for i := 0; i < 1000; i++ {
		v := float32(math.Sin(float64(i) * 0.013))
		src = append(src, v, -v)
	}

	oneShot := newLinearResampler(44100, CanonicalSampleRate).process(src, nil)

	chunked := newLinearResampler(44100, CanonicalSampleRate)
	sizes := []int{1, 7, 256, 3, 500, 233}
	var out []float32
	for start, i := 0, 0; start < 1000; i++ {
		size := sizes[i%len(sizes)]
		if start+size > 1000 {
			size = 1000 - start
		}
		out = chunked.process(src[start*2:(start+size)*2], out)
		start += size
	}

	if len(oneShot) != len(out) {
		t.Fatalf("lengths differ: %d vs %d", len(oneShot), len(out))
	}
	for i := range oneShot {
		if math.Abs(float64(oneShot[i])-float64(out[i])) > 1e-6 {
			t.Fatalf("sample %d differs: %f vs %f", i, oneShot[i], out[i])
		}
	}
}

func TestLinearResamplerFirstFrameExact(t *testing.T) {
	src := []float32{0.25, -0.25, 0.5, -0.5, 0.75, -0.75}
	out := newLinearResampler(44100, CanonicalSampleRate).process(src, nil)
	if len(out) < 2 {
		t.Fatal("no output produced")
	}
	if out[0] != 0.25 || out[1] != -0.25 {
		t.Fatalf("output position 0 must equal the first source frame, got %f/%f", out[0], out[1])
	}
}

// rampMixer serves an endless linear ramp so interpolation results
// are predictable.
type rampMixer struct {
	next float32
	step float32
}

func (r *rampMixer) mix(out []float32) {
	for f := 0; f < len(out)/2; f++ {
		out[f*2] = r.next
		out[f*2+1] = -r.next
		r.next += r.step
	}
}

func TestOutputResamplerDownConversion(t *testing.T) {
	// 48 kHz -> 44.1 kHz over a linear ramp: every output sample must
	// lie on the ramp (linear interpolation of a line is exact).
	src := &rampMixer{step: 0.001}
	r := newOutputResampler(44100, 512)

	out := make([]float32, 441*2)
	r.fill(src.mix, out)
	r.fill(src.mix, out)

	step := float64(CanonicalSampleRate) / 44100.0
	for f := 1; f < 440; f++ {
		got := float64(out[f*2])
		prev := float64(out[(f-1)*2])
		delta := got - prev
		if math.Abs(delta-0.001*step) > 1e-4 {
			t.Fatalf("frame %d: non-uniform ramp step %f", f, delta)
		}
		if math.Abs(float64(out[f*2+1])+got) > 1e-4 {
			t.Fatalf("frame %d: channels diverged", f)
		}
	}
}

func TestOutputResamplerUpConversion(t *testing.T) {
	src := &rampMixer{step: 0.001}
	r := newOutputResampler(96000, 512)

	out := make([]float32, 960*2)
	r.fill(src.mix, out)
	r.fill(src.mix, out)

	for f := 1; f < 959; f++ {
		delta := float64(out[f*2]) - float64(out[(f-1)*2])
		if math.Abs(delta-0.0005) > 1e-4 {
			t.Fatalf("frame %d: non-uniform ramp step %f", f, delta)
		}
	}
}

func TestOutputResamplerConsumesAtSourceRate(t *testing.T) {
	// Producing one second of device audio must consume one second of
	// canonical audio, within a frame.
	consumed := 0
	mix := func(out []float32) {
		consumed += len(out) / 2
		for i := range out {
			out[i] = 0
		}
	}

	r := newOutputResampler(44100, 512)
	out := make([]float32, 441*2)
	for i := 0; i < 100; i++ { // 44100 device frames = 1 s
		r.fill(mix, out)
	}

	if diff := consumed - CanonicalSampleRate; diff < -1 || diff > 1 {
		t.Fatalf("expected ~%d canonical frames consumed, got %d", CanonicalSampleRate, consumed)
	}
}
