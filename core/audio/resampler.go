package audio

import "math"

// linearResampler converts interleaved stereo PCM between rates with
// two-point linear interpolation. It is fed chunk by chunk so decode
// never materializes a second full copy of the source: the carried
// frame and fractional read position bridge chunk boundaries.
type linearResampler struct {
	step    float64 // source frames advanced per output frame
	pos     float64 // next output position, relative to the carried frame
	prevL   float32
	prevR   float32
	started bool
}

func newLinearResampler(srcRate, dstRate int) *linearResampler {
	return &linearResampler{step: float64(srcRate) / float64(dstRate)}
}

// process consumes one chunk of source frames and appends the
// interpolated frames to dst, returning the grown slice.
func (r *linearResampler) process(in []float32, dst []float32) []float32 {
	n := len(in) / canonicalChannels
	if n == 0 {
		return dst
	}
	if !r.started {
		// The first source frame becomes the carried frame so output
		// position 0 lands exactly on it.
		r.started = true
		r.prevL, r.prevR = in[0], in[1]
		in = in[canonicalChannels:]
		n--
		if n == 0 {
			return dst
		}
	}

	// Virtual coordinates: the carried frame sits at 0, this chunk's
	// frames at 1..n.
	for r.pos < float64(n) {
		i := int(r.pos)
		t := float32(r.pos - float64(i))

		var l0, r0 float32
		if i == 0 {
			l0, r0 = r.prevL, r.prevR
		} else {
			l0 = in[(i-1)*2]
			r0 = in[(i-1)*2+1]
		}
		l1 := in[i*2]
		r1 := in[i*2+1]

		dst = append(dst, l0+(l1-l0)*t, r0+(r1-r0)*t)
		r.pos += r.step
	}

	r.prevL = in[(n-1)*2]
	r.prevR = in[(n-1)*2+1]
	r.pos -= float64(n)
	return dst
}

// outputResampler converts the mixer's canonical-rate stereo stream
// to a device rate at the output boundary. Decoded data always stays
// at the canonical rate; only the final stream is interpolated.
//
// Linear interpolation is sufficient here: the conversion is between
// neighbouring professional rates, not arbitrary pitch shifts. All
// buffers are sized up front; the hot path never allocates.
type outputResampler struct {
	step float64 // canonical frames consumed per device frame
	frac float64 // fractional read position into the next block
	prevL float32
	prevR float32
	src  []float32 // canonical-rate scratch, interleaved
}

// newOutputResampler builds a resampler for one stream. maxFrames is
// the largest device buffer the host may request.
func newOutputResampler(deviceRate, maxFrames int) *outputResampler {
	step := float64(CanonicalSampleRate) / float64(deviceRate)
	capacity := int(math.Ceil(float64(maxFrames)*step)) + 2
	return &outputResampler{
		step: step,
		src:  make([]float32, capacity*canonicalChannels),
	}
}

// fill produces len(out)/2 device-rate frames, pulling canonical
// frames from mix as needed.
func (r *outputResampler) fill(mix func([]float32), out []float32) {
	frames := len(out) / canonicalChannels
	if frames == 0 {
		return
	}

	advance := r.frac + float64(frames)*r.step
	need := int(advance)
	if needed := need * canonicalChannels; needed > len(r.src) {
		// Host asked for a bigger buffer than negotiated; grow once.
		r.src = make([]float32, needed)
	}
	mix(r.src[:need*canonicalChannels])

	// Index 0 of the virtual source is the carried frame from the
	// previous block; mixed frames occupy 1..need.
	pos := r.frac
	for f := 0; f < frames; f++ {
		i := int(pos)
		t := float32(pos - float64(i))

		var l0, r0 float32
		if i == 0 {
			l0, r0 = r.prevL, r.prevR
		} else {
			l0 = r.src[(i-1)*2]
			r0 = r.src[(i-1)*2+1]
		}
		var l1, r1 float32
		if i < need {
			l1 = r.src[i*2]
			r1 = r.src[i*2+1]
		} else {
			l1, r1 = l0, r0
		}

		out[f*2] = l0 + (l1-l0)*t
		out[f*2+1] = r0 + (r1-r0)*t
		pos += r.step
	}

	r.frac = advance - float64(need)
	if need > 0 {
		r.prevL = r.src[(need-1)*2]
		r.prevR = r.src[(need-1)*2+1]
	}
}
