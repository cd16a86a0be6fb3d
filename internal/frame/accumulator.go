package frame

// FrameLen is the number of samples in one analysis frame.
const FrameLen = 2048

// Accumulator buffers sample chunks into non-overlapping FrameLen frames.
// It is not safe for concurrent use; the session worker owns it.
type Accumulator struct {
	tail []float32
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{
		tail: make([]float32, 0, FrameLen*2),
	}
}

// Push appends chunk to the residual tail and returns every complete frame
// now available, in order. Samples that do not fill a frame stay buffered.
func (a *Accumulator) Push(chunk []float32) [][]float32 {
	a.tail = append(a.tail, chunk...)

	if len(a.tail) < FrameLen {
		return nil
	}

	frames := make([][]float32, 0, len(a.tail)/FrameLen)
	off := 0
	for len(a.tail)-off >= FrameLen {
		f := make([]float32, FrameLen)
		copy(f, a.tail[off:off+FrameLen])
		frames = append(frames, f)
		off += FrameLen
	}

	// Shift the remainder to the front so the buffer does not grow without bound
	n := copy(a.tail, a.tail[off:])
	a.tail = a.tail[:n]

	return frames
}

// Residual returns a copy of the samples still waiting for a full frame.
func (a *Accumulator) Residual() []float32 {
	out := make([]float32, len(a.tail))
	copy(out, a.tail)
	return out
}
