package frame

import (
	"math/rand"
	"testing"
)

func TestPushThreeChunksYieldsOneFrame(t *testing.T) {
	acc := NewAccumulator()

	var frames [][]float32
	for _, n := range []int{1000, 1000, 200} {
		frames = append(frames, acc.Push(make([]float32, n))...)
	}

	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if len(frames[0]) != FrameLen {
		t.Fatalf("expected frame of %d samples, got %d", FrameLen, len(frames[0]))
	}
	if got := len(acc.Residual()); got != 152 {
		t.Fatalf("expected residual of 152 samples, got %d", got)
	}
}

func TestPushNeverEmitsEarly(t *testing.T) {
	acc := NewAccumulator()

	if frames := acc.Push(make([]float32, FrameLen-1)); len(frames) != 0 {
		t.Fatalf("expected no frames before %d samples, got %d", FrameLen, len(frames))
	}
	frames := acc.Push([]float32{1})
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame, got %d", len(frames))
	}
	if len(acc.Residual()) != 0 {
		t.Fatalf("expected empty residual, got %d", len(acc.Residual()))
	}
}

func TestPushEmptyChunk(t *testing.T) {
	acc := NewAccumulator()

	if frames := acc.Push(nil); frames != nil {
		t.Fatalf("expected nil frames for empty chunk, got %d", len(frames))
	}
	if frames := acc.Push([]float32{}); frames != nil {
		t.Fatalf("expected nil frames for empty chunk, got %d", len(frames))
	}
}

func TestPushLargeChunkYieldsSeveralFrames(t *testing.T) {
	acc := NewAccumulator()

	frames := acc.Push(make([]float32, FrameLen*3+7))
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if got := len(acc.Residual()); got != 7 {
		t.Fatalf("expected residual of 7, got %d", got)
	}
}

// Every sample must come out exactly once and in order, whatever the chunking.
func TestPushPreservesSampleOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	acc := NewAccumulator()

	var input, output []float32
	next := float32(0)
	for i := 0; i < 200; i++ {
		chunk := make([]float32, rng.Intn(900))
		for j := range chunk {
			chunk[j] = next
			next++
		}
		input = append(input, chunk...)

		for _, f := range acc.Push(chunk) {
			if len(f) != FrameLen {
				t.Fatalf("frame has %d samples, want %d", len(f), FrameLen)
			}
			output = append(output, f...)
		}
	}
	output = append(output, acc.Residual()...)

	if len(output) != len(input) {
		t.Fatalf("expected %d samples out, got %d", len(input), len(output))
	}
	for i := range input {
		if output[i] != input[i] {
			t.Fatalf("sample %d: expected %f, got %f", i, input[i], output[i])
		}
	}
}

func TestFramesDoNotAliasInput(t *testing.T) {
	acc := NewAccumulator()

	chunk := make([]float32, FrameLen)
	frames := acc.Push(chunk)
	chunk[0] = 99

	if frames[0][0] != 0 {
		t.Fatal("expected emitted frame to be independent of the input chunk")
	}
}
