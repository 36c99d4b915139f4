package transcriber

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeModel returns its canned sampleResults in call order (and fileResult
// for whole-file calls), so tests can assert on ordering without a real
// speech model.
type fakeModel struct {
	fileResult    Result
	fileErr       error
	sampleResults []Result
	sampleCalls   int
}

func (f *fakeModel) TranscribeFile(ctx context.Context, path, language string, params ModelParams) (Result, error) {
	return f.fileResult, f.fileErr
}

func (f *fakeModel) TranscribeSamples(ctx context.Context, samples []float32, sampleRate int, language string, params ModelParams) (Result, error) {
	if f.sampleCalls >= len(f.sampleResults) {
		return Result{}, errors.New("fakeModel: no more canned results")
	}
	r := f.sampleResults[f.sampleCalls]
	f.sampleCalls++
	return r, nil
}

func TestTranscribeWholeFile(t *testing.T) {
	m := &fakeModel{fileResult: Result{
		Text:     "hello world",
		Segments: []TimedSegment{{Start: 0, End: 1.5, Text: "hello world"}},
		Language: "en",
	}}
	tr := &Transcriber{Model: m, Params: DefaultModelParams()}

	acc, err := tr.Transcribe(context.Background(), "/scratch/audio.mp3", "en")
	require.NoError(t, err)
	require.Equal(t, "hello world", acc.FullText)
	require.True(t, acc.StreamCompleted)
	require.Equal(t, 1, acc.ProcessedChunkCount)
}

// pcmFixture builds a synthetic WAV-like stream: a 44-byte header followed
// by nChunks full chunk windows plus an optional residual.
func pcmFixture(sampleRate int, chunkDuration float64, nChunks int, residualSecs float64) []byte {
	window := int(chunkDuration * float64(sampleRate) * 2)
	buf := make([]byte, 44)
	for i := 0; i < nChunks; i++ {
		buf = append(buf, make([]byte, window)...)
	}
	residualBytes := int(residualSecs * float64(sampleRate) * 2)
	buf = append(buf, make([]byte, residualBytes)...)
	return buf
}

func TestTranscribeStreamChunksAndShiftsOffsets(t *testing.T) {
	m := &fakeModel{sampleResults: []Result{
		{Text: "first ", Segments: []TimedSegment{{Start: 0, End: 2, Text: "first"}}},
		{Text: "second ", Segments: []TimedSegment{{Start: 0, End: 2, Text: "second"}}},
	}}
	tr := &Transcriber{
		Model:            m,
		SampleRate:       16000,
		ChunkDuration:    30,
		MinAudioDuration: 5,
		Params:           DefaultModelParams(),
	}

	data := pcmFixture(16000, 30, 2, 0)
	var emitted []string
	acc, err := tr.TranscribeStream(context.Background(), bytes.NewReader(data), "en", func(text string, segs []TimedSegment) {
		emitted = append(emitted, text)
	})
	require.NoError(t, err)
	require.True(t, acc.StreamCompleted)
	require.Equal(t, 2, acc.ProcessedChunkCount)
	require.Equal(t, []string{"first ", "second "}, emitted)

	require.Len(t, acc.Segments, 2)
	require.Equal(t, 0.0, acc.Segments[0].Start)
	require.Equal(t, 30.0, acc.Segments[1].Start)

	for i := 1; i < len(acc.Segments); i++ {
		require.GreaterOrEqual(t, acc.Segments[i].Start, acc.Segments[i-1].Start)
	}
}

func TestTranscribeStreamFlushesResidualAboveMinDuration(t *testing.T) {
	m := &fakeModel{sampleResults: []Result{
		{Text: "only ", Segments: []TimedSegment{{Start: 0, End: 1, Text: "only"}}},
	}}
	tr := &Transcriber{
		Model:            m,
		SampleRate:       16000,
		ChunkDuration:    30,
		MinAudioDuration: 5,
		Params:           DefaultModelParams(),
	}

	// Below one full chunk window, but above MinAudioDuration.
	data := pcmFixture(16000, 30, 0, 10)
	acc, err := tr.TranscribeStream(context.Background(), bytes.NewReader(data), "en", nil)
	require.NoError(t, err)
	require.True(t, acc.StreamCompleted)
	require.Equal(t, 1, acc.ProcessedChunkCount)
}

func TestTranscribeStreamDropsResidualBelowMinDuration(t *testing.T) {
	m := &fakeModel{}
	tr := &Transcriber{
		Model:            m,
		SampleRate:       16000,
		ChunkDuration:    30,
		MinAudioDuration: 5,
		Params:           DefaultModelParams(),
	}

	data := pcmFixture(16000, 30, 0, 2)
	acc, err := tr.TranscribeStream(context.Background(), bytes.NewReader(data), "en", nil)
	require.NoError(t, err)
	require.True(t, acc.StreamCompleted)
	require.Equal(t, 0, acc.ProcessedChunkCount)
}

// brokenPipeReader returns a header, then a read error that is not io.EOF.
type brokenPipeReader struct {
	data []byte
	pos  int
}

func (b *brokenPipeReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, errors.New("broken pipe")
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

func TestTranscribeStreamHandlesBrokenPipe(t *testing.T) {
	m := &fakeModel{sampleResults: []Result{
		{Text: "partial ", Segments: []TimedSegment{{Start: 0, End: 1, Text: "partial"}}},
	}}
	tr := &Transcriber{
		Model:            m,
		SampleRate:       16000,
		ChunkDuration:    30,
		MinAudioDuration: 5,
		Params:           DefaultModelParams(),
	}

	data := pcmFixture(16000, 30, 1, 0)
	acc, err := tr.TranscribeStream(context.Background(), &brokenPipeReader{data: data}, "en", nil)
	require.NoError(t, err)
	require.False(t, acc.StreamCompleted)
	require.Equal(t, 1, acc.ProcessedChunkCount)
}

func TestTranscribeStreamEmptyReturnsIncompleteWithNoChunks(t *testing.T) {
	m := &fakeModel{}
	tr := &Transcriber{
		Model:            m,
		SampleRate:       16000,
		ChunkDuration:    30,
		MinAudioDuration: 5,
		Params:           DefaultModelParams(),
	}

	acc, err := tr.TranscribeStream(context.Background(), bytes.NewReader(nil), "en", nil)
	require.NoError(t, err)
	require.False(t, acc.StreamCompleted)
	require.Equal(t, 0, acc.ProcessedChunkCount)
}

func TestPCMBytesToFloat32Normalization(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(int16(16384))) // ~0.5
	binary.LittleEndian.PutUint16(buf[2:4], uint16(int16(-32768))) // -1.0

	samples := pcmBytesToFloat32(buf)
	require.Len(t, samples, 2)
	require.InDelta(t, 0.5, samples[0], 0.001)
	require.InDelta(t, -1.0, samples[1], 0.001)
}

var _ io.Reader = (*brokenPipeReader)(nil)
