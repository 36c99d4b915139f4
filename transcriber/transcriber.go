// Package transcriber wraps the speech-recognition model (spec §4.4):
// whole-file transcription of a finished audio file, and chunked-stream
// transcription of a live PCM pipe fed by the Media Acquirer's streaming
// pipeline (spec §4.3).
//
// Grounded on the teacher's subprocess package conventions (persistent
// exec.CommandContext child, explicit pipe wiring, signal escalation) and
// the Python predecessor's transcriber.py chunking arithmetic.
package transcriber

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
)

// TimedSegment is one utterance within a transcription (spec §3).
type TimedSegment struct {
	Start float64
	End   float64
	Text  string
}

// TranscriptionAccumulator holds the running result of a job's
// transcription, whether produced by one whole-file call or many
// chunked-stream calls (spec §3).
type TranscriptionAccumulator struct {
	FullText            string
	Segments            []TimedSegment
	ProcessedChunkCount int
	StreamCompleted     bool
	Language            string
	LanguageConfidence  float64
}

// Result is what the model returns for either a whole file or one chunk of
// samples.
type Result struct {
	Text               string
	Segments           []TimedSegment
	Language           string
	LanguageConfidence float64
	DurationSecs       float64
}

// ModelParams are the fixed decoding parameters of spec §4.4, shared by
// whole-file and chunked-stream calls so that a chunk boundary never changes
// the model's behavior.
type ModelParams struct {
	BeamSize                 int
	ConditionOnPreviousText  bool
	Temperature              float64
	CompressionRatioCeiling  float64
	LogProbFloor             float64
	NoSpeechThreshold        float64
	VoiceActivityFilterOff   bool
}

// DefaultModelParams are the Config Registry's fixed values (spec §4.4).
func DefaultModelParams() ModelParams {
	return ModelParams{
		BeamSize:                5,
		ConditionOnPreviousText: false,
		Temperature:             0.1,
		CompressionRatioCeiling: 2.0,
		LogProbFloor:            -0.6,
		NoSpeechThreshold:       0.2,
		VoiceActivityFilterOff:  true,
	}
}

// Model is the external speech-recognition process, spawned once per worker
// and held open for the worker's lifetime (spec §10.2). ProcessModel is the
// production implementation; tests substitute a fake.
type Model interface {
	TranscribeFile(ctx context.Context, path string, language string, params ModelParams) (Result, error)
	TranscribeSamples(ctx context.Context, samples []float32, sampleRate int, language string, params ModelParams) (Result, error)
}

// Transcriber drives Model according to spec §4.4's whole-file and
// chunked-stream contracts.
type Transcriber struct {
	Model Model

	SampleRate       int
	ChunkDuration    float64 // seconds
	MinAudioDuration float64 // seconds

	Params ModelParams
}

const wavHeaderBytes = 44

// bytesPerSample is fixed by the Media Acquirer's PCM output format: 16-bit
// signed little-endian, mono (spec §4.3).
const bytesPerSample = 2

// Transcribe implements the whole-file operation (spec §4.4).
func (t *Transcriber) Transcribe(ctx context.Context, path string, language string) (*TranscriptionAccumulator, error) {
	res, err := t.Model.TranscribeFile(ctx, path, language, t.Params)
	if err != nil {
		return nil, err
	}
	return &TranscriptionAccumulator{
		FullText:            res.Text,
		Segments:            res.Segments,
		ProcessedChunkCount: 1,
		StreamCompleted:     true,
		Language:            res.Language,
		LanguageConfidence:  res.LanguageConfidence,
	}, nil
}

// chunkWindowBytes is the byte size of one chunk window (spec §4.4 step 2).
func (t *Transcriber) chunkWindowBytes() int {
	return int(t.ChunkDuration * float64(t.SampleRate) * bytesPerSample)
}

// TranscribeStream implements the chunked-stream operation (spec §4.4).
// onChunk is invoked once per emitted chunk, in emission order, mirroring
// the "iterator of (chunk_text, segments)" contract in idiomatic Go.
func (t *Transcriber) TranscribeStream(ctx context.Context, pcmReader io.Reader, language string, onChunk func(chunkText string, segments []TimedSegment)) (*TranscriptionAccumulator, error) {
	acc := &TranscriptionAccumulator{Language: language}

	r := bufio.NewReaderSize(pcmReader, t.chunkWindowBytes())

	if n, err := io.CopyN(io.Discard, r, wavHeaderBytes); err != nil || n < wavHeaderBytes {
		acc.StreamCompleted = false
		return acc, nil
	}

	window := t.chunkWindowBytes()
	buf := make([]byte, 0, window)
	offset := 0.0

	flush := func(chunk []byte) error {
		samples := pcmBytesToFloat32(chunk)
		res, err := t.Model.TranscribeSamples(ctx, samples, t.SampleRate, language, t.Params)
		if err != nil {
			return err
		}
		shifted := make([]TimedSegment, len(res.Segments))
		for i, s := range res.Segments {
			shifted[i] = TimedSegment{Start: s.Start + offset, End: s.End + offset, Text: s.Text}
		}
		acc.Segments = append(acc.Segments, shifted...)
		acc.FullText += res.Text
		acc.ProcessedChunkCount++
		if res.Language != "" {
			acc.Language = res.Language
			acc.LanguageConfidence = res.LanguageConfidence
		}
		if onChunk != nil {
			onChunk(res.Text, shifted)
		}
		return nil
	}

	readBuf := make([]byte, 32*1024)
	for {
		n, err := r.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			for len(buf) >= window {
				chunk := buf[:window]
				if ferr := flush(chunk); ferr != nil {
					return acc, ferr
				}
				offset += t.ChunkDuration
				buf = buf[window:]
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				residualSecs := float64(len(buf)) / (float64(t.SampleRate) * bytesPerSample)
				if residualSecs >= t.MinAudioDuration && len(buf) > 0 {
					if ferr := flush(buf); ferr != nil {
						return acc, ferr
					}
				}
				acc.StreamCompleted = true
				return acc, nil
			}
			// Any other read error is treated as a broken pipe: terminate
			// cleanly with whatever was already accumulated (spec §4.4 step 6).
			acc.StreamCompleted = false
			return acc, nil
		}
		if ctx.Err() != nil {
			acc.StreamCompleted = false
			return acc, ctx.Err()
		}
	}
}

func pcmBytesToFloat32(b []byte) []float32 {
	n := len(b) / bytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
		out[i] = float32(v) / 32768.0
	}
	return out
}
