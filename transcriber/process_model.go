package transcriber

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/subprocess"
)

// ProcessModel is the production Model: a single transcription-model
// process, spawned once per worker at startup and held open for the
// worker's lifetime via a persistent stdin/stdout JSON-lines session (spec
// §4.4, §10.2), rather than forked per job.
//
// Grounded on the teacher's subprocess package conventions: exec.CommandContext,
// explicit stdout/stderr pipe wiring, and signal escalation on teardown.
type ProcessModel struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu sync.Mutex // serializes request/response pairs on the shared pipe
}

type modelRequest struct {
	Op                      string  `json:"op"` // "file" | "samples"
	Path                    string  `json:"path,omitempty"`
	SamplesB64              string  `json:"samples_b64,omitempty"`
	SampleRate              int     `json:"sample_rate,omitempty"`
	Language                string  `json:"language,omitempty"`
	BeamSize                int     `json:"beam_size"`
	ConditionOnPreviousText bool    `json:"condition_on_previous_text"`
	Temperature             float64 `json:"temperature"`
	CompressionRatioCeiling float64 `json:"compression_ratio_ceiling"`
	LogProbFloor            float64 `json:"log_prob_floor"`
	NoSpeechThreshold       float64 `json:"no_speech_threshold"`
	VADFilterDisabled       bool    `json:"vad_filter_disabled"`
}

type modelResponseSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type modelResponse struct {
	Text               string                 `json:"text"`
	Segments           []modelResponseSegment `json:"segments"`
	Language           string                 `json:"language"`
	LanguageConfidence float64                `json:"language_confidence"`
	DurationSecs       float64                `json:"duration_secs"`
	Error              string                 `json:"error,omitempty"`
}

// StartProcessModel spawns PathTranscriberBin and keeps its stdin/stdout
// open for the caller's lifetime. Stderr is drained into the structured
// logger the same way the Media Acquirer's children are (spec §10.2).
func StartProcessModel(ctx context.Context, bin string) (*ProcessModel, error) {
	cmd := exec.CommandContext(ctx, bin, "--json-lines")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("wiring transcriber stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("wiring transcriber stdout: %w", err)
	}
	if err := subprocess.LogStderr(cmd); err != nil {
		return nil, fmt.Errorf("wiring transcriber stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting transcriber process: %w", err)
	}

	log.LogNoRequestID("transcriber model process started", "bin", bin)
	return &ProcessModel{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

// Close terminates the model process, escalating to SIGKILL if it does not
// exit promptly after stdin is closed.
func (m *ProcessModel) Close() error {
	_ = m.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- m.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		_ = m.cmd.Process.Kill()
		return <-done
	}
}

func paramsToRequest(params ModelParams) modelRequest {
	return modelRequest{
		BeamSize:                params.BeamSize,
		ConditionOnPreviousText: params.ConditionOnPreviousText,
		Temperature:             params.Temperature,
		CompressionRatioCeiling: params.CompressionRatioCeiling,
		LogProbFloor:            params.LogProbFloor,
		NoSpeechThreshold:       params.NoSpeechThreshold,
		VADFilterDisabled:       params.VoiceActivityFilterOff,
	}
}

func (m *ProcessModel) roundTrip(req modelRequest) (modelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, err := json.Marshal(req)
	if err != nil {
		return modelResponse{}, err
	}
	line = append(line, '\n')
	if _, err := m.stdin.Write(line); err != nil {
		return modelResponse{}, fmt.Errorf("writing to transcriber process: %w", err)
	}

	respLine, err := m.stdout.ReadBytes('\n')
	if err != nil {
		return modelResponse{}, fmt.Errorf("reading from transcriber process: %w", err)
	}
	var resp modelResponse
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return modelResponse{}, fmt.Errorf("parsing transcriber response: %w", err)
	}
	if resp.Error != "" {
		return modelResponse{}, fmt.Errorf("transcriber process error: %s", resp.Error)
	}
	return resp, nil
}

func toResult(resp modelResponse) Result {
	segments := make([]TimedSegment, len(resp.Segments))
	for i, s := range resp.Segments {
		segments[i] = TimedSegment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return Result{
		Text:               resp.Text,
		Segments:           segments,
		Language:           resp.Language,
		LanguageConfidence: resp.LanguageConfidence,
		DurationSecs:       resp.DurationSecs,
	}
}

// TranscribeFile implements Model.
func (m *ProcessModel) TranscribeFile(ctx context.Context, path string, language string, params ModelParams) (Result, error) {
	req := paramsToRequest(params)
	req.Op = "file"
	req.Path = path
	req.Language = language

	resp, err := m.roundTrip(req)
	if err != nil {
		return Result{}, err
	}
	return toResult(resp), nil
}

// TranscribeSamples implements Model.
func (m *ProcessModel) TranscribeSamples(ctx context.Context, samples []float32, sampleRate int, language string, params ModelParams) (Result, error) {
	req := paramsToRequest(params)
	req.Op = "samples"
	req.SamplesB64 = encodeFloat32(samples)
	req.SampleRate = sampleRate
	req.Language = language

	resp, err := m.roundTrip(req)
	if err != nil {
		return Result{}, err
	}
	return toResult(resp), nil
}

func encodeFloat32(samples []float32) string {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(buf)
}
