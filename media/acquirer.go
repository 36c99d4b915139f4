package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/archivekit/vaultline/errors"
	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/subprocess"
	"github.com/cenkalti/backoff/v4"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Acquirer drives the extractor and transcoder binaries (configured via
// PathExtractorBin / PathTranscoderBin in config.go) the same way the
// teacher's video package shells out to ffmpeg.
type Acquirer struct {
	ExtractorBin  string
	TranscoderBin string

	// HTTPClient is used for Mode B chat-attachment downloads.
	HTTPClient *http.Client
}

// clientSpoofArgs mirrors the Python predecessor's _build_yt_opts: a
// preferred client list, a locale/user-agent header set, IPv4-only, bounded
// retries, and a fixed socket timeout, ported to extractor CLI flags.
func clientSpoofArgs() []string {
	return []string{
		"--extractor-args", "youtube:player_client=android,web",
		"--user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"--force-ipv4",
		"--retries", "3",
		"--socket-timeout", "30",
	}
}

// ProbeVideoInfo runs the extractor in "info only" mode (spec §4.3 Mode A)
// to produce a VideoInfo without downloading media.
func (a *Acquirer) ProbeVideoInfo(ctx context.Context, requestID, url string) (VideoInfo, error) {
	args := append([]string{"--dump-json", "--no-playlist", "--skip-download"}, clientSpoofArgs()...)
	args = append(args, url)

	var stdout, stderr bytes.Buffer
	operation := func() error {
		stdout.Reset()
		stderr.Reset()
		cmd := exec.CommandContext(ctx, a.bin(), args...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		return cmd.Run()
	}

	if err := backoff.Retry(operation, ProbeRetryBackoff()); err != nil {
		return VideoInfo{}, errors.Unretriable(fmt.Errorf("extractor info probe failed: %w (%s)", err, stderr.String()))
	}

	var raw struct {
		Title      string  `json:"title"`
		ID         string  `json:"id"`
		Channel    string  `json:"channel"`
		UploadDate string  `json:"upload_date"` // YYYYMMDD
		Duration   float64 `json:"duration"`
		Width      int     `json:"width"`
		Height     int     `json:"height"`
		Availability string `json:"availability"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return VideoInfo{}, fmt.Errorf("parsing extractor metadata: %w", err)
	}
	if raw.Title == "" {
		return VideoInfo{}, fmt.Errorf("extractor metadata missing title")
	}

	uploadDate := raw.UploadDate
	if len(uploadDate) == 8 {
		uploadDate = uploadDate[0:4] + "-" + uploadDate[4:6] + "-" + uploadDate[6:8]
	}

	availability := "unlisted"
	if raw.Availability == "" || raw.Availability == "public" {
		availability = "public"
	}

	info := VideoInfo{
		Title:          raw.Title,
		SanitizedTitle: Sanitize(raw.Title),
		UploadDate:     uploadDate,
		VideoID:        raw.ID,
		Channel:        raw.Channel,
		DurationSecs:   raw.Duration,
		Availability:   availability,
		Resolution:     fmt.Sprintf("%dx%d", raw.Width, raw.Height),
	}
	log.Log(requestID, "probed video info", "title", info.Title, "duration", info.DurationSecs)
	return info, nil
}

func (a *Acquirer) bin() string {
	if a.ExtractorBin != "" {
		return a.ExtractorBin
	}
	return "yt-dlp"
}

func (a *Acquirer) transcoderBin() string {
	if a.TranscoderBin != "" {
		return a.TranscoderBin
	}
	return "ffmpeg"
}

// StreamPipeline is the pipe-to-pipe extractor->transcoder pair described in
// spec §4.3 Mode A "stream-and-capture": the extractor streams combined
// video+audio to stdout, the transcoder reads that stdout and simultaneously
// writes a matroska container to disk (codec copy) and a normalized WAV PCM
// stream to its own stdout.
type StreamPipeline struct {
	extractor  *exec.Cmd
	transcoder *exec.Cmd
	pcm        io.ReadCloser
	ScratchPath string
	stderr     *subprocess.SyncBuffer
}

// PCM returns the transcoder's normalized WAV stdout, to be consumed by the
// transcriber's chunked-stream mode.
func (p *StreamPipeline) PCM() io.Reader { return p.pcm }

// Warnings returns the transcoder's captured stderr, recorded after Wait
// returns (spec §4.8 "inspect its stderr, and record a warnings string").
func (p *StreamPipeline) Warnings() string {
	if p.stderr == nil {
		return ""
	}
	return p.stderr.String()
}

// Wait blocks for the transcoder to finish; it does not wait on the
// extractor, since the transcoder's exit (having consumed the last byte of
// the extractor's stdout) is the pipeline's completion signal.
func (p *StreamPipeline) Wait() error {
	return p.transcoder.Wait()
}

// Close tears down both children: closing the PCM read end signals the
// transcoder to stop producing, and the extractor is terminated in turn.
// Escalates to SIGKILL after a short timeout if either child ignores
// SIGTERM (spec §4.3, §9 "supervising routine").
func (p *StreamPipeline) Close() {
	_ = p.pcm.Close()
	terminateWithEscalation(p.transcoder, 3*time.Second)
	terminateWithEscalation(p.extractor, 3*time.Second)
}

func terminateWithEscalation(cmd *exec.Cmd, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		<-done
	}
}

// AcquireStreaming spawns the two-stage extractor->transcoder pipeline
// (spec §4.3 Mode A). The caller (the coordinator) drives the transcriber's
// chunked-stream mode off the returned PCM reader and, once both finish,
// calls Wait/Close.
func (a *Acquirer) AcquireStreaming(ctx context.Context, requestID, url, scratchPath string) (*StreamPipeline, error) {
	extractorArgs := append([]string{"-f", "best", "-o", "-", "--no-playlist"}, clientSpoofArgs()...)
	extractorArgs = append(extractorArgs, url)
	extractor := exec.CommandContext(ctx, a.bin(), extractorArgs...)

	extractorStdout, err := extractor.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("wiring extractor stdout: %w", err)
	}

	transcoderArgs := []string{
		"-i", "pipe:0",
		"-map", "0",
		"-c", "copy",
		"-f", "matroska", scratchPath,
		"-map", "0:a",
		"-ar", "16000", "-ac", "1", "-f", "wav", "-acodec", "pcm_s16le",
		"pipe:1",
	}
	transcoder := exec.CommandContext(ctx, a.transcoderBin(), transcoderArgs...)
	transcoder.Stdin = extractorStdout

	pcmOut, err := transcoder.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("wiring transcoder stdout: %w", err)
	}
	stderrBuf, err := subprocess.CaptureStderr(transcoder)
	if err != nil {
		return nil, fmt.Errorf("wiring transcoder stderr: %w", err)
	}
	if err := subprocess.LogStderr(extractor); err != nil {
		return nil, fmt.Errorf("wiring extractor logging: %w", err)
	}

	if err := extractor.Start(); err != nil {
		return nil, errors.NewPipelineBrokenPipeError(fmt.Errorf("starting extractor: %w", err))
	}
	if err := transcoder.Start(); err != nil {
		_ = extractor.Process.Kill()
		return nil, errors.NewPipelineBrokenPipeError(fmt.Errorf("starting transcoder: %w", err))
	}

	log.Log(requestID, "streaming pipeline started", "scratch", scratchPath)
	return &StreamPipeline{
		extractor:   extractor,
		transcoder:  transcoder,
		pcm:         pcmOut,
		ScratchPath: scratchPath,
		stderr:      stderrBuf,
	}, nil
}

// AcquireWholeFileVideo downloads the best video stream merged with the best
// audio stream (or the best single combined format) to disk, so the file
// carries its own audio track; it is not a video-only download. Used by the
// FALLBACK phase (spec §4.8) when the streamed pipeline cannot sustain the
// pipe.
func (a *Acquirer) AcquireWholeFileVideo(ctx context.Context, requestID, url, scratchPath string) error {
	return a.downloadWholeFile(ctx, requestID, url, scratchPath, "bestvideo+bestaudio/best")
}

// AcquireWholeFileAudio downloads just the audio track to disk, used by the
// FALLBACK phase (spec §4.8).
func (a *Acquirer) AcquireWholeFileAudio(ctx context.Context, requestID, url, scratchPath string) error {
	return a.downloadWholeFile(ctx, requestID, url, scratchPath, "bestaudio")
}

func (a *Acquirer) downloadWholeFile(ctx context.Context, requestID, url, scratchPath, format string) error {
	args := append([]string{"-f", format, "-o", scratchPath, "--no-playlist"}, clientSpoofArgs()...)
	args = append(args, url)
	cmd := exec.CommandContext(ctx, a.bin(), args...)
	if err := subprocess.LogOutputs(cmd); err != nil {
		return err
	}
	if err := cmd.Run(); err != nil {
		return errors.NewPipelineBrokenPipeError(fmt.Errorf("whole-file download failed: %w", err))
	}
	log.Log(requestID, "whole-file acquisition complete", "path", scratchPath)
	return nil
}

// DownloadChatAttachment streams a chat-message attachment to scratch via
// HTTP with chunked writes and an explicit timeout (spec §4.3 Mode B).
func (a *Acquirer) DownloadChatAttachment(ctx context.Context, requestID, attachmentURL, scratchPath string) (MediaFile, error) {
	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachmentURL, nil)
	if err != nil {
		return MediaFile{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return MediaFile{}, fmt.Errorf("fetching chat attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return MediaFile{}, fmt.Errorf("chat attachment fetch returned HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(scratchPath)
	if err != nil {
		return MediaFile{}, err
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 64*1024)
	if _, err := io.Copy(w, resp.Body); err != nil {
		return MediaFile{}, fmt.Errorf("writing chat attachment to scratch: %w", err)
	}
	if err := w.Flush(); err != nil {
		return MediaFile{}, err
	}

	log.Log(requestID, "chat attachment downloaded", "path", scratchPath)
	return MediaFile{Path: scratchPath, Filename: filepath.Base(scratchPath), Kind: KindVideo}, nil
}

// ExtractAudio decodes an MP3 at the configured bitrate from a video file,
// no video stream (spec §4.3 "Auxiliary").
func (a *Acquirer) ExtractAudio(ctx context.Context, videoPath, outPath, bitrate string) (MediaFile, error) {
	cmd := exec.CommandContext(ctx, a.transcoderBin(),
		"-y", "-i", videoPath, "-vn", "-acodec", "libmp3lame", "-b:a", bitrate, outPath,
	)
	if err := runCompression(ctx, cmd); err != nil {
		return MediaFile{}, err
	}
	return MediaFile{Path: outPath, Filename: filepath.Base(outPath), Kind: KindAudio}, nil
}

// CompressVideo re-encodes a video with H.264/CRF/preset, a 30fps cap, AAC
// audio, and the streaming-optimization (moov-at-head) flag (spec §4.3).
func (a *Acquirer) CompressVideo(ctx context.Context, videoPath, outPath string, crf int, preset, audioBitrate string) error {
	cmd := exec.CommandContext(ctx, a.transcoderBin(),
		"-y", "-i", videoPath,
		"-c:v", "libx264", "-crf", strconv.Itoa(crf), "-preset", preset,
		"-r", "30",
		"-c:a", "aac", "-b:a", audioBitrate,
		"-movflags", "+faststart",
		outPath,
	)
	return runCompression(ctx, cmd)
}

// ConvertMKVToMP4 remuxes (codec copy, no re-encode) an mkv container to mp4,
// via the fluent ffmpeg-go API the same way the teacher's MuxTStoMP4 remuxes
// a transport stream into MP4 (spec §4.8 COMPRESS "first remux to .mp4 via
// codec-copy").
func (a *Acquirer) ConvertMKVToMP4(ctx context.Context, mkvPath, outPath string) error {
	var stderr bytes.Buffer
	err := ffmpeg.Input(mkvPath).
		Output(outPath, ffmpeg.KwArgs{
			"movflags": "faststart",
			"c":        "copy",
		}).
		OverWriteOutput().WithErrorOutput(&stderr).Run()
	if err != nil {
		return fmt.Errorf("remuxing mkv to mp4 (%s): %w", stderr.String(), err)
	}
	return nil
}

func runCompression(ctx context.Context, cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("transcoder command failed: %w (%s)", err, stderr.String())
	}
	return nil
}

// ProbeRetryBackoff mirrors video/probe.go's retry posture for the metadata
// probe (spec §10.8 domain-stack wiring: cenkalti/backoff/v4 for the
// extractor metadata-probe retry).
func ProbeRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, 3)
}
