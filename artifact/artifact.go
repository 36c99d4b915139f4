// Package artifact implements the Artifact Assembler (spec §4.6): rendering
// a job's accumulated transcription into the on-disk files the Object Store
// Client uploads.
//
// Grounded on the Python predecessor's models.py TranscriptionResult.save_srt,
// re-expressed in the teacher's plain-function, no-framework style.
package artifact

import (
	"fmt"
	"os"
	"strings"

	"github.com/archivekit/vaultline/media"
	"github.com/archivekit/vaultline/transcriber"
)

// WriteText renders the accumulated full text to a plain ".txt" file (spec
// §4.6) and returns the MediaFile handle for it.
func WriteText(path, fullText string) (media.MediaFile, error) {
	if err := os.WriteFile(path, []byte(fullText), 0o644); err != nil {
		return media.MediaFile{}, fmt.Errorf("writing transcript text: %w", err)
	}
	return media.MediaFile{Path: path, Filename: filenameOf(path), Kind: media.KindTranscriptText}, nil
}

// WriteSRT renders the segment list to an SRT subtitle file (spec §4.6). A
// zero-segment accumulator produces no file and a zero value MediaFile; the
// caller is expected to skip it, matching the "zero-segment case produces
// only a .txt" edge case.
func WriteSRT(path string, segments []transcriber.TimedSegment) (media.MediaFile, error) {
	if len(segments) == 0 {
		return media.MediaFile{}, nil
	}

	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTimestamp(seg.Start), formatSRTTimestamp(seg.End))
		b.WriteString(seg.Text)
		b.WriteString("\n\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return media.MediaFile{}, fmt.Errorf("writing transcript srt: %w", err)
	}
	return media.MediaFile{Path: path, Filename: filenameOf(path), Kind: media.KindTranscriptSubtitles}, nil
}

// formatSRTTimestamp renders seconds as "HH:MM:SS,mmm".
func formatSRTTimestamp(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	totalMillis := int64(secs*1000 + 0.5)
	ms := totalMillis % 1000
	totalSecs := totalMillis / 1000
	s := totalSecs % 60
	totalMins := totalSecs / 60
	m := totalMins % 60
	h := totalMins / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func filenameOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
