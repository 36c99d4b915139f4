package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/archivekit/vaultline/media"
	"github.com/archivekit/vaultline/transcriber"
	"github.com/stretchr/testify/require"
)

func TestWriteText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.txt")

	f, err := WriteText(path, "hello world")
	require.NoError(t, err)
	require.Equal(t, media.KindTranscriptText, f.Kind)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(content))
}

func TestWriteSRTFormatsTimestampsAndNumbering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.srt")

	segments := []transcriber.TimedSegment{
		{Start: 0, End: 1.5, Text: "hello"},
		{Start: 61.25, End: 63.004, Text: "world"},
	}

	f, err := WriteSRT(path, segments)
	require.NoError(t, err)
	require.Equal(t, media.KindTranscriptSubtitles, f.Kind)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n" +
		"2\n00:01:01,250 --> 00:01:03,004\nworld\n\n"
	require.Equal(t, want, string(content))
}

func TestWriteSRTWithNoSegmentsProducesZeroValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.srt")

	f, err := WriteSRT(path, nil)
	require.NoError(t, err)
	require.Equal(t, media.MediaFile{}, f)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}
