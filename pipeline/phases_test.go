package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archivekit/vaultline/catalog"
	"github.com/archivekit/vaultline/media"
	"github.com/archivekit/vaultline/objectstore"
	"github.com/archivekit/vaultline/policy"
	"github.com/archivekit/vaultline/queue"
	"github.com/archivekit/vaultline/transcriber"
)

func TestBuildFieldValuesFileUploadsAreDistinctFileValues(t *testing.T) {
	c := &Coordinator{}
	state := &runState{
		job: queue.Job{
			ChannelName: "acme-archive",
			VideoURL:    "https://example.com/watch?v=abc",
		},
		policy: policy.ChannelPolicy{
			TitleFormat: policy.TitleFormatDefault,
			StatusValue: "Published",
		},
		videoInfo: media.VideoInfo{
			Title:        "Episode One",
			UploadDate:   "2026-01-02",
			DurationSecs: 123.4,
			Availability: "public",
		},
		acc: &transcriber.TranscriptionAccumulator{FullText: "hello world"},

		videoUpload: &objectstore.DriveFile{Name: "episode-one.mp4", URL: "https://drive.example/video"},
		audioUpload: &objectstore.DriveFile{Name: "episode-one.mp3", URL: "https://drive.example/audio"},
		textUpload:  &objectstore.DriveFile{Name: "episode-one.txt", URL: "https://drive.example/text"},
		srtUpload:   &objectstore.DriveFile{Name: "episode-one.srt", URL: "https://drive.example/srt"},
	}

	values := c.buildFieldValues(state)

	// Each uploaded artifact must become its own catalog.FileValue with
	// its own Name/URL, never a stringified struct shared across fields
	// (the bug this test exists to catch).
	require.Equal(t, catalog.FileValue{Name: "episode-one.mp4", URL: "https://drive.example/video"}, values["video_file_url"])
	require.Equal(t, catalog.FileValue{Name: "episode-one.mp3", URL: "https://drive.example/audio"}, values["audio_file_url"])
	require.Equal(t, catalog.FileValue{Name: "episode-one.txt", URL: "https://drive.example/text"}, values["transcript_file_url"])
	require.Equal(t, catalog.FileValue{Name: "episode-one.srt", URL: "https://drive.example/srt"}, values["transcript_srt_url"])

	fileVals := []any{values["video_file_url"], values["audio_file_url"], values["transcript_file_url"], values["transcript_srt_url"]}
	seen := map[catalog.FileValue]bool{}
	for _, v := range fileVals {
		fv, ok := v.(catalog.FileValue)
		require.True(t, ok, "value must be a catalog.FileValue, got %T", v)
		require.False(t, seen[fv], "duplicate FileValue %+v across artifact fields", fv)
		seen[fv] = true
	}
}

func TestBuildFieldValuesOmitsFileFieldsWhenNoUploads(t *testing.T) {
	c := &Coordinator{}
	state := &runState{
		job:       queue.Job{ChannelName: "acme-archive"},
		policy:    policy.ChannelPolicy{TitleFormat: policy.TitleFormatDefault},
		videoInfo: media.VideoInfo{Title: "No Uploads", UploadDate: "2026-01-02"},
		acc:       &transcriber.TranscriptionAccumulator{},
	}

	values := c.buildFieldValues(state)

	require.NotContains(t, values, "video_file_url")
	require.NotContains(t, values, "audio_file_url")
	require.NotContains(t, values, "transcript_file_url")
	require.NotContains(t, values, "transcript_srt_url")
}

func TestBuildFieldValuesChatSkipsVideoURLAndListingStatus(t *testing.T) {
	c := &Coordinator{}
	state := &runState{
		job:       queue.Job{ChannelName: "acme-chat", VideoURL: "https://example.com/should-not-appear"},
		policy:    policy.ChannelPolicy{TitleFormat: policy.TitleFormatDefault},
		isChat:    true,
		videoInfo: media.VideoInfo{Title: "Chat Export", UploadDate: "2026-01-02", Availability: "public"},
		acc:       &transcriber.TranscriptionAccumulator{},
	}

	values := c.buildFieldValues(state)

	require.NotContains(t, values, "video_url")
	require.NotContains(t, values, "youtube_listing_status")
}

func TestBuildFieldValuesTruncatesTranscriptText(t *testing.T) {
	c := &Coordinator{}
	long := make([]byte, 2500)
	for i := range long {
		long[i] = 'a'
	}
	state := &runState{
		job:       queue.Job{ChannelName: "acme-archive"},
		policy:    policy.ChannelPolicy{TitleFormat: policy.TitleFormatDefault},
		videoInfo: media.VideoInfo{Title: "Long Transcript", UploadDate: "2026-01-02"},
		acc:       &transcriber.TranscriptionAccumulator{FullText: string(long)},
	}

	values := c.buildFieldValues(state)

	require.Len(t, values["transcript_text"], 2000)
}

func TestListingStatus(t *testing.T) {
	require.Equal(t, "Public", listingStatus("public"))
	require.Equal(t, "Unlisted", listingStatus("unlisted"))
	require.Equal(t, "Unlisted", listingStatus(""))
}

func TestFormatTitle(t *testing.T) {
	info := media.VideoInfo{Title: "Episode One", UploadDate: "2026-01-02"}
	require.Equal(t, "2026-01-02 - Episode One", formatTitle(policy.TitleFormatDefault, info))
	require.Equal(t, "YouTube Video: Episode One", formatTitle(policy.TitleFormatYouTube, info))
}
