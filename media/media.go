// Package media implements the Media Acquirer (spec §4.3): video-host and
// chat-attachment acquisition, audio extraction, compression, and remuxing.
//
// Grounded on the teacher's video/transmux.go (ffmpeg-go fluent calls and
// raw exec.CommandContext pipelines - both styles are kept here, used where
// each fits) and video/probe.go (go-ffprobe.v2 + cenkalti/backoff retry),
// combined with the Python predecessor's youtube_downloader.py client
// spoofing arguments and tasks.py's two-stage pipe-to-pipe process wiring.
package media

import (
	"regexp"
	"strings"
)

// Kind identifies what role a MediaFile plays in a job's artifact set
// (spec §3 MediaFile).
type Kind string

const (
	KindVideo               Kind = "video"
	KindAudio               Kind = "audio"
	KindTranscriptText      Kind = "transcript-text"
	KindTranscriptSubtitles Kind = "transcript-subtitles"
	KindLink                Kind = "link"
)

// MediaFile is a single on-disk (or, once uploaded, remote-only) artifact.
// Path is empty once the underlying scratch file has been removed; the
// struct itself is retained so the coordinator can still report its kind
// and, after upload, its URL.
type MediaFile struct {
	Path     string
	Filename string
	Kind     Kind
	URL      string
}

// VideoInfo describes the source video as probed before acquisition begins
// (spec §3 VideoInfo).
type VideoInfo struct {
	Title          string
	SanitizedTitle string
	UploadDate     string // YYYY-MM-DD
	VideoID        string
	Channel        string
	DurationSecs   float64
	Availability   string // "public" | "unlisted"
	Resolution     string
}

var sanitizeDisallowed = regexp.MustCompile(`[^A-Za-z0-9 _-]`)

// Sanitize implements the filename sanitization rule of spec §6: any
// character that is not alphanumeric, space, dash, or underscore becomes
// "_". Tested as a universal invariant in spec §8 (property 4).
func Sanitize(title string) string {
	return sanitizeDisallowed.ReplaceAllString(title, "_")
}

// ScratchFilename builds the "<YYYY-MM-DD> - <sanitized title>.<ext>"
// naming convention of spec §6.
func ScratchFilename(uploadDate, sanitizedTitle, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return uploadDate + " - " + sanitizedTitle + "." + ext
}

var videoHostURLPattern = regexp.MustCompile(`^https?://(www\.)?(youtube\.com/watch\?v=|youtu\.be/)[\w-]{6,}`)

// IsVideoHostURL is the pure predicate recognizing Mode A (video-host) URLs
// (spec §3 Submission invariant, §4.1 validation rule 3).
func IsVideoHostURL(u string) bool {
	return videoHostURLPattern.MatchString(strings.TrimSpace(u))
}

var chatMessageURLPattern = regexp.MustCompile(`^https?://(ptb\.|canary\.)?discord(app)?\.com/channels/(\d+)/(\d+)/(\d+)`)

// IsChatMessageURL is the pure predicate recognizing Mode B (chat-message)
// URLs (spec §3 Submission invariant, §4.1 validation rule 3).
func IsChatMessageURL(u string) bool {
	return chatMessageURLPattern.MatchString(strings.TrimSpace(u))
}
