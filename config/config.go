package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"
)

var Version string

// Used so that we can generate fixed timestamps in tests
var Clock TimestampGenerator = RealTimestampGenerator{}

// Binaries shelled out to during acquisition and transcription.
var PathExtractorBin = getEnvDefault("EXTRACTOR_BIN", "yt-dlp")
var PathTranscoderBin = getEnvDefault("TRANSCODER_BIN", "ffmpeg")
var PathTranscriberBin = getEnvDefault("TRANSCRIBER_BIN", "whisper-worker")

const DefaultWebhookPort = 8935

// Somewhat arbitrary and conservative ceiling on concurrent jobs accepted by
// the intake server before it starts returning 429s.
var MaxJobsInFlight = getEnvIntDefault("MAX_JOBS_IN_FLIGHT", 8)

// The maximum allowed input file size.
const MaxInputFileSizeBytes = 30 * 1024 * 1024 * 1024 // 30 GiB

var WhisperDevice = getEnvDefault("WHISPER_DEVICE", "cpu")
var WhisperModelDefault = getEnvDefault("WHISPER_MODEL_DEFAULT", "small")
var WhisperModelLocal = getEnvDefault("WHISPER_MODEL_LOCAL", "medium")

var RedisURL = getEnvDefault("REDIS_URL", "redis://localhost:6379/0")

var TaskTimeLimit = getEnvDurationDefault("CELERY_TASK_TIME_LIMIT", 14400*time.Second)
var TaskSoftTimeLimit = getEnvDurationDefault("CELERY_TASK_SOFT_TIME_LIMIT", 14100*time.Second)
var TaskMaxRetries = getEnvIntDefault("CELERY_TASK_MAX_RETRIES", 3)
var TaskRetryDelay = getEnvDurationDefault("CELERY_TASK_RETRY_DELAY", 60*time.Second)
var WorkerConcurrency = getEnvIntDefault("CELERY_WORKER_CONCURRENCY", 1)
var MaxJobsPerWorker = getEnvIntDefault("CELERY_MAX_JOBS_PER_WORKER", 200)

var CompressionEnabled = getEnvBoolDefault("COMPRESSION_ENABLED", true)
var CompressionCRF = getEnvIntDefault("COMPRESSION_CRF", 23)
var CompressionPreset = getEnvDefault("COMPRESSION_PRESET", "medium")
var CompressionAudioBitrate = getEnvDefault("COMPRESSION_AUDIO_BITRATE", "128k")

var StreamingSampleRate = getEnvIntDefault("STREAMING_SAMPLE_RATE", 16000)
var StreamingChunkDuration = getEnvFloatDefault("STREAMING_CHUNK_DURATION", 30.0)
var StreamingMinAudioDuration = getEnvFloatDefault("STREAMING_MIN_AUDIO_DURATION", 5.0)
var StreamingBufferSize = getEnvIntDefault("STREAMING_BUFFER_SIZE", 65536)

var NotionToken = os.Getenv("NOTION_TOKEN")
var DiscordUserToken = os.Getenv("DISCORD_USER_TOKEN")
var DiscordMessageDBID = os.Getenv("DISCORD_MESSAGE_DB_ID")
var VideosDBID = os.Getenv("VIDEOS_DB_ID")
var DriveUploadsDBID = os.Getenv("DRIVE_UPLOADS_DB_ID")

var ObjectStoreURL = getEnvDefault("OBJECT_STORE_URL", "file:///tmp/archivist-store")
var AuditDBDSN = os.Getenv("AUDIT_DB_DSN")

var ScratchDir = getEnvDefault("SCRATCH_DIR", os.TempDir())

var WebhookHost = getEnvDefault("WEBHOOK_HOST", "0.0.0.0")
var WebhookPort = getEnvIntDefault("WEBHOOK_PORT", DefaultWebhookPort)
var WebhookSecret = os.Getenv("WEBHOOK_SECRET")

// MetricsAddr is the internal-only listen address for GET /metrics (spec
// §4.1b "bound to a separate internal-only listen address").
var MetricsAddr = getEnvDefault("METRICS_ADDR", "127.0.0.1:9091")

var RedisStreamName = getEnvDefault("REDIS_STREAM_NAME", "vaultline:jobs")
var RedisConsumerGroup = getEnvDefault("REDIS_CONSUMER_GROUP", "vaultline-workers")
var QueueBackend = getEnvDefault("QUEUE_BACKEND", "redis")

// HTTPInternalAddress is the intake server's own internal listen address,
// used only for logging/diagnostics in this system (the teacher's ffmpeg
// pipeline used it to address itself over HTTP; no component here does).
var HTTPInternalAddress = getEnvDefault("HTTP_INTERNAL_ADDRESS", "127.0.0.1:8936")

var CatalogBaseURL = getEnvDefault("NOTION_BASE_URL", "https://api.notion.com")
var ObjectUploadMaxAttempts = getEnvIntDefault("OBJECT_UPLOAD_MAX_ATTEMPTS", 5)
var ObjectUploadBaseDelay = getEnvDurationDefault("OBJECT_UPLOAD_BASE_DELAY_SECS", 1*time.Second)

var DiscordAPIBaseURL = getEnvDefault("DISCORD_API_BASE_URL", "https://discord.com/api/v10")

// CatalogDatabaseIDs names the "two well-known destination databases" the
// dedup probe searches (spec §4.6 find_by_url).
func CatalogDatabaseIDs() []string {
	var ids []string
	for _, id := range []string{VideosDBID, DriveUploadsDBID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// FolderIDs collects the per-channel object-store folder ids and the two
// database ids the Channel Policy Table needs at startup (spec §6
// DRIVE_FOLDER_*), keyed the same way policy.NewTable expects.
func FolderIDs() map[string]string {
	ids := map[string]string{
		"VIDEOS_DB_ID":        VideosDBID,
		"DRIVE_UPLOADS_DB_ID": DriveUploadsDBID,
	}
	for _, channel := range []string{"market-outlook", "weekly-roundup", "audit-process"} {
		env := "DRIVE_FOLDER_" + strings.ToUpper(strings.ReplaceAll(channel, "-", "_"))
		if v := os.Getenv(env); v != "" {
			ids[channel] = v
		}
	}
	return ids
}

func getEnvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatDefault(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// RandomTrailer returns a short random hex suffix, used for job ids and
// scratch-filename disambiguation the way the teacher uses it for request ids.
func RandomTrailer(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		// Never happens with crypto/rand on a sane OS; fall back to a fixed
		// value rather than panicking a worker over id generation.
		return "00000000"[:n]
	}
	return hex.EncodeToString(b)[:n]
}
