package pipeline

import (
	"context"
	"fmt"

	"github.com/archivekit/vaultline/artifact"
	"github.com/archivekit/vaultline/catalog"
	"github.com/archivekit/vaultline/chatclient"
	vlerrors "github.com/archivekit/vaultline/errors"
	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/media"
	"github.com/archivekit/vaultline/metrics"
	"github.com/archivekit/vaultline/policy"
	"github.com/archivekit/vaultline/progress"
)

// phaseValidate re-checks the submission against the policy table one more
// time inside the worker (spec §4.8 VALIDATE) - the intake server already
// validated it, but a retried job must re-resolve the policy rather than
// trust a cached decision from a prior attempt.
func (c *Coordinator) phaseValidate(state *runState) error {
	p, ok := c.Policies.Resolve(state.job.ChannelName)
	if !ok {
		return vlerrors.Unretriable(fmt.Errorf("unknown channel %q", state.job.ChannelName))
	}
	state.policy = p
	state.isChat = media.IsChatMessageURL(state.job.VideoURL) || p.ChatMode

	if !media.IsVideoHostURL(state.job.VideoURL) && !media.IsChatMessageURL(state.job.VideoURL) {
		return vlerrors.Unretriable(fmt.Errorf("video url %q matches neither recognized shape", state.job.VideoURL))
	}
	return nil
}

// phaseDedupProbe implements the dedup probe (spec §4.8 DEDUP_PROBE, §8
// property 6 "the dedup probe never causes a write to the catalog"): a
// match with a transcript already present short-circuits the job; a match
// without one continues, and the matched page id is kept as the row to
// update only when the policy sets DedupUpdatesExisting. Only called for
// video-host submissions - chat-attachment jobs have no video-host URL to
// search by (spec §9 decision 2).
func (c *Coordinator) phaseDedupProbe(ctx context.Context, state *runState) (skip bool, err error) {
	page, found, err := c.Catalog.FindByURL(ctx, state.job.VideoURL)
	if err != nil {
		return false, fmt.Errorf("dedup probe: %w", err)
	}
	if !found {
		return false, nil
	}
	if page.HasTranscript {
		log.Log(state.requestID, "dedup probe matched a fully processed page, skipping", "page_id", page.ID)
		return true, nil
	}

	// spec §9 open question 1: the documented existing behavior still
	// creates a new page here. DedupUpdatesExisting lets a policy opt into
	// updating the matched row instead, without silently changing the
	// default for every channel.
	if state.policy.DedupUpdatesExisting {
		state.policy.Action = policy.ActionUpdateExisting
		state.job.NotionPageID = page.ID
		log.Log(state.requestID, "dedup probe matched an untranscribed page, will update it", "page_id", page.ID)
	}
	return false, nil
}

// phaseInitComponents is a no-op placeholder in this port: every
// collaborator (catalog, object store, acquirer, transcriber, chat client)
// is already constructed once per worker and shared by the Coordinator
// (spec §9 "long-lived per-worker model handle"). The phase exists so the
// ladder in run() names every stage of spec §4.8 explicitly, matching the
// teacher's one-phase-per-pipeline-stage shape even where a stage does no
// per-job work.
func (c *Coordinator) phaseInitComponents(state *runState) {
	log.Log(state.requestID, "components ready", "channel", state.job.ChannelName, "chat_mode", state.isChat)
}

// phaseResolveFolder creates the per-video object-store folder under the
// channel's base folder id, honoring a submitter-supplied override (spec
// §4.8 RESOLVE_FOLDER / CREATE_FOLDER, §6 parent_drive_folder_id).
func (c *Coordinator) phaseResolveFolder(ctx context.Context, state *runState) error {
	parent := state.policy.FolderID
	if state.job.ParentFolderID != "" {
		parent = state.job.ParentFolderID
	}

	name := state.job.TaskID
	if state.videoInfo.SanitizedTitle != "" {
		name = state.videoInfo.SanitizedTitle
	}

	folderID, err := c.Objects.CreateFolder(ctx, state.requestID, name, parent)
	if err != nil {
		return fmt.Errorf("resolving object store folder: %w", err)
	}
	state.folderID = folderID
	return nil
}

// phaseAcquireTranscribe drives the streamed pipeline (spec §4.3 Mode A,
// §4.4 chunked-stream) for a video-host job, or the chat-attachment
// download (spec §4.3 Mode B) followed by whole-file transcription, falling
// back to FALLBACK on a broken-pipe condition from the streamed path.
func (c *Coordinator) phaseAcquireTranscribe(ctx context.Context, state *runState) error {
	if state.isChat {
		return c.acquireChatAttachment(ctx, state)
	}

	info, err := c.Acquirer.ProbeVideoInfo(ctx, state.requestID, state.job.VideoURL)
	if err != nil {
		return fmt.Errorf("probing video info: %w", err)
	}
	state.videoInfo = info

	if err := c.streamAcquireTranscribe(ctx, state); err != nil {
		if !vlerrors.IsPipelineBrokenPipe(err) {
			return err
		}
		log.LogError(state.requestID, "streaming pipeline broke, falling back to whole-file acquisition", err)
		metrics.Metrics.FallbackCount.Inc()
		return c.fallbackAcquireTranscribe(ctx, state)
	}
	return nil
}

// streamAcquireTranscribe is the happy-path streamed pipeline (spec §4.8
// "Streaming acquire + transcribe").
func (c *Coordinator) streamAcquireTranscribe(ctx context.Context, state *runState) error {
	ext := "mkv"
	scratchPath := state.track(c.scratchPath(media.ScratchFilename(state.videoInfo.UploadDate, state.videoInfo.SanitizedTitle, ext)))

	pipeline, err := c.Acquirer.AcquireStreaming(ctx, state.requestID, state.job.VideoURL, scratchPath)
	if err != nil {
		return vlerrors.NewPipelineBrokenPipeError(err)
	}
	defer pipeline.Close()

	tracker := progress.NewTracker(ctx, func(p float64) {
		c.StatusTable.Store(state.requestID, JobStatus{
			TaskID: state.requestID, Status: StatusRunning, Phase: "transcribing", Attempt: state.job.Attempt,
			Result: map[string]any{"progress": p},
		})
	})
	defer tracker.Stop()

	counter := progress.NewReadCounter(pipeline.PCM())
	expectedBytes := uint64(state.videoInfo.DurationSecs * float64(c.Transcriber.SampleRate) * 2)
	tracker.Track(counter.Count, expectedBytes)

	acc, err := c.Transcriber.TranscribeStream(ctx, counter, "", nil)
	if err != nil {
		return vlerrors.NewPipelineBrokenPipeError(err)
	}

	if werr := pipeline.Wait(); werr != nil {
		return vlerrors.NewPipelineBrokenPipeError(fmt.Errorf("transcoder exited: %w (stderr: %s)", werr, pipeline.Warnings()))
	}
	if !acc.StreamCompleted {
		return vlerrors.NewPipelineBrokenPipeError(fmt.Errorf("pcm stream ended without completing"))
	}

	state.videoPath = pipeline.ScratchPath
	state.acc = acc
	state.processingMode = "streaming"
	state.warnings = pipeline.Warnings()
	return nil
}

// fallbackAcquireTranscribe is the sequential path (spec §4.8 FALLBACK):
// two independent whole-file downloads plus whole-file transcription,
// guaranteeing a result when the combined pipe cannot be sustained.
func (c *Coordinator) fallbackAcquireTranscribe(ctx context.Context, state *runState) error {
	videoPath := state.track(c.scratchPath(media.ScratchFilename(state.videoInfo.UploadDate, state.videoInfo.SanitizedTitle, "mp4")))
	audioPath := state.track(c.scratchPath(media.ScratchFilename(state.videoInfo.UploadDate, state.videoInfo.SanitizedTitle, "wav")))

	if err := c.Acquirer.AcquireWholeFileVideo(ctx, state.requestID, state.job.VideoURL, videoPath); err != nil {
		return fmt.Errorf("fallback video download: %w", err)
	}
	if err := c.Acquirer.AcquireWholeFileAudio(ctx, state.requestID, state.job.VideoURL, audioPath); err != nil {
		return fmt.Errorf("fallback audio download: %w", err)
	}

	acc, err := c.Transcriber.Transcribe(ctx, audioPath, "")
	if err != nil {
		return fmt.Errorf("fallback transcription: %w", err)
	}

	state.videoPath = videoPath
	state.acc = acc
	state.processingMode = "fallback"
	return nil
}

// acquireChatAttachment implements Mode B end to end (spec §4.3 Mode B):
// parse the URL, fetch the message, download its first video attachment,
// probe its duration, and transcribe whole-file (chat messages carry no
// extractor metadata, so there is no streamed path for them).
func (c *Coordinator) acquireChatAttachment(ctx context.Context, state *runState) error {
	guildID, channelID, messageID, ok := chatclient.ParseMessageURL(state.job.VideoURL)
	if !ok {
		return vlerrors.Unretriable(fmt.Errorf("chat message url %q did not parse", state.job.VideoURL))
	}

	msg, err := c.Chat.FetchMessage(ctx, guildID, channelID, messageID)
	if err != nil {
		return fmt.Errorf("fetching chat message: %w", err)
	}
	state.chatMsg = msg

	attachment, ok := msg.FirstVideoAttachment()
	if !ok {
		return vlerrors.Unretriable(fmt.Errorf("chat message %s has no video attachment", messageID))
	}

	uploadDate := msg.Timestamp.Format("2006-01-02")
	title := attachment.Filename
	sanitized := media.Sanitize(title)
	scratchPath := state.track(c.scratchPath(media.ScratchFilename(uploadDate, sanitized, "mp4")))

	file, err := c.Acquirer.DownloadChatAttachment(ctx, state.requestID, attachment.URL, scratchPath)
	if err != nil {
		return fmt.Errorf("downloading chat attachment: %w", err)
	}

	durationSecs, resolution, err := media.ProbeFileInfo(ctx, file.Path)
	if err != nil {
		log.LogError(state.requestID, "probing chat attachment failed, continuing without duration/resolution", err)
	}

	state.videoInfo = media.VideoInfo{
		Title:          title,
		SanitizedTitle: sanitized,
		UploadDate:     uploadDate,
		VideoID:        attachment.Filename,
		Channel:        msg.ChannelName,
		DurationSecs:   durationSecs,
		Availability:   "unlisted",
		Resolution:     resolution,
	}
	state.videoPath = file.Path

	acc, err := c.Transcriber.Transcribe(ctx, file.Path, "")
	if err != nil {
		return fmt.Errorf("transcribing chat attachment: %w", err)
	}
	state.acc = acc
	state.processingMode = "chat-attachment"
	return nil
}

// phaseAssembleArtifacts writes the plain-text transcript and, when any
// segments exist, the SRT subtitles (spec §4.8 ASSEMBLE_ARTIFACTS, §8
// "zero-segment transcription must still produce a .txt").
func (c *Coordinator) phaseAssembleArtifacts(state *runState) error {
	textPath := state.track(c.scratchPath(media.ScratchFilename(state.videoInfo.UploadDate, state.videoInfo.SanitizedTitle, "txt")))
	if _, err := artifact.WriteText(textPath, state.acc.FullText); err != nil {
		return fmt.Errorf("writing transcript text: %w", err)
	}
	state.textPath = textPath

	if len(state.acc.Segments) > 0 {
		srtPath := state.track(c.scratchPath(media.ScratchFilename(state.videoInfo.UploadDate, state.videoInfo.SanitizedTitle, "srt")))
		if _, err := artifact.WriteSRT(srtPath, state.acc.Segments); err != nil {
			return fmt.Errorf("writing subtitles: %w", err)
		}
		state.srtPath = srtPath
	}
	return nil
}

// phaseCompress is best-effort (spec §4.8 COMPRESS): mkv is remuxed to mp4
// first, then optionally re-encoded unless disabled globally or the policy
// opts out. A compression failure keeps the original file and only logs a
// warning - it must never fail the job.
func (c *Coordinator) phaseCompress(ctx context.Context, state *runState) {
	if state.isChat {
		return
	}
	if hasSuffix(state.videoPath, ".mkv") {
		mp4Path := state.track(withExt(state.videoPath, "mp4"))
		if err := c.Acquirer.ConvertMKVToMP4(ctx, state.videoPath, mp4Path); err != nil {
			log.LogError(state.requestID, "remux to mp4 failed, keeping mkv", err)
		} else {
			state.videoPath = mp4Path
		}
	}

	if !c.CompressionEnabled || state.policy.SkipCompression {
		return
	}

	compressedPath := state.track(withSuffix(state.videoPath, "-compressed"))
	if err := c.Acquirer.CompressVideo(ctx, state.videoPath, compressedPath, c.CompressionCRF, c.CompressionPreset, c.CompressionAudioBitrate); err != nil {
		log.LogError(state.requestID, "compression failed, keeping original video", err)
		return
	}
	state.videoPath = compressedPath
}

// phaseUploadAtomic uploads every artifact the job produced (spec §4.8
// UPLOAD_ATOMIC); "atomic" here means all-or-nothing at the job level, not
// a single filesystem operation - a failed upload fails the whole attempt
// and PUBLISH_CATALOG never runs with partial artifacts.
func (c *Coordinator) phaseUploadAtomic(ctx context.Context, state *runState) error {
	videoFile := media.MediaFile{Path: state.videoPath, Filename: baseName(state.videoPath), Kind: media.KindVideo}
	if _, up, err := c.Objects.UploadIfAbsent(ctx, state.requestID, videoFile, state.folderID); err != nil {
		return fmt.Errorf("uploading video: %w", err)
	} else {
		state.videoUpload = &up
	}

	if state.audioPath == "" {
		extractedPath := state.track(withExt(state.videoPath, "mp3"))
		if _, err := c.Acquirer.ExtractAudio(ctx, state.videoPath, extractedPath, c.CompressionAudioBitrate); err != nil {
			log.LogError(state.requestID, "audio extraction failed, uploading without an audio artifact", err)
		} else {
			state.audioPath = extractedPath
		}
	}
	if state.audioPath != "" {
		audioFile := media.MediaFile{Path: state.audioPath, Filename: baseName(state.audioPath), Kind: media.KindAudio}
		if _, up, err := c.Objects.UploadIfAbsent(ctx, state.requestID, audioFile, state.folderID); err != nil {
			return fmt.Errorf("uploading audio: %w", err)
		} else {
			state.audioUpload = &up
		}
	}

	textFile := media.MediaFile{Path: state.textPath, Filename: baseName(state.textPath), Kind: media.KindTranscriptText}
	if _, up, err := c.Objects.UploadIfAbsent(ctx, state.requestID, textFile, state.folderID); err != nil {
		return fmt.Errorf("uploading transcript text: %w", err)
	} else {
		state.textUpload = &up
	}

	if state.srtPath != "" {
		srtFile := media.MediaFile{Path: state.srtPath, Filename: baseName(state.srtPath), Kind: media.KindTranscriptSubtitles}
		if _, up, err := c.Objects.UploadIfAbsent(ctx, state.requestID, srtFile, state.folderID); err != nil {
			return fmt.Errorf("uploading subtitles: %w", err)
		} else {
			state.srtUpload = &up
		}
	}
	return nil
}

// phasePublishCatalog builds the logical field bundle and dispatches it
// through the channel policy's field map to exactly one of create_page or
// update_properties, then appends the transcript toggle block (spec §4.8
// PUBLISH_CATALOG).
func (c *Coordinator) phasePublishCatalog(ctx context.Context, state *runState) error {
	values := c.buildFieldValues(state)

	switch state.policy.Action {
	case policy.ActionCreateNew:
		pageID, err := c.Catalog.CreatePage(ctx, state.policy.DestinationID, state.policy.FieldMap, values)
		if err != nil {
			return fmt.Errorf("creating catalog page: %w", err)
		}
		if err := c.Catalog.AppendTranscriptToggleBlock(ctx, pageID, state.acc.FullText); err != nil {
			log.LogError(state.requestID, "appending transcript toggle failed", err)
		}
		if state.job.NotionPageID != "" {
			// write the new page's URL back into the submitter's row's
			// "transcript" URL column (spec §4.8 PUBLISH_CATALOG).
			back := catalog.FieldValues{"transcript_url": pageID}
			if err := c.Catalog.UpdateProperties(ctx, state.job.NotionPageID, policy.FieldMap{
				{LogicalKey: "transcript_url", Column: "Transcript", Type: policy.FieldURL},
			}, back); err != nil {
				log.LogError(state.requestID, "writing back transcript url to submitter row failed", err)
			}
		}
	case policy.ActionUpdateExisting:
		pageID := state.job.NotionPageID
		if pageID == "" {
			return vlerrors.Unretriable(fmt.Errorf("update-existing policy %q requires a target page id", state.policy.Name))
		}
		if err := c.Catalog.UpdateProperties(ctx, pageID, state.policy.FieldMap, values); err != nil {
			return fmt.Errorf("updating catalog page: %w", err)
		}
		if err := c.Catalog.AppendTranscriptToggleBlock(ctx, pageID, state.acc.FullText); err != nil {
			log.LogError(state.requestID, "appending transcript toggle failed", err)
		}
	}
	return nil
}

// buildFieldValues assembles the logical-key -> value bundle from
// VideoInfo, artifact URLs, channel, and accumulated transcription (spec
// §4.8 PUBLISH_CATALOG).
func (c *Coordinator) buildFieldValues(state *runState) catalog.FieldValues {
	values := catalog.FieldValues{
		"title":             formatTitle(state.policy.TitleFormat, state.videoInfo),
		"channel":           state.job.ChannelName,
		"upload_date":       state.videoInfo.UploadDate,
		"duration_seconds":  state.videoInfo.DurationSecs,
		"transcript_text":   truncateForInline(state.acc.FullText, 2000),
		"status":            state.policy.StatusValue,
	}
	if !state.isChat {
		values["video_url"] = state.job.VideoURL
		values["youtube_listing_status"] = listingStatus(state.videoInfo.Availability)
	}
	if state.videoUpload != nil {
		values["video_file_url"] = catalog.FileValue{Name: state.videoUpload.Name, URL: state.videoUpload.URL}
	}
	if state.audioUpload != nil {
		values["audio_file_url"] = catalog.FileValue{Name: state.audioUpload.Name, URL: state.audioUpload.URL}
	}
	if state.textUpload != nil {
		values["transcript_file_url"] = catalog.FileValue{Name: state.textUpload.Name, URL: state.textUpload.URL}
	}
	if state.srtUpload != nil {
		values["transcript_srt_url"] = catalog.FileValue{Name: state.srtUpload.Name, URL: state.srtUpload.URL}
	}
	return values
}

func listingStatus(availability string) string {
	if availability == "public" {
		return "Public"
	}
	return "Unlisted"
}

func formatTitle(format policy.TitleFormat, info media.VideoInfo) string {
	switch format {
	case policy.TitleFormatYouTube:
		return "YouTube Video: " + info.Title
	default:
		return info.UploadDate + " - " + info.Title
	}
}

func truncateForInline(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func withExt(path, ext string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[:i+1] + ext
		}
		if path[i] == '/' {
			break
		}
	}
	return path + "." + ext
}

func withSuffix(path, suffix string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[:i] + suffix + path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return path + suffix
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// updateStatusLadder writes the best-effort status-ladder value into the
// submitter's row (update-existing policies only, spec §4.8 "Status
// progression"). A write failure must never fail the job.
func (c *Coordinator) updateStatusLadder(ctx context.Context, state *runState, value string) {
	if state.policy.Action != policy.ActionUpdateExisting || state.job.NotionPageID == "" {
		return
	}
	statusKey, ok := state.policy.FieldMap.Lookup("status")
	if !ok {
		return
	}
	values := catalog.FieldValues{"status": value}
	fieldMap := policy.FieldMap{statusKey}
	if err := c.Catalog.UpdateProperties(ctx, state.job.NotionPageID, fieldMap, values); err != nil {
		log.LogError(state.requestID, "status ladder write failed, continuing", err, "status", value)
	}
}

// updateStatusError writes the final "Error" status plus the first line of
// the failure into the process_errors column (spec §4.8, §7 "best-effort:
// a failure to write the status MUST NOT promote to a job failure").
func (c *Coordinator) updateStatusError(ctx context.Context, state *runState, jobErr error) {
	if state.policy.Action != policy.ActionUpdateExisting || state.job.NotionPageID == "" {
		return
	}

	statusKey, hasStatus := state.policy.FieldMap.Lookup("status")
	errKey, hasErrKey := state.policy.FieldMap.Lookup("process_errors")

	fieldMap := policy.FieldMap{}
	values := catalog.FieldValues{}
	if hasStatus {
		fieldMap = append(fieldMap, statusKey)
		values["status"] = "Error"
	}
	if hasErrKey {
		fieldMap = append(fieldMap, errKey)
		values["process_errors"] = firstLine(jobErr.Error())
	}
	if len(fieldMap) == 0 {
		return
	}
	if err := c.Catalog.UpdateProperties(ctx, state.job.NotionPageID, fieldMap, values); err != nil {
		log.LogError(state.requestID, "error status write failed, continuing", err)
	}
}
