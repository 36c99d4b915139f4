package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/archivekit/vaultline/errors"
	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/media"
	"github.com/archivekit/vaultline/pipeline"
	"github.com/archivekit/vaultline/queue"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"
)

// webhookRequest is the wire shape of POST /webhook/process-video (spec
// §4.1, §6), carrying both the current and legacy field names.
type webhookRequest struct {
	NotionPageID   string `json:"notion_page_id"`
	DiscordEntryID string `json:"discord_entry_id"`
	VideoURL       string `json:"video_url"`
	YoutubeURL     string `json:"youtube_url"`
	ChannelName    string `json:"channel_name"`
	Channel        string `json:"channel"`
	ParentFolderID string `json:"parent_drive_folder_id"`
}

// canonicalize resolves the legacy aliases into the single internal shape
// (spec §9 "submission schema compatibility": canonicalize immediately at
// the HTTP boundary, never branch on alias names downstream).
func (r webhookRequest) canonicalize() queue.Job {
	pageID := r.NotionPageID
	if pageID == "" {
		pageID = r.DiscordEntryID
	}
	videoURL := r.VideoURL
	if videoURL == "" {
		videoURL = r.YoutubeURL
	}
	channel := r.ChannelName
	if channel == "" {
		channel = r.Channel
	}
	return queue.Job{
		NotionPageID:   pageID,
		VideoURL:       videoURL,
		ChannelName:    channel,
		ParentFolderID: r.ParentFolderID,
	}
}

func hasJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	t, _, err := mime.ParseMediaType(ct)
	return err == nil && t == "application/json"
}

// ProcessVideo serves POST /webhook/process-video (spec §4.1): validates
// the submission, classifies the URL, and enqueues a job synchronously -
// the handler returns only after the queue has accepted it.
func (d *Collection) ProcessVideo() httprouter.Handle {
	schema := inputSchemasCompiled["WebhookProcessVideo"]

	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		if !hasJSONContentType(req) {
			errors.WriteHTTPUnsupportedMediaType(w, "requires application/json content type", nil)
			return
		}

		payload, err := io.ReadAll(req.Body)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "cannot read request body", err)
			return
		}

		result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "body schema validation failed", err)
			return
		}
		if !result.Valid() {
			errors.WriteHTTPUnprocessableEntity(w, "invalid webhook payload", fmt.Errorf("%s", result.Errors()))
			return
		}

		var body webhookRequest
		if err := json.Unmarshal(payload, &body); err != nil {
			errors.WriteHTTPUnprocessableEntity(w, "invalid webhook payload", err)
			return
		}

		job := body.canonicalize()

		// Validation rule 1 (spec §4.1): all three logical fields resolved.
		if job.NotionPageID == "" || job.VideoURL == "" || job.ChannelName == "" {
			errors.WriteHTTPUnprocessableEntity(w, "notion_page_id, video_url, and channel_name are all required", nil)
			return
		}

		// Validation rule 2: channel_name must exist in the policy table.
		if _, ok := d.Policies.Resolve(job.ChannelName); !ok {
			errors.WriteHTTPUnprocessableEntity(w, fmt.Sprintf("unknown channel %q", job.ChannelName), nil)
			return
		}

		// Validation rule 3: video_url matches one of the two recognized shapes.
		if !media.IsVideoHostURL(job.VideoURL) && !media.IsChatMessageURL(job.VideoURL) {
			errors.WriteHTTPUnprocessableEntity(w, "video_url matches neither recognized URL shape", nil)
			return
		}

		job.TaskID = uuid.New().String()
		job.EnqueuedAt = time.Now()

		log.AddContext(job.TaskID, "channel", job.ChannelName)
		log.Log(job.TaskID, "webhook accepted", "video_url", job.VideoURL)

		if err := d.Queue.Enqueue(req.Context(), job); err != nil {
			errors.WriteHTTPInternalServerError(w, "failed to enqueue job", err)
			return
		}

		d.StatusTable.Store(job.TaskID, pipeline.JobStatus{
			TaskID:    job.TaskID,
			Status:    pipeline.StatusPending,
			UpdatedAt: job.EnqueuedAt,
		})

		resp := map[string]any{
			"status":    "queued",
			"message":   "job accepted",
			"task_id":   job.TaskID,
			"timestamp": job.EnqueuedAt.UTC().Format(time.RFC3339),
			"data": map[string]any{
				"channel_name": job.ChannelName,
				"video_url":    job.VideoURL,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.LogError(job.TaskID, "failed to write webhook response", err)
		}
	}
}
