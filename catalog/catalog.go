// Package catalog implements the Catalog Client (spec §4.6): a thin typed
// layer over the external catalog's REST API, with typed field builders
// dispatched through a job's policy.FieldMap rather than hard-coded column
// names.
//
// Grounded on the teacher's clients/callback_client.go retry posture
// (hashicorp/go-retryablehttp, a fixed small RetryMax, a tight per-call
// timeout) and the Python predecessor's notion_client.py field semantics.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/metrics"
	"github.com/archivekit/vaultline/policy"
	"github.com/hashicorp/go-retryablehttp"
)

const maxTextPropertyLength = 2000

// Page is a single catalog row/page as returned by GetPage / FindByURL.
type Page struct {
	ID            string
	Properties    map[string]any
	HasTranscript bool
}

// Client is a REST client for the catalog, scoped to the two well-known
// destination databases the spec names (spec §4.6 "the two well-known
// destination databases").
type Client struct {
	httpClient  *http.Client
	baseURL     string
	authToken   string
	databaseIDs []string
}

// New builds a Client with the teacher's retry posture: a small bounded
// RetryMax and a short per-attempt timeout, since the catalog API
// rate-limits aggressively (spec §4.6).
func New(baseURL, authToken string, databaseIDs []string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 300 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.CheckRetry = metrics.CatalogHTTPRetryHook
	rc.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	rc.Logger = nil

	return &Client{
		httpClient:  rc.StandardClient(),
		baseURL:     strings.TrimRight(baseURL, "/"),
		authToken:   authToken,
		databaseIDs: databaseIDs,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling catalog request body: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.Metrics.CatalogClient.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Metrics.CatalogClient.FailureCount.WithLabelValues(method, "0").Inc()
		return nil, fmt.Errorf("catalog request %s %s failed: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		metrics.Metrics.CatalogClient.FailureCount.WithLabelValues(method, fmt.Sprint(resp.StatusCode)).Inc()
	}
	return resp, nil
}

// GetPage fetches a page by id.
func (c *Client) GetPage(ctx context.Context, pageID string) (Page, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/pages/"+pageID, nil)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Page{}, fmt.Errorf("get page %q: HTTP %d", pageID, resp.StatusCode)
	}

	var raw struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Page{}, fmt.Errorf("decoding catalog page: %w", err)
	}
	return Page{ID: raw.ID, Properties: raw.Properties, HasTranscript: hasTranscript(raw.Properties)}, nil
}

// FieldValues is the coordinator's logical-key -> value map for one publish
// (spec §4.6 "iterates its logical-key -> value pairs").
type FieldValues map[string]any

// buildProperties walks fieldMap and dispatches each present, non-nil
// logical value to its typed builder; unknown logical keys are ignored
// (spec §4.6).
func buildProperties(fieldMap policy.FieldMap, values FieldValues) map[string]any {
	props := make(map[string]any, len(fieldMap))
	for _, entry := range fieldMap {
		v, ok := values[entry.LogicalKey]
		if !ok || v == nil {
			continue
		}
		props[entry.Column] = buildField(entry.Type, v)
	}
	return props
}

func buildField(t policy.FieldType, v any) any {
	switch t {
	case policy.FieldTitle:
		return map[string]any{"title": []map[string]any{{"text": map[string]any{"content": fmt.Sprint(v)}}}}
	case policy.FieldText:
		return map[string]any{"rich_text": []map[string]any{{"text": map[string]any{"content": truncate(fmt.Sprint(v), maxTextPropertyLength)}}}}
	case policy.FieldURL:
		return map[string]any{"url": fmt.Sprint(v)}
	case policy.FieldFile:
		name, url := fmt.Sprint(v), fmt.Sprint(v)
		if df, ok := v.(FileValue); ok {
			name, url = df.Name, df.URL
		}
		return map[string]any{"files": []map[string]any{{"name": name, "external": map[string]any{"url": url}}}}
	case policy.FieldSelect:
		return map[string]any{"select": map[string]any{"name": fmt.Sprint(v)}}
	case policy.FieldDate:
		return map[string]any{"date": map[string]any{"start": fmt.Sprint(v)}}
	case policy.FieldNumber:
		return map[string]any{"number": v}
	default:
		return nil
	}
}

// FileValue lets a caller pass a display name distinct from the URL for a
// FieldFile entry; any other type is used as both name and url.
type FileValue struct {
	Name string
	URL  string
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// CreatePage creates a new page under destinationID with the given field
// values, dispatched through fieldMap (spec §4.6 create_page).
func (c *Client) CreatePage(ctx context.Context, destinationID string, fieldMap policy.FieldMap, values FieldValues) (string, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": destinationID},
		"properties": buildProperties(fieldMap, values),
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/pages", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("create page: HTTP %d", resp.StatusCode)
	}
	var raw struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	return raw.ID, nil
}

// UpdateProperties patches an existing page's properties, dispatched
// through fieldMap (spec §4.6 update_properties).
func (c *Client) UpdateProperties(ctx context.Context, pageID string, fieldMap policy.FieldMap, values FieldValues) error {
	body := map[string]any{"properties": buildProperties(fieldMap, values)}
	resp, err := c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("update page %q: HTTP %d", pageID, resp.StatusCode)
	}
	return nil
}

// AppendTranscriptToggleBlock splits text into <=2000-character chunks at
// whitespace boundaries and appends a single collapsible "Transcript" block
// containing those chunks as paragraphs (spec §4.6 append_transcript_toggle).
func (c *Client) AppendTranscriptToggleBlock(ctx context.Context, pageID, text string) error {
	chunks := chunkText(text, maxTextPropertyLength)
	paragraphs := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		paragraphs = append(paragraphs, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []map[string]any{{"text": map[string]any{"content": chunk}}},
			},
		})
	}

	body := map[string]any{
		"children": []map[string]any{{
			"object": "block",
			"type":   "toggle",
			"toggle": map[string]any{
				"rich_text": []map[string]any{{"text": map[string]any{"content": "Transcript"}}},
				"children":  paragraphs,
			},
		}},
	}
	resp, err := c.do(ctx, http.MethodPatch, "/v1/blocks/"+pageID+"/children", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("append transcript toggle to %q: HTTP %d", pageID, resp.StatusCode)
	}
	return nil
}

// chunkText splits s into pieces of at most max characters, breaking only
// at whitespace boundaries so words are never split mid-token.
func chunkText(s string, max int) []string {
	if len(s) <= max {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	var chunks []string
	words := strings.Fields(s)
	var b strings.Builder
	for _, w := range words {
		if b.Len() > 0 && b.Len()+1+len(w) > max {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

func hasTranscript(properties map[string]any) bool {
	for _, key := range []string{"Transcript File", "Transcript SRT File"} {
		if v, ok := properties[key]; ok && !isEmptyFileProperty(v) {
			return true
		}
	}
	return false
}

func isEmptyFileProperty(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return true
	}
	files, ok := m["files"].([]any)
	return !ok || len(files) == 0
}

// FindByURL queries the two well-known destination databases, filtering on
// the URL column, and returns the first match together with a
// has_transcript flag derived from whether either transcript file property
// is non-empty (spec §4.6 find_by_url).
func (c *Client) FindByURL(ctx context.Context, videoURL string) (Page, bool, error) {
	for _, dbID := range c.databaseIDs {
		body := map[string]any{
			"filter": map[string]any{
				"property": "Video Link",
				"url":      map[string]any{"equals": videoURL},
			},
		}
		resp, err := c.do(ctx, http.MethodPost, "/v1/databases/"+dbID+"/query", body)
		if err != nil {
			return Page{}, false, err
		}

		var raw struct {
			Results []struct {
				ID         string         `json:"id"`
				Properties map[string]any `json:"properties"`
			} `json:"results"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&raw)
		resp.Body.Close()
		if decodeErr != nil {
			return Page{}, false, decodeErr
		}
		if len(raw.Results) > 0 {
			r := raw.Results[0]
			log.LogNoRequestID("dedup probe matched existing catalog page", "page_id", r.ID, "database_id", dbID)
			return Page{ID: r.ID, Properties: r.Properties, HasTranscript: hasTranscript(r.Properties)}, true, nil
		}
	}
	return Page{}, false, nil
}
