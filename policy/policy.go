// Package policy implements the Channel Policy Table (spec §4.7): a static,
// read-only-after-startup mapping from a channel identifier to the action,
// destination, folder, and field map that govern how a job for that channel
// is published to the catalog.
//
// The table is data, not code: a BasePolicy plus named per-channel overrides
// merged once at startup, mirroring the teacher's config package's
// package-level var style (see config/config.go) rather than a per-job
// re-derivation.
package policy

import "fmt"

// Action is the per-channel publication strategy.
type Action string

const (
	ActionCreateNew      Action = "create-new"
	ActionUpdateExisting Action = "update-existing"
)

// FieldType is the implied wire type of a logical field, consulted by the
// catalog package's typed field builders (spec §4.6).
type FieldType string

const (
	FieldTitle  FieldType = "title"
	FieldText   FieldType = "text"
	FieldURL    FieldType = "url"
	FieldFile   FieldType = "file"
	FieldSelect FieldType = "select"
	FieldDate   FieldType = "date"
	FieldNumber FieldType = "number"
)

// TitleFormat selects how a video's display title is rendered before being
// written to the catalog's title column.
type TitleFormat string

const (
	TitleFormatDefault TitleFormat = "default"
	TitleFormatYouTube TitleFormat = "youtube"
)

// FieldMapEntry binds one logical key used internally by the coordinator to
// a concrete catalog column name and its implied type. Re-architecture note
// (spec §9): this replaces dynamic attribute dispatch with a plain list the
// coordinator walks once per publish.
type FieldMapEntry struct {
	LogicalKey string
	Column     string
	Type       FieldType
}

// FieldMap is an ordered set of FieldMapEntry; every logical key appears at
// most once.
type FieldMap []FieldMapEntry

// Lookup returns the entry for a logical key, if the policy's field map
// carries one. Unknown logical keys are simply absent - the coordinator
// ignores values for keys with no entry (spec §4.6).
func (m FieldMap) Lookup(logicalKey string) (FieldMapEntry, bool) {
	for _, e := range m {
		if e.LogicalKey == logicalKey {
			return e, true
		}
	}
	return FieldMapEntry{}, false
}

// ChannelPolicy is the fully resolved, immutable configuration for one
// channel (spec §3 ChannelPolicy, §4.7).
type ChannelPolicy struct {
	Name             string
	Action           Action
	DestinationID    string
	FolderID         string
	FieldMap         FieldMap
	StatusValue      string
	TitleFormat      TitleFormat
	SkipCompression  bool
	ChatMode         bool
	// DedupUpdatesExisting is an open-question flag (spec §9 decision 1):
	// when true, a dedup match without a transcript updates the existing
	// row instead of creating a duplicate. Defaults to false, preserving
	// the documented existing behavior rather than silently changing it.
	DedupUpdatesExisting bool
}

// Validate checks the invariant "action = create-new ⇒ destination id
// present" (spec §3).
func (p ChannelPolicy) Validate() error {
	if p.Action == ActionCreateNew && p.DestinationID == "" {
		return fmt.Errorf("policy %q: action create-new requires a destination id", p.Name)
	}
	if p.Action != ActionCreateNew && p.Action != ActionUpdateExisting {
		return fmt.Errorf("policy %q: unknown action %q", p.Name, p.Action)
	}
	seen := make(map[string]bool, len(p.FieldMap))
	for _, e := range p.FieldMap {
		if seen[e.LogicalKey] {
			return fmt.Errorf("policy %q: duplicate logical key %q in field map", p.Name, e.LogicalKey)
		}
		seen[e.LogicalKey] = true
	}
	return nil
}

// Table is the process-wide, read-only-after-startup policy table.
type Table struct {
	policies map[string]ChannelPolicy
}

// Resolve performs a pure lookup by channel name (spec §4.7).
func (t *Table) Resolve(channel string) (ChannelPolicy, bool) {
	p, ok := t.policies[channel]
	return p, ok
}

// Names returns the known channel names, for diagnostics and tests.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.policies))
	for n := range t.policies {
		names = append(names, n)
	}
	return names
}

// baseFieldMap mirrors the source's `_VIDEOS_DB_BASE_CONFIG` spread pattern
// (spec §9): shared logical-key -> column bindings that every catalog-backed
// channel inherits before per-channel overrides are applied.
var baseFieldMap = FieldMap{
	{LogicalKey: "title", Column: "Name", Type: FieldTitle},
	{LogicalKey: "video_url", Column: "Video Link", Type: FieldURL},
	{LogicalKey: "video_file_url", Column: "Video File Link", Type: FieldFile},
	{LogicalKey: "audio_file_url", Column: "Audio File Link", Type: FieldFile},
	{LogicalKey: "transcript_file_url", Column: "Transcript File", Type: FieldFile},
	{LogicalKey: "transcript_srt_url", Column: "Transcript SRT File", Type: FieldFile},
	{LogicalKey: "transcript_text", Column: "Transcript", Type: FieldText},
	{LogicalKey: "channel", Column: "Channel", Type: FieldSelect},
	{LogicalKey: "upload_date", Column: "Date", Type: FieldDate},
	{LogicalKey: "duration_seconds", Column: "Duration", Type: FieldNumber},
	{LogicalKey: "youtube_listing_status", Column: "Listing Status", Type: FieldSelect},
}

// withOverrides returns a copy of baseFieldMap with the given entries
// replacing (by logical key) or appending to the base.
func withOverrides(overrides ...FieldMapEntry) FieldMap {
	out := make(FieldMap, 0, len(baseFieldMap)+len(overrides))
	out = append(out, baseFieldMap...)
	for _, o := range overrides {
		replaced := false
		for i, e := range out {
			if e.LogicalKey == o.LogicalKey {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}

// withoutKeys drops logical keys from a field map entirely - used for the
// chat-attachment channels that have no video-host URL (spec §9 decision 2).
func withoutKeys(m FieldMap, keys ...string) FieldMap {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	out := make(FieldMap, 0, len(m))
	for _, e := range m {
		if !drop[e.LogicalKey] {
			out = append(out, e)
		}
	}
	return out
}

// NewTable builds the Channel Policy Table from the static per-channel
// definitions below, merged with folder ids supplied via environment
// variables (spec §6 DRIVE_FOLDER_*), once at process startup.
func NewTable(folderIDs map[string]string) (*Table, error) {
	policies := map[string]ChannelPolicy{
		"market-outlook": {
			Name:          "market-outlook",
			Action:        ActionCreateNew,
			DestinationID: folderIDs["VIDEOS_DB_ID"],
			FolderID:      folderIDs["market-outlook"],
			FieldMap:      withOverrides(),
			StatusValue:   "complete",
			TitleFormat:   TitleFormatDefault,
		},
		"weekly-roundup": {
			Name:          "weekly-roundup",
			Action:        ActionCreateNew,
			DestinationID: folderIDs["VIDEOS_DB_ID"],
			FolderID:      folderIDs["weekly-roundup"],
			FieldMap:      withOverrides(),
			StatusValue:   "complete",
			TitleFormat:   TitleFormatDefault,
		},
		"audit-process": {
			Name:   "audit-process",
			Action: ActionUpdateExisting,
			// update-existing policies carry no destination id: the
			// submission itself names the row to update.
			FolderID: folderIDs["audit-process"],
			FieldMap: withoutKeys(
				withOverrides(
					FieldMapEntry{LogicalKey: "status", Column: "Transcript Process Status", Type: FieldSelect},
					FieldMapEntry{LogicalKey: "process_errors", Column: "ProcessErrors", Type: FieldText},
					FieldMapEntry{LogicalKey: "video_file_url", Column: "Video FIle Link", Type: FieldFile},
				),
				// chat-sourced jobs have no video-host URL (spec §9
				// decision 2): omit it rather than dispatch a null value.
				"video_url",
			),
			StatusValue: "Complete",
			TitleFormat: TitleFormatDefault,
			ChatMode:    true,
		},
	}

	for name, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		policies[name] = p
	}

	return &Table{policies: policies}, nil
}
