package handlers

import "github.com/xeipuuv/gojsonschema"

// WebhookProcessVideoRequestSchemaDefinition is the structural schema for
// POST /webhook/process-video (spec §4.1, §6): every logical field may
// arrive under its current name or its legacy alias, so the schema only
// requires that at least one name in each alias pair be present as a
// non-empty string; field-level business validation (channel existence,
// URL shape) happens in webhook.go after alias resolution.
var WebhookProcessVideoRequestSchemaDefinition string = `{
	"type": "object",
	"properties": {
		"notion_page_id": { "type": "string", "minLength": 1 },
		"discord_entry_id": { "type": "string", "minLength": 1 },
		"video_url": { "type": "string", "minLength": 1 },
		"youtube_url": { "type": "string", "minLength": 1 },
		"channel_name": { "type": "string", "minLength": 1 },
		"channel": { "type": "string", "minLength": 1 },
		"parent_drive_folder_id": { "type": "string" }
	},
	"allOf": [
		{ "anyOf": [ { "required": [ "notion_page_id" ] }, { "required": [ "discord_entry_id" ] } ] },
		{ "anyOf": [ { "required": [ "video_url" ] }, { "required": [ "youtube_url" ] } ] },
		{ "anyOf": [ { "required": [ "channel_name" ] }, { "required": [ "channel" ] } ] }
	]
}`

var inputSchemas map[string]string = map[string]string{
	"WebhookProcessVideo": WebhookProcessVideoRequestSchemaDefinition,
}

func compileJsonSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, 0)
	for name, text := range inputSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
		if err != nil {
			// raise panic on program start
			panic(err) // fix schema text
		}
		compiled[name] = schema
	}
	return compiled
}

// Run compile step on program start:
var inputSchemasCompiled map[string]*gojsonschema.Schema = compileJsonSchemas()
