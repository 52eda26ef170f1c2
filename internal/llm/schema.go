package llm

import "encoding/json"

// GroupingSchemaName identifies the structured-output schema on the wire.
const GroupingSchemaName = "file_grouping"

// GroupingResponseSchema is the JSON schema the provider is asked to
// enforce on the model output. It guarantees parseable structure only;
// semantic content (file names, group names) is validated downstream.
var GroupingResponseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "groups": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "group_name": {"type": "string"},
          "description": {"type": "string"},
          "files": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["group_name", "description", "files"],
        "additionalProperties": false
      }
    },
    "ungrouped_files": {"type": "array", "items": {"type": "string"}},
    "reorganization_description": {"type": "string"}
  },
  "required": ["groups", "ungrouped_files", "reorganization_description"],
  "additionalProperties": false
}`)
