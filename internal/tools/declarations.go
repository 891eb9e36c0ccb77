package tools

// JSON-schema parameter declarations. The LLM sees these verbatim; the
// registry also compiles them and validates every incoming argument object
// before an executor runs.

const filterSchemaFragment = `{
	"type": "object",
	"description": "Filters to select items (same as search_items)",
	"properties": {
		"query": {"type": "string"},
		"type": {"type": "string", "enum": ["task", "idea", "note", "resource", "contact", "event"]},
		"status": {"type": "string", "enum": ["inbox", "active", "done", "archived"]},
		"date_field": {"type": "string", "enum": ["due_at", "created_at"]},
		"date_from": {"type": "string"},
		"date_to": {"type": "string"},
		"project": {"type": ["string", "integer"]},
		"priority": {"type": "string", "enum": ["high", "medium", "low"]},
		"tags": {"type": "array", "items": {"type": "string"}}
	}
}`

const searchItemsSchema = `{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Text search query (searches in title, content, original_input)"
		},
		"type": {
			"type": "string",
			"enum": ["task", "idea", "note", "resource", "contact", "event"],
			"description": "Filter by item type"
		},
		"status": {
			"type": "string",
			"enum": ["inbox", "active", "done", "archived"],
			"description": "Filter by status"
		},
		"date_field": {
			"type": "string",
			"enum": ["due_at", "created_at"],
			"description": "Which date field to filter by"
		},
		"date_from": {"type": "string", "description": "Start of date range (ISO format)"},
		"date_to": {"type": "string", "description": "End of date range (ISO format)"},
		"project": {"type": ["string", "integer"], "description": "Project name or ID"},
		"priority": {
			"type": "string",
			"enum": ["high", "medium", "low"],
			"description": "Filter by priority"
		},
		"tags": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Filter by tags (items must have ALL specified tags)"
		},
		"limit": {"type": "integer", "default": 10, "description": "Maximum results to return"}
	},
	"required": []
}`

const getItemDetailsSchema = `{
	"type": "object",
	"properties": {
		"item_id": {"type": "integer", "description": "ID of the item to retrieve"}
	},
	"required": ["item_id"]
}`

const batchUpdateItemsSchema = `{
	"type": "object",
	"properties": {
		"filter": ` + filterSchemaFragment + `,
		"updates": {
			"type": "object",
			"description": "Fields to update",
			"properties": {
				"due_at": {"type": "string", "description": "New due date (ISO format)"},
				"due_at_raw": {"type": "string", "description": "Original text for due date"},
				"status": {"type": "string", "enum": ["inbox", "active", "done", "archived"]},
				"priority": {"type": "string", "enum": ["high", "medium", "low"]},
				"project_id": {"type": "integer", "description": "New project ID"},
				"tags": {"type": "array", "items": {"type": "string"}}
			}
		},
		"confirmed": {
			"type": "boolean",
			"default": false,
			"description": "Set to true after user confirmation"
		},
		"confirmation_token": {"type": "string", "description": "Token from preview response"}
	},
	"required": ["filter", "updates"]
}`

const batchDeleteItemsSchema = `{
	"type": "object",
	"properties": {
		"filter": ` + filterSchemaFragment + `,
		"confirmed": {
			"type": "boolean",
			"default": false,
			"description": "Set to true after user confirmation"
		},
		"confirmation_token": {"type": "string", "description": "Token from preview response"}
	},
	"required": ["filter"]
}`

const manageProjectsSchema = `{
	"type": "object",
	"properties": {
		"action": {
			"type": "string",
			"enum": ["create", "list", "get", "rename", "update", "delete", "move_items"],
			"description": "Action to perform"
		},
		"name": {"type": "string", "description": "Project name (for create/rename)"},
		"color": {"type": "string", "description": "Project color (#HEX format)"},
		"emoji": {"type": "string", "description": "Project emoji"},
		"project_id": {
			"type": "integer",
			"description": "Project ID (for get/rename/update/delete/move_items)"
		},
		"target_project_id": {
			"type": ["integer", "null"],
			"description": "Target project ID for move_items (null to remove from project)"
		},
		"confirmed": {
			"type": "boolean",
			"default": false,
			"description": "Confirmation for delete/move_items"
		},
		"confirmation_token": {"type": "string", "description": "Token from preview response"}
	},
	"required": ["action"]
}`

const saveItemSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "description": "Item title/name"},
		"content": {"type": "string", "description": "Full content (optional)"},
		"type": {
			"type": "string",
			"enum": ["task", "idea", "note", "resource", "contact", "event"],
			"description": "Item type"
		},
		"due_at": {"type": "string", "description": "Due date in ISO format (optional)"},
		"due_at_raw": {
			"type": "string",
			"description": "Original due date text like 'завтра в 15:00' (optional)"
		},
		"priority": {
			"type": "string",
			"enum": ["high", "medium", "low"],
			"description": "Priority level (optional)"
		},
		"project_id": {"type": "integer", "description": "Project ID to add item to (optional)"},
		"tags": {"type": "array", "items": {"type": "string"}, "description": "Tags list (optional)"}
	},
	"required": ["title", "type"]
}`
