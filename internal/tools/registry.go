// Package tools implements the management tool protocol: a registry of
// schema-validated tools the LLM can call, two-phase confirmation for
// destructive operations, and the bounded agent loop that drives them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/neuralinbox/neuralinbox/internal/ai"
	"github.com/neuralinbox/neuralinbox/internal/storage"
)

// executorFunc runs one validated tool call. Failures are reported inside
// the result object so the LLM can react to them; executors never return Go
// errors.
type executorFunc func(ctx context.Context, userID int64, args map[string]any) map[string]any

// tool pairs a declaration with its compiled schema and executor.
type tool struct {
	name        string
	description string
	parameters  json.RawMessage
	schema      *jsonschema.Schema
	run         executorFunc
}

// Registry holds the fixed tool set exposed to the LLM.
type Registry struct {
	store    storage.Storage
	embedder ai.Embedder
	confirms *ConfirmStore
	tools    map[string]*tool
	order    []string
}

// NewRegistry builds the registry and compiles every parameter schema. A
// declaration that does not compile is a programming error surfaced at
// startup.
func NewRegistry(store storage.Storage, embedder ai.Embedder, confirms *ConfirmStore) (*Registry, error) {
	r := &Registry{
		store:    store,
		embedder: embedder,
		confirms: confirms,
		tools:    make(map[string]*tool),
	}

	declarations := []struct {
		name        string
		description string
		schema      string
		run         executorFunc
	}{
		{
			"search_items",
			"Search items by text and filters. Use to find item IDs for further operations.",
			searchItemsSchema,
			r.searchItems,
		},
		{
			"get_item_details",
			"Get full details of an item by ID.",
			getItemDetailsSchema,
			r.getItemDetails,
		},
		{
			"batch_update_items",
			"Batch update items matching filters. Requires confirmation for execution.",
			batchUpdateItemsSchema,
			r.batchUpdateItems,
		},
		{
			"batch_delete_items",
			"Batch delete items matching filters. Requires confirmation for execution.",
			batchDeleteItemsSchema,
			r.batchDeleteItems,
		},
		{
			"manage_projects",
			"Manage projects: create, list, get, rename, update, delete, move items.",
			manageProjectsSchema,
			r.manageProjects,
		},
		{
			"save_item",
			"Create a new item (task, idea, note, resource, contact, event). Use when user asks to ADD or CREATE a new record.",
			saveItemSchema,
			r.saveItem,
		},
	}

	for _, d := range declarations {
		if err := r.register(d.name, d.description, d.schema, d.run); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(name, description, schemaJSON string, run executorFunc) error {
	var doc any
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		return fmt.Errorf("failed to parse schema for tool %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", doc); err != nil {
		return fmt.Errorf("failed to add schema resource for tool %s: %w", name, err)
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", name, err)
	}

	r.tools[name] = &tool{
		name:        name,
		description: description,
		parameters:  json.RawMessage(schemaJSON),
		schema:      schema,
		run:         run,
	}
	r.order = append(r.order, name)
	return nil
}

// Specs returns the tool declarations in registration order, for handing to
// the model provider.
func (r *Registry) Specs() []ai.ToolSpec {
	specs := make([]ai.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, ai.ToolSpec{
			Name:        t.name,
			Description: t.description,
			Parameters:  t.parameters,
		})
	}
	return specs
}

// Execute validates the call's arguments against the tool's schema and runs
// the executor. All failures come back as {"error": ...} result objects.
func (r *Registry) Execute(ctx context.Context, userID int64, call ai.ToolCall) map[string]any {
	t, ok := r.tools[call.Name]
	if !ok {
		return errorResult("Unknown tool: %s", call.Name)
	}

	raw := call.Arguments
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errorResult("Invalid tool arguments: %v", err)
	}
	if err := t.schema.Validate(doc); err != nil {
		return errorResult("Arguments do not match schema: %v", err)
	}
	args, ok := doc.(map[string]any)
	if !ok {
		return errorResult("Tool arguments must be an object")
	}
	return t.run(ctx, userID, args)
}

func errorResult(format string, a ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, a...)}
}
