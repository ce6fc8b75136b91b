// ABOUTME: Registry of named tools with their schemas and handlers.
// ABOUTME: Preserves registration order for discovery and rejects duplicate names.

package packs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// ErrInvalidTool indicates a tool definition is missing its name or handler.
var ErrInvalidTool = errors.New("invalid tool")

// Tool is a registered tool: its definition, handler, owning pack and
// compiled argument schema.
type Tool struct {
	Definition *ToolDefinition
	Handler    ToolHandler
	PackID     string

	schema *argumentSchema
}

// Registry holds the set of callable tools.
// Tools are registered at startup and never removed while serving.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool // by tool name
	order  []*Tool          // registration order
	logger *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a single tool that does not belong to a pack.
// Returns ErrToolCollision if the name is taken, ErrInvalidSchema if the
// input schema does not compile.
func (r *Registry) Register(def *ToolDefinition, handler ToolHandler) error {
	return r.RegisterPack(&BuiltinPack{
		ID:    "",
		Tools: []*BuiltinTool{{Definition: def, Handler: handler}},
	})
}

// RegisterPack registers every tool of a pack, or none of them if any
// tool fails validation or collides with an existing name.
func (r *Registry) RegisterPack(pack *BuiltinPack) error {
	prepared := make([]*Tool, 0, len(pack.Tools))
	seen := make(map[string]struct{}, len(pack.Tools))

	for _, bt := range pack.Tools {
		if bt == nil || bt.Definition == nil || bt.Definition.Name == "" {
			return fmt.Errorf("%w: pack '%s' has a tool without a name", ErrInvalidTool, pack.ID)
		}
		name := bt.Definition.Name
		if bt.Handler == nil {
			return fmt.Errorf("%w: tool '%s' has no handler", ErrInvalidTool, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: tool '%s' appears twice in pack '%s'", ErrToolCollision, name, pack.ID)
		}
		seen[name] = struct{}{}

		schema, err := compileSchema(name, bt.Definition.InputSchema)
		if err != nil {
			return err
		}

		def := *bt.Definition
		if len(def.InputSchema) == 0 {
			def.InputSchema = emptyObjectSchema
		}
		prepared = append(prepared, &Tool{
			Definition: &def,
			Handler:    bt.Handler,
			PackID:     pack.ID,
			schema:     schema,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tool := range prepared {
		if existing, exists := r.tools[tool.Definition.Name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'",
				ErrToolCollision, tool.Definition.Name, existing.PackID)
		}
	}

	for _, tool := range prepared {
		r.tools[tool.Definition.Name] = tool
		r.order = append(r.order, tool)
	}

	r.logger.Info("=== PACK REGISTERED ===",
		"pack_id", pack.ID,
		"tool_count", len(prepared),
		"total_tools", len(r.order),
	)

	return nil
}

// Lookup finds a tool by name. The boolean is false for unknown names.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all tool definitions in registration order.
func (r *Registry) List() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*ToolDefinition, len(r.order))
	for i, tool := range r.order {
		defs[i] = tool.Definition
	}
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// PackInfo contains public information about a registered pack.
type PackInfo struct {
	ID        string
	ToolNames []string
}

// ListPacks returns the registered packs in the order their first tool was registered.
func (r *Registry) ListPacks() []PackInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index := make(map[string]int)
	var packs []PackInfo
	for _, tool := range r.order {
		i, ok := index[tool.PackID]
		if !ok {
			i = len(packs)
			index[tool.PackID] = i
			packs = append(packs, PackInfo{ID: tool.PackID})
		}
		packs[i].ToolNames = append(packs[i].ToolNames, tool.Definition.Name)
	}
	return packs
}

// Close clears the registry.
// This should be called during graceful shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.order)
	r.tools = make(map[string]*Tool)
	r.order = nil

	r.logger.Info("registry closed", "tools_cleared", count)
}
