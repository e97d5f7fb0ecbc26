// Package catalog provides the static, read-only tool and resource registries.
package catalog

import (
	"strings"

	errors "github.com/Laisky/errors/v2"
	mcp "github.com/mark3labs/mcp-go/mcp"
)

// ToolCatalog is an ordered set of tool descriptors fixed at construction.
type ToolCatalog struct {
	tools []mcp.Tool
	index map[string]int
}

// NewToolCatalog registers tools in the given order. Names must be unique and non-empty.
func NewToolCatalog(tools ...mcp.Tool) (*ToolCatalog, error) {
	c := &ToolCatalog{
		tools: make([]mcp.Tool, 0, len(tools)),
		index: make(map[string]int, len(tools)),
	}

	for _, tool := range tools {
		name := strings.TrimSpace(tool.Name)
		if name == "" {
			return nil, errors.New("tool name is required")
		}
		if _, exists := c.index[name]; exists {
			return nil, errors.Errorf("tool %q registered twice", name)
		}

		c.index[name] = len(c.tools)
		c.tools = append(c.tools, tool)
	}

	return c, nil
}

// List returns descriptors in registration order.
func (c *ToolCatalog) List() []mcp.Tool {
	if c == nil {
		return nil
	}

	return append([]mcp.Tool(nil), c.tools...)
}

// Names returns tool names in registration order.
func (c *ToolCatalog) Names() []string {
	if c == nil {
		return nil
	}

	names := make([]string, 0, len(c.tools))
	for _, tool := range c.tools {
		names = append(names, tool.Name)
	}
	return names
}

// Get looks up a descriptor by name.
func (c *ToolCatalog) Get(name string) (mcp.Tool, bool) {
	if c == nil {
		return mcp.Tool{}, false
	}

	i, ok := c.index[name]
	if !ok {
		return mcp.Tool{}, false
	}

	return c.tools[i], true
}

// MissingRequired lists the schema's required arguments absent (or null) in args.
func (c *ToolCatalog) MissingRequired(name string, args map[string]any) []string {
	tool, ok := c.Get(name)
	if !ok {
		return nil
	}

	var missing []string
	for _, field := range tool.InputSchema.Required {
		if v, ok := args[field]; !ok || v == nil {
			missing = append(missing, field)
		}
	}
	return missing
}
