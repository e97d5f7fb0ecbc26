package catalog

import (
	"strings"

	errors "github.com/Laisky/errors/v2"
	mcp "github.com/mark3labs/mcp-go/mcp"
)

// SampleResourceURI is the only resource the gateway publishes.
const SampleResourceURI = "mcp://server/sample"

// Resource couples a descriptor with its static text content.
type Resource struct {
	Descriptor mcp.Resource
	Text       string
}

// DefaultResources returns the resources published by the gateway.
func DefaultResources() []Resource {
	return []Resource{
		{
			Descriptor: mcp.NewResource(
				SampleResourceURI,
				"Sample Resource",
				mcp.WithResourceDescription("A sample resource for demonstration"),
				mcp.WithMIMEType("text/plain"),
			),
			Text: "This is a sample resource content.",
		},
	}
}

// ResourceCatalog is an ordered set of resources fixed at construction.
type ResourceCatalog struct {
	resources []Resource
	index     map[string]int
}

// NewResourceCatalog registers resources in the given order. URIs must be unique.
func NewResourceCatalog(resources ...Resource) (*ResourceCatalog, error) {
	c := &ResourceCatalog{
		resources: make([]Resource, 0, len(resources)),
		index:     make(map[string]int, len(resources)),
	}

	for _, res := range resources {
		uri := strings.TrimSpace(res.Descriptor.URI)
		if uri == "" {
			return nil, errors.New("resource uri is required")
		}
		if _, exists := c.index[uri]; exists {
			return nil, errors.Errorf("resource %q registered twice", uri)
		}

		c.index[uri] = len(c.resources)
		c.resources = append(c.resources, res)
	}

	return c, nil
}

// List returns descriptors in registration order.
func (c *ResourceCatalog) List() []mcp.Resource {
	if c == nil {
		return nil
	}

	out := make([]mcp.Resource, 0, len(c.resources))
	for _, res := range c.resources {
		out = append(out, res.Descriptor)
	}
	return out
}

// Get looks up a resource by URI.
func (c *ResourceCatalog) Get(uri string) (Resource, bool) {
	if c == nil {
		return Resource{}, false
	}

	i, ok := c.index[uri]
	if !ok {
		return Resource{}, false
	}

	return c.resources[i], true
}
