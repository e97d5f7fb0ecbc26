// Package keys holds the process-wide API key registry.
//
// The registry is built once at startup from the settings file and the
// environment, and is never mutated afterwards. Callers share it by pointer.
package keys

import (
	"sort"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
)

// Permission scopes understood by the gateway.
const (
	PermissionTools     = "tools"
	PermissionResources = "resources"
)

// Source records where an API key came from.
type Source string

const (
	// SourceEnvironment marks keys parsed from the MCP_API_KEYS style variable.
	SourceEnvironment Source = "environment"
	// SourceConfig marks keys declared in the settings file.
	SourceConfig Source = "config"
	// SourcePlaceholder marks demo keys. The registry refuses to load them.
	SourcePlaceholder Source = "placeholder"
)

var (
	// ErrNoUsableKeys is returned when a registry would not grant access to anyone.
	ErrNoUsableKeys = errors.New("no usable api keys configured")
	// ErrPlaceholderKey is returned when a placeholder record is offered to the registry.
	ErrPlaceholderKey = errors.New("placeholder api keys are not accepted")
)

// Record describes a single API key and the identity bound to it.
type Record struct {
	Key         string
	ClientName  string
	Permissions []string
	CreatedAt   time.Time
	Source      Source
}

// HasPermission reports whether the record grants permission.
func (r Record) HasPermission(permission string) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}

	return false
}

func (r Record) clone() Record {
	r.Permissions = append([]string(nil), r.Permissions...)
	return r
}

// Registry is an immutable key -> Record table.
type Registry struct {
	records map[string]Record
	order   []string
}

// NewRegistry validates records and builds a registry.
// Later records replace earlier ones that carry the same key, keeping the first position.
func NewRegistry(records ...Record) (*Registry, error) {
	reg := &Registry{
		records: make(map[string]Record, len(records)),
	}

	for i, rec := range records {
		rec.Key = strings.TrimSpace(rec.Key)
		rec.ClientName = strings.TrimSpace(rec.ClientName)
		if rec.Key == "" {
			return nil, errors.Errorf("api key #%d is empty", i)
		}
		if rec.Source == SourcePlaceholder {
			return nil, errors.Wrapf(ErrPlaceholderKey, "api key for %q", rec.ClientName)
		}
		if rec.ClientName == "" {
			return nil, errors.Errorf("api key %s has no client name", MaskKey(rec.Key))
		}
		rec.Permissions = normalizePermissions(rec.Permissions)

		if _, exists := reg.records[rec.Key]; !exists {
			reg.order = append(reg.order, rec.Key)
		}
		reg.records[rec.Key] = rec.clone()
	}

	usable := false
	for _, rec := range reg.records {
		if len(rec.Permissions) > 0 {
			usable = true
			break
		}
	}
	if !usable {
		return nil, ErrNoUsableKeys
	}

	return reg, nil
}

// Lookup returns a copy of the record bound to key.
func (r *Registry) Lookup(key string) (Record, bool) {
	if r == nil {
		return Record{}, false
	}

	rec, ok := r.records[key]
	if !ok {
		return Record{}, false
	}

	return rec.clone(), true
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}

	return len(r.order)
}

// Records returns copies of all records in registration order.
func (r *Registry) Records() []Record {
	if r == nil {
		return nil
	}

	out := make([]Record, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.records[key].clone())
	}

	return out
}

// MaskKey returns a non-sensitive key hint suitable for logs.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "***"
	}

	return "***" + key[len(key)-4:]
}

// normalizePermissions trims, dedupes and sorts a permission list.
func normalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)

	return out
}
