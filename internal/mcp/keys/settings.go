package keys

import (
	"os"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
)

// DefaultEnvVar is the environment variable scanned for extra keys.
const DefaultEnvVar = "MCP_API_KEYS"

// LoadFromConfig builds the registry from settings.auth.keys and the
// environment variable named by settings.auth.env_keys_var.
func LoadFromConfig(now time.Time) (*Registry, error) {
	envVar := strings.TrimSpace(gconfig.Shared.GetString("settings.auth.env_keys_var"))
	if envVar == "" {
		envVar = DefaultEnvVar
	}

	return Build(gconfig.S.Get("settings.auth.keys"), os.Getenv(envVar), now)
}

// Build merges configured keys with environment keys. Environment keys win on conflict.
func Build(configKeys any, envValue string, now time.Time) (*Registry, error) {
	records, err := ParseConfigKeys(configKeys, now)
	if err != nil {
		return nil, errors.Wrap(err, "parse settings.auth.keys")
	}

	envRecords, err := ParseEnvKeys(envValue, now)
	if err != nil {
		return nil, errors.Wrap(err, "parse environment api keys")
	}

	reg, err := NewRegistry(append(records, envRecords...)...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return reg, nil
}

// ParseEnvKeys parses "key1:name1,key2:name2". Entries without a colon are ignored.
// Every environment key is granted both the tools and resources scopes.
func ParseEnvKeys(raw string, now time.Time) ([]Record, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var records []Record
	for _, pair := range strings.Split(raw, ",") {
		key, name, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		name = strings.TrimSpace(name)
		if key == "" || name == "" {
			return nil, errors.Errorf("malformed entry %q: key and name are required", MaskKey(key))
		}

		records = append(records, Record{
			Key:         key,
			ClientName:  name,
			Permissions: []string{PermissionTools, PermissionResources},
			CreatedAt:   now,
			Source:      SourceEnvironment,
		})
	}

	return records, nil
}

// ParseConfigKeys converts the settings.auth.keys list into records.
// Each item must be a map with string "key" and "name" and a "permissions" list.
func ParseConfigKeys(raw any, now time.Time) ([]Record, error) {
	if raw == nil {
		return nil, nil
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, errors.Errorf("expect a list, got %T", raw)
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		entry, ok := toStringMap(item)
		if !ok {
			return nil, errors.Errorf("item #%d: expect a map, got %T", i, item)
		}

		key, _ := entry["key"].(string)
		name, _ := entry["name"].(string)
		if strings.TrimSpace(key) == "" {
			return nil, errors.Errorf("item #%d: key is required", i)
		}
		if strings.TrimSpace(name) == "" {
			return nil, errors.Errorf("item #%d: name is required", i)
		}

		perms, err := toStringSlice(entry["permissions"])
		if err != nil {
			return nil, errors.Wrapf(err, "item #%d: permissions", i)
		}

		records = append(records, Record{
			Key:         key,
			ClientName:  name,
			Permissions: perms,
			CreatedAt:   now,
			Source:      SourceConfig,
		})
	}

	return records, nil
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func toStringSlice(v any) ([]string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return s, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, errors.Errorf("expect string, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, errors.Errorf("expect a list of strings, got %T", v)
	}
}
