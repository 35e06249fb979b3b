// Package barcode decodes GS1-style element strings: a concatenation of fields,
// each introduced by a numeric application identifier and carrying either a
// fixed-width or a delimited variable-width value.
package barcode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Variable marks an identifier whose value has no fixed width.
const Variable = -1

// GroupSeparator is the FNC1 control character terminating variable-width values.
const GroupSeparator = "\x1D"

// Registry maps an application identifier to its fixed value width, or Variable.
type Registry map[string]int

// DefaultRegistry returns the identifiers handled out of the box:
// GTIN (01), expiry date (17), lot (10), serial (21) and count (30).
func DefaultRegistry() Registry {
	return Registry{
		"01": 14,
		"17": 6,
		"10": Variable,
		"21": Variable,
		"30": Variable,
	}
}

// ParseRegistry parses a comma-separated registry description such as
// "01:14,17:6,10:*". A width of "*" (or "v") marks a variable-width field.
func ParseRegistry(spec string) (Registry, error) {
	registry := make(Registry)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id, width, ok := strings.Cut(entry, ":")
		id = strings.TrimSpace(id)
		width = strings.TrimSpace(width)
		if !ok || id == "" || width == "" {
			return nil, fmt.Errorf("invalid registry entry %q", entry)
		}

		if width == "*" || strings.EqualFold(width, "v") {
			registry[id] = Variable
			continue
		}

		n, err := strconv.Atoi(width)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid width for identifier %s: %q", id, width)
		}
		registry[id] = n
	}

	if len(registry) == 0 {
		return nil, fmt.Errorf("registry is empty")
	}
	return registry, nil
}

// String renders the registry in the form accepted by ParseRegistry.
func (r Registry) String() string {
	parts := make([]string, 0, len(r))
	for _, id := range r.orderedKeys() {
		if r[id] == Variable {
			parts = append(parts, id+":*")
		} else {
			parts = append(parts, id+":"+strconv.Itoa(r[id]))
		}
	}
	return strings.Join(parts, ",")
}

// orderedKeys returns identifiers longest first, then lexically, so prefix
// matching never depends on map iteration order.
func (r Registry) orderedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Decode extracts the fields of raw using registry and the default group
// separator. Decoding never fails: unknown or truncated tails are dropped.
func Decode(raw string, registry Registry) map[string]string {
	return decode(raw, registry.orderedKeys(), registry, GroupSeparator)
}

func decode(raw string, keys []string, registry Registry, separator string) map[string]string {
	fields := make(map[string]string)
	available := make([]string, len(keys))
	copy(available, keys)

	cursor := 0
	for cursor < len(raw) {
		id := matchIdentifier(raw[cursor:], available)
		if id == "" {
			break
		}
		available = remove(available, id)
		cursor += len(id)

		if width := registry[id]; width != Variable {
			end := cursor + width
			if end > len(raw) {
				end = len(raw)
			}
			fields[id] = raw[cursor:end]
			cursor = end
			continue
		}

		rest := raw[cursor:]
		boundary := len(rest)
		atSeparator := false
		if separator != "" {
			if i := strings.Index(rest, separator); i >= 0 {
				boundary = i
				atSeparator = true
			}
		}
		for _, other := range available {
			if i := strings.Index(rest, other); i >= 0 && i < boundary {
				boundary = i
				atSeparator = false
			}
		}

		fields[id] = rest[:boundary]
		cursor += boundary
		if atSeparator {
			cursor += len(separator)
		}
	}

	return fields
}

func matchIdentifier(rest string, available []string) string {
	for _, id := range available {
		if strings.HasPrefix(rest, id) {
			return id
		}
	}
	return ""
}

func remove(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
