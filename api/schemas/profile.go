// File: api/schemas/profile.go
package schemas

import (
	"fmt"
	"strings"
)

// UserProfile is the applicant's data, addressed by dotted semantic keys
// (e.g. "user.contact_info.email_primary"). It is loaded once per attempt
// and read-only to the pipeline; the only mutation-shaped operation is
// Overlay, which returns a copy.
type UserProfile struct {
	data map[string]interface{}
}

// NewUserProfile wraps a decoded profile document.
func NewUserProfile(data map[string]interface{}) *UserProfile {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &UserProfile{data: data}
}

// Lookup resolves a dotted key against the nested document. It returns the
// value rendered as a string and true on success. Lists render as a
// comma-separated string; nested objects do not resolve (a key must point at
// a leaf or list).
func (p *UserProfile) Lookup(key string) (string, bool) {
	if p == nil || key == "" {
		return "", false
	}
	var cur interface{} = p.data
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = m[part]
		if !ok {
			return "", false
		}
	}
	return renderValue(cur)
}

// Has reports whether the dotted key resolves to a renderable value.
func (p *UserProfile) Has(key string) bool {
	_, ok := p.Lookup(key)
	return ok
}

// Overlay returns a copy of the profile with the given semantic_key ->
// value pairs layered on top. The overlay is transient: it exists only for
// the current page's action generation and is never written back.
func (p *UserProfile) Overlay(drafts map[string]string) *UserProfile {
	clone := deepCopyMap(p.data)
	for key, value := range drafts {
		setDotted(clone, key, value)
	}
	return &UserProfile{data: clone}
}

// Keys returns the flattened dotted keys present in the profile, for
// excerpt selection. Order is unspecified.
func (p *UserProfile) Keys() []string {
	var keys []string
	flattenKeys("", p.data, &keys)
	return keys
}

func flattenKeys(prefix string, node map[string]interface{}, out *[]string) {
	for k, v := range node {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if child, ok := v.(map[string]interface{}); ok {
			flattenKeys(full, child, out)
			continue
		}
		*out = append(*out, full)
	}
}

func renderValue(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		if val == "" {
			return "", false
		}
		return val, true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	case float64:
		// JSON numbers decode as float64; render integers without the
		// trailing fraction.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val)), true
		}
		return fmt.Sprintf("%g", val), true
	case int:
		return fmt.Sprintf("%d", val), true
	case []interface{}:
		if len(val) == 0 {
			return "", false
		}
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := renderValue(item); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, ", "), true
	case map[string]interface{}:
		return "", false
	default:
		return fmt.Sprintf("%v", val), true
	}
}

func deepCopyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		if child, ok := v.(map[string]interface{}); ok {
			dst[k] = deepCopyMap(child)
			continue
		}
		if list, ok := v.([]interface{}); ok {
			copied := make([]interface{}, len(list))
			copy(copied, list)
			dst[k] = copied
			continue
		}
		dst[k] = v
	}
	return dst
}

func setDotted(node map[string]interface{}, key, value string) {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if i == len(parts)-1 {
			node[part] = value
			return
		}
		child, ok := node[part].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			node[part] = child
		}
		node = child
	}
}
