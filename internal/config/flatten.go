package config

import (
	"strings"
)

// secretKeys are the flattened keys whose values are masked in listings.
var secretKeys = map[string]bool{
	"remote.api_key": true,
	"telegram.token": true,
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns the JSON form of a config into dot-separated keys, so
// {"local": {"model": "llama"}} becomes {"local.model": "llama"}. Empty
// objects produce no keys; arrays are kept as single values.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			if prefix != "" {
				k = prefix + "." + k
			}
			if nested, ok := v.(map[string]any); ok {
				walk(k, nested)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A scalar sitting where a later key
// needs an object is replaced by that object.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			node = child(node, part)
		}
		node[parts[len(parts)-1]] = v
	}
	return out
}

func child(node map[string]any, key string) map[string]any {
	if m, ok := node[key].(map[string]any); ok {
		return m
	}
	m := make(map[string]any)
	node[key] = m
	return m
}

// MaskSecrets returns a copy of flat with credentials hidden. Secrets longer
// than eight characters keep their last four; shorter ones are fully masked.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok && secretKeys[k] {
			out[k] = maskSecret(s)
			continue
		}
		out[k] = v
	}
	return out
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return "***" + s[len(s)-4:]
	}
}
