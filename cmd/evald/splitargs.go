package main

import (
	"fmt"
	"strings"
)

// splitModelArgs parses a flat comma separated key=value list into a map.
// Empty segments are skipped; malformed segments and duplicate keys error.
func splitModelArgs(s string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed model arg %q, want key=value", part)
		}
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("duplicate model arg %q", k)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
