package device

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ID identifies one accelerator in the visible ordering. The ordering is the
// contract: planners slice it into contiguous per-replica windows, so it must
// be deterministic for a given environment.
type ID int

// EnvVisibleDevices names the environment variable that overrides device
// discovery with an explicit, ordered, comma-separated id list. It mirrors
// the CUDA_VISIBLE_DEVICES convention.
const EnvVisibleDevices = "EVALD_VISIBLE_DEVICES"

// Visible resolves the ordered visible device list. EnvVisibleDevices wins
// when set; otherwise count devices are numbered 0..count-1. The result is
// deterministic given the same environment and arguments.
func Visible(count int) ([]ID, error) {
	if v := os.Getenv(EnvVisibleDevices); v != "" {
		return ParseList(v)
	}
	if count < 1 {
		return nil, fmt.Errorf("no visible devices: %s unset and device count is %d", EnvVisibleDevices, count)
	}
	return FromCount(count), nil
}

// ParseList parses a comma-separated device id list, preserving order.
// Duplicate ids are rejected: a device cannot be visible twice.
func ParseList(s string) ([]ID, error) {
	parts := strings.Split(s, ",")
	out := make([]ID, 0, len(parts))
	seen := make(map[ID]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid device id %q in list %q", p, s)
		}
		id := ID(n)
		if seen[id] {
			return nil, fmt.Errorf("duplicate device id %d in list %q", n, s)
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty device list %q", s)
	}
	return out, nil
}

// FromCount returns ids 0..n-1 in order.
func FromCount(n int) []ID {
	out := make([]ID, n)
	for i := range out {
		out[i] = ID(i)
	}
	return out
}

// CSV renders ids as a comma-separated string, e.g. for CUDA_VISIBLE_DEVICES
// style environments handed to engine processes.
func CSV(ids []ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return strings.Join(parts, ",")
}

// Ints converts ids to plain ints for wire-level payloads.
func Ints(ids []ID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
