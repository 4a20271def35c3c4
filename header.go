package csvjson

import (
	"strconv"
	"strings"
)

// decodeHeaders turns the raw fields of the header record into unique keys.
// Names are trimmed, optionally unprefixed, renamed through rename, and
// repeated names receive a numeric suffix ("id", "id_2", "id_3").
func decodeHeaders(raw []string, rename map[string]string, stripPrefix bool) []string {
	keys := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, name := range raw {
		if stripPrefix {
			name = StripInjectionPrefix(name)
		}
		name = strings.TrimSpace(name)
		if to, ok := rename[name]; ok {
			name = to
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			suffixed := name + "_" + strconv.Itoa(n+1)
			for seen[suffixed] > 0 {
				n++
				suffixed = name + "_" + strconv.Itoa(n+1)
			}
			seen[suffixed] = 1
			name = suffixed
		} else {
			seen[name] = 1
		}
		keys[i] = name
	}
	return keys
}

// headerSet collects keys in first-seen order.
type headerSet struct {
	keys []string
	seen map[string]struct{}
}

func newHeaderSet(prefix []string) *headerSet {
	h := &headerSet{seen: make(map[string]struct{}, len(prefix))}
	for _, k := range prefix {
		h.add(k)
	}
	return h
}

func (h *headerSet) add(key string) {
	if _, ok := h.seen[key]; ok {
		return
	}
	h.seen[key] = struct{}{}
	h.keys = append(h.keys, key)
}

// ResolveHeaders returns the column keys for encoding records.
//
// Explicit opts.Headers win outright. Otherwise the template keys come first
// and every other key follows in the order it is first seen across records.
// Keys are the record keys; RenameMap only affects the written header line.
func ResolveHeaders(records []*Record, opts EncodeOptions) []string {
	if len(opts.Headers) > 0 {
		return append([]string(nil), opts.Headers...)
	}
	h := newHeaderSet(opts.Template)
	for _, rec := range records {
		for _, k := range rec.Keys() {
			h.add(k)
		}
	}
	return h.keys
}

// headerLine renames keys for output.
func headerLine(keys []string, rename map[string]string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		if to, ok := rename[k]; ok {
			k = to
		}
		out[i] = k
	}
	return out
}
